package core

import (
	"context"
	"time"
)

// Scheduler submits a named background job for execution after delay.
// It returns the ID assigned to the job by the backend.
type Scheduler interface {
	Submit(ctx context.Context, jobName string, payload []byte, delay time.Duration) (string, error)
}
