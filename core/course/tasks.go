package course

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// background task names
const (
	TaskSweep    = "course:sweep"
	TaskSweepAll = "course:sweep_all"
)

// sweepMargin delays scheduled sweeps a bit past the instant the course becomes sweepable.
const sweepMargin = time.Minute

type sweepPayload struct {
	CourseID int `json:"course_id"`
}

// ScheduleSweep submits a sweep of the course for when it becomes sweepable.
func (svc *Service) ScheduleSweep(ctx context.Context, courseID int) (string, error) {
	c, err := svc.repo.GetCourse(ctx, courseID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("scheduling sweep: course %d not found", courseID))
		return "", err
	}
	return svc.scheduleSweep(ctx, c)
}

func (svc *Service) scheduleSweep(ctx context.Context, c Course) (string, error) {
	delay := c.SweepableAt().Sub(svc.now()) + sweepMargin
	if delay < 0 {
		delay = 0
	}
	id, err := svc.submitSweep(ctx, c.ID, delay)
	if err != nil {
		return "", err
	}
	svc.logger.Info(fmt.Sprintf("course %d: sweep %s scheduled in %s", c.ID, id, delay.Round(time.Second)))
	return id, nil
}

// RequestSweep submits an immediate sweep of the course.
func (svc *Service) RequestSweep(ctx context.Context, courseID int) (string, error) {
	if _, err := svc.repo.GetCourse(ctx, courseID); err != nil {
		return "", err
	}
	return svc.submitSweep(ctx, courseID, 0)
}

func (svc *Service) submitSweep(ctx context.Context, courseID int, delay time.Duration) (string, error) {
	payload, err := json.Marshal(sweepPayload{CourseID: courseID})
	if err != nil {
		return "", errors.Wrap(err, "encoding sweep payload")
	}
	id, err := svc.scheduler.Submit(ctx, TaskSweep, payload, delay)
	return id, errors.Wrap(err, "submitting sweep")
}

// HandleSweepTask runs a TaskSweep job. A course that no longer exists is not an error:
// the job must not be retried.
func (svc *Service) HandleSweepTask(ctx context.Context, payload []byte) error {
	var p sweepPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return errors.Wrap(err, "decoding sweep payload")
	}
	if _, err := svc.SweepOne(ctx, p.CourseID); err != nil && errors.Cause(err) != ErrNotFound {
		return err
	}
	return nil
}

// HandleSweepAllTask runs a TaskSweepAll job.
func (svc *Service) HandleSweepAllTask(ctx context.Context, _ []byte) error {
	results, err := svc.SweepAll(ctx)
	var swept int
	for _, res := range results {
		if res.Swept {
			swept++
		}
	}
	svc.logger.Info(fmt.Sprintf("sweep all: %d of %d courses swept", swept, len(results)))
	return err
}
