package queuesvc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

// InlineScheduler runs jobs in-process once their delay elapses.
// Pending jobs are lost on exit: use it when no redis is available.
type InlineScheduler struct {
	logger core.Logger

	mu       sync.Mutex
	handlers map[string]Handler
	timers   map[string]*time.Timer
	wg       sync.WaitGroup
}

var (
	_ core.Scheduler = (*InlineScheduler)(nil) // interface compliance check
	_ Registrar      = (*InlineScheduler)(nil)
)

func NewInlineScheduler(logger core.Logger) *InlineScheduler {
	return &InlineScheduler{
		logger:   logger,
		handlers: make(map[string]Handler),
		timers:   make(map[string]*time.Timer),
	}
}

func (s *InlineScheduler) Register(jobName string, h Handler) {
	s.mu.Lock()
	s.handlers[jobName] = h
	s.mu.Unlock()
}

func (s *InlineScheduler) Submit(_ context.Context, jobName string, payload []byte, delay time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handlers[jobName]
	if !ok {
		return "", errors.Errorf("no handler registered for %s", jobName)
	}

	id := uuid.NewString()
	s.wg.Add(1)
	s.timers[id] = time.AfterFunc(delay, func() {
		defer s.wg.Done()
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()

		if err := h(context.Background(), payload); err != nil {
			s.logger.Error(fmt.Sprintf("job %s (%s) failed: %v", id, jobName, err), err)
		}
	})
	return id, nil
}

// Wait blocks until every submitted job has run or has been stopped.
func (s *InlineScheduler) Wait() {
	s.wg.Wait()
}

// Stop cancels the pending jobs.
func (s *InlineScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		if t.Stop() {
			s.wg.Done()
		}
		delete(s.timers, id)
	}
}
