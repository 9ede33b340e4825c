package queuesvc

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/testutil"
)

type enqueuerMock struct {
	mock.Mock
}

func (m *enqueuerMock) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(ctx, task, opts)
	info, _ := args.Get(0).(*asynq.TaskInfo)
	return info, args.Error(1)
}

func (m *enqueuerMock) Close() error { return m.Called().Error(0) }

func TestAsynqScheduler_Submit(t *testing.T) {
	tests := []struct {
		name     string
		delay    time.Duration
		enqErr   error
		wantID   string
		wantOpts int
		wantErr  bool
	}{
		{name: "immediate", wantID: "t1", wantOpts: 1},
		{name: "delayed", delay: time.Hour, wantID: "t1", wantOpts: 2},
		{name: "redis down", enqErr: errors.New("dial tcp: connection refused"), wantOpts: 1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(enqueuerMock)
			var info *asynq.TaskInfo
			if tt.enqErr == nil {
				info = &asynq.TaskInfo{ID: "t1"}
			}
			client.On("EnqueueContext", mock.Anything, mock.MatchedBy(func(task *asynq.Task) bool {
				return task.Type() == "course:sweep" && string(task.Payload()) == `{"course_id":1}`
			}), mock.MatchedBy(func(opts []asynq.Option) bool {
				return len(opts) == tt.wantOpts
			})).Return(info, tt.enqErr)

			s := &AsynqScheduler{client: client}
			id, err := s.Submit(context.Background(), "course:sweep", []byte(`{"course_id":1}`), tt.delay)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Submit() error = %v, wantErr %v", err, tt.wantErr)
			}
			assert.Equal(t, tt.wantID, id)
			client.AssertExpectations(t)
		})
	}
}

func TestInlineScheduler(t *testing.T) {
	logger := testutil.NewLogger()
	s := NewInlineScheduler(logger)

	var runs int32
	s.Register("job:ok", func(ctx context.Context, payload []byte) error {
		assert.Equal(t, "payload", string(payload))
		atomic.AddInt32(&runs, 1)
		return nil
	})
	s.Register("job:fail", func(ctx context.Context, payload []byte) error {
		return errors.New("boom")
	})

	_, err := s.Submit(context.Background(), "job:unknown", nil, 0)
	require.Error(t, err)

	id1, err := s.Submit(context.Background(), "job:ok", []byte("payload"), 0)
	require.NoError(t, err)
	id2, err := s.Submit(context.Background(), "job:fail", nil, time.Millisecond)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
	s.Wait()

	_, err = s.Submit(context.Background(), "job:ok", []byte("payload"), time.Hour)
	require.NoError(t, err)
	s.Stop()
	s.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&runs), "the delayed job was stopped")
	assert.Len(t, logger.Messages("error"), 1)
}

func TestWorker_Register(t *testing.T) {
	w := &Worker{mux: asynq.NewServeMux(), logger: testutil.NewLogger()}

	var got []byte
	w.Register("course:sweep", func(ctx context.Context, payload []byte) error {
		got = payload
		return nil
	})

	err := w.mux.ProcessTask(context.Background(), asynq.NewTask("course:sweep", []byte(`{"course_id":3}`)))
	require.NoError(t, err)
	assert.Equal(t, `{"course_id":3}`, string(got))

	err = w.mux.ProcessTask(context.Background(), asynq.NewTask("unknown", nil))
	assert.Error(t, err, "unknown jobs are rejected by the mux")
}

func TestAsynqLogger(t *testing.T) {
	logger := testutil.NewLogger()
	l := asynqLogger{logger: logger}

	l.Info("worker ", "started")
	l.Error("lost connection")
	assert.Equal(t, []string{"worker started"}, logger.Messages("info"))
	assert.Equal(t, []string{"lost connection"}, logger.Messages("error"))
}
