package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

// CreateUser inserts an active User straight into repo.
func CreateUser(
	t *testing.T,
	repo user.Repository,
	uname, email, pwd, role string,
	isStaff bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	if role == "" {
		role = user.RoleStudent
	}
	usr := user.User{
		Username:  uname,
		Email:     email,
		FirstName: strings.ToUpper(uname[:1]) + uname[1:],
		LastName:  "Test",
		Role:      role,
		IsStaff:   isStaff,
		IsActive:  true,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateUsers inserts n students named <prefix>1..<prefix>n and returns their IDs.
func CreateUsers(t *testing.T, repo user.Repository, prefix string, n int) []int {
	t.Helper()

	ids := make([]int, 0, n)
	for i := 1; i <= n; i++ {
		uname := fmt.Sprintf("%s%d", prefix, i)
		ids = append(ids, CreateUser(t, repo, uname, uname+"@test.com", "", user.RoleStudent, false).ID)
	}
	return ids
}

type LogEntry struct {
	Level string
	Msg   string
	Args  []interface{}
}

// Logger records log entries for assertions.
type Logger struct {
	mu      sync.Mutex
	entries []LogEntry
}

var _ core.Logger = (*Logger)(nil)

func NewLogger() *Logger {
	return &Logger{}
}

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, Args: args})
}

// Messages returns the messages logged at level, in order.
func (l *Logger) Messages(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var msgs []string
	for _, e := range l.entries {
		if e.Level == level {
			msgs = append(msgs, e.Msg)
		}
	}
	return msgs
}

func (l *Logger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("error", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.log("fatal", msg, args) }

// SchedulerMock is a core.Scheduler mock.
type SchedulerMock struct {
	mock.Mock
}

var _ core.Scheduler = (*SchedulerMock)(nil)

func (m *SchedulerMock) Submit(ctx context.Context, jobName string, payload []byte, delay time.Duration) (string, error) {
	args := m.Called(ctx, jobName, payload, delay)
	return args.String(0), args.Error(1)
}
