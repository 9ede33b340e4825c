package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/chat"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/user"
	emailsvc "github.com/trezcool/academia/services/email"
	inmemdb "github.com/trezcool/academia/storage/database/inmem"
	"github.com/trezcool/academia/testutil"
)

type testCLI struct {
	*commandLine
	out       *bytes.Buffer
	chats     chat.Repository
	courseSvc *course.Service
	sched     *testutil.SchedulerMock
}

func setup(t *testing.T) testCLI {
	t.Helper()

	conf := core.NewTestConfig()
	logger := testutil.NewLogger()
	db := inmemdb.Open()
	tx := inmemdb.NewTransactor(db)

	usrRepo := inmemdb.NewUserRepository(db)
	chats := inmemdb.NewChatRepository(db)
	usrSvc := user.NewService(usrRepo, emailsvc.NewConsoleServiceMock(conf, logger), conf)

	sched := new(testutil.SchedulerMock)
	sched.On("Submit", mock.Anything, course.TaskSweep, mock.Anything, mock.Anything).Return("task-id", nil)
	courseSvc := course.NewService(tx, inmemdb.NewCourseRepository(db), chats, usrSvc, sched, logger, conf)

	out := new(bytes.Buffer)
	return testCLI{
		commandLine: &commandLine{usrRepo: usrRepo, courses: courseSvc, out: out},
		out:         out,
		chats:       chats,
		courseSvc:   courseSvc,
		sched:       sched,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func (cli testCLI) check(t *testing.T, tt cliTest) error {
	t.Helper()
	err := cli.run(append([]string{"admin"}, tt.args...))
	switch {
	case tt.wantErr != nil:
		if errors.Cause(err) != tt.wantErr {
			t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
		}
	case tt.wantErrStr != "":
		if err == nil || err.Error() != tt.wantErrStr {
			t.Errorf("cli.run() error = %v, wantErrStr %s", err, tt.wantErrStr)
		}
	case err != nil:
		t.Errorf("cli.run() unexpected error = %v", err)
	}
	return err
}

func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		return []byte(pwd), nil
	}
}

func Test_commandLine_usage(t *testing.T) {
	cli := setup(t)

	for _, tt := range []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "migrate: no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "sweep: no args", args: []string{"sweep"}, wantErr: errHelp},
		{name: "schedule: no args", args: []string{"schedule"}, wantErr: errHelp},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cli.check(t, tt)
		})
	}
	assert.Contains(t, cli.out.String(), "Usage:")
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "course", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli.check(t, tt)
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	testutil.CreateUser(t, cli.usrRepo, "hero", "hero@test.cd", "", user.RoleStudent, false)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "email missing", args: []string{"adduser", "-username", "admin"}, wantErr: errHelp},
		{name: "password missing", args: []string{"adduser", "-username", "admin", "-email", "admin@test.cd"}, wantErr: errHelp},
		{
			name: "invalid role", args: []string{"adduser", "-username", "admin", "-email", "admin@test.cd", "-role", "boss"},
			extra: extra{pwd: "lol"}, wantErr: errInvalidRole,
		},
		{
			name: "email taken", args: []string{"adduser", "-username", "admin", "-email", "Hero@test.cd"},
			extra: extra{pwd: "lol"}, wantErr: user.ErrEmailExists,
		},
		{name: "created", args: []string{"adduser", "-username", "Admin", "-email", "admin@test.cd", "-staff"}, extra: extra{pwd: "lol"}},
		{name: "updated", args: []string{"adduser", "-username", "hero", "-email", "hero@test.cd", "-role", "mentor"}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		pwd := ""
		if e, ok := tt.extra.(extra); ok {
			pwd = e.pwd
		}
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			cli.check(t, tt)
		})
	}

	admin, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Username: "admin"})
	require.NoError(t, err)
	assert.True(t, admin.IsStaff)
	assert.True(t, admin.IsActive)
	assert.Equal(t, user.RoleCurator, admin.Role)
	assert.NoError(t, admin.CheckPassword("lol"))

	hero, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Username: "hero"})
	require.NoError(t, err)
	assert.Equal(t, user.RoleMentor, hero.Role)
	assert.False(t, hero.IsStaff)
	assert.NoError(t, hero.CheckPassword("lmao"))
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	usr := testutil.CreateUser(t, cli.usrRepo, "awe", "awe@test.cd", "mdr", user.RoleStudent, false)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "lol"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", "AWE@test.cd"}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		pwd := ""
		if e, ok := tt.extra.(extra); ok {
			pwd = e.pwd
		}
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.check(t, tt); err == nil {
				refreshedUsr, err := cli.usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
				if err != nil {
					t.Fatalf("GetUser() failed, %v", err)
				}
				if bytes.Equal(refreshedUsr.PasswordHash, usr.PasswordHash) {
					t.Error("failed to update new password")
				}
				assert.NoError(t, refreshedUsr.CheckPassword(pwd))
			}
		})
	}
}

func Test_commandLine_sweep(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	ids := testutil.CreateUsers(t, cli.usrRepo, "user", 2)
	duration := 1
	ended := time.Now().Add(-3 * 24 * time.Hour)
	expired, err := cli.courseSvc.Create(ctx, course.NewCourse{
		Title: "Go 101", DurationDays: &duration, EndDatetime: &ended, UserIDs: ids,
	})
	require.NoError(t, err)
	running, err := cli.courseSvc.Create(ctx, course.NewCourse{Title: "Rust 101", UserIDs: ids})
	require.NoError(t, err)

	tests := []cliTest{
		{name: "unknown course", args: []string{"sweep", "-course", "999"}, wantErr: course.ErrNotFound},
		{name: "running course", args: []string{"sweep", "-course", strconv.Itoa(running.ID)}},
		{name: "expired course", args: []string{"sweep", "-course", strconv.Itoa(expired.ID)}},
		{name: "all", args: []string{"sweep", "-all"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli.check(t, tt)
		})
	}

	out := cli.out.String()
	assert.Contains(t, out, fmt.Sprintf("course %d: not expired", running.ID))
	assert.Contains(t, out, fmt.Sprintf("course %d: swept 0 messages, 2 participants, 2 enrollments", expired.ID))

	participants, err := cli.chats.ListParticipants(ctx, expired.ChatID)
	require.NoError(t, err)
	assert.Empty(t, participants)
	c, err := cli.courseSvc.Get(ctx, running.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, c.UserIDs)
}

func Test_commandLine_schedule(t *testing.T) {
	cli := setup(t)

	c, err := cli.courseSvc.Create(context.Background(), course.NewCourse{Title: "Go 101"})
	require.NoError(t, err)

	tests := []cliTest{
		{name: "unknown course", args: []string{"schedule", "-course", "999"}, wantErr: course.ErrNotFound},
		{name: "scheduled", args: []string{"schedule", "-course", strconv.Itoa(c.ID)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli.check(t, tt)
		})
	}
	assert.Contains(t, cli.out.String(), fmt.Sprintf("course %d: sweep scheduled (task-id)", c.ID))
}
