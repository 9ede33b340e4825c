package sqlxrepos

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/user"
	"github.com/trezcool/academia/testutil"
)

func newCourseService(db *sqlx.DB, logger *testutil.Logger) *course.Service {
	conf := &core.Config{}
	conf.Course.DefaultDurationDays = 30
	return course.NewService(
		NewTransactor(db),
		NewCourseRepository(db),
		NewChatRepository(db),
		user.NewService(NewUserRepository(db), nil, conf),
		&testutil.SchedulerMock{},
		logger,
		conf,
	)
}

func expectCourse(mock sqlmock.Sqlmock, end time.Time, users [][2]int) {
	created := end.Add(-30 * 24 * time.Hour)
	mock.ExpectQuery(quote(`FROM course WHERE id = $1`)).WithArgs(1).
		WillReturnRows(sqlmock.NewRows(courseRowColumns).AddRow(1, "Go", nil, nil, 30, end, 5, created, created))
	expectCourseLinks(mock, users, nil)
}

func TestCourseService_ReconcileUsers_SQL(t *testing.T) {
	db, mock := newMock(t)
	logger := testutil.NewLogger()
	now := time.Now().UTC()

	mock.ExpectBegin()
	expectCourse(mock, now.Add(24*time.Hour), [][2]int{{1, 2}, {1, 3}})
	mock.ExpectQuery(quote(`SELECT id FROM "user" WHERE id = ANY($1) ORDER BY id`)).WithArgs("{3,4,999}").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3).AddRow(4))
	mock.ExpectExec(quote(`DELETE FROM course_enrollment WHERE course_id = $1 AND user_id = ANY($2)`)).WithArgs(1, "{2}").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(quote(`INSERT INTO course_enrollment`)).WithArgs(1, "{4}", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(quote(`FROM chat_participant WHERE chat_id = ANY($1)`)).WithArgs("{5}").
		WillReturnRows(sqlmock.NewRows([]string{"id", "chat_id", "user_id", "joined_at"}).
			AddRow(10, 5, 2, now).AddRow(11, 5, 3, now))
	mock.ExpectExec(quote(`DELETE FROM chat_participant WHERE chat_id = $1 AND user_id = ANY($2)`)).WithArgs(5, "{2}").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(quote(`INSERT INTO chat_participant`)).WithArgs(5, "{4}", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	diff, err := newCourseService(db, logger).ReconcileUsers(context.Background(), 1, []int{4, 3, 999, 4})
	require.NoError(t, err)
	assert.Equal(t, course.MembershipDiff{CourseID: 1, Added: []int{4}, Removed: []int{2}, Skipped: []int{999}}, diff)
	assert.Equal(t, []string{"course 1: skipped unknown user IDs [999]"}, logger.Messages("warn"))
}

func TestCourseService_SweepOne_SQL(t *testing.T) {
	errBoom := errors.New("boom")
	now := time.Now().UTC()

	tests := []struct {
		name    string
		end     time.Time
		setup   func(mock sqlmock.Sqlmock)
		want    course.SweepResult
		wantErr error
	}{
		{
			name: "expired",
			end:  now.Add(-40 * 24 * time.Hour),
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(quote(`DELETE FROM chat_participant WHERE chat_id = $1`)).WithArgs(5).
					WillReturnResult(sqlmock.NewResult(0, 2))
				mock.ExpectExec(quote(`DELETE FROM message WHERE chat_id = $1`)).WithArgs(5).
					WillReturnResult(sqlmock.NewResult(0, 7))
				mock.ExpectExec(quote(`DELETE FROM course_enrollment WHERE course_id = $1`)).WithArgs(1).
					WillReturnResult(sqlmock.NewResult(0, 2))
				mock.ExpectCommit()
			},
			want: course.SweepResult{CourseID: 1, Swept: true, Participants: 2, Messages: 7, Enrollments: 2},
		},
		{
			name: "within grace period",
			end:  now.Add(-20 * 24 * time.Hour),
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectCommit()
			},
			want: course.SweepResult{CourseID: 1},
		},
		{
			name: "rolled back",
			end:  now.Add(-40 * 24 * time.Hour),
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(quote(`DELETE FROM chat_participant WHERE chat_id = $1`)).WithArgs(5).
					WillReturnResult(sqlmock.NewResult(0, 2))
				mock.ExpectExec(quote(`DELETE FROM message WHERE chat_id = $1`)).WithArgs(5).
					WillReturnResult(sqlmock.NewResult(0, 7))
				mock.ExpectExec(quote(`DELETE FROM course_enrollment WHERE course_id = $1`)).WithArgs(1).
					WillReturnError(errBoom)
				mock.ExpectRollback()
			},
			want:    course.SweepResult{CourseID: 1},
			wantErr: errBoom,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			mock.ExpectBegin()
			expectCourse(mock, tt.end, [][2]int{{1, 2}, {1, 3}})
			tt.setup(mock)

			res, err := newCourseService(db, testutil.NewLogger()).SweepOne(context.Background(), 1)
			assert.Equal(t, tt.wantErr, errors.Cause(err))
			assert.Equal(t, tt.want, res)
		})
	}
}
