package echoapi

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/user"
	"github.com/trezcool/academia/testutil"
)

func Test_courseApi_create(t *testing.T) {
	env := setup(t)

	staff := testutil.CreateUser(t, env.users, "curator", "curator@test.cd", "", user.RoleCurator, true)
	student := testutil.CreateUser(t, env.users, "hero", "hero@test.cd", "", user.RoleStudent, false)
	ids := testutil.CreateUsers(t, env.users, "user", 2)

	env.run(t, []httpTest{
		{name: "Auth required", method: http.MethodPost, path: "/api/course", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{
			name: "Staff required", method: http.MethodPost, path: "/api/course", token: env.token(t, student),
			body: []byte(`{"title": "Go 101"}`), wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Duplicate tag IDs", method: http.MethodPost, path: "/api/course", token: env.token(t, staff),
			body:     []byte(`{"title": "Go 101", "tag_ids": [1, 1]}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"tag_ids": "must not contain duplicate or non-positive IDs"}`),
		},
		{
			name: "Unknown tags", method: http.MethodPost, path: "/api/course", token: env.token(t, staff),
			body:     []byte(`{"title": "Go 101", "tag_ids": [7]}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"tag_ids": "unknown tag IDs [7]"}`),
		},
	})

	t.Run("Blank title", func(t *testing.T) {
		rec := env.serve(httpTest{method: http.MethodPost, path: "/api/course", token: env.token(t, staff), body: []byte(`{"title": "  "}`)})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var fldErrs map[string]string
		decode(t, rec, &fldErrs)
		assert.Contains(t, fldErrs, "title")
	})

	t.Run("Created with its chat", func(t *testing.T) {
		body := fmt.Sprintf(`{"title": " Go 101 ", "duration_days": 10, "user_ids": [%d, %d, 999]}`, ids[0], ids[1])
		rec := env.serve(httpTest{method: http.MethodPost, path: "/api/course", token: env.token(t, staff), body: []byte(body)})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var c course.Course
		decode(t, rec, &c)
		assert.Equal(t, "Go 101", c.Title)
		assert.Equal(t, 10, c.DurationDays)
		assert.ElementsMatch(t, ids, c.UserIDs)
		assert.WithinDuration(t, time.Now().Add(10*24*time.Hour), c.EndDatetime, time.Minute)
		require.True(t, c.HasChat())
		assert.ElementsMatch(t, ids, env.participantIDs(t, c.ChatID))

		env.sched.AssertCalled(t, "Submit", mock.Anything, course.TaskSweep, mock.Anything, mock.Anything)
	})
}

func Test_courseApi_detail(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	staff := testutil.CreateUser(t, env.users, "curator", "curator@test.cd", "", user.RoleCurator, true)
	student := testutil.CreateUser(t, env.users, "hero", "hero@test.cd", "", user.RoleStudent, false)
	c, err := env.courseSvc.Create(ctx, course.NewCourse{Title: "Go 101", UserIDs: []int{student.ID}})
	require.NoError(t, err)
	other, err := env.courseSvc.Create(ctx, course.NewCourse{Title: "Rust 101"})
	require.NoError(t, err)

	path := fmt.Sprintf("/api/course/%d", c.ID)
	studentToken := env.token(t, student)

	env.run(t, []httpTest{
		{name: "Get", method: http.MethodGet, path: path, token: studentToken, wantData: marshallObj(t, c)},
		{
			name: "Not found", method: http.MethodGet, path: "/api/course/999", token: studentToken,
			wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: "course not found"}),
		},
		{
			name: "Bad ID", method: http.MethodGet, path: "/api/course/abc", token: studentToken,
			wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: "not found"}),
		},
		{
			name: "Query by user", method: http.MethodGet, path: fmt.Sprintf("/api/course?user_id=%d", student.ID),
			token: studentToken, wantData: marshallObj(t, []course.Course{c}),
		},
		{
			name: "Query (newest first)", method: http.MethodGet, path: "/api/course", token: studentToken,
			wantData: marshallObj(t, []course.Course{other, c}),
		},
		{
			name: "Update requires staff", method: http.MethodPut, path: path, token: studentToken,
			body: []byte(`{"title": "Go 102"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "Delete requires staff", method: http.MethodDelete, path: path, token: studentToken,
			wantCode: http.StatusForbidden,
		},
	})

	t.Run("Update keeps the end datetime", func(t *testing.T) {
		rec := env.serve(httpTest{method: http.MethodPut, path: path, token: env.token(t, staff), body: []byte(`{"title": "Go 102", "duration_days": 3}`)})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var updated course.Course
		decode(t, rec, &updated)
		assert.Equal(t, "Go 102", updated.Title)
		assert.Equal(t, 3, updated.DurationDays)
		assert.True(t, c.EndDatetime.Equal(updated.EndDatetime))
	})

	t.Run("Delete", func(t *testing.T) {
		rec := env.serve(httpTest{method: http.MethodDelete, path: fmt.Sprintf("/api/course/%d", other.ID), token: env.token(t, staff)})
		assert.Equal(t, http.StatusNoContent, rec.Code)
		_, err := env.courses.GetCourse(ctx, other.ID)
		assert.Equal(t, course.ErrNotFound, err)
	})
}

func Test_courseApi_updateUsers(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	staff := testutil.CreateUser(t, env.users, "curator", "curator@test.cd", "", user.RoleCurator, true)
	ids := testutil.CreateUsers(t, env.users, "user", 3)
	c, err := env.courseSvc.Create(ctx, course.NewCourse{Title: "Go 101", UserIDs: ids[:2]})
	require.NoError(t, err)

	path := fmt.Sprintf("/api/course/%d/update_users", c.ID)
	token := env.token(t, staff)

	env.run(t, []httpTest{
		{
			name: "Null list", method: http.MethodPost, path: path, token: token, body: []byte(`{}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"user_ids": "this field is required"}`),
		},
		{
			name: "Unknown course", method: http.MethodPost, path: "/api/course/999/update_users", token: token,
			body: []byte(`{"user_ids": []}`), wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: "course not found"}),
		},
		{
			name: "Reconciled", method: http.MethodPost, path: path, token: token,
			body: []byte(fmt.Sprintf(`{"user_ids": [%d, %d, 999]}`, ids[1], ids[2])),
			wantData: marshallObj(t, course.MembershipDiff{
				CourseID: c.ID, Added: []int{ids[2]}, Removed: []int{ids[0]}, Skipped: []int{999},
			}),
		},
	})

	got, err := env.courses.GetCourse(ctx, c.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids[1:], got.UserIDs)
	assert.ElementsMatch(t, ids[1:], env.participantIDs(t, c.ChatID))
}

func Test_courseApi_runCleanup(t *testing.T) {
	env := setup(t)

	staff := testutil.CreateUser(t, env.users, "curator", "curator@test.cd", "", user.RoleCurator, true)
	student := testutil.CreateUser(t, env.users, "hero", "hero@test.cd", "", user.RoleStudent, false)
	c, err := env.courseSvc.Create(context.Background(), course.NewCourse{Title: "Go 101"})
	require.NoError(t, err)

	path := fmt.Sprintf("/api/course/run_cleanup/%d", c.ID)
	env.run(t, []httpTest{
		{name: "Staff required", method: http.MethodPost, path: path, token: env.token(t, student), wantCode: http.StatusForbidden},
		{
			name: "Unknown course", method: http.MethodPost, path: "/api/course/run_cleanup/999", token: env.token(t, staff),
			wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: "course not found"}),
		},
		{
			name: "Queued", method: http.MethodPost, path: path, token: env.token(t, staff),
			wantCode: http.StatusAccepted, wantData: marshallObj(t, TaskResponse{TaskID: "task-id"}),
		},
	})

	env.sched.AssertCalled(t, "Submit", mock.Anything, course.TaskSweep, []byte(fmt.Sprintf(`{"course_id":%d}`, c.ID)), time.Duration(0))
}

func Test_coursewareApi(t *testing.T) {
	env := setup(t)

	staff := testutil.CreateUser(t, env.users, "curator", "curator@test.cd", "", user.RoleCurator, true)
	student := testutil.CreateUser(t, env.users, "hero", "hero@test.cd", "", user.RoleStudent, false)
	c, err := env.courseSvc.Create(context.Background(), course.NewCourse{Title: "Go 101"})
	require.NoError(t, err)

	staffToken := env.token(t, staff)
	studentToken := env.token(t, student)

	mod := course.Module{ID: 1, CourseID: c.ID, Title: "Basics", Order: 1}
	lesson := course.Lesson{ID: 1, ModuleID: 1, Title: "Hello", Type: course.LessonText}

	env.run(t, []httpTest{
		{
			name: "Module requires staff", method: http.MethodPost, path: "/api/course/modules", token: studentToken,
			body: []byte(`{"course": 1, "title": "Basics"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "Module of unknown course", method: http.MethodPost, path: "/api/course/modules", token: staffToken,
			body: []byte(`{"course": 999, "title": "Basics"}`), wantCode: http.StatusNotFound,
			wantData: marshallObj(t, httpErr{Error: "course not found"}),
		},
		{
			name: "Module created", method: http.MethodPost, path: "/api/course/modules", token: staffToken,
			body: []byte(fmt.Sprintf(`{"course": %d, "title": "Basics", "order": 1}`, c.ID)),
			wantCode: http.StatusCreated, wantData: marshallObj(t, mod),
		},
		{
			name: "Modules of course", method: http.MethodGet, path: fmt.Sprintf("/api/course/modules?course=%d", c.ID),
			token: studentToken, wantData: marshallObj(t, []course.Module{mod}),
		},
		{
			name: "Modules of other course", method: http.MethodGet, path: "/api/course/modules?course=999",
			token: studentToken, wantData: []byte(`[]`),
		},
		{
			name: "Bad lesson type", method: http.MethodPost, path: "/api/course/lessons", token: staffToken,
			body:     []byte(`{"module": 1, "title": "Hello", "type": "podcast"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"type": "must be one of: text, video, quiz"}`),
		},
		{
			name: "Lesson created", method: http.MethodPost, path: "/api/course/lessons", token: staffToken,
			body: []byte(`{"module": 1, "title": "Hello"}`), wantCode: http.StatusCreated, wantData: marshallObj(t, lesson),
		},
		{
			name: "Questions need a lesson", method: http.MethodGet, path: "/api/course/questions", token: studentToken,
			wantCode: http.StatusBadRequest, wantData: []byte(`{"lesson": "must be a positive integer"}`),
		},
		{
			name: "Question created", method: http.MethodPost, path: "/api/course/questions", token: staffToken,
			body: []byte(`{"lesson": 1, "title": "Why?"}`), wantCode: http.StatusCreated,
			wantData: marshallObj(t, course.Question{ID: 1, LessonID: 1, Title: "Why?", Answers: []course.Answer{}}),
		},
		{
			name: "Answer created", method: http.MethodPost, path: "/api/course/answers", token: staffToken,
			body: []byte(`{"question": 1, "text": "Because", "is_correct": true}`), wantCode: http.StatusCreated,
			wantData: marshallObj(t, course.Answer{ID: 1, QuestionID: 1, Text: "Because", IsCorrect: true}),
		},
		{
			name: "Questions with answers", method: http.MethodGet, path: "/api/course/questions?lesson=1", token: studentToken,
			wantData: marshallObj(t, []course.Question{{
				ID: 1, LessonID: 1, Title: "Why?",
				Answers: []course.Answer{{ID: 1, QuestionID: 1, Text: "Because", IsCorrect: true}},
			}}),
		},
		{
			name: "Tag created", method: http.MethodPost, path: "/api/course/tags", token: staffToken,
			body: []byte(`{"name": "golang"}`), wantCode: http.StatusCreated, wantData: marshallObj(t, course.Tag{ID: 1, Name: "golang"}),
		},
		{
			name: "Tag exists", method: http.MethodPost, path: "/api/course/tags", token: staffToken,
			body: []byte(`{"name": "golang"}`), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"name": "a tag with this name already exists"}`),
		},
		{
			name: "Delete unknown module", method: http.MethodDelete, path: "/api/course/modules/999", token: staffToken,
			wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: "module not found"}),
		},
		{name: "Delete module", method: http.MethodDelete, path: "/api/course/modules/1", token: staffToken, wantCode: http.StatusNoContent},
	})
}
