package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/chat"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/user"
	appfs "github.com/trezcool/academia/fs"
	emailsvc "github.com/trezcool/academia/services/email"
	inmemdb "github.com/trezcool/academia/storage/database/inmem"
	"github.com/trezcool/academia/testutil"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testEnv struct {
	app       Server
	auth      *authenticator
	users     user.Repository
	courses   course.Repository
	chats     chat.Repository
	courseSvc *course.Service
	chatSvc   *chat.Service
	sched     *testutil.SchedulerMock
	mail      *emailsvc.ConsoleServiceMock
	logger    *testutil.Logger
}

func setup(t *testing.T, opts ...func(*ServerDeps)) *testEnv {
	t.Helper()

	conf := core.NewTestConfig()
	logger := testutil.NewLogger()
	db := inmemdb.Open()
	tx := inmemdb.NewTransactor(db)

	env := &testEnv{
		users:   inmemdb.NewUserRepository(db),
		courses: inmemdb.NewCourseRepository(db),
		chats:   inmemdb.NewChatRepository(db),
		sched:   new(testutil.SchedulerMock),
		mail:    emailsvc.NewConsoleServiceMock(conf, logger),
		logger:  logger,
	}
	env.sched.On("Submit", mock.Anything, course.TaskSweep, mock.Anything, mock.Anything).Return("task-id", nil)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	course.InitValidators(validate, translator)
	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, true, logger)

	usrSvc := user.NewService(env.users, env.mail, conf)
	env.chatSvc = chat.NewService(tx, env.chats, usrSvc, logger)
	env.courseSvc = course.NewService(tx, env.courses, env.chats, usrSvc, env.sched, logger, conf)
	cwSvc := course.NewCoursewareService(inmemdb.NewCoursewareRepository(db), env.courses)

	env.auth = newAuthenticator(conf, usrSvc, env.courseSvc)
	deps := ServerDeps{
		Conf:          conf,
		Logger:        logger,
		Tx:            tx,
		Validate:      validate,
		Translator:    translator,
		UserSvc:       usrSvc,
		CourseSvc:     env.courseSvc,
		CoursewareSvc: cwSvc,
		ChatSvc:       env.chatSvc,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	env.app = NewServer(deps)
	return env
}

func (env *testEnv) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := env.auth.generateToken(env.auth.newClaims(usr))
	if err != nil {
		t.Fatalf("token() failed: %v", err)
	}
	return token
}

func (env *testEnv) serve(tt httpTest) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
	env.app.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) run(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, env.serve(tt))
		})
	}
}

func (env *testEnv) participantIDs(t *testing.T, chatID int) []int {
	t.Helper()
	participants, err := env.chats.ListParticipants(context.Background(), chatID)
	require.NoError(t, err)
	ids := make([]int, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode(%s) failed: %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
