package course

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

// lesson types
const (
	LessonText  = "text"
	LessonVideo = "video"
	LessonQuiz  = "quiz"
)

var (
	LessonTypes = []string{LessonText, LessonVideo, LessonQuiz}

	// errors
	ErrModuleNotFound   = errors.New("module not found")
	ErrLessonNotFound   = errors.New("lesson not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrAnswerNotFound   = errors.New("answer not found")
	ErrTagNotFound      = errors.New("tag not found")
	ErrTagExists        = errors.New("a tag with this name already exists")
)

type (
	Module struct {
		ID       int    `json:"id"`
		CourseID int    `json:"course"`
		Title    string `json:"title"`
		Content  string `json:"content"`
		Avatar   string `json:"avatar"`
		Order    int    `json:"order"`
	}

	Lesson struct {
		ID       int    `json:"id"`
		ModuleID int    `json:"module"`
		Title    string `json:"title"`
		Type     string `json:"type"`
		Content  string `json:"content"`
		Avatar   string `json:"avatar"`
		Order    int    `json:"order"`
	}

	Question struct {
		ID       int      `json:"id"`
		LessonID int      `json:"lesson"`
		Title    string   `json:"title"`
		Content  string   `json:"content"`
		Answers  []Answer `json:"answers"`
	}

	Answer struct {
		ID         int    `json:"id"`
		QuestionID int    `json:"question"`
		Text       string `json:"text"`
		IsCorrect  bool   `json:"is_correct"`
	}

	Tag struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
)

type (
	NewModule struct {
		CourseID int    `json:"course" validate:"required,gt=0"`
		Title    string `json:"title" validate:"required,notblank,max=50"`
		Content  string `json:"content"`
		Avatar   string `json:"avatar" validate:"omitempty,max=255"`
		Order    int    `json:"order" validate:"gte=0"`
	}

	UpdateModule struct {
		Title   *string `json:"title" validate:"omitempty,notblank,max=50"`
		Content *string `json:"content"`
		Avatar  *string `json:"avatar" validate:"omitempty,max=255"`
		Order   *int    `json:"order" validate:"omitempty,gte=0"`
	}

	NewLesson struct {
		ModuleID int    `json:"module" validate:"required,gt=0"`
		Title    string `json:"title" validate:"required,notblank,max=50"`
		Type     string `json:"type" validate:"omitempty,lesson_type"`
		Content  string `json:"content"`
		Avatar   string `json:"avatar" validate:"omitempty,max=255"`
		Order    int    `json:"order" validate:"gte=0"`
	}

	UpdateLesson struct {
		Title   *string `json:"title" validate:"omitempty,notblank,max=50"`
		Type    *string `json:"type" validate:"omitempty,lesson_type"`
		Content *string `json:"content"`
		Avatar  *string `json:"avatar" validate:"omitempty,max=255"`
		Order   *int    `json:"order" validate:"omitempty,gte=0"`
	}

	NewQuestion struct {
		LessonID int    `json:"lesson" validate:"required,gt=0"`
		Title    string `json:"title" validate:"required,notblank,max=255"`
		Content  string `json:"content"`
	}

	NewAnswer struct {
		QuestionID int    `json:"question" validate:"required,gt=0"`
		Text       string `json:"text" validate:"required,notblank"`
		IsCorrect  bool   `json:"is_correct"`
	}

	NewTag struct {
		Name string `json:"name" validate:"required,notblank,max=50"`
	}
)

func (nm *NewModule) Validate(validate *validator.Validate) error {
	nm.Title = core.CleanString(nm.Title)
	return validate.Struct(nm)
}

func (um *UpdateModule) Validate(validate *validator.Validate) error {
	if um.Title != nil {
		*um.Title = core.CleanString(*um.Title)
	}
	return validate.Struct(um)
}

func (nl *NewLesson) Validate(validate *validator.Validate) error {
	nl.Title = core.CleanString(nl.Title)
	nl.Type = core.CleanString(nl.Type, true /* lower */)
	if nl.Type == "" {
		nl.Type = LessonText
	}
	return validate.Struct(nl)
}

func (ul *UpdateLesson) Validate(validate *validator.Validate) error {
	if ul.Title != nil {
		*ul.Title = core.CleanString(*ul.Title)
	}
	if ul.Type != nil {
		*ul.Type = core.CleanString(*ul.Type, true /* lower */)
	}
	return validate.Struct(ul)
}

func (nq *NewQuestion) Validate(validate *validator.Validate) error {
	nq.Title = core.CleanString(nq.Title)
	return validate.Struct(nq)
}

func (na *NewAnswer) Validate(validate *validator.Validate) error {
	na.Text = core.CleanString(na.Text)
	return validate.Struct(na)
}

func (nt *NewTag) Validate(validate *validator.Validate) error {
	nt.Name = core.CleanString(nt.Name)
	return validate.Struct(nt)
}

type (
	CoursewareRepository interface {
		CreateModule(ctx context.Context, m Module, exec ...core.DBExecutor) (Module, error)
		GetModule(ctx context.Context, id int, exec ...core.DBExecutor) (Module, error)
		// QueryModules returns the modules of a course (all when courseID is 0), by order.
		QueryModules(ctx context.Context, courseID int, exec ...core.DBExecutor) ([]Module, error)
		UpdateModule(ctx context.Context, m Module, exec ...core.DBExecutor) (Module, error)
		DeleteModule(ctx context.Context, id int, exec ...core.DBExecutor) error

		CreateLesson(ctx context.Context, l Lesson, exec ...core.DBExecutor) (Lesson, error)
		GetLesson(ctx context.Context, id int, exec ...core.DBExecutor) (Lesson, error)
		QueryLessons(ctx context.Context, moduleID int, exec ...core.DBExecutor) ([]Lesson, error)
		UpdateLesson(ctx context.Context, l Lesson, exec ...core.DBExecutor) (Lesson, error)
		DeleteLesson(ctx context.Context, id int, exec ...core.DBExecutor) error

		CreateQuestion(ctx context.Context, q Question, exec ...core.DBExecutor) (Question, error)
		GetQuestion(ctx context.Context, id int, exec ...core.DBExecutor) (Question, error)
		// QueryQuestions returns the questions of a lesson with their answers.
		QueryQuestions(ctx context.Context, lessonID int, exec ...core.DBExecutor) ([]Question, error)
		DeleteQuestion(ctx context.Context, id int, exec ...core.DBExecutor) error

		CreateAnswer(ctx context.Context, a Answer, exec ...core.DBExecutor) (Answer, error)
		QueryAnswers(ctx context.Context, questionID int, exec ...core.DBExecutor) ([]Answer, error)
		DeleteAnswer(ctx context.Context, id int, exec ...core.DBExecutor) error

		CreateTag(ctx context.Context, t Tag, exec ...core.DBExecutor) (Tag, error)
		QueryTags(ctx context.Context, exec ...core.DBExecutor) ([]Tag, error)
		DeleteTag(ctx context.Context, id int, exec ...core.DBExecutor) error
	}

	CoursewareServiceInterface interface {
		CreateModule(ctx context.Context, nm NewModule) (Module, error)
		GetModule(ctx context.Context, id int) (Module, error)
		QueryModules(ctx context.Context, courseID int) ([]Module, error)
		UpdateModule(ctx context.Context, id int, um UpdateModule) (Module, error)
		DeleteModule(ctx context.Context, id int) error
		CreateLesson(ctx context.Context, nl NewLesson) (Lesson, error)
		GetLesson(ctx context.Context, id int) (Lesson, error)
		QueryLessons(ctx context.Context, moduleID int) ([]Lesson, error)
		UpdateLesson(ctx context.Context, id int, ul UpdateLesson) (Lesson, error)
		DeleteLesson(ctx context.Context, id int) error
		CreateQuestion(ctx context.Context, nq NewQuestion) (Question, error)
		QueryQuestions(ctx context.Context, lessonID int) ([]Question, error)
		DeleteQuestion(ctx context.Context, id int) error
		CreateAnswer(ctx context.Context, na NewAnswer) (Answer, error)
		QueryAnswers(ctx context.Context, questionID int) ([]Answer, error)
		DeleteAnswer(ctx context.Context, id int) error
		CreateTag(ctx context.Context, nt NewTag) (Tag, error)
		QueryTags(ctx context.Context) ([]Tag, error)
		DeleteTag(ctx context.Context, id int) error
	}

	// CoursewareService manages the content of courses.
	CoursewareService struct {
		repo    CoursewareRepository
		courses Repository
	}
)

var _ CoursewareServiceInterface = (*CoursewareService)(nil)

func NewCoursewareService(repo CoursewareRepository, courses Repository) *CoursewareService {
	return &CoursewareService{repo: repo, courses: courses}
}

func (svc *CoursewareService) CreateModule(ctx context.Context, nm NewModule) (Module, error) {
	if _, err := svc.courses.GetCourse(ctx, nm.CourseID); err != nil {
		return Module{}, err
	}
	return svc.repo.CreateModule(ctx, Module{
		CourseID: nm.CourseID,
		Title:    nm.Title,
		Content:  nm.Content,
		Avatar:   nm.Avatar,
		Order:    nm.Order,
	})
}

func (svc *CoursewareService) GetModule(ctx context.Context, id int) (Module, error) {
	return svc.repo.GetModule(ctx, id)
}

func (svc *CoursewareService) QueryModules(ctx context.Context, courseID int) ([]Module, error) {
	return svc.repo.QueryModules(ctx, courseID)
}

func (svc *CoursewareService) UpdateModule(ctx context.Context, id int, um UpdateModule) (Module, error) {
	m, err := svc.repo.GetModule(ctx, id)
	if err != nil {
		return Module{}, err
	}
	if um.Title != nil {
		m.Title = *um.Title
	}
	if um.Content != nil {
		m.Content = *um.Content
	}
	if um.Avatar != nil {
		m.Avatar = *um.Avatar
	}
	if um.Order != nil {
		m.Order = *um.Order
	}
	return svc.repo.UpdateModule(ctx, m)
}

func (svc *CoursewareService) DeleteModule(ctx context.Context, id int) error {
	return svc.repo.DeleteModule(ctx, id)
}

func (svc *CoursewareService) CreateLesson(ctx context.Context, nl NewLesson) (Lesson, error) {
	if _, err := svc.repo.GetModule(ctx, nl.ModuleID); err != nil {
		return Lesson{}, err
	}
	typ := nl.Type
	if typ == "" {
		typ = LessonText
	}
	return svc.repo.CreateLesson(ctx, Lesson{
		ModuleID: nl.ModuleID,
		Title:    nl.Title,
		Type:     typ,
		Content:  nl.Content,
		Avatar:   nl.Avatar,
		Order:    nl.Order,
	})
}

func (svc *CoursewareService) GetLesson(ctx context.Context, id int) (Lesson, error) {
	return svc.repo.GetLesson(ctx, id)
}

func (svc *CoursewareService) QueryLessons(ctx context.Context, moduleID int) ([]Lesson, error) {
	return svc.repo.QueryLessons(ctx, moduleID)
}

func (svc *CoursewareService) UpdateLesson(ctx context.Context, id int, ul UpdateLesson) (Lesson, error) {
	l, err := svc.repo.GetLesson(ctx, id)
	if err != nil {
		return Lesson{}, err
	}
	if ul.Title != nil {
		l.Title = *ul.Title
	}
	if ul.Type != nil {
		l.Type = *ul.Type
	}
	if ul.Content != nil {
		l.Content = *ul.Content
	}
	if ul.Avatar != nil {
		l.Avatar = *ul.Avatar
	}
	if ul.Order != nil {
		l.Order = *ul.Order
	}
	return svc.repo.UpdateLesson(ctx, l)
}

func (svc *CoursewareService) DeleteLesson(ctx context.Context, id int) error {
	return svc.repo.DeleteLesson(ctx, id)
}

func (svc *CoursewareService) CreateQuestion(ctx context.Context, nq NewQuestion) (Question, error) {
	if _, err := svc.repo.GetLesson(ctx, nq.LessonID); err != nil {
		return Question{}, err
	}
	return svc.repo.CreateQuestion(ctx, Question{LessonID: nq.LessonID, Title: nq.Title, Content: nq.Content})
}

func (svc *CoursewareService) QueryQuestions(ctx context.Context, lessonID int) ([]Question, error) {
	return svc.repo.QueryQuestions(ctx, lessonID)
}

func (svc *CoursewareService) DeleteQuestion(ctx context.Context, id int) error {
	return svc.repo.DeleteQuestion(ctx, id)
}

func (svc *CoursewareService) CreateAnswer(ctx context.Context, na NewAnswer) (Answer, error) {
	if _, err := svc.repo.GetQuestion(ctx, na.QuestionID); err != nil {
		return Answer{}, err
	}
	return svc.repo.CreateAnswer(ctx, Answer{QuestionID: na.QuestionID, Text: na.Text, IsCorrect: na.IsCorrect})
}

func (svc *CoursewareService) QueryAnswers(ctx context.Context, questionID int) ([]Answer, error) {
	return svc.repo.QueryAnswers(ctx, questionID)
}

func (svc *CoursewareService) DeleteAnswer(ctx context.Context, id int) error {
	return svc.repo.DeleteAnswer(ctx, id)
}

func (svc *CoursewareService) CreateTag(ctx context.Context, nt NewTag) (Tag, error) {
	t, err := svc.repo.CreateTag(ctx, Tag{Name: nt.Name})
	if err != nil {
		if errors.Cause(err) == ErrTagExists {
			return Tag{}, core.NewValidationError(err, core.FieldError{Field: "name", Error: ErrTagExists.Error()})
		}
		return Tag{}, err
	}
	return t, nil
}

func (svc *CoursewareService) QueryTags(ctx context.Context) ([]Tag, error) {
	return svc.repo.QueryTags(ctx)
}

func (svc *CoursewareService) DeleteTag(ctx context.Context, id int) error {
	return svc.repo.DeleteTag(ctx, id)
}
