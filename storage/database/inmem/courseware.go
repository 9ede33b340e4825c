package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
)

type coursewareRepository struct {
	db *DB
}

var _ course.CoursewareRepository = (*coursewareRepository)(nil) // interface compliance check

func NewCoursewareRepository(db *DB) *coursewareRepository {
	return &coursewareRepository{db: db}
}

// the delete helpers cascade like the table constraints; they must be called with db.mu held.

func deleteModule(db *DB, id int) {
	delete(db.t.modules, id)
	for lid, l := range db.t.lessons {
		if l.ModuleID == id {
			deleteLesson(db, lid)
		}
	}
}

func deleteLesson(db *DB, id int) {
	delete(db.t.lessons, id)
	for qid, q := range db.t.questions {
		if q.LessonID == id {
			deleteQuestion(db, qid)
		}
	}
}

func deleteQuestion(db *DB, id int) {
	delete(db.t.questions, id)
	for aid, a := range db.t.answers {
		if a.QuestionID == id {
			delete(db.t.answers, aid)
		}
	}
}

func (repo *coursewareRepository) CreateModule(_ context.Context, m course.Module, _ ...core.DBExecutor) (course.Module, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.courses[m.CourseID]; !ok {
		return course.Module{}, course.ErrNotFound
	}
	m.ID = repo.db.nextID("module")
	repo.db.t.modules[m.ID] = m
	return m, nil
}

func (repo *coursewareRepository) GetModule(_ context.Context, id int, _ ...core.DBExecutor) (course.Module, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if m, ok := repo.db.t.modules[id]; ok {
		return m, nil
	}
	return course.Module{}, course.ErrModuleNotFound
}

func (repo *coursewareRepository) QueryModules(_ context.Context, courseID int, _ ...core.DBExecutor) ([]course.Module, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	res := make([]course.Module, 0)
	for _, m := range repo.db.t.modules {
		if courseID == 0 || m.CourseID == courseID {
			res = append(res, m)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Order != res[j].Order {
			return res[i].Order < res[j].Order
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func (repo *coursewareRepository) UpdateModule(_ context.Context, m course.Module, _ ...core.DBExecutor) (course.Module, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.modules[m.ID]; !ok {
		return course.Module{}, course.ErrModuleNotFound
	}
	repo.db.t.modules[m.ID] = m
	return m, nil
}

func (repo *coursewareRepository) DeleteModule(_ context.Context, id int, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.modules[id]; !ok {
		return course.ErrModuleNotFound
	}
	deleteModule(repo.db, id)
	return nil
}

func (repo *coursewareRepository) CreateLesson(_ context.Context, l course.Lesson, _ ...core.DBExecutor) (course.Lesson, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.modules[l.ModuleID]; !ok {
		return course.Lesson{}, course.ErrModuleNotFound
	}
	l.ID = repo.db.nextID("lesson")
	repo.db.t.lessons[l.ID] = l
	return l, nil
}

func (repo *coursewareRepository) GetLesson(_ context.Context, id int, _ ...core.DBExecutor) (course.Lesson, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if l, ok := repo.db.t.lessons[id]; ok {
		return l, nil
	}
	return course.Lesson{}, course.ErrLessonNotFound
}

func (repo *coursewareRepository) QueryLessons(_ context.Context, moduleID int, _ ...core.DBExecutor) ([]course.Lesson, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	res := make([]course.Lesson, 0)
	for _, l := range repo.db.t.lessons {
		if moduleID == 0 || l.ModuleID == moduleID {
			res = append(res, l)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Order != res[j].Order {
			return res[i].Order < res[j].Order
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func (repo *coursewareRepository) UpdateLesson(_ context.Context, l course.Lesson, _ ...core.DBExecutor) (course.Lesson, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.lessons[l.ID]; !ok {
		return course.Lesson{}, course.ErrLessonNotFound
	}
	repo.db.t.lessons[l.ID] = l
	return l, nil
}

func (repo *coursewareRepository) DeleteLesson(_ context.Context, id int, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.lessons[id]; !ok {
		return course.ErrLessonNotFound
	}
	deleteLesson(repo.db, id)
	return nil
}

// answers must be called with db.mu held.
func (repo *coursewareRepository) answers(questionID int) []course.Answer {
	res := make([]course.Answer, 0)
	for _, a := range repo.db.t.answers {
		if a.QuestionID == questionID {
			res = append(res, a)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

func (repo *coursewareRepository) CreateQuestion(_ context.Context, q course.Question, _ ...core.DBExecutor) (course.Question, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.lessons[q.LessonID]; !ok {
		return course.Question{}, course.ErrLessonNotFound
	}
	q.ID = repo.db.nextID("question")
	q.Answers = nil
	repo.db.t.questions[q.ID] = q
	q.Answers = []course.Answer{}
	return q, nil
}

func (repo *coursewareRepository) GetQuestion(_ context.Context, id int, _ ...core.DBExecutor) (course.Question, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	q, ok := repo.db.t.questions[id]
	if !ok {
		return course.Question{}, course.ErrQuestionNotFound
	}
	q.Answers = repo.answers(id)
	return q, nil
}

func (repo *coursewareRepository) QueryQuestions(_ context.Context, lessonID int, _ ...core.DBExecutor) ([]course.Question, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	res := make([]course.Question, 0)
	for _, q := range repo.db.t.questions {
		if lessonID == 0 || q.LessonID == lessonID {
			q.Answers = repo.answers(q.ID)
			res = append(res, q)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (repo *coursewareRepository) DeleteQuestion(_ context.Context, id int, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.questions[id]; !ok {
		return course.ErrQuestionNotFound
	}
	deleteQuestion(repo.db, id)
	return nil
}

func (repo *coursewareRepository) CreateAnswer(_ context.Context, a course.Answer, _ ...core.DBExecutor) (course.Answer, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.questions[a.QuestionID]; !ok {
		return course.Answer{}, course.ErrQuestionNotFound
	}
	a.ID = repo.db.nextID("answer")
	repo.db.t.answers[a.ID] = a
	return a, nil
}

func (repo *coursewareRepository) QueryAnswers(_ context.Context, questionID int, _ ...core.DBExecutor) ([]course.Answer, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if questionID != 0 {
		return repo.answers(questionID), nil
	}
	res := make([]course.Answer, 0, len(repo.db.t.answers))
	for _, a := range repo.db.t.answers {
		res = append(res, a)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (repo *coursewareRepository) DeleteAnswer(_ context.Context, id int, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.answers[id]; !ok {
		return course.ErrAnswerNotFound
	}
	delete(repo.db.t.answers, id)
	return nil
}

func (repo *coursewareRepository) CreateTag(_ context.Context, t course.Tag, _ ...core.DBExecutor) (course.Tag, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, tag := range repo.db.t.tags {
		if tag.Name == t.Name {
			return course.Tag{}, course.ErrTagExists
		}
	}
	t.ID = repo.db.nextID("tag")
	repo.db.t.tags[t.ID] = t
	return t, nil
}

func (repo *coursewareRepository) QueryTags(_ context.Context, _ ...core.DBExecutor) ([]course.Tag, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	res := make([]course.Tag, 0, len(repo.db.t.tags))
	for _, t := range repo.db.t.tags {
		res = append(res, t)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res, nil
}

func (repo *coursewareRepository) DeleteTag(_ context.Context, id int, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.tags[id]; !ok {
		return course.ErrTagNotFound
	}
	delete(repo.db.t.tags, id)
	for key := range repo.db.t.courseTags {
		if key.b == id {
			delete(repo.db.t.courseTags, key)
		}
	}
	return nil
}
