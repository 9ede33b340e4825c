package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
)

type moduleRow struct {
	ID       int         `db:"id"`
	CourseID int         `db:"course_id"`
	Title    string      `db:"title"`
	Content  string      `db:"content"`
	Avatar   null.String `db:"avatar"`
	Position int         `db:"position"`
}

func (r moduleRow) module() course.Module {
	return course.Module{
		ID:       r.ID,
		CourseID: r.CourseID,
		Title:    r.Title,
		Content:  r.Content,
		Avatar:   r.Avatar.String,
		Order:    r.Position,
	}
}

type lessonRow struct {
	ID       int         `db:"id"`
	ModuleID int         `db:"module_id"`
	Title    string      `db:"title"`
	Type     string      `db:"lesson_type"`
	Content  string      `db:"content"`
	Avatar   null.String `db:"avatar"`
	Position int         `db:"position"`
}

func (r lessonRow) lesson() course.Lesson {
	return course.Lesson{
		ID:       r.ID,
		ModuleID: r.ModuleID,
		Title:    r.Title,
		Type:     r.Type,
		Content:  r.Content,
		Avatar:   r.Avatar.String,
		Order:    r.Position,
	}
}

type answerRow struct {
	ID         int    `db:"id"`
	QuestionID int    `db:"question_id"`
	Text       string `db:"text"`
	IsCorrect  bool   `db:"is_correct"`
}

func (r answerRow) answer() course.Answer {
	return course.Answer{ID: r.ID, QuestionID: r.QuestionID, Text: r.Text, IsCorrect: r.IsCorrect}
}

type coursewareRepository struct {
	baseRepository
}

var _ course.CoursewareRepository = (*coursewareRepository)(nil) // interface compliance check

func NewCoursewareRepository(db *sqlx.DB) *coursewareRepository {
	return &coursewareRepository{baseRepository{db: db}}
}

func deleteByID(ctx context.Context, e sqlx.ExtContext, table string, id int, notFoundErr error) error {
	n, err := rowsAffected(e.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id))
	if err != nil {
		return errors.Wrapf(err, "deleting %s", table)
	}
	if n == 0 {
		return notFoundErr
	}
	return nil
}

// modules

func (repo coursewareRepository) CreateModule(ctx context.Context, m course.Module, exec ...core.DBExecutor) (course.Module, error) {
	q := `INSERT INTO module (course_id, title, content, avatar, position) VALUES ($1, $2, $3, $4, $5) RETURNING id`
	err := repo.getExec(exec).QueryRowxContext(ctx, q,
		m.CourseID, m.Title, m.Content, null.NewString(m.Avatar, m.Avatar != ""), m.Order,
	).Scan(&m.ID)
	if err != nil {
		if pqErrCode(err) == fkViolation {
			return course.Module{}, course.ErrNotFound
		}
		return course.Module{}, errors.Wrap(err, "inserting module")
	}
	return m, nil
}

func (repo coursewareRepository) GetModule(ctx context.Context, id int, exec ...core.DBExecutor) (course.Module, error) {
	var row moduleRow
	q := `SELECT id, course_id, title, content, avatar, position FROM module WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, id); err != nil {
		return course.Module{}, trapNoRowsErr(err, course.ErrModuleNotFound, "selecting module")
	}
	return row.module(), nil
}

func (repo coursewareRepository) QueryModules(ctx context.Context, courseID int, exec ...core.DBExecutor) ([]course.Module, error) {
	var where whereClause
	if courseID != 0 {
		where.add("course_id = ?", courseID)
	}
	e := repo.getExec(exec)
	q := e.Rebind(`SELECT id, course_id, title, content, avatar, position FROM module` + where.String() + ` ORDER BY position, id`)
	var rows []moduleRow
	if err := sqlx.SelectContext(ctx, e, &rows, q, where.args...); err != nil {
		return nil, errors.Wrap(err, "selecting modules")
	}
	modules := make([]course.Module, 0, len(rows))
	for _, r := range rows {
		modules = append(modules, r.module())
	}
	return modules, nil
}

func (repo coursewareRepository) UpdateModule(ctx context.Context, m course.Module, exec ...core.DBExecutor) (course.Module, error) {
	q := `UPDATE module SET title = $1, content = $2, avatar = $3, position = $4 WHERE id = $5`
	n, err := rowsAffected(repo.getExec(exec).ExecContext(ctx, q,
		m.Title, m.Content, null.NewString(m.Avatar, m.Avatar != ""), m.Order, m.ID,
	))
	if err != nil {
		return course.Module{}, errors.Wrap(err, "updating module")
	}
	if n == 0 {
		return course.Module{}, course.ErrModuleNotFound
	}
	return m, nil
}

func (repo coursewareRepository) DeleteModule(ctx context.Context, id int, exec ...core.DBExecutor) error {
	return deleteByID(ctx, repo.getExec(exec), "module", id, course.ErrModuleNotFound)
}

// lessons

func (repo coursewareRepository) CreateLesson(ctx context.Context, l course.Lesson, exec ...core.DBExecutor) (course.Lesson, error) {
	q := `INSERT INTO lesson (module_id, title, lesson_type, content, avatar, position)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	err := repo.getExec(exec).QueryRowxContext(ctx, q,
		l.ModuleID, l.Title, l.Type, l.Content, null.NewString(l.Avatar, l.Avatar != ""), l.Order,
	).Scan(&l.ID)
	if err != nil {
		if pqErrCode(err) == fkViolation {
			return course.Lesson{}, course.ErrModuleNotFound
		}
		return course.Lesson{}, errors.Wrap(err, "inserting lesson")
	}
	return l, nil
}

func (repo coursewareRepository) GetLesson(ctx context.Context, id int, exec ...core.DBExecutor) (course.Lesson, error) {
	var row lessonRow
	q := `SELECT id, module_id, title, lesson_type, content, avatar, position FROM lesson WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, id); err != nil {
		return course.Lesson{}, trapNoRowsErr(err, course.ErrLessonNotFound, "selecting lesson")
	}
	return row.lesson(), nil
}

func (repo coursewareRepository) QueryLessons(ctx context.Context, moduleID int, exec ...core.DBExecutor) ([]course.Lesson, error) {
	var where whereClause
	if moduleID != 0 {
		where.add("module_id = ?", moduleID)
	}
	e := repo.getExec(exec)
	q := e.Rebind(`SELECT id, module_id, title, lesson_type, content, avatar, position FROM lesson` +
		where.String() + ` ORDER BY position, id`)
	var rows []lessonRow
	if err := sqlx.SelectContext(ctx, e, &rows, q, where.args...); err != nil {
		return nil, errors.Wrap(err, "selecting lessons")
	}
	lessons := make([]course.Lesson, 0, len(rows))
	for _, r := range rows {
		lessons = append(lessons, r.lesson())
	}
	return lessons, nil
}

func (repo coursewareRepository) UpdateLesson(ctx context.Context, l course.Lesson, exec ...core.DBExecutor) (course.Lesson, error) {
	q := `UPDATE lesson SET title = $1, lesson_type = $2, content = $3, avatar = $4, position = $5 WHERE id = $6`
	n, err := rowsAffected(repo.getExec(exec).ExecContext(ctx, q,
		l.Title, l.Type, l.Content, null.NewString(l.Avatar, l.Avatar != ""), l.Order, l.ID,
	))
	if err != nil {
		return course.Lesson{}, errors.Wrap(err, "updating lesson")
	}
	if n == 0 {
		return course.Lesson{}, course.ErrLessonNotFound
	}
	return l, nil
}

func (repo coursewareRepository) DeleteLesson(ctx context.Context, id int, exec ...core.DBExecutor) error {
	return deleteByID(ctx, repo.getExec(exec), "lesson", id, course.ErrLessonNotFound)
}

// questions & answers

func (repo coursewareRepository) CreateQuestion(ctx context.Context, qn course.Question, exec ...core.DBExecutor) (course.Question, error) {
	q := `INSERT INTO question (lesson_id, title, content) VALUES ($1, $2, $3) RETURNING id`
	if err := repo.getExec(exec).QueryRowxContext(ctx, q, qn.LessonID, qn.Title, qn.Content).Scan(&qn.ID); err != nil {
		if pqErrCode(err) == fkViolation {
			return course.Question{}, course.ErrLessonNotFound
		}
		return course.Question{}, errors.Wrap(err, "inserting question")
	}
	qn.Answers = []course.Answer{}
	return qn, nil
}

func (repo coursewareRepository) GetQuestion(ctx context.Context, id int, exec ...core.DBExecutor) (course.Question, error) {
	e := repo.getExec(exec)
	var qn course.Question
	q := `SELECT id, lesson_id, title, content FROM question WHERE id = $1`
	if err := e.QueryRowxContext(ctx, q, id).Scan(&qn.ID, &qn.LessonID, &qn.Title, &qn.Content); err != nil {
		return course.Question{}, trapNoRowsErr(err, course.ErrQuestionNotFound, "selecting question")
	}
	answers, err := repo.QueryAnswers(ctx, id, exec...)
	if err != nil {
		return course.Question{}, err
	}
	qn.Answers = answers
	return qn, nil
}

func (repo coursewareRepository) QueryQuestions(ctx context.Context, lessonID int, exec ...core.DBExecutor) ([]course.Question, error) {
	e := repo.getExec(exec)
	var rows []struct {
		ID       int    `db:"id"`
		LessonID int    `db:"lesson_id"`
		Title    string `db:"title"`
		Content  string `db:"content"`
	}
	q := `SELECT id, lesson_id, title, content FROM question WHERE lesson_id = $1 ORDER BY id`
	if err := sqlx.SelectContext(ctx, e, &rows, q, lessonID); err != nil {
		return nil, errors.Wrap(err, "selecting questions")
	}
	if len(rows) == 0 {
		return []course.Question{}, nil
	}

	ids := make([]int, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	var answers []answerRow
	q = `SELECT id, question_id, text, is_correct FROM answer WHERE question_id = ANY($1) ORDER BY id`
	if err := sqlx.SelectContext(ctx, e, &answers, q, pq.Array(ids)); err != nil {
		return nil, errors.Wrap(err, "selecting answers")
	}
	byQuestion := make(map[int][]course.Answer, len(rows))
	for _, a := range answers {
		byQuestion[a.QuestionID] = append(byQuestion[a.QuestionID], a.answer())
	}

	questions := make([]course.Question, 0, len(rows))
	for _, r := range rows {
		qn := course.Question{ID: r.ID, LessonID: r.LessonID, Title: r.Title, Content: r.Content, Answers: byQuestion[r.ID]}
		if qn.Answers == nil {
			qn.Answers = []course.Answer{}
		}
		questions = append(questions, qn)
	}
	return questions, nil
}

func (repo coursewareRepository) DeleteQuestion(ctx context.Context, id int, exec ...core.DBExecutor) error {
	return deleteByID(ctx, repo.getExec(exec), "question", id, course.ErrQuestionNotFound)
}

func (repo coursewareRepository) CreateAnswer(ctx context.Context, a course.Answer, exec ...core.DBExecutor) (course.Answer, error) {
	q := `INSERT INTO answer (question_id, text, is_correct) VALUES ($1, $2, $3) RETURNING id`
	if err := repo.getExec(exec).QueryRowxContext(ctx, q, a.QuestionID, a.Text, a.IsCorrect).Scan(&a.ID); err != nil {
		if pqErrCode(err) == fkViolation {
			return course.Answer{}, course.ErrQuestionNotFound
		}
		return course.Answer{}, errors.Wrap(err, "inserting answer")
	}
	return a, nil
}

func (repo coursewareRepository) QueryAnswers(ctx context.Context, questionID int, exec ...core.DBExecutor) ([]course.Answer, error) {
	var rows []answerRow
	q := `SELECT id, question_id, text, is_correct FROM answer WHERE question_id = $1 ORDER BY id`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, questionID); err != nil {
		return nil, errors.Wrap(err, "selecting answers")
	}
	answers := make([]course.Answer, 0, len(rows))
	for _, r := range rows {
		answers = append(answers, r.answer())
	}
	return answers, nil
}

func (repo coursewareRepository) DeleteAnswer(ctx context.Context, id int, exec ...core.DBExecutor) error {
	return deleteByID(ctx, repo.getExec(exec), "answer", id, course.ErrAnswerNotFound)
}

// tags

func (repo coursewareRepository) CreateTag(ctx context.Context, t course.Tag, exec ...core.DBExecutor) (course.Tag, error) {
	if err := repo.getExec(exec).QueryRowxContext(ctx, `INSERT INTO tag (name) VALUES ($1) RETURNING id`, t.Name).Scan(&t.ID); err != nil {
		if pqErrCode(err) == uniqueViolation {
			return course.Tag{}, course.ErrTagExists
		}
		return course.Tag{}, errors.Wrap(err, "inserting tag")
	}
	return t, nil
}

func (repo coursewareRepository) QueryTags(ctx context.Context, exec ...core.DBExecutor) ([]course.Tag, error) {
	var rows []struct {
		ID   int    `db:"id"`
		Name string `db:"name"`
	}
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, `SELECT id, name FROM tag ORDER BY name`); err != nil {
		return nil, errors.Wrap(err, "selecting tags")
	}
	tags := make([]course.Tag, 0, len(rows))
	for _, r := range rows {
		tags = append(tags, course.Tag{ID: r.ID, Name: r.Name})
	}
	return tags, nil
}

func (repo coursewareRepository) DeleteTag(ctx context.Context, id int, exec ...core.DBExecutor) error {
	return deleteByID(ctx, repo.getExec(exec), "tag", id, course.ErrTagNotFound)
}
