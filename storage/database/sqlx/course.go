package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
)

const courseColumns = `id, title, description, avatar, duration_days, end_datetime, chat_id, created_at, updated_at`

type courseRow struct {
	ID           int         `db:"id"`
	Title        string      `db:"title"`
	Description  null.String `db:"description"`
	Avatar       null.String `db:"avatar"`
	DurationDays int         `db:"duration_days"`
	EndDatetime  null.Time   `db:"end_datetime"`
	ChatID       null.Int    `db:"chat_id"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

func (r courseRow) course() course.Course {
	c := course.Course{
		ID:           r.ID,
		Title:        r.Title,
		Description:  r.Description.String,
		Avatar:       r.Avatar.String,
		DurationDays: r.DurationDays,
		ChatID:       r.ChatID.Int,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		UserIDs:      []int{},
		TagIDs:       []int{},
	}
	if r.EndDatetime.Valid {
		c.EndDatetime = r.EndDatetime.Time.UTC()
	} else {
		// rows created outside of the app
		c.EndDatetime = c.CreatedAt.Add(time.Duration(c.DurationDays) * 24 * time.Hour)
	}
	return c
}

type courseRepository struct {
	baseRepository
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *sqlx.DB) *courseRepository {
	return &courseRepository{baseRepository{db: db}}
}

// load fills the user & tag IDs of the courses.
func (repo courseRepository) load(ctx context.Context, e sqlx.ExtContext, courses []course.Course) error {
	if len(courses) == 0 {
		return nil
	}
	ids := make([]int, 0, len(courses))
	idx := make(map[int]int, len(courses))
	for i, c := range courses {
		ids = append(ids, c.ID)
		idx[c.ID] = i
	}

	var links []struct {
		CourseID int `db:"course_id"`
		OtherID  int `db:"other_id"`
	}
	q := `SELECT course_id, user_id AS other_id FROM course_enrollment WHERE course_id = ANY($1) ORDER BY user_id`
	if err := sqlx.SelectContext(ctx, e, &links, q, pq.Array(ids)); err != nil {
		return errors.Wrap(err, "selecting enrollments")
	}
	for _, l := range links {
		i := idx[l.CourseID]
		courses[i].UserIDs = append(courses[i].UserIDs, l.OtherID)
	}

	links = links[:0]
	q = `SELECT course_id, tag_id AS other_id FROM course_tag WHERE course_id = ANY($1) ORDER BY tag_id`
	if err := sqlx.SelectContext(ctx, e, &links, q, pq.Array(ids)); err != nil {
		return errors.Wrap(err, "selecting course tags")
	}
	for _, l := range links {
		i := idx[l.CourseID]
		courses[i].TagIDs = append(courses[i].TagIDs, l.OtherID)
	}
	return nil
}

func (repo courseRepository) CreateCourse(ctx context.Context, c course.Course, exec ...core.DBExecutor) (course.Course, error) {
	q := `INSERT INTO course (title, description, avatar, duration_days, end_datetime, chat_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	err := repo.getExec(exec).QueryRowxContext(ctx, q,
		c.Title, null.NewString(c.Description, c.Description != ""), null.NewString(c.Avatar, c.Avatar != ""),
		c.DurationDays, c.EndDatetime.UTC(), null.NewInt(c.ChatID, c.ChatID != 0),
		c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
	).Scan(&c.ID)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	c.UserIDs, c.TagIDs = []int{}, []int{}
	return c, nil
}

func (repo courseRepository) GetCourse(ctx context.Context, id int, exec ...core.DBExecutor) (course.Course, error) {
	e := repo.getExec(exec)
	var row courseRow
	if err := sqlx.GetContext(ctx, e, &row, `SELECT `+courseColumns+` FROM course WHERE id = $1`, id); err != nil {
		return course.Course{}, trapNoRowsErr(err, course.ErrNotFound, "selecting course")
	}
	courses := []course.Course{row.course()}
	if err := repo.load(ctx, e, courses); err != nil {
		return course.Course{}, err
	}
	return courses[0], nil
}

func (repo courseRepository) QueryCourses(ctx context.Context, filter course.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]course.Course, error) {
	var where whereClause
	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		where.add("(title ILIKE ? OR description ILIKE ?)", val, val)
	}
	if filter.UserID != 0 {
		where.add("id IN (SELECT course_id FROM course_enrollment WHERE user_id = ?)", filter.UserID)
	}
	if len(filter.TagIDs) > 0 {
		where.add("id IN (SELECT course_id FROM course_tag WHERE tag_id = ANY(?))", pq.Array(filter.TagIDs))
	}

	e := repo.getExec(exec)
	var rows []courseRow
	q := e.Rebind(`SELECT ` + courseColumns + ` FROM course` + where.String() + orderBy(ordering, "created_at DESC"))
	if err := sqlx.SelectContext(ctx, e, &rows, q, where.args...); err != nil {
		return nil, errors.Wrap(err, "selecting courses")
	}

	courses := make([]course.Course, 0, len(rows))
	for _, r := range rows {
		courses = append(courses, r.course())
	}
	if err := repo.load(ctx, e, courses); err != nil {
		return nil, err
	}
	return courses, nil
}

func (repo courseRepository) UpdateCourse(ctx context.Context, c course.Course, exec ...core.DBExecutor) (course.Course, error) {
	e := repo.getExec(exec)
	q := `UPDATE course SET title = $1, description = $2, avatar = $3, duration_days = $4, chat_id = $5, updated_at = $6
		WHERE id = $7`
	n, err := rowsAffected(e.ExecContext(ctx, q,
		c.Title, null.NewString(c.Description, c.Description != ""), null.NewString(c.Avatar, c.Avatar != ""),
		c.DurationDays, null.NewInt(c.ChatID, c.ChatID != 0), c.UpdatedAt.UTC(), c.ID,
	))
	if err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	if n == 0 {
		return course.Course{}, course.ErrNotFound
	}
	return repo.GetCourse(ctx, c.ID, exec...)
}

func (repo courseRepository) DeleteCourse(ctx context.Context, id int, exec ...core.DBExecutor) error {
	n, err := rowsAffected(repo.getExec(exec).ExecContext(ctx, `DELETE FROM course WHERE id = $1`, id))
	if err != nil {
		return errors.Wrap(err, "deleting course")
	}
	if n == 0 {
		return course.ErrNotFound
	}
	return nil
}

func (repo courseRepository) ListCourseIDs(ctx context.Context, exec ...core.DBExecutor) ([]int, error) {
	ids, err := selectIDs(ctx, repo.getExec(exec), `SELECT id FROM course ORDER BY id`)
	return ids, errors.Wrap(err, "selecting course IDs")
}

func (repo courseRepository) ExistingCourseIDs(ctx context.Context, ids []int, exec ...core.DBExecutor) ([]int, error) {
	res, err := selectIDs(ctx, repo.getExec(exec), `SELECT id FROM course WHERE id = ANY($1) ORDER BY id`, pq.Array(ids))
	return res, errors.Wrap(err, "selecting course IDs")
}

func (repo courseRepository) ListEnrollments(ctx context.Context, courseID int, exec ...core.DBExecutor) ([]course.Enrollment, error) {
	var rows []struct {
		CourseID   int       `db:"course_id"`
		UserID     int       `db:"user_id"`
		EnrolledAt time.Time `db:"enrolled_at"`
	}
	q := `SELECT course_id, user_id, enrolled_at FROM course_enrollment WHERE course_id = $1 ORDER BY user_id`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, courseID); err != nil {
		return nil, errors.Wrap(err, "selecting enrollments")
	}
	res := make([]course.Enrollment, 0, len(rows))
	for _, r := range rows {
		res = append(res, course.Enrollment{CourseID: r.CourseID, UserID: r.UserID, EnrolledAt: r.EnrolledAt.UTC()})
	}
	return res, nil
}

func (repo courseRepository) AddEnrollments(ctx context.Context, courseID int, userIDs []int, exec ...core.DBExecutor) (int, error) {
	q := `INSERT INTO course_enrollment (course_id, user_id, enrolled_at)
		SELECT $1, u, $3 FROM unnest($2::int[]) AS u
		ON CONFLICT (course_id, user_id) DO NOTHING`
	n, err := rowsAffected(repo.getExec(exec).ExecContext(ctx, q, courseID, pq.Array(core.UniqueIDs(userIDs)), time.Now().UTC()))
	if err != nil {
		if pqErrCode(err) == fkViolation {
			return 0, course.ErrNotFound
		}
		return 0, errors.Wrap(err, "inserting enrollments")
	}
	return n, nil
}

func (repo courseRepository) RemoveEnrollments(ctx context.Context, courseID int, userIDs []int, exec ...core.DBExecutor) (int, error) {
	q := `DELETE FROM course_enrollment WHERE course_id = $1 AND user_id = ANY($2)`
	n, err := rowsAffected(repo.getExec(exec).ExecContext(ctx, q, courseID, pq.Array(userIDs)))
	return n, errors.Wrap(err, "deleting enrollments")
}

func (repo courseRepository) ClearEnrollments(ctx context.Context, courseID int, exec ...core.DBExecutor) (int, error) {
	n, err := rowsAffected(repo.getExec(exec).ExecContext(ctx, `DELETE FROM course_enrollment WHERE course_id = $1`, courseID))
	return n, errors.Wrap(err, "clearing enrollments")
}

func (repo courseRepository) ListUserCourseIDs(ctx context.Context, userID int, exec ...core.DBExecutor) ([]int, error) {
	q := `SELECT course_id FROM course_enrollment WHERE user_id = $1 ORDER BY course_id`
	ids, err := selectIDs(ctx, repo.getExec(exec), q, userID)
	return ids, errors.Wrap(err, "selecting user courses")
}

func (repo courseRepository) ExistingTagIDs(ctx context.Context, ids []int, exec ...core.DBExecutor) ([]int, error) {
	res, err := selectIDs(ctx, repo.getExec(exec), `SELECT id FROM tag WHERE id = ANY($1) ORDER BY id`, pq.Array(ids))
	return res, errors.Wrap(err, "selecting tag IDs")
}

func (repo courseRepository) SetCourseTags(ctx context.Context, courseID int, tagIDs []int, exec ...core.DBExecutor) error {
	e := repo.getExec(exec)
	if _, err := e.ExecContext(ctx, `DELETE FROM course_tag WHERE course_id = $1`, courseID); err != nil {
		return errors.Wrap(err, "deleting course tags")
	}
	if len(tagIDs) == 0 {
		return nil
	}
	q := `INSERT INTO course_tag (course_id, tag_id) SELECT $1, t FROM unnest($2::int[]) AS t ON CONFLICT DO NOTHING`
	if _, err := e.ExecContext(ctx, q, courseID, pq.Array(core.UniqueIDs(tagIDs))); err != nil {
		if pqErrCode(err) == fkViolation {
			return course.ErrTagNotFound
		}
		return errors.Wrap(err, "inserting course tags")
	}
	return nil
}
