package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) *courseRepository {
	return &courseRepository{db: db}
}

// load fills the user & tag IDs of c; it must be called with db.mu held.
func (repo *courseRepository) load(c course.Course) course.Course {
	c.UserIDs = make([]int, 0)
	for key := range repo.db.t.enrollments {
		if key.a == c.ID {
			c.UserIDs = append(c.UserIDs, key.b)
		}
	}
	sort.Ints(c.UserIDs)

	c.TagIDs = make([]int, 0)
	for key := range repo.db.t.courseTags {
		if key.a == c.ID {
			c.TagIDs = append(c.TagIDs, key.b)
		}
	}
	sort.Ints(c.TagIDs)
	return c
}

func (repo *courseRepository) CreateCourse(_ context.Context, c course.Course, _ ...core.DBExecutor) (course.Course, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	c.ID = repo.db.nextID("course")
	c.UserIDs, c.TagIDs = nil, nil
	repo.db.t.courses[c.ID] = c
	return repo.load(c), nil
}

func (repo *courseRepository) GetCourse(_ context.Context, id int, _ ...core.DBExecutor) (course.Course, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	c, ok := repo.db.t.courses[id]
	if !ok {
		return course.Course{}, course.ErrNotFound
	}
	return repo.load(c), nil
}

func (repo *courseRepository) QueryCourses(_ context.Context, filter course.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]course.Course, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	search := strings.ToLower(filter.Search)
	courses := make([]course.Course, 0)
	for _, c := range repo.db.t.courses {
		c = repo.load(c)
		if search != "" &&
			!strings.Contains(strings.ToLower(c.Title), search) &&
			!strings.Contains(strings.ToLower(c.Description), search) {
			continue
		}
		if filter.UserID != 0 && !core.ContainsID(c.UserIDs, filter.UserID) {
			continue
		}
		if len(filter.TagIDs) > 0 {
			var tagged bool
			for _, tid := range filter.TagIDs {
				if core.ContainsID(c.TagIDs, tid) {
					tagged = true
					break
				}
			}
			if !tagged {
				continue
			}
		}
		courses = append(courses, c)
	}

	sortCourses(courses, ordering)
	return courses, nil
}

func sortCourses(courses []course.Course, ordering []core.DBOrdering) {
	sort.Slice(courses, func(i, j int) bool { return courses[i].ID < courses[j].ID })
	sort.SliceStable(courses, func(i, j int) bool {
		a, b := courses[i], courses[j]
		for _, ord := range ordering {
			var cmp int
			switch ord.Field {
			case "id":
				cmp = a.ID - b.ID
			case "title":
				cmp = strings.Compare(a.Title, b.Title)
			case "duration_days":
				cmp = a.DurationDays - b.DurationDays
			case "end_datetime":
				cmp = compareTimes(a.EndDatetime, b.EndDatetime)
			case "created_at":
				cmp = compareTimes(a.CreatedAt, b.CreatedAt)
			}
			if cmp != 0 {
				return (cmp < 0) == ord.Ascending
			}
		}
		return false
	})
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

// UpdateCourse keeps the stored end datetime.
func (repo *courseRepository) UpdateCourse(_ context.Context, c course.Course, _ ...core.DBExecutor) (course.Course, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.t.courses[c.ID]
	if !ok {
		return course.Course{}, course.ErrNotFound
	}
	c.EndDatetime = orig.EndDatetime
	c.CreatedAt = orig.CreatedAt
	c.UserIDs, c.TagIDs = nil, nil
	repo.db.t.courses[c.ID] = c
	return repo.load(c), nil
}

// DeleteCourse cascades to enrollments, tags and modules. The chat is kept.
func (repo *courseRepository) DeleteCourse(_ context.Context, id int, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.courses[id]; !ok {
		return course.ErrNotFound
	}
	delete(repo.db.t.courses, id)
	for key := range repo.db.t.enrollments {
		if key.a == id {
			delete(repo.db.t.enrollments, key)
		}
	}
	for key := range repo.db.t.courseTags {
		if key.a == id {
			delete(repo.db.t.courseTags, key)
		}
	}
	for mid, m := range repo.db.t.modules {
		if m.CourseID == id {
			deleteModule(repo.db, mid)
		}
	}
	return nil
}

func (repo *courseRepository) ListCourseIDs(_ context.Context, _ ...core.DBExecutor) ([]int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	ids := make([]int, 0, len(repo.db.t.courses))
	for id := range repo.db.t.courses {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

func (repo *courseRepository) ExistingCourseIDs(_ context.Context, ids []int, _ ...core.DBExecutor) ([]int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	res := make([]int, 0, len(ids))
	for _, id := range core.UniqueIDs(ids) {
		if _, ok := repo.db.t.courses[id]; ok {
			res = append(res, id)
		}
	}
	return res, nil
}

func (repo *courseRepository) ListEnrollments(_ context.Context, courseID int, _ ...core.DBExecutor) ([]course.Enrollment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	res := make([]course.Enrollment, 0)
	for key, e := range repo.db.t.enrollments {
		if key.a == courseID {
			res = append(res, e)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].UserID < res[j].UserID })
	return res, nil
}

func (repo *courseRepository) AddEnrollments(_ context.Context, courseID int, userIDs []int, _ ...core.DBExecutor) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.courses[courseID]; !ok {
		return 0, course.ErrNotFound
	}
	now := time.Now().UTC()
	var n int
	for _, uid := range core.UniqueIDs(userIDs) {
		key := pair{courseID, uid}
		if _, ok := repo.db.t.enrollments[key]; ok {
			continue
		}
		repo.db.t.enrollments[key] = course.Enrollment{CourseID: courseID, UserID: uid, EnrolledAt: now}
		n++
	}
	return n, nil
}

func (repo *courseRepository) RemoveEnrollments(_ context.Context, courseID int, userIDs []int, _ ...core.DBExecutor) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var n int
	for _, uid := range core.UniqueIDs(userIDs) {
		key := pair{courseID, uid}
		if _, ok := repo.db.t.enrollments[key]; ok {
			delete(repo.db.t.enrollments, key)
			n++
		}
	}
	return n, nil
}

func (repo *courseRepository) ClearEnrollments(_ context.Context, courseID int, _ ...core.DBExecutor) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var n int
	for key := range repo.db.t.enrollments {
		if key.a == courseID {
			delete(repo.db.t.enrollments, key)
			n++
		}
	}
	return n, nil
}

func (repo *courseRepository) ListUserCourseIDs(_ context.Context, userID int, _ ...core.DBExecutor) ([]int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	ids := make([]int, 0)
	for key := range repo.db.t.enrollments {
		if key.b == userID {
			ids = append(ids, key.a)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (repo *courseRepository) ExistingTagIDs(_ context.Context, ids []int, _ ...core.DBExecutor) ([]int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	res := make([]int, 0, len(ids))
	for _, id := range core.UniqueIDs(ids) {
		if _, ok := repo.db.t.tags[id]; ok {
			res = append(res, id)
		}
	}
	return res, nil
}

func (repo *courseRepository) SetCourseTags(_ context.Context, courseID int, tagIDs []int, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for key := range repo.db.t.courseTags {
		if key.a == courseID {
			delete(repo.db.t.courseTags, key)
		}
	}
	for _, tid := range core.UniqueIDs(tagIDs) {
		if _, ok := repo.db.t.tags[tid]; !ok {
			return course.ErrTagNotFound
		}
		repo.db.t.courseTags[pair{courseID, tid}] = struct{}{}
	}
	return nil
}
