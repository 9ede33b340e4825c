package course

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
)

const day = 24 * time.Hour

type Course struct {
	ID           int       `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Avatar       string    `json:"avatar"`
	DurationDays int       `json:"duration_days"`
	EndDatetime  time.Time `json:"end_datetime"` // UTC
	ChatID       int       `json:"chat_id"`      // 0 when the course has no chat
	CreatedAt    time.Time `json:"created_at"`   // UTC
	UpdatedAt    time.Time `json:"updated_at"`   // UTC
	UserIDs      []int     `json:"users"`
	TagIDs       []int     `json:"tags"`
}

func (c Course) HasChat() bool {
	return c.ChatID != 0
}

// SweepThreshold is the instant the course end must precede for the course to be swept:
// the course keeps its chat for as many days after its end as it lasted.
func (c Course) SweepThreshold(now time.Time) time.Time {
	return now.Add(-time.Duration(c.DurationDays) * day)
}

// IsSweepable reports whether the course chat history and enrollment can be cleared at now.
func (c Course) IsSweepable(now time.Time) bool {
	return c.EndDatetime.Before(c.SweepThreshold(now))
}

// SweepableAt is the earliest instant after which IsSweepable holds.
func (c Course) SweepableAt() time.Time {
	return c.EndDatetime.Add(time.Duration(c.DurationDays) * day)
}

// Enrollment is the membership of a user in a course.
type Enrollment struct {
	CourseID   int       `json:"course_id"`
	UserID     int       `json:"user_id"`
	EnrolledAt time.Time `json:"enrolled_at"` // UTC
}

// NewCourse contains information needed to create a new Course.
// EndDatetime defaults to the creation time plus DurationDays.
type NewCourse struct {
	Title        string     `json:"title" validate:"required,notblank,max=50"`
	Description  string     `json:"description"`
	Avatar       string     `json:"avatar" validate:"omitempty,max=255"`
	DurationDays *int       `json:"duration_days" validate:"omitempty,gte=0,lte=3650"`
	EndDatetime  *time.Time `json:"end_datetime"`
	UserIDs      []int      `json:"user_ids" validate:"omitempty,dive,gt=0"`
	TagIDs       []int      `json:"tag_ids" validate:"omitempty,unique_ids"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	return validate.Struct(nc)
}

// UpdateCourse defines what may be modified on an existing Course.
// The end datetime is set once at creation and never updated.
type UpdateCourse struct {
	Title        *string `json:"title" validate:"omitempty,notblank,max=50"`
	Description  *string `json:"description"`
	Avatar       *string `json:"avatar" validate:"omitempty,max=255"`
	DurationDays *int    `json:"duration_days" validate:"omitempty,gte=0,lte=3650"`
	TagIDs       []int   `json:"tag_ids" validate:"omitempty,unique_ids"`
}

func (uc *UpdateCourse) Validate(validate *validator.Validate) error {
	if uc.Title != nil {
		*uc.Title = core.CleanString(*uc.Title)
	}
	if uc.Description != nil {
		*uc.Description = core.CleanString(*uc.Description)
	}
	return validate.Struct(uc)
}

func (uc UpdateCourse) apply(c *Course) {
	if uc.Title != nil {
		c.Title = *uc.Title
	}
	if uc.Description != nil {
		c.Description = *uc.Description
	}
	if uc.Avatar != nil {
		c.Avatar = *uc.Avatar
	}
	if uc.DurationDays != nil {
		c.DurationDays = *uc.DurationDays
	}
}

// UpdateCourseUsers is the target set of users enrolled in a course.
// An empty (non-null) list unenrolls everybody.
type UpdateCourseUsers struct {
	UserIDs []int `json:"user_ids" validate:"required,dive,gt=0"`
}

func (uu *UpdateCourseUsers) Validate(validate *validator.Validate) error {
	return validate.Struct(uu)
}

// MembershipDiff reports what a reconciliation changed.
// Skipped lists the requested user IDs that do not belong to any user.
type MembershipDiff struct {
	CourseID int   `json:"course_id"`
	Added    []int `json:"added"`
	Removed  []int `json:"removed"`
	Skipped  []int `json:"skipped"`
}

func (d MembershipDiff) Changed() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0
}

// SweepResult reports what a sweep of one course deleted.
type SweepResult struct {
	CourseID     int  `json:"course_id"`
	Swept        bool `json:"swept"`
	Participants int  `json:"participants"`
	Messages     int  `json:"messages"`
	Enrollments  int  `json:"enrollments"`
}

type QueryFilter struct {
	Search string `query:"search"`
	// UserID limits the result to the courses the user is enrolled in; 0 means all.
	UserID int   `query:"user_id"`
	TagIDs []int `query:"tag"`
}

// UserFinder reports which of the given user IDs exist.
type UserFinder interface {
	ExistingIDs(ctx context.Context, ids []int, exec ...core.DBExecutor) ([]int, error)
}
