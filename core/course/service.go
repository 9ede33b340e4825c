package course

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/chat"
)

var (
	// errors
	ErrNotFound = errors.New("course not found")
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, c Course, exec ...core.DBExecutor) (Course, error)
		// GetCourse returns the Course with its enrolled user IDs and tag IDs.
		GetCourse(ctx context.Context, id int, exec ...core.DBExecutor) (Course, error)
		QueryCourses(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Course, error)
		// UpdateCourse saves every field but the end datetime, which is immutable.
		UpdateCourse(ctx context.Context, c Course, exec ...core.DBExecutor) (Course, error)
		DeleteCourse(ctx context.Context, id int, exec ...core.DBExecutor) error
		ListCourseIDs(ctx context.Context, exec ...core.DBExecutor) ([]int, error)
		ExistingCourseIDs(ctx context.Context, ids []int, exec ...core.DBExecutor) ([]int, error)

		ListEnrollments(ctx context.Context, courseID int, exec ...core.DBExecutor) ([]Enrollment, error)
		// AddEnrollments enrolls the users who are not enrolled yet and returns how many were.
		AddEnrollments(ctx context.Context, courseID int, userIDs []int, exec ...core.DBExecutor) (int, error)
		RemoveEnrollments(ctx context.Context, courseID int, userIDs []int, exec ...core.DBExecutor) (int, error)
		ClearEnrollments(ctx context.Context, courseID int, exec ...core.DBExecutor) (int, error)
		ListUserCourseIDs(ctx context.Context, userID int, exec ...core.DBExecutor) ([]int, error)

		ExistingTagIDs(ctx context.Context, ids []int, exec ...core.DBExecutor) ([]int, error)
		SetCourseTags(ctx context.Context, courseID int, tagIDs []int, exec ...core.DBExecutor) error
	}

	ServiceInterface interface {
		Create(ctx context.Context, nc NewCourse) (Course, error)
		Get(ctx context.Context, id int) (Course, error)
		Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Course, error)
		Update(ctx context.Context, id int, uc UpdateCourse) (Course, error)
		Delete(ctx context.Context, id int) error
		ReconcileUsers(ctx context.Context, courseID int, userIDs []int) (MembershipDiff, error)
		UserCourseIDs(ctx context.Context, userID int) ([]int, error)
		SetUserCourses(ctx context.Context, userID int, courseIDs []int, exec ...core.DBExecutor) ([]int, error)
		SweepOne(ctx context.Context, courseID int) (SweepResult, error)
		SweepAll(ctx context.Context) ([]SweepResult, error)
		ScheduleSweep(ctx context.Context, courseID int) (string, error)
		RequestSweep(ctx context.Context, courseID int) (string, error)
	}

	Service struct {
		tx        core.Transactor
		repo      Repository
		chats     chat.Repository
		users     UserFinder
		scheduler core.Scheduler
		logger    core.Logger

		defaultDurationDays int
		now                 func() time.Time
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(
	tx core.Transactor,
	repo Repository,
	chatRepo chat.Repository,
	users UserFinder,
	scheduler core.Scheduler,
	logger core.Logger,
	conf *core.Config,
) *Service {
	return &Service{
		tx:                  tx,
		repo:                repo,
		chats:               chatRepo,
		users:               users,
		scheduler:           scheduler,
		logger:              logger,
		defaultDurationDays: conf.Course.DefaultDurationDays,
		now:                 time.Now,
	}
}

// existingUserIDs splits ids into the IDs of existing users and the unknown ones.
func (svc *Service) existingUserIDs(ctx context.Context, ids []int, exec core.DBExecutor) (existing, unknown []int, err error) {
	ids = core.UniqueIDs(ids)
	if len(ids) == 0 {
		return nil, nil, nil
	}
	existing, err = svc.users.ExistingIDs(ctx, ids, exec)
	if err != nil {
		return nil, nil, errors.Wrap(err, "checking user IDs")
	}
	if len(existing) != len(ids) {
		unknown, _ = core.DiffIDs(existing, ids)
	}
	return existing, unknown, nil
}

func (svc *Service) checkTags(ctx context.Context, tagIDs []int, exec core.DBExecutor) error {
	if len(tagIDs) == 0 {
		return nil
	}
	existing, err := svc.repo.ExistingTagIDs(ctx, tagIDs, exec)
	if err != nil {
		return errors.Wrap(err, "checking tag IDs")
	}
	if unknown, _ := core.DiffIDs(existing, core.UniqueIDs(tagIDs)); len(unknown) > 0 {
		return core.NewValidationError(
			errors.Errorf("unknown tags %v", unknown),
			core.FieldError{Field: "tag_ids", Error: fmt.Sprintf("unknown tag IDs %v", unknown)},
		)
	}
	return nil
}

// Create creates the course together with its group chat, enrolls the initial users and
// makes them chat participants, all in one transaction. The expiry sweep is then scheduled.
func (svc *Service) Create(ctx context.Context, nc NewCourse) (Course, error) {
	now := svc.now().UTC()
	duration := svc.defaultDurationDays
	if nc.DurationDays != nil {
		duration = *nc.DurationDays
	}
	end := now.Add(time.Duration(duration) * day)
	if nc.EndDatetime != nil && !nc.EndDatetime.IsZero() {
		end = nc.EndDatetime.UTC()
	}

	var (
		created Course
		skipped []int
	)
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.checkTags(ctx, nc.TagIDs, exec); err != nil {
			return err
		}

		ch, err := svc.chats.CreateChat(ctx, chat.Chat{Name: nc.Title, IsGroup: true, CreatedAt: now, UpdatedAt: now}, exec)
		if err != nil {
			return errors.Wrap(err, "creating course chat")
		}

		c, err := svc.repo.CreateCourse(ctx, Course{
			Title:        nc.Title,
			Description:  nc.Description,
			Avatar:       nc.Avatar,
			DurationDays: duration,
			EndDatetime:  end,
			ChatID:       ch.ID,
			CreatedAt:    now,
			UpdatedAt:    now,
		}, exec)
		if err != nil {
			return errors.Wrap(err, "creating course")
		}

		var userIDs []int
		userIDs, skipped, err = svc.existingUserIDs(ctx, nc.UserIDs, exec)
		if err != nil {
			return err
		}
		if len(userIDs) > 0 {
			if _, err = svc.repo.AddEnrollments(ctx, c.ID, userIDs, exec); err != nil {
				return errors.Wrap(err, "enrolling users")
			}
			if _, err = svc.chats.AddParticipants(ctx, ch.ID, userIDs, exec); err != nil {
				return errors.Wrap(err, "adding chat participants")
			}
		}

		if len(nc.TagIDs) > 0 {
			if err = svc.repo.SetCourseTags(ctx, c.ID, core.UniqueIDs(nc.TagIDs), exec); err != nil {
				return errors.Wrap(err, "setting course tags")
			}
		}

		created, err = svc.repo.GetCourse(ctx, c.ID, exec)
		return errors.Wrap(err, "reloading course")
	})
	if err != nil {
		return Course{}, err
	}

	if len(skipped) > 0 {
		svc.logger.Warn(fmt.Sprintf("course %d: skipped unknown user IDs %v", created.ID, skipped))
	}
	svc.logger.Info(fmt.Sprintf("course %d %q created with %d users", created.ID, created.Title, len(created.UserIDs)))

	if _, err := svc.scheduleSweep(ctx, created); err != nil {
		svc.logger.Error(fmt.Sprintf("course %d: scheduling sweep", created.ID), err)
	}
	return created, nil
}

func (svc *Service) Get(ctx context.Context, id int) (Course, error) {
	return svc.repo.GetCourse(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Course, error) {
	ordering = core.FilterOrderings(ordering, "id", "title", "duration_days", "end_datetime", "created_at")
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	return svc.repo.QueryCourses(ctx, filter, ordering)
}

func (svc *Service) Update(ctx context.Context, id int, uc UpdateCourse) (Course, error) {
	var (
		updated         Course
		durationChanged bool
	)
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		c, err := svc.repo.GetCourse(ctx, id, exec)
		if err != nil {
			return err
		}
		durationChanged = uc.DurationDays != nil && *uc.DurationDays != c.DurationDays

		uc.apply(&c)
		c.UpdatedAt = svc.now().UTC()
		if _, err = svc.repo.UpdateCourse(ctx, c, exec); err != nil {
			return errors.Wrap(err, "updating course")
		}

		if uc.TagIDs != nil {
			if err = svc.checkTags(ctx, uc.TagIDs, exec); err != nil {
				return err
			}
			if err = svc.repo.SetCourseTags(ctx, c.ID, core.UniqueIDs(uc.TagIDs), exec); err != nil {
				return errors.Wrap(err, "setting course tags")
			}
		}

		updated, err = svc.repo.GetCourse(ctx, c.ID, exec)
		return errors.Wrap(err, "reloading course")
	})
	if err != nil {
		return Course{}, err
	}

	if durationChanged {
		if _, err := svc.scheduleSweep(ctx, updated); err != nil {
			svc.logger.Error(fmt.Sprintf("course %d: rescheduling sweep", updated.ID), err)
		}
	}
	return updated, nil
}

func (svc *Service) Delete(ctx context.Context, id int) error {
	return svc.repo.DeleteCourse(ctx, id)
}

// ReconcileUsers makes the users enrolled in the course, and the participants of its chat,
// match userIDs. Unknown user IDs are skipped and reported in MembershipDiff.Skipped.
func (svc *Service) ReconcileUsers(ctx context.Context, courseID int, userIDs []int) (MembershipDiff, error) {
	var diff MembershipDiff
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		c, err := svc.repo.GetCourse(ctx, courseID, exec)
		if err != nil {
			return err
		}
		diff, err = svc.reconcile(ctx, c, userIDs, exec)
		return err
	})
	if err != nil {
		return MembershipDiff{}, err
	}

	if len(diff.Skipped) > 0 {
		svc.logger.Warn(fmt.Sprintf("course %d: skipped unknown user IDs %v", courseID, diff.Skipped))
	}
	svc.logger.Info(fmt.Sprintf("course %d users reconciled: added %v, removed %v", courseID, diff.Added, diff.Removed))
	return diff, nil
}

func (svc *Service) reconcile(ctx context.Context, c Course, userIDs []int, exec core.DBExecutor) (MembershipDiff, error) {
	diff := MembershipDiff{CourseID: c.ID}

	target, skipped, err := svc.existingUserIDs(ctx, userIDs, exec)
	if err != nil {
		return diff, err
	}
	diff.Skipped = skipped

	diff.Added, diff.Removed = core.DiffIDs(c.UserIDs, target)
	if len(diff.Removed) > 0 {
		if _, err = svc.repo.RemoveEnrollments(ctx, c.ID, diff.Removed, exec); err != nil {
			return diff, errors.Wrap(err, "removing enrollments")
		}
	}
	if len(diff.Added) > 0 {
		if _, err = svc.repo.AddEnrollments(ctx, c.ID, diff.Added, exec); err != nil {
			return diff, errors.Wrap(err, "adding enrollments")
		}
	}

	if !c.HasChat() {
		return diff, nil
	}

	// the chat may have been edited by hand: align it on the target rather than on the enrollment diff
	participants, err := svc.chats.ListParticipants(ctx, c.ChatID, exec)
	if err != nil {
		return diff, errors.Wrap(err, "listing chat participants")
	}
	current := make([]int, 0, len(participants))
	for _, p := range participants {
		current = append(current, p.UserID)
	}
	toAdd, toRemove := core.DiffIDs(current, target)
	if len(toRemove) > 0 {
		if _, err = svc.chats.RemoveParticipants(ctx, c.ChatID, toRemove, exec); err != nil {
			return diff, errors.Wrap(err, "removing chat participants")
		}
	}
	if len(toAdd) > 0 {
		if _, err = svc.chats.AddParticipants(ctx, c.ChatID, toAdd, exec); err != nil {
			return diff, errors.Wrap(err, "adding chat participants")
		}
	}
	return diff, nil
}

func (svc *Service) UserCourseIDs(ctx context.Context, userID int) ([]int, error) {
	return svc.repo.ListUserCourseIDs(ctx, userID)
}

// SetUserCourses enrolls the user in exactly the given courses (unknown ones are skipped),
// keeping the course chats in sync. It returns the resulting course IDs.
// It runs within exec when given, in its own transaction otherwise.
func (svc *Service) SetUserCourses(ctx context.Context, userID int, courseIDs []int, exec ...core.DBExecutor) ([]int, error) {
	if len(exec) > 0 {
		return svc.setUserCourses(ctx, userID, courseIDs, exec[0])
	}
	var res []int
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		var err error
		res, err = svc.setUserCourses(ctx, userID, courseIDs, exec)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (svc *Service) setUserCourses(ctx context.Context, userID int, courseIDs []int, exec core.DBExecutor) ([]int, error) {
	current, err := svc.repo.ListUserCourseIDs(ctx, userID, exec)
	if err != nil {
		return nil, errors.Wrap(err, "listing user courses")
	}

	target := core.UniqueIDs(courseIDs)
	if len(target) > 0 {
		existing, err := svc.repo.ExistingCourseIDs(ctx, target, exec)
		if err != nil {
			return nil, errors.Wrap(err, "checking course IDs")
		}
		if unknown, _ := core.DiffIDs(existing, target); len(unknown) > 0 {
			svc.logger.Warn(fmt.Sprintf("user %d: skipped unknown course IDs %v", userID, unknown))
		}
		target = existing
	}

	toAdd, toRemove := core.DiffIDs(current, target)
	for _, id := range toRemove {
		if err = svc.setEnrollment(ctx, id, userID, false, exec); err != nil {
			return nil, err
		}
	}
	for _, id := range toAdd {
		if err = svc.setEnrollment(ctx, id, userID, true, exec); err != nil {
			return nil, err
		}
	}

	res, err := svc.repo.ListUserCourseIDs(ctx, userID, exec)
	return res, errors.Wrap(err, "listing user courses")
}

func (svc *Service) setEnrollment(ctx context.Context, courseID, userID int, enrolled bool, exec core.DBExecutor) error {
	c, err := svc.repo.GetCourse(ctx, courseID, exec)
	if err != nil {
		return err
	}
	ids := []int{userID}
	if enrolled {
		if _, err = svc.repo.AddEnrollments(ctx, c.ID, ids, exec); err != nil {
			return errors.Wrap(err, "adding enrollment")
		}
		if c.HasChat() {
			_, err = svc.chats.AddParticipants(ctx, c.ChatID, ids, exec)
		}
		return errors.Wrap(err, "adding chat participant")
	}

	if _, err = svc.repo.RemoveEnrollments(ctx, c.ID, ids, exec); err != nil {
		return errors.Wrap(err, "removing enrollment")
	}
	if c.HasChat() {
		_, err = svc.chats.RemoveParticipants(ctx, c.ChatID, ids, exec)
	}
	return errors.Wrap(err, "removing chat participant")
}

// SweepOne clears the chat history, chat participants and enrollments of the course
// if it ended more than its duration ago. The Course and Chat are kept.
// A missing course is logged and reported as ErrNotFound.
func (svc *Service) SweepOne(ctx context.Context, courseID int) (SweepResult, error) {
	res := SweepResult{CourseID: courseID}
	var c Course
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if c, err = svc.repo.GetCourse(ctx, courseID, exec); err != nil {
			return err
		}
		if !c.IsSweepable(svc.now().UTC()) {
			return nil
		}

		if c.HasChat() {
			if res.Participants, err = svc.chats.ClearParticipants(ctx, c.ChatID, exec); err != nil {
				return errors.Wrap(err, "clearing chat participants")
			}
			if res.Messages, err = svc.chats.DeleteMessages(ctx, c.ChatID, exec); err != nil {
				return errors.Wrap(err, "deleting chat messages")
			}
		}
		if res.Enrollments, err = svc.repo.ClearEnrollments(ctx, c.ID, exec); err != nil {
			return errors.Wrap(err, "clearing enrollments")
		}
		res.Swept = true
		return nil
	})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			svc.logger.Error(fmt.Sprintf("sweep: course %d not found", courseID))
			return res, err
		}
		svc.logger.Error(fmt.Sprintf("sweep: course %d", courseID), err)
		return SweepResult{CourseID: courseID}, err
	}

	if res.Swept {
		svc.logger.Info(fmt.Sprintf(
			"course %d %q swept: %d participants, %d messages, %d enrollments removed",
			c.ID, c.Title, res.Participants, res.Messages, res.Enrollments,
		))
	} else {
		svc.logger.Info(fmt.Sprintf("course %d %q not expired yet, sweepable after %s",
			c.ID, c.Title, c.SweepableAt().Format(time.RFC3339)))
	}
	return res, nil
}

// SweepAll sweeps every course, each in its own transaction.
// Courses deleted in the meantime are skipped; other failures are logged and
// reported once all courses were processed.
func (svc *Service) SweepAll(ctx context.Context) ([]SweepResult, error) {
	ids, err := svc.repo.ListCourseIDs(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing courses")
	}

	var (
		results []SweepResult
		failed  []int
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := svc.SweepOne(ctx, id)
		if err != nil {
			if errors.Cause(err) != ErrNotFound {
				failed = append(failed, id)
			}
			continue
		}
		results = append(results, res)
	}

	if len(failed) > 0 {
		return results, errors.Errorf("sweeping courses %v failed", failed)
	}
	return results, nil
}
