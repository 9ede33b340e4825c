package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/course"
)

type courseApi struct {
	svc      course.ServiceInterface
	validate *validator.Validate
}

func registerCourseAPI(
	cg *echo.Group,
	auth *authenticator,
	svc course.ServiceInterface,
	validate *validator.Validate,
) {
	api := courseApi{svc: svc, validate: validate}
	staff := staffMiddleware(auth)

	cg.GET("", api.query)
	cg.POST("", api.create, staff)
	cg.POST("/run_cleanup/:id", api.runCleanup, staff)

	dg := cg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, staff)
	dg.DELETE("", api.destroy, staff)
	dg.POST("/update_users", api.updateUsers, staff)
}

func (api *courseApi) query(ctx echo.Context) error {
	var filter course.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []course.Course{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	courses, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) create(ctx echo.Context) error {
	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	c, err := api.svc.Get(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) update(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	var data course.UpdateCourse
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourse")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.Update(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) destroy(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// updateUsers replaces the users enrolled in the course (and its chat participants).
func (api *courseApi) updateUsers(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	var data course.UpdateCourseUsers
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourseUsers")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	diff, err := api.svc.ReconcileUsers(ctx.Request().Context(), id, data.UserIDs)
	if err != nil {
		return errors.Wrap(err, "reconciling course users")
	}
	return ctx.JSON(http.StatusOK, diff)
}

// runCleanup queues an immediate sweep of the course.
func (api *courseApi) runCleanup(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	taskID, err := api.svc.RequestSweep(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "requesting sweep")
	}
	return ctx.JSON(http.StatusAccepted, TaskResponse{TaskID: taskID})
}

type TaskResponse struct {
	TaskID string `json:"task_id"`
}
