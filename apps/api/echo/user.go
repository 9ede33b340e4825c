package echoapi

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/user"
)

var errUsrNotFoundInCtx = errors.New("user object not found in echo.Context")

type userApi struct {
	auth     *authenticator
	tx       core.Transactor
	svc      user.ServiceInterface
	courses  course.ServiceInterface
	validate *validator.Validate
	logger   core.Logger
}

func registerUserAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	auth *authenticator,
	tx core.Transactor,
	svc user.ServiceInterface,
	courses course.ServiceInterface,
	validate *validator.Validate,
	logger core.Logger,
) {
	api := userApi{
		auth:     auth,
		tx:       tx,
		svc:      svc,
		courses:  courses,
		validate: validate,
		logger:   logger,
	}
	staff := staffMiddleware(auth)

	ug := g.Group("/users")

	// authed endpoints
	ag := ug.Group("", jwt)
	ag.GET("", api.query, staff)
	ag.DELETE("", api.destroyMultiple, staff)
	ag.GET("/roles", api.queryRoles, staff)
	ag.GET("/me", api.me)

	// detail endpoints
	dg := ag.Group("/:id", ctxUserOrStaffMiddleware(auth, svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, staff)
	dg.DELETE("", api.destroy, staff)

	// un-authed endpoints, registered after the authed group's catch-all routes
	ug.POST("", api.create)
	ug.POST("/password-reset", api.resetPassword)
	ug.POST("/password-reset-confirm", api.confirmPasswordReset)
}

// UserResponse is a User together with the IDs of the courses they are enrolled in.
type UserResponse struct {
	user.User
	Courses []int `json:"courses"`
}

func (api *userApi) response(ctx context.Context, usr user.User) (UserResponse, error) {
	ids, err := api.courses.UserCourseIDs(ctx, usr.ID)
	if err != nil {
		return UserResponse{}, errors.Wrap(err, "listing user courses")
	}
	if ids == nil {
		ids = []int{}
	}
	return UserResponse{User: usr, Courses: ids}, nil
}

// Handlers

func (api *userApi) create(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err := data.Validate(reqCtx, api.validate, api.svc); err != nil {
		return err
	}

	resp := UserResponse{Courses: []int{}}
	err := api.tx.WithinTx(reqCtx, func(exec core.DBExecutor) error {
		var err error
		if resp.User, err = api.svc.Create(reqCtx, data, exec); err != nil {
			return errors.Wrap(err, "creating user")
		}
		if len(data.CourseIDs) > 0 {
			resp.Courses, err = api.courses.SetUserCourses(reqCtx, resp.User.ID, data.CourseIDs, exec)
			return errors.Wrap(err, "setting user courses")
		}
		return nil
	})
	if err != nil {
		return err
	}
	api.logger.Info("user " + resp.User.Username + " registered")
	return ctx.JSON(http.StatusCreated, resp)
}

func (api *userApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email); !(err == nil || errors.Cause(err) == user.ErrNotFound) {
		// do not return errors to attackers
		api.logger.Error("requesting password reset", errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
}

func (api *userApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

func (api *userApi) query(ctx echo.Context) error {
	var filter user.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []user.User{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	users, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

func (api *userApi) me(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	resp, err := api.response(ctx.Request().Context(), usr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}
	resp, err := api.response(ctx.Request().Context(), usr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *userApi) update(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	var data user.UpdateUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}
	if err := data.Validate(reqCtx, usr, api.validate, api.svc); err != nil {
		return err
	}

	// staff cannot revoke their own staff status
	if ctxUsr, err := api.auth.contextUser(ctx); err != nil {
		return errors.Wrap(err, "getting context user")
	} else if ctxUsr.ID == usr.ID && data.IsStaff != nil && !*data.IsStaff {
		return errHttpForbidden
	}

	var courseIDs []int
	err := api.tx.WithinTx(reqCtx, func(exec core.DBExecutor) error {
		var err error
		if usr, err = api.svc.Update(reqCtx, usr, data, exec); err != nil {
			return errors.Wrap(err, "updating user")
		}
		if data.CourseIDs != nil {
			courseIDs, err = api.courses.SetUserCourses(reqCtx, usr.ID, data.CourseIDs, exec)
			return errors.Wrap(err, "setting user courses")
		}
		return nil
	})
	if err != nil {
		return err
	}

	if data.CourseIDs != nil {
		if courseIDs == nil {
			courseIDs = []int{}
		}
		return ctx.JSON(http.StatusOK, UserResponse{User: usr, Courses: courseIDs})
	}

	resp, err := api.response(reqCtx, usr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *userApi) destroy(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	// ctxUser cannot delete themselves
	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if usr.ID == ctxUsr.ID {
		return errHttpForbidden
	}

	if err := api.svc.Delete(ctx.Request().Context(), usr.ID); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if len(query.IDs) == 0 {
		return ctx.NoContent(http.StatusNoContent)
	}

	// ctxUser cannot delete themselves
	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if core.ContainsID(query.IDs, ctxUsr.ID) {
		return errHttpForbidden
	}

	if err := api.svc.Delete(ctx.Request().Context(), core.UniqueIDs(query.IDs)...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// ctxUserOrStaffMiddleware loads the User of the :id param into the context as "object".
// Non-staff users only get to see themselves.
func ctxUserOrStaffMiddleware(auth *authenticator, svc user.ServiceInterface) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			id, err := intParam(ctx, "id")
			if err != nil {
				return err
			}
			ctxUsr, err := auth.contextUser(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}

			if id == ctxUsr.ID || ctxUsr.IsStaff {
				if usr, err := svc.GetByID(ctx.Request().Context(), id); err == nil {
					ctx.Set("object", usr)
					return next(ctx)
				} else if errors.Cause(err) != user.ErrNotFound {
					return errors.Wrap(err, "finding user by ID")
				}
			}
			return errHttpNotFound
		}
	}
}

type (
	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	DestroyMultipleRequest struct {
		IDs []int `query:"id"`
	}
)

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}
