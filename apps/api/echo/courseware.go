package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/course"
)

type coursewareApi struct {
	svc      course.CoursewareServiceInterface
	validate *validator.Validate
}

func registerCoursewareAPI(
	cg *echo.Group,
	auth *authenticator,
	svc course.CoursewareServiceInterface,
	validate *validator.Validate,
) {
	api := coursewareApi{svc: svc, validate: validate}
	staff := staffMiddleware(auth)

	mg := cg.Group("/modules")
	mg.GET("", api.queryModules)
	mg.POST("", api.createModule, staff)
	mg.GET("/:id", api.retrieveModule)
	mg.PUT("/:id", api.updateModule, staff)
	mg.DELETE("/:id", api.destroyModule, staff)

	lg := cg.Group("/lessons")
	lg.GET("", api.queryLessons)
	lg.POST("", api.createLesson, staff)
	lg.GET("/:id", api.retrieveLesson)
	lg.PUT("/:id", api.updateLesson, staff)
	lg.DELETE("/:id", api.destroyLesson, staff)

	qg := cg.Group("/questions")
	qg.GET("", api.queryQuestions)
	qg.POST("", api.createQuestion, staff)
	qg.DELETE("/:id", api.destroyQuestion, staff)

	ag := cg.Group("/answers")
	ag.GET("", api.queryAnswers)
	ag.POST("", api.createAnswer, staff)
	ag.DELETE("/:id", api.destroyAnswer, staff)

	tg := cg.Group("/tags")
	tg.GET("", api.queryTags)
	tg.POST("", api.createTag, staff)
	tg.DELETE("/:id", api.destroyTag, staff)
}

// parentFilter reads an optional parent ID from the query; 0 means no filter.
func parentFilter(ctx echo.Context, name string) (int, error) {
	if ctx.QueryParam(name) == "" {
		return 0, nil
	}
	return intQueryParam(ctx, name)
}

// Modules

func (api *coursewareApi) queryModules(ctx echo.Context) error {
	courseID, err := parentFilter(ctx, "course")
	if err != nil {
		return err
	}
	modules, err := api.svc.QueryModules(ctx.Request().Context(), courseID)
	if err != nil {
		return errors.Wrap(err, "querying modules")
	}
	if modules == nil {
		modules = []course.Module{}
	}
	return ctx.JSON(http.StatusOK, modules)
}

func (api *coursewareApi) createModule(ctx echo.Context) error {
	var data course.NewModule
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewModule")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	m, err := api.svc.CreateModule(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating module")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *coursewareApi) retrieveModule(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	m, err := api.svc.GetModule(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting module")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *coursewareApi) updateModule(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	var data course.UpdateModule
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateModule")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	m, err := api.svc.UpdateModule(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "updating module")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *coursewareApi) destroyModule(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.DeleteModule(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting module")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Lessons

func (api *coursewareApi) queryLessons(ctx echo.Context) error {
	moduleID, err := parentFilter(ctx, "module")
	if err != nil {
		return err
	}
	lessons, err := api.svc.QueryLessons(ctx.Request().Context(), moduleID)
	if err != nil {
		return errors.Wrap(err, "querying lessons")
	}
	if lessons == nil {
		lessons = []course.Lesson{}
	}
	return ctx.JSON(http.StatusOK, lessons)
}

func (api *coursewareApi) createLesson(ctx echo.Context) error {
	var data course.NewLesson
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLesson")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	l, err := api.svc.CreateLesson(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating lesson")
	}
	return ctx.JSON(http.StatusCreated, l)
}

func (api *coursewareApi) retrieveLesson(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	l, err := api.svc.GetLesson(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting lesson")
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api *coursewareApi) updateLesson(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	var data course.UpdateLesson
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateLesson")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	l, err := api.svc.UpdateLesson(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "updating lesson")
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api *coursewareApi) destroyLesson(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.DeleteLesson(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting lesson")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Questions & answers

func (api *coursewareApi) queryQuestions(ctx echo.Context) error {
	lessonID, err := intQueryParam(ctx, "lesson")
	if err != nil {
		return err
	}
	questions, err := api.svc.QueryQuestions(ctx.Request().Context(), lessonID)
	if err != nil {
		return errors.Wrap(err, "querying questions")
	}
	if questions == nil {
		questions = []course.Question{}
	}
	return ctx.JSON(http.StatusOK, questions)
}

func (api *coursewareApi) createQuestion(ctx echo.Context) error {
	var data course.NewQuestion
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewQuestion")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	q, err := api.svc.CreateQuestion(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating question")
	}
	return ctx.JSON(http.StatusCreated, q)
}

func (api *coursewareApi) destroyQuestion(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.DeleteQuestion(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting question")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *coursewareApi) queryAnswers(ctx echo.Context) error {
	questionID, err := intQueryParam(ctx, "question")
	if err != nil {
		return err
	}
	answers, err := api.svc.QueryAnswers(ctx.Request().Context(), questionID)
	if err != nil {
		return errors.Wrap(err, "querying answers")
	}
	if answers == nil {
		answers = []course.Answer{}
	}
	return ctx.JSON(http.StatusOK, answers)
}

func (api *coursewareApi) createAnswer(ctx echo.Context) error {
	var data course.NewAnswer
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAnswer")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	a, err := api.svc.CreateAnswer(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating answer")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *coursewareApi) destroyAnswer(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.DeleteAnswer(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting answer")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Tags

func (api *coursewareApi) queryTags(ctx echo.Context) error {
	tags, err := api.svc.QueryTags(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying tags")
	}
	if tags == nil {
		tags = []course.Tag{}
	}
	return ctx.JSON(http.StatusOK, tags)
}

func (api *coursewareApi) createTag(ctx echo.Context) error {
	var data course.NewTag
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTag")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	t, err := api.svc.CreateTag(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating tag")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *coursewareApi) destroyTag(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.DeleteTag(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting tag")
	}
	return ctx.NoContent(http.StatusNoContent)
}
