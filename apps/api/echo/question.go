package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/question"
	"github.com/trezcool/academia/core/user"
)

var questionOrderingFields = []string{"type", "points", "created_at", "updated_at"}

type questionApi struct {
	svc      question.ServiceInterface
	courses  course.ServiceInterface
	users    user.ServiceInterface
	validate *validator.Validate
}

func registerQuestionAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := questionApi{
		svc:      deps.QuestionSvc,
		courses:  deps.CourseSvc,
		users:    deps.UserSvc,
		validate: deps.Validate,
	}

	cg := g.Group("/courses/:id/questions", jwt, courseMiddleware(api.courses))
	cg.GET("", api.query)
	cg.POST("", api.create)

	qg := g.Group("/questions/:id", jwt)
	qg.GET("", api.retrieve)
	qg.PUT("", api.update)
	qg.DELETE("", api.destroy)
}

// access reports whether the context user manages course c or only follows it.
// Users who do neither are forbidden.
func (api *questionApi) access(ctx echo.Context, c course.Course) (manager bool, err error) {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return false, errors.Wrap(err, "getting context user")
	}
	if c.CanManage(usr) {
		return true, nil
	}
	ok, err := api.courses.IsRegistered(ctx.Request().Context(), c.ID, usr.ID)
	if err != nil {
		return false, errors.Wrap(err, "checking registration")
	}
	if !ok {
		return false, errHttpForbidden
	}
	return false, nil
}

// loadQuestion finds the question of the `:id` path param along with its course.
func (api *questionApi) loadQuestion(ctx echo.Context) (question.Question, course.Course, error) {
	reqCtx := ctx.Request().Context()
	q, err := api.svc.GetByID(reqCtx, ctx.Param("id"))
	if err != nil {
		if core.IsNotFound(err) {
			return question.Question{}, course.Course{}, errHttpNotFound
		}
		return question.Question{}, course.Course{}, errors.Wrap(err, "finding question by ID")
	}
	c, err := api.courses.GetByID(reqCtx, q.CourseID)
	if err != nil {
		return question.Question{}, course.Course{}, errors.Wrap(err, "finding question course")
	}
	return q, c, nil
}

// Handlers

func (api *questionApi) query(ctx echo.Context) error {
	c, err := getContextCourse(ctx)
	if err != nil {
		return err
	}
	manager, err := api.access(ctx, c)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx, questionOrderingFields...)

	questions, err := api.svc.QueryByCourse(ctx.Request().Context(), c.ID, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying questions")
	}
	if questions == nil {
		questions = []question.Question{}
	}
	if !manager {
		for i := range questions {
			questions[i] = questions[i].Public()
		}
	}
	return ctx.JSON(http.StatusOK, questions)
}

func (api *questionApi) create(ctx echo.Context) error {
	c, err := getContextCourse(ctx)
	if err != nil {
		return err
	}
	manager, err := api.access(ctx, c)
	if err != nil {
		return err
	}
	if !manager {
		return errHttpForbidden
	}

	var data question.NewQuestion
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewQuestion")
	}
	data.Clean()
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	q, err := api.svc.Create(ctx.Request().Context(), c.ID, claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "creating question")
	}
	return ctx.JSON(http.StatusCreated, q)
}

func (api *questionApi) retrieve(ctx echo.Context) error {
	q, c, err := api.loadQuestion(ctx)
	if err != nil {
		return err
	}
	manager, err := api.access(ctx, c)
	if err != nil {
		return err
	}
	if !manager {
		q = q.Public()
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *questionApi) update(ctx echo.Context) error {
	q, c, err := api.loadQuestion(ctx)
	if err != nil {
		return err
	}
	manager, err := api.access(ctx, c)
	if err != nil {
		return err
	}
	if !manager {
		return errHttpForbidden
	}

	var data question.UpdateQuestion
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateQuestion")
	}
	data.Clean()
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	q, err = api.svc.Update(ctx.Request().Context(), q, data)
	if err != nil {
		return errors.Wrap(err, "updating question")
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *questionApi) destroy(ctx echo.Context) error {
	q, c, err := api.loadQuestion(ctx)
	if err != nil {
		return err
	}
	manager, err := api.access(ctx, c)
	if err != nil {
		return err
	}
	if !manager {
		return errHttpForbidden
	}

	if err := api.svc.Delete(ctx.Request().Context(), q.ID); err != nil {
		return errors.Wrap(err, "deleting question")
	}
	return ctx.NoContent(http.StatusNoContent)
}
