package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/user"
)

const courseContextKey = "course"

var (
	errCourseNotFoundInCtx = errors.New("course object not found in echo.Context")

	courseOrderingFields = []string{"code", "title", "capacity", "registration_opens_at", "registration_closes_at", "created_at"}
)

type courseApi struct {
	svc      course.ServiceInterface
	users    user.ServiceInterface
	validate *validator.Validate
}

func registerCourseAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := courseApi{
		svc:      deps.CourseSvc,
		users:    deps.UserSvc,
		validate: deps.Validate,
	}

	cg := g.Group("/courses", jwt)
	cg.GET("", api.query)
	cg.POST("", api.create)

	// detail endpoints
	dg := cg.Group("/:id", courseMiddleware(api.svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
	dg.POST("/registration", api.register)
	dg.DELETE("/registration", api.cancelRegistration)
	dg.GET("/registrations", api.queryRegistrations)
}

// courseMiddleware loads the course of the `:id` path param.
func courseMiddleware(svc course.ServiceInterface) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			c, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				if core.IsNotFound(err) {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding course by ID")
			}
			ctx.Set(courseContextKey, c)
			return next(ctx)
		}
	}
}

func getContextCourse(ctx echo.Context) (course.Course, error) {
	c, ok := ctx.Get(courseContextKey).(course.Course)
	if !ok {
		return course.Course{}, errors.Wrap(errCourseNotFoundInCtx, "retrieving course from context")
	}
	return c, nil
}

// managedCourse returns the context course when the context user may manage it.
func (api *courseApi) managedCourse(ctx echo.Context) (course.Course, user.User, error) {
	c, err := getContextCourse(ctx)
	if err != nil {
		return course.Course{}, user.User{}, err
	}
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return course.Course{}, user.User{}, errors.Wrap(err, "getting context user")
	}
	if !c.CanManage(usr) {
		return course.Course{}, user.User{}, errHttpForbidden
	}
	return c, usr, nil
}

// Handlers

func (api *courseApi) query(ctx echo.Context) error {
	filter := new(course.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []course.Course{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx, courseOrderingFields...)

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
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !(usr.IsTeacher() || usr.IsAdmin()) {
		return errHttpForbidden
	}

	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	// teachers create their own courses
	if !usr.IsAdmin() || data.TeacherID == "" {
		data.TeacherID = usr.ID
	}
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	c, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	c, err := getContextCourse(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) update(ctx echo.Context) error {
	c, _, err := api.managedCourse(ctx)
	if err != nil {
		return err
	}

	var data course.UpdateCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourse")
	}
	if err := data.Validate(ctx.Request().Context(), c, api.validate, api.svc); err != nil {
		return err
	}

	c, err = api.svc.Update(ctx.Request().Context(), c, data)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) destroy(ctx echo.Context) error {
	c, _, err := api.managedCourse(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), c.ID); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) register(ctx echo.Context) error {
	c, err := getContextCourse(ctx)
	if err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	reg, err := api.svc.Register(ctx.Request().Context(), c.ID, usr)
	if err != nil {
		return errors.Wrap(err, "registering to course")
	}
	return ctx.JSON(http.StatusCreated, reg)
}

func (api *courseApi) cancelRegistration(ctx echo.Context) error {
	c, err := getContextCourse(ctx)
	if err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	reg, err := api.svc.CancelRegistration(ctx.Request().Context(), c.ID, usr.ID)
	if err != nil {
		return errors.Wrap(err, "cancelling registration")
	}
	return ctx.JSON(http.StatusOK, reg)
}

func (api *courseApi) queryRegistrations(ctx echo.Context) error {
	c, _, err := api.managedCourse(ctx)
	if err != nil {
		return err
	}

	regs, err := api.svc.ListRegistrations(ctx.Request().Context(), c.ID)
	if err != nil {
		return errors.Wrap(err, "listing registrations")
	}
	if regs == nil {
		regs = []course.Registration{}
	}
	return ctx.JSON(http.StatusOK, regs)
}
