package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/notice"
	"github.com/trezcool/academia/core/permission"
)

type noticeApi struct {
	svc      notice.ServiceInterface
	perms    *permissionChecker
	validate *validator.Validate
}

func registerNoticeAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps, perms *permissionChecker) {
	api := noticeApi{
		svc:      deps.NoticeSvc,
		perms:    perms,
		validate: deps.Validate,
	}

	ng := g.Group("/notices", jwt)
	ng.GET("", api.query)
	ng.GET("/pinned", api.queryPinned)
	ng.POST("", api.create, perms.require(permission.ResourceNotices, permission.ActionWrite))
	ng.GET("/:id", api.retrieve)
	ng.PUT("/:id", api.update, perms.require(permission.ResourceNotices, permission.ActionWrite))
	ng.DELETE("/:id", api.destroy, perms.require(permission.ResourceNotices, permission.ActionDelete))
}

// Handlers

func (api *noticeApi) query(ctx echo.Context) error {
	filter := new(notice.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []notice.Notice{})
	}
	filter.Clean()
	// editors also see the scheduled notices
	editor, err := api.perms.allowed(ctx, permission.ResourceNotices, permission.ActionWrite)
	if err != nil {
		return err
	}
	filter.IncludeUnpublished = editor

	notices, err := api.svc.Query(ctx.Request().Context(), filter, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying notices")
	}
	if notices == nil {
		notices = []notice.Notice{}
	}
	return ctx.JSON(http.StatusOK, notices)
}

func (api *noticeApi) queryPinned(ctx echo.Context) error {
	notices, err := api.svc.Pinned(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying pinned notices")
	}
	return ctx.JSON(http.StatusOK, notices)
}

func (api *noticeApi) create(ctx echo.Context) error {
	var data notice.NewNotice
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewNotice")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	n, err := api.svc.Create(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "creating notice")
	}
	return ctx.JSON(http.StatusCreated, n)
}

func (api *noticeApi) retrieve(ctx echo.Context) error {
	editor, err := api.perms.allowed(ctx, permission.ResourceNotices, permission.ActionWrite)
	if err != nil {
		return err
	}
	n, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"), editor)
	if err != nil {
		if core.IsNotFound(err) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding notice by ID")
	}
	return ctx.JSON(http.StatusOK, n)
}

func (api *noticeApi) update(ctx echo.Context) error {
	n, err := api.svc.Find(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if core.IsNotFound(err) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding notice by ID")
	}

	var data notice.UpdateNotice
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateNotice")
	}
	if err := data.Validate(n, api.validate); err != nil {
		return err
	}

	n, err = api.svc.Update(ctx.Request().Context(), n, data)
	if err != nil {
		return errors.Wrap(err, "updating notice")
	}
	return ctx.JSON(http.StatusOK, n)
}

func (api *noticeApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		if core.IsNotFound(err) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "deleting notice")
	}
	return ctx.NoContent(http.StatusNoContent)
}
