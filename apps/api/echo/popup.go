package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/permission"
	"github.com/trezcool/academia/core/popup"
)

var popupOrderingFields = []string{"title", "priority", "starts_at", "ends_at", "is_active", "created_at"}

type popupApi struct {
	svc      popup.ServiceInterface
	validate *validator.Validate
}

func registerPopupAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps, perms *permissionChecker) {
	api := popupApi{svc: deps.PopupSvc, validate: deps.Validate}

	pg := g.Group("/popups")

	// un-authed endpoints
	pg.GET("/active", api.queryActive)

	// authed endpoints
	ag := pg.Group("", jwt)
	ag.GET("", api.query, perms.require(permission.ResourcePopups, permission.ActionRead))
	ag.POST("", api.create, perms.require(permission.ResourcePopups, permission.ActionWrite))
	ag.GET("/:id", api.retrieve, perms.require(permission.ResourcePopups, permission.ActionRead))
	ag.PUT("/:id", api.update, perms.require(permission.ResourcePopups, permission.ActionWrite))
	ag.DELETE("/:id", api.destroy, perms.require(permission.ResourcePopups, permission.ActionDelete))
}

func (api *popupApi) find(ctx echo.Context) (popup.Popup, error) {
	p, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if core.IsNotFound(err) {
			return popup.Popup{}, errHttpNotFound
		}
		return popup.Popup{}, errors.Wrap(err, "finding popup by ID")
	}
	return p, nil
}

// Handlers

func (api *popupApi) queryActive(ctx echo.Context) error {
	popups, err := api.svc.Active(ctx.Request().Context(), popup.NowFunc().UTC())
	if err != nil {
		return errors.Wrap(err, "querying active popups")
	}
	return ctx.JSON(http.StatusOK, popups)
}

func (api *popupApi) query(ctx echo.Context) error {
	filter := new(popup.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []popup.Popup{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx, popupOrderingFields...)

	popups, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying popups")
	}
	if popups == nil {
		popups = []popup.Popup{}
	}
	return ctx.JSON(http.StatusOK, popups)
}

func (api *popupApi) create(ctx echo.Context) error {
	var data popup.NewPopup
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPopup")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	p, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating popup")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *popupApi) retrieve(ctx echo.Context) error {
	p, err := api.find(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *popupApi) update(ctx echo.Context) error {
	p, err := api.find(ctx)
	if err != nil {
		return err
	}

	var data popup.UpdatePopup
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdatePopup")
	}
	if err := data.Validate(p, api.validate); err != nil {
		return err
	}

	p, err = api.svc.Update(ctx.Request().Context(), p, data)
	if err != nil {
		return errors.Wrap(err, "updating popup")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *popupApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		if core.IsNotFound(err) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "deleting popup")
	}
	return ctx.NoContent(http.StatusNoContent)
}
