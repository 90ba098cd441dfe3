package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/permission"
	"github.com/trezcool/academia/core/user"
)

type permissionApi struct {
	svc      permission.ServiceInterface
	users    user.ServiceInterface
	validate *validator.Validate
}

func registerPermissionAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps, perms *permissionChecker) {
	api := permissionApi{
		svc:      deps.PermissionSvc,
		users:    deps.UserSvc,
		validate: deps.Validate,
	}

	pg := g.Group("/permissions", jwt)
	pg.GET("", api.query, perms.require(permission.ResourcePermissions, permission.ActionRead))
	pg.POST("", api.grant, perms.require(permission.ResourcePermissions, permission.ActionWrite))
	pg.GET("/:id", api.retrieve, perms.require(permission.ResourcePermissions, permission.ActionRead))
	pg.DELETE("/:id", api.revoke, perms.require(permission.ResourcePermissions, permission.ActionDelete))
}

// Handlers

func (api *permissionApi) query(ctx echo.Context) error {
	filter := new(permission.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []permission.Grant{})
	}
	filter.Clean()

	grants, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying grants")
	}
	if grants == nil {
		grants = []permission.Grant{}
	}
	return ctx.JSON(http.StatusOK, grants)
}

func (api *permissionApi) grant(ctx echo.Context) error {
	var data permission.NewGrant
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGrant")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	g, err := api.svc.Grant(ctx.Request().Context(), data, usr)
	if err != nil {
		return errors.Wrap(err, "granting permission")
	}
	return ctx.JSON(http.StatusCreated, g)
}

func (api *permissionApi) retrieve(ctx echo.Context) error {
	g, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if core.IsNotFound(err) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding grant by ID")
	}
	return ctx.JSON(http.StatusOK, g)
}

func (api *permissionApi) revoke(ctx echo.Context) error {
	if err := api.svc.Revoke(ctx.Request().Context(), ctx.Param("id")); err != nil {
		if core.IsNotFound(err) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "revoking permission")
	}
	return ctx.NoContent(http.StatusNoContent)
}
