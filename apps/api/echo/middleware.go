package echoapi

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/auth"
	"github.com/trezcool/academia/core/permission"
	"github.com/trezcool/academia/core/user"
)

const (
	maxLoggedBodySize = 2 << 10
	redacted          = "[redacted]"
)

// routes whose request bodies never reach the logs
var secretBodyRoutes = []string{
	"/v1/users/login",
	"/v1/users/password-reset-confirm",
	"/v1/users/token-refresh",
	"/v1/files",
}

func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// permissionChecker guards routes with the permission service.
type permissionChecker struct {
	perms permission.ServiceInterface
	users user.ServiceInterface
}

func newPermissionChecker(perms permission.ServiceInterface, users user.ServiceInterface) *permissionChecker {
	return &permissionChecker{perms: perms, users: users}
}

func (pc *permissionChecker) allowed(ctx echo.Context, resource, action string) (bool, error) {
	usr, err := getContextUser(ctx, pc.users)
	if err != nil {
		return false, errors.Wrap(err, "getting context user")
	}
	ok, err := pc.perms.IsAllowed(ctx.Request().Context(), usr, resource, action)
	if err != nil {
		return false, errors.Wrap(err, "checking permission")
	}
	return ok, nil
}

func (pc *permissionChecker) require(resource, action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ok, err := pc.allowed(ctx, resource, action)
			if err != nil {
				return err
			}
			if !ok {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}

// debugMiddleware logs the entry & exit of every handler.
// Password fields of logged bodies are redacted.
func debugMiddleware(logger core.Logger, tokens *auth.TokenService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			req := ctx.Request()
			start := time.Now()

			entry := map[string]interface{}{
				"method": req.Method,
				"route":  ctx.Path(),
				"params": pathParams(ctx),
				"query":  ctx.QueryString(),
			}
			if subject := bearerSubject(ctx, tokens); subject != "" {
				entry["subject"] = subject
			}
			if body := readBody(ctx); body != "" {
				entry["body"] = body
			}
			logger.Debug("handler entry", entry)

			err := next(ctx)
			if err != nil {
				ctx.Error(err) // commit the response to log its status
			}

			exit := map[string]interface{}{
				"method":  req.Method,
				"route":   ctx.Path(),
				"status":  ctx.Response().Status,
				"latency": time.Since(start).String(),
			}
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				exit["subject"] = claims.Subject
			}
			if err != nil {
				exit["error"] = err.Error()
			}
			logger.Debug("handler exit", exit)
			return nil
		}
	}
}

func pathParams(ctx echo.Context) map[string]string {
	names := ctx.ParamNames()
	if len(names) == 0 {
		return nil
	}
	params := make(map[string]string, len(names))
	for _, name := range names {
		params[name] = ctx.Param(name)
	}
	return params
}

// readBody returns the JSON body of the request and puts it back for the handler.
func readBody(ctx echo.Context) string {
	req := ctx.Request()
	if req.Body == nil || !strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		return ""
	}
	for _, route := range secretBodyRoutes {
		if strings.HasPrefix(req.URL.Path, route) {
			return ""
		}
	}

	data, err := io.ReadAll(req.Body)
	if err != nil {
		return ""
	}
	req.Body = io.NopCloser(bytes.NewReader(data))
	return redactBody(data)
}

// redactBody masks every field whose name holds "password". Bodies that are not JSON objects are dropped.
func redactBody(data []byte) string {
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return ""
	}
	for key := range fields {
		if strings.Contains(strings.ToLower(key), "password") {
			fields[key] = redacted
		}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return ""
	}
	if len(data) > maxLoggedBodySize {
		data = append(data[:maxLoggedBodySize:maxLoggedBodySize], "..."...)
	}
	return string(data)
}

// bearerSubject returns the subject of a valid bearer token, before the route's own auth runs.
func bearerSubject(ctx echo.Context, tokens *auth.TokenService) string {
	if tokens == nil {
		return ""
	}
	header := ctx.Request().Header.Get(echo.HeaderAuthorization)
	if !strings.HasPrefix(header, bearerPrefix) {
		return ""
	}
	claims, err := tokens.ParseAccessToken(strings.TrimPrefix(header, bearerPrefix))
	if err != nil {
		return ""
	}
	return claims.Subject
}
