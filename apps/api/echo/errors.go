package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/auth"
	"github.com/trezcool/academia/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errInvalidToken         = echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired jwt")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errInvalidRefreshToken  = echo.NewHTTPError(http.StatusUnauthorized, "invalid refresh token")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// authHTTPError maps the auth sentinel errors to their HTTP counterpart.
func authHTTPError(err error) error {
	switch err {
	case auth.ErrAuthenticationFailed:
		return errAuthenticationFailed
	case auth.ErrAccountDeactivated:
		return errAccountDeactivated
	case auth.ErrRefreshExpired:
		return errRefreshExpired
	case auth.ErrInvalidRefreshToken, auth.ErrRefreshTokenReused:
		return errInvalidRefreshToken
	}
	return err
}

// errorResponse maps err to a status code and a JSON-able message; ok is false for unexpected errors.
func errorResponse(err error, translator ut.Translator) (code int, message interface{}, ok bool) {
	cause := authHTTPError(errors.Cause(err))

	switch e := cause.(type) {
	case *echo.HTTPError:
		if e == middleware.ErrJWTMissing {
			return http.StatusUnauthorized, e.Message, true
		}
		if herr, isHTTP := e.Internal.(*echo.HTTPError); isHTTP {
			e = herr
		}
		return e.Code, e.Message, true
	case validator.ValidationErrors:
		fldErrs := make(map[string]string, len(e))
		for _, fe := range e {
			fldErrs[fe.Field()] = fe.Translate(translator)
		}
		return http.StatusBadRequest, fldErrs, true
	case *core.ValidationError:
		if fldErrs := e.FieldMap(); fldErrs != nil {
			return http.StatusBadRequest, fldErrs, true
		}
		return http.StatusBadRequest, e.Error(), true
	}

	switch {
	case core.IsNotFound(cause):
		return http.StatusNotFound, cause.Error(), true
	case core.IsPermissionDenied(cause):
		return http.StatusForbidden, cause.Error(), true
	}
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError), false
}

// newAppHTTPErrorHandler returns the echo.HTTPErrorHandler rendering our errors as JSON.
// Unexpected errors are logged along with the requesting user; a core shutdown error also triggers signalShutdown.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		code, message, ok := errorResponse(err, translator)
		if !ok {
			var usr user.User
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				usr = user.User{ID: claims.Subject, Username: claims.Username, Email: claims.Email}
			}
			logger.Error(http.StatusText(code), errors.Wrap(err, "handling request"), usr)
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		}
		if m, isStr := message.(string); isStr {
			message = echo.Map{"error": m}
		}
		if ctx.Response().Committed {
			return
		}

		if ctx.Request().Method == http.MethodHead {
			err = ctx.NoContent(code)
		} else {
			err = ctx.JSON(code, message)
		}
		if err != nil {
			ctx.Echo().Logger.Error(err)
		}
	}
}
