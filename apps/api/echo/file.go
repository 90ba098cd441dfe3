package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/file"
	"github.com/trezcool/academia/core/user"
)

const fileFormField = "file"

type fileApi struct {
	svc   file.ServiceInterface
	users user.ServiceInterface
}

func registerFileAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := fileApi{svc: deps.FileSvc, users: deps.UserSvc}

	fg := g.Group("/files", jwt)
	fg.POST("", api.upload)
	fg.GET("", api.query)
	fg.GET("/:id", api.retrieve)
	fg.DELETE("/:id", api.destroy)
}

// accessibleFile finds the file of the `:id` path param; files of other users are not found.
func (api *fileApi) accessibleFile(ctx echo.Context) (file.File, error) {
	f, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if core.IsNotFound(err) {
			return file.File{}, errHttpNotFound
		}
		return file.File{}, errors.Wrap(err, "finding file by ID")
	}
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return file.File{}, errors.Wrap(err, "getting context user")
	}
	if !f.CanAccess(usr) {
		return file.File{}, errHttpNotFound
	}
	return f, nil
}

// Handlers

func (api *fileApi) upload(ctx echo.Context) error {
	header, err := ctx.FormFile(fileFormField)
	if err != nil {
		if errors.Cause(err) == http.ErrMissingFile {
			return core.NewValidationError(nil, core.FieldError{Field: fileFormField, Error: "a file is required"})
		}
		return errors.Wrap(err, "reading multipart file")
	}
	src, err := header.Open()
	if err != nil {
		return errors.Wrap(err, "opening multipart file")
	}
	defer src.Close()

	contentType := header.Header.Get(echo.HeaderContentType)
	if contentType == echo.MIMEOctetStream {
		contentType = "" // let the service guess from the name
	}

	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	f, err := api.svc.Upload(ctx.Request().Context(), usr, file.Upload{
		Name:        header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Content:     src,
	})
	if err != nil {
		return errors.Wrap(err, "uploading file")
	}
	return ctx.JSON(http.StatusCreated, f)
}

func (api *fileApi) query(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	ownerID := usr.ID
	if usr.IsAdmin() {
		ownerID = core.CleanString(ctx.QueryParam("owner_id"))
	}

	files, err := api.svc.Query(ctx.Request().Context(), ownerID, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying files")
	}
	if files == nil {
		files = []file.File{}
	}
	return ctx.JSON(http.StatusOK, files)
}

func (api *fileApi) retrieve(ctx echo.Context) error {
	f, err := api.accessibleFile(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, f)
}

func (api *fileApi) destroy(ctx echo.Context) error {
	f, err := api.accessibleFile(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), f); err != nil {
		return errors.Wrap(err, "deleting file")
	}
	return ctx.NoContent(http.StatusNoContent)
}
