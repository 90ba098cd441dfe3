package file

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

var (
	ErrNotFound = core.NewNotFoundError("file")

	errFileRequired   = "a file is required"
	errTypeNotAllowed = "file type is not allowed"
)

type File struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	StorageKey  string    `json:"-"`
	URL         string    `json:"url"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

// CanAccess reports whether usr may read or delete the file.
func (f File) CanAccess(usr user.User) bool {
	return f.OwnerID == usr.ID || usr.IsAdmin()
}

// StoredObject is what the remote storage returns for an upload.
type StoredObject struct {
	Key  string
	URL  string
	Size int64
}

// Upload describes a file received from a client.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
}

type (
	// Storage is the remote file storage.
	Storage interface {
		Upload(ctx context.Context, name, contentType string, r io.Reader) (StoredObject, error)
		Delete(ctx context.Context, key string) error
		URL(key string) string
	}

	Repository interface {
		CreateFile(ctx context.Context, f File, exec ...core.DBExecutor) (File, error)
		GetFile(ctx context.Context, id string, exec ...core.DBExecutor) (File, error)
		// QueryFiles returns the files of ownerID, or all files when ownerID is empty, newest first.
		QueryFiles(ctx context.Context, ownerID string, page core.Page, exec ...core.DBExecutor) ([]File, error)
		DeleteFile(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	ServiceInterface interface {
		Upload(ctx context.Context, owner user.User, up Upload) (File, error)
		GetByID(ctx context.Context, id string) (File, error)
		Query(ctx context.Context, ownerID string, page core.Page) ([]File, error)
		Delete(ctx context.Context, f File) error
	}

	Service struct {
		repo         Repository
		storage      Storage
		maxSize      int64
		allowedTypes []string
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository, storage Storage, conf *core.Config) *Service {
	return &Service{
		repo:         repo,
		storage:      storage,
		maxSize:      conf.FileStore.MaxFileSize,
		allowedTypes: conf.FileStore.AllowedTypes,
	}
}

// typeAllowed matches contentType against the allowed list; "image/*" allows every image type.
func (svc *Service) typeAllowed(contentType string) bool {
	if len(svc.allowedTypes) == 0 {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	for _, allowed := range svc.allowedTypes {
		if allowed == mediaType {
			return true
		}
		if strings.HasSuffix(allowed, "/*") && strings.HasPrefix(mediaType, strings.TrimSuffix(allowed, "*")) {
			return true
		}
	}
	return false
}

// Upload streams up to the remote storage and records its metadata.
func (svc *Service) Upload(ctx context.Context, owner user.User, up Upload) (File, error) {
	if up.Content == nil || up.Size == 0 {
		return File{}, core.NewValidationError(nil, core.FieldError{Field: "file", Error: errFileRequired})
	}
	if svc.maxSize > 0 && up.Size > svc.maxSize {
		return File{}, core.NewValidationError(nil, core.FieldError{
			Field: "file",
			Error: fmt.Sprintf("file size cannot exceed %d bytes", svc.maxSize),
		})
	}
	if up.ContentType == "" {
		up.ContentType = mime.TypeByExtension(filepath.Ext(up.Name))
	}
	if !svc.typeAllowed(up.ContentType) {
		return File{}, core.NewValidationError(nil, core.FieldError{Field: "file", Error: errTypeNotAllowed})
	}

	name := filepath.Base(core.CleanString(up.Name))
	obj, err := svc.storage.Upload(ctx, name, up.ContentType, up.Content)
	if err != nil {
		return File{}, errors.Wrap(err, "uploading file")
	}

	size := obj.Size
	if size == 0 {
		size = up.Size
	}
	url := obj.URL
	if url == "" {
		url = svc.storage.URL(obj.Key)
	}
	f, err := svc.repo.CreateFile(ctx, File{
		OwnerID:     owner.ID,
		Name:        name,
		ContentType: up.ContentType,
		Size:        size,
		StorageKey:  obj.Key,
		URL:         url,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		// no record points at the remote object anymore
		if dErr := svc.storage.Delete(ctx, obj.Key); dErr != nil {
			return File{}, errors.Wrapf(err, "recording file (remote object %s left behind: %v)", obj.Key, dErr)
		}
		return File{}, errors.Wrap(err, "recording file")
	}
	return f, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (File, error) {
	return svc.repo.GetFile(ctx, id)
}

func (svc *Service) Query(ctx context.Context, ownerID string, page core.Page) ([]File, error) {
	page.Clean()
	return svc.repo.QueryFiles(ctx, ownerID, page)
}

// Delete removes the remote object first, then the local record.
func (svc *Service) Delete(ctx context.Context, f File) error {
	if err := svc.storage.Delete(ctx, f.StorageKey); err != nil {
		return errors.Wrap(err, "deleting remote file")
	}
	return svc.repo.DeleteFile(ctx, f.ID)
}
