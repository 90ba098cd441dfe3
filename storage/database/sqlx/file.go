package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/file"
)

const filesTable = "files"

var fileColumns = []string{"id", "owner_id", "name", "content_type", "size", "storage_key", "url", "created_at"}

type fileRow struct {
	ID          string    `db:"id"`
	OwnerID     string    `db:"owner_id"`
	Name        string    `db:"name"`
	ContentType string    `db:"content_type"`
	Size        int64     `db:"size"`
	StorageKey  string    `db:"storage_key"`
	URL         string    `db:"url"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r fileRow) file() file.File {
	return file.File{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Name:        r.Name,
		ContentType: r.ContentType,
		Size:        r.Size,
		StorageKey:  r.StorageKey,
		URL:         r.URL,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

type fileRepository struct {
	repository
}

var _ file.Repository = (*fileRepository)(nil) // interface compliance check

func NewFileRepository(db *sqlx.DB) *fileRepository {
	return &fileRepository{repository: newRepository(db)}
}

func (repo fileRepository) CreateFile(ctx context.Context, f file.File, exec ...core.DBExecutor) (file.File, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.CreatedAt = f.CreatedAt.UTC()
	b := repo.sb.Insert(filesTable).Columns(fileColumns...).Values(
		f.ID, f.OwnerID, f.Name, f.ContentType, f.Size, f.StorageKey, f.URL, f.CreatedAt,
	)
	if _, err := repo.execute(ctx, repo.getExec(exec), b); err != nil {
		return file.File{}, errors.Wrap(err, "inserting file")
	}
	return f, nil
}

func (repo fileRepository) GetFile(ctx context.Context, id string, exec ...core.DBExecutor) (file.File, error) {
	var r fileRow
	b := repo.sb.Select(fileColumns...).From(filesTable).Where(sq.Eq{"id": id})
	if err := repo.get(ctx, repo.getExec(exec), &r, b); err != nil {
		return file.File{}, trapNoRowsErr(err, file.ErrNotFound, "finding file")
	}
	return r.file(), nil
}

// QueryFiles lists the newest files first; an empty ownerID lists every file.
func (repo fileRepository) QueryFiles(ctx context.Context, ownerID string, page core.Page, exec ...core.DBExecutor) ([]file.File, error) {
	b := repo.sb.Select(fileColumns...).From(filesTable)
	if ownerID != "" {
		b = b.Where(sq.Eq{"owner_id": ownerID})
	}
	b = pageOf(b.OrderBy("created_at DESC"), page)

	var rows []fileRow
	if err := repo.selectAll(ctx, repo.getExec(exec), &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying files")
	}
	files := make([]file.File, 0, len(rows))
	for _, r := range rows {
		files = append(files, r.file())
	}
	return files, nil
}

func (repo fileRepository) DeleteFile(ctx context.Context, id string, exec ...core.DBExecutor) error {
	cnt, err := repo.execute(ctx, repo.getExec(exec), repo.sb.Delete(filesTable).Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting file")
	}
	if cnt == 0 {
		return file.ErrNotFound
	}
	return nil
}
