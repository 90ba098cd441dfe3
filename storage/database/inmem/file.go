package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/file"
)

type fileRepository struct {
	db *table[file.File]
}

var _ file.Repository = (*fileRepository)(nil) // interface compliance check

func NewFileRepository(db *DB) *fileRepository {
	return &fileRepository{db: db.file}
}

func (repo *fileRepository) CreateFile(ctx context.Context, f file.File, _ ...core.DBExecutor) (file.File, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	repo.db.rows[f.ID] = f
	return f, nil
}

func (repo *fileRepository) GetFile(ctx context.Context, id string, _ ...core.DBExecutor) (file.File, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if f, ok := repo.db.rows[id]; ok {
		return f, nil
	}
	return file.File{}, file.ErrNotFound
}

func (repo *fileRepository) QueryFiles(ctx context.Context, ownerID string, page core.Page, _ ...core.DBExecutor) ([]file.File, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	files := make([]file.File, 0)
	for _, f := range repo.db.rows {
		if ownerID == "" || f.OwnerID == ownerID {
			files = append(files, f)
		}
	}
	sortRows(files, nil, map[string]compareFunc[file.File]{
		"created_at": func(a, b file.File) int { return compareTimes(a.CreatedAt, b.CreatedAt) },
	}, core.DBOrdering{Field: "created_at"})
	return paginate(files, page), nil
}

func (repo *fileRepository) DeleteFile(ctx context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.rows[id]; !ok {
		return file.ErrNotFound
	}
	delete(repo.db.rows, id)
	return nil
}
