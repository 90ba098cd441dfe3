// Package sqlxrepos implements the core repositories on sqlx & squirrel. It runs on postgres and sqlite.
package sqlxrepos

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/storage/database"
)

// repository holds what every table repository needs.
type repository struct {
	exec core.DBExecutor
	sb   sq.StatementBuilderType
	// rowLocks is set on engines that take row locks; sqlite transactions start immediate and hold the write lock.
	rowLocks bool
}

func newRepository(db *sqlx.DB) repository {
	return repository{
		exec:     db,
		sb:       sq.StatementBuilder.PlaceholderFormat(database.Placeholder(db.DriverName())),
		rowLocks: sqlx.BindType(db.DriverName()) == sqlx.DOLLAR,
	}
}

// forUpdate locks the selected rows until the end of the transaction.
func (repo repository) forUpdate(b sq.SelectBuilder) sq.SelectBuilder {
	if repo.rowLocks {
		return b.Suffix("FOR UPDATE")
	}
	return b
}

// advisoryLock takes a transaction scoped lock on key.
func (repo repository) advisoryLock(ctx context.Context, exec core.DBExecutor, key string) error {
	if !repo.rowLocks {
		return nil
	}
	_, err := exec.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", key)
	return err
}

func (repo repository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

func (repo repository) get(ctx context.Context, exec core.DBExecutor, dest interface{}, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.GetContext(ctx, exec, dest, query, args...)
}

func (repo repository) selectAll(ctx context.Context, exec core.DBExecutor, dest interface{}, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.SelectContext(ctx, exec, dest, query, args...)
}

// execute runs b and returns the number of affected rows.
func (repo repository) execute(ctx context.Context, exec core.DBExecutor, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	res, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// trapNoRowsErr maps the "no rows" err to notFound
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// orderBy renders ordering on the allowed columns only, falling back to defaultOrdering.
func orderBy(ordering []core.DBOrdering, allowed []string, defaultOrdering ...core.DBOrdering) []string {
	ordering = core.FilterOrdering(ordering, allowed...)
	if len(ordering) == 0 {
		ordering = defaultOrdering
	}
	clauses := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		clauses = append(clauses, ord.String())
	}
	return clauses
}

// like matches column against the search keyword, case-insensitively.
func like(column, search string) sq.Sqlizer {
	return sq.Expr("LOWER("+column+") LIKE ?", "%"+strings.ToLower(search)+"%")
}

func pageOf(b sq.SelectBuilder, page core.Page) sq.SelectBuilder {
	if page.Size > 0 {
		b = b.Limit(uint64(page.Size)).Offset(uint64(page.Offset()))
	}
	return b
}

// nullTime stores zero times as NULL.
func nullTime(t time.Time) null.Time {
	return null.NewTime(t.UTC(), !t.IsZero())
}

func utc(t null.Time) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

// jsonList is a list column stored as a JSON array.
type jsonList[T any] []T

func (l jsonList[T]) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]T(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *jsonList[T]) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return errors.Errorf("cannot scan %T into a JSON list", src)
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return errors.Wrap(err, "decoding JSON list")
	}
	*l = items
	return nil
}

// roleList stores roles as ",role1,role2," so that role prefixes can be matched with LIKE.
type roleList []string

func (l roleList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "", nil
	}
	return "," + strings.Join(l, ",") + ",", nil
}

func (l *roleList) Scan(src interface{}) error {
	var s string
	switch v := src.(type) {
	case nil:
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return errors.Errorf("cannot scan %T into roles", src)
	}
	s = strings.Trim(s, ",")
	if s == "" {
		*l = []string{}
		return nil
	}
	*l = strings.Split(s, ",")
	return nil
}
