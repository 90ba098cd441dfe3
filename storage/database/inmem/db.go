// Package inmemdb keeps every table in memory. It backs the service & HTTP tests.
package inmemdb

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/file"
	"github.com/trezcool/academia/core/notice"
	"github.com/trezcool/academia/core/permission"
	"github.com/trezcool/academia/core/popup"
	"github.com/trezcool/academia/core/question"
	"github.com/trezcool/academia/core/user"
)

type (
	DB struct {
		// txMu serializes units of work run through the Transactor.
		txMu sync.Mutex

		user         *table[user.User]
		course       *table[course.Course]
		registration *table[course.Registration]
		question     *table[question.Question]
		notice       *table[notice.Notice]
		popup        *table[popup.Popup]
		grant        *table[permission.Grant]
		file         *table[file.File]
	}

	table[T any] struct {
		mutex sync.RWMutex
		rows  map[string]T
	}
)

func newTable[T any]() *table[T] {
	return &table[T]{rows: make(map[string]T)}
}

func Open() *DB {
	return &DB{
		user:         newTable[user.User](),
		course:       newTable[course.Course](),
		registration: newTable[course.Registration](),
		question:     newTable[question.Question](),
		notice:       newTable[notice.Notice](),
		popup:        newTable[popup.Popup](),
		grant:        newTable[permission.Grant](),
		file:         newTable[file.File](),
	}
}

// Reset empties every table.
func (db *DB) Reset() {
	reset(db.user)
	reset(db.course)
	reset(db.registration)
	reset(db.question)
	reset(db.notice)
	reset(db.popup)
	reset(db.grant)
	reset(db.file)
}

func reset[T any](t *table[T]) {
	t.mutex.Lock()
	t.rows = make(map[string]T)
	t.mutex.Unlock()
}

// all returns the rows of t; callers must hold the lock.
func (t *table[T]) all() []T {
	rows := make([]T, 0, len(t.rows))
	for _, r := range t.rows {
		rows = append(rows, r)
	}
	return rows
}

// RunInTx runs fn alone; the in-memory tables have no rollback.
func (db *DB) RunInTx(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()
	return fn(nil)
}

var _ core.Transactor = (*DB)(nil)

// compareFunc compares two rows on one field: <0, 0 or >0.
type compareFunc[T any] func(a, b T) int

// sortRows sorts rows by ordering, falling back to defaultOrdering when ordering is empty.
// Orderings on fields without a compareFunc are ignored.
func sortRows[T any](rows []T, ordering []core.DBOrdering, fields map[string]compareFunc[T], defaultOrdering ...core.DBOrdering) {
	if len(ordering) == 0 {
		ordering = defaultOrdering
	}
	if len(ordering) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, ord := range ordering {
			cmp, ok := fields[ord.Field]
			if !ok {
				continue
			}
			c := cmp(rows[i], rows[j])
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

func compareStrings(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

func compareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareBools(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func paginate[T any](rows []T, page core.Page) []T {
	offset := page.Offset()
	if offset >= len(rows) {
		return []T{}
	}
	end := offset + page.Size
	if page.Size <= 0 || end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}
