// Package testutil holds fixtures shared by the tests of several packages.
package testutil

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/file"
	"github.com/trezcool/academia/core/user"
)

const DefaultPassword = "Pwd.123456"

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		require.NoError(t, usr.SetPassword(pwd), "createUser()")
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	require.NoError(t, err, "createUser()")
	return usr
}

// CreateActiveUser creates an active user named after uname with DefaultPassword.
func CreateActiveUser(t *testing.T, repo user.Repository, uname string, roles ...string) user.User {
	t.Helper()
	return CreateUser(t, repo, uname, uname, uname+"@example.com", DefaultPassword, roles, true)
}

// CreateCourse creates a course open for registration since an hour ago.
func CreateCourse(t *testing.T, repo course.Repository, code, teacherID string, capacity int) course.Course {
	t.Helper()
	now := time.Now().UTC()
	c, err := repo.CreateCourse(context.Background(), course.Course{
		Code:                code,
		Title:               "Course " + code,
		TeacherID:           teacherID,
		Capacity:            capacity,
		RegistrationOpensAt: now.Add(-time.Hour),
		CreatedAt:           now,
		UpdatedAt:           now,
	})
	require.NoError(t, err, "createCourse()")
	return c
}

type LogEntry struct {
	Level   string
	Message string
	Args    []interface{}
}

// Logger records every entry; it is safe for concurrent use.
type Logger struct {
	mu      sync.Mutex
	entries []LogEntry
}

var _ core.Logger = (*Logger)(nil)

func NewLogger() *Logger {
	return &Logger{}
}

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	l.entries = append(l.entries, LogEntry{Level: level, Message: msg, Args: args})
	l.mu.Unlock()
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("error", msg, args) }

func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.log("fatal", msg, args)
	panic(fmt.Sprintf("fatal: %s", msg))
}

func (l *Logger) Entries(level ...string) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	res := make([]LogEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if len(level) == 0 || e.Level == level[0] {
			res = append(res, e)
		}
	}
	return res
}

func (l *Logger) Reset() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

// Cache is a map backed core.Cache; it ignores TTLs and counts reads that hit.
type Cache struct {
	mu    sync.Mutex
	items map[string]interface{}
	Hits  int
}

var _ core.Cache = (*Cache)(nil)

func NewCache() *Cache {
	return &Cache{items: make(map[string]interface{})}
}

func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	val, ok := c.items[key]
	if ok {
		c.Hits++
	}
	return val, ok
}

func (c *Cache) Set(key string, value interface{}, _ time.Duration) {
	c.mu.Lock()
	c.items[key] = value
	c.mu.Unlock()
}

func (c *Cache) Del(keys ...string) {
	c.mu.Lock()
	for _, key := range keys {
		delete(c.items, key)
	}
	c.mu.Unlock()
}

func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

// Storage is an in-memory file.Storage.
type Storage struct {
	mu      sync.Mutex
	objects map[string][]byte
	seq     int
	Err     error // returned by every call when set
}

var _ file.Storage = (*Storage)(nil)

func NewStorage() *Storage {
	return &Storage{objects: make(map[string][]byte)}
}

func (s *Storage) Upload(ctx context.Context, name, contentType string, r io.Reader) (file.StoredObject, error) {
	if s.Err != nil {
		return file.StoredObject{}, s.Err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return file.StoredObject{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	key := fmt.Sprintf("%d/%s", s.seq, name)
	s.objects[key] = data
	return file.StoredObject{Key: key, Size: int64(len(data))}, nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

func (s *Storage) URL(key string) string {
	return "http://filestore.test/" + key
}

// Object returns the content stored under key.
func (s *Storage) Object(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	return data, ok
}
