package inmemdb

import (
	"context"
	"sync"

	"github.com/trezcool/schoolsys/core"
	"github.com/trezcool/schoolsys/core/assignment"
	"github.com/trezcool/schoolsys/core/course"
	"github.com/trezcool/schoolsys/core/user"
)

// DB is an in-memory store. Every repository built on the same DB shares its tables & lock.
type DB struct {
	mu          sync.RWMutex
	users       map[string]user.User
	courses     map[string]course.Course
	assignments map[string]assignment.Assignment
	submissions map[string]assignment.Submission
}

func NewDB() *DB {
	return &DB{
		users:       make(map[string]user.User),
		courses:     make(map[string]course.Course),
		assignments: make(map[string]assignment.Assignment),
		submissions: make(map[string]assignment.Submission),
	}
}

type journalKey struct{}

// journal records how to undo the writes made in a transaction.
type journal struct {
	mu   sync.Mutex
	undo []func()
}

type transactor struct {
	db *DB
}

var _ core.Transactor = (*transactor)(nil)

func NewTransactor(db *DB) core.Transactor {
	return &transactor{db: db}
}

// RunInTx runs fn; if it fails, the writes made through ctx are undone in reverse order.
// Nested calls join the outer transaction.
func (t *transactor) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(journalKey{}).(*journal); ok {
		return fn(ctx)
	}

	j := new(journal)
	if err := fn(context.WithValue(ctx, journalKey{}, j)); err != nil {
		t.db.mu.Lock()
		defer t.db.mu.Unlock()

		j.mu.Lock()
		defer j.mu.Unlock()
		for i := len(j.undo) - 1; i >= 0; i-- {
			j.undo[i]()
		}
		return err
	}
	return nil
}

// record registers an undo func if ctx carries a transaction. The DB lock must be held.
func record(ctx context.Context, undo func()) {
	if j, ok := ctx.Value(journalKey{}).(*journal); ok {
		j.mu.Lock()
		j.undo = append(j.undo, undo)
		j.mu.Unlock()
	}
}

func copyStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return append(make([]string, 0, len(s)), s...)
}
