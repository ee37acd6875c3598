package inmemdb

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/user"
)

// DB keeps every table behind a single lock, so each repository call is atomic.
type DB struct {
	sync.RWMutex
	users      map[string]*user.User
	courses    map[string]*course.Course
	activities map[string]*course.Activity
	grades     map[string]*course.Grade
}

var _ core.Transactor = (*DB)(nil) // interface compliance check

func Open() *DB {
	return &DB{
		users:      make(map[string]*user.User),
		courses:    make(map[string]*course.Course),
		activities: make(map[string]*course.Activity),
		grades:     make(map[string]*course.Grade),
	}
}

// WithTransaction runs fn as is: each repository call is atomic but the sequence is not.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Flush empties every table.
func (db *DB) Flush() {
	db.Lock()
	defer db.Unlock()
	db.users = make(map[string]*user.User)
	db.courses = make(map[string]*course.Course)
	db.activities = make(map[string]*course.Activity)
	db.grades = make(map[string]*course.Grade)
}

func copyStrings(s []string) []string {
	return append(make([]string, 0, len(s)), s...)
}

func addString(s []string, v string) ([]string, bool) {
	if core.ContainsString(s, v) {
		return s, false
	}
	return append(s, v), true
}

func pullString(s []string, v string) ([]string, bool) {
	for i, elt := range s {
		if elt == v {
			return append(s[:i:i], s[i+1:]...), true
		}
	}
	return s, false
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// sortable formats times so that they sort lexically.
func sortable(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000")
}

// orderBy sorts n records by ordering. IDs break ties so results are stable.
func orderBy(n int, ordering []core.DBOrdering, field func(i int, name string) string, swap func(i, j int)) {
	sort.Sort(&sorter{n: n, ordering: ordering, field: field, swap: swap})
}

type sorter struct {
	n        int
	ordering []core.DBOrdering
	field    func(i int, name string) string
	swap     func(i, j int)
}

func (s *sorter) Len() int      { return s.n }
func (s *sorter) Swap(i, j int) { s.swap(i, j) }
func (s *sorter) Less(i, j int) bool {
	for _, ord := range s.ordering {
		a, b := s.field(i, ord.Field), s.field(j, ord.Field)
		if a == b {
			continue
		}
		if ord.Ascending {
			return a < b
		}
		return a > b
	}
	return s.field(i, "id") < s.field(j, "id")
}
