package inmemdb

import (
	"context"
	"sync"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/chat"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/user"
)

type pair struct{ a, b int }

type tables struct {
	seq map[string]int

	users        map[int]user.User
	chats        map[int]chat.Chat // without participants
	participants map[int]chat.Participant
	messages     map[int]chat.Message // with attachments
	courses      map[int]course.Course // without users & tags
	enrollments  map[pair]course.Enrollment // {course, user}
	courseTags   map[pair]struct{}          // {course, tag}
	tags         map[int]course.Tag
	modules      map[int]course.Module
	lessons      map[int]course.Lesson
	questions    map[int]course.Question // without answers
	answers      map[int]course.Answer
}

func newTables() tables {
	return tables{
		seq:          make(map[string]int),
		users:        make(map[int]user.User),
		chats:        make(map[int]chat.Chat),
		participants: make(map[int]chat.Participant),
		messages:     make(map[int]chat.Message),
		courses:      make(map[int]course.Course),
		enrollments:  make(map[pair]course.Enrollment),
		courseTags:   make(map[pair]struct{}),
		tags:         make(map[int]course.Tag),
		modules:      make(map[int]course.Module),
		lessons:      make(map[int]course.Lesson),
		questions:    make(map[int]course.Question),
		answers:      make(map[int]course.Answer),
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	res := make(map[K]V, len(m))
	for k, v := range m {
		res[k] = v
	}
	return res
}

func (t tables) clone() tables {
	return tables{
		seq:          copyMap(t.seq),
		users:        copyMap(t.users),
		chats:        copyMap(t.chats),
		participants: copyMap(t.participants),
		messages:     copyMap(t.messages),
		courses:      copyMap(t.courses),
		enrollments:  copyMap(t.enrollments),
		courseTags:   copyMap(t.courseTags),
		tags:         copyMap(t.tags),
		modules:      copyMap(t.modules),
		lessons:      copyMap(t.lessons),
		questions:    copyMap(t.questions),
		answers:      copyMap(t.answers),
	}
}

// DB is a process-local database. Every repository call locks the whole DB;
// transactions are serialized and rolled back by restoring a snapshot.
type DB struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	t    tables
}

func Open() *DB {
	return &DB{t: newTables()}
}

// nextID must be called with db.mu held.
func (db *DB) nextID(table string) int {
	db.t.seq[table]++
	return db.t.seq[table]
}

type transactor struct {
	db *DB
}

var _ core.Transactor = (*transactor)(nil) // interface compliance check

func NewTransactor(db *DB) core.Transactor {
	return &transactor{db: db}
}

// WithinTx runs fn; the in-memory repositories ignore the executor passed to fn.
func (tx *transactor) WithinTx(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	tx.db.txMu.Lock()
	defer tx.db.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx.db.mu.RLock()
	snapshot := tx.db.t.clone()
	tx.db.mu.RUnlock()

	if err := fn(nil); err != nil {
		tx.db.mu.Lock()
		tx.db.t = snapshot
		tx.db.mu.Unlock()
		return err
	}
	return nil
}
