package schemaless

import (
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

// InMemory is the location marker that opens a transient in-memory database.
const InMemory = ":memory:"

// DB owns one storage session, the KeySpaces declared against it, and the
// event bus that dispatches change signals. Multiple DB instances in one
// process never share handler state.
//
// A DB serializes its writes. Operations issued while an Atomic block is
// executing join that block's transaction, mirroring a single shared
// connection; do not issue operations from other goroutines during Atomic.
type DB struct {
	store   storage
	events  *eventBus
	logf    func(format string, args ...any)
	verbose bool

	keyspacesMu sync.Mutex
	keyspaces   []*KeySpace

	opMu    sync.Mutex // serializes write transactions
	curMu   sync.Mutex
	current *Tx
}

type Options struct {
	Logf      func(format string, args ...any)
	Verbose   bool
	IsTesting bool
	MmapSize  int
}

// Open opens or creates the database at path. Pass InMemory for a transient
// in-memory database.
func Open(path string, opt Options) (*DB, error) {
	var store storage
	if path == InMemory {
		store = newMemStorage()
	} else {
		bopt := *bbolt.DefaultOptions
		bopt.Timeout = 10 * time.Second
		if opt.IsTesting {
			bopt.NoSync = true
			bopt.NoFreelistSync = true
			bopt.InitialMmapSize = 1024 * 1024 * 5
		} else {
			bopt.InitialMmapSize = 1024 * 1024 * 1024
			bopt.FreelistType = bbolt.FreelistMapType
		}
		if opt.MmapSize != 0 {
			bopt.InitialMmapSize = opt.MmapSize
		}

		bdb, err := bbolt.Open(path, 0666, &bopt)
		if err != nil {
			return nil, fmt.Errorf("schemaless: %w", err)
		}
		store = newBoltStorage(bdb)
	}

	logf := opt.Logf
	if logf == nil {
		logf = func(format string, args ...any) {}
	}

	return &DB{
		store:   store,
		events:  newEventBus(),
		logf:    logf,
		verbose: opt.Verbose,
	}, nil
}

func (db *DB) Close() {
	err := db.store.Close()
	if err != nil {
		panic(fmt.Errorf("schemaless: closing: %w", err))
	}
}

// KeySpace declares a named logical table and binds the given indexes to it.
// Declaring the same name again (say, after reopening the storage location)
// reattaches to the same durable buckets; the Index objects themselves must
// be fresh, an Index cannot be rebound.
func (db *DB) KeySpace(name string, indexes ...*Index) *KeySpace {
	buck := cleanName(name)
	if buck == "" {
		panic(fmt.Errorf("schemaless: keyspace name %q sanitizes to an empty identifier", name))
	}
	ks := &KeySpace{db: db, name: name, buck: buck}
	seen := make(map[string]bool, len(indexes))
	for _, idx := range indexes {
		idx.bind(ks)
		if seen[idx.buck] {
			panic(fmt.Errorf("schemaless: keyspace %s already has index %s", name, idx.buck))
		}
		seen[idx.buck] = true
		ks.indexes = append(ks.indexes, idx)
	}

	db.keyspacesMu.Lock()
	db.keyspaces = append(db.keyspaces, ks)
	db.keyspacesMu.Unlock()
	return ks
}

// Atomic executes f inside one writable transaction: every operation issued
// from within f joins it, and all effects (writes, index maintenance, event
// signals) become visible together or not at all. Nested calls join the
// enclosing transaction. A non-nil error (or a panic) rolls everything back.
func (db *DB) Atomic(f func() error) error {
	db.curMu.Lock()
	cur := db.current
	db.curMu.Unlock()
	if cur != nil {
		return f()
	}

	db.opMu.Lock()
	defer db.opMu.Unlock()
	stx, err := db.store.BeginTx(true)
	if err != nil {
		return err
	}
	tx := &Tx{db: db, stx: stx}
	db.setCurrent(tx)
	err = safelyCall0(f)
	db.setCurrent(nil)
	if err != nil {
		stx.Rollback()
		return err
	}
	if !tx.written {
		return stx.Rollback()
	}
	return stx.Commit()
}

func (db *DB) setCurrent(tx *Tx) {
	db.curMu.Lock()
	db.current = tx
	db.curMu.Unlock()
}
