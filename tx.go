package schemaless

import (
	"fmt"
	"runtime/debug"
)

// Tx wraps one storage transaction.
type Tx struct {
	db      *DB
	stx     storageTx
	written bool
}

// markWritten records that the transaction dirtied storage; a write
// transaction that stays clean is released without committing.
func (tx *Tx) markWritten() {
	tx.written = true
}

// bucket resolves a KeySpace's bucket, reporting ErrKeySpaceNotCreated when
// the storage has not been provisioned.
func (tx *Tx) bucket(ks *KeySpace, sub string) (storageBucket, error) {
	b := tx.stx.Bucket(ks.buck, sub)
	if b == nil {
		return nil, keyspaceErrf(ks.buck, "", ErrKeySpaceNotCreated, "")
	}
	return b, nil
}

// runWrite executes f within the enclosing transaction if one is open
// (inside Atomic or a handler's write), otherwise within a fresh writable
// transaction committed on success and rolled back on error or panic.
func (db *DB) runWrite(f func(tx *Tx) error) error {
	db.curMu.Lock()
	cur := db.current
	db.curMu.Unlock()
	if cur != nil {
		return safelyCall(f, cur)
	}

	db.opMu.Lock()
	defer db.opMu.Unlock()
	stx, err := db.store.BeginTx(true)
	if err != nil {
		return err
	}
	tx := &Tx{db: db, stx: stx}
	db.setCurrent(tx)
	err = safelyCall(f, tx)
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

// runRead executes f within the enclosing transaction if one is open,
// otherwise within a fresh read-only transaction released before returning.
func (db *DB) runRead(f func(tx *Tx) error) error {
	tx, owned, err := db.beginRead()
	if err != nil {
		return err
	}
	if owned {
		defer tx.stx.Rollback()
	}
	return f(tx)
}

// beginRead returns the enclosing transaction (owned=false) or a fresh
// read-only transaction the caller must roll back (owned=true). Lazy
// iterators use it directly so they can hold the transaction open across
// Next calls.
func (db *DB) beginRead() (tx *Tx, owned bool, err error) {
	db.curMu.Lock()
	cur := db.current
	db.curMu.Unlock()
	if cur != nil {
		return cur, false, nil
	}
	stx, err := db.store.BeginTx(false)
	if err != nil {
		return nil, false, err
	}
	return &Tx{db: db, stx: stx}, true, nil
}

type panicked struct {
	reason interface{}
	stack  string
}

func (p panicked) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", p.reason, p.stack)
}

func safelyCall(fn func(*Tx) error, tx *Tx) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicked{p, string(debug.Stack())}
		}
	}()
	return fn(tx)
}

func safelyCall0(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicked{p, string(debug.Stack())}
		}
	}()
	return fn()
}
