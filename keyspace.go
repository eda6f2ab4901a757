package schemaless

import (
	"bytes"
	"slices"
	"sort"
	"time"
)

const logBucket = "log"

// KeySpace is a named logical table: an append-only log of (rowKey, column,
// value) versions plus the projections of its bound indexes.
type KeySpace struct {
	db      *DB
	name    string
	buck    string
	indexes []*Index
}

func (ks *KeySpace) Name() string { return ks.name }

// Create provisions storage for the keyspace and its indexes. Creating an
// already-created keyspace is a no-op.
func (ks *KeySpace) Create() error {
	return ks.db.runWrite(func(tx *Tx) error {
		if _, err := tx.stx.CreateBucket(ks.buck, logBucket); err != nil {
			return err
		}
		for _, idx := range ks.indexes {
			if _, err := tx.stx.CreateBucket(ks.buck, idx.buck); err != nil {
				return err
			}
		}
		tx.markWritten()
		return nil
	})
}

// Drop removes the keyspace's storage, including all log entries and index
// projections. Dropping a keyspace that doesn't exist is a no-op; Create can
// re-provision it afterwards.
func (ks *KeySpace) Drop() error {
	return ks.db.runWrite(func(tx *Tx) error {
		err := tx.stx.DeleteBucket(ks.buck, "")
		if err == ErrBucketNotFound {
			return nil
		}
		if err == nil {
			tx.markWritten()
		}
		return err
	})
}

// Row returns a handle to the row with the given key. The handle is lazy: no
// storage access happens until a column is read or written.
func (ks *KeySpace) Row(rowKey int64) *Row {
	return &Row{ks: ks, key: rowKey}
}

// CreateRow returns a fresh row and stores the given columns in one
// transaction. With no columns, the row stays unsaved and gets its key on
// the first Set.
func (ks *KeySpace) CreateRow(columns map[string]any) (*Row, error) {
	row := &Row{ks: ks}
	if len(columns) > 0 {
		if err := row.MultiSet(columns); err != nil {
			return nil, err
		}
	}
	return row, nil
}

// GetRow loads the current version of every column of the row. A row that
// was never written (or fully deleted) comes back with no cached columns.
func (ks *KeySpace) GetRow(rowKey int64) (*Row, error) {
	row := &Row{ks: ks, key: rowKey}
	err := ks.db.runRead(func(tx *Tx) error {
		data, err := ks.loadRow(tx, rowKey, nil)
		if err != nil {
			return err
		}
		row.data = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// All returns a lazy full scan over the keyspace's rows in rowKey order,
// with every column at its current version.
func (ks *KeySpace) All() *Rows {
	return &Rows{ks: ks}
}

// Atomic is a convenience alias for DB.Atomic.
func (ks *KeySpace) Atomic(f func() error) error {
	return ks.db.Atomic(f)
}

// Handler binds fn to every column write in this keyspace; the written
// column arrives as an argument, handlers filter themselves. See HandlerFunc
// for dispatch semantics.
func (ks *KeySpace) Handler(fn HandlerFunc) *Subscription {
	return ks.db.events.bind(ks.buck, fn)
}

// EntryCount returns the total number of log entries, counting every stored
// version (useful to observe that writes append rather than overwrite).
func (ks *KeySpace) EntryCount() (int, error) {
	var n int
	err := ks.db.runRead(func(tx *Tx) error {
		lb, err := tx.bucket(ks, logBucket)
		if err != nil {
			return err
		}
		c := lb.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// allocateRowKey hands out the next row key from the keyspace's persisted
// counter. Keys are never reused, even after deletion.
func (ks *KeySpace) allocateRowKey(tx *Tx) (int64, error) {
	root, err := tx.bucket(ks, "")
	if err != nil {
		return 0, err
	}
	seq, err := root.NextSequence()
	if err != nil {
		return 0, err
	}
	return int64(seq), nil
}

// append stores a new version of (rowKey, column), updates the indexes bound
// to the column, and dispatches change handlers, all within tx. The value
// handed to indexes and handlers is the canonical decoded form, so index
// contents do not depend on the caller's Go types.
func (ks *KeySpace) append(tx *Tx, rowKey int64, column string, value any) error {
	lb, err := tx.bucket(ks, logBucket)
	if err != nil {
		return err
	}
	seq, err := lb.NextSequence()
	if err != nil {
		return err
	}
	raw := encodeEntry(nil, time.Now().UnixNano(), value)
	ensure(lb.Put(entryKey(rowKey, column, seq), raw))
	tx.markWritten()
	if ks.db.verbose {
		ks.db.logf("db: APPEND %s/%d.%s", ks.buck, rowKey, column)
	}

	var canonical any
	var decoded bool
	canonicalValue := func() (any, error) {
		if !decoded {
			_, v, err := decodeEntry(raw)
			if err != nil {
				return nil, err
			}
			canonical, decoded = v, true
		}
		return canonical, nil
	}

	for _, idx := range ks.indexes {
		if idx.column != column {
			continue
		}
		v, err := canonicalValue()
		if err != nil {
			return err
		}
		if err := idx.update(tx, rowKey, v); err != nil {
			return err
		}
	}

	if ks.db.events.hasHandlers(ks.buck) {
		v, err := canonicalValue()
		if err != nil {
			return err
		}
		if err := ks.db.events.dispatch(ks.buck, rowKey, column, v); err != nil {
			return err
		}
	}
	return nil
}

// latestEntry returns the current version of one column, or found=false if
// the column has never been written (or was deleted).
func (ks *KeySpace) latestEntry(tx *Tx, rowKey int64, column string) (value any, found bool, err error) {
	lb, err := tx.bucket(ks, logBucket)
	if err != nil {
		return nil, false, err
	}
	prefix := entryPrefix(rowKey, column)
	k, v := lb.Cursor().SeekLast(prefix)
	if k == nil || !bytes.HasPrefix(k, prefix) {
		return nil, false, nil
	}
	_, value, err = decodeEntry(v)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// loadRow returns the current version of the row's columns. A nil filter
// loads everything; otherwise only the listed columns are loaded, and
// columns with no entries are simply absent from the result.
func (ks *KeySpace) loadRow(tx *Tx, rowKey int64, columns []string) (map[string]any, error) {
	lb, err := tx.bucket(ks, logBucket)
	if err != nil {
		return nil, err
	}
	var filter map[string]bool
	if columns != nil {
		filter = make(map[string]bool, len(columns))
		for _, col := range columns {
			filter[col] = true
		}
	}

	// Entries of one (rowKey, column) run are ordered by sequence, so the
	// last raw value of each run is the current version.
	result := make(map[string]any)
	var curCol string
	var curRaw []byte
	flush := func() error {
		if curRaw == nil {
			return nil
		}
		_, v, err := decodeEntry(curRaw)
		if err != nil {
			return err
		}
		result[curCol] = v
		curRaw = nil
		return nil
	}

	prefix := rowKeyPrefix(rowKey)
	c := lb.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		_, col, _, err := parseEntryKey(k)
		if err != nil {
			return nil, err
		}
		if filter != nil && !filter[col] {
			continue
		}
		if col != curCol {
			if err := flush(); err != nil {
				return nil, err
			}
			curCol = col
		}
		curRaw = v
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return result, nil
}

// deleteColumns removes every stored version of the given columns and the
// projections of indexes bound to them. Projections of indexes bound to
// other columns stay.
func (ks *KeySpace) deleteColumns(tx *Tx, rowKey int64, columns []string) error {
	lb, err := tx.bucket(ks, logBucket)
	if err != nil {
		return err
	}
	for _, col := range columns {
		prefix := entryPrefix(rowKey, col)
		var keys [][]byte
		c := lb.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, slices.Clone(k))
		}
		for _, k := range keys {
			ensure(lb.Delete(k))
		}
		if len(keys) > 0 {
			tx.markWritten()
		}
		for _, idx := range ks.indexes {
			if idx.column != col {
				continue
			}
			if err := idx.remove(tx, rowKey); err != nil {
				return err
			}
		}
	}
	if ks.db.verbose {
		ks.db.logf("db: DELETE %s/%d.%v", ks.buck, rowKey, columns)
	}
	return nil
}

// deleteRow removes every stored version of every column of the row and all
// of its index projections.
func (ks *KeySpace) deleteRow(tx *Tx, rowKey int64) error {
	lb, err := tx.bucket(ks, logBucket)
	if err != nil {
		return err
	}
	prefix := rowKeyPrefix(rowKey)
	var keys [][]byte
	c := lb.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		keys = append(keys, slices.Clone(k))
	}
	for _, k := range keys {
		ensure(lb.Delete(k))
	}
	for _, idx := range ks.indexes {
		if err := idx.remove(tx, rowKey); err != nil {
			return err
		}
	}
	tx.markWritten()
	if ks.db.verbose {
		ks.db.logf("db: DELETE %s/%d", ks.buck, rowKey)
	}
	return nil
}

func sortedColumns(columns map[string]any) []string {
	cols := make([]string, 0, len(columns))
	for col := range columns {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}
