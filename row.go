package schemaless

// Row is a handle to one row of a KeySpace, with a write-through column
// cache. A row created via CreateRow without columns has no key until the
// first Set allocates one.
//
// The cache is deliberately simple: once a column is read or written through
// this handle, the handle keeps returning the cached value even if other
// handles write newer versions. Use a fresh handle (or MultiGet) to observe
// them.
type Row struct {
	ks   *KeySpace
	key  int64
	data map[string]any
}

// Key returns the row's key, or 0 if the row hasn't been saved yet.
func (r *Row) Key() int64 { return r.key }

// Cached returns a copy of the columns this handle has seen.
func (r *Row) Cached() map[string]any {
	out := make(map[string]any, len(r.data))
	for col, v := range r.data {
		out[col] = v
	}
	return out
}

func (r *Row) cache(column string, value any) {
	if r.data == nil {
		r.data = make(map[string]any)
	}
	r.data[column] = value
}

// Get returns the current version of the column, nil if the column was never
// written. The result is cached on the handle, including nil.
func (r *Row) Get(column string) (any, error) {
	if r.data != nil {
		if v, ok := r.data[column]; ok {
			return v, nil
		}
	}
	if r.key == 0 {
		return nil, nil
	}
	var val any
	err := r.ks.db.runRead(func(tx *Tx) error {
		v, _, err := r.ks.latestEntry(tx, r.key, column)
		if err != nil {
			return err
		}
		val = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.cache(column, val)
	return val, nil
}

// Set appends a new version of the column, allocating the row's key first if
// needed.
func (r *Row) Set(column string, value any) error {
	newKey := r.key
	err := r.ks.db.runWrite(func(tx *Tx) error {
		if newKey == 0 {
			k, err := r.ks.allocateRowKey(tx)
			if err != nil {
				return err
			}
			newKey = k
		}
		return r.ks.append(tx, newKey, column, value)
	})
	if err != nil {
		return err
	}
	r.key = newKey
	r.cache(column, value)
	return nil
}

// MultiSet appends new versions of all the given columns in one transaction,
// in column name order.
func (r *Row) MultiSet(columns map[string]any) error {
	cols := sortedColumns(columns)
	newKey := r.key
	err := r.ks.db.runWrite(func(tx *Tx) error {
		if newKey == 0 {
			k, err := r.ks.allocateRowKey(tx)
			if err != nil {
				return err
			}
			newKey = k
		}
		for _, col := range cols {
			if err := r.ks.append(tx, newKey, col, columns[col]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.key = newKey
	for _, col := range cols {
		r.cache(col, columns[col])
	}
	return nil
}

// MultiGet loads the current version of the given columns (all columns when
// none are named), refreshing the handle's cache with what it finds. Columns
// with no stored value are absent from the result.
func (r *Row) MultiGet(columns ...string) (map[string]any, error) {
	if r.key == 0 {
		return map[string]any{}, nil
	}
	var data map[string]any
	err := r.ks.db.runRead(func(tx *Tx) error {
		var err error
		data, err = r.ks.loadRow(tx, r.key, columns)
		return err
	})
	if err != nil {
		return nil, err
	}
	for col, v := range data {
		r.cache(col, v)
	}
	return data, nil
}

// DeleteColumns removes every stored version of the given columns, along
// with the projections of indexes bound to them.
func (r *Row) DeleteColumns(columns ...string) error {
	if r.key == 0 {
		return nil
	}
	err := r.ks.db.runWrite(func(tx *Tx) error {
		return r.ks.deleteColumns(tx, r.key, columns)
	})
	if err != nil {
		return err
	}
	for _, col := range columns {
		delete(r.data, col)
	}
	return nil
}

// Delete removes the entire row: every version of every column and all index
// projections. The row's key is not reused.
func (r *Row) Delete() error {
	if r.key == 0 {
		return nil
	}
	err := r.ks.db.runWrite(func(tx *Tx) error {
		return r.ks.deleteRow(tx, r.key)
	})
	if err != nil {
		return err
	}
	r.data = nil
	return nil
}
