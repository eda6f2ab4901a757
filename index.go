package schemaless

import "fmt"

// Index maintains a queryable projection of the value found at a document
// path within one column. The projection tracks writes: every append to the
// column re-extracts the path and updates the row's slot.
//
// An Index belongs to exactly one KeySpace; pass it to DB.KeySpace to bind
// it. Declaring an Index after data already exists does not backfill: only
// subsequent writes are projected.
type Index struct {
	ks     *KeySpace
	column string
	path   string
	segs   []pathSegment
	buck   string
}

// NewIndex declares a secondary index over the value at path within
// documents written to column. Panics if the path is malformed or the names
// sanitize to nothing.
func NewIndex(column, path string) *Index {
	segs, err := parsePath(path)
	if err != nil {
		panic(err)
	}
	colName := cleanName(column)
	pathName := cleanName(path)
	if colName == "" || pathName == "" {
		panic(fmt.Errorf("schemaless: index on column %q path %q sanitizes to an empty identifier", column, path))
	}
	return &Index{
		column: column,
		path:   path,
		segs:   segs,
		buck:   "i_" + colName + "_" + pathName,
	}
}

func (idx *Index) bind(ks *KeySpace) {
	if idx.ks != nil {
		panic(fmt.Errorf("schemaless: index %s is already bound to keyspace %s", idx.buck, idx.ks.name))
	}
	idx.ks = ks
}

// update re-projects a freshly written document. A document the path does
// not reach (or reaches a nil in) leaves the previous projection untouched.
func (idx *Index) update(tx *Tx, rowKey int64, doc any) error {
	v, ok := extractSegments(doc, idx.segs)
	if !ok || v == nil {
		return nil
	}
	b, err := tx.bucket(idx.ks, idx.buck)
	if err != nil {
		return err
	}
	ensure(b.Put(indexKey(rowKey), encodeAny(nil, v)))
	return nil
}

func (idx *Index) remove(tx *Tx, rowKey int64) error {
	b, err := tx.bucket(idx.ks, idx.buck)
	if err != nil {
		return err
	}
	ensure(b.Delete(indexKey(rowKey)))
	return nil
}

// IndexItem is one projected slot: the row it belongs to and the extracted
// value.
type IndexItem struct {
	RowKey int64
	Value  any
}

// AllItems returns every projected slot in rowKey order.
func (idx *Index) AllItems() ([]IndexItem, error) {
	var items []IndexItem
	err := idx.ks.db.runRead(func(tx *Tx) error {
		b, err := tx.bucket(idx.ks, idx.buck)
		if err != nil {
			return err
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			rk, err := parseIndexKey(k)
			if err != nil {
				return err
			}
			val, err := decodeAny(v)
			if err != nil {
				return err
			}
			items = append(items, IndexItem{rk, val})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Where builds a condition comparing the projected value against value. Use
// with KeySpace.Select, And, Or and Union.
func (idx *Index) Where(op Operator, value any) Cond {
	return &indexCond{idx: idx, op: op, operand: value}
}

// Query returns the rows whose projected value matches. The operator
// defaults to equality.
func (idx *Index) Query(value any, op ...Operator) *Rows {
	o := OpEq
	if len(op) > 0 {
		o = op[0]
	}
	return idx.ks.Select(idx.Where(o, value))
}
