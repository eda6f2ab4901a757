package schemaless

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"
)

// Operator selects how a query compares projected values against the
// operand.
type Operator string

const (
	OpLt   Operator = "<"
	OpLe   Operator = "<="
	OpEq   Operator = "=="
	OpGe   Operator = ">="
	OpGt   Operator = ">"
	OpNe   Operator = "!="
	OpLike Operator = "LIKE" // string pattern with % and _ wildcards, ASCII case-insensitive
	OpIn   Operator = "IN"   // operand must be a slice of candidate values
)

// matcher compiles an operator and operand into a predicate over projected
// values. Unknown operators report ErrInvalidOperator.
func matcher(op Operator, operand any) (func(any) bool, error) {
	switch op {
	case OpEq:
		return func(v any) bool { return valuesEqual(v, operand) }, nil
	case OpNe:
		return func(v any) bool { return !valuesEqual(v, operand) }, nil
	case OpLt, OpLe, OpGe, OpGt:
		return func(v any) bool {
			c, ok := compareValues(v, operand)
			if !ok {
				return false
			}
			switch op {
			case OpLt:
				return c < 0
			case OpLe:
				return c <= 0
			case OpGe:
				return c >= 0
			default:
				return c > 0
			}
		}, nil
	case OpLike:
		pattern, ok := operand.(string)
		if !ok {
			return nil, fmt.Errorf("schemaless: LIKE operand must be a string, got %T", operand)
		}
		return func(v any) bool {
			s, ok := v.(string)
			return ok && likeMatch(pattern, s)
		}, nil
	case OpIn:
		rv := reflect.ValueOf(operand)
		if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
			return nil, fmt.Errorf("schemaless: IN operand must be a slice, got %T", operand)
		}
		n := rv.Len()
		candidates := make([]any, n)
		for i := 0; i < n; i++ {
			candidates[i] = rv.Index(i).Interface()
		}
		return func(v any) bool {
			for _, c := range candidates {
				if valuesEqual(v, c) {
					return true
				}
			}
			return false
		}, nil
	default:
		return nil, fmt.Errorf("schemaless: %w: %q", ErrInvalidOperator, string(op))
	}
}

// numericValue normalizes any numeric Go type to float64 so 3, int64(3) and
// 3.0 compare equal regardless of how the caller spelled them.
func numericValue(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}

func valuesEqual(a, b any) bool {
	if na, ok := numericValue(a); ok {
		nb, ok := numericValue(b)
		return ok && na == nb
	}
	switch av := a.(type) {
	case nil:
		return b == nil
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	}
	// Composite values: compare canonical encodings.
	return bytes.Equal(encodeAny(nil, a), encodeAny(nil, b))
}

// compareValues orders two values when they are comparable: numerics against
// numerics, strings against strings. Anything else is unordered.
func compareValues(a, b any) (int, bool) {
	if na, ok := numericValue(a); ok {
		nb, ok := numericValue(b)
		if !ok {
			return 0, false
		}
		switch {
		case na < nb:
			return -1, true
		case na > nb:
			return 1, true
		default:
			return 0, true
		}
	}
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

func lowerASCII(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

// likeMatch implements LIKE patterns: % matches any run of characters, _
// matches exactly one character (a full rune, not a byte), everything else
// matches itself ASCII case-insensitively. Backtracks to the most recent %
// on mismatch, advancing the restart point one rune at a time.
func likeMatch(pattern, s string) bool {
	p, si := 0, 0
	star, mark := -1, 0
	for si < len(s) {
		if p < len(pattern) {
			switch c := pattern[p]; c {
			case '%':
				star, mark = p, si
				p++
				continue
			case '_':
				p++
				_, n := utf8.DecodeRuneInString(s[si:])
				si += n
				continue
			default:
				if lowerASCII(c) == lowerASCII(s[si]) {
					p++
					si++
					continue
				}
			}
		}
		if star >= 0 {
			_, n := utf8.DecodeRuneInString(s[mark:])
			mark += n
			si = mark
			p = star + 1
			continue
		}
		return false
	}
	for p < len(pattern) && pattern[p] == '%' {
		p++
	}
	return p == len(pattern)
}

// Cond is a composable query condition producing row keys in key order. Get
// one from Index.Where, combine with And and Or, execute with
// KeySpace.Select.
type Cond interface {
	keyspace() *KeySpace
	validate() error
	keys(tx *Tx, reverse bool) (keyIter, error)
}

// keyIter yields distinct row keys in ascending (or descending) order.
type keyIter interface {
	next() (rowKey int64, ok bool, err error)
}

type indexCond struct {
	idx     *Index
	op      Operator
	operand any
}

func (c *indexCond) keyspace() *KeySpace { return c.idx.ks }

func (c *indexCond) validate() error {
	_, err := matcher(c.op, c.operand)
	return err
}

func (c *indexCond) keys(tx *Tx, reverse bool) (keyIter, error) {
	match, err := matcher(c.op, c.operand)
	if err != nil {
		return nil, err
	}
	b, err := tx.bucket(c.idx.ks, c.idx.buck)
	if err != nil {
		return nil, err
	}
	return &indexKeyIter{cur: b.Cursor(), match: match, reverse: reverse}, nil
}

type indexKeyIter struct {
	cur     storageCursor
	match   func(any) bool
	reverse bool
	started bool
}

func (it *indexKeyIter) next() (int64, bool, error) {
	for {
		var k, v []byte
		if !it.started {
			it.started = true
			if it.reverse {
				k, v = it.cur.Last()
			} else {
				k, v = it.cur.First()
			}
		} else {
			if it.reverse {
				k, v = it.cur.Prev()
			} else {
				k, v = it.cur.Next()
			}
		}
		if k == nil {
			return 0, false, nil
		}
		val, err := decodeAny(v)
		if err != nil {
			return 0, false, err
		}
		if !it.match(val) {
			continue
		}
		rk, err := parseIndexKey(k)
		if err != nil {
			return 0, false, err
		}
		return rk, true, nil
	}
}

type joinKind int

const (
	joinOr joinKind = iota
	joinAnd
)

type joinCond struct {
	kind joinKind
	a, b Cond
}

// Or matches rows satisfying any of the conditions.
func Or(conds ...Cond) Cond { return joinConds(joinOr, conds) }

// And matches rows satisfying all of the conditions.
func And(conds ...Cond) Cond { return joinConds(joinAnd, conds) }

func joinConds(kind joinKind, conds []Cond) Cond {
	if len(conds) == 0 {
		panic("schemaless: no conditions to combine")
	}
	c := conds[0]
	for _, next := range conds[1:] {
		c = &joinCond{kind: kind, a: c, b: next}
	}
	return c
}

func (c *joinCond) keyspace() *KeySpace { return c.a.keyspace() }

func (c *joinCond) validate() error {
	if err := c.a.validate(); err != nil {
		return err
	}
	if err := c.b.validate(); err != nil {
		return err
	}
	if c.a.keyspace() != c.b.keyspace() {
		return fmt.Errorf("schemaless: cannot combine conditions over different keyspaces")
	}
	return nil
}

func (c *joinCond) keys(tx *Tx, reverse bool) (keyIter, error) {
	a, err := c.a.keys(tx, reverse)
	if err != nil {
		return nil, err
	}
	b, err := c.b.keys(tx, reverse)
	if err != nil {
		return nil, err
	}
	if c.kind == joinAnd {
		return &intersectIter{a: a, b: b, reverse: reverse}, nil
	}
	return &mergeIter{a: a, b: b, reverse: reverse}, nil
}

// mergeIter unions two ordered key streams, dropping duplicates.
type mergeIter struct {
	a, b       keyIter
	reverse    bool
	aKey, bKey int64
	aOK, bOK   bool
	primed     bool
	last       int64
	hasLast    bool
}

func (it *mergeIter) next() (int64, bool, error) {
	var err error
	if !it.primed {
		it.primed = true
		if it.aKey, it.aOK, err = it.a.next(); err != nil {
			return 0, false, err
		}
		if it.bKey, it.bOK, err = it.b.next(); err != nil {
			return 0, false, err
		}
	}
	for it.aOK || it.bOK {
		var k int64
		var takeA bool
		switch {
		case !it.bOK:
			takeA = true
		case !it.aOK:
			takeA = false
		case it.reverse:
			takeA = it.aKey >= it.bKey
		default:
			takeA = it.aKey <= it.bKey
		}
		if takeA {
			k = it.aKey
			if it.aKey, it.aOK, err = it.a.next(); err != nil {
				return 0, false, err
			}
		} else {
			k = it.bKey
			if it.bKey, it.bOK, err = it.b.next(); err != nil {
				return 0, false, err
			}
		}
		if it.hasLast && k == it.last {
			continue
		}
		it.last, it.hasLast = k, true
		return k, true, nil
	}
	return 0, false, nil
}

// intersectIter intersects two ordered key streams.
type intersectIter struct {
	a, b       keyIter
	reverse    bool
	aKey, bKey int64
	aOK, bOK   bool
	primed     bool
}

func (it *intersectIter) next() (int64, bool, error) {
	var err error
	if !it.primed {
		it.primed = true
		if it.aKey, it.aOK, err = it.a.next(); err != nil {
			return 0, false, err
		}
		if it.bKey, it.bOK, err = it.b.next(); err != nil {
			return 0, false, err
		}
	} else {
		if it.aOK {
			if it.aKey, it.aOK, err = it.a.next(); err != nil {
				return 0, false, err
			}
		}
		if it.bOK {
			if it.bKey, it.bOK, err = it.b.next(); err != nil {
				return 0, false, err
			}
		}
	}
	for it.aOK && it.bOK {
		if it.aKey == it.bKey {
			return it.aKey, true, nil
		}
		aBehind := it.aKey < it.bKey
		if it.reverse {
			aBehind = it.aKey > it.bKey
		}
		if aBehind {
			if it.aKey, it.aOK, err = it.a.next(); err != nil {
				return 0, false, err
			}
		} else {
			if it.bKey, it.bOK, err = it.b.next(); err != nil {
				return 0, false, err
			}
		}
	}
	return 0, false, nil
}

// Select executes a condition over this keyspace lazily. Invalid conditions
// (unknown operator, foreign keyspace, unbound index) surface through
// Rows.Err without touching storage.
func (ks *KeySpace) Select(cond Cond) *Rows {
	rows := &Rows{ks: ks, cond: cond}
	if cond.keyspace() == nil {
		rows.err = fmt.Errorf("schemaless: query uses an unbound index")
	} else if cond.keyspace() != ks {
		rows.err = fmt.Errorf("schemaless: query belongs to keyspace %s, not %s", cond.keyspace().name, ks.name)
	} else if err := cond.validate(); err != nil {
		rows.err = err
	}
	return rows
}

// Union combines unstarted queries over the same keyspace into one query
// yielding the union of their rows, in rowKey order without duplicates.
func Union(queries ...*Rows) *Rows {
	if len(queries) == 0 {
		panic("schemaless: Union requires at least one query")
	}
	out := &Rows{ks: queries[0].ks}
	conds := make([]Cond, 0, len(queries))
	for _, q := range queries {
		if q.err != nil {
			out.err = q.err
			return out
		}
		if q.started || q.closed {
			out.err = fmt.Errorf("schemaless: Union requires unstarted queries")
			return out
		}
		if q.ks != out.ks {
			out.err = fmt.Errorf("schemaless: Union requires queries over the same keyspace")
			return out
		}
		if q.cond == nil {
			out.err = fmt.Errorf("schemaless: Union requires indexed queries, not full scans")
			return out
		}
		conds = append(conds, q.cond)
	}
	out.cond = Or(conds...)
	return out
}

// Rows is a lazy result cursor in the style of database/sql:
//
//	rows := idx.Query("huey")
//	defer rows.Close()
//	for rows.Next() {
//		row := rows.Row()
//		...
//	}
//	if err := rows.Err(); err != nil { ... }
//
// The first Next opens a read transaction that stays open until the rows are
// exhausted or closed. Rows with every column loaded are yielded in rowKey
// order; rows whose entries were all deleted are skipped.
type Rows struct {
	ks      *KeySpace
	cond    Cond // nil means full scan
	reverse bool
	err     error

	tx      *Tx
	ownsTx  bool
	started bool
	closed  bool

	iter         keyIter
	scanCur      storageCursor
	scanK, scanV []byte

	cur *Row
}

// Reversed flips iteration to descending rowKey order. Must be called before
// the first Next.
func (rs *Rows) Reversed() *Rows {
	if rs.started {
		panic("schemaless: Reversed must be called before iteration starts")
	}
	rs.reverse = true
	return rs
}

// Next advances to the next row, returning false at the end or on error
// (check Err). The cursor closes itself once exhausted.
func (rs *Rows) Next() bool {
	if rs.closed || rs.err != nil {
		return false
	}
	if !rs.started {
		rs.started = true
		if err := rs.start(); err != nil {
			rs.fail(err)
			return false
		}
	}
	var row *Row
	var err error
	if rs.iter != nil {
		row, err = rs.nextKeyed()
	} else {
		row, err = rs.nextScan()
	}
	if err != nil {
		rs.fail(err)
		return false
	}
	if row == nil {
		rs.Close()
		return false
	}
	rs.cur = row
	return true
}

// Row returns the row Next advanced to.
func (rs *Rows) Row() *Row { return rs.cur }

// Err returns the error that stopped iteration, if any.
func (rs *Rows) Err() error { return rs.err }

// Close releases the underlying read transaction. Safe to call multiple
// times.
func (rs *Rows) Close() error {
	if rs.closed {
		return nil
	}
	rs.closed = true
	rs.cur = nil
	if rs.ownsTx && rs.tx != nil {
		return rs.tx.stx.Rollback()
	}
	return nil
}

// Collect drains the cursor into a slice.
func (rs *Rows) Collect() ([]*Row, error) {
	defer rs.Close()
	var rows []*Row
	for rs.Next() {
		rows = append(rows, rs.Row())
	}
	return rows, rs.Err()
}

func (rs *Rows) fail(err error) {
	rs.err = err
	rs.Close()
}

func (rs *Rows) start() error {
	tx, owned, err := rs.ks.db.beginRead()
	if err != nil {
		return err
	}
	rs.tx, rs.ownsTx = tx, owned
	if rs.cond != nil {
		it, err := rs.cond.keys(tx, rs.reverse)
		if err != nil {
			return err
		}
		rs.iter = it
		return nil
	}
	lb, err := tx.bucket(rs.ks, logBucket)
	if err != nil {
		return err
	}
	rs.scanCur = lb.Cursor()
	if rs.reverse {
		rs.scanK, rs.scanV = rs.scanCur.Last()
	} else {
		rs.scanK, rs.scanV = rs.scanCur.First()
	}
	return nil
}

func (rs *Rows) nextKeyed() (*Row, error) {
	for {
		rowKey, ok, err := rs.iter.next()
		if err != nil || !ok {
			return nil, err
		}
		data, err := rs.ks.loadRow(rs.tx, rowKey, nil)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			continue
		}
		return &Row{ks: rs.ks, key: rowKey, data: data}, nil
	}
}

func (rs *Rows) step() ([]byte, []byte) {
	if rs.reverse {
		return rs.scanCur.Prev()
	}
	return rs.scanCur.Next()
}

// nextScan groups contiguous log entries of one rowKey into a row. Ascending
// runs keep the last version seen per column; descending runs see the
// highest sequence first, so the first version seen per column wins.
func (rs *Rows) nextScan() (*Row, error) {
	k, v := rs.scanK, rs.scanV
	if k == nil {
		return nil, nil
	}
	groupKey, col, _, err := parseEntryKey(k)
	if err != nil {
		return nil, err
	}
	raw := map[string][]byte{col: v}
	for {
		k, v = rs.step()
		if k == nil {
			rs.scanK, rs.scanV = nil, nil
			break
		}
		rk, col, _, err := parseEntryKey(k)
		if err != nil {
			return nil, err
		}
		if rk != groupKey {
			rs.scanK, rs.scanV = k, v
			break
		}
		if rs.reverse {
			if _, seen := raw[col]; !seen {
				raw[col] = v
			}
		} else {
			raw[col] = v
		}
	}
	data := make(map[string]any, len(raw))
	for col, rv := range raw {
		_, val, err := decodeEntry(rv)
		if err != nil {
			return nil, err
		}
		data[col] = val
	}
	return &Row{ks: rs.ks, key: groupKey, data: data}, nil
}
