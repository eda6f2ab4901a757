package schemaless

import (
	"bytes"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
)

const memBucketSep = "\x00"

type memStorage struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buckets map[string]*memBucket
	closed  bool
	writer  bool
}

// newMemStorage returns a transient in-memory storage implementation; it
// backs databases opened at the InMemory location.
func newMemStorage() storage {
	s := &memStorage{buckets: make(map[string]*memBucket)}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *memStorage) BeginTx(writable bool) (storageTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("storage closed")
	}
	if writable {
		for s.writer && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			return nil, fmt.Errorf("storage closed")
		}
		s.writer = true
	}

	// Snapshot the entire DB for transactional isolation (simplicity over
	// efficiency).
	snap := make(map[string]*memBucket, len(s.buckets))
	for k, b := range s.buckets {
		snap[k] = b.clone()
	}

	return &memTx{
		writable: writable,
		base:     s,
		buckets:  snap,
	}, nil
}

func (s *memStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.buckets = nil
	if s.cond != nil {
		s.cond.Broadcast()
	}
	return nil
}

func memBucketKey(name, sub string) string {
	return name + memBucketSep + sub
}

type memTx struct {
	base     *memStorage
	writable bool
	buckets  map[string]*memBucket
	closed   bool
}

func (tx *memTx) Writable() bool { return tx.writable }

func (tx *memTx) closeLocked() {
	if tx.closed {
		return
	}
	tx.closed = true
	if tx.writable {
		tx.base.writer = false
		tx.base.cond.Broadcast()
	}
}

func (tx *memTx) Bucket(name, sub string) storageBucket {
	if tx.closed {
		panic("tx is closed")
	}
	b := tx.buckets[memBucketKey(name, sub)]
	if b == nil {
		return nil
	}
	return memBucketHandle{tx: tx, b: b}
}

func (tx *memTx) CreateBucket(name, sub string) (storageBucket, error) {
	if tx.closed {
		panic("tx is closed")
	}
	if !tx.writable {
		return nil, fmt.Errorf("tx not writable")
	}

	// Ensure the root exists for nested buckets (Bolt compatibility).
	rootKey := memBucketKey(name, "")
	if tx.buckets[rootKey] == nil {
		tx.buckets[rootKey] = &memBucket{}
	}

	key := memBucketKey(name, sub)
	b := tx.buckets[key]
	if b == nil {
		b = &memBucket{}
		tx.buckets[key] = b
	}
	return memBucketHandle{tx: tx, b: b}, nil
}

func (tx *memTx) DeleteBucket(name, sub string) error {
	if tx.closed {
		panic("tx is closed")
	}
	if !tx.writable {
		return fmt.Errorf("tx not writable")
	}
	if sub == "" {
		// Root deletion removes the root and everything nested.
		prefix := name + memBucketSep
		found := false
		for k := range tx.buckets {
			if strings.HasPrefix(k, prefix) {
				delete(tx.buckets, k)
				found = true
			}
		}
		if !found {
			return ErrBucketNotFound
		}
		return nil
	}
	key := memBucketKey(name, sub)
	if tx.buckets[key] == nil {
		return ErrBucketNotFound
	}
	delete(tx.buckets, key)
	return nil
}

func (tx *memTx) Commit() error {
	tx.base.mu.Lock()
	defer tx.base.mu.Unlock()
	if tx.closed {
		return fmt.Errorf("tx is closed")
	}
	if !tx.writable {
		tx.closeLocked()
		return fmt.Errorf("tx not writable")
	}
	if tx.base.closed {
		tx.closeLocked()
		return fmt.Errorf("storage closed")
	}
	tx.base.buckets = tx.buckets
	tx.closeLocked()
	return nil
}

func (tx *memTx) Rollback() error {
	tx.base.mu.Lock()
	defer tx.base.mu.Unlock()
	tx.closeLocked()
	return nil
}

type memBucket struct {
	keys [][]byte
	vals [][]byte
	seq  uint64
}

func (b *memBucket) clone() *memBucket {
	// Element byte slices are treated as immutable, so a shallow copy of the
	// backing arrays is enough.
	return &memBucket{
		keys: slices.Clone(b.keys),
		vals: slices.Clone(b.vals),
		seq:  b.seq,
	}
}

// find returns the position of key, or the position it would be inserted at.
func (b *memBucket) find(key []byte) (int, bool) {
	i := sort.Search(len(b.keys), func(i int) bool {
		return bytes.Compare(b.keys[i], key) >= 0
	})
	return i, i < len(b.keys) && bytes.Equal(b.keys[i], key)
}

type memBucketHandle struct {
	tx *memTx
	b  *memBucket
}

func (h memBucketHandle) Get(key []byte) []byte {
	i, ok := h.b.find(key)
	if !ok {
		return nil
	}
	return h.b.vals[i]
}

func (h memBucketHandle) Put(key, value []byte) error {
	if !h.tx.writable {
		return fmt.Errorf("tx not writable")
	}
	key = slices.Clone(key)
	value = slices.Clone(value)
	i, ok := h.b.find(key)
	if ok {
		h.b.vals[i] = value
		return nil
	}
	h.b.keys = slices.Insert(h.b.keys, i, key)
	h.b.vals = slices.Insert(h.b.vals, i, value)
	return nil
}

func (h memBucketHandle) Delete(key []byte) error {
	if !h.tx.writable {
		return fmt.Errorf("tx not writable")
	}
	i, ok := h.b.find(key)
	if !ok {
		return nil
	}
	h.b.keys = slices.Delete(h.b.keys, i, i+1)
	h.b.vals = slices.Delete(h.b.vals, i, i+1)
	return nil
}

func (h memBucketHandle) NextSequence() (uint64, error) {
	if !h.tx.writable {
		return 0, fmt.Errorf("tx not writable")
	}
	h.b.seq++
	return h.b.seq, nil
}

func (h memBucketHandle) Cursor() storageCursor {
	return &memCursor{b: h.b}
}

type memCursor struct {
	b   *memBucket
	pos int
}

func (c *memCursor) item() ([]byte, []byte) {
	if c.pos < 0 || c.pos >= len(c.b.keys) {
		return nil, nil
	}
	return c.b.keys[c.pos], c.b.vals[c.pos]
}

func (c *memCursor) First() ([]byte, []byte) {
	c.pos = 0
	return c.item()
}

func (c *memCursor) Last() ([]byte, []byte) {
	c.pos = len(c.b.keys) - 1
	return c.item()
}

func (c *memCursor) Seek(seek []byte) ([]byte, []byte) {
	c.pos, _ = c.b.find(seek)
	return c.item()
}

func (c *memCursor) SeekLast(prefix []byte) ([]byte, []byte) {
	if len(prefix) == 0 {
		return c.Last()
	}
	limit := slices.Clone(prefix)
	if inc(limit) {
		i, _ := c.b.find(limit)
		c.pos = i - 1
		return c.item()
	}
	// All-0xFF prefix sorts after every other key.
	return c.Last()
}

func (c *memCursor) Next() ([]byte, []byte) {
	if c.pos < len(c.b.keys) {
		c.pos++
	}
	return c.item()
}

func (c *memCursor) Prev() ([]byte, []byte) {
	if c.pos >= 0 {
		c.pos--
	}
	return c.item()
}
