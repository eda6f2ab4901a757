package schemaless

// storage represents a key-value storage backend (Bolt or the in-memory
// backend behind the InMemory location marker).
type storage interface {
	// BeginTx starts a new transaction.
	BeginTx(writable bool) (storageTx, error)
	// Close closes the storage.
	Close() error
}

// storageTx represents a storage transaction.
type storageTx interface {
	// Writable returns true if this is a writable transaction.
	Writable() bool

	// Bucket returns a bucket. Use sub="" for a root bucket, non-empty for a
	// nested bucket. Returns nil if the bucket doesn't exist.
	Bucket(name, sub string) storageBucket

	// CreateBucket creates a bucket if it doesn't exist.
	// For sub != "", it must also ensure the root bucket exists.
	CreateBucket(name, sub string) (storageBucket, error)

	// DeleteBucket deletes a bucket. For sub == "", the root bucket is
	// removed along with everything nested under it.
	DeleteBucket(name, sub string) error

	// Commit commits the transaction.
	Commit() error

	// Rollback aborts the transaction. It should be safe to call multiple times.
	Rollback() error
}

// storageBucket represents a bucket (sorted key-value collection with a
// persisted sequence counter).
type storageBucket interface {
	// Get retrieves a value by key. Returns nil if not found.
	Get(key []byte) []byte

	// Put stores a key-value pair.
	Put(key, value []byte) error

	// Delete removes a key.
	Delete(key []byte) error

	// NextSequence increments and returns the bucket's persisted counter.
	NextSequence() (uint64, error)

	// Cursor returns a cursor for iteration.
	Cursor() storageCursor
}

// storageCursor iterates over a sorted bucket.
type storageCursor interface {
	// First moves to the first key-value pair.
	First() (key, value []byte)

	// Last moves to the last key-value pair.
	Last() (key, value []byte)

	// Seek moves to the first key >= seek.
	Seek(seek []byte) (key, value []byte)

	// SeekLast moves to the greatest key that starts with prefix, or, if no
	// such key exists, to the greatest key before the prefix range.
	// Commonly implemented as: Seek(inc(prefix)) then Prev().
	SeekLast(prefix []byte) (key, value []byte)

	// Next moves to the next key-value pair.
	Next() (key, value []byte)

	// Prev moves to the previous key-value pair.
	Prev() (key, value []byte)
}
