/*
Package schemaless implements an embedded, append-only, column-oriented data
store on top of a key-value engine (in this case, on top of Bolt).

We implement:

1. KeySpaces, named logical tables of schemaless rows. A row is a set of
named columns; columns can be introduced freely per row.

2. A versioned append log per KeySpace. Writes never update records in
place: every assignment appends a new physical entry, and reads resolve the
latest version per (rowKey, column).

3. Indexes, automatically maintained projections of one (column, path) pair
into (rowKey, extractedValue), supporting range/equality/pattern queries and
pre-execution boolean composition.

4. Change signals, synchronous per-column notifications dispatched to
registered handlers inside the same transaction as the write.

# Technical Details

**Buckets.**
Each KeySpace owns a root bucket named after its sanitized name. The append
log lives in the nested bucket “log”; each Index lives in a nested bucket
named i_<column>_<path> (both sanitized). Names are derived once at
declaration time, so reopening the same storage location reattaches to the
same KeySpaces and Indexes.

**Log encoding.**
Entry key: rowKey (8 bytes big-endian), column length (uvarint), column
bytes, sequence (8 bytes big-endian). The sequence is the log bucket's
persisted counter, so versions of one column sort in insertion order and the
greatest sequence is the current version.

Entry value: value header, then the msgpack encoding of the column value.

**Value header**:
1. Flags (uvarint).
2. Wall-clock timestamp, unix nanoseconds (uvarint).

**Index encoding.**
Index key: rowKey (8 bytes big-endian). Index value: msgpack of the value
extracted at the index path. At most one projection entry exists per rowKey.

**Row keys.**
Row keys are allocated from the KeySpace root bucket's persisted sequence,
starting at 1. Deleted row keys are never reused, and allocation continues
across process restarts.
*/
package schemaless
