package schemaless

import (
	"encoding/json"
	"fmt"
	"strings"
)

type DumpFlags int

const (
	DumpEntries DumpFlags = 1 << iota
	DumpIndexes

	DumpAll = DumpEntries | DumpIndexes
)

// Dump renders the stored state of every declared keyspace for debugging.
func (db *DB) Dump(flags DumpFlags) string {
	db.keyspacesMu.Lock()
	keyspaces := make([]*KeySpace, len(db.keyspaces))
	copy(keyspaces, db.keyspaces)
	db.keyspacesMu.Unlock()

	var buf strings.Builder
	for _, ks := range keyspaces {
		err := db.runRead(func(tx *Tx) error {
			return ks.dump(&buf, tx, flags)
		})
		if err != nil {
			fmt.Fprintf(&buf, "%s: ERROR: %v\n", ks.buck, err)
		}
	}
	return buf.String()
}

func (ks *KeySpace) dump(buf *strings.Builder, tx *Tx, flags DumpFlags) error {
	if flags&DumpEntries != 0 {
		lb, err := tx.bucket(ks, logBucket)
		if err != nil {
			return err
		}
		c := lb.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			rowKey, col, seq, err := parseEntryKey(k)
			if err != nil {
				return err
			}
			_, val, err := decodeEntry(v)
			if err != nil {
				return err
			}
			fmt.Fprintf(buf, "%s/%d.%s@%d = %s\n", ks.buck, rowKey, col, seq, dumpValue(val))
		}
	}
	if flags&DumpIndexes != 0 {
		for _, idx := range ks.indexes {
			b, err := tx.bucket(ks, idx.buck)
			if err != nil {
				return err
			}
			c := b.Cursor()
			for k, v := c.First(); k != nil; k, v = c.Next() {
				rowKey, err := parseIndexKey(k)
				if err != nil {
					return err
				}
				val, err := decodeAny(v)
				if err != nil {
					return err
				}
				fmt.Fprintf(buf, "%s.%s/%d = %s\n", ks.buck, idx.buck, rowKey, dumpValue(val))
			}
		}
	}
	return nil
}

func dumpValue(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(raw)
}
