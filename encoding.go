package schemaless

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/vmihailenco/msgpack/v5"
)

// entryFlags occupy the first uvarint of every stored entry value; reserved
// for format evolution.
const entryFlagsDefault uint64 = 0

type bytesBuilder struct {
	Buf []byte
}

var _ io.Writer = (*bytesBuilder)(nil)

func (bb *bytesBuilder) Write(b []byte) (int, error) {
	bb.Buf = append(bb.Buf, b...)
	return len(b), nil
}

func appendUvarint(buf []byte, v uint64) []byte {
	return binary.AppendUvarint(buf, v)
}

func appendUint64(buf []byte, v uint64) []byte {
	return binary.BigEndian.AppendUint64(buf, v)
}

type byteDecoder struct {
	Orig []byte
	Buf  []byte
}

func makeByteDecoder(buf []byte) byteDecoder {
	return byteDecoder{buf, buf}
}

func (d *byteDecoder) Off() int {
	return len(d.Orig) - len(d.Buf)
}

func (d *byteDecoder) Uvarint() (uint64, error) {
	v, n := binary.Uvarint(d.Buf)
	if n <= 0 {
		return 0, dataErrf(d.Orig, d.Off(), nil, "invalid uvarint")
	}
	d.Buf = d.Buf[n:]
	return v, nil
}

func (d *byteDecoder) Uvarinti() (int, error) {
	v, err := d.Uvarint()
	if v > math.MaxInt {
		return 0, dataErrf(d.Orig, d.Off(), nil, "value does not fit into int: %d", v)
	}
	return int(v), err
}

func (d *byteDecoder) Uint64() (uint64, error) {
	if len(d.Buf) < 8 {
		return 0, dataErrf(d.Orig, d.Off(), nil, "not enough data: %d bytes remaining, 8 wanted", len(d.Buf))
	}
	v := binary.BigEndian.Uint64(d.Buf)
	d.Buf = d.Buf[8:]
	return v, nil
}

func (d *byteDecoder) Raw(n int) ([]byte, error) {
	if len(d.Buf) < n {
		return nil, dataErrf(d.Orig, d.Off(), nil, "not enough data: %d bytes remaining, %d wanted", len(d.Buf), n)
	}
	v := d.Buf[:n]
	d.Buf = d.Buf[n:]
	return v, nil
}

// encodeAny produces the canonical msgpack encoding of v. Map keys are
// sorted so equal values encode to equal bytes.
func encodeAny(buf []byte, v any) []byte {
	bb := bytesBuilder{buf}
	enc := msgpack.GetEncoder()
	enc.Reset(&bb)
	enc.SetSortMapKeys(true)
	err := enc.Encode(v)
	msgpack.PutEncoder(enc)
	if err != nil {
		panic(fmt.Errorf("schemaless: failed to encode %T using msgpack: %w", v, err))
	}
	return bb.Buf
}

// decodeAny decodes canonical msgpack into the loose value domain: nil,
// bool, int64/uint64/float64, string, []byte, []any, map[string]any.
func decodeAny(buf []byte) (any, error) {
	var r bytes.Reader
	r.Reset(buf)
	dec := msgpack.GetDecoder()
	dec.Reset(&r)
	dec.UseLooseInterfaceDecoding(true)
	v, err := dec.DecodeInterfaceLoose()
	msgpack.PutDecoder(dec)
	if err != nil {
		return nil, dataErrf(buf, 0, err, "failed to decode msgpack value")
	}
	return v, nil
}

// Log entry keys sort by rowKey, then column, then version sequence, which
// makes one rowKey's entries contiguous and the greatest sequence within a
// (rowKey, column) run the current version.

func appendEntryPrefix(buf []byte, rowKey int64, column string) []byte {
	buf = appendUint64(buf, uint64(rowKey))
	buf = appendUvarint(buf, uint64(len(column)))
	buf = append(buf, column...)
	return buf
}

func entryPrefix(rowKey int64, column string) []byte {
	return appendEntryPrefix(nil, rowKey, column)
}

func entryKey(rowKey int64, column string, seq uint64) []byte {
	return appendUint64(appendEntryPrefix(nil, rowKey, column), seq)
}

func rowKeyPrefix(rowKey int64) []byte {
	return appendUint64(nil, uint64(rowKey))
}

func parseEntryKey(k []byte) (rowKey int64, column string, seq uint64, err error) {
	d := makeByteDecoder(k)
	rk, err := d.Uint64()
	if err != nil {
		return 0, "", 0, err
	}
	n, err := d.Uvarinti()
	if err != nil {
		return 0, "", 0, err
	}
	col, err := d.Raw(n)
	if err != nil {
		return 0, "", 0, err
	}
	seq, err = d.Uint64()
	if err != nil {
		return 0, "", 0, err
	}
	return int64(rk), string(col), seq, nil
}

func encodeEntry(buf []byte, unixNano int64, v any) []byte {
	buf = appendUvarint(buf, entryFlagsDefault)
	buf = appendUvarint(buf, uint64(unixNano))
	return encodeAny(buf, v)
}

func decodeEntry(raw []byte) (unixNano int64, v any, err error) {
	d := makeByteDecoder(raw)
	if _, err := d.Uvarint(); err != nil {
		return 0, nil, err
	}
	ts, err := d.Uvarint()
	if err != nil {
		return 0, nil, err
	}
	v, err = decodeAny(d.Buf)
	if err != nil {
		return 0, nil, err
	}
	return int64(ts), v, nil
}

func indexKey(rowKey int64) []byte {
	return appendUint64(nil, uint64(rowKey))
}

func parseIndexKey(k []byte) (int64, error) {
	if len(k) != 8 {
		return 0, dataErrf(k, 0, nil, "invalid index key length %d", len(k))
	}
	return int64(binary.BigEndian.Uint64(k)), nil
}
