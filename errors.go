package schemaless

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBucketNotFound is returned by storageTx.DeleteBucket when the bucket
// doesn't exist.
var ErrBucketNotFound = errors.New("bucket not found")

// ErrKeySpaceNotCreated is reported when data operations touch a KeySpace
// whose storage has not been provisioned via Create.
var ErrKeySpaceNotCreated = errors.New("keyspace not created")

// ErrInvalidOperator is reported when Query or Select receives an
// unrecognized comparison operator token.
var ErrInvalidOperator = errors.New("invalid operator")

type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x", e.Msg, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s: (%d) %x", e.Msg, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x...%x", e.Msg, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s: (%d) %x...%x", e.Msg, n, p, s)
		}
	}
}

type KeySpaceError struct {
	KeySpace string
	Index    string
	Msg      string
	Err      error
}

func keyspaceErrf(ks, idx string, err error, format string, args ...any) error {
	return &KeySpaceError{ks, idx, fmt.Sprintf(format, args...), err}
}

func (e *KeySpaceError) Unwrap() error {
	return e.Err
}

func (e *KeySpaceError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.KeySpace)
	if e.Index != "" {
		buf.WriteByte('.')
		buf.WriteString(e.Index)
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
		if e.Err != nil {
			buf.WriteString(": ")
			buf.WriteString(e.Err.Error())
		}
	} else if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}
