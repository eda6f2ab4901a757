package schemaless

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// pathSegment is one step of a parsed document path: either a map field or a
// list index.
type pathSegment struct {
	field   string
	index   int
	isIndex bool
}

// parsePath parses a document path into segments. Paths use dotted fields
// and bracketed list indexes, with an optional leading "$" root marker:
//
//	k1.k2          nested map fields
//	k1.j2[0]       list element under a field
//	$.[0][0][0]    list elements from the root
//
// Empty paths and malformed brackets are reported as errors.
func parsePath(path string) ([]pathSegment, error) {
	orig := path
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return nil, fmt.Errorf("schemaless: empty document path %q", orig)
	}

	var segs []pathSegment
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			return nil, fmt.Errorf("schemaless: empty segment in document path %q", orig)
		}
		field := part
		var brackets string
		if i := strings.IndexByte(part, '['); i >= 0 {
			field, brackets = part[:i], part[i:]
		}
		if field != "" {
			segs = append(segs, pathSegment{field: field})
		}
		for brackets != "" {
			if brackets[0] != '[' {
				return nil, fmt.Errorf("schemaless: malformed document path %q", orig)
			}
			end := strings.IndexByte(brackets, ']')
			if end < 0 {
				return nil, fmt.Errorf("schemaless: unterminated index in document path %q", orig)
			}
			n, err := strconv.Atoi(brackets[1:end])
			if err != nil || n < 0 {
				return nil, fmt.Errorf("schemaless: bad list index in document path %q", orig)
			}
			segs = append(segs, pathSegment{index: n, isIndex: true})
			brackets = brackets[end+1:]
		}
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("schemaless: empty document path %q", orig)
	}
	return segs, nil
}

// Extract walks doc along path and returns the value found there. A missing
// field, an out-of-range index, or a type mismatch along the way yields
// (nil, false); an explicit nil stored at the path yields (nil, true).
func Extract(doc any, path string) (any, bool) {
	segs, err := parsePath(path)
	if err != nil {
		return nil, false
	}
	return extractSegments(doc, segs)
}

func extractSegments(doc any, segs []pathSegment) (any, bool) {
	cur := doc
	for _, seg := range segs {
		if seg.isIndex {
			switch v := cur.(type) {
			case []any:
				if seg.index >= len(v) {
					return nil, false
				}
				cur = v[seg.index]
			default:
				rv := reflect.ValueOf(cur)
				if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
					return nil, false
				}
				if seg.index >= rv.Len() {
					return nil, false
				}
				cur = rv.Index(seg.index).Interface()
			}
		} else {
			switch v := cur.(type) {
			case map[string]any:
				val, ok := v[seg.field]
				if !ok {
					return nil, false
				}
				cur = val
			default:
				rv := reflect.ValueOf(cur)
				if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
					return nil, false
				}
				mv := rv.MapIndex(reflect.ValueOf(seg.field).Convert(rv.Type().Key()))
				if !mv.IsValid() {
					return nil, false
				}
				cur = mv.Interface()
			}
		}
	}
	return cur, true
}
