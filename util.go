package schemaless

import "regexp"

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func ensure(err error) {
	if err != nil {
		panic(err)
	}
}

var cleanRe = regexp.MustCompile(`[^0-9A-Za-z_]+`)

// cleanName derives a storage-safe identifier from a user-supplied string.
// Must stay stable across releases: bucket names are built from it.
func cleanName(s string) string {
	return cleanRe.ReplaceAllString(s, "")
}

// inc treats data as a big-endian number and increments it in place.
// Returns false on overflow (all 0xFF).
func inc(data []byte) bool {
	n := len(data)
	for i := n - 1; i >= 0; i-- {
		if data[i] != 0xFF {
			for j := i; j < n; j++ {
				data[j]++
			}
			return true
		}
	}
	return false
}
