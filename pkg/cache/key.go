package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// Key addresses one cache entry.
type Key string

// String implements fmt.Stringer.
func (k Key) String() string {
	return string(k)
}

// Pair is one named argument of a cached call.
type Pair struct {
	Name  string
	Value string
}

// P builds a Pair, formatting value with %v.
func P(name string, value any) Pair {
	return Pair{Name: name, Value: fmt.Sprint(value)}
}

// JoinKey derives a readable key from a few low-cardinality arguments, one
// name=value path segment per pair. A call without arguments maps to "all".
//
//	JoinKey("records", P("id", 5001)) == "records/id=5001"
func JoinKey(prefix string, pairs ...Pair) Key {
	segments := make([]string, 0, len(pairs)+1)
	if prefix != "" {
		segments = append(segments, strings.Trim(prefix, "/"))
	}
	if len(pairs) == 0 {
		segments = append(segments, "all")
	}
	for _, p := range pairs {
		segments = append(segments, url.PathEscape(p.Name)+"="+url.PathEscape(p.Value))
	}
	return Key(strings.Join(segments, "/"))
}

// HashKey derives a fixed-length key from arbitrary arguments. Use it for
// variadic or high-cardinality calls where JoinKey would produce unbounded
// paths.
func HashKey(prefix string, args ...any) Key {
	h := sha256.New()
	for i, a := range args {
		if i > 0 {
			h.Write([]byte{0})
		}
		fmt.Fprintf(h, "%T:%v", a, a)
	}
	sum := hex.EncodeToString(h.Sum(nil))
	if prefix == "" {
		return Key(sum)
	}
	return Key(strings.Trim(prefix, "/") + "/" + sum)
}
