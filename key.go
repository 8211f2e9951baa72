package querysync

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Key identifies a cacheable read, e.g. K("menu") or K("order", id).
// Two keys are equal iff their String forms are equal.
type Key []any

// K builds a Key from its parts.
func K(parts ...any) Key { return Key(parts) }

// String returns the canonical serialized form: a JSON array of the parts.
func (k Key) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, p := range k {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(encodePart(p))
	}
	b.WriteByte(']')
	return b.String()
}

// Equal reports whether k and o serialize identically.
func (k Key) Equal(o Key) bool {
	if len(k) != len(o) {
		return false
	}
	return k.HasPrefix(o)
}

// HasPrefix reports whether the first len(p) parts of k equal p.
// Every key has the empty prefix.
func (k Key) HasPrefix(p Key) bool {
	if len(p) > len(k) {
		return false
	}
	for i := range p {
		if encodePart(k[i]) != encodePart(p[i]) {
			return false
		}
	}
	return true
}

func encodePart(p any) string {
	b, err := json.Marshal(p)
	if err != nil {
		// unencodable parts still need a stable identity within the process
		return fmt.Sprintf("%q", fmt.Sprintf("%#v", p))
	}
	return string(b)
}

// Target selects entries for invalidation: either one exact key or every key
// under a prefix.
type Target struct {
	Key   Key
	Exact bool
}

// Exact targets exactly k.
func Exact(k Key) Target { return Target{Key: k, Exact: true} }

// Prefix targets k and every key that starts with k.
func Prefix(k Key) Target { return Target{Key: k} }

// Matches reports whether key is selected by t.
func (t Target) Matches(key Key) bool {
	if t.Exact {
		return key.Equal(t.Key)
	}
	return key.HasPrefix(t.Key)
}

func (t Target) String() string {
	if t.Exact {
		return "exact:" + t.Key.String()
	}
	return "prefix:" + t.Key.String()
}
