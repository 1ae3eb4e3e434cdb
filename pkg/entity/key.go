package entity

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Key identifies a field within one render pass. It is either a name
// (derived from the field's path) or a positional index for fields that
// declare no path. The two forms never compare equal: NameKey("0") and
// IndexKey(0) are distinct.
type Key struct {
	name    string
	index   int
	isIndex bool
}

// NameKey returns a key for the field addressed by path.
func NameKey(path Path) Key {
	return Key{name: path.String()}
}

// IndexKey returns a key for a path-less field at position i.
func IndexKey(i int) Key {
	return Key{index: i, isIndex: true}
}

// IsIndex reports whether the key is positional.
func (k Key) IsIndex() bool { return k.isIndex }

// Name returns the dotted path of a name key, or "" for index keys.
func (k Key) Name() string { return k.name }

// Index returns the position of an index key, or -1 for name keys.
func (k Key) Index() int {
	if !k.isIndex {
		return -1
	}
	return k.index
}

// IsZero reports whether k is the zero Key.
func (k Key) IsZero() bool {
	return !k.isIndex && k.name == ""
}

// String renders name keys verbatim and index keys as "#<i>".
func (k Key) String() string {
	if k.isIndex {
		return "#" + strconv.Itoa(k.index)
	}
	return k.name
}

// ParseKey is the inverse of String.
func ParseKey(s string) (Key, error) {
	if s == "" {
		return Key{}, fmt.Errorf("empty field key")
	}
	if strings.HasPrefix(s, "#") {
		i, err := strconv.Atoi(s[1:])
		if err != nil || i < 0 {
			return Key{}, fmt.Errorf("invalid index key %q", s)
		}
		return IndexKey(i), nil
	}
	return Key{name: s}, nil
}

// MarshalText implements encoding.TextMarshaler so keys can be used in
// JSON object keys.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Key) UnmarshalText(b []byte) error {
	parsed, err := ParseKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

var _ json.Marshaler = Key{}

// MarshalJSON encodes the key as its string form.
func (k Key) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}
