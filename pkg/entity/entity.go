package entity

import (
	"strconv"
	"strings"
)

// Entity is the record a descriptions view presents. Nested objects are
// map[string]interface{} (or Entity) values; lists are []interface{}.
type Entity map[string]interface{}

// Path is an ordered sequence of keys addressing a value inside an Entity.
// A single key is a one-element path.
type Path []string

// ParsePath splits a dotted path ("owner.address.city"). An empty string
// yields a nil path.
func ParsePath(s string) Path {
	if s == "" {
		return nil
	}
	return Path(strings.Split(s, "."))
}

// String joins the path with dots.
func (p Path) String() string {
	return strings.Join(p, ".")
}

// IsZero reports whether the path has no segments.
func (p Path) IsZero() bool {
	return len(p) == 0
}

// Equal reports whether two paths address the same value.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// Resolve returns the value at path. Missing keys, missing intermediates,
// out-of-range list indexes and traversal through scalars all yield
// (nil, false); Resolve never panics.
func Resolve(e Entity, path Path) (interface{}, bool) {
	if e == nil || len(path) == 0 {
		return nil, false
	}
	var cur interface{} = map[string]interface{}(e)
	for _, seg := range path {
		next, ok := step(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func step(cur interface{}, seg string) (interface{}, bool) {
	switch node := cur.(type) {
	case map[string]interface{}:
		v, ok := node[seg]
		return v, ok
	case Entity:
		v, ok := node[seg]
		return v, ok
	case []interface{}:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(node) {
			return nil, false
		}
		return node[i], true
	default:
		return nil, false
	}
}

// Set returns a copy of e with value stored at path. Intermediate objects
// are created as needed; e itself is never modified. Setting through a
// list element replaces that element in a copied list.
func Set(e Entity, path Path, value interface{}) Entity {
	out := Clone(e)
	if out == nil {
		out = Entity{}
	}
	if len(path) == 0 {
		return out
	}
	out[path[0]] = setIn(out[path[0]], path[1:], value)
	return out
}

func setIn(cur interface{}, rest Path, value interface{}) interface{} {
	if len(rest) == 0 {
		return value
	}
	seg := rest[0]
	if list, ok := cur.([]interface{}); ok {
		if i, err := strconv.Atoi(seg); err == nil && i >= 0 && i < len(list) {
			cp := make([]interface{}, len(list))
			copy(cp, list)
			cp[i] = setIn(cp[i], rest[1:], value)
			return cp
		}
	}
	m := asMap(cur)
	cp := make(map[string]interface{}, len(m)+1)
	for k, v := range m {
		cp[k] = v
	}
	cp[seg] = setIn(cp[seg], rest[1:], value)
	return cp
}

// Delete returns a copy of e without the value at path. A missing path
// returns an unchanged copy.
func Delete(e Entity, path Path) Entity {
	out := Clone(e)
	if out == nil || len(path) == 0 {
		return out
	}
	if len(path) == 1 {
		delete(out, path[0])
		return out
	}
	if child, ok := out[path[0]]; ok {
		out[path[0]] = deleteIn(child, path[1:])
	}
	return out
}

func deleteIn(cur interface{}, rest Path) interface{} {
	m, ok := toMap(cur)
	if !ok {
		return cur
	}
	cp := make(map[string]interface{}, len(m))
	for k, v := range m {
		cp[k] = v
	}
	if len(rest) == 1 {
		delete(cp, rest[0])
		return cp
	}
	if child, ok := cp[rest[0]]; ok {
		cp[rest[0]] = deleteIn(child, rest[1:])
	}
	return cp
}

// Clone returns a deep copy of e. Maps and lists are copied; other values
// are shared.
func Clone(e Entity) Entity {
	if e == nil {
		return nil
	}
	out := make(Entity, len(e))
	for k, v := range e {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		cp := make(map[string]interface{}, len(t))
		for k, val := range t {
			cp[k] = cloneValue(val)
		}
		return cp
	case Entity:
		return map[string]interface{}(Clone(t))
	case []interface{}:
		cp := make([]interface{}, len(t))
		for i, val := range t {
			cp[i] = cloneValue(val)
		}
		return cp
	default:
		return v
	}
}

func toMap(v interface{}) (map[string]interface{}, bool) {
	switch t := v.(type) {
	case map[string]interface{}:
		return t, true
	case Entity:
		return t, true
	default:
		return nil, false
	}
}

func asMap(v interface{}) map[string]interface{} {
	if m, ok := toMap(v); ok {
		return m
	}
	return nil
}
