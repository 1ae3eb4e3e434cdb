// Package layout splits rendered fields into the body and the options
// area of a descriptions view.
package layout

// Item is anything that knows whether it belongs to the options area.
type Item interface {
	Option() bool
}

// Layout is the partitioned field list.
type Layout[T Item] struct {
	Body    []T `json:"body"`
	Options []T `json:"options"`
}

// Partition splits items by Option, preserving relative order in both
// groups. Neither result slice is nil.
func Partition[T Item](items []T) Layout[T] {
	out := Layout[T]{
		Body:    make([]T, 0, len(items)),
		Options: make([]T, 0),
	}
	for _, it := range items {
		if it.Option() {
			out.Options = append(out.Options, it)
		} else {
			out.Body = append(out.Body, it)
		}
	}
	return out
}

// Len returns the total number of items.
func (l Layout[T]) Len() int {
	return len(l.Body) + len(l.Options)
}
