package dfilter

import "fmt"

// Loc describes a span of the filter text: a start column and a length,
// both in bytes. It is attached to tokens, AST nodes and errors so an
// interactive editor can highlight the offending span.
type Loc struct {
	Start int
	Len   int
}

// LocEmpty is the distinguished "no position" location, used for synthetic
// nodes and for errors with no meaningful span.
var LocEmpty = Loc{Start: -1, Len: 0}

// IsEmpty reports whether the location carries no position.
func (l Loc) IsEmpty() bool {
	return l.Start < 0
}

// End returns the column one past the last byte of the span.
func (l Loc) End() int {
	return l.Start + l.Len
}

func (l Loc) String() string {
	if l.IsEmpty() {
		return "<no location>"
	}
	return fmt.Sprintf("%d:%d", l.Start, l.Len)
}

// spanLoc returns the location covering both a and b. Empty locations are
// ignored; the result is empty only if both are.
func spanLoc(a, b Loc) Loc {
	if a.IsEmpty() {
		return b
	}
	if b.IsEmpty() {
		return a
	}
	start := a.Start
	if b.Start < start {
		start = b.Start
	}
	end := a.End()
	if b.End() > end {
		end = b.End()
	}
	return Loc{Start: start, Len: end - start}
}
