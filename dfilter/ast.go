package dfilter

// Node is the base interface for all AST nodes. Every node carries the
// location of the source span it was parsed from.
type Node interface {
	node()
	Loc() Loc
}

// Expression represents an expression in the AST. The tree is strictly
// single-parent: each node exclusively owns its children.
type Expression interface {
	Node
	expression()
}

// LogicalExpr represents a short-circuiting logical expression
// (left && right, left || right).
type LogicalExpr struct {
	Op    TokenType // TokenAnd or TokenOr
	Left  Expression
	Right Expression
	Span  Loc
}

func (e *LogicalExpr) node()       {}
func (e *LogicalExpr) expression() {}
func (e *LogicalExpr) Loc() Loc    { return e.Span }

// UnaryExpr represents logical negation (!expr).
type UnaryExpr struct {
	Operand Expression
	Span    Loc
}

func (e *UnaryExpr) node()       {}
func (e *UnaryExpr) expression() {}
func (e *UnaryExpr) Loc() Loc    { return e.Span }

// CompareExpr represents a comparison (==, !=, <, <=, >, >=, contains,
// matches).
type CompareExpr struct {
	Op    TokenType
	Left  Expression
	Right Expression
	Span  Loc
}

func (e *CompareExpr) node()       {}
func (e *CompareExpr) expression() {}
func (e *CompareExpr) Loc() Loc    { return e.Span }

// SliceMode selects how the two slice bounds are interpreted.
type SliceMode uint8

const (
	// SliceOffsetLength is the [start:length] form.
	SliceOffsetLength SliceMode = iota
	// SliceRangeForm is the inclusive [start-end] form.
	SliceRangeForm
	// SliceSingle is the single byte [index] form.
	SliceSingle
)

// SliceRange describes a byte slice applied to a field value. A negative
// Start counts from the end of the value.
type SliceRange struct {
	Mode   SliceMode
	Start  int
	Length int // length for SliceOffsetLength, inclusive end for SliceRangeForm
}

// FieldExpr represents a field reference, optionally pinned to the Nth
// occurrence of the field within a record (Layer, 1-based, 0 when unset) and
// optionally byte-sliced.
type FieldExpr struct {
	Name  string
	Layer int
	Slice *SliceRange
	Span  Loc
}

func (e *FieldExpr) node()       {}
func (e *FieldExpr) expression() {}
func (e *FieldExpr) Loc() Loc    { return e.Span }

// LiteralExpr represents a literal value. Directly after parsing the value
// may be an UnparsedValue; semantic analysis replaces it with a concrete one.
type LiteralExpr struct {
	Value Value
	Span  Loc
}

func (e *LiteralExpr) node()       {}
func (e *LiteralExpr) expression() {}
func (e *LiteralExpr) Loc() Loc    { return e.Span }

// CallExpr represents a function call with an ordered argument list.
type CallExpr struct {
	Name string
	Args []Expression
	Span Loc
}

func (e *CallExpr) node()       {}
func (e *CallExpr) expression() {}
func (e *CallExpr) Loc() Loc    { return e.Span }

// SetMember is one element of a membership set: a single value, or an
// inclusive range when High is non-nil.
type SetMember struct {
	Low  Expression
	High Expression
}

// SetExpr represents a set-membership test (elem in {m1, m2, lo..hi}).
type SetExpr struct {
	Elem    Expression
	Members []SetMember
	Span    Loc
}

func (e *SetExpr) node()       {}
func (e *SetExpr) expression() {}
func (e *SetExpr) Loc() Loc    { return e.Span }

// CoerceExpr is inserted by the semantic analyzer around an operand whose
// value must be converted to a compatible kind before comparison. It never
// appears in a freshly parsed tree.
type CoerceExpr struct {
	To      ValueType
	Operand Expression
}

func (e *CoerceExpr) node()       {}
func (e *CoerceExpr) expression() {}
func (e *CoerceExpr) Loc() Loc    { return e.Operand.Loc() }
