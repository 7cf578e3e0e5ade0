package dfilter

import "fmt"

// Opcode identifies one VM instruction.
type Opcode uint8

const (
	// OpLoadConst pushes constant pool entry A.
	OpLoadConst Opcode = iota
	// OpLoadField pushes all occurrence values of field table entry A, an
	// empty slot when the record lacks the field.
	OpLoadField
	// OpExists pushes whether the record carries field table entry A at all,
	// independent of its value.
	OpExists
	// OpSlice applies slice table entry A to every value on the top slot,
	// producing byte values.
	OpSlice
	// OpCompare pops the right then left slot and pushes whether any pair
	// of occurrence values satisfies comparison operator A.
	OpCompare
	// OpIn pops the top slot and pushes whether any of its values belongs
	// to set table entry A.
	OpIn
	// OpNot pops the top slot and pushes its negated truthiness.
	OpNot
	// OpCoerce converts every value on the top slot to kind A; values with
	// no defined conversion are dropped from the slot.
	OpCoerce
	// OpCall pops B argument slots and calls function table entry A.
	OpCall
	// OpJumpIfTrue jumps to A when the top slot is truthy, replacing it
	// with true; otherwise pops it.
	OpJumpIfTrue
	// OpJumpIfFalse jumps to A when the top slot is falsy, replacing it
	// with false; otherwise pops it.
	OpJumpIfFalse
)

var opcodeNames = map[Opcode]string{
	OpLoadConst:   "load_const",
	OpLoadField:   "load_field",
	OpExists:      "exists",
	OpSlice:       "slice",
	OpCompare:     "compare",
	OpIn:          "in",
	OpNot:         "not",
	OpCoerce:      "coerce",
	OpCall:        "call",
	OpJumpIfTrue:  "jump_if_true",
	OpJumpIfFalse: "jump_if_false",
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", op)
}

// CmpOp selects the comparison an OpCompare instruction performs.
type CmpOp uint8

const (
	CmpEq CmpOp = iota
	CmpNe
	CmpGt
	CmpGe
	CmpLt
	CmpLe
	CmpContains
	CmpMatches
)

var cmpOpNames = map[CmpOp]string{
	CmpEq:       "==",
	CmpNe:       "!=",
	CmpGt:       ">",
	CmpGe:       ">=",
	CmpLt:       "<",
	CmpLe:       "<=",
	CmpContains: "contains",
	CmpMatches:  "matches",
}

func (op CmpOp) String() string {
	if name, ok := cmpOpNames[op]; ok {
		return name
	}
	return fmt.Sprintf("cmp(%d)", op)
}

// Instruction is one VM instruction: an opcode and up to two operands whose
// meaning depends on the opcode.
type Instruction struct {
	Op Opcode
	A  int
	B  int
}

// FieldRef is one entry of a compiled filter's field table: the resolved
// field identity, the pinned occurrence (0 when the comparison quantifies
// over all occurrences) and the field's declared kind.
type FieldRef struct {
	Name  string
	Layer int
	Type  ValueType
}

// setRange is one member of a compiled membership set.
type setRange struct {
	low  Value
	high Value // nil for single values
}

// funcRef binds a call site to its resolved function.
type funcRef struct {
	name string
	call FilterFunc
}

// Filter is the compiled, executable form of a filter expression: a flat
// instruction sequence over a constant pool, a field table, a slice table
// and a set table. It is immutable after compilation and safe for
// concurrent evaluation; it holds no reference to the AST that produced it.
type Filter struct {
	source string
	insns  []Instruction
	consts []Value
	fields []FieldRef
	slices []SliceRange
	sets   [][]setRange
	funcs  []funcRef
}

// Source returns the filter text the object was compiled from.
func (f *Filter) Source() string {
	return f.source
}

// Instructions returns a copy of the compiled instruction sequence.
func (f *Filter) Instructions() []Instruction {
	out := make([]Instruction, len(f.insns))
	copy(out, f.insns)
	return out
}

// FieldReferences enumerates the field table: exactly the field references
// the source expression uses, in first-use order.
func (f *Filter) FieldReferences() []FieldRef {
	out := make([]FieldRef, len(f.fields))
	copy(out, f.fields)
	return out
}

// Constants enumerates the constant pool: exactly the constants the source
// expression uses, in first-use order. Set members are not constants; they
// live in the set table.
func (f *Filter) Constants() []Value {
	out := make([]Value, len(f.consts))
	copy(out, f.consts)
	return out
}
