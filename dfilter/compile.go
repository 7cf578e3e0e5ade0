// Package dfilter implements the display filter language: a typed expression
// language compiled against a field registry and evaluated against captured
// traffic records.
//
// The filter language supports:
//   - Logical operators: and, or, not, &&, ||, !
//   - Comparison operators: ==, !=, <, >, <=, >=
//   - Substring and pattern operators: contains, matches (~)
//   - Set membership: tcp.port in {80, 443, 8000..8999}
//   - Byte slices: eth.src[0:3] == 00:50:56
//   - Occurrence pinning: ip.addr#2 == 10.0.0.1
//   - Typed fields: integers, strings, byte sequences, IPv4/IPv6 addresses
//     with CIDR matching, hardware addresses, durations and timestamps
//
// Example:
//
//	reg := dfilter.NewStaticRegistry().
//	    AddField("http.host", dfilter.TypeString).
//	    AddField("http.response.code", dfilter.TypeUint)
//
//	filter, err := dfilter.Compile(`http.host contains "example" && http.response.code >= 400`, reg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	rec := dfilter.NewMapRecord().
//	    SetString("http.host", "example.com").
//	    SetUint("http.response.code", 503)
//
//	fmt.Println(filter.Run(rec))
package dfilter

import (
	"fmt"
	"sort"
)

// Compile parses, checks and compiles a filter expression into an executable
// Filter. The registry supplies field and function resolution; it must not
// change for the lifetime of the returned object.
func Compile(text string, reg Registry) (*Filter, error) {
	parser := NewParser(NewLexer(text))
	expr, err := parser.Parse()
	if err != nil {
		return nil, err
	}

	checked, err := Check(expr, reg)
	if err != nil {
		return nil, err
	}

	c := &compiler{
		f:   &Filter{source: text},
		reg: reg,
	}
	if err := c.compileBool(checked); err != nil {
		return nil, err
	}
	return c.f, nil
}

type compiler struct {
	f   *Filter
	reg Registry
}

// internalErrorf reports a compiler-internal inconsistency. These are
// unreachable given a correctly checked tree; they are guarded rather than
// panicking so release builds degrade to a failed compilation.
func internalErrorf(format string, args ...any) error {
	return fmt.Errorf("internal compiler error: "+format, args...)
}

func (c *compiler) emit(op Opcode, a, b int) int {
	c.f.insns = append(c.f.insns, Instruction{Op: op, A: a, B: b})
	return len(c.f.insns) - 1
}

func (c *compiler) patchJump(at int) {
	c.f.insns[at].A = len(c.f.insns)
}

func (c *compiler) constIndex(v Value) int {
	for i, existing := range c.f.consts {
		if existing.Type() == v.Type() && existing.Equal(v) {
			return i
		}
	}
	c.f.consts = append(c.f.consts, v)
	return len(c.f.consts) - 1
}

func (c *compiler) fieldIndex(name string, layer int, typ ValueType) int {
	for i, existing := range c.f.fields {
		if existing.Name == name && existing.Layer == layer {
			return i
		}
	}
	c.f.fields = append(c.f.fields, FieldRef{Name: name, Layer: layer, Type: typ})
	return len(c.f.fields) - 1
}

func (c *compiler) sliceIndex(sr SliceRange) int {
	for i, existing := range c.f.slices {
		if existing == sr {
			return i
		}
	}
	c.f.slices = append(c.f.slices, sr)
	return len(c.f.slices) - 1
}

func (c *compiler) funcIndex(name string) (int, error) {
	for i, existing := range c.f.funcs {
		if existing.name == name {
			return i, nil
		}
	}
	fn, ok := c.reg.Function(name)
	if !ok {
		return 0, internalErrorf("function %q vanished between check and compile", name)
	}
	c.f.funcs = append(c.f.funcs, funcRef{name: name, call: fn.Call})
	return len(c.f.funcs) - 1, nil
}

// compileBool emits instructions that leave one boolean-convertible slot on
// the stack.
func (c *compiler) compileBool(expr Expression) error {
	if v, ok := foldConst(expr); ok {
		c.emit(OpLoadConst, c.constIndex(v), 0)
		return nil
	}

	switch e := expr.(type) {
	case *LogicalExpr:
		return c.compileChain(e)

	case *UnaryExpr:
		if err := c.compileBool(e.Operand); err != nil {
			return err
		}
		c.emit(OpNot, 0, 0)
		return nil

	case *CompareExpr:
		if err := c.compileValue(e.Left); err != nil {
			return err
		}
		if err := c.compileValue(e.Right); err != nil {
			return err
		}
		op, err := cmpOpFor(e.Op)
		if err != nil {
			return err
		}
		c.emit(OpCompare, int(op), 0)
		return nil

	case *SetExpr:
		if err := c.compileValue(e.Elem); err != nil {
			return err
		}
		idx, err := c.setIndex(e)
		if err != nil {
			return err
		}
		c.emit(OpIn, idx, 0)
		return nil

	case *FieldExpr:
		// Bare field reference: existence test. Matches when the record
		// carries the field at all, independent of its value. Sliced
		// references load the bytes and test the slot instead.
		if e.Slice == nil {
			info, ok := c.reg.Field(e.Name)
			if !ok {
				return internalErrorf("field %q vanished between check and compile", e.Name)
			}
			c.emit(OpExists, c.fieldIndex(e.Name, e.Layer, info.Type), 0)
			return nil
		}
		return c.compileValue(e)

	case *CallExpr:
		return c.compileValue(e)

	case *LiteralExpr:
		c.emit(OpLoadConst, c.constIndex(e.Value), 0)
		return nil
	}
	return internalErrorf("unexpected %T in boolean position", expr)
}

// compileChain lowers an &&/|| chain with short-circuit jumps. Operands of
// one chain are ordered cheapest first by static field-lookup count; ties
// keep source order, so reordering never changes the result, only how soon
// the short circuit triggers.
func (c *compiler) compileChain(e *LogicalExpr) error {
	operands := flattenChain(e.Op, e)
	sort.SliceStable(operands, func(i, j int) bool {
		return fieldLookups(operands[i]) < fieldLookups(operands[j])
	})

	jump := OpJumpIfFalse
	if e.Op == TokenOr {
		jump = OpJumpIfTrue
	}

	var pending []int
	for i, operand := range operands {
		if err := c.compileBool(operand); err != nil {
			return err
		}
		if i < len(operands)-1 {
			pending = append(pending, c.emit(jump, 0, 0))
		}
	}
	for _, at := range pending {
		c.patchJump(at)
	}
	return nil
}

func flattenChain(op TokenType, expr Expression) []Expression {
	if logical, ok := expr.(*LogicalExpr); ok && logical.Op == op {
		return append(flattenChain(op, logical.Left), flattenChain(op, logical.Right)...)
	}
	return []Expression{expr}
}

// fieldLookups counts the field references an expression needs per record,
// the static cost proxy used for chain ordering.
func fieldLookups(expr Expression) int {
	switch e := expr.(type) {
	case *LogicalExpr:
		return fieldLookups(e.Left) + fieldLookups(e.Right)
	case *UnaryExpr:
		return fieldLookups(e.Operand)
	case *CompareExpr:
		return fieldLookups(e.Left) + fieldLookups(e.Right)
	case *SetExpr:
		return fieldLookups(e.Elem)
	case *CoerceExpr:
		return fieldLookups(e.Operand)
	case *FieldExpr:
		return 1
	case *CallExpr:
		n := 0
		for _, arg := range e.Args {
			n += fieldLookups(arg)
		}
		return n
	}
	return 0
}

// compileValue emits instructions that leave one value slot on the stack.
func (c *compiler) compileValue(expr Expression) error {
	switch e := expr.(type) {
	case *LiteralExpr:
		c.emit(OpLoadConst, c.constIndex(e.Value), 0)
		return nil

	case *FieldExpr:
		info, ok := c.reg.Field(e.Name)
		if !ok {
			return internalErrorf("field %q vanished between check and compile", e.Name)
		}
		c.emit(OpLoadField, c.fieldIndex(e.Name, e.Layer, info.Type), 0)
		if e.Slice != nil {
			c.emit(OpSlice, c.sliceIndex(*e.Slice), 0)
		}
		return nil

	case *CoerceExpr:
		if err := c.compileValue(e.Operand); err != nil {
			return err
		}
		c.emit(OpCoerce, int(e.To), 0)
		return nil

	case *CallExpr:
		for _, arg := range e.Args {
			if err := c.compileValue(arg); err != nil {
				return err
			}
		}
		idx, err := c.funcIndex(e.Name)
		if err != nil {
			return err
		}
		c.emit(OpCall, idx, len(e.Args))
		return nil
	}
	return internalErrorf("unexpected %T in value position", expr)
}

func (c *compiler) setIndex(e *SetExpr) (int, error) {
	members := make([]setRange, 0, len(e.Members))
	for _, m := range e.Members {
		low, ok := m.Low.(*LiteralExpr)
		if !ok {
			return 0, internalErrorf("unchecked set member %T", m.Low)
		}
		sr := setRange{low: low.Value}
		if m.High != nil {
			high, ok := m.High.(*LiteralExpr)
			if !ok {
				return 0, internalErrorf("unchecked set member %T", m.High)
			}
			sr.high = high.Value
		}
		members = append(members, sr)
	}
	c.f.sets = append(c.f.sets, members)
	return len(c.f.sets) - 1, nil
}

func cmpOpFor(op TokenType) (CmpOp, error) {
	switch op {
	case TokenEq:
		return CmpEq, nil
	case TokenNe:
		return CmpNe, nil
	case TokenGt:
		return CmpGt, nil
	case TokenGe:
		return CmpGe, nil
	case TokenLt:
		return CmpLt, nil
	case TokenLe:
		return CmpLe, nil
	case TokenContains:
		return CmpContains, nil
	case TokenMatches:
		return CmpMatches, nil
	}
	return 0, internalErrorf("token %s is not a comparison operator", op)
}

// foldConst evaluates a sub-expression with no field references or function
// calls at compile time.
func foldConst(expr Expression) (Value, bool) {
	switch e := expr.(type) {
	case *LiteralExpr:
		return e.Value, true

	case *CoerceExpr:
		v, ok := foldConst(e.Operand)
		if !ok {
			return nil, false
		}
		return coerceValue(v, e.To)

	case *UnaryExpr:
		v, ok := foldConst(e.Operand)
		if !ok {
			return nil, false
		}
		return BoolValue(!truthyValue(v)), true

	case *LogicalExpr:
		left, ok := foldConst(e.Left)
		if !ok {
			return nil, false
		}
		right, ok := foldConst(e.Right)
		if !ok {
			return nil, false
		}
		if e.Op == TokenAnd {
			return BoolValue(truthyValue(left) && truthyValue(right)), true
		}
		return BoolValue(truthyValue(left) || truthyValue(right)), true

	case *CompareExpr:
		left, ok := foldConst(e.Left)
		if !ok {
			return nil, false
		}
		right, ok := foldConst(e.Right)
		if !ok {
			return nil, false
		}
		op, err := cmpOpFor(e.Op)
		if err != nil {
			return nil, false
		}
		return BoolValue(compareValues(op, left, right)), true

	case *SetExpr:
		elem, ok := foldConst(e.Elem)
		if !ok {
			return nil, false
		}
		for _, m := range e.Members {
			low, ok := foldConst(m.Low)
			if !ok {
				return nil, false
			}
			if m.High == nil {
				if compareValues(CmpEq, elem, low) {
					return BoolValue(true), true
				}
				continue
			}
			high, ok := foldConst(m.High)
			if !ok {
				return nil, false
			}
			if compareValues(CmpGe, elem, low) && compareValues(CmpLe, elem, high) {
				return BoolValue(true), true
			}
		}
		return BoolValue(false), true
	}
	return nil, false
}

func truthyValue(v Value) bool {
	if b, ok := v.(BoolValue); ok {
		return bool(b)
	}
	return true
}
