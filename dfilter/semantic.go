package dfilter

import (
	"fmt"
	"regexp"
)

// Check resolves every name in the tree against the registry, assigns static
// types, inserts coercions and validates arity. It returns a rewritten tree
// in which every literal carries a concrete value; the input tree must not
// be reused afterwards. Analysis stops at the first error.
func Check(expr Expression, reg Registry) (Expression, error) {
	c := &checker{reg: reg}
	out, err := c.checkBool(expr)
	if err != nil {
		return nil, err
	}
	return out, nil
}

type checker struct {
	reg Registry
}

// operand is the result of typing one side of an operator. A deferred
// operand is an unparsed literal or an unresolved identifier whose kind is
// decided by the other side.
type operand struct {
	expr     Expression
	typ      ValueType
	deferred bool
	raw      string // literal text for deferred operands
}

// checkBool types an expression in boolean context.
func (c *checker) checkBool(expr Expression) (Expression, error) {
	switch e := expr.(type) {
	case *LogicalExpr:
		left, err := c.checkBool(e.Left)
		if err != nil {
			return nil, err
		}
		right, err := c.checkBool(e.Right)
		if err != nil {
			return nil, err
		}
		e.Left, e.Right = left, right
		return e, nil

	case *UnaryExpr:
		operand, err := c.checkBool(e.Operand)
		if err != nil {
			return nil, err
		}
		e.Operand = operand
		return e, nil

	case *CompareExpr:
		return c.checkCompare(e)

	case *SetExpr:
		return c.checkSet(e)

	case *FieldExpr:
		// A bare field reference is an existence test.
		if _, err := c.resolveField(e); err != nil {
			return nil, err
		}
		return e, nil

	case *CallExpr:
		checked, _, err := c.checkCall(e)
		if err != nil {
			return nil, err
		}
		return checked, nil

	case *LiteralExpr:
		if _, ok := e.Value.(BoolValue); ok {
			return e, nil
		}
		return nil, errorf(TypeMismatch, e.Loc(), "%s literal is not a valid boolean expression", e.Value.Type())
	}
	return nil, errorf(TypeMismatch, expr.Loc(), "expression is not a valid boolean")
}

// resolveField looks the field up in the registry and returns its static
// type: the declared kind, or bytes when a slice is applied.
func (c *checker) resolveField(e *FieldExpr) (ValueType, error) {
	info, ok := c.reg.Field(e.Name)
	if !ok {
		return TypeUnparsed, errorf(UnknownIdentifier, e.Loc(), "%q is not a known field or protocol", e.Name)
	}
	if e.Slice != nil {
		return TypeBytes, nil
	}
	return info.Type, nil
}

// typeOperand types one side of a comparison or membership test.
func (c *checker) typeOperand(expr Expression) (operand, error) {
	switch e := expr.(type) {
	case *FieldExpr:
		info, ok := c.reg.Field(e.Name)
		if !ok {
			// Possibly a literal written without quotes; the decision is
			// deferred until the other side's kind is known.
			return operand{expr: e, deferred: true, raw: e.Name}, nil
		}
		typ := info.Type
		if e.Slice != nil {
			typ = TypeBytes
		}
		return operand{expr: e, typ: typ}, nil

	case *LiteralExpr:
		if u, ok := e.Value.(UnparsedValue); ok {
			return operand{expr: e, deferred: true, raw: string(u)}, nil
		}
		return operand{expr: e, typ: e.Value.Type()}, nil

	case *CallExpr:
		checked, typ, err := c.checkCall(e)
		if err != nil {
			return operand{}, err
		}
		return operand{expr: checked, typ: typ}, nil
	}
	return operand{}, errorf(TypeMismatch, expr.Loc(), "expression cannot be used as a comparison operand")
}

// settle forces a deferred operand to the wanted kind by retyping its
// literal text.
func (c *checker) settle(op operand, want ValueType) (operand, error) {
	if !op.deferred {
		return op, nil
	}
	v, ok := parseLiteralAs(op.raw, want)
	if !ok {
		if _, isField := op.expr.(*FieldExpr); isField {
			return operand{}, errorf(UnknownIdentifier, op.expr.Loc(), "%q is not a known field and cannot be interpreted as %s", op.raw, want)
		}
		return operand{}, errorf(TypeMismatch, op.expr.Loc(), "%q cannot be interpreted as %s", op.raw, want)
	}
	lit := &LiteralExpr{Value: v, Span: op.expr.Loc()}
	return operand{expr: lit, typ: v.Type()}, nil
}

func (c *checker) checkCompare(e *CompareExpr) (Expression, error) {
	left, err := c.typeOperand(e.Left)
	if err != nil {
		return nil, err
	}
	right, err := c.typeOperand(e.Right)
	if err != nil {
		return nil, err
	}

	if e.Op == TokenMatches {
		return c.checkMatches(e, left, right)
	}

	switch {
	case left.deferred && right.deferred:
		// Neither side names a known field. Report the left one.
		if f, ok := left.expr.(*FieldExpr); ok {
			return nil, errorf(UnknownIdentifier, f.Loc(), "%q is not a known field or protocol", f.Name)
		}
		return nil, errorf(TypeMismatch, e.Loc(), "comparison has no typed operand")
	case left.deferred:
		left, err = c.settle(left, right.typ)
	case right.deferred:
		right, err = c.settle(right, left.typ)
	}
	if err != nil {
		return nil, err
	}

	left, right, err = c.unify(e, left, right)
	if err != nil {
		return nil, err
	}

	if isOrderingOp(e.Op) && !left.typ.Ordered() {
		return nil, errorf(TypeMismatch, e.Loc(), "%s values cannot be ordered with %s", left.typ, e.Op)
	}
	if e.Op == TokenContains {
		switch left.typ {
		case TypeString, TypeBytes, TypeIPv4, TypeIPv6:
		default:
			return nil, errorf(TypeMismatch, e.Loc(), "contains is not defined for %s values", left.typ)
		}
	}

	e.Left, e.Right = left.expr, right.expr
	return e, nil
}

// unify reconciles the kinds of the two comparison sides, inserting a
// coercion node or retyping a literal when a defined conversion exists.
func (c *checker) unify(e *CompareExpr, left, right operand) (operand, operand, error) {
	if compatibleKinds(left.typ, right.typ) {
		return left, right, nil
	}

	if coerced, ok := c.coerce(right, left.typ); ok {
		return left, coerced, nil
	}
	if coerced, ok := c.coerce(left, right.typ); ok {
		return coerced, right, nil
	}
	return operand{}, operand{}, errorf(TypeMismatch, e.Loc(), "cannot compare %s with %s", left.typ, right.typ)
}

// coerce converts an operand to the wanted kind when a defined coercion
// exists: literal values are retyped in place, field references are wrapped
// in an explicit coercion node.
func (c *checker) coerce(op operand, want ValueType) (operand, bool) {
	if !coercionDefined(op.typ, want) {
		return operand{}, false
	}
	if lit, ok := op.expr.(*LiteralExpr); ok {
		if v, ok := coerceValue(lit.Value, want); ok {
			return operand{expr: &LiteralExpr{Value: v, Span: lit.Span}, typ: want}, true
		}
		return operand{}, false
	}
	return operand{expr: &CoerceExpr{To: want, Operand: op.expr}, typ: want}, true
}

func (c *checker) checkMatches(e *CompareExpr, left, right operand) (Expression, error) {
	if left.deferred {
		var err error
		left, err = c.settle(left, TypeString)
		if err != nil {
			return nil, err
		}
	}
	switch left.typ {
	case TypeString, TypeBytes:
	default:
		return nil, errorf(TypeMismatch, e.Left.Loc(), "matches requires a string or bytes operand, not %s", left.typ)
	}

	var pattern string
	switch rv := right.expr.(type) {
	case *LiteralExpr:
		switch v := rv.Value.(type) {
		case RegexValue:
			pattern = v.Pattern
		case StringValue:
			pattern = string(v)
		case UnparsedValue:
			pattern = string(v)
		default:
			return nil, errorf(TypeMismatch, rv.Loc(), "matches requires a pattern, not a %s literal", rv.Value.Type())
		}
	case *FieldExpr:
		if right.deferred {
			pattern = rv.Name
		} else {
			return nil, errorf(TypeMismatch, rv.Loc(), "matches requires a literal pattern")
		}
	default:
		return nil, errorf(TypeMismatch, right.expr.Loc(), "matches requires a literal pattern")
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errorf(PatternError, right.expr.Loc(), "invalid regular expression: %v", err)
	}

	e.Left = left.expr
	e.Right = &LiteralExpr{Value: RegexValue{Pattern: pattern, re: re}, Span: right.expr.Loc()}
	return e, nil
}

func (c *checker) checkSet(e *SetExpr) (Expression, error) {
	elem, err := c.typeOperand(e.Elem)
	if err != nil {
		return nil, err
	}
	if elem.deferred {
		if f, ok := elem.expr.(*FieldExpr); ok {
			return nil, errorf(UnknownIdentifier, f.Loc(), "%q is not a known field or protocol", f.Name)
		}
		return nil, errorf(TypeMismatch, e.Elem.Loc(), "membership test has no typed element")
	}
	e.Elem = elem.expr

	for i := range e.Members {
		m := &e.Members[i]
		low, err := c.checkSetValue(m.Low, elem.typ)
		if err != nil {
			return nil, err
		}
		m.Low = low
		if m.High != nil {
			if !elem.typ.Ordered() {
				return nil, errorf(TypeMismatch, m.High.Loc(), "%s values cannot form a range", elem.typ)
			}
			high, err := c.checkSetValue(m.High, elem.typ)
			if err != nil {
				return nil, err
			}
			m.High = high
		}
	}
	return e, nil
}

func (c *checker) checkSetValue(expr Expression, want ValueType) (Expression, error) {
	op, err := c.typeOperand(expr)
	if err != nil {
		return nil, err
	}
	if op.deferred {
		op, err = c.settle(op, want)
		if err != nil {
			return nil, err
		}
		return op.expr, nil
	}
	if compatibleKinds(op.typ, want) {
		return op.expr, nil
	}
	if coerced, ok := c.coerce(op, want); ok {
		return coerced.expr, nil
	}
	return nil, errorf(TypeMismatch, expr.Loc(), "set member is %s, expected %s", op.typ, want)
}

func (c *checker) checkCall(e *CallExpr) (Expression, ValueType, error) {
	fn, ok := c.reg.Function(e.Name)
	if !ok {
		return nil, TypeUnparsed, errorf(UnknownIdentifier, e.Loc(), "%q is not a known function", e.Name)
	}
	if len(e.Args) < fn.MinArgs || (fn.MaxArgs >= 0 && len(e.Args) > fn.MaxArgs) {
		return nil, TypeUnparsed, errorf(ArityError, e.Loc(), "%s: %s", e.Name, arityMessage(fn, len(e.Args)))
	}

	for i, arg := range e.Args {
		op, err := c.typeOperand(arg)
		if err != nil {
			return nil, TypeUnparsed, err
		}
		if op.deferred {
			// Argument position gives an unresolved name no kind to settle
			// against, so unknown fields are rejected here rather than
			// treated as unquoted literals.
			if f, ok := op.expr.(*FieldExpr); ok {
				return nil, TypeUnparsed, errorf(UnknownIdentifier, f.Loc(), "%q is not a known field or protocol", f.Name)
			}
			op, err = c.settle(op, TypeString)
			if err != nil {
				return nil, TypeUnparsed, err
			}
		}
		e.Args[i] = op.expr
	}
	return e, fn.Return, nil
}

func arityMessage(fn FuncInfo, got int) string {
	switch {
	case fn.MaxArgs < 0:
		return fmt.Sprintf("takes at least %d argument(s), %d given", fn.MinArgs, got)
	case fn.MinArgs == fn.MaxArgs:
		return fmt.Sprintf("takes %d argument(s), %d given", fn.MinArgs, got)
	default:
		return fmt.Sprintf("takes %d to %d arguments, %d given", fn.MinArgs, fn.MaxArgs, got)
	}
}

func isOrderingOp(op TokenType) bool {
	switch op {
	case TokenLt, TokenGt, TokenLe, TokenGe:
		return true
	}
	return false
}

// compatibleKinds reports whether two kinds compare without a coercion.
func compatibleKinds(a, b ValueType) bool {
	if a == b {
		return true
	}
	if isNumericKind(a) && isNumericKind(b) {
		return true
	}
	if isAddressKind(a) && isAddressKind(b) {
		return true
	}
	return false
}

func isNumericKind(t ValueType) bool {
	return t == TypeInt || t == TypeUint || t == TypeFloat
}

func isAddressKind(t ValueType) bool {
	return t == TypeIPv4 || t == TypeIPv6
}

// coercionDefined enumerates the conversions the analyzer may insert.
func coercionDefined(from, to ValueType) bool {
	switch {
	case isNumericKind(from) && isNumericKind(to):
		return true
	case from == TypeString && to == TypeBytes:
		return true
	case from == TypeBytes && to == TypeString:
		return true
	case from == TypeBytes && to == TypeEther:
		return true
	case from == TypeEther && to == TypeBytes:
		return true
	case isNumericKind(from) && to == TypeDuration:
		return true
	case isNumericKind(from) && to == TypeBool:
		return true
	case from == TypeString && to == TypeTime:
		return true
	}
	return false
}

// coerceValue converts a concrete value to the wanted kind.
func coerceValue(v Value, to ValueType) (Value, bool) {
	switch to {
	case TypeInt:
		switch n := v.(type) {
		case IntValue:
			return n, true
		case UintValue:
			return IntValue(n), true
		case FloatValue:
			return FloatValue(n), true // exact integer coercion would lose fractions
		}
	case TypeUint:
		switch n := v.(type) {
		case UintValue:
			return n, true
		case IntValue:
			return n, true // negative literals stay signed, runtime compares numerically
		case FloatValue:
			return n, true
		}
	case TypeFloat:
		switch n := v.(type) {
		case FloatValue:
			return n, true
		case IntValue:
			return FloatValue(n), true
		case UintValue:
			return FloatValue(n), true
		}
	case TypeBytes:
		switch s := v.(type) {
		case BytesValue:
			return s, true
		case StringValue:
			return BytesValue([]byte(s)), true
		case EtherValue:
			return BytesValue(s[:]), true
		}
	case TypeString:
		if b, ok := v.(BytesValue); ok {
			return StringValue(b), true
		}
	case TypeEther:
		if b, ok := v.(BytesValue); ok && len(b) == 6 {
			var e EtherValue
			copy(e[:], b)
			return e, true
		}
	case TypeBool:
		if f, ok := toFloat(v); ok {
			return BoolValue(f != 0), true
		}
	case TypeDuration:
		if f, ok := toFloat(v); ok {
			return DurationValue(f * 1e9), true
		}
	case TypeTime:
		if s, ok := v.(StringValue); ok {
			return parseLiteralAs(string(s), TypeTime)
		}
	}
	return nil, false
}
