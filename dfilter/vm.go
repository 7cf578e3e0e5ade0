package dfilter

import (
	"bytes"
	"regexp"
	"strings"
)

// Run evaluates the compiled filter against one record and reports whether
// it matches. The filter is read-only and may be run from any number of
// goroutines concurrently; all mutable state lives on the call stack.
//
// Evaluation never fails for a well-formed filter: absent fields make the
// comparisons that consume them false, and a bare field reference is an
// existence test.
func (f *Filter) Run(rec Record) bool {
	// Each stack slot holds the occurrence values of one operand; a
	// comparison is true when any pair of occurrence values satisfies it.
	stack := make([][]Value, 0, 8)

	push := func(s []Value) {
		stack = append(stack, s)
	}
	pop := func() []Value {
		if len(stack) == 0 {
			return nil
		}
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return s
	}

	for pc := 0; pc < len(f.insns); pc++ {
		insn := f.insns[pc]
		switch insn.Op {
		case OpLoadConst:
			push([]Value{f.consts[insn.A]})

		case OpLoadField:
			push(f.loadField(rec, f.fields[insn.A]))

		case OpExists:
			ref := f.fields[insn.A]
			if ref.Layer > 0 {
				_, ok := rec.Field(ref.Name, ref.Layer)
				push(boolSlot(ok))
			} else {
				push(boolSlot(rec.Occurrences(ref.Name) > 0))
			}

		case OpSlice:
			push(applySlice(pop(), f.slices[insn.A]))

		case OpCompare:
			right := pop()
			left := pop()
			push(boolSlot(anyMatch(CmpOp(insn.A), left, right)))

		case OpIn:
			push(boolSlot(anyMember(pop(), f.sets[insn.A])))

		case OpNot:
			push(boolSlot(!truthySlot(pop())))

		case OpCoerce:
			push(coerceSlot(pop(), ValueType(insn.A)))

		case OpCall:
			args := make([][]Value, insn.B)
			for i := insn.B - 1; i >= 0; i-- {
				args[i] = pop()
			}
			out, err := f.funcs[insn.A].call(args)
			if err != nil {
				out = nil
			}
			push(out)

		case OpJumpIfTrue:
			if truthySlot(pop()) {
				push(boolSlot(true))
				pc = insn.A - 1
			}

		case OpJumpIfFalse:
			if !truthySlot(pop()) {
				push(boolSlot(false))
				pc = insn.A - 1
			}
		}
	}

	if len(stack) != 1 {
		// Unreachable for a well-formed program; degrade to no match.
		return false
	}
	return truthySlot(stack[0])
}

func (f *Filter) loadField(rec Record, ref FieldRef) []Value {
	if ref.Layer > 0 {
		if v, ok := rec.Field(ref.Name, ref.Layer); ok {
			return []Value{v}
		}
		return nil
	}
	n := rec.Occurrences(ref.Name)
	if n == 0 {
		return nil
	}
	out := make([]Value, 0, n)
	for i := 1; i <= n; i++ {
		if v, ok := rec.Field(ref.Name, i); ok {
			out = append(out, v)
		}
	}
	return out
}

func boolSlot(b bool) []Value {
	return []Value{BoolValue(b)}
}

// truthySlot is the boolean reading of a slot: an empty slot (absent field,
// empty slice result) is false, a single boolean is itself, and any other
// non-empty slot is true.
func truthySlot(s []Value) bool {
	if len(s) == 0 {
		return false
	}
	if len(s) == 1 {
		if b, ok := s[0].(BoolValue); ok {
			return bool(b)
		}
	}
	return true
}

func anyMatch(op CmpOp, left, right []Value) bool {
	for _, lv := range left {
		for _, rv := range right {
			if compareValues(op, lv, rv) {
				return true
			}
		}
	}
	return false
}

func anyMember(slot []Value, members []setRange) bool {
	for _, v := range slot {
		for _, m := range members {
			if m.high == nil {
				if compareValues(CmpEq, v, m.low) {
					return true
				}
				continue
			}
			if compareValues(CmpGe, v, m.low) && compareValues(CmpLe, v, m.high) {
				return true
			}
		}
	}
	return false
}

func coerceSlot(slot []Value, to ValueType) []Value {
	out := make([]Value, 0, len(slot))
	for _, v := range slot {
		if c, ok := coerceValue(v, to); ok {
			out = append(out, c)
		}
	}
	return out
}

// compareValues applies one comparison operator to a pair of values.
// Dispatch is an exhaustive switch over the closed kind set; kinds with no
// defined semantics for the operator compare as false.
func compareValues(op CmpOp, a, b Value) bool {
	switch op {
	case CmpEq:
		return a.Equal(b)
	case CmpNe:
		return !a.Equal(b)
	case CmpGt, CmpGe, CmpLt, CmpLe:
		c, ok := orderValues(a, b)
		if !ok {
			return false
		}
		switch op {
		case CmpGt:
			return c > 0
		case CmpGe:
			return c >= 0
		case CmpLt:
			return c < 0
		default:
			return c <= 0
		}
	case CmpContains:
		return containsValue(a, b)
	case CmpMatches:
		return matchesValue(a, b)
	}
	return false
}

func containsValue(a, b Value) bool {
	switch av := a.(type) {
	case StringValue:
		switch bv := b.(type) {
		case StringValue:
			return strings.Contains(string(av), string(bv))
		case BytesValue:
			return strings.Contains(string(av), string(bv))
		}
	case BytesValue:
		switch bv := b.(type) {
		case BytesValue:
			return bytes.Contains(av, bv)
		case StringValue:
			return bytes.Contains(av, []byte(bv))
		}
	case IPValue:
		// Subnet containment for the masked form.
		if bv, ok := b.(IPValue); ok {
			return av.Equal(bv)
		}
	}
	return false
}

func matchesValue(a, b Value) bool {
	rv, ok := b.(RegexValue)
	if !ok {
		return false
	}
	re := rv.re
	if re == nil {
		var err error
		re, err = regexp.Compile(rv.Pattern)
		if err != nil {
			return false
		}
	}
	switch av := a.(type) {
	case StringValue:
		return re.MatchString(string(av))
	case BytesValue:
		return re.Match(av)
	}
	return false
}

// applySlice extracts a byte range from every value in the slot. Values of
// kinds with no byte representation are dropped; out-of-range slices clamp
// to the available bytes.
func applySlice(slot []Value, sr SliceRange) []Value {
	out := make([]Value, 0, len(slot))
	for _, v := range slot {
		raw, ok := valueBytes(v)
		if !ok {
			continue
		}
		if sliced, ok := sliceBytes(raw, sr); ok {
			out = append(out, BytesValue(sliced))
		}
	}
	return out
}

func valueBytes(v Value) ([]byte, bool) {
	switch val := v.(type) {
	case BytesValue:
		return val, true
	case StringValue:
		return []byte(val), true
	case EtherValue:
		return val[:], true
	case IPValue:
		if ip4 := val.IP.To4(); ip4 != nil {
			return ip4, true
		}
		return val.IP.To16(), true
	}
	return nil, false
}

func sliceBytes(raw []byte, sr SliceRange) ([]byte, bool) {
	n := len(raw)
	resolve := func(i int) int {
		if i < 0 {
			return n + i
		}
		return i
	}

	switch sr.Mode {
	case SliceSingle:
		i := resolve(sr.Start)
		if i < 0 || i >= n {
			return nil, false
		}
		return raw[i : i+1], true

	case SliceOffsetLength:
		start := resolve(sr.Start)
		if start < 0 {
			start = 0
		}
		if start > n {
			start = n
		}
		end := n
		if sr.Length >= 0 {
			end = start + sr.Length
			if end > n {
				end = n
			}
		}
		return raw[start:end], true

	case SliceRangeForm:
		start := resolve(sr.Start)
		end := sr.Length + 1 // inclusive upper bound
		if start < 0 {
			start = 0
		}
		if end > n {
			end = n
		}
		if start >= end {
			return nil, false
		}
		return raw[start:end], true
	}
	return nil, false
}
