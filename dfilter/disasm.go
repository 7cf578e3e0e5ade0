package dfilter

import (
	"fmt"
	"strings"
)

// Disasm returns a human-readable listing of the compiled program: the
// instruction sequence followed by the constant pool, the field table and
// the set table. The output is stable for a given filter, so it doubles as
// a fingerprint in tests and in dftest output.
func (f *Filter) Disasm() string {
	var out strings.Builder

	fmt.Fprintf(&out, "filter: %s\n", f.source)
	out.WriteString("instructions:\n")
	for i, insn := range f.insns {
		fmt.Fprintf(&out, "  %04d  %s", i, insn.Op)
		switch insn.Op {
		case OpLoadConst:
			fmt.Fprintf(&out, " c%d (%s)", insn.A, f.consts[insn.A])
		case OpLoadField, OpExists:
			ref := f.fields[insn.A]
			fmt.Fprintf(&out, " f%d (%s)", insn.A, ref)
		case OpSlice:
			fmt.Fprintf(&out, " %s", formatSlice(f.slices[insn.A]))
		case OpCompare:
			fmt.Fprintf(&out, " %s", CmpOp(insn.A))
		case OpIn:
			fmt.Fprintf(&out, " s%d %s", insn.A, formatSet(f.sets[insn.A]))
		case OpCoerce:
			fmt.Fprintf(&out, " to %s", ValueType(insn.A))
		case OpCall:
			fmt.Fprintf(&out, " %s/%d", f.funcs[insn.A].name, insn.B)
		case OpJumpIfTrue, OpJumpIfFalse:
			fmt.Fprintf(&out, " -> %04d", insn.A)
		}
		out.WriteByte('\n')
	}

	if len(f.consts) > 0 {
		out.WriteString("constants:\n")
		for i, v := range f.consts {
			fmt.Fprintf(&out, "  c%d  %s = %s\n", i, v.Type(), v)
		}
	}
	if len(f.fields) > 0 {
		out.WriteString("fields:\n")
		for i, ref := range f.fields {
			fmt.Fprintf(&out, "  f%d  %s\n", i, ref)
		}
	}
	if len(f.sets) > 0 {
		out.WriteString("sets:\n")
		for i, set := range f.sets {
			fmt.Fprintf(&out, "  s%d  %s\n", i, formatSet(set))
		}
	}
	return out.String()
}

func (r FieldRef) String() string {
	name := r.Name
	if r.Layer > 0 {
		name = fmt.Sprintf("%s#%d", name, r.Layer)
	}
	return fmt.Sprintf("%s <%s>", name, r.Type)
}

func formatSlice(sr SliceRange) string {
	switch sr.Mode {
	case SliceSingle:
		return fmt.Sprintf("[%d]", sr.Start)
	case SliceRangeForm:
		return fmt.Sprintf("[%d-%d]", sr.Start, sr.Length)
	default:
		if sr.Length < 0 {
			return fmt.Sprintf("[%d:]", sr.Start)
		}
		return fmt.Sprintf("[%d:%d]", sr.Start, sr.Length)
	}
}

func formatSet(members []setRange) string {
	parts := make([]string, len(members))
	for i, m := range members {
		if m.high != nil {
			parts[i] = fmt.Sprintf("%s..%s", m.low, m.high)
		} else {
			parts[i] = m.low.String()
		}
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
