package dfilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileFilter(t *testing.T, input string) *Filter {
	t.Helper()
	f, err := Compile(input, testRegistry())
	require.NoError(t, err)
	return f
}

func TestCompile(t *testing.T) {
	t.Run("source round trip", func(t *testing.T) {
		f := compileFilter(t, `tcp.port == 80`)
		assert.Equal(t, `tcp.port == 80`, f.Source())
	})

	t.Run("comparison program shape", func(t *testing.T) {
		f := compileFilter(t, `tcp.port == 80`)

		insns := f.Instructions()
		require.Len(t, insns, 3)
		assert.Equal(t, OpLoadField, insns[0].Op)
		assert.Equal(t, OpLoadConst, insns[1].Op)
		assert.Equal(t, OpCompare, insns[2].Op)
		assert.Equal(t, int(CmpEq), insns[2].A)
	})

	t.Run("bare field compiles to an existence test", func(t *testing.T) {
		f := compileFilter(t, `tcp.flags.syn`)

		insns := f.Instructions()
		require.Len(t, insns, 1)
		assert.Equal(t, OpExists, insns[0].Op)
		assert.Equal(t, "tcp.flags.syn", f.FieldReferences()[insns[0].A].Name)
	})

	t.Run("recompiling yields identical programs", func(t *testing.T) {
		const input = `tcp.port in {80, 443} && upper(http.host) == "A" || ip.src == 10.0.0.0/8`

		first := compileFilter(t, input)
		second := compileFilter(t, input)
		assert.Equal(t, first.Instructions(), second.Instructions())
		assert.Equal(t, first.FieldReferences(), second.FieldReferences())
		assert.Equal(t, first.Constants(), second.Constants())
	})

	t.Run("field table holds every reference once", func(t *testing.T) {
		f := compileFilter(t, `tcp.port == 80 || tcp.port == 443`)

		refs := f.FieldReferences()
		require.Len(t, refs, 1)
		assert.Equal(t, "tcp.port", refs[0].Name)
		assert.Equal(t, TypeUint, refs[0].Type)
	})

	t.Run("pinned occurrences are distinct references", func(t *testing.T) {
		f := compileFilter(t, `ip.addr#1 == 10.0.0.1 && ip.addr#2 == 10.0.0.2`)

		refs := f.FieldReferences()
		require.Len(t, refs, 2)
		assert.Equal(t, 1, refs[0].Layer)
		assert.Equal(t, 2, refs[1].Layer)
	})

	t.Run("constants are deduplicated", func(t *testing.T) {
		f := compileFilter(t, `http.host == "a" || http.host == "a"`)

		consts := f.Constants()
		require.Len(t, consts, 1)
		assert.Equal(t, StringValue("a"), consts[0])
	})

	t.Run("short circuit and", func(t *testing.T) {
		f := compileFilter(t, `tcp.port == 80 && http.host == "a"`)

		var jumps int
		for _, insn := range f.Instructions() {
			if insn.Op == OpJumpIfFalse {
				jumps++
				assert.Equal(t, len(f.Instructions()), insn.A)
			}
		}
		assert.Equal(t, 1, jumps)
	})

	t.Run("short circuit or", func(t *testing.T) {
		f := compileFilter(t, `tcp.port == 80 || tcp.port == 443 || tcp.port == 8080`)

		var jumps int
		for _, insn := range f.Instructions() {
			if insn.Op == OpJumpIfTrue {
				jumps++
			}
		}
		assert.Equal(t, 2, jumps)
	})

	t.Run("cheap operands evaluate first", func(t *testing.T) {
		// The two-field comparison costs more lookups than the one-field
		// comparison, so the chain starts with the single lookup even though
		// it is written second.
		f := compileFilter(t, `max(tcp.port, frame.len) > 100 && http.host == "a"`)

		insns := f.Instructions()
		require.NotEmpty(t, insns)
		assert.Equal(t, OpLoadField, insns[0].Op)
		assert.Equal(t, "http.host", f.FieldReferences()[insns[0].A].Name)
	})

	t.Run("constant expressions fold", func(t *testing.T) {
		f := compileFilter(t, `1 == 1 && tcp.port == 80`)

		for _, insn := range f.Instructions() {
			if insn.Op == OpLoadConst {
				v := f.Constants()[insn.A]
				if b, ok := v.(BoolValue); ok {
					assert.True(t, bool(b))
				}
			}
		}
		// The folded conjunct contributes a constant, not a comparison chain.
		var compares int
		for _, insn := range f.Instructions() {
			if insn.Op == OpCompare {
				compares++
			}
		}
		assert.Equal(t, 1, compares)
	})

	t.Run("fully constant filter folds to one instruction", func(t *testing.T) {
		f := compileFilter(t, `"" matches //`)

		insns := f.Instructions()
		require.Len(t, insns, 1)
		assert.Equal(t, OpLoadConst, insns[0].Op)
		assert.Equal(t, BoolValue(true), f.Constants()[insns[0].A])
	})

	t.Run("slice instruction follows its field", func(t *testing.T) {
		f := compileFilter(t, `eth.src[0:3] == 00:50:56`)

		insns := f.Instructions()
		require.Len(t, insns, 4)
		assert.Equal(t, OpLoadField, insns[0].Op)
		assert.Equal(t, OpSlice, insns[1].Op)
	})

	t.Run("set members live in the set table", func(t *testing.T) {
		f := compileFilter(t, `tcp.port in {80, 8000..8999}`)

		assert.Empty(t, f.Constants())
		var ins int
		for _, insn := range f.Instructions() {
			if insn.Op == OpIn {
				ins++
			}
		}
		assert.Equal(t, 1, ins)
	})

	t.Run("coercion lowers to an instruction", func(t *testing.T) {
		f := compileFilter(t, `frame.time_delta > 1.5`)

		// The literal is retyped at check time, so no runtime coercion is
		// needed on the field side for this one.
		for _, insn := range f.Instructions() {
			assert.NotEqual(t, OpCoerce, insn.Op)
		}

		f = compileFilter(t, `tcp.payload == upper(http.host)`)
		var coerces int
		for _, insn := range f.Instructions() {
			if insn.Op == OpCoerce {
				coerces++
			}
		}
		assert.Equal(t, 1, coerces)
	})

	t.Run("compile errors pass through", func(t *testing.T) {
		_, err := Compile(`tcp.port == bogus`, testRegistry())
		require.Error(t, err)
		var fe *FilterError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, UnknownIdentifier, fe.Kind)
	})
}

func TestDisasm(t *testing.T) {
	f := compileFilter(t, `tcp.port in {80, 443} && http.host contains "example"`)

	out := f.Disasm()
	assert.Contains(t, out, "load_field")
	assert.Contains(t, out, "contains")
	assert.Contains(t, out, "{80, 443}")
	assert.Contains(t, out, "tcp.port <unsigned integer>")

	t.Run("jump targets", func(t *testing.T) {
		f := compileFilter(t, `tcp.port == 80 || tcp.port == 443`)
		assert.Contains(t, f.Disasm(), "jump_if_true")
	})
}
