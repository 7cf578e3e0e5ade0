package dfilter

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() *StaticRegistry {
	return NewStaticRegistry(map[string]ValueType{
		"frame.len":        TypeUint,
		"frame.time":       TypeTime,
		"frame.time_delta": TypeDuration,
		"eth.src":          TypeEther,
		"ip.src":           TypeIPv4,
		"ip.addr":          TypeIPv4,
		"ipv6.src":         TypeIPv6,
		"tcp.port":         TypeUint,
		"tcp.payload":      TypeBytes,
		"tcp.flags.syn":    TypeBool,
		"http.host":        TypeString,
	})
}

func checkFilter(t *testing.T, input string) Expression {
	t.Helper()
	expr := parseFilter(t, input)
	checked, err := Check(expr, testRegistry())
	require.NoError(t, err)
	return checked
}

func checkError(t *testing.T, input string) *FilterError {
	t.Helper()
	expr := parseFilter(t, input)
	_, err := Check(expr, testRegistry())
	require.Error(t, err)
	var fe *FilterError
	require.True(t, errors.As(err, &fe))
	return fe
}

func TestSemantic(t *testing.T) {
	t.Run("literal retyped against string field", func(t *testing.T) {
		// example.com parses as a field reference; the string field on the
		// other side turns it into a string literal.
		checked := checkFilter(t, `http.host == example.com`)

		cmp := checked.(*CompareExpr)
		lit, ok := cmp.Right.(*LiteralExpr)
		require.True(t, ok)
		assert.Equal(t, StringValue("example.com"), lit.Value)
	})

	t.Run("literal retyped on the left", func(t *testing.T) {
		checked := checkFilter(t, `example.com == http.host`)

		cmp := checked.(*CompareExpr)
		lit, ok := cmp.Left.(*LiteralExpr)
		require.True(t, ok)
		assert.Equal(t, StringValue("example.com"), lit.Value)
	})

	t.Run("unknown on both sides reports the field", func(t *testing.T) {
		fe := checkError(t, `nosuch.field == alsonot.afield`)
		assert.Equal(t, UnknownIdentifier, fe.Kind)
		assert.Equal(t, 0, fe.Loc.Start)
	})

	t.Run("unresolvable deferred literal", func(t *testing.T) {
		// bogus cannot be read as an unsigned integer.
		fe := checkError(t, `tcp.port == bogus`)
		assert.Equal(t, UnknownIdentifier, fe.Kind)
		assert.Equal(t, 12, fe.Loc.Start)
	})

	t.Run("duration field accepts numeric literal", func(t *testing.T) {
		checked := checkFilter(t, `frame.time_delta > 1.5`)

		cmp := checked.(*CompareExpr)
		lit := cmp.Right.(*LiteralExpr)
		assert.Equal(t, DurationValue(1500*time.Millisecond), lit.Value)
	})

	t.Run("time field accepts quoted timestamp", func(t *testing.T) {
		checked := checkFilter(t, `frame.time > "2024-06-01 12:00:00"`)

		cmp := checked.(*CompareExpr)
		lit := cmp.Right.(*LiteralExpr)
		require.IsType(t, TimeValue{}, lit.Value)
	})

	t.Run("string field coerced to bytes", func(t *testing.T) {
		checked := checkFilter(t, `tcp.payload == "GET"`)

		cmp := checked.(*CompareExpr)
		lit := cmp.Right.(*LiteralExpr)
		assert.Equal(t, BytesValue("GET"), lit.Value)
	})

	t.Run("sliced field compares as bytes", func(t *testing.T) {
		checked := checkFilter(t, `eth.src[0:3] == 00:50:56`)

		cmp := checked.(*CompareExpr)
		lit := cmp.Right.(*LiteralExpr)
		assert.Equal(t, BytesValue{0x00, 0x50, 0x56}, lit.Value)
	})

	t.Run("incompatible kinds rejected", func(t *testing.T) {
		fe := checkError(t, `tcp.port == 10.0.0.1`)
		assert.Equal(t, TypeMismatch, fe.Kind)
	})

	t.Run("boolean field cannot be ordered", func(t *testing.T) {
		fe := checkError(t, `tcp.flags.syn > 0`)
		assert.Equal(t, TypeMismatch, fe.Kind)
	})

	t.Run("contains needs string bytes or subnet", func(t *testing.T) {
		fe := checkError(t, `tcp.port contains 8`)
		assert.Equal(t, TypeMismatch, fe.Kind)
	})

	t.Run("bare literal is not a filter", func(t *testing.T) {
		fe := checkError(t, `42`)
		assert.Equal(t, TypeMismatch, fe.Kind)
	})

	t.Run("existence of unknown field", func(t *testing.T) {
		fe := checkError(t, `nosuch.proto`)
		assert.Equal(t, UnknownIdentifier, fe.Kind)
	})

	t.Run("unknown field as function argument", func(t *testing.T) {
		// Argument position has no other side to retype against, so the name
		// is not read as an unquoted string literal.
		fe := checkError(t, `upper(bogus.field) == "X"`)
		assert.Equal(t, UnknownIdentifier, fe.Kind)
		assert.Equal(t, 6, fe.Loc.Start)
	})
}

func TestSemanticMatches(t *testing.T) {
	t.Run("regex literal compiled once", func(t *testing.T) {
		checked := checkFilter(t, `http.host matches /ex.*le/`)

		cmp := checked.(*CompareExpr)
		lit := cmp.Right.(*LiteralExpr)
		rv, ok := lit.Value.(RegexValue)
		require.True(t, ok)
		assert.Equal(t, "ex.*le", rv.Pattern)
		assert.NotNil(t, rv.re)
	})

	t.Run("quoted pattern accepted", func(t *testing.T) {
		checked := checkFilter(t, `http.host matches "ex.*le"`)

		cmp := checked.(*CompareExpr)
		_, ok := cmp.Right.(*LiteralExpr).Value.(RegexValue)
		assert.True(t, ok)
	})

	t.Run("invalid pattern reports its location", func(t *testing.T) {
		fe := checkError(t, `http.host matches /(unclosed/`)
		assert.Equal(t, PatternError, fe.Kind)
		assert.Equal(t, 18, fe.Loc.Start)
	})

	t.Run("matches needs string or bytes", func(t *testing.T) {
		fe := checkError(t, `tcp.port matches /8+/`)
		assert.Equal(t, TypeMismatch, fe.Kind)
	})
}

func TestSemanticSets(t *testing.T) {
	t.Run("members retyped to the element kind", func(t *testing.T) {
		checked := checkFilter(t, `ip.src in {10.0.0.0/8, 172.16.0.0/12}`)

		set := checked.(*SetExpr)
		for _, m := range set.Members {
			lit := m.Low.(*LiteralExpr)
			_, ok := lit.Value.(IPValue)
			assert.True(t, ok)
		}
	})

	t.Run("range over unordered kind rejected", func(t *testing.T) {
		fe := checkError(t, `tcp.flags.syn in {true..false}`)
		assert.Equal(t, TypeMismatch, fe.Kind)
	})

	t.Run("member of the wrong kind rejected", func(t *testing.T) {
		fe := checkError(t, `tcp.port in {80, 10.0.0.1}`)
		assert.Equal(t, TypeMismatch, fe.Kind)
	})

	t.Run("unknown element field", func(t *testing.T) {
		fe := checkError(t, `nosuch.field in {1, 2}`)
		assert.Equal(t, UnknownIdentifier, fe.Kind)
	})
}

func TestSemanticCalls(t *testing.T) {
	t.Run("unknown function", func(t *testing.T) {
		fe := checkError(t, `frobnicate(http.host) == "x"`)
		assert.Equal(t, UnknownIdentifier, fe.Kind)
	})

	t.Run("too few arguments", func(t *testing.T) {
		fe := checkError(t, `upper() == "x"`)
		assert.Equal(t, ArityError, fe.Kind)
	})

	t.Run("too many arguments", func(t *testing.T) {
		fe := checkError(t, `len(http.host, tcp.port) > 0`)
		assert.Equal(t, ArityError, fe.Kind)
	})

	t.Run("variadic accepts many", func(t *testing.T) {
		checkFilter(t, `max(tcp.port, frame.len) > 1000`)
	})

	t.Run("call result kind feeds comparison", func(t *testing.T) {
		fe := checkError(t, `upper(http.host) == 10.0.0.1`)
		assert.Equal(t, TypeMismatch, fe.Kind)
	})
}
