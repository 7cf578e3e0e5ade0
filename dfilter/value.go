package dfilter

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ValueType enumerates the closed set of value kinds the engine understands.
// Registry fields declare one of these; literals are retyped to the kind the
// surrounding operator expects during semantic analysis.
type ValueType uint8

const (
	// TypeUnparsed marks a literal whose interpretation depends on context.
	// It never survives semantic analysis.
	TypeUnparsed ValueType = iota
	TypeBool
	TypeInt
	TypeUint
	TypeFloat
	TypeString
	TypeBytes
	TypeIPv4
	TypeIPv6
	TypeEther
	TypeDuration
	TypeTime
	// TypeRegex is the kind of a regular-expression literal; it appears only
	// as the right-hand side of a "matches" comparison.
	TypeRegex
)

var valueTypeNames = map[ValueType]string{
	TypeUnparsed: "unparsed",
	TypeBool:     "boolean",
	TypeInt:      "integer",
	TypeUint:     "unsigned integer",
	TypeFloat:    "float",
	TypeString:   "string",
	TypeBytes:    "bytes",
	TypeIPv4:     "IPv4 address",
	TypeIPv6:     "IPv6 address",
	TypeEther:    "Ethernet address",
	TypeDuration: "duration",
	TypeTime:     "time",
	TypeRegex:    "regex",
}

func (t ValueType) String() string {
	if name, ok := valueTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", t)
}

// Ordered reports whether values of this kind support < <= > >=.
func (t ValueType) Ordered() bool {
	switch t {
	case TypeInt, TypeUint, TypeFloat, TypeString, TypeBytes, TypeIPv4, TypeIPv6, TypeEther, TypeDuration, TypeTime:
		return true
	}
	return false
}

// Value is implemented by every member of the closed value union.
type Value interface {
	Type() ValueType
	String() string
	Equal(other Value) bool
}

// BoolValue represents a boolean value.
type BoolValue bool

func (b BoolValue) Type() ValueType { return TypeBool }
func (b BoolValue) String() string  { return strconv.FormatBool(bool(b)) }
func (b BoolValue) Equal(v Value) bool {
	o, ok := v.(BoolValue)
	return ok && b == o
}

// IntValue represents a signed integer value.
type IntValue int64

func (i IntValue) Type() ValueType { return TypeInt }
func (i IntValue) String() string  { return strconv.FormatInt(int64(i), 10) }
func (i IntValue) Equal(v Value) bool {
	c, ok := compareNumeric(i, v)
	return ok && c == 0
}

// UintValue represents an unsigned integer value.
type UintValue uint64

func (u UintValue) Type() ValueType { return TypeUint }
func (u UintValue) String() string  { return strconv.FormatUint(uint64(u), 10) }
func (u UintValue) Equal(v Value) bool {
	c, ok := compareNumeric(u, v)
	return ok && c == 0
}

// FloatValue represents a floating point value.
type FloatValue float64

func (f FloatValue) Type() ValueType { return TypeFloat }
func (f FloatValue) String() string  { return strconv.FormatFloat(float64(f), 'g', -1, 64) }
func (f FloatValue) Equal(v Value) bool {
	c, ok := compareNumeric(f, v)
	return ok && c == 0
}

// StringValue represents a string value.
type StringValue string

func (s StringValue) Type() ValueType { return TypeString }
func (s StringValue) String() string  { return string(s) }
func (s StringValue) Equal(v Value) bool {
	o, ok := v.(StringValue)
	return ok && s == o
}

// BytesValue represents a byte-sequence value.
type BytesValue []byte

func (b BytesValue) Type() ValueType { return TypeBytes }
func (b BytesValue) String() string {
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = fmt.Sprintf("%02x", c)
	}
	return strings.Join(parts, ":")
}
func (b BytesValue) Equal(v Value) bool {
	o, ok := v.(BytesValue)
	return ok && bytes.Equal(b, o)
}

// IPValue represents an IPv4 or IPv6 address, optionally with a subnet mask
// when it was written in CIDR notation. A masked value compared with == acts
// as a subnet membership test.
type IPValue struct {
	IP  net.IP
	Net *net.IPNet
}

func (ip IPValue) Type() ValueType {
	if ip.IP.To4() != nil {
		return TypeIPv4
	}
	return TypeIPv6
}

func (ip IPValue) String() string {
	if ip.Net != nil {
		return ip.Net.String()
	}
	return ip.IP.String()
}

func (ip IPValue) Equal(v Value) bool {
	o, ok := v.(IPValue)
	if !ok {
		return false
	}
	if ip.Net != nil {
		return ip.Net.Contains(o.IP)
	}
	if o.Net != nil {
		return o.Net.Contains(ip.IP)
	}
	return ip.IP.Equal(o.IP)
}

// EtherValue represents a 48-bit Ethernet hardware address.
type EtherValue [6]byte

func (e EtherValue) Type() ValueType { return TypeEther }
func (e EtherValue) String() string {
	return net.HardwareAddr(e[:]).String()
}
func (e EtherValue) Equal(v Value) bool {
	o, ok := v.(EtherValue)
	return ok && e == o
}

// DurationValue represents a relative time value.
type DurationValue time.Duration

func (d DurationValue) Type() ValueType { return TypeDuration }
func (d DurationValue) String() string  { return time.Duration(d).String() }
func (d DurationValue) Equal(v Value) bool {
	o, ok := v.(DurationValue)
	return ok && d == o
}

// TimeValue represents an absolute time value.
type TimeValue time.Time

func (t TimeValue) Type() ValueType { return TypeTime }
func (t TimeValue) String() string  { return time.Time(t).Format(time.RFC3339Nano) }
func (t TimeValue) Equal(v Value) bool {
	o, ok := v.(TimeValue)
	return ok && time.Time(t).Equal(time.Time(o))
}

// RegexValue represents a compiled regular-expression literal.
type RegexValue struct {
	Pattern string
	re      *regexp.Regexp
}

func (r RegexValue) Type() ValueType { return TypeRegex }
func (r RegexValue) String() string  { return "/" + r.Pattern + "/" }
func (r RegexValue) Equal(v Value) bool {
	o, ok := v.(RegexValue)
	return ok && r.Pattern == o.Pattern
}

// UnparsedValue represents a literal (or bare identifier) whose kind is not
// yet known; semantic analysis replaces it with a concrete value.
type UnparsedValue string

func (u UnparsedValue) Type() ValueType { return TypeUnparsed }
func (u UnparsedValue) String() string  { return string(u) }
func (u UnparsedValue) Equal(v Value) bool {
	o, ok := v.(UnparsedValue)
	return ok && u == o
}

// compareNumeric compares two values numerically across the int/uint/float
// kinds. The second result is false when either value is non-numeric.
func compareNumeric(a, b Value) (int, bool) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return 0, false
	}
	// Exact comparison for the integer/integer case; floats lose precision
	// above 2^53.
	if ai, ok := a.(IntValue); ok {
		switch bv := b.(type) {
		case IntValue:
			return cmpOrdered(int64(ai), int64(bv)), true
		case UintValue:
			if ai < 0 {
				return -1, true
			}
			return cmpOrdered(uint64(ai), uint64(bv)), true
		}
	}
	if au, ok := a.(UintValue); ok {
		switch bv := b.(type) {
		case UintValue:
			return cmpOrdered(uint64(au), uint64(bv)), true
		case IntValue:
			if bv < 0 {
				return 1, true
			}
			return cmpOrdered(uint64(au), uint64(bv)), true
		}
	}
	return cmpOrdered(af, bf), true
}

func cmpOrdered[T int64 | uint64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func toFloat(v Value) (float64, bool) {
	switch n := v.(type) {
	case IntValue:
		return float64(n), true
	case UintValue:
		return float64(n), true
	case FloatValue:
		return float64(n), true
	}
	return 0, false
}

// orderValues returns -1, 0 or 1 for values of an ordered kind. The second
// result is false when the two kinds cannot be ordered against each other.
// Dispatch is an exhaustive switch over the closed kind set.
func orderValues(a, b Value) (int, bool) {
	if c, ok := compareNumeric(a, b); ok {
		return c, true
	}
	switch av := a.(type) {
	case StringValue:
		bv, ok := b.(StringValue)
		if !ok {
			return 0, false
		}
		return strings.Compare(string(av), string(bv)), true
	case BytesValue:
		bv, ok := b.(BytesValue)
		if !ok {
			return 0, false
		}
		return bytes.Compare(av, bv), true
	case IPValue:
		bv, ok := b.(IPValue)
		if !ok {
			return 0, false
		}
		return bytes.Compare(av.IP.To16(), bv.IP.To16()), true
	case EtherValue:
		bv, ok := b.(EtherValue)
		if !ok {
			return 0, false
		}
		return bytes.Compare(av[:], bv[:]), true
	case DurationValue:
		bv, ok := b.(DurationValue)
		if !ok {
			return 0, false
		}
		return cmpOrdered(int64(av), int64(bv)), true
	case TimeValue:
		bv, ok := b.(TimeValue)
		if !ok {
			return 0, false
		}
		at, bt := time.Time(av), time.Time(bv)
		switch {
		case at.Before(bt):
			return -1, true
		case at.After(bt):
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// parseLiteralAs interprets raw literal text as a value of the wanted kind.
// This implements literal retyping: the same token text may be a string, a
// number, an address or a duration depending on the field it is compared to.
func parseLiteralAs(text string, want ValueType) (Value, bool) {
	switch want {
	case TypeBool:
		switch strings.ToLower(text) {
		case "true", "1":
			return BoolValue(true), true
		case "false", "0":
			return BoolValue(false), true
		}
	case TypeInt:
		if n, err := strconv.ParseInt(text, 0, 64); err == nil {
			return IntValue(n), true
		}
	case TypeUint:
		if n, err := strconv.ParseUint(text, 0, 64); err == nil {
			return UintValue(n), true
		}
		// Negative literals against unsigned fields stay signed so that the
		// comparison is still numerically correct.
		if n, err := strconv.ParseInt(text, 0, 64); err == nil {
			return IntValue(n), true
		}
	case TypeFloat:
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return FloatValue(f), true
		}
	case TypeString:
		return StringValue(text), true
	case TypeBytes:
		if b, ok := parseByteSequence(text); ok {
			return BytesValue(b), true
		}
	case TypeIPv4, TypeIPv6:
		if _, ipnet, err := net.ParseCIDR(text); err == nil {
			return IPValue{IP: ipnet.IP, Net: ipnet}, true
		}
		if ip := net.ParseIP(text); ip != nil {
			return IPValue{IP: ip}, true
		}
	case TypeEther:
		if hw, err := net.ParseMAC(text); err == nil && len(hw) == 6 {
			var e EtherValue
			copy(e[:], hw)
			return e, true
		}
	case TypeDuration:
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return DurationValue(time.Duration(f * float64(time.Second))), true
		}
		if d, err := time.ParseDuration(text); err == nil {
			return DurationValue(d), true
		}
	case TypeTime:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, text); err == nil {
				return TimeValue(t), true
			}
		}
		if n, err := strconv.ParseFloat(text, 64); err == nil {
			sec := int64(n)
			nsec := int64((n - float64(sec)) * 1e9)
			return TimeValue(time.Unix(sec, nsec)), true
		}
	}
	return nil, false
}

// parseByteSequence parses colon- or dash-separated hex pairs (aa:bb:cc).
func parseByteSequence(text string) ([]byte, bool) {
	sep := ":"
	if strings.Contains(text, "-") && !strings.Contains(text, ":") {
		sep = "-"
	}
	parts := strings.Split(text, sep)
	if len(parts) == 0 {
		return nil, false
	}
	out := make([]byte, 0, len(parts))
	for _, p := range parts {
		if len(p) != 2 {
			return nil, false
		}
		b, err := hex.DecodeString(p)
		if err != nil {
			return nil, false
		}
		out = append(out, b[0])
	}
	return out, true
}
