package dfilter

import (
	"net"
	"time"
)

// MapRecord is a map-backed Record for tests and embedders. Fields hold an
// ordered list of occurrence values. Setters append, so repeated fields are
// built by calling the setter once per occurrence.
type MapRecord struct {
	fields map[string][]Value
}

// NewMapRecord creates an empty record.
func NewMapRecord() *MapRecord {
	return &MapRecord{fields: make(map[string][]Value)}
}

// Set appends an occurrence of the named field. Returns the record for
// chaining.
func (r *MapRecord) Set(name string, value Value) *MapRecord {
	r.fields[name] = append(r.fields[name], value)
	return r
}

// SetString appends a string occurrence of the named field.
func (r *MapRecord) SetString(name, value string) *MapRecord {
	return r.Set(name, StringValue(value))
}

// SetInt appends a signed integer occurrence of the named field.
func (r *MapRecord) SetInt(name string, value int64) *MapRecord {
	return r.Set(name, IntValue(value))
}

// SetUint appends an unsigned integer occurrence of the named field.
func (r *MapRecord) SetUint(name string, value uint64) *MapRecord {
	return r.Set(name, UintValue(value))
}

// SetFloat appends a float occurrence of the named field.
func (r *MapRecord) SetFloat(name string, value float64) *MapRecord {
	return r.Set(name, FloatValue(value))
}

// SetBool appends a boolean occurrence of the named field.
func (r *MapRecord) SetBool(name string, value bool) *MapRecord {
	return r.Set(name, BoolValue(value))
}

// SetBytes appends a byte-sequence occurrence of the named field.
func (r *MapRecord) SetBytes(name string, value []byte) *MapRecord {
	return r.Set(name, BytesValue(value))
}

// SetIP parses value as an IP address and appends it. Unparsable values are
// ignored.
func (r *MapRecord) SetIP(name, value string) *MapRecord {
	if ip := net.ParseIP(value); ip != nil {
		return r.Set(name, IPValue{IP: ip})
	}
	return r
}

// SetEther parses value as a MAC address and appends it. Unparsable values
// are ignored.
func (r *MapRecord) SetEther(name, value string) *MapRecord {
	if hw, err := net.ParseMAC(value); err == nil && len(hw) == 6 {
		var e EtherValue
		copy(e[:], hw)
		return r.Set(name, e)
	}
	return r
}

// SetDuration appends a duration occurrence of the named field.
func (r *MapRecord) SetDuration(name string, value time.Duration) *MapRecord {
	return r.Set(name, DurationValue(value))
}

// SetTime appends an absolute-time occurrence of the named field.
func (r *MapRecord) SetTime(name string, value time.Time) *MapRecord {
	return r.Set(name, TimeValue(value))
}

// Field implements Record. Occurrences are 1-based.
func (r *MapRecord) Field(name string, occurrence int) (Value, bool) {
	vals := r.fields[name]
	if occurrence < 1 || occurrence > len(vals) {
		return nil, false
	}
	return vals[occurrence-1], true
}

// Occurrences implements Record.
func (r *MapRecord) Occurrences(name string) int {
	return len(r.fields[name])
}

var _ Record = (*MapRecord)(nil)
