package dfilter

import (
	"fmt"
	"strings"
)

// builtinFunctions returns the function table every registry starts with.
// A filter function receives one occurrence list per argument and returns an
// occurrence list; returning an error makes the call site evaluate to the
// empty slot for that record.
func builtinFunctions() []FuncInfo {
	return []FuncInfo{
		{
			Name:    "upper",
			MinArgs: 1,
			MaxArgs: 1,
			Return:  TypeString,
			Call:    mapStrings(strings.ToUpper),
		},
		{
			Name:    "lower",
			MinArgs: 1,
			MaxArgs: 1,
			Return:  TypeString,
			Call:    mapStrings(strings.ToLower),
		},
		{
			Name:    "len",
			MinArgs: 1,
			MaxArgs: 1,
			Return:  TypeUint,
			Call:    callLen,
		},
		{
			Name:    "count",
			MinArgs: 1,
			MaxArgs: 1,
			Return:  TypeUint,
			Call: func(args [][]Value) ([]Value, error) {
				return []Value{UintValue(len(args[0]))}, nil
			},
		},
		{
			Name:    "abs",
			MinArgs: 1,
			MaxArgs: 1,
			Return:  TypeFloat,
			Call:    callAbs,
		},
		{
			Name:    "max",
			MinArgs: 1,
			MaxArgs: -1,
			Return:  TypeFloat,
			Call:    extremum(1),
		},
		{
			Name:    "min",
			MinArgs: 1,
			MaxArgs: -1,
			Return:  TypeFloat,
			Call:    extremum(-1),
		},
	}
}

// mapStrings lifts a string transform over an occurrence list; values with
// no string form are skipped.
func mapStrings(fn func(string) string) FilterFunc {
	return func(args [][]Value) ([]Value, error) {
		out := make([]Value, 0, len(args[0]))
		for _, v := range args[0] {
			switch v := v.(type) {
			case StringValue:
				out = append(out, StringValue(fn(string(v))))
			case BytesValue:
				out = append(out, StringValue(fn(string(v))))
			}
		}
		return out, nil
	}
}

func callLen(args [][]Value) ([]Value, error) {
	out := make([]Value, 0, len(args[0]))
	for _, v := range args[0] {
		if b, ok := valueBytes(v); ok {
			out = append(out, UintValue(len(b)))
		}
	}
	return out, nil
}

func callAbs(args [][]Value) ([]Value, error) {
	out := make([]Value, 0, len(args[0]))
	for _, v := range args[0] {
		switch v := v.(type) {
		case IntValue:
			if v < 0 {
				v = -v
			}
			out = append(out, v)
		case UintValue:
			out = append(out, v)
		case FloatValue:
			if v < 0 {
				v = -v
			}
			out = append(out, v)
		case DurationValue:
			if v < 0 {
				v = -v
			}
			out = append(out, v)
		default:
			return nil, fmt.Errorf("abs: %s value has no magnitude", v.Type())
		}
	}
	return out, nil
}

// extremum selects the largest (sign > 0) or smallest (sign < 0) value among
// all occurrences of all arguments.
func extremum(sign int) FilterFunc {
	return func(args [][]Value) ([]Value, error) {
		var best Value
		for _, arg := range args {
			for _, v := range arg {
				if best == nil {
					best = v
					continue
				}
				ord, ok := orderValues(v, best)
				if !ok {
					return nil, fmt.Errorf("cannot order %s against %s", v.Type(), best.Type())
				}
				if ord*sign > 0 {
					best = v
				}
			}
		}
		if best == nil {
			return nil, nil
		}
		return []Value{best}, nil
	}
}
