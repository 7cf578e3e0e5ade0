package dfilter

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a filter error.
type ErrorKind uint8

const (
	// LexError reports an unrecognized character or malformed literal.
	LexError ErrorKind = iota
	// SyntaxError reports a grammar violation or unexpected token.
	SyntaxError
	// UnknownIdentifier reports a field or function name missing from the registry.
	UnknownIdentifier
	// ArityError reports a function called with the wrong argument count.
	ArityError
	// TypeMismatch reports operands of incompatible kind with no coercion.
	TypeMismatch
	// PatternError reports a malformed regular-expression or byte literal.
	PatternError
	// PluginError reports a plugin registration, init or cleanup failure.
	PluginError
)

var errorKindNames = map[ErrorKind]string{
	LexError:          "lexical error",
	SyntaxError:       "syntax error",
	UnknownIdentifier: "unknown identifier",
	ArityError:        "arity error",
	TypeMismatch:      "type mismatch",
	PatternError:      "pattern error",
	PluginError:       "plugin error",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("error(%d)", k)
}

// FilterError is the structured error returned by compilation. Every kind
// except PluginError carries the location of the offending span.
type FilterError struct {
	Kind ErrorKind
	Msg  string
	Loc  Loc
}

func (e *FilterError) Error() string {
	if e.Loc.IsEmpty() {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s at column %d: %s", e.Kind, e.Loc.Start, e.Msg)
}

// Is matches against another *FilterError by kind, so callers can test
// errors.Is(err, &FilterError{Kind: TypeMismatch}).
func (e *FilterError) Is(target error) bool {
	var fe *FilterError
	if !errors.As(target, &fe) {
		return false
	}
	return fe.Kind == e.Kind && (fe.Msg == "" || fe.Msg == e.Msg)
}

func errorf(kind ErrorKind, loc Loc, format string, args ...any) *FilterError {
	return &FilterError{
		Kind: kind,
		Msg:  fmt.Sprintf(format, args...),
		Loc:  loc,
	}
}
