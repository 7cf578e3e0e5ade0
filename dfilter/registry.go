package dfilter

// FieldInfo describes a protocol field known to the registry.
type FieldInfo struct {
	Name string
	Type ValueType
}

// FilterFunc is the callable form of a registered filter function. Each
// argument is the list of occurrence values the argument expression produced
// (a single-element list for constants); the result is a value list in the
// same shape. Functions are pure: they read their arguments and return a
// result, nothing else.
type FilterFunc func(args [][]Value) ([]Value, error)

// FuncInfo describes a filter function known to the registry. MaxArgs < 0
// means variadic.
type FuncInfo struct {
	Name    string
	MinArgs int
	MaxArgs int
	Return  ValueType
	Call    FilterFunc
}

// Registry resolves field and function names during compilation. It is
// supplied by the protocol-dissection subsystem; this package never defines
// the set of known fields. Implementations must be safe for concurrent reads
// once compilation begins.
type Registry interface {
	// Field returns the field with the given dotted name.
	Field(name string) (FieldInfo, bool)
	// Function returns the function with the given name.
	Function(name string) (FuncInfo, bool)
}

// FunctionRegistrar is the registration side of the function namespace,
// handed to plugin init entry points. Registration is only permitted during
// the startup phase, before any compilation occurs.
type FunctionRegistrar interface {
	RegisterFunction(fn FuncInfo) error
}

// Record is one decoded unit (e.g. a captured packet) presented as a tree of
// named field values, queried by name and occurrence. Occurrences are
// 1-based. Implementations are read-only during evaluation.
type Record interface {
	// Field returns the value of the given occurrence of the field, or
	// false when the field has no such occurrence in this record.
	Field(name string, occurrence int) (Value, bool)
	// Occurrences returns how many instances of the field this record has.
	Occurrences(name string) int
}
