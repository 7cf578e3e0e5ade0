package dfilter

import (
	"fmt"
	"sync"
)

// StaticRegistry is a map-backed Registry for hosts that do not have a
// dissection engine supplying one: tests, the dftest tool, and embedders
// filtering their own records. It starts out with the built-in function set
// and accepts plugin function registrations until frozen.
type StaticRegistry struct {
	mu     sync.RWMutex
	fields map[string]FieldInfo
	funcs  map[string]FuncInfo
	frozen bool
}

// NewStaticRegistry creates a registry containing the built-in filter
// functions and no fields. Field maps may be passed to seed it; multiple
// maps are merged.
func NewStaticRegistry(fields ...map[string]ValueType) *StaticRegistry {
	r := &StaticRegistry{
		fields: make(map[string]FieldInfo),
		funcs:  make(map[string]FuncInfo),
	}
	for _, fn := range builtinFunctions() {
		r.funcs[fn.Name] = fn
	}
	for _, m := range fields {
		for name, typ := range m {
			r.fields[name] = FieldInfo{Name: name, Type: typ}
		}
	}
	return r
}

// AddField adds a field to the registry. Returns the registry for chaining.
func (r *StaticRegistry) AddField(name string, typ ValueType) *StaticRegistry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.frozen {
		r.fields[name] = FieldInfo{Name: name, Type: typ}
	}
	return r
}

// RegisterFunction adds a filter function to the function namespace. It
// fails once the registry has been frozen.
func (r *StaticRegistry) RegisterFunction(fn FuncInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return errorf(PluginError, LocEmpty, "registry is frozen, cannot register function %q", fn.Name)
	}
	if fn.Name == "" || fn.Call == nil {
		return errorf(PluginError, LocEmpty, "invalid function registration")
	}
	if _, exists := r.funcs[fn.Name]; exists {
		return errorf(PluginError, LocEmpty, "function %q is already registered", fn.Name)
	}
	r.funcs[fn.Name] = fn
	return nil
}

// Freeze makes the registry read-only. It is called by the plugin registry
// once startup registration is complete and may be called at most once
// before the first compilation.
func (r *StaticRegistry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Field implements Registry.
func (r *StaticRegistry) Field(name string) (FieldInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fields[name]
	return f, ok
}

// Function implements Registry.
func (r *StaticRegistry) Function(name string) (FuncInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// FieldNames returns the sorted-insertion view of registered field names;
// handy for diagnostics.
func (r *StaticRegistry) FieldNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.fields))
	for name := range r.fields {
		names = append(names, name)
	}
	return names
}

var _ Registry = (*StaticRegistry)(nil)
var _ FunctionRegistrar = (*StaticRegistry)(nil)

// ParseValueType maps a type name, as used in registry descriptions, to a
// ValueType.
func ParseValueType(name string) (ValueType, error) {
	switch name {
	case "bool", "boolean":
		return TypeBool, nil
	case "int", "integer":
		return TypeInt, nil
	case "uint", "unsigned":
		return TypeUint, nil
	case "float", "double":
		return TypeFloat, nil
	case "string":
		return TypeString, nil
	case "bytes":
		return TypeBytes, nil
	case "ipv4":
		return TypeIPv4, nil
	case "ipv6":
		return TypeIPv6, nil
	case "ether":
		return TypeEther, nil
	case "duration", "relative-time":
		return TypeDuration, nil
	case "time", "absolute-time":
		return TypeTime, nil
	}
	return TypeUnparsed, fmt.Errorf("unknown field type %q", name)
}
