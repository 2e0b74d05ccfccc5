package interp

// Environment is a persistent lexical environment. Extending never mutates
// the receiver, so closures can share frames freely.
type Environment struct {
	name   string
	value  Value
	lazy   func() (Value, error)
	parent *Environment
}

// Extend returns a new environment binding name to v.
func (e *Environment) Extend(name string, v Value) *Environment {
	return &Environment{name: name, value: v, parent: e}
}

// ExtendLazy binds name to a value computed on each lookup. The linker uses
// it for dependencies and self-references.
func (e *Environment) ExtendLazy(name string, f func() (Value, error)) *Environment {
	return &Environment{name: name, lazy: f, parent: e}
}

// Lookup finds the nearest binding of name. A nil environment is empty.
func (e *Environment) Lookup(name string) (Value, bool, error) {
	for env := e; env != nil; env = env.parent {
		if env.name != name {
			continue
		}
		if env.lazy != nil {
			v, err := env.lazy()
			return v, true, err
		}
		return env.value, true, nil
	}
	return nil, false, nil
}
