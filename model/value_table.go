package model

// NameResolver is the minimal read surface DumpPlan needs to render
// value and node names; *ValueTable satisfies it for values, and a
// GraphView's Steps() supplies node names directly.
type NameResolver interface {
	NameOf(v ValueIndex) (string, error)
}

// ValueTable is the name<->index bimap over every value in the graph:
// inputs, initializers, intermediates, and outputs. It is append-only and
// stable for the life of a session.
type ValueTable struct {
	names  []string
	byName map[string]ValueIndex
}

// NewValueTable returns an empty ValueTable.
func NewValueTable() *ValueTable {
	return &ValueTable{byName: make(map[string]ValueIndex)}
}

// Register assigns a new ValueIndex to name, or returns the existing one
// if name was already registered.
func (t *ValueTable) Register(name string) ValueIndex {
	if v, ok := t.byName[name]; ok {
		return v
	}
	v := ValueIndex(len(t.names))
	t.names = append(t.names, name)
	t.byName[name] = v
	return v
}

// IndexOf returns the index registered for name, or an UnknownValueError if
// name was never registered.
func (t *ValueTable) IndexOf(name string) (ValueIndex, error) {
	v, ok := t.byName[name]
	if !ok {
		return InvalidValueIndex, &UnknownValueError{Name: name}
	}
	return v, nil
}

// NameOf returns the name registered for v, or an UnknownValueError if v is
// out of range.
func (t *ValueTable) NameOf(v ValueIndex) (string, error) {
	if v < 0 || int(v) >= len(t.names) {
		return "", &UnknownValueError{Name: "<out of range>"}
	}
	return t.names[v], nil
}

// MaxIndex returns one past the highest ValueIndex registered so far.
func (t *ValueTable) MaxIndex() ValueIndex {
	return ValueIndex(len(t.names))
}
