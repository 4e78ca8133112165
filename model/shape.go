package model

// DType is a value's element type. Kept small and independent of any
// particular tensor library since type inference itself is out of scope;
// the planner only needs enough to compute element sizes for SameSize.
type DType int

const (
	InvalidDType DType = iota
	Bool
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float32
	Float64
	BFloat16
	Complex64
	Complex128
)

// elementSizes gives the byte width of each DType; zero means unknown
// (opaque/non-tensor types never reach SameSize).
var elementSizes = map[DType]int{
	Bool:       1,
	Int8:       1,
	Uint8:      1,
	Int16:      2,
	Uint16:     2,
	BFloat16:   2,
	Int32:      4,
	Uint32:     4,
	Float32:    4,
	Int64:      8,
	Uint64:     8,
	Float64:    8,
	Complex64:  8,
	Complex128: 16,
}

// ElementSize returns the byte width of d, or 0 if unknown.
func (d DType) ElementSize() int {
	return elementSizes[d]
}

// Dim is one dimension of a symbolic shape: either a known concrete
// size, or a named symbolic size (e.g. a batch dimension bound at run
// time), or entirely unknown.
type Dim struct {
	Concrete int64  // valid when Known is true and Symbol == ""
	Symbol   string // non-empty for a named symbolic dimension
	Known    bool   // false means "unknown dim" -- compares unequal to everything
}

// KnownDim builds a Dim with a concrete known size.
func KnownDim(size int64) Dim {
	return Dim{Concrete: size, Known: true}
}

// SymbolicDim builds a Dim carrying a named symbolic size.
func SymbolicDim(name string) Dim {
	return Dim{Symbol: name, Known: true}
}

// UnknownDim builds a Dim with no known size.
func UnknownDim() Dim {
	return Dim{Known: false}
}

// Equal reports whether two dims are the same rank-1 dimension under the
// conservative rule: unknown dims never compare equal to anything,
// including another unknown dim.
func (d Dim) Equal(o Dim) bool {
	if !d.Known || !o.Known {
		return false
	}
	if d.Symbol != "" || o.Symbol != "" {
		return d.Symbol == o.Symbol && d.Symbol != ""
	}
	return d.Concrete == o.Concrete
}

// SymShape is a value's abstract shape: an element type plus a list of
// dims, any of which may be symbolic or unknown.
type SymShape struct {
	DType DType
	Dims  []Dim
}

// IsTensor reports whether this shape denotes a tensor type as opposed
// to an opaque/non-tensor value (e.g. a sequence or map type). A
// SymShape with a zero-value DType is treated as non-tensor.
func (s SymShape) IsTensor() bool {
	return s.DType != InvalidDType
}

// SameShape reports whether two shapes have identical rank and,
// dimension by dimension, equal dims under Dim.Equal's conservative
// rule -- unknown-vs-known or missing dims compare unequal.
func SameShape(a, b SymShape) bool {
	if len(a.Dims) != len(b.Dims) {
		return false
	}
	for i := range a.Dims {
		if !a.Dims[i].Equal(b.Dims[i]) {
			return false
		}
	}
	return true
}

// SameSize reports whether two shapes describe buffers of identical
// element byte-width and identical symbolic shape -- the rule rule 4 and
// rule 5 of the reuse pass use to decide whether one value's buffer can
// host another. Element byte-width, not exact DType, is what must match:
// a Float32 buffer and an Int32 buffer are both 4 bytes per element and
// are legitimate reuse/in-place candidates. There is deliberately no
// byte-equal fallback for shape-different-but-same-total-size buffers;
// see the planner's reuse pass for the disabled-comparison note this
// preserves.
func SameSize(a, b SymShape) bool {
	if !a.IsTensor() || !b.IsTensor() {
		return false
	}
	size := a.DType.ElementSize()
	if size == 0 || size != b.DType.ElementSize() {
		return false
	}
	return SameShape(a, b)
}
