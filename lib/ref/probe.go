package ref

// Probe is a throwaway stand-in for an element used by lookups and comparisons.
// It is a plain value: creating one never allocates a cell and never registers
// anything with a queue, so it must never be inserted into a collection.
type Probe[T any] struct {
	v    *T
	hash uint64
	eq   Equivalence[T]
}

// MakeProbe creates a probe for v, it panics with ErrNilReferent if v is nil
func MakeProbe[T any](v *T, eq Equivalence[T]) Probe[T] {
	if v == nil {
		panic(ErrNilReferent)
	}
	return Probe[T]{v: v, hash: eq.Hash(v), eq: eq}
}

// Get returns the probed element
func (p Probe[T]) Get() *T { return p.v }

// Hash returns the hash of the probed element
func (p Probe[T]) Hash() uint64 { return p.hash }

// Matches reports whether r holds a live element equal to the probed one
func (p Probe[T]) Matches(r Referrer[T]) bool {
	return r != nil && r.Hash() == p.hash && r.Equal(p.v)
}

// Equal compares the probed element with v
func (p Probe[T]) Equal(v *T) bool {
	return v != nil && p.eq.Equal(p.v, v)
}
