package ref

import (
	"hash/maphash"

	"github.com/ValentinKolb/dRef/lib/util"
)

// Equivalence defines equality and hashing of the elements of one collection.
// Implementations must be consistent: Equal(a, b) implies Hash(a) == Hash(b).
// Neither method is ever called with a nil pointer.
type Equivalence[T any] interface {
	Hash(v *T) uint64
	Equal(a, b *T) bool
	// Identity reports whether elements are compared by pointer instead of value
	Identity() bool
}

// --------------------------------------------------------------------------
// Value equivalence
// --------------------------------------------------------------------------

type values[T comparable] struct {
	seed maphash.Seed
}

// Values returns a value equivalence for comparable element types
func Values[T comparable]() Equivalence[T] {
	return values[T]{seed: maphash.MakeSeed()}
}

func (e values[T]) Hash(v *T) uint64   { return maphash.Comparable(e.seed, *v) }
func (e values[T]) Equal(a, b *T) bool { return *a == *b }
func (e values[T]) Identity() bool     { return false }

type strs struct {
	seed uint64
}

// Strings returns a value equivalence for strings based on the FNV-1a hash
func Strings() Equivalence[string] {
	return strs{seed: util.GenerateSeed()}
}

func (e strs) Hash(v *string) uint64   { return util.Mix64(util.HashString(*v, e.seed)) }
func (e strs) Equal(a, b *string) bool { return *a == *b }
func (e strs) Identity() bool          { return false }

type funcs[T any] struct {
	hash  func(*T) uint64
	equal func(a, b *T) bool
}

// Func builds a value equivalence from a hash and an equality function
func Func[T any](hash func(*T) uint64, equal func(a, b *T) bool) Equivalence[T] {
	return funcs[T]{hash: hash, equal: equal}
}

func (e funcs[T]) Hash(v *T) uint64   { return e.hash(v) }
func (e funcs[T]) Equal(a, b *T) bool { return e.equal(a, b) }
func (e funcs[T]) Identity() bool     { return false }

// --------------------------------------------------------------------------
// Identity equivalence
// --------------------------------------------------------------------------

type identities[T any] struct {
	seed maphash.Seed
}

// Identities returns an equivalence comparing elements by pointer
func Identities[T any]() Equivalence[T] {
	return identities[T]{seed: maphash.MakeSeed()}
}

func (e identities[T]) Hash(v *T) uint64   { return maphash.Comparable(e.seed, v) }
func (e identities[T]) Equal(a, b *T) bool { return a == b }
func (e identities[T]) Identity() bool     { return true }
