package refmap

import (
	"github.com/ValentinKolb/dRef/lib/backing"
	"github.com/ValentinKolb/dRef/lib/ref"
	"github.com/ValentinKolb/dRef/lib/util"
)

// Map is a hash map with reference-managed keys and values.
//
//	m, err := refmap.New[string, Session](ref.PolicyStrong, ref.Strings(), ref.PolicyTime, sessionEq)
//	if err != nil {
//		return err
//	}
//	defer m.Close()
type Map[K, V any] struct {
	base[K, V]
	hashed backing.MapStore[K, V]
}

// New creates a map. The default store is backing.NewConcurrentMap.
func New[K, V any](keyPolicy ref.Policy, keyEq ref.Equivalence[K], valuePolicy ref.Policy, valueEq ref.Equivalence[V], opts ...Option) (*Map[K, V], error) {
	s := newSettings(opts)
	st, err := storeFor(s, backing.NewConcurrentMap[K, V])
	if err != nil {
		return nil, err
	}

	m := &Map[K, V]{hashed: st}
	m.store = st
	m.each = st.Range
	if err := m.init("map", s, keyPolicy, keyEq, valuePolicy, valueEq); err != nil {
		return nil, err
	}
	return m, nil
}

// Distribution reports how the keys spread over the hash chains of the store
func (m *Map[K, V]) Distribution() (util.DistributionStats, bool) {
	return backing.Distribution(m.hashed)
}
