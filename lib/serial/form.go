package serial

import (
	"fmt"

	"github.com/ValentinKolb/dRef/lib/ref"
)

// Kind is the type tag of a form
type Kind uint8

const (
	KindSet Kind = iota + 1
	KindSortedSet
	KindQueue
	KindDeque
	KindBlockingQueue
	KindBlockingDeque
	KindList
	KindMap
	KindSortedMap
)

var kindNames = map[Kind]string{
	KindSet:           "set",
	KindSortedSet:     "sorted-set",
	KindQueue:         "queue",
	KindDeque:         "deque",
	KindBlockingQueue: "blocking-queue",
	KindBlockingDeque: "blocking-deque",
	KindList:          "list",
	KindMap:           "map",
	KindSortedMap:     "sorted-map",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k Kind) Valid() bool { return k >= KindSet && k <= KindSortedMap }

// Map reports whether forms of this kind carry values
func (k Kind) Map() bool { return k == KindMap || k == KindSortedMap }

// Value is one encoded element. Data is owned by the element codec, Refs are
// the ids of the nodes the element points to.
type Value struct {
	Data []byte   `json:"data,omitempty"`
	Refs []uint32 `json:"refs,omitempty"`
}

// Form is the raw serial form of one container: pure data without behavior
type Form struct {
	ID          uint32     `json:"id"`
	Kind        Kind       `json:"kind"`
	Policy      ref.Policy `json:"policy"`
	ValuePolicy ref.Policy `json:"value_policy,omitempty"`
	Class       string     `json:"class"`
	ValueClass  string     `json:"value_class,omitempty"`
	Capacity    int        `json:"capacity,omitempty"`
	Keys        []Value    `json:"keys,omitempty"`
	Values      []Value    `json:"values,omitempty"`
}

// Graph is the document written by a codec
type Graph struct {
	Root  uint32 `json:"root"`
	Nodes []Form `json:"nodes"`
}

// builderClass is the registry key of the builder for f
func builderClass(f *Form) string {
	if f.Kind.Map() {
		return mapClass(f.Class, f.ValueClass)
	}
	return f.Class
}

func mapClass(key, value string) string { return key + "->" + value }

// validate checks the invariants phase two relies on
func (g *Graph) validate() error {
	if g == nil || len(g.Nodes) == 0 {
		return newError(CodeMissingField, -1, "graph has no nodes")
	}
	if int(g.Root) >= len(g.Nodes) {
		return newError(CodeCorrupt, -1, "root %d out of range", g.Root)
	}

	checkRefs := func(node int, values []Value) error {
		for _, v := range values {
			for _, id := range v.Refs {
				if int(id) >= len(g.Nodes) {
					return newError(CodeCorrupt, node, "reference to missing node %d", id)
				}
			}
		}
		return nil
	}

	for i := range g.Nodes {
		f := &g.Nodes[i]
		switch {
		case int(f.ID) != i:
			return newError(CodeCorrupt, i, "node has id %d", f.ID)
		case !f.Kind.Valid():
			return newError(CodeCorrupt, i, "unknown kind %d", f.Kind)
		case !f.Policy.Valid():
			return newError(CodeCorrupt, i, "unknown policy %d", f.Policy)
		case f.Class == "":
			return newError(CodeMissingField, i, "class is missing")
		case f.Capacity < 0:
			return newError(CodeCorrupt, i, "negative capacity %d", f.Capacity)
		}

		if f.Kind.Map() {
			switch {
			case !f.ValuePolicy.Valid():
				return newError(CodeCorrupt, i, "unknown value policy %d", f.ValuePolicy)
			case f.ValueClass == "":
				return newError(CodeMissingField, i, "value class is missing")
			case len(f.Values) != len(f.Keys):
				return newError(CodeMissingField, i, "%d keys but %d values", len(f.Keys), len(f.Values))
			}
		} else if len(f.Values) > 0 {
			return newError(CodeKindMismatch, i, "%s carries values", f.Kind)
		}

		if err := checkRefs(i, f.Keys); err != nil {
			return err
		}
		if err := checkRefs(i, f.Values); err != nil {
			return err
		}
	}
	return nil
}
