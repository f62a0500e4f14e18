package serial

import (
	"encoding/json"
	"fmt"
)

// Source is something the Encoder can write as a node
type Source interface {
	// Identity is the object the node stands for, equal identities share a node
	Identity() any
	// SerialForm describes the node, nested containers are written through enc
	SerialForm(enc *Encoder) (*Form, error)
}

// ElementCodec encodes the elements (or keys or values) of one type.
// Class names the type in the serial form.
type ElementCodec[T any] interface {
	Class() string
	Encode(enc *Encoder, v *T) (Value, error)
	Decode(dec *Decoder, v Value) (*T, error)
}

// --------------------------------------------------------------------------
// Encoder
// --------------------------------------------------------------------------

// Encoder collects the nodes of one graph. It is not safe for concurrent use.
type Encoder struct {
	ids   map[any]uint32
	nodes []*Form
}

func NewEncoder() *Encoder {
	return &Encoder{ids: make(map[any]uint32)}
}

// Intern assigns the next id to identity. fresh is false if identity already
// has an id, its node is written (or being written) then.
func (e *Encoder) Intern(identity any) (id uint32, fresh bool) {
	if id, ok := e.ids[identity]; ok {
		return id, false
	}
	id = uint32(len(e.nodes))
	e.ids[identity] = id
	e.nodes = append(e.nodes, nil)
	return id, true
}

// Encode writes src and returns its node id. The id is assigned before the
// form is built, so a cycle back to src ends in a reference.
func (e *Encoder) Encode(src Source) (uint32, error) {
	id, fresh := e.Intern(src.Identity())
	if !fresh {
		return id, nil
	}
	f, err := src.SerialForm(e)
	if err != nil {
		return 0, err
	}
	f.ID = id
	e.nodes[id] = f
	return id, nil
}

// Graph returns the graph rooted at root
func (e *Encoder) Graph(root uint32) (*Graph, error) {
	g := &Graph{Root: root, Nodes: make([]Form, len(e.nodes))}
	for i, f := range e.nodes {
		if f == nil {
			return nil, fmt.Errorf("serial: node %d was never written", i)
		}
		g.Nodes[i] = *f
	}
	return g, nil
}

// Marshal encodes the graph rooted at root with codec c
func Marshal(c Codec, root Source) ([]byte, error) {
	enc := NewEncoder()
	id, err := enc.Encode(root)
	if err != nil {
		return nil, err
	}
	g, err := enc.Graph(id)
	if err != nil {
		return nil, err
	}
	return c.Encode(g)
}

// --------------------------------------------------------------------------
// Element codecs
// --------------------------------------------------------------------------

// Strings encodes strings as their bytes
func Strings() ElementCodec[string] { return stringCodec{} }

type stringCodec struct{}

func (stringCodec) Class() string { return "string" }

func (stringCodec) Encode(_ *Encoder, v *string) (Value, error) {
	return Value{Data: []byte(*v)}, nil
}

func (stringCodec) Decode(_ *Decoder, v Value) (*string, error) {
	s := string(v.Data)
	return &s, nil
}

// JSON encodes elements with encoding/json. Elements must not reference
// other containers.
func JSON[T any](class string) ElementCodec[T] { return jsonElements[T]{class: class} }

type jsonElements[T any] struct {
	class string
}

func (c jsonElements[T]) Class() string { return c.class }

func (c jsonElements[T]) Encode(_ *Encoder, v *T) (Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Value{}, err
	}
	return Value{Data: data}, nil
}

func (c jsonElements[T]) Decode(_ *Decoder, v Value) (*T, error) {
	out := new(T)
	if err := json.Unmarshal(v.Data, out); err != nil {
		return nil, wrapError(CodeCorrupt, -1, err, "invalid %s element", c.class)
	}
	return out, nil
}
