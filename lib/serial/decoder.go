package serial

import (
	"fmt"

	"github.com/ValentinKolb/dRef/lib/common"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger(common.LoggerSerial)

// Builder rebuilds the containers of one class from their forms
type Builder interface {
	// Class is the element class (maps: key and value class) the builder handles
	Class() string
	// Build creates the container described by f. The returned Source writes
	// the built container again.
	Build(dec *Decoder, f *Form) (any, Source, error)
}

// --------------------------------------------------------------------------
// Decoder (phase one)
// --------------------------------------------------------------------------

// Decoder holds a validated graph and one Deferred per node.
// It is not safe for concurrent use.
type Decoder struct {
	graph    *Graph
	builders map[string]Builder
	nodes    []*Deferred
}

// NewDecoder validates g and prepares a Deferred for every node. Nothing is
// built until a node is resolved.
func NewDecoder(g *Graph, builders ...Builder) (*Decoder, error) {
	if err := g.validate(); err != nil {
		return nil, err
	}
	d := &Decoder{
		graph:    g,
		builders: make(map[string]Builder, len(builders)),
		nodes:    make([]*Deferred, len(g.Nodes)),
	}
	for i := range g.Nodes {
		d.nodes[i] = &Deferred{dec: d, form: &g.Nodes[i]}
	}
	for _, b := range builders {
		d.Register(b)
	}
	return d, nil
}

// Unmarshal decodes data with codec c and returns the decoder of the graph
func Unmarshal(c Codec, data []byte, builders ...Builder) (*Decoder, error) {
	g, err := c.Decode(data)
	if err != nil {
		return nil, err
	}
	return NewDecoder(g, builders...)
}

// Register adds a builder, replacing one of the same class
func (d *Decoder) Register(b Builder) {
	d.builders[b.Class()] = b
}

// Root returns the Deferred of the root node
func (d *Decoder) Root() *Deferred { return d.nodes[d.graph.Root] }

// Deferred returns the Deferred of node id
func (d *Decoder) Deferred(id uint32) (*Deferred, error) {
	if int(id) >= len(d.nodes) {
		return nil, newError(CodeCorrupt, int(id), "no such node")
	}
	return d.nodes[id], nil
}

// Len returns the number of nodes
func (d *Decoder) Len() int { return len(d.nodes) }

// --------------------------------------------------------------------------
// Deferred (phase two)
// --------------------------------------------------------------------------

type buildState uint8

const (
	statePending buildState = iota
	stateBuilding
	stateBuilt
)

// Deferred builds the container of one node on the first Resolve and returns
// the same result on every later call. A failed build is memoized as well.
type Deferred struct {
	dec    *Decoder
	form   *Form
	state  buildState
	result any
	source Source
	err    error
}

// Form returns the raw form of the node
func (d *Deferred) Form() *Form { return d.form }

// Built reports whether the node was resolved successfully
func (d *Deferred) Built() bool { return d.state == stateBuilt && d.err == nil }

// Resolve builds the container on first use. While the build is running it
// returns ErrCyclicBuild, elements have to reach their container through a
// Lazy handle instead.
func (d *Deferred) Resolve() (any, error) {
	switch d.state {
	case stateBuilt:
		return d.result, d.err
	case stateBuilding:
		return nil, fmt.Errorf("%w: node %d", ErrCyclicBuild, d.form.ID)
	}

	class := builderClass(d.form)
	b, ok := d.dec.builders[class]
	if !ok {
		d.state = stateBuilt
		d.err = newError(CodeUnknownClass, int(d.form.ID), "no builder for %q", class)
		return nil, d.err
	}

	d.state = stateBuilding
	result, source, err := b.Build(d.dec, d.form)
	d.state = stateBuilt
	if err != nil {
		d.err = err
		Logger.Warningf("failed to build node %d (%s): %v", d.form.ID, d.form.Kind, err)
		return nil, err
	}
	d.result, d.source = result, source
	Logger.Debugf("built node %d (%s of %s, %d elements)", d.form.ID, d.form.Kind, class, len(d.form.Keys))
	return result, nil
}

// Identity is the built container once available, so that writing the
// Deferred and writing the container yield the same node
func (d *Deferred) Identity() any {
	if d.Built() {
		return d.result
	}
	return d
}

// SerialForm writes the built container if there is one, the raw form otherwise
func (d *Deferred) SerialForm(enc *Encoder) (*Form, error) {
	if d.Built() && d.source != nil {
		return d.source.SerialForm(enc)
	}

	f := *d.form
	var err error
	if f.Keys, err = d.remap(enc, f.Keys); err != nil {
		return nil, err
	}
	if f.Values, err = d.remap(enc, f.Values); err != nil {
		return nil, err
	}
	return &f, nil
}

// remap writes the nodes referenced by values and rewrites the ids
func (d *Deferred) remap(enc *Encoder, values []Value) ([]Value, error) {
	if values == nil {
		return nil, nil
	}
	out := make([]Value, len(values))
	for i, v := range values {
		out[i].Data = v.Data
		if len(v.Refs) == 0 {
			continue
		}
		out[i].Refs = make([]uint32, len(v.Refs))
		for j, id := range v.Refs {
			nid, err := enc.Encode(d.dec.nodes[id])
			if err != nil {
				return nil, err
			}
			out[i].Refs[j] = nid
		}
	}
	return out, nil
}

// ResolveAs resolves d and checks the type of the result
func ResolveAs[C any](d *Deferred) (C, error) {
	var zero C
	r, err := d.Resolve()
	if err != nil {
		return zero, err
	}
	c, ok := r.(C)
	if !ok {
		return zero, newError(CodeKindMismatch, int(d.form.ID), "node is %T, want %T", r, zero)
	}
	return c, nil
}

// --------------------------------------------------------------------------
// Lazy
// --------------------------------------------------------------------------

// Lazy is a handle to a container that may not be built yet. Decoded
// elements keep a Lazy to their container, it resolves on first Get.
type Lazy[C any] struct {
	d     *Deferred
	value C
	ok    bool
}

// LazyOf returns a handle resolving d on first use
func LazyOf[C any](d *Deferred) *Lazy[C] {
	return &Lazy[C]{d: d}
}

// Known returns a handle to an existing container
func Known[C any](v C) *Lazy[C] {
	return &Lazy[C]{value: v, ok: true}
}

// Get returns the container, resolving it if needed
func (l *Lazy[C]) Get() (C, error) {
	if l.ok {
		return l.value, nil
	}
	if l.d == nil {
		var zero C
		return zero, newError(CodeMissingField, -1, "empty lazy handle")
	}
	v, err := ResolveAs[C](l.d)
	if err != nil {
		return v, err
	}
	l.value, l.ok = v, true
	return v, nil
}

// Deferred returns the node behind the handle, nil for Known handles
func (l *Lazy[C]) Deferred() *Deferred { return l.d }
