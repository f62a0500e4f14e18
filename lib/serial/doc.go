// Package serial stores reference-managed collections and maps as graphs and
// rebuilds them in two phases, so that graphs with cycles (an element holding
// its own container) can be read back.
//
// Key Components:
//
//   - Form and Graph: the raw intermediate form. A Form holds the kind,
//     policies, element class and the encoded elements of one container and
//     nothing else, a Graph is the list of forms plus the root id.
//
//   - Codec: encodes a Graph to bytes. Three codecs are provided: JSON for
//     debugging, GOB and a compact flag based Binary format.
//
//   - Encoder: assigns every container an id before its elements are encoded
//     (Encoder.Encode), so a cycle ends in a reference to a node that is
//     already being written.
//
//   - Decoder and Deferred: the Decoder validates the graph and hydrates the
//     forms (phase one). Every node gets a Deferred that builds the real
//     collection on the first Resolve (phase two) and returns the memoized
//     result afterwards. Resolving a node while it is being built returns
//     ErrCyclicBuild instead of recursing.
//
//   - Lazy: the handle elements keep to their container. It resolves the
//     Deferred on first use, after the container has been built.
//
// Collections built by a Decoder own a processor like any other collection
// and have to be closed by the caller. Elements of weak and soft containers
// are only referenced by the rebuilt container, so they may be collected
// right after decoding.
package serial
