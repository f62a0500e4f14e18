package serial

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"strings"
)

// Codec writes and reads graphs. All codecs are stateless and safe for
// concurrent use.
type Codec interface {
	Name() string
	Encode(g *Graph) ([]byte, error)
	// Decode reads a graph, failures are *Error with CodeCorrupt
	Decode(data []byte) (*Graph, error)
}

// CodecByName returns the codec for json, gob or binary
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "json":
		return NewJSONCodec(), nil
	case "gob":
		return NewGOBCodec(), nil
	case "binary":
		return NewBinaryCodec(), nil
	default:
		return nil, fmt.Errorf("unknown codec %q (json, gob or binary)", name)
	}
}

// --------------------------------------------------------------------------
// JSON
// --------------------------------------------------------------------------

// NewJSONCodec creates a codec using json encoding
func NewJSONCodec() Codec {
	return jsonCodec{}
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Encode(g *Graph) ([]byte, error) {
	return json.Marshal(g)
}

func (jsonCodec) Decode(data []byte) (*Graph, error) {
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, wrapError(CodeCorrupt, -1, err, "invalid json")
	}
	return &g, nil
}

// --------------------------------------------------------------------------
// GOB
// --------------------------------------------------------------------------

// NewGOBCodec creates a codec using Go's gob format
func NewGOBCodec() Codec {
	return gobCodec{}
}

type gobCodec struct{}

func (gobCodec) Name() string { return "gob" }

func (gobCodec) Encode(g *Graph) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(g); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) Decode(data []byte) (*Graph, error) {
	var g Graph
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&g); err != nil {
		return nil, wrapError(CodeCorrupt, -1, err, "invalid gob")
	}
	return &g, nil
}
