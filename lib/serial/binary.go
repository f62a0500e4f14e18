package serial

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/dRef/lib/ref"
)

// NewBinaryCodec creates a codec using a compact binary format. Optional
// fields are announced by a flag byte and only written when present.
func NewBinaryCodec() Codec {
	return binaryCodec{}
}

type binaryCodec struct{}

const binaryVersion byte = 1

// Bit flags for the optional fields of a form
const (
	hasValuePolicy byte = 1 << 0
	hasValueClass  byte = 1 << 1
	hasCapacity    byte = 1 << 2
	hasKeys        byte = 1 << 3
	hasValues      byte = 1 << 4
)

// Bit flags for the optional fields of a value
const (
	hasData byte = 1 << 0
	hasRefs byte = 1 << 1
)

func (binaryCodec) Name() string { return "binary" }

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

func (binaryCodec) Encode(g *Graph) ([]byte, error) {
	buf := make([]byte, 0, 64*len(g.Nodes)+9)
	buf = append(buf, binaryVersion)
	buf = binary.BigEndian.AppendUint32(buf, g.Root)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(g.Nodes)))

	for i := range g.Nodes {
		buf = appendForm(buf, &g.Nodes[i])
	}
	return buf, nil
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func appendValues(buf []byte, values []Value) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(values)))
	for _, v := range values {
		var flags byte
		if len(v.Data) > 0 {
			flags |= hasData
		}
		if len(v.Refs) > 0 {
			flags |= hasRefs
		}
		buf = append(buf, flags)

		if flags&hasData != 0 {
			buf = binary.BigEndian.AppendUint32(buf, uint32(len(v.Data)))
			buf = append(buf, v.Data...)
		}
		if flags&hasRefs != 0 {
			buf = binary.BigEndian.AppendUint32(buf, uint32(len(v.Refs)))
			for _, id := range v.Refs {
				buf = binary.BigEndian.AppendUint32(buf, id)
			}
		}
	}
	return buf
}

func appendForm(buf []byte, f *Form) []byte {
	var flags byte
	if f.ValuePolicy != 0 {
		flags |= hasValuePolicy
	}
	if f.ValueClass != "" {
		flags |= hasValueClass
	}
	if f.Capacity > 0 {
		flags |= hasCapacity
	}
	if len(f.Keys) > 0 {
		flags |= hasKeys
	}
	if len(f.Values) > 0 {
		flags |= hasValues
	}

	buf = binary.BigEndian.AppendUint32(buf, f.ID)
	buf = append(buf, byte(f.Kind), flags, byte(f.Policy))
	buf = appendString(buf, f.Class)

	if flags&hasValuePolicy != 0 {
		buf = append(buf, byte(f.ValuePolicy))
	}
	if flags&hasValueClass != 0 {
		buf = appendString(buf, f.ValueClass)
	}
	if flags&hasCapacity != 0 {
		buf = binary.BigEndian.AppendUint32(buf, uint32(f.Capacity))
	}
	if flags&hasKeys != 0 {
		buf = appendValues(buf, f.Keys)
	}
	if flags&hasValues != 0 {
		buf = appendValues(buf, f.Values)
	}
	return buf
}

// --------------------------------------------------------------------------
// Decoding
// --------------------------------------------------------------------------

// reader reads big endian fields and remembers the first error
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) need(n int, what string) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = fmt.Errorf("data too short for %s", what)
		return false
	}
	return true
}

func (r *reader) u8(what string) byte {
	if !r.need(1, what) {
		return 0
	}
	b := r.data[r.pos]
	r.pos++
	return b
}

func (r *reader) u32(what string) uint32 {
	if !r.need(4, what) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.pos : r.pos+4])
	r.pos += 4
	return v
}

func (r *reader) blob(what string) []byte {
	n := int(r.u32(what + " length"))
	if !r.need(n, what) {
		return nil
	}
	out := make([]byte, n)
	copy(out, r.data[r.pos:r.pos+n])
	r.pos += n
	return out
}

// count reads a length prefix and checks that at least size bytes per item remain
func (r *reader) count(size int, what string) int {
	n := int(r.u32(what + " count"))
	if !r.need(n*size, what) {
		return 0
	}
	return n
}

func (r *reader) values(what string) []Value {
	n := r.count(1, what)
	if n == 0 {
		return nil
	}
	out := make([]Value, n)
	for i := range out {
		flags := r.u8(what + " flags")
		if flags&hasData != 0 {
			out[i].Data = r.blob(what + " data")
		}
		if flags&hasRefs != 0 {
			refs := make([]uint32, r.count(4, what+" refs"))
			for j := range refs {
				refs[j] = r.u32(what + " ref")
			}
			if len(refs) > 0 {
				out[i].Refs = refs
			}
		}
		if r.err != nil {
			return nil
		}
	}
	return out
}

func (r *reader) form(f *Form) {
	f.ID = r.u32("id")
	f.Kind = Kind(r.u8("kind"))
	flags := r.u8("flags")
	f.Policy = ref.Policy(r.u8("policy"))
	f.Class = string(r.blob("class"))

	if flags&hasValuePolicy != 0 {
		f.ValuePolicy = ref.Policy(r.u8("value policy"))
	}
	if flags&hasValueClass != 0 {
		f.ValueClass = string(r.blob("value class"))
	}
	if flags&hasCapacity != 0 {
		f.Capacity = int(r.u32("capacity"))
	}
	if flags&hasKeys != 0 {
		f.Keys = r.values("keys")
	}
	if flags&hasValues != 0 {
		f.Values = r.values("values")
	}
}

func (binaryCodec) Decode(data []byte) (*Graph, error) {
	r := &reader{data: data}
	if v := r.u8("version"); r.err == nil && v != binaryVersion {
		return nil, newError(CodeCorrupt, -1, "unsupported binary version %d", v)
	}

	g := &Graph{Root: r.u32("root")}
	// a form takes at least 12 bytes: id, kind, flags, policy, class length
	n := r.count(12, "nodes")
	if n > 0 {
		g.Nodes = make([]Form, n)
		for i := range g.Nodes {
			r.form(&g.Nodes[i])
		}
	}

	if r.err != nil {
		return nil, wrapError(CodeCorrupt, -1, r.err, "invalid binary graph")
	}
	if r.pos != len(data) {
		return nil, newError(CodeCorrupt, -1, "%d trailing bytes", len(data)-r.pos)
	}
	return g, nil
}
