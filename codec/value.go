package codec

import (
	"fmt"
	"math"

	"ycrdt/common"
)

// Embed marks a polymorphic array/map/text-insert value that is itself a
// nested shared type rather than a plain JSON scalar. DecodeValue returns
// the marker as-is; it is not resolved to a node handle at decode time.
type Embed struct {
	Kind common.NodeType
	ID   common.OpID
	// Tag carries the XmlElement tag name for NodeTypeXmlElem, or is
	// empty for every other kind.
	Tag string
}

// value type tags, written as a single leading byte.
const (
	tagNull   = 0
	tagBool   = 1
	tagFloat  = 2
	tagString = 3
	tagEmbed  = 4
	tagRune   = 5
)

// EncodeValue writes v, which must be nil, bool, float64, int (written as
// float64), string, rune or Embed.
func EncodeValue(w *Writer, v any) error {
	switch val := v.(type) {
	case nil:
		w.WriteByte(tagNull)
	case bool:
		w.WriteByte(tagBool)
		w.WriteBool(val)
	case float64:
		w.WriteByte(tagFloat)
		w.WriteVarUint(math.Float64bits(val))
	case int:
		w.WriteByte(tagFloat)
		w.WriteVarUint(math.Float64bits(float64(val)))
	case string:
		w.WriteByte(tagString)
		w.WriteVarString(val)
	case rune:
		// Tagged distinctly from tagString so a decoded Text character
		// comes back as a rune, not a one-character string - crdt.Text's
		// item.content type-asserts to rune (text.go's String method).
		w.WriteByte(tagRune)
		w.WriteVarUint(uint64(val))
	case Embed:
		w.WriteByte(tagEmbed)
		w.WriteVarString(string(val.Kind))
		w.WriteVarUint(uint64(val.ID.Client))
		w.WriteVarUint(uint64(val.ID.Clock))
		w.WriteVarString(val.Tag)
	default:
		return fmt.Errorf("codec: unsupported value type %T", v)
	}
	return nil
}

// DecodeValue reads a value written by EncodeValue.
func DecodeValue(r *Reader) (any, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagNull:
		return nil, nil
	case tagBool:
		return r.ReadBool()
	case tagFloat:
		bits, err := r.ReadVarUint()
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(bits), nil
	case tagString:
		return r.ReadVarString()
	case tagRune:
		v, err := r.ReadVarUint()
		if err != nil {
			return nil, err
		}
		return rune(v), nil
	case tagEmbed:
		kind, err := r.ReadVarString()
		if err != nil {
			return nil, err
		}
		client, err := r.ReadVarUint()
		if err != nil {
			return nil, err
		}
		clock, err := r.ReadVarUint()
		if err != nil {
			return nil, err
		}
		tagName, err := r.ReadVarString()
		if err != nil {
			return nil, err
		}
		return Embed{
			Kind: common.NodeType(kind),
			ID:   common.OpID{Client: common.ClientID(client), Clock: common.Clock(clock)},
			Tag:  tagName,
		}, nil
	default:
		return nil, fmt.Errorf("codec: unknown value tag %d", tag)
	}
}
