package document

import (
	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

var (
	_ msgpack.CustomEncoder = (*Document)(nil)
	_ msgpack.CustomDecoder = (*Document)(nil)
)

// EncodeMsgpack writes the document as a msgpack map in key order.
func (d *Document) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(d.Len()); err != nil {
		return err
	}
	for _, k := range d.keys {
		if err := enc.EncodeString(k); err != nil {
			return err
		}
		if err := encodeMsgpackValue(enc, d.values[k]); err != nil {
			return err
		}
	}
	return nil
}

func encodeMsgpackValue(enc *msgpack.Encoder, v any) error {
	switch t := v.(type) {
	case *Document:
		return t.EncodeMsgpack(enc)
	case []any:
		if err := enc.EncodeArrayLen(len(t)); err != nil {
			return err
		}
		for _, e := range t {
			if err := encodeMsgpackValue(enc, e); err != nil {
				return err
			}
		}
		return nil
	}
	return enc.Encode(v)
}

// DecodeMsgpack reads a msgpack map, keeping key order at every depth.
func (d *Document) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return err
	}
	d.keys = nil
	d.values = make(map[string]any, max(n, 0))
	for i := 0; i < n; i++ {
		key, err := dec.DecodeString()
		if err != nil {
			return err
		}
		v, err := decodeMsgpackValue(dec)
		if err != nil {
			return err
		}
		d.Set(key, v)
	}
	return nil
}

func decodeMsgpackValue(dec *msgpack.Decoder) (any, error) {
	code, err := dec.PeekCode()
	if err != nil {
		return nil, err
	}
	switch {
	case msgpcode.IsFixedMap(code) || code == msgpcode.Map16 || code == msgpcode.Map32:
		nested := New()
		if err := nested.DecodeMsgpack(dec); err != nil {
			return nil, err
		}
		return nested, nil
	case msgpcode.IsFixedArray(code) || code == msgpcode.Array16 || code == msgpcode.Array32:
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return nil, err
		}
		list := make([]any, 0, max(n, 0))
		for i := 0; i < n; i++ {
			e, err := decodeMsgpackValue(dec)
			if err != nil {
				return nil, err
			}
			list = append(list, e)
		}
		return list, nil
	}
	v, err := dec.DecodeInterface()
	if err != nil {
		return nil, err
	}
	return Normalize(v), nil
}
