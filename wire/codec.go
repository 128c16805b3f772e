package wire

import (
	"math"
	"sort"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/wippyai/anki-bridge/errors"
)

// field is one decoded (number, type, value) triple of a message.
type field struct {
	bytes   []byte
	varint  uint64
	fixed64 uint64
	num     protowire.Number
	fixed32 uint32
	typ     protowire.Type
}

// readFields walks every field of msg in wire order.
// Groups are skipped; they are never produced by the engine.
func readFields(msg string, b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Truncated(errors.PhaseDecode, msg, protowire.ParseError(n))
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			f.fixed32, n = protowire.ConsumeFixed32(b)
		case protowire.Fixed64Type:
			f.fixed64, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return errors.Truncated(errors.PhaseDecode, msg, protowire.ParseError(n))
		}
		b = b[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// unionReader decodes a message whose fields all belong to one oneof.
// Every field is a tag; an unknown field number is an unknown discriminant.
type unionReader struct {
	msg  string
	tags int
}

func (u *unionReader) seen() {
	u.tags++
}

func (u *unionReader) unknown(f field) error {
	return errors.UnknownDiscriminant(errors.PhaseDecode, u.msg, int32(f.num))
}

// done enforces the exactly-one-tag invariant.
func (u *unionReader) done() error {
	if u.tags != 1 {
		return errors.TagCount(errors.PhaseDecode, u.msg, u.tags)
	}
	return nil
}

func (f field) wantType(msg string, typ protowire.Type) error {
	if f.typ != typ {
		return errors.InvalidWireType(errors.PhaseDecode, msg, int32(f.num), int8(f.typ))
	}
	return nil
}

func (f field) asString(msg string) (string, error) {
	if err := f.wantType(msg, protowire.BytesType); err != nil {
		return "", err
	}
	if !utf8.Valid(f.bytes) {
		return "", errors.InvalidUTF8(errors.PhaseDecode, []string{msg}, f.bytes)
	}
	return string(f.bytes), nil
}

func (f field) asBytes(msg string) ([]byte, error) {
	if err := f.wantType(msg, protowire.BytesType); err != nil {
		return nil, err
	}
	out := make([]byte, len(f.bytes))
	copy(out, f.bytes)
	return out, nil
}

// asMessage returns the raw bytes of an embedded message; they alias the input.
func (f field) asMessage(msg string) ([]byte, error) {
	if err := f.wantType(msg, protowire.BytesType); err != nil {
		return nil, err
	}
	return f.bytes, nil
}

func (f field) asUint64(msg string) (uint64, error) {
	if err := f.wantType(msg, protowire.VarintType); err != nil {
		return 0, err
	}
	return f.varint, nil
}

func (f field) asUint32(msg string) (uint32, error) {
	v, err := f.asUint64(msg)
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, errors.Overflow(errors.PhaseDecode, []string{msg}, v, "uint32")
	}
	return uint32(v), nil
}

func (f field) asInt64(msg string) (int64, error) {
	v, err := f.asUint64(msg)
	return int64(v), err
}

// asInt32 decodes a proto int32, which is sign-extended to 64 bits on the wire.
func (f field) asInt32(msg string) (int32, error) {
	v, err := f.asUint64(msg)
	return int32(v), err
}

func (f field) asSint32(msg string) (int32, error) {
	v, err := f.asUint64(msg)
	return int32(protowire.DecodeZigZag(v & math.MaxUint32)), err
}

func (f field) asBool(msg string) (bool, error) {
	v, err := f.asUint64(msg)
	return protowire.DecodeBool(v), err
}

func (f field) asFloat32(msg string) (float32, error) {
	if err := f.wantType(msg, protowire.Fixed32Type); err != nil {
		return 0, err
	}
	return math.Float32frombits(f.fixed32), nil
}

// appendUint32s accepts both packed and unpacked encodings of a repeated uint32.
func (f field) appendUint32s(msg string, dst []uint32) ([]uint32, error) {
	switch f.typ {
	case protowire.VarintType:
		v, err := f.asUint32(msg)
		if err != nil {
			return nil, err
		}
		return append(dst, v), nil
	case protowire.BytesType:
		b := f.bytes
		for len(b) > 0 {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, errors.Truncated(errors.PhaseDecode, msg, protowire.ParseError(n))
			}
			if v > math.MaxUint32 {
				return nil, errors.Overflow(errors.PhaseDecode, []string{msg}, v, "uint32")
			}
			dst = append(dst, uint32(v))
			b = b[n:]
		}
		return dst, nil
	default:
		return nil, errors.InvalidWireType(errors.PhaseDecode, msg, int32(f.num), int8(f.typ))
	}
}

// Encoding helpers. Proto3 scalars are omitted when zero unless the field is
// a oneof member, which always carries presence.

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	return appendStringAlways(b, num, v)
}

func appendStringAlways(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendStrings(b []byte, num protowire.Number, vs []string) []byte {
	for _, v := range vs {
		b = appendStringAlways(b, num, v)
	}
	return b
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	return appendVarintAlways(b, num, v)
}

func appendVarintAlways(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendInt32(b []byte, num protowire.Number, v int32) []byte {
	return appendVarint(b, num, uint64(int64(v)))
}

func appendSint32(b []byte, num protowire.Number, v int32) []byte {
	return appendVarint(b, num, protowire.EncodeZigZag(int64(v)))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendVarintAlways(b, num, protowire.EncodeBool(v))
}

func appendFloat32(b []byte, num protowire.Number, v float32) []byte {
	bits := math.Float32bits(v)
	if bits == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, bits)
}

func appendPackedUint32s(b []byte, num protowire.Number, vs []uint32) []byte {
	if len(vs) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, uint64(v))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

// appendEmbedded writes a length-delimited embedded message produced by body.
func appendEmbedded(b []byte, num protowire.Number, body []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, body)
}

// sortedKeys gives map fields a deterministic encoding order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// map<string, V> entries are embedded messages {1: key, 2: value}.
func appendStringUint32Map(b []byte, num protowire.Number, m map[string]uint32) []byte {
	for _, k := range sortedKeys(m) {
		var entry []byte
		entry = appendString(entry, 1, k)
		entry = appendVarint(entry, 2, uint64(m[k]))
		b = appendEmbedded(b, num, entry)
	}
	return b
}

func appendStringStringMap(b []byte, num protowire.Number, m map[string]string) []byte {
	for _, k := range sortedKeys(m) {
		var entry []byte
		entry = appendString(entry, 1, k)
		entry = appendString(entry, 2, m[k])
		b = appendEmbedded(b, num, entry)
	}
	return b
}

func readMapEntry(msg string, b []byte, value func(f field) error) (string, error) {
	var key string
	err := readFields(msg, b, func(f field) error {
		switch f.num {
		case 1:
			k, err := f.asString(msg)
			key = k
			return err
		case 2:
			return value(f)
		}
		return nil
	})
	return key, err
}
