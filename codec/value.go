package codec

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Kind discriminates the tagged values carried in call and return frames.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindFloat
	KindStr
	KindBytes
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindStr:
		return "str"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is one tagged argument or result. The zero Value is KindNil.
// Accessors return the zero value of their type when the kind does not
// match; check Kind first when the distinction matters.
type Value struct {
	kind Kind
	num  uint64 // bool, int (two's complement), float (IEEE 754 bits)
	str  string
	raw  []byte
	list []Value
}

func Nil() Value { return Value{} }

func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.num = 1
	}
	return v
}

func Int(i int64) Value     { return Value{kind: KindInt, num: uint64(i)} }
func Float(f float64) Value { return Value{kind: KindFloat, num: math.Float64bits(f)} }
func Str(s string) Value    { return Value{kind: KindStr, str: s} }
func Bytes(b []byte) Value  { return Value{kind: KindBytes, raw: b} }
func List(vs ...Value) Value {
	return Value{kind: KindList, list: vs}
}

func (v Value) Kind() Kind  { return v.kind }
func (v Value) IsNil() bool { return v.kind == KindNil }
func (v Value) Bool() bool  { return v.kind == KindBool && v.num != 0 }

func (v Value) Int() int64 {
	if v.kind != KindInt {
		return 0
	}
	return int64(v.num)
}

func (v Value) Float() float64 {
	if v.kind != KindFloat {
		return 0
	}
	return math.Float64frombits(v.num)
}

func (v Value) Str() string {
	if v.kind != KindStr {
		return ""
	}
	return v.str
}

func (v Value) Bytes() []byte {
	if v.kind != KindBytes {
		return nil
	}
	return v.raw
}

func (v Value) List() []Value {
	if v.kind != KindList {
		return nil
	}
	return v.list
}

// AppendValue appends the self-describing encoding of v to b: a kind tag
// varint followed by a kind-specific payload. Ints are zigzag varints,
// floats are fixed64 bit patterns, strings and byte slices are
// length-prefixed, lists are a count followed by each element.
func AppendValue(b []byte, v Value) []byte {
	b = protowire.AppendVarint(b, uint64(v.kind))
	switch v.kind {
	case KindNil:
	case KindBool:
		b = protowire.AppendVarint(b, v.num)
	case KindInt:
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(v.num)))
	case KindFloat:
		b = protowire.AppendFixed64(b, v.num)
	case KindStr:
		b = protowire.AppendString(b, v.str)
	case KindBytes:
		b = protowire.AppendBytes(b, v.raw)
	case KindList:
		b = protowire.AppendVarint(b, uint64(len(v.list)))
		for _, el := range v.list {
			b = AppendValue(b, el)
		}
	}
	return b
}

// ConsumeValue decodes one value from the front of b, returning it and the
// number of bytes consumed.
func ConsumeValue(b []byte) (Value, int, error) {
	tag, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return Value{}, 0, protowire.ParseError(n)
	}
	total := n
	b = b[n:]
	switch Kind(tag) {
	case KindNil:
		return Value{}, total, nil
	case KindBool:
		u, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return Value{}, 0, protowire.ParseError(n)
		}
		return Bool(u != 0), total + n, nil
	case KindInt:
		u, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return Value{}, 0, protowire.ParseError(n)
		}
		return Int(protowire.DecodeZigZag(u)), total + n, nil
	case KindFloat:
		u, n := protowire.ConsumeFixed64(b)
		if n < 0 {
			return Value{}, 0, protowire.ParseError(n)
		}
		return Value{kind: KindFloat, num: u}, total + n, nil
	case KindStr:
		s, n := protowire.ConsumeString(b)
		if n < 0 {
			return Value{}, 0, protowire.ParseError(n)
		}
		return Str(s), total + n, nil
	case KindBytes:
		raw, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return Value{}, 0, protowire.ParseError(n)
		}
		out := make([]byte, len(raw))
		copy(out, raw)
		return Bytes(out), total + n, nil
	case KindList:
		count, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return Value{}, 0, protowire.ParseError(n)
		}
		total += n
		b = b[n:]
		if count > uint64(len(b)) {
			return Value{}, 0, fmt.Errorf("codec: list count %d exceeds remaining %d bytes", count, len(b))
		}
		els := make([]Value, 0, count)
		for i := uint64(0); i < count; i++ {
			el, n, err := ConsumeValue(b)
			if err != nil {
				return Value{}, 0, err
			}
			els = append(els, el)
			total += n
			b = b[n:]
		}
		return List(els...), total, nil
	}
	return Value{}, 0, fmt.Errorf("codec: unknown value kind %d", tag)
}

// AppendValues encodes an argument list: a count followed by each value.
func AppendValues(b []byte, vs []Value) []byte {
	b = protowire.AppendVarint(b, uint64(len(vs)))
	for _, v := range vs {
		b = AppendValue(b, v)
	}
	return b
}

// ConsumeValues decodes a full argument list and requires that it spans
// all of b.
func ConsumeValues(b []byte) ([]Value, error) {
	count, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return nil, protowire.ParseError(n)
	}
	b = b[n:]
	if count > uint64(len(b)) {
		return nil, fmt.Errorf("codec: argument count %d exceeds remaining %d bytes", count, len(b))
	}
	vs := make([]Value, 0, count)
	for i := uint64(0); i < count; i++ {
		v, n, err := ConsumeValue(b)
		if err != nil {
			return nil, err
		}
		vs = append(vs, v)
		b = b[n:]
	}
	if len(b) != 0 {
		return nil, fmt.Errorf("codec: %d trailing bytes after argument list", len(b))
	}
	return vs, nil
}
