package ir

import (
	"fmt"
	"strings"
)

type Kind uint8

const (
	KindVoid Kind = iota
	KindBool
	KindInt8
	KindUint8
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindFloat32
	KindFloat64
	// KindPointer is an unmanaged native pointer. The collector treats it as
	// a potential pointer.
	KindPointer
	// KindReference is an object reference into the heap.
	KindReference
	// KindByRef is a managed pointer that may point into the middle of an
	// object.
	KindByRef
	KindStruct
)

var kindNames = map[Kind]string{
	KindVoid:      "void",
	KindBool:      "bool",
	KindInt8:      "i8",
	KindUint8:     "u8",
	KindInt16:     "i16",
	KindUint16:    "u16",
	KindInt32:     "i32",
	KindUint32:    "u32",
	KindInt64:     "i64",
	KindUint64:    "u64",
	KindFloat32:   "f32",
	KindFloat64:   "f64",
	KindPointer:   "ptr",
	KindReference: "ref",
	KindByRef:     "byref",
	KindStruct:    "struct",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind is the inverse of Kind.String for scalar kinds.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name && k != KindStruct {
			return k, true
		}
	}
	return KindVoid, false
}

// PointerKind classifies how the collector must treat a location.
type PointerKind uint8

const (
	NotPointer PointerKind = iota
	HeapPointer
	InternalPointer
	PotentialPointer
)

func (p PointerKind) String() string {
	switch p {
	case NotPointer:
		return "none"
	case HeapPointer:
		return "heap"
	case InternalPointer:
		return "internal"
	case PotentialPointer:
		return "potential"
	}
	return fmt.Sprintf("pointer(%d)", uint8(p))
}

// Type describes the shape of a value. Struct types list their fields in
// layout order; every field occupies whole words.
type Type struct {
	Kind   Kind
	Name   string
	Fields []Type
}

var (
	Void      = Type{Kind: KindVoid}
	Bool      = Type{Kind: KindBool}
	Int8      = Type{Kind: KindInt8}
	Uint8     = Type{Kind: KindUint8}
	Int16     = Type{Kind: KindInt16}
	Uint16    = Type{Kind: KindUint16}
	Int32     = Type{Kind: KindInt32}
	Uint32    = Type{Kind: KindUint32}
	Int64     = Type{Kind: KindInt64}
	Uint64    = Type{Kind: KindUint64}
	Float32   = Type{Kind: KindFloat32}
	Float64   = Type{Kind: KindFloat64}
	Pointer   = Type{Kind: KindPointer}
	Reference = Type{Kind: KindReference}
	ByRef     = Type{Kind: KindByRef}
)

// Struct builds an aggregate type.
func Struct(name string, fields ...Type) Type {
	return Type{Kind: KindStruct, Name: name, Fields: fields}
}

// Size is the storage size in bytes.
func (t Type) Size() int {
	switch t.Kind {
	case KindVoid:
		return 0
	case KindBool, KindInt8, KindUint8:
		return 1
	case KindInt16, KindUint16:
		return 2
	case KindInt64, KindUint64, KindFloat64:
		return 8
	case KindStruct:
		size := 0
		for _, f := range t.Fields {
			size += f.Words() * 4
		}
		return size
	}
	return 4
}

// Words is the number of 32-bit words the value occupies.
func (t Type) Words() int {
	return (t.Size() + 3) / 4
}

func (t Type) IsFloat() bool {
	return t.Kind == KindFloat32 || t.Kind == KindFloat64
}

func (t Type) IsSigned() bool {
	switch t.Kind {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return true
	}
	return false
}

func (t Type) IsInteger() bool {
	switch t.Kind {
	case KindBool, KindInt8, KindUint8, KindInt16, KindUint16,
		KindInt32, KindUint32, KindInt64, KindUint64:
		return true
	}
	return false
}

// PointerKind reports how the collector sees a value of this type.
func (t Type) PointerKind() PointerKind {
	switch t.Kind {
	case KindReference:
		return HeapPointer
	case KindByRef:
		return InternalPointer
	case KindPointer:
		return PotentialPointer
	}
	return NotPointer
}

func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind || t.Name != o.Name || len(t.Fields) != len(o.Fields) {
		return false
	}
	for i := range t.Fields {
		if !t.Fields[i].Equal(o.Fields[i]) {
			return false
		}
	}
	return true
}

func (t Type) String() string {
	if t.Kind != KindStruct {
		return t.Kind.String()
	}
	parts := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		parts[i] = f.String()
	}
	return fmt.Sprintf("%s{%s}", t.Name, strings.Join(parts, ","))
}
