// Package value implements the runtime value universe: the tagged
// Value union, the unboxed 64-bit V64 stack cell, and their
// arithmetic, conversion, comparison, hashing, and copy semantics. One
// struct, one discriminant field, a handful of generically-named
// payload fields reused differently per tag.
package value

import (
	"fmt"
	"math"
)

// MetaKey is an opaque handle to a type descriptor owned by
// internal/meta's Registry. value does not import meta — meta imports
// value instead — so this type stands in for meta.Key here; meta.Key
// is defined as the same underlying int and the two convert freely at
// the few call sites that cross the boundary (internal/codegen).
type MetaKey int

// Type is the small closed enumeration instructions dispatch on.
// Flag variants are reserved for encoding secondary operand hints
// inside instructions.
type Type int

const (
	Nil Type = iota
	Bool
	Int
	Int8
	Int16
	Int32
	Int64
	Uint
	UintPtr
	Uint8
	Uint16
	Uint32
	Uint64
	Float32
	Float64
	Complex64
	Complex128
	Str
	Array
	Pointer
	Closure
	Slice
	Map
	Interface
	Struct
	Channel
	Function
	Package
	Metadata
	Named
	FlagA
	FlagB
	FlagC
)

var typeNames = [...]string{
	"nil", "bool", "int", "int8", "int16", "int32", "int64",
	"uint", "uintptr", "uint8", "uint16", "uint32", "uint64",
	"float32", "float64", "complex64", "complex128", "string",
	"array", "pointer", "closure", "slice", "map", "interface",
	"struct", "channel", "function", "package", "metadata", "named",
	"flagA", "flagB", "flagC",
}

func (t Type) String() string {
	if int(t) >= 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// IsInteger reports whether t is one of the signed/unsigned integer tags.
func (t Type) IsInteger() bool {
	switch t {
	case Int, Int8, Int16, Int32, Int64, Uint, UintPtr, Uint8, Uint16, Uint32, Uint64:
		return true
	}
	return false
}

func (t Type) IsUnsigned() bool {
	switch t {
	case Uint, UintPtr, Uint8, Uint16, Uint32, Uint64:
		return true
	}
	return false
}

func (t Type) IsFloat() bool { return t == Float32 || t == Float64 }

// Value is the tagged runtime value. Scalars store their payload in
// Num (bit-reinterpreted per Typ — see V64, which shares this
// encoding). Composite/reference variants store their backing object
// in Obj; Str stores its immutable byte content directly since it is
// frequent enough on the hot path to deserve its own field. Meta is
// populated whenever the variant's identity depends on a type
// descriptor (Nil, Struct, Array, Named, Interface, Pointer, ...).
type Value struct {
	Typ  Type
	Num  uint64 // scalars: bit pattern, see numeric accessors below
	Cplx [2]float64
	Str  *StrData
	Obj  interface{} // *ArrayData, *SliceData, *MapData, *StructData, *ClosureData, *InterfaceData, *ChannelData, Pointer, Value (Named); FunctionKey and PackageKey live in Num
	Meta MetaKey
}

// StrData owns an immutable, shared, UTF-8 byte sequence; strings are
// indexable by byte.
type StrData struct {
	b []byte
}

func NewStrData(s string) *StrData { return &StrData{b: []byte(s)} }
func (s *StrData) String() string  { return string(s.b) }
func (s *StrData) Len() int        { return len(s.b) }
func (s *StrData) ByteAt(i int) (byte, error) {
	if i < 0 || i >= len(s.b) {
		return 0, ErrIndexOutOfRange
	}
	return s.b[i], nil
}

// ---- scalar constructors ----

func NewNil(m MetaKey) Value    { return Value{Typ: Nil, Meta: m} }
func NewBool(b bool) Value {
	var n uint64
	if b {
		n = 1
	}
	return Value{Typ: Bool, Num: n}
}
func NewInt(i int64) Value     { return Value{Typ: Int, Num: uint64(i)} }
func NewInt8(i int8) Value     { return Value{Typ: Int8, Num: uint64(uint8(i))} }
func NewInt16(i int16) Value   { return Value{Typ: Int16, Num: uint64(uint16(i))} }
func NewInt32(i int32) Value   { return Value{Typ: Int32, Num: uint64(uint32(i))} }
func NewInt64(i int64) Value   { return Value{Typ: Int64, Num: uint64(i)} }
func NewUint(u uint64) Value   { return Value{Typ: Uint, Num: u} }
func NewUintPtr(u uint64) Value { return Value{Typ: UintPtr, Num: u} }
func NewUint8(u uint8) Value   { return Value{Typ: Uint8, Num: uint64(u)} }
func NewUint16(u uint16) Value { return Value{Typ: Uint16, Num: uint64(u)} }
func NewUint32(u uint32) Value { return Value{Typ: Uint32, Num: uint64(u)} }
func NewUint64(u uint64) Value { return Value{Typ: Uint64, Num: u} }
func NewFloat32(f float32) Value {
	return Value{Typ: Float32, Num: uint64(math.Float32bits(f))}
}
func NewFloat64(f float64) Value { return Value{Typ: Float64, Num: math.Float64bits(f)} }
func NewComplex64(re, im float32) Value {
	return Value{Typ: Complex64, Cplx: [2]float64{float64(re), float64(im)}}
}
func NewComplex128(re, im float64) Value {
	return Value{Typ: Complex128, Cplx: [2]float64{re, im}}
}
func NewStr(s string) Value { return Value{Typ: Str, Str: NewStrData(s)} }

func NewFunction(key int64) Value     { return Value{Typ: Function, Num: uint64(key)} }
func NewPackage(key int64) Value      { return Value{Typ: Package, Num: uint64(key)} }
func NewMetadataVal(m MetaKey) Value  { return Value{Typ: Metadata, Meta: m} }

// ---- scalar accessors ----

func (v Value) Bool() bool     { return v.Num != 0 }
func (v Value) Int() int64     { return int64(v.Num) }
func (v Value) Int8() int8     { return int8(uint8(v.Num)) }
func (v Value) Int16() int16   { return int16(uint16(v.Num)) }
func (v Value) Int32() int32   { return int32(uint32(v.Num)) }
func (v Value) Int64() int64   { return int64(v.Num) }
func (v Value) Uint() uint64   { return v.Num }
func (v Value) Uint8() uint8   { return uint8(v.Num) }
func (v Value) Uint16() uint16 { return uint16(v.Num) }
func (v Value) Uint32() uint32 { return uint32(v.Num) }
func (v Value) Uint64() uint64 { return v.Num }
func (v Value) Float32() float32 { return math.Float32frombits(uint32(v.Num)) }
func (v Value) Float64() float64 { return math.Float64frombits(v.Num) }
func (v Value) Complex64() (float32, float32)  { return float32(v.Cplx[0]), float32(v.Cplx[1]) }
func (v Value) Complex128() (float64, float64) { return v.Cplx[0], v.Cplx[1] }
func (v Value) FunctionKey() int64 { return int64(v.Num) }
func (v Value) PackageKey() int64  { return int64(v.Num) }

// Type returns the value's tag.
func (v Value) Type() Type { return v.Typ }

// MetaOf returns the Metadata handle identifying v's type. For Named
// it is the wrapper's own key.
func (v Value) MetaOf() MetaKey { return v.Meta }

// NewNamed wraps x with a distinct named-type identity. Structural
// operations still dispatch on x; type identity dispatches on m.
func NewNamed(x Value, m MetaKey) Value {
	return Value{Typ: Named, Obj: x, Meta: m}
}

// Unwrap strips one Named layer, returning the inner value unchanged.
// Non-Named values are returned as-is (idempotent).
func (v Value) Unwrap() Value {
	if v.Typ != Named {
		return v
	}
	return v.Obj.(Value)
}

var ErrIndexOutOfRange = fmt.Errorf("index out of range")
var ErrNilDereference = fmt.Errorf("nil dereference")
var ErrDivisionByZero = fmt.Errorf("division by zero")
var ErrTypeAssertionFailed = fmt.Errorf("type assertion failed")
var ErrChannelSendOnClosed = fmt.Errorf("send on closed channel")
