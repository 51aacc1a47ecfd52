package value

import "math"

// V64 is the unboxed 64-bit stack cell used on the interpreter's hot
// path: scalar arithmetic operates on this bit pattern directly rather
// than unpacking a full Value, and only gets boxed back into a Value
// at spill/store boundaries. Typ records which numeric interpretation
// Bits currently holds so operations can dispatch correctly.
type V64 struct {
	Typ  Type
	Bits uint64
}

func V64FromValue(v Value) V64 {
	switch v.Typ {
	case Complex64, Complex128, Str, Nil:
		panic("ICE: value: v64 of non-scalar type")
	default:
		return V64{Typ: v.Typ, Bits: v.Num}
	}
}

func (v V64) ToValue() Value { return Value{Typ: v.Typ, Num: v.Bits} }

func (v V64) AsInt64() int64   { return int64(v.Bits) }
func (v V64) AsUint64() uint64 { return v.Bits }
func (v V64) AsFloat32() float32 { return math.Float32frombits(uint32(v.Bits)) }
func (v V64) AsFloat64() float64 { return math.Float64frombits(v.Bits) }

func v64SameType(a, b V64) {
	if a.Typ != b.Typ {
		panic("ICE: value: v64 binary op on mismatched types")
	}
}

// maskBits returns the bit width a V64 of type t is truncated to.
// Int/Uint/UintPtr are treated as 64-bit, this VM's machine word width.
func maskBits(t Type) uint {
	switch t {
	case Int8, Uint8:
		return 8
	case Int16, Uint16:
		return 16
	case Int32, Uint32:
		return 32
	default:
		return 64
	}
}

func truncate(t Type, bits uint64) uint64 {
	w := maskBits(t)
	if w == 64 {
		return bits
	}
	mask := uint64(1)<<w - 1
	return bits & mask
}

// signExtend sign-extends a truncated signed value back to the full
// 64-bit pattern, used by comparisons and right-shift on signed types.
func signExtend(t Type, bits uint64) uint64 {
	w := maskBits(t)
	if w == 64 {
		return bits
	}
	signBit := uint64(1) << (w - 1)
	if bits&signBit != 0 {
		return bits | ^(uint64(1)<<w - 1)
	}
	return bits
}

// Add performs wrapping two's-complement addition on integer V64s, or
// IEEE-754 addition on float V64s.
func (v V64) Add(o V64) V64 {
	v64SameType(v, o)
	if v.Typ.IsFloat() {
		return floatOp(v, o, func(a, b float64) float64 { return a + b })
	}
	return V64{Typ: v.Typ, Bits: truncate(v.Typ, v.Bits+o.Bits)}
}

func (v V64) Sub(o V64) V64 {
	v64SameType(v, o)
	if v.Typ.IsFloat() {
		return floatOp(v, o, func(a, b float64) float64 { return a - b })
	}
	return V64{Typ: v.Typ, Bits: truncate(v.Typ, v.Bits-o.Bits)}
}

func (v V64) Mul(o V64) V64 {
	v64SameType(v, o)
	if v.Typ.IsFloat() {
		return floatOp(v, o, func(a, b float64) float64 { return a * b })
	}
	return V64{Typ: v.Typ, Bits: truncate(v.Typ, v.Bits*o.Bits)}
}

// Div implements non-wrapping integer division (signed division by -1
// on the minimum value is the one integer case that would overflow; it
// is treated as an ICE rather than wrapped, since the type checker
// guarantees this combination never reaches codegen in a well-typed
// program) and IEEE-754 division for floats.
func (v V64) Div(o V64) (V64, error) {
	v64SameType(v, o)
	if v.Typ.IsFloat() {
		return floatOp(v, o, func(a, b float64) float64 { return a / b }), nil
	}
	if o.Bits == 0 {
		return V64{}, ErrDivisionByZero
	}
	if v.Typ.IsUnsigned() {
		return V64{Typ: v.Typ, Bits: truncate(v.Typ, v.Bits/o.Bits)}, nil
	}
	a, b := int64(signExtend(v.Typ, v.Bits)), int64(signExtend(o.Typ, o.Bits))
	if a == math.MinInt64 && b == -1 {
		panic("ICE: value: signed division overflow reached codegen")
	}
	return V64{Typ: v.Typ, Bits: truncate(v.Typ, uint64(a/b))}, nil
}

// Rem is non-wrapping remainder: division by zero and the INT_MIN/-1
// case are runtime errors, not wraps.
func (v V64) Rem(o V64) (V64, error) {
	v64SameType(v, o)
	if o.Bits == 0 {
		return V64{}, ErrDivisionByZero
	}
	if v.Typ.IsUnsigned() {
		return V64{Typ: v.Typ, Bits: truncate(v.Typ, v.Bits%o.Bits)}, nil
	}
	a, b := int64(signExtend(v.Typ, v.Bits)), int64(signExtend(o.Typ, o.Bits))
	if a == math.MinInt64 && b == -1 {
		return V64{Typ: v.Typ, Bits: 0}, nil
	}
	return V64{Typ: v.Typ, Bits: truncate(v.Typ, uint64(a%b))}, nil
}

func (v V64) And(o V64) V64 { v64SameType(v, o); return V64{Typ: v.Typ, Bits: v.Bits & o.Bits} }
func (v V64) Or(o V64) V64  { v64SameType(v, o); return V64{Typ: v.Typ, Bits: v.Bits | o.Bits} }
func (v V64) Xor(o V64) V64 { v64SameType(v, o); return V64{Typ: v.Typ, Bits: v.Bits ^ o.Bits} }
func (v V64) AndNot(o V64) V64 {
	v64SameType(v, o)
	return V64{Typ: v.Typ, Bits: truncate(v.Typ, v.Bits&^o.Bits)}
}

// Shl/Shr implement checked shifts: a shift amount >= the operand's
// bit width yields 0, matching neither C's undefined behavior nor
// Go's modular-shift behavior.
func (v V64) Shl(amount uint64) V64 {
	if amount >= uint64(maskBits(v.Typ)) {
		return V64{Typ: v.Typ, Bits: 0}
	}
	return V64{Typ: v.Typ, Bits: truncate(v.Typ, v.Bits<<amount)}
}

func (v V64) Shr(amount uint64) V64 {
	w := uint64(maskBits(v.Typ))
	if v.Typ.IsUnsigned() {
		if amount >= w {
			return V64{Typ: v.Typ, Bits: 0}
		}
		return V64{Typ: v.Typ, Bits: truncate(v.Typ, v.Bits>>amount)}
	}
	signed := int64(signExtend(v.Typ, v.Bits))
	if amount >= w {
		return V64{Typ: v.Typ, Bits: 0}
	}
	return V64{Typ: v.Typ, Bits: truncate(v.Typ, uint64(signed>>amount))}
}

func (v V64) Neg() V64 {
	if v.Typ.IsFloat() {
		if v.Typ == Float32 {
			return V64{Typ: Float32, Bits: uint64(math.Float32bits(-v.AsFloat32()))}
		}
		return V64{Typ: Float64, Bits: math.Float64bits(-v.AsFloat64())}
	}
	return V64{Typ: v.Typ, Bits: truncate(v.Typ, -v.Bits)}
}

func floatOp(a, b V64, f func(x, y float64) float64) V64 {
	if a.Typ == Float32 {
		r := f(float64(a.AsFloat32()), float64(b.AsFloat32()))
		return V64{Typ: Float32, Bits: uint64(math.Float32bits(float32(r)))}
	}
	r := f(a.AsFloat64(), b.AsFloat64())
	return V64{Typ: Float64, Bits: math.Float64bits(r)}
}

// Cmp implements a NaN-safe total ordering for floats (NaN sorts
// consistently rather than comparing unordered) and ordinary
// signed/unsigned comparison for integers. Returns -1/0/1.
func (v V64) Cmp(o V64) int {
	v64SameType(v, o)
	switch {
	case v.Typ.IsFloat():
		a, b := asOrderedFloat(v), asOrderedFloat(o)
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	case v.Typ.IsUnsigned():
		switch {
		case v.Bits < o.Bits:
			return -1
		case v.Bits > o.Bits:
			return 1
		default:
			return 0
		}
	default:
		a, b := int64(signExtend(v.Typ, v.Bits)), int64(signExtend(o.Typ, o.Bits))
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	}
}

// asOrderedFloat maps a float to a monotonic int64 key: every NaN
// sorts above +Inf with one shared key, -0 and +0 share key 0, and
// every other value keeps its IEEE order.
func asOrderedFloat(v V64) int64 {
	var bits uint64
	if v.Typ == Float32 {
		if f := v.AsFloat32(); f != f {
			return math.MaxInt64
		}
		bits = uint64(math.Float32bits(v.AsFloat32())) << 32
	} else {
		if math.IsNaN(math.Float64frombits(v.Bits)) {
			return math.MaxInt64
		}
		bits = v.Bits
	}
	signed := int64(bits)
	if signed < 0 {
		return math.MinInt64 - signed // negatives map to minus their magnitude bits
	}
	return signed
}

func orderedFloatBits(val Value) uint64 {
	if val.Typ == Float32 {
		return uint64(asOrderedFloat(V64{Typ: Float32, Bits: val.Num}))
	}
	return uint64(asOrderedFloat(V64{Typ: Float64, Bits: val.Num}))
}

// ---- saturating conversions (float->int saturates to the target
// type's MIN/MAX rather than wrapping or panicking) ----

func (v V64) ConvertTo(target Type) V64 {
	if v.Typ == target {
		return v
	}
	if v.Typ.IsFloat() {
		return convertFloatToTarget(v, target)
	}
	if target.IsFloat() {
		return convertIntToFloat(v, target)
	}
	return convertIntToInt(v, target)
}

func convertIntToInt(v V64, target Type) V64 {
	var wide uint64
	if v.Typ.IsUnsigned() {
		wide = v.Bits
	} else {
		wide = uint64(int64(signExtend(v.Typ, v.Bits)))
	}
	return V64{Typ: target, Bits: truncate(target, wide)}
}

func convertIntToFloat(v V64, target Type) V64 {
	var f float64
	if v.Typ.IsUnsigned() {
		f = float64(v.Bits)
	} else {
		f = float64(int64(signExtend(v.Typ, v.Bits)))
	}
	if target == Float32 {
		return V64{Typ: Float32, Bits: uint64(math.Float32bits(float32(f)))}
	}
	return V64{Typ: Float64, Bits: math.Float64bits(f)}
}

func convertFloatToTarget(v V64, target Type) V64 {
	var f float64
	if v.Typ == Float32 {
		f = float64(v.AsFloat32())
	} else {
		f = v.AsFloat64()
	}
	if target.IsFloat() {
		if target == Float32 {
			return V64{Typ: Float32, Bits: uint64(math.Float32bits(float32(f)))}
		}
		return V64{Typ: Float64, Bits: math.Float64bits(f)}
	}
	return V64{Typ: target, Bits: saturateFloatToInt(f, target)}
}

func saturateFloatToInt(f float64, target Type) uint64 {
	if math.IsNaN(f) {
		return 0
	}
	if target.IsUnsigned() {
		lo, hi := float64(0), unsignedMax(target)
		if f <= lo {
			return 0
		}
		if f >= hi {
			return truncate(target, ^uint64(0))
		}
		return truncate(target, uint64(f))
	}
	lo, hi := signedRange(target)
	if f <= float64(lo) {
		return truncate(target, uint64(lo))
	}
	if f >= float64(hi) {
		return truncate(target, uint64(hi))
	}
	return truncate(target, uint64(int64(f)))
}

func unsignedMax(t Type) float64 {
	switch t {
	case Uint8:
		return math.MaxUint8
	case Uint16:
		return math.MaxUint16
	case Uint32:
		return math.MaxUint32
	default:
		return math.MaxUint64
	}
}

func signedRange(t Type) (int64, int64) {
	switch t {
	case Int8:
		return math.MinInt8, math.MaxInt8
	case Int16:
		return math.MinInt16, math.MaxInt16
	case Int32:
		return math.MinInt32, math.MaxInt32
	default:
		return math.MinInt64, math.MaxInt64
	}
}
