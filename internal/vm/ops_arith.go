package vm

import (
	"strings"

	"github.com/corestack/govm/internal/instr"
	"github.com/corestack/govm/internal/value"
)

// binOp dispatches one arithmetic/bitwise instruction: Complex64/128
// bypass V64 entirely since V64FromValue panics on them, everything
// else rides the unboxed V64 tables.
func (vm *VM) binOp(op instr.Opcode, a, b value.Value) value.Value {
	a, b = a.Unwrap(), b.Unwrap()
	if a.Typ == value.Complex64 || a.Typ == value.Complex128 {
		return complexBinOp(op, a, b)
	}
	av, bv := value.V64FromValue(a), value.V64FromValue(b)
	switch op {
	case instr.OpAdd:
		return av.Add(bv).ToValue()
	case instr.OpSub:
		return av.Sub(bv).ToValue()
	case instr.OpMul:
		return av.Mul(bv).ToValue()
	case instr.OpDiv:
		r, err := av.Div(bv)
		if err != nil {
			panic(panicSignal{v: value.NewStr(err.Error())})
		}
		return r.ToValue()
	case instr.OpRem:
		r, err := av.Rem(bv)
		if err != nil {
			panic(panicSignal{v: value.NewStr(err.Error())})
		}
		return r.ToValue()
	case instr.OpAnd:
		if a.Typ == value.Bool {
			return value.NewBool(a.Bool() && b.Bool())
		}
		return av.And(bv).ToValue()
	case instr.OpOr:
		if a.Typ == value.Bool {
			return value.NewBool(a.Bool() || b.Bool())
		}
		return av.Or(bv).ToValue()
	case instr.OpXor:
		return av.Xor(bv).ToValue()
	case instr.OpAndNot:
		return av.AndNot(bv).ToValue()
	case instr.OpShl:
		return av.Shl(bv.AsUint64()).ToValue()
	case instr.OpShr:
		return av.Shr(bv.AsUint64()).ToValue()
	}
	panic("ICE: vm: unhandled binary opcode")
}

func complexBinOp(op instr.Opcode, a, b value.Value) value.Value {
	ar, ai := a.Cplx[0], a.Cplx[1]
	br, bi := b.Cplx[0], b.Cplx[1]
	var rr, ri float64
	switch op {
	case instr.OpAdd:
		rr, ri = ar+br, ai+bi
	case instr.OpSub:
		rr, ri = ar-br, ai-bi
	case instr.OpMul:
		rr, ri = ar*br-ai*bi, ar*bi+ai*br
	case instr.OpDiv:
		denom := br*br + bi*bi
		if denom == 0 {
			panic(panicSignal{v: value.NewStr(value.ErrDivisionByZero.Error())})
		}
		rr, ri = (ar*br+ai*bi)/denom, (ai*br-ar*bi)/denom
	default:
		panic("ICE: vm: unhandled complex binary opcode")
	}
	if a.Typ == value.Complex64 {
		return value.NewComplex64(float32(rr), float32(ri))
	}
	return value.NewComplex128(rr, ri)
}

func (vm *VM) unOp(op instr.Opcode, t value.Type, v value.Value) value.Value {
	v = v.Unwrap()
	switch op {
	case instr.OpNot:
		return value.NewBool(!v.Bool())
	case instr.OpNeg:
		if v.Typ == value.Complex64 {
			return value.NewComplex64(float32(-v.Cplx[0]), float32(-v.Cplx[1]))
		}
		if v.Typ == value.Complex128 {
			return value.NewComplex128(-v.Cplx[0], -v.Cplx[1])
		}
		return value.V64FromValue(v).Neg().ToValue()
	}
	panic("ICE: vm: unhandled unary opcode")
}

// cmp implements OpEq/OpNeq/OpLt/OpGt/OpLeq/OpGeq. Eq/Neq route through
// value.Equal, the one function that already knows how to compare every
// operand shape genBinary can hint them with (Str/Struct/Array/Pointer/
// Interface included, per internal/codegen/expr.go genBinary — all
// comparison opcodes carry the same vt as arithmetic, not just Eq/Neq).
// Lt/Gt/Leq/Geq only ever compare ordered scalars or strings; anything
// else reaching here is an ICE (the type-checker oracle rejects
// unordered comparisons before codegen).
func (vm *VM) cmp(op instr.Opcode, t value.Type, a, b value.Value) value.Value {
	switch op {
	case instr.OpEq:
		return value.NewBool(value.Equal(a, b))
	case instr.OpNeq:
		return value.NewBool(!value.Equal(a, b))
	}
	a, b = a.Unwrap(), b.Unwrap()
	if t == value.Str || a.Typ == value.Str {
		c := strings.Compare(a.Str.String(), b.Str.String())
		return orderedResult(op, c)
	}
	c := value.V64FromValue(a).Cmp(value.V64FromValue(b))
	return orderedResult(op, c)
}

func orderedResult(op instr.Opcode, c int) value.Value {
	switch op {
	case instr.OpLt:
		return value.NewBool(c < 0)
	case instr.OpGt:
		return value.NewBool(c > 0)
	case instr.OpLeq:
		return value.NewBool(c <= 0)
	case instr.OpGeq:
		return value.NewBool(c >= 0)
	}
	panic("ICE: vm: unhandled comparison opcode")
}

// convert implements OpConvert: numeric
// widening/narrowing and saturating float->int go through V64.ConvertTo
// directly; string conversions and complex width changes need their own
// handling since neither fits the scalar V64 model.
func (vm *VM) convert(from, to value.Type, v value.Value) value.Value {
	v = v.Unwrap()
	if from == to {
		return v
	}
	if to == value.Str {
		return convertToStr(from, v)
	}
	if from == value.Str && to == value.Slice {
		return vm.strToByteSlice(v)
	}
	if from == value.Complex64 && to == value.Complex128 {
		return value.NewComplex128(v.Cplx[0], v.Cplx[1])
	}
	if from == value.Complex128 && to == value.Complex64 {
		return value.NewComplex64(float32(v.Cplx[0]), float32(v.Cplx[1]))
	}
	if (from == value.Complex64 || from == value.Complex128) && to.IsFloat() {
		return zeroForType(to) // unreachable: type-checker disallows complex->float
	}
	return value.V64FromValue(v).ConvertTo(to).ToValue()
}

// convertToStr backs string(x): a rune converts to its UTF-8 encoding
// (string(int32Rune)), a []byte or []rune slice converts by decoding
// its elements (string([]byte), string([]rune)) — distinguished by
// peeking at the source slice's own element width, since value.Type
// erasure alone can't tell []byte from []rune apart once both are just
// "Slice" (documented simplification, see DESIGN.md).
func convertToStr(from value.Type, v value.Value) value.Value {
	if from != value.Slice {
		r := rune(value.V64FromValue(v).AsInt64())
		return value.NewStr(string(r))
	}
	sd, _ := v.Obj.(*value.SliceData)
	if sd == nil {
		return value.NewStr("")
	}
	if sd.Len > 0 {
		if elem, err := sd.At(0); err == nil && (elem.Typ == value.Int32 || elem.Typ == value.Int) {
			runes := make([]rune, sd.Len)
			for i := range runes {
				e, _ := sd.At(i)
				runes[i] = rune(e.Int64())
			}
			return value.NewStr(string(runes))
		}
	}
	b := make([]byte, sd.Len)
	for i := range b {
		e, _ := sd.At(i)
		b[i] = e.Uint8()
	}
	return value.NewStr(string(b))
}

func (vm *VM) strToByteSlice(v value.Value) value.Value {
	s := v.Str.String()
	elems := make([]value.Value, len(s))
	for i := 0; i < len(s); i++ {
		elems[i] = value.NewUint8(s[i])
	}
	elemMeta := vm.Reg.Basic(value.Uint8)
	m := vm.Reg.SliceOrArray(elemMeta)
	ad := value.NewArrayData(vm.Col, value.MetaKey(m), elems)
	sd := value.NewSliceData(vm.Col, value.MetaKey(m), ad, 0, len(elems), len(elems))
	ad.RC.RefSubOne()
	return value.Value{Typ: value.Slice, Obj: sd, Meta: value.MetaKey(m)}
}
