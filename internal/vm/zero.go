package vm

import "github.com/corestack/govm/internal/meta"
import "github.com/corestack/govm/internal/value"

// zeroForMeta builds the zero value of a fully resolved type: numeric
// types zero, strings empty, composites recursively zeroed, and every
// reference-like shape (slice/map/channel/pointer/function/interface)
// nil — matching Go's own zero-value rules.
func (vm *VM) zeroForMeta(k meta.Key) value.Value {
	under := vm.Reg.Underlying(k)
	m := vm.Reg.Get(under)
	switch m.Kind {
	case meta.KindBasic:
		return zeroForType(m.Basic)
	case meta.KindArray:
		elems := make([]value.Value, m.Len)
		for i := range elems {
			elems[i] = vm.zeroForMeta(m.Elem)
		}
		return value.Value{Typ: value.Array, Obj: value.NewArrayData(vm.Col, value.MetaKey(under), elems), Meta: value.MetaKey(under)}
	case meta.KindSliceOrArray:
		return value.Value{Typ: value.Slice, Obj: (*value.SliceData)(nil), Meta: value.MetaKey(under)}
	case meta.KindMap:
		return value.Value{Typ: value.Map, Obj: (*value.MapData)(nil), Meta: value.MetaKey(under)}
	case meta.KindStruct:
		fields := make([]value.Value, len(m.Fields))
		for i, f := range m.Fields {
			fields[i] = vm.zeroForMeta(f.Type)
		}
		return value.Value{Typ: value.Struct, Obj: value.NewStructData(vm.Col, value.MetaKey(under), fields), Meta: value.MetaKey(under)}
	case meta.KindSignature:
		return value.NewNil(value.MetaKey(under))
	case meta.KindInterface:
		return value.Value{Typ: value.Interface, Obj: (*value.InterfaceData)(nil), Meta: value.MetaKey(under)}
	case meta.KindChannel:
		return value.Value{Typ: value.Channel, Obj: (*value.ChannelData)(nil), Meta: value.MetaKey(under)}
	case meta.KindPointer, meta.KindUnsafePointer:
		return value.NewNil(value.MetaKey(under))
	}
	panic("ICE: vm: zero value of unhandled kind")
}

// zeroForType builds the zero value of an erased ValueType, used at
// OpConstNil sites where only the static erasure (not a meta.Key) is
// available — every reference-like tag gets an explicitly typed nil
// Obj so a later type assertion against it doesn't panic on an
// untyped-nil interface.
func zeroForType(t value.Type) value.Value {
	switch t {
	case value.Bool:
		return value.NewBool(false)
	case value.Int:
		return value.NewInt(0)
	case value.Int8:
		return value.NewInt8(0)
	case value.Int16:
		return value.NewInt16(0)
	case value.Int32:
		return value.NewInt32(0)
	case value.Int64:
		return value.NewInt64(0)
	case value.Uint:
		return value.NewUint(0)
	case value.UintPtr:
		return value.NewUintPtr(0)
	case value.Uint8:
		return value.NewUint8(0)
	case value.Uint16:
		return value.NewUint16(0)
	case value.Uint32:
		return value.NewUint32(0)
	case value.Uint64:
		return value.NewUint64(0)
	case value.Float32:
		return value.NewFloat32(0)
	case value.Float64:
		return value.NewFloat64(0)
	case value.Complex64:
		return value.NewComplex64(0, 0)
	case value.Complex128:
		return value.NewComplex128(0, 0)
	case value.Str:
		return value.NewStr("")
	case value.Slice:
		return value.Value{Typ: value.Slice, Obj: (*value.SliceData)(nil)}
	case value.Map:
		return value.Value{Typ: value.Map, Obj: (*value.MapData)(nil)}
	case value.Channel:
		return value.Value{Typ: value.Channel, Obj: (*value.ChannelData)(nil)}
	case value.Interface:
		return value.Value{Typ: value.Interface, Obj: (*value.InterfaceData)(nil)}
	case value.Pointer:
		return value.Value{Typ: value.Pointer, Obj: value.Pointer{Kind: value.PtrReleased}}
	case value.Function:
		return value.Value{Typ: value.Function, Num: ^uint64(0)}
	default:
		return value.NewNil(0)
	}
}

func isNilFunction(v value.Value) bool { return v.Typ == value.Function && v.Num == ^uint64(0) }
