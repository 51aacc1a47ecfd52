package vm

import (
	"github.com/corestack/govm/internal/meta"
	"github.com/corestack/govm/internal/value"
)

// arrayMake implements OpArrayMake/OpSliceMake: elemMeta (not the
// composite's own meta key — Emitter.ArrayMake/SliceMake only carry the
// element type) is re-derived into the composite meta key the same way
// the code generator would have, guaranteeing the same structural
// dedup. Elements were pushed in reverse source order (genCompositeLit,
// internal/codegen/expr.go), so popNForward (no reversal) reconstructs
// them forward.
func (vm *VM) arrayMake(elemMeta meta.Key, n int, elems []value.Value) value.Value {
	m := vm.Reg.Array(elemMeta, n)
	ad := value.NewArrayData(vm.Col, value.MetaKey(m), elems)
	return value.Value{Typ: value.Array, Obj: ad, Meta: value.MetaKey(m)}
}

func (vm *VM) sliceMake(elemMeta meta.Key, n int, elems []value.Value) value.Value {
	m := vm.Reg.SliceOrArray(elemMeta)
	ad := value.NewArrayData(vm.Col, value.MetaKey(m), elems)
	sd := value.NewSliceData(vm.Col, value.MetaKey(m), ad, 0, n, n)
	ad.RC.RefSubOne() // back is solely owned by this one new slice
	return value.Value{Typ: value.Slice, Obj: sd, Meta: value.MetaKey(m)}
}

// sliceNew implements `make([]T, length[, cap])`.
func (vm *VM) sliceNew(elemMeta meta.Key, length, capc int) value.Value {
	m := vm.Reg.SliceOrArray(elemMeta)
	elems := make([]value.Value, capc)
	for i := range elems {
		elems[i] = vm.zeroForMeta(elemMeta)
	}
	ad := value.NewArrayData(vm.Col, value.MetaKey(m), elems)
	sd := value.NewSliceData(vm.Col, value.MetaKey(m), ad, 0, length, capc)
	ad.RC.RefSubOne()
	return value.Value{Typ: value.Slice, Obj: sd, Meta: value.MetaKey(m)}
}

// sliceExpr implements OpSliceExpr (a[lo:hi] / a[lo:hi:max]). Strings
// reslice into a new Str sharing the same byte backing; arrays/slices
// reslice via SliceData.Reslice, first wrapping a bare Array operand
// (a[lo:hi] on an addressable array value) the same way the code
// generator already requires the base be addressable for that case.
func (vm *VM) sliceExpr(base, lo, hi value.Value, hasMax bool, max int) value.Value {
	base = base.Unwrap()
	if base.Typ == value.Pointer {
		base = vm.loadPointer(base.Obj.(value.Pointer))
	}
	loI := int(value.V64FromValue(lo.Unwrap()).AsInt64())
	switch base.Typ {
	case value.Str:
		s := base.Str.String()
		hiI := len(s)
		if hi.Typ != value.Nil {
			hiI = int(value.V64FromValue(hi.Unwrap()).AsInt64())
		}
		if loI < 0 || hiI < loI || hiI > len(s) {
			panic(panicSignal{v: value.NewStr(value.ErrIndexOutOfRange.Error())})
		}
		return value.NewStr(s[loI:hiI])
	case value.Slice:
		sd, _ := base.Obj.(*value.SliceData)
		if sd == nil {
			panic(panicSignal{v: value.NewStr(value.ErrNilDereference.Error())})
		}
		hiI := sd.Len
		if hi.Typ != value.Nil {
			hiI = int(value.V64FromValue(hi.Unwrap()).AsInt64())
		}
		maxI := sd.Cap
		if hasMax {
			maxI = max
		}
		nsd, err := sd.Reslice(vm.Col, loI, hiI, maxI)
		if err != nil {
			panic(panicSignal{v: value.NewStr(err.Error())})
		}
		return value.Value{Typ: value.Slice, Obj: nsd, Meta: base.Meta}
	case value.Array:
		ad := base.Obj.(*value.ArrayData)
		hiI := len(ad.Elems)
		if hi.Typ != value.Nil {
			hiI = int(value.V64FromValue(hi.Unwrap()).AsInt64())
		}
		maxI := len(ad.Elems)
		if hasMax {
			maxI = max
		}
		m := vm.Reg.SliceOrArray(vm.Reg.Get(vm.Reg.Underlying(meta.Key(ad.Meta))).Elem)
		sd := value.NewSliceData(vm.Col, value.MetaKey(m), ad, loI, hiI-loI, maxI-loI)
		return value.Value{Typ: value.Slice, Obj: sd, Meta: value.MetaKey(m)}
	}
	panic("ICE: vm: slice expression on unsupported type")
}

func (vm *VM) mapIndex(m, key value.Value) (value.Value, bool) {
	m = m.Unwrap()
	md, _ := m.Obj.(*value.MapData)
	if md == nil {
		return vm.zeroForMeta(vm.Reg.Get(vm.Reg.Underlying(meta.Key(m.Meta))).Val), false
	}
	v, ok := md.Get(key)
	if !ok {
		return vm.zeroForMeta(vm.Reg.Get(vm.Reg.Underlying(meta.Key(m.Meta))).Val), false
	}
	return v, true
}

func (vm *VM) mapSet(m, key, val value.Value) {
	md, _ := m.Unwrap().Obj.(*value.MapData)
	if md == nil {
		panic(panicSignal{v: value.NewStr(value.ErrNilDereference.Error())})
	}
	md.Set(key, val)
}

func (vm *VM) mapDelete(m, key value.Value) {
	md, _ := m.Unwrap().Obj.(*value.MapData)
	if md == nil {
		return
	}
	md.Delete(key)
}

func (vm *VM) structMake(structMeta meta.Key, fields []value.Value) value.Value {
	sd := value.NewStructData(vm.Col, value.MetaKey(structMeta), fields)
	return value.Value{Typ: value.Struct, Obj: sd, Meta: value.MetaKey(structMeta)}
}

func (vm *VM) newTarget(targetMeta meta.Key) value.Value {
	v := vm.zeroForMeta(targetMeta)
	box := new(value.Value)
	*box = v
	return value.Value{Typ: value.Pointer, Obj: value.Pointer{Kind: value.PtrUserData, User: box}}
}

// appendSlice implements `append(slice, elems...)`: writes into spare
// capacity in place when there's room (sharing the
// backing array, matching Go's own append), otherwise copies into a
// freshly grown backing array.
func (vm *VM) appendSlice(base value.Value, elems []value.Value) value.Value {
	base = base.Unwrap()
	if base.Typ != value.Slice {
		panic("ICE: vm: append on non-slice value")
	}
	sd, _ := base.Obj.(*value.SliceData)
	if sd == nil {
		ad := value.NewArrayData(vm.Col, base.Meta, append([]value.Value{}, elems...))
		nsd := value.NewSliceData(vm.Col, base.Meta, ad, 0, len(elems), len(elems))
		ad.RC.RefSubOne()
		return value.Value{Typ: value.Slice, Obj: nsd, Meta: base.Meta}
	}
	needLen := sd.Len + len(elems)
	if needLen <= sd.Cap {
		for i, e := range elems {
			sd.Back.Elems[sd.Start+sd.Len+i] = e
		}
		nsd := value.NewSliceData(vm.Col, sd.Meta, sd.Back, sd.Start, needLen, sd.Cap)
		return value.Value{Typ: value.Slice, Obj: nsd, Meta: base.Meta}
	}
	newElems := make([]value.Value, needLen)
	copy(newElems, sd.Back.Elems[sd.Start:sd.Start+sd.Len])
	copy(newElems[sd.Len:], elems)
	ad := value.NewArrayData(vm.Col, sd.Meta, newElems)
	nsd := value.NewSliceData(vm.Col, sd.Meta, ad, 0, needLen, needLen)
	ad.RC.RefSubOne()
	return value.Value{Typ: value.Slice, Obj: nsd, Meta: base.Meta}
}

// copySlices implements `copy(dst, src)`, including the copy(dst
// []byte, src string) special case.
func (vm *VM) copySlices(dst, src value.Value) int {
	dst, src = dst.Unwrap(), src.Unwrap()
	dsd, _ := dst.Obj.(*value.SliceData)
	if dsd == nil {
		return 0
	}
	if src.Typ == value.Str {
		s := src.Str.String()
		n := dsd.Len
		if len(s) < n {
			n = len(s)
		}
		for i := 0; i < n; i++ {
			dsd.Back.Elems[dsd.Start+i] = value.NewUint8(s[i])
		}
		return n
	}
	ssd, _ := src.Obj.(*value.SliceData)
	if ssd == nil {
		return 0
	}
	n := dsd.Len
	if ssd.Len < n {
		n = ssd.Len
	}
	for i := 0; i < n; i++ {
		dsd.Back.Elems[dsd.Start+i] = ssd.Back.Elems[ssd.Start+i]
	}
	return n
}

// rangeIter is the opaque value OpRangeInit pushes and every OpRange
// call pops/advances — never observed by user code, so it needs no
// representation in value.Type's closed enumeration.
type rangeIter struct {
	keys []value.Value
	vals []value.Value
	pos  int
}

func (vm *VM) rangeInit(container value.Value) *rangeIter {
	container = container.Unwrap()
	if container.Typ == value.Pointer {
		container = vm.loadPointer(container.Obj.(value.Pointer)).Unwrap()
	}
	it := &rangeIter{}
	switch container.Typ {
	case value.Array:
		ad := container.Obj.(*value.ArrayData)
		for i, e := range ad.Elems {
			it.keys = append(it.keys, value.NewInt(int64(i)))
			it.vals = append(it.vals, e)
		}
	case value.Slice:
		sd, _ := container.Obj.(*value.SliceData)
		if sd != nil {
			for i := 0; i < sd.Len; i++ {
				v, _ := sd.At(i)
				it.keys = append(it.keys, value.NewInt(int64(i)))
				it.vals = append(it.vals, v)
			}
		}
	case value.Map:
		md, _ := container.Obj.(*value.MapData)
		if md != nil {
			md.Range(func(k, v value.Value) {
				it.keys = append(it.keys, k)
				it.vals = append(it.vals, v)
			})
		}
	case value.Str:
		for idx, r := range container.Str.String() {
			it.keys = append(it.keys, value.NewInt(int64(idx)))
			it.vals = append(it.vals, value.NewInt32(r))
		}
	default:
		panic("ICE: vm: range over unsupported type")
	}
	return it
}
