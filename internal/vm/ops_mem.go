package vm

import (
	"github.com/corestack/govm/internal/meta"
	"github.com/corestack/govm/internal/value"
)

// loadPointer dereferences every addressable shape Pointer's
// discriminated union can carry. PtrStruct/
// PtrSlice/PtrArray/PtrMap back whole-composite addresses nothing in
// the current code generator ever constructs (genAddrOf only ever
// collapses to a member address); they're handled here defensively
// rather than left to panic on an unreached case.
func (vm *VM) loadPointer(p value.Pointer) value.Value {
	switch p.Kind {
	case value.PtrUpVal:
		if p.Up.State == value.UpvalClosed {
			return p.Up.Closed
		}
		return vm.readFrameSlot(p.Up.FrameDepth, p.Up.Slot)
	case value.PtrStructField:
		if p.Field < 0 || p.Field >= len(p.Struct.Fields) {
			panic(panicSignal{v: value.NewStr(value.ErrIndexOutOfRange.Error())})
		}
		return p.Struct.Fields[p.Field]
	case value.PtrSliceMember:
		v, err := p.Slice.At(p.Index)
		if err != nil {
			panic(panicSignal{v: value.NewStr(err.Error())})
		}
		return v
	case value.PtrArrayElem:
		if p.Index < 0 || p.Index >= len(p.Array.Elems) {
			panic(panicSignal{v: value.NewStr(value.ErrIndexOutOfRange.Error())})
		}
		return p.Array.Elems[p.Index]
	case value.PtrMapElem:
		if p.Map == nil {
			panic(panicSignal{v: value.NewStr(value.ErrNilDereference.Error())})
		}
		v, ok := p.Map.Get(p.MKey)
		if !ok {
			return vm.zeroForMeta(vm.Reg.Get(vm.Reg.Underlying(meta.Key(p.Map.Meta))).Val)
		}
		return v
	case value.PtrPkgMember:
		return vm.Globals[p.Pkg]
	case value.PtrStruct:
		return value.Value{Typ: value.Struct, Obj: p.Struct, Meta: p.Struct.Meta}
	case value.PtrSlice:
		return value.Value{Typ: value.Slice, Obj: p.Slice, Meta: p.Slice.Meta}
	case value.PtrArray:
		return value.Value{Typ: value.Array, Obj: p.Array, Meta: p.Array.Meta}
	case value.PtrMap:
		return value.Value{Typ: value.Map, Obj: p.Map, Meta: p.Map.Meta}
	case value.PtrUserData:
		box := p.User.(*value.Value)
		return *box
	case value.PtrReleased:
		panic(panicSignal{v: value.NewStr(value.ErrNilDereference.Error())})
	}
	panic("ICE: vm: load of unhandled pointer kind")
}

func (vm *VM) storePointer(p value.Pointer, v value.Value) {
	switch p.Kind {
	case value.PtrUpVal:
		if p.Up.State == value.UpvalClosed {
			p.Up.Closed = v
			return
		}
		vm.writeFrameSlot(p.Up.FrameDepth, p.Up.Slot, v)
	case value.PtrStructField:
		if p.Field < 0 || p.Field >= len(p.Struct.Fields) {
			panic(panicSignal{v: value.NewStr(value.ErrIndexOutOfRange.Error())})
		}
		p.Struct.Fields[p.Field] = v
	case value.PtrSliceMember:
		if err := p.Slice.Set(p.Index, v); err != nil {
			panic(panicSignal{v: value.NewStr(err.Error())})
		}
	case value.PtrArrayElem:
		if p.Index < 0 || p.Index >= len(p.Array.Elems) {
			panic(panicSignal{v: value.NewStr(value.ErrIndexOutOfRange.Error())})
		}
		p.Array.Elems[p.Index] = v
	case value.PtrMapElem:
		if p.Map == nil {
			panic(panicSignal{v: value.NewStr(value.ErrNilDereference.Error())})
		}
		p.Map.Set(p.MKey, v)
	case value.PtrPkgMember:
		vm.Globals[p.Pkg] = v
	case value.PtrUserData:
		box := p.User.(*value.Value)
		*box = v
	case value.PtrReleased:
		panic(panicSignal{v: value.NewStr(value.ErrNilDereference.Error())})
	default:
		panic("ICE: vm: store through whole-composite pointer unsupported")
	}
}

// structDataOf resolves base (a direct Struct value, or a Pointer to
// one) to its backing StructData — field access auto-derefs a pointer
// receiver the way Go's `.` operator does, since genSelector's field
// path (unlike its method path) pushes the base with plain genExpr,
// never genAddrOf (internal/codegen/expr.go genSelector).
func (vm *VM) structDataOf(base value.Value) *value.StructData {
	base = base.Unwrap()
	if base.Typ == value.Pointer {
		base = vm.loadPointer(base.Obj.(value.Pointer)).Unwrap()
	}
	sd, ok := base.Obj.(*value.StructData)
	if !ok {
		panic("ICE: vm: field access on non-struct value")
	}
	return sd
}

func (vm *VM) fieldGet(base value.Value, idx int) value.Value {
	sd := vm.structDataOf(base)
	if idx < 0 || idx >= len(sd.Fields) {
		panic("ICE: vm: field index out of declared range")
	}
	return sd.Fields[idx]
}

func (vm *VM) fieldAddr(base value.Value, idx int) value.Value {
	sd := vm.structDataOf(base)
	return value.Value{Typ: value.Pointer, Obj: value.Pointer{Kind: value.PtrStructField, Struct: sd, Field: idx}}
}

// indexGet implements non-map indexing (OpIndexGet); map indexing goes
// through OpMapIndex instead (see ops_composite.go), matching genIndex's
// own Kind-based dispatch.
func (vm *VM) indexGet(base, key value.Value) value.Value {
	base = base.Unwrap()
	if base.Typ == value.Pointer {
		return vm.indexGet(vm.loadPointer(base.Obj.(value.Pointer)), key)
	}
	i := int(value.V64FromValue(key.Unwrap()).AsInt64())
	switch base.Typ {
	case value.Slice:
		sd, _ := base.Obj.(*value.SliceData)
		if sd == nil {
			panic(panicSignal{v: value.NewStr(value.ErrIndexOutOfRange.Error())})
		}
		v, err := sd.At(i)
		if err != nil {
			panic(panicSignal{v: value.NewStr(err.Error())})
		}
		return v
	case value.Array:
		ad := base.Obj.(*value.ArrayData)
		if i < 0 || i >= len(ad.Elems) {
			panic(panicSignal{v: value.NewStr(value.ErrIndexOutOfRange.Error())})
		}
		return ad.Elems[i]
	case value.Str:
		b, err := base.Str.ByteAt(i)
		if err != nil {
			panic(panicSignal{v: value.NewStr(err.Error())})
		}
		return value.NewUint8(b)
	}
	panic("ICE: vm: index of non-indexable value")
}

func (vm *VM) indexAddr(base, key value.Value) value.Value {
	base = base.Unwrap()
	if base.Typ == value.Pointer {
		return vm.indexAddr(vm.loadPointer(base.Obj.(value.Pointer)), key)
	}
	i := int(value.V64FromValue(key.Unwrap()).AsInt64())
	switch base.Typ {
	case value.Slice:
		sd, _ := base.Obj.(*value.SliceData)
		if sd == nil {
			panic(panicSignal{v: value.NewStr(value.ErrIndexOutOfRange.Error())})
		}
		return value.Value{Typ: value.Pointer, Obj: value.Pointer{Kind: value.PtrSliceMember, Slice: sd, Index: i}}
	case value.Array:
		ad := base.Obj.(*value.ArrayData)
		return value.Value{Typ: value.Pointer, Obj: value.Pointer{Kind: value.PtrArrayElem, Array: ad, Index: i}}
	}
	panic("ICE: vm: address-of-index on non-addressable value")
}

func (vm *VM) lenOf(v value.Value) int {
	v = v.Unwrap()
	switch v.Typ {
	case value.Str:
		return v.Str.Len()
	case value.Slice:
		sd, _ := v.Obj.(*value.SliceData)
		if sd == nil {
			return 0
		}
		return sd.Len
	case value.Array:
		return len(v.Obj.(*value.ArrayData).Elems)
	case value.Map:
		md, _ := v.Obj.(*value.MapData)
		if md == nil {
			return 0
		}
		return md.Len()
	case value.Channel:
		cd, _ := v.Obj.(*value.ChannelData)
		if cd == nil {
			return 0
		}
		return len(cd.Ch)
	case value.Pointer:
		return vm.lenOf(vm.loadPointer(v.Obj.(value.Pointer)))
	}
	panic("ICE: vm: len of unsupported type")
}

func (vm *VM) capOf(v value.Value) int {
	v = v.Unwrap()
	switch v.Typ {
	case value.Slice:
		sd, _ := v.Obj.(*value.SliceData)
		if sd == nil {
			return 0
		}
		return sd.Cap
	case value.Array:
		return len(v.Obj.(*value.ArrayData).Elems)
	case value.Channel:
		cd, _ := v.Obj.(*value.ChannelData)
		if cd == nil {
			return 0
		}
		return cd.Cap
	case value.Pointer:
		return vm.capOf(vm.loadPointer(v.Obj.(value.Pointer)))
	}
	panic("ICE: vm: cap of unsupported type")
}
