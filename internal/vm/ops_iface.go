package vm

import (
	"github.com/corestack/govm/internal/meta"
	"github.com/corestack/govm/internal/value"
)

// ifaceBox implements OpIfaceBox: wraps a concrete value into an
// Interface value carrying the coercion-table index codegen already
// resolved at compile time (internal/iface.Table.Intern), so method
// dispatch through the interface never needs to re-walk a method table.
func (vm *VM) ifaceBox(coerceIdx int32, concrete value.Value) value.Value {
	id := value.NewInterfaceData(vm.Col, &concrete, coerceIdx)
	return value.Value{Typ: value.Interface, Obj: id}
}

func (vm *VM) ifaceUnbox(v value.Value) value.Value {
	v = v.Unwrap()
	if v.Typ != value.Interface {
		return v
	}
	id := v.Obj.(*value.InterfaceData)
	if id == nil || id.Concrete == nil {
		panic(panicSignal{v: value.NewStr(value.ErrNilDereference.Error())})
	}
	return *id.Concrete
}

// ifaceAssert implements OpIfaceAssert/OpIfaceAssertCommaOk: the target
// is matched against the interface's carried concrete type, not against
// the interface's own static type.
func (vm *VM) ifaceAssert(targetMeta meta.Key, v value.Value) (value.Value, bool) {
	v = v.Unwrap()
	if v.Typ != value.Interface {
		panic("ICE: vm: type assertion on non-interface value")
	}
	id, _ := v.Obj.(*value.InterfaceData)
	if id == nil || id.Concrete == nil {
		return vm.zeroForMeta(targetMeta), false
	}
	concrete := *id.Concrete
	concreteMeta := meta.Key(concrete.MetaOf())
	if concreteMeta == targetMeta {
		return concrete, true
	}
	target := vm.Reg.Get(targetMeta)
	if target.Kind != meta.KindInterface {
		return vm.zeroForMeta(targetMeta), false
	}
	for _, name := range target.MethodSet {
		if _, ok := vm.Reg.MethodLookup(concreteMeta, name); !ok {
			return vm.zeroForMeta(targetMeta), false
		}
	}
	newIdx := vm.Iface.Intern(vm.Reg, targetMeta, concreteMeta)
	return vm.ifaceBox(newIdx, concrete), true
}

func (vm *VM) bindMethod(methodFn int64, recv value.Value) value.Value {
	cd := value.NewBoundMethodClosure(vm.Col, methodFn, recv)
	return value.Value{Typ: value.Closure, Obj: cd}
}
