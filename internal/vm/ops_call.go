package vm

import (
	"github.com/corestack/govm/internal/value"
)

// makeClosure implements OpMakeClosure. Unlike every other instruction
// this one does zero runtime stack popping despite Wide carrying the
// upvalue count: the target function's own UpvalDesc table, resolved
// statically by the code generator, says where each upvalue comes from
// in the CURRENT frame, so there is nothing for the caller to have
// pushed in the first place.
func (vm *VM) makeClosure(fr *Frame, fn int64) value.Value {
	target := vm.Mod.Func(fn)
	upvals := make([]*value.Upval, len(target.Upvals))
	for i, d := range target.Upvals {
		if d.FromLocal {
			upvals[i] = fr.openUpval(d.Index)
		} else {
			upvals[i] = fr.upvals[d.Index]
		}
	}
	cd := value.NewClosureData(vm.Col, fn, upvals)
	return value.Value{Typ: value.Closure, Obj: cd}
}

// makeThunk implements OpMakeThunk: the callee (Function or Closure)
// was pushed first, then its argc already-evaluated arguments — both
// evaluated at the go/defer statement itself, not when the thunk later
// runs.
func (vm *VM) makeThunk(callee value.Value, args []value.Value) value.Value {
	callee = callee.Unwrap()
	switch callee.Typ {
	case value.Function:
		if isNilFunction(callee) {
			panic(panicSignal{v: value.NewStr("call of nil function value")})
		}
		return value.Value{Typ: value.Closure, Obj: value.NewThunkClosure(vm.Col, callee.FunctionKey(), nil, nil, args)}
	case value.Closure:
		cd := callee.Obj.(*value.ClosureData)
		merged := args
		if len(cd.BoundArgs) > 0 {
			merged = append(append([]value.Value{}, cd.BoundArgs...), args...)
		}
		return value.Value{Typ: value.Closure, Obj: value.NewThunkClosure(vm.Col, cd.FuncKey, cd.Upvals, cd.Recv, merged)}
	default:
		panic("ICE: vm: go/defer target not a function or closure")
	}
}

// runGo implements OpGo: spawns the thunk on a real goroutine. An
// unrecovered language-level panic inside it is left to crash the
// whole process, the same way an unrecovered panic in a plain Go
// goroutine does — there is no supervising recover here.
func (vm *VM) runGo(cv value.Value) {
	go func() {
		vm.invokeClosureValue(cv, nil, nil)
	}()
}
