// Package emit is the emitter façade: a thin stateful layer over an
// in-progress FunctionObject that the code generator calls into
// instead of constructing instr.Inst values by hand. One emit
// entrypoint funnels every instruction through a stack-delta
// bookkeeping step, split out of the compiler so internal/codegen can
// stay focused on tree-walking.
package emit

import (
	"github.com/corestack/govm/internal/instr"
	"github.com/corestack/govm/internal/value"
)

// Emitter accumulates instructions into one FunctionObject and tracks
// the compile-time operand-stack depth, used to verify calls and
// deferred patches line up.
type Emitter struct {
	Func       *instr.FunctionObject
	StackDepth int
	labelSeq   int
	// pendingJumps holds label-id -> instruction indices still awaiting
	// a resolved jump target.
	pendingJumps map[int][]int
	labelPos     map[int]int32
}

func New(f *instr.FunctionObject) *Emitter {
	return &Emitter{Func: f, pendingJumps: make(map[int][]int), labelPos: make(map[int]int32)}
}

func (e *Emitter) NewLabel() int {
	l := e.labelSeq
	e.labelSeq++
	return l
}

func (e *Emitter) emit(in instr.Inst) int32 {
	e.Func.Code = append(e.Func.Code, in)
	e.StackDepth += stackDelta(in, e.Func)
	return int32(len(e.Func.Code) - 1)
}

// Label binds a label id to the next instruction's position and
// resolves every jump that referenced it before this point.
func (e *Emitter) Label(id int) {
	pos := int32(len(e.Func.Code))
	e.labelPos[id] = pos
	for _, idx := range e.pendingJumps[id] {
		e.Func.Code[idx].Index = pos
	}
	delete(e.pendingJumps, id)
}

// jumpTo emits a jump-family instruction targeting label id, patching
// immediately if the label is already bound (backward jump) or
// deferring the patch until Label(id) runs (forward jump).
func (e *Emitter) jumpTo(op instr.Opcode, id int) {
	idx := e.emit(instr.Inst{Op: op, Index: -1})
	if pos, ok := e.labelPos[id]; ok {
		e.Func.Code[idx].Index = pos
		return
	}
	e.pendingJumps[id] = append(e.pendingJumps[id], int(idx))
}

func (e *Emitter) Jmp(id int)         { e.jumpTo(instr.OpJmp, id) }
func (e *Emitter) JmpIfTrue(id int)   { e.jumpTo(instr.OpJmpIfTrue, id) }
func (e *Emitter) JmpIfFalse(id int)  { e.jumpTo(instr.OpJmpIfFalse, id) }

func (e *Emitter) LoadConst(c instr.ConstEntry) {
	idx := int32(len(e.Func.Consts))
	e.Func.Consts = append(e.Func.Consts, c)
	e.emit(instr.Inst{Op: instr.OpConst, Index: idx, Hint: [3]value.Type{c.Typ}})
}

func (e *Emitter) LoadNil(t value.Type) {
	e.emit(instr.Inst{Op: instr.OpConstNil, Hint: [3]value.Type{t}})
}

func (e *Emitter) LocalGet(slot int, t value.Type) {
	e.emit(instr.Inst{Op: instr.OpLocalGet, Index: int32(slot), Hint: [3]value.Type{t}})
}

func (e *Emitter) LocalSet(slot int, t value.Type) {
	e.emit(instr.Inst{Op: instr.OpLocalSet, Index: int32(slot), Hint: [3]value.Type{t}})
}

func (e *Emitter) LocalAddr(slot int) {
	e.emit(instr.Inst{Op: instr.OpLocalAddr, Index: int32(slot)})
}

func (e *Emitter) GlobalGet(slot int, t value.Type) {
	e.emit(instr.Inst{Op: instr.OpGlobalGet, Index: int32(slot), Hint: [3]value.Type{t}})
}

func (e *Emitter) GlobalSet(slot int, t value.Type) {
	e.emit(instr.Inst{Op: instr.OpGlobalSet, Index: int32(slot), Hint: [3]value.Type{t}})
}

func (e *Emitter) GlobalAddr(slot int) {
	e.emit(instr.Inst{Op: instr.OpGlobalAddr, Index: int32(slot)})
}

func (e *Emitter) UpvalGet(idx int, t value.Type) {
	e.emit(instr.Inst{Op: instr.OpUpvalGet, Index: int32(idx), Hint: [3]value.Type{t}})
}

func (e *Emitter) UpvalSet(idx int, t value.Type) {
	e.emit(instr.Inst{Op: instr.OpUpvalSet, Index: int32(idx), Hint: [3]value.Type{t}})
}

func (e *Emitter) Pop()  { e.emit(instr.Inst{Op: instr.OpPop}) }
func (e *Emitter) Dup()  { e.emit(instr.Inst{Op: instr.OpDup}) }
func (e *Emitter) Swap() { e.emit(instr.Inst{Op: instr.OpSwap}) }

// BinOp emits a scalar binary instruction hinted with its operand
// type; V64 arithmetic dispatches on this hint at interpret time.
func (e *Emitter) BinOp(op instr.Opcode, t value.Type) {
	e.emit(instr.Inst{Op: op, Hint: [3]value.Type{t, t, t}})
}

func (e *Emitter) UnOp(op instr.Opcode, t value.Type) {
	e.emit(instr.Inst{Op: op, Hint: [3]value.Type{t}})
}

func (e *Emitter) Cmp(op instr.Opcode, operandT value.Type) {
	e.emit(instr.Inst{Op: op, Hint: [3]value.Type{operandT}})
}

func (e *Emitter) Load(t value.Type)  { e.emit(instr.Inst{Op: instr.OpLoad, Hint: [3]value.Type{t}}) }
func (e *Emitter) Store(t value.Type) { e.emit(instr.Inst{Op: instr.OpStore, Hint: [3]value.Type{t}}) }
func (e *Emitter) AddrOf()            { e.emit(instr.Inst{Op: instr.OpAddrOf}) }
func (e *Emitter) Deref(t value.Type) { e.emit(instr.Inst{Op: instr.OpDeref, Hint: [3]value.Type{t}}) }

// PreCall and Call together bracket argument evaluation: PreCall
// reserves nothing (call targets are resolved statically at this IR
// layer) and Call records
// the argument count so the interpreter knows how many stack slots to
// pop before pushing results.
func (e *Emitter) PreCall() {}

func (e *Emitter) Call(fn int64, argc, retc int) {
	e.emit(instr.Inst{Op: instr.OpCall, Index: int32(fn), Wide: int64(argc)<<32 | int64(retc), HasWide: true})
}

func (e *Emitter) CallIntrinsic(id int32, argc, retc int) {
	e.emit(instr.Inst{Op: instr.OpCallIntrinsic, Index: id, Wide: int64(argc)<<32 | int64(retc), HasWide: true})
}

func (e *Emitter) Return(n int) { e.emit(instr.Inst{Op: instr.OpReturn, Index: int32(n)}) }

func (e *Emitter) MakeClosure(fn int64, numUpvals int) {
	e.emit(instr.Inst{Op: instr.OpMakeClosure, Index: int32(fn), Wide: int64(numUpvals), HasWide: true})
}

// MakeThunk packages a pushed callee (a Function or Closure value) plus
// its already-pushed argc arguments into a single deferred-call value,
// consumed by Go/Defer — the callee and args must be evaluated at the
// go/defer statement even though the call itself runs later.
func (e *Emitter) MakeThunk(argc int) {
	e.emit(instr.Inst{Op: instr.OpMakeThunk, Wide: int64(argc), HasWide: true})
}

func (e *Emitter) PushImm(n int64, t value.Type) {
	e.emit(instr.Inst{Op: instr.OpConst, Index: -1, Wide: n, HasWide: true, Hint: [3]value.Type{t}})
}

func (e *Emitter) ArrayMake(elemMeta int32, n int) {
	e.emit(instr.Inst{Op: instr.OpArrayMake, Index: elemMeta, Wide: int64(n), HasWide: true})
}

func (e *Emitter) SliceMake(elemMeta int32, n int) {
	e.emit(instr.Inst{Op: instr.OpSliceMake, Index: elemMeta, Wide: int64(n), HasWide: true})
}

// SliceNew lowers `make([]T, length[, cap])`: pops a length (and, when
// hasCap, a capacity above it) and pushes a zero-filled slice, unlike
// SliceMake which builds a literal out of already-pushed elements.
func (e *Emitter) SliceNew(elemMeta int32, hasCap bool) {
	w := int64(0)
	if hasCap {
		w = 1
	}
	e.emit(instr.Inst{Op: instr.OpSliceNew, Index: elemMeta, Wide: w, HasWide: true})
}

func (e *Emitter) SliceExpr(hasMax bool) {
	w := int64(0)
	if hasMax {
		w = 1
	}
	e.emit(instr.Inst{Op: instr.OpSliceExpr, Wide: w, HasWide: true})
}

func (e *Emitter) MapMake(mapMeta int32) { e.emit(instr.Inst{Op: instr.OpMapMake, Index: mapMeta}) }

func (e *Emitter) MapIndex(commaOk bool) {
	op := instr.OpMapIndex
	if commaOk {
		op = instr.OpMapIndexCommaOk
	}
	e.emit(instr.Inst{Op: op})
}

func (e *Emitter) MapSet()    { e.emit(instr.Inst{Op: instr.OpMapSet}) }
func (e *Emitter) MapDelete() { e.emit(instr.Inst{Op: instr.OpMapDelete}) }

func (e *Emitter) StructMake(structMeta int32, n int) {
	e.emit(instr.Inst{Op: instr.OpStructMake, Index: structMeta, Wide: int64(n), HasWide: true})
}

func (e *Emitter) FieldGet(idx int, t value.Type) {
	e.emit(instr.Inst{Op: instr.OpFieldGet, Index: int32(idx), Hint: [3]value.Type{t}})
}

func (e *Emitter) FieldAddr(idx int) {
	e.emit(instr.Inst{Op: instr.OpFieldAddr, Index: int32(idx)})
}

func (e *Emitter) IndexGet(t value.Type) {
	e.emit(instr.Inst{Op: instr.OpIndexGet, Hint: [3]value.Type{t}})
}

func (e *Emitter) IndexAddr() { e.emit(instr.Inst{Op: instr.OpIndexAddr}) }
func (e *Emitter) Len()       { e.emit(instr.Inst{Op: instr.OpLen}) }
func (e *Emitter) Cap()       { e.emit(instr.Inst{Op: instr.OpCap}) }

// New lowers `new(T)`: pushes a pointer to a freshly zero-valued T.
func (e *Emitter) New(targetMeta int32) {
	e.emit(instr.Inst{Op: instr.OpNew, Index: targetMeta})
}

// Append lowers `append(slice, elems...)`: pops n trailing element
// values (pushed left to right) plus the base slice below them, and
// pushes the resulting slice, growing and copying as needed.
func (e *Emitter) Append(n int) {
	e.emit(instr.Inst{Op: instr.OpAppend, Wide: int64(n), HasWide: true})
}

// Copy lowers `copy(dst, src)`: pops (dst, src) and pushes the number
// of elements copied.
func (e *Emitter) Copy() { e.emit(instr.Inst{Op: instr.OpCopy}) }

// RangeInit pushes the iterator state for a range statement; the
// matching Range call's Index is patched to the post-loop address
// once the loop body has been emitted.
func (e *Emitter) RangeInit(t value.Type) {
	e.emit(instr.Inst{Op: instr.OpRangeInit, Hint: [3]value.Type{t}})
}

// Range emits the per-iteration step, returning the instruction index
// so the caller can patch Index with the post-loop jump target once
// known.
func (e *Emitter) Range(keyT, valT value.Type) int32 {
	return e.emit(instr.Inst{Op: instr.OpRange, Hint: [3]value.Type{keyT, valT}, Index: -1})
}

// PatchRangeExit writes the post-loop address into a Range
// instruction previously returned by Range.
func (e *Emitter) PatchRangeExit(idx int32, target int32) {
	e.Func.Code[idx].Index = target
}

func (e *Emitter) Convert(from, to value.Type) {
	e.emit(instr.Inst{Op: instr.OpConvert, Hint: [3]value.Type{from, to}})
}

func (e *Emitter) IfaceBox(coerceIdx int32) {
	e.emit(instr.Inst{Op: instr.OpIfaceBox, Index: coerceIdx})
}

func (e *Emitter) IfaceUnbox(t value.Type) {
	e.emit(instr.Inst{Op: instr.OpIfaceUnbox, Hint: [3]value.Type{t}})
}

func (e *Emitter) IfaceAssert(targetMeta int32, commaOk bool) {
	op := instr.OpIfaceAssert
	if commaOk {
		op = instr.OpIfaceAssertCommaOk
	}
	e.emit(instr.Inst{Op: op, Index: targetMeta})
}

func (e *Emitter) BindMethod(methodFn int64) {
	e.emit(instr.Inst{Op: instr.OpBindMethod, Index: int32(methodFn), HasWide: true, Wide: methodFn})
}

func (e *Emitter) ChanMake(elemMeta int32, capHint bool) {
	w := int64(0)
	if capHint {
		w = 1
	}
	e.emit(instr.Inst{Op: instr.OpChanMake, Index: elemMeta, Wide: w, HasWide: true})
}

func (e *Emitter) ChanSend() { e.emit(instr.Inst{Op: instr.OpChanSend}) }

func (e *Emitter) ChanRecv(commaOk bool) {
	op := instr.OpChanRecv
	if commaOk {
		op = instr.OpChanRecvCommaOk
	}
	e.emit(instr.Inst{Op: op})
}

func (e *Emitter) ChanClose() { e.emit(instr.Inst{Op: instr.OpChanClose}) }

// SelectRecv registers one receive clause for the select that follows:
// the channel operand on top of stack is consumed and appended to the
// pending clause list the next OpSelect resolves. clauseIdx is this
// clause's position in the full clause list (default included), since
// a default clause registers nothing and would otherwise leave later
// clauses' positions ambiguous to the interpreter.
func (e *Emitter) SelectRecv(clauseIdx int) {
	e.emit(instr.Inst{Op: instr.OpSelectRecv, Index: int32(clauseIdx)})
}

// SelectSend registers one send clause; consumes (channel, value).
func (e *Emitter) SelectSend(clauseIdx int) {
	e.emit(instr.Inst{Op: instr.OpSelectSend, Index: int32(clauseIdx)})
}

// Select blocks until exactly one registered clause (or, lacking a
// ready one, the default arm when hasDefault) is chosen, then pushes
// (clauseIndex, recvValue, recvOk) — clauseIndex counts every comm
// clause including default in source order, recvValue/recvOk are the
// received pair when the chosen clause was a receive (zero otherwise).
func (e *Emitter) Select(numClauses int, hasDefault bool) {
	w := int64(numClauses)
	if hasDefault {
		w |= 1 << 32
	}
	e.emit(instr.Inst{Op: instr.OpSelect, Wide: w, HasWide: true})
}

func (e *Emitter) Go()         { e.emit(instr.Inst{Op: instr.OpGo}) }
func (e *Emitter) Defer()      { e.emit(instr.Inst{Op: instr.OpDefer}) }
func (e *Emitter) RunDefers()  { e.emit(instr.Inst{Op: instr.OpRunDefers}) }
func (e *Emitter) Panic()      { e.emit(instr.Inst{Op: instr.OpPanic}) }
func (e *Emitter) Recover()    { e.emit(instr.Inst{Op: instr.OpRecover}) }

// stackDelta computes how many values an instruction net-pushes or
// pops, one case per opcode family, panicking ICE on an opcode nobody
// taught it about yet. Call/intrinsic deltas need the callee's
// declared arity, which the instruction already carries in Wide.
func stackDelta(in instr.Inst, f *instr.FunctionObject) int {
	switch in.Op {
	case instr.OpConst, instr.OpConstNil:
		return 1
	case instr.OpLocalGet, instr.OpGlobalGet, instr.OpUpvalGet,
		instr.OpLocalAddr, instr.OpGlobalAddr, instr.OpUpvalAddr:
		return 1
	case instr.OpLocalSet, instr.OpGlobalSet, instr.OpUpvalSet:
		return -1
	case instr.OpPop:
		return -1
	case instr.OpDup:
		return 1
	case instr.OpSwap:
		return 0
	case instr.OpAdd, instr.OpSub, instr.OpMul, instr.OpDiv, instr.OpRem,
		instr.OpAnd, instr.OpOr, instr.OpXor, instr.OpAndNot, instr.OpShl, instr.OpShr,
		instr.OpEq, instr.OpNeq, instr.OpLt, instr.OpGt, instr.OpLeq, instr.OpGeq:
		return -1
	case instr.OpNeg, instr.OpNot:
		return 0
	case instr.OpLoad, instr.OpDeref:
		return 0
	case instr.OpStore:
		return -2
	case instr.OpAddrOf:
		return 0
	case instr.OpLabel, instr.OpJmp:
		return 0
	case instr.OpJmpIfTrue, instr.OpJmpIfFalse:
		return -1
	case instr.OpCall, instr.OpCallIntrinsic:
		argc := int(in.Wide >> 32)
		retc := int(in.Wide & 0xffffffff)
		return -argc + retc
	case instr.OpReturn:
		return -int(in.Index)
	case instr.OpMakeClosure:
		return -int(in.Wide) + 1
	case instr.OpMakeThunk:
		return -int(in.Wide)
	case instr.OpArrayMake, instr.OpSliceMake:
		return -int(in.Wide) + 1
	case instr.OpSliceNew:
		if in.Wide != 0 {
			return -1
		}
		return 0
	case instr.OpSliceExpr:
		if in.Wide != 0 {
			return -3
		}
		return -2
	case instr.OpMapMake:
		return 1
	case instr.OpMapIndex:
		return -1
	case instr.OpMapIndexCommaOk:
		return 0
	case instr.OpMapSet:
		return -3
	case instr.OpMapDelete:
		return -2
	case instr.OpStructMake:
		return -int(in.Wide) + 1
	case instr.OpFieldGet:
		return 0
	case instr.OpFieldAddr:
		return 0
	case instr.OpIndexGet:
		return -1
	case instr.OpIndexAddr:
		return -1
	case instr.OpLen, instr.OpCap:
		return 0
	case instr.OpNew:
		return 1
	case instr.OpAppend:
		return -int(in.Wide)
	case instr.OpCopy:
		return -1
	case instr.OpRangeInit:
		return 1
	case instr.OpRange:
		return 2
	case instr.OpConvert:
		return 0
	case instr.OpIfaceBox, instr.OpIfaceUnbox:
		return 0
	case instr.OpIfaceAssert:
		return 0
	case instr.OpIfaceAssertCommaOk:
		return 1
	case instr.OpBindMethod:
		return 0
	case instr.OpChanMake:
		return 1
	case instr.OpChanSend:
		return -2
	case instr.OpChanRecv:
		return 0
	case instr.OpChanRecvCommaOk:
		return 1
	case instr.OpChanClose:
		return -1
	case instr.OpSelectRecv:
		return -1
	case instr.OpSelectSend:
		return -2
	case instr.OpSelect:
		return 3
	case instr.OpGo, instr.OpDefer:
		return -1
	case instr.OpRunDefers:
		return 0
	case instr.OpPanic:
		return -1
	case instr.OpRecover:
		return 1
	}
	panic("ICE: emit: unknown opcode in stackDelta")
}
