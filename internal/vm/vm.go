// Package vm is the reference interpreter: it executes an
// instr.Module's FunctionObjects directly over internal/value.Value,
// so a generated program can actually be run end to end instead of
// only having its output inspected. Debug state is gated behind
// environment variables, the dispatch loop is organized by opcode
// family, and startup follows a "register funcs, allocate globals, run
// init, run entry" sequence. Unlike a flat byte-addressed memory
// model, this interpreter works directly over tagged Values on a
// per-frame stack, and go/select run on real goroutines and channels.
package vm

import (
	"fmt"
	"os"
	"sync"

	"github.com/corestack/govm/internal/iface"
	"github.com/corestack/govm/internal/instr"
	"github.com/corestack/govm/internal/meta"
	"github.com/corestack/govm/internal/value"
)

// VM owns everything a running program needs that outlives any one
// call: the compiled module, the type registry and interface coercion
// table codegen built, package-level globals, and the cycle-collector
// worklist every composite value registers with. One VM serves one
// program run; Globals and the frame table are shared across whatever
// goroutines OpGo spawns.
type VM struct {
	Mod   *instr.Module
	Reg   *meta.Registry
	Iface *iface.Table
	Col   *value.Collector

	Globals []value.Value

	framesMu sync.Mutex
	frames   map[int64]*Frame
	nextID   int64

	// Trace/StepLimit back a per-instruction trace and a runaway-loop
	// backstop for tests that accidentally compile an infinite loop.
	Trace     bool
	StepLimit int64
	steps     int64
}

// New builds a VM ready to Run mod's entry point. reg and ifaceTbl must
// be the same registry/table codegen populated while compiling mod.
func New(mod *instr.Module, reg *meta.Registry, ifaceTbl *iface.Table) *VM {
	vm := &VM{
		Mod:   mod,
		Reg:   reg,
		Iface: ifaceTbl,
		Col:   value.NewCollector(),
		frames: make(map[int64]*Frame),
	}
	if os.Getenv("GOVM_VM_TRACE") == "1" {
		vm.Trace = true
	}
	return vm
}

// Run allocates package-level globals at their zero value, then runs
// every FlagPkgCtor function in declaration order before finally
// calling the module's entry point.
func (vm *VM) Run() (results []value.Value, err error) {
	vm.Globals = make([]value.Value, len(vm.Mod.Globals))
	for i, g := range vm.Mod.Globals {
		vm.Globals[i] = vm.zeroForMeta(meta.Key(g.Meta))
	}
	defer func() {
		if r := recover(); r != nil {
			if ps, ok := r.(panicSignal); ok {
				err = fmt.Errorf("panic: %s", vm.describePanic(ps.v))
				return
			}
			panic(r)
		}
	}()
	for _, fn := range vm.Mod.Funcs {
		if fn.Flag == instr.FlagPkgCtor {
			vm.callFunction(fn, nil, nil, nil, nil)
		}
	}
	entry := vm.Mod.Func(vm.Mod.Entry)
	results = vm.callFunction(entry, nil, nil, nil, nil)
	return results, nil
}

func (vm *VM) describePanic(v value.Value) string {
	switch v.Typ {
	case value.Str:
		return v.Str.String()
	default:
		return v.Typ.String()
	}
}

// Frame is one function activation: its local slots (addressed
// directly by index, never by stack offset — & and closure capture go
// through Upval instead, see openUpval), the upvalues it was called
// with, its own operand stack for expression evaluation, and the
// deferred thunks it has registered so far.
type Frame struct {
	id     int64
	fn     *instr.FunctionObject
	locals []value.Value
	upvals []*value.Upval
	openUp map[int]*value.Upval

	stack []value.Value

	defers []value.Value // thunk Closures, LIFO

	pending []selectClause

	// deferCtx is non-nil only while this frame is itself a deferred
	// call running during its caller's panic unwind — recover() reads
	// and clears it.
	deferCtx *deferContext
}

type deferContext struct {
	panicking *bool
	panicVal  *value.Value
}

func (fr *Frame) push(v value.Value) { fr.stack = append(fr.stack, v) }

func (fr *Frame) pop() value.Value {
	n := len(fr.stack)
	if n == 0 {
		panic("ICE: vm: pop on empty operand stack")
	}
	v := fr.stack[n-1]
	fr.stack = fr.stack[:n-1]
	return v
}

func (fr *Frame) popN(n int) []value.Value {
	out := make([]value.Value, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = fr.pop()
	}
	return out
}

// popNForward pops n values in encounter order rather than popN's
// reversing order — needed wherever a producer pushed its n operands
// in reverse source order already (OpArrayMake/OpSliceMake, see
// genCompositeLit), so a plain sequential pop reconstructs the
// original left-to-right order without an extra reversal.
func (fr *Frame) popNForward(n int) []value.Value {
	out := make([]value.Value, n)
	for i := 0; i < n; i++ {
		out[i] = fr.pop()
	}
	return out
}

func (fr *Frame) top() value.Value { return fr.stack[len(fr.stack)-1] }

// openUpval returns the (lazily created, cached) Upval addressing local
// slot — repeated &x or closure captures of the same variable within
// one frame must observe each other's writes, so the same Upval object
// is handed out every time.
func (fr *Frame) openUpval(slot int) *value.Upval {
	if u, ok := fr.openUp[slot]; ok {
		return u
	}
	u := &value.Upval{State: value.UpvalOpen, FrameDepth: int(fr.id), Slot: slot}
	fr.openUp[slot] = u
	return u
}

func (vm *VM) newFrame(fn *instr.FunctionObject, upvals []*value.Upval) *Frame {
	vm.framesMu.Lock()
	id := vm.nextID
	vm.nextID++
	fr := &Frame{id: id, fn: fn, locals: make([]value.Value, fn.NumLocals), upvals: upvals, openUp: make(map[int]*value.Upval)}
	vm.frames[id] = fr
	vm.framesMu.Unlock()
	return fr
}

// readFrameSlot is the callback composite.go's ClosureData.Close needs:
// read a still-live frame's current local value by (frameDepth, slot).
func (vm *VM) readFrameSlot(frameDepth, slot int) value.Value {
	vm.framesMu.Lock()
	fr, ok := vm.frames[int64(frameDepth)]
	vm.framesMu.Unlock()
	if !ok {
		panic("ICE: vm: read of closed frame's slot")
	}
	return fr.locals[slot]
}

// writeFrameSlot is readFrameSlot's write-through counterpart, needed
// by OpUpvalSet and by storePointer's PtrUpVal case: writing through an
// Open upvalue must land in the defining frame's own locals slice, the
// same slice later reads (including the defining frame's own plain
// OpLocalGet) observe.
func (vm *VM) writeFrameSlot(frameDepth, slot int, v value.Value) {
	vm.framesMu.Lock()
	fr, ok := vm.frames[int64(frameDepth)]
	vm.framesMu.Unlock()
	if !ok {
		panic("ICE: vm: write of closed frame's slot")
	}
	fr.locals[slot] = v
}

// closeFrame snapshots every upvalue this frame still has Open into its
// Closed form, then retires the frame from the live-frame table so a
// pointer into it can no longer be dereferenced.
func (vm *VM) closeFrame(fr *Frame) {
	for _, u := range fr.openUp {
		if u.State == value.UpvalOpen && u.FrameDepth == int(fr.id) {
			u.Closed = fr.locals[u.Slot]
			u.State = value.UpvalClosed
		}
	}
	vm.framesMu.Lock()
	delete(vm.frames, fr.id)
	vm.framesMu.Unlock()
}

// panicSignal carries a language-level panic value through Go's own
// panic/recover so OpPanic/OpDefer/OpRecover can ride on the host's
// native unwinding instead of a hand-rolled one.
type panicSignal struct{ v value.Value }

// callFunction runs fn to completion (including every deferred call it
// registered, in LIFO order, panicking or not) and returns its results.
// dctx is non-nil exactly when this call is itself a deferred function
// invoked while its caller is unwinding a panic — recover() only has an
// effect then, and only in this frame.
func (vm *VM) callFunction(fn *instr.FunctionObject, upvals []*value.Upval, recv *value.Value, args []value.Value, dctx *deferContext) (results []value.Value) {
	fr := vm.newFrame(fn, upvals)
	fr.deferCtx = dctx
	start := 0
	if recv != nil {
		fr.locals[0] = *recv
		start = 1
	}
	for i, a := range args {
		if start+i >= len(fr.locals) {
			break
		}
		fr.locals[start+i] = a
	}
	defer vm.closeFrame(fr)

	var panicVal value.Value
	var panicking bool

	func() {
		defer func() {
			if r := recover(); r != nil {
				ps, ok := r.(panicSignal)
				if !ok {
					panic(r)
				}
				panicVal, panicking = ps.v, true
			}
		}()
		results = vm.execBody(fr)
	}()

	for i := len(fr.defers) - 1; i >= 0; i-- {
		thunk := fr.defers[i]
		func() {
			ctx := &deferContext{panicking: &panicking, panicVal: &panicVal}
			defer func() {
				if r := recover(); r != nil {
					ps, ok := r.(panicSignal)
					if !ok {
						panic(r)
					}
					panicVal, panicking = ps.v, true
				}
			}()
			vm.invokeClosureValue(thunk, nil, ctx)
		}()
	}

	if panicking {
		panic(panicSignal{v: panicVal})
	}
	return results
}

// invokeClosureValue calls the function a Closure/Function value
// denotes, merging in whatever BoundArgs a go/defer thunk (or a bound
// method's receiver) already carries ahead of extraArgs — the ordinary
// call-site arguments, present only for OpCall's dynamic dispatch.
func (vm *VM) invokeClosureValue(cv value.Value, extraArgs []value.Value, dctx *deferContext) []value.Value {
	switch cv.Typ {
	case value.Function:
		if isNilFunction(cv) {
			panic(panicSignal{v: value.NewStr("call of nil function value")})
		}
		fn := vm.Mod.Func(cv.FunctionKey())
		return vm.callFunction(fn, nil, nil, extraArgs, dctx)
	case value.Closure:
		cd := cv.Obj.(*value.ClosureData)
		fn := vm.Mod.Func(cd.FuncKey)
		args := extraArgs
		if len(cd.BoundArgs) > 0 {
			args = append(append([]value.Value{}, cd.BoundArgs...), extraArgs...)
		}
		return vm.callFunction(fn, cd.Upvals, cd.Recv, args, dctx)
	default:
		panic("ICE: vm: call target not a function or closure")
	}
}
