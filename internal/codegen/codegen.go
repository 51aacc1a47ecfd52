// Package codegen is the code generator and its branch/switch/
// select/call bookkeeping helpers: the single visitor that walks the
// AST (with internal/typelookup as its type oracle) and emits
// instructions via internal/emit into internal/instr.FunctionObjects.
// A stack of in-progress functions, each with its own scope stack of
// pushScope/popScope/addLocal/lookupLocal entity resolution, over
// slot-table locals holding a tagged Value, enriched with upvalues,
// interface coercion, and comma-ok unification.
package codegen

import (
	"fmt"

	"github.com/corestack/govm/internal/ast"
	"github.com/corestack/govm/internal/emit"
	"github.com/corestack/govm/internal/iface"
	"github.com/corestack/govm/internal/instr"
	"github.com/corestack/govm/internal/meta"
	"github.com/corestack/govm/internal/sema"
	"github.com/corestack/govm/internal/typelookup"
	"github.com/corestack/govm/internal/value"
)

// entity is what an identifier resolves to within one function: a
// local slot, or (after capture) an upvalue slot. Package members are
// not entities — they're resolved directly to a deferred patch pair
// each time.
type entity struct {
	slot    int
	isUpval bool
	typ     meta.Key
}

// funcCtx is one entry on the code generator's function stack: an
// in-progress FunctionObject plus its own scope stack and loop-label
// bookkeeping.
type funcCtx struct {
	fn       *instr.FunctionObject
	em       *emit.Emitter
	scopes   []map[string]entity
	breaks   []int
	continues []int
	node     *ast.Node
}

func (f *funcCtx) pushScope() { f.scopes = append(f.scopes, map[string]entity{}) }
func (f *funcCtx) popScope()  { f.scopes = f.scopes[:len(f.scopes)-1] }

func (f *funcCtx) addLocal(name string, t meta.Key) int {
	slot := f.fn.NumLocals
	f.fn.NumLocals++
	f.fn.LocalNames = append(f.fn.LocalNames, name)
	f.scopes[len(f.scopes)-1][name] = entity{slot: slot, typ: t}
	return slot
}

func (f *funcCtx) lookupLocal(name string) (entity, bool) {
	for i := len(f.scopes) - 1; i >= 0; i-- {
		if e, ok := f.scopes[i][name]; ok {
			return e, true
		}
	}
	return entity{}, false
}

// Compiler drives the whole visitor. One Compiler compiles one
// package's file into one instr.Module.
type Compiler struct {
	Reg     *meta.Registry
	Bridge  *typelookup.Bridge
	Iface   *iface.Table
	Module  *instr.Module
	globals map[string]int // package-level var/func name -> global slot or function key
	funcKey map[ast.NodeID]int64
	funcStack []*funcCtx
	errs    []string
}

func NewCompiler(reg *meta.Registry, bridge *typelookup.Bridge) *Compiler {
	return &Compiler{
		Reg: reg, Bridge: bridge, Iface: iface.NewTable(),
		Module:  &instr.Module{},
		globals: make(map[string]int),
		funcKey: make(map[ast.NodeID]int64),
	}
}

func (c *Compiler) cur() *funcCtx { return c.funcStack[len(c.funcStack)-1] }

func (c *Compiler) errorf(format string, args ...interface{}) {
	c.errs = append(c.errs, fmt.Sprintf(format, args...))
}

// CompilePackage is the package compiler's entry point: it builds the
// package constructor, then every top-level function and method.
func (c *Compiler) CompilePackage(file *ast.Node, info *sema.Info) (*instr.Module, []string) {
	// Pre-register every function's key so forward calls resolve before
	// bodies are visited.
	funcDecls := collectFuncDecls(file)
	for _, fd := range funcDecls {
		fn := &instr.FunctionObject{
			Name:       fd.Name,
			NumParams:  len(fd.Params),
			NumResults: len(fd.Results),
			Variadic:   fd.Variadic,
		}
		if sig, ok := info.FuncSig[fd.ID]; ok {
			fn.SigMeta = int32(sig)
		}
		key := c.Module.AddFunc(fn)
		c.funcKey[fd.ID] = key
		if fd.Recv == nil {
			c.globals[fd.Name] = int(key)
		}
	}

	ctor := &instr.FunctionObject{Name: "init", Flag: instr.FlagPkgCtor}
	ctorKey := c.Module.AddFunc(ctor)
	c.Module.Entry = ctorKey
	ctorCtx := &funcCtx{fn: ctor, em: emit.New(ctor)}
	ctorCtx.pushScope()
	c.funcStack = append(c.funcStack, ctorCtx)
	for _, spec := range info.PkgOrder {
		c.compileGlobalInit(spec, info)
	}
	ctorCtx.em.Return(0)
	c.funcStack = c.funcStack[:len(c.funcStack)-1]

	for _, fd := range funcDecls {
		c.compileFuncDecl(fd, info)
	}

	// The package constructor (ctorKey, still Module.Entry's value
	// from above) runs once up front via its FlagPkgCtor marker; the
	// actual program entry point is the package's own func main, when
	// one is declared (a library package with no main compiles fine
	// and is simply never Run, only linked against).
	for _, fd := range funcDecls {
		if fd.Recv == nil && fd.Name == "main" {
			c.Module.Entry = c.funcKey[fd.ID]
			break
		}
	}

	return c.Module, c.errs
}

func collectFuncDecls(file *ast.Node) []*ast.Node {
	var out []*ast.Node
	for _, decl := range file.Nodes {
		if decl.Kind == ast.KindFuncDecl {
			out = append(out, decl)
		}
	}
	return out
}

// compileGlobalInit lowers one package-level var/const spec into the
// package constructor, in the dependency order the type checker
// already topologically sorted.
func (c *Compiler) compileGlobalInit(spec *ast.Node, info *sema.Info) {
	f := c.cur()
	names := []string{spec.Name}
	for _, extra := range spec.Nodes {
		names = append(names, extra.Name)
	}
	for _, name := range names {
		if _, exists := c.globals[name]; !exists {
			idx := len(c.Module.Globals)
			c.Module.Globals = append(c.Module.Globals, instr.GlobalSlot{Name: name})
			c.globals[name] = idx
		}
	}
	if spec.X != nil {
		t := c.exprType(spec.X)
		c.genExpr(spec.X)
		c.maybeCoerceToInterface(spec.X, c.declaredGlobalType(spec, t))
		f.em.GlobalSet(c.globals[names[0]], c.Bridge.ValueTypeFromMeta(t))
	}
}

func (c *Compiler) declaredGlobalType(spec *ast.Node, inferred meta.Key) meta.Key {
	if spec.Type != nil {
		return c.Bridge.UseType(spec.Type.ID)
	}
	return inferred
}

func (c *Compiler) exprType(n *ast.Node) meta.Key { return c.Bridge.ExprType(n.ID) }

func (c *Compiler) compileFuncDecl(fd *ast.Node, info *sema.Info) {
	key := c.funcKey[fd.ID]
	fn := c.Module.Func(key)
	fctx := &funcCtx{fn: fn, em: emit.New(fn), node: fd}
	fctx.pushScope()
	if fd.Recv != nil {
		recvT := c.Bridge.UseType(fd.Recv.Type.ID)
		fctx.addLocal(fd.Recv.Name, recvT)
	}
	for _, p := range fd.Params {
		fctx.addLocal(p.Name, c.Bridge.UseType(p.Type.ID))
	}
	for _, r := range fd.Results {
		if r.Name != "" {
			fctx.addLocal(r.Name, c.Bridge.UseType(r.Type.ID))
		}
	}
	c.funcStack = append(c.funcStack, fctx)
	if fd.Body != nil {
		c.compileBlock(fd.Body)
	}
	fctx.em.Return(fn.NumResults)
	c.funcStack = c.funcStack[:len(c.funcStack)-1]

	if fd.Recv != nil {
		recvT := c.Bridge.UseType(fd.Recv.Type.ID)
		named := recvT
		ptrRecv := false
		if rm := c.Reg.Get(recvT); rm.Kind == meta.KindPointer {
			named = rm.Elem
			ptrRecv = true
		}
		c.Reg.SetMethodCode(named, fd.Name, key, ptrRecv)
	}
}

func (c *Compiler) compileBlock(b *ast.Node) {
	c.cur().pushScope()
	for _, s := range b.Nodes {
		c.compileStmt(s)
	}
	c.cur().popScope()
}

func (c *Compiler) compileStmt(n *ast.Node) {
	if n == nil {
		return
	}
	switch n.Kind {
	case ast.KindVarDecl, ast.KindConstDecl:
		c.compileLocalVarDecl(n)
	case ast.KindBlock:
		if isVarGroup(n) {
			for _, spec := range n.Nodes {
				c.compileLocalVarDecl(spec)
			}
		} else {
			c.compileBlock(n)
		}
	case ast.KindAssign:
		c.compileAssign(n)
	case ast.KindIncDec:
		c.compileIncDec(n)
	case ast.KindExprStmt:
		t := c.exprType(n.X)
		c.genExpr(n.X)
		if t != 0 {
			c.cur().em.Pop()
		}
	case ast.KindReturn:
		c.compileReturn(n)
	case ast.KindIf:
		c.compileIf(n)
	case ast.KindFor:
		c.compileFor(n)
	case ast.KindForRange:
		c.compileForRange(n)
	case ast.KindBranch:
		c.compileBranch(n)
	case ast.KindGo:
		c.genGoDeferCall(n.X)
		c.cur().em.Go()
	case ast.KindDefer:
		c.genGoDeferCall(n.X)
		c.cur().em.Defer()
		c.cur().fn.Flag = instr.FlagHasDefer
	case ast.KindLabeled:
		c.compileStmt(n.Body)
	case ast.KindSwitch:
		c.compileSwitch(n)
	case ast.KindTypeSwitch:
		c.compileTypeSwitch(n)
	case ast.KindSelect:
		c.compileSelect(n)
	}
}

func isVarGroup(n *ast.Node) bool {
	if len(n.Nodes) == 0 {
		return false
	}
	for _, c := range n.Nodes {
		if c.Kind != ast.KindVarDecl && c.Kind != ast.KindConstDecl {
			return false
		}
	}
	return true
}

func (c *Compiler) compileBranch(n *ast.Node) {
	f := c.cur()
	switch n.Branch {
	case ast.BranchBreak:
		if len(f.breaks) > 0 {
			f.em.Jmp(f.breaks[len(f.breaks)-1])
		}
	case ast.BranchContinue:
		if len(f.continues) > 0 {
			f.em.Jmp(f.continues[len(f.continues)-1])
		}
	}
}

func (c *Compiler) pushLoopLabels(breakL, continueL int) {
	f := c.cur()
	f.breaks = append(f.breaks, breakL)
	f.continues = append(f.continues, continueL)
}

func (c *Compiler) popLoopLabels() {
	f := c.cur()
	f.breaks = f.breaks[:len(f.breaks)-1]
	f.continues = f.continues[:len(f.continues)-1]
}

// pushBreakLabel/popBreakLabel are the switch/select analogue of
// pushLoopLabels: they give `break` a target without touching the
// continue stack, so a `continue` inside a switch nested in a loop
// still targets the enclosing loop.
func (c *Compiler) pushBreakLabel(breakL int) {
	f := c.cur()
	f.breaks = append(f.breaks, breakL)
}

func (c *Compiler) popBreakLabel() {
	f := c.cur()
	f.breaks = f.breaks[:len(f.breaks)-1]
}

func (c *Compiler) compileIf(n *ast.Node) {
	f := c.cur()
	c.genExpr(n.X)
	elseL := f.em.NewLabel()
	f.em.JmpIfFalse(elseL)
	c.compileBlock(n.Body)
	if n.Else != nil {
		endL := f.em.NewLabel()
		f.em.Jmp(endL)
		f.em.Label(elseL)
		if n.Else.Kind == ast.KindBlock {
			c.compileBlock(n.Else)
		} else {
			c.compileStmt(n.Else)
		}
		f.em.Label(endL)
	} else {
		f.em.Label(elseL)
	}
}

// compileFor handles the three-clause and bare-condition forms with
// the standard forward-patching technique used throughout this file.
func (c *Compiler) compileFor(n *ast.Node) {
	f := c.cur()
	f.pushScope()
	defer f.popScope()
	for _, init := range n.Nodes {
		c.compileStmt(init)
	}
	top := f.em.NewLabel()
	bodyEnd := f.em.NewLabel()
	exit := f.em.NewLabel()
	f.em.Label(top)
	if n.X != nil {
		c.genExpr(n.X)
		f.em.JmpIfFalse(exit)
	}
	c.pushLoopLabels(exit, bodyEnd)
	c.compileBlock(n.Body)
	c.popLoopLabels()
	f.em.Label(bodyEnd)
	if n.Y != nil {
		c.compileStmt(n.Y)
	}
	f.em.Jmp(top)
	f.em.Label(exit)
}

// compileForRange lowers `for k, v := range x { ... }` via
// OpRangeInit/OpRange: RangeInit pushes the iterator state, each Range
// call yields the next (key, value) pair or jumps to the patched exit
// once exhausted.
func (c *Compiler) compileForRange(n *ast.Node) {
	f := c.cur()
	f.pushScope()
	defer f.popScope()

	containerT := c.exprType(n.Type)
	c.genExpr(n.Type)
	vt := c.Bridge.ValueTypeFromMeta(containerT)
	f.em.RangeInit(vt)

	top := f.em.NewLabel()
	f.em.Label(top)

	keyT, elemT := c.rangeTypes(containerT)
	idx := f.em.Range(c.Bridge.ValueTypeFromMeta(keyT), c.Bridge.ValueTypeFromMeta(elemT))

	if n.X != nil && n.X.Kind == ast.KindIdent && n.X.Name != "_" {
		if n.Tok == ":=" {
			f.addLocal(n.X.Name, keyT)
		}
		if e, ok := f.lookupLocal(n.X.Name); ok {
			f.em.LocalSet(e.slot, c.Bridge.ValueTypeFromMeta(keyT))
		}
	} else {
		f.em.Pop()
	}
	if n.Y != nil && n.Y.Kind == ast.KindIdent && n.Y.Name != "_" {
		if n.Tok == ":=" {
			f.addLocal(n.Y.Name, elemT)
		}
		if e, ok := f.lookupLocal(n.Y.Name); ok {
			f.em.LocalSet(e.slot, c.Bridge.ValueTypeFromMeta(elemT))
		}
	} else {
		f.em.Pop()
	}

	exit := f.em.NewLabel()
	c.pushLoopLabels(exit, top)
	c.compileBlock(n.Body)
	c.popLoopLabels()
	f.em.Jmp(top)
	f.em.Label(exit)
	f.em.PatchRangeExit(idx, int32(len(f.fn.Code)))
}

func (c *Compiler) rangeTypes(containerT meta.Key) (meta.Key, meta.Key) {
	m := c.Reg.Get(c.Reg.Underlying(containerT))
	switch m.Kind {
	case meta.KindArray, meta.KindSliceOrArray:
		return c.Reg.Basic(value.Int), m.Elem
	case meta.KindMap:
		return m.Key, m.Val
	case meta.KindChannel:
		return m.Elem, 0
	}
	return c.Reg.Basic(value.Int), c.Reg.Basic(value.Int32)
}

func (c *Compiler) compileReturn(n *ast.Node) {
	f := c.cur()
	exprs := []*ast.Node(nil)
	if n.X != nil {
		exprs = append(exprs, n.X)
	}
	exprs = append(exprs, n.Nodes...)
	var results []meta.Key
	if f.fn.SigMeta != 0 {
		results = c.Bridge.SigResultTypes(meta.Key(f.fn.SigMeta))
	}
	for i, e := range exprs {
		c.genExpr(e)
		if i < len(results) {
			c.maybeCoerceToInterface(e, results[i])
		}
	}
	f.em.Return(len(exprs))
}

