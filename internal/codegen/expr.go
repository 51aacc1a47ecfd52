package codegen

import (
	"github.com/corestack/govm/internal/ast"
	"github.com/corestack/govm/internal/emit"
	"github.com/corestack/govm/internal/instr"
	"github.com/corestack/govm/internal/meta"
	"github.com/corestack/govm/internal/typelookup"
	"github.com/corestack/govm/internal/value"
)

// resolveVarIdent finds where name lives relative to the current
// function, capturing it as an upvalue chain through enclosing
// function contexts when it is declared outside the current one:
// local slot in the innermost matching scope, then an upvalue
// (possibly freshly captured through every function context in
// between), then a package-level global.
func (c *Compiler) resolveVarIdent(name string) (entity, bool, bool) {
	// local in the current function
	if e, ok := c.cur().lookupLocal(name); ok {
		return e, false, true
	}
	// walk outward through enclosing function contexts, capturing an
	// upvalue chain as we go back in
	for depth := len(c.funcStack) - 2; depth >= 0; depth-- {
		if e, ok := c.funcStack[depth].lookupLocal(name); ok {
			return c.captureUpvalChain(depth, name, e), true, true
		}
	}
	if idx, ok := c.globals[name]; ok {
		return entity{slot: idx}, false, false
	}
	return entity{}, false, false
}

// captureUpvalChain walks from the declaring function context (at
// index declDepth in funcStack) back out to the current function,
// adding an upvalue descriptor at every level that doesn't already
// have one for this name, chaining closures through intermediate
// scopes the way nested function literals capture an outer local.
func (c *Compiler) captureUpvalChain(declDepth int, name string, declEntity entity) entity {
	fromLocal := true
	idx := declEntity.slot
	var e entity
	for d := declDepth + 1; d < len(c.funcStack); d++ {
		fc := c.funcStack[d]
		if cached, ok := fc.lookupLocal("$up:" + name); ok {
			idx = cached.slot
			fromLocal = false
			e = cached
			continue
		}
		uvIdx := len(fc.fn.Upvals)
		fc.fn.Upvals = append(fc.fn.Upvals, instr.UpvalDesc{FromLocal: fromLocal, Index: idx})
		e = entity{slot: uvIdx, isUpval: true, typ: declEntity.typ}
		fc.scopes[0]["$up:"+name] = e
		idx = uvIdx
		fromLocal = false
	}
	return e
}

// genExpr emits code that leaves exactly one value on the stack for
// n. Comma-ok/tuple-valued
// expressions still push only their primary value here; callers that
// need the second value (map index ok, type-assertion ok, channel-recv
// ok) go through the comma-ok assignment path in assign.go instead.
func (c *Compiler) genExpr(n *ast.Node) {
	mode := c.Bridge.ExprMode(n.ID)
	if mode == typelookup.ModeConstant {
		c.genConst(n)
		return
	}
	switch n.Kind {
	case ast.KindIdent:
		c.genIdent(n)
	case ast.KindIntLit, ast.KindFloatLit, ast.KindStringLit, ast.KindRuneLit, ast.KindBoolLit, ast.KindNilLit:
		c.genConst(n)
	case ast.KindBinaryExpr:
		c.genBinary(n)
	case ast.KindUnaryExpr:
		c.genUnary(n)
	case ast.KindCallExpr:
		c.genCall(n)
	case ast.KindIndexExpr:
		c.genIndex(n, false)
	case ast.KindSliceExpr:
		c.genSliceExpr(n)
	case ast.KindSelectorExpr:
		c.genSelector(n)
	case ast.KindTypeAssertExpr:
		c.genTypeAssert(n, false)
	case ast.KindCompositeLit:
		c.genCompositeLit(n)
	case ast.KindFuncLit:
		c.genFuncLit(n)
	default:
		panic("ICE: codegen: unhandled expression kind in genExpr")
	}
}

func (c *Compiler) genConst(n *ast.Node) {
	f := c.cur()
	v := c.Bridge.ConstValue(n.ID)
	t := c.exprType(n)
	vt := c.Bridge.ValueTypeFromMeta(t)
	if v.Type() == value.Nil {
		f.em.LoadNil(vt)
		return
	}
	entry := instr.ConstEntry{Typ: vt}
	switch vt {
	case value.Str:
		entry.Str = v.Str.String()
	case value.Complex64, value.Complex128:
		re, im := v.Cplx[0], v.Cplx[1]
		entry.Cplx = [2]float64{re, im}
	default:
		entry.Num = v.Num
	}
	f.em.LoadConst(entry)
}

func (c *Compiler) genIdent(n *ast.Node) {
	f := c.cur()
	t := c.exprType(n)
	vt := c.Bridge.ValueTypeFromMeta(t)
	e, isUpval, isLocal := c.resolveVarIdent(n.Name)
	switch {
	case isUpval:
		f.em.UpvalGet(e.slot, vt)
	case isLocal:
		f.em.LocalGet(e.slot, vt)
	default:
		if key, ok := c.funcKeyByName(n.Name); ok {
			f.em.LoadConst(instr.ConstEntry{Typ: value.Function, Num: uint64(key)})
			return
		}
		f.em.GlobalGet(e.slot, vt)
	}
}

func (c *Compiler) funcKeyByName(name string) (int64, bool) {
	for id, key := range c.funcKey {
		_ = id
		if c.Module.Func(key).Name == name {
			return key, true
		}
	}
	return 0, false
}

func (c *Compiler) genBinary(n *ast.Node) {
	f := c.cur()
	lt := c.exprType(n.X)
	vt := c.Bridge.ValueTypeFromMeta(lt)
	c.genExpr(n.X)
	c.genExpr(n.Y)
	switch n.Tok {
	case "+":
		f.em.BinOp(instr.OpAdd, vt)
	case "-":
		f.em.BinOp(instr.OpSub, vt)
	case "*":
		f.em.BinOp(instr.OpMul, vt)
	case "/":
		f.em.BinOp(instr.OpDiv, vt)
	case "%":
		f.em.BinOp(instr.OpRem, vt)
	case "&":
		f.em.BinOp(instr.OpAnd, vt)
	case "|":
		f.em.BinOp(instr.OpOr, vt)
	case "^":
		f.em.BinOp(instr.OpXor, vt)
	case "&^":
		f.em.BinOp(instr.OpAndNot, vt)
	case "<<":
		f.em.BinOp(instr.OpShl, vt)
	case ">>":
		f.em.BinOp(instr.OpShr, vt)
	case "==":
		f.em.Cmp(instr.OpEq, vt)
	case "!=":
		f.em.Cmp(instr.OpNeq, vt)
	case "<":
		f.em.Cmp(instr.OpLt, vt)
	case ">":
		f.em.Cmp(instr.OpGt, vt)
	case "<=":
		f.em.Cmp(instr.OpLeq, vt)
	case ">=":
		f.em.Cmp(instr.OpGeq, vt)
	case "&&":
		f.em.BinOp(instr.OpAnd, value.Bool)
	case "||":
		f.em.BinOp(instr.OpOr, value.Bool)
	case "<-":
		f.em.ChanSend()
	default:
		panic("ICE: codegen: unhandled binary operator " + n.Tok)
	}
}

func (c *Compiler) genUnary(n *ast.Node) {
	f := c.cur()
	switch n.Tok {
	case "&":
		c.genAddrOf(n.X)
	case "*":
		xt := c.exprType(n.X)
		c.genExpr(n.X)
		elemT := c.Reg.UnpointerTo(c.Reg.Underlying(xt))
		f.em.Deref(c.Bridge.ValueTypeFromMeta(elemT))
	case "!":
		c.genExpr(n.X)
		f.em.UnOp(instr.OpNot, value.Bool)
	case "-":
		xt := c.exprType(n.X)
		c.genExpr(n.X)
		f.em.UnOp(instr.OpNeg, c.Bridge.ValueTypeFromMeta(xt))
	case "+":
		c.genExpr(n.X)
	case "<-":
		c.genExpr(n.X)
		f.em.ChanRecv(false)
	default:
		panic("ICE: codegen: unhandled unary operator " + n.Tok)
	}
}

// genAddrOf lowers `&x` across its four source shapes — local/global
// variable, struct field, slice/array element, or a fresh composite
// literal's address — by emitting the matching *Addr instruction
// instead of the plain *Get.
func (c *Compiler) genAddrOf(x *ast.Node) {
	f := c.cur()
	switch x.Kind {
	case ast.KindIdent:
		e, isUpval, isLocal := c.resolveVarIdent(x.Name)
		switch {
		case isUpval:
			f.em.UpvalGet(e.slot, 0) // address captured by reference already
		case isLocal:
			f.em.LocalAddr(e.slot)
		default:
			f.em.GlobalAddr(e.slot)
		}
	case ast.KindSelectorExpr:
		sel := c.Bridge.Selection(x.ID)
		c.genExpr(x.X)
		if len(sel.FieldIndices) > 0 {
			f.em.FieldAddr(sel.FieldIndices[0])
		}
	case ast.KindIndexExpr:
		c.genExpr(x.X)
		c.genExpr(x.Y)
		f.em.IndexAddr()
	case ast.KindCompositeLit:
		c.genCompositeLit(x)
		f.em.AddrOf()
	default:
		c.genExpr(x)
		f.em.AddrOf()
	}
}

func (c *Compiler) genIndex(n *ast.Node, commaOk bool) {
	f := c.cur()
	baseT := c.exprType(n.X)
	under := c.Reg.Underlying(baseT)
	m := c.Reg.Get(under)
	c.genExpr(n.X)
	c.genExpr(n.Y)
	if m.Kind == meta.KindMap {
		f.em.MapIndex(commaOk)
		return
	}
	vt := c.exprType(n)
	f.em.IndexGet(c.Bridge.ValueTypeFromMeta(vt))
}

func (c *Compiler) genSliceExpr(n *ast.Node) {
	f := c.cur()
	c.genExpr(n.X)
	if n.Y != nil {
		c.genExpr(n.Y)
	} else {
		f.em.PushImm(0, value.Int)
	}
	if n.Body != nil {
		c.genExpr(n.Body)
	} else {
		f.em.LoadNil(value.Nil)
	}
	hasMax := n.Type != nil
	if hasMax {
		c.genExpr(n.Type)
	}
	f.em.SliceExpr(hasMax)
}

func (c *Compiler) genSelector(n *ast.Node) {
	f := c.cur()
	sel := c.Bridge.Selection(n.ID)
	if sel.IsMethod {
		c.genAddrOfOrValue(n.X, sel.PtrRecv)
		m, ok := c.Reg.MethodLookup(sel.RecvType, sel.MethodName)
		if !ok {
			panic("ICE: codegen: method not registered by resolution time")
		}
		f.em.BindMethod(m.Func)
		return
	}
	c.genExpr(n.X)
	for _, idx := range sel.FieldIndices {
		vt := c.Bridge.ValueTypeFromMeta(sel.ResultType)
		f.em.FieldGet(idx, vt)
	}
}

// genAddrOfOrValue pushes x by address when a method needs a pointer
// receiver and x isn't already one, otherwise by value — a pointer
// receiver must be addressed before BindMethod can bind it.
func (c *Compiler) genAddrOfOrValue(x *ast.Node, needPtr bool) {
	xt := c.exprType(x)
	already := c.Reg.Get(c.Reg.Underlying(xt)).Kind == meta.KindPointer
	if needPtr && !already {
		c.genAddrOf(x)
		return
	}
	c.genExpr(x)
}

func (c *Compiler) genTypeAssert(n *ast.Node, commaOk bool) {
	f := c.cur()
	c.genExpr(n.X)
	targetT := c.exprType(n)
	if tup := c.Bridge.TupleTypes(n.ID); len(tup) == 2 {
		targetT = tup[0]
	}
	f.em.IfaceAssert(int32(targetT), commaOk)
}

func (c *Compiler) genCompositeLit(n *ast.Node) {
	f := c.cur()
	t := c.exprType(n)
	under := c.Reg.Underlying(t)
	m := c.Reg.Get(under)
	switch m.Kind {
	case meta.KindStruct:
		for _, el := range n.Nodes {
			if el.Kind == ast.KindKeyValue {
				c.genExpr(el.Y)
			} else {
				c.genExpr(el)
			}
		}
		f.em.StructMake(int32(under), len(n.Nodes))
	case meta.KindArray, meta.KindSliceOrArray:
		for i := len(n.Nodes) - 1; i >= 0; i-- {
			c.genExpr(n.Nodes[i])
		}
		if m.Kind == meta.KindArray {
			f.em.ArrayMake(int32(m.Elem), len(n.Nodes))
		} else {
			f.em.SliceMake(int32(m.Elem), len(n.Nodes))
		}
	case meta.KindMap:
		// MapSet consumes (map, key, value) and leaves nothing behind, so
		// each entry after the first needs its own copy of the map
		// reference — Dup before every key/value pair, matching the same
		// (map, key, value) push order lvalue.go's commitStore uses for
		// `m[k] = v`.
		f.em.MapMake(int32(under))
		for _, el := range n.Nodes {
			f.em.Dup()
			c.genExpr(el.X)
			c.genExpr(el.Y)
			f.em.MapSet()
		}
	default:
		panic("ICE: codegen: composite literal of unsupported kind")
	}
}

func (c *Compiler) genFuncLit(n *ast.Node) {
	sig := c.Bridge.Info.FuncSig[n.ID]
	sigMeta := c.Reg.Get(sig)
	fn := &instr.FunctionObject{
		Name:       "<anon>",
		NumParams:  len(sigMeta.Params),
		NumResults: len(sigMeta.Results),
		Variadic:   sigMeta.Variadic,
		SigMeta:    int32(sig),
	}
	key := c.Module.AddFunc(fn)
	fctx := &funcCtx{fn: fn, em: emit.New(fn)}
	fctx.pushScope()
	for _, p := range n.Params {
		fctx.addLocal(p.Name, c.Bridge.UseType(p.Type.ID))
	}
	c.funcStack = append(c.funcStack, fctx)
	if n.Body != nil {
		c.compileBlock(n.Body)
	}
	fctx.em.Return(fn.NumResults)
	c.funcStack = c.funcStack[:len(c.funcStack)-1]

	f := c.cur()
	f.em.MakeClosure(key, len(fn.Upvals))
}
