package codegen

import (
	"github.com/corestack/govm/internal/ast"
	"github.com/corestack/govm/internal/instr"
	"github.com/corestack/govm/internal/meta"
	"github.com/corestack/govm/internal/value"
)

// compileLocalVarDecl lowers one `var`/`const` spec inside a function
// body, matching the parser's single-spec shape (Name + Nodes for
// extra names, X + Results for extra initializers — see
// internal/sema's identical convention).
func (c *Compiler) compileLocalVarDecl(spec *ast.Node) {
	f := c.cur()
	names := []string{spec.Name}
	for _, extra := range spec.Nodes {
		names = append(names, extra.Name)
	}
	inits := []*ast.Node(nil)
	if spec.X != nil {
		inits = append(inits, spec.X)
	}
	for _, extra := range spec.Results {
		inits = append(inits, extra.Type)
	}

	var declType meta.Key
	if spec.Type != nil {
		declType = c.Bridge.UseType(spec.Type.ID)
	}

	for i, name := range names {
		var t meta.Key
		if declType != 0 {
			t = declType
		} else if i < len(inits) {
			t = c.exprType(inits[i])
		}
		slot := -1
		if name != "_" {
			slot = f.addLocal(name, t)
		}
		if i < len(inits) {
			c.genExpr(inits[i])
			c.maybeCoerceToInterface(inits[i], t)
			if slot >= 0 {
				f.em.LocalSet(slot, c.Bridge.ValueTypeFromMeta(t))
			} else {
				f.em.Pop()
			}
		} else if slot >= 0 {
			f.em.LoadNil(c.Bridge.ValueTypeFromMeta(t))
			f.em.LocalSet(slot, c.Bridge.ValueTypeFromMeta(t))
		}
	}
}

// compileAssign lowers every assignment shape: single LHS/RHS,
// compound (`+=`), N==M multi-assignment, and the comma-ok form
// (exactly two LHS receivers). The algorithm pushes each LHS
// "address" prefix followed by its own RHS value, left to right, and
// stores only after every pair is pushed (so `a, b = b, a` can't
// observe a partial update), right-to-left so the stack pops in the
// order it was pushed.
func (c *Compiler) compileAssign(n *ast.Node) {
	f := c.cur()
	isDefine := n.Tok == ":="

	lhs := n.Nodes
	if lhs == nil && n.X != nil {
		lhs = []*ast.Node{n.X}
	}
	rhs := []*ast.Node{n.Y}
	for _, extra := range n.Results {
		rhs = append(rhs, extra.Type)
	}

	if isCompoundOp(n.Tok) {
		c.compileCompoundAssign(n, lhs[0])
		return
	}

	if len(rhs) == 1 && len(lhs) >= 2 && rhs[0].Kind == ast.KindCallExpr && c.callResultCount(rhs[0]) == len(lhs) {
		c.compileMultiResultCallAssign(lhs, rhs[0], isDefine)
		return
	}

	if len(rhs) == 1 && len(lhs) == 2 {
		c.compileCommaOkAssign(lhs, rhs[0], isDefine)
		return
	}

	if isDefine {
		for i, l := range lhs {
			if l.Kind != ast.KindIdent || l.Name == "_" {
				continue
			}
			if _, exists := f.lookupLocal(l.Name); !exists {
				var t meta.Key
				if i < len(rhs) {
					t = c.exprType(rhs[i])
				}
				f.addLocal(l.Name, t)
			}
		}
	}

	// Push each lvalue's address prefix immediately followed by its own
	// RHS value so that a later lvalue's prefix never lands between an
	// earlier pair's prefix and value on the stack — each (prefix,
	// value) pair stays adjacent and pops off together, left-to-right
	// push order, right-to-left store.
	declTypes := make([]meta.Key, len(lhs))
	for i, l := range lhs {
		blank := l.Kind == ast.KindIdent && l.Name == "_"
		if !blank {
			c.lvaluePrefix(l)
			declTypes[i] = c.lvalueDeclaredType(l)
		}
		if i < len(rhs) {
			c.genExpr(rhs[i])
			if !blank {
				var rt meta.Key
				rt = c.exprType(rhs[i])
				c.coerceTOS(rt, declTypes[i])
			}
		}
	}
	for i := len(lhs) - 1; i >= 0; i-- {
		l := lhs[i]
		if l.Kind == ast.KindIdent && l.Name == "_" {
			f.em.Pop()
			continue
		}
		c.commitStore(l, declTypes[i])
	}
}

// compileMultiResultCallAssign lowers `a, b, ... := f(...)` where f
// itself declares len(lhs) results (sema records the full result list
// in TupleType for any call node with more than one result, the same
// side table the two-result comma-ok shapes reuse — see
// internal/sema's inferCallExpr). genCall already emits a single
// OpCall with retc == len(lhs) and pushes every result in order, so
// this only needs to store them off the stack in reverse, the last
// result having ended up on top.
func (c *Compiler) compileMultiResultCallAssign(lhs []*ast.Node, call *ast.Node, isDefine bool) {
	f := c.cur()
	c.genCall(call)

	tup := c.Bridge.TupleTypes(call.ID)
	if len(tup) != len(lhs) {
		tup = make([]meta.Key, len(lhs))
	}

	if isDefine {
		for i, l := range lhs {
			if l.Name != "_" {
				if _, exists := f.lookupLocal(l.Name); !exists {
					f.addLocal(l.Name, tup[i])
				}
			}
		}
	}

	for i := len(lhs) - 1; i >= 0; i-- {
		l := lhs[i]
		if l.Kind == ast.KindIdent && l.Name == "_" {
			f.em.Pop()
			continue
		}
		c.storeLValue(l, tup[i])
	}
}

// compileCommaOkAssign lowers `v, ok := <map-index|type-assert|chan-recv>`.
func (c *Compiler) compileCommaOkAssign(lhs []*ast.Node, rhsExpr *ast.Node, isDefine bool) {
	f := c.cur()
	switch rhsExpr.Kind {
	case ast.KindIndexExpr:
		c.genIndex(rhsExpr, true)
	case ast.KindTypeAssertExpr:
		c.genTypeAssert(rhsExpr, true)
	case ast.KindUnaryExpr:
		if rhsExpr.Tok == "<-" {
			c.genExpr(rhsExpr.X)
			f.em.ChanRecv(true)
		} else {
			c.genExpr(rhsExpr)
			f.em.LoadNil(0)
		}
	default:
		c.genExpr(rhsExpr)
		f.em.LoadNil(0)
	}

	tup := c.Bridge.TupleTypes(rhsExpr.ID)
	if len(tup) != 2 {
		tup = []meta.Key{c.exprType(rhsExpr), c.Reg.Basic(value.Bool)}
	}

	if isDefine {
		for i, l := range lhs {
			if l.Name != "_" {
				if _, exists := f.lookupLocal(l.Name); !exists {
					f.addLocal(l.Name, tup[i])
				}
			}
		}
	}
	// the ok value is on top; store it, then the primary value.
	storeOne := func(l *ast.Node, t meta.Key) {
		if l.Kind == ast.KindIdent && l.Name == "_" {
			f.em.Pop()
			return
		}
		c.storeLValue(l, t)
	}
	storeOne(lhs[1], tup[1])
	storeOne(lhs[0], tup[0])
}

func isCompoundOp(tok string) bool {
	switch tok {
	case "+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "&^=", "<<=", ">>=":
		return true
	}
	return false
}

// compileCompoundAssign lowers `lv op= rhs` by evaluating lv's base/key
// subexpressions exactly once, stashing them in temp locals so they
// can be read twice — once to load the current value, once again to
// rebuild the store address — without re-running any side effects.
func (c *Compiler) compileCompoundAssign(n *ast.Node, lv *ast.Node) {
	op := compoundBinOp(n.Tok)
	c.compileFusedOpAssign(lv, op, func(vt value.Type) { c.genExpr(n.Y) })
}

// compileIncDec lowers `lv++`/`lv--` as `lv += 1`/`lv -= 1` of lv's own
// type, through the same fused read-modify-write path compound
// assignment uses — so a package-level variable, a struct field, or a
// slice/array/map element increments correctly instead of only a plain
// local.
func (c *Compiler) compileIncDec(n *ast.Node) {
	op := instr.OpAdd
	if n.Tok == "--" {
		op = instr.OpSub
	}
	c.compileFusedOpAssign(n.X, op, func(vt value.Type) { c.cur().em.PushImm(1, vt) })
}

// compileFusedOpAssign performs the fused "load, combine with pushRHS's
// value via op, store back" sequence shared by compound assignment and
// increment/decrement, evaluating lv's base/key subexpressions exactly
// once regardless of its lvalue kind (identifier, selector, index, or
// deref) so they can be read twice — once to load the current value,
// once again to rebuild the store address — without re-running any
// side effects.
func (c *Compiler) compileFusedOpAssign(lv *ast.Node, op instr.Opcode, pushRHS func(vt value.Type)) {
	f := c.cur()
	t := c.exprType(lv)
	vt := c.Bridge.ValueTypeFromMeta(t)

	if lv.Kind == ast.KindIdent {
		c.genExpr(lv)
		pushRHS(vt)
		f.em.BinOp(op, vt)
		c.commitStore(lv, t)
		return
	}

	declT := c.lvalueDeclaredType(lv)

	switch lv.Kind {
	case ast.KindSelectorExpr, ast.KindUnaryExpr:
		// Single collapsed address: stash it in a synthetic local and
		// read it back once for the load and once for the store.
		c.lvaluePrefix(lv)
		addr := f.addLocal("", 0)
		f.em.LocalSet(addr, 0)
		f.em.LocalGet(addr, 0)
		f.em.Load(vt)
		pushRHS(vt)
		f.em.BinOp(op, vt)
		c.coerceTOS(t, declT)
		f.em.LocalGet(addr, 0)
		f.em.Swap()
		f.em.Store(c.Bridge.ValueTypeFromMeta(declT))
	case ast.KindIndexExpr:
		under := c.Reg.Underlying(c.exprType(lv.X))
		if c.Reg.Get(under).Kind == meta.KindMap {
			baseVt := c.Bridge.ValueTypeFromMeta(c.exprType(lv.X))
			keyVt := c.Bridge.ValueTypeFromMeta(c.exprType(lv.Y))
			c.genExpr(lv.X)
			tmpMap := f.addLocal("", 0)
			f.em.LocalSet(tmpMap, baseVt)
			c.genExpr(lv.Y)
			tmpKey := f.addLocal("", 0)
			f.em.LocalSet(tmpKey, keyVt)

			f.em.LocalGet(tmpMap, baseVt)
			f.em.LocalGet(tmpKey, keyVt)
			f.em.MapIndex(false)
			pushRHS(vt)
			f.em.BinOp(op, vt)
			c.coerceTOS(t, declT)
			tmpVal := f.addLocal("", t)
			f.em.LocalSet(tmpVal, vt)

			f.em.LocalGet(tmpMap, baseVt)
			f.em.LocalGet(tmpKey, keyVt)
			f.em.LocalGet(tmpVal, vt)
			f.em.MapSet()
		} else {
			c.lvaluePrefix(lv)
			addr := f.addLocal("", 0)
			f.em.LocalSet(addr, 0)
			f.em.LocalGet(addr, 0)
			f.em.Load(vt)
			pushRHS(vt)
			f.em.BinOp(op, vt)
			c.coerceTOS(t, declT)
			f.em.LocalGet(addr, 0)
			f.em.Swap()
			f.em.Store(c.Bridge.ValueTypeFromMeta(declT))
		}
	default:
		panic("ICE: codegen: unhandled compound-assignment lvalue kind")
	}
}

func compoundBinOp(tok string) instr.Opcode {
	switch tok {
	case "+=":
		return instr.OpAdd
	case "-=":
		return instr.OpSub
	case "*=":
		return instr.OpMul
	case "/=":
		return instr.OpDiv
	case "%=":
		return instr.OpRem
	case "&=":
		return instr.OpAnd
	case "|=":
		return instr.OpOr
	case "^=":
		return instr.OpXor
	case "&^=":
		return instr.OpAndNot
	case "<<=":
		return instr.OpShl
	case ">>=":
		return instr.OpShr
	}
	panic("ICE: codegen: unhandled compound assignment operator " + tok)
}
