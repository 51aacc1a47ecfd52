package codegen

import (
	"github.com/corestack/govm/internal/ast"
	"github.com/corestack/govm/internal/instr"
	"github.com/corestack/govm/internal/value"
)

// compileCaseBody compiles one case/comm clause body, honoring a
// trailing `fallthrough` (valid only in plain switch cases) by jumping
// to the next clause's body instead of the switch's end label.
func (c *Compiler) compileCaseBody(body *ast.Node, fallLabel, endLabel int) {
	f := c.cur()
	f.pushScope()
	var stmts []*ast.Node
	if body != nil {
		stmts = body.Nodes
	}
	fall := false
	if n := len(stmts); n > 0 && stmts[n-1].Kind == ast.KindBranch && stmts[n-1].Branch == ast.BranchFallthrough {
		fall = true
		stmts = stmts[:n-1]
	}
	for _, s := range stmts {
		c.compileStmt(s)
	}
	f.popScope()
	if fall {
		f.em.Jmp(fallLabel)
	} else {
		f.em.Jmp(endLabel)
	}
}

// compileSwitch lowers an expression switch: the
// tag is evaluated once into a temp local, each case value is compared
// against it with OpEq (or, tagless, used directly as a boolean), and
// the first match's JmpIfTrue lands on that case's body — a linear
// test chain, not a jump table, matching the rest of the generator's
// forward-patching style.
func (c *Compiler) compileSwitch(n *ast.Node) {
	f := c.cur()
	f.pushScope()
	defer f.popScope()

	cases := n.Nodes
	if len(cases) > 0 && cases[0].Kind != ast.KindCase {
		c.compileStmt(cases[0])
		cases = cases[1:]
	}

	hasTag := n.Y != nil
	var tagSlot int
	var tagVt value.Type
	if hasTag {
		tagT := c.exprType(n.Y)
		tagVt = c.Bridge.ValueTypeFromMeta(tagT)
		c.genExpr(n.Y)
		tagSlot = f.addLocal("", tagT)
		f.em.LocalSet(tagSlot, tagVt)
	}

	end := f.em.NewLabel()
	c.pushBreakLabel(end)
	defer c.popBreakLabel()

	bodyLabels := make([]int, len(cases))
	for i := range cases {
		bodyLabels[i] = f.em.NewLabel()
	}

	defaultIdx := -1
	for i, cs := range cases {
		if cs.Name == "default" {
			defaultIdx = i
			continue
		}
		for _, cexpr := range cs.Nodes {
			if hasTag {
				f.em.LocalGet(tagSlot, tagVt)
				c.genExpr(cexpr)
				f.em.Cmp(instr.OpEq, tagVt)
			} else {
				c.genExpr(cexpr)
			}
			f.em.JmpIfTrue(bodyLabels[i])
		}
	}
	if defaultIdx >= 0 {
		f.em.Jmp(bodyLabels[defaultIdx])
	} else {
		f.em.Jmp(end)
	}

	for i, cs := range cases {
		f.em.Label(bodyLabels[i])
		next := end
		if i+1 < len(cases) {
			next = bodyLabels[i+1]
		}
		c.compileCaseBody(cs.Body, next, end)
	}
	f.em.Label(end)
}

// compileTypeSwitch lowers `switch v := x.(type) { ... }`. Each case
// tests the tag with a comma-ok interface
// assertion, discarding the asserted value immediately so every test
// leaves the stack exactly as it found it regardless of which branch
// is taken; a matched single-type case re-asserts once more inside its
// own body to bind the narrowed variable (mirrors the rest of the
// generator's "recompute rather than juggle the stack" convention).
func (c *Compiler) compileTypeSwitch(n *ast.Node) {
	f := c.cur()
	f.pushScope()
	defer f.popScope()

	cases := n.Nodes
	if len(cases) > 0 && cases[0].Kind != ast.KindCase {
		c.compileStmt(cases[0])
		cases = cases[1:]
	}

	tagT := c.exprType(n.Y)
	tagVt := c.Bridge.ValueTypeFromMeta(tagT)
	c.genExpr(n.Y)
	tagSlot := f.addLocal("", tagT)
	f.em.LocalSet(tagSlot, tagVt)

	end := f.em.NewLabel()
	c.pushBreakLabel(end)
	defer c.popBreakLabel()

	bodyLabels := make([]int, len(cases))
	for i := range cases {
		bodyLabels[i] = f.em.NewLabel()
	}

	defaultIdx := -1
	for i, cs := range cases {
		if cs.Name == "default" {
			defaultIdx = i
			continue
		}
		for _, texpr := range cs.Nodes {
			f.em.LocalGet(tagSlot, tagVt)
			if texpr.Kind == ast.KindNilLit {
				f.em.LoadNil(tagVt)
				f.em.Cmp(instr.OpEq, tagVt)
			} else {
				targetT := c.Bridge.UseType(texpr.ID)
				f.em.IfaceAssert(int32(targetT), true)
				f.em.Swap()
				f.em.Pop()
			}
			f.em.JmpIfTrue(bodyLabels[i])
		}
	}
	if defaultIdx >= 0 {
		f.em.Jmp(bodyLabels[defaultIdx])
	} else {
		f.em.Jmp(end)
	}

	for i, cs := range cases {
		f.em.Label(bodyLabels[i])
		f.pushScope()
		if n.Label != "" && n.Label != "_" {
			narrowedT := c.Bridge.UseType(cs.ID)
			narrowedVt := c.Bridge.ValueTypeFromMeta(narrowedT)
			slot := f.addLocal(n.Label, narrowedT)
			if i != defaultIdx && len(cs.Nodes) == 1 && cs.Nodes[0].Kind != ast.KindNilLit {
				f.em.LocalGet(tagSlot, tagVt)
				f.em.IfaceAssert(int32(narrowedT), false)
				f.em.LocalSet(slot, narrowedVt)
			} else {
				f.em.LocalGet(tagSlot, tagVt)
				f.em.LocalSet(slot, narrowedVt)
			}
		}
		next := end
		if i+1 < len(cases) {
			next = bodyLabels[i+1]
		}
		var stmts []*ast.Node
		if cs.Body != nil {
			stmts = cs.Body.Nodes
		}
		for _, s := range stmts {
			c.compileStmt(s)
		}
		f.popScope()
		f.em.Jmp(next)
	}
	f.em.Label(end)
}

// compileSelect lowers `select { ... }`: every
// clause registers its channel (and, for a send, its value) with
// OpSelectRecv/OpSelectSend in source order, then OpSelect blocks and
// reports which clause fired plus any received (value, ok) pair, which
// the matching recv clause's body consumes via comparison against its
// own source-order index.
func (c *Compiler) compileSelect(n *ast.Node) {
	f := c.cur()
	f.pushScope()
	defer f.popScope()

	clauses := n.Nodes
	hasDefault := false
	for _, cl := range clauses {
		if cl.Comm == ast.CommDefault {
			hasDefault = true
		}
	}

	for i, cl := range clauses {
		switch cl.Comm {
		case ast.CommSend:
			c.genExpr(cl.X)
			c.genExpr(cl.Y)
			f.em.SelectSend(i)
		case ast.CommRecv, ast.CommRecvCommaOk:
			c.genExpr(cl.Y)
			f.em.SelectRecv(i)
		case ast.CommDefault:
		}
	}
	f.em.Select(len(clauses), hasDefault)

	// Select leaves (clauseIndex, recvValue, recvOk) on the stack, in
	// that push order (recvOk on top); stash all three in temps so each
	// clause body can fetch only what it needs without disturbing the
	// others (same convention as the compound-assignment temp stash).
	idxVt := value.Int
	idxSlot := f.addLocal("", c.Reg.Basic(value.Int))
	valSlot := f.addLocal("", 0)
	okSlot := f.addLocal("", 0)
	f.em.LocalSet(okSlot, 0)
	f.em.LocalSet(valSlot, 0)
	f.em.LocalSet(idxSlot, idxVt)

	end := f.em.NewLabel()
	c.pushBreakLabel(end)
	defer c.popBreakLabel()

	bodyLabels := make([]int, len(clauses))
	for i := range clauses {
		bodyLabels[i] = f.em.NewLabel()
	}
	for i := range clauses {
		f.em.LocalGet(idxSlot, idxVt)
		f.em.PushImm(int64(i), idxVt)
		f.em.Cmp(instr.OpEq, idxVt)
		f.em.JmpIfTrue(bodyLabels[i])
	}
	f.em.Jmp(end)

	for i, cl := range clauses {
		f.em.Label(bodyLabels[i])
		f.pushScope()
		if cl.Comm == ast.CommRecv || cl.Comm == ast.CommRecvCommaOk {
			chanT := c.exprType(cl.Y)
			elemT := c.Reg.Get(c.Reg.Underlying(chanT)).Elem
			elemVt := c.Bridge.ValueTypeFromMeta(elemT)
			if cl.X != nil && cl.X.Kind == ast.KindIdent && cl.X.Name != "_" {
				var sl int
				if cl.Tok == ":=" {
					sl = f.addLocal(cl.X.Name, elemT)
				} else {
					e, _ := f.lookupLocal(cl.X.Name)
					sl = e.slot
				}
				f.em.LocalGet(valSlot, elemVt)
				f.em.LocalSet(sl, elemVt)
			}
			if cl.Comm == ast.CommRecvCommaOk && cl.Else != nil && cl.Else.Kind == ast.KindIdent && cl.Else.Name != "_" {
				boolT := c.exprType(cl.Else)
				boolVt := c.Bridge.ValueTypeFromMeta(boolT)
				var sl int
				if cl.Tok == ":=" {
					sl = f.addLocal(cl.Else.Name, boolT)
				} else {
					e, _ := f.lookupLocal(cl.Else.Name)
					sl = e.slot
				}
				f.em.LocalGet(okSlot, boolVt)
				f.em.LocalSet(sl, boolVt)
			}
		}
		var stmts []*ast.Node
		if cl.Body != nil {
			stmts = cl.Body.Nodes
		}
		for _, s := range stmts {
			c.compileStmt(s)
		}
		f.popScope()
		f.em.Jmp(end)
	}
	f.em.Label(end)
}
