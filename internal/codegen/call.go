package codegen

import (
	"github.com/corestack/govm/internal/ast"
	"github.com/corestack/govm/internal/instr"
	"github.com/corestack/govm/internal/meta"
	"github.com/corestack/govm/internal/typelookup"
	"github.com/corestack/govm/internal/value"
)

// builtinOpcode maps the handful of predeclared functions the code
// generator lowers to a dedicated opcode instead of an ordinary call,
// via genBuiltinCall. No other builtin is lowered; OpCallIntrinsic is
// never emitted.
var builtinOpcode = map[string]bool{
	"len": true, "cap": true, "make": true, "new": true, "append": true,
	"copy": true, "delete": true, "close": true, "panic": true, "recover": true,
}

// genCall lowers a call expression: a type
// conversion when the callee names a type, a direct OpCall when it
// names a declared function or resolves to a local/upvalue/global
// holding a closure, and genBuiltinCall's dedicated opcodes for the
// small builtin set.
func (c *Compiler) genCall(n *ast.Node) {
	f := c.cur()
	if c.Bridge.ExprMode(n.X.ID) == typelookup.ModeTypeExpr {
		c.genConversion(n)
		return
	}
	if n.X.Kind == ast.KindIdent {
		if builtinOpcode[n.X.Name] {
			c.genBuiltinCall(n)
			return
		}
	}
	retc := c.callResultCount(n)
	if n.X.Kind == ast.KindIdent {
		if key, ok := c.funcKeyByName(n.X.Name); ok {
			if _, _, isVar := c.resolveVarIdent(n.X.Name); !isVar {
				for _, a := range n.Nodes {
					c.genExpr(a)
				}
				f.em.Call(key, len(n.Nodes), retc)
				return
			}
		}
	}
	// Ordinary value call: callee is a closure already sitting in a
	// local/upvalue/global or produced by a bound-method selector —
	// pushed first, then arguments, then a dynamic dispatch call the
	// interpreter resolves off the pushed closure value itself.
	c.genExpr(n.X)
	for _, a := range n.Nodes {
		c.genExpr(a)
	}
	f.em.Call(-1, len(n.Nodes), retc)
}

// genGoDeferCall lowers the call expression under a go or defer
// statement. Go requires the callee and its arguments evaluated
// immediately but the call itself performed later (on a new goroutine,
// or at function exit) — so unlike genCall this never emits OpCall; it
// packages the callee plus already-evaluated arguments into a single
// thunk value for OpGo/OpDefer to consume. A direct callee still needs
// pushing here since the interpreter resolves the call at invocation
// time, not emission time.
func (c *Compiler) genGoDeferCall(call *ast.Node) {
	f := c.cur()
	if call.Kind != ast.KindCallExpr {
		panic("ICE: codegen: go/defer statement without a call expression")
	}
	if call.X.Kind == ast.KindIdent {
		if key, ok := c.funcKeyByName(call.X.Name); ok {
			if _, _, isVar := c.resolveVarIdent(call.X.Name); !isVar {
				f.em.LoadConst(instr.ConstEntry{Typ: value.Function, Num: uint64(key)})
				for _, a := range call.Nodes {
					c.genExpr(a)
				}
				f.em.MakeThunk(len(call.Nodes))
				return
			}
		}
	}
	c.genExpr(call.X)
	for _, a := range call.Nodes {
		c.genExpr(a)
	}
	f.em.MakeThunk(len(call.Nodes))
}

func (c *Compiler) callResultCount(n *ast.Node) int {
	if tup := c.Bridge.TupleTypes(n.ID); len(tup) > 1 {
		return len(tup)
	}
	if t, ok := c.Bridge.Info.ExprType[n.ID]; !ok || t == 0 {
		return 0
	}
	return 1
}

func (c *Compiler) genConversion(n *ast.Node) {
	f := c.cur()
	targetT := c.exprType(n)
	vt := c.Bridge.ValueTypeFromMeta(targetT)
	arg := n.Nodes[0]
	fromT := c.exprType(arg)
	fromVt := c.Bridge.ValueTypeFromMeta(fromT)
	c.genExpr(arg)
	f.em.Convert(fromVt, vt)
}

// genBuiltinCall lowers one of the predeclared functions sema's
// inferBuiltinCall recognized. make/new never evaluate their first
// (type) argument as a value — the target shape is read back off the
// call's own result type instead, the same "derive it from what sema
// already resolved" convention genConversion uses for ordinary casts.
func (c *Compiler) genBuiltinCall(n *ast.Node) {
	f := c.cur()
	args := n.Nodes
	switch n.X.Name {
	case "len":
		c.genExpr(args[0])
		f.em.Len()
	case "cap":
		c.genExpr(args[0])
		f.em.Cap()
	case "make":
		resT := c.exprType(n)
		m := c.Reg.Get(c.Reg.Underlying(resT))
		switch m.Kind {
		case meta.KindChannel:
			hasCap := len(args) > 1
			if hasCap {
				c.genExpr(args[1])
			}
			f.em.ChanMake(int32(m.Elem), hasCap)
		case meta.KindMap:
			for _, a := range args[1:] {
				c.genExpr(a)
				f.em.Pop()
			}
			f.em.MapMake(int32(c.Reg.Underlying(resT)))
		default: // slice
			hasCap := len(args) > 2
			c.genExpr(args[1])
			if hasCap {
				c.genExpr(args[2])
			}
			f.em.SliceNew(int32(m.Elem), hasCap)
		}
	case "new":
		resT := c.exprType(n)
		targetT := c.Reg.Get(c.Reg.Underlying(resT)).Elem
		f.em.New(int32(targetT))
	case "append":
		for _, a := range args {
			c.genExpr(a)
		}
		f.em.Append(len(args) - 1)
	case "copy":
		c.genExpr(args[0])
		c.genExpr(args[1])
		f.em.Copy()
	case "delete":
		c.genExpr(args[0])
		c.genExpr(args[1])
		f.em.MapDelete()
	case "close":
		c.genExpr(args[0])
		f.em.ChanClose()
	case "panic":
		c.genExpr(args[0])
		f.em.Panic()
	case "recover":
		f.em.Recover()
	}
}

// maybeCoerceToInterface boxes the value currently on top of stack
// (produced by genExpr on src) into an interface if destT is an
// interface type and src's static type isn't already that same
// interface — the implicit interface cast that variable initializers
// and return statements perform (assignments use coerceTOS). Call
// arguments are passed as they are, without this cast.
func (c *Compiler) maybeCoerceToInterface(src *ast.Node, destT meta.Key) {
	if destT == 0 {
		return
	}
	f := c.cur()
	dm := c.Reg.Get(c.Reg.Underlying(destT))
	if dm.Kind != meta.KindInterface {
		return
	}
	srcT := c.exprType(src)
	if c.Reg.Get(c.Reg.Underlying(srcT)).Kind == meta.KindInterface {
		return
	}
	idx := c.Iface.Intern(c.Reg, c.Reg.Underlying(destT), srcT)
	f.em.IfaceBox(idx)
}

// coerceTOS boxes the value on top of the stack, whose static type is
// srcT, into an interface when destT is an interface type and srcT is
// not one.
func (c *Compiler) coerceTOS(srcT, destT meta.Key) {
	if destT == 0 || c.Reg.Get(c.Reg.Underlying(destT)).Kind != meta.KindInterface {
		return
	}
	if c.Reg.Get(c.Reg.Underlying(srcT)).Kind == meta.KindInterface {
		return
	}
	c.cur().em.IfaceBox(c.Iface.Intern(c.Reg, c.Reg.Underlying(destT), srcT))
}
