package codegen

import (
	"github.com/corestack/govm/internal/ast"
	"github.com/corestack/govm/internal/meta"
)

// lvaluePrefix pushes whatever address/container operands l's eventual
// store needs, evaluated now so that index/selector bases observe
// their pre-assignment values — each LHS prefix is evaluated before
// its own RHS value and before any store. It pushes nothing for a bare identifier, (map,
// key) for a map index, a
// collapsed element address for a slice/array index, a collapsed
// field address for a selector, and the pointer value itself for a
// dereference — shapes matched one-to-one by commitStore below.
func (c *Compiler) lvaluePrefix(l *ast.Node) {
	f := c.cur()
	switch l.Kind {
	case ast.KindIdent:
		// nothing: Local/Global/UpvalSet need no address operand.
	case ast.KindSelectorExpr:
		sel := c.Bridge.Selection(l.ID)
		c.genAddrOf(l.X)
		for _, idx := range sel.FieldIndices {
			f.em.FieldAddr(idx)
		}
	case ast.KindIndexExpr:
		under := c.Reg.Underlying(c.exprType(l.X))
		c.genExpr(l.X)
		c.genExpr(l.Y)
		if c.Reg.Get(under).Kind != meta.KindMap {
			f.em.IndexAddr()
		}
	case ast.KindUnaryExpr:
		if l.Tok != "*" {
			panic("ICE: codegen: unhandled unary lvalue operator " + l.Tok)
		}
		c.genExpr(l.X)
	default:
		panic("ICE: codegen: unhandled lvalue kind in lvaluePrefix")
	}
}

// lvalueDeclaredType is the static type the stored value must coerce
// to for the implicit interface cast a store performs — queried right
// after the value is pushed, before commitStore consumes it, so the
// coercion lands on the correct stack slot regardless of how many
// other assignment pairs are interleaved around it.
func (c *Compiler) lvalueDeclaredType(l *ast.Node) meta.Key {
	switch l.Kind {
	case ast.KindSelectorExpr:
		return c.Bridge.Selection(l.ID).ResultType
	case ast.KindIndexExpr:
		under := c.Reg.Underlying(c.exprType(l.X))
		if m := c.Reg.Get(under); m.Kind == meta.KindMap {
			return m.Val
		}
		return c.exprType(l)
	case ast.KindUnaryExpr:
		return c.Reg.UnpointerTo(c.Reg.Underlying(c.exprType(l.X)))
	default:
		return c.exprType(l)
	}
}

// commitStore consumes the lvaluePrefix operands together with the
// value now sitting on top of the stack (pushed, and already coerced
// via lvalueDeclaredType, immediately after the matching lvaluePrefix
// call) and performs the actual write.
func (c *Compiler) commitStore(l *ast.Node, t meta.Key) {
	f := c.cur()
	vt := c.Bridge.ValueTypeFromMeta(t)
	switch l.Kind {
	case ast.KindIdent:
		if l.Name == "_" {
			f.em.Pop()
			return
		}
		e, isUpval, isLocal := c.resolveVarIdent(l.Name)
		switch {
		case isUpval:
			f.em.UpvalSet(e.slot, vt)
		case isLocal:
			f.em.LocalSet(e.slot, vt)
		default:
			f.em.GlobalSet(e.slot, vt)
		}
	case ast.KindSelectorExpr, ast.KindUnaryExpr:
		f.em.Store(vt)
	case ast.KindIndexExpr:
		under := c.Reg.Underlying(c.exprType(l.X))
		if c.Reg.Get(under).Kind == meta.KindMap {
			f.em.MapSet()
		} else {
			f.em.Store(vt)
		}
	default:
		panic("ICE: codegen: unhandled lvalue kind in commitStore")
	}
}

// storeLValue is the single-value convenience path used where the
// value is already sitting on top of the stack before the lvalue is
// known (var decl initializers, comma-ok receivers): identifiers store
// directly; an index/selector/deref target needs its prefix computed
// fresh, so the value is stashed through a synthetic local slot first
// to keep it off the stack while the prefix operands are pushed.
func (c *Compiler) storeLValue(l *ast.Node, t meta.Key) {
	f := c.cur()
	declT := c.lvalueDeclaredType(l)
	if l.Kind == ast.KindIdent {
		c.coerceTOS(t, declT)
		c.commitStore(l, declT)
		return
	}
	vt := c.Bridge.ValueTypeFromMeta(t)
	tmp := f.addLocal("", t)
	f.em.LocalSet(tmp, vt)
	c.lvaluePrefix(l)
	f.em.LocalGet(tmp, vt)
	c.coerceTOS(t, declT)
	c.commitStore(l, declT)
}
