// Package typelookup is the type lookup bridge: it translates
// internal/sema's answers about an AST node into the two things the
// code generator actually needs — a value.Type erasure and a metadata
// handle.
package typelookup

import (
	"github.com/corestack/govm/internal/ast"
	"github.com/corestack/govm/internal/meta"
	"github.com/corestack/govm/internal/sema"
	"github.com/corestack/govm/internal/value"
)

// Mode classifies what an expression node denotes; the code generator
// branches on this before emitting anything for the node.
type Mode int

const (
	ModeValue Mode = iota
	ModeConstant
	ModeTypeExpr
	ModeBuiltin
	ModeCommaOk
	ModeMapIndex
)

// Bridge answers the code generator's type queries against a
// *sema.Info produced by the checker for one package.
type Bridge struct {
	Info *sema.Info
	Reg  *meta.Registry
}

func New(info *sema.Info, reg *meta.Registry) *Bridge {
	return &Bridge{Info: info, Reg: reg}
}

func (b *Bridge) ExprMode(id ast.NodeID) Mode {
	if m, ok := b.Info.ExprMode[id]; ok {
		return m
	}
	return ModeValue
}

func (b *Bridge) ExprType(id ast.NodeID) meta.Key {
	k, ok := b.Info.ExprType[id]
	if !ok {
		panic("ICE: typelookup: no type recorded for expr node")
	}
	return k
}

func (b *Bridge) UseType(id ast.NodeID) meta.Key { return b.ExprType(id) }
func (b *Bridge) DefType(id ast.NodeID) meta.Key { return b.ExprType(id) }

// ValueTypeFromMeta erases a metadata handle to the value.Type tag
// instructions dispatch on.
func (b *Bridge) ValueTypeFromMeta(k meta.Key) value.Type {
	return b.Reg.ValueType(k)
}

func (b *Bridge) SigParamTypes(sig meta.Key) []meta.Key {
	return b.Reg.Get(sig).Params
}

func (b *Bridge) SigResultTypes(sig meta.Key) []meta.Key {
	return b.Reg.Get(sig).Results
}

// TupleTypes returns the element types of a multi-value expression
// (e.g. a call used as the sole RHS of an N-to-N assignment).
func (b *Bridge) TupleTypes(id ast.NodeID) []meta.Key {
	if t, ok := b.Info.TupleType[id]; ok {
		return t
	}
	return []meta.Key{b.ExprType(id)}
}

// Selection is the resolved shape of a selector expression: whether it
// names a method or a field, the embedded-field chain to walk to reach
// it, and whether the method takes a pointer receiver.
type Selection struct {
	IsMethod     bool
	RecvType     meta.Key
	ResultType   meta.Key
	FieldIndices []int // embedded-field chain for a.b.c
	PtrRecv      bool
	MethodName   string
}

func (b *Bridge) Selection(id ast.NodeID) Selection {
	sel, ok := b.Info.Selection[id]
	if !ok {
		panic("ICE: typelookup: no selection recorded for selector node")
	}
	return sel
}

// ConstValue returns the compile-time constant attached to a node in
// ModeConstant, boxed as a runtime Value ready to go straight into a
// constant pool entry.
func (b *Bridge) ConstValue(id ast.NodeID) value.Value {
	v, ok := b.Info.ConstVal[id]
	if !ok {
		panic("ICE: typelookup: no constant recorded for constant-mode expr")
	}
	return v
}
