// Package sema is the type checker the code generator consumes through
// internal/typelookup: single-pass inference over the parser's AST
// that populates internal/typelookup.Bridge's Info tables.
package sema

import (
	"fmt"

	"github.com/corestack/govm/internal/ast"
	"github.com/corestack/govm/internal/meta"
	"github.com/corestack/govm/internal/value"
)

// Info is every side table internal/typelookup.Bridge reads. Keys are
// ast.NodeID so a later rewrite of the tree never invalidates them.
type Info struct {
	ExprMode  map[ast.NodeID]int // typelookup.Mode, duplicated here as int to avoid an import cycle
	ExprType  map[ast.NodeID]meta.Key
	TupleType map[ast.NodeID][]meta.Key
	Selection map[ast.NodeID]SelectionInfo
	ConstVal  map[ast.NodeID]value.Value

	// FuncSig maps a FuncDecl/FuncLit node to its interned signature.
	FuncSig map[ast.NodeID]meta.Key
	// PkgOrder lists top-level var declarations in dependency order,
	// the input the code generator's package constructor emission
	// walks.
	PkgOrder []*ast.Node
}

// SelectionInfo mirrors typelookup.Selection; duplicated here (rather
// than imported) since internal/typelookup imports internal/sema, not
// the other way around.
type SelectionInfo struct {
	IsMethod     bool
	RecvType     meta.Key
	ResultType   meta.Key
	FieldIndices []int
	PtrRecv      bool
	MethodName   string
}

func newInfo() *Info {
	return &Info{
		ExprMode:  make(map[ast.NodeID]int),
		ExprType:  make(map[ast.NodeID]meta.Key),
		TupleType: make(map[ast.NodeID][]meta.Key),
		Selection: make(map[ast.NodeID]SelectionInfo),
		ConstVal:  make(map[ast.NodeID]value.Value),
		FuncSig:   make(map[ast.NodeID]meta.Key),
	}
}

// scope is one block's identifier -> declared type map, stacked during
// the single-pass walk; the code generator keeps an equivalent stack
// of its own, sema keeps this parallel copy purely to compute
// expression types as it descends.
type scope struct {
	vars   map[string]meta.Key
	parent *scope
}

func newScope(parent *scope) *scope { return &scope{vars: make(map[string]meta.Key), parent: parent} }

func (s *scope) lookup(name string) (meta.Key, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if k, ok := sc.vars[name]; ok {
			return k, true
		}
	}
	return 0, false
}

func (s *scope) declare(name string, k meta.Key) { s.vars[name] = k }

// Checker performs the single-pass inference walk and owns the
// metadata registry shared with the rest of the program.
type Checker struct {
	Reg     *meta.Registry
	info    *Info
	globals *scope
	types   map[string]meta.Key // named-type declarations, by name
	errs    []string
}

func NewChecker(reg *meta.Registry) *Checker {
	return &Checker{Reg: reg, info: newInfo(), globals: newScope(nil), types: make(map[string]meta.Key)}
}

func (c *Checker) errorf(format string, args ...interface{}) {
	c.errs = append(c.errs, fmt.Sprintf(format, args...))
}

// Check type-checks one file and returns the populated Info. Errors
// accumulated along the way are user-facing semantic errors returned
// as a slice rather than panics — only internal invariant violations
// use panic("ICE: ...").
func (c *Checker) Check(file *ast.Node) (*Info, []string) {
	if file.Kind != ast.KindFile {
		panic("ICE: sema: Check called on non-file node")
	}
	c.declareTypes(file)
	c.declareFuncSigs(file)
	for _, decl := range file.Nodes {
		switch decl.Kind {
		case ast.KindVarDecl, ast.KindConstDecl:
			c.checkOneVarOrConstSpec(decl, c.globals, true)
		case ast.KindBlock: // grouped var (...) / const (...) at top level
			if isVarSpecGroup(decl) {
				for _, spec := range decl.Nodes {
					c.checkOneVarOrConstSpec(spec, c.globals, true)
				}
			}
		case ast.KindFuncDecl:
			c.checkFuncBody(decl)
		}
	}
	return c.info, c.errs
}

// declareTypes performs a first pass registering every named type
// name, then resolves each underlying type in declaration order. A
// reference to a type whose own second-pass step has not run yet (a
// type declared later in the file, or the type itself) resolves to
// key 0, not to that type.
func (c *Checker) declareTypes(file *ast.Node) {
	specs := collectTopDecls(file, ast.KindTypeDecl)
	for _, decl := range specs {
		// Reserve the name with key 0; the underlying shape is
		// resolved in the second pass below.
		c.types[decl.Name] = 0
	}
	for _, decl := range specs {
		underlying := c.resolveTypeExpr(decl.Type)
		named := c.Reg.NewNamed("", decl.Name, underlying)
		c.types[decl.Name] = named
	}
}

// collectTopDecls flattens both bare top-level decls of kind `k` and
// parenthesized groups (represented as a Block whose children are all
// kind `k` — see isVarSpecGroup's comment for why the parser reuses
// Block this way).
func collectTopDecls(file *ast.Node, k ast.Kind) []*ast.Node {
	var out []*ast.Node
	for _, decl := range file.Nodes {
		if decl.Kind == k {
			out = append(out, decl)
			continue
		}
		if decl.Kind == ast.KindBlock && len(decl.Nodes) > 0 && decl.Nodes[0].Kind == k {
			out = append(out, decl.Nodes...)
		}
	}
	return out
}

func (c *Checker) declareFuncSigs(file *ast.Node) {
	for _, decl := range file.Nodes {
		if decl.Kind != ast.KindFuncDecl {
			continue
		}
		sig := c.resolveFuncSig(decl)
		c.info.FuncSig[decl.ID] = sig
		if decl.Recv != nil {
			recvType := c.resolveTypeExpr(decl.Recv.Type)
			named := recvType
			ptrRecv := false
			if rm := c.Reg.Get(recvType); rm.Kind == meta.KindPointer {
				named = rm.Elem
				ptrRecv = true
			}
			_ = ptrRecv
			c.Reg.SetMethodCode(named, decl.Name, int64(decl.ID), ptrRecv)
		} else {
			c.globals.declare(decl.Name, sig)
		}
	}
}

func (c *Checker) resolveFuncSig(decl *ast.Node) meta.Key {
	params := make([]meta.Key, 0, len(decl.Params))
	for _, p := range decl.Params {
		params = append(params, c.resolveTypeExpr(p.Type))
	}
	results := make([]meta.Key, 0, len(decl.Results))
	for _, r := range decl.Results {
		results = append(results, c.resolveTypeExpr(r.Type))
	}
	var recv meta.Key
	if decl.Recv != nil {
		recv = c.resolveTypeExpr(decl.Recv.Type)
	}
	return c.Reg.NewSignature(params, results, decl.Variadic, recv)
}

// resolveTypeExpr turns a parsed type-expression node into a metadata
// key, interning structural shapes the way internal/meta expects.
func (c *Checker) resolveTypeExpr(n *ast.Node) meta.Key {
	if n == nil {
		return c.Reg.Basic(value.Nil)
	}
	switch n.Kind {
	case ast.KindIdent:
		if k := c.basicByName(n.Name); k != 0 {
			return k
		}
		if k, ok := c.types[n.Name]; ok {
			return k
		}
		c.errorf("undefined type %q", n.Name)
		return c.Reg.Basic(value.Nil)
	case ast.KindPointerType:
		return c.Reg.PointerTo(c.resolveTypeExpr(n.X))
	case ast.KindSliceType:
		return c.Reg.SliceOrArray(c.resolveTypeExpr(n.X))
	case ast.KindArrayType:
		length := 0
		if n.Y != nil && n.Y.Kind == ast.KindIntLit {
			length = int(n.Y.IntVal)
		}
		return c.Reg.Array(c.resolveTypeExpr(n.X), length)
	case ast.KindMapType:
		return c.Reg.Map(c.resolveTypeExpr(n.X), c.resolveTypeExpr(n.Y))
	case ast.KindChanType:
		return c.Reg.Channel(c.resolveTypeExpr(n.X), meta.ChanDir(n.ChanDir))
	case ast.KindStructType:
		fields := make([]meta.Field, 0, len(n.Nodes))
		for _, f := range n.Nodes {
			fields = append(fields, meta.Field{Name: f.Name, Type: c.resolveTypeExpr(f.Type), Tag: f.StrVal})
		}
		return c.Reg.NewStruct(fields)
	case ast.KindInterfaceType:
		names := make([]string, 0, len(n.Nodes))
		for _, m := range n.Nodes {
			names = append(names, m.Name)
		}
		return c.Reg.NewInterface(names)
	case ast.KindFuncType:
		params := make([]meta.Key, 0, len(n.Params))
		for _, p := range n.Params {
			params = append(params, c.resolveTypeExpr(p.Type))
		}
		results := make([]meta.Key, 0, len(n.Results))
		for _, r := range n.Results {
			results = append(results, c.resolveTypeExpr(r.Type))
		}
		return c.Reg.NewSignature(params, results, n.Variadic, 0)
	}
	panic("ICE: sema: unhandled type-expression kind")
}

func (c *Checker) basicByName(name string) meta.Key {
	m := map[string]value.Type{
		"bool": value.Bool, "int": value.Int, "int8": value.Int8, "int16": value.Int16,
		"int32": value.Int32, "int64": value.Int64, "uint": value.Uint, "uintptr": value.UintPtr,
		"uint8": value.Uint8, "byte": value.Uint8, "uint16": value.Uint16, "uint32": value.Uint32,
		"uint64": value.Uint64, "float32": value.Float32, "float64": value.Float64,
		"complex64": value.Complex64, "complex128": value.Complex128, "string": value.Str,
		"rune": value.Int32,
	}
	t, ok := m[name]
	if !ok {
		return 0
	}
	return c.Reg.Basic(t)
}

// checkOneVarOrConstSpec type-checks a single var/const spec node in
// the parser's actual shape: Name is the first declared identifier,
// Nodes holds any extra names (as bare Ident nodes) from `a, b := ...`
// style grouping, Type is the optional declared type, X is the first
// initializer expression and Results holds any extra initializers each
// wrapped as a Field node abusing its Type slot to carry the
// expression (see internal/parser.parseOneVarSpec).
func (c *Checker) checkOneVarOrConstSpec(spec *ast.Node, sc *scope, topLevel bool) {
	if spec.Kind != ast.KindVarDecl && spec.Kind != ast.KindConstDecl {
		return
	}
	names := []string{spec.Name}
	for _, extra := range spec.Nodes {
		names = append(names, extra.Name)
	}
	var declType meta.Key
	if spec.Type != nil {
		declType = c.resolveTypeExpr(spec.Type)
	}
	inits := []*ast.Node(nil)
	if spec.X != nil {
		inits = append(inits, spec.X)
	}
	for _, extra := range spec.Results {
		inits = append(inits, extra.Type)
	}
	for i, name := range names {
		t := declType
		if t == 0 && i < len(inits) {
			t = c.exprType(inits[i], sc)
		} else if i < len(inits) {
			c.exprType(inits[i], sc)
		}
		if name != "_" {
			sc.declare(name, t)
		}
	}
	if topLevel {
		c.info.PkgOrder = append(c.info.PkgOrder, spec)
	}
}

func (c *Checker) checkFuncBody(decl *ast.Node) {
	fscope := newScope(c.globals)
	if decl.Recv != nil {
		fscope.declare(decl.Recv.Name, c.resolveTypeExpr(decl.Recv.Type))
	}
	for _, p := range decl.Params {
		fscope.declare(p.Name, c.resolveTypeExpr(p.Type))
	}
	for _, r := range decl.Results {
		if r.Name != "" {
			fscope.declare(r.Name, c.resolveTypeExpr(r.Type))
		}
	}
	if decl.Body != nil {
		c.checkBlock(decl.Body, fscope)
	}
}

// isVarSpecGroup distinguishes a parenthesized var/const group — which
// the parser represents as a Block node whose children are VarDecl/
// ConstDecl specs (parseVarSpec/parseConstDecl) — from an ordinary
// nested `{ ... }` block statement, which reuses the same Kind.
func isVarSpecGroup(n *ast.Node) bool {
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

func (c *Checker) checkBlock(block *ast.Node, parent *scope) {
	sc := newScope(parent)
	for _, stmt := range block.Nodes {
		c.checkStmt(stmt, sc)
	}
}

func (c *Checker) checkStmt(n *ast.Node, sc *scope) {
	if n == nil {
		return
	}
	switch n.Kind {
	case ast.KindVarDecl, ast.KindConstDecl:
		c.checkOneVarOrConstSpec(n, sc, false)
	case ast.KindAssign:
		c.checkAssign(n, sc)
	case ast.KindExprStmt:
		c.exprType(n.X, sc)
	case ast.KindReturn:
		if n.X != nil {
			c.exprType(n.X, sc)
		}
		for _, r := range n.Nodes {
			c.exprType(r, sc)
		}
	case ast.KindIf:
		c.exprType(n.X, sc)
		c.checkBlock(n.Body, sc)
		if n.Else != nil {
			if n.Else.Kind == ast.KindBlock {
				c.checkBlock(n.Else, sc)
			} else {
				c.checkStmt(n.Else, sc)
			}
		}
	case ast.KindFor:
		inner := newScope(sc)
		c.checkStmt(n.X, inner)
		c.checkBlock(n.Body, inner)
	case ast.KindForRange:
		inner := newScope(sc)
		containerT := c.exprType(n.Type, inner)
		keyT, elemT := c.rangeKeyType(containerT), c.rangeElemType(containerT)
		isDefine := n.Tok == ":="
		if n.X != nil && n.X.Kind == ast.KindIdent && n.X.Name != "_" {
			if isDefine {
				inner.declare(n.X.Name, keyT)
			}
			c.info.ExprType[n.X.ID] = keyT
		}
		if n.Y != nil && n.Y.Kind == ast.KindIdent && n.Y.Name != "_" {
			if isDefine {
				inner.declare(n.Y.Name, elemT)
			}
			c.info.ExprType[n.Y.ID] = elemT
		}
		c.checkBlock(n.Body, inner)
	case ast.KindBlock:
		if isVarSpecGroup(n) {
			for _, spec := range n.Nodes {
				c.checkOneVarOrConstSpec(spec, sc, false)
			}
		} else {
			c.checkBlock(n, sc)
		}
	case ast.KindIncDec, ast.KindBranch, ast.KindGo, ast.KindDefer:
		if n.X != nil {
			c.exprType(n.X, sc)
		}
	case ast.KindLabeled:
		c.checkStmt(n.Body, sc)
	case ast.KindSwitch, ast.KindTypeSwitch, ast.KindSelect:
		c.checkBranchyStmt(n, sc)
	}
}

// checkBranchyStmt type-checks switch/type-switch/select, matching the
// parser's shared shape: an optional leading init statement in Nodes
// (anything before the first KindCase/KindCommClause), the tag or
// type-switch guard expression in Y, and (type switches only) the
// bound variable name in Label.
func (c *Checker) checkBranchyStmt(n *ast.Node, sc *scope) {
	inner := newScope(sc)
	clauses := n.Nodes
	if len(clauses) > 0 && clauses[0].Kind != ast.KindCase && clauses[0].Kind != ast.KindCommClause {
		c.checkStmt(clauses[0], inner)
		clauses = clauses[1:]
	}

	switch n.Kind {
	case ast.KindSwitch:
		if n.Y != nil {
			c.exprType(n.Y, inner)
		}
		for _, cl := range clauses {
			clScope := newScope(inner)
			for _, cexpr := range cl.Nodes {
				c.exprType(cexpr, clScope)
			}
			c.checkBlock(cl.Body, clScope)
		}
	case ast.KindTypeSwitch:
		var tagT meta.Key
		if n.Y != nil {
			tagT = c.exprType(n.Y, inner)
		}
		for _, cl := range clauses {
			clScope := newScope(inner)
			narrowed := tagT
			for _, texpr := range cl.Nodes {
				k := c.resolveCaseType(texpr, clScope)
				c.info.ExprType[texpr.ID] = k
				if len(cl.Nodes) == 1 {
					narrowed = k
				}
			}
			c.info.ExprType[cl.ID] = narrowed
			if n.Label != "" && n.Label != "_" {
				clScope.declare(n.Label, narrowed)
			}
			c.checkBlock(cl.Body, clScope)
		}
	case ast.KindSelect:
		for _, cl := range clauses {
			clScope := newScope(inner)
			switch cl.Comm {
			case ast.CommSend:
				c.exprType(cl.X, clScope)
				c.exprType(cl.Y, clScope)
			case ast.CommRecv:
				chT := c.exprType(cl.Y, clScope)
				elemT := c.rangeElemType(chT)
				if cl.X != nil && cl.X.Kind == ast.KindIdent && cl.X.Name != "_" {
					if cl.Tok == ":=" {
						clScope.declare(cl.X.Name, elemT)
					}
					c.info.ExprType[cl.X.ID] = elemT
				}
			case ast.CommRecvCommaOk:
				chT := c.exprType(cl.Y, clScope)
				elemT := c.rangeElemType(chT)
				boolT := c.Reg.Basic(value.Bool)
				if cl.X != nil && cl.X.Kind == ast.KindIdent && cl.X.Name != "_" {
					if cl.Tok == ":=" {
						clScope.declare(cl.X.Name, elemT)
					}
					c.info.ExprType[cl.X.ID] = elemT
				}
				if cl.Else != nil && cl.Else.Kind == ast.KindIdent && cl.Else.Name != "_" {
					if cl.Tok == ":=" {
						clScope.declare(cl.Else.Name, boolT)
					}
					c.info.ExprType[cl.Else.ID] = boolT
				}
			case ast.CommDefault:
			}
			c.checkBlock(cl.Body, clScope)
		}
	}
}

// resolveCaseType resolves one switch/type-switch case entry: a
// structural type expression (`*Foo`, `[]int`, ...) goes through
// resolveTypeExpr, everything else (a plain identifier naming a type,
// or an ordinary value expression for a non-type switch) through the
// regular expression-type oracle.
func (c *Checker) resolveCaseType(n *ast.Node, sc *scope) meta.Key {
	switch n.Kind {
	case ast.KindPointerType, ast.KindSliceType, ast.KindArrayType, ast.KindMapType,
		ast.KindFuncType, ast.KindStructType, ast.KindInterfaceType, ast.KindChanType:
		return c.resolveTypeExpr(n)
	default:
		return c.exprType(n, sc)
	}
}

func (c *Checker) rangeKeyType(containerT meta.Key) meta.Key {
	m := c.Reg.Get(c.Reg.Underlying(containerT))
	if m.Kind == meta.KindMap {
		return m.Key
	}
	return c.Reg.Basic(value.Int)
}

func (c *Checker) rangeElemType(containerT meta.Key) meta.Key {
	m := c.Reg.Get(c.Reg.Underlying(containerT))
	switch m.Kind {
	case meta.KindArray, meta.KindSliceOrArray:
		return m.Elem
	case meta.KindMap:
		return m.Val
	case meta.KindChannel:
		return m.Elem
	case meta.KindBasic:
		if m.Basic == value.Str {
			return c.Reg.Basic(value.Int32)
		}
	}
	return c.Reg.Basic(value.Int)
}

// checkAssign matches the parser's actual Assign shape: a single LHS
// lives in X with Nodes empty, or a comma-separated LHS list lives in
// Nodes with X nil. Y is the first (and ordinarily only) RHS
// expression; additional comma-separated RHS expressions — the N==M
// case, e.g. `a, b = b, a` — are carried in Results, each wrapped as a
// Field node reusing its Type slot for the expression (matching
// parseOneVarSpec's extra-initializer convention).
func (c *Checker) checkAssign(n *ast.Node, sc *scope) {
	isDefine := n.Tok == ":="

	lhs := n.Nodes
	if lhs == nil && n.X != nil {
		lhs = []*ast.Node{n.X}
	}

	rhs := []*ast.Node{n.Y}
	for _, extra := range n.Results {
		rhs = append(rhs, extra.Type)
	}

	var rhsTypes []meta.Key
	if len(rhs) == 1 && len(lhs) == 2 {
		// Comma-ok unification: two LHS receivers always select the
		// comma-ok form, regardless of whether the single RHS is a map
		// index, type assertion, or channel receive.
		t := c.exprType(rhs[0], sc)
		if tup := c.info.TupleType[rhs[0].ID]; len(tup) == 2 {
			rhsTypes = tup
		} else {
			rhsTypes = []meta.Key{t, c.Reg.Basic(value.Bool)}
		}
	} else {
		for _, r := range rhs {
			rhsTypes = append(rhsTypes, c.exprType(r, sc))
		}
	}

	for i, l := range lhs {
		var t meta.Key
		if i < len(rhsTypes) {
			t = rhsTypes[i]
		}
		if l.Kind == ast.KindIdent && l.Name == "_" {
			continue
		}
		if isDefine && l.Kind == ast.KindIdent {
			if _, already := sc.vars[l.Name]; !already {
				sc.declare(l.Name, t)
			}
			c.info.ExprType[l.ID] = t
		} else {
			c.exprType(l, sc)
		}
	}
}

// exprType computes (and memoizes into Info) the metadata type of an
// expression node, the core of the oracle the code generator queries
// through internal/typelookup.
func (c *Checker) exprType(n *ast.Node, sc *scope) meta.Key {
	if n == nil {
		return 0
	}
	if t, ok := c.info.ExprType[n.ID]; ok {
		return t
	}
	t := c.inferExpr(n, sc)
	c.info.ExprType[n.ID] = t
	return t
}

func (c *Checker) inferExpr(n *ast.Node, sc *scope) meta.Key {
	switch n.Kind {
	case ast.KindIntLit:
		c.info.ExprMode[n.ID] = 1 // ModeConstant
		c.info.ConstVal[n.ID] = value.NewInt(n.IntVal)
		return c.Reg.Basic(value.Int)
	case ast.KindFloatLit:
		c.info.ExprMode[n.ID] = 1
		c.info.ConstVal[n.ID] = value.NewFloat64(n.FloatVal)
		return c.Reg.Basic(value.Float64)
	case ast.KindStringLit:
		c.info.ExprMode[n.ID] = 1
		c.info.ConstVal[n.ID] = value.NewStr(n.StrVal)
		return c.Reg.Basic(value.Str)
	case ast.KindRuneLit:
		c.info.ExprMode[n.ID] = 1
		c.info.ConstVal[n.ID] = value.NewInt32(int32(n.IntVal))
		return c.Reg.Basic(value.Int32)
	case ast.KindBoolLit:
		c.info.ExprMode[n.ID] = 1
		c.info.ConstVal[n.ID] = value.NewBool(n.BoolVal)
		return c.Reg.Basic(value.Bool)
	case ast.KindNilLit:
		c.info.ExprMode[n.ID] = 1
		return c.Reg.Basic(value.Nil)
	case ast.KindIdent:
		if t, ok := sc.lookup(n.Name); ok {
			return t
		}
		if k := c.basicByName(n.Name); k != 0 {
			c.info.ExprMode[n.ID] = 2 // ModeTypeExpr
			return k
		}
		if k, ok := c.types[n.Name]; ok {
			c.info.ExprMode[n.ID] = 2
			return k
		}
		c.errorf("undefined identifier %q", n.Name)
		return c.Reg.Basic(value.Nil)
	case ast.KindBinaryExpr:
		lt := c.exprType(n.X, sc)
		c.exprType(n.Y, sc)
		switch n.Tok {
		case "==", "!=", "<", ">", "<=", ">=", "&&", "||":
			return c.Reg.Basic(value.Bool)
		case "<-":
			// send statement (`ch <- v`); no result value to pop.
			return 0
		}
		return lt
	case ast.KindUnaryExpr:
		xt := c.exprType(n.X, sc)
		switch n.Tok {
		case "&":
			return c.Reg.PointerTo(xt)
		case "*":
			m := c.Reg.Get(c.Reg.Underlying(xt))
			if m.Kind == meta.KindPointer {
				return m.Elem
			}
			return xt
		case "!":
			return c.Reg.Basic(value.Bool)
		case "<-":
			m := c.Reg.Get(c.Reg.Underlying(xt))
			if m.Kind == meta.KindChannel {
				return m.Elem
			}
			return xt
		}
		return xt
	case ast.KindCallExpr:
		return c.inferCall(n, sc)
	case ast.KindIndexExpr:
		baseT := c.exprType(n.X, sc)
		c.exprType(n.Y, sc)
		m := c.Reg.Get(c.Reg.Underlying(baseT))
		switch m.Kind {
		case meta.KindMap:
			if len(sc.vars) >= 0 {
				c.info.ExprMode[n.ID] = 5 // ModeMapIndex
			}
			c.info.TupleType[n.ID] = []meta.Key{m.Val, c.Reg.Basic(value.Bool)}
			return m.Val
		case meta.KindArray, meta.KindSliceOrArray:
			return m.Elem
		case meta.KindBasic:
			if m.Basic == value.Str {
				return c.Reg.Basic(value.Uint8)
			}
		}
		return baseT
	case ast.KindSliceExpr:
		return c.exprType(n.X, sc)
	case ast.KindSelectorExpr:
		return c.inferSelector(n, sc)
	case ast.KindTypeAssertExpr:
		targetT := c.resolveTypeExpr(n.Type)
		c.exprType(n.X, sc)
		c.info.ExprMode[n.ID] = 4 // ModeCommaOk
		c.info.TupleType[n.ID] = []meta.Key{targetT, c.Reg.Basic(value.Bool)}
		return targetT
	case ast.KindCompositeLit:
		t := c.resolveTypeExpr(n.Type)
		for _, el := range n.Nodes {
			if el.Kind == ast.KindKeyValue {
				c.exprType(el.Y, sc)
			} else {
				c.exprType(el, sc)
			}
		}
		return t
	case ast.KindFuncLit:
		sig := c.resolveFuncSig(n)
		c.info.FuncSig[n.ID] = sig
		inner := newScope(sc)
		for _, p := range n.Params {
			inner.declare(p.Name, c.resolveTypeExpr(p.Type))
		}
		if n.Body != nil {
			c.checkBlock(n.Body, inner)
		}
		return sig
	}
	return 0
}

// builtinNames are the predeclared functions whose callee identifier
// never resolves through the ordinary scope/type lookup, so inferCall
// intercepts them by name before falling into the general
// identifier/signature path.
var builtinNames = map[string]bool{
	"len": true, "cap": true, "make": true, "new": true, "append": true,
	"copy": true, "delete": true, "close": true, "panic": true, "recover": true,
}

func (c *Checker) inferCall(n *ast.Node, sc *scope) meta.Key {
	if n.X.Kind == ast.KindIdent && builtinNames[n.X.Name] {
		if _, shadowed := sc.lookup(n.X.Name); !shadowed {
			return c.inferBuiltinCall(n, sc)
		}
	}
	calleeT := c.exprType(n.X, sc)
	for _, a := range n.Nodes {
		c.exprType(a, sc)
	}
	if c.info.ExprMode[n.X.ID] == 2 { // ModeTypeExpr: this is a conversion
		c.info.ExprMode[n.ID] = 2
		return calleeT
	}
	m := c.Reg.Get(c.Reg.Underlying(calleeT))
	if m.Kind != meta.KindSignature {
		return calleeT
	}
	if len(m.Results) == 1 {
		return m.Results[0]
	}
	if len(m.Results) > 1 {
		c.info.TupleType[n.ID] = m.Results
		return m.Results[0]
	}
	return c.Reg.Basic(value.Nil)
}

// inferBuiltinCall type-checks one of the predeclared functions listed
// in builtinNames and records ModeBuiltin on the callee identifier so
// internal/typelookup reports it correctly. make/new's first argument
// is a type (structural or a named type identifier), resolved the same
// way a type-switch case entry is via resolveCaseType; every other
// argument is an ordinary value expression.
func (c *Checker) inferBuiltinCall(n *ast.Node, sc *scope) meta.Key {
	c.info.ExprMode[n.X.ID] = 3 // ModeBuiltin
	name := n.X.Name
	args := n.Nodes

	switch name {
	case "len", "cap":
		if len(args) > 0 {
			c.exprType(args[0], sc)
		}
		return c.Reg.Basic(value.Int)
	case "make":
		if len(args) == 0 {
			c.errorf("make: missing type argument")
			return c.Reg.Basic(value.Nil)
		}
		t := c.resolveCaseType(args[0], sc)
		for _, a := range args[1:] {
			c.exprType(a, sc)
		}
		return t
	case "new":
		if len(args) == 0 {
			c.errorf("new: missing type argument")
			return c.Reg.Basic(value.Nil)
		}
		t := c.resolveCaseType(args[0], sc)
		return c.Reg.PointerTo(t)
	case "append":
		if len(args) == 0 {
			c.errorf("append: missing slice argument")
			return c.Reg.Basic(value.Nil)
		}
		st := c.exprType(args[0], sc)
		for _, a := range args[1:] {
			c.exprType(a, sc)
		}
		return st
	case "copy":
		for _, a := range args {
			c.exprType(a, sc)
		}
		return c.Reg.Basic(value.Int)
	case "delete", "close", "panic":
		for _, a := range args {
			c.exprType(a, sc)
		}
		return 0
	case "recover":
		return c.Reg.NewInterface(nil)
	}
	panic("ICE: sema: unhandled builtin " + name)
}

func (c *Checker) inferSelector(n *ast.Node, sc *scope) meta.Key {
	baseT := c.exprType(n.X, sc)
	under := c.Reg.Underlying(baseT)
	if pm := c.Reg.Get(under); pm.Kind == meta.KindPointer {
		under = c.Reg.Underlying(pm.Elem)
	}
	if meth, ok := c.Reg.MethodLookup(under, n.Name); ok {
		c.info.Selection[n.ID] = SelectionInfo{IsMethod: true, RecvType: under, MethodName: n.Name, PtrRecv: meth.PtrRecv}
		return 0 // resolved precisely by internal/codegen via BindMethod lookup
	}
	if idx, ok := c.Reg.FieldIndex(under, n.Name); ok {
		fm := c.Reg.Get(under)
		ft := fm.Fields[idx].Type
		c.info.Selection[n.ID] = SelectionInfo{FieldIndices: []int{idx}, ResultType: ft}
		return ft
	}
	c.errorf("no field or method %q on selector base", n.Name)
	return 0
}
