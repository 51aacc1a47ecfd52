// Package parser builds an internal/ast tree from a token stream. It is
// a recursive-descent parser over a practical subset of Go's grammar —
// enough to drive internal/sema and internal/codegen end to end. The
// code generator treats parsing and type-checking as oracles rather
// than its own concern, so this parser favors directness over
// exhaustiveness.
package parser

import (
	"fmt"
	"strconv"

	"github.com/corestack/govm/internal/ast"
	"github.com/corestack/govm/internal/lexer"
)

// Parser consumes a flat token slice produced by internal/lexer.
type Parser struct {
	toks      []lexer.Token
	pos       int
	errors    []string
	noCompLit bool
	nextID    ast.NodeID
}

func New(toks []lexer.Token) *Parser {
	return &Parser{toks: toks}
}

// Parse parses a complete source file into a KindFile node, assigning
// every node a unique NodeID.
func Parse(src []byte) (*ast.Node, []string) {
	toks := lexer.New(src).Tokenize()
	p := New(toks)
	file := p.parseFile()
	ast.Walk(file, func(n *ast.Node) {
		if n.ID == 0 {
			p.nextID++
			n.ID = p.nextID
		}
	})
	return file, p.errors
}

func (p *Parser) node(k ast.Kind, pos int) *ast.Node {
	p.nextID++
	return &ast.Node{ID: p.nextID, Kind: k, Pos: pos}
}

func (p *Parser) peek() lexer.Token {
	if p.pos >= len(p.toks) {
		return lexer.Token{Kind: lexer.EOF}
	}
	return p.toks[p.pos]
}

func (p *Parser) peekAt(off int) lexer.Token {
	i := p.pos + off
	if i >= len(p.toks) {
		return lexer.Token{Kind: lexer.EOF}
	}
	return p.toks[i]
}

func (p *Parser) advance() lexer.Token {
	t := p.peek()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *Parser) at(k lexer.Kind) bool { return p.peek().Kind == k }

func (p *Parser) match(kinds ...lexer.Kind) bool {
	cur := p.peek().Kind
	for _, k := range kinds {
		if cur == k {
			return true
		}
	}
	return false
}

func (p *Parser) expect(k lexer.Kind) lexer.Token {
	t := p.advance()
	if t.Kind != k {
		p.errorf("expected %s, got %s at pos %d", k, t, t.Pos)
	}
	return t
}

func (p *Parser) errorf(format string, args ...interface{}) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *Parser) skipSemicolon() {
	if p.at(lexer.SEMICOLON) {
		p.advance()
	}
}

// ---- top level ----

func (p *Parser) parseFile() *ast.Node {
	file := p.node(ast.KindFile, p.peek().Pos)
	p.expect(lexer.PACKAGE)
	file.Name = p.expect(lexer.IDENT).Val
	p.skipSemicolon()

	for p.at(lexer.IMPORT) {
		file.Nodes = append(file.Nodes, p.parseImportGroup()...)
	}
	for !p.at(lexer.EOF) {
		decl := p.parseTopDecl()
		if decl != nil {
			file.Nodes = append(file.Nodes, decl)
		}
	}
	return file
}

func (p *Parser) parseImportGroup() []*ast.Node {
	p.expect(lexer.IMPORT)
	var out []*ast.Node
	if p.at(lexer.LPAREN) {
		p.advance()
		for !p.at(lexer.RPAREN) && !p.at(lexer.EOF) {
			tok := p.expect(lexer.STRING)
			n := p.node(ast.KindImportDecl, tok.Pos)
			n.Name = tok.Val
			out = append(out, n)
			p.skipSemicolon()
		}
		p.expect(lexer.RPAREN)
	} else {
		tok := p.expect(lexer.STRING)
		n := p.node(ast.KindImportDecl, tok.Pos)
		n.Name = tok.Val
		out = append(out, n)
	}
	p.skipSemicolon()
	return out
}

func (p *Parser) parseTopDecl() *ast.Node {
	switch p.peek().Kind {
	case lexer.FUNC:
		return p.parseFuncDecl()
	case lexer.TYPE:
		return p.parseTypeDecl()
	case lexer.VAR:
		return p.parseVarDecl()
	case lexer.CONST:
		return p.parseConstDecl()
	}
	tok := p.advance()
	p.errorf("unexpected top-level token: %s at pos %d", tok, tok.Pos)
	return nil
}

func (p *Parser) parseFuncDecl() *ast.Node {
	pos := p.peek().Pos
	p.expect(lexer.FUNC)
	n := p.node(ast.KindFuncDecl, pos)

	if p.at(lexer.LPAREN) {
		p.advance()
		n.Recv = p.parseParam()
		p.expect(lexer.RPAREN)
	}

	n.Name = p.expect(lexer.IDENT).Val
	n.Params = p.parseParamList()

	if !p.at(lexer.LBRACE) && !p.at(lexer.SEMICOLON) && !p.at(lexer.EOF) {
		n.Results = p.parseResultList()
	}
	if p.at(lexer.LBRACE) {
		n.Body = p.parseBlock()
	}
	p.skipSemicolon()
	return n
}

func (p *Parser) parseResultList() []*ast.Node {
	if p.at(lexer.LPAREN) {
		p.advance()
		var out []*ast.Node
		for !p.at(lexer.RPAREN) && !p.at(lexer.EOF) {
			out = append(out, p.parseParam())
			if p.at(lexer.COMMA) {
				p.advance()
			}
		}
		p.expect(lexer.RPAREN)
		return out
	}
	return []*ast.Node{{Kind: ast.KindField, Type: p.parseType()}}
}

func (p *Parser) parseParamList() []*ast.Node {
	p.expect(lexer.LPAREN)
	var params []*ast.Node
	variadic := false
	for !p.at(lexer.RPAREN) && !p.at(lexer.EOF) {
		param := p.parseParam()
		if param.Variadic {
			variadic = true
		}
		params = append(params, param)
		if p.at(lexer.COMMA) {
			p.advance()
		}
	}
	p.expect(lexer.RPAREN)
	_ = variadic
	return params
}

func (p *Parser) parseParam() *ast.Node {
	n := p.node(ast.KindField, p.peek().Pos)
	if p.at(lexer.IDENT) && p.peekAt(1).Kind != lexer.COMMA && p.peekAt(1).Kind != lexer.RPAREN {
		n.Name = p.advance().Val
	}
	if p.at(lexer.ELLIPSIS) {
		p.advance()
		n.Variadic = true
	}
	n.Type = p.parseType()
	return n
}

func (p *Parser) parseTypeDecl() *ast.Node {
	pos := p.peek().Pos
	p.expect(lexer.TYPE)
	if p.at(lexer.LPAREN) {
		p.advance()
		group := p.node(ast.KindBlock, pos)
		for !p.at(lexer.RPAREN) && !p.at(lexer.EOF) {
			name := p.expect(lexer.IDENT)
			n := p.node(ast.KindTypeDecl, name.Pos)
			n.Name = name.Val
			n.Type = p.parseType()
			group.Nodes = append(group.Nodes, n)
			p.skipSemicolon()
		}
		p.expect(lexer.RPAREN)
		p.skipSemicolon()
		return group
	}
	name := p.expect(lexer.IDENT)
	n := p.node(ast.KindTypeDecl, pos)
	n.Name = name.Val
	n.Type = p.parseType()
	p.skipSemicolon()
	return n
}

func (p *Parser) parseVarDecl() *ast.Node {
	pos := p.peek().Pos
	p.expect(lexer.VAR)
	return p.parseVarSpec(pos)
}

func (p *Parser) parseVarSpec(pos int) *ast.Node {
	if p.at(lexer.LPAREN) {
		p.advance()
		group := p.node(ast.KindBlock, pos)
		for !p.at(lexer.RPAREN) && !p.at(lexer.EOF) {
			group.Nodes = append(group.Nodes, p.parseOneVarSpec())
			p.skipSemicolon()
		}
		p.expect(lexer.RPAREN)
		p.skipSemicolon()
		return group
	}
	n := p.parseOneVarSpec()
	p.skipSemicolon()
	return n
}

func (p *Parser) parseOneVarSpec() *ast.Node {
	pos := p.peek().Pos
	var names []string
	names = append(names, p.expect(lexer.IDENT).Val)
	for p.at(lexer.COMMA) {
		p.advance()
		names = append(names, p.expect(lexer.IDENT).Val)
	}
	n := p.node(ast.KindVarDecl, pos)
	n.Name = names[0]
	for _, extra := range names[1:] {
		n.Nodes = append(n.Nodes, &ast.Node{Kind: ast.KindIdent, Name: extra})
	}
	if !p.at(lexer.ASSIGN) && !p.at(lexer.SEMICOLON) && !p.at(lexer.EOF) && !p.at(lexer.RPAREN) {
		n.Type = p.parseType()
	}
	if p.at(lexer.ASSIGN) {
		p.advance()
		n.X = p.parseExpr()
		for p.at(lexer.COMMA) {
			p.advance()
			n.Results = append(n.Results, &ast.Node{Kind: ast.KindField, Type: p.parseExpr()})
		}
	}
	return n
}

func (p *Parser) parseConstDecl() *ast.Node {
	pos := p.peek().Pos
	p.expect(lexer.CONST)
	if p.at(lexer.LPAREN) {
		p.advance()
		group := p.node(ast.KindConstDecl, pos)
		for !p.at(lexer.RPAREN) && !p.at(lexer.EOF) {
			name := p.expect(lexer.IDENT)
			spec := p.node(ast.KindConstDecl, name.Pos)
			spec.Name = name.Val
			if !p.at(lexer.ASSIGN) && !p.at(lexer.SEMICOLON) {
				spec.Type = p.parseType()
			}
			if p.at(lexer.ASSIGN) {
				p.advance()
				spec.X = p.parseExpr()
			}
			group.Nodes = append(group.Nodes, spec)
			p.skipSemicolon()
		}
		p.expect(lexer.RPAREN)
		p.skipSemicolon()
		return group
	}
	name := p.expect(lexer.IDENT)
	n := p.node(ast.KindConstDecl, pos)
	n.Name = name.Val
	if p.at(lexer.ASSIGN) {
		p.advance()
		n.X = p.parseExpr()
	}
	p.skipSemicolon()
	return n
}

// ---- types ----

func (p *Parser) parseType() *ast.Node {
	switch p.peek().Kind {
	case lexer.IDENT:
		tok := p.advance()
		n := &ast.Node{Kind: ast.KindIdent, Name: tok.Val, Pos: tok.Pos}
		if p.at(lexer.DOT) {
			p.advance()
			name := p.expect(lexer.IDENT)
			n = &ast.Node{Kind: ast.KindSelectorExpr, X: n, Name: name.Val, Pos: tok.Pos}
		}
		return n
	case lexer.STAR:
		pos := p.advance().Pos
		return &ast.Node{Kind: ast.KindPointerType, X: p.parseType(), Pos: pos}
	case lexer.LBRACK:
		return p.parseSliceOrArrayType()
	case lexer.MAP:
		return p.parseMapType()
	case lexer.FUNC:
		return p.parseFuncType()
	case lexer.STRUCT:
		return p.parseStructType()
	case lexer.INTERFACE:
		return p.parseInterfaceType()
	case lexer.CHAN:
		pos := p.advance().Pos
		dir := ast.ChanBoth
		if p.at(lexer.ARROW) {
			p.advance()
			dir = ast.ChanSend
		}
		return &ast.Node{Kind: ast.KindChanType, X: p.parseType(), ChanDir: dir, Pos: pos}
	case lexer.ARROW:
		pos := p.advance().Pos
		p.expect(lexer.CHAN)
		return &ast.Node{Kind: ast.KindChanType, X: p.parseType(), ChanDir: ast.ChanRecv, Pos: pos}
	}
	tok := p.advance()
	p.errorf("expected type, got %s at pos %d", tok, tok.Pos)
	return &ast.Node{Kind: ast.KindIdent, Name: "<error>", Pos: tok.Pos}
}

func (p *Parser) parseSliceOrArrayType() *ast.Node {
	pos := p.peek().Pos
	p.expect(lexer.LBRACK)
	if p.at(lexer.RBRACK) {
		p.advance()
		return &ast.Node{Kind: ast.KindSliceType, X: p.parseType(), Pos: pos}
	}
	lenExpr := p.parseExpr()
	p.expect(lexer.RBRACK)
	return &ast.Node{Kind: ast.KindArrayType, Y: lenExpr, X: p.parseType(), Pos: pos}
}

func (p *Parser) parseMapType() *ast.Node {
	pos := p.peek().Pos
	p.expect(lexer.MAP)
	p.expect(lexer.LBRACK)
	key := p.parseType()
	p.expect(lexer.RBRACK)
	val := p.parseType()
	return &ast.Node{Kind: ast.KindMapType, X: key, Y: val, Pos: pos}
}

func (p *Parser) parseFuncType() *ast.Node {
	pos := p.peek().Pos
	p.expect(lexer.FUNC)
	n := &ast.Node{Kind: ast.KindFuncType, Pos: pos}
	n.Params = p.parseParamList()
	if !p.match(lexer.SEMICOLON, lexer.COMMA, lexer.RPAREN, lexer.LBRACE, lexer.EOF) {
		n.Results = p.parseResultList()
	}
	return n
}

func (p *Parser) parseStructType() *ast.Node {
	pos := p.peek().Pos
	p.expect(lexer.STRUCT)
	p.expect(lexer.LBRACE)
	n := &ast.Node{Kind: ast.KindStructType, Pos: pos}
	for !p.at(lexer.RBRACE) && !p.at(lexer.EOF) {
		f := &ast.Node{Kind: ast.KindField, Pos: p.peek().Pos}
		f.Name = p.expect(lexer.IDENT).Val
		if !p.match(lexer.SEMICOLON, lexer.RBRACE, lexer.EOF) {
			f.Type = p.parseType()
		}
		n.Nodes = append(n.Nodes, f)
		p.skipSemicolon()
	}
	p.expect(lexer.RBRACE)
	return n
}

func (p *Parser) parseInterfaceType() *ast.Node {
	pos := p.peek().Pos
	p.expect(lexer.INTERFACE)
	p.expect(lexer.LBRACE)
	n := &ast.Node{Kind: ast.KindInterfaceType, Pos: pos}
	for !p.at(lexer.RBRACE) && !p.at(lexer.EOF) {
		meth := &ast.Node{Kind: ast.KindFuncDecl, Pos: p.peek().Pos}
		meth.Name = p.expect(lexer.IDENT).Val
		meth.Params = p.parseParamList()
		if !p.match(lexer.SEMICOLON, lexer.RBRACE, lexer.EOF) {
			meth.Results = p.parseResultList()
		}
		n.Nodes = append(n.Nodes, meth)
		p.skipSemicolon()
	}
	p.expect(lexer.RBRACE)
	return n
}

// ---- statements ----

func (p *Parser) parseBlock() *ast.Node {
	pos := p.peek().Pos
	p.expect(lexer.LBRACE)
	b := p.node(ast.KindBlock, pos)
	for !p.at(lexer.RBRACE) && !p.at(lexer.EOF) {
		s := p.parseStmt()
		if s != nil {
			b.Nodes = append(b.Nodes, s)
		}
	}
	p.expect(lexer.RBRACE)
	return b
}

func (p *Parser) parseStmt() *ast.Node {
	switch p.peek().Kind {
	case lexer.IF:
		return p.parseIfStmt()
	case lexer.FOR:
		return p.parseForStmt()
	case lexer.SWITCH:
		return p.parseSwitchStmt()
	case lexer.SELECT:
		return p.parseSelectStmt()
	case lexer.RETURN:
		return p.parseReturnStmt()
	case lexer.VAR:
		return p.parseVarDecl()
	case lexer.CONST:
		return p.parseConstDecl()
	case lexer.GO:
		pos := p.advance().Pos
		call := p.parseExpr()
		p.skipSemicolon()
		return &ast.Node{Kind: ast.KindGo, X: call, Pos: pos}
	case lexer.DEFER:
		pos := p.advance().Pos
		call := p.parseExpr()
		p.skipSemicolon()
		return &ast.Node{Kind: ast.KindDefer, X: call, Pos: pos}
	case lexer.BREAK, lexer.CONTINUE, lexer.FALLTHROUGH, lexer.GOTO:
		return p.parseBranchStmt()
	case lexer.SEMICOLON:
		p.advance()
		return nil
	}
	if p.at(lexer.IDENT) && p.peekAt(1).Kind == lexer.COLON {
		name := p.advance().Val
		p.advance()
		n := p.node(ast.KindLabeled, p.peek().Pos)
		n.Label = name
		n.X = p.parseStmt()
		return n
	}
	return p.parseSimpleStmt()
}

func (p *Parser) parseBranchStmt() *ast.Node {
	tok := p.advance()
	n := p.node(ast.KindBranch, tok.Pos)
	switch tok.Kind {
	case lexer.BREAK:
		n.Branch = ast.BranchBreak
	case lexer.CONTINUE:
		n.Branch = ast.BranchContinue
	case lexer.FALLTHROUGH:
		n.Branch = ast.BranchFallthrough
	case lexer.GOTO:
		n.Branch = ast.BranchGoto
		n.Label = p.expect(lexer.IDENT).Val
	}
	p.skipSemicolon()
	return n
}

func (p *Parser) parseIfStmt() *ast.Node {
	pos := p.peek().Pos
	p.expect(lexer.IF)
	n := p.node(ast.KindIf, pos)

	old := p.noCompLit
	p.noCompLit = true
	initOrCond := p.parseSimpleStmtNoSemicolon()
	p.noCompLit = old

	if p.at(lexer.SEMICOLON) {
		p.advance()
		n.Nodes = append(n.Nodes, initOrCond)
		n.X = p.parseExprNoBrace()
	} else if initOrCond.Kind == ast.KindExprStmt {
		n.X = initOrCond.X
	} else {
		n.X = initOrCond
	}

	n.Body = p.parseBlock()
	if p.at(lexer.ELSE) {
		p.advance()
		if p.at(lexer.IF) {
			n.Else = p.parseIfStmt()
		} else {
			n.Else = p.parseBlock()
		}
	}
	p.skipSemicolon()
	return n
}

func (p *Parser) parseForStmt() *ast.Node {
	pos := p.peek().Pos
	p.expect(lexer.FOR)

	if p.at(lexer.LBRACE) {
		n := p.node(ast.KindFor, pos)
		n.Body = p.parseBlock()
		p.skipSemicolon()
		return n
	}

	if p.at(lexer.RANGE) {
		p.advance()
		n := p.node(ast.KindForRange, pos)
		n.Type = p.parseExprNoBrace()
		n.Body = p.parseBlock()
		p.skipSemicolon()
		return n
	}

	old := p.noCompLit
	p.noCompLit = true
	first := p.parseExprNoBrace()

	if p.at(lexer.COMMA) {
		p.advance()
		second := p.parseExprNoBrace()
		if p.match(lexer.DEFINE, lexer.ASSIGN) {
			p.advance()
			p.expect(lexer.RANGE)
			n := p.node(ast.KindForRange, pos)
			n.X = first
			n.Y = second
			n.Type = p.parseExprNoBrace()
			p.noCompLit = old
			n.Body = p.parseBlock()
			p.skipSemicolon()
			return n
		}
	} else if p.match(lexer.DEFINE, lexer.ASSIGN) {
		save := p.pos
		op := p.advance()
		if p.at(lexer.RANGE) {
			p.advance()
			n := p.node(ast.KindForRange, pos)
			n.X = first
			n.Tok = op.Kind.String()
			n.Type = p.parseExprNoBrace()
			p.noCompLit = old
			n.Body = p.parseBlock()
			p.skipSemicolon()
			return n
		}
		p.pos = save
		p.advance()
		rhs := p.parseExprNoBrace()
		init := &ast.Node{Kind: ast.KindAssign, Tok: op.Kind.String(), X: first, Y: rhs, Pos: first.Pos}
		n := p.node(ast.KindFor, pos)
		n.Nodes = append(n.Nodes, init)
		p.expect(lexer.SEMICOLON)
		if !p.at(lexer.SEMICOLON) {
			n.X = p.parseExprNoBrace()
		}
		p.expect(lexer.SEMICOLON)
		if !p.at(lexer.LBRACE) {
			n.Y = p.parseSimpleStmtNoSemicolon()
		}
		p.noCompLit = old
		n.Body = p.parseBlock()
		p.skipSemicolon()
		return n
	} else if p.at(lexer.SEMICOLON) {
		init := &ast.Node{Kind: ast.KindExprStmt, X: first, Pos: first.Pos}
		n := p.node(ast.KindFor, pos)
		n.Nodes = append(n.Nodes, init)
		p.advance()
		if !p.at(lexer.SEMICOLON) {
			n.X = p.parseExprNoBrace()
		}
		p.expect(lexer.SEMICOLON)
		if !p.at(lexer.LBRACE) {
			n.Y = p.parseSimpleStmtNoSemicolon()
		}
		p.noCompLit = old
		n.Body = p.parseBlock()
		p.skipSemicolon()
		return n
	}

	p.noCompLit = old
	n := p.node(ast.KindFor, pos)
	n.X = first
	n.Body = p.parseBlock()
	p.skipSemicolon()
	return n
}

func (p *Parser) parseSwitchStmt() *ast.Node {
	pos := p.peek().Pos
	p.expect(lexer.SWITCH)

	var init, tag *ast.Node
	isTypeSwitch := false
	var typeSwitchVar string

	if !p.at(lexer.LBRACE) {
		old := p.noCompLit
		p.noCompLit = true
		first := p.parseSimpleStmtNoSemicolon()
		p.noCompLit = old
		if p.at(lexer.SEMICOLON) {
			p.advance()
			init = first
			if !p.at(lexer.LBRACE) {
				tag = p.parseTypeSwitchGuard(&isTypeSwitch, &typeSwitchVar)
			}
		} else {
			tag = p.simpleStmtToExprOrGuard(first, &isTypeSwitch, &typeSwitchVar)
		}
	}

	kind := ast.KindSwitch
	if isTypeSwitch {
		kind = ast.KindTypeSwitch
	}
	n := p.node(kind, pos)
	if init != nil {
		n.Nodes = append(n.Nodes, init)
	}
	n.Y = tag
	n.Label = typeSwitchVar

	p.expect(lexer.LBRACE)
	for !p.at(lexer.RBRACE) && !p.at(lexer.EOF) {
		n.Nodes = append(n.Nodes, p.parseCaseClause())
	}
	p.expect(lexer.RBRACE)
	p.skipSemicolon()
	return n
}

// simpleStmtToExprOrGuard reinterprets a parsed simple statement as a
// plain tag expression, or detects the "x := y.(type)" / "y.(type)"
// type-switch guard shape.
func (p *Parser) simpleStmtToExprOrGuard(stmt *ast.Node, isType *bool, varName *string) *ast.Node {
	if stmt.Kind == ast.KindAssign && stmt.Tok == lexer.DEFINE.String() && stmt.Y != nil && stmt.Y.Kind == ast.KindTypeAssertExpr && stmt.Y.Type == nil {
		*isType = true
		*varName = stmt.X.Name
		return stmt.Y.X
	}
	if stmt.Kind == ast.KindExprStmt && stmt.X.Kind == ast.KindTypeAssertExpr && stmt.X.Type == nil {
		*isType = true
		return stmt.X.X
	}
	if stmt.Kind == ast.KindExprStmt {
		return stmt.X
	}
	return stmt
}

func (p *Parser) parseTypeSwitchGuard(isType *bool, varName *string) *ast.Node {
	old := p.noCompLit
	p.noCompLit = true
	first := p.parseSimpleStmtNoSemicolon()
	p.noCompLit = old
	return p.simpleStmtToExprOrGuard(first, isType, varName)
}

func (p *Parser) parseCaseClause() *ast.Node {
	pos := p.peek().Pos
	n := p.node(ast.KindCase, pos)
	if p.at(lexer.CASE) {
		p.advance()
		n.Nodes = append(n.Nodes, p.parseCaseExprOrType())
		for p.at(lexer.COMMA) {
			p.advance()
			n.Nodes = append(n.Nodes, p.parseCaseExprOrType())
		}
	} else {
		p.expect(lexer.DEFAULT)
		n.Name = "default"
	}
	p.expect(lexer.COLON)
	var stmts []*ast.Node
	for !p.match(lexer.CASE, lexer.DEFAULT, lexer.RBRACE) && !p.at(lexer.EOF) {
		s := p.parseStmt()
		if s != nil {
			stmts = append(stmts, s)
		}
	}
	if len(stmts) > 0 {
		n.Body = &ast.Node{Kind: ast.KindBlock, Nodes: stmts, Pos: pos}
	}
	return n
}

func (p *Parser) parseCaseExprOrType() *ast.Node {
	if p.isTypeStart() {
		return p.parseType()
	}
	return p.parseExpr()
}

func (p *Parser) isTypeStart() bool {
	switch p.peek().Kind {
	case lexer.STAR, lexer.LBRACK, lexer.MAP, lexer.FUNC, lexer.STRUCT, lexer.INTERFACE, lexer.CHAN:
		return true
	case lexer.NIL:
		return false
	}
	return false
}

func (p *Parser) parseSelectStmt() *ast.Node {
	pos := p.peek().Pos
	p.expect(lexer.SELECT)
	p.expect(lexer.LBRACE)
	n := p.node(ast.KindSelect, pos)
	for !p.at(lexer.RBRACE) && !p.at(lexer.EOF) {
		n.Nodes = append(n.Nodes, p.parseCommClause())
	}
	p.expect(lexer.RBRACE)
	p.skipSemicolon()
	return n
}

func (p *Parser) parseCommClause() *ast.Node {
	pos := p.peek().Pos
	n := p.node(ast.KindCommClause, pos)
	if p.at(lexer.DEFAULT) {
		p.advance()
		n.Comm = ast.CommDefault
	} else {
		p.expect(lexer.CASE)
		old := p.noCompLit
		p.noCompLit = true
		stmt := p.parseSimpleStmtNoSemicolon()
		p.noCompLit = old
		switch {
		case stmt.Kind == ast.KindExprStmt && stmt.X.Kind == ast.KindBinaryExpr && stmt.X.Tok == lexer.ARROW.String():
			n.Comm = ast.CommSend
			n.X = stmt.X.X
			n.Y = stmt.X.Y
		case stmt.Kind == ast.KindAssign && len(stmt.Nodes) == 2:
			n.Comm = ast.CommRecvCommaOk
			n.X = stmt.Nodes[0]
			n.Else = stmt.Nodes[1]
			n.Y = stmt.Y
			n.Tok = stmt.Tok
		case stmt.Kind == ast.KindAssign:
			n.Comm = ast.CommRecv
			n.X = stmt.X
			n.Y = stmt.Y
			n.Tok = stmt.Tok
		default:
			n.Comm = ast.CommRecv
			n.Y = stmt.X
		}
	}
	p.expect(lexer.COLON)
	var stmts []*ast.Node
	for !p.match(lexer.CASE, lexer.DEFAULT, lexer.RBRACE) && !p.at(lexer.EOF) {
		s := p.parseStmt()
		if s != nil {
			stmts = append(stmts, s)
		}
	}
	if len(stmts) > 0 {
		n.Body = &ast.Node{Kind: ast.KindBlock, Nodes: stmts, Pos: pos}
	}
	return n
}

func (p *Parser) parseReturnStmt() *ast.Node {
	pos := p.peek().Pos
	p.expect(lexer.RETURN)
	n := p.node(ast.KindReturn, pos)
	if !p.match(lexer.SEMICOLON, lexer.RBRACE, lexer.EOF) {
		n.X = p.parseExpr()
		for p.at(lexer.COMMA) {
			p.advance()
			n.Nodes = append(n.Nodes, p.parseExpr())
		}
	}
	p.skipSemicolon()
	return n
}

var compoundAssignOps = map[lexer.Kind]bool{
	lexer.ASSIGN: true, lexer.DEFINE: true,
	lexer.PLUS_ASSIGN: true, lexer.MINUS_ASSIGN: true, lexer.STAR_ASSIGN: true,
	lexer.SLASH_ASSIGN: true, lexer.PERCENT_ASSIGN: true, lexer.AMP_ASSIGN: true,
	lexer.PIPE_ASSIGN: true, lexer.CARET_ASSIGN: true, lexer.SHL_ASSIGN: true,
	lexer.SHR_ASSIGN: true, lexer.ANDNOT_ASSIGN: true,
}

func (p *Parser) parseSimpleStmt() *ast.Node {
	n := p.parseSimpleStmtNoSemicolon()
	p.skipSemicolon()
	return n
}

func (p *Parser) parseSimpleStmtNoSemicolon() *ast.Node {
	expr := p.parseExpr()

	if p.match(lexer.INC, lexer.DEC) {
		tok := p.advance()
		return &ast.Node{Kind: ast.KindIncDec, X: expr, Tok: tok.Kind.String(), Pos: expr.Pos}
	}

	if compoundAssignOps[p.peek().Kind] {
		op := p.advance()
		rhs := p.parseExpr()
		return &ast.Node{Kind: ast.KindAssign, Tok: op.Kind.String(), X: expr, Y: rhs, Pos: expr.Pos}
	}

	if p.at(lexer.COMMA) {
		lhs := []*ast.Node{expr}
		for p.at(lexer.COMMA) {
			p.advance()
			lhs = append(lhs, p.parseExpr())
		}
		if p.match(lexer.ASSIGN, lexer.DEFINE) {
			op := p.advance()
			rhs := p.parseExpr()
			n := &ast.Node{Kind: ast.KindAssign, Tok: op.Kind.String(), Y: rhs, Pos: expr.Pos}
			for p.at(lexer.COMMA) {
				p.advance()
				n.Results = append(n.Results, &ast.Node{Kind: ast.KindField, Type: p.parseExpr()})
			}
			n.Nodes = lhs
			return n
		}
	}

	return &ast.Node{Kind: ast.KindExprStmt, X: expr, Pos: expr.Pos}
}

// ---- expressions ----

func (p *Parser) parseExpr() *ast.Node { return p.parseBinaryExpr(1) }

func (p *Parser) parseExprNoBrace() *ast.Node {
	old := p.noCompLit
	p.noCompLit = true
	e := p.parseExpr()
	p.noCompLit = old
	return e
}

func precedence(k lexer.Kind) int {
	switch k {
	case lexer.LOR:
		return 1
	case lexer.LAND:
		return 2
	case lexer.EQ, lexer.NEQ, lexer.LT, lexer.GT, lexer.LEQ, lexer.GEQ:
		return 3
	case lexer.PLUS, lexer.MINUS, lexer.PIPE, lexer.CARET:
		return 4
	case lexer.STAR, lexer.SLASH, lexer.PERCENT, lexer.AMP, lexer.SHL, lexer.SHR, lexer.ANDNOT:
		return 5
	case lexer.ARROW:
		return 4
	}
	return 0
}

func (p *Parser) parseBinaryExpr(minPrec int) *ast.Node {
	left := p.parseUnaryExpr()
	for {
		prec := precedence(p.peek().Kind)
		if prec < minPrec {
			break
		}
		op := p.advance()
		right := p.parseBinaryExpr(prec + 1)
		left = &ast.Node{Kind: ast.KindBinaryExpr, Tok: op.Kind.String(), X: left, Y: right, Pos: left.Pos}
	}
	return left
}

func (p *Parser) parseUnaryExpr() *ast.Node {
	switch p.peek().Kind {
	case lexer.NOT, lexer.MINUS, lexer.CARET, lexer.PLUS, lexer.STAR, lexer.AMP:
		op := p.advance()
		return &ast.Node{Kind: ast.KindUnaryExpr, Tok: op.Kind.String(), X: p.parseUnaryExpr(), Pos: op.Pos}
	case lexer.ARROW:
		op := p.advance()
		return &ast.Node{Kind: ast.KindUnaryExpr, Tok: "<-", X: p.parseUnaryExpr(), Pos: op.Pos}
	}
	return p.parsePrimaryExpr()
}

func (p *Parser) parsePrimaryExpr() *ast.Node {
	var n *ast.Node
	switch p.peek().Kind {
	case lexer.IDENT:
		tok := p.advance()
		if tok.Val == "_" {
			n = &ast.Node{Kind: ast.KindBlank, Name: "_", Pos: tok.Pos}
		} else {
			n = &ast.Node{Kind: ast.KindIdent, Name: tok.Val, Pos: tok.Pos}
		}
	case lexer.INT:
		tok := p.advance()
		n = &ast.Node{Kind: ast.KindIntLit, StrVal: tok.Val, Pos: tok.Pos}
		n.IntVal, _ = strconv.ParseInt(tok.Val, 0, 64)
	case lexer.FLOAT:
		tok := p.advance()
		n = &ast.Node{Kind: ast.KindFloatLit, StrVal: tok.Val, Pos: tok.Pos}
		n.FloatVal, _ = strconv.ParseFloat(tok.Val, 64)
	case lexer.STRING:
		tok := p.advance()
		n = &ast.Node{Kind: ast.KindStringLit, StrVal: tok.Val, Pos: tok.Pos}
	case lexer.RUNE:
		tok := p.advance()
		n = &ast.Node{Kind: ast.KindRuneLit, StrVal: tok.Val, Pos: tok.Pos}
		if r, _, _, err := strconv.UnquoteChar(tok.Val, '\''); err == nil {
			n.IntVal = int64(r)
		}
	case lexer.TRUE, lexer.FALSE:
		tok := p.advance()
		n = &ast.Node{Kind: ast.KindBoolLit, BoolVal: tok.Kind == lexer.TRUE, Pos: tok.Pos}
	case lexer.NIL:
		tok := p.advance()
		n = &ast.Node{Kind: ast.KindNilLit, Pos: tok.Pos}
	case lexer.IOTA:
		tok := p.advance()
		n = &ast.Node{Kind: ast.KindIdent, Name: "iota", Pos: tok.Pos}
	case lexer.LPAREN:
		p.advance()
		n = p.parseExpr()
		p.expect(lexer.RPAREN)
	case lexer.LBRACK:
		n = p.parseSliceOrArrayType()
	case lexer.MAP:
		n = p.parseMapType()
	case lexer.CHAN:
		n = p.parseType()
	case lexer.FUNC:
		n = p.parseFuncType()
		if p.at(lexer.LBRACE) {
			n = &ast.Node{Kind: ast.KindFuncLit, Type: n, Params: n.Params, Results: n.Results, Body: p.parseBlock(), Pos: n.Pos}
		}
	case lexer.STRUCT:
		n = p.parseStructType()
	default:
		tok := p.advance()
		p.errorf("unexpected token in expression: %s at pos %d", tok, tok.Pos)
		return &ast.Node{Kind: ast.KindIdent, Name: "<error>", Pos: tok.Pos}
	}
	return p.parsePostfixOps(n)
}

func (p *Parser) isTypeLikeNode(n *ast.Node) bool {
	switch n.Kind {
	case ast.KindIdent, ast.KindSliceType, ast.KindArrayType, ast.KindMapType, ast.KindPointerType, ast.KindStructType, ast.KindSelectorExpr:
		return true
	}
	return false
}

func (p *Parser) parsePostfixOps(n *ast.Node) *ast.Node {
	for {
		switch p.peek().Kind {
		case lexer.DOT:
			p.advance()
			if p.at(lexer.LPAREN) {
				p.advance()
				if p.at(lexer.TYPE) {
					p.advance()
					n = &ast.Node{Kind: ast.KindTypeAssertExpr, X: n, Pos: n.Pos}
				} else {
					t := p.parseType()
					n = &ast.Node{Kind: ast.KindTypeAssertExpr, X: n, Type: t, Pos: n.Pos}
				}
				p.expect(lexer.RPAREN)
				continue
			}
			name := p.expect(lexer.IDENT)
			n = &ast.Node{Kind: ast.KindSelectorExpr, X: n, Name: name.Val, Pos: n.Pos}
		case lexer.LPAREN:
			p.advance()
			call := &ast.Node{Kind: ast.KindCallExpr, X: n, Pos: n.Pos}
			for !p.at(lexer.RPAREN) && !p.at(lexer.EOF) {
				arg := p.parseExpr()
				if p.at(lexer.ELLIPSIS) {
					p.advance()
					call.Variadic = true
				}
				call.Nodes = append(call.Nodes, arg)
				if p.at(lexer.COMMA) {
					p.advance()
				}
			}
			p.expect(lexer.RPAREN)
			n = call
		case lexer.LBRACK:
			p.advance()
			var lo *ast.Node
			if !p.at(lexer.COLON) {
				lo = p.parseExpr()
			}
			if p.at(lexer.COLON) {
				p.advance()
				var hi, maxN *ast.Node
				if !p.match(lexer.RBRACK, lexer.COLON) {
					hi = p.parseExpr()
				}
				if p.at(lexer.COLON) {
					p.advance()
					maxN = p.parseExpr()
				}
				p.expect(lexer.RBRACK)
				n = &ast.Node{Kind: ast.KindSliceExpr, X: n, Y: lo, Body: hi, Type: maxN, Pos: n.Pos}
			} else {
				p.expect(lexer.RBRACK)
				n = &ast.Node{Kind: ast.KindIndexExpr, X: n, Y: lo, Pos: n.Pos}
			}
		case lexer.LBRACE:
			if !p.noCompLit && p.isTypeLikeNode(n) {
				n = p.parseCompositeLit(n)
			} else {
				return n
			}
		default:
			return n
		}
	}
}

func (p *Parser) parseCompositeLit(typeNode *ast.Node) *ast.Node {
	pos := typeNode.Pos
	p.expect(lexer.LBRACE)
	n := &ast.Node{Kind: ast.KindCompositeLit, Type: typeNode, Pos: pos}
	for !p.at(lexer.RBRACE) && !p.at(lexer.EOF) {
		var val *ast.Node
		if p.at(lexer.LBRACE) {
			val = p.parseCompositeLit(nil)
		} else {
			val = p.parseExpr()
		}
		if p.at(lexer.COLON) {
			p.advance()
			var v *ast.Node
			if p.at(lexer.LBRACE) {
				v = p.parseCompositeLit(nil)
			} else {
				v = p.parseExpr()
			}
			n.Nodes = append(n.Nodes, &ast.Node{Kind: ast.KindKeyValue, X: val, Y: v, Pos: val.Pos})
		} else {
			n.Nodes = append(n.Nodes, val)
		}
		if p.at(lexer.COMMA) {
			p.advance()
		}
	}
	p.expect(lexer.RBRACE)
	return n
}
