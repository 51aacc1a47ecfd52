package parser_test

import (
	"testing"

	"github.com/corestack/govm/internal/ast"
	"github.com/corestack/govm/internal/parser"
)

func TestParseAcceptsMinimalProgram(t *testing.T) {
	file, errs := parser.Parse([]byte(`package main

func main() {
	x := 1
	_ = x
}
`))
	if len(errs) != 0 {
		t.Fatalf("unexpected parse errors: %v", errs)
	}
	if file == nil {
		t.Fatal("expected a non-nil file node")
	}
}

func TestParseReportsErrorOnMissingPackageClause(t *testing.T) {
	_, errs := parser.Parse([]byte(`func main() {}`))
	if len(errs) == 0 {
		t.Fatal("expected a parse error for a file missing its package clause")
	}
}

func TestParseFindsTopLevelFuncDecl(t *testing.T) {
	file, errs := parser.Parse([]byte(`package main

func main() {}
`))
	if len(errs) != 0 {
		t.Fatalf("unexpected parse errors: %v", errs)
	}
	found := false
	for _, n := range file.Nodes {
		if n.Kind == ast.KindFuncDecl && n.Name == "main" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected to find a top-level FuncDecl named main")
	}
}
