package sema_test

import (
	"testing"

	"github.com/corestack/govm/internal/meta"
	"github.com/corestack/govm/internal/parser"
	"github.com/corestack/govm/internal/sema"
)

func check(t *testing.T, src string) (*sema.Info, []string) {
	t.Helper()
	file, perrs := parser.Parse([]byte(src))
	if len(perrs) > 0 {
		t.Fatalf("parse error: %v", perrs)
	}
	reg := meta.NewRegistry()
	return sema.NewChecker(reg).Check(file)
}

func TestCheckAcceptsWellTypedProgram(t *testing.T) {
	_, errs := check(t, `package main

func add(a, b int) int {
	return a + b
}

func main() {
	x := add(1, 2)
	_ = x
}
`)
	if len(errs) != 0 {
		t.Fatalf("unexpected type errors: %v", errs)
	}
}

func TestCheckRejectsUndeclaredIdentifier(t *testing.T) {
	_, errs := check(t, `package main

func main() {
	x := y + 1
	_ = x
}
`)
	if len(errs) == 0 {
		t.Fatal("expected a type error for undeclared identifier y, got none")
	}
}

func TestCheckPopulatesTupleTypeForMultiResultCall(t *testing.T) {
	info, errs := check(t, `package main

func divmod(a, b int) (int, int) {
	return a / b, a % b
}

func main() {
	q, r := divmod(17, 5)
	_ = q
	_ = r
}
`)
	if len(errs) != 0 {
		t.Fatalf("unexpected type errors: %v", errs)
	}
	found := false
	for _, tup := range info.TupleType {
		if len(tup) == 2 {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a 2-element TupleType entry for the divmod call")
	}
}
