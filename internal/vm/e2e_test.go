package vm_test

import (
	"testing"

	"github.com/corestack/govm/internal/codegen"
	"github.com/corestack/govm/internal/meta"
	"github.com/corestack/govm/internal/parser"
	"github.com/corestack/govm/internal/sema"
	"github.com/corestack/govm/internal/typelookup"
	"github.com/corestack/govm/internal/value"
	"github.com/corestack/govm/internal/vm"
)

// compileAndRun drives the whole pipeline (parse -> sema -> codegen ->
// interpret) the same way cmd/govmc's run subcommand does, wrapping
// src's body into a package main / func main so each scenario below
// can be written as bare statements.
func compileAndRun(t *testing.T, body string) []value.Value {
	t.Helper()
	src := "package main\n\nfunc main() {\n" + body + "\n}\n"
	return compileAndRunSrc(t, src)
}

func compileAndRunSrc(t *testing.T, src string) []value.Value {
	t.Helper()
	file, perrs := parser.Parse([]byte(src))
	if len(perrs) > 0 {
		t.Fatalf("parse error: %v", perrs)
	}
	reg := meta.NewRegistry()
	checker := sema.NewChecker(reg)
	info, cerrs := checker.Check(file)
	if len(cerrs) > 0 {
		t.Fatalf("type error: %v", cerrs)
	}
	bridge := typelookup.New(info, reg)
	compiler := codegen.NewCompiler(reg, bridge)
	mod, gerrs := compiler.CompilePackage(file, info)
	if len(gerrs) > 0 {
		t.Fatalf("codegen error: %v", gerrs)
	}
	interp := vm.New(mod, reg, compiler.Iface)
	results, err := interp.Run()
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	return results
}

// Scenario 1: x := 40; x += 2; return x -> Int(42).
func TestScenarioCompoundAssign(t *testing.T) {
	results := compileAndRun(t, `
	x := 40
	x += 2
	return x
`)
	if len(results) != 1 || results[0].Int64() != 42 {
		t.Fatalf("got %v, want [Int(42)]", results)
	}
}

// Scenario 2: a, b := 1, 2; a, b = b, a; return a, b -> (Int(2), Int(1)).
func TestScenarioSimultaneousAssign(t *testing.T) {
	results := compileAndRun(t, `
	a, b := 1, 2
	a, b = b, a
	return a, b
`)
	if len(results) != 2 || results[0].Int64() != 2 || results[1].Int64() != 1 {
		t.Fatalf("got %v, want [Int(2) Int(1)]", results)
	}
}

// A function declaring two results, unpacked at its call site via
// `a, b := f()` rather than the comma-ok sugar — exercises
// compileMultiResultCallAssign directly.
func TestMultiResultFunctionCallAssign(t *testing.T) {
	src := `package main

func divmod(a, b int) (int, int) {
	return a / b, a % b
}

func main() {
	q, r := divmod(17, 5)
	return q, r
}
`
	results := compileAndRunSrc(t, src)
	if len(results) != 2 || results[0].Int64() != 3 || results[1].Int64() != 2 {
		t.Fatalf("got %v, want [Int(3) Int(2)]", results)
	}
}

// Scenario 3: comma-ok assignment into a fresh map entry.
func TestScenarioMapCommaOkAssign(t *testing.T) {
	src := `package main

func f() int { return 7 }

func main() {
	m := map[string]int{}
	var ok bool
	m["k"], ok = f(), true
	if ok {
		return m["k"]
	}
	return -1
}
`
	results := compileAndRunSrc(t, src)
	if len(results) != 1 || results[0].Int64() != 7 {
		t.Fatalf("got %v, want [Int(7)]", results)
	}
}

// Scenario 4: failed interface type assertion leaves the zero value
// and ok == false.
func TestScenarioFailedTypeAssertion(t *testing.T) {
	results := compileAndRun(t, `
	var i interface{} = 3
	s, ok := i.(string)
	if ok {
		return 1
	}
	if s != "" {
		return 2
	}
	return 0
`)
	if len(results) != 1 || results[0].Int64() != 0 {
		t.Fatalf("got %v, want [Int(0)]", results)
	}
}

// Scenario 5: buffered channel send followed by a select that fires
// the ready receive clause over the default.
func TestScenarioSelectPrefersReadyRecv(t *testing.T) {
	results := compileAndRun(t, `
	ch := make(chan int, 1)
	ch <- 5
	select {
	case v := <-ch:
		return v
	default:
		return -1
	}
`)
	if len(results) != 1 || results[0].Int64() != 5 {
		t.Fatalf("got %v, want [Int(5)]", results)
	}
}

// Scenario 6: a closure captures its enclosing local by reference;
// three successive calls accumulate across calls.
func TestScenarioClosureUpvalueByReference(t *testing.T) {
	src := `package main

func adder(n int) func() int {
	s := 0
	return func() int {
		s += n
		return s
	}
}

func main() {
	add := adder(2)
	a := add()
	b := add()
	c := add()
	return a, b, c
}
`
	results := compileAndRunSrc(t, src)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3: %v", len(results), results)
	}
	want := []int64{2, 4, 6}
	for i, w := range want {
		if results[i].Int64() != w {
			t.Fatalf("call %d: got %d, want %d (full: %v)", i+1, results[i].Int64(), w, results)
		}
	}
}
