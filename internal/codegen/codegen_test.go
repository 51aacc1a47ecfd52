package codegen_test

import (
	"testing"

	"github.com/corestack/govm/internal/codegen"
	"github.com/corestack/govm/internal/instr"
	"github.com/corestack/govm/internal/meta"
	"github.com/corestack/govm/internal/parser"
	"github.com/corestack/govm/internal/sema"
	"github.com/corestack/govm/internal/typelookup"
)

func compile(t *testing.T, src string) *instr.Module {
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
	mod, gerrs := codegen.NewCompiler(reg, bridge).CompilePackage(file, info)
	if len(gerrs) > 0 {
		t.Fatalf("codegen error: %v", gerrs)
	}
	return mod
}

// TestEntryPointsAtMain guards against the Module.Entry/main wiring bug:
// a package declaring func main must compile with Entry pointing at it,
// not at the package constructor.
func TestEntryPointsAtMain(t *testing.T) {
	mod := compile(t, `package main

func main() {
	x := 1
	_ = x
}
`)
	fn := mod.Func(mod.Entry)
	if fn.Name != "main" {
		t.Fatalf("Module.Entry points at %q, want \"main\"", fn.Name)
	}
}

// TestJumpTargetsInBounds is a structural check that every branch/loop
// a program can produce compiles to jump instructions whose patched
// Index lands inside the owning function's own instruction stream.
func TestJumpTargetsInBounds(t *testing.T) {
	mod := compile(t, `package main

func classify(n int) int {
	if n < 0 {
		return -1
	} else if n == 0 {
		return 0
	}
	total := 0
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			continue
		}
		total += i
	}
	return total
}

func main() {
	classify(10)
}
`)
	for _, fn := range mod.Funcs {
		checkJumps(t, fn)
	}
}

func checkJumps(t *testing.T, fn *instr.FunctionObject) {
	t.Helper()
	n := len(fn.Code)
	for pc, in := range fn.Code {
		switch in.Op {
		case instr.OpJmp, instr.OpJmpIfTrue, instr.OpJmpIfFalse:
			target := int(in.Index)
			if target < 0 || target > n {
				t.Errorf("func %s: instruction %d (%s) jumps to out-of-range target %d (len=%d)", fn.Name, pc, in.Op, target, n)
			}
		}
	}
}
