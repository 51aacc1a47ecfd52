package main

import (
	"fmt"
	"os"

	"github.com/corestack/govm/internal/codegen"
	"github.com/corestack/govm/internal/iface"
	"github.com/corestack/govm/internal/instr"
	"github.com/corestack/govm/internal/meta"
	"github.com/corestack/govm/internal/parser"
	"github.com/corestack/govm/internal/sema"
	"github.com/corestack/govm/internal/typelookup"
)

// compileResult carries everything one VM run needs alongside the
// compiled module: the same registry and interface table the code
// generator built the module against, since a VM constructed with a
// mismatched pair would resolve meta.Keys and iface.Table indices
// against the wrong tables.
type compileResult struct {
	mod   *instr.Module
	reg   *meta.Registry
	table *iface.Table
}

// compileFile runs the whole parse -> sema -> codegen pipeline over
// one source file. This front end has no multi-file package merging,
// so a package is always exactly one file.
func compileFile(path string) (*compileResult, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	file, perrs := parser.Parse(src)
	if len(perrs) > 0 {
		return nil, fmt.Errorf("parse error: %s", perrs[0])
	}

	reg := meta.NewRegistry()
	checker := sema.NewChecker(reg)
	info, cerrs := checker.Check(file)
	if len(cerrs) > 0 {
		return nil, fmt.Errorf("type error: %s", cerrs[0])
	}

	bridge := typelookup.New(info, reg)
	compiler := codegen.NewCompiler(reg, bridge)
	mod, gerrs := compiler.CompilePackage(file, info)
	if len(gerrs) > 0 {
		return nil, fmt.Errorf("codegen error: %s", gerrs[0])
	}

	return &compileResult{mod: mod, reg: reg, table: compiler.Iface}, nil
}
