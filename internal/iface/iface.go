// Package iface implements the interface coercion table: interning
// (interface type, concrete type) pairs into a dense index. The code
// generator emits the index with OpIfaceBox and the interpreter stores
// it in the boxed interface value; method calls through BindMethod use
// the function key resolved at code generation time. Follows the
// same structural-interning approach internal/meta uses for its own
// type descriptors, applied here to the (iface, concrete) pair domain.
package iface

import "github.com/corestack/govm/internal/meta"

// Entry is one interned coercion: boxing a value whose concrete type
// is Concrete into an interface typed Iface.
type Entry struct {
	Iface    meta.Key
	Concrete meta.Key
	// Methods maps the interface's method-set order to the concrete
	// type's FunctionKey implementing each one, resolved once here so
	// OpIfaceBox never needs to re-walk the method table.
	Methods []int64
}

// Table interns coercion pairs the way internal/meta interns composite
// type shapes: structurally equal (iface,concrete) pairs collapse to
// one index, so two call sites boxing the same concrete type into the
// same interface share a coercion-table slot.
type Table struct {
	entries []Entry
	index   map[[2]meta.Key]int32
}

func NewTable() *Table {
	return &Table{index: make(map[[2]meta.Key]int32)}
}

// Intern registers (or reuses) a coercion pair, resolving the concrete
// type's methods against the interface's method set via the registry.
// Panics (ICE) if the concrete type does not actually implement every
// method in the interface — the type-checker oracle (internal/sema)
// must reject the program before codegen reaches this call.
func (t *Table) Intern(reg *meta.Registry, ifaceKey, concreteKey meta.Key) int32 {
	k := [2]meta.Key{ifaceKey, concreteKey}
	if idx, ok := t.index[k]; ok {
		return idx
	}
	ifaceMeta := reg.Get(ifaceKey)
	methods := make([]int64, 0, len(ifaceMeta.MethodSet))
	for _, name := range ifaceMeta.MethodSet {
		m, ok := reg.MethodLookup(concreteKey, name)
		if !ok {
			panic("ICE: iface: concrete type missing method " + name + " required by interface")
		}
		methods = append(methods, m.Func)
	}
	idx := int32(len(t.entries))
	t.entries = append(t.entries, Entry{Iface: ifaceKey, Concrete: concreteKey, Methods: methods})
	t.index[k] = idx
	return idx
}

// Get returns the interned coercion entry by its table index.
func (t *Table) Get(idx int32) Entry {
	if idx < 0 || int(idx) >= len(t.entries) {
		panic("ICE: iface: unknown coercion index")
	}
	return t.entries[idx]
}

// Len reports how many distinct coercions have been interned,
// primarily useful to tests asserting dedup behavior.
func (t *Table) Len() int { return len(t.entries) }
