// Package meta implements the metadata registry: interned type
// descriptors for every type the runtime can hold a value of, plus
// field/method lookup.
package meta

import "github.com/corestack/govm/internal/value"

// Key is an opaque interned handle to a Metadata entry. The zero Key is
// never valid; registries hand out Key(1) and up.
type Key int

// Category narrows how a composite literal should be interpreted when
// its element type is not explicit in source (array vs slice).
type Category int

const (
	CatDefault Category = iota
	CatArray
	CatSliceOrArray
)

// Kind discriminates the shape of a Metadata entry.
type Kind int

const (
	KindBasic Kind = iota
	KindArray
	KindSliceOrArray
	KindMap
	KindStruct
	KindSignature
	KindNamed
	KindInterface
	KindChannel
	KindPointer
	KindUnsafePointer
)

// Field describes one struct field: name, type, and declaration tag.
type Field struct {
	Name string
	Type Key
	Tag  string
}

// Method is a name bound to the FunctionKey that implements it. The
// function key type lives in internal/instr but is represented here as
// a plain int64 to avoid an import cycle (instr.FunctionKey is
// source-compatible with int64).
type Method struct {
	Name string
	Func int64
	// PtrRecv is true when the method's receiver is a pointer type —
	// needed by the code generator to decide whether a value receiver
	// must be addressed before BIND_METHOD.
	PtrRecv bool
}

// Metadata is one interned type descriptor. Only the fields relevant
// to Kind are populated; the rest stay zero.
type Metadata struct {
	Kind Kind
	Self Key

	// KindBasic
	Basic value.Type

	// KindArray / KindSliceOrArray / KindPointer / KindChannel
	Elem Key
	Len  int
	Dir  ChanDir

	// KindMap
	Key Key
	Val Key

	// KindStruct
	Fields  []Field
	nameIdx map[string]int

	// KindSignature
	Params   []Key
	Results  []Key
	Variadic bool
	Recv     Key

	// KindNamed
	Underlying Key
	TypeName   string
	PkgPath    string
	methods    map[string]*Method
	methodOrd  []string

	// KindInterface
	MethodSet []string
}

// ChanDir mirrors ast.ChanDir without importing the ast package (meta
// must stay below ast/sema in the dependency graph).
type ChanDir int

const (
	ChanBoth ChanDir = iota
	ChanSend
	ChanRecv
)

// Registry interns Metadata entries and answers structural queries
// against them. It is write-once after code generation completes.
type Registry struct {
	entries []*Metadata
	basic   map[value.Type]Key
	// structural interning: two array/slice/map/pointer/channel
	// descriptors with identical shape collapse to one Key.
	arrays    map[[2]int]Key // [elem,len] (len=-1 for slice)
	pointers  map[Key]Key
	maps      map[[2]Key]Key
	chans     map[[2]int]Key // [elem, dir]
	ifaces    map[string]Key // canonical method-set signature
	named     map[string]Key // qualified type name
}

func NewRegistry() *Registry {
	r := &Registry{
		basic:    make(map[value.Type]Key),
		arrays:   make(map[[2]int]Key),
		pointers: make(map[Key]Key),
		maps:     make(map[[2]Key]Key),
		chans:    make(map[[2]int]Key),
		ifaces:   make(map[string]Key),
		named:    make(map[string]Key),
	}
	for _, t := range []value.Type{
		value.Nil, value.Bool, value.Int, value.Int8, value.Int16, value.Int32, value.Int64,
		value.Uint, value.UintPtr, value.Uint8, value.Uint16, value.Uint32, value.Uint64,
		value.Float32, value.Float64, value.Complex64, value.Complex128, value.Str,
	} {
		r.intern(&Metadata{Kind: KindBasic, Basic: t})
		r.basic[t] = Key(len(r.entries))
	}
	return r
}

func (r *Registry) intern(m *Metadata) Key {
	r.entries = append(r.entries, m)
	k := Key(len(r.entries))
	m.Self = k
	return k
}

// Get returns the Metadata behind a Key. Panics (ICE) on an unknown key
// — every Key in a well-formed program was handed out by this registry.
func (r *Registry) Get(k Key) *Metadata {
	if k <= 0 || int(k) > len(r.entries) {
		panic("ICE: meta: unknown key")
	}
	return r.entries[k-1]
}

// Basic returns the interned descriptor for a scalar ValueType.
func (r *Registry) Basic(t value.Type) Key {
	k, ok := r.basic[t]
	if !ok {
		panic("ICE: meta: not a basic type")
	}
	return k
}

// Array interns (or reuses) an [N]Elem array descriptor.
func (r *Registry) Array(elem Key, length int) Key {
	k := [2]int{int(elem), length}
	if existing, ok := r.arrays[k]; ok {
		return existing
	}
	key := r.intern(&Metadata{Kind: KindArray, Elem: elem, Len: length})
	r.arrays[k] = key
	return key
}

// SliceOrArray interns a shape used for literals whose array-vs-slice
// nature is supplied by surrounding context.
func (r *Registry) SliceOrArray(elem Key) Key {
	k := [2]int{int(elem), -1}
	if existing, ok := r.arrays[k]; ok {
		return existing
	}
	key := r.intern(&Metadata{Kind: KindSliceOrArray, Elem: elem})
	r.arrays[k] = key
	return key
}

func (r *Registry) Map(keyT, valT Key) Key {
	k := [2]Key{keyT, valT}
	if existing, ok := r.maps[k]; ok {
		return existing
	}
	key := r.intern(&Metadata{Kind: KindMap, Key: keyT, Val: valT})
	r.maps[k] = key
	return key
}

func (r *Registry) PointerTo(base Key) Key {
	if existing, ok := r.pointers[base]; ok {
		return existing
	}
	key := r.intern(&Metadata{Kind: KindPointer, Elem: base})
	r.pointers[base] = key
	return key
}

// UnpointerTo strips one level of pointer; panics (ICE) if base is not
// a pointer metadata.
func (r *Registry) UnpointerTo(k Key) Key {
	m := r.Get(k)
	if m.Kind != KindPointer {
		panic("ICE: meta: unptr_to of non-pointer")
	}
	return m.Elem
}

func (r *Registry) Channel(elem Key, dir ChanDir) Key {
	k := [2]int{int(elem), int(dir)}
	if existing, ok := r.chans[k]; ok {
		return existing
	}
	key := r.intern(&Metadata{Kind: KindChannel, Elem: elem, Dir: dir})
	r.chans[k] = key
	return key
}

// NewStruct interns a fresh struct descriptor (structs are never
// structurally deduplicated: two textually identical struct types
// declared in different places are still distinct named types once
// wrapped in Named, so the struct body itself is allocated fresh).
func (r *Registry) NewStruct(fields []Field) Key {
	m := &Metadata{Kind: KindStruct, Fields: fields, nameIdx: make(map[string]int, len(fields))}
	for i, f := range fields {
		m.nameIdx[f.Name] = i
	}
	return r.intern(m)
}

func (r *Registry) NewSignature(params, results []Key, variadic bool, recv Key) Key {
	return r.intern(&Metadata{Kind: KindSignature, Params: params, Results: results, Variadic: variadic, Recv: recv})
}

// NewNamed interns a named-type wrapper over an already-interned
// underlying descriptor. typeName/pkgPath form the identity distinct
// from structural shape: type identity dispatches on m.
func (r *Registry) NewNamed(pkgPath, typeName string, underlying Key) Key {
	qn := pkgPath + "." + typeName
	if existing, ok := r.named[qn]; ok {
		return existing
	}
	key := r.intern(&Metadata{
		Kind: KindNamed, Underlying: underlying, TypeName: typeName, PkgPath: pkgPath,
		methods: make(map[string]*Method),
	})
	r.named[qn] = key
	return key
}

func (r *Registry) NewInterface(methodSet []string) Key {
	return r.intern(&Metadata{Kind: KindInterface, MethodSet: methodSet})
}

// ValueType returns the value.Type erasure instructions dispatch on.
func (r *Registry) ValueType(k Key) value.Type {
	m := r.Get(k)
	switch m.Kind {
	case KindBasic:
		return m.Basic
	case KindArray:
		return value.Array
	case KindSliceOrArray:
		return value.Slice
	case KindMap:
		return value.Map
	case KindStruct:
		return value.Struct
	case KindSignature:
		return value.Function
	case KindInterface:
		return value.Interface
	case KindChannel:
		return value.Channel
	case KindPointer, KindUnsafePointer:
		return value.Pointer
	case KindNamed:
		return r.ValueType(m.Underlying)
	}
	panic("ICE: meta: value_type of unhandled kind")
}

// Underlying strips Named wrappers.
func (r *Registry) Underlying(k Key) Key {
	m := r.Get(k)
	for m.Kind == KindNamed {
		k = m.Underlying
		m = r.Get(k)
	}
	return k
}

// FieldIndex looks a struct field up by name; ok is false if absent.
func (r *Registry) FieldIndex(k Key, name string) (int, bool) {
	m := r.Get(r.Underlying(k))
	if m.Kind != KindStruct {
		return 0, false
	}
	idx, ok := m.nameIdx[name]
	return idx, ok
}

// MethodLookup resolves a method name against a Named type's own
// method table. It does not walk embedded fields — the code generator
// does that itself via the selection-chain info from internal/typelookup.
func (r *Registry) MethodLookup(k Key, name string) (*Method, bool) {
	m := r.Get(k)
	if m.Kind != KindNamed {
		return nil, false
	}
	meth, ok := m.methods[name]
	return meth, ok
}

// SetMethodCode registers (or updates) the FunctionKey implementing a
// method on a named type, recorded during code generation.
func (r *Registry) SetMethodCode(k Key, name string, fn int64, ptrRecv bool) {
	m := r.Get(k)
	if m.Kind != KindNamed {
		panic("ICE: meta: set_method_code on non-named type")
	}
	if _, exists := m.methods[name]; !exists {
		m.methodOrd = append(m.methodOrd, name)
	}
	m.methods[name] = &Method{Name: name, Func: fn, PtrRecv: ptrRecv}
}

// Methods returns a named type's methods in declaration order —
// deterministic, since map iteration is not.
func (r *Registry) Methods(k Key) []*Method {
	m := r.Get(k)
	if m.Kind != KindNamed {
		return nil
	}
	out := make([]*Method, 0, len(m.methodOrd))
	for _, name := range m.methodOrd {
		out = append(out, m.methods[name])
	}
	return out
}
