package value

import "fmt"

// RC is a shared reference count cell, mutated only through AddOne,
// RefSubOne, MarkDirty and ClearDirty: composite values are reference counted, and
// a deferred cycle collector walks a "dirty" worklist rather than
// running a stop-the-world trace. Allocation registers the object
// with a collector; mutation never decrements eagerly below zero, it
// only ever asks the collector to look at it again.
type RC struct {
	n     int32
	dirty bool
}

// NewRC starts a fresh cell at refcount 1, as returned by every
// composite constructor below.
func NewRC() *RC { return &RC{n: 1} }

func (c *RC) AddOne() { c.n++ }

// RefSubOne decrements the count and reports whether it reached zero.
// It never goes negative; an ICE panic here means a double-free bug
// upstream in the code generator.
func (c *RC) RefSubOne() bool {
	if c.n <= 0 {
		panic("ICE: value: ref count underflow")
	}
	c.n--
	return c.n == 0
}

// MarkDirty flags the cell for the next cycle-collector sweep instead
// of freeing it immediately — composite values that can form reference
// cycles (structs/arrays/maps holding pointers back into themselves)
// are never collected by refcounting alone.
func (c *RC) MarkDirty() { c.dirty = true }
func (c *RC) Dirty() bool { return c.dirty }
func (c *RC) ClearDirty() { c.dirty = false }

// Collector is the deferred cycle collector's worklist. Every
// composite constructor registers its backing object here. A
// collector is attached to one logical heap (one VM instance); it
// holds weak references only, the RC cells themselves, not the data,
// so a sweep never keeps otherwise-dead objects alive.
type Collector struct {
	objs []*RC
}

func NewCollector() *Collector { return &Collector{} }

func (c *Collector) register(rc *RC) { c.objs = append(c.objs, rc) }

// Sweep walks every registered cell and reports those still marked
// dirty — the candidates a full cycle trace would need to inspect.
// Clearing is left to the caller once it has traced reachability.
func (c *Collector) Sweep() []*RC {
	var dirty []*RC
	for _, rc := range c.objs {
		if rc.Dirty() {
			dirty = append(dirty, rc)
		}
	}
	return dirty
}

// ArrayData is the backing store for a fixed-length Array value.
// Arrays have value semantics at the language level but are heap
// objects at runtime since Go slices already give cheap structural
// sharing until copy-on-write is required by an assignment.
type ArrayData struct {
	RC    *RC
	Meta  MetaKey
	Elems []Value
}

func NewArrayData(col *Collector, m MetaKey, elems []Value) *ArrayData {
	a := &ArrayData{RC: NewRC(), Meta: m, Elems: elems}
	col.register(a.RC)
	return a
}

// Clone performs the copy required before an Array value is mutated
// while shared (copy-on-write). Callers check RC == 1 first; Clone
// itself unconditionally deep-copies the element slice.
func (a *ArrayData) Clone(col *Collector) *ArrayData {
	elems := make([]Value, len(a.Elems))
	copy(elems, a.Elems)
	return NewArrayData(col, a.Meta, elems)
}

// SliceData is a view (start, length, cap) over a shared backing
// ArrayData, giving slices reference semantics and O(1) reslicing.
type SliceData struct {
	RC    *RC
	Meta  MetaKey
	Back  *ArrayData
	Start int
	Len   int
	Cap   int
}

func NewSliceData(col *Collector, m MetaKey, back *ArrayData, start, length, capc int) *SliceData {
	back.RC.AddOne()
	s := &SliceData{RC: NewRC(), Meta: m, Back: back, Start: start, Len: length, Cap: capc}
	col.register(s.RC)
	return s
}

func (s *SliceData) At(i int) (Value, error) {
	if i < 0 || i >= s.Len {
		return Value{}, ErrIndexOutOfRange
	}
	return s.Back.Elems[s.Start+i], nil
}

func (s *SliceData) Set(i int, v Value) error {
	if i < 0 || i >= s.Len {
		return ErrIndexOutOfRange
	}
	s.Back.Elems[s.Start+i] = v
	return nil
}

// Reslice returns a new SliceData over the same backing array.
func (s *SliceData) Reslice(col *Collector, lo, hi, max int) (*SliceData, error) {
	if lo < 0 || hi < lo || max < hi || max > s.Cap {
		return nil, ErrIndexOutOfRange
	}
	return NewSliceData(col, s.Meta, s.Back, s.Start+lo, hi-lo, max-lo), nil
}

// MapKey is a hashable projection of a Value suitable for use as a Go
// map key — composite key types (struct, array) are not natively
// comparable by Go's map machinery the way the language's comparability
// rules require, so map keys are normalized into this struct instead
// of keying MapData's backing store directly on Value.
type MapKey struct {
	bits uint64
	str  string
	kind Type
}

// MapData backs a Map value. Entries additionally retain the original
// key Value since iteration order and key round-tripping both need the
// unnormalized form back.
type MapData struct {
	RC    *RC
	Meta  MetaKey
	order []MapKey
	keys  map[MapKey]Value
	vals  map[MapKey]Value
}

func NewMapData(col *Collector, m MetaKey) *MapData {
	d := &MapData{RC: NewRC(), Meta: m, keys: make(map[MapKey]Value), vals: make(map[MapKey]Value)}
	col.register(d.RC)
	return d
}

func (d *MapData) Get(k Value) (Value, bool) {
	mk, ok := toMapKey(k)
	if !ok {
		panic("ICE: value: unhashable map key")
	}
	v, ok := d.vals[mk]
	return v, ok
}

func (d *MapData) Set(k, v Value) {
	mk, ok := toMapKey(k)
	if !ok {
		panic("ICE: value: unhashable map key")
	}
	if _, exists := d.vals[mk]; !exists {
		d.order = append(d.order, mk)
		d.keys[mk] = k
	}
	d.vals[mk] = v
}

func (d *MapData) Delete(k Value) {
	mk, ok := toMapKey(k)
	if !ok {
		return
	}
	if _, exists := d.vals[mk]; exists {
		delete(d.vals, mk)
		delete(d.keys, mk)
		for i, o := range d.order {
			if o == mk {
				d.order = append(d.order[:i], d.order[i+1:]...)
				break
			}
		}
	}
}

func (d *MapData) Len() int { return len(d.order) }

// Range walks entries in insertion order, deterministic for tests.
func (d *MapData) Range(fn func(k, v Value)) {
	for _, mk := range d.order {
		fn(d.keys[mk], d.vals[mk])
	}
}

func toMapKey(v Value) (MapKey, bool) {
	switch v.Typ {
	case Nil, Bool, Int, Int8, Int16, Int32, Int64, Uint, UintPtr,
		Uint8, Uint16, Uint32, Uint64, Function, Package:
		return MapKey{bits: v.Num, kind: v.Typ}, true
	case Float32, Float64:
		return MapKey{bits: orderedFloatBits(v), kind: Float64}, true
	case Str:
		return MapKey{str: v.Str.String(), kind: Str}, true
	case Pointer:
		p, ok := v.Obj.(Pointer)
		if !ok {
			return MapKey{}, false
		}
		return MapKey{str: p.identity(), kind: Pointer}, true
	case Named:
		return toMapKey(v.Unwrap())
	case Struct:
		sd := v.Obj.(*StructData)
		key := ""
		for _, f := range sd.Fields {
			mk, ok := toMapKey(f)
			if !ok {
				return MapKey{}, false
			}
			key += mk.kind.String() + ":" + mk.str + ":" + itoa(mk.bits) + "|"
		}
		return MapKey{str: key, kind: Struct}, true
	case Array:
		ad := v.Obj.(*ArrayData)
		key := ""
		for _, e := range ad.Elems {
			mk, ok := toMapKey(e)
			if !ok {
				return MapKey{}, false
			}
			key += mk.kind.String() + ":" + mk.str + ":" + itoa(mk.bits) + "|"
		}
		return MapKey{str: key, kind: Array}, true
	case Interface:
		id := v.Obj.(*InterfaceData)
		if id.Concrete == nil {
			return MapKey{kind: Interface}, true
		}
		return toMapKey(*id.Concrete)
	}
	return MapKey{}, false
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// StructData backs a Struct value: a flat, name-indexed field vector.
type StructData struct {
	RC     *RC
	Meta   MetaKey
	Fields []Value
}

func NewStructData(col *Collector, m MetaKey, fields []Value) *StructData {
	d := &StructData{RC: NewRC(), Meta: m, Fields: fields}
	col.register(d.RC)
	return d
}

func (d *StructData) Clone(col *Collector) *StructData {
	fields := make([]Value, len(d.Fields))
	copy(fields, d.Fields)
	return NewStructData(col, d.Meta, fields)
}

// UpvalState distinguishes an Open upvalue (still aliasing a live
// stack slot) from a Closed one (copied into the closure once its
// defining frame returns).
type UpvalState int

const (
	UpvalOpen UpvalState = iota
	UpvalClosed
)

// Upval is one captured variable slot.
type Upval struct {
	State UpvalState
	// Stack holds (frame, slot) coordinates while Open; ignored once Closed.
	FrameDepth int
	Slot       int
	// Closed holds the copied value once the defining frame has exited.
	Closed Value
}

// ClosureData backs a Closure value: a function key plus its captured
// upvalues, in declaration order. Recv and BoundArgs serve the two
// other ways a callable value gets built: BindMethod binds a receiver
// into slot 0 of the target function without going through Upvals at
// all, and a go/defer statement's thunk binds its already-evaluated
// arguments ahead of the call that runs them later. A thunk built
// from a closure also carries that closure's Upvals.
type ClosureData struct {
	RC        *RC
	FuncKey   int64
	Upvals    []*Upval
	Recv      *Value
	BoundArgs []Value
}

func NewClosureData(col *Collector, fn int64, upvals []*Upval) *ClosureData {
	d := &ClosureData{RC: NewRC(), FuncKey: fn, Upvals: upvals}
	col.register(d.RC)
	return d
}

// NewBoundMethodClosure backs the closure OpBindMethod produces: recv
// is seeded into the target function's local slot 0 at call time.
func NewBoundMethodClosure(col *Collector, fn int64, recv Value) *ClosureData {
	d := &ClosureData{RC: NewRC(), FuncKey: fn, Recv: &recv}
	col.register(d.RC)
	return d
}

// NewThunkClosure backs an OpMakeThunk result: callee identity (and its
// own Upvals/Recv, copied through if the callee was itself already a
// closure) plus the arguments a go/defer statement evaluated up front.
func NewThunkClosure(col *Collector, fn int64, upvals []*Upval, recv *Value, args []Value) *ClosureData {
	d := &ClosureData{RC: NewRC(), FuncKey: fn, Upvals: upvals, Recv: recv, BoundArgs: args}
	col.register(d.RC)
	return d
}

// Close transitions every still-open upvalue pointing at frameDepth to
// Closed, copying its current value out of the stack.
func (d *ClosureData) Close(frameDepth int, readSlot func(frameDepth, slot int) Value) {
	for _, u := range d.Upvals {
		if u.State == UpvalOpen && u.FrameDepth == frameDepth {
			u.Closed = readSlot(u.FrameDepth, u.Slot)
			u.State = UpvalClosed
		}
	}
}

// InterfaceData backs an Interface value: the concrete value it holds
// (nil means the interface itself is nil, distinct from holding a
// typed nil) plus the coercion-table index used to resolve method
// calls through internal/iface.
type InterfaceData struct {
	RC        *RC
	Concrete  *Value
	CoerceIdx int32
}

func NewInterfaceData(col *Collector, concrete *Value, coerceIdx int32) *InterfaceData {
	d := &InterfaceData{RC: NewRC(), Concrete: concrete, CoerceIdx: coerceIdx}
	col.register(d.RC)
	return d
}

// ChannelData backs a Channel value with a native Go channel of Value,
// building concurrency primitives directly out of Go's own.
type ChannelData struct {
	RC     *RC
	Ch     chan Value
	Cap    int
	closed bool
}

func NewChannelData(col *Collector, capc int) *ChannelData {
	d := &ChannelData{RC: NewRC(), Ch: make(chan Value, capc), Cap: capc}
	col.register(d.RC)
	return d
}

func (d *ChannelData) Send(v Value) error {
	if d.closed {
		return ErrChannelSendOnClosed
	}
	d.Ch <- v
	return nil
}

func (d *ChannelData) Recv() (v Value, ok bool) {
	v, ok = <-d.Ch
	return v, ok
}

func (d *ChannelData) Close() {
	if d.closed {
		panic("ICE: value: close of closed channel")
	}
	d.closed = true
	close(d.Ch)
}

// PointerKind discriminates what a Pointer references — Go has no
// uniform "address of anything" primitive, so each addressable
// location needs its own representation.
type PointerKind int

const (
	PtrUpVal PointerKind = iota
	PtrStructField
	PtrSliceMember
	PtrArrayElem
	PtrMapElem
	PtrPkgMember
	PtrStruct
	PtrSlice
	PtrArray
	PtrMap
	PtrUserData
	PtrReleased
)

// Pointer is itself stored by value inside Value.Obj (not as a *Pointer)
// since it is a small discriminated union, not a reference-counted
// object — a pointer has no RC cell of its own, it borrows the RC of
// whatever it addresses.
type Pointer struct {
	Kind PointerKind

	Up *Upval // PtrUpVal

	Struct *StructData // PtrStructField
	Field  int

	Slice  *SliceData // PtrSliceMember
	Index  int

	Array *ArrayData // PtrArrayElem

	Map   *MapData // PtrMapElem
	MKey  Value

	Pkg     int64 // PtrPkgMember: package key
	Member  string

	User interface{} // PtrUserData: host-provided addressable cell
}

// identity returns a string uniquely identifying what a pointer
// addresses, used only for pointer-equality map keys (toMapKey above).
func (p Pointer) identity() string {
	switch p.Kind {
	case PtrUpVal:
		return fmt.Sprintf("up:%p", p.Up)
	case PtrStructField:
		return fmt.Sprintf("sf:%p:%d", p.Struct, p.Field)
	case PtrSliceMember:
		return fmt.Sprintf("sm:%p:%d", p.Slice, p.Index)
	case PtrArrayElem:
		return fmt.Sprintf("ae:%p:%d", p.Array, p.Index)
	case PtrMapElem:
		mk, _ := toMapKey(p.MKey)
		return fmt.Sprintf("me:%p:%s", p.Map, mk.str)
	case PtrPkgMember:
		return fmt.Sprintf("pm:%d:%s", p.Pkg, p.Member)
	case PtrStruct:
		return fmt.Sprintf("s:%p", p.Struct)
	case PtrSlice:
		return fmt.Sprintf("sl:%p", p.Slice)
	case PtrArray:
		return fmt.Sprintf("ar:%p", p.Array)
	case PtrMap:
		return fmt.Sprintf("mp:%p", p.Map)
	case PtrReleased:
		return "released"
	case PtrUserData:
		return fmt.Sprintf("ud:%p", p.User)
	}
	return "user"
}
