// Package instr defines the instruction set and function object:
// Opcode, the fixed-shape Inst encoding, and FunctionObject — the unit
// the code generator emits into and the interpreter executes.
package instr

import (
	"fmt"

	"github.com/corestack/govm/internal/value"
)

// Opcode is the instruction's operation, grouped by block: constants,
// locals/globals/upvalues, stack shuffling, arithmetic, bitwise,
// comparison, control flow, composite construction/indexing,
// conversion, interface boxing, concurrency, and calls.
type Opcode uint8

const (
	OpConst Opcode = iota
	OpConstNil

	OpLocalGet
	OpLocalSet
	OpLocalAddr
	OpGlobalGet
	OpGlobalSet
	OpGlobalAddr
	OpUpvalGet
	OpUpvalSet
	OpUpvalAddr

	OpPop
	OpDup
	OpSwap

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpRem
	OpNeg

	OpAnd
	OpOr
	OpXor
	OpAndNot
	OpShl
	OpShr
	OpNot

	OpEq
	OpNeq
	OpLt
	OpGt
	OpLeq
	OpGeq

	OpLoad
	OpStore
	OpAddrOf
	OpDeref

	OpLabel
	OpJmp
	OpJmpIfTrue
	OpJmpIfFalse

	OpCall
	OpCallIntrinsic
	OpReturn
	OpMakeClosure
	OpMakeThunk

	OpArrayMake
	OpSliceMake
	OpSliceNew
	OpSliceExpr
	OpMapMake
	OpMapIndex
	OpMapIndexCommaOk
	OpMapSet
	OpMapDelete
	OpStructMake
	OpFieldGet
	OpFieldAddr
	OpIndexGet
	OpIndexAddr
	OpLen
	OpCap
	OpNew
	OpAppend
	OpCopy

	OpRangeInit
	OpRange

	OpConvert

	OpIfaceBox
	OpIfaceUnbox
	OpIfaceAssert
	OpIfaceAssertCommaOk
	OpBindMethod

	OpChanMake
	OpChanSend
	OpChanRecv
	OpChanRecvCommaOk
	OpChanClose
	OpSelectRecv
	OpSelectSend
	OpSelect

	OpGo
	OpDefer
	OpRunDefers

	OpPanic
	OpRecover
)

var opcodeNames = [...]string{
	"Const", "ConstNil",
	"LocalGet", "LocalSet", "LocalAddr", "GlobalGet", "GlobalSet", "GlobalAddr",
	"UpvalGet", "UpvalSet", "UpvalAddr",
	"Pop", "Dup", "Swap",
	"Add", "Sub", "Mul", "Div", "Rem", "Neg",
	"And", "Or", "Xor", "AndNot", "Shl", "Shr", "Not",
	"Eq", "Neq", "Lt", "Gt", "Leq", "Geq",
	"Load", "Store", "AddrOf", "Deref",
	"Label", "Jmp", "JmpIfTrue", "JmpIfFalse",
	"Call", "CallIntrinsic", "Return", "MakeClosure", "MakeThunk",
	"ArrayMake", "SliceMake", "SliceNew", "SliceExpr", "MapMake", "MapIndex",
	"MapIndexCommaOk", "MapSet", "MapDelete", "StructMake", "FieldGet",
	"FieldAddr", "IndexGet", "IndexAddr", "Len", "Cap", "New", "Append", "Copy",
	"RangeInit", "Range",
	"Convert",
	"IfaceBox", "IfaceUnbox", "IfaceAssert", "IfaceAssertCommaOk", "BindMethod",
	"ChanMake", "ChanSend", "ChanRecv", "ChanRecvCommaOk", "ChanClose",
	"SelectRecv", "SelectSend", "Select",
	"Go", "Defer", "RunDefers",
	"Panic", "Recover",
}

func (o Opcode) String() string {
	if int(o) >= 0 && int(o) < len(opcodeNames) {
		return opcodeNames[o]
	}
	return fmt.Sprintf("Opcode(%d)", int(o))
}

// Flag classifies a FunctionObject for interpreter dispatch that
// happens once per call rather than once per instruction. Package
// constructors run before main. FlagHasDefer marks functions with a
// deferred call; the interpreter gives every frame a defer list and
// does not read this flag.
type Flag int

const (
	FlagDefault Flag = iota
	FlagPkgCtor
	FlagHasDefer
)

// Inst is one encoded instruction: a one-byte opcode, up to three
// value.Type operand hints (telling the interpreter which V64
// arithmetic table to dispatch through without a runtime type lookup),
// a signed immediate used for indices/offsets/jump targets, an
// optional source position for panics/stack traces, and an optional
// wide 64-bit immediate for constants that don't fit in Index.
type Inst struct {
	Op     Opcode
	Hint   [3]value.Type
	Index  int32
	Pos    int32
	Wide   int64
	HasWide bool
}

// UpvalDesc records where a closure's Nth upvalue comes from: either
// an enclosing function's local slot (FromLocal true) or one of the
// enclosing function's own upvalues (FromLocal false).
type UpvalDesc struct {
	FromLocal bool
	Index     int
}

// ConstEntry is one constant-pool slot. Only one of the fields is
// meaningful, selected by Typ.
type ConstEntry struct {
	Typ  value.Type
	Num  uint64
	Str  string
	Cplx [2]float64
}

// FunctionObject is the compiled unit the interpreter executes:
// parameter/result arity, the local slot table, a constant pool, the
// upvalue descriptor table for closures over this function, and the
// instruction/position vectors.
type FunctionObject struct {
	Name        string
	NumParams   int
	NumResults  int
	NumLocals   int
	LocalNames  []string
	Consts      []ConstEntry
	Upvals      []UpvalDesc
	Code        []Inst
	Flag        Flag
	Variadic    bool
	SigMeta     int32 // internal/meta.Key of this function's signature, erased to int32 to avoid an import cycle
}

// Module is the whole compiled program: every function keyed by a
// dense FunctionKey, plus package-level globals and the entry point.
type Module struct {
	Funcs   []*FunctionObject
	Globals []GlobalSlot
	Entry   int64 // FunctionKey of the entry point: func main if declared, else the package constructor
}

// GlobalSlot is one package-level variable slot.
type GlobalSlot struct {
	Name string
	Meta int32
}

func (m *Module) AddFunc(f *FunctionObject) int64 {
	m.Funcs = append(m.Funcs, f)
	return int64(len(m.Funcs) - 1)
}

func (m *Module) Func(key int64) *FunctionObject {
	if key < 0 || int(key) >= len(m.Funcs) {
		panic("ICE: instr: unknown function key")
	}
	return m.Funcs[key]
}
