package value

import "hash/fnv"

// Equal implements the language's == semantics across the full Value
// universe. An interface holding a nil concrete value compares equal
// to a literal Nil even though their type tags differ.
func Equal(a, b Value) bool {
	a, b = a.Unwrap(), b.Unwrap()

	if a.Typ == Interface || b.Typ == Interface {
		return equalThroughInterface(a, b)
	}
	if a.Typ != b.Typ {
		return false
	}
	switch a.Typ {
	case Nil:
		return true
	case Bool, Int, Int8, Int16, Int32, Int64, Uint, UintPtr,
		Uint8, Uint16, Uint32, Uint64, Function, Package:
		return a.Num == b.Num
	case Float32, Float64:
		return V64FromValue(a).Cmp(V64FromValue(b)) == 0
	case Complex64, Complex128:
		return a.Cplx == b.Cplx
	case Str:
		return a.Str.String() == b.Str.String()
	case Pointer:
		pa, oka := a.Obj.(Pointer)
		pb, okb := b.Obj.(Pointer)
		if !oka || !okb {
			return oka == okb
		}
		return pa.identity() == pb.identity()
	case Struct:
		sa, sb := a.Obj.(*StructData), b.Obj.(*StructData)
		if len(sa.Fields) != len(sb.Fields) {
			return false
		}
		for i := range sa.Fields {
			if !Equal(sa.Fields[i], sb.Fields[i]) {
				return false
			}
		}
		return true
	case Array:
		aa, ab := a.Obj.(*ArrayData), b.Obj.(*ArrayData)
		if len(aa.Elems) != len(ab.Elems) {
			return false
		}
		for i := range aa.Elems {
			if !Equal(aa.Elems[i], ab.Elems[i]) {
				return false
			}
		}
		return true
	}
	// Slice/Map/Closure/Channel have no == operator at the language
	// level; reaching here is an ICE since the type checker should have
	// rejected the comparison already.
	panic("ICE: value: equality on incomparable type " + a.Typ.String())
}

func equalThroughInterface(a, b Value) bool {
	av, aIsNil := unwrapInterface(a)
	bv, bIsNil := unwrapInterface(b)
	if aIsNil || bIsNil {
		return aIsNil && bIsNil
	}
	return Equal(av, bv)
}

// unwrapInterface returns the concrete value an Interface (or non-
// interface operand compared against one) carries, and whether it
// should be treated as nil.
func unwrapInterface(v Value) (Value, bool) {
	if v.Typ == Nil {
		return Value{}, true
	}
	if v.Typ != Interface {
		return v, false
	}
	id := v.Obj.(*InterfaceData)
	if id == nil || id.Concrete == nil {
		return Value{}, true
	}
	return *id.Concrete, false
}

// Hash implements a hash consistent with Equal. MapData does not use
// it; its keys are normalized by toMapKey.
func Hash(v Value) uint64 {
	v = v.Unwrap()
	h := fnv.New64a()
	switch v.Typ {
	case Nil:
		return 0
	case Bool, Int, Int8, Int16, Int32, Int64, Uint, UintPtr,
		Uint8, Uint16, Uint32, Uint64, Function, Package:
		return v.Num
	case Float32, Float64:
		return orderedFloatBits(v)
	case Str:
		h.Write(v.Str.b)
		return h.Sum64()
	case Pointer:
		p := v.Obj.(Pointer)
		h.Write([]byte(p.identity()))
		return h.Sum64()
	case Struct:
		sd := v.Obj.(*StructData)
		acc := uint64(1469598103934665603)
		for _, f := range sd.Fields {
			acc = (acc ^ Hash(f)) * 1099511628211
		}
		return acc
	case Array:
		ad := v.Obj.(*ArrayData)
		acc := uint64(1469598103934665603)
		for _, e := range ad.Elems {
			acc = (acc ^ Hash(e)) * 1099511628211
		}
		return acc
	case Interface:
		cv, isNil := unwrapInterface(v)
		if isNil {
			return 0
		}
		return Hash(cv)
	}
	panic("ICE: value: hash of incomparable type " + v.Typ.String())
}
