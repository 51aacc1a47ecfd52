package value

import "testing"

// TestEqualityImpliesHashEquality checks that a == b implies
// hash(a) == hash(b) for every hashable variant.
func TestEqualityImpliesHashEquality(t *testing.T) {
	pairs := [][2]Value{
		{NewInt(7), NewInt(7)},
		{NewBool(true), NewBool(true)},
		{NewStr("hello"), NewStr("hello")},
		{NewFloat64(1.5), NewFloat64(1.5)},
		{NewUint8(200), NewUint8(200)},
	}
	for _, p := range pairs {
		if !Equal(p[0], p[1]) {
			t.Fatalf("expected %+v == %+v", p[0], p[1])
		}
		if Hash(p[0]) != Hash(p[1]) {
			t.Errorf("%+v == %+v but hash differs: %d vs %d", p[0], p[1], Hash(p[0]), Hash(p[1]))
		}
	}
}

func TestEqualDistinguishesDifferentValues(t *testing.T) {
	if Equal(NewInt(1), NewInt(2)) {
		t.Error("expected 1 != 2")
	}
	if Equal(NewStr("a"), NewStr("b")) {
		t.Error(`expected "a" != "b"`)
	}
}
