package value

import "testing"

// TestV64RoundTrip checks that for every scalar v of type T,
// converting v to V64 and back reproduces v exactly.
func TestV64RoundTrip(t *testing.T) {
	cases := []Value{
		NewBool(true),
		NewBool(false),
		NewInt(-12345),
		NewInt8(-128),
		NewInt16(32767),
		NewInt32(-2147483648),
		NewInt64(9223372036854775807),
		NewUint(42),
		NewUint8(255),
		NewUint16(65535),
		NewUint32(4294967295),
		NewUint64(18446744073709551615),
		NewFloat32(3.5),
		NewFloat64(-2.25),
	}
	for _, v := range cases {
		got := V64FromValue(v).ToValue()
		if !Equal(got, v) {
			t.Errorf("round trip %s: got %+v, want %+v", v.Typ, got, v)
		}
	}
}

// TestWrappingArithmetic checks that adding 1 to an integer type's
// maximum value wraps around to its minimum value, at every width.
func TestWrappingArithmetic(t *testing.T) {
	one := NewInt(1)
	cases := []struct {
		max, min Value
	}{
		{NewInt8(127), NewInt8(-128)},
		{NewInt16(32767), NewInt16(-32768)},
		{NewInt32(2147483647), NewInt32(-2147483648)},
		{NewInt64(9223372036854775807), NewInt64(-9223372036854775808)},
		{NewUint8(255), NewUint8(0)},
		{NewUint16(65535), NewUint16(0)},
		{NewUint32(4294967295), NewUint32(0)},
		{NewUint64(18446744073709551615), NewUint64(0)},
	}
	for _, c := range cases {
		oneT := V64FromValue(one).ConvertTo(c.max.Typ).ToValue()
		got := V64FromValue(c.max).Add(V64FromValue(oneT)).ToValue()
		if !Equal(got, c.min) {
			t.Errorf("add_wrapping(MAX,1) for %s: got %+v, want %+v", c.max.Typ, got, c.min)
		}
	}
}
