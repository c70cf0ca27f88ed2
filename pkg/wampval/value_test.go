package wampval

import (
	"math"
	"testing"
)

func TestValueAccessors(t *testing.T) {
	v := Int(42)
	i, ok := v.AsInt()
	if !ok || i != 42 {
		t.Fatalf("AsInt() = (%d, %t), want (42, true)", i, ok)
	}
	if _, ok := v.AsString(); ok {
		t.Error("AsString() on an Int should report ok=false")
	}
}

func TestValueEqual(t *testing.T) {
	a := Array(Int(1), String("x"), Object(map[string]Value{"k": Bool(true)}))
	b := Array(Int(1), String("x"), Object(map[string]Value{"k": Bool(true)}))
	if !Equal(a, b) {
		t.Error("expected structurally equal arrays to compare equal")
	}
	c := Array(Int(1), String("y"))
	if Equal(a, c) {
		t.Error("expected differing arrays to compare unequal")
	}
}

func TestFromNativeRoundTrip(t *testing.T) {
	native := map[string]any{
		"n":   nil,
		"b":   true,
		"i":   int64(7),
		"r":   3.5,
		"s":   "hi",
		"arr": []any{int64(1), int64(2)},
	}
	v, err := FromNative(native)
	if err != nil {
		t.Fatalf("FromNative: %v", err)
	}
	obj, ok := v.AsObject()
	if !ok {
		t.Fatal("expected object")
	}
	if b, ok := obj["b"].AsBool(); !ok || !b {
		t.Error("expected b=true")
	}
	arr, ok := obj["arr"].AsArray()
	if !ok || len(arr) != 2 {
		t.Fatalf("expected 2-element array, got %#v", obj["arr"])
	}
}

func TestFromNativeNumericRange(t *testing.T) {
	_, err := FromNative(uint64(math.MaxInt64) + 1)
	if err != ErrNumericRange {
		t.Fatalf("expected ErrNumericRange, got %v", err)
	}
}

func TestToNativeRoundTrip(t *testing.T) {
	v := Array(Null, Bool(false), Int(-5), Real(1.25), String("z"))
	n := ToNative(v)
	back, err := FromNative(n)
	if err != nil {
		t.Fatalf("FromNative: %v", err)
	}
	if !Equal(v, back) {
		t.Errorf("round trip mismatch: %#v vs %#v", v, back)
	}
}
