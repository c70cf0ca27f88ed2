package wampmsg

import (
	"testing"

	"github.com/wampio/wampio/pkg/wampval"
)

func TestCallRoundTrip(t *testing.T) {
	c := Call{
		Request:   123,
		Options:   wampval.Object(nil),
		Procedure: "com.x.add",
		Args:      wampval.Array(wampval.Int(2), wampval.Int(3)),
		Kwargs:    wampval.Object(nil),
	}
	decoded, err := Decode(c.ToValue())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got, ok := decoded.(Call)
	if !ok {
		t.Fatalf("expected Call, got %T", decoded)
	}
	if got.Request != 123 || got.Procedure != "com.x.add" {
		t.Errorf("round trip mismatch: %+v", got)
	}
	args, _ := got.Args.AsArray()
	if len(args) != 2 {
		t.Errorf("expected 2 args, got %d", len(args))
	}
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode(wampval.Array(wampval.Int(int64(TypeCall))))
	if err == nil {
		t.Fatal("expected error for too-short CALL array")
	}
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode(wampval.Array(wampval.Int(999)))
	if err == nil {
		t.Fatal("expected error for unknown message type")
	}
}

func TestErrorMsgRoundTrip(t *testing.T) {
	e := ErrorMsg{
		RequestType: TypeCall,
		Request:     7,
		Details:     wampval.Object(nil),
		Error:       ErrNoSuchProcedure,
	}
	decoded, err := Decode(e.ToValue())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got := decoded.(ErrorMsg)
	if got.Error != ErrNoSuchProcedure || got.RequestType != TypeCall {
		t.Errorf("round trip mismatch: %+v", got)
	}
}
