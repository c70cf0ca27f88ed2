package codec

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/wampio/wampio/pkg/wampval"
)

// msgpackCodec implements Codec over MessagePack via
// github.com/vmihailenco/msgpack/v5.
type msgpackCodec struct{}

func (msgpackCodec) ID() ID { return IDMsgpack }

func (msgpackCodec) Encode(v wampval.Value) ([]byte, error) {
	b, err := msgpack.Marshal(wampval.ToNative(v))
	if err != nil {
		return nil, fmt.Errorf("codec: msgpack encode: %w", err)
	}
	return b, nil
}

func (msgpackCodec) Decode(b []byte) (wampval.Value, error) {
	var raw any
	if err := msgpack.Unmarshal(b, &raw); err != nil {
		return wampval.Null, fmt.Errorf("codec: msgpack decode: %w", err)
	}
	native, err := normalizeMsgpackMaps(raw)
	if err != nil {
		return wampval.Null, err
	}
	return wampval.FromNative(native)
}

// normalizeMsgpackMaps converts map[string]interface{} shapes the library
// may nest (and the rarer map[interface{}]interface{} for non-string keyed
// maps, which WAMP never produces but a permissive decode should reject
// clearly) into the map[string]any shape wampval.FromNative expects.
func normalizeMsgpackMaps(x any) (any, error) {
	switch t := x.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			r, err := normalizeMsgpackMaps(e)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("codec: msgpack object with non-string key %v", k)
			}
			r, err := normalizeMsgpackMaps(e)
			if err != nil {
				return nil, err
			}
			out[ks] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			r, err := normalizeMsgpackMaps(e)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return x, nil
	}
}
