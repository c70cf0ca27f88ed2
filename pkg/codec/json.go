package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/wampio/wampio/pkg/wampval"
)

// jsonCodec implements Codec over strict RFC 8259 JSON via encoding/json.
type jsonCodec struct{}

func (jsonCodec) ID() ID { return IDJSON }

func (jsonCodec) Encode(v wampval.Value) ([]byte, error) {
	b, err := json.Marshal(wampval.ToNative(v))
	if err != nil {
		return nil, fmt.Errorf("codec: json encode: %w", err)
	}
	return b, nil
}

func (jsonCodec) Decode(b []byte) (wampval.Value, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return wampval.Null, fmt.Errorf("codec: json decode: %w", err)
	}
	native, err := resolveNumbers(raw)
	if err != nil {
		return wampval.Null, err
	}
	return wampval.FromNative(native)
}

// resolveNumbers walks a json.Decoder(UseNumber) result tree, turning each
// json.Number into an int64 (if it parses as one, preserving WAMP integer
// fields like request ids exactly) or a float64 otherwise.
func resolveNumbers(x any) (any, error) {
	switch t := x.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("codec: json number %q: %w", t.String(), err)
		}
		return f, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			r, err := resolveNumbers(e)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			r, err := resolveNumbers(e)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	default:
		return x, nil
	}
}
