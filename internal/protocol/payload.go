package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PayloadBytes converts the payload forms accepted by command constructors.
func PayloadBytes(v any) ([]byte, error) {
	switch p := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(p), nil
	case []byte:
		return bytes.Clone(p), nil
	case json.RawMessage:
		return bytes.Clone(p), nil
	case *bytes.Buffer:
		if p == nil {
			return nil, nil
		}
		return bytes.Clone(p.Bytes()), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedPayloadType, v)
	}
}
