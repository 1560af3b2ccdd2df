// Package rpc carries the mirror protocol over gRPC. Messages are plain Go
// structs encoded as JSON by Codec, so no generated stubs are involved;
// ServiceDesc and MirrorClient take their place.
package rpc

import (
	"encoding/json"
	"fmt"
)

// Codec is a grpc encoding.Codec that speaks JSON.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("rpc marshal %T: %w", v, err)
	}
	return b, nil
}

func (Codec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("rpc unmarshal %T: %w", v, err)
	}
	return nil
}

func (Codec) Name() string { return "json" }
