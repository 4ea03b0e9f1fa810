/*
Copyright 2026 Crucible Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package codec provides a JSON encoding.Codec for gRPC, registered
// via grpc.ForceServerCodec/grpc.ForceCodec. It stands in for a
// protoc-generated codec: messages are plain Go structs
// (internal/rpc/pb) encoded as JSON frames rather than protobuf wire
// format, so the daemon exercises the real google.golang.org/grpc
// transport, flow control, and interceptor chain without a protobuf
// compiler in the build.
package codec

import (
	"encoding/json"
	"fmt"
)

const Name = "json"

// Codec implements google.golang.org/grpc/encoding.Codec.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal: %w", err)
	}
	return data, nil
}

func (Codec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("codec: unmarshal: %w", err)
	}
	return nil
}

func (Codec) Name() string { return Name }
