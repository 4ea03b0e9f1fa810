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

package codec

import (
	"testing"

	"github.com/crucible-sh/crucible/internal/rpc/pb"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	c := Codec{}

	req := &pb.CreateSandboxRequest{
		Image: "alpine:3",
		Policy: pb.SandboxPolicy{
			Network:   pb.NetworkPolicy{DenyAll: true},
			EnableGPU: true,
		},
	}

	data, err := c.Marshal(req)
	require.NoError(t, err)

	var got pb.CreateSandboxRequest
	require.NoError(t, c.Unmarshal(data, &got))
	require.Equal(t, *req, got)
}

func TestUnmarshalInvalidJSONFails(t *testing.T) {
	c := Codec{}
	var got pb.CreateSandboxRequest
	require.Error(t, c.Unmarshal([]byte("{not json"), &got))
}

func TestName(t *testing.T) {
	require.Equal(t, "json", Codec{}.Name())
}
