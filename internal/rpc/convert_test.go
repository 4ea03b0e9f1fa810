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

package rpc

import (
	"testing"
	"time"

	"github.com/crucible-sh/crucible/internal/catalog"
	"github.com/crucible-sh/crucible/internal/rpc/pb"
	"github.com/stretchr/testify/require"
)

func TestPolicyFromWireCarriesMountsAndNetwork(t *testing.T) {
	wire := pb.SandboxPolicy{
		Network: pb.NetworkPolicy{DenyAll: true, AllowLoopback: true},
		Mounts:  []pb.MountSpec{{HostPath: "/h", GuestPath: "/g", ReadOnly: true}},
		EnableGPU: true,
	}

	policy := policyFromWire(wire)

	require.True(t, policy.Network.DenyAll)
	require.True(t, policy.Network.AllowLoopback)
	require.Len(t, policy.Mounts, 1)
	require.Equal(t, "/h", policy.Mounts[0].HostPath)
	require.True(t, policy.Mounts[0].ReadOnly)
	require.True(t, policy.EnableGPU)
}

func TestSnapshotToWirePreservesIdentityAndState(t *testing.T) {
	snap := &catalog.Snapshot{
		ID:              "snap-1",
		Provider:        "memfs",
		SourceSandboxID: "sbx-1",
		CreatedAt:       time.Unix(1700000000, 0),
		Mode:            catalog.ModeFull,
		State:           catalog.StateReady,
		RootID:          "snap-1",
		SizeBytes:       42,
	}

	wire := snapshotToWire(snap)

	require.Equal(t, "snap-1", wire.SnapshotID)
	require.Equal(t, "READY", wire.State)
	require.Equal(t, int64(42), wire.SizeBytes)
	require.Equal(t, int64(1700000000), wire.CreatedAtUnix)
}
