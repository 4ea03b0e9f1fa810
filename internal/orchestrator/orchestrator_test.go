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

package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/crucible-sh/crucible/internal/catalog"
	"github.com/crucible-sh/crucible/internal/crucibleerr"
	"github.com/crucible-sh/crucible/internal/provider"
	"github.com/crucible-sh/crucible/internal/provider/memfs"
	"github.com/crucible-sh/crucible/internal/store"
	"github.com/stretchr/testify/require"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *memfs.Provider) {
	t.Helper()
	ctx := context.Background()

	st, err := store.New(filepath.Join(t.TempDir(), "snapshots"))
	require.NoError(t, err)

	cat, err := catalog.Open(filepath.Join(t.TempDir(), "crucible.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })

	prov, err := memfs.New(filepath.Join(t.TempDir(), "provider"))
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	o, err := New(ctx, st, cat, prov, 5, log)
	require.NoError(t, err)

	return o, prov
}

func createSnapshottableSandbox(t *testing.T, ctx context.Context, o *Orchestrator) string {
	t.Helper()
	id, err := o.CreateSandbox(ctx, provider.SandboxSpec{
		Image:  "alpine:3",
		Policy: provider.SandboxPolicy{EnableSnapshotting: true},
	})
	require.NoError(t, err)
	return id
}

// S1: happy path.
func TestCreateSnapshotHappyPath(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOrchestrator(t)

	sandboxID := createSnapshottableSandbox(t, ctx, o)
	snap, err := o.CreateSnapshot(ctx, sandboxID, "first", nil, catalog.ModeFull)
	require.NoError(t, err)
	require.Equal(t, catalog.StateReady, snap.State)
	require.Equal(t, snap.ID, snap.RootID)
}

// S2: provider failure leaves no final directory and a FAILED row.
func TestCreateSnapshotProviderFailure(t *testing.T) {
	ctx := context.Background()
	o, prov := newTestOrchestrator(t)

	sandboxID := createSnapshottableSandbox(t, ctx, o)
	prov.CreateSnapshotErrors[sandboxID] = context.DeadlineExceeded

	_, err := o.CreateSnapshot(ctx, sandboxID, "will-fail", nil, catalog.ModeFull)
	require.Error(t, err)

	snaps, err := o.cat.ListBySandbox(ctx, sandboxID)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	require.Equal(t, catalog.StateFailed, snaps[0].State)
	require.NotEmpty(t, snaps[0].LastError)
	_, ok := o.store.Lookup(snaps[0].ID)
	require.False(t, ok)
	require.False(t, o.store.StagingExists(snaps[0].ID))
}

// S3: restore against a snapshot that isn't READY fails FailedPrecondition.
func TestRestoreBeforeReadyFails(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOrchestrator(t)

	sandboxID := createSnapshottableSandbox(t, ctx, o)

	// Simulate an in-flight creation by writing a CREATING row directly,
	// without ever calling CreateSnapshot to completion.
	require.NoError(t, o.cat.InsertCreating(ctx, "in-flight", o.prov.Name(), sandboxID, catalog.ModeFull, ""))

	_, err := o.RestoreSnapshot(ctx, "in-flight", "")
	require.Error(t, err)
	var ce *crucibleerr.Error
	require.ErrorAs(t, err, &ce)
	require.Equal(t, crucibleerr.KindFailedPrecondition, ce.Kind)
}

// S4/S5 equivalents: chain protection and GC reclaim are covered at
// the gcengine unit level (internal/gcengine), and S6 in
// internal/executor; here we check the orchestrator wiring end to end
// for a simple reclaim case.
func TestGarbageCollectReclaimsUnreferencedSnapshot(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOrchestrator(t)

	sandboxID := createSnapshottableSandbox(t, ctx, o)

	var last *catalog.Snapshot
	for i := 0; i < 3; i++ {
		snap, err := o.CreateSnapshot(ctx, sandboxID, "gen", nil, catalog.ModeFull)
		require.NoError(t, err)
		last = snap
	}

	result, err := o.GarbageCollect(ctx, 1, 0, false)
	require.NoError(t, err)
	require.Len(t, result.DeletedIDs, 2)
	require.NotContains(t, result.DeletedIDs, last.ID)
}

func TestGarbageCollectDryRunChangesNothing(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOrchestrator(t)

	sandboxID := createSnapshottableSandbox(t, ctx, o)
	for i := 0; i < 2; i++ {
		_, err := o.CreateSnapshot(ctx, sandboxID, "gen", nil, catalog.ModeFull)
		require.NoError(t, err)
	}

	dry, err := o.GarbageCollect(ctx, 1, 0, true)
	require.NoError(t, err)

	wet, err := o.GarbageCollect(ctx, 1, 0, false)
	require.NoError(t, err)

	require.ElementsMatch(t, dry.DeletedIDs, wet.DeletedIDs)
}

func TestCreateSnapshotRejectedWhenSnapshottingDisabled(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOrchestrator(t)

	sandboxID, err := o.CreateSandbox(ctx, provider.SandboxSpec{Image: "alpine:3"})
	require.NoError(t, err)

	_, err = o.CreateSnapshot(ctx, sandboxID, "nope", nil, catalog.ModeFull)
	require.Error(t, err)
}

func TestReapDemotesReadyRowWithMissingContent(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOrchestrator(t)

	sandboxID := createSnapshottableSandbox(t, ctx, o)
	snap, err := o.CreateSnapshot(ctx, sandboxID, "gone", nil, catalog.ModeFull)
	require.NoError(t, err)

	require.NoError(t, o.store.Delete(snap.ID))

	require.NoError(t, o.Reap(ctx))

	state, err := o.cat.GetState(ctx, snap.ID)
	require.NoError(t, err)
	require.Equal(t, catalog.StateFailed, state)
}
