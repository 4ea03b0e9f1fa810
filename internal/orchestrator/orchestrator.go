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

// Package orchestrator is the snapshot orchestrator and sandbox
// lifecycle coordinator (SPEC_FULL.md §4.D): it ties the store, the
// catalog, and a provider into atomic, crash-safe operations.
//
// Grounded on
// original_source/crates/crucible-daemon/src/server/snapshots.rs for
// the create/restore/garbage_collect step ordering, translated from
// tonic's async handlers into plain Go methods.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/crucible-sh/crucible/internal/catalog"
	"github.com/crucible-sh/crucible/internal/crucibleerr"
	"github.com/crucible-sh/crucible/internal/gcengine"
	"github.com/crucible-sh/crucible/internal/provider"
	"github.com/crucible-sh/crucible/internal/store"
	"github.com/google/uuid"
)

// Orchestrator coordinates the store, catalog, and provider.
type Orchestrator struct {
	store *store.Store
	cat   *catalog.Catalog
	prov  provider.Provider
	log   *slog.Logger

	// defaultKeepLatest is the daemon-wide fallback applied by
	// GarbageCollect when a request leaves KeepLatestPerSandbox unset
	// (<= 0). gcengine's own hardcoded default remains the final
	// fallback if this is itself unset.
	defaultKeepLatest int

	mu     sync.RWMutex
	health provider.Health
}

// New returns an Orchestrator. The provider is probed once
// synchronously so CachedHealth has a value before the first request.
// defaultKeepLatest is the daemon-wide keep-latest-per-sandbox default
// applied to garbage collection requests that don't specify one.
func New(ctx context.Context, st *store.Store, cat *catalog.Catalog, prov provider.Provider, defaultKeepLatest int, log *slog.Logger) (*Orchestrator, error) {
	o := &Orchestrator{store: st, cat: cat, prov: prov, defaultKeepLatest: defaultKeepLatest, log: log}
	if _, err := o.Probe(ctx); err != nil {
		return nil, fmt.Errorf("orchestrator: initial probe: %w", err)
	}
	return o, nil
}

// Probe re-queries the provider's health and updates the cache.
func (o *Orchestrator) Probe(ctx context.Context) (provider.Health, error) {
	h, err := o.prov.Probe(ctx)
	if err != nil {
		return provider.Health{}, fmt.Errorf("orchestrator: probe: %w", err)
	}
	o.mu.Lock()
	o.health = h
	o.mu.Unlock()
	return h, nil
}

// CachedHealth returns the most recently probed health, implementing
// executor.HealthSource.
func (o *Orchestrator) CachedHealth() provider.Health {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.health
}

// RunHealthLoop re-probes the provider every interval until ctx is
// canceled. Resolves SPEC_FULL.md §9 Open Question (a): a provider
// that regains snapshot capability mid-run is picked up without a
// daemon restart.
func (o *Orchestrator) RunHealthLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := o.Probe(ctx); err != nil {
				o.log.Warn("provider re-probe failed", "error", err)
			}
		}
	}
}

// GetPolicy implements executor.PolicySource by reading the policy
// blob recorded at sandbox creation time.
func (o *Orchestrator) GetPolicy(ctx context.Context, sandboxID string) (provider.SandboxPolicy, error) {
	_, _, policyJSON, err := o.cat.GetSandboxSpec(ctx, sandboxID)
	if err != nil {
		return provider.SandboxPolicy{}, fmt.Errorf("orchestrator: get policy %s: %w", sandboxID, err)
	}
	var policy provider.SandboxPolicy
	if err := json.Unmarshal(policyJSON, &policy); err != nil {
		return provider.SandboxPolicy{}, fmt.Errorf("orchestrator: get policy %s: unmarshal: %w", sandboxID, err)
	}
	return policy, nil
}

// CreateSandbox creates a sandbox via the provider and records its
// spec (image, policy) in the catalog so the executor can look up
// policy without depending on the provider directly.
func (o *Orchestrator) CreateSandbox(ctx context.Context, spec provider.SandboxSpec) (string, error) {
	sandboxID := uuid.NewString()

	if err := o.prov.CreateSandbox(ctx, sandboxID, spec); err != nil {
		return "", fmt.Errorf("orchestrator: create sandbox: %w", err)
	}

	policyJSON, err := json.Marshal(spec.Policy)
	if err != nil {
		return "", fmt.Errorf("orchestrator: create sandbox: marshal policy: %w", err)
	}
	if err := o.cat.PutSandboxSpec(ctx, sandboxID, o.prov.Name(), spec.Image, policyJSON); err != nil {
		return "", fmt.Errorf("orchestrator: create sandbox: record spec: %w", err)
	}

	return sandboxID, nil
}

// StopSandbox stops a sandbox via the provider; it does not remove
// the sandbox's recorded spec.
func (o *Orchestrator) StopSandbox(ctx context.Context, sandboxID string, force bool) error {
	if err := o.prov.StopSandbox(ctx, sandboxID, force); err != nil {
		return fmt.Errorf("orchestrator: stop sandbox %s: %w", sandboxID, err)
	}
	return nil
}

// DestroySandbox destroys a sandbox and removes its recorded spec.
// Destroy is terminal: a subsequent snapshot/exec against sandboxID
// fails with NotFound (SPEC_FULL.md §3).
func (o *Orchestrator) DestroySandbox(ctx context.Context, sandboxID string, force bool) error {
	if err := o.prov.DestroySandbox(ctx, sandboxID, force); err != nil {
		return fmt.Errorf("orchestrator: destroy sandbox %s: %w", sandboxID, err)
	}
	if err := o.cat.DeleteSandboxSpec(ctx, sandboxID); err != nil {
		return fmt.Errorf("orchestrator: destroy sandbox %s: %w", sandboxID, err)
	}
	return nil
}

// ListSandboxIDs returns every recorded sandbox ID.
func (o *Orchestrator) ListSandboxIDs(ctx context.Context) ([]string, error) {
	ids, err := o.cat.ListSandboxSpecs(ctx)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: list sandboxes: %w", err)
	}
	return ids, nil
}

// CreateSnapshot runs the create-snapshot state machine described in
// SPEC_FULL.md §4.D: gate on capability, begin staging, record
// CREATING, ask the provider to write content, commit, mark READY.
func (o *Orchestrator) CreateSnapshot(ctx context.Context, sandboxID, name string, labels map[string]string, mode catalog.Mode) (*catalog.Snapshot, error) {
	policy, err := o.GetPolicy(ctx, sandboxID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: create snapshot: %w", err)
	}
	if !policy.EnableSnapshotting {
		return nil, crucibleerr.FailedPrecondition("orchestrator: create snapshot",
			fmt.Errorf("sandbox %s does not have snapshotting enabled", sandboxID))
	}
	if !o.CachedHealth().SnapshotCapable {
		return nil, fmt.Errorf("orchestrator: create snapshot: %w", crucibleerr.ErrUnsupported)
	}

	id := uuid.NewString()

	stagingDir, err := o.store.Begin(id)
	if err != nil {
		return nil, crucibleerr.Internal("orchestrator: create snapshot: begin staging", err)
	}

	if err := o.cat.InsertCreating(ctx, id, o.prov.Name(), sandboxID, mode, ""); err != nil {
		_ = o.store.Abort(id)
		return nil, crucibleerr.Internal("orchestrator: create snapshot: insert creating row", err)
	}

	meta, err := o.prov.CreateSnapshot(ctx, sandboxID, stagingDir)
	if err != nil {
		_ = o.store.Abort(id)
		_ = o.cat.MarkFailed(ctx, id, err.Error())
		return nil, crucibleerr.Internal("orchestrator: create snapshot: provider write", err)
	}

	if _, err := o.store.Commit(id); err != nil {
		_ = o.cat.MarkFailed(ctx, id, err.Error())
		return nil, crucibleerr.Internal("orchestrator: create snapshot: commit staging", err)
	}

	if err := o.cat.SetName(ctx, id, name, labels); err != nil {
		o.log.Warn("failed to set snapshot name/labels", "snapshot_id", id, "error", err)
	}

	if err := o.cat.MarkReady(ctx, id, meta.SizeBytes); err != nil {
		return nil, crucibleerr.Internal("orchestrator: create snapshot: mark ready", err)
	}

	return o.cat.GetByID(ctx, id)
}

// RestoreSnapshot materializes a new sandbox from a READY snapshot.
func (o *Orchestrator) RestoreSnapshot(ctx context.Context, snapshotID, targetSandboxID string) (string, error) {
	if !o.CachedHealth().SnapshotCapable {
		return "", fmt.Errorf("orchestrator: restore snapshot %s: %w", snapshotID, crucibleerr.ErrUnsupported)
	}

	state, err := o.cat.GetState(ctx, snapshotID)
	if err != nil {
		return "", fmt.Errorf("orchestrator: restore snapshot %s: %w", snapshotID, err)
	}
	if state != catalog.StateReady {
		return "", crucibleerr.FailedPrecondition("orchestrator: restore snapshot",
			fmt.Errorf("snapshot %s is in state %s, not READY", snapshotID, state))
	}

	path, ok := o.store.Lookup(snapshotID)
	if !ok {
		return "", crucibleerr.Internal("orchestrator: restore snapshot",
			fmt.Errorf("snapshot %s has no on-disk content despite READY state", snapshotID))
	}

	newSandboxID := targetSandboxID
	if newSandboxID == "" {
		newSandboxID = uuid.NewString()
	}

	if err := o.prov.RestoreSnapshot(ctx, snapshotID, newSandboxID, path); err != nil {
		return "", fmt.Errorf("orchestrator: restore snapshot %s: %w", snapshotID, err)
	}

	return newSandboxID, nil
}

// DeleteSnapshot removes a single snapshot explicitly, honoring
// pinning and reference protection.
func (o *Orchestrator) DeleteSnapshot(ctx context.Context, snapshotID string) error {
	snap, err := o.cat.GetByID(ctx, snapshotID)
	if err != nil {
		return fmt.Errorf("orchestrator: delete snapshot %s: %w", snapshotID, err)
	}
	if snap.Pinned {
		return fmt.Errorf("orchestrator: delete snapshot %s: %w: snapshot is pinned", snapshotID, crucibleerr.ErrConflict)
	}
	refs, err := o.cat.ListRefs(ctx, snapshotID)
	if err != nil {
		return fmt.Errorf("orchestrator: delete snapshot %s: %w", snapshotID, err)
	}
	if len(refs) > 0 {
		return fmt.Errorf("orchestrator: delete snapshot %s: %w: snapshot has %d references", snapshotID, crucibleerr.ErrConflict, len(refs))
	}

	if err := o.store.Delete(snapshotID); err != nil {
		return crucibleerr.Internal("orchestrator: delete snapshot", err)
	}
	if err := o.cat.MarkDeleted(ctx, snapshotID); err != nil {
		return crucibleerr.Internal("orchestrator: delete snapshot", err)
	}
	return nil
}

// GetSnapshot returns the catalog row for id.
func (o *Orchestrator) GetSnapshot(ctx context.Context, id string) (*catalog.Snapshot, error) {
	return o.cat.GetByID(ctx, id)
}

// ListSnapshots returns every snapshot recorded for sourceSandboxID.
func (o *Orchestrator) ListSnapshots(ctx context.Context, sourceSandboxID string) ([]*catalog.Snapshot, error) {
	return o.cat.ListBySandbox(ctx, sourceSandboxID)
}

// GCResult is the outcome of a GarbageCollect call.
type GCResult struct {
	DeletedIDs     []string
	ReclaimedBytes int64
	Truncated      []string
}

// GarbageCollect runs the reachability engine (SPEC_FULL.md §4.F) and,
// unless dryRun, deletes every candidate from both the store and the
// catalog. A single candidate's failure is logged and skipped; it
// does not abort the batch (SPEC_FULL.md §4.D).
func (o *Orchestrator) GarbageCollect(ctx context.Context, keepLatestPerSandbox int, maxTotalBytes int64, dryRun bool) (*GCResult, error) {
	rows, err := o.cat.ListAllReady(ctx)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: garbage collect: %w", err)
	}
	refs, err := o.cat.ListAllRefs(ctx)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: garbage collect: %w", err)
	}

	if keepLatestPerSandbox <= 0 {
		keepLatestPerSandbox = o.defaultKeepLatest
	}

	selection := gcengine.SelectCandidates(gcengine.FromRows(rows), gcengine.Options{
		KeepLatestPerSandbox: keepLatestPerSandbox,
		MaxTotalBytes:        maxTotalBytes,
		Refs:                 refs,
	})

	result := &GCResult{Truncated: selection.Truncated}
	if dryRun {
		for _, c := range selection.Candidates {
			result.DeletedIDs = append(result.DeletedIDs, c.ID)
			result.ReclaimedBytes += c.SizeBytes
		}
		return result, nil
	}

	for _, c := range selection.Candidates {
		if err := o.store.Delete(c.ID); err != nil {
			o.log.Warn("gc: failed to delete snapshot from store, skipping", "snapshot_id", c.ID, "error", err)
			continue
		}
		if err := o.cat.MarkDeleted(ctx, c.ID); err != nil {
			o.log.Warn("gc: failed to mark snapshot deleted in catalog", "snapshot_id", c.ID, "error", err)
			continue
		}
		result.DeletedIDs = append(result.DeletedIDs, c.ID)
		result.ReclaimedBytes += c.SizeBytes
	}

	return result, nil
}
