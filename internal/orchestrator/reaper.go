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
	"fmt"
)

// Reap reconciles store directories against catalog state, per
// SPEC_FULL.md §4.D.1 and §7 Recovery: it removes staging directories
// with no corresponding CREATING row, and demotes READY rows whose
// final directory has gone missing to FAILED. It is run once at
// daemon startup, before the RPC listener binds.
func (o *Orchestrator) Reap(ctx context.Context) error {
	if err := o.reapOrphanedStaging(ctx); err != nil {
		return err
	}
	return o.reapMissingFinal(ctx)
}

func (o *Orchestrator) reapOrphanedStaging(ctx context.Context) error {
	staging, err := o.store.ListStaging()
	if err != nil {
		return fmt.Errorf("orchestrator: reap: list staging: %w", err)
	}

	creating, err := o.cat.ListCreatingIDs(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: reap: list creating: %w", err)
	}
	creatingSet := make(map[string]bool, len(creating))
	for _, id := range creating {
		creatingSet[id] = true
	}

	for _, id := range staging {
		if creatingSet[id] {
			continue
		}
		if err := o.store.Abort(id); err != nil {
			o.log.Warn("reaper: failed to remove orphaned staging dir", "snapshot_id", id, "error", err)
			continue
		}
		o.log.Info("reaper: removed orphaned staging directory", "snapshot_id", id)
	}
	return nil
}

func (o *Orchestrator) reapMissingFinal(ctx context.Context) error {
	ready, err := o.cat.ListReadyIDs(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: reap: list ready: %w", err)
	}

	for _, id := range ready {
		if _, ok := o.store.Lookup(id); ok {
			continue
		}
		if err := o.cat.MarkFailed(ctx, id, "reaper: final directory missing or incomplete at startup"); err != nil {
			o.log.Warn("reaper: failed to demote orphaned ready row", "snapshot_id", id, "error", err)
			continue
		}
		o.log.Warn("reaper: demoted READY snapshot with missing content to FAILED", "snapshot_id", id)
	}
	return nil
}
