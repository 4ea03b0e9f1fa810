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

// Package gcengine computes the reachability closure used to select
// garbage-collection candidates among READY snapshots (SPEC_FULL.md
// §4.F). It holds no storage of its own: callers supply the current
// READY rows and the engine does the in-memory worklist closure.
//
// Grounded on other_examples' ankitiscracked-fastest
// cli-internal-store-gc.go's BuildReachableSet (queue + visited-set
// BFS over parent links), adapted to walk upward from directly
// protected snapshots instead of downward from workspace roots.
package gcengine

import (
	"sort"

	"github.com/crucible-sh/crucible/internal/catalog"
)

// Row is the subset of catalog.Snapshot the engine needs.
type Row struct {
	ID              string
	SourceSandboxID string
	ParentID        string
	CreatedAt       int64 // unix nano, used only for ordering
	SizeBytes       int64
	Pinned          bool
}

// Candidate is a snapshot selected for deletion.
type Candidate struct {
	ID        string
	SizeBytes int64
}

// Result is the outcome of a candidate selection pass.
type Result struct {
	Candidates []Candidate
	// Truncated lists candidate IDs that were withheld because
	// MaxTotalBytes was reached before they could be included.
	Truncated []string
}

// Options configures candidate selection.
type Options struct {
	// KeepLatestPerSandbox is the size of the directly-protected
	// most-recent window, per source sandbox. Clamped to a default
	// of 5 when <= 0 (SPEC_FULL.md §8 boundary property 9).
	KeepLatestPerSandbox int
	// MaxTotalBytes caps cumulative reclaimed size; 0 means
	// unlimited. When set, candidates are considered oldest-first.
	MaxTotalBytes int64
	// Refs lists (snapshot_id -> true) for every snapshot that is
	// pinned-by-reference.
	Refs map[string]bool
}

const defaultKeepLatest = 5

// FromRows converts catalog rows into the engine's Row shape.
func FromRows(rows []*catalog.Snapshot) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, Row{
			ID:              r.ID,
			SourceSandboxID: r.SourceSandboxID,
			ParentID:        r.ParentID,
			CreatedAt:       r.CreatedAt.UnixNano(),
			SizeBytes:       r.SizeBytes,
			Pinned:          r.Pinned,
		})
	}
	return out
}

// SelectCandidates computes the set of READY rows that are safe to
// delete: those not in the transitive-parent closure of the directly
// protected set (pinned, referenced, or within the per-sandbox
// keep-latest window).
func SelectCandidates(rows []Row, opts Options) Result {
	keepLatest := opts.KeepLatestPerSandbox
	if keepLatest <= 0 {
		keepLatest = defaultKeepLatest
	}

	byID := make(map[string]Row, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}

	protected := directlyProtected(rows, keepLatest, opts.Refs)
	closeOverParents(protected, byID)

	var candidates []Row
	for _, r := range rows {
		if !protected[r.ID] {
			candidates = append(candidates, r)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt < candidates[j].CreatedAt
	})

	result := Result{}
	var cumulative int64
	truncating := false
	for _, c := range candidates {
		if truncating || (opts.MaxTotalBytes > 0 && cumulative+c.SizeBytes > opts.MaxTotalBytes) {
			truncating = true
			result.Truncated = append(result.Truncated, c.ID)
			continue
		}
		result.Candidates = append(result.Candidates, Candidate{ID: c.ID, SizeBytes: c.SizeBytes})
		cumulative += c.SizeBytes
	}

	return result
}

// directlyProtected returns the seed set: pinned snapshots, referenced
// snapshots, and the most-recent keepLatest READY snapshots per source
// sandbox (ties broken by ID, descending, to match SPEC_FULL.md §4.F).
func directlyProtected(rows []Row, keepLatest int, refs map[string]bool) map[string]bool {
	protected := make(map[string]bool)

	for _, r := range rows {
		if r.Pinned || refs[r.ID] {
			protected[r.ID] = true
		}
	}

	bySandbox := make(map[string][]Row)
	for _, r := range rows {
		bySandbox[r.SourceSandboxID] = append(bySandbox[r.SourceSandboxID], r)
	}

	for _, group := range bySandbox {
		sort.Slice(group, func(i, j int) bool {
			if group[i].CreatedAt != group[j].CreatedAt {
				return group[i].CreatedAt > group[j].CreatedAt
			}
			return group[i].ID > group[j].ID
		})
		for i := 0; i < len(group) && i < keepLatest; i++ {
			protected[group[i].ID] = true
		}
	}

	return protected
}

// closeOverParents extends protected in place to every ancestor
// reachable by following ParentID, via an iterative BFS worklist.
func closeOverParents(protected map[string]bool, byID map[string]Row) {
	queue := make([]string, 0, len(protected))
	for id := range protected {
		queue = append(queue, id)
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		row, ok := byID[current]
		if !ok || row.ParentID == "" {
			continue
		}
		if !protected[row.ParentID] {
			protected[row.ParentID] = true
			queue = append(queue, row.ParentID)
		}
	}
}
