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

package gcengine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// chain builds a linear parent chain A <- B <- C <- D all for the same
// sandbox, with strictly increasing CreatedAt (A oldest).
func chain(sandbox string) []Row {
	return []Row{
		{ID: "A", SourceSandboxID: sandbox, ParentID: "", CreatedAt: 1, SizeBytes: 10},
		{ID: "B", SourceSandboxID: sandbox, ParentID: "A", CreatedAt: 2, SizeBytes: 10},
		{ID: "C", SourceSandboxID: sandbox, ParentID: "B", CreatedAt: 3, SizeBytes: 10},
		{ID: "D", SourceSandboxID: sandbox, ParentID: "C", CreatedAt: 4, SizeBytes: 10},
	}
}

func TestKeepLatestProtectsWholeChain(t *testing.T) {
	rows := chain("sbx-1")
	result := SelectCandidates(rows, Options{KeepLatestPerSandbox: 1})
	require.Empty(t, result.Candidates, "every ancestor of the kept-latest snapshot must be protected")
}

func TestGCReclaimsSiblingLeaf(t *testing.T) {
	// A <- B, A <- C; C is newest and kept; B is a reclaimable leaf.
	rows := []Row{
		{ID: "A", SourceSandboxID: "sbx-2", ParentID: "", CreatedAt: 1, SizeBytes: 10},
		{ID: "B", SourceSandboxID: "sbx-2", ParentID: "A", CreatedAt: 2, SizeBytes: 20},
		{ID: "C", SourceSandboxID: "sbx-2", ParentID: "A", CreatedAt: 3, SizeBytes: 30},
	}
	result := SelectCandidates(rows, Options{KeepLatestPerSandbox: 1})

	require.Len(t, result.Candidates, 1)
	require.Equal(t, "B", result.Candidates[0].ID)
}

func TestPinnedSnapshotIsNeverACandidate(t *testing.T) {
	rows := []Row{
		{ID: "A", SourceSandboxID: "sbx-3", ParentID: "", CreatedAt: 1, SizeBytes: 10, Pinned: true},
		{ID: "B", SourceSandboxID: "sbx-3", ParentID: "", CreatedAt: 2, SizeBytes: 10},
	}
	result := SelectCandidates(rows, Options{KeepLatestPerSandbox: 1})
	for _, c := range result.Candidates {
		require.NotEqual(t, "A", c.ID)
	}
}

func TestReferencedSnapshotIsNeverACandidate(t *testing.T) {
	rows := []Row{
		{ID: "A", SourceSandboxID: "sbx-4", ParentID: "", CreatedAt: 1, SizeBytes: 10},
		{ID: "B", SourceSandboxID: "sbx-4", ParentID: "", CreatedAt: 2, SizeBytes: 10},
	}
	result := SelectCandidates(rows, Options{KeepLatestPerSandbox: 1, Refs: map[string]bool{"A": true}})
	for _, c := range result.Candidates {
		require.NotEqual(t, "A", c.ID)
	}
}

func TestKeepLatestClampsToDefaultWhenNonPositive(t *testing.T) {
	rows := chain("sbx-5")
	withZero := SelectCandidates(rows, Options{KeepLatestPerSandbox: 0})
	withDefault := SelectCandidates(rows, Options{KeepLatestPerSandbox: defaultKeepLatest})
	require.Equal(t, withDefault.Candidates, withZero.Candidates)
}

func TestMaxTotalBytesTruncatesOldestFirstWithoutSilentDrop(t *testing.T) {
	rows := []Row{
		{ID: "A", SourceSandboxID: "sbx-6", ParentID: "", CreatedAt: 1, SizeBytes: 50},
		{ID: "B", SourceSandboxID: "sbx-6", ParentID: "", CreatedAt: 2, SizeBytes: 50},
		{ID: "C", SourceSandboxID: "sbx-6", ParentID: "", CreatedAt: 3, SizeBytes: 50},
	}
	// keepLatest=1 keeps C directly protected; A and B are candidates.
	result := SelectCandidates(rows, Options{KeepLatestPerSandbox: 1, MaxTotalBytes: 50})

	require.Len(t, result.Candidates, 1)
	require.Equal(t, "A", result.Candidates[0].ID)
	require.Equal(t, []string{"B"}, result.Truncated)
}
