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

package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestBeginCommitDeleteRoundTrip(t *testing.T) {
	s := newTestStore(t)

	staging, err := s.Begin("snap-1")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(staging, "payload.bin"), []byte("hello"), 0o644))

	final, err := s.Commit("snap-1")
	require.NoError(t, err)

	got, ok := s.Lookup("snap-1")
	require.True(t, ok)
	require.Equal(t, final, got)

	payload, err := os.ReadFile(filepath.Join(got, "payload.bin"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(payload))

	require.NoError(t, s.Delete("snap-1"))
	_, ok = s.Lookup("snap-1")
	require.False(t, ok)
}

func TestAbortIsIdempotent(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Begin("snap-2")
	require.NoError(t, err)

	require.NoError(t, s.Abort("snap-2"))
	require.NoError(t, s.Abort("snap-2"))

	_, ok := s.Lookup("snap-2")
	require.False(t, ok)
}

func TestBeginRetryClearsStaleStaging(t *testing.T) {
	s := newTestStore(t)

	staging, err := s.Begin("snap-3")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(staging, "stale.bin"), []byte("old"), 0o644))

	staging2, err := s.Begin("snap-3")
	require.NoError(t, err)
	require.Equal(t, staging, staging2)

	entries, err := os.ReadDir(staging2)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestCommitWithoutReadyContentIsStillAtomic(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Begin("snap-4")
	require.NoError(t, err)

	final, err := s.Commit("snap-4")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(final, completeMarker))
	require.NoError(t, err)
}

func TestCommitIsIdempotentAgainstStaleFinalDir(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Begin("snap-5")
	require.NoError(t, err)
	_, err = s.Commit("snap-5")
	require.NoError(t, err)

	_, err = s.Begin("snap-5")
	require.NoError(t, err)
	final, err := s.Commit("snap-5")
	require.NoError(t, err)

	_, ok := s.Lookup("snap-5")
	require.True(t, ok)
	_ = final
}

func TestListStagingAndListFinal(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Begin("staged-only")
	require.NoError(t, err)

	_, err = s.Begin("ready-one")
	require.NoError(t, err)
	_, err = s.Commit("ready-one")
	require.NoError(t, err)

	staging, err := s.ListStaging()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"staged-only"}, staging)

	final, err := s.ListFinal()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"ready-one"}, final)
}
