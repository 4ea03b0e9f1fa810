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

package memfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/crucible-sh/crucible/internal/provider"
	"github.com/stretchr/testify/require"
)

func TestCreateSandboxThenSnapshotThenRestoreRoundTrips(t *testing.T) {
	ctx := context.Background()
	p, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, p.CreateSandbox(ctx, "sbx-1", provider.SandboxSpec{Image: "alpine:3"}))
	require.NoError(t, p.PutFile(ctx, "sbx-1", "hello.txt", []byte("world")))

	staging := t.TempDir()
	meta, err := p.CreateSnapshot(ctx, "sbx-1", staging)
	require.NoError(t, err)
	require.Greater(t, meta.SizeBytes, int64(0))

	require.NoError(t, p.RestoreSnapshot(ctx, "snap-1", "sbx-2", staging))

	data, err := p.GetFile(ctx, "sbx-2", "hello.txt")
	require.NoError(t, err)
	require.Equal(t, "world", string(data))
}

func TestCreateSnapshotForUnknownSandboxFails(t *testing.T) {
	ctx := context.Background()
	p, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = p.CreateSnapshot(ctx, "does-not-exist", t.TempDir())
	require.Error(t, err)
}

func TestCreateSnapshotErrorInjection(t *testing.T) {
	ctx := context.Background()
	p, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, p.CreateSandbox(ctx, "sbx-3", provider.SandboxSpec{}))

	injected := os.ErrPermission
	p.CreateSnapshotErrors["sbx-3"] = injected

	_, err = p.CreateSnapshot(ctx, "sbx-3", t.TempDir())
	require.ErrorIs(t, err, injected)
}

func TestDestroySandboxRemovesDirectory(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	p, err := New(root)
	require.NoError(t, err)

	require.NoError(t, p.CreateSandbox(ctx, "sbx-4", provider.SandboxSpec{}))
	require.NoError(t, p.DestroySandbox(ctx, "sbx-4", false))

	_, err = os.Stat(filepath.Join(root, "sandboxes", "sbx-4"))
	require.True(t, os.IsNotExist(err))

	_, err = p.Exec(ctx, "sbx-4", []string{"true"}, nil, "", 0)
	require.Error(t, err)
}
