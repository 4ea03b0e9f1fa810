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

// Package memfs implements provider.Provider against plain directories
// on the local filesystem. Unlike internal/provider/lima it reports
// SnapshotCapable=true, so it exercises the full snapshot subsystem
// (store + catalog + orchestrator) in tests without a real VM.
//
// Grounded on driver/mock_mounter.go's fake-with-injectable-errors
// pattern: maps tracking state plus *Errors maps for fault injection.
package memfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/crucible-sh/crucible/internal/crucibleerr"
	"github.com/crucible-sh/crucible/internal/provider"
)

// Provider is an in-memory-registry, on-disk-payload test provider.
type Provider struct {
	mu       sync.RWMutex
	rootDir  string
	sandboxes map[string]provider.SandboxSpec
	destroyed map[string]bool

	// Fault injection, mirroring MockMounter's *Errors maps.
	CreateSnapshotErrors map[string]error
	ExecErrors           map[string]error

	// lastArgv/lastCwd record the most recent composed invocation this
	// provider was handed, so tests can assert on the executor's
	// composition order/content without a real sandboxing runner.
	lastArgv []string
	lastCwd  string
}

// New returns a memfs Provider rooted at rootDir (created if absent).
func New(rootDir string) (*Provider, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("memfs: mkdir root: %w", err)
	}
	return &Provider{
		rootDir:              rootDir,
		sandboxes:            make(map[string]provider.SandboxSpec),
		destroyed:            make(map[string]bool),
		CreateSnapshotErrors: make(map[string]error),
		ExecErrors:           make(map[string]error),
	}, nil
}

func (p *Provider) Name() string { return "memfs" }

func (p *Provider) sandboxDir(id string) string {
	return filepath.Join(p.rootDir, "sandboxes", id)
}

func (p *Provider) Probe(ctx context.Context) (provider.Health, error) {
	return provider.Health{Healthy: true, Version: "memfs-dev", SnapshotCapable: true, GPUCapable: false}, nil
}

func (p *Provider) CreateSandbox(ctx context.Context, sandboxID string, spec provider.SandboxSpec) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.MkdirAll(p.sandboxDir(sandboxID), 0o755); err != nil {
		return fmt.Errorf("memfs: create sandbox %s: %w", sandboxID, err)
	}
	p.sandboxes[sandboxID] = spec
	delete(p.destroyed, sandboxID)
	return nil
}

func (p *Provider) StartSandbox(ctx context.Context, sandboxID string) error { return nil }
func (p *Provider) StopSandbox(ctx context.Context, sandboxID string, force bool) error { return nil }

func (p *Provider) DestroySandbox(ctx context.Context, sandboxID string, force bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.RemoveAll(p.sandboxDir(sandboxID)); err != nil {
		return fmt.Errorf("memfs: destroy sandbox %s: %w", sandboxID, err)
	}
	delete(p.sandboxes, sandboxID)
	p.destroyed[sandboxID] = true
	return nil
}

func (p *Provider) Exec(ctx context.Context, sandboxID string, argv []string, env map[string]string, cwd string, timeoutMS int64) (provider.ExecResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ExecErrors[sandboxID]; err != nil {
		return provider.ExecResult{ExitCode: -1}, err
	}
	if p.destroyed[sandboxID] {
		return provider.ExecResult{ExitCode: -1}, fmt.Errorf("memfs: exec in %s: %w", sandboxID, crucibleerr.ErrNotFound)
	}
	if len(argv) == 0 {
		return provider.ExecResult{ExitCode: -1}, fmt.Errorf("memfs: exec in %s: %w: empty argv", sandboxID, crucibleerr.ErrInvalid)
	}
	p.lastArgv = append([]string(nil), argv...)
	p.lastCwd = cwd
	return provider.ExecResult{ExitCode: 0}, nil
}

// LastInvocation returns the argv and cwd most recently passed to
// Exec, for tests asserting on the executor's composed invocation.
func (p *Provider) LastInvocation() ([]string, string) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.lastArgv...), p.lastCwd
}

// CreateSnapshot copies every file of the sandbox directory into
// destinationDir, keeping relative paths, and reports the total bytes
// copied; good enough to exercise the store's two-phase publish
// without a real VM image format.
func (p *Provider) CreateSnapshot(ctx context.Context, sandboxID, destinationDir string) (provider.SnapshotMeta, error) {
	p.mu.RLock()
	injected := p.CreateSnapshotErrors[sandboxID]
	p.mu.RUnlock()
	if injected != nil {
		return provider.SnapshotMeta{}, injected
	}

	p.mu.RLock()
	_, known := p.sandboxes[sandboxID]
	p.mu.RUnlock()
	if !known {
		return provider.SnapshotMeta{}, fmt.Errorf("memfs: create snapshot for %s: %w", sandboxID, crucibleerr.ErrNotFound)
	}

	var size int64
	err := filepath.WalkDir(p.sandboxDir(sandboxID), func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(p.sandboxDir(sandboxID), path)
		if err != nil {
			return err
		}
		dest := filepath.Join(destinationDir, rel)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		n, err := copyFile(path, dest)
		size += n
		return err
	})
	if err != nil {
		return provider.SnapshotMeta{}, fmt.Errorf("memfs: create snapshot for %s: %w", sandboxID, err)
	}

	return provider.SnapshotMeta{SandboxID: sandboxID, SizeBytes: size}, nil
}

func (p *Provider) RestoreSnapshot(ctx context.Context, snapshotID, newSandboxID, sourceDir string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	dest := p.sandboxDir(newSandboxID)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("memfs: restore snapshot %s: %w", snapshotID, err)
	}

	err := filepath.WalkDir(sourceDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		out := filepath.Join(dest, rel)
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return err
		}
		_, err = copyFile(path, out)
		return err
	})
	if err != nil {
		return fmt.Errorf("memfs: restore snapshot %s: %w", snapshotID, err)
	}

	p.sandboxes[newSandboxID] = provider.SandboxSpec{}
	delete(p.destroyed, newSandboxID)
	return nil
}

func (p *Provider) DeleteSnapshot(ctx context.Context, snapshotID string) error { return nil }

func (p *Provider) PutFile(ctx context.Context, sandboxID, guestPath string, data []byte) error {
	dest := filepath.Join(p.sandboxDir(sandboxID), guestPath)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("memfs: put file %s: %w", guestPath, err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("memfs: put file %s: %w", guestPath, err)
	}
	return nil
}

func (p *Provider) GetFile(ctx context.Context, sandboxID, guestPath string) ([]byte, error) {
	src := filepath.Join(p.sandboxDir(sandboxID), guestPath)
	data, err := os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("memfs: get file %s: %w", guestPath, crucibleerr.ErrNotFound)
		}
		return nil, fmt.Errorf("memfs: get file %s: %w", guestPath, err)
	}
	return data, nil
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	return io.Copy(out, in)
}
