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

// Package lima implements provider.Provider by shelling out to limactl
// against a single background Lima guest, treating each sandbox as a
// directory inside that guest. It is a development-grade provider: it
// reports SnapshotCapable=false and GPUCapable=false at Probe, so the
// orchestrator's capability gate (SPEC_FULL.md §4.A, §4.D) rejects
// snapshot operations against it rather than silently degrading.
//
// Grounded directly on
// original_source/crates/crucible-daemon/src/provider/lima.rs: same
// command shapes (limactl shell/cp/list/--version), same Unsupported
// stance on create/restore/delete snapshot.
package lima

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/crucible-sh/crucible/internal/crucibleerr"
	"github.com/crucible-sh/crucible/internal/provider"
	kexec "k8s.io/utils/exec"
)

const sandboxBase = "/tmp/crucible_sandbox_"

// Provider shells out to limactl against a single named instance.
type Provider struct {
	instanceName string
	exec         kexec.Interface
}

// New returns a lima Provider targeting the given Lima instance name.
// exec is injectable for tests, mirroring driver/mounter.go's use of
// k8s.io/utils/exec.Interface to make subprocess calls mockable.
func New(instanceName string, exec kexec.Interface) *Provider {
	if exec == nil {
		exec = kexec.New()
	}
	return &Provider{instanceName: instanceName, exec: exec}
}

func (p *Provider) Name() string { return "lima" }

func (p *Provider) sandboxDir(id string) string {
	return sandboxBase + id
}

func (p *Provider) run(ctx context.Context, args ...string) (string, error) {
	cmd := p.exec.CommandContext(ctx, args[0], args[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("lima: %s: %w: %s", strings.Join(args, " "), err, string(out))
	}
	return string(out), nil
}

func (p *Provider) shell(ctx context.Context, script string) (string, error) {
	return p.run(ctx, "limactl", "shell", p.instanceName, "sh", "-c", script)
}

// Probe checks that limactl is present and the target instance is
// running. Lima's directory-based isolation has no native snapshot
// primitive, so SnapshotCapable is always false; GPU passthrough is
// not wired for this provider either.
func (p *Provider) Probe(ctx context.Context) (provider.Health, error) {
	versionOut, err := p.run(ctx, "limactl", "--version")
	if err != nil {
		return provider.Health{Healthy: false}, nil
	}

	listOut, err := p.run(ctx, "limactl", "list", "--json")
	if err != nil {
		return provider.Health{Healthy: false, Version: strings.TrimSpace(versionOut)}, nil
	}

	running := false
	dec := json.NewDecoder(bytes.NewReader([]byte(listOut)))
	for {
		var entry struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		}
		if err := dec.Decode(&entry); err != nil {
			break
		}
		if entry.Name == p.instanceName && strings.EqualFold(entry.Status, "running") {
			running = true
			break
		}
	}

	return provider.Health{
		Healthy:         running,
		Version:         strings.TrimSpace(versionOut),
		SnapshotCapable: false,
		GPUCapable:      false,
	}, nil
}

func (p *Provider) CreateSandbox(ctx context.Context, sandboxID string, spec provider.SandboxSpec) error {
	dir := p.sandboxDir(sandboxID)
	if _, err := p.shell(ctx, fmt.Sprintf("mkdir -p %q", dir)); err != nil {
		return fmt.Errorf("lima: create sandbox %s: %w", sandboxID, err)
	}
	if len(spec.InitCmd) > 0 {
		if _, err := p.Exec(ctx, sandboxID, spec.InitCmd, nil, "", 0); err != nil {
			return fmt.Errorf("lima: create sandbox %s: init cmd: %w", sandboxID, err)
		}
	}
	return nil
}

func (p *Provider) StartSandbox(ctx context.Context, sandboxID string) error { return nil }

func (p *Provider) StopSandbox(ctx context.Context, sandboxID string, force bool) error { return nil }

func (p *Provider) DestroySandbox(ctx context.Context, sandboxID string, force bool) error {
	dir := p.sandboxDir(sandboxID)
	if _, err := p.shell(ctx, fmt.Sprintf("rm -rf %q", dir)); err != nil {
		return fmt.Errorf("lima: destroy sandbox %s: %w", sandboxID, err)
	}
	return nil
}

// Exec runs argv through `limactl shell` inside dir (cwd, or the
// sandbox directory when cwd is empty). timeoutMS is not applied: the
// command runs until it exits or ctx ends.
func (p *Provider) Exec(ctx context.Context, sandboxID string, argv []string, env map[string]string, cwd string, timeoutMS int64) (provider.ExecResult, error) {
	dir := cwd
	if dir == "" {
		dir = p.sandboxDir(sandboxID)
	}

	var envPrefix strings.Builder
	for k, v := range env {
		fmt.Fprintf(&envPrefix, "%s=%q ", k, v)
	}

	script := fmt.Sprintf("cd %q && %s%s", dir, envPrefix.String(), strings.Join(argv, " "))
	out, err := p.shell(ctx, script)
	if err != nil {
		return provider.ExecResult{ExitCode: -1}, fmt.Errorf("lima: exec in %s: %w: %s", sandboxID, err, out)
	}
	return provider.ExecResult{ExitCode: 0}, nil
}

func (p *Provider) CreateSnapshot(ctx context.Context, sandboxID, destinationDir string) (provider.SnapshotMeta, error) {
	return provider.SnapshotMeta{}, fmt.Errorf("lima: create snapshot: %w", crucibleerr.ErrUnsupported)
}

func (p *Provider) RestoreSnapshot(ctx context.Context, snapshotID, newSandboxID, sourceDir string) error {
	return fmt.Errorf("lima: restore snapshot: %w", crucibleerr.ErrUnsupported)
}

func (p *Provider) DeleteSnapshot(ctx context.Context, snapshotID string) error {
	return fmt.Errorf("lima: delete snapshot: %w", crucibleerr.ErrUnsupported)
}

func (p *Provider) PutFile(ctx context.Context, sandboxID, guestPath string, data []byte) error {
	tmp, err := os.CreateTemp("", "crucible-put-*")
	if err != nil {
		return fmt.Errorf("lima: put file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("lima: put file: %w", err)
	}
	tmp.Close()

	dest := filepath.Join(p.sandboxDir(sandboxID), guestPath)
	if _, err := p.run(ctx, "limactl", "cp", tmp.Name(), p.instanceName+":"+dest); err != nil {
		return fmt.Errorf("lima: put file %s: %w", guestPath, err)
	}
	return nil
}

func (p *Provider) GetFile(ctx context.Context, sandboxID, guestPath string) ([]byte, error) {
	tmp, err := os.CreateTemp("", "crucible-get-*")
	if err != nil {
		return nil, fmt.Errorf("lima: get file: %w", err)
	}
	defer os.Remove(tmp.Name())
	tmp.Close()

	src := filepath.Join(p.sandboxDir(sandboxID), guestPath)
	if _, err := p.run(ctx, "limactl", "cp", p.instanceName+":"+src, tmp.Name()); err != nil {
		return nil, fmt.Errorf("lima: get file %s: %w", guestPath, err)
	}
	return os.ReadFile(tmp.Name())
}
