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

// Package provider defines the pluggable backend interface (SPEC_FULL.md
// §4.A) that the orchestrator and executor consume: the set of sandbox
// lifecycle, exec, snapshot, and file-transport operations a concrete
// isolation technology must offer.
//
// Grounded on other_examples' andyrewlee-amux internal/sandbox
// Provider/RemoteSandbox interfaces (capability-interface shape, optional
// feature pattern) crossed with original_source's
// provider/mod.rs SandboxProvider trait (method set, ProviderHealth).
package provider

import "context"

// Health reports what a provider currently supports. The orchestrator
// caches the most recent Health and re-probes periodically (SPEC_FULL.md
// §9 resolved Open Question (a)).
type Health struct {
	Healthy         bool
	Version         string
	SnapshotCapable bool
	GPUCapable      bool
}

// ResourceLimits bounds a sandbox's guest resources.
type ResourceLimits struct {
	VCPU      int
	MemoryMB  int
	DiskMB    int
	SandboxTTLSeconds int
	IdleTTLSeconds    int
}

// MountSpec is a single bind mount applied to every exec in a sandbox.
type MountSpec struct {
	HostPath  string
	GuestPath string
	ReadOnly  bool
}

// NetworkPolicy controls the network namespace used by execs.
type NetworkPolicy struct {
	DenyAll       bool
	AllowDomains  []string // reserved, not enforced by the core
	AllowCIDRs    []string // reserved, not enforced by the core
	AllowLoopback bool
}

// SandboxPolicy is the value object attached to a sandbox at creation
// time and retained for its entire life (SPEC_FULL.md §3).
type SandboxPolicy struct {
	Network             NetworkPolicy
	Mounts              []MountSpec
	EnableGPU           bool
	StrictNoFallback    bool
	EnableSnapshotting  bool
}

// SandboxSpec describes a sandbox to create.
type SandboxSpec struct {
	Image          string
	WorkingDir     string
	Limits         ResourceLimits
	Policy         SandboxPolicy
	InitCmd        []string // run once, synchronously, after create succeeds
	AllowPoolReuse bool     // accepted, not acted on (no pool in this daemon)
}

// ExecSpec describes a single exec invocation.
type ExecSpec struct {
	Argv       []string
	Env        map[string]string
	Cwd        string // empty: the executor's composed invocation chdirs to "/"
	TimeoutMS  int64
}

// ExecResult is the final outcome of an exec.
type ExecResult struct {
	ExecID     string
	ExitCode   int32
	Violations []string // advisory policy-fallback notes, never fail the exec
}

// SnapshotMeta is what a provider reports after writing snapshot content.
type SnapshotMeta struct {
	SnapshotID string
	SandboxID  string
	SizeBytes  int64
}

// Provider is the capability set the orchestrator and executor consume.
// A provider that cannot satisfy an operation returns an error wrapping
// crucibleerr.ErrUnsupported.
type Provider interface {
	Name() string
	Probe(ctx context.Context) (Health, error)

	CreateSandbox(ctx context.Context, sandboxID string, spec SandboxSpec) error
	StartSandbox(ctx context.Context, sandboxID string) error
	StopSandbox(ctx context.Context, sandboxID string, force bool) error
	DestroySandbox(ctx context.Context, sandboxID string, force bool) error

	// Exec runs spec inside sandboxID under the isolation invocation
	// composed by internal/executor; the provider only needs to launch
	// the already-composed command line.
	Exec(ctx context.Context, sandboxID string, argv []string, env map[string]string, cwd string, timeoutMS int64) (ExecResult, error)

	CreateSnapshot(ctx context.Context, sandboxID, destinationDir string) (SnapshotMeta, error)
	RestoreSnapshot(ctx context.Context, snapshotID, newSandboxID, sourceDir string) error
	DeleteSnapshot(ctx context.Context, snapshotID string) error

	PutFile(ctx context.Context, sandboxID, guestPath string, data []byte) error
	GetFile(ctx context.Context, sandboxID, guestPath string) ([]byte, error)
}
