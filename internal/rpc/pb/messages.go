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

// Package pb defines the wire message types for the Sandboxes,
// Execution, and Snapshots services (SPEC_FULL.md §6). These are plain
// Go structs rather than protoc-generated bindings: the repository
// does not run a protobuf compiler, so internal/rpc/codec frames them
// as JSON over the real google.golang.org/grpc transport instead.
package pb

// MountSpec mirrors provider.MountSpec on the wire.
type MountSpec struct {
	HostPath  string `json:"host_path"`
	GuestPath string `json:"guest_path"`
	ReadOnly  bool   `json:"read_only"`
}

// NetworkPolicy mirrors provider.NetworkPolicy on the wire.
type NetworkPolicy struct {
	DenyAll       bool     `json:"deny_all"`
	AllowDomains  []string `json:"allow_domains,omitempty"`
	AllowCIDRs    []string `json:"allow_cidrs,omitempty"`
	AllowLoopback bool     `json:"allow_loopback"`
}

// SandboxPolicy mirrors provider.SandboxPolicy on the wire.
type SandboxPolicy struct {
	Network            NetworkPolicy `json:"network"`
	Mounts             []MountSpec   `json:"mounts,omitempty"`
	EnableGPU          bool          `json:"enable_gpu"`
	StrictNoFallback   bool          `json:"strict_no_fallback"`
	EnableSnapshotting bool          `json:"enable_snapshotting"`
}

// CreateSandboxRequest is the Sandboxes.Create request.
type CreateSandboxRequest struct {
	Image      string            `json:"image"`
	WorkingDir string            `json:"working_dir,omitempty"`
	VCPU       int               `json:"vcpu,omitempty"`
	MemoryMB   int               `json:"memory_mb,omitempty"`
	DiskMB     int               `json:"disk_mb,omitempty"`
	Policy     SandboxPolicy     `json:"policy"`
	InitCmd    []string          `json:"init_cmd,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
}

// CreateSandboxResponse is the Sandboxes.Create response.
type CreateSandboxResponse struct {
	SandboxID string `json:"sandbox_id"`
}

// GetSandboxRequest is the Sandboxes.Get request.
type GetSandboxRequest struct {
	SandboxID string `json:"sandbox_id"`
}

// SandboxInfo describes a sandbox for Get/List responses.
type SandboxInfo struct {
	SandboxID string `json:"sandbox_id"`
}

// GetSandboxResponse is the Sandboxes.Get response.
type GetSandboxResponse struct {
	Sandbox SandboxInfo `json:"sandbox"`
}

// ListSandboxesRequest is the Sandboxes.List request.
type ListSandboxesRequest struct{}

// ListSandboxesResponse is the Sandboxes.List response.
type ListSandboxesResponse struct {
	Sandboxes []SandboxInfo `json:"sandboxes"`
}

// StopSandboxRequest is the Sandboxes.Stop request.
type StopSandboxRequest struct {
	SandboxID string `json:"sandbox_id"`
	Force     bool   `json:"force,omitempty"`
}

// StopSandboxResponse is the Sandboxes.Stop response.
type StopSandboxResponse struct{}

// DestroySandboxRequest is the Sandboxes.Destroy request.
type DestroySandboxRequest struct {
	SandboxID string `json:"sandbox_id"`
	Force     bool   `json:"force,omitempty"`
}

// DestroySandboxResponse is the Sandboxes.Destroy response.
type DestroySandboxResponse struct{}

// ExecRequest is the Execution.Exec request.
type ExecRequest struct {
	SandboxID string            `json:"sandbox_id"`
	Argv      []string          `json:"argv"`
	Env       map[string]string `json:"env,omitempty"`
	Cwd       string            `json:"cwd,omitempty"`
	TimeoutMS int64             `json:"timeout_ms,omitempty"`
}

// ExecResponse is the Execution.Exec response.
type ExecResponse struct {
	ExecID     string   `json:"exec_id"`
	ExitCode   int32    `json:"exit_code"`
	Violations []string `json:"violations,omitempty"`
}

// ExecInfo describes a tracked exec for Get/List responses.
type ExecInfo struct {
	ExecID     string   `json:"exec_id"`
	SandboxID  string   `json:"sandbox_id"`
	State      string   `json:"state"`
	ExitCode   int32    `json:"exit_code"`
	Violations []string `json:"violations,omitempty"`
}

// CancelExecRequest is the Execution.CancelExec request.
type CancelExecRequest struct {
	ExecID string `json:"exec_id"`
}

// CancelExecResponse is the Execution.CancelExec response.
type CancelExecResponse struct{}

// GetExecRequest is the Execution.GetExec request.
type GetExecRequest struct {
	ExecID string `json:"exec_id"`
}

// GetExecResponse is the Execution.GetExec response.
type GetExecResponse struct {
	Exec ExecInfo `json:"exec"`
}

// ListExecsRequest is the Execution.ListExecs request. SandboxID is
// optional; empty lists every tracked exec.
type ListExecsRequest struct {
	SandboxID string `json:"sandbox_id,omitempty"`
}

// ListExecsResponse is the Execution.ListExecs response.
type ListExecsResponse struct {
	Execs []ExecInfo `json:"execs"`
}

// ReapRequest is the Admin.Reap request.
type ReapRequest struct{}

// ReapResponse is the Admin.Reap response.
type ReapResponse struct{}

// CreateSnapshotRequest is the Snapshots.CreateSnapshot request.
type CreateSnapshotRequest struct {
	SandboxID string            `json:"sandbox_id"`
	Name      string            `json:"name,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
	Mode      string            `json:"mode,omitempty"` // "FULL" | "MEMORY_ONLY"
}

// SnapshotInfo describes a snapshot on the wire.
type SnapshotInfo struct {
	SnapshotID       string            `json:"snapshot_id"`
	Provider         string            `json:"provider"`
	SourceSandboxID  string            `json:"source_sandbox_id"`
	CreatedAtUnix    int64             `json:"created_at_unix"`
	Mode             string            `json:"mode"`
	Name             string            `json:"name,omitempty"`
	Labels           map[string]string `json:"labels,omitempty"`
	ParentSnapshotID string            `json:"parent_snapshot_id,omitempty"`
	RootSnapshotID   string            `json:"root_snapshot_id"`
	State            string            `json:"state"`
	SizeBytes        int64             `json:"size_bytes"`
	Pinned           bool              `json:"pinned"`
	LastError        string            `json:"last_error,omitempty"`
}

// CreateSnapshotResponse is the Snapshots.CreateSnapshot response.
type CreateSnapshotResponse struct {
	Snapshot SnapshotInfo `json:"snapshot"`
}

// RestoreSnapshotRequest is the Snapshots.RestoreSnapshot request.
type RestoreSnapshotRequest struct {
	SnapshotID      string `json:"snapshot_id"`
	TargetSandboxID string `json:"target_sandbox_id,omitempty"`
}

// RestoreSnapshotResponse is the Snapshots.RestoreSnapshot response.
type RestoreSnapshotResponse struct {
	SandboxID string `json:"sandbox_id"`
}

// DeleteSnapshotRequest is the Snapshots.DeleteSnapshot request.
type DeleteSnapshotRequest struct {
	SnapshotID string `json:"snapshot_id"`
}

// DeleteSnapshotResponse is the Snapshots.DeleteSnapshot response.
type DeleteSnapshotResponse struct{}

// GetSnapshotRequest is the Snapshots.GetSnapshot request.
type GetSnapshotRequest struct {
	SnapshotID string `json:"snapshot_id"`
}

// GetSnapshotResponse is the Snapshots.GetSnapshot response.
type GetSnapshotResponse struct {
	Snapshot SnapshotInfo `json:"snapshot"`
}

// ListSnapshotsRequest is the Snapshots.ListSnapshots request.
type ListSnapshotsRequest struct {
	SourceSandboxID string `json:"source_sandbox_id"`
}

// ListSnapshotsResponse is the Snapshots.ListSnapshots response.
type ListSnapshotsResponse struct {
	Snapshots []SnapshotInfo `json:"snapshots"`
}

// GarbageCollectSnapshotsRequest is the
// Snapshots.GarbageCollectSnapshots request.
type GarbageCollectSnapshotsRequest struct {
	KeepLatestPerSandbox int   `json:"keep_latest_per_sandbox,omitempty"`
	MaxTotalBytes        int64 `json:"max_total_bytes,omitempty"`
	DryRun               bool  `json:"dry_run,omitempty"`
}

// GarbageCollectSnapshotsResponse is the
// Snapshots.GarbageCollectSnapshots response.
type GarbageCollectSnapshotsResponse struct {
	DeletedSnapshotIDs []string `json:"deleted_snapshot_ids,omitempty"`
	ReclaimedBytes     int64    `json:"reclaimed_bytes"`
	TruncatedIDs       []string `json:"truncated_ids,omitempty"`
}
