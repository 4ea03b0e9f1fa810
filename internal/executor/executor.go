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

// Package executor implements the policy-enforced sandbox executor
// (SPEC_FULL.md §4.E): it reads a sandbox's stored policy, composes an
// ordered isolation invocation (root bind, fresh /dev and /proc,
// network unshare, ordered bind mounts, GPU fallback), and hands the
// resulting argument list to the provider to launch. It also tracks
// in-flight and completed execs so CancelExec/GetExec/ListExecs
// (SPEC_FULL.md §6) have something to read and cancel.
//
// Grounded on driver/mounter.go for the overall shape of a narrow,
// injectable capability interface consumed by a single composing
// caller, even though the composition target changed from host mount
// syscalls to an ordered argv (see DESIGN.md).
package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/crucible-sh/crucible/internal/crucibleerr"
	"github.com/crucible-sh/crucible/internal/provider"
	"github.com/google/uuid"
)

// runnerName is the sandboxing runner the composed invocation targets:
// bubblewrap's flag vocabulary (--bind, --ro-bind, --dev, --proc,
// --chdir, --unshare-net) maps directly onto spec.md's Rule 1-3
// vocabulary, and every provider's Exec either shells the composed
// argv out verbatim (internal/provider/lima) or just records it
// (internal/provider/memfs).
const runnerName = "bwrap"

// PolicySource looks up the policy stored for a sandbox at creation
// time. The orchestrator is the concrete implementation, reading the
// spec the catalog recorded (SPEC_FULL.md §9: the sandbox-spec store
// lives in the catalog, not the provider, so the executor depends only
// on this narrow interface for policy).
type PolicySource interface {
	GetPolicy(ctx context.Context, sandboxID string) (provider.SandboxPolicy, error)
}

// HealthSource returns the provider's most recently cached probe
// result, used to decide GPU fallback without blocking every exec on
// a fresh probe.
type HealthSource func() provider.Health

// State is the lifecycle state of a tracked exec.
type State string

const (
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
	StateCanceled  State = "CANCELED"
)

// ExecStatus is a point-in-time snapshot of a tracked exec, returned
// by GetExec/ListExecs.
type ExecStatus struct {
	ExecID     string
	SandboxID  string
	State      State
	ExitCode   int32
	Violations []string
}

type execRecord struct {
	status ExecStatus
	cancel context.CancelFunc
}

// Executor composes and runs execs under a sandbox's stored policy.
type Executor struct {
	policies PolicySource
	provider provider.Provider
	health   HealthSource

	mu    sync.Mutex
	execs map[string]*execRecord
}

// New returns an Executor.
func New(policies PolicySource, prov provider.Provider, health HealthSource) *Executor {
	return &Executor{policies: policies, provider: prov, health: health, execs: map[string]*execRecord{}}
}

// Exec composes the isolation invocation for sandboxID per the rules
// in SPEC_FULL.md §4.E and runs it via the provider. The exec is
// tracked under a generated exec_id for the duration of the call so a
// concurrent CancelExec/GetExec/ListExecs can observe or cancel it.
func (e *Executor) Exec(ctx context.Context, sandboxID string, spec provider.ExecSpec) (provider.ExecResult, error) {
	if len(spec.Argv) == 0 {
		return provider.ExecResult{}, fmt.Errorf("executor: exec %s: %w: argv must not be empty", sandboxID, crucibleerr.ErrInvalid)
	}

	policy, err := e.policies.GetPolicy(ctx, sandboxID)
	if err != nil {
		return provider.ExecResult{}, fmt.Errorf("executor: exec %s: load policy: %w", sandboxID, err)
	}

	timeoutMS := spec.TimeoutMS
	if timeoutMS < 1 {
		timeoutMS = 1
	}

	// Rule 4: GPU capability gate. Evaluated before launch so a
	// strict failure never reaches the provider or the ledger.
	var violations []string
	if policy.EnableGPU {
		health := provider.Health{}
		if e.health != nil {
			health = e.health()
		}
		if !health.GPUCapable {
			if policy.StrictNoFallback {
				return provider.ExecResult{}, crucibleerr.FailedPrecondition("executor: gpu required",
					fmt.Errorf("provider %s is not gpu capable", e.provider.Name()))
			}
			violations = append(violations, "GPU requested but provider incapable; continuing without GPU")
		}
	}

	invocation := composeInvocation(policy, spec.Argv, spec.Cwd)

	execCtx, cancel := context.WithCancel(ctx)
	rec := &execRecord{
		status: ExecStatus{ExecID: uuid.NewString(), SandboxID: sandboxID, State: StateRunning},
		cancel: cancel,
	}
	e.track(rec)
	defer cancel()

	result, err := e.provider.Exec(execCtx, sandboxID, invocation, spec.Env, spec.Cwd, timeoutMS)
	result.ExecID = rec.status.ExecID
	result.Violations = append(result.Violations, violations...)

	final := StateSucceeded
	switch {
	case err != nil:
		final = StateFailed
	case execCtx.Err() != nil:
		final = StateCanceled
	}
	e.finish(rec.status.ExecID, final, result.ExitCode, result.Violations)

	if err != nil {
		return result, fmt.Errorf("executor: exec %s: %w", sandboxID, err)
	}
	return result, nil
}

// CancelExec requests cancellation of a running exec by ID. Canceling
// an exec that has already finished, or one that never existed,
// returns NotFound.
func (e *Executor) CancelExec(execID string) error {
	e.mu.Lock()
	rec, ok := e.execs[execID]
	running := ok && rec.status.State == StateRunning
	e.mu.Unlock()
	if !running {
		return fmt.Errorf("executor: cancel exec %s: %w", execID, crucibleerr.ErrNotFound)
	}
	rec.cancel()
	return nil
}

// GetExec returns the current status of a tracked exec.
func (e *Executor) GetExec(execID string) (ExecStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.execs[execID]
	if !ok {
		return ExecStatus{}, fmt.Errorf("executor: get exec %s: %w", execID, crucibleerr.ErrNotFound)
	}
	return rec.status, nil
}

// ListExecs returns every tracked exec for sandboxID, or every
// tracked exec when sandboxID is empty.
func (e *Executor) ListExecs(sandboxID string) []ExecStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ExecStatus, 0, len(e.execs))
	for _, rec := range e.execs {
		if sandboxID != "" && rec.status.SandboxID != sandboxID {
			continue
		}
		out = append(out, rec.status)
	}
	return out
}

func (e *Executor) track(rec *execRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.execs[rec.status.ExecID] = rec
}

func (e *Executor) finish(execID string, state State, exitCode int32, violations []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.execs[execID]
	if !ok {
		return
	}
	rec.status.State = state
	rec.status.ExitCode = exitCode
	rec.status.Violations = violations
}

// composeInvocation builds the ordered argument list described by
// spec.md's isolation composition rules: root bind plus fresh
// /dev and /proc and working directory (rule 1), network unshare
// (rule 2), ordered bind mounts (rule 3), then the caller's argv
// unchanged (rule 5). Rule 4 (GPU gate) has no argv representation;
// it is evaluated by the caller before this is built. The chdir target
// is cwd; an empty cwd chdirs to "/", and the sandbox's own working
// directory is not looked up.
func composeInvocation(policy provider.SandboxPolicy, argv []string, cwd string) []string {
	guestDir := cwd
	if guestDir == "" {
		guestDir = "/"
	}

	inv := []string{
		runnerName,
		"--bind", "/", "/",
		"--dev", "/dev",
		"--proc", "/proc",
		"--chdir", guestDir,
	}

	if policy.Network.DenyAll {
		inv = append(inv, "--unshare-net")
	}

	for _, m := range policy.Mounts {
		flag := "--bind"
		if m.ReadOnly {
			flag = "--ro-bind"
		}
		inv = append(inv, flag, m.HostPath, m.GuestPath)
	}

	inv = append(inv, "--")
	return append(inv, argv...)
}
