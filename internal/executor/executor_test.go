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

package executor

import (
	"context"
	"testing"

	"github.com/crucible-sh/crucible/internal/provider"
	"github.com/crucible-sh/crucible/internal/provider/memfs"
	"github.com/stretchr/testify/require"
)

type fakePolicySource struct {
	policy provider.SandboxPolicy
}

func (f *fakePolicySource) GetPolicy(ctx context.Context, sandboxID string) (provider.SandboxPolicy, error) {
	return f.policy, nil
}

// TestExecComposesNetworkUnshareAndBindMountsBeforeArgv covers S6: a
// sandbox with network.deny_all=true and a read-only bind of /data
// exec's a command, and the composed invocation the provider receives
// must carry the network-unshare directive and the read-only bind, in
// that order, preceding the original argv.
func TestExecComposesNetworkUnshareAndBindMountsBeforeArgv(t *testing.T) {
	ctx := context.Background()
	prov, err := memfs.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, prov.CreateSandbox(ctx, "sbx-1", provider.SandboxSpec{}))

	policies := &fakePolicySource{policy: provider.SandboxPolicy{
		Network: provider.NetworkPolicy{DenyAll: true},
		Mounts:  []provider.MountSpec{{HostPath: "/host/data", GuestPath: "/data", ReadOnly: true}},
	}}
	ex := New(policies, prov, func() provider.Health { return provider.Health{} })

	result, err := ex.Exec(ctx, "sbx-1", provider.ExecSpec{Argv: []string{"cat", "/data/x"}, TimeoutMS: 100})
	require.NoError(t, err)
	require.Equal(t, int32(0), result.ExitCode)
	require.NotEmpty(t, result.ExecID)

	invocation, _ := prov.LastInvocation()

	unshareIdx := indexOf(invocation, "--unshare-net")
	bindIdx := indexOf(invocation, "--ro-bind")
	argvIdx := indexOf(invocation, "cat")
	require.True(t, unshareIdx >= 0, "invocation missing --unshare-net: %v", invocation)
	require.True(t, bindIdx >= 0, "invocation missing --ro-bind: %v", invocation)
	require.True(t, argvIdx >= 0, "invocation missing argv: %v", invocation)
	require.Less(t, unshareIdx, bindIdx, "network-unshare must precede the bind mount")
	require.Less(t, bindIdx, argvIdx, "bind mounts must precede argv")
	require.Equal(t, []string{"/host/data", "/data"}, invocation[bindIdx+1:bindIdx+3])
}

// TestExecComposesRootBindFreshDevProcAndChdir covers rule 1: every
// invocation binds the host root, exposes a fresh /dev and /proc, and
// chdirs into the exec's working directory, ahead of everything else.
func TestExecComposesRootBindFreshDevProcAndChdir(t *testing.T) {
	ctx := context.Background()
	prov, err := memfs.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, prov.CreateSandbox(ctx, "sbx-2", provider.SandboxSpec{}))

	policies := &fakePolicySource{}
	ex := New(policies, prov, func() provider.Health { return provider.Health{} })

	_, err = ex.Exec(ctx, "sbx-2", provider.ExecSpec{Argv: []string{"true"}, Cwd: "/work", TimeoutMS: 100})
	require.NoError(t, err)

	invocation, cwd := prov.LastInvocation()
	require.Equal(t, "/work", cwd)
	require.Equal(t, []string{
		runnerName,
		"--bind", "/", "/",
		"--dev", "/dev",
		"--proc", "/proc",
		"--chdir", "/work",
		"--",
		"true",
	}, invocation)
}

func TestExecGPUStrictNoFallbackFails(t *testing.T) {
	ctx := context.Background()
	prov, err := memfs.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, prov.CreateSandbox(ctx, "sbx-3", provider.SandboxSpec{}))

	policies := &fakePolicySource{policy: provider.SandboxPolicy{EnableGPU: true, StrictNoFallback: true}}
	ex := New(policies, prov, func() provider.Health { return provider.Health{GPUCapable: false} })

	_, err = ex.Exec(ctx, "sbx-3", provider.ExecSpec{Argv: []string{"true"}, TimeoutMS: 100})
	require.Error(t, err)
}

func TestExecGPUFallbackRecordsViolationWithoutFailing(t *testing.T) {
	ctx := context.Background()
	prov, err := memfs.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, prov.CreateSandbox(ctx, "sbx-4", provider.SandboxSpec{}))

	policies := &fakePolicySource{policy: provider.SandboxPolicy{EnableGPU: true, StrictNoFallback: false}}
	ex := New(policies, prov, func() provider.Health { return provider.Health{GPUCapable: false} })

	result, err := ex.Exec(ctx, "sbx-4", provider.ExecSpec{Argv: []string{"true"}, TimeoutMS: 100})
	require.NoError(t, err)
	require.Len(t, result.Violations, 1)
}

func TestExecEmptyArgvIsInvalid(t *testing.T) {
	ctx := context.Background()
	prov, err := memfs.New(t.TempDir())
	require.NoError(t, err)

	policies := &fakePolicySource{}
	ex := New(policies, prov, nil)

	_, err = ex.Exec(ctx, "sbx-5", provider.ExecSpec{})
	require.Error(t, err)
}

func TestExecLedgerTracksAndCancels(t *testing.T) {
	ctx := context.Background()
	prov, err := memfs.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, prov.CreateSandbox(ctx, "sbx-6", provider.SandboxSpec{}))

	policies := &fakePolicySource{}
	ex := New(policies, prov, nil)

	result, err := ex.Exec(ctx, "sbx-6", provider.ExecSpec{Argv: []string{"true"}, TimeoutMS: 100})
	require.NoError(t, err)

	status, err := ex.GetExec(result.ExecID)
	require.NoError(t, err)
	require.Equal(t, StateSucceeded, status.State)
	require.Equal(t, "sbx-6", status.SandboxID)

	all := ex.ListExecs("sbx-6")
	require.Len(t, all, 1)

	require.Error(t, ex.CancelExec("does-not-exist"))
}

func indexOf(haystack []string, needle string) int {
	for i, v := range haystack {
		if v == needle {
			return i
		}
	}
	return -1
}
