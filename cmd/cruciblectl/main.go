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

// Command cruciblectl is the Crucible CLI client: it dials a running
// crucibled daemon over gRPC and drives sandbox, exec, and snapshot
// operations from the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/crucible-sh/crucible/internal/rpc"
	"github.com/crucible-sh/crucible/internal/rpc/pb"
	"github.com/crucible-sh/crucible/internal/version"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var addr string

	root := &cobra.Command{
		Use:     "cruciblectl",
		Short:   "Crucible CLI client",
		Version: version.String(),
	}
	root.PersistentFlags().StringVar(&addr, "addr", "[::1]:7171", "crucibled gRPC address")

	root.AddCommand(newSandboxCmd(&addr), newExecCmd(&addr), newSnapshotCmd(&addr), newAdminCmd(&addr))
	return root
}

func dial(ctx context.Context, addr string) (*rpc.Client, error) {
	return rpc.Dial(ctx, addr)
}

func newSandboxCmd(addr *string) *cobra.Command {
	cmd := &cobra.Command{Use: "sandbox", Short: "Manage sandboxes"}

	var (
		image         string
		gpu           bool
		strictGPU     bool
		denyNetwork   bool
		mountFlags    []string
		allowLoopback bool
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a sandbox",
		RunE: func(c *cobra.Command, args []string) error {
			mounts, err := parseMounts(mountFlags)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(c.Context(), 30*time.Second)
			defer cancel()
			client, err := dial(ctx, *addr)
			if err != nil {
				return err
			}
			defer client.Close()

			resp, err := client.CreateSandbox(ctx, &pb.CreateSandboxRequest{
				Image: image,
				Policy: pb.SandboxPolicy{
					Network:            pb.NetworkPolicy{DenyAll: denyNetwork, AllowLoopback: allowLoopback},
					Mounts:             mounts,
					EnableGPU:          gpu,
					StrictNoFallback:   strictGPU,
					EnableSnapshotting: true,
				},
			})
			if err != nil {
				return err
			}
			fmt.Println(resp.SandboxID)
			return nil
		},
	}
	create.Flags().StringVar(&image, "image", "", "base image reference")
	create.Flags().BoolVar(&gpu, "gpu", false, "request GPU capability")
	create.Flags().BoolVar(&strictGPU, "strict-no-fallback", false, "fail exec instead of falling back when GPU is unavailable")
	create.Flags().BoolVar(&denyNetwork, "deny-network", false, "deny all network access")
	create.Flags().BoolVar(&allowLoopback, "allow-loopback", true, "allow loopback network access")
	create.Flags().StringArrayVar(&mountFlags, "mount", nil, "bind mount host:guest[:ro], may be repeated")
	_ = create.MarkFlagRequired("image")

	list := &cobra.Command{
		Use:   "list",
		Short: "List sandboxes",
		RunE: func(c *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
			defer cancel()
			client, err := dial(ctx, *addr)
			if err != nil {
				return err
			}
			defer client.Close()

			resp, err := client.ListSandboxes(ctx, &pb.ListSandboxesRequest{})
			if err != nil {
				return err
			}
			for _, s := range resp.Sandboxes {
				fmt.Println(s.SandboxID)
			}
			return nil
		},
	}

	var force bool
	destroy := &cobra.Command{
		Use:   "destroy [sandbox-id]",
		Short: "Destroy a sandbox",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(c.Context(), 30*time.Second)
			defer cancel()
			client, err := dial(ctx, *addr)
			if err != nil {
				return err
			}
			defer client.Close()

			_, err = client.DestroySandbox(ctx, &pb.DestroySandboxRequest{SandboxID: args[0], Force: force})
			return err
		},
	}
	destroy.Flags().BoolVar(&force, "force", false, "destroy even if running execs are in flight")

	cmd.AddCommand(create, list, destroy)
	return cmd
}

func newExecCmd(addr *string) *cobra.Command {
	var sandboxID string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "exec -- <argv...>",
		Short: "Run a command inside a sandbox",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(c.Context(), timeout+10*time.Second)
			defer cancel()
			client, err := dial(ctx, *addr)
			if err != nil {
				return err
			}
			defer client.Close()

			resp, err := client.Exec(ctx, &pb.ExecRequest{
				SandboxID: sandboxID,
				Argv:      args,
				TimeoutMS: timeout.Milliseconds(),
			})
			if err != nil {
				return err
			}
			for _, v := range resp.Violations {
				fmt.Fprintln(os.Stderr, "policy violation:", v)
			}
			fmt.Println("exec id:", resp.ExecID)
			os.Exit(int(resp.ExitCode))
			return nil
		},
	}
	cmd.Flags().StringVar(&sandboxID, "id", "", "sandbox id")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "exec timeout, 0 for provider default")
	_ = cmd.MarkFlagRequired("id")

	cmd.AddCommand(newExecCancelCmd(addr), newExecGetCmd(addr), newExecListCmd(addr))
	return cmd
}

func newExecCancelCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel [exec-id]",
		Short: "Cancel a running exec",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
			defer cancel()
			client, err := dial(ctx, *addr)
			if err != nil {
				return err
			}
			defer client.Close()

			_, err = client.CancelExec(ctx, &pb.CancelExecRequest{ExecID: args[0]})
			return err
		},
	}
}

func newExecGetCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "get [exec-id]",
		Short: "Get the status of a tracked exec",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
			defer cancel()
			client, err := dial(ctx, *addr)
			if err != nil {
				return err
			}
			defer client.Close()

			resp, err := client.GetExec(ctx, &pb.GetExecRequest{ExecID: args[0]})
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\t%s\texit=%d\n", resp.Exec.ExecID, resp.Exec.SandboxID, resp.Exec.State, resp.Exec.ExitCode)
			return nil
		},
	}
}

func newExecListCmd(addr *string) *cobra.Command {
	var sandboxID string
	cmd := &cobra.Command{
		Use:   "ps",
		Short: "List tracked execs",
		RunE: func(c *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
			defer cancel()
			client, err := dial(ctx, *addr)
			if err != nil {
				return err
			}
			defer client.Close()

			resp, err := client.ListExecs(ctx, &pb.ListExecsRequest{SandboxID: sandboxID})
			if err != nil {
				return err
			}
			for _, e := range resp.Execs {
				fmt.Printf("%s\t%s\t%s\texit=%d\n", e.ExecID, e.SandboxID, e.State, e.ExitCode)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sandboxID, "sandbox-id", "", "filter to execs for this sandbox, empty lists all")
	return cmd
}

func newSnapshotCmd(addr *string) *cobra.Command {
	cmd := &cobra.Command{Use: "snapshot", Short: "Manage snapshots"}

	var (
		sandboxID string
		name      string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Snapshot a sandbox",
		RunE: func(c *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(c.Context(), 2*time.Minute)
			defer cancel()
			client, err := dial(ctx, *addr)
			if err != nil {
				return err
			}
			defer client.Close()

			resp, err := client.CreateSnapshot(ctx, &pb.CreateSnapshotRequest{SandboxID: sandboxID, Name: name})
			if err != nil {
				return err
			}
			fmt.Println(resp.Snapshot.SnapshotID)
			return nil
		},
	}
	create.Flags().StringVar(&sandboxID, "sandbox-id", "", "source sandbox id")
	create.Flags().StringVar(&name, "name", "", "human-readable snapshot name")
	_ = create.MarkFlagRequired("sandbox-id")

	var (
		restoreSnapshotID string
		targetSandboxID   string
	)
	restore := &cobra.Command{
		Use:   "restore",
		Short: "Restore a snapshot into a sandbox",
		RunE: func(c *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(c.Context(), 2*time.Minute)
			defer cancel()
			client, err := dial(ctx, *addr)
			if err != nil {
				return err
			}
			defer client.Close()

			resp, err := client.RestoreSnapshot(ctx, &pb.RestoreSnapshotRequest{SnapshotID: restoreSnapshotID, TargetSandboxID: targetSandboxID})
			if err != nil {
				return err
			}
			fmt.Println(resp.SandboxID)
			return nil
		},
	}
	restore.Flags().StringVar(&restoreSnapshotID, "snapshot-id", "", "snapshot id to restore")
	_ = restore.MarkFlagRequired("snapshot-id")
	restore.Flags().StringVar(&targetSandboxID, "target-sandbox-id", "", "existing sandbox id to restore into, empty creates a new one")

	var (
		keepLatest int
		maxBytes   int64
		dryRun     bool
	)
	gc := &cobra.Command{
		Use:   "gc",
		Short: "Garbage collect snapshots",
		RunE: func(c *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(c.Context(), time.Minute)
			defer cancel()
			client, err := dial(ctx, *addr)
			if err != nil {
				return err
			}
			defer client.Close()

			resp, err := client.GarbageCollectSnapshots(ctx, &pb.GarbageCollectSnapshotsRequest{
				KeepLatestPerSandbox: keepLatest,
				MaxTotalBytes:        maxBytes,
				DryRun:               dryRun,
			})
			if err != nil {
				return err
			}
			fmt.Printf("reclaimed %d bytes across %d snapshots\n", resp.ReclaimedBytes, len(resp.DeletedSnapshotIDs))
			for _, id := range resp.DeletedSnapshotIDs {
				fmt.Println("deleted:", id)
			}
			if len(resp.TruncatedIDs) > 0 {
				fmt.Fprintf(os.Stderr, "max-bytes reached, %d reclaimable snapshots left untouched\n", len(resp.TruncatedIDs))
			}
			return nil
		},
	}
	gc.Flags().IntVar(&keepLatest, "keep-latest", 0, "snapshots to keep per sandbox, 0 for daemon default")
	gc.Flags().Int64Var(&maxBytes, "max-bytes", 0, "stop reclaiming once this many bytes are recovered, 0 for unbounded")
	gc.Flags().BoolVar(&dryRun, "dry-run", false, "report candidates without deleting")

	cmd.AddCommand(create, restore, gc)
	return cmd
}

func newAdminCmd(addr *string) *cobra.Command {
	cmd := &cobra.Command{Use: "admin", Short: "Operator maintenance commands"}

	reap := &cobra.Command{
		Use:   "reap",
		Short: "Reconcile store directories against catalog state",
		RunE: func(c *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(c.Context(), time.Minute)
			defer cancel()
			client, err := dial(ctx, *addr)
			if err != nil {
				return err
			}
			defer client.Close()

			_, err = client.Reap(ctx, &pb.ReapRequest{})
			return err
		},
	}

	cmd.AddCommand(reap)
	return cmd
}

func parseMounts(flags []string) ([]pb.MountSpec, error) {
	mounts := make([]pb.MountSpec, 0, len(flags))
	for _, f := range flags {
		parts := strings.SplitN(f, ":", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("cruciblectl: invalid --mount %q, want host:guest[:ro]", f)
		}
		m := pb.MountSpec{HostPath: parts[0], GuestPath: parts[1]}
		if len(parts) == 3 && parts[2] == "ro" {
			m.ReadOnly = true
		}
		mounts = append(mounts, m)
	}
	return mounts, nil
}
