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

// Command crucibled is the Crucible sandbox daemon: it owns the
// snapshot store, the metadata catalog, and a provider backend, and
// exposes sandbox lifecycle, exec, and snapshot operations over gRPC.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crucible-sh/crucible/internal/catalog"
	"github.com/crucible-sh/crucible/internal/executor"
	"github.com/crucible-sh/crucible/internal/orchestrator"
	"github.com/crucible-sh/crucible/internal/provider"
	"github.com/crucible-sh/crucible/internal/provider/lima"
	"github.com/crucible-sh/crucible/internal/provider/memfs"
	"github.com/crucible-sh/crucible/internal/rpc"
	"github.com/crucible-sh/crucible/internal/store"
	"github.com/crucible-sh/crucible/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	kexec "k8s.io/utils/exec"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:     "crucibled",
		Short:   "Crucible sandbox daemon",
		Version: version.String(),
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the Crucible daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), v)
		},
	}

	flags := serve.Flags()
	flags.String("grpc-addr", "[::1]:7171", "gRPC listen address")
	flags.String("debug-addr", "127.0.0.1:7172", "debug HTTP listen address (health endpoint)")
	flags.String("store-dir", "/tmp/crucible_snapshots", "snapshot store base directory")
	flags.String("db-path", "crucible.db", "metadata catalog database path")
	flags.String("provider", "memfs", "provider backend: memfs or lima")
	flags.String("lima-instance", "crucible", "lima instance name, used when --provider=lima")
	flags.Duration("health-interval", 30*time.Second, "provider re-probe interval")
	flags.Int("keep-latest-default", 5, "daemon-wide default for keep-latest-per-sandbox when a garbage collect request leaves it unset")

	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}
	v.SetEnvPrefix("crucible")
	v.AutomaticEnv()

	root.AddCommand(serve)
	return root
}

func runServe(ctx context.Context, v *viper.Viper) error {
	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.New(v.GetString("store-dir"))
	if err != nil {
		return fmt.Errorf("crucibled: init store: %w", err)
	}

	cat, err := catalog.Open(v.GetString("db-path"))
	if err != nil {
		return fmt.Errorf("crucibled: open catalog: %w", err)
	}
	defer cat.Close()

	prov, err := newProvider(v)
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(ctx, st, cat, prov, v.GetInt("keep-latest-default"), log)
	if err != nil {
		return fmt.Errorf("crucibled: init orchestrator: %w", err)
	}

	if err := orch.Reap(ctx); err != nil {
		log.Error("startup reap failed", "error", err)
	}

	go orch.RunHealthLoop(ctx, v.GetDuration("health-interval"))

	exec := executor.New(orch, prov, orch.CachedHealth)

	server := rpc.New(orch, exec, log, v.GetString("grpc-addr"), v.GetString("debug-addr"))
	log.Info("crucibled starting", "version", version.String())
	return server.Run(ctx)
}

func newProvider(v *viper.Viper) (provider.Provider, error) {
	switch v.GetString("provider") {
	case "lima":
		return lima.New(v.GetString("lima-instance"), kexec.New()), nil
	case "memfs", "":
		return memfs.New(v.GetString("store-dir") + "/.provider-memfs")
	default:
		return nil, fmt.Errorf("crucibled: unknown provider %q", v.GetString("provider"))
	}
}
