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

// Package rpc wires the Sandboxes, Execution, and Snapshots services
// onto a google.golang.org/grpc.Server using hand-written
// grpc.ServiceDesc values and the JSON codec in internal/rpc/codec,
// grounded on the listener/shutdown shape of the teacher's gRPC
// controller bring-up.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/crucible-sh/crucible/internal/catalog"
	"github.com/crucible-sh/crucible/internal/crucibleerr"
	"github.com/crucible-sh/crucible/internal/executor"
	"github.com/crucible-sh/crucible/internal/healthcheck"
	"github.com/crucible-sh/crucible/internal/orchestrator"
	"github.com/crucible-sh/crucible/internal/provider"
	"github.com/crucible-sh/crucible/internal/rpc/codec"
	"github.com/crucible-sh/crucible/internal/rpc/pb"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

// Server exposes the orchestrator and executor over gRPC.
type Server struct {
	orch *orchestrator.Orchestrator
	executor *executor.Executor
	log  *slog.Logger

	grpcAddr  string
	debugAddr string
}

// New builds a Server bound to the given orchestrator and executor.
func New(orch *orchestrator.Orchestrator, exec *executor.Executor, log *slog.Logger, grpcAddr, debugAddr string) *Server {
	return &Server{orch: orch, executor: exec, log: log, grpcAddr: grpcAddr, debugAddr: debugAddr}
}

// loggingInterceptor logs unary RPCs and maps crucibleerr errors to
// gRPC status codes at the boundary (SPEC_FULL.md §7).
func (s *Server) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	if err != nil {
		s.log.Error("rpc call failed", "method", info.FullMethod, "error", err)
		return nil, crucibleerr.GRPCStatus(err)
	}
	return resp, nil
}

// Run starts the gRPC listener and the debug HTTP server, and blocks
// until ctx is cancelled or either server fails. Both are shut down
// gracefully on return.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("rpc: listen %s: %w", s.grpcAddr, err)
	}

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(s.loggingInterceptor),
		grpc.ForceServerCodec(codec.Codec{}),
	)
	grpcServer.RegisterService(&sandboxesServiceDesc, s)
	grpcServer.RegisterService(&executionServiceDesc, s)
	grpcServer.RegisterService(&snapshotsServiceDesc, s)
	grpcServer.RegisterService(&adminServiceDesc, s)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	debugServer := &http.Server{Addr: s.debugAddr, Handler: mux}

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		s.log.Info("grpc server listening", "addr", s.grpcAddr)
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("rpc: grpc serve: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		s.log.Info("debug http server listening", "addr", s.debugAddr)
		if err := debugServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("rpc: debug serve: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-gctx.Done()
		grpcServer.GracefulStop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = debugServer.Shutdown(shutdownCtx)
		return nil
	})

	if err := group.Wait(); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checker := healthcheck.NewHealthChecker(
		orchestrator.ProviderCheck{Orchestrator: s.orch},
		orchestrator.CatalogCheck{Orchestrator: s.orch},
	)
	if err := checker.Check(r.Context()); err != nil || !s.orch.CachedHealth().Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("unhealthy\n"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// --- Sandboxes service ---

func (s *Server) createSandbox(ctx context.Context, req *pb.CreateSandboxRequest) (*pb.CreateSandboxResponse, error) {
	spec := provider.SandboxSpec{
		Image:      req.Image,
		WorkingDir: req.WorkingDir,
		InitCmd:    req.InitCmd,
		Limits: provider.ResourceLimits{
			VCPU:     req.VCPU,
			MemoryMB: req.MemoryMB,
			DiskMB:   req.DiskMB,
		},
		Policy: policyFromWire(req.Policy),
	}
	id, err := s.orch.CreateSandbox(ctx, spec)
	if err != nil {
		return nil, err
	}
	return &pb.CreateSandboxResponse{SandboxID: id}, nil
}

func (s *Server) getSandbox(ctx context.Context, req *pb.GetSandboxRequest) (*pb.GetSandboxResponse, error) {
	ids, err := s.orch.ListSandboxIDs(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if id == req.SandboxID {
			return &pb.GetSandboxResponse{Sandbox: pb.SandboxInfo{SandboxID: id}}, nil
		}
	}
	return nil, fmt.Errorf("rpc.getSandbox: %w", crucibleerr.ErrNotFound)
}

func (s *Server) listSandboxes(ctx context.Context, _ *pb.ListSandboxesRequest) (*pb.ListSandboxesResponse, error) {
	ids, err := s.orch.ListSandboxIDs(ctx)
	if err != nil {
		return nil, err
	}
	resp := &pb.ListSandboxesResponse{}
	for _, id := range ids {
		resp.Sandboxes = append(resp.Sandboxes, pb.SandboxInfo{SandboxID: id})
	}
	return resp, nil
}

func (s *Server) stopSandbox(ctx context.Context, req *pb.StopSandboxRequest) (*pb.StopSandboxResponse, error) {
	if err := s.orch.StopSandbox(ctx, req.SandboxID, req.Force); err != nil {
		return nil, err
	}
	return &pb.StopSandboxResponse{}, nil
}

func (s *Server) destroySandbox(ctx context.Context, req *pb.DestroySandboxRequest) (*pb.DestroySandboxResponse, error) {
	if err := s.orch.DestroySandbox(ctx, req.SandboxID, req.Force); err != nil {
		return nil, err
	}
	return &pb.DestroySandboxResponse{}, nil
}

// --- Execution service ---

func (s *Server) exec(ctx context.Context, req *pb.ExecRequest) (*pb.ExecResponse, error) {
	result, err := s.exec0(ctx, req)
	if err != nil {
		return nil, err
	}
	return &pb.ExecResponse{
		ExecID:     result.ExecID,
		ExitCode:   int32(result.ExitCode),
		Violations: result.Violations,
	}, nil
}

func (s *Server) exec0(ctx context.Context, req *pb.ExecRequest) (provider.ExecResult, error) {
	return s.executor.Exec(ctx, req.SandboxID, provider.ExecSpec{
		Argv:      req.Argv,
		Env:       req.Env,
		Cwd:       req.Cwd,
		TimeoutMS: req.TimeoutMS,
	})
}

func (s *Server) cancelExec(ctx context.Context, req *pb.CancelExecRequest) (*pb.CancelExecResponse, error) {
	if err := s.executor.CancelExec(req.ExecID); err != nil {
		return nil, err
	}
	return &pb.CancelExecResponse{}, nil
}

func (s *Server) getExec(ctx context.Context, req *pb.GetExecRequest) (*pb.GetExecResponse, error) {
	status, err := s.executor.GetExec(req.ExecID)
	if err != nil {
		return nil, err
	}
	return &pb.GetExecResponse{Exec: execToWire(status)}, nil
}

func (s *Server) listExecs(ctx context.Context, req *pb.ListExecsRequest) (*pb.ListExecsResponse, error) {
	statuses := s.executor.ListExecs(req.SandboxID)
	resp := &pb.ListExecsResponse{}
	for _, st := range statuses {
		resp.Execs = append(resp.Execs, execToWire(st))
	}
	return resp, nil
}

func execToWire(status executor.ExecStatus) pb.ExecInfo {
	return pb.ExecInfo{
		ExecID:     status.ExecID,
		SandboxID:  status.SandboxID,
		State:      string(status.State),
		ExitCode:   status.ExitCode,
		Violations: status.Violations,
	}
}

// --- Admin service ---

func (s *Server) reap(ctx context.Context, _ *pb.ReapRequest) (*pb.ReapResponse, error) {
	if err := s.orch.Reap(ctx); err != nil {
		return nil, err
	}
	return &pb.ReapResponse{}, nil
}

// --- Snapshots service ---

func (s *Server) createSnapshot(ctx context.Context, req *pb.CreateSnapshotRequest) (*pb.CreateSnapshotResponse, error) {
	mode := catalog.ModeFull
	if req.Mode == "MEMORY_ONLY" {
		mode = catalog.ModeMemoryOnly
	}
	snap, err := s.orch.CreateSnapshot(ctx, req.SandboxID, req.Name, req.Labels, mode)
	if err != nil {
		return nil, err
	}
	return &pb.CreateSnapshotResponse{Snapshot: snapshotToWire(snap)}, nil
}

func (s *Server) restoreSnapshot(ctx context.Context, req *pb.RestoreSnapshotRequest) (*pb.RestoreSnapshotResponse, error) {
	id, err := s.orch.RestoreSnapshot(ctx, req.SnapshotID, req.TargetSandboxID)
	if err != nil {
		return nil, err
	}
	return &pb.RestoreSnapshotResponse{SandboxID: id}, nil
}

func (s *Server) deleteSnapshot(ctx context.Context, req *pb.DeleteSnapshotRequest) (*pb.DeleteSnapshotResponse, error) {
	if err := s.orch.DeleteSnapshot(ctx, req.SnapshotID); err != nil {
		return nil, err
	}
	return &pb.DeleteSnapshotResponse{}, nil
}

func (s *Server) getSnapshot(ctx context.Context, req *pb.GetSnapshotRequest) (*pb.GetSnapshotResponse, error) {
	snap, err := s.orch.GetSnapshot(ctx, req.SnapshotID)
	if err != nil {
		return nil, err
	}
	return &pb.GetSnapshotResponse{Snapshot: snapshotToWire(snap)}, nil
}

func (s *Server) listSnapshots(ctx context.Context, req *pb.ListSnapshotsRequest) (*pb.ListSnapshotsResponse, error) {
	snaps, err := s.orch.ListSnapshots(ctx, req.SourceSandboxID)
	if err != nil {
		return nil, err
	}
	resp := &pb.ListSnapshotsResponse{}
	for _, snap := range snaps {
		resp.Snapshots = append(resp.Snapshots, snapshotToWire(snap))
	}
	return resp, nil
}

func (s *Server) garbageCollectSnapshots(ctx context.Context, req *pb.GarbageCollectSnapshotsRequest) (*pb.GarbageCollectSnapshotsResponse, error) {
	result, err := s.orch.GarbageCollect(ctx, req.KeepLatestPerSandbox, req.MaxTotalBytes, req.DryRun)
	if err != nil {
		return nil, err
	}
	return &pb.GarbageCollectSnapshotsResponse{
		DeletedSnapshotIDs: result.DeletedIDs,
		ReclaimedBytes:     result.ReclaimedBytes,
		TruncatedIDs:       result.Truncated,
	}, nil
}

func policyFromWire(p pb.SandboxPolicy) provider.SandboxPolicy {
	mounts := make([]provider.MountSpec, 0, len(p.Mounts))
	for _, m := range p.Mounts {
		mounts = append(mounts, provider.MountSpec{HostPath: m.HostPath, GuestPath: m.GuestPath, ReadOnly: m.ReadOnly})
	}
	return provider.SandboxPolicy{
		Network: provider.NetworkPolicy{
			DenyAll:       p.Network.DenyAll,
			AllowDomains:  p.Network.AllowDomains,
			AllowCIDRs:    p.Network.AllowCIDRs,
			AllowLoopback: p.Network.AllowLoopback,
		},
		Mounts:             mounts,
		EnableGPU:          p.EnableGPU,
		StrictNoFallback:   p.StrictNoFallback,
		EnableSnapshotting: p.EnableSnapshotting,
	}
}

func snapshotToWire(snap *catalog.Snapshot) pb.SnapshotInfo {
	return pb.SnapshotInfo{
		SnapshotID:       snap.ID,
		Provider:         snap.Provider,
		SourceSandboxID:  snap.SourceSandboxID,
		CreatedAtUnix:    snap.CreatedAt.Unix(),
		Mode:             string(snap.Mode),
		Name:             snap.Name,
		Labels:           snap.Labels,
		ParentSnapshotID: snap.ParentID,
		RootSnapshotID:   snap.RootID,
		State:            string(snap.State),
		SizeBytes:        snap.SizeBytes,
		Pinned:           snap.Pinned,
		LastError:        snap.LastError,
	}
}
