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

package rpc

import (
	"context"

	"github.com/crucible-sh/crucible/internal/rpc/pb"
	"google.golang.org/grpc"
)

// unaryHandler adapts a (ctx, *Req) (*Resp, error) method into the
// grpc.methodHandler shape expected by a grpc.ServiceDesc, decoding
// the request through the registered codec (internal/rpc/codec).
func unaryHandler[Req any, Resp any](
	method func(srv any, ctx context.Context, req *Req) (*Resp, error),
) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return method(srv, ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv}
		handler := func(ctx context.Context, req any) (any, error) {
			return method(srv, ctx, req.(*Req))
		}
		return interceptor(ctx, req, info, handler)
	}
}

var sandboxesServiceDesc = grpc.ServiceDesc{
	ServiceName: "crucible.v1.Sandboxes",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Create",
			Handler: unaryHandler(func(srv any, ctx context.Context, req *pb.CreateSandboxRequest) (*pb.CreateSandboxResponse, error) {
				return srv.(*Server).createSandbox(ctx, req)
			}),
		},
		{
			MethodName: "Get",
			Handler: unaryHandler(func(srv any, ctx context.Context, req *pb.GetSandboxRequest) (*pb.GetSandboxResponse, error) {
				return srv.(*Server).getSandbox(ctx, req)
			}),
		},
		{
			MethodName: "List",
			Handler: unaryHandler(func(srv any, ctx context.Context, req *pb.ListSandboxesRequest) (*pb.ListSandboxesResponse, error) {
				return srv.(*Server).listSandboxes(ctx, req)
			}),
		},
		{
			MethodName: "Stop",
			Handler: unaryHandler(func(srv any, ctx context.Context, req *pb.StopSandboxRequest) (*pb.StopSandboxResponse, error) {
				return srv.(*Server).stopSandbox(ctx, req)
			}),
		},
		{
			MethodName: "Destroy",
			Handler: unaryHandler(func(srv any, ctx context.Context, req *pb.DestroySandboxRequest) (*pb.DestroySandboxResponse, error) {
				return srv.(*Server).destroySandbox(ctx, req)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "crucible/sandboxes.proto",
}

var executionServiceDesc = grpc.ServiceDesc{
	ServiceName: "crucible.v1.Execution",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Exec",
			Handler: unaryHandler(func(srv any, ctx context.Context, req *pb.ExecRequest) (*pb.ExecResponse, error) {
				return srv.(*Server).exec(ctx, req)
			}),
		},
		{
			MethodName: "CancelExec",
			Handler: unaryHandler(func(srv any, ctx context.Context, req *pb.CancelExecRequest) (*pb.CancelExecResponse, error) {
				return srv.(*Server).cancelExec(ctx, req)
			}),
		},
		{
			MethodName: "GetExec",
			Handler: unaryHandler(func(srv any, ctx context.Context, req *pb.GetExecRequest) (*pb.GetExecResponse, error) {
				return srv.(*Server).getExec(ctx, req)
			}),
		},
		{
			MethodName: "ListExecs",
			Handler: unaryHandler(func(srv any, ctx context.Context, req *pb.ListExecsRequest) (*pb.ListExecsResponse, error) {
				return srv.(*Server).listExecs(ctx, req)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "crucible/execution.proto",
}

var adminServiceDesc = grpc.ServiceDesc{
	ServiceName: "crucible.v1.Admin",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Reap",
			Handler: unaryHandler(func(srv any, ctx context.Context, req *pb.ReapRequest) (*pb.ReapResponse, error) {
				return srv.(*Server).reap(ctx, req)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "crucible/admin.proto",
}

var snapshotsServiceDesc = grpc.ServiceDesc{
	ServiceName: "crucible.v1.Snapshots",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CreateSnapshot",
			Handler: unaryHandler(func(srv any, ctx context.Context, req *pb.CreateSnapshotRequest) (*pb.CreateSnapshotResponse, error) {
				return srv.(*Server).createSnapshot(ctx, req)
			}),
		},
		{
			MethodName: "RestoreSnapshot",
			Handler: unaryHandler(func(srv any, ctx context.Context, req *pb.RestoreSnapshotRequest) (*pb.RestoreSnapshotResponse, error) {
				return srv.(*Server).restoreSnapshot(ctx, req)
			}),
		},
		{
			MethodName: "DeleteSnapshot",
			Handler: unaryHandler(func(srv any, ctx context.Context, req *pb.DeleteSnapshotRequest) (*pb.DeleteSnapshotResponse, error) {
				return srv.(*Server).deleteSnapshot(ctx, req)
			}),
		},
		{
			MethodName: "GetSnapshot",
			Handler: unaryHandler(func(srv any, ctx context.Context, req *pb.GetSnapshotRequest) (*pb.GetSnapshotResponse, error) {
				return srv.(*Server).getSnapshot(ctx, req)
			}),
		},
		{
			MethodName: "ListSnapshots",
			Handler: unaryHandler(func(srv any, ctx context.Context, req *pb.ListSnapshotsRequest) (*pb.ListSnapshotsResponse, error) {
				return srv.(*Server).listSnapshots(ctx, req)
			}),
		},
		{
			MethodName: "GarbageCollectSnapshots",
			Handler: unaryHandler(func(srv any, ctx context.Context, req *pb.GarbageCollectSnapshotsRequest) (*pb.GarbageCollectSnapshotsResponse, error) {
				return srv.(*Server).garbageCollectSnapshots(ctx, req)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "crucible/snapshots.proto",
}
