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
	"fmt"

	"github.com/crucible-sh/crucible/internal/rpc/codec"
	"github.com/crucible-sh/crucible/internal/rpc/pb"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client is a thin typed wrapper around a grpc.ClientConn dialed with
// the JSON codec, used by cmd/cruciblectl.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to a crucibled daemon at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(codec.Codec{})),
	)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) CreateSandbox(ctx context.Context, req *pb.CreateSandboxRequest) (*pb.CreateSandboxResponse, error) {
	resp := new(pb.CreateSandboxResponse)
	if err := c.conn.Invoke(ctx, "/crucible.v1.Sandboxes/Create", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) ListSandboxes(ctx context.Context, req *pb.ListSandboxesRequest) (*pb.ListSandboxesResponse, error) {
	resp := new(pb.ListSandboxesResponse)
	if err := c.conn.Invoke(ctx, "/crucible.v1.Sandboxes/List", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) StopSandbox(ctx context.Context, req *pb.StopSandboxRequest) (*pb.StopSandboxResponse, error) {
	resp := new(pb.StopSandboxResponse)
	if err := c.conn.Invoke(ctx, "/crucible.v1.Sandboxes/Stop", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) DestroySandbox(ctx context.Context, req *pb.DestroySandboxRequest) (*pb.DestroySandboxResponse, error) {
	resp := new(pb.DestroySandboxResponse)
	if err := c.conn.Invoke(ctx, "/crucible.v1.Sandboxes/Destroy", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Exec(ctx context.Context, req *pb.ExecRequest) (*pb.ExecResponse, error) {
	resp := new(pb.ExecResponse)
	if err := c.conn.Invoke(ctx, "/crucible.v1.Execution/Exec", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) CancelExec(ctx context.Context, req *pb.CancelExecRequest) (*pb.CancelExecResponse, error) {
	resp := new(pb.CancelExecResponse)
	if err := c.conn.Invoke(ctx, "/crucible.v1.Execution/CancelExec", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) GetExec(ctx context.Context, req *pb.GetExecRequest) (*pb.GetExecResponse, error) {
	resp := new(pb.GetExecResponse)
	if err := c.conn.Invoke(ctx, "/crucible.v1.Execution/GetExec", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) ListExecs(ctx context.Context, req *pb.ListExecsRequest) (*pb.ListExecsResponse, error) {
	resp := new(pb.ListExecsResponse)
	if err := c.conn.Invoke(ctx, "/crucible.v1.Execution/ListExecs", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Reap(ctx context.Context, req *pb.ReapRequest) (*pb.ReapResponse, error) {
	resp := new(pb.ReapResponse)
	if err := c.conn.Invoke(ctx, "/crucible.v1.Admin/Reap", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) CreateSnapshot(ctx context.Context, req *pb.CreateSnapshotRequest) (*pb.CreateSnapshotResponse, error) {
	resp := new(pb.CreateSnapshotResponse)
	if err := c.conn.Invoke(ctx, "/crucible.v1.Snapshots/CreateSnapshot", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) RestoreSnapshot(ctx context.Context, req *pb.RestoreSnapshotRequest) (*pb.RestoreSnapshotResponse, error) {
	resp := new(pb.RestoreSnapshotResponse)
	if err := c.conn.Invoke(ctx, "/crucible.v1.Snapshots/RestoreSnapshot", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) DeleteSnapshot(ctx context.Context, req *pb.DeleteSnapshotRequest) (*pb.DeleteSnapshotResponse, error) {
	resp := new(pb.DeleteSnapshotResponse)
	if err := c.conn.Invoke(ctx, "/crucible.v1.Snapshots/DeleteSnapshot", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) ListSnapshots(ctx context.Context, req *pb.ListSnapshotsRequest) (*pb.ListSnapshotsResponse, error) {
	resp := new(pb.ListSnapshotsResponse)
	if err := c.conn.Invoke(ctx, "/crucible.v1.Snapshots/ListSnapshots", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) GarbageCollectSnapshots(ctx context.Context, req *pb.GarbageCollectSnapshotsRequest) (*pb.GarbageCollectSnapshotsResponse, error) {
	resp := new(pb.GarbageCollectSnapshotsResponse)
	if err := c.conn.Invoke(ctx, "/crucible.v1.Snapshots/GarbageCollectSnapshots", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
