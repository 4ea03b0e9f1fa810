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

// Package crucibleerr defines the error taxonomy shared by the store,
// catalog, provider, executor and orchestrator packages, plus the
// boundary mapping from that taxonomy to gRPC status codes.
package crucibleerr

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Sentinel errors for conditions that carry no extra structured data.
var (
	ErrNotFound     = errors.New("crucible: not found")
	ErrInvalid      = errors.New("crucible: invalid argument")
	ErrUnsupported  = errors.New("crucible: unsupported by provider")
	ErrConflict     = errors.New("crucible: conflicting mutation")
	ErrNotReady     = errors.New("crucible: snapshot is not ready")
)

// Kind classifies an Error for the gRPC boundary mapping in GRPCStatus.
type Kind int

const (
	KindInternal Kind = iota
	KindFailedPrecondition
)

// Error wraps an operation name and an underlying cause, mirroring the
// teacher's Op/Err wrapper shape (DeviceError, MountError, FilesystemError).
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Internal wraps err as an Internal-kind Error attributed to op.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindInternal, Op: op, Err: err}
}

// FailedPrecondition wraps err as a FailedPrecondition-kind Error attributed to op.
func FailedPrecondition(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindFailedPrecondition, Op: op, Err: err}
}

// GRPCStatus maps err to a status.Error per the taxonomy in SPEC_FULL.md §6/§7.
// It is used only at the RPC boundary (internal/rpc); every other package
// works with plain wrapped Go errors.
func GRPCStatus(err error) error {
	if err == nil {
		return nil
	}

	var ce *Error
	if errors.As(err, &ce) {
		switch ce.Kind {
		case KindFailedPrecondition:
			return status.Error(codes.FailedPrecondition, ce.Error())
		default:
			return status.Error(codes.Internal, ce.Error())
		}
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrInvalid):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrUnsupported):
		return status.Error(codes.Unimplemented, err.Error())
	case errors.Is(err, ErrNotReady):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
