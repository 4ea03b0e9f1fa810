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

package main

import (
	"testing"

	"github.com/crucible-sh/crucible/internal/rpc/pb"
	"github.com/stretchr/testify/require"
)

func TestParseMountsAcceptsReadOnlySuffix(t *testing.T) {
	mounts, err := parseMounts([]string{"/host/data:/guest/data:ro", "/host/cache:/guest/cache"})
	require.NoError(t, err)
	require.Equal(t, []pb.MountSpec{
		{HostPath: "/host/data", GuestPath: "/guest/data", ReadOnly: true},
		{HostPath: "/host/cache", GuestPath: "/guest/cache"},
	}, mounts)
}

func TestParseMountsRejectsMissingGuestPath(t *testing.T) {
	_, err := parseMounts([]string{"/host/data"})
	require.Error(t, err)
}

func TestParseMountsEmptyInputYieldsEmptySlice(t *testing.T) {
	mounts, err := parseMounts(nil)
	require.NoError(t, err)
	require.Empty(t, mounts)
}
