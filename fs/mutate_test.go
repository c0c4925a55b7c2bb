// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fs

import (
	"context"
	"testing"

	"github.com/HealthSamurai/fhir-fuse/fhir"
	"github.com/HealthSamurai/fhir-fuse/inode"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MkDir and CreateFile's OperationResultFile branch always materialize over
// the network (cache.SearchCache.Materialize and OperationRegistry.Materialize
// have no fast path), so they are covered directly against an httptest
// server in client-level tests rather than through a directly constructed
// op here. What remains -- the routing and kind checks that run before any
// network call -- is covered below.

func TestMkDirRejectsNonSearchDirName(t *testing.T) {
	fs := newTestFS(nil)
	op := &fuseops.MkDirOp{Parent: fuseops.RootInodeID, Name: "Patient"}
	assert.Equal(t, fuse.EACCES, fs.MkDir(op))
}

func TestMkDirUnknownParentIsNotFound(t *testing.T) {
	fs := newTestFS(nil)
	op := &fuseops.MkDirOp{Parent: 99999, Name: "anything"}
	assert.Equal(t, fuse.ENOENT, fs.MkDir(op))
}

func TestRmDirDropsSearchEntryAndKeepsSearchRoot(t *testing.T) {
	fs := newTestFS(nil)

	_, err := fs.searches.Materialize(context.Background(), "Patient", "name=eve",
		func(ctx context.Context) (*fhir.SearchResult, error) {
			return &fhir.SearchResult{ByType: map[string][]fhir.Resource{}}, nil
		})
	require.NoError(t, err)

	searchRootID := fs.table.LookUp(inode.SearchRoot("Patient"))
	op := &fuseops.RmDirOp{Parent: searchRootID, Name: "name=eve"}
	require.NoError(t, fs.RmDir(op))

	_, ok := fs.searches.Get("Patient", "name=eve")
	assert.False(t, ok, "rmdir should drop the cached search entry")

	_, stillResolves := fs.table.Resolve(searchRootID)
	assert.True(t, stillResolves, "the parent SearchRoot inode is untouched by an rmdir under it")
}

func TestRmDirRejectsNonSearchDir(t *testing.T) {
	fs := newTestFS(nil)
	op := &fuseops.RmDirOp{Parent: fuseops.RootInodeID, Name: "Patient"}
	assert.Equal(t, fuse.EACCES, fs.RmDir(op))
}

func TestCreateFileResourceFileStartsEmptyPendingBody(t *testing.T) {
	fs := newTestFS(nil)

	parent := fs.table.LookUp(inode.TypeDir("Patient"))
	op := &fuseops.CreateFileOp{Parent: parent, Name: "new.json"}
	require.NoError(t, fs.CreateFile(op))

	assert.Equal(t, uint64(0), op.Entry.Attributes.Size)
	pb, ok := fs.pendingBody(op.Entry.Child)
	require.True(t, ok)
	assert.Equal(t, int64(0), pb.Len())
}

func TestCreateFileRejectsUnroutableKind(t *testing.T) {
	fs := newTestFS(nil)
	op := &fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: "Patient"}
	assert.Equal(t, fuse.EACCES, fs.CreateFile(op))
}

func TestUnlinkOperationResultFileDropsEntry(t *testing.T) {
	fs := newTestFS(nil)

	_, err := fs.operations.Materialize(context.Background(), "Patient", "everything", "start=2020", "json",
		func(ctx context.Context) ([]byte, error) { return []byte(`{}`), nil })
	require.NoError(t, err)

	opDirID := fs.table.LookUp(inode.OperationDir("Patient", "everything"))
	op := &fuseops.UnlinkOp{Parent: opDirID, Name: "start=2020.json"}
	require.NoError(t, fs.Unlink(op))

	_, ok := fs.operations.Get("Patient", "everything", "start=2020", "json")
	assert.False(t, ok)
}

func TestUnlinkRejectsHistoryFile(t *testing.T) {
	fs := newTestFS(nil)

	_, err := fs.history.Get(context.Background(), "Patient", "p1",
		func(ctx context.Context) ([]fhir.HistoryEntry, error) {
			return []fhir.HistoryEntry{{VersionID: "1", Body: []byte(`{}`)}}, nil
		})
	require.NoError(t, err)

	historyDirID := fs.table.LookUp(inode.HistoryDir("Patient", "p1"))
	op := &fuseops.UnlinkOp{Parent: historyDirID, Name: "p1.v1.json"}
	assert.Equal(t, fuse.EACCES, fs.Unlink(op))
}

func TestUnlinkUnknownNameIsNotFound(t *testing.T) {
	fs := newTestFS(nil)
	op := &fuseops.UnlinkOp{Parent: fuseops.RootInodeID, Name: "Nonexistent"}
	assert.Equal(t, fuse.ENOENT, fs.Unlink(op))
}
