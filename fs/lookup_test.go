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

// Tests in this package construct fuseops.XxxOp values directly rather than
// driving them through a real kernel mount. op.Context() on a directly
// constructed op carries no live deadline or cancellation signal, so every
// scenario here is chosen to hit a cache fast path (a prior Put/Materialize
// already installed the entry) rather than a cold path that would dial out
// through fhir.Client -- exercising the latter is covered separately against
// an httptest server by calling the ctx-taking helpers (sizeAndMtime,
// bodyFor, commitPending, listChildren) directly with context.Background().
package fs

import (
	"testing"

	"github.com/HealthSamurai/fhir-fuse/inode"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookUpInodeTypeDir(t *testing.T) {
	fs := newTestFS(nil)

	op := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "Patient"}
	require.NoError(t, fs.LookUpInode(op))

	lp, ok := fs.table.Resolve(op.Entry.Child)
	require.True(t, ok)
	assert.Equal(t, inode.KindTypeDir, lp.Kind)
	assert.True(t, op.Entry.Attributes.Mode.IsDir())
}

func TestLookUpInodeUnknownTypeIsNotFound(t *testing.T) {
	fs := newTestFS(nil)

	op := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "Unobtainium"}
	err := fs.LookUpInode(op)
	assert.Equal(t, fuse.ENOENT, err)
}

func TestLookUpInodeReservedSearchNameIsInvalid(t *testing.T) {
	fs := newTestFS(nil)

	parent := fs.table.LookUp(inode.SearchRoot("Patient"))
	op := &fuseops.LookUpInodeOp{Parent: parent, Name: "a/b"}
	err := fs.LookUpInode(op)
	assert.Equal(t, fuse.EINVAL, err)
}

func TestLookUpInodeCachedResourceFile(t *testing.T) {
	fs := newTestFS(nil)
	fs.resources.Put("Patient", "p1", newFakeResource("Patient", "p1"))

	parent := fs.table.LookUp(inode.TypeDir("Patient"))
	op := &fuseops.LookUpInodeOp{Parent: parent, Name: "p1.json"}
	require.NoError(t, fs.LookUpInode(op))

	assert.False(t, op.Entry.Attributes.Mode.IsDir())
	assert.Equal(t, uint64(len(newFakeResource("Patient", "p1").Body)), op.Entry.Attributes.Size)
}

func TestLookUpInodeUnknownParentIsNotFound(t *testing.T) {
	fs := newTestFS(nil)
	op := &fuseops.LookUpInodeOp{Parent: 99999, Name: "whatever"}
	assert.Equal(t, fuse.ENOENT, fs.LookUpInode(op))
}

func TestGetInodeAttributesCachedResourceFile(t *testing.T) {
	fs := newTestFS(nil)
	fs.resources.Put("Patient", "p1", newFakeResource("Patient", "p1"))

	id := fs.table.LookUp(inode.ResourceFile("Patient", "p1"))
	op := &fuseops.GetInodeAttributesOp{Inode: id}
	require.NoError(t, fs.GetInodeAttributes(op))
	assert.Equal(t, uint64(0644), uint64(op.Attributes.Mode&0777))
}

func TestSetInodeAttributesTruncatesPendingBody(t *testing.T) {
	fs := newTestFS(nil)
	fs.resources.Put("Patient", "p1", newFakeResource("Patient", "p1"))

	lp := inode.ResourceFile("Patient", "p1")
	id := fs.table.LookUp(lp)

	size := uint64(3)
	op := &fuseops.SetInodeAttributesOp{Inode: id, Size: &size}
	require.NoError(t, fs.SetInodeAttributes(op))
	assert.Equal(t, uint64(3), op.Attributes.Size)

	pb, ok := fs.pendingBody(id)
	require.True(t, ok)
	assert.Equal(t, int64(3), pb.Len())
}

func TestForgetInodeDropsPendingBody(t *testing.T) {
	fs := newTestFS(nil)
	lp := inode.ResourceFile("Patient", "new")
	id := fs.table.LookUp(lp)
	fs.ensurePendingBody(id, lp)

	require.NoError(t, fs.ForgetInode(&fuseops.ForgetInodeOp{ID: id, N: 1}))

	_, ok := fs.pendingBody(id)
	assert.False(t, ok)
	_, ok = fs.table.Resolve(id)
	assert.False(t, ok, "inode should be destroyed once its lookup count drains")
}

func TestRouteErrnoTranslatesReservedToEinval(t *testing.T) {
	fs := newTestFS(nil)
	_, err := fs.route(inode.SearchRoot("Patient"), "bad/name")
	assert.Equal(t, fuse.EINVAL, routeErrno(err))
}

func TestRouteErrnoTranslatesNoMatchToEnoent(t *testing.T) {
	fs := newTestFS(nil)
	_, err := fs.route(inode.Root(), "Nonexistent")
	assert.Equal(t, fuse.ENOENT, routeErrno(err))
}
