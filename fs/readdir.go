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
	"fmt"

	"github.com/HealthSamurai/fhir-fuse/fhir"
	"github.com/HealthSamurai/fhir-fuse/inode"
	"github.com/HealthSamurai/fhir-fuse/internal/metrics"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
)

// parentOf returns the LogicalPath that routes to lp's own directory, used
// to populate the ".." entry of a listing. Root has no parent; by
// convention its ".." refers to itself, matching how the kernel treats the
// mount point's own parent.
func parentOf(lp inode.LogicalPath) (inode.LogicalPath, bool) {
	switch lp.Kind {
	case inode.KindRoot:
		return inode.LogicalPath{}, false
	case inode.KindTypeDir:
		return inode.Root(), true
	case inode.KindSearchRoot, inode.KindOperationDir:
		return inode.TypeDir(lp.Type), true
	case inode.KindHistoryDir:
		return inode.TypeDir(lp.Type), true
	case inode.KindSearchDir:
		return inode.SearchRoot(lp.Type), true
	case inode.KindSearchIncludeTypeDir:
		return inode.SearchDir(lp.Type, lp.Query), true
	default:
		return inode.LogicalPath{}, false
	}
}

// dirEntry builds one Dirent, resolving name to an inode via the table so
// that every listed child is immediately LookUpInode-able without a
// separate round trip, at the cost of bumping its lookup count a second
// time if the kernel goes on to look it up explicitly (documented as an
// accepted tradeoff).
func dirEntry(table *inode.Table, name string, child inode.LogicalPath, isDir bool) fuseutil.Dirent {
	typ := fuseutil.DT_File
	if isDir {
		typ = fuseutil.DT_Directory
	}
	return fuseutil.Dirent{
		Inode: table.LookUp(child),
		Name:  name,
		Type:  typ,
	}
}

// listChildren builds the full entry set for a directory, including the
// synthetic "." and ".." entries every POSIX directory carries. selfID and
// parentID are resolved once at OpenDir time rather than per-entry.
func (fs *fileSystem) listChildren(ctx context.Context, lp inode.LogicalPath, selfID, parentID fuseops.InodeID) ([]fuseutil.Dirent, error) {
	entries := []fuseutil.Dirent{
		{Inode: selfID, Name: ".", Type: fuseutil.DT_Directory},
		{Inode: parentID, Name: "..", Type: fuseutil.DT_Directory},
	}

	switch lp.Kind {
	case inode.KindRoot:
		for _, t := range fs.catalog.Types() {
			entries = append(entries, dirEntry(fs.table, t, inode.TypeDir(t), true))
		}

	case inode.KindTypeDir:
		result, err := fs.client.Search(ctx, lp.Type, "_count=100")
		if err != nil {
			return nil, err
		}
		for _, r := range result.ByType[lp.Type] {
			fs.resources.Put(lp.Type, r.ID, r)
			entries = append(entries, dirEntry(fs.table, r.ID+".json", inode.ResourceFile(lp.Type, r.ID), false))
			entries = append(entries, dirEntry(fs.table, "."+r.ID, inode.HistoryDir(lp.Type, r.ID), true))
		}
		entries = append(entries, dirEntry(fs.table, "_search", inode.SearchRoot(lp.Type), true))
		for _, op := range fs.catalog.OperationsForType(lp.Type) {
			entries = append(entries, dirEntry(fs.table, "$"+op, inode.OperationDir(lp.Type, op), true))
		}

	case inode.KindHistoryDir:
		versions, err := fs.history.Get(ctx, lp.Type, lp.ID, func(ctx context.Context) ([]fhir.HistoryEntry, error) {
			return fs.client.History(ctx, lp.Type, lp.ID)
		})
		if err != nil {
			return nil, err
		}
		for _, v := range versions {
			name := fmt.Sprintf("%s.v%d.json", lp.ID, v.Version)
			entries = append(entries, dirEntry(fs.table, name, inode.HistoryFile(lp.Type, lp.ID, v.Version), false))
		}

	case inode.KindSearchRoot:
		for _, child := range fs.table.ChildrenOf(func(c inode.LogicalPath) bool {
			return c.Kind == inode.KindSearchDir && c.Type == lp.Type
		}) {
			entries = append(entries, dirEntry(fs.table, child.Query, child, true))
		}

	case inode.KindSearchDir:
		entry, ok := fs.searches.Get(lp.Type, lp.Query)
		if !ok {
			return nil, fuse.ENOENT
		}
		for includedType := range entry.ByType {
			entries = append(entries, dirEntry(fs.table, includedType, inode.SearchIncludeTypeDir(lp.Type, lp.Query, includedType), true))
		}

	case inode.KindSearchIncludeTypeDir:
		entry, ok := fs.searches.Get(lp.Type, lp.Query)
		if !ok {
			return nil, fuse.ENOENT
		}
		for _, r := range entry.ByType[lp.IncludedType] {
			entries = append(entries, dirEntry(fs.table, r.ID+".json", inode.SearchResultFile(lp.Type, lp.Query, lp.IncludedType, r.ID), false))
		}

	case inode.KindOperationDir:
		for _, pair := range fs.operations.List(lp.Type, lp.Op) {
			name := fmt.Sprintf("%s.%s", pair.Args, pair.Format)
			entries = append(entries, dirEntry(fs.table, name, inode.OperationResultFile(lp.Type, lp.Op, pair.Args, pair.Format), false))
		}
	}

	return entries, nil
}

// OpenDir allocates a dirHandle for lp and defers the actual fetch to the
// first ReadDir, per §5: the directory contents are fetched lazily and
// buffered once per handle.
func (fs *fileSystem) OpenDir(op *fuseops.OpenDirOp) error {
	metrics.ObserveOp("OpenDir")
	lp, err := fs.resolve(op.Inode)
	if err != nil {
		return err
	}

	parentLP, ok := parentOf(lp)
	parentID := op.Inode
	if ok {
		parentID = fs.table.LookUp(parentLP)
	}

	dh := newDirHandle(lp)
	selfID := op.Inode
	dh.fetch = func(ctx context.Context) ([]fuseutil.Dirent, error) {
		return fs.listChildren(ctx, lp, selfID, parentID)
	}

	fs.mu.Lock()
	handle := fs.nextHandle
	fs.nextHandle++
	fs.dirHandles[handle] = dh
	fs.mu.Unlock()

	op.Handle = handle
	return nil
}

// ReadDir serves one page of a directory listing from its buffered handle.
func (fs *fileSystem) ReadDir(op *fuseops.ReadDirOp) error {
	metrics.ObserveOp("ReadDir")
	fs.mu.Lock()
	dh, ok := fs.dirHandles[op.Handle]
	fs.mu.Unlock()
	if !ok {
		return fuse.EINVAL
	}

	if err := dh.load(op.Context()); err != nil {
		return fhir.Errno(err)
	}

	return dh.ReadInto(op)
}

// ReleaseDirHandle discards a dirHandle's buffer.
func (fs *fileSystem) ReleaseDirHandle(op *fuseops.ReleaseDirHandleOp) error {
	fs.mu.Lock()
	delete(fs.dirHandles, op.Handle)
	fs.mu.Unlock()
	return nil
}
