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
	"net/url"

	"github.com/HealthSamurai/fhir-fuse/fhir"
	"github.com/HealthSamurai/fhir-fuse/inode"
	"github.com/HealthSamurai/fhir-fuse/internal/metrics"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
)

// mintHandle allocates a fresh, unused HandleID. Open file handles carry no
// state of their own -- the pending body lives per-inode, not per-handle
// (§4.2 "write": "Buffer the write into a per-inode pending body") -- so
// there is nothing to register, only a counter to advance.
func (fs *fileSystem) mintHandle() fuseops.HandleID {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h := fs.nextHandle
	fs.nextHandle++
	return h
}

// MkDir creates a SearchDir by executing its query against the server
// (§4.2 "mkdir"). Every other parent/name combination is rejected: Root and
// TypeDir children are born at mount or from server listings, never mkdir.
func (fs *fileSystem) MkDir(op *fuseops.MkDirOp) error {
	metrics.ObserveOp("MkDir")
	parent, err := fs.resolve(op.Parent)
	if err != nil {
		return err
	}

	child, err := fs.route(parent, op.Name)
	if err != nil {
		return routeErrno(err)
	}
	if child.Kind != inode.KindSearchDir {
		return fuse.EACCES
	}

	_, err = fs.searches.Materialize(op.Context(), child.Type, child.Query,
		func(ctx context.Context) (*fhir.SearchResult, error) {
			return fs.client.Search(ctx, child.Type, child.Query)
		})
	if err != nil {
		return fhir.Errno(err)
	}

	id := fs.table.LookUp(child)
	op.Entry.Child = id
	op.Entry.Attributes = fs.attributesFor(child, 0, fs.clock.Now())
	return nil
}

// RmDir removes a SearchDir, dropping its cache entry (§4.2 "rmdir"). Any
// other directory kind cannot be removed.
func (fs *fileSystem) RmDir(op *fuseops.RmDirOp) error {
	metrics.ObserveOp("RmDir")
	parent, err := fs.resolve(op.Parent)
	if err != nil {
		return err
	}

	child, err := fs.route(parent, op.Name)
	if err != nil {
		return routeErrno(err)
	}
	if child.Kind != inode.KindSearchDir {
		return fuse.EACCES
	}

	fs.searches.Drop(child.Type, child.Query)
	fs.table.Tombstone(child)
	return nil
}

// CreateFile creates a ResourceFile (an empty pending body, no server call
// yet) or materializes an OperationResultFile immediately by invoking the
// operation, per §4.2 "create".
func (fs *fileSystem) CreateFile(op *fuseops.CreateFileOp) error {
	metrics.ObserveOp("CreateFile")
	parent, err := fs.resolve(op.Parent)
	if err != nil {
		return err
	}

	child, err := fs.route(parent, op.Name)
	if err != nil {
		return routeErrno(err)
	}

	switch child.Kind {
	case inode.KindResourceFile:
		id := fs.table.LookUp(child)
		fs.ensurePendingBody(id, child)
		op.Entry.Child = id
		op.Entry.Attributes = fs.attributesFor(child, 0, fs.clock.Now())

	case inode.KindOperationResultFile:
		args, perr := url.ParseQuery(child.Args)
		if perr != nil {
			return fuse.EINVAL
		}
		body, err := fs.operations.Materialize(op.Context(), child.Type, child.Op, child.Args, child.Format,
			func(ctx context.Context) ([]byte, error) {
				return fs.client.Operation(ctx, child.Type, child.Op, args, fhir.OutputFormat(child.Format))
			})
		if err != nil {
			return fhir.Errno(err)
		}
		id := fs.table.LookUp(child)
		op.Entry.Child = id
		op.Entry.Attributes = fs.attributesFor(child, uint64(len(body)), fs.clock.Now())

	default:
		return fuse.EACCES
	}

	op.Handle = fs.mintHandle()
	return nil
}

// Unlink removes a ResourceFile (issuing DELETE) or an OperationResultFile
// (dropping its cache entry). History and search-result files are
// immutable views and cannot be unlinked (§4.2 "unlink").
func (fs *fileSystem) Unlink(op *fuseops.UnlinkOp) error {
	metrics.ObserveOp("Unlink")
	parent, err := fs.resolve(op.Parent)
	if err != nil {
		return err
	}

	child, err := fs.route(parent, op.Name)
	if err != nil {
		return routeErrno(err)
	}

	switch child.Kind {
	case inode.KindResourceFile:
		if err := fs.client.Delete(op.Context(), child.Type, child.ID); err != nil {
			return fhir.Errno(err)
		}
		fs.resources.Invalidate(child.Type, child.ID)
		fs.history.Invalidate(child.Type, child.ID)
		fs.table.Tombstone(child)
		return nil

	case inode.KindOperationResultFile:
		fs.operations.Drop(child.Type, child.Op, child.Args, child.Format)
		fs.table.Tombstone(child)
		return nil

	default:
		return fuse.EACCES
	}
}
