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
	"errors"
	"time"

	"github.com/HealthSamurai/fhir-fuse/fhir"
	"github.com/HealthSamurai/fhir-fuse/inode"
	"github.com/HealthSamurai/fhir-fuse/internal/metrics"
	"github.com/HealthSamurai/fhir-fuse/router"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
)

// Init is a no-op: there is no local state to warm.
func (fs *fileSystem) Init(op *fuseops.InitOp) error {
	return nil
}

// sizeAndMtime resolves the byte length and modification time an attrs
// response should report for lp, fetching over the network when the
// relevant cache hasn't seen it yet. Directory kinds never reach the
// network (§6 "size = arbitrary for directories").
func (fs *fileSystem) sizeAndMtime(ctx context.Context, id fuseops.InodeID, lp inode.LogicalPath) (uint64, time.Time, error) {
	if lp.Kind.IsDir() {
		return 0, time.Time{}, nil
	}

	switch lp.Kind {
	case inode.KindResourceFile:
		if pb, ok := fs.pendingBody(id); ok {
			return uint64(pb.Len()), fs.clock.Now(), nil
		}

		entry, err := fs.resources.Get(ctx, lp.Type, lp.ID, func(ctx context.Context) (fhir.Resource, error) {
			return fs.client.Read(ctx, lp.Type, lp.ID)
		})
		if err != nil {
			return 0, time.Time{}, err
		}
		return uint64(len(entry.Body)), mtimeOf(entry.LastUpdated, entry.FetchedAt), nil

	case inode.KindHistoryFile:
		versions, err := fs.history.Get(ctx, lp.Type, lp.ID, func(ctx context.Context) ([]fhir.HistoryEntry, error) {
			return fs.client.History(ctx, lp.Type, lp.ID)
		})
		if err != nil {
			return 0, time.Time{}, err
		}
		for _, v := range versions {
			if v.Version == lp.Version {
				return uint64(len(v.Body)), fs.clock.Now(), nil
			}
		}
		return 0, time.Time{}, fuse.ENOENT

	case inode.KindSearchResultFile:
		entry, ok := fs.searches.Get(lp.Type, lp.Query)
		if !ok {
			return 0, time.Time{}, fuse.ENOENT
		}
		for _, r := range entry.ByType[lp.IncludedType] {
			if r.ID == lp.ID {
				return uint64(len(r.Body)), fs.clock.Now(), nil
			}
		}
		return 0, time.Time{}, fuse.ENOENT

	case inode.KindOperationResultFile:
		body, ok := fs.operations.Get(lp.Type, lp.Op, lp.Args, lp.Format)
		if !ok {
			return 0, fs.clock.Now(), nil
		}
		return uint64(len(body)), fs.clock.Now(), nil

	default:
		return 0, time.Time{}, nil
	}
}

func mtimeOf(lastUpdated string, fallback time.Time) time.Time {
	if lastUpdated == "" {
		return fallback
	}
	if t, err := time.Parse(time.RFC3339, lastUpdated); err == nil {
		return t
	}
	return fallback
}

// LookUpInode resolves parent/name to a child inode, consulting the router
// for syntax and the appropriate cache/client for existence and attrs
// (§4.2 "lookup").
func (fs *fileSystem) LookUpInode(op *fuseops.LookUpInodeOp) error {
	metrics.ObserveOp("LookUpInode")
	parent, err := fs.resolve(op.Parent)
	if err != nil {
		return err
	}

	child, err := fs.route(parent, op.Name)
	if err != nil {
		return routeErrno(err)
	}

	id := fs.table.LookUp(child)

	size, mtime, err := fs.sizeAndMtime(op.Context(), id, child)
	if err != nil {
		fs.table.Forget(id, 1)
		return fhir.Errno(err)
	}

	op.Entry.Child = id
	op.Entry.Attributes = fs.attributesFor(child, size, mtime)
	return nil
}

// GetInodeAttributes re-derives attrs for an already-resolved inode (§4.2
// "getattr").
func (fs *fileSystem) GetInodeAttributes(op *fuseops.GetInodeAttributesOp) error {
	metrics.ObserveOp("GetInodeAttributes")
	lp, err := fs.resolve(op.Inode)
	if err != nil {
		return err
	}

	size, mtime, err := fs.sizeAndMtime(op.Context(), op.Inode, lp)
	if err != nil {
		return fhir.Errno(err)
	}

	op.Attributes = fs.attributesFor(lp, size, mtime)
	return nil
}

// SetInodeAttributes accepts truncation against a ResourceFile's pending
// body and acknowledges any other attribute change as a no-op (§4.2
// "setattr": the filesystem does not persist POSIX metadata beyond what §6
// fixes statically).
func (fs *fileSystem) SetInodeAttributes(op *fuseops.SetInodeAttributesOp) error {
	lp, err := fs.resolve(op.Inode)
	if err != nil {
		return err
	}

	if op.Size != nil && lp.Kind == inode.KindResourceFile {
		pb := fs.ensurePendingBody(op.Inode, lp)
		pb.Truncate(int64(*op.Size))
	}

	size, mtime, err := fs.sizeAndMtime(op.Context(), op.Inode, lp)
	if err != nil {
		return fhir.Errno(err)
	}

	op.Attributes = fs.attributesFor(lp, size, mtime)
	return nil
}

// ForgetInode drains the kernel's reference count for an inode, destroying
// the table entry once it reaches zero (§3).
func (fs *fileSystem) ForgetInode(op *fuseops.ForgetInodeOp) error {
	fs.table.Forget(op.ID, uint64(op.N))

	fs.mu.Lock()
	delete(fs.pending, op.ID)
	fs.mu.Unlock()

	return nil
}

// routeErrno translates a router error into the errno §7 requires: ENOENT
// for a name that matches no grammar rule, EINVAL for a reserved
// character the path grammar can't represent.
func routeErrno(err error) error {
	var res *router.ErrReserved
	if errors.As(err, &res) {
		return fuse.EINVAL
	}
	return fuse.ENOENT
}
