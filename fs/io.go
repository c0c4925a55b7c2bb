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
	"encoding/json"
	"net/url"

	"github.com/HealthSamurai/fhir-fuse/fhir"
	"github.com/HealthSamurai/fhir-fuse/inode"
	"github.com/HealthSamurai/fhir-fuse/internal/metrics"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
)

// OpenFile just mints a handle; the actual bytes are fetched lazily by the
// first ReadFile against whichever cache owns this LogicalPath's kind.
func (fs *fileSystem) OpenFile(op *fuseops.OpenFileOp) error {
	metrics.ObserveOp("OpenFile")
	if _, err := fs.resolve(op.Inode); err != nil {
		return err
	}
	op.Handle = fs.mintHandle()
	return nil
}

// bodyFor returns the current byte content backing lp, fetching over the
// network on a cache miss exactly as sizeAndMtime does (§4.2 "read"). For
// an OperationResultFile this is also the synthesize-on-read path: a bare
// read with no prior create/touch invokes the operation now and installs
// its result, per §3/§4.9's "populated on create/touch/open of a
// previously-absent result file."
func (fs *fileSystem) bodyFor(ctx context.Context, id fuseops.InodeID, lp inode.LogicalPath) ([]byte, error) {
	if pb, ok := fs.pendingBody(id); ok {
		return pb.Bytes(), nil
	}

	switch lp.Kind {
	case inode.KindResourceFile:
		entry, err := fs.resources.Get(ctx, lp.Type, lp.ID, func(ctx context.Context) (fhir.Resource, error) {
			return fs.client.Read(ctx, lp.Type, lp.ID)
		})
		if err != nil {
			return nil, err
		}
		return entry.Body, nil

	case inode.KindHistoryFile:
		versions, err := fs.history.Get(ctx, lp.Type, lp.ID, func(ctx context.Context) ([]fhir.HistoryEntry, error) {
			return fs.client.History(ctx, lp.Type, lp.ID)
		})
		if err != nil {
			return nil, err
		}
		for _, v := range versions {
			if v.Version == lp.Version {
				return v.Body, nil
			}
		}
		return nil, fuse.ENOENT

	case inode.KindSearchResultFile:
		entry, ok := fs.searches.Get(lp.Type, lp.Query)
		if !ok {
			return nil, fuse.ENOENT
		}
		for _, r := range entry.ByType[lp.IncludedType] {
			if r.ID == lp.ID {
				return r.Body, nil
			}
		}
		return nil, fuse.ENOENT

	case inode.KindOperationResultFile:
		if body, ok := fs.operations.Get(lp.Type, lp.Op, lp.Args, lp.Format); ok {
			return body, nil
		}
		args, perr := url.ParseQuery(lp.Args)
		if perr != nil {
			return nil, fuse.EINVAL
		}
		return fs.operations.Materialize(ctx, lp.Type, lp.Op, lp.Args, lp.Format,
			func(ctx context.Context) ([]byte, error) {
				return fs.client.Operation(ctx, lp.Type, lp.Op, args, fhir.OutputFormat(lp.Format))
			})

	default:
		return nil, fuse.EIO
	}
}

// ReadFile serves a range of lp's current content (§4.2 "read"). Reading
// past the end of the content is a short read, not an error, matching
// pending.Body.ReadAt and the kernel's own EOF convention.
func (fs *fileSystem) ReadFile(op *fuseops.ReadFileOp) error {
	metrics.ObserveOp("ReadFile")
	lp, err := fs.resolve(op.Inode)
	if err != nil {
		return err
	}

	body, err := fs.bodyFor(op.Context(), op.Inode, lp)
	if err != nil {
		return fhir.Errno(err)
	}

	if op.Offset >= int64(len(body)) {
		op.Data = nil
		return nil
	}

	end := op.Offset + int64(op.Size)
	if end > int64(len(body)) {
		end = int64(len(body))
	}
	op.Data = body[op.Offset:end]
	return nil
}

// WriteFile buffers data into the per-inode pending body; ResourceFile
// only, per §4.2 "write".
func (fs *fileSystem) WriteFile(op *fuseops.WriteFileOp) error {
	metrics.ObserveOp("WriteFile")
	lp, err := fs.resolve(op.Inode)
	if err != nil {
		return err
	}
	if lp.Kind != inode.KindResourceFile {
		return fuse.EACCES
	}

	pb := fs.ensurePendingBody(op.Inode, lp)
	_, err = pb.WriteAt(op.Data, op.Offset)
	return err
}

// flushedResource is the minimal shape needed to validate and route a
// committed write, per §4.2 flush/release steps 1-2.
type flushedResource struct {
	ResourceType string `json:"resourceType"`
	ID           string `json:"id"`
}

// commitPending performs flush/release's write-through: validate the
// buffered JSON, decide create-vs-update, and push it to the server,
// updating C3/C4 on success and leaving the pending body untouched on
// failure so a retry is possible (§4.2 steps 3-5).
func (fs *fileSystem) commitPending(ctx context.Context, id fuseops.InodeID, lp inode.LogicalPath) error {
	pb, ok := fs.pendingBody(id)
	if !ok {
		return nil
	}

	body := pb.Bytes()

	var parsed flushedResource
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fuse.EINVAL
	}
	if parsed.ResourceType != lp.Type {
		return fuse.EINVAL
	}
	if parsed.ID != "" && parsed.ID != lp.ID {
		return fuse.EINVAL
	}

	var (
		res fhir.Resource
		err error
	)
	switch {
	case fs.resources.Has(lp.Type, lp.ID):
		res, err = fs.client.Update(ctx, lp.Type, lp.ID, body)
	case parsed.ID != "":
		res, err = fs.client.Update(ctx, lp.Type, lp.ID, body)
	default:
		res, err = fs.client.Create(ctx, lp.Type, body)
	}
	if err != nil {
		return fhir.Errno(err)
	}

	fs.resources.Put(lp.Type, res.ID, res)
	fs.history.Invalidate(lp.Type, lp.ID)

	fs.mu.Lock()
	delete(fs.pending, id)
	fs.mu.Unlock()

	return nil
}

// SyncFile commits the pending body without releasing the handle (fsync).
func (fs *fileSystem) SyncFile(op *fuseops.SyncFileOp) error {
	metrics.ObserveOp("SyncFile")
	lp, err := fs.resolve(op.Inode)
	if err != nil {
		return err
	}
	return fs.commitPending(op.Context(), op.Inode, lp)
}

// FlushFile commits the pending body on close (§4.2 "flush/release").
func (fs *fileSystem) FlushFile(op *fuseops.FlushFileOp) error {
	metrics.ObserveOp("FlushFile")
	lp, err := fs.resolve(op.Inode)
	if err != nil {
		return err
	}
	return fs.commitPending(op.Context(), op.Inode, lp)
}

// ReleaseFileHandle is a no-op: handles carry no state of their own.
func (fs *fileSystem) ReleaseFileHandle(op *fuseops.ReleaseFileHandleOp) error {
	return nil
}
