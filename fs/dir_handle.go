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
	"sort"
	"sync"

	"github.com/HealthSamurai/fhir-fuse/inode"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
)

// dirHandle buffers one listing's worth of entries so that readdir can be
// served across several kernel calls without re-running the underlying
// FHIR request on every call. Entries are fetched once into a buffer, and
// the kernel-supplied offset indexes into that buffer rather than driving a
// fresh fetch each time, built against the Append-style dirent writer
// exported by fuseutil (see samples/hellofs).
type dirHandle struct {
	mu sync.Mutex

	lp      inode.LogicalPath
	fetch   func(context.Context) ([]fuseutil.Dirent, error)
	entries []fuseutil.Dirent
	loaded  bool
}

func newDirHandle(lp inode.LogicalPath) *dirHandle {
	return &dirHandle{lp: lp}
}

// load populates entries exactly once per handle by calling dh.fetch. Later
// readdir calls against the same handle reuse the buffer, keeping
// offset-based pagination internally consistent even if a second server
// listing would return a different order or page boundary (§4.2 "readdir
// must be restartable").
func (dh *dirHandle) load(ctx context.Context) error {
	dh.mu.Lock()
	defer dh.mu.Unlock()

	if dh.loaded {
		return nil
	}

	entries, err := dh.fetch(ctx)
	if err != nil {
		return err
	}

	// A history listing already arrives in ascending version order; a
	// by-name sort would put p1.v10.json before p1.v2.json.
	if dh.lp.Kind != inode.KindHistoryDir {
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	}
	for i := range entries {
		entries[i].Offset = fuseops.DirOffset(i + 1)
	}

	dh.entries = entries
	dh.loaded = true
	return nil
}

// ReadInto serves one ReadDirOp from the buffered entries. op.Offset counts
// how many entries the kernel has already consumed (each Dirent's Offset
// field echoes back as the next call's op.Offset), so entries[op.Offset:]
// is always the correct resumption point.
func (dh *dirHandle) ReadInto(op *fuseops.ReadDirOp) error {
	dh.mu.Lock()
	defer dh.mu.Unlock()

	if int(op.Offset) > len(dh.entries) {
		return fuse.EINVAL
	}

	for _, e := range dh.entries[op.Offset:] {
		op.Data = fuseutil.AppendDirent(op.Data, e)
		if len(op.Data) > op.Size {
			op.Data = op.Data[:op.Size]
			break
		}
	}

	return nil
}
