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
	"github.com/HealthSamurai/fhir-fuse/inode"
	"github.com/HealthSamurai/fhir-fuse/internal/pending"
	"github.com/jacobsa/fuse/fuseops"
)

// pendingBody returns the in-progress write buffer for id, if any, without
// creating one.
func (fs *fileSystem) pendingBody(id fuseops.InodeID) (*pending.Body, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	pb, ok := fs.pending[id]
	return pb, ok
}

// ensurePendingBody returns the pending write buffer for id, creating one
// seeded from the cached resource body on first use so that a write at a
// nonzero offset (or a truncate) against an otherwise-unmodified resource
// behaves like a read-modify-write rather than discarding the rest of the
// document (§4.2 "write": "The pending body is committed on flush/release").
func (fs *fileSystem) ensurePendingBody(id fuseops.InodeID, lp inode.LogicalPath) *pending.Body {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if pb, ok := fs.pending[id]; ok {
		return pb
	}

	var pb *pending.Body
	if entry, ok := fs.resources.Peek(lp.Type, lp.ID); ok {
		pb = pending.NewWithContent(entry.Body)
	} else {
		pb = pending.New()
	}

	fs.pending[id] = pb
	return pb
}
