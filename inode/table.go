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

package inode

import (
	"fmt"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/syncutil"
)

// record is the table's private bookkeeping for one live inode. Mirrors the
// teacher's fs/inode.lookupCount helper: the kernel's lookup count must hit
// zero before the entry is actually forgotten.
type record struct {
	lp          LogicalPath
	lookupCount uint64
	// deleted marks an inode whose LogicalPath no longer resolves from a
	// fresh lookup (e.g. after a successful DELETE) but that the kernel
	// still holds a reference to. The byKey entry is removed immediately;
	// the byID entry survives until Forget drains the lookup count.
	deleted bool
}

// Table is the bidirectional inode <-> LogicalPath mapping (C2). It is safe
// for concurrent use; the single lock is held only for map bookkeeping,
// never across I/O, per the concurrency model's "Inode table: single lock,
// held only to allocate/lookup -- never across I/O."
type Table struct {
	mu syncutil.InvariantMutex

	nextID fuseops.InodeID
	byID   map[fuseops.InodeID]*record
	byKey  map[string]fuseops.InodeID
}

// NewTable constructs a Table with the root inode already allocated, per
// §3: "1 is the root."
func NewTable() *Table {
	t := &Table{
		nextID: fuseops.RootInodeID + 1,
		byID:   make(map[fuseops.InodeID]*record),
		byKey:  make(map[string]fuseops.InodeID),
	}
	t.mu = syncutil.NewInvariantMutex(t.checkInvariants)

	root := Root()
	t.byID[fuseops.RootInodeID] = &record{lp: root, lookupCount: 1}
	t.byKey[root.Key()] = fuseops.RootInodeID

	return t
}

func (t *Table) checkInvariants() {
	if len(t.byID) < len(t.byKey) {
		panic("inode.Table: byKey has more entries than byID")
	}
	for key, id := range t.byKey {
		rec, ok := t.byID[id]
		if !ok {
			panic(fmt.Sprintf("inode.Table: byKey[%q] = %v not present in byID", key, id))
		}
		if rec.lp.Key() != key {
			panic(fmt.Sprintf("inode.Table: byKey[%q] points at inode %v whose LP key is %q", key, id, rec.lp.Key()))
		}
	}
}

// Resolve returns the LogicalPath for a live inode ID.
func (t *Table) Resolve(id fuseops.InodeID) (LogicalPath, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.byID[id]
	if !ok {
		return LogicalPath{}, false
	}
	return rec.lp, true
}

// Find returns the inode ID currently bound to lp, if any and not tombstoned
// by a concurrent delete.
func (t *Table) Find(lp LogicalPath) (fuseops.InodeID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id, ok := t.byKey[lp.Key()]
	return id, ok
}

// LookUp resolves lp to an inode ID, allocating a fresh one if this is the
// first time the path has been observed, and increments its lookup count by
// one -- the caller must call this exactly once per successful
// fuseops.LookUpInodeOp or equivalent (mkdir/create) the kernel will later
// balance with a ForgetInodeOp (§3 "Inode ... reuse after unlink is
// permitted only after the kernel has released all open handles").
func (t *Table) LookUp(lp LogicalPath) fuseops.InodeID {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := lp.Key()
	if id, ok := t.byKey[key]; ok {
		t.byID[id].lookupCount++
		t.byID[id].deleted = false
		return id
	}

	id := t.nextID
	t.nextID++

	t.byID[id] = &record{lp: lp, lookupCount: 1}
	t.byKey[key] = id

	return id
}

// IncRef bumps the lookup count of an already-resolved inode, used when the
// kernel issues a second LookUpInodeOp for a path this process already knows
// (e.g. after GetattrOp cache revalidation confirms the same LP).
func (t *Table) IncRef(id fuseops.InodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rec, ok := t.byID[id]; ok {
		rec.lookupCount++
	}
}

// Tombstone removes lp's forward mapping so that a fresh LookUp allocates a
// new inode, while leaving any already-issued inode ID resolvable until
// Forget drains it. Used after a successful DELETE/unlink/rmdir (§4.2).
func (t *Table) Tombstone(lp LogicalPath) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := lp.Key()
	id, ok := t.byKey[key]
	if !ok {
		return
	}
	delete(t.byKey, key)
	t.byID[id].deleted = true
}

// Forget decrements the lookup count for id by n and removes the inode
// entirely once it reaches zero, returning whether that happened.
func (t *Table) Forget(id fuseops.InodeID, n uint64) (destroyed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.byID[id]
	if !ok {
		return false
	}

	if n > rec.lookupCount {
		panic(fmt.Sprintf("inode.Table: Forget(%v, %d) exceeds lookup count %d", id, n, rec.lookupCount))
	}
	rec.lookupCount -= n

	if rec.lookupCount == 0 {
		delete(t.byID, id)
		if !rec.deleted {
			delete(t.byKey, rec.lp.Key())
		}
		return true
	}

	return false
}

// Len reports the number of live inodes, including the root. Used only by
// tests and diagnostics.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}

// ChildrenOf returns the LogicalPaths of known live, non-tombstoned
// children whose parent matches per belongsTo. Used by readdir for LP
// kinds whose children are created out-of-band (mkdir) rather than listed
// from a server collection, e.g. enumerating the SearchDir entries created
// so far under a SearchRoot.
func (t *Table) ChildrenOf(belongsTo func(LogicalPath) bool) []LogicalPath {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []LogicalPath
	for _, rec := range t.byID {
		if rec.deleted {
			continue
		}
		if belongsTo(rec.lp) {
			out = append(out, rec.lp)
		}
	}
	return out
}
