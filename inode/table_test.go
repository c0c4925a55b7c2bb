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
	"sync"
	"testing"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTableSeedsRoot(t *testing.T) {
	tb := NewTable()
	lp, ok := tb.Resolve(fuseops.RootInodeID)
	require.True(t, ok)
	assert.Equal(t, KindRoot, lp.Kind)
	assert.Equal(t, 1, tb.Len())
}

func TestLookUpAllocatesOncePerPath(t *testing.T) {
	tb := NewTable()
	lp := ResourceFile("Patient", "p1")

	id1 := tb.LookUp(lp)
	id2 := tb.LookUp(lp)
	assert.Equal(t, id1, id2, "same LP must resolve to the same inode")

	other := tb.LookUp(ResourceFile("Patient", "p2"))
	assert.NotEqual(t, id1, other, "distinct LPs must never share an inode")
}

func TestResolveRoundTrips(t *testing.T) {
	tb := NewTable()
	lp := TypeDir("Patient")
	id := tb.LookUp(lp)

	got, ok := tb.Resolve(id)
	require.True(t, ok)
	assert.Equal(t, lp, got)
}

func TestFindReflectsTombstone(t *testing.T) {
	tb := NewTable()
	lp := ResourceFile("Patient", "p1")
	id := tb.LookUp(lp)

	_, ok := tb.Find(lp)
	assert.True(t, ok)

	tb.Tombstone(lp)
	_, ok = tb.Find(lp)
	assert.False(t, ok, "tombstoned LP must not resolve from a fresh lookup")

	// The inode ID itself is still resolvable until Forget drains it.
	got, ok := tb.Resolve(id)
	require.True(t, ok)
	assert.Equal(t, lp, got)
}

func TestForgetDestroysAtZero(t *testing.T) {
	tb := NewTable()
	lp := ResourceFile("Patient", "p1")
	id := tb.LookUp(lp)
	tb.IncRef(id) // lookup count now 2

	destroyed := tb.Forget(id, 1)
	assert.False(t, destroyed)
	_, ok := tb.Resolve(id)
	assert.True(t, ok)

	destroyed = tb.Forget(id, 1)
	assert.True(t, destroyed)
	_, ok = tb.Resolve(id)
	assert.False(t, ok)
}

func TestForgetAfterTombstoneFreesTheKey(t *testing.T) {
	tb := NewTable()
	lp := ResourceFile("Patient", "p1")
	id := tb.LookUp(lp)
	tb.Tombstone(lp)
	tb.Forget(id, 1)

	// A brand new LookUp for the same LP must allocate a fresh inode, not
	// resurrect the tombstoned one (§3: "reuse after unlink is permitted
	// only after the kernel has released all open handles").
	newID := tb.LookUp(lp)
	assert.NotEqual(t, id, newID)
}

func TestForgetPanicsOnOverdraft(t *testing.T) {
	tb := NewTable()
	id := tb.LookUp(ResourceFile("Patient", "p1"))
	assert.Panics(t, func() { tb.Forget(id, 5) })
}

func TestConcurrentLookUpOfSamePathIsSerialized(t *testing.T) {
	tb := NewTable()
	lp := ResourceFile("Patient", "concurrent")

	var wg sync.WaitGroup
	ids := make([]fuseops.InodeID, 50)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = tb.LookUp(lp)
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}
