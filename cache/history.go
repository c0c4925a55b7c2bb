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

package cache

import (
	"context"
	"sort"
	"sync"

	"github.com/HealthSamurai/fhir-fuse/fhir"
)

type historyKey struct {
	Type string
	ID   string
}

// HistoryVersion is one entry of a resource's history (H, §3).
type HistoryVersion struct {
	Version int
	Body    []byte
}

// HistoryCache is C4: lazily populated, immutable once loaded, invalidated
// on any successful write/delete to the owning resource.
type HistoryCache struct {
	mu      sync.Mutex
	entries map[historyKey][]HistoryVersion
	loading map[historyKey]chan struct{}
}

func NewHistoryCache() *HistoryCache {
	return &HistoryCache{
		entries: make(map[historyKey][]HistoryVersion),
		loading: make(map[historyKey]chan struct{}),
	}
}

// Get returns the ordered version list for (type,id), populating it via
// fetch on first access. Concurrent callers for the same key block on the
// first fetch rather than each issuing one, mirroring the single-flight
// discipline applied to C3/C5.
func (c *HistoryCache) Get(ctx context.Context, resourceType, id string, fetch func(context.Context) ([]fhir.HistoryEntry, error)) ([]HistoryVersion, error) {
	key := historyKey{resourceType, id}

	c.mu.Lock()
	if versions, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return versions, nil
	}
	if ch, loading := c.loading[key]; loading {
		c.mu.Unlock()
		<-ch
		c.mu.Lock()
		versions, ok := c.entries[key]
		c.mu.Unlock()
		if !ok {
			// The shared fetch failed; fetch again so this caller gets an
			// error instead of an empty history.
			return c.Get(ctx, resourceType, id, fetch)
		}
		return versions, nil
	}

	ch := make(chan struct{})
	c.loading[key] = ch
	c.mu.Unlock()

	entries, err := fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.loading, key)
	close(ch)

	if err != nil {
		return nil, err
	}

	versions := historyEntriesToVersions(entries)
	c.entries[key] = versions
	return versions, nil
}

func historyEntriesToVersions(entries []fhir.HistoryEntry) []HistoryVersion {
	versions := make([]HistoryVersion, 0, len(entries))
	for _, e := range entries {
		v := parseVersionID(e.VersionID)
		versions = append(versions, HistoryVersion{Version: v, Body: e.Body})
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].Version < versions[j].Version })
	return versions
}

func parseVersionID(versionID string) int {
	n := 0
	for _, r := range versionID {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// Invalidate drops the cached history for (type,id), forcing the next
// access to refetch (§4.4: "Invalidated on any successful write/delete").
func (c *HistoryCache) Invalidate(resourceType, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, historyKey{resourceType, id})
}
