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
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/HealthSamurai/fhir-fuse/fhir"
)

type searchKey struct {
	Type  string
	Query string
}

// SearchEntry is the materialized result of one search directory (S, §3):
// the returned resources grouped by the resourceType they actually are,
// so _include/_revinclude results land under their own type directory.
type SearchEntry struct {
	ByType map[string][]fhir.Resource
}

// SearchCache is C5. Entries are created atomically by mkdir and removed
// atomically by rmdir; there is no TTL -- a search result is a point-in-time
// snapshot that lives exactly as long as its directory (§4.5).
type SearchCache struct {
	mu      sync.Mutex
	entries map[searchKey]SearchEntry
	group   singleflight.Group
}

func NewSearchCache() *SearchCache {
	return &SearchCache{entries: make(map[searchKey]SearchEntry)}
}

// Materialize executes fetch and installs its result under (type,query)
// only on success, per §4.5: "Entry is created atomically; partially-failed
// searches leave no cache entry and surface the error from mkdir."
// Concurrent calls for the same (type,query) share one fetch.
func (c *SearchCache) Materialize(ctx context.Context, resourceType, query string, fetch func(context.Context) (*fhir.SearchResult, error)) (SearchEntry, error) {
	v, err, _ := c.group.Do(resourceType+"?"+query, func() (interface{}, error) {
		result, err := fetch(ctx)
		if err != nil {
			return SearchEntry{}, err
		}

		entry := SearchEntry{ByType: result.ByType}

		c.mu.Lock()
		c.entries[searchKey{resourceType, query}] = entry
		c.mu.Unlock()

		return entry, nil
	})
	if err != nil {
		return SearchEntry{}, err
	}
	return v.(SearchEntry), nil
}

// Get returns the previously materialized entry for (type,query).
func (c *SearchCache) Get(resourceType, query string) (SearchEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[searchKey{resourceType, query}]
	return entry, ok
}

// Drop removes the entry for (type,query), per rmdir (§4.5 "rmdir drops the
// entry").
func (c *SearchCache) Drop(resourceType, query string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, searchKey{resourceType, query})
}
