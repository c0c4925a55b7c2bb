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

// Package cache holds the five server-facing caches (C3-C7): resource,
// history, search, operation registry, and capability discovery. The
// resource cache wraps internal/ttlcache for expiry; the resource and search
// caches coalesce concurrent fetches with golang.org/x/sync/singleflight and
// the history cache with a per-key channel, per the concurrency model in §5.
// The operation registry and the capability catalog are plain locked maps.
package cache

import (
	"context"
	"time"

	"github.com/HealthSamurai/fhir-fuse/fhir"
	"github.com/HealthSamurai/fhir-fuse/internal/metrics"
	"github.com/HealthSamurai/fhir-fuse/internal/ttlcache"
	"github.com/jacobsa/timeutil"
	"golang.org/x/sync/singleflight"
)

// DefaultResourceTTL is TTL_RESOURCE from §4.3.
const DefaultResourceTTL = 5 * time.Second

// resourceKey identifies an entry in the resource cache.
type resourceKey struct {
	Type string
	ID   string
}

// ResourceEntry is the cached form of a Resource record (R, §3): the body
// plus the version metadata needed to populate POSIX attributes.
type ResourceEntry struct {
	Body        []byte
	VersionID   string
	LastUpdated string
	// FetchedAt records when this process learned the entry, used as the
	// getattr mtime fallback when the server didn't report LastUpdated
	// (§4.2 getattr: "mtime equals cached lastUpdated when available, else
	// the cache's insertion time").
	FetchedAt time.Time
}

// ResourceCache is C3: per-(type,id) resource cache with TTL-based
// freshness and single-flight coalesced fetches.
type ResourceCache struct {
	clock timeutil.Clock
	ttl   *ttlcache.Cache[resourceKey, ResourceEntry]
	group singleflight.Group
}

// NewResourceCache builds a ResourceCache with the given TTL. cleanupInterval
// governs how often the background sweeper removes expired entries; pass 0
// to disable the sweeper (entries are still treated as expired on Get, just
// not proactively removed).
func NewResourceCache(clock timeutil.Clock, ttl, cleanupInterval time.Duration) *ResourceCache {
	return &ResourceCache{
		clock: clock,
		ttl:   ttlcache.New[resourceKey, ResourceEntry](ttl, cleanupInterval),
	}
}

// Peek returns the cached entry for (type,id) without triggering a fetch,
// along with whether it is present and fresh.
func (c *ResourceCache) Peek(resourceType, id string) (ResourceEntry, bool) {
	return c.ttl.Get(resourceKey{resourceType, id})
}

// Get returns the fresh entry for (type,id), fetching it via fetch on a
// miss or stale hit. Concurrent Get calls for the same key coalesce into a
// single fetch (§5 "Single-flight").
func (c *ResourceCache) Get(ctx context.Context, resourceType, id string, fetch func(context.Context) (fhir.Resource, error)) (ResourceEntry, error) {
	if entry, ok := c.ttl.Get(resourceKey{resourceType, id}); ok {
		metrics.ObserveCache("resource", true)
		return entry, nil
	}
	metrics.ObserveCache("resource", false)

	key := resourceType + "/" + id
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		res, err := fetch(ctx)
		if err != nil {
			return ResourceEntry{}, err
		}
		entry := ResourceEntry{
			Body:        res.Body,
			VersionID:   res.VersionID,
			LastUpdated: res.LastUpdated,
			FetchedAt:   c.clock.Now(),
		}
		c.ttl.Set(resourceKey{resourceType, id}, entry)
		return entry, nil
	})
	if err != nil {
		return ResourceEntry{}, err
	}
	return v.(ResourceEntry), nil
}

// Put installs an entry directly, used after a successful create/update or
// when a listing page returns a resource body as a side effect (§4.2
// readdir TypeDir: "Results are installed in C3 as a side effect").
func (c *ResourceCache) Put(resourceType, id string, res fhir.Resource) {
	c.ttl.Set(resourceKey{resourceType, id}, ResourceEntry{
		Body:        res.Body,
		VersionID:   res.VersionID,
		LastUpdated: res.LastUpdated,
		FetchedAt:   c.clock.Now(),
	})
}

// Invalidate drops the cached entry for (type,id), used on successful
// PUT/POST/DELETE (§4.3 "Invalidation").
func (c *ResourceCache) Invalidate(resourceType, id string) {
	c.ttl.Delete(resourceKey{resourceType, id})
}

// Has reports whether (type,id) is currently fresh in the cache, matching
// §3's invariant that a ResourceFile exists "iff the server holds (or
// recently held within TTL) that resource". Used as the router's
// KnownResource gate for history-directory visibility.
func (c *ResourceCache) Has(resourceType, id string) bool {
	_, ok := c.ttl.Get(resourceKey{resourceType, id})
	return ok
}

// Stop shuts down the background sweeper goroutine. Call on unmount.
func (c *ResourceCache) Stop() { c.ttl.Stop() }
