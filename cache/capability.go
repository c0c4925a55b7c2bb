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

import "sync"

// Catalog is C7: the set of FHIR resource types the mount knows about,
// discovered once at mount time (§4.7) and fixed for the mount's lifetime
// unless explicitly refreshed. It also tracks whether the mount is
// networked at all (an "offline" base URL, §4.7/§6).
type Catalog struct {
	mu        sync.RWMutex
	types     map[string]bool
	ordered   []string
	offline   bool
	opsByType map[string][]string
}

// NewCatalog builds an empty, offline-by-default Catalog; call Set after a
// successful capability fetch, or leave empty for an offline mount.
func NewCatalog() *Catalog {
	return &Catalog{
		types:     make(map[string]bool),
		opsByType: make(map[string][]string),
		offline:   true,
	}
}

// Set installs the discovered resource types (in server-declared order) and
// marks the catalog as networked.
func (c *Catalog) Set(types []string, opsByType map[string][]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ordered = append([]string(nil), types...)
	c.types = make(map[string]bool, len(types))
	for _, t := range types {
		c.types[t] = true
	}
	c.opsByType = opsByType
	c.offline = false
}

// HasType implements router.KnownTypes.
func (c *Catalog) HasType(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.types[name]
}

// Types returns the known resource types in server-declared order, used to
// populate the root directory's readdir.
func (c *Catalog) Types() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.ordered...)
}

// OperationsForType returns the advertised $operation names for a type, or
// nil if none are known. It decides which $op directories a type
// directory's listing shows; the router still accepts any $op name
// regardless of advertisement (§4.1).
func (c *Catalog) OperationsForType(resourceType string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.opsByType[resourceType]
}

// Offline reports whether this mount has no live server backing it (§4.7,
// §6: the special "offline" base URL).
func (c *Catalog) Offline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offline
}
