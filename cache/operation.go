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
)

type operationKey struct {
	Type   string
	Op     string
	Args   string
	Format string
}

// OperationRegistry is C6: the table of materialized operation result
// files. An entry is born when the result file is first touched/created/
// read and dies on unlink (§4.6, §4.9 OperationResultFile lifecycle).
type OperationRegistry struct {
	mu      sync.Mutex
	entries map[operationKey][]byte
}

func NewOperationRegistry() *OperationRegistry {
	return &OperationRegistry{entries: make(map[operationKey][]byte)}
}

// Get returns the previously materialized bytes, if any.
func (r *OperationRegistry) Get(resourceType, op, args, format string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.entries[operationKey{resourceType, op, args, format}]
	return b, ok
}

// Materialize invokes fetch and installs the result unconditionally,
// including under concurrent callers for the same key -- no single-flight
// coalescing here, since an operation result file is idempotently
// re-fetchable and invoking it twice concurrently is harmless beyond the
// redundant server call.
func (r *OperationRegistry) Materialize(ctx context.Context, resourceType, op, args, format string, fetch func(context.Context) ([]byte, error)) ([]byte, error) {
	b, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.entries[operationKey{resourceType, op, args, format}] = b
	r.mu.Unlock()

	return b, nil
}

// Drop removes the entry, per unlink (§4.6 "unlink drops the entry").
func (r *OperationRegistry) Drop(resourceType, op, args, format string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, operationKey{resourceType, op, args, format})
}

// List returns the args.format pairs currently materialized for (type,op),
// used by OperationDir's readdir (§4.2: "yield the set of previously-
// materialized result files (from C6); does not initiate server calls").
func (r *OperationRegistry) List(resourceType, op string) []struct{ Args, Format string } {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []struct{ Args, Format string }
	for k := range r.entries {
		if k.Type == resourceType && k.Op == op {
			out = append(out, struct{ Args, Format string }{k.Args, k.Format})
		}
	}
	return out
}
