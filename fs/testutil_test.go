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
	"fmt"
	"time"

	"github.com/HealthSamurai/fhir-fuse/cache"
	"github.com/HealthSamurai/fhir-fuse/fhir"
	"github.com/jacobsa/timeutil"
)

// newFakeResource builds a minimal, well-formed resource body for (type,id),
// suitable for seeding the resource cache directly in tests that must never
// let a fuseops handler reach the network (see package comment on
// op.Context() in lookup_test.go).
func newFakeResource(resourceType, id string) fhir.Resource {
	body := fmt.Sprintf(`{"resourceType":%q,"id":%q}`, resourceType, id)
	return fhir.Resource{Type: resourceType, ID: id, Body: []byte(body)}
}

// newTestFS builds a *fileSystem against a throwaway FHIR client, with every
// resource type used across this package's tests pre-admitted to the
// catalog. Individual tests that need a live server swap in client
// themselves.
func newTestFS(client *fhir.Client) *fileSystem {
	if client == nil {
		client = fhir.NewClient("http://127.0.0.1:0")
	}

	catalog := cache.NewCatalog()
	catalog.Set([]string{"Patient", "Observation"}, map[string][]string{
		"Patient": {"everything"},
	})

	return newFileSystem(Config{
		Client:     client,
		Clock:      timeutil.RealClock(),
		Resources:  cache.NewResourceCache(timeutil.RealClock(), time.Minute, 0),
		History:    cache.NewHistoryCache(),
		Searches:   cache.NewSearchCache(),
		Operations: cache.NewOperationRegistry(),
		Catalog:    catalog,
		Uid:        501,
		Gid:        20,
	})
}
