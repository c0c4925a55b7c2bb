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

package fhir

import (
	"encoding/json"
	"fmt"
)

// Bundle is the subset of a FHIR Bundle resource the client needs: enough to
// walk a searchset or history response, follow pagination, and recover the
// resourceType of each entry for grouping (§4.5, §6 search include grouping).
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Search   *BundleSearch   `json:"search,omitempty"`
	Request  *BundleRequest  `json:"request,omitempty"`
	Response *BundleResponse `json:"response,omitempty"`
}

// BundleSearch carries the match mode FHIR uses to tell a primary search hit
// ("match") from a resource pulled in only via _include/_revinclude
// ("include"). The filesystem groups SearchIncludeTypeDir children by
// resourceType regardless of mode (§6 S5), but the mode is retained for
// callers that care.
type BundleSearch struct {
	Mode string `json:"mode,omitempty"`
}

type BundleRequest struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

type BundleResponse struct {
	Status       string `json:"status"`
	LastModified string `json:"lastModified,omitempty"`
}

// NextLink returns the "next" relation URL, or "" if this is the last page.
func (b *Bundle) NextLink() string {
	for _, l := range b.Link {
		if l.Relation == "next" {
			return l.URL
		}
	}
	return ""
}

// Resources decodes each entry's resource into a (resourceType, id, raw
// json) triple, skipping entries that don't carry a resource (e.g. an
// OperationOutcome-only error entry).
func (b *Bundle) Resources() ([]BundleResource, error) {
	out := make([]BundleResource, 0, len(b.Entry))
	for _, e := range b.Entry {
		if len(e.Resource) == 0 {
			continue
		}

		var head struct {
			ResourceType string `json:"resourceType"`
			ID           string `json:"id"`
		}
		if err := json.Unmarshal(e.Resource, &head); err != nil {
			return nil, fmt.Errorf("fhir: decoding bundle entry: %w", err)
		}
		if head.ResourceType == "" || head.ID == "" {
			return nil, fmt.Errorf("fhir: bundle entry missing resourceType/id")
		}

		out = append(out, BundleResource{
			Type: head.ResourceType,
			ID:   head.ID,
			Body: []byte(e.Resource),
		})
	}
	return out, nil
}

// BundleResource is one resource pulled out of a Bundle, classified by type
// so the search and history caches can group it.
type BundleResource struct {
	Type string
	ID   string
	Body []byte
}
