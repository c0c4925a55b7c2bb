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

import "encoding/json"

// OperationOutcome is the FHIR resource servers return to describe an error.
// Used only to extract a human-readable excerpt for logging (§7 Protocol
// errors are "logged with body excerpt").
type OperationOutcome struct {
	ResourceType string                    `json:"resourceType"`
	Issue        []OperationOutcomeIssueEl `json:"issue,omitempty"`
}

type OperationOutcomeIssueEl struct {
	Severity    string `json:"severity,omitempty"`
	Code        string `json:"code,omitempty"`
	Diagnostics string `json:"diagnostics,omitempty"`
}

// Excerpt renders a short string summarizing the outcome's first issue, or
// a truncated raw body if the body doesn't parse as an OperationOutcome.
func Excerpt(body []byte) string {
	const maxLen = 200

	var oo OperationOutcome
	if err := json.Unmarshal(body, &oo); err == nil && oo.ResourceType == "OperationOutcome" && len(oo.Issue) > 0 {
		issue := oo.Issue[0]
		s := issue.Code
		if issue.Diagnostics != "" {
			s += ": " + issue.Diagnostics
		}
		return truncate(s, maxLen)
	}

	return truncate(string(body), maxLen)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
