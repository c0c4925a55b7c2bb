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

// Package fhir is the blocking JSON REST client (component C1 of the
// projection engine). It knows nothing about inodes, paths, or caches -- it
// is a thin, typed wrapper over the FHIR R4 REST API, making exactly the
// calls the rest of the filesystem asks for and translating non-2xx
// responses into a *StatusError the caller can classify (§4.8, §7).
package fhir

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/HealthSamurai/fhir-fuse/internal/logger"
	"github.com/HealthSamurai/fhir-fuse/internal/metrics"
	"golang.org/x/time/rate"
)

// DefaultTimeout is the per-request timeout applied to every call made by a
// Client unless the caller supplies its own http.Client (§5 "Cancellation
// and timeouts").
const DefaultTimeout = 30 * time.Second

// OutputFormat selects the Accept header used when materializing an
// operation result (§4.6).
type OutputFormat string

const (
	FormatJSON OutputFormat = "json"
	FormatCSV  OutputFormat = "csv"
)

func (f OutputFormat) acceptHeader() string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/fhir+json"
}

// Client talks to a single FHIR base URL. It is safe for concurrent use --
// every method is a single blocking round trip (or, for Search/History, a
// bounded sequence of them following Bundle.link.next) with no shared
// mutable state beyond the underlying http.Client's connection pool.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// MaxPages bounds how many Bundle pages Search and History will follow before
	// stopping, addressing the open question of whether a readdir/mkdir
	// should paginate an entire server collection unbounded (§9). Zero means
	// unbounded.
	MaxPages int

	// limiter shapes outbound request concurrency so a burst of
	// kernel-driven traffic (e.g. a large readdir) can't overrun the server
	// (§4.8 "Each call is wrapped by a golang.org/x/time/rate.Limiter").
	limiter *rate.Limiter
}

// NewClient builds a Client against baseURL with the package's default
// timeout and no rate ceiling (§6 "--rate-limit, default unlimited").
// baseURL must not have a trailing slash.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Inf, 0),
	}
}

// SetRateLimit replaces the client's limiter, used by the mount command to
// honor a configured --rate-limit flag.
func (c *Client) SetRateLimit(requestsPerSecond float64, burst int) {
	c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// Resource is a single fetched or written resource: its raw body plus the
// version metadata the server attached.
type Resource struct {
	Type        string
	ID          string
	Body        []byte
	VersionID   string
	LastUpdated string
}

type metaHeader struct {
	ResourceType string `json:"resourceType"`
	ID           string `json:"id"`
	Meta         struct {
		VersionID   string `json:"versionId,omitempty"`
		LastUpdated string `json:"lastUpdated,omitempty"`
	} `json:"meta,omitempty"`
}

func (c *Client) url(parts ...string) string {
	return c.BaseURL + "/" + strings.Join(parts, "/")
}

func (c *Client) do(ctx context.Context, method, rawURL string, body []byte, accept string) ([]byte, int, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, &StatusError{Kind: KindUnavailable, Op: method + " " + rawURL}
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("fhir: building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/fhir+json")
	}
	if accept == "" {
		accept = "application/fhir+json"
	}
	req.Header.Set("Accept", accept)

	logger.Tracef("fhir: %s %s", method, rawURL)

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	metrics.HTTPCallDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, 0, &StatusError{Kind: KindUnavailable, Op: method + " " + rawURL}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &StatusError{Kind: KindUnavailable, Op: method + " " + rawURL}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return respBody, resp.StatusCode, &StatusError{
			Kind:       ClassifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Body:       respBody,
			Op:         method + " " + rawURL,
		}
	}

	return respBody, resp.StatusCode, nil
}

func parseResource(resourceType string, body []byte) (Resource, error) {
	var head metaHeader
	if err := json.Unmarshal(body, &head); err != nil {
		return Resource{}, &StatusError{Kind: KindProtocol, Op: "decode " + resourceType, Body: body}
	}
	return Resource{
		Type:        resourceType,
		ID:          head.ID,
		Body:        body,
		VersionID:   head.Meta.VersionID,
		LastUpdated: head.Meta.LastUpdated,
	}, nil
}

// Capability fetches the server's capability statement (§4.7).
func (c *Client) Capability(ctx context.Context) (*CapabilityStatement, error) {
	body, _, err := c.do(ctx, http.MethodGet, c.url("metadata"), nil, "")
	if err != nil {
		return nil, err
	}

	var cap CapabilityStatement
	if err := json.Unmarshal(body, &cap); err != nil {
		return nil, &StatusError{Kind: KindProtocol, Op: "decode capability statement", Body: body}
	}
	return &cap, nil
}

// Read fetches the current version of a resource.
func (c *Client) Read(ctx context.Context, resourceType, id string) (Resource, error) {
	body, _, err := c.do(ctx, http.MethodGet, c.url(resourceType, id), nil, "")
	if err != nil {
		return Resource{}, err
	}
	return parseResource(resourceType, body)
}

// VRead fetches a specific historical version of a resource.
func (c *Client) VRead(ctx context.Context, resourceType, id, versionID string) (Resource, error) {
	body, _, err := c.do(ctx, http.MethodGet, c.url(resourceType, id, "_history", versionID), nil, "")
	if err != nil {
		return Resource{}, err
	}
	return parseResource(resourceType, body)
}

// HistoryEntry is one version in a resource's change history, in the order
// the server reported it (newest first, per FHIR convention).
type HistoryEntry struct {
	VersionID string
	Body      []byte
}

// History fetches every version of a resource, following pagination.
func (c *Client) History(ctx context.Context, resourceType, id string) ([]HistoryEntry, error) {
	var entries []HistoryEntry

	nextURL := c.url(resourceType, id, "_history")
	for page := 0; nextURL != ""; page++ {
		if c.MaxPages > 0 && page >= c.MaxPages {
			logger.Warnf("fhir: history(%s/%s) stopped after %d pages (MaxPages)", resourceType, id, c.MaxPages)
			break
		}

		body, _, err := c.do(ctx, http.MethodGet, nextURL, nil, "")
		if err != nil {
			return nil, err
		}

		var b Bundle
		if err := json.Unmarshal(body, &b); err != nil {
			return nil, &StatusError{Kind: KindProtocol, Op: "decode history bundle", Body: body}
		}

		resources, err := b.Resources()
		if err != nil {
			return nil, err
		}
		for _, r := range resources {
			var head metaHeader
			if err := json.Unmarshal(r.Body, &head); err != nil {
				continue
			}
			entries = append(entries, HistoryEntry{VersionID: head.Meta.VersionID, Body: r.Body})
		}

		nextURL = b.NextLink()
	}

	return entries, nil
}

// SearchResult groups resources returned by a search, keyed by resourceType
// so _include/_revinclude results land in the right SearchIncludeTypeDir
// (§4.5, §6 S5).
type SearchResult struct {
	ByType map[string][]Resource
}

// Search executes a FHIR search, following Bundle.link.next until
// exhausted (or MaxPages is hit), and groups the results by resourceType.
func (c *Client) Search(ctx context.Context, resourceType, query string) (*SearchResult, error) {
	result := &SearchResult{ByType: make(map[string][]Resource)}

	nextURL := c.url(resourceType) + "?" + query
	for page := 0; nextURL != ""; page++ {
		if c.MaxPages > 0 && page >= c.MaxPages {
			logger.Warnf("fhir: search(%s?%s) stopped after %d pages (MaxPages)", resourceType, query, c.MaxPages)
			break
		}

		body, _, err := c.do(ctx, http.MethodGet, nextURL, nil, "")
		if err != nil {
			return nil, err
		}

		var b Bundle
		if err := json.Unmarshal(body, &b); err != nil {
			return nil, &StatusError{Kind: KindProtocol, Op: "decode search bundle", Body: body}
		}

		resources, err := b.Resources()
		if err != nil {
			return nil, err
		}
		for _, r := range resources {
			res, err := parseResource(r.Type, r.Body)
			if err != nil {
				continue
			}
			result.ByType[r.Type] = append(result.ByType[r.Type], res)
		}

		nextURL = b.NextLink()
	}

	return result, nil
}

// Create posts a new resource. If the body carries an "id" field the server
// is asked to honor it (PUT semantics are handled by the caller; Create
// always POSTs and lets the server assign or confirm the id, per §4.2 step
// 3's "POST /<T> (server-assigned id)").
func (c *Client) Create(ctx context.Context, resourceType string, body []byte) (Resource, error) {
	respBody, _, err := c.do(ctx, http.MethodPost, c.url(resourceType), body, "")
	if err != nil {
		return Resource{}, err
	}
	return parseResource(resourceType, respBody)
}

// Update replaces a resource by id.
func (c *Client) Update(ctx context.Context, resourceType, id string, body []byte) (Resource, error) {
	respBody, _, err := c.do(ctx, http.MethodPut, c.url(resourceType, id), body, "")
	if err != nil {
		return Resource{}, err
	}
	return parseResource(resourceType, respBody)
}

// Delete removes a resource by id.
func (c *Client) Delete(ctx context.Context, resourceType, id string) error {
	_, _, err := c.do(ctx, http.MethodDelete, c.url(resourceType, id), nil, "")
	return err
}

// Operation invokes a FHIR operation at type level: it always POSTs to
// /<type>/$<op> (e.g. /ViewDefinition/$run). Instance-level invocation
// (/<type>/<id>/$<op>) is not supported. args becomes the operation's
// input Parameters; format selects the Accept header, which
// in turn selects whether the server returns FHIR JSON or a flat format
// like CSV (§4.6, §6 S6).
func (c *Client) Operation(ctx context.Context, resourceType, op string, args url.Values, format OutputFormat) ([]byte, error) {
	params := argsToParameters(args)
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("fhir: encoding operation parameters: %w", err)
	}

	body, _, err := c.do(ctx, http.MethodPost, c.url(resourceType, "$"+op), paramsJSON, format.acceptHeader())
	if err != nil {
		return nil, err
	}
	return body, nil
}

// parametersResource is the minimal FHIR Parameters shape needed to invoke
// an operation with primitive string arguments.
type parametersResource struct {
	ResourceType string          `json:"resourceType"`
	Parameter    []parameterItem `json:"parameter,omitempty"`
}

type parameterItem struct {
	Name        string `json:"name"`
	ValueString string `json:"valueString"`
}

func argsToParameters(args url.Values) parametersResource {
	p := parametersResource{ResourceType: "Parameters"}
	for name, values := range args {
		for _, v := range values {
			p.Parameter = append(p.Parameter, parameterItem{Name: name, ValueString: v})
		}
	}
	return p
}
