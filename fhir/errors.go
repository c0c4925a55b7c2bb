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
	"fmt"
	"net/http"

	"github.com/jacobsa/fuse"
)

// Kind classifies a server response or transport failure into the taxonomy
// of §7, independent of any particular FUSE binding.
type Kind int

const (
	// KindNotFound covers server 404s, unknown resource types, and unknown
	// ids.
	KindNotFound Kind = iota
	// KindInvalid covers bad JSON, resourceType/id mismatches, and malformed
	// queries -- anything the client should have caught before talking to the
	// server, plus the server's own 400/422.
	KindInvalid
	// KindForbidden covers server 401/403 and writes to read-only paths
	// (history, search results).
	KindForbidden
	// KindConflict covers server 409s, e.g. create when the id already
	// exists.
	KindConflict
	// KindUnavailable covers network failures, 5xx, and timeouts. Never
	// retried automatically.
	KindUnavailable
	// KindProtocol covers a response that parses but doesn't have the shape
	// the caller expected.
	KindProtocol
)

// StatusError is the error type returned by every Client method that talks
// to the server. It carries enough of the HTTP response to both log a
// useful excerpt and translate to the right POSIX errno (§7).
type StatusError struct {
	Kind       Kind
	StatusCode int
	Body       []byte
	Op         string
}

func (e *StatusError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fhir: %s: server returned %d: %s", e.Op, e.StatusCode, Excerpt(e.Body))
	}
	return fmt.Sprintf("fhir: %s: %s", e.Op, kindName(e.Kind))
}

func kindName(k Kind) string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindInvalid:
		return "invalid"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "unavailable"
	default:
		return "protocol error"
	}
}

// ClassifyStatus maps an HTTP status code from a FHIR server into a Kind,
// per §7's taxonomy.
func ClassifyStatus(statusCode int) Kind {
	switch {
	case statusCode == http.StatusNotFound:
		return KindNotFound
	case statusCode == http.StatusBadRequest || statusCode == http.StatusUnprocessableEntity:
		return KindInvalid
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return KindForbidden
	case statusCode == http.StatusConflict:
		return KindConflict
	case statusCode >= 500:
		return KindUnavailable
	default:
		return KindProtocol
	}
}

// Errno translates an error from this package (or any other) into the POSIX
// errno the FUSE adapter must return (§7, §4.10). An error that is already
// one of the fuse package's errno values (e.g. a cache or router helper that
// classified its own ENOENT/EINVAL) passes through unchanged. Anything else
// that isn't a *StatusError is treated as KindUnavailable/EIO, since it
// represents a transport-level failure (timeout, connection refused,
// context cancellation) rather than a server-classified one.
func Errno(err error) error {
	if err == nil {
		return nil
	}

	switch err {
	case fuse.ENOENT, fuse.EINVAL, fuse.EIO, fuse.EACCES, fuse.EEXIST, fuse.ENOSYS, fuse.ENOTEMPTY:
		return err
	}

	se, ok := err.(*StatusError)
	if !ok {
		return fuse.EIO
	}

	switch se.Kind {
	case KindNotFound:
		return fuse.ENOENT
	case KindInvalid:
		return fuse.EINVAL
	case KindForbidden:
		return fuse.EACCES
	case KindConflict:
		return fuse.EEXIST
	case KindUnavailable, KindProtocol:
		return fuse.EIO
	default:
		return fuse.EIO
	}
}
