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

// Package pending buffers in-progress writes to a ResourceFile between
// create/open and the flush or release that commits them to the FHIR server.
// Editors commonly write a file out of order and in several syscalls
// (truncate, then a sequence of pwrite calls at arbitrary offsets); none of
// that should reach the server until the kernel tells us the file descriptor
// is being flushed, so every byte lands in a Body first.
package pending

// Body is an in-memory byte buffer addressable by offset, mirroring the
// random-access contract a mutable file needs: WriteAt at any offset,
// growing and zero-filling as needed, and ReadAt/Bytes to inspect the
// accumulated content before it is committed.
type Body struct {
	buf []byte
}

// New returns an empty pending body.
func New() *Body {
	return &Body{}
}

// NewWithContent returns a pending body pre-populated with content, used when
// a resource already has a known body (e.g. a local edit to an existing
// ResourceFile) and seeds should survive `open` followed by a partial
// overwrite.
func NewWithContent(content []byte) *Body {
	buf := make([]byte, len(content))
	copy(buf, content)
	return &Body{buf: buf}
}

// WriteAt writes data at the given offset, growing the buffer and
// zero-filling any gap if offset is beyond the current length.
func (b *Body) WriteAt(data []byte, offset int64) (int, error) {
	end := offset + int64(len(data))
	if end > int64(len(b.buf)) {
		grown := make([]byte, end)
		copy(grown, b.buf)
		b.buf = grown
	}
	copy(b.buf[offset:end], data)
	return len(data), nil
}

// ReadAt reads into dst starting at offset, returning the number of bytes
// copied. Reading at or past the end of the buffer returns 0, nil (a short
// read, not an error) per the filesystem's read contract.
func (b *Body) ReadAt(dst []byte, offset int64) (int, error) {
	if offset >= int64(len(b.buf)) {
		return 0, nil
	}
	n := copy(dst, b.buf[offset:])
	return n, nil
}

// Truncate sets the buffer's length to n, zero-filling if it grows.
func (b *Body) Truncate(n int64) {
	if n <= int64(len(b.buf)) {
		b.buf = b.buf[:n]
		return
	}
	grown := make([]byte, n)
	copy(grown, b.buf)
	b.buf = grown
}

// Len returns the current buffered size.
func (b *Body) Len() int64 {
	return int64(len(b.buf))
}

// Bytes returns the buffered content. The caller must not mutate the result.
func (b *Body) Bytes() []byte {
	return b.buf
}
