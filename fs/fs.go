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

// Package fs is the FUSE adapter (C9): it turns fuseops callbacks into
// router lookups, cache reads, and HTTP calls against a single FHIR base
// URL, translating every result back into the attrs and bytes the kernel
// asked for.
package fs

import (
	"os"
	"time"

	"github.com/HealthSamurai/fhir-fuse/cache"
	"github.com/HealthSamurai/fhir-fuse/fhir"
	"github.com/HealthSamurai/fhir-fuse/inode"
	"github.com/HealthSamurai/fhir-fuse/internal/pending"
	"github.com/HealthSamurai/fhir-fuse/router"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
)

// Config collects everything a mount needs: the wired caches, the HTTP
// client, and the static POSIX attributes applied to every inode (§6
// "POSIX attrs").
type Config struct {
	Client     *fhir.Client
	Clock      timeutil.Clock
	Resources  *cache.ResourceCache
	History    *cache.HistoryCache
	Searches   *cache.SearchCache
	Operations *cache.OperationRegistry
	Catalog    *cache.Catalog

	Uid uint32
	Gid uint32
}

// fileSystem implements fuseutil.FileSystem: one struct holding every piece
// of shared state, an inode table guarded by its own lock, and per-inode
// locks taken only after the table lock is released (§5 "Lock ordering").
type fileSystem struct {
	fuseutil.NotImplementedFileSystem

	clock      timeutil.Clock
	client     *fhir.Client
	resources  *cache.ResourceCache
	history    *cache.HistoryCache
	searches   *cache.SearchCache
	operations *cache.OperationRegistry
	catalog    *cache.Catalog

	uid uint32
	gid uint32

	table *inode.Table

	// mu guards pending and dirHandles/nextHandle -- bookkeeping maps only,
	// never held across an HTTP call (§5).
	mu         syncutil.InvariantMutex
	pending    map[fuseops.InodeID]*pending.Body
	dirHandles map[fuseops.HandleID]*dirHandle
	nextHandle fuseops.HandleID
}

// New builds a fuse.Server ready to pass to fuse.Mount, exactly as the
// teacher wires fuseutil.NewFileSystemServer(fs) in fs/fs.go.
func New(cfg Config) fuse.Server {
	return fuseutil.NewFileSystemServer(newFileSystem(cfg))
}

// newFileSystem builds the unwrapped adapter. Split out from New so tests
// in this package can call fuseops methods directly without going through
// the opaque fuse.Server interface.
func newFileSystem(cfg Config) *fileSystem {
	fs := &fileSystem{
		clock:      cfg.Clock,
		client:     cfg.Client,
		resources:  cfg.Resources,
		history:    cfg.History,
		searches:   cfg.Searches,
		operations: cfg.Operations,
		catalog:    cfg.Catalog,
		uid:        cfg.Uid,
		gid:        cfg.Gid,
		table:      inode.NewTable(),
		pending:    make(map[fuseops.InodeID]*pending.Body),
		dirHandles: make(map[fuseops.HandleID]*dirHandle),
	}
	fs.mu = syncutil.NewInvariantMutex(fs.checkInvariants)
	return fs
}

func (fs *fileSystem) checkInvariants() {
	for h := range fs.dirHandles {
		if h >= fs.nextHandle {
			panic("fs: live dirHandle at or past nextHandle")
		}
	}
}

// knownResource adapts the resource cache to router.KnownResource: a
// HistoryDir is only routable once its owning ResourceFile has been
// observed (§4.1 "A .<id> name is only valid when a matching ResourceFile
// is known").
type knownResource struct{ c *cache.ResourceCache }

func (k knownResource) HasResource(resourceType, id string) bool {
	return k.c.Has(resourceType, id)
}

func (fs *fileSystem) route(parent inode.LogicalPath, name string) (inode.LogicalPath, error) {
	return router.Route(parent, name, fs.catalog, knownResource{fs.resources})
}

// attributesFor fills in the POSIX attributes for lp (§6): directories
// 0755, files 0644, history and search-result files 0444, size from the
// cached or pending body.
func (fs *fileSystem) attributesFor(lp inode.LogicalPath, size uint64, mtime time.Time) fuseops.InodeAttributes {
	attrs := fuseops.InodeAttributes{
		Uid: fs.uid,
		Gid: fs.gid,
	}

	switch lp.Kind {
	case inode.KindRoot, inode.KindTypeDir, inode.KindHistoryDir,
		inode.KindSearchRoot, inode.KindSearchDir, inode.KindSearchIncludeTypeDir,
		inode.KindOperationDir:
		attrs.Mode = os.ModeDir | 0755
		attrs.Nlink = 2

	case inode.KindHistoryFile, inode.KindSearchResultFile:
		attrs.Mode = 0444
		attrs.Nlink = 1
		attrs.Size = size
		attrs.Mtime = mtime

	default: // ResourceFile, OperationResultFile
		attrs.Mode = 0644
		attrs.Nlink = 1
		attrs.Size = size
		attrs.Mtime = mtime
	}

	return attrs
}

// resolve returns the LogicalPath bound to id, or ENOENT if the kernel is
// asking about an inode this process has forgotten or never issued.
func (fs *fileSystem) resolve(id fuseops.InodeID) (inode.LogicalPath, error) {
	lp, ok := fs.table.Resolve(id)
	if !ok {
		return inode.LogicalPath{}, fuse.ENOENT
	}
	return lp, nil
}
