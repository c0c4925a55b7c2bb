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

// Package router classifies a (parent logical path, child name) pair into
// the child's LogicalPath, enforcing the path grammar of §4.1. It never
// touches caches or the network -- it is pure syntax.
package router

import (
	"strconv"
	"strings"

	"github.com/HealthSamurai/fhir-fuse/inode"
)

// ErrNoMatch is returned when name does not match any grammar rule for
// parent's kind; callers translate this to ENOENT.
type ErrNoMatch struct {
	Parent inode.LogicalPath
	Name   string
}

func (e *ErrNoMatch) Error() string {
	return "router: no rule for name " + strconv.Quote(e.Name) + " under " + e.Parent.String()
}

// ErrReserved is returned when a search query name uses a character this
// filesystem cannot represent as a single path component (§4.1 resolved
// open question); callers translate this to EINVAL.
type ErrReserved struct {
	Name string
}

func (e *ErrReserved) Error() string {
	return "router: query name " + strconv.Quote(e.Name) + " contains a reserved character"
}

// KnownTypes answers whether a resource type name is in the server's
// catalog. Root routing consults it; every other rule is purely syntactic.
type KnownTypes interface {
	HasType(name string) bool
}

// KnownResource answers whether (type, id) currently has a known
// ResourceFile, used to gate ".<id>" history-directory routing (§4.1: "a
// .<id> name is only valid when a matching ResourceFile{T,id} is known").
type KnownResource interface {
	HasResource(resourceType, id string) bool
}

// Route classifies name as a child of parent. types and resources may be
// nil for call sites that only need pure syntactic routing (e.g. unit
// tests); a nil types always rejects TypeDir creation, and a nil resources
// always rejects HistoryDir creation.
func Route(parent inode.LogicalPath, name string, types KnownTypes, resources KnownResource) (inode.LogicalPath, error) {
	switch parent.Kind {
	case inode.KindRoot:
		return routeRoot(name, types)
	case inode.KindTypeDir:
		return routeTypeDir(parent, name, resources)
	case inode.KindSearchRoot:
		return routeSearchRoot(parent, name)
	case inode.KindSearchDir:
		return routeSearchDir(parent, name)
	case inode.KindSearchIncludeTypeDir:
		return routeSearchIncludeTypeDir(parent, name)
	case inode.KindHistoryDir:
		return routeHistoryDir(parent, name)
	case inode.KindOperationDir:
		return routeOperationDir(parent, name)
	default:
		return inode.LogicalPath{}, &ErrNoMatch{Parent: parent, Name: name}
	}
}

func routeRoot(name string, types KnownTypes) (inode.LogicalPath, error) {
	if types == nil || !types.HasType(name) {
		return inode.LogicalPath{}, &ErrNoMatch{Parent: inode.Root(), Name: name}
	}
	return inode.TypeDir(name), nil
}

func routeTypeDir(parent inode.LogicalPath, name string, resources KnownResource) (inode.LogicalPath, error) {
	switch {
	case name == "_search":
		return inode.SearchRoot(parent.Type), nil

	case strings.HasPrefix(name, "$"):
		op := strings.TrimPrefix(name, "$")
		if op == "" {
			return inode.LogicalPath{}, &ErrNoMatch{Parent: parent, Name: name}
		}
		return inode.OperationDir(parent.Type, op), nil

	case strings.HasPrefix(name, "."):
		id := strings.TrimPrefix(name, ".")
		if id == "" {
			return inode.LogicalPath{}, &ErrNoMatch{Parent: parent, Name: name}
		}
		if resources == nil || !resources.HasResource(parent.Type, id) {
			return inode.LogicalPath{}, &ErrNoMatch{Parent: parent, Name: name}
		}
		return inode.HistoryDir(parent.Type, id), nil

	case strings.HasSuffix(name, ".json"):
		id := strings.TrimSuffix(name, ".json")
		if id == "" || strings.Contains(id, "/") {
			return inode.LogicalPath{}, &ErrNoMatch{Parent: parent, Name: name}
		}
		return inode.ResourceFile(parent.Type, id), nil

	default:
		return inode.LogicalPath{}, &ErrNoMatch{Parent: parent, Name: name}
	}
}

func routeSearchRoot(parent inode.LogicalPath, name string) (inode.LogicalPath, error) {
	if strings.ContainsAny(name, "/\x00") {
		return inode.LogicalPath{}, &ErrReserved{Name: name}
	}
	if name == "" {
		return inode.LogicalPath{}, &ErrNoMatch{Parent: parent, Name: name}
	}
	return inode.SearchDir(parent.Type, name), nil
}

func routeSearchDir(parent inode.LogicalPath, name string) (inode.LogicalPath, error) {
	if name == "" || strings.ContainsAny(name, "/.") {
		return inode.LogicalPath{}, &ErrNoMatch{Parent: parent, Name: name}
	}
	return inode.SearchIncludeTypeDir(parent.Type, parent.Query, name), nil
}

func routeSearchIncludeTypeDir(parent inode.LogicalPath, name string) (inode.LogicalPath, error) {
	if !strings.HasSuffix(name, ".json") {
		return inode.LogicalPath{}, &ErrNoMatch{Parent: parent, Name: name}
	}
	id := strings.TrimSuffix(name, ".json")
	if id == "" {
		return inode.LogicalPath{}, &ErrNoMatch{Parent: parent, Name: name}
	}
	return inode.SearchResultFile(parent.Type, parent.Query, parent.IncludedType, id), nil
}

func routeHistoryDir(parent inode.LogicalPath, name string) (inode.LogicalPath, error) {
	prefix := parent.ID + ".v"
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
		return inode.LogicalPath{}, &ErrNoMatch{Parent: parent, Name: name}
	}
	versionStr := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".json")
	version, err := strconv.Atoi(versionStr)
	if err != nil || version <= 0 {
		return inode.LogicalPath{}, &ErrNoMatch{Parent: parent, Name: name}
	}
	return inode.HistoryFile(parent.Type, parent.ID, version), nil
}

func routeOperationDir(parent inode.LogicalPath, name string) (inode.LogicalPath, error) {
	var format string
	var args string
	switch {
	case strings.HasSuffix(name, ".json"):
		format = "json"
		args = strings.TrimSuffix(name, ".json")
	case strings.HasSuffix(name, ".csv"):
		format = "csv"
		args = strings.TrimSuffix(name, ".csv")
	default:
		return inode.LogicalPath{}, &ErrNoMatch{Parent: parent, Name: name}
	}
	if args == "" {
		return inode.LogicalPath{}, &ErrNoMatch{Parent: parent, Name: name}
	}
	return inode.OperationResultFile(parent.Type, parent.Op, args, format), nil
}
