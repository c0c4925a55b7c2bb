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

// Package inode holds the logical-path sum type and the inode table that
// maps it bidirectionally to the integer inode IDs the kernel deals in.
package inode

import "fmt"

// Kind discriminates the variants of LogicalPath. Every filesystem
// operation in the adapter dispatches on this tag rather than on a type
// hierarchy.
type Kind int

const (
	KindRoot Kind = iota
	KindTypeDir
	KindResourceFile
	KindHistoryDir
	KindHistoryFile
	KindSearchRoot
	KindSearchDir
	KindSearchIncludeTypeDir
	KindSearchResultFile
	KindOperationDir
	KindOperationResultFile
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "Root"
	case KindTypeDir:
		return "TypeDir"
	case KindResourceFile:
		return "ResourceFile"
	case KindHistoryDir:
		return "HistoryDir"
	case KindHistoryFile:
		return "HistoryFile"
	case KindSearchRoot:
		return "SearchRoot"
	case KindSearchDir:
		return "SearchDir"
	case KindSearchIncludeTypeDir:
		return "SearchIncludeTypeDir"
	case KindSearchResultFile:
		return "SearchResultFile"
	case KindOperationDir:
		return "OperationDir"
	case KindOperationResultFile:
		return "OperationResultFile"
	default:
		return "Unknown"
	}
}

// IsDir reports whether this kind of logical path is always a directory.
func (k Kind) IsDir() bool {
	switch k {
	case KindRoot, KindTypeDir, KindHistoryDir, KindSearchRoot, KindSearchDir,
		KindSearchIncludeTypeDir, KindOperationDir:
		return true
	default:
		return false
	}
}

// LogicalPath is the tagged variant classifying every visible path in the
// projected filesystem (§3). Only the fields relevant to Kind are
// meaningful; callers must switch on Kind before reading them.
type LogicalPath struct {
	Kind Kind

	Type         string
	ID           string
	Version      int
	Query        string
	IncludedType string
	Op           string
	Args         string
	Format       string
}

func Root() LogicalPath { return LogicalPath{Kind: KindRoot} }

func TypeDir(t string) LogicalPath { return LogicalPath{Kind: KindTypeDir, Type: t} }

func ResourceFile(t, id string) LogicalPath {
	return LogicalPath{Kind: KindResourceFile, Type: t, ID: id}
}

func HistoryDir(t, id string) LogicalPath {
	return LogicalPath{Kind: KindHistoryDir, Type: t, ID: id}
}

func HistoryFile(t, id string, version int) LogicalPath {
	return LogicalPath{Kind: KindHistoryFile, Type: t, ID: id, Version: version}
}

func SearchRoot(t string) LogicalPath { return LogicalPath{Kind: KindSearchRoot, Type: t} }

func SearchDir(t, query string) LogicalPath {
	return LogicalPath{Kind: KindSearchDir, Type: t, Query: query}
}

func SearchIncludeTypeDir(t, query, includedType string) LogicalPath {
	return LogicalPath{Kind: KindSearchIncludeTypeDir, Type: t, Query: query, IncludedType: includedType}
}

func SearchResultFile(t, query, includedType, id string) LogicalPath {
	return LogicalPath{Kind: KindSearchResultFile, Type: t, Query: query, IncludedType: includedType, ID: id}
}

func OperationDir(t, op string) LogicalPath {
	return LogicalPath{Kind: KindOperationDir, Type: t, Op: op}
}

func OperationResultFile(t, op, args, format string) LogicalPath {
	return LogicalPath{Kind: KindOperationResultFile, Type: t, Op: op, Args: args, Format: format}
}

// Key returns a string uniquely identifying this LogicalPath, suitable for
// use as a map key in the inode table's reverse index. Two LogicalPath
// values with the same Key are considered the same path (INVARIANT, §3:
// "every LP that has ever been observed has exactly one inode").
func (p LogicalPath) Key() string {
	switch p.Kind {
	case KindRoot:
		return "root"
	case KindTypeDir:
		return fmt.Sprintf("type:%s", p.Type)
	case KindResourceFile:
		return fmt.Sprintf("res:%s/%s", p.Type, p.ID)
	case KindHistoryDir:
		return fmt.Sprintf("hdir:%s/%s", p.Type, p.ID)
	case KindHistoryFile:
		return fmt.Sprintf("hfile:%s/%s/%d", p.Type, p.ID, p.Version)
	case KindSearchRoot:
		return fmt.Sprintf("sroot:%s", p.Type)
	case KindSearchDir:
		return fmt.Sprintf("sdir:%s?%s", p.Type, p.Query)
	case KindSearchIncludeTypeDir:
		return fmt.Sprintf("sitdir:%s?%s#%s", p.Type, p.Query, p.IncludedType)
	case KindSearchResultFile:
		return fmt.Sprintf("sfile:%s?%s#%s/%s", p.Type, p.Query, p.IncludedType, p.ID)
	case KindOperationDir:
		return fmt.Sprintf("opdir:%s/$%s", p.Type, p.Op)
	case KindOperationResultFile:
		return fmt.Sprintf("opfile:%s/$%s/%s.%s", p.Type, p.Op, p.Args, p.Format)
	default:
		return "invalid"
	}
}

func (p LogicalPath) String() string {
	return fmt.Sprintf("%s(%s)", p.Kind, p.Key())
}
