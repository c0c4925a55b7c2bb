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

package router

import (
	"testing"

	"github.com/HealthSamurai/fhir-fuse/inode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTypes map[string]bool

func (f fakeTypes) HasType(name string) bool { return f[name] }

type fakeResources map[string]bool

func (f fakeResources) HasResource(t, id string) bool { return f[t+"/"+id] }

func TestRouteRootKnownType(t *testing.T) {
	lp, err := Route(inode.Root(), "Patient", fakeTypes{"Patient": true}, nil)
	require.NoError(t, err)
	assert.Equal(t, inode.TypeDir("Patient"), lp)
}

func TestRouteRootUnknownTypeRejects(t *testing.T) {
	_, err := Route(inode.Root(), "Bogus", fakeTypes{"Patient": true}, nil)
	require.Error(t, err)
	assert.IsType(t, &ErrNoMatch{}, err)
}

func TestRouteTypeDirResourceFile(t *testing.T) {
	lp, err := Route(inode.TypeDir("Patient"), "p1.json", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, inode.ResourceFile("Patient", "p1"), lp)
}

func TestRouteTypeDirHistoryDirRequiresKnownResource(t *testing.T) {
	parent := inode.TypeDir("Patient")

	_, err := Route(parent, ".p1", nil, fakeResources{})
	require.Error(t, err)

	lp, err := Route(parent, ".p1", nil, fakeResources{"Patient/p1": true})
	require.NoError(t, err)
	assert.Equal(t, inode.HistoryDir("Patient", "p1"), lp)
}

func TestRouteTypeDirSearchRoot(t *testing.T) {
	lp, err := Route(inode.TypeDir("Patient"), "_search", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, inode.SearchRoot("Patient"), lp)
}

func TestRouteTypeDirOperationDir(t *testing.T) {
	lp, err := Route(inode.TypeDir("ViewDefinition"), "$run", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, inode.OperationDir("ViewDefinition", "run"), lp)
}

func TestRouteSearchRootRejectsSlash(t *testing.T) {
	_, err := Route(inode.SearchRoot("Patient"), "name=Smith&ref=a/b", nil, nil)
	require.Error(t, err)
	assert.IsType(t, &ErrReserved{}, err)
}

func TestRouteSearchRootAcceptsQueryString(t *testing.T) {
	lp, err := Route(inode.SearchRoot("Patient"), "name=Smith&gender=male", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, inode.SearchDir("Patient", "name=Smith&gender=male"), lp)
}

func TestRouteSearchDirIncludedType(t *testing.T) {
	parent := inode.SearchDir("Patient", "name=Smith")
	lp, err := Route(parent, "Practitioner", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, inode.SearchIncludeTypeDir("Patient", "name=Smith", "Practitioner"), lp)
}

func TestRouteSearchIncludeTypeDirResultFile(t *testing.T) {
	parent := inode.SearchIncludeTypeDir("Patient", "name=Smith", "Practitioner")
	lp, err := Route(parent, "pr1.json", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, inode.SearchResultFile("Patient", "name=Smith", "Practitioner", "pr1"), lp)
}

func TestRouteHistoryDirVersionFile(t *testing.T) {
	parent := inode.HistoryDir("Patient", "p1")
	lp, err := Route(parent, "p1.v2.json", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, inode.HistoryFile("Patient", "p1", 2), lp)
}

func TestRouteHistoryDirRejectsMismatchedID(t *testing.T) {
	parent := inode.HistoryDir("Patient", "p1")
	_, err := Route(parent, "p2.v1.json", nil, nil)
	require.Error(t, err)
}

func TestRouteOperationDirResultFiles(t *testing.T) {
	parent := inode.OperationDir("ViewDefinition", "run")

	lp, err := Route(parent, "viewId.csv", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, inode.OperationResultFile("ViewDefinition", "run", "viewId", "csv"), lp)

	lp, err = Route(parent, "a=1&b=2.json", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, inode.OperationResultFile("ViewDefinition", "run", "a=1&b=2", "json"), lp)
}

func TestRouteUnroutableParentKindRejects(t *testing.T) {
	_, err := Route(inode.ResourceFile("Patient", "p1"), "anything", nil, nil)
	require.Error(t, err)
}
