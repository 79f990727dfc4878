// Copyright 2023 The fabric Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package datastore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertProfileIDToDirectory(t *testing.T) {
	assert.Equal(t, "default.profile", convertProfileIDToDirectory("default"))
	assert.Equal(t, "foo/bar.profile", convertProfileIDToDirectory("foo-bar"))
	assert.Equal(t, "a/b/c.profile", convertProfileIDToDirectory("a-b-c"))
}

func TestBranchOfIgnoresProfile(t *testing.T) {
	assert.Equal(t, "1.0", branchOf("1.0", "default"))
	assert.Equal(t, "master", branchOf("master", "fabric-ensemble"))
}

func TestProfileNames(t *testing.T) {
	dir := t.TempDir()
	for _, p := range []string{
		"default.profile",
		"foo/bar.profile",
		"foo/baz.profile",
		"a/b/c.profile",
	} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, filepath.FromSlash(p)), 0o755))
	}
	// Plain files are not profiles.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stray.txt"), []byte("x"), 0o644))

	names := profileNames(dir)
	assert.Equal(t, []string{"a-b-c", "default", "foo-bar", "foo-baz"}, names)
}

func TestProfileNamesMissingDirectory(t *testing.T) {
	assert.Empty(t, profileNames(filepath.Join(t.TempDir(), "absent")))
}

func TestIsLegacyProfileDirectory(t *testing.T) {
	dir := t.TempDir()
	legacy := filepath.Join(dir, "mq-broker")
	require.NoError(t, os.MkdirAll(legacy, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(legacy, "org.example.properties"), []byte("x=1"), 0o644))
	assert.True(t, isLegacyProfileDirectory(legacy))

	plain := filepath.Join(dir, "docs")
	require.NoError(t, os.MkdirAll(plain, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(plain, "readme.md"), []byte("x"), 0o644))
	assert.False(t, isLegacyProfileDirectory(plain))
}

func TestImportLegacyLayout(t *testing.T) {
	ctx := context.Background()
	s, repo := newTestStore(t)

	src := t.TempDir()
	profiles := filepath.Join(src, "fabric", "configs", "versions", "1.0", "profiles")
	legacy := filepath.Join(profiles, "foo-bar")
	require.NoError(t, os.MkdirAll(legacy, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(legacy, "org.example.properties"), []byte("x=1"), 0o644))
	docs := filepath.Join(profiles, "docs")
	require.NoError(t, os.MkdirAll(docs, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "readme.md"), []byte("hello"), 0o644))

	require.NoError(t, s.ImportFromFileSystem(ctx, src))

	tip := branchTip(t, repo, "1.0")
	data, err := repo.BlobAtCommit(tip.Hash, "fabric/profiles/foo/bar.profile/org.example.properties")
	require.NoError(t, err)
	assert.Equal(t, "x=1", string(data))

	// Non-profile directories are imported untranslated.
	data, err = repo.BlobAtCommit(tip.Hash, "fabric/profiles/docs/readme.md")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	names, err := s.Profiles(ctx, "1.0")
	require.NoError(t, err)
	assert.Contains(t, names, "foo-bar")
}

func TestImportPlainTree(t *testing.T) {
	ctx := context.Background()
	s, repo := newTestStore(t)

	src := t.TempDir()
	profile := filepath.Join(src, "fabric", "profiles", "web.profile")
	require.NoError(t, os.MkdirAll(profile, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(profile, "org.example.properties"), []byte("port=80"), 0o644))

	require.NoError(t, s.ImportFromFileSystem(ctx, src))

	tip := branchTip(t, repo, "1.0")
	data, err := repo.BlobAtCommit(tip.Hash, "fabric/profiles/web.profile/org.example.properties")
	require.NoError(t, err)
	assert.Equal(t, "port=80", string(data))

	names, err := s.Profiles(ctx, "1.0")
	require.NoError(t, err)
	assert.Contains(t, names, "web")
}
