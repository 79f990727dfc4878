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

package facade

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fusesource/fabric-git/pkg/datastore"
	"github.com/fusesource/fabric-git/pkg/git"
)

func newTestFacade(t *testing.T) *GitFacade {
	t.Helper()
	repo, err := git.Open(filepath.Join(t.TempDir(), "repo"))
	require.NoError(t, err)

	ds := datastore.New()
	ds.BindGitService(git.NewService(repo))
	ds.SetDataStoreProperties(map[string]string{datastore.GitPullPeriodProperty: "3600000"})
	require.NoError(t, ds.Activate(context.Background()))
	t.Cleanup(ds.Deactivate)
	return New(ds)
}

func TestWriteAndHistory(t *testing.T) {
	ctx := context.Background()
	f := newTestFacade(t)

	info, err := f.Write(ctx, "1.0", "fabric/readme.md", "hello", "alice", "alice@example.com", "Add readme")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "Add readme", info.ShortMessage)
	assert.Equal(t, "alice", info.Author)

	history, err := f.History(ctx, "1.0", "", "fabric/readme.md", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Add readme", history[0].ShortMessage)
}

func TestContentAndDiff(t *testing.T) {
	ctx := context.Background()
	f := newTestFacade(t)

	_, err := f.Write(ctx, "1.0", "fabric/app.properties", "x=1\n", "alice", "alice@example.com", "v1")
	require.NoError(t, err)
	_, err = f.Write(ctx, "1.0", "fabric/app.properties", "x=2\n", "alice", "alice@example.com", "v2")
	require.NoError(t, err)

	history, err := f.History(ctx, "1.0", "", "fabric/app.properties", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	newest, oldest := history[0], history[1]

	content, err := f.Content(ctx, oldest.Sha, "fabric/app.properties")
	require.NoError(t, err)
	assert.Equal(t, "x=1\n", content)

	diff, err := f.Diff(ctx, newest.Sha, oldest.Sha, "fabric/app.properties")
	require.NoError(t, err)
	assert.Contains(t, diff, "-x=1")
	assert.Contains(t, diff, "+x=2")

	// With no base the commit's parent is used.
	diff, err = f.Diff(ctx, newest.Sha, "", "fabric/app.properties")
	require.NoError(t, err)
	assert.Contains(t, diff, "+x=2")
}

func TestRevert(t *testing.T) {
	ctx := context.Background()
	f := newTestFacade(t)

	_, err := f.Write(ctx, "1.0", "fabric/app.properties", "x=1\n", "alice", "alice@example.com", "v1")
	require.NoError(t, err)
	_, err = f.Write(ctx, "1.0", "fabric/app.properties", "x=2\n", "alice", "alice@example.com", "v2")
	require.NoError(t, err)

	history, err := f.History(ctx, "1.0", "", "fabric/app.properties", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)

	require.NoError(t, f.Revert(ctx, "1.0", history[1].Sha, "fabric/app.properties", "bob", "bob@example.com", ""))

	contents, err := f.Read(ctx, "1.0", "fabric/app.properties")
	require.NoError(t, err)
	assert.Equal(t, "x=1\n", contents.Text)
}

func TestRename(t *testing.T) {
	ctx := context.Background()
	f := newTestFacade(t)

	_, err := f.Write(ctx, "1.0", "fabric/old.properties", "x=1\n", "alice", "alice@example.com", "add")
	require.NoError(t, err)

	require.NoError(t, f.Rename(ctx, "1.0", "fabric/old.properties", "fabric/new.properties", "alice", "alice@example.com", ""))

	gone, err := f.Exists(ctx, "1.0", "fabric/old.properties")
	require.NoError(t, err)
	assert.Nil(t, gone)

	moved, err := f.Read(ctx, "1.0", "fabric/new.properties")
	require.NoError(t, err)
	assert.Equal(t, "x=1\n", moved.Text)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	f := newTestFacade(t)

	_, err := f.Write(ctx, "1.0", "fabric/doomed.properties", "x=1\n", "alice", "alice@example.com", "add")
	require.NoError(t, err)

	require.NoError(t, f.Remove(ctx, "1.0", "fabric/doomed.properties", "alice", "alice@example.com", ""))

	gone, err := f.Exists(ctx, "1.0", "fabric/doomed.properties")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestReadDirectory(t *testing.T) {
	ctx := context.Background()
	f := newTestFacade(t)

	_, err := f.Write(ctx, "1.0", "fabric/a.properties", "a\n", "alice", "alice@example.com", "add a")
	require.NoError(t, err)
	_, err = f.Write(ctx, "1.0", "fabric/b.properties", "b\n", "alice", "alice@example.com", "add b")
	require.NoError(t, err)

	contents, err := f.Read(ctx, "1.0", "fabric")
	require.NoError(t, err)
	require.True(t, contents.IsDirectory)
	require.Len(t, contents.Children, 2)
	assert.Equal(t, "a.properties", contents.Children[0].Name)
	assert.Equal(t, "b.properties", contents.Children[1].Name)
}

func TestBranchesAndHead(t *testing.T) {
	ctx := context.Background()
	f := newTestFacade(t)

	_, err := f.Write(ctx, "1.0", "fabric/a.properties", "a\n", "alice", "alice@example.com", "add a")
	require.NoError(t, err)

	branches, err := f.Branches(ctx)
	require.NoError(t, err)
	assert.Contains(t, branches, "master")
	assert.Contains(t, branches, "1.0")

	head, err := f.Head(ctx)
	require.NoError(t, err)
	assert.Len(t, head, 40)
}
