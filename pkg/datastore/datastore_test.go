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
	"sync"
	"testing"

	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fusesource/fabric-git/pkg/git"
)

func newTestStore(t *testing.T) (*DataStore, *git.Repository) {
	t.Helper()
	repo, err := git.Open(filepath.Join(t.TempDir(), "local"))
	require.NoError(t, err)

	s := New()
	s.BindGitService(git.NewService(repo))
	// Keep the timed pull out of the way; tests drive pulls explicitly.
	s.SetDataStoreProperties(map[string]string{GitPullPeriodProperty: "3600000"})
	require.NoError(t, s.Activate(context.Background()))
	t.Cleanup(s.Deactivate)
	return s, repo
}

func branchTip(t *testing.T, repo *git.Repository, branch string) *object.Commit {
	t.Helper()
	hash, err := repo.ResolveCommit(branch)
	require.NoError(t, err)
	var tip *object.Commit
	require.NoError(t, repo.Log(hash, "", func(c *object.Commit) bool {
		tip = c
		return false
	}))
	require.NotNil(t, tip)
	return tip
}

func countCommits(t *testing.T, repo *git.Repository, branch string) int {
	t.Helper()
	hash, err := repo.ResolveCommit(branch)
	require.NoError(t, err)
	count := 0
	require.NoError(t, repo.Log(hash, "", func(*object.Commit) bool {
		count++
		return true
	}))
	return count
}

type countingListener struct {
	mu    sync.Mutex
	fired int
}

func (l *countingListener) DataStoreChanged() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fired++
}

func (l *countingListener) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fired
}

func TestCreateVersionWithoutRemote(t *testing.T) {
	ctx := context.Background()
	s, repo := newTestStore(t)

	require.NoError(t, s.CreateVersion(ctx, "1.1"))

	has, err := s.HasVersion(ctx, "1.1")
	require.NoError(t, err)
	assert.True(t, has)

	versions, err := s.Versions(ctx)
	require.NoError(t, err)
	assert.Contains(t, versions, "1.1")
	assert.NotContains(t, versions, "master")

	// The branch carries exactly the initial commit; nothing was pushed
	// because no remote is configured.
	assert.Equal(t, 1, countCommits(t, repo, "1.1"))
	remotes, err := repo.RemoteBranches()
	require.NoError(t, err)
	assert.Empty(t, remotes)
}

func TestCreateVersionFromParent(t *testing.T) {
	ctx := context.Background()
	s, repo := newTestStore(t)

	require.NoError(t, s.CreateVersion(ctx, "1.0"))
	_, err := s.CreateProfile(ctx, "1.0", "default")
	require.NoError(t, err)

	require.NoError(t, s.CreateVersionFrom(ctx, "1.0", "1.1"))

	profiles, err := s.Profiles(ctx, "1.1")
	require.NoError(t, err)
	assert.Contains(t, profiles, "default")

	parentTip := branchTip(t, repo, "1.0")
	childTip := branchTip(t, repo, "1.1")
	assert.Equal(t, parentTip.Hash, childTip.Hash)
}

func TestDeleteVersionIsUnsupported(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.DeleteVersion(context.Background(), "1.0")
	require.ErrorIs(t, err, ErrNotImplemented)
}

func TestSetFileConfiguration(t *testing.T) {
	ctx := context.Background()
	s, repo := newTestStore(t)

	require.NoError(t, s.CreateVersion(ctx, "1.0"))
	_, err := s.CreateProfile(ctx, "1.0", "default")
	require.NoError(t, err)

	require.NoError(t, s.SetFileConfiguration(ctx, "1.0", "default", "log4j.properties", []byte("x=1")))

	data, err := s.FileConfiguration(ctx, "1.0", "default", "log4j.properties")
	require.NoError(t, err)
	assert.Equal(t, []byte("x=1"), data)

	tip := branchTip(t, repo, "1.0")
	assert.Equal(t, "Updated log4j.properties for profile default", tip.Message)
}

func TestFileConfigurationAbsentIsNil(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.CreateVersion(ctx, "1.0"))
	_, err := s.CreateProfile(ctx, "1.0", "default")
	require.NoError(t, err)

	data, err := s.FileConfiguration(ctx, "1.0", "default", "missing.properties")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestSetFileConfigurationsIsAuthoritative(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.CreateVersion(ctx, "1.0"))
	_, err := s.CreateProfile(ctx, "1.0", "p")
	require.NoError(t, err)

	require.NoError(t, s.SetFileConfigurations(ctx, "1.0", "p", map[string][]byte{
		"a.properties": []byte("a=1"),
		"b.properties": []byte("b=1"),
	}))
	require.NoError(t, s.SetFileConfigurations(ctx, "1.0", "p", map[string][]byte{
		"a.properties": []byte("a=2"),
	}))

	configs, err := s.FileConfigurations(ctx, "1.0", "p")
	require.NoError(t, err)
	assert.Equal(t, []byte("a=2"), configs["a.properties"])
	assert.NotContains(t, configs, "b.properties")
	// The agent metadata file was not named in the last set either.
	assert.NotContains(t, configs, AgentMetadataFile)
}

func TestConfigurationRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.CreateVersion(ctx, "1.0"))
	_, err := s.CreateProfile(ctx, "1.0", "default")
	require.NoError(t, err)

	in := map[string]string{"a": "1", "b": "two words", "c.d": "3"}
	require.NoError(t, s.SetConfiguration(ctx, "1.0", "default", "org.example.pid", in))

	out, err := s.Configuration(ctx, "1.0", "default", "org.example.pid")
	require.NoError(t, err)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("configuration round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigurationAbsentIsEmptyMap(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.CreateVersion(ctx, "1.0"))

	out, err := s.Configuration(ctx, "1.0", "default", "org.example.missing")
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestCreateProfileHierarchicalLayout(t *testing.T) {
	ctx := context.Background()
	s, repo := newTestStore(t)
	require.NoError(t, s.CreateVersion(ctx, "1.0"))

	created, err := s.CreateProfile(ctx, "1.0", "foo-bar")
	require.NoError(t, err)
	assert.Equal(t, "foo-bar", created)

	tip := branchTip(t, repo, "1.0")
	assert.Equal(t, "Added profile foo-bar", tip.Message)

	data, err := repo.BlobAtCommit(tip.Hash, "fabric/profiles/foo/bar.profile/"+AgentMetadataFile)
	require.NoError(t, err)
	assert.Equal(t, "#Profile:foo-bar\n", string(data))

	profiles, err := s.Profiles(ctx, "1.0")
	require.NoError(t, err)
	assert.Contains(t, profiles, "foo-bar")
}

func TestCreateProfileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.CreateVersion(ctx, "1.0"))

	created, err := s.CreateProfile(ctx, "1.0", "default")
	require.NoError(t, err)
	assert.Equal(t, "default", created)

	created, err = s.CreateProfile(ctx, "1.0", "default")
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestGetProfile(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.CreateVersion(ctx, "1.0"))

	profile, err := s.GetProfile(ctx, "1.0", "absent", false)
	require.NoError(t, err)
	assert.Empty(t, profile)

	profile, err = s.GetProfile(ctx, "1.0", "created", true)
	require.NoError(t, err)
	assert.Equal(t, "created", profile)

	profile, err = s.GetProfile(ctx, "1.0", "created", false)
	require.NoError(t, err)
	assert.Equal(t, "created", profile)
}

func TestDeleteProfile(t *testing.T) {
	ctx := context.Background()
	s, repo := newTestStore(t)
	require.NoError(t, s.CreateVersion(ctx, "1.0"))
	_, err := s.CreateProfile(ctx, "1.0", "doomed")
	require.NoError(t, err)

	require.NoError(t, s.DeleteProfile(ctx, "1.0", "doomed"))

	profiles, err := s.Profiles(ctx, "1.0")
	require.NoError(t, err)
	assert.NotContains(t, profiles, "doomed")

	tip := branchTip(t, repo, "1.0")
	assert.Equal(t, "Removed profile doomed", tip.Message)
	_, err = repo.BlobAtCommit(tip.Hash, "fabric/profiles/doomed.profile/"+AgentMetadataFile)
	assert.True(t, os.IsNotExist(err))
}

func TestOperationRestoresOriginalBranch(t *testing.T) {
	ctx := context.Background()
	s, repo := newTestStore(t)
	require.NoError(t, s.CreateVersion(ctx, "1.0"))

	branch, err := repo.CurrentBranch()
	require.NoError(t, err)
	assert.Equal(t, "master", branch)

	_, err = s.CreateProfile(ctx, "1.0", "default")
	require.NoError(t, err)

	branch, err = repo.CurrentBranch()
	require.NoError(t, err)
	assert.Equal(t, "master", branch)
}

func TestOperationRestoresBranchOnError(t *testing.T) {
	ctx := context.Background()
	s, repo := newTestStore(t)
	require.NoError(t, s.CreateVersion(ctx, "1.0"))

	err := s.WriteOperation(ctx, func(repo *git.Repository, gctx *Context) error {
		if err := repo.CheckoutBranch("1.0", false); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)
	var de *Error
	require.ErrorAs(t, err, &de)

	branch, err := repo.CurrentBranch()
	require.NoError(t, err)
	assert.Equal(t, "master", branch)
}

func TestConcurrentWritersOnDisjointFiles(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.CreateVersion(ctx, "1.0"))
	_, err := s.CreateProfile(ctx, "1.0", "a")
	require.NoError(t, err)
	_, err = s.CreateProfile(ctx, "1.0", "b")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = s.SetFileConfiguration(ctx, "1.0", "a", "a.properties", []byte("a=1"))
	}()
	go func() {
		defer wg.Done()
		errs[1] = s.SetFileConfiguration(ctx, "1.0", "b", "b.properties", []byte("b=1"))
	}()
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	a, err := s.FileConfiguration(ctx, "1.0", "a", "a.properties")
	require.NoError(t, err)
	assert.Equal(t, []byte("a=1"), a)
	b, err := s.FileConfiguration(ctx, "1.0", "b", "b.properties")
	require.NoError(t, err)
	assert.Equal(t, []byte("b=1"), b)
}

func TestChangeNotificationOnWrite(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	listener := &countingListener{}
	s.AddListener(listener)

	require.NoError(t, s.CreateVersion(ctx, "1.0"))
	assert.Equal(t, 1, listener.count())

	s.RemoveListener(listener)
	require.NoError(t, s.CreateVersion(ctx, "1.1"))
	assert.Equal(t, 1, listener.count())
}

func TestReadOperationDoesNotNotify(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.CreateVersion(ctx, "1.0"))

	listener := &countingListener{}
	s.AddListener(listener)
	_, err := s.Versions(ctx)
	require.NoError(t, err)
	assert.Zero(t, listener.count())
}

func TestNotActive(t *testing.T) {
	s := New()
	_, err := s.Versions(context.Background())
	require.ErrorIs(t, err, ErrNotActive)
}

func TestUnrecognizedPropertiesDropped(t *testing.T) {
	s := New()
	s.SetDataStoreProperties(map[string]string{
		GitRemoteURLProperty: "https://example/repo",
		"unknownKey":         "dropped",
	})
	assert.Equal(t, map[string]string{GitRemoteURLProperty: "https://example/repo"}, s.props)
}

func TestTypeAndContext(t *testing.T) {
	s := New()
	assert.Equal(t, TypeID, s.Type())

	gctx := NewContext()
	gctx.Commit("first")
	gctx.Commit("second")
	assert.Equal(t, "first\nsecond", gctx.CommitMessage())
	gctx.SetPushBranch("1.0")
	assert.Equal(t, "1.0", gctx.PushBranch())
}

func TestListFiles(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.CreateVersion(ctx, "1.0"))
	_, err := s.CreateProfile(ctx, "1.0", "a")
	require.NoError(t, err)
	_, err = s.CreateProfile(ctx, "1.0", "b")
	require.NoError(t, err)
	require.NoError(t, s.SetFileConfiguration(ctx, "1.0", "a", "shared.properties", []byte("x=1")))
	require.NoError(t, s.SetFileConfiguration(ctx, "1.0", "b", "only-b.properties", []byte("y=1")))

	files, err := s.ListFiles(ctx, "1.0", []string{"a", "b"}, "")
	require.NoError(t, err)
	assert.Contains(t, files, "shared.properties")
	assert.Contains(t, files, "only-b.properties")
	assert.Contains(t, files, AgentMetadataFile)
}

func TestLastModified(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.CreateVersion(ctx, "1.0"))
	_, err := s.CreateProfile(ctx, "1.0", "default")
	require.NoError(t, err)

	modified, err := s.LastModified(ctx, "1.0", "default")
	require.NoError(t, err)
	assert.False(t, modified.IsZero())

	missing, err := s.LastModified(ctx, "1.0", "absent")
	require.NoError(t, err)
	assert.True(t, missing.IsZero())
}
