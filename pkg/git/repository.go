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

package git

import (
	"errors"
	"fmt"
	"io"
	"os"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.opentelemetry.io/otel"
	"k8s.io/klog/v2"
)

var tracer = otel.Tracer("fabric-git")

// ErrCannotDeleteCurrentBranch is returned by DeleteBranch when the branch
// is the one currently checked out.
var ErrCannotDeleteCurrentBranch = errors.New("cannot delete the currently checked out branch")

// Repository owns the on-disk working copy and its .git directory and
// provides the primitives the operation serializer composes. Callers are
// expected to serialize access externally; the working copy is shared
// mutable state with a single-branch-checkout invariant.
type Repository struct {
	repo   *gogit.Repository
	dir    string
	remote string
}

// Open opens the repository at dir, initializing a fresh one (with an
// initial commit on master) when none exists.
func Open(dir string) (*Repository, error) {
	var repo *gogit.Repository

	if fi, err := os.Stat(dir); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		r, err := initRepository(dir)
		if err != nil {
			return nil, fmt.Errorf("error initializing git repository %q: %w", dir, err)
		}
		repo = r
	} else if !fi.IsDir() {
		return nil, fmt.Errorf("cannot open git repository %q: not a directory", dir)
	} else {
		r, err := openRepository(dir)
		if err != nil {
			if !errors.Is(err, gogit.ErrRepositoryNotExists) {
				return nil, err
			}
			r, err = initRepository(dir)
			if err != nil {
				return nil, fmt.Errorf("error initializing git repository %q: %w", dir, err)
			}
		}
		repo = r
	}

	return &Repository{repo: repo, dir: dir, remote: DefaultRemote}, nil
}

// Root returns the working tree directory.
func (r *Repository) Root() string {
	return r.dir
}

// RemoteName returns the configured remote name, origin by default.
func (r *Repository) RemoteName() string {
	return r.remote
}

// SetRemoteName overrides the remote name used for fetch and push.
func (r *Repository) SetRemoteName(remote string) error {
	if remote == "" {
		return fmt.Errorf("remote name cannot be empty")
	}
	r.remote = remote
	return nil
}

// RemoteURL returns the URL recorded for the remote, or "" when the remote
// is not configured.
func (r *Repository) RemoteURL() (string, error) {
	cfg, err := r.repo.Config()
	if err != nil {
		return "", err
	}
	rc, ok := cfg.Remotes[r.remote]
	if !ok || len(rc.URLs) == 0 {
		return "", nil
	}
	return rc.URLs[0], nil
}

// SetRemoteURL records the remote URL and the default fetch refspec
// +refs/heads/*:refs/remotes/<remote>/* in the repository config.
func (r *Repository) SetRemoteURL(url string) error {
	return initializeRemote(r.repo, r.remote, url)
}

// HasHead reports whether the repository has at least one commit.
func (r *Repository) HasHead() bool {
	_, err := r.repo.Head()
	return err == nil
}

// Head returns the commit id HEAD resolves to, or the zero hash on an
// unborn branch.
func (r *Repository) Head() plumbing.Hash {
	ref, err := r.repo.Head()
	if err != nil {
		return plumbing.ZeroHash
	}
	return ref.Hash()
}

// CurrentBranch returns the short name of the branch HEAD points at.
func (r *Repository) CurrentBranch() (string, error) {
	ref, err := r.repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return "", err
	}
	if ref.Type() != plumbing.SymbolicReference {
		return "", fmt.Errorf("HEAD is detached at %s", ref.Hash())
	}
	name, ok := getLocalBranchName(ref.Target())
	if !ok {
		return "", fmt.Errorf("HEAD points outside refs/heads: %s", ref.Target())
	}
	return name, nil
}

// CheckoutBranch checks out the named branch, creating it when absent:
// from the remote-tracking branch when one exists, otherwise from the
// current HEAD.
func (r *Repository) CheckoutBranch(name string, force bool) error {
	branch := BranchName(name)
	wt, err := r.repo.Worktree()
	if err != nil {
		return err
	}

	if _, err := r.repo.Reference(branch.RefInLocal(), false); err == nil {
		return wt.Checkout(&gogit.CheckoutOptions{Branch: branch.RefInLocal(), Force: force})
	}

	if ref, err := r.repo.Reference(branch.RefInRemote(r.remote), true); err == nil {
		return r.checkoutTrackingBranch(wt, branch, ref.Hash())
	}

	if !r.HasHead() {
		// Unborn repository: repoint HEAD, the branch materializes with
		// the first commit.
		head := plumbing.NewSymbolicReference(plumbing.HEAD, branch.RefInLocal())
		return r.repo.Storer.SetReference(head)
	}

	return wt.Checkout(&gogit.CheckoutOptions{Branch: branch.RefInLocal(), Create: true, Force: force})
}

// CheckoutTrackingBranch creates and checks out a local branch at the
// remote-tracking branch's commit, with upstream tracking configured.
func (r *Repository) CheckoutTrackingBranch(name string) error {
	branch := BranchName(name)
	ref, err := r.repo.Reference(branch.RefInRemote(r.remote), true)
	if err != nil {
		r.logRefs()
		return fmt.Errorf("no remote-tracking branch %s: %w", branch.RefInRemote(r.remote), err)
	}
	wt, err := r.repo.Worktree()
	if err != nil {
		return err
	}
	return r.checkoutTrackingBranch(wt, branch, ref.Hash())
}

func (r *Repository) checkoutTrackingBranch(wt *gogit.Worktree, branch BranchName, hash plumbing.Hash) error {
	if err := wt.Checkout(&gogit.CheckoutOptions{
		Branch: branch.RefInLocal(),
		Hash:   hash,
		Create: true,
		Force:  true,
	}); err != nil {
		return err
	}
	cfg, err := r.repo.Config()
	if err != nil {
		return err
	}
	cfg.Branches[string(branch)] = &config.Branch{
		Name:   string(branch),
		Remote: r.remote,
		Merge:  branch.RefInLocal(),
	}
	return r.repo.SetConfig(cfg)
}

// DeleteBranch force-deletes a local branch. Deleting the currently
// checked out branch fails with ErrCannotDeleteCurrentBranch.
func (r *Repository) DeleteBranch(name string) error {
	current, err := r.CurrentBranch()
	if err == nil && current == name {
		return ErrCannotDeleteCurrentBranch
	}
	branch := BranchName(name)
	if err := r.repo.Storer.RemoveReference(branch.RefInLocal()); err != nil {
		return err
	}
	// Drop any upstream tracking config along with the ref.
	if err := r.repo.DeleteBranch(name); err != nil && !errors.Is(err, gogit.ErrBranchNotFound) {
		return err
	}
	return nil
}

// LocalBranches returns the refs/heads namespace as short name -> commit id.
func (r *Repository) LocalBranches() (map[string]plumbing.Hash, error) {
	branches := map[string]plumbing.Hash{}
	iter, err := r.repo.Branches()
	if err != nil {
		return nil, err
	}
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if name, ok := getLocalBranchName(ref.Name()); ok {
			branches[name] = ref.Hash()
		}
		return nil
	})
	return branches, err
}

// RemoteBranches returns the refs/remotes/<remote> namespace as short
// name -> commit id.
func (r *Repository) RemoteBranches() (map[string]plumbing.Hash, error) {
	branches := map[string]plumbing.Hash{}
	iter, err := r.repo.References()
	if err != nil {
		return nil, err
	}
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if name, ok := getRemoteBranchName(ref.Name(), r.remote); ok && name != "HEAD" {
			branches[name] = ref.Hash()
		}
		return nil
	})
	return branches, err
}

// Add stages the file or directory at the given worktree-relative path.
func (r *Repository) Add(path string) error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return err
	}
	_, err = wt.Add(path)
	return err
}

// AddAll stages every change in the working tree, deletions included.
func (r *Repository) AddAll() error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return err
	}
	return wt.AddWithOptions(&gogit.AddOptions{All: true})
}

// Remove stages removal of the file at the given worktree-relative path.
func (r *Repository) Remove(path string) error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return err
	}
	_, err = wt.Remove(path)
	return err
}

// Commit commits the staged changes. Empty commits are permitted, matching
// the behavior the serializer's commit step relies on.
func (r *Repository) Commit(message string, ident *object.Signature) (plumbing.Hash, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if ident == nil {
		ident = defaultSignature(r.repo)
	}
	return wt.Commit(message, &gogit.CommitOptions{
		Author:            ident,
		AllowEmptyCommits: true,
	})
}

// Clean removes untracked files and directories from the working tree.
func (r *Repository) Clean() error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return err
	}
	return wt.Clean(&gogit.CleanOptions{Dir: true})
}

// ResetHard discards index and working tree modifications, the equivalent
// of a forced checkout of HEAD.
func (r *Repository) ResetHard() error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return err
	}
	return wt.Reset(&gogit.ResetOptions{Mode: gogit.HardReset})
}

// IsClean reports whether the working tree has no local modifications.
func (r *Repository) IsClean() (bool, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return false, err
	}
	status, err := wt.Status()
	if err != nil {
		return false, err
	}
	return status.IsClean(), nil
}

// DefaultSignature synthesizes a commit identity from repository config,
// falling back to the fabric identity.
func (r *Repository) DefaultSignature() *object.Signature {
	return defaultSignature(r.repo)
}

// BlobAtCommit returns the contents of the file at path in the tree of the
// given commit. Returns os.ErrNotExist when the path is absent.
func (r *Repository) BlobAtCommit(hash plumbing.Hash, path string) ([]byte, error) {
	commit, err := r.repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve %s to a commit: %w", hash, err)
	}
	f, err := commit.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, os.ErrNotExist
		}
		return nil, err
	}
	contents, err := f.Contents()
	if err != nil {
		return nil, err
	}
	return []byte(contents), nil
}

// ResolveCommit resolves a revision string (commit id, branch name, ...) to
// a commit id.
func (r *Repository) ResolveCommit(revision string) (plumbing.Hash, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("cannot resolve revision %q: %w", revision, err)
	}
	return *hash, nil
}

// ParentCommit returns the first parent of the given commit, or the zero
// hash for a root commit.
func (r *Repository) ParentCommit(hash plumbing.Hash) (plumbing.Hash, error) {
	commit, err := r.repo.CommitObject(hash)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if commit.NumParents() == 0 {
		return plumbing.ZeroHash, nil
	}
	return commit.ParentHashes[0], nil
}

// Log walks history from the given commit, optionally restricted to one
// file path, invoking fn for each commit until fn returns false.
func (r *Repository) Log(from plumbing.Hash, path string, fn func(*object.Commit) bool) error {
	opts := &gogit.LogOptions{From: from, Order: gogit.LogOrderCommitterTime}
	if path != "" {
		p := path
		opts.FileName = &p
	}
	iter, err := r.repo.Log(opts)
	if err != nil {
		return err
	}
	defer iter.Close()
	for {
		commit, err := iter.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if !fn(commit) {
			return nil
		}
	}
}

func (r *Repository) storeCommit(commit *object.Commit) (plumbing.Hash, error) {
	eo := r.repo.Storer.NewEncodedObject()
	if err := commit.Encode(eo); err != nil {
		return plumbing.ZeroHash, err
	}
	return r.repo.Storer.SetEncodedObject(eo)
}

func (r *Repository) setBranchTo(branch plumbing.ReferenceName, hash plumbing.Hash) error {
	if err := r.repo.Storer.SetReference(plumbing.NewHashReference(branch, hash)); err != nil {
		return err
	}
	return nil
}

func (r *Repository) logRefs() {
	iter, err := r.repo.References()
	if err != nil {
		klog.Warningf("failed to get references: %v", err)
		return
	}
	_ = iter.ForEach(func(ref *plumbing.Reference) error {
		klog.Infof("ref %s -> %s", ref.Name(), ref.Hash())
		return nil
	})
}
