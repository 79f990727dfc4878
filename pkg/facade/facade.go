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

// Package facade exposes file-level repository operations (content reads,
// authored writes, history, diffs, revert and rename) on top of the
// datastore's operation serializer.
package facade

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"

	"github.com/fusesource/fabric-git/pkg/datastore"
	"github.com/fusesource/fabric-git/pkg/git"
)

// CommitInfo describes one commit in a file's history.
type CommitInfo struct {
	Sha          string
	Author       string
	Email        string
	Date         time.Time
	Message      string
	ShortMessage string
}

// FileInfo describes one entry of a directory listing.
type FileInfo struct {
	Name        string
	Path        string
	IsDirectory bool
	Size        int64
}

// FileContents is the result of reading a path: either file text or a
// directory listing.
type FileContents struct {
	IsDirectory bool
	Text        string
	Children    []FileInfo
}

// GitFacade is a thin dispatcher over the datastore's serializer entry
// points. Writes are authored: each carries an explicit identity and goes
// through the full pull-commit-push protocol.
type GitFacade struct {
	ds *datastore.DataStore
}

func New(ds *datastore.DataStore) *GitFacade {
	return &GitFacade{ds: ds}
}

// Content returns the contents of a file at a given commit.
func (f *GitFacade) Content(ctx context.Context, objectID, blobPath string) (string, error) {
	var content string
	err := f.ds.ReadOperation(ctx, func(repo *git.Repository, gctx *datastore.Context) error {
		hash, err := repo.ResolveCommit(objectID)
		if err != nil {
			return err
		}
		data, err := repo.BlobAtCommit(hash, blobPath)
		if err != nil {
			return err
		}
		content = string(data)
		return nil
	})
	return content, err
}

// Read returns file text or a directory listing at a path on a branch.
func (f *GitFacade) Read(ctx context.Context, branch, path string) (*FileContents, error) {
	var contents *FileContents
	err := f.ds.ReadOperation(ctx, func(repo *git.Repository, gctx *datastore.Context) error {
		if err := checkoutBranch(repo, branch); err != nil {
			return err
		}
		full := filepath.Join(repo.Root(), filepath.FromSlash(path))
		fi, err := os.Stat(full)
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			data, err := os.ReadFile(full)
			if err != nil {
				return err
			}
			contents = &FileContents{Text: string(data)}
			return nil
		}
		children, err := listDirectory(full, path)
		if err != nil {
			return err
		}
		contents = &FileContents{IsDirectory: true, Children: children}
		return nil
	})
	return contents, err
}

// Exists describes the entry at a path on a branch, nil when absent.
func (f *GitFacade) Exists(ctx context.Context, branch, path string) (*FileInfo, error) {
	var info *FileInfo
	err := f.ds.ReadOperation(ctx, func(repo *git.Repository, gctx *datastore.Context) error {
		if err := checkoutBranch(repo, branch); err != nil {
			return err
		}
		full := filepath.Join(repo.Root(), filepath.FromSlash(path))
		fi, err := os.Stat(full)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		info = &FileInfo{
			Name:        fi.Name(),
			Path:        path,
			IsDirectory: fi.IsDir(),
			Size:        fi.Size(),
		}
		return nil
	})
	return info, err
}

// Write stores contents at a path on a branch and commits under the given
// author.
func (f *GitFacade) Write(ctx context.Context, branch, path, contents, authorName, authorEmail, message string) (*CommitInfo, error) {
	err := f.writeOperation(ctx, authorName, authorEmail, func(repo *git.Repository, gctx *datastore.Context) error {
		if err := checkoutBranch(repo, branch); err != nil {
			return err
		}
		full := filepath.Join(repo.Root(), filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(full, []byte(contents), 0o644); err != nil {
			return err
		}
		if err := repo.Add(relOf(repo, full)); err != nil {
			return err
		}
		gctx.Commit(message)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return f.tipOf(ctx, branch)
}

// Revert restores a file to its state at an older commit and commits the
// restoration.
func (f *GitFacade) Revert(ctx context.Context, branch, objectID, blobPath, authorName, authorEmail, message string) error {
	return f.writeOperation(ctx, authorName, authorEmail, func(repo *git.Repository, gctx *datastore.Context) error {
		hash, err := repo.ResolveCommit(objectID)
		if err != nil {
			return err
		}
		data, err := repo.BlobAtCommit(hash, blobPath)
		if err != nil {
			return err
		}
		if err := checkoutBranch(repo, branch); err != nil {
			return err
		}
		full := filepath.Join(repo.Root(), filepath.FromSlash(blobPath))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(full, data, 0o644); err != nil {
			return err
		}
		if err := repo.Add(relOf(repo, full)); err != nil {
			return err
		}
		if message == "" {
			message = fmt.Sprintf("Reverted %s to %s", blobPath, objectID)
		}
		gctx.Commit(message)
		return nil
	})
}

// Rename moves a file on a branch and commits the move.
func (f *GitFacade) Rename(ctx context.Context, branch, oldPath, newPath, authorName, authorEmail, message string) error {
	return f.writeOperation(ctx, authorName, authorEmail, func(repo *git.Repository, gctx *datastore.Context) error {
		if err := checkoutBranch(repo, branch); err != nil {
			return err
		}
		oldFull := filepath.Join(repo.Root(), filepath.FromSlash(oldPath))
		newFull := filepath.Join(repo.Root(), filepath.FromSlash(newPath))
		if err := os.MkdirAll(filepath.Dir(newFull), 0o755); err != nil {
			return err
		}
		if err := os.Rename(oldFull, newFull); err != nil {
			return err
		}
		if err := repo.Remove(relOf(repo, oldFull)); err != nil {
			return err
		}
		if err := repo.Add(relOf(repo, newFull)); err != nil {
			return err
		}
		if message == "" {
			message = fmt.Sprintf("Renamed %s to %s", oldPath, newPath)
		}
		gctx.Commit(message)
		return nil
	})
}

// Remove deletes a file on a branch and commits the removal.
func (f *GitFacade) Remove(ctx context.Context, branch, path, authorName, authorEmail, message string) error {
	return f.writeOperation(ctx, authorName, authorEmail, func(repo *git.Repository, gctx *datastore.Context) error {
		if err := checkoutBranch(repo, branch); err != nil {
			return err
		}
		full := filepath.Join(repo.Root(), filepath.FromSlash(path))
		if err := repo.Remove(relOf(repo, full)); err != nil {
			if rmErr := os.Remove(full); rmErr != nil {
				return err
			}
		}
		if message == "" {
			message = fmt.Sprintf("Removed %s", path)
		}
		gctx.Commit(message)
		return nil
	})
}

// Branches lists local branch names.
func (f *GitFacade) Branches(ctx context.Context) ([]string, error) {
	var branches []string
	err := f.ds.ReadOperation(ctx, func(repo *git.Repository, gctx *datastore.Context) error {
		local, err := repo.LocalBranches()
		if err != nil {
			return err
		}
		for name := range local {
			branches = append(branches, name)
		}
		sort.Strings(branches)
		return nil
	})
	return branches, err
}

// Head returns the commit id of the current HEAD.
func (f *GitFacade) Head(ctx context.Context) (string, error) {
	var head string
	err := f.ds.ReadOperation(ctx, func(repo *git.Repository, gctx *datastore.Context) error {
		head = repo.Head().String()
		return nil
	})
	return head, err
}

// History lists the commits touching a path, newest first, starting from
// an explicit commit or the branch head. A limit of 0 means unlimited.
func (f *GitFacade) History(ctx context.Context, branch, objectID, path string, limit int) ([]CommitInfo, error) {
	var history []CommitInfo
	err := f.ds.ReadOperation(ctx, func(repo *git.Repository, gctx *datastore.Context) error {
		from := objectID
		if from == "" {
			if branch == "" {
				branch = string(git.MasterBranch)
			}
			from = branch
		}
		hash, err := repo.ResolveCommit(from)
		if err != nil {
			return err
		}
		return repo.Log(hash, path, func(commit *object.Commit) bool {
			history = append(history, commitInfo(commit))
			return limit <= 0 || len(history) < limit
		})
	})
	return history, err
}

// Diff renders the unified diff of a file between two commits; with no
// base the commit's first parent is used.
func (f *GitFacade) Diff(ctx context.Context, objectID, baseObjectID, path string) (string, error) {
	var diff string
	err := f.ds.ReadOperation(ctx, func(repo *git.Repository, gctx *datastore.Context) error {
		hash, err := repo.ResolveCommit(objectID)
		if err != nil {
			return err
		}
		var base plumbing.Hash
		if baseObjectID != "" {
			if base, err = repo.ResolveCommit(baseObjectID); err != nil {
				return err
			}
		} else {
			if base, err = repo.ParentCommit(hash); err != nil {
				return err
			}
		}

		var baseText string
		if !base.IsZero() {
			if data, err := repo.BlobAtCommit(base, path); err == nil {
				baseText = string(data)
			} else if !os.IsNotExist(err) {
				return err
			}
		}
		var text string
		if data, err := repo.BlobAtCommit(hash, path); err == nil {
			text = string(data)
		} else if !os.IsNotExist(err) {
			return err
		}

		edits := myers.ComputeEdits(span.URIFromPath(path), baseText, text)
		diff = fmt.Sprint(gotextdiff.ToUnified("a/"+path, "b/"+path, baseText, edits))
		return nil
	})
	return diff, err
}

// writeOperation runs an authored write through the full serializer
// protocol: pull first, commit required.
func (f *GitFacade) writeOperation(ctx context.Context, authorName, authorEmail string, fn datastore.Operation) error {
	ident := &object.Signature{Name: authorName, Email: authorEmail, When: time.Now()}
	gctx := datastore.NewContext()
	gctx.RequireCommit()
	return f.ds.WriteOperationWith(ctx, ident, fn, true, gctx)
}

func (f *GitFacade) tipOf(ctx context.Context, branch string) (*CommitInfo, error) {
	var info *CommitInfo
	err := f.ds.ReadOperation(ctx, func(repo *git.Repository, gctx *datastore.Context) error {
		hash, err := repo.ResolveCommit(branch)
		if err != nil {
			return err
		}
		return repo.Log(hash, "", func(commit *object.Commit) bool {
			ci := commitInfo(commit)
			info = &ci
			return false
		})
	})
	return info, err
}

func commitInfo(commit *object.Commit) CommitInfo {
	message := commit.Message
	short := message
	if i := strings.IndexByte(short, '\n'); i >= 0 {
		short = short[:i]
	}
	return CommitInfo{
		Sha:          commit.Hash.String(),
		Author:       commit.Author.Name,
		Email:        commit.Author.Email,
		Date:         commit.Author.When,
		Message:      message,
		ShortMessage: short,
	}
}

func checkoutBranch(repo *git.Repository, branch string) error {
	if branch == "" {
		branch = string(git.MasterBranch)
	}
	return repo.CheckoutBranch(branch, false)
}

func relOf(repo *git.Repository, full string) string {
	rel, err := filepath.Rel(repo.Root(), full)
	if err != nil {
		return full
	}
	return filepath.ToSlash(rel)
}

func listDirectory(full, path string) ([]FileInfo, error) {
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, err
	}
	var children []FileInfo
	for _, entry := range entries {
		if entry.Name() == ".git" {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		children = append(children, FileInfo{
			Name:        entry.Name(),
			Path:        strings.TrimPrefix(path+"/"+entry.Name(), "/"),
			IsDirectory: entry.IsDir(),
			Size:        fi.Size(),
		})
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })
	return children, nil
}
