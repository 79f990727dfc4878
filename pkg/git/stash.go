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
	"fmt"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const stashRef plumbing.ReferenceName = "refs/stash"

// StashCreate shelves a dirty working tree as a commit reachable from
// refs/stash and resets the working tree back to HEAD. A clean working
// tree is a no-op and returns the zero hash.
func (r *Repository) StashCreate(ident *object.Signature, message string) (plumbing.Hash, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	status, err := wt.Status()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if status.IsClean() {
		return plumbing.ZeroHash, nil
	}

	head, err := r.repo.Head()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("cannot stash on an unborn branch: %w", err)
	}

	if err := wt.AddWithOptions(&gogit.AddOptions{All: true}); err != nil {
		return plumbing.ZeroHash, err
	}
	if ident == nil {
		ident = defaultSignature(r.repo)
	}
	stashed, err := wt.Commit(message, &gogit.CommitOptions{Author: ident})
	if err != nil {
		return plumbing.ZeroHash, err
	}

	// The commit advanced the current branch; move the branch back and
	// keep the shelved state reachable from refs/stash only.
	if err := r.setBranchTo(head.Name(), head.Hash()); err != nil {
		return plumbing.ZeroHash, err
	}
	if err := r.repo.Storer.SetReference(plumbing.NewHashReference(stashRef, stashed)); err != nil {
		return plumbing.ZeroHash, err
	}
	if err := wt.Reset(&gogit.ResetOptions{Mode: gogit.HardReset}); err != nil {
		return plumbing.ZeroHash, err
	}
	// Files that only ever existed in the shelved state are untracked
	// after the reset; drop them so the working tree matches HEAD exactly.
	if err := wt.Clean(&gogit.CleanOptions{Dir: true}); err != nil {
		return plumbing.ZeroHash, err
	}
	return stashed, nil
}
