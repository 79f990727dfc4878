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
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// MergeStatus is the outcome of MergeTheirs.
type MergeStatus int

const (
	MergeAlreadyUpToDate MergeStatus = iota
	MergeFastForward
	MergeMerged
)

func (s MergeStatus) String() string {
	switch s {
	case MergeAlreadyUpToDate:
		return "already-up-to-date"
	case MergeFastForward:
		return "fast-forward"
	case MergeMerged:
		return "merged"
	default:
		return fmt.Sprintf("MergeStatus(%d)", int(s))
	}
}

// MergeTheirs merges the given commit into the current branch resolving
// every difference in favor of the incoming side: the merge commit takes
// the incoming tree wholesale. Fast-forwards when possible. The working
// tree is reset to the merge result.
func (r *Repository) MergeTheirs(theirs plumbing.Hash, ident *object.Signature) (MergeStatus, error) {
	head, err := r.repo.Head()
	if err != nil {
		return MergeAlreadyUpToDate, fmt.Errorf("cannot merge on an unborn branch: %w", err)
	}
	ours := head.Hash()
	if ours == theirs {
		return MergeAlreadyUpToDate, nil
	}

	oursCommit, err := r.repo.CommitObject(ours)
	if err != nil {
		return MergeAlreadyUpToDate, err
	}
	theirsCommit, err := r.repo.CommitObject(theirs)
	if err != nil {
		return MergeAlreadyUpToDate, err
	}

	// The incoming commit is already reachable: nothing to do.
	if reachable, err := theirsCommit.IsAncestor(oursCommit); err != nil {
		return MergeAlreadyUpToDate, err
	} else if reachable {
		return MergeAlreadyUpToDate, nil
	}

	if reachable, err := oursCommit.IsAncestor(theirsCommit); err != nil {
		return MergeAlreadyUpToDate, err
	} else if reachable {
		if err := r.advanceTo(head.Name(), theirs); err != nil {
			return MergeAlreadyUpToDate, err
		}
		return MergeFastForward, nil
	}

	if ident == nil {
		ident = defaultSignature(r.repo)
	}
	now := time.Now()
	merge := &object.Commit{
		Author:       object.Signature{Name: ident.Name, Email: ident.Email, When: now},
		Committer:    object.Signature{Name: ident.Name, Email: ident.Email, When: now},
		Message:      fmt.Sprintf("Merge commit '%s'", theirs),
		TreeHash:     theirsCommit.TreeHash,
		ParentHashes: []plumbing.Hash{ours, theirs},
	}
	mergeHash, err := r.storeCommit(merge)
	if err != nil {
		return MergeAlreadyUpToDate, err
	}
	if err := r.advanceTo(head.Name(), mergeHash); err != nil {
		return MergeAlreadyUpToDate, err
	}
	return MergeMerged, nil
}

func (r *Repository) advanceTo(branch plumbing.ReferenceName, hash plumbing.Hash) error {
	if err := r.setBranchTo(branch, hash); err != nil {
		return err
	}
	wt, err := r.repo.Worktree()
	if err != nil {
		return err
	}
	return wt.Reset(&gogit.ResetOptions{Mode: gogit.HardReset})
}
