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
	"errors"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"

	"github.com/fusesource/fabric-git/pkg/git"
)

// tmpBranchSuffix marks scratch branches that reconciliation ignores.
const tmpBranchSuffix = "-tmp"

// doPull converges the local branch set toward the remote. Invoked as the
// pull prelude and by the sync loop; its failures are logged by the
// caller, never propagated to the operation's caller. The remote is
// authoritative: divergent branches are merged with the incoming side
// winning, which is acceptable because every commit is pushed immediately.
func (s *DataStore) doPull(ctx context.Context, repo *git.Repository, auth transport.AuthMethod, ident *object.Signature) error {
	ctx, span := tracer.Start(ctx, "DataStore::doPull")
	defer span.End()

	url, err := repo.RemoteURL()
	if err != nil {
		return err
	}
	if url == "" {
		klog.V(4).Infof("no remote repository defined for the git repository at %s, not doing a pull", repo.Root())
		return nil
	}
	klog.V(4).Infof("performing a fetch in git repository %s on remote URL %s", repo.Root(), url)

	if err := repo.Fetch(ctx, auth); err != nil {
		klog.V(2).Infof("fetch failed, ignoring: %v", err)
		return nil
	}

	localBranches, err := repo.LocalBranches()
	if err != nil {
		return err
	}
	remoteBranches, err := repo.RemoteBranches()
	if err != nil {
		return err
	}
	dropTmpBranches(localBranches)
	dropTmpBranches(remoteBranches)

	gitVersions := sets.New[string]()
	for name := range localBranches {
		gitVersions.Insert(name)
	}
	for name := range remoteBranches {
		gitVersions.Insert(name)
	}

	hasChanged := false
	for _, version := range sets.List(gitVersions) {
		remoteCommit, hasRemote := remoteBranches[version]
		localCommit, hasLocal := localBranches[version]

		switch {
		case !hasRemote:
			// Delete unneeded local branches. A non-empty remote set
			// guards against unwanted deletions, and master is never
			// deleted.
			if len(remoteBranches) == 0 || version == string(git.MasterBranch) {
				continue
			}
			if err := repo.DeleteBranch(version); err != nil {
				if !errors.Is(err, git.ErrCannotDeleteCurrentBranch) {
					return err
				}
				if err := repo.CheckoutBranch(string(git.MasterBranch), true); err != nil {
					return err
				}
				if err := repo.DeleteBranch(version); err != nil {
					return err
				}
			}
			hasChanged = true

		case !hasLocal:
			if err := repo.CheckoutTrackingBranch(version); err != nil {
				return err
			}
			hasChanged = true

		case localCommit != remoteCommit:
			if err := repo.Clean(); err != nil {
				return err
			}
			if err := repo.ResetHard(); err != nil {
				return err
			}
			if err := repo.CheckoutBranch(version, true); err != nil {
				return err
			}
			status, err := repo.MergeTheirs(remoteCommit, ident)
			if err != nil {
				return err
			}
			if status != git.MergeAlreadyUpToDate {
				hasChanged = true
			}
		}
	}

	if hasChanged {
		klog.V(2).Info("changed after pull")
		s.fireChangeNotifications()
	}
	return nil
}

func dropTmpBranches(branches map[string]plumbing.Hash) {
	for name := range branches {
		if strings.HasSuffix(name, tmpBranchSuffix) {
			delete(branches, name)
		}
	}
}
