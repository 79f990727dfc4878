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

	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"k8s.io/klog/v2"

	"github.com/fusesource/fabric-git/pkg/git"
)

const stashMessage = "Stash before a write"

// Operation is the caller's function invoked inside the serialized
// protocol with the shared repository and the per-operation context.
type Operation func(repo *git.Repository, gctx *Context) error

// ReadOperation runs a read-only operation; the pull prelude is skipped.
// Reads still serialize on the operation mutex because they move HEAD via
// checkout.
func (s *DataStore) ReadOperation(ctx context.Context, fn Operation) error {
	return s.gitOperation(ctx, nil, fn, false, NewContext())
}

// WriteOperation runs a read/write operation with the pull prelude.
func (s *DataStore) WriteOperation(ctx context.Context, fn Operation) error {
	return s.gitOperation(ctx, nil, fn, true, NewContext())
}

// WriteOperationWith runs an operation with an explicit author identity
// and a caller-provided context, for authored commits.
func (s *DataStore) WriteOperationWith(ctx context.Context, ident *object.Signature, fn Operation, pullFirst bool, gctx *Context) error {
	return s.gitOperation(ctx, ident, fn, pullFirst, gctx)
}

// gitOperation is the serialization core. Under a single exclusive mutex:
// resolve credentials, stash incidental dirt, record the original branch,
// optionally pull, run the operation, commit when requested, restore the
// original branch, then push and fire notifications when anything changed.
func (s *DataStore) gitOperation(ctx context.Context, ident *object.Signature, fn Operation, pullFirst bool, gctx *Context) error {
	ctx, span := tracer.Start(ctx, "DataStore::gitOperation")
	defer span.End()

	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.assertValid(); err != nil {
		return err
	}
	svc, err := s.gitService()
	if err != nil {
		return err
	}
	repo := svc.Repository()

	auth, err := s.credentials(ctx)
	if err != nil {
		return launder(err)
	}
	if ident == nil {
		ident = repo.DefaultSignature()
	}

	if repo.HasHead() {
		// Shelve incidental dirt from prior failed operations.
		if _, err := repo.StashCreate(ident, stashMessage); err != nil {
			return launder(err)
		}
	}

	originalBranch, err := repo.CurrentBranch()
	if err != nil {
		return launder(err)
	}
	statusBefore := repo.Head()

	// The working copy must be back on the original branch at mutex
	// release no matter how the operation ends.
	restored := false
	defer func() {
		if restored {
			return
		}
		if restoreErr := restoreBranch(repo, originalBranch); restoreErr != nil {
			klog.Errorf("failed to restore branch %s: %v", originalBranch, restoreErr)
		}
	}()

	if pullFirst {
		if pullErr := s.doPull(ctx, repo, auth, ident); pullErr != nil {
			klog.Errorf("failed to pull from the remote git repo %s: %v", repo.Root(), pullErr)
		}
	}

	if err := fn(repo, gctx); err != nil {
		return launder(err)
	}

	requirePush := gctx.requirePush
	if gctx.requireCommit {
		requirePush = true
		message := gctx.CommitMessage()
		if message == "" {
			klog.Warning("no commit message for the git operation, please add one")
		}
		if _, err := repo.Commit(message, ident); err != nil {
			return launder(err)
		}
	}

	// Push target: the explicit override, else the branch checked out at
	// commit time.
	pushBranch := gctx.PushBranch()
	if pushBranch == "" {
		if current, err := repo.CurrentBranch(); err == nil {
			pushBranch = current
		}
	}

	if err := restoreBranch(repo, originalBranch); err != nil {
		return launder(err)
	}
	restored = true

	if requirePush || repo.Head() != statusBefore {
		s.clearCaches()
		if pushErr := s.doPush(ctx, repo, pushBranch, auth); pushErr != nil {
			klog.Warningf("failed to push to the remote git repo: %v", pushErr)
		}
		s.fireChangeNotifications()
	}
	return nil
}

// restoreBranch checks the original branch back out. When reconciliation
// deleted that branch mid-operation, the working copy falls back to
// master instead of resurrecting it.
func restoreBranch(repo *git.Repository, name string) error {
	if branches, err := repo.LocalBranches(); err == nil {
		if _, ok := branches[name]; !ok {
			klog.Warningf("branch %s disappeared during the operation, falling back to %s", name, git.MasterBranch)
			name = string(git.MasterBranch)
		}
	}
	return repo.CheckoutBranch(name, true)
}

// doPush pushes the given branch to the remote; with no remote URL
// configured it quietly does nothing.
func (s *DataStore) doPush(ctx context.Context, repo *git.Repository, branch string, auth transport.AuthMethod) error {
	url, err := repo.RemoteURL()
	if err != nil {
		return err
	}
	if url == "" {
		klog.V(2).Infof("no remote repository defined for the git repository at %s, not doing a push", repo.Root())
		return nil
	}
	return repo.PushBranch(ctx, branch, auth)
}
