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
	"context"
	"errors"
	"fmt"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// Fetch fetches from the configured remote and prunes remote-tracking
// branches the remote no longer has. An empty remote and an up-to-date
// remote are not errors; an empty remote prunes every tracking branch.
func (r *Repository) Fetch(ctx context.Context, auth transport.AuthMethod) error {
	ctx, span := tracer.Start(ctx, "Repository::Fetch")
	defer span.End()

	switch err := r.repo.FetchContext(ctx, &gogit.FetchOptions{
		RemoteName: r.remote,
		Auth:       auth,
		Force:      true,
	}); {
	case err == nil, errors.Is(err, gogit.NoErrAlreadyUpToDate):
		return r.pruneRemoteBranches(ctx, auth)
	case errors.Is(err, transport.ErrEmptyRemoteRepository):
		return r.dropRemoteBranches(nil)
	default:
		return fmt.Errorf("cannot fetch from remote %q: %w", r.remote, err)
	}
}

// pruneRemoteBranches drops tracking refs for branches that no longer
// exist on the remote; fetch itself only adds and updates refs.
func (r *Repository) pruneRemoteBranches(ctx context.Context, auth transport.AuthMethod) error {
	remote, err := r.repo.Remote(r.remote)
	if err != nil {
		return err
	}
	refs, err := remote.ListContext(ctx, &gogit.ListOptions{Auth: auth})
	if err != nil {
		if errors.Is(err, transport.ErrEmptyRemoteRepository) {
			return r.dropRemoteBranches(nil)
		}
		return err
	}

	live := map[string]bool{}
	for _, ref := range refs {
		if name, ok := getLocalBranchName(ref.Name()); ok {
			live[name] = true
		}
	}
	return r.dropRemoteBranches(live)
}

// dropRemoteBranches removes every remote-tracking ref not in keep.
func (r *Repository) dropRemoteBranches(keep map[string]bool) error {
	tracked, err := r.RemoteBranches()
	if err != nil {
		return err
	}
	for name := range tracked {
		if keep[name] {
			continue
		}
		branch := BranchName(name)
		if err := r.repo.Storer.RemoveReference(branch.RefInRemote(r.remote)); err != nil {
			return err
		}
	}
	return nil
}

// PushBranch pushes a local branch to the same name on the remote.
func (r *Repository) PushBranch(ctx context.Context, branch string, auth transport.AuthMethod) error {
	ctx, span := tracer.Start(ctx, "Repository::PushBranch")
	defer span.End()

	switch err := r.repo.PushContext(ctx, &gogit.PushOptions{
		RemoteName: r.remote,
		RefSpecs:   []config.RefSpec{branchPushSpec(BranchName(branch))},
		Auth:       auth,
	}); {
	case err == nil, errors.Is(err, gogit.NoErrAlreadyUpToDate):
		return nil
	default:
		return fmt.Errorf("cannot push branch %q to remote %q: %w", branch, r.remote, err)
	}
}
