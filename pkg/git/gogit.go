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
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

// This file contains helpers for interacting with gogit.

const initialCommitMessage = "Created fabric configuration repository"

// initRepository creates a new repository with a working tree at path.
// HEAD is pointed at master and an initial empty commit is created so
// that branch creation always has a start point.
func initRepository(path string) (*gogit.Repository, error) {
	repo, err := gogit.PlainInit(path, false)
	if err != nil {
		return nil, err
	}
	if err := initializeMasterBranch(repo); err != nil {
		return nil, err
	}
	return repo, nil
}

func initializeMasterBranch(repo *gogit.Repository) error {
	head := plumbing.NewSymbolicReference(plumbing.HEAD, MasterBranch.RefInLocal())
	if err := repo.Storer.SetReference(head); err != nil {
		return err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	_, err = wt.Commit(initialCommitMessage, &gogit.CommitOptions{
		Author:            defaultSignature(repo),
		AllowEmptyCommits: true,
	})
	return err
}

func openRepository(path string) (*gogit.Repository, error) {
	dot := osfs.New(path + "/.git")
	storage := filesystem.NewStorage(dot, cache.NewObjectLRUDefault())
	return gogit.Open(storage, osfs.New(path))
}

// initializeRemote records the remote URL and default fetch refspec in
// the repository config, creating the remote when absent.
func initializeRemote(repo *gogit.Repository, remote, address string) error {
	cfg, err := repo.Config()
	if err != nil {
		return err
	}

	cfg.Remotes[remote] = &config.RemoteConfig{
		Name:  remote,
		URLs:  []string{address},
		Fetch: []config.RefSpec{defaultFetchSpec(remote)},
	}

	return repo.SetConfig(cfg)
}

func defaultSignature(repo *gogit.Repository) *object.Signature {
	name, email := fabricSignatureName, fabricSignatureEmail
	if cfg, err := repo.Config(); err == nil {
		if cfg.User.Name != "" {
			name = cfg.User.Name
		}
		if cfg.User.Email != "" {
			email = cfg.User.Email
		}
	}
	return &object.Signature{Name: name, Email: email, When: time.Now()}
}
