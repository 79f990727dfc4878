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
	"sort"

	"github.com/fusesource/fabric-git/pkg/git"
)

// Versions lists every version: every local branch minus master.
func (s *DataStore) Versions(ctx context.Context) ([]string, error) {
	if err := s.assertValid(); err != nil {
		return nil, err
	}
	if cached := s.versionsCache.Load(); cached != nil {
		out := make([]string, len(*cached))
		copy(out, *cached)
		return out, nil
	}

	var versions []string
	err := s.ReadOperation(ctx, func(repo *git.Repository, gctx *Context) error {
		var err error
		versions, err = versionsIn(repo)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.versionsCache.Store(&versions)

	out := make([]string, len(versions))
	copy(out, versions)
	return out, nil
}

// HasVersion reports whether the version exists.
func (s *DataStore) HasVersion(ctx context.Context, name string) (bool, error) {
	versions, err := s.Versions(ctx)
	if err != nil {
		return false, err
	}
	for _, v := range versions {
		if v == name {
			return true, nil
		}
	}
	return false, nil
}

// CreateVersion creates a version branch from the current HEAD.
func (s *DataStore) CreateVersion(ctx context.Context, version string) error {
	if err := s.assertValid(); err != nil {
		return err
	}
	return s.WriteOperation(ctx, func(repo *git.Repository, gctx *Context) error {
		if err := checkoutVersion(repo, version); err != nil {
			return err
		}
		gctx.SetPushBranch(version)
		gctx.RequirePush()
		return nil
	})
}

// CreateVersionFrom creates a version branch starting from the parent
// version's head.
func (s *DataStore) CreateVersionFrom(ctx context.Context, parentVersion, toVersion string) error {
	if err := s.assertValid(); err != nil {
		return err
	}
	return s.WriteOperation(ctx, func(repo *git.Repository, gctx *Context) error {
		if err := checkoutVersion(repo, parentVersion); err != nil {
			return err
		}
		if err := checkoutVersion(repo, toVersion); err != nil {
			return err
		}
		gctx.SetPushBranch(toVersion)
		gctx.RequirePush()
		return nil
	})
}

// DeleteVersion is declared unsupported.
func (s *DataStore) DeleteVersion(ctx context.Context, version string) error {
	return ErrNotImplemented
}

// versionsIn enumerates versions from the local branch set without taking
// another trip through the serializer.
func versionsIn(repo *git.Repository) ([]string, error) {
	branches, err := repo.LocalBranches()
	if err != nil {
		return nil, err
	}
	versions := []string{}
	for name := range branches {
		if name != string(git.MasterBranch) {
			versions = append(versions, name)
		}
	}
	sort.Strings(versions)
	return versions, nil
}

func checkoutVersion(repo *git.Repository, version string) error {
	return repo.CheckoutBranch(version, false)
}
