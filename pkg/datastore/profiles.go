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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/fusesource/fabric-git/pkg/git"
)

const (
	configRootDir = "fabric"

	// AgentMetadataFile is the marker file distinguishing a profile
	// directory; every profile carries it.
	AgentMetadataFile = "org.fusesource.fabric.agent.properties"

	profileFolderSuffix = ".profile"
)

// useDirectoriesForProfiles converts a profile named "foo-bar" into a
// "foo/bar.profile" directory tree, organising profiles into folders.
const useDirectoriesForProfiles = true

// branchOf maps a (version, profile) pair onto its branch. The profile is
// ignored today; the indirection exists so cross-version profiles can
// later be routed to master.
func branchOf(version, profile string) string {
	return version
}

// convertProfileIDToDirectory maps a profile id like "foo-bar" to its
// directory "foo/bar.profile" under the profiles tree.
func convertProfileIDToDirectory(profileID string) string {
	if useDirectoriesForProfiles {
		return strings.ReplaceAll(profileID, "-", "/") + profileFolderSuffix
	}
	return profileID
}

func profilesDirectory(repo *git.Repository) string {
	return filepath.Join(repo.Root(), configRootDir, "profiles")
}

func profileDirectory(repo *git.Repository, profile string) string {
	return filepath.Join(profilesDirectory(repo), filepath.FromSlash(convertProfileIDToDirectory(profile)))
}

// profileNames reconstructs profile ids from the directory tree: leaf
// directories named *.profile, intermediate segments joined with "-".
// The walk is iterative; pathological repositories must not grow the
// stack.
func profileNames(dir string) []string {
	type frame struct {
		path   string
		prefix string
	}
	names := sets.New[string]()
	stack := []frame{{path: dir}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		entries, err := os.ReadDir(f.path)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			name := entry.Name()
			if !useDirectoriesForProfiles {
				names.Insert(f.prefix + name)
				continue
			}
			if strings.HasSuffix(name, profileFolderSuffix) {
				names.Insert(f.prefix + strings.TrimSuffix(name, profileFolderSuffix))
			} else {
				stack = append(stack, frame{
					path:   filepath.Join(f.path, name),
					prefix: f.prefix + name + "-",
				})
			}
		}
	}
	return sets.List(names)
}

// Profiles lists the profiles of a version: the union of the profiles on
// master (fabric-wide ensemble profiles) and on the version branch.
func (s *DataStore) Profiles(ctx context.Context, version string) ([]string, error) {
	if err := s.assertValid(); err != nil {
		return nil, err
	}
	result := []string{}
	err := s.ReadOperation(ctx, func(repo *git.Repository, gctx *Context) error {
		versions, err := versionsIn(repo)
		if err != nil {
			return err
		}
		found := false
		for _, v := range versions {
			if v == version {
				found = true
				break
			}
		}
		if !found {
			return nil
		}

		names := sets.New[string]()
		if err := checkoutVersion(repo, string(git.MasterBranch)); err != nil {
			return err
		}
		names.Insert(profileNames(profilesDirectory(repo))...)

		if err := checkoutVersion(repo, version); err != nil {
			return err
		}
		names.Insert(profileNames(profilesDirectory(repo))...)

		result = sets.List(names)
		return nil
	})
	return result, err
}

// CreateProfile creates the profile on the version branch, committing the
// agent metadata file. Returns the profile id, or "" when the profile
// already existed.
func (s *DataStore) CreateProfile(ctx context.Context, version, profile string) (string, error) {
	if err := s.assertValid(); err != nil {
		return "", err
	}
	var created string
	err := s.WriteOperation(ctx, func(repo *git.Repository, gctx *Context) error {
		if err := checkoutVersion(repo, branchOf(version, profile)); err != nil {
			return err
		}
		var err error
		created, err = createProfile(repo, gctx, profile, version)
		return err
	})
	return created, err
}

// GetProfile returns the profile id when it exists, optionally creating
// it; "" when absent and not creating.
func (s *DataStore) GetProfile(ctx context.Context, version, profile string, create bool) (string, error) {
	if err := s.assertValid(); err != nil {
		return "", err
	}
	var result string
	err := s.WriteOperation(ctx, func(repo *git.Repository, gctx *Context) error {
		if err := checkoutVersion(repo, branchOf(version, profile)); err != nil {
			return err
		}
		if _, err := os.Stat(profileDirectory(repo, profile)); err != nil {
			if !os.IsNotExist(err) {
				return err
			}
			if create {
				var createErr error
				result, createErr = createProfile(repo, gctx, profile, version)
				return createErr
			}
			return nil
		}
		result = profile
		return nil
	})
	return result, err
}

// createProfile creates the profile directory on the currently checked
// out version branch. A no-op when the agent metadata file already
// exists.
func createProfile(repo *git.Repository, gctx *Context, profile, version string) (string, error) {
	dir := profileDirectory(repo, profile)
	metadataFile := filepath.Join(dir, AgentMetadataFile)
	if _, err := os.Stat(metadataFile); err == nil {
		return "", nil
	} else if !os.IsNotExist(err) {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(metadataFile, []byte(fmt.Sprintf("#Profile:%s\n", profile)), 0o644); err != nil {
		return "", err
	}
	if err := addFiles(repo, dir, metadataFile); err != nil {
		return "", err
	}
	gctx.SetPushBranch(version)
	gctx.Commit("Added profile " + profile)
	return profile, nil
}

// DeleteProfile removes the profile directory and commits the removal.
func (s *DataStore) DeleteProfile(ctx context.Context, version, profile string) error {
	if err := s.assertValid(); err != nil {
		return err
	}
	return s.WriteOperation(ctx, func(repo *git.Repository, gctx *Context) error {
		if err := checkoutVersion(repo, branchOf(version, profile)); err != nil {
			return err
		}
		if err := recursiveDeleteAndRemove(repo, profileDirectory(repo, profile)); err != nil {
			return err
		}
		gctx.SetPushBranch(version)
		gctx.Commit("Removed profile " + profile)
		return nil
	})
}

// LastModified reports the profile's filesystem modification time: the
// newer of the profile directory and the agent metadata file. The value
// does not reflect commit time and may move backwards across branch
// switches.
func (s *DataStore) LastModified(ctx context.Context, version, profile string) (time.Time, error) {
	if err := s.assertValid(); err != nil {
		return time.Time{}, err
	}
	var modified time.Time
	err := s.ReadOperation(ctx, func(repo *git.Repository, gctx *Context) error {
		if err := checkoutVersion(repo, branchOf(version, profile)); err != nil {
			return err
		}
		dir := profileDirectory(repo, profile)
		fi, err := os.Stat(dir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		modified = fi.ModTime()
		if mi, err := os.Stat(filepath.Join(dir, AgentMetadataFile)); err == nil && mi.ModTime().After(modified) {
			modified = mi.ModTime()
		}
		return nil
	})
	return modified, err
}

// ListFiles lists the entries at path across a set of profiles, sorted
// and deduplicated.
func (s *DataStore) ListFiles(ctx context.Context, version string, profiles []string, path string) ([]string, error) {
	if err := s.assertValid(); err != nil {
		return nil, err
	}
	names := sets.New[string]()
	err := s.ReadOperation(ctx, func(repo *git.Repository, gctx *Context) error {
		for _, profile := range profiles {
			if err := checkoutVersion(repo, branchOf(version, profile)); err != nil {
				return err
			}
			dir := profileDirectory(repo, profile)
			if path != "" {
				dir = filepath.Join(dir, filepath.FromSlash(path))
			}
			entries, err := os.ReadDir(dir)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return err
			}
			for _, entry := range entries {
				names.Insert(entry.Name())
			}
		}
		return nil
	})
	return sets.List(names), err
}

// addFiles stages files by their repository-relative paths.
func addFiles(repo *git.Repository, files ...string) error {
	for _, file := range files {
		rel, err := filePattern(repo.Root(), file)
		if err != nil {
			return err
		}
		if rel == "." {
			if err := repo.AddAll(); err != nil {
				return err
			}
			continue
		}
		if err := repo.Add(rel); err != nil {
			return err
		}
	}
	return nil
}

// filePattern converts an absolute path to the slash-separated path
// relative to the repository root.
func filePattern(root, file string) (string, error) {
	rel, err := filepath.Rel(root, file)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(filepath.ToSlash(rel), "/"), nil
}

// recursiveDeleteAndRemove deletes the file tree at path and stages the
// removal of every contained file, iteratively.
func recursiveDeleteAndRemove(repo *git.Repository, path string) error {
	rel, err := filePattern(repo.Root(), path)
	if err != nil {
		return err
	}
	if rel == ".git" || strings.HasPrefix(rel, ".git/") {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var files []string
	stack := []string{path}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fi, err := os.Lstat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		if !fi.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			stack = append(stack, filepath.Join(p, entry.Name()))
		}
	}

	for _, file := range files {
		frel, err := filePattern(repo.Root(), file)
		if err != nil {
			return err
		}
		if err := repo.Remove(frel); err != nil {
			// Untracked files are not in the index; delete them directly.
			if rmErr := os.Remove(file); rmErr != nil && !os.IsNotExist(rmErr) {
				return rmErr
			}
		}
	}
	return os.RemoveAll(path)
}
