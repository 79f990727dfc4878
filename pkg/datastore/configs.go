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
	"sort"
	"strings"

	"github.com/fusesource/fabric-git/internal/properties"
	"github.com/fusesource/fabric-git/pkg/git"
)

// FileConfigurations returns the profile's file tree as a map from
// profile-relative path to contents.
func (s *DataStore) FileConfigurations(ctx context.Context, version, profile string) (map[string][]byte, error) {
	if err := s.assertValid(); err != nil {
		return nil, err
	}
	var configurations map[string][]byte
	err := s.ReadOperation(ctx, func(repo *git.Repository, gctx *Context) error {
		if err := checkoutVersion(repo, branchOf(version, profile)); err != nil {
			return err
		}
		var err error
		configurations, err = readFileConfigurations(repo, profile)
		return err
	})
	return configurations, err
}

// SetFileConfigurations makes the supplied set authoritative: it writes
// every entry and removes any pre-existing entry not in the input.
func (s *DataStore) SetFileConfigurations(ctx context.Context, version, profile string, configurations map[string][]byte) error {
	if err := s.assertValid(); err != nil {
		return err
	}
	return s.WriteOperation(ctx, func(repo *git.Repository, gctx *Context) error {
		if err := checkoutVersion(repo, branchOf(version, profile)); err != nil {
			return err
		}
		if err := setFileConfigurations(repo, profile, configurations); err != nil {
			return err
		}
		gctx.SetPushBranch(version)
		gctx.Commit("Updated configuration for profile " + profile)
		return nil
	})
}

// FileConfiguration returns the named file's contents, nil when absent.
// A name resolving to a directory yields "<child> = <contents>\n" lines
// for every child.
func (s *DataStore) FileConfiguration(ctx context.Context, version, profile, name string) ([]byte, error) {
	if err := s.assertValid(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.ReadOperation(ctx, func(repo *git.Repository, gctx *Context) error {
		if err := checkoutVersion(repo, branchOf(version, profile)); err != nil {
			return err
		}
		var err error
		data, err = loadFileConfiguration(filepath.Join(profileDirectory(repo, profile), filepath.FromSlash(name)))
		return err
	})
	return data, err
}

// SetFileConfiguration writes (or, with nil contents, removes) one file
// of the profile.
func (s *DataStore) SetFileConfiguration(ctx context.Context, version, profile, name string, configuration []byte) error {
	if err := s.assertValid(); err != nil {
		return err
	}
	return s.WriteOperation(ctx, func(repo *git.Repository, gctx *Context) error {
		if err := checkoutVersion(repo, branchOf(version, profile)); err != nil {
			return err
		}
		if err := setFileConfiguration(repo, profile, name, configuration); err != nil {
			return err
		}
		gctx.SetPushBranch(version)
		gctx.Commit(fmt.Sprintf("Updated %s for profile %s", name, profile))
		return nil
	})
}

// Configuration reads a PID configuration as a key-value map; an absent
// PID yields an empty map.
func (s *DataStore) Configuration(ctx context.Context, version, profile, pid string) (map[string]string, error) {
	if err := s.assertValid(); err != nil {
		return nil, err
	}
	configuration := map[string]string{}
	err := s.ReadOperation(ctx, func(repo *git.Repository, gctx *Context) error {
		if err := checkoutVersion(repo, branchOf(version, profile)); err != nil {
			return err
		}
		file := pidFile(profileDirectory(repo, profile), pid)
		fi, err := os.Stat(file)
		if err != nil || fi.IsDir() {
			return nil
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		configuration, err = properties.Parse(data)
		return err
	})
	return configuration, err
}

// SetConfiguration writes a PID configuration; it round-trips through
// Configuration as an identical key-value map.
func (s *DataStore) SetConfiguration(ctx context.Context, version, profile, pid string, configuration map[string]string) error {
	data, err := properties.Marshal(configuration)
	if err != nil {
		return launder(err)
	}
	return s.SetFileConfiguration(ctx, version, profile, pid+".properties", data)
}

// SetConfigurations replaces the profile's files wholesale with the given
// PID configurations: every file of the profile not named by the input,
// non-PID files and the agent metadata file included, is removed.
func (s *DataStore) SetConfigurations(ctx context.Context, version, profile string, configurations map[string]map[string]string) error {
	fileConfigs := map[string][]byte{}
	for pid, configuration := range configurations {
		data, err := properties.Marshal(configuration)
		if err != nil {
			return launder(err)
		}
		fileConfigs[pid+".properties"] = data
	}
	return s.SetFileConfigurations(ctx, version, profile, fileConfigs)
}

func pidFile(profileDir, pid string) string {
	return filepath.Join(profileDir, pid+".properties")
}

// readFileConfigurations gathers the profile's regular files recursively,
// keyed by profile-relative slash path.
func readFileConfigurations(repo *git.Repository, profile string) (map[string][]byte, error) {
	configurations := map[string][]byte{}
	root := profileDirectory(repo, profile)

	stack := []string{root}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		for _, entry := range entries {
			full := filepath.Join(dir, entry.Name())
			if entry.IsDir() {
				stack = append(stack, full)
				continue
			}
			rel, err := filePattern(root, full)
			if err != nil {
				return nil, err
			}
			data, err := os.ReadFile(full)
			if err != nil {
				return nil, err
			}
			configurations[rel] = data
		}
	}
	return configurations, nil
}

func setFileConfigurations(repo *git.Repository, profile string, configurations map[string][]byte) error {
	existing, err := readFileConfigurations(repo, profile)
	if err != nil {
		return err
	}

	for name, data := range configurations {
		delete(existing, name)
		if err := setFileConfiguration(repo, profile, name, data); err != nil {
			return err
		}
	}

	// The input set is authoritative: whatever it did not name goes away.
	root := profileDirectory(repo, profile)
	for name := range existing {
		if err := recursiveDeleteAndRemove(repo, filepath.Join(root, filepath.FromSlash(name))); err != nil {
			return err
		}
	}
	return nil
}

func setFileConfiguration(repo *git.Repository, profile, name string, configuration []byte) error {
	file := filepath.Join(profileDirectory(repo, profile), filepath.FromSlash(name))
	if configuration == nil {
		return recursiveDeleteAndRemove(repo, file)
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(file, configuration, 0o644); err != nil {
		return err
	}
	return addFiles(repo, file)
}

// loadFileConfiguration reads one configuration file; nil when absent.
// Directory PIDs concatenate their children.
func loadFileConfiguration(file string) ([]byte, error) {
	fi, err := os.Stat(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if fi.IsDir() {
		entries, err := os.ReadDir(file)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			names = append(names, entry.Name())
		}
		sort.Strings(names)
		var buf strings.Builder
		for _, name := range names {
			value, err := os.ReadFile(filepath.Join(file, name))
			if err != nil {
				return nil, err
			}
			fmt.Fprintf(&buf, "%s = %s\n", name, string(value))
		}
		return []byte(buf.String()), nil
	}
	return os.ReadFile(file)
}
