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
	"io"
	"os"
	"path/filepath"
	"strings"

	"k8s.io/klog/v2"

	"github.com/fusesource/fabric-git/pkg/git"
	"github.com/fusesource/fabric-git/pkg/zk"
)

const fallbackDefaultVersion = "1.0"

// DefaultVersion reads the fabric-wide default version from the attribute
// store, falling back to 1.0 when it is unbound or unset.
func (s *DataStore) DefaultVersion() (string, error) {
	c, err := s.attributeStore()
	if err != nil {
		return fallbackDefaultVersion, nil
	}
	version, err := c.GetData(zk.ConfigDefaultVersion)
	if err != nil {
		return "", launder(err)
	}
	if version == "" {
		version = fallbackDefaultVersion
	}
	return version, nil
}

// ImportFromFileSystem imports a configuration tree. The old attribute
// store layout (fabric/configs/versions/<v>/...) is detected and each
// version folder lands on its branch; anything else is imported into the
// default version wholesale.
func (s *DataStore) ImportFromFileSystem(ctx context.Context, from string) error {
	if err := s.assertValid(); err != nil {
		return err
	}

	defaultVersion, err := s.DefaultVersion()
	if err != nil {
		return err
	}

	configs := filepath.Join(from, "fabric", "configs")
	if _, err := os.Stat(configs); err == nil {
		klog.Infof("importing the old attribute-store layout from %s", from)
		versionsDir := filepath.Join(configs, "versions")
		entries, err := os.ReadDir(versionsDir)
		if err != nil && !os.IsNotExist(err) {
			return launder(err)
		}
		for _, versionFolder := range entries {
			if !versionFolder.IsDir() {
				continue
			}
			version := versionFolder.Name()
			versionFiles, err := os.ReadDir(filepath.Join(versionsDir, version))
			if err != nil {
				return launder(err)
			}
			for _, versionFile := range versionFiles {
				source := filepath.Join(versionsDir, version, versionFile.Name())
				klog.Infof("importing version configuration %s to branch %s", source, version)
				if err := s.importFrom(ctx, source, configRootDir, version, true); err != nil {
					return err
				}
			}
		}
		metrics := filepath.Join(from, "fabric", "metrics")
		if _, err := os.Stat(metrics); err == nil {
			klog.Infof("importing metrics from %s to branch %s", metrics, defaultVersion)
			return s.importFrom(ctx, metrics, configRootDir, defaultVersion, false)
		}
		return nil
	}

	klog.Infof("importing %s as version %s", from, defaultVersion)
	return s.importFrom(ctx, from, "", defaultVersion, false)
}

func (s *DataStore) importFrom(ctx context.Context, from, destinationPath, version string, isProfileDir bool) error {
	return s.WriteOperation(ctx, func(repo *git.Repository, gctx *Context) error {
		if err := checkoutVersion(repo, version); err != nil {
			return err
		}
		toDir := repo.Root()
		if destinationPath != "" {
			toDir = filepath.Join(toDir, filepath.FromSlash(destinationPath))
		}
		if isProfileDir && useDirectoriesForProfiles {
			if err := importLegacyProfileDirectory(repo, from, toDir); err != nil {
				return err
			}
		} else {
			// A directory's contents merge into the destination; a single
			// file keeps its name.
			dest := toDir
			if fi, err := os.Stat(from); err != nil {
				return err
			} else if !fi.IsDir() {
				dest = filepath.Join(toDir, filepath.Base(from))
			}
			if err := copyTree(from, dest); err != nil {
				return err
			}
			if err := addFiles(repo, dest); err != nil {
				return err
			}
		}
		gctx.SetPushBranch(version)
		gctx.Commit("Imported from " + from)
		return nil
	})
}

// importLegacyProfileDirectory converts a flat profiles directory into
// the hierarchical layout, turning a "foo-bar" profile folder into
// "foo/bar.profile" on the way in.
func importLegacyProfileDirectory(repo *git.Repository, from, toDir string) error {
	fi, err := os.Stat(from)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return copyTree(from, filepath.Join(toDir, filepath.Base(from)))
	}

	dest := filepath.Join(toDir, filepath.Base(from))
	entries, err := os.ReadDir(from)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		source := filepath.Join(from, entry.Name())
		if isLegacyProfileDirectory(source) {
			converted := filepath.FromSlash(convertProfileIDToDirectory(entry.Name()))
			if err := copyTree(source, filepath.Join(dest, converted)); err != nil {
				return err
			}
		} else {
			if err := copyTree(source, filepath.Join(dest, entry.Name())); err != nil {
				return err
			}
		}
	}
	return addFiles(repo, dest)
}

// isLegacyProfileDirectory detects a flat-layout profile folder by the
// presence of at least one *.properties or *.mvel file.
func isLegacyProfileDirectory(dir string) bool {
	fi, err := os.Stat(dir)
	if err != nil || !fi.IsDir() {
		return false
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".properties") || strings.HasSuffix(name, ".mvel") {
			return true
		}
	}
	return false
}

// copyTree copies a file or directory tree, iteratively.
func copyTree(from, to string) error {
	type item struct {
		from string
		to   string
	}
	stack := []item{{from: from, to: to}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fi, err := os.Stat(it.from)
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if err := os.MkdirAll(it.to, 0o755); err != nil {
				return err
			}
			entries, err := os.ReadDir(it.from)
			if err != nil {
				return err
			}
			for _, entry := range entries {
				stack = append(stack, item{
					from: filepath.Join(it.from, entry.Name()),
					to:   filepath.Join(it.to, entry.Name()),
				})
			}
			continue
		}
		if err := copyFile(it.from, it.to); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(from, to string) error {
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return err
	}
	in, err := os.Open(from)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(to)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
