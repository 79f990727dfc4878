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
	"strings"

	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
)

const (
	// MasterBranch holds the cross-version fabric content and is never
	// deleted by reconciliation.
	MasterBranch BranchName = "master"

	// DefaultRemote is the remote name used unless the owner overrides it.
	DefaultRemote = "origin"

	localBranchPrefix  = "refs/heads/"
	remoteBranchPrefix = "refs/remotes/"

	fabricSignatureName  = "fabric"
	fabricSignatureEmail = "fabric@fusesource.com"
)

// BranchName is a relative branch name (i.e. 'master', '1.0') and supports
// transformation to the ReferenceName of the local branch ('refs/heads/...')
// or of the remote-tracking branch ('refs/remotes/<remote>/...').
type BranchName string

func (b BranchName) RefInLocal() plumbing.ReferenceName {
	return plumbing.ReferenceName(localBranchPrefix + string(b))
}

func (b BranchName) RefInRemote(remote string) plumbing.ReferenceName {
	return plumbing.ReferenceName(remoteBranchPrefix + remote + "/" + string(b))
}

// defaultFetchSpec maps every remote branch into the remote-tracking
// namespace: +refs/heads/*:refs/remotes/<remote>/*.
func defaultFetchSpec(remote string) config.RefSpec {
	return config.RefSpec(fmt.Sprintf("+%s*:%s%s/*", localBranchPrefix, remoteBranchPrefix, remote))
}

// branchPushSpec pushes a local branch to the same name on the remote.
func branchPushSpec(b BranchName) config.RefSpec {
	return config.RefSpec(fmt.Sprintf("%s:%s", b.RefInLocal(), b.RefInLocal()))
}

func getLocalBranchName(n plumbing.ReferenceName) (string, bool) {
	return trimOptionalPrefix(n.String(), localBranchPrefix)
}

func getRemoteBranchName(n plumbing.ReferenceName, remote string) (string, bool) {
	return trimOptionalPrefix(n.String(), remoteBranchPrefix+remote+"/")
}

func trimOptionalPrefix(s, prefix string) (string, bool) {
	if strings.HasPrefix(s, prefix) {
		return strings.TrimPrefix(s, prefix), true
	}
	return "", false
}
