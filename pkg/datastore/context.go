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

import "strings"

// Context is the per-operation scratchpad: a builder on the caller side
// and a decision record on the serializer side. It is passed explicitly,
// never held in shared state.
type Context struct {
	requirePush   bool
	requireCommit bool
	pushBranch    string
	message       strings.Builder
}

func NewContext() *Context {
	return &Context{}
}

// RequirePush marks the operation as needing a push even without a commit.
func (c *Context) RequirePush() {
	c.requirePush = true
}

// RequireCommit marks the operation as needing a commit without adding to
// the commit message.
func (c *Context) RequireCommit() {
	c.requireCommit = true
}

// Commit appends to the accumulating commit message and marks the
// operation as needing a commit.
func (c *Context) Commit(message string) {
	if c.message.Len() > 0 {
		c.message.WriteString("\n")
	}
	c.message.WriteString(message)
	c.requireCommit = true
}

// SetPushBranch overrides the branch pushed at the end of the operation;
// without it the serializer pushes the branch checked out at commit time.
func (c *Context) SetPushBranch(branch string) {
	c.pushBranch = branch
}

func (c *Context) CommitMessage() string {
	return c.message.String()
}

func (c *Context) PushBranch() string {
	return c.pushBranch
}
