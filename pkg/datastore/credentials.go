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

	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/fusesource/fabric-git/pkg/zk"
)

// Credentials is the (username, password) pair used for push and pull.
type Credentials struct {
	Username string
	Password string
}

// CredentialSource yields current credentials. Sources are consulted on
// every operation so rotation is automatic.
type CredentialSource interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// StaticCredentialSource serves operator-supplied credentials; it is used
// when both gitRemoteUser and gitRemotePassword are configured.
type StaticCredentialSource struct {
	Username string
	Password string
}

func (s StaticCredentialSource) Credentials(ctx context.Context) (Credentials, error) {
	return Credentials{Username: s.Username, Password: s.Password}, nil
}

// containerCredentialSource derives credentials from the coordination
// service: the container login plus a generated container token.
type containerCredentialSource struct {
	client    zk.Client
	container string
}

func (c containerCredentialSource) Credentials(ctx context.Context) (Credentials, error) {
	token, err := zk.GenerateContainerToken(c.client, c.container)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{Username: c.container, Password: token}, nil
}

// credentialSource picks the active source: external static credentials
// when configured, the coordination-derived source when an attribute store
// is bound, otherwise none (anonymous remote access).
func (s *DataStore) credentialSource() CredentialSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, hasUser := s.props[GitRemoteUserProperty]
	pass, hasPass := s.props[GitRemotePasswordProperty]
	if hasUser && hasPass {
		return StaticCredentialSource{Username: user, Password: pass}
	}
	if s.attributes != nil {
		return containerCredentialSource{client: s.attributes, container: s.container}
	}
	return nil
}

// credentials resolves the current auth method; failures propagate to the
// operation's caller.
func (s *DataStore) credentials(ctx context.Context) (transport.AuthMethod, error) {
	src := s.credentialSource()
	if src == nil {
		return nil, nil
	}
	creds, err := src.Credentials(ctx)
	if err != nil {
		return nil, err
	}
	return &githttp.BasicAuth{Username: creds.Username, Password: creds.Password}, nil
}
