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

// Package zk is the attribute-store glue: a thin client over the fabric
// coordination service holding the narrow class of metadata that must be
// globally visible without a git round-trip.
package zk

import (
	"strings"
	"time"

	gozk "github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
)

// Client is the hierarchical key-value surface the datastore consumes.
// The store is independently consistent; callers treat it as eventually
// consistent and never take the git operation mutex around calls.
type Client interface {
	Connected() bool
	Exists(path string) (bool, error)
	// GetData returns the node payload, or "" when the node is absent.
	GetData(path string) (string, error)
	// SetData writes the node payload, creating the node and its parents
	// when absent.
	SetData(path string, value string) error
	Children(path string) ([]string, error)
	Delete(path string) error
	Close()
}

type client struct {
	conn *gozk.Conn
}

// Connect dials the coordination service.
func Connect(servers []string, sessionTimeout time.Duration) (Client, error) {
	conn, _, err := gozk.Connect(servers, sessionTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to coordination service")
	}
	return &client{conn: conn}, nil
}

func (c *client) Connected() bool {
	state := c.conn.State()
	return state == gozk.StateConnected || state == gozk.StateHasSession
}

func (c *client) Exists(path string) (bool, error) {
	ok, _, err := c.conn.Exists(path)
	if err != nil {
		return false, errors.Wrapf(err, "checking %s", path)
	}
	return ok, nil
}

func (c *client) GetData(path string) (string, error) {
	data, _, err := c.conn.Get(path)
	if err != nil {
		if errors.Is(err, gozk.ErrNoNode) {
			return "", nil
		}
		return "", errors.Wrapf(err, "reading %s", path)
	}
	return string(data), nil
}

func (c *client) SetData(path string, value string) error {
	if err := c.ensurePath(path); err != nil {
		return err
	}
	if _, err := c.conn.Set(path, []byte(value), -1); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}

func (c *client) Children(path string) ([]string, error) {
	children, _, err := c.conn.Children(path)
	if err != nil {
		if errors.Is(err, gozk.ErrNoNode) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "listing %s", path)
	}
	return children, nil
}

func (c *client) Delete(path string) error {
	if err := c.conn.Delete(path, -1); err != nil && !errors.Is(err, gozk.ErrNoNode) {
		return errors.Wrapf(err, "deleting %s", path)
	}
	return nil
}

func (c *client) Close() {
	c.conn.Close()
}

func (c *client) ensurePath(path string) error {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	node := ""
	for _, segment := range segments {
		node += "/" + segment
		_, err := c.conn.Create(node, nil, 0, gozk.WorldACL(gozk.PermAll))
		if err != nil && !errors.Is(err, gozk.ErrNodeExists) {
			return errors.Wrapf(err, "creating %s", node)
		}
	}
	return nil
}
