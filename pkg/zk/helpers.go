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

package zk

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/pkg/errors"

	"github.com/fusesource/fabric-git/internal/properties"
)

// GetPropertiesAsMap reads a node holding a properties payload. An absent
// node yields an empty map.
func GetPropertiesAsMap(c Client, path string) (map[string]string, error) {
	data, err := c.GetData(path)
	if err != nil {
		return nil, err
	}
	return properties.Parse([]byte(data))
}

// SetPropertiesAsMap writes a key-value map as a properties payload.
func SetPropertiesAsMap(c Client, path string, m map[string]string) error {
	data, err := properties.Marshal(m)
	if err != nil {
		return errors.Wrapf(err, "encoding properties for %s", path)
	}
	return c.SetData(path, string(data))
}

// GenerateContainerToken returns the container's auth token, minting and
// storing a fresh one when none exists yet.
func GenerateContainerToken(c Client, container string) (string, error) {
	path := ContainerToken(container)
	token, err := c.GetData(path)
	if err != nil {
		return "", err
	}
	if token != "" {
		return token, nil
	}

	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", errors.Wrap(err, "generating container token")
	}
	token = hex.EncodeToString(raw)
	if err := c.SetData(path, token); err != nil {
		return "", err
	}
	return token, nil
}
