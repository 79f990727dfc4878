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

import "fmt"

// Well-known attribute-store paths consumed by the fabric datastore.
const (
	// ConfigEnsembles holds the id of the current ensemble.
	ConfigEnsembles = "/fabric/configs/ensembles"

	// ConfigDefaultVersion holds the fabric-wide default version id.
	ConfigDefaultVersion = "/fabric/configs/default-version"

	// JVMOptionsPath holds the fabric-wide default JVM options.
	JVMOptionsPath = "/fabric/configs/default-jvm-options"

	// RequirementsJSONPath holds the fabric requirements JSON blob.
	RequirementsJSONPath = "/fabric/configs/org.fusesource.fabric.requirements.json"

	containerTokensPath = "/fabric/authentication/containers"
)

// ConfigVersion is the node carrying the attributes of a version.
func ConfigVersion(version string) string {
	return fmt.Sprintf("/fabric/configs/versions/%s", version)
}

// ConfigEnsemble is the node listing the containers of an ensemble.
func ConfigEnsemble(id string) string {
	return fmt.Sprintf("/fabric/configs/ensemble/%s", id)
}

// ContainerToken is the node carrying a container's auth token.
func ContainerToken(container string) string {
	return fmt.Sprintf("%s/%s", containerTokensPath, container)
}
