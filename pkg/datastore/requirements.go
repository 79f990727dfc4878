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

import "encoding/json"

// FabricRequirements is the fabric-wide requirements document stored as a
// JSON blob in the attribute store.
type FabricRequirements struct {
	ProfileRequirements []ProfileRequirement `json:"profileRequirements,omitempty"`
	Version             string               `json:"version,omitempty"`
}

// ProfileRequirement states how many instances of a profile the fabric
// should run and which profiles it depends on.
type ProfileRequirement struct {
	Profile          string   `json:"profile"`
	MinimumInstances *int     `json:"minimumInstances,omitempty"`
	MaximumInstances *int     `json:"maximumInstances,omitempty"`
	Dependencies     []string `json:"dependencies,omitempty"`
}

// IsEmpty reports whether the requirement carries no constraints.
func (p *ProfileRequirement) IsEmpty() bool {
	return (p.MinimumInstances == nil || *p.MinimumInstances == 0) &&
		p.MaximumInstances == nil &&
		len(p.Dependencies) == 0
}

// RemoveEmptyRequirements drops requirements that carry no constraints;
// called before persisting.
func (r *FabricRequirements) RemoveEmptyRequirements() {
	kept := r.ProfileRequirements[:0]
	for i := range r.ProfileRequirements {
		if !r.ProfileRequirements[i].IsEmpty() {
			kept = append(kept, r.ProfileRequirements[i])
		}
	}
	r.ProfileRequirements = kept
}

func requirementsFromJSON(data string) (*FabricRequirements, error) {
	r := &FabricRequirements{}
	if data == "" {
		return r, nil
	}
	if err := json.Unmarshal([]byte(data), r); err != nil {
		return nil, err
	}
	return r, nil
}

func requirementsToJSON(r *FabricRequirements) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
