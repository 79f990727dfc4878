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

// Package git wraps go-git with the repository primitives the fabric
// datastore composes: a working-copy-owning Repository handle and a
// Service that fans repository events out to listeners. The handle does
// no locking of its own; the operation serializer in pkg/datastore is the
// sole gatekeeper of the shared working copy.
package git
