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

import "errors"

var (
	// ErrNotActive is returned by every operation before activation or
	// after deactivation.
	ErrNotActive = errors.New("datastore is not active")

	// ErrNoGitService is returned while the git service collaborator is
	// not bound.
	ErrNoGitService = errors.New("git service is not bound")

	// ErrNoAttributeStore is returned by attribute-store operations while
	// no coordination client is bound.
	ErrNoAttributeStore = errors.New("attribute store is not bound")

	// ErrNotImplemented marks declared-unsupported operations.
	ErrNotImplemented = errors.New("not implemented")
)

// Error is the domain failure wrapper every serializer operation launders
// its errors into.
type Error struct {
	Err error
}

func (e *Error) Error() string {
	return "fabric datastore: " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// launder wraps an error into *Error, leaving nil and already-wrapped
// errors untouched.
func launder(err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return &Error{Err: err}
}
