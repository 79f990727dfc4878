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
	"sync"

	"k8s.io/klog/v2"
)

// Listener receives repository-level events. Implementations are bound by
// the consumer at activation; the service never calls back into a concrete
// consumer type.
type Listener interface {
	// OnRemoteURLChanged fires when the remote URL is reconfigured.
	OnRemoteURLChanged(url string)
	// OnReceivePack fires when an external push lands in the repository.
	OnReceivePack()
}

// Service owns the process-wide Repository and fans repository events out
// to registered listeners.
type Service struct {
	repo *Repository

	mu        sync.Mutex
	listeners []Listener
	remoteURL string
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// Repository returns the shared repository handle.
func (s *Service) Repository() *Repository {
	return s.repo
}

func (s *Service) AddListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Service) RemoveListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, registered := range s.listeners {
		if registered == l {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

// RemoteURL returns the last URL announced through SetRemoteURL.
func (s *Service) RemoteURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteURL
}

// SetRemoteURL records the upstream URL and announces the change to all
// listeners. The repository config itself is updated by the consumer, under
// its own serialization.
func (s *Service) SetRemoteURL(url string) {
	s.mu.Lock()
	s.remoteURL = url
	listeners := s.snapshotLocked()
	s.mu.Unlock()

	klog.V(2).Infof("git remote URL changed to %q", url)
	for _, l := range listeners {
		l.OnRemoteURLChanged(url)
	}
}

// NotifyReceivePack announces that an external push landed in the
// repository.
func (s *Service) NotifyReceivePack() {
	s.mu.Lock()
	listeners := s.snapshotLocked()
	s.mu.Unlock()

	for _, l := range listeners {
		l.OnReceivePack()
	}
}

func (s *Service) snapshotLocked() []Listener {
	out := make([]Listener, len(s.listeners))
	copy(out, s.listeners)
	return out
}
