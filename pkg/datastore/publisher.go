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
	"sync"

	"k8s.io/klog/v2"
)

// ChangeListener observes datastore changes. Listeners are invoked on the
// mutating operation's goroutine in registration order and must either
// return quickly or dispatch to their own worker; blocking stalls the
// operation serializer.
type ChangeListener interface {
	DataStoreChanged()
}

type publisher struct {
	mu        sync.Mutex
	listeners []ChangeListener
}

func (p *publisher) add(l ChangeListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, l)
}

func (p *publisher) remove(l ChangeListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, registered := range p.listeners {
		if registered == l {
			p.listeners = append(p.listeners[:i], p.listeners[i+1:]...)
			return
		}
	}
}

func (p *publisher) fire() {
	p.mu.Lock()
	listeners := make([]ChangeListener, len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.Unlock()

	klog.V(2).Info("firing change notifications")
	for _, l := range listeners {
		l.DataStoreChanged()
	}
}

// AddListener registers a change listener; it may be called concurrently
// with operations and with fire-outs.
func (s *DataStore) AddListener(l ChangeListener) {
	s.callbacks.add(l)
}

func (s *DataStore) RemoveListener(l ChangeListener) {
	s.callbacks.remove(l)
}

// fireChangeNotifications clears caches and invokes all listeners.
func (s *DataStore) fireChangeNotifications() {
	s.clearCaches()
	s.callbacks.fire()
}

// clearCaches drops derived state; the next read recomputes it.
func (s *DataStore) clearCaches() {
	s.versionsCache.Store(nil)
}
