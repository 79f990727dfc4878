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
	"time"

	"k8s.io/klog/v2"

	"github.com/fusesource/fabric-git/pkg/git"
)

// startSyncLoop starts the single worker goroutine driving periodic pulls
// and queued tasks. A tick is structurally an ordinary write operation: it
// acquires the same mutex as every facade call.
func (s *DataStore) startSyncLoop() {
	s.mu.Lock()
	period := s.pullPeriod
	s.mu.Unlock()

	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go func() {
		defer close(s.doneCh)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case task := <-s.tasks:
				task()
			case <-ticker.C:
				klog.V(4).Info("performing timed pull")
				s.pull(context.Background())
			}
		}
	}()
}

// stopSyncLoop stops the worker, waiting up to grace for an in-flight
// task to complete.
func (s *DataStore) stopSyncLoop(grace time.Duration) {
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	select {
	case <-s.doneCh:
	case <-time.After(grace):
		klog.Warning("sync loop did not stop within the grace period")
	}
	s.stopCh = nil
}

// submit enqueues a task for the sync worker; tasks submitted while the
// queue is saturated are dropped with a warning rather than blocking the
// caller.
func (s *DataStore) submit(task func()) {
	select {
	case s.tasks <- task:
	default:
		klog.Warning("sync worker queue is full, dropping task")
	}
}

// pull runs an empty write operation: the serializer's prelude performs
// the pull and fires any required notifications. Errors are logged and
// the loop continues.
func (s *DataStore) pull(ctx context.Context) {
	err := s.WriteOperation(ctx, func(repo *git.Repository, gctx *Context) error {
		return nil
	})
	if err != nil {
		klog.Warningf("failed to perform a pull: %v", err)
	}
}

// gitListener receives repository events from the git service.
type gitListener struct {
	ds *DataStore
}

// OnRemoteURLChanged updates the remote configuration and pulls, on the
// sync worker. A URL already configured on the datastore wins over the
// announced one.
func (l *gitListener) OnRemoteURLChanged(url string) {
	s := l.ds

	s.mu.Lock()
	if s.remoteURL == "" {
		s.remoteURL = url
	}
	actualURL := s.remoteURL
	s.mu.Unlock()

	if actualURL == "" || !s.IsValid() {
		return
	}

	s.submit(func() {
		if err := s.assertValid(); err != nil {
			return
		}
		ctx := context.Background()
		err := s.WriteOperationWith(ctx, nil, func(repo *git.Repository, gctx *Context) error {
			current, err := repo.RemoteURL()
			if err != nil {
				return err
			}
			if current != actualURL {
				return repo.SetRemoteURL(actualURL)
			}
			return nil
		}, false, NewContext())
		if err != nil {
			klog.Warningf("failed to update remote URL to %s: %v", actualURL, err)
			return
		}
		s.pull(ctx)
	})
}

// OnReceivePack invalidates caches; no repository primitives are issued
// from the callback itself.
func (l *gitListener) OnReceivePack() {
	l.ds.clearCaches()
}
