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

// Package datastore is a git-backed fabric configuration store: profile
// configuration versions live in a branch per version and a directory per
// profile. All repository interaction is serialized by a single exclusive
// mutex; a periodic sync loop converges the local repository toward the
// remote; a narrow class of metadata lives in the attribute store instead
// of the repository.
package datastore

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"k8s.io/klog/v2"

	"github.com/fusesource/fabric-git/pkg/git"
	"github.com/fusesource/fabric-git/pkg/zk"
)

var tracer = otel.Tracer("fabric-datastore")

// TypeID identifies this datastore plugin.
const TypeID = "git"

// Recognized configuration keys; everything else is dropped at the setter
// boundary.
const (
	DataStoreTypeProperty     = "dataStoreType"
	GitRemoteURLProperty      = "gitRemoteUrl"
	GitRemoteUserProperty     = "gitRemoteUser"
	GitRemotePasswordProperty = "gitRemotePassword"
	GitPullPeriodProperty     = "gitPullPeriod"
)

var supportedConfiguration = []string{
	DataStoreTypeProperty,
	GitRemoteURLProperty,
	GitRemoteUserProperty,
	GitRemotePasswordProperty,
	GitPullPeriodProperty,
}

const defaultPullPeriod = 1000 * time.Millisecond

// DataStore is the git-backed fabric configuration store.
type DataStore struct {
	// opMu serializes every repository interaction, reads included: even
	// read operations move HEAD via checkout.
	opMu sync.Mutex

	// mu guards the configuration and collaborator references below.
	mu         sync.Mutex
	svc        *git.Service
	attributes zk.Client
	props      map[string]string
	remoteURL  string
	pullPeriod time.Duration
	container  string

	active    atomic.Bool
	callbacks publisher

	versionsCache atomic.Pointer[[]string]

	listener *gitListener
	tasks    chan func()
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates an inactive datastore. Bind collaborators and call Activate
// before use.
func New() *DataStore {
	s := &DataStore{
		props:      map[string]string{},
		pullPeriod: defaultPullPeriod,
		container:  "fabric",
		tasks:      make(chan func(), 64),
	}
	s.listener = &gitListener{ds: s}
	return s
}

// Type returns the datastore plugin type.
func (s *DataStore) Type() string {
	return TypeID
}

// BindGitService installs the repository-owning collaborator. It may be
// absent during early startup.
func (s *DataStore) BindGitService(svc *git.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.svc = svc
}

func (s *DataStore) UnbindGitService(svc *git.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.svc == svc {
		s.svc = nil
	}
}

// BindAttributeStore installs the coordination client.
func (s *DataStore) BindAttributeStore(c zk.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attributes = c
}

func (s *DataStore) UnbindAttributeStore(c zk.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attributes == c {
		s.attributes = nil
	}
}

// SetContainerName sets the identity used for coordination-derived
// credentials.
func (s *DataStore) SetContainerName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.container = name
}

// SetDataStoreProperties installs the configuration, dropping unrecognized
// keys.
func (s *DataStore) SetDataStoreProperties(props map[string]string) {
	filtered := map[string]string{}
	for key, value := range props {
		for _, supported := range supportedConfiguration {
			if key == supported {
				filtered[key] = value
				break
			}
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.props = filtered
}

// IsValid reports whether the datastore is active.
func (s *DataStore) IsValid() bool {
	return s.active.Load()
}

func (s *DataStore) assertValid() error {
	if !s.active.Load() {
		return ErrNotActive
	}
	return nil
}

// gitService yields the bound git service or ErrNoGitService while the
// optional collaborator is absent.
func (s *DataStore) gitService() (*git.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.svc == nil {
		return nil, ErrNoGitService
	}
	return s.svc, nil
}

func (s *DataStore) attributeStore() (zk.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attributes == nil {
		return nil, ErrNoAttributeStore
	}
	return s.attributes, nil
}

// Activate validates configuration, registers the git listener and starts
// the sync loop.
func (s *DataStore) Activate(ctx context.Context) error {
	s.mu.Lock()
	if period, ok := s.props[GitPullPeriodProperty]; ok {
		millis, err := strconv.ParseInt(period, 10, 64)
		if err != nil {
			s.mu.Unlock()
			return launder(err)
		}
		s.pullPeriod = time.Duration(millis) * time.Millisecond
	}
	if url, ok := s.props[GitRemoteURLProperty]; ok {
		s.remoteURL = url
	}
	remoteURL := s.remoteURL
	svc := s.svc
	s.mu.Unlock()

	s.active.Store(true)
	s.startSyncLoop()

	if svc != nil {
		svc.AddListener(s.listener)
	}
	if remoteURL != "" {
		s.listener.OnRemoteURLChanged(remoteURL)
	} else if svc != nil {
		if url := svc.RemoteURL(); url != "" {
			s.listener.OnRemoteURLChanged(url)
		}
		s.pull(ctx)
	}

	klog.Infof("starting to pull from the remote repository every %v", s.pullPeriod)
	return nil
}

// Deactivate stops the sync loop, allowing up to 5 s for an in-flight
// operation to drain.
func (s *DataStore) Deactivate() {
	s.active.Store(false)
	s.mu.Lock()
	svc := s.svc
	s.mu.Unlock()
	if svc != nil {
		svc.RemoveListener(s.listener)
	}
	s.stopSyncLoop(5 * time.Second)
}

// VersionAttributes reads the attribute map held for a version in the
// attribute store, not in the branch itself.
func (s *DataStore) VersionAttributes(version string) (map[string]string, error) {
	if err := s.assertValid(); err != nil {
		return nil, err
	}
	c, err := s.attributeStore()
	if err != nil {
		return nil, launder(err)
	}
	attrs, err := zk.GetPropertiesAsMap(c, zk.ConfigVersion(version))
	if err != nil {
		return nil, launder(err)
	}
	return attrs, nil
}

// SetVersionAttribute sets or, with an empty value, removes one version
// attribute.
func (s *DataStore) SetVersionAttribute(version, key, value string) error {
	if err := s.assertValid(); err != nil {
		return err
	}
	c, err := s.attributeStore()
	if err != nil {
		return launder(err)
	}
	attrs, err := zk.GetPropertiesAsMap(c, zk.ConfigVersion(version))
	if err != nil {
		return launder(err)
	}
	if value != "" {
		attrs[key] = value
	} else {
		delete(attrs, key)
	}
	if err := zk.SetPropertiesAsMap(c, zk.ConfigVersion(version), attrs); err != nil {
		return launder(err)
	}
	return nil
}

// DefaultJVMOptions tolerates a disconnected coordinator by returning "".
func (s *DataStore) DefaultJVMOptions() (string, error) {
	if err := s.assertValid(); err != nil {
		return "", err
	}
	c, err := s.attributeStore()
	if err != nil {
		return "", launder(err)
	}
	if !c.Connected() {
		return "", nil
	}
	exists, err := c.Exists(zk.JVMOptionsPath)
	if err != nil {
		return "", launder(err)
	}
	if !exists {
		return "", nil
	}
	opts, err := c.GetData(zk.JVMOptionsPath)
	if err != nil {
		return "", launder(err)
	}
	return opts, nil
}

func (s *DataStore) SetDefaultJVMOptions(jvmOptions string) error {
	if err := s.assertValid(); err != nil {
		return err
	}
	c, err := s.attributeStore()
	if err != nil {
		return launder(err)
	}
	if err := c.SetData(zk.JVMOptionsPath, jvmOptions); err != nil {
		return launder(err)
	}
	return nil
}

// Requirements reads the fabric requirements JSON; an absent node yields
// empty requirements.
func (s *DataStore) Requirements() (*FabricRequirements, error) {
	if err := s.assertValid(); err != nil {
		return nil, err
	}
	c, err := s.attributeStore()
	if err != nil {
		return nil, launder(err)
	}
	data, err := c.GetData(zk.RequirementsJSONPath)
	if err != nil {
		return nil, launder(err)
	}
	reqs, err := requirementsFromJSON(data)
	if err != nil {
		return nil, launder(err)
	}
	return reqs, nil
}

func (s *DataStore) SetRequirements(reqs *FabricRequirements) error {
	if err := s.assertValid(); err != nil {
		return err
	}
	c, err := s.attributeStore()
	if err != nil {
		return launder(err)
	}
	reqs.RemoveEmptyRequirements()
	data, err := requirementsToJSON(reqs)
	if err != nil {
		return launder(err)
	}
	if err := c.SetData(zk.RequirementsJSONPath, data); err != nil {
		return launder(err)
	}
	return nil
}

// ClusterID returns the id of the current ensemble.
func (s *DataStore) ClusterID() (string, error) {
	if err := s.assertValid(); err != nil {
		return "", err
	}
	c, err := s.attributeStore()
	if err != nil {
		return "", launder(err)
	}
	id, err := c.GetData(zk.ConfigEnsembles)
	if err != nil {
		return "", launder(err)
	}
	return id, nil
}

// EnsembleContainers lists the containers of the coordination quorum.
func (s *DataStore) EnsembleContainers() ([]string, error) {
	id, err := s.ClusterID()
	if err != nil {
		return nil, err
	}
	c, err := s.attributeStore()
	if err != nil {
		return nil, launder(err)
	}
	ensemble, err := c.GetData(zk.ConfigEnsemble(id))
	if err != nil {
		return nil, launder(err)
	}
	var containers []string
	for _, name := range strings.Split(strings.TrimSpace(ensemble), ",") {
		if name != "" {
			containers = append(containers, name)
		}
	}
	return containers, nil
}
