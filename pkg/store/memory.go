/*
Copyright (C) 2022-2024 ApeCloud Co., Ltd

This file is part of KubeBlocks project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <http://www.gnu.org/licenses/>.
*/

package store

import (
	"context"
	"sort"
	"sync"

	"github.com/apecloud/nodeops/apis/universe/v1alpha1"
	"github.com/apecloud/nodeops/pkg/controllerutil"
)

type memoryStore struct {
	mu        sync.RWMutex
	universes map[string]*v1alpha1.Universe
	tasks     map[string]*v1alpha1.TaskRecord
}

var _ Store = &memoryStore{}

// NewMemoryStore returns a store that lives as long as the process.
func NewMemoryStore(universes ...*v1alpha1.Universe) Store {
	s := &memoryStore{
		universes: map[string]*v1alpha1.Universe{},
		tasks:     map[string]*v1alpha1.TaskRecord{},
	}
	for _, u := range universes {
		s.universes[u.UUID] = u.DeepCopy()
	}
	return s
}

func (s *memoryStore) GetUniverse(_ context.Context, universeUUID string) (*v1alpha1.Universe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.universes[universeUUID]
	if !ok {
		return nil, controllerutil.NewNotFound("universe %s not found", universeUUID)
	}
	return u.DeepCopy(), nil
}

func (s *memoryStore) PutUniverse(_ context.Context, universe *v1alpha1.Universe) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.universes[universe.UUID] = universe.DeepCopy()
	return nil
}

// modify runs f against the stored universe and bumps its version.
func (s *memoryStore) modify(universeUUID string, f func(u *v1alpha1.Universe) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.universes[universeUUID]
	if !ok {
		return controllerutil.NewNotFound("universe %s not found", universeUUID)
	}
	if err := f(u); err != nil {
		return err
	}
	u.Version++
	return nil
}

func (s *memoryStore) SetUniverseUpdating(_ context.Context, universeUUID string, updating bool) error {
	return s.modify(universeUUID, func(u *v1alpha1.Universe) error {
		u.UpdateInProgress = updating
		return nil
	})
}

func (s *memoryStore) UpdateNodeDetails(_ context.Context, universeUUID string, node *v1alpha1.NodeDetails) error {
	return s.modify(universeUUID, func(u *v1alpha1.Universe) error {
		for i, n := range u.Nodes {
			if n.NodeName == node.NodeName {
				u.Nodes[i] = node.DeepCopy()
				return nil
			}
		}
		u.Nodes = append(u.Nodes, node.DeepCopy())
		return nil
	})
}

func (s *memoryStore) SetNodeState(_ context.Context, universeUUID, nodeName string, state v1alpha1.NodeState) error {
	return s.modify(universeUUID, func(u *v1alpha1.Universe) error {
		n := u.GetNode(nodeName)
		if n == nil {
			return controllerutil.NewNotFound("node %s not found in universe %s", nodeName, universeUUID)
		}
		n.State = state
		return nil
	})
}

func (s *memoryStore) PersistClusterIntent(_ context.Context, universeUUID, clusterUUID string, intent v1alpha1.UserIntent) error {
	return s.modify(universeUUID, func(u *v1alpha1.Universe) error {
		c := u.GetClusterByUUID(clusterUUID)
		if c == nil {
			return controllerutil.NewNotFound("cluster %s not found in universe %s", clusterUUID, universeUUID)
		}
		c.UserIntent = intent.DeepCopy()
		return nil
	})
}

func (s *memoryStore) CreateTaskRecord(_ context.Context, record *v1alpha1.TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[record.UUID]; ok {
		return controllerutil.NewErrorf(controllerutil.ErrorTypePersistenceFailed, "task %s already exists", record.UUID)
	}
	r := *record
	s.tasks[record.UUID] = &r
	return nil
}

func (s *memoryStore) UpdateTaskRecord(_ context.Context, record *v1alpha1.TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[record.UUID]; !ok {
		return controllerutil.NewNotFound("task %s not found", record.UUID)
	}
	r := *record
	s.tasks[record.UUID] = &r
	return nil
}

func (s *memoryStore) GetTaskRecord(_ context.Context, taskUUID string) (*v1alpha1.TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.tasks[taskUUID]
	if !ok {
		return nil, controllerutil.NewNotFound("task %s not found", taskUUID)
	}
	out := *r
	return &out, nil
}

func (s *memoryStore) FindConflictingTasks(_ context.Context, customerUUID, targetUUID string, taskTypes ...v1alpha1.TaskType) ([]*v1alpha1.TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var records []*v1alpha1.TaskRecord
	for _, r := range s.tasks {
		if nonTerminal(r, customerUUID, targetUUID, taskTypes) {
			out := *r
			records = append(records, &out)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreateTime.Before(records[j].CreateTime)
	})
	return records, nil
}

func (s *memoryStore) Close() error {
	return nil
}
