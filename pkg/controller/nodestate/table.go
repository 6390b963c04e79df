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

package nodestate

import (
	"sync"

	"github.com/apecloud/nodeops/apis/universe/v1alpha1"
	"github.com/apecloud/nodeops/pkg/controllerutil"
)

// Table is the in-memory node table of one run, keyed by node name.
// Callers only ever see copies, every write goes through the table.
type Table struct {
	mu    sync.RWMutex
	nodes map[string]*v1alpha1.NodeDetails
}

func NewTable(nodes []*v1alpha1.NodeDetails) *Table {
	t := &Table{nodes: make(map[string]*v1alpha1.NodeDetails, len(nodes))}
	for _, n := range nodes {
		t.nodes[n.NodeName] = n.DeepCopy()
	}
	return t
}

// Get returns a copy of the node or nil.
func (t *Table) Get(name string) *v1alpha1.NodeDetails {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodes[name].DeepCopy()
}

// SetState moves the node to 'state' and returns the previous state.
func (t *Table) SetState(name string, state v1alpha1.NodeState) (v1alpha1.NodeState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[name]
	if !ok {
		return "", controllerutil.NewNotFound("node %s not found", name)
	}
	prev := n.State
	if !CanTransition(prev, state) {
		return prev, controllerutil.NewErrorf(controllerutil.ErrorTypeFatal,
			"node %s can not transit from %s to %s", name, prev, state)
	}
	n.State = state
	return prev, nil
}

// Update applies 'mutate' to the stored node under the table lock.
func (t *Table) Update(name string, mutate func(n *v1alpha1.NodeDetails)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[name]
	if !ok {
		return controllerutil.NewNotFound("node %s not found", name)
	}
	mutate(n)
	return nil
}
