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
	"golang.org/x/exp/slices"

	"github.com/apecloud/nodeops/apis/universe/v1alpha1"
)

// transitions lists the states a node may move to from each state.
// Staying in the same state is always allowed so that a retried subtask is a no-op.
var transitions = map[v1alpha1.NodeState][]v1alpha1.NodeState{
	v1alpha1.NodeStateLive:     {v1alpha1.NodeStateResizing, v1alpha1.NodeStateStopped, v1alpha1.NodeStateUpdating},
	v1alpha1.NodeStateResizing: {v1alpha1.NodeStateStopped, v1alpha1.NodeStateLive},
	v1alpha1.NodeStateStopped:  {v1alpha1.NodeStateResizing, v1alpha1.NodeStateLive},
	v1alpha1.NodeStateUpdating: {v1alpha1.NodeStateResizing, v1alpha1.NodeStateStopped, v1alpha1.NodeStateLive},
}

// CanTransition reports whether a node in state 'from' may be moved to 'to'.
func CanTransition(from, to v1alpha1.NodeState) bool {
	if from == to {
		_, ok := transitions[from]
		return ok
	}
	return slices.Contains(transitions[from], to)
}

// IsTransient reports whether the state is only set while a run owns the node.
// A node found in such a state was left behind by an interrupted run.
func IsTransient(state v1alpha1.NodeState) bool {
	return state == v1alpha1.NodeStateResizing || state == v1alpha1.NodeStateUpdating
}
