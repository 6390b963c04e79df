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
	"fmt"

	"github.com/apecloud/nodeops/apis/universe/v1alpha1"
	"github.com/apecloud/nodeops/pkg/controllerutil"
)

// Store is the metadata store of universes, their nodes and the task records of runs.
// Reads return copies, writes are durable when they return.
type Store interface {
	// GetUniverse returns a NotFound error when the universe does not exist.
	GetUniverse(ctx context.Context, universeUUID string) (*v1alpha1.Universe, error)

	// PutUniverse creates or replaces a universe with its nodes.
	PutUniverse(ctx context.Context, universe *v1alpha1.Universe) error

	// SetUniverseUpdating sets the update-in-progress flag of the universe.
	SetUniverseUpdating(ctx context.Context, universeUUID string, updating bool) error

	// UpdateNodeDetails replaces the stored details of one node.
	UpdateNodeDetails(ctx context.Context, universeUUID string, node *v1alpha1.NodeDetails) error

	SetNodeState(ctx context.Context, universeUUID, nodeName string, state v1alpha1.NodeState) error

	// PersistClusterIntent replaces the user intent of one cluster of the universe.
	PersistClusterIntent(ctx context.Context, universeUUID, clusterUUID string, intent v1alpha1.UserIntent) error

	CreateTaskRecord(ctx context.Context, record *v1alpha1.TaskRecord) error
	UpdateTaskRecord(ctx context.Context, record *v1alpha1.TaskRecord) error
	GetTaskRecord(ctx context.Context, taskUUID string) (*v1alpha1.TaskRecord, error)

	// FindConflictingTasks returns the non-terminal task records of the customer against the target,
	// restricted to taskTypes when any is given.
	FindConflictingTasks(ctx context.Context, customerUUID, targetUUID string, taskTypes ...v1alpha1.TaskType) ([]*v1alpha1.TaskRecord, error)

	Close() error
}

func persistenceError(err error, format string, a ...any) error {
	return controllerutil.NewErrorf(controllerutil.ErrorTypePersistenceFailed, "%s: %s", fmt.Sprintf(format, a...), err.Error())
}

func nonTerminal(record *v1alpha1.TaskRecord, customerUUID, targetUUID string, taskTypes []v1alpha1.TaskType) bool {
	if record.CustomerUUID != customerUUID || record.TargetUUID != targetUUID || record.Phase.IsTerminal() {
		return false
	}
	if len(taskTypes) == 0 {
		return true
	}
	for _, t := range taskTypes {
		if record.TaskType == t {
			return true
		}
	}
	return false
}
