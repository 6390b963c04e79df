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

package operations

import (
	"context"

	"github.com/apecloud/nodeops/apis/universe/v1alpha1"
	"github.com/apecloud/nodeops/pkg/constant"
	"github.com/apecloud/nodeops/pkg/controllerutil"
	"github.com/apecloud/nodeops/pkg/task"
)

// Finalize returns the group that commits the new instance type, and the new
// disk size when newDiskSize > 0, into the intent of exactly the given clusters.
// The current intent is read again when the group runs, so re-running it is harmless.
func (f *SubTaskFactory) Finalize(universe *v1alpha1.Universe,
	clusterUUIDs []string,
	newInstanceType string,
	newDiskSize int) *task.SubTaskGroup {
	g := task.NewSubTaskGroup(constant.PersistResizeNodeTaskName, v1alpha1.PersistingIntentGroupType)
	for _, clusterUUID := range clusterUUIDs {
		clusterUUID := clusterUUID
		g.AddSubTask(&task.SubTask{
			Name: constant.PersistResizeNodeTaskName,
			Action: func(ctx context.Context) error {
				return f.persistClusterIntent(ctx, universe.UUID, clusterUUID, newInstanceType, newDiskSize)
			},
		})
	}
	return g
}

func (f *SubTaskFactory) persistClusterIntent(ctx context.Context,
	universeUUID, clusterUUID string,
	newInstanceType string,
	newDiskSize int) error {
	universe, err := f.store.GetUniverse(ctx, universeUUID)
	if err != nil {
		return err
	}
	cluster := universe.GetClusterByUUID(clusterUUID)
	if cluster == nil {
		return controllerutil.NewNotFound("cluster %s not found in universe %s", clusterUUID, universeUUID)
	}
	intent := cluster.UserIntent.DeepCopy()
	intent.InstanceType = newInstanceType
	if newDiskSize > 0 && intent.DeviceInfo != nil {
		intent.DeviceInfo.VolumeSize = newDiskSize
	}
	return f.store.PersistClusterIntent(ctx, universeUUID, clusterUUID, intent)
}
