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
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/apecloud/nodeops/apis/universe/v1alpha1"
	"github.com/apecloud/nodeops/pkg/controllerutil"
	"github.com/apecloud/nodeops/pkg/operations/planner"
	"github.com/apecloud/nodeops/pkg/task"
	"github.com/apecloud/nodeops/pkg/upgrade"
)

type resizeNodeOpsHandler struct{}

var _ OpsHandler = resizeNodeOpsHandler{}

func registerResizeNodeOps(opsMgr *OpsManager) {
	opsMgr.RegisterOps(v1alpha1.ResizeNodeTaskType, OpsBehaviour{
		QueueByTarget: true,
		LockUniverse:  true,
		OpsHandler:    resizeNodeOpsHandler{},
	})
}

// Validate checks the request and, when a catalogue is configured, that every
// desired instance type exists and can carry the volumes of its cluster.
func (r resizeNodeOpsHandler) Validate(reqCtx RequestCtx, opsRes *OpsResource) error {
	params := opsRes.Params
	if err := params.VerifyParams(opsRes.Universe); err != nil {
		return controllerutil.NewValidationError(err)
	}
	for _, c := range params.Clusters {
		current := opsRes.Universe.GetClusterByUUID(c.UUID)
		desired := v1alpha1.NormalizeIntent(c.UserIntent, current.UserIntent)
		numVolumes := 0
		if desired.DeviceInfo != nil {
			numVolumes = desired.DeviceInfo.NumVolumes
		} else if current.UserIntent.DeviceInfo != nil {
			numVolumes = current.UserIntent.DeviceInfo.NumVolumes
		}
		if err := opsRes.Catalogue.Validate(desired.InstanceType, numVolumes); err != nil {
			return controllerutil.NewValidationError(err)
		}
	}
	return nil
}

// Compose chains the clusters of the request one after another. Each cluster
// gets its prep groups, its rolling mutation and its finalize group.
func (r resizeNodeOpsHandler) Compose(reqCtx RequestCtx, opsRes *OpsResource) ([]*task.SubTaskGroup, error) {
	var groups []*task.SubTaskGroup
	for _, c := range opsRes.Params.Clusters {
		cluster := opsRes.Universe.GetClusterByUUID(c.UUID)
		if cluster == nil {
			return nil, controllerutil.NewNotFound("cluster %s not found in universe %s", c.UUID, opsRes.Universe.UUID)
		}
		clusterGroups, err := r.composeCluster(reqCtx, opsRes, cluster, c.UserIntent)
		if err != nil {
			return nil, err
		}
		groups = append(groups, clusterGroups...)
	}
	return groups, nil
}

func (r resizeNodeOpsHandler) composeCluster(reqCtx RequestCtx,
	opsRes *OpsResource,
	cluster *v1alpha1.Cluster,
	desired v1alpha1.UserIntent) ([]*task.SubTaskGroup, error) {
	var (
		groups   []*task.SubTaskGroup
		subTasks = opsRes.SubTasks
		nodes    = opsRes.Universe.GetNodesInCluster(cluster.UUID)
		plan     = planner.Plan(cluster, nodes, desired, cluster.UserIntent, opsRes.Params.ForceResizeNode)
	)
	reqCtx.Log.V(1).Info("planned cluster resize", "cluster", cluster.UUID,
		"instanceTypeChanging", plan.InstanceTypeChanging, "diskChanging", plan.DiskChanging,
		"nodes", plan.TouchedNodes(), "recovering", plan.NodesNeedingRecovery())

	for _, name := range plan.NodesNeedingPrep() {
		groups = append(groups, subTasks.UpdateMountedDisks(opsRes.Universe.GetNode(name)))
	}

	resize := func(batch []*v1alpha1.NodeDetails, _ sets.Set[v1alpha1.ServerType]) []*task.SubTaskGroup {
		var (
			batchGroups []*task.SubTaskGroup
			toResize    []*v1alpha1.NodeDetails
		)
		for _, n := range batch {
			if change, ok := plan.Get(n.NodeName); ok && change.NeedsDiskResize {
				toResize = append(toResize, n)
			}
		}
		if len(toResize) > 0 {
			batchGroups = append(batchGroups, subTasks.ResizeDisks(toResize, plan.Desired.DeviceInfo))
		}
		for _, n := range batch {
			if change, ok := plan.Get(n.NodeName); ok && change.NeedsInstanceTypeChange {
				batchGroups = append(batchGroups,
					subTasks.ChangeInstanceType(n, plan.Desired.InstanceType),
					subTasks.UpdateNodeDetails(n, plan.Desired.InstanceType))
			}
		}
		return batchGroups
	}
	uctx := upgrade.UpgradeContext{
		ReconfigureMaster: plan.Desired.ReplicationFactor > 1,
		RunBeforeStopping: false,
		MaxParallelNodes:  opsRes.MaxParallelNodes,
	}
	rolling, err := upgrade.NewEngine(subTasks).Plan(cluster, nodes, sets.New(plan.TouchedNodes()...), uctx, resize)
	if err != nil {
		return nil, err
	}
	groups = append(groups, rolling...)

	newDiskSize := 0
	if plan.DiskChanging {
		newDiskSize = plan.Desired.DeviceInfo.VolumeSize
	}
	groups = append(groups, subTasks.Finalize(opsRes.Universe, []string{cluster.UUID}, plan.Desired.InstanceType, newDiskSize))
	return groups, nil
}
