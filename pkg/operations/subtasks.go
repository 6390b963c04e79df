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
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/apecloud/nodeops/apis/universe/v1alpha1"
	"github.com/apecloud/nodeops/pkg/constant"
	"github.com/apecloud/nodeops/pkg/controller/nodestate"
	"github.com/apecloud/nodeops/pkg/nodeagent"
	"github.com/apecloud/nodeops/pkg/store"
	"github.com/apecloud/nodeops/pkg/task"
	"github.com/apecloud/nodeops/pkg/upgrade"
)

// SubTaskFactory builds the subtask groups of a run. Actions read the node from
// the node table when they run, never from the snapshot the groups were built from.
type SubTaskFactory struct {
	universeUUID string
	store        store.Store
	table        *nodestate.Table
	nodeManager  nodeagent.NodeManager

	// healthCheckTimeout bounds WaitForServerReady.
	healthCheckTimeout time.Duration
}

var _ upgrade.NodeTasks = &SubTaskFactory{}

func NewSubTaskFactory(universeUUID string,
	st store.Store,
	table *nodestate.Table,
	nodeManager nodeagent.NodeManager,
	healthCheckTimeout time.Duration) *SubTaskFactory {
	return &SubTaskFactory{
		universeUUID:       universeUUID,
		store:              st,
		table:              table,
		nodeManager:        nodeManager,
		healthCheckTimeout: healthCheckTimeout,
	}
}

// node returns the current table entry of a node.
func (f *SubTaskFactory) node(name string) (*v1alpha1.NodeDetails, error) {
	n := f.table.Get(name)
	if n == nil {
		return nil, fmt.Errorf("node %s is not part of universe %s", name, f.universeUUID)
	}
	return n, nil
}

// perNode builds a group holding one subtask per node.
func (f *SubTaskFactory) perNode(groupName, subTaskName string,
	groupType v1alpha1.SubTaskGroupType,
	nodes []*v1alpha1.NodeDetails,
	action func(ctx context.Context, node *v1alpha1.NodeDetails) error) *task.SubTaskGroup {
	g := task.NewSubTaskGroup(groupName, groupType)
	for _, n := range nodes {
		name := n.NodeName
		g.AddSubTask(&task.SubTask{
			Name:     subTaskName,
			NodeName: name,
			Action: func(ctx context.Context) error {
				node, err := f.node(name)
				if err != nil {
					return err
				}
				return action(ctx, node)
			},
		})
	}
	return g
}

// saveNode applies mutate to the table entry and writes the result to the store.
func (f *SubTaskFactory) saveNode(ctx context.Context, name string, mutate func(n *v1alpha1.NodeDetails)) error {
	if err := f.table.Update(name, mutate); err != nil {
		return err
	}
	node, err := f.node(name)
	if err != nil {
		return err
	}
	return f.store.UpdateNodeDetails(ctx, f.universeUUID, node)
}

func (f *SubTaskFactory) UpdateMountedDisks(node *v1alpha1.NodeDetails) *task.SubTaskGroup {
	return f.perNode(constant.UpdateMountedDisksTaskName, constant.UpdateMountedDisksTaskName,
		v1alpha1.UpdatingMountedDisksGroupType, []*v1alpha1.NodeDetails{node},
		func(ctx context.Context, n *v1alpha1.NodeDetails) error {
			if err := f.nodeManager.UpdateMountedDisks(ctx, n); err != nil {
				return err
			}
			return f.saveNode(ctx, n.NodeName, func(n *v1alpha1.NodeDetails) {
				n.DisksAreMountedByUUID = true
			})
		})
}

// ResizeDisks grows the volumes of the nodes and records the new device info of each.
func (f *SubTaskFactory) ResizeDisks(nodes []*v1alpha1.NodeDetails, deviceInfo *v1alpha1.DeviceInfo) *task.SubTaskGroup {
	return f.perNode(fmt.Sprintf("%s(%dGB)", constant.ResizeDiskTaskName, deviceInfo.VolumeSize), constant.ResizeDiskTaskName,
		v1alpha1.ResizingDiskGroupType, nodes,
		func(ctx context.Context, n *v1alpha1.NodeDetails) error {
			if err := f.nodeManager.ResizeDisk(ctx, n, deviceInfo); err != nil {
				return err
			}
			return f.saveNode(ctx, n.NodeName, func(n *v1alpha1.NodeDetails) {
				n.DeviceInfo = deviceInfo.DeepCopy()
			})
		})
}

func (f *SubTaskFactory) ChangeInstanceType(node *v1alpha1.NodeDetails, instanceType string) *task.SubTaskGroup {
	return f.perNode(fmt.Sprintf("%s(%s)", constant.ChangeInstanceTypeTaskName, instanceType), constant.ChangeInstanceTypeTaskName,
		v1alpha1.ChangeInstanceTypeGroupType, []*v1alpha1.NodeDetails{node},
		func(ctx context.Context, n *v1alpha1.NodeDetails) error {
			return f.nodeManager.ChangeInstanceType(ctx, n, instanceType)
		})
}

// UpdateNodeDetails records the instance type a node was changed to.
func (f *SubTaskFactory) UpdateNodeDetails(node *v1alpha1.NodeDetails, instanceType string) *task.SubTaskGroup {
	return f.perNode(fmt.Sprintf("%s(%s)", constant.UpdateNodeDetailsTaskName, instanceType), constant.UpdateNodeDetailsTaskName,
		v1alpha1.ChangeInstanceTypeGroupType, []*v1alpha1.NodeDetails{node},
		func(ctx context.Context, n *v1alpha1.NodeDetails) error {
			return f.saveNode(ctx, n.NodeName, func(n *v1alpha1.NodeDetails) {
				n.InstanceType = instanceType
			})
		})
}

func (f *SubTaskFactory) SetNodeState(nodes []*v1alpha1.NodeDetails, state v1alpha1.NodeState) *task.SubTaskGroup {
	return f.perNode(fmt.Sprintf("%s(%s)", constant.SetNodeStateTaskName, state), constant.SetNodeStateTaskName,
		v1alpha1.UpdatingNodeStateGroupType, nodes,
		func(ctx context.Context, n *v1alpha1.NodeDetails) error {
			if _, err := f.table.SetState(n.NodeName, state); err != nil {
				return err
			}
			return f.store.SetNodeState(ctx, f.universeUUID, n.NodeName, state)
		})
}

func (f *SubTaskFactory) StopServers(nodes []*v1alpha1.NodeDetails, serverType v1alpha1.ServerType) *task.SubTaskGroup {
	return f.perNode(fmt.Sprintf("%s(%s)", constant.StopServerTaskName, serverType), constant.StopServerTaskName,
		v1alpha1.StoppingNodeProcessesGroupType, nodes,
		func(ctx context.Context, n *v1alpha1.NodeDetails) error {
			return f.nodeManager.StopServer(ctx, n, serverType)
		})
}

func (f *SubTaskFactory) StartServers(nodes []*v1alpha1.NodeDetails, serverType v1alpha1.ServerType) *task.SubTaskGroup {
	return f.perNode(fmt.Sprintf("%s(%s)", constant.StartServerTaskName, serverType), constant.StartServerTaskName,
		v1alpha1.StartingNodeProcessesGroupType, nodes,
		func(ctx context.Context, n *v1alpha1.NodeDetails) error {
			return f.nodeManager.StartServer(ctx, n, serverType)
		})
}

func (f *SubTaskFactory) WaitForServersReady(nodes []*v1alpha1.NodeDetails, serverType v1alpha1.ServerType) *task.SubTaskGroup {
	g := f.perNode(fmt.Sprintf("%s(%s)", constant.WaitForServerReadyTaskName, serverType), constant.WaitForServerReadyTaskName,
		v1alpha1.WaitingForServerGroupType, nodes,
		func(ctx context.Context, n *v1alpha1.NodeDetails) error {
			return f.nodeManager.WaitForServerReady(ctx, n, serverType)
		})
	for _, st := range g.SubTasks {
		st.Timeout = f.healthCheckTimeout
	}
	return g
}

func (f *SubTaskFactory) StepDownMasterLeader(node *v1alpha1.NodeDetails) *task.SubTaskGroup {
	return f.perNode(constant.StepDownMasterLeaderTaskName, constant.StepDownMasterLeaderTaskName,
		v1alpha1.ChangeMasterConfigGroupType, []*v1alpha1.NodeDetails{node},
		func(ctx context.Context, n *v1alpha1.NodeDetails) error {
			return f.nodeManager.StepDownMasterLeader(ctx, n)
		})
}

// ChangeMasterConfig changes the master membership of a node. The stored
// MasterActive flag is left alone, an interrupted run must see the node as a
// voter again to add it back.
func (f *SubTaskFactory) ChangeMasterConfig(node *v1alpha1.NodeDetails, op nodeagent.MasterConfigOp) *task.SubTaskGroup {
	return f.perNode(fmt.Sprintf("%s(%s)", constant.ChangeMasterConfigTaskName, op), constant.ChangeMasterConfigTaskName,
		v1alpha1.ChangeMasterConfigGroupType, []*v1alpha1.NodeDetails{node},
		func(ctx context.Context, n *v1alpha1.NodeDetails) error {
			return f.nodeManager.ChangeMasterConfig(ctx, n, op)
		})
}

// setUniverseUpdating wraps the update-in-progress flag write as an error the run can report.
func (f *SubTaskFactory) setUniverseUpdating(ctx context.Context, updating bool) error {
	return errors.Wrapf(f.store.SetUniverseUpdating(ctx, f.universeUUID, updating),
		"failed to set update-in-progress of universe %s to %v", f.universeUUID, updating)
}
