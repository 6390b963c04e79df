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

// Package planner decides which nodes of a cluster a resize has to touch.
// It is pure: the same snapshot and request always give the same plan.
package planner

import (
	"golang.org/x/exp/slices"

	"github.com/apecloud/nodeops/apis/universe/v1alpha1"
	"github.com/apecloud/nodeops/pkg/controller/nodestate"
)

// NodeChange is the work planned for one node.
type NodeChange struct {
	NodeName string

	NeedsInstanceTypeChange bool
	NeedsDiskResize         bool

	// NeedsPrep is set when the node data disks must be remounted by UUID before any resize.
	NeedsPrep bool

	// NeedsRecovery is set when an interrupted run left the node in a transient
	// state. The node is rolled again so its processes, master membership and
	// state are restored even when nothing is left to mutate.
	NeedsRecovery bool
}

// ChangePlan is the work planned for one cluster, only touched nodes are listed.
// A node is touched when it has to be mutated or when it has to be recovered.
type ChangePlan struct {
	ClusterUUID string

	InstanceTypeChanging bool
	DiskChanging         bool

	// Desired is the normalized intent the cluster ends up with.
	Desired v1alpha1.UserIntent

	// Nodes are sorted by name.
	Nodes []NodeChange
}

// Plan computes the change plan of a cluster from its node snapshot and the current and desired intent.
func Plan(cluster *v1alpha1.Cluster, nodes []*v1alpha1.NodeDetails, desired, current v1alpha1.UserIntent, force bool) ChangePlan {
	desired = v1alpha1.NormalizeIntent(desired, current)
	plan := ChangePlan{
		ClusterUUID:          cluster.UUID,
		Desired:              desired,
		InstanceTypeChanging: desired.InstanceType != current.InstanceType || force,
		DiskChanging:         desired.DeviceInfo != nil && (force || current.DeviceInfo == nil || desired.DeviceInfo.VolumeSize != current.DeviceInfo.VolumeSize),
	}

	sorted := make([]*v1alpha1.NodeDetails, 0, len(nodes))
	for _, n := range nodes {
		if n.PlacementUUID == cluster.UUID {
			sorted = append(sorted, n)
		}
	}
	slices.SortFunc(sorted, func(a, b *v1alpha1.NodeDetails) bool {
		return a.NodeName < b.NodeName
	})

	for _, n := range sorted {
		change := NodeChange{
			NodeName:                n.NodeName,
			NeedsInstanceTypeChange: plan.InstanceTypeChanging && (force || n.InstanceType != desired.InstanceType),
			NeedsDiskResize:         plan.DiskChanging && (force || nodeVolumeSize(n, current) != desired.DeviceInfo.VolumeSize),
			NeedsRecovery:           nodestate.IsTransient(n.State),
		}
		mutating := change.NeedsInstanceTypeChange || change.NeedsDiskResize
		if !mutating && !change.NeedsRecovery {
			continue
		}
		change.NeedsPrep = mutating && !n.DisksAreMountedByUUID
		plan.Nodes = append(plan.Nodes, change)
	}
	return plan
}

// nodeVolumeSize prefers what was recorded for the node, a node resized by an
// interrupted run is ahead of its cluster intent.
func nodeVolumeSize(n *v1alpha1.NodeDetails, current v1alpha1.UserIntent) int {
	if n.DeviceInfo != nil {
		return n.DeviceInfo.VolumeSize
	}
	if current.DeviceInfo != nil {
		return current.DeviceInfo.VolumeSize
	}
	return 0
}

// IsEmpty reports whether no node has to be touched.
func (p ChangePlan) IsEmpty() bool {
	return len(p.Nodes) == 0
}

func (p ChangePlan) Get(nodeName string) (NodeChange, bool) {
	for _, c := range p.Nodes {
		if c.NodeName == nodeName {
			return c, true
		}
	}
	return NodeChange{}, false
}

// TouchedNodes returns the names of all planned nodes.
func (p ChangePlan) TouchedNodes() []string {
	return p.filter(func(NodeChange) bool { return true })
}

func (p ChangePlan) NodesNeedingPrep() []string {
	return p.filter(func(c NodeChange) bool { return c.NeedsPrep })
}

func (p ChangePlan) NodesNeedingInstanceTypeChange() []string {
	return p.filter(func(c NodeChange) bool { return c.NeedsInstanceTypeChange })
}

// NodesNeedingRecovery returns the nodes left in a transient state by an interrupted run.
func (p ChangePlan) NodesNeedingRecovery() []string {
	return p.filter(func(c NodeChange) bool { return c.NeedsRecovery })
}

func (p ChangePlan) NodesNeedingDiskResize() []string {
	return p.filter(func(c NodeChange) bool { return c.NeedsDiskResize })
}

func (p ChangePlan) filter(pred func(NodeChange) bool) []string {
	var names []string
	for _, c := range p.Nodes {
		if pred(c) {
			names = append(names, c.NodeName)
		}
	}
	return names
}
