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

// Package v1alpha1 contains the universe, node and operation definitions shared by
// the orchestrator, its stores and its API.
package v1alpha1

import "fmt"

// ClusterType distinguishes the primary cluster of a universe from its read replicas.
// +enum
type ClusterType string

const (
	PrimaryClusterType     ClusterType = "Primary"
	ReadReplicaClusterType ClusterType = "ReadReplica"
)

// NodeState is the lifecycle state of a universe node.
// +enum
type NodeState string

const (
	NodeStateLive     NodeState = "Live"
	NodeStateResizing NodeState = "Resizing"
	NodeStateStopped  NodeState = "Stopped"
	NodeStateUpdating NodeState = "Updating"
)

// ServerType is a database process that runs on a node.
// +enum
type ServerType string

const (
	MasterServer  ServerType = "Master"
	TServerServer ServerType = "TServer"
)

// DeviceInfo describes the data volumes attached to every node of a cluster.
type DeviceInfo struct {
	// volumeSize is the size of each volume in GB.
	VolumeSize int `json:"volumeSize"`

	// numVolumes is the number of data volumes per node.
	NumVolumes int `json:"numVolumes"`

	// +optional
	StorageClass string `json:"storageClass,omitempty"`
}

// Equal compares two device infos structurally, nil equals nil only.
func (d *DeviceInfo) Equal(other *DeviceInfo) bool {
	if d == nil || other == nil {
		return d == other
	}
	return *d == *other
}

// DeepCopy returns a copy of the device info, nil stays nil.
func (d *DeviceInfo) DeepCopy() *DeviceInfo {
	if d == nil {
		return nil
	}
	out := *d
	return &out
}

func (d *DeviceInfo) String() string {
	if d == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%dx%dGB(%s)", d.NumVolumes, d.VolumeSize, d.StorageClass)
}

// UserIntent is the desired configuration of a cluster.
type UserIntent struct {
	InstanceType string `json:"instanceType"`

	// +optional
	DeviceInfo *DeviceInfo `json:"deviceInfo,omitempty"`

	ReplicationFactor int `json:"replicationFactor"`
}

func (u UserIntent) DeepCopy() UserIntent {
	out := u
	out.DeviceInfo = u.DeviceInfo.DeepCopy()
	return out
}

// Cluster is the primary or a read replica sub-group of a universe.
type Cluster struct {
	UUID       string      `json:"uuid"`
	Type       ClusterType `json:"clusterType"`
	UserIntent UserIntent  `json:"userIntent"`
}

// NodeDetails is the snapshot of a single universe member.
type NodeDetails struct {
	NodeName string `json:"nodeName"`
	AzUUID   string `json:"azUuid"`

	// placementUuid is the UUID of the cluster this node belongs to.
	PlacementUUID string `json:"placementUuid"`

	InstanceType string `json:"instanceType"`

	// +optional
	DeviceInfo *DeviceInfo `json:"deviceInfo,omitempty"`

	IsMaster  bool `json:"isMaster"`
	IsTserver bool `json:"isTserver"`

	// masterActive reports whether the master process is a voter of the consensus group.
	MasterActive bool `json:"masterActive"`

	// masterLeader is the leader hint taken when the snapshot was read.
	// +optional
	MasterLeader bool `json:"masterLeader,omitempty"`

	State NodeState `json:"state"`

	DisksAreMountedByUUID bool `json:"disksAreMountedByUUID"`
}

func (n *NodeDetails) DeepCopy() *NodeDetails {
	if n == nil {
		return nil
	}
	out := *n
	out.DeviceInfo = n.DeviceInfo.DeepCopy()
	return &out
}

// IsActiveMaster reports whether the node hosts a voting master.
func (n *NodeDetails) IsActiveMaster() bool {
	return n.IsMaster && n.MasterActive
}

// ServerTypes returns the processes hosted by the node.
func (n *NodeDetails) ServerTypes() []ServerType {
	var types []ServerType
	if n.IsMaster {
		types = append(types, MasterServer)
	}
	if n.IsTserver {
		types = append(types, TServerServer)
	}
	return types
}

// Universe is a managed clustered-database deployment.
type Universe struct {
	UUID         string `json:"universeUUID"`
	Name         string `json:"name"`
	CustomerUUID string `json:"customerUUID"`

	Clusters []Cluster      `json:"clusters"`
	Nodes    []*NodeDetails `json:"nodeDetailsSet"`

	// updateInProgress is set while an orchestration run owns the universe.
	UpdateInProgress bool `json:"updateInProgress"`

	// version is bumped on every durable write, used for optimistic updates.
	Version int `json:"version"`
}

// GetClusterByUUID returns the cluster with the given UUID or nil.
func (u *Universe) GetClusterByUUID(uuid string) *Cluster {
	for i := range u.Clusters {
		if u.Clusters[i].UUID == uuid {
			return &u.Clusters[i]
		}
	}
	return nil
}

// GetNode returns the node with the given name or nil.
func (u *Universe) GetNode(nodeName string) *NodeDetails {
	for _, n := range u.Nodes {
		if n.NodeName == nodeName {
			return n
		}
	}
	return nil
}

// GetNodesInCluster returns the nodes placed in the given cluster.
func (u *Universe) GetNodesInCluster(clusterUUID string) []*NodeDetails {
	var nodes []*NodeDetails
	for _, n := range u.Nodes {
		if n.PlacementUUID == clusterUUID {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

func (u *Universe) DeepCopy() *Universe {
	if u == nil {
		return nil
	}
	out := *u
	out.Clusters = make([]Cluster, len(u.Clusters))
	for i, c := range u.Clusters {
		out.Clusters[i] = c
		out.Clusters[i].UserIntent = c.UserIntent.DeepCopy()
	}
	out.Nodes = make([]*NodeDetails, len(u.Nodes))
	for i, n := range u.Nodes {
		out.Nodes[i] = n.DeepCopy()
	}
	return &out
}
