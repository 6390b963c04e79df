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

package v1alpha1

import "time"

// TaskType is the kind of an orchestration run.
// +enum
type TaskType string

const (
	ResizeNodeTaskType   TaskType = "ResizeNode"
	DeleteBackupTaskType TaskType = "DeleteBackup"
)

// TaskPhase is the phase of an orchestration run recorded in its TaskRecord.
// +enum
type TaskPhase string

const (
	TaskCreatedPhase   TaskPhase = "Created"
	TaskRunningPhase   TaskPhase = "Running"
	TaskSucceededPhase TaskPhase = "Succeeded"
	TaskFailedPhase    TaskPhase = "Failed"
	TaskAbortedPhase   TaskPhase = "Aborted"
)

// IsTerminal reports whether no further transition may happen from the phase.
func (p TaskPhase) IsTerminal() bool {
	switch p {
	case TaskSucceededPhase, TaskFailedPhase, TaskAbortedPhase:
		return true
	}
	return false
}

// TaskRecord is the durable record of one orchestration run.
type TaskRecord struct {
	UUID         string   `json:"uuid"`
	CustomerUUID string   `json:"customerUUID"`
	TargetUUID   string   `json:"targetUUID"`
	TaskType     TaskType `json:"taskType"`

	Phase TaskPhase `json:"phase"`

	// +optional
	Message string `json:"message,omitempty"`

	// percentComplete is the share of finished subtask groups.
	// +optional
	PercentComplete int `json:"percentComplete,omitempty"`

	CreateTime time.Time `json:"createTime"`
	UpdateTime time.Time `json:"updateTime"`
}

// SubTaskGroupType classifies subtask groups for progress reporting.
// +enum
type SubTaskGroupType string

const (
	UpdatingMountedDisksGroupType  SubTaskGroupType = "UpdatingMountedDisks"
	ResizingDiskGroupType          SubTaskGroupType = "ResizingDisk"
	ChangeInstanceTypeGroupType    SubTaskGroupType = "ChangeInstanceType"
	StoppingNodeProcessesGroupType SubTaskGroupType = "StoppingNodeProcesses"
	StartingNodeProcessesGroupType SubTaskGroupType = "StartingNodeProcesses"
	WaitingForServerGroupType      SubTaskGroupType = "WaitingForServer"
	ChangeMasterConfigGroupType    SubTaskGroupType = "ChangeMasterConfig"
	UpdatingNodeStateGroupType     SubTaskGroupType = "UpdatingNodeState"
	PersistingIntentGroupType      SubTaskGroupType = "PersistingIntent"
)

// ClusterIntent carries the desired user intent for one cluster of a request.
type ClusterIntent struct {
	UUID       string     `json:"uuid"`
	UserIntent UserIntent `json:"userIntent"`
}

// ResizeNodeParams is a request to change the instance type and/or disk size of
// the nodes of one or more clusters.
type ResizeNodeParams struct {
	UniverseUUID string `json:"universeUUID"`
	CustomerUUID string `json:"customerUUID"`

	Clusters []ClusterIntent `json:"clusters"`

	// forceResizeNode re-applies the change even when the current and desired
	// intent are equal, used to resume an interrupted resize.
	// +optional
	ForceResizeNode bool `json:"forceResizeNode,omitempty"`
}

// GetClusterUUIDs returns the UUIDs of the requested clusters in request order.
func (p *ResizeNodeParams) GetClusterUUIDs() []string {
	uuids := make([]string, 0, len(p.Clusters))
	for _, c := range p.Clusters {
		uuids = append(uuids, c.UUID)
	}
	return uuids
}
