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

package constant

const (
	AppName   = "nodeops"
	EnvPrefix = "NODEOPS"
)

const (
	// LockKeyPrefix prefixes the per-universe resource lock key.
	LockKeyPrefix = "/nodeops/locks/universe/"
)

// subtask names, reported in task progress and metrics
const (
	UpdateMountedDisksTaskName   = "UpdateMountedDisks"
	ResizeDiskTaskName           = "ResizeDisk"
	ChangeInstanceTypeTaskName   = "ChangeInstanceType"
	UpdateNodeDetailsTaskName    = "UpdateNodeDetails"
	SetNodeStateTaskName         = "SetNodeState"
	StopServerTaskName           = "StopServer"
	StartServerTaskName          = "StartServer"
	WaitForServerReadyTaskName   = "WaitForServerReady"
	StepDownMasterLeaderTaskName = "StepDownMasterLeader"
	ChangeMasterConfigTaskName   = "ChangeMasterConfig"
	PersistResizeNodeTaskName    = "PersistResizeNode"
)
