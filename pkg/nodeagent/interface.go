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

package nodeagent

import (
	"context"

	"github.com/apecloud/nodeops/apis/universe/v1alpha1"
)

// MasterConfigOp is a change of the master consensus group membership.
type MasterConfigOp string

const (
	AddMaster    MasterConfigOp = "Add"
	RemoveMaster MasterConfigOp = "Remove"
)

//go:generate mockgen -destination=mocks/node_manager_mock.go -package=mocks . NodeManager

// NodeManager performs the primitives of a rolling mutation against a single node.
// Every primitive must be idempotent, the executor retries failed attempts as is.
type NodeManager interface {
	// UpdateMountedDisks rewrites the mount table of the node to mount data disks by UUID.
	UpdateMountedDisks(ctx context.Context, node *v1alpha1.NodeDetails) error

	// ResizeDisk grows the data volumes of the node to deviceInfo.VolumeSize.
	ResizeDisk(ctx context.Context, node *v1alpha1.NodeDetails, deviceInfo *v1alpha1.DeviceInfo) error

	ChangeInstanceType(ctx context.Context, node *v1alpha1.NodeDetails, instanceType string) error

	StopServer(ctx context.Context, node *v1alpha1.NodeDetails, serverType v1alpha1.ServerType) error
	StartServer(ctx context.Context, node *v1alpha1.NodeDetails, serverType v1alpha1.ServerType) error

	// WaitForServerReady blocks until the server answers its health check or ctx expires.
	WaitForServerReady(ctx context.Context, node *v1alpha1.NodeDetails, serverType v1alpha1.ServerType) error

	// StepDownMasterLeader moves master leadership away from the node, a no-op when it does not lead.
	StepDownMasterLeader(ctx context.Context, node *v1alpha1.NodeDetails) error

	ChangeMasterConfig(ctx context.Context, node *v1alpha1.NodeDetails, op MasterConfigOp) error
}
