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

	"github.com/go-logr/logr"

	"github.com/apecloud/nodeops/apis/universe/v1alpha1"
	"github.com/apecloud/nodeops/pkg/class"
	"github.com/apecloud/nodeops/pkg/task"
)

// RequestCtx carries the context and logger of one request.
type RequestCtx struct {
	Ctx context.Context
	Log logr.Logger
}

// OpsHandler validates and composes one kind of operation.
type OpsHandler interface {
	// Validate checks the request against the universe snapshot, it must not write anything.
	Validate(reqCtx RequestCtx, opsRes *OpsResource) error

	// Compose lays out the subtask groups of the run in execution order.
	// Nothing is executed and nothing is written.
	Compose(reqCtx RequestCtx, opsRes *OpsResource) ([]*task.SubTaskGroup, error)
}

type OpsBehaviour struct {
	// QueueByTarget rejects a request while a non-terminal task of the customer runs against the same target.
	QueueByTarget bool

	// LockUniverse sets the update-in-progress flag of the universe for the duration of the run.
	LockUniverse bool

	OpsHandler OpsHandler
}

// OpsResource is what a handler works on.
type OpsResource struct {
	Universe *v1alpha1.Universe
	Params   *v1alpha1.ResizeNodeParams

	// Catalogue is nil when no instance type catalogue is configured.
	Catalogue *class.Catalogue

	// SubTasks builds the groups, bound to the node table of this run.
	SubTasks *SubTaskFactory

	MaxParallelNodes int
}
