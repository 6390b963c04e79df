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

	"github.com/pkg/errors"

	"github.com/apecloud/nodeops/apis/universe/v1alpha1"
	"github.com/apecloud/nodeops/pkg/store"
)

// Guard rejects operations against a target another run still owns.
// It only reads task records.
type Guard struct {
	store store.Store
}

func NewGuard(st store.Store) *Guard {
	return &Guard{store: st}
}

// IsConflicting reports whether a non-terminal task of the customer targets targetUUID.
// A failed lookup is an error, never a false.
func (g *Guard) IsConflicting(ctx context.Context, customerUUID, targetUUID string) (bool, error) {
	return g.hasRunning(ctx, customerUUID, targetUUID)
}

// IsDuplicateDeleteBackupTask reports whether a delete of the same backup is still running.
func (g *Guard) IsDuplicateDeleteBackupTask(ctx context.Context, customerUUID, backupUUID string) (bool, error) {
	return g.hasRunning(ctx, customerUUID, backupUUID, v1alpha1.DeleteBackupTaskType)
}

func (g *Guard) hasRunning(ctx context.Context, customerUUID, targetUUID string, taskTypes ...v1alpha1.TaskType) (bool, error) {
	records, err := g.store.FindConflictingTasks(ctx, customerUUID, targetUUID, taskTypes...)
	if err != nil {
		return false, errors.Wrapf(err, "failed to look up running tasks of %s", targetUUID)
	}
	return len(records) > 0, nil
}
