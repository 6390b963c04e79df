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
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/apecloud/nodeops/apis/universe/v1alpha1"
	"github.com/apecloud/nodeops/pkg/store"
)

type brokenStore struct {
	store.Store
}

func (brokenStore) FindConflictingTasks(context.Context, string, string, ...v1alpha1.TaskType) ([]*v1alpha1.TaskRecord, error) {
	return nil, errors.New("connection refused")
}

var _ = Describe("Guard", func() {
	var (
		ctx   = context.Background()
		st    store.Store
		guard *Guard
	)

	record := func(uuid, target string, taskType v1alpha1.TaskType, phase v1alpha1.TaskPhase) {
		Expect(st.CreateTaskRecord(ctx, &v1alpha1.TaskRecord{
			UUID:         uuid,
			CustomerUUID: testCustomerUUID,
			TargetUUID:   target,
			TaskType:     taskType,
			Phase:        phase,
			CreateTime:   time.Now(),
		})).Should(Succeed())
	}

	BeforeEach(func() {
		st = store.NewMemoryStore()
		guard = NewGuard(st)
	})

	It("reports a conflict only for non-terminal tasks against the same target", func() {
		record("t1", "u1", v1alpha1.ResizeNodeTaskType, v1alpha1.TaskSucceededPhase)
		record("t2", "u2", v1alpha1.ResizeNodeTaskType, v1alpha1.TaskRunningPhase)

		conflicting, err := guard.IsConflicting(ctx, testCustomerUUID, "u1")
		Expect(err).ShouldNot(HaveOccurred())
		Expect(conflicting).Should(BeFalse())

		record("t3", "u1", v1alpha1.ResizeNodeTaskType, v1alpha1.TaskCreatedPhase)
		conflicting, err = guard.IsConflicting(ctx, testCustomerUUID, "u1")
		Expect(err).ShouldNot(HaveOccurred())
		Expect(conflicting).Should(BeTrue())

		conflicting, err = guard.IsConflicting(ctx, "someone-else", "u1")
		Expect(err).ShouldNot(HaveOccurred())
		Expect(conflicting).Should(BeFalse())
	})

	It("detects a duplicate backup delete", func() {
		record("d1", "b1", v1alpha1.DeleteBackupTaskType, v1alpha1.TaskRunningPhase)
		record("d2", "b2", v1alpha1.DeleteBackupTaskType, v1alpha1.TaskFailedPhase)
		record("r1", "b3", v1alpha1.ResizeNodeTaskType, v1alpha1.TaskRunningPhase)

		for backup, expected := range map[string]bool{"b1": true, "b2": false, "b3": false} {
			duplicate, err := guard.IsDuplicateDeleteBackupTask(ctx, testCustomerUUID, backup)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(duplicate).Should(Equal(expected), backup)
		}
	})

	It("returns the lookup failure instead of no conflict", func() {
		guard = NewGuard(brokenStore{Store: st})
		conflicting, err := guard.IsConflicting(ctx, testCustomerUUID, "u1")
		Expect(err).Should(MatchError(ContainSubstring("connection refused")))
		Expect(conflicting).Should(BeFalse())
	})
})
