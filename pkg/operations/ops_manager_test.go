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

	"github.com/go-logr/logr"
	"github.com/golang/mock/gomock"

	"github.com/apecloud/nodeops/apis/universe/v1alpha1"
	"github.com/apecloud/nodeops/pkg/controllerutil"
	"github.com/apecloud/nodeops/pkg/lock"
	"github.com/apecloud/nodeops/pkg/nodeagent"
	"github.com/apecloud/nodeops/pkg/nodeagent/fake"
	"github.com/apecloud/nodeops/pkg/nodeagent/mocks"
	"github.com/apecloud/nodeops/pkg/store"
	"github.com/apecloud/nodeops/pkg/task"
)

// flakyStore fails the next PersistClusterIntent calls.
type flakyStore struct {
	store.Store
	failures int
}

func (s *flakyStore) PersistClusterIntent(ctx context.Context, universeUUID, clusterUUID string, intent v1alpha1.UserIntent) error {
	if s.failures > 0 {
		s.failures--
		return controllerutil.NewError(controllerutil.ErrorTypePersistenceFailed, "write failed")
	}
	return s.Store.PersistClusterIntent(ctx, universeUUID, clusterUUID, intent)
}

var _ = Describe("OpsManager", func() {
	var (
		ctx      context.Context
		cancel   context.CancelFunc
		universe *v1alpha1.Universe
		st       store.Store
		locker   lock.Locker
		agent    *fake.NodeAgent
		opsMgr   *OpsManager
	)

	newManager := func(nodeManager nodeagent.NodeManager) *OpsManager {
		logger := logr.Discard()
		executor := task.NewExecutor(logger, task.Options{Retries: 0, Backoff: time.Millisecond})
		return NewOpsManager(ctx, st, locker, nodeManager, executor, Options{Logger: &logger})
	}

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		universe = newTestUniverse()
		st = store.NewMemoryStore(universe)
		locker = lock.NewMemoryLocker()
		agent = fake.NewNodeAgent(universe.Nodes)
		opsMgr = newManager(agent)
	})

	AfterEach(func() {
		cancel()
		Expect(opsMgr.Wait(context.Background())).Should(Succeed())
	})

	apply := func(params *v1alpha1.ResizeNodeParams) (*RunHandle, error) {
		return opsMgr.ApplyMutation(ctx, testUniverseUUID, params)
	}

	waitFor := func(handle *RunHandle) error {
		waitCtx, waitCancel := context.WithTimeout(ctx, 10*time.Second)
		defer waitCancel()
		return handle.Wait(waitCtx)
	}

	stored := func() *v1alpha1.Universe {
		u, err := st.GetUniverse(ctx, testUniverseUUID)
		Expect(err).ShouldNot(HaveOccurred())
		return u
	}

	It("resizes every requested cluster and records the new intent", func() {
		params := resizeParams(primaryUUID, "m5.xlarge", 200)
		params.Clusters = append(params.Clusters, v1alpha1.ClusterIntent{
			UUID:       replicaUUID,
			UserIntent: v1alpha1.UserIntent{InstanceType: "m5.xlarge", DeviceInfo: &v1alpha1.DeviceInfo{VolumeSize: 200}},
		})
		handle, err := apply(params)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(waitFor(handle)).Should(Succeed())

		u := stored()
		for _, c := range u.Clusters {
			Expect(c.UserIntent.InstanceType).Should(Equal("m5.xlarge"))
			Expect(c.UserIntent.DeviceInfo.VolumeSize).Should(Equal(200))
			Expect(c.UserIntent.DeviceInfo.NumVolumes).Should(Equal(1))
		}
		for _, n := range u.Nodes {
			Expect(n.InstanceType).Should(Equal("m5.xlarge"), n.NodeName)
			Expect(n.DeviceInfo.VolumeSize).Should(Equal(200), n.NodeName)
			Expect(n.State).Should(Equal(v1alpha1.NodeStateLive), n.NodeName)
			Expect(agent.InstanceType(n.NodeName)).Should(Equal("m5.xlarge"))
			Expect(agent.VolumeSize(n.NodeName)).Should(Equal(200))
			Expect(agent.IsRunning(n.NodeName, v1alpha1.TServerServer)).Should(BeTrue())
		}
		Expect(u.UpdateInProgress).Should(BeFalse())
		Expect(agent.Masters()).Should(Equal([]string{"n1", "n2", "n3"}))
		Expect(agent.Leader()).ShouldNot(BeEmpty())

		record, err := opsMgr.GetTask(ctx, handle.TaskUUID)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(record.Phase).Should(Equal(v1alpha1.TaskSucceededPhase))
		Expect(record.PercentComplete).Should(Equal(100))
		Expect(record.TargetUUID).Should(Equal(testUniverseUUID))
		Expect(record.TaskType).Should(Equal(v1alpha1.ResizeNodeTaskType))
	})

	It("only persists the intent of the requested cluster", func() {
		handle, err := apply(resizeParams(primaryUUID, "m5.xlarge", 0))
		Expect(err).ShouldNot(HaveOccurred())
		Expect(waitFor(handle)).Should(Succeed())

		u := stored()
		Expect(u.GetClusterByUUID(primaryUUID).UserIntent.InstanceType).Should(Equal("m5.xlarge"))
		Expect(u.GetClusterByUUID(primaryUUID).UserIntent.DeviceInfo.VolumeSize).Should(Equal(100))
		Expect(u.GetClusterByUUID(replicaUUID).UserIntent.InstanceType).Should(Equal("m5.large"))
		for _, c := range agent.Calls() {
			Expect(c.Node).ShouldNot(HavePrefix("r"))
		}
	})

	It("halts on a failed subtask and resumes the remaining work", func() {
		agent.FailNext("ChangeInstanceType", "n2", 1)
		handle, err := apply(resizeParams(primaryUUID, "m5.xlarge", 0))
		Expect(err).ShouldNot(HaveOccurred())
		err = waitFor(handle)
		Expect(controllerutil.IsTargetError(err, controllerutil.ErrorTypeSubtaskFailed)).Should(BeTrue())

		record, err := opsMgr.GetTask(ctx, handle.TaskUUID)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(record.Phase).Should(Equal(v1alpha1.TaskFailedPhase))
		Expect(record.Message).Should(ContainSubstring("n2"))
		Expect(record.PercentComplete).Should(BeNumerically("<", 100))

		u := stored()
		Expect(u.UpdateInProgress).Should(BeFalse())
		Expect(u.GetNode("n4").InstanceType).Should(Equal("m5.xlarge"))
		Expect(u.GetNode("n2").InstanceType).Should(Equal("m5.large"))
		Expect(u.GetNode("n2").State).Should(Equal(v1alpha1.NodeStateResizing))
		Expect(u.GetClusterByUUID(primaryUUID).UserIntent.InstanceType).Should(Equal("m5.large"))

		handle, err = apply(resizeParams(primaryUUID, "m5.xlarge", 0))
		Expect(err).ShouldNot(HaveOccurred())
		Expect(waitFor(handle)).Should(Succeed())

		u = stored()
		Expect(u.GetClusterByUUID(primaryUUID).UserIntent.InstanceType).Should(Equal("m5.xlarge"))
		for _, name := range []string{"n1", "n2", "n3", "n4"} {
			Expect(u.GetNode(name).State).Should(Equal(v1alpha1.NodeStateLive))
		}
		perNode := map[string]int{}
		for _, c := range agent.CallsOf("ChangeInstanceType") {
			perNode[c.Node]++
		}
		Expect(perNode).Should(Equal(map[string]int{"n4": 1, "n2": 2, "n3": 1, "n1": 1}))
	})

	// expectConverged checks the primary cluster is rolled to m5.xlarge and fully serving.
	expectConverged := func() {
		u := stored()
		Expect(u.GetClusterByUUID(primaryUUID).UserIntent.InstanceType).Should(Equal("m5.xlarge"))
		Expect(u.UpdateInProgress).Should(BeFalse())
		for _, name := range []string{"n1", "n2", "n3", "n4"} {
			n := u.GetNode(name)
			Expect(n.State).Should(Equal(v1alpha1.NodeStateLive), name)
			Expect(n.InstanceType).Should(Equal("m5.xlarge"), name)
			Expect(agent.InstanceType(name)).Should(Equal("m5.xlarge"), name)
			Expect(agent.IsRunning(name, v1alpha1.TServerServer)).Should(BeTrue(), name)
		}
		Expect(agent.Masters()).Should(Equal([]string{"n1", "n2", "n3"}))
		for _, name := range agent.Masters() {
			Expect(agent.IsRunning(name, v1alpha1.MasterServer)).Should(BeTrue(), name)
		}
	}

	changesPerNode := func() map[string]int {
		perNode := map[string]int{}
		for _, c := range agent.CallsOf("ChangeInstanceType") {
			perNode[c.Node]++
		}
		return perNode
	}

	DescribeTable("recovers a node that failed after its new instance type was recorded",
		func(op, node, arg string) {
			agent.FailNextWith(op, node, arg, 1)
			handle, err := apply(resizeParams(primaryUUID, "m5.xlarge", 0))
			Expect(err).ShouldNot(HaveOccurred())
			Expect(waitFor(handle)).Should(HaveOccurred())

			u := stored()
			Expect(u.GetNode(node).InstanceType).Should(Equal("m5.xlarge"))
			Expect(u.GetNode(node).State).Should(Equal(v1alpha1.NodeStateResizing))
			Expect(u.GetClusterByUUID(primaryUUID).UserIntent.InstanceType).Should(Equal("m5.large"))

			handle, err = apply(resizeParams(primaryUUID, "m5.xlarge", 0))
			Expect(err).ShouldNot(HaveOccurred())
			Expect(waitFor(handle)).Should(Succeed())
			expectConverged()
			// the recovered node is restarted, not changed again
			Expect(changesPerNode()).Should(Equal(map[string]int{"n1": 1, "n2": 1, "n3": 1, "n4": 1}))
		},
		Entry("when the tserver does not start", "StartServer", "n4", string(v1alpha1.TServerServer)),
		Entry("when the master does not become ready", "WaitForServerReady", "n2", string(v1alpha1.MasterServer)),
		Entry("when the master is not added back to the config", "ChangeMasterConfig", "n2", string(nodeagent.AddMaster)),
	)

	It("keeps a master out of the config only until the next run", func() {
		agent.FailNextWith("ChangeMasterConfig", "n2", string(nodeagent.AddMaster), 1)
		handle, err := apply(resizeParams(primaryUUID, "m5.xlarge", 0))
		Expect(err).ShouldNot(HaveOccurred())
		Expect(waitFor(handle)).Should(HaveOccurred())
		Expect(agent.Masters()).Should(Equal([]string{"n1", "n3"}))

		// a request with nothing left to change still brings n2 back
		handle, err = apply(resizeParams(primaryUUID, "m5.large", 0))
		Expect(err).ShouldNot(HaveOccurred())
		Expect(waitFor(handle)).Should(Succeed())
		Expect(agent.Masters()).Should(Equal([]string{"n1", "n2", "n3"}))
		Expect(stored().GetNode("n2").State).Should(Equal(v1alpha1.NodeStateLive))
	})

	It("retries a failed persist as a whole without touching the nodes again", func() {
		st = &flakyStore{Store: store.NewMemoryStore(universe), failures: 1}
		opsMgr = newManager(agent)

		handle, err := apply(resizeParams(primaryUUID, "m5.xlarge", 0))
		Expect(err).ShouldNot(HaveOccurred())
		err = waitFor(handle)
		Expect(controllerutil.IsTargetError(err, controllerutil.ErrorTypePersistenceFailed)).Should(BeTrue())
		record, err := opsMgr.GetTask(ctx, handle.TaskUUID)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(record.Phase).Should(Equal(v1alpha1.TaskFailedPhase))
		Expect(stored().GetClusterByUUID(primaryUUID).UserIntent.InstanceType).Should(Equal("m5.large"))
		calls := len(agent.Calls())

		handle, err = apply(resizeParams(primaryUUID, "m5.xlarge", 0))
		Expect(err).ShouldNot(HaveOccurred())
		Expect(waitFor(handle)).Should(Succeed())
		expectConverged()
		Expect(agent.Calls()).Should(HaveLen(calls))
		Expect(changesPerNode()).Should(Equal(map[string]int{"n1": 1, "n2": 1, "n3": 1, "n4": 1}))
	})

	Context("conflicting operations", func() {
		It("rejects a request while a task against the universe is not finished", func() {
			Expect(st.CreateTaskRecord(ctx, &v1alpha1.TaskRecord{
				UUID:         "running",
				CustomerUUID: testCustomerUUID,
				TargetUUID:   testUniverseUUID,
				TaskType:     v1alpha1.ResizeNodeTaskType,
				Phase:        v1alpha1.TaskRunningPhase,
				CreateTime:   time.Now(),
			})).Should(Succeed())

			_, err := apply(resizeParams(primaryUUID, "m5.xlarge", 0))
			Expect(controllerutil.IsConflict(err)).Should(BeTrue())
			records, err := st.FindConflictingTasks(ctx, testCustomerUUID, testUniverseUUID)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(records).Should(HaveLen(1))
			Expect(agent.Calls()).Should(BeEmpty())
		})

		It("rejects a request while the universe lock is held", func() {
			lease, err := locker.TryLock(ctx, testUniverseUUID)
			Expect(err).ShouldNot(HaveOccurred())
			defer func() { _ = lease.Unlock(ctx) }()

			_, err = apply(resizeParams(primaryUUID, "m5.xlarge", 0))
			Expect(controllerutil.IsConflict(err)).Should(BeTrue())
			records, err := st.FindConflictingTasks(ctx, testCustomerUUID, testUniverseUUID)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(records).Should(BeEmpty())
		})

		It("lets exactly one of two overlapping requests run", func() {
			agent.Delay = 5 * time.Millisecond
			first, err := apply(resizeParams(primaryUUID, "m5.xlarge", 0))
			Expect(err).ShouldNot(HaveOccurred())
			_, err = apply(resizeParams(replicaUUID, "m5.xlarge", 0))
			Expect(controllerutil.IsConflict(err)).Should(BeTrue())
			Expect(waitFor(first)).Should(Succeed())

			second, err := apply(resizeParams(replicaUUID, "m5.xlarge", 0))
			Expect(err).ShouldNot(HaveOccurred())
			Expect(waitFor(second)).Should(Succeed())
		})
	})

	It("rejects an invalid request before writing anything", func() {
		_, err := apply(resizeParams(primaryUUID, "m5.large", 50))
		Expect(controllerutil.IsValidationError(err)).Should(BeTrue())
		_, err = opsMgr.ApplyMutation(ctx, "other", resizeParams(primaryUUID, "m5.xlarge", 0))
		Expect(controllerutil.IsValidationError(err)).Should(BeTrue())
		_, err = opsMgr.ApplyMutation(ctx, testUniverseUUID, nil)
		Expect(controllerutil.IsValidationError(err)).Should(BeTrue())

		records, err := st.FindConflictingTasks(ctx, testCustomerUUID, testUniverseUUID)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(records).Should(BeEmpty())
		Expect(stored().Version).Should(Equal(universe.Version))
	})

	It("aborts a cancelled run between groups", func() {
		agent.Delay = 20 * time.Millisecond
		handle, err := apply(resizeParams(primaryUUID, "m5.xlarge", 0))
		Expect(err).ShouldNot(HaveOccurred())
		handle.Cancel()
		err = waitFor(handle)
		Expect(errors.Is(err, controllerutil.ErrRunCancelled)).Should(BeTrue())

		record, err := opsMgr.GetTask(ctx, handle.TaskUUID)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(record.Phase).Should(Equal(v1alpha1.TaskAbortedPhase))
		Expect(stored().UpdateInProgress).Should(BeFalse())
		Expect(stored().GetClusterByUUID(primaryUUID).UserIntent.InstanceType).Should(Equal("m5.large"))
	})

	It("drives the node primitives in rolling order", func() {
		universe = &v1alpha1.Universe{
			UUID:         testUniverseUUID,
			CustomerUUID: testCustomerUUID,
			Clusters: []v1alpha1.Cluster{{
				UUID: primaryUUID,
				Type: v1alpha1.PrimaryClusterType,
				UserIntent: v1alpha1.UserIntent{
					InstanceType:      "m5.large",
					DeviceInfo:        &v1alpha1.DeviceInfo{VolumeSize: 100, NumVolumes: 1},
					ReplicationFactor: 1,
				},
			}},
			Nodes: []*v1alpha1.NodeDetails{{
				NodeName:              "s1",
				PlacementUUID:         primaryUUID,
				InstanceType:          "m5.large",
				DeviceInfo:            &v1alpha1.DeviceInfo{VolumeSize: 100, NumVolumes: 1},
				IsMaster:              true,
				IsTserver:             true,
				MasterActive:          true,
				MasterLeader:          true,
				State:                 v1alpha1.NodeStateLive,
				DisksAreMountedByUUID: true,
			}},
		}
		st = store.NewMemoryStore(universe)
		mockNodeManager := mocks.NewMockNodeManager(gomock.NewController(GinkgoT()))
		opsMgr = newManager(mockNodeManager)

		anyArg := gomock.Any()
		gomock.InOrder(
			mockNodeManager.EXPECT().StopServer(anyArg, anyArg, v1alpha1.TServerServer).Return(nil),
			mockNodeManager.EXPECT().StopServer(anyArg, anyArg, v1alpha1.MasterServer).Return(nil),
			mockNodeManager.EXPECT().ResizeDisk(anyArg, anyArg, &v1alpha1.DeviceInfo{VolumeSize: 300, NumVolumes: 1}).Return(nil),
			mockNodeManager.EXPECT().StartServer(anyArg, anyArg, v1alpha1.MasterServer).Return(nil),
			mockNodeManager.EXPECT().WaitForServerReady(anyArg, anyArg, v1alpha1.MasterServer).Return(nil),
			mockNodeManager.EXPECT().StartServer(anyArg, anyArg, v1alpha1.TServerServer).Return(nil),
			mockNodeManager.EXPECT().WaitForServerReady(anyArg, anyArg, v1alpha1.TServerServer).Return(nil),
		)

		handle, err := apply(resizeParams(primaryUUID, "m5.large", 300))
		Expect(err).ShouldNot(HaveOccurred())
		Expect(waitFor(handle)).Should(Succeed())
		Expect(stored().Nodes[0].DeviceInfo.VolumeSize).Should(Equal(300))
		Expect(stored().Clusters[0].UserIntent.DeviceInfo.VolumeSize).Should(Equal(300))
	})
})
