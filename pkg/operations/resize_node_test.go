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

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/go-logr/logr"

	"github.com/apecloud/nodeops/apis/universe/v1alpha1"
	"github.com/apecloud/nodeops/pkg/class"
	"github.com/apecloud/nodeops/pkg/controllerutil"
	"github.com/apecloud/nodeops/pkg/lock"
	"github.com/apecloud/nodeops/pkg/nodeagent/fake"
	"github.com/apecloud/nodeops/pkg/store"
	"github.com/apecloud/nodeops/pkg/task"
)

var _ = Describe("ResizeNode composition", func() {
	var (
		ctx      = context.Background()
		universe *v1alpha1.Universe
	)

	BeforeEach(func() {
		universe = newTestUniverse()
	})

	preview := func(params *v1alpha1.ResizeNodeParams, opts ...func(*Options)) ([]*task.SubTaskGroup, error) {
		logger := logr.Discard()
		o := Options{Logger: &logger}
		for _, opt := range opts {
			opt(&o)
		}
		opsMgr := NewOpsManager(ctx, store.NewMemoryStore(universe), lock.NewMemoryLocker(),
			fake.NewNodeAgent(universe.Nodes), task.NewExecutor(logger, task.Options{}), o)
		return opsMgr.PreviewMutation(ctx, testUniverseUUID, params)
	}

	Context("scenario A, instance type change only", func() {
		It("touches every node of the cluster for the instance type only", func() {
			groups, err := preview(resizeParams(primaryUUID, "m5.xlarge", 0))
			Expect(err).ShouldNot(HaveOccurred())
			Expect(groupsOf(groups, v1alpha1.ResizingDiskGroupType, "")).Should(BeEmpty())
			Expect(groupsOf(groups, v1alpha1.UpdatingMountedDisksGroupType, "")).Should(BeEmpty())
			for _, n := range []string{"n1", "n2", "n3", "n4"} {
				change := named(groups, "ChangeInstanceType", n)
				persist := named(groups, "UpdateNodeDetails", n)
				Expect(change).Should(HaveLen(1), n)
				Expect(persist).Should(Equal([]int{change[0] + 1}), n)
			}
			for _, n := range []string{"r1", "r2"} {
				Expect(named(groups, "ChangeInstanceType", n)).Should(BeEmpty())
			}
		})

		It("rolls the plain tserver first and the master leader last", func() {
			groups, err := preview(resizeParams(primaryUUID, "m5.xlarge", 0))
			Expect(err).ShouldNot(HaveOccurred())
			var order []string
			for _, i := range groupsOf(groups, v1alpha1.ChangeInstanceTypeGroupType, "") {
				if g := groups[i]; g.SubTasks[0].Name == "ChangeInstanceType" {
					order = append(order, g.NodeNames()...)
				}
			}
			Expect(order).Should(Equal([]string{"n4", "n2", "n3", "n1"}))
		})

		It("steps down and removes a master before stopping it", func() {
			groups, err := preview(resizeParams(primaryUUID, "m5.xlarge", 0))
			Expect(err).ShouldNot(HaveOccurred())
			stepDown := named(groups, "StepDownMasterLeader", "n1")
			remove := named(groups, "ChangeMasterConfig(Remove)", "n1")
			stop := named(groups, "StopServer", "n1")
			change := named(groups, "ChangeInstanceType", "n1")
			add := named(groups, "ChangeMasterConfig(Add)", "n1")
			Expect(stepDown).Should(HaveLen(1))
			Expect(remove).Should(HaveLen(1))
			Expect(stepDown[0]).Should(BeNumerically("<", remove[0]))
			Expect(remove[0]).Should(BeNumerically("<", stop[0]))
			Expect(stop[len(stop)-1]).Should(BeNumerically("<", change[0]))
			Expect(add[0]).Should(BeNumerically(">", change[0]))
			Expect(named(groups, "StepDownMasterLeader", "n4")).Should(BeEmpty())
		})

		It("ends with a single finalize group", func() {
			groups, err := preview(resizeParams(primaryUUID, "m5.xlarge", 0))
			Expect(err).ShouldNot(HaveOccurred())
			Expect(groupsOf(groups, v1alpha1.PersistingIntentGroupType, "")).Should(Equal([]int{len(groups) - 1}))
			Expect(groups[len(groups)-1].SubTasks).Should(HaveLen(1))
		})
	})

	Context("scenario B and C, disk size unchanged", func() {
		It("emits no disk resize without force", func() {
			groups, err := preview(resizeParams(primaryUUID, "m5.large", 100))
			Expect(err).ShouldNot(HaveOccurred())
			Expect(groupsOf(groups, v1alpha1.ResizingDiskGroupType, "")).Should(BeEmpty())
			// nothing to roll, only the finalize group is left
			Expect(groups).Should(HaveLen(1))
		})

		It("resizes every node of the cluster with force", func() {
			params := resizeParams(primaryUUID, "m5.large", 100)
			params.ForceResizeNode = true
			groups, err := preview(params)
			Expect(err).ShouldNot(HaveOccurred())
			for _, n := range []string{"n1", "n2", "n3", "n4"} {
				Expect(groupsOf(groups, v1alpha1.ResizingDiskGroupType, n)).Should(HaveLen(1), n)
				Expect(named(groups, "ChangeInstanceType", n)).Should(HaveLen(1), n)
			}
		})
	})

	It("scenario D, skips a node already on the desired instance type", func() {
		universe.GetNode("n2").InstanceType = "m5.xlarge"
		groups, err := preview(resizeParams(primaryUUID, "m5.xlarge", 0))
		Expect(err).ShouldNot(HaveOccurred())
		Expect(named(groups, "ChangeInstanceType", "n2")).Should(BeEmpty())
		Expect(named(groups, "UpdateNodeDetails", "n2")).Should(BeEmpty())
		Expect(named(groups, "SetNodeState", "n2")).Should(BeEmpty())
		for _, n := range []string{"n1", "n3", "n4"} {
			Expect(named(groups, "ChangeInstanceType", n)).Should(HaveLen(1), n)
		}
	})

	It("does not resize a disk already at the desired size", func() {
		universe.GetNode("n1").DeviceInfo.VolumeSize = 200
		groups, err := preview(resizeParams(primaryUUID, "m5.large", 200))
		Expect(err).ShouldNot(HaveOccurred())
		Expect(groupsOf(groups, v1alpha1.ResizingDiskGroupType, "n1")).Should(BeEmpty())
		for _, n := range []string{"n2", "n3", "n4"} {
			Expect(groupsOf(groups, v1alpha1.ResizingDiskGroupType, n)).Should(HaveLen(1), n)
		}
	})

	It("runs every prep group before the rolling mutation", func() {
		universe.GetNode("n3").DisksAreMountedByUUID = false
		universe.GetNode("n4").DisksAreMountedByUUID = false
		groups, err := preview(resizeParams(primaryUUID, "m5.large", 200))
		Expect(err).ShouldNot(HaveOccurred())
		prep := groupsOf(groups, v1alpha1.UpdatingMountedDisksGroupType, "")
		Expect(prep).Should(Equal([]int{0, 1}))
		Expect(groups[0].NodeNames()).Should(Equal([]string{"n3"}))
		Expect(groups[1].NodeNames()).Should(Equal([]string{"n4"}))
		Expect(groups[2].Type).Should(Equal(v1alpha1.UpdatingNodeStateGroupType))
	})

	It("batches non-master nodes of a read replica", func() {
		groups, err := preview(resizeParams(replicaUUID, "m5.xlarge", 0), func(o *Options) {
			o.MaxParallelNodes = 5
		})
		Expect(err).ShouldNot(HaveOccurred())
		// RF 2 allows a single node down at a time
		Expect(named(groups, "StopServer", "r1")).ShouldNot(Equal(named(groups, "StopServer", "r2")))
		Expect(named(groups, "StepDownMasterLeader", "r1")).Should(BeEmpty())
	})

	Context("validation", func() {
		It("rejects a disk shrink without force", func() {
			_, err := preview(resizeParams(primaryUUID, "m5.large", 50))
			Expect(controllerutil.IsValidationError(err)).Should(BeTrue())

			params := resizeParams(primaryUUID, "m5.large", 50)
			params.ForceResizeNode = true
			_, err = preview(params)
			Expect(err).ShouldNot(HaveOccurred())
		})

		It("rejects an unknown cluster and a replication factor change", func() {
			_, err := preview(resizeParams("missing", "m5.large", 0))
			Expect(controllerutil.IsValidationError(err)).Should(BeTrue())

			params := resizeParams(primaryUUID, "m5.xlarge", 0)
			params.Clusters[0].UserIntent.ReplicationFactor = 5
			_, err = preview(params)
			Expect(controllerutil.IsValidationError(err)).Should(BeTrue())
		})

		It("rejects an unknown universe with not found", func() {
			params := resizeParams(primaryUUID, "m5.xlarge", 0)
			params.UniverseUUID = "nope"
			_, err := preview(params)
			Expect(controllerutil.IsNotFound(err)).Should(BeTrue())
		})

		It("checks the instance type against the catalogue", func() {
			catalogue, err := class.ParseCatalogue([]byte(`
- family: general
  series:
  - types:
    - name: m5.xlarge
      cpu: 4
      memory: 16Gi
      maxVolumes: 1
`))
			Expect(err).ShouldNot(HaveOccurred())
			withCatalogue := func(o *Options) { o.Catalogue = catalogue }

			_, err = preview(resizeParams(primaryUUID, "m5.xlarge", 0), withCatalogue)
			Expect(err).ShouldNot(HaveOccurred())
			_, err = preview(resizeParams(primaryUUID, "m5.huge", 0), withCatalogue)
			Expect(controllerutil.IsValidationError(err)).Should(BeTrue())
		})

		It("refuses to break the master quorum", func() {
			universe.GetNode("n2").MasterActive = false
			universe.GetNode("n3").MasterActive = false
			_, err := preview(resizeParams(primaryUUID, "m5.xlarge", 0))
			Expect(controllerutil.IsValidationError(err)).Should(BeTrue())
		})
	})
})
