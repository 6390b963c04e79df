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

package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/go-logr/logr"

	"github.com/apecloud/nodeops/apis/universe/v1alpha1"
	"github.com/apecloud/nodeops/pkg/controllerutil"
)

var _ = Describe("Executor", func() {
	var (
		mu       sync.Mutex
		trace    []string
		record   func(name string) Action
		executor Executor
	)

	BeforeEach(func() {
		trace = nil
		record = func(name string) Action {
			return func(ctx context.Context) error {
				mu.Lock()
				defer mu.Unlock()
				trace = append(trace, name)
				return nil
			}
		}
		executor = NewExecutor(logr.Discard(), Options{Retries: 2})
	})

	group := func(name string, subTasks ...*SubTask) *SubTaskGroup {
		g := NewSubTaskGroup(name, v1alpha1.UpdatingNodeStateGroupType)
		for _, st := range subTasks {
			g.AddSubTask(st)
		}
		return g
	}

	It("runs groups in submission order and drops empty groups", func() {
		task := NewRunnableTask("t1", v1alpha1.ResizeNodeTaskType).AddSubTaskGroup(
			group("g1", &SubTask{Name: "a", Action: record("a")}),
			group("empty"),
			nil,
			group("g2", &SubTask{Name: "b", Action: record("b")}),
			group("g3", &SubTask{Name: "c", Action: record("c")}),
		)
		Expect(task.Len()).Should(Equal(3))
		var names []string
		for _, g := range task.Groups() {
			names = append(names, g.Name)
		}
		Expect(names).Should(Equal([]string{"g1", "g2", "g3"}))

		var reported []int
		task.SetProgressFunc(func(done, total int) {
			Expect(total).Should(Equal(3))
			reported = append(reported, done)
		})
		Expect(executor.Run(context.Background(), task)).Should(Succeed())
		Expect(trace).Should(Equal([]string{"a", "b", "c"}))
		Expect(reported).Should(Equal([]int{1, 2, 3}))
	})

	It("runs the subtasks of a group concurrently", func() {
		var running, peak int32
		block := func(ctx context.Context) error {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(50 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return nil
		}
		task := NewRunnableTask("t2", v1alpha1.ResizeNodeTaskType).AddSubTaskGroup(
			group("parallel",
				&SubTask{Name: "x", NodeName: "n1", Action: block},
				&SubTask{Name: "x", NodeName: "n2", Action: block},
				&SubTask{Name: "x", NodeName: "n3", Action: block}),
		)
		Expect(task.Groups()[0].NodeNames()).Should(Equal([]string{"n1", "n2", "n3"}))
		Expect(executor.Run(context.Background(), task)).Should(Succeed())
		Expect(atomic.LoadInt32(&peak)).Should(BeNumerically(">", 1))
	})

	It("retries a failed subtask and halts the chain when retries are exhausted", func() {
		var flaky, broken int32
		task := NewRunnableTask("t3", v1alpha1.ResizeNodeTaskType).AddSubTaskGroup(
			group("g1", &SubTask{Name: "flaky", Action: func(ctx context.Context) error {
				if atomic.AddInt32(&flaky, 1) < 3 {
					return errors.New("transient")
				}
				return nil
			}}),
			group("g2", &SubTask{Name: "broken", NodeName: "n1", Action: func(ctx context.Context) error {
				atomic.AddInt32(&broken, 1)
				return errors.New("disk busy")
			}}),
			group("g3", &SubTask{Name: "never", Action: record("never")}),
		)
		var progress []int
		executor = NewExecutor(logr.Discard(), Options{
			Retries: 2,
			OnGroupDone: func(_ *RunnableTask, _ *SubTaskGroup, done, total int, err error) {
				Expect(total).Should(Equal(3))
				progress = append(progress, done)
			},
		})
		err := executor.Run(context.Background(), task)
		Expect(err).Should(HaveOccurred())
		Expect(controllerutil.IsTargetError(err, controllerutil.ErrorTypeSubtaskFailed)).Should(BeTrue())
		Expect(err.Error()).Should(ContainSubstring("broken(n1)"))
		Expect(atomic.LoadInt32(&flaky)).Should(Equal(int32(3)))
		Expect(atomic.LoadInt32(&broken)).Should(Equal(int32(3)))
		Expect(trace).Should(BeEmpty())
		Expect(progress).Should(Equal([]int{1, 1}))
	})

	It("keeps the type of typed errors and does not retry fatal ones", func() {
		var calls int32
		task := NewRunnableTask("t4", v1alpha1.ResizeNodeTaskType).AddSubTaskGroup(
			group("persist", &SubTask{Name: "persist", Action: func(ctx context.Context) error {
				atomic.AddInt32(&calls, 1)
				return controllerutil.NewError(controllerutil.ErrorTypePersistenceFailed, "write failed")
			}}),
		)
		err := executor.Run(context.Background(), task)
		Expect(controllerutil.IsTargetError(err, controllerutil.ErrorTypePersistenceFailed)).Should(BeTrue())
		Expect(atomic.LoadInt32(&calls)).Should(Equal(int32(3)))

		calls = 0
		zero := 0
		task = NewRunnableTask("t5", v1alpha1.ResizeNodeTaskType).AddSubTaskGroup(
			group("fatal", &SubTask{Name: "fatal", Retries: &zero, Action: func(ctx context.Context) error {
				atomic.AddInt32(&calls, 1)
				return controllerutil.NewFatalError("bad transition")
			}}),
		)
		err = executor.Run(context.Background(), task)
		Expect(controllerutil.IsTargetError(err, controllerutil.ErrorTypeFatal)).Should(BeTrue())
		Expect(atomic.LoadInt32(&calls)).Should(Equal(int32(1)))
	})

	It("bounds each attempt with the subtask timeout", func() {
		task := NewRunnableTask("t6", v1alpha1.ResizeNodeTaskType).AddSubTaskGroup(
			group("slow", &SubTask{Name: "slow", Timeout: 20 * time.Millisecond, Action: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			}}),
		)
		err := NewExecutor(logr.Discard(), Options{}).Run(context.Background(), task)
		Expect(err).Should(MatchError(ContainSubstring("deadline exceeded")))
	})

	It("honours cancellation only between groups", func() {
		ctx, cancel := context.WithCancel(context.Background())
		task := NewRunnableTask("t7", v1alpha1.ResizeNodeTaskType).AddSubTaskGroup(
			group("g1", &SubTask{Name: "cancel", Action: func(subCtx context.Context) error {
				cancel()
				// the running group is not interrupted
				Expect(subCtx.Err()).Should(BeNil())
				return record("g1")(subCtx)
			}}),
			group("g2", &SubTask{Name: "g2", Action: record("g2")}),
		)
		err := executor.Run(ctx, task)
		Expect(errors.Is(err, controllerutil.ErrRunCancelled)).Should(BeTrue())
		Expect(trace).Should(Equal([]string{"g1"}))
	})

	It("runs an empty task", func() {
		Expect(executor.Run(context.Background(), NewRunnableTask("t8", v1alpha1.ResizeNodeTaskType))).Should(Succeed())
	})
})
