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
	"fmt"
	"time"

	"github.com/apecloud/nodeops/apis/universe/v1alpha1"
	"github.com/apecloud/nodeops/pkg/controller/graph"
)

// Action is the body of a subtask. It must be idempotent, a failed attempt is retried as is.
type Action func(ctx context.Context) error

// SubTask is the smallest retried unit of work, usually one primitive against one node.
type SubTask struct {
	Name     string
	NodeName string
	Action   Action

	// Retries overrides the executor default when not nil.
	Retries *int
	// Timeout bounds a single attempt, zero means the executor default.
	Timeout time.Duration
}

func (s *SubTask) String() string {
	if s.NodeName == "" {
		return s.Name
	}
	return fmt.Sprintf("%s(%s)", s.Name, s.NodeName)
}

// SubTaskGroup is a named set of subtasks that run concurrently.
// Groups of a RunnableTask run strictly one after another.
type SubTaskGroup struct {
	Name     string
	Type     v1alpha1.SubTaskGroupType
	SubTasks []*SubTask
}

func NewSubTaskGroup(name string, groupType v1alpha1.SubTaskGroupType) *SubTaskGroup {
	return &SubTaskGroup{Name: name, Type: groupType}
}

// AddSubTask appends a subtask and returns the group for chaining.
func (g *SubTaskGroup) AddSubTask(subTask *SubTask) *SubTaskGroup {
	g.SubTasks = append(g.SubTasks, subTask)
	return g
}

// NodeNames returns the nodes the group touches, in subtask order.
func (g *SubTaskGroup) NodeNames() []string {
	var names []string
	seen := map[string]bool{}
	for _, st := range g.SubTasks {
		if st.NodeName != "" && !seen[st.NodeName] {
			seen[st.NodeName] = true
			names = append(names, st.NodeName)
		}
	}
	return names
}

func (g *SubTaskGroup) String() string {
	return g.Name
}

// RunnableTask is the chain of subtask groups of one run, laid out on a DAG.
type RunnableTask struct {
	UUID     string
	TaskType v1alpha1.TaskType

	dag      *graph.DAG
	tail     *SubTaskGroup
	progress ProgressFunc
}

// ProgressFunc receives the number of groups done after each successful group.
type ProgressFunc func(done, total int)

func NewRunnableTask(uuid string, taskType v1alpha1.TaskType) *RunnableTask {
	return &RunnableTask{
		UUID:     uuid,
		TaskType: taskType,
		dag:      graph.NewDAG(),
	}
}

// AddSubTaskGroup appends groups to the end of the chain. Empty groups are dropped.
func (t *RunnableTask) AddSubTaskGroup(groups ...*SubTaskGroup) *RunnableTask {
	for _, g := range groups {
		if g == nil || len(g.SubTasks) == 0 {
			continue
		}
		if t.tail == nil {
			t.dag.AddVertex(g)
		} else {
			t.dag.AddConnect(t.tail, g)
		}
		t.tail = g
	}
	return t
}

// Groups returns the groups in execution order.
func (t *RunnableTask) Groups() []*SubTaskGroup {
	groups := make([]*SubTaskGroup, 0, t.dag.Len())
	_ = t.Walk(func(g *SubTaskGroup) error {
		groups = append(groups, g)
		return nil
	})
	return groups
}

// SetProgressFunc sets the progress callback of the task.
func (t *RunnableTask) SetProgressFunc(fn ProgressFunc) *RunnableTask {
	t.progress = fn
	return t
}

func (t *RunnableTask) reportProgress(done, total int) {
	if t.progress != nil {
		t.progress(done, total)
	}
}

func (t *RunnableTask) Len() int {
	return t.dag.Len()
}

// Walk visits the groups in execution order and stops at the first error.
func (t *RunnableTask) Walk(walkFunc func(g *SubTaskGroup) error) error {
	if t.dag.Len() == 0 {
		return nil
	}
	return t.dag.WalkTopoOrder(func(v graph.Vertex) error {
		return walkFunc(v.(*SubTaskGroup))
	}, nil)
}
