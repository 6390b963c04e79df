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

// Package upgrade lays out the rolling, batch by batch mutation of the nodes of a cluster.
package upgrade

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/apecloud/nodeops/apis/universe/v1alpha1"
	"github.com/apecloud/nodeops/pkg/controller/graph"
	"github.com/apecloud/nodeops/pkg/controllerutil"
	"github.com/apecloud/nodeops/pkg/nodeagent"
	"github.com/apecloud/nodeops/pkg/task"
)

// UpgradeContext tunes how a rolling pass treats the processes of a node.
type UpgradeContext struct {
	// ReconfigureMaster removes an active master from the master config before it
	// is stopped and adds it back once it is ready again.
	ReconfigureMaster bool

	// RunBeforeStopping calls the batch callback while the node still serves traffic.
	RunBeforeStopping bool

	// ProcessInactiveMaster restarts the master process of nodes whose master is not a voter.
	ProcessInactiveMaster bool

	// MaxParallelNodes bounds the size of a batch of non-master nodes.
	MaxParallelNodes int
}

// BatchCallback returns the mutation groups of one batch. processTypes are the
// processes the engine stops around the callback.
type BatchCallback func(nodes []*v1alpha1.NodeDetails, processTypes sets.Set[v1alpha1.ServerType]) []*task.SubTaskGroup

// NodeTasks builds the lifecycle groups the engine wraps around each batch.
type NodeTasks interface {
	SetNodeState(nodes []*v1alpha1.NodeDetails, state v1alpha1.NodeState) *task.SubTaskGroup
	StopServers(nodes []*v1alpha1.NodeDetails, serverType v1alpha1.ServerType) *task.SubTaskGroup
	StartServers(nodes []*v1alpha1.NodeDetails, serverType v1alpha1.ServerType) *task.SubTaskGroup
	WaitForServersReady(nodes []*v1alpha1.NodeDetails, serverType v1alpha1.ServerType) *task.SubTaskGroup
	StepDownMasterLeader(node *v1alpha1.NodeDetails) *task.SubTaskGroup
	ChangeMasterConfig(node *v1alpha1.NodeDetails, op nodeagent.MasterConfigOp) *task.SubTaskGroup
}

// batch is a vertex of the update order.
type batch struct {
	nodes        []*v1alpha1.NodeDetails
	processTypes sets.Set[v1alpha1.ServerType]
	// master is set when the batch is a single active master being reconfigured
	master bool
}

func (b *batch) String() string {
	names := make([]string, 0, len(b.nodes))
	for _, n := range b.nodes {
		names = append(names, n.NodeName)
	}
	return strings.Join(names, ",")
}

type Engine struct {
	tasks NodeTasks
}

func NewEngine(tasks NodeTasks) *Engine {
	return &Engine{tasks: tasks}
}

// BatchSize returns the number of non-master nodes taken down together.
func BatchSize(maxParallelNodes, replicationFactor int) int {
	upper := replicationFactor - 1
	if upper < 1 {
		upper = 1
	}
	switch {
	case maxParallelNodes < 1:
		return 1
	case maxParallelNodes > upper:
		return upper
	default:
		return maxParallelNodes
	}
}

// Plan returns the groups that roll the target nodes of a cluster. clusterNodes
// is the whole membership of the cluster, used to check the master quorum.
func (e *Engine) Plan(cluster *v1alpha1.Cluster,
	clusterNodes []*v1alpha1.NodeDetails,
	targets sets.Set[string],
	uctx UpgradeContext,
	cb BatchCallback) ([]*task.SubTaskGroup, error) {
	if len(targets) == 0 {
		return nil, nil
	}
	dag, err := e.buildUpdateOrder(cluster, clusterNodes, targets, uctx)
	if err != nil {
		return nil, err
	}
	var groups []*task.SubTaskGroup
	err = dag.WalkTopoOrder(func(v graph.Vertex) error {
		b, ok := v.(*batch)
		if !ok || len(b.nodes) == 0 {
			return nil
		}
		groups = append(groups, e.batchGroups(b, uctx, cb)...)
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// buildUpdateOrder chains the batches in the order they are rolled:
// non-master tservers, inactive masters, master followers, master leader.
func (e *Engine) buildUpdateOrder(cluster *v1alpha1.Cluster,
	clusterNodes []*v1alpha1.NodeDetails,
	targets sets.Set[string],
	uctx UpgradeContext) (*graph.DAG, error) {
	var tservers, inactiveMasters, followers, leaders []*v1alpha1.NodeDetails
	activeMasters := 0
	for _, n := range clusterNodes {
		if n.IsActiveMaster() {
			activeMasters++
		}
		if !targets.Has(n.NodeName) {
			continue
		}
		switch {
		case n.IsActiveMaster() && n.MasterLeader:
			leaders = append(leaders, n)
		case n.IsActiveMaster():
			followers = append(followers, n)
		case n.IsMaster:
			inactiveMasters = append(inactiveMasters, n)
		default:
			tservers = append(tservers, n)
		}
	}
	byName := func(a, b *v1alpha1.NodeDetails) bool { return a.NodeName < b.NodeName }
	for _, list := range [][]*v1alpha1.NodeDetails{tservers, inactiveMasters, followers, leaders} {
		slices.SortFunc(list, byName)
	}

	rf := cluster.UserIntent.ReplicationFactor
	if uctx.ReconfigureMaster && len(followers)+len(leaders) > 0 {
		quorum := rf/2 + 1
		if activeMasters-1 < quorum {
			return nil, controllerutil.NewValidationError(fmt.Errorf(
				"cluster %s has %d active masters, removing one would break the quorum of %d",
				cluster.UUID, activeMasters, quorum))
		}
	}

	dag := graph.NewDAG()
	root := &batch{}
	dag.AddVertex(root)
	prev := graph.Vertex(root)
	chain := func(b *batch) {
		dag.AddConnect(prev, b)
		prev = b
	}

	size := BatchSize(uctx.MaxParallelNodes, rf)
	nonMasters := append(append([]*v1alpha1.NodeDetails{}, tservers...), inactiveMasters...)
	for start := 0; start < len(nonMasters); start += size {
		end := start + size
		if end > len(nonMasters) {
			end = len(nonMasters)
		}
		b := &batch{nodes: nonMasters[start:end], processTypes: sets.New[v1alpha1.ServerType]()}
		for _, n := range b.nodes {
			if n.IsTserver {
				b.processTypes.Insert(v1alpha1.TServerServer)
			}
			// a node without a tserver is only ever stopped through its master
			if n.IsMaster && (uctx.ProcessInactiveMaster || !n.IsTserver) {
				b.processTypes.Insert(v1alpha1.MasterServer)
			}
		}
		chain(b)
	}
	for _, n := range append(followers, leaders...) {
		b := &batch{
			nodes:        []*v1alpha1.NodeDetails{n},
			processTypes: sets.New[v1alpha1.ServerType](n.ServerTypes()...),
			master:       uctx.ReconfigureMaster,
		}
		chain(b)
	}
	return dag, nil
}

// batchGroups emits the lifecycle of a single batch around the callback groups.
func (e *Engine) batchGroups(b *batch, uctx UpgradeContext, cb BatchCallback) []*task.SubTaskGroup {
	var groups []*task.SubTaskGroup
	add := func(g ...*task.SubTaskGroup) {
		groups = append(groups, g...)
	}

	add(e.tasks.SetNodeState(b.nodes, v1alpha1.NodeStateResizing))
	if uctx.RunBeforeStopping && cb != nil {
		add(cb(b.nodes, b.processTypes)...)
	}
	if b.master {
		add(e.tasks.StepDownMasterLeader(b.nodes[0]))
		add(e.tasks.ChangeMasterConfig(b.nodes[0], nodeagent.RemoveMaster))
	}
	// tserver goes down first and comes back last
	for _, st := range []v1alpha1.ServerType{v1alpha1.TServerServer, v1alpha1.MasterServer} {
		if b.processTypes.Has(st) {
			add(e.tasks.StopServers(b.nodes, st))
		}
	}
	if !uctx.RunBeforeStopping && cb != nil {
		add(cb(b.nodes, b.processTypes)...)
	}
	for _, st := range []v1alpha1.ServerType{v1alpha1.MasterServer, v1alpha1.TServerServer} {
		if b.processTypes.Has(st) {
			add(e.tasks.StartServers(b.nodes, st))
			add(e.tasks.WaitForServersReady(b.nodes, st))
		}
	}
	if b.master {
		add(e.tasks.ChangeMasterConfig(b.nodes[0], nodeagent.AddMaster))
	}
	add(e.tasks.SetNodeState(b.nodes, v1alpha1.NodeStateLive))
	return groups
}
