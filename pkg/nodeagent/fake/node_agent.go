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

package fake

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/apecloud/nodeops/apis/universe/v1alpha1"
	"github.com/apecloud/nodeops/pkg/nodeagent"
)

// Call is one primitive invocation seen by the simulator.
type Call struct {
	Op   string
	Node string
	Arg  string
}

func (c Call) String() string {
	if c.Arg == "" {
		return fmt.Sprintf("%s(%s)", c.Op, c.Node)
	}
	return fmt.Sprintf("%s(%s,%s)", c.Op, c.Node, c.Arg)
}

type nodeStatus struct {
	instanceType  string
	volumeSize    int
	mountedByUUID bool
	running       map[v1alpha1.ServerType]bool
}

// NodeAgent simulates the node agents of a universe in memory. It keeps
// enough state to catch ordering mistakes: instance types only change on
// stopped nodes and a stopped master leader loses its leadership.
type NodeAgent struct {
	mu       sync.Mutex
	nodes    map[string]*nodeStatus
	members  map[string]bool
	leader   string
	calls    []Call
	failures map[string]int

	// Delay is added to every primitive.
	Delay time.Duration
}

var _ nodeagent.NodeManager = &NodeAgent{}

func NewNodeAgent(nodes []*v1alpha1.NodeDetails) *NodeAgent {
	f := &NodeAgent{
		nodes:    map[string]*nodeStatus{},
		members:  map[string]bool{},
		failures: map[string]int{},
	}
	for _, n := range nodes {
		status := &nodeStatus{
			instanceType:  n.InstanceType,
			mountedByUUID: n.DisksAreMountedByUUID,
			running:       map[v1alpha1.ServerType]bool{},
		}
		if n.DeviceInfo != nil {
			status.volumeSize = n.DeviceInfo.VolumeSize
		}
		// an inactive master has no master process running
		status.running[v1alpha1.MasterServer] = n.IsActiveMaster()
		status.running[v1alpha1.TServerServer] = n.IsTserver
		f.nodes[n.NodeName] = status
		if n.IsActiveMaster() {
			f.members[n.NodeName] = true
			if n.MasterLeader {
				f.leader = n.NodeName
			}
		}
	}
	return f
}

// FailNext makes the next 'times' calls of op on node fail.
func (f *NodeAgent) FailNext(op, node string, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op+"/"+node] = times
}

// FailNextWith is FailNext restricted to calls carrying arg, such as one server
// type or one master config operation.
func (f *NodeAgent) FailNextWith(op, node, arg string, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op+"/"+node+"/"+arg] = times
}

func (f *NodeAgent) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsOf returns the calls of a single primitive.
func (f *NodeAgent) CallsOf(op string) []Call {
	var calls []Call
	for _, c := range f.Calls() {
		if c.Op == op {
			calls = append(calls, c)
		}
	}
	return calls
}

func (f *NodeAgent) InstanceType(node string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nodes[node].instanceType
}

func (f *NodeAgent) VolumeSize(node string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nodes[node].volumeSize
}

func (f *NodeAgent) MountedByUUID(node string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nodes[node].mountedByUUID
}

func (f *NodeAgent) IsRunning(node string, serverType v1alpha1.ServerType) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nodes[node].running[serverType]
}

func (f *NodeAgent) Leader() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leader
}

// Masters returns the sorted master config members.
func (f *NodeAgent) Masters() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for name := range f.members {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f *NodeAgent) wait(ctx context.Context) error {
	if f.Delay <= 0 {
		return nil
	}
	select {
	case <-time.After(f.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enter records the call and returns the node status or an injected failure.
func (f *NodeAgent) enter(op string, node *v1alpha1.NodeDetails, arg string) (*nodeStatus, error) {
	f.calls = append(f.calls, Call{Op: op, Node: node.NodeName, Arg: arg})
	for _, key := range []string{op + "/" + node.NodeName, op + "/" + node.NodeName + "/" + arg} {
		if f.failures[key] > 0 {
			f.failures[key]--
			return nil, fmt.Errorf("injected failure of %s on %s", op, node.NodeName)
		}
	}
	status, ok := f.nodes[node.NodeName]
	if !ok {
		return nil, fmt.Errorf("unknown node %s", node.NodeName)
	}
	return status, nil
}

func (f *NodeAgent) UpdateMountedDisks(ctx context.Context, node *v1alpha1.NodeDetails) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	status, err := f.enter("UpdateMountedDisks", node, "")
	if err != nil {
		return err
	}
	status.mountedByUUID = true
	return nil
}

func (f *NodeAgent) ResizeDisk(ctx context.Context, node *v1alpha1.NodeDetails, deviceInfo *v1alpha1.DeviceInfo) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	status, err := f.enter("ResizeDisk", node, fmt.Sprint(deviceInfo.VolumeSize))
	if err != nil {
		return err
	}
	status.volumeSize = deviceInfo.VolumeSize
	return nil
}

func (f *NodeAgent) ChangeInstanceType(ctx context.Context, node *v1alpha1.NodeDetails, instanceType string) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	status, err := f.enter("ChangeInstanceType", node, instanceType)
	if err != nil {
		return err
	}
	for st, running := range status.running {
		if running {
			return fmt.Errorf("can not change instance type of %s, %s is running", node.NodeName, st)
		}
	}
	status.instanceType = instanceType
	return nil
}

func (f *NodeAgent) StopServer(ctx context.Context, node *v1alpha1.NodeDetails, serverType v1alpha1.ServerType) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	status, err := f.enter("StopServer", node, string(serverType))
	if err != nil {
		return err
	}
	status.running[serverType] = false
	if serverType == v1alpha1.MasterServer && f.leader == node.NodeName {
		f.leader = f.electLocked(node.NodeName)
	}
	return nil
}

func (f *NodeAgent) StartServer(ctx context.Context, node *v1alpha1.NodeDetails, serverType v1alpha1.ServerType) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	status, err := f.enter("StartServer", node, string(serverType))
	if err != nil {
		return err
	}
	status.running[serverType] = true
	return nil
}

func (f *NodeAgent) WaitForServerReady(ctx context.Context, node *v1alpha1.NodeDetails, serverType v1alpha1.ServerType) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	status, err := f.enter("WaitForServerReady", node, string(serverType))
	if err != nil {
		return err
	}
	if !status.running[serverType] {
		return fmt.Errorf("%s on %s is not running", serverType, node.NodeName)
	}
	return nil
}

func (f *NodeAgent) StepDownMasterLeader(ctx context.Context, node *v1alpha1.NodeDetails) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.enter("StepDownMasterLeader", node, ""); err != nil {
		return err
	}
	if f.leader == node.NodeName {
		f.leader = f.electLocked(node.NodeName)
	}
	return nil
}

func (f *NodeAgent) ChangeMasterConfig(ctx context.Context, node *v1alpha1.NodeDetails, op nodeagent.MasterConfigOp) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.enter("ChangeMasterConfig", node, string(op)); err != nil {
		return err
	}
	switch op {
	case nodeagent.AddMaster:
		f.members[node.NodeName] = true
	case nodeagent.RemoveMaster:
		if f.leader == node.NodeName {
			return fmt.Errorf("can not remove master leader %s from the config", node.NodeName)
		}
		delete(f.members, node.NodeName)
	}
	return nil
}

// electLocked picks the first running member other than 'exclude'.
func (f *NodeAgent) electLocked(exclude string) string {
	var candidates []string
	for name := range f.members {
		if name != exclude && f.nodes[name].running[v1alpha1.MasterServer] {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.Strings(candidates)
	return candidates[0]
}
