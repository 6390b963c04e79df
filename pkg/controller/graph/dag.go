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

package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Vertex is any comparable value placed in the DAG.
type Vertex interface{}

// WalkFunc defines the action should be taken when we walk through the DAG.
// the func is vertex basis
type WalkFunc func(v Vertex) error

// LessFunc breaks ties between vertices that are ready at the same time.
type LessFunc func(v1, v2 Vertex) bool

// DAG keeps vertices in insertion order, which is the tie breaker when no LessFunc is given.
type DAG struct {
	index map[Vertex]int
	order []Vertex
	out   map[Vertex][]Vertex
	in    map[Vertex][]Vertex
}

// NewDAG news an empty DAG
func NewDAG() *DAG {
	return &DAG{
		index: make(map[Vertex]int),
		out:   make(map[Vertex][]Vertex),
		in:    make(map[Vertex][]Vertex),
	}
}

// AddVertex puts 'v' into 'd'
func (d *DAG) AddVertex(v Vertex) bool {
	if v == nil {
		return false
	}
	if _, ok := d.index[v]; !ok {
		d.index[v] = len(d.order)
		d.order = append(d.order, v)
	}
	return true
}

func (d *DAG) HasVertex(v Vertex) bool {
	_, ok := d.index[v]
	return ok
}

// Vertices returns all vertices in insertion order
func (d *DAG) Vertices() []Vertex {
	return append([]Vertex(nil), d.order...)
}

func (d *DAG) Len() int {
	return len(d.order)
}

// Connect adds the edge 'from' -> 'to', both vertices must be added already.
func (d *DAG) Connect(from, to Vertex) bool {
	if !d.HasVertex(from) || !d.HasVertex(to) {
		return false
	}
	for _, v := range d.out[from] {
		if v == to {
			return true
		}
	}
	d.out[from] = append(d.out[from], to)
	d.in[to] = append(d.in[to], from)
	return true
}

// AddConnect add 'to' to the DAG 'd' and connect 'from' to 'to'
func (d *DAG) AddConnect(from, to Vertex) bool {
	if !d.AddVertex(to) {
		return false
	}
	return d.Connect(from, to)
}

// Root returns root vertex that has no in adjacent.
// our DAG should have one and only one root vertex
func (d *DAG) Root() Vertex {
	var root Vertex
	for _, v := range d.order {
		if len(d.in[v]) != 0 {
			continue
		}
		if root != nil {
			return nil
		}
		root = v
	}
	return root
}

// WalkTopoOrder walks the DAG 'd' in topology order, a vertex is walked after everything pointing to it.
func (d *DAG) WalkTopoOrder(walkFunc WalkFunc, less LessFunc) error {
	orders, err := d.topologicalOrder(less)
	if err != nil {
		return err
	}
	for _, v := range orders {
		if err := walkFunc(v); err != nil {
			return err
		}
	}
	return nil
}

// String returns a string representation of the DAG in topology order
func (d *DAG) String() string {
	var b strings.Builder
	b.WriteString("|")
	walkFunc := func(v Vertex) error {
		fmt.Fprintf(&b, "->%v", v)
		return nil
	}
	if err := d.WalkTopoOrder(walkFunc, nil); err != nil {
		return "->err"
	}
	return b.String()
}

func (d *DAG) topologicalOrder(less LessFunc) ([]Vertex, error) {
	if d.Root() == nil {
		return nil, errors.New("no single Root found")
	}
	return d.kahn(less)
}

// kahn sorts the vertices, ready vertices are taken by 'less' or by insertion order.
func (d *DAG) kahn(less LessFunc) ([]Vertex, error) {
	pred, succ := d.in, d.out
	pending := make(map[Vertex]int, len(d.order))
	var ready []Vertex
	for _, v := range d.order {
		pending[v] = len(pred[v])
		if pending[v] == 0 {
			ready = append(ready, v)
		}
	}
	orders := make([]Vertex, 0, len(d.order))
	for len(ready) > 0 {
		sort.SliceStable(ready, func(i, j int) bool {
			if less != nil {
				return less(ready[i], ready[j])
			}
			return d.index[ready[i]] < d.index[ready[j]]
		})
		v := ready[0]
		ready = ready[1:]
		orders = append(orders, v)
		for _, adj := range succ[v] {
			pending[adj]--
			if pending[adj] == 0 {
				ready = append(ready, adj)
			}
		}
	}
	if len(orders) != len(d.order) {
		return nil, errors.New("cycle found")
	}
	return orders, nil
}
