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

package class

import (
	"sort"

	"k8s.io/apimachinery/pkg/api/resource"
)

// InstanceType is a machine shape nodes can be resized to.
type InstanceType struct {
	Name       string
	Family     string
	CPU        resource.Quantity
	Memory     resource.Quantity
	MaxVolumes int
}

// InstanceTypeFamilyDef is a family of instance types sharing a template, as written in the catalogue file.
type InstanceTypeFamilyDef struct {
	Family string `json:"family"`

	// template renders the body of an instance type from args, keys are taken from vars.
	// +optional
	Template string `json:"template,omitempty"`

	// +optional
	Vars []string `json:"vars,omitempty"`

	Series []InstanceTypeSeriesDef `json:"series"`
}

type InstanceTypeSeriesDef struct {
	// name is a template rendering the name of each instance type of the series.
	Name string `json:"name"`

	Types []InstanceTypeDef `json:"types"`
}

type InstanceTypeDef struct {
	// +optional
	Name string `json:"name,omitempty"`

	// +optional
	CPU resource.Quantity `json:"cpu,omitempty"`

	// +optional
	Memory resource.Quantity `json:"memory,omitempty"`

	// +optional
	MaxVolumes int `json:"maxVolumes,omitempty"`

	// args are the template values, in the order of the family vars.
	// +optional
	Args []string `json:"args,omitempty"`
}

var _ sort.Interface = ByCPUAndMemory{}

type ByCPUAndMemory []*InstanceType

func (b ByCPUAndMemory) Len() int {
	return len(b)
}

func (b ByCPUAndMemory) Less(i, j int) bool {
	if out := b[i].CPU.Cmp(b[j].CPU); out != 0 {
		return out < 0
	}
	if out := b[i].Memory.Cmp(b[j].Memory); out != 0 {
		return out < 0
	}
	return b[i].Name < b[j].Name
}

func (b ByCPUAndMemory) Swap(i, j int) {
	b[i], b[j] = b[j], b[i]
}
