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
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	"sigs.k8s.io/yaml"
)

// Catalogue is the set of instance types a universe may be resized to.
type Catalogue struct {
	types map[string]*InstanceType
}

// LoadCatalogue reads a catalogue file.
func LoadCatalogue(file string) (*Catalogue, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read instance type catalogue %s", file)
	}
	return ParseCatalogue(data)
}

// ParseCatalogue parses a yaml list of instance type families.
func ParseCatalogue(data []byte) (*Catalogue, error) {
	var families []*InstanceTypeFamilyDef
	if err := yaml.Unmarshal(data, &families); err != nil {
		return nil, errors.Wrap(err, "invalid instance type catalogue")
	}

	genTypeDef := func(nameTpl string, bodyTpl string, vars []string, args []string) (InstanceTypeDef, error) {
		var def InstanceTypeDef
		if len(args) != len(vars) {
			return def, fmt.Errorf("expect %d args, got %d", len(vars), len(args))
		}
		values := make(map[string]interface{})
		for index, key := range vars {
			values[key] = args[index]
		}
		body, err := renderTemplate(bodyTpl, values)
		if err != nil {
			return def, err
		}
		if err = yaml.Unmarshal([]byte(body), &def); err != nil {
			return def, err
		}
		def.Name, err = renderTemplate(nameTpl, values)
		return def, err
	}

	result := make(map[string]*InstanceType)
	for _, family := range families {
		for _, series := range family.Series {
			for _, t := range series.Types {
				def := t
				if len(t.Args) > 0 {
					var err error
					if def, err = genTypeDef(series.Name, family.Template, family.Vars, t.Args); err != nil {
						return nil, errors.Wrapf(err, "family %s", family.Family)
					}
					if t.Name != "" {
						def.Name = t.Name
					}
				}
				if def.Name == "" {
					return nil, fmt.Errorf("family %s: instance type without name", family.Family)
				}
				if _, exists := result[def.Name]; exists {
					return nil, fmt.Errorf("duplicate instance type name: %s", def.Name)
				}
				result[def.Name] = &InstanceType{
					Name:       def.Name,
					Family:     family.Family,
					CPU:        def.CPU,
					Memory:     def.Memory,
					MaxVolumes: def.MaxVolumes,
				}
			}
		}
	}
	return &Catalogue{types: result}, nil
}

func renderTemplate(tpl string, values map[string]interface{}) (string, error) {
	engine, err := template.New("").Funcs(sprig.TxtFuncMap()).Parse(tpl)
	if err != nil {
		return "", err
	}
	var buf strings.Builder
	if err := engine.Execute(&buf, values); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (c *Catalogue) Get(name string) *InstanceType {
	if c == nil {
		return nil
	}
	return c.types[name]
}

// List returns every instance type ordered by cpu then memory.
func (c *Catalogue) List() []*InstanceType {
	if c == nil {
		return nil
	}
	out := make([]*InstanceType, 0, len(c.types))
	for _, t := range c.types {
		out = append(out, t)
	}
	sort.Sort(ByCPUAndMemory(out))
	return out
}

// Validate checks that the instance type exists and can carry numVolumes data volumes.
// A nil catalogue accepts everything.
func (c *Catalogue) Validate(name string, numVolumes int) error {
	if c == nil {
		return nil
	}
	t := c.Get(name)
	if t == nil {
		return fmt.Errorf("instance type %s not found in catalogue", name)
	}
	if t.MaxVolumes > 0 && numVolumes > t.MaxVolumes {
		return fmt.Errorf("instance type %s supports at most %d volumes, requested %d", name, t.MaxVolumes, numVolumes)
	}
	return nil
}

// Choose returns the smallest instance type with at least the given cpu and memory.
func (c *Catalogue) Choose(cpu, memory resource.Quantity) *InstanceType {
	for _, t := range c.List() {
		if t.CPU.Cmp(cpu) >= 0 && t.Memory.Cmp(memory) >= 0 {
			return t
		}
	}
	return nil
}
