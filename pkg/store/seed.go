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

package store

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"github.com/apecloud/nodeops/apis/universe/v1alpha1"
	"github.com/apecloud/nodeops/pkg/constant"
)

// New builds the store selected by driver. Universes of the seed file, if any, are written to it.
func New(ctx context.Context, driver, dsn, seed string) (Store, error) {
	var (
		s   Store
		err error
	)
	switch driver {
	case "", constant.StoreDriverMemory:
		s = NewMemoryStore()
	case constant.StoreDriverMySQL:
		if s, err = NewMySQLStore(ctx, dsn); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown store driver %s", driver)
	}
	if seed == "" {
		return s, nil
	}
	universes, err := LoadUniverses(seed)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	for _, u := range universes {
		if err = s.PutUniverse(ctx, u); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}

// LoadUniverses reads universe snapshots from a yaml file, either a single universe or a list.
func LoadUniverses(file string) ([]*v1alpha1.Universe, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrapf(err, "read universe file %s", file)
	}
	return ParseUniverses(data)
}

func ParseUniverses(data []byte) ([]*v1alpha1.Universe, error) {
	var universes []*v1alpha1.Universe
	if trimmed := bytes.TrimSpace(data); bytes.HasPrefix(trimmed, []byte("-")) || bytes.HasPrefix(trimmed, []byte("[")) {
		if err := yaml.Unmarshal(data, &universes); err != nil {
			return nil, errors.Wrap(err, "decode universes")
		}
	} else {
		u := &v1alpha1.Universe{}
		if err := yaml.Unmarshal(data, u); err != nil {
			return nil, errors.Wrap(err, "decode universe")
		}
		universes = append(universes, u)
	}
	for _, u := range universes {
		if u.UUID == "" {
			return nil, fmt.Errorf("universe %q has no uuid", u.Name)
		}
		for _, n := range u.Nodes {
			if n.State == "" {
				n.State = v1alpha1.NodeStateLive
			}
		}
	}
	return universes, nil
}
