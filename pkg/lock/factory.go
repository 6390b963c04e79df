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

package lock

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/apecloud/nodeops/pkg/constant"
)

// New builds the locker selected by driver.
func New(driver string, endpoints []string, ttl int) (Locker, error) {
	switch driver {
	case "", constant.LockDriverMemory:
		return NewMemoryLocker(), nil
	case constant.LockDriverEtcd:
		if len(endpoints) == 0 {
			return nil, errors.New("etcd lock needs at least one endpoint")
		}
		return NewEtcdLocker(endpoints, ttl)
	default:
		return nil, fmt.Errorf("unknown lock driver %s", driver)
	}
}
