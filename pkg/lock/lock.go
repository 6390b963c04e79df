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
	"context"
	"sync"

	"github.com/apecloud/nodeops/pkg/controllerutil"
)

// Locker hands out exclusive leases on resource keys, one run per universe.
type Locker interface {
	// TryLock returns a Conflict error when the key is already held.
	TryLock(ctx context.Context, key string) (Lease, error)
	Close() error
}

type Lease interface {
	Unlock(ctx context.Context) error
}

type memoryLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

var _ Locker = &memoryLocker{}

// NewMemoryLocker returns a process local locker.
func NewMemoryLocker() Locker {
	return &memoryLocker{held: map[string]bool{}}
}

func (l *memoryLocker) TryLock(_ context.Context, key string) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, controllerutil.NewConflictError("resource %s is locked by another run", key)
	}
	l.held[key] = true
	return &memoryLease{locker: l, key: key}, nil
}

func (l *memoryLocker) Close() error {
	return nil
}

type memoryLease struct {
	locker *memoryLocker
	key    string
	once   sync.Once
}

func (m *memoryLease) Unlock(_ context.Context) error {
	m.once.Do(func() {
		m.locker.mu.Lock()
		defer m.locker.mu.Unlock()
		delete(m.locker.held, m.key)
	})
	return nil
}
