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
	"time"

	"github.com/pkg/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/apecloud/nodeops/pkg/constant"
	"github.com/apecloud/nodeops/pkg/controllerutil"
)

type etcdLocker struct {
	client    *clientv3.Client
	ownClient bool
	ttl       int
}

var _ Locker = &etcdLocker{}

// NewEtcdLocker dials the endpoints, the lease of a held lock expires ttl seconds after the holder dies.
func NewEtcdLocker(endpoints []string, ttl int) (Locker, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, errors.Wrap(err, "connect to etcd failed")
	}
	return &etcdLocker{client: client, ownClient: true, ttl: ttl}, nil
}

// NewEtcdLockerWithClient reuses an existing client, which the caller keeps owning.
func NewEtcdLockerWithClient(client *clientv3.Client, ttl int) Locker {
	return &etcdLocker{client: client, ttl: ttl}
}

func (l *etcdLocker) TryLock(ctx context.Context, key string) (Lease, error) {
	session, err := concurrency.NewSession(l.client, concurrency.WithTTL(l.ttl), concurrency.WithContext(ctx))
	if err != nil {
		return nil, errors.Wrap(err, "create etcd session failed")
	}
	mutex := concurrency.NewMutex(session, constant.LockKeyPrefix+key)
	if err = mutex.TryLock(ctx); err != nil {
		_ = session.Close()
		if err == concurrency.ErrLocked {
			return nil, controllerutil.NewConflictError("resource %s is locked by another run", key)
		}
		return nil, errors.Wrapf(err, "lock %s failed", key)
	}
	return &etcdLease{session: session, mutex: mutex}, nil
}

func (l *etcdLocker) Close() error {
	if l.ownClient {
		return l.client.Close()
	}
	return nil
}

type etcdLease struct {
	session *concurrency.Session
	mutex   *concurrency.Mutex
}

func (e *etcdLease) Unlock(ctx context.Context) error {
	defer e.session.Close()
	return e.mutex.Unlock(ctx)
}
