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

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/apecloud/nodeops/pkg/controllerutil"
)

var _ = Describe("Locker", func() {
	exclusive := func(locker Locker) {
		ctx := context.Background()
		lease, err := locker.TryLock(ctx, "u1")
		Expect(err).ShouldNot(HaveOccurred())

		_, err = locker.TryLock(ctx, "u1")
		Expect(controllerutil.IsConflict(err)).Should(BeTrue())

		other, err := locker.TryLock(ctx, "u2")
		Expect(err).ShouldNot(HaveOccurred())
		Expect(other.Unlock(ctx)).Should(Succeed())

		Expect(lease.Unlock(ctx)).Should(Succeed())
		lease, err = locker.TryLock(ctx, "u1")
		Expect(err).ShouldNot(HaveOccurred())
		Expect(lease.Unlock(ctx)).Should(Succeed())
	}

	It("memory locker is exclusive per key", func() {
		locker, err := New("memory", nil, 0)
		Expect(err).ShouldNot(HaveOccurred())
		defer locker.Close()
		exclusive(locker)
	})

	It("etcd locker is exclusive per key", func() {
		locker := NewEtcdLockerWithClient(etcdServer.client, 5)
		defer locker.Close()
		exclusive(locker)
	})

	It("rejects unknown drivers", func() {
		_, err := New("zookeeper", nil, 0)
		Expect(err).Should(HaveOccurred())
		_, err = New("etcd", nil, 0)
		Expect(err).Should(HaveOccurred())
	})
})
