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

package constant

import "time"

const (
	// config keys used in viper, DON'T refactor the value without careful inspections
	CfgKeySubtaskRetries      = "subtask.retries"
	CfgKeySubtaskBackoff      = "subtask.backoff"
	CfgKeySubtaskTimeout      = "subtask.timeout"
	CfgKeyHealthCheckInterval = "healthcheck.interval"
	CfgKeyHealthCheckTimeout  = "healthcheck.timeout"
	CfgKeyMaxParallelNodes    = "rolling.maxParallelNodes"

	// store config keys
	CfgKeyStoreDriver = "store.driver"
	CfgKeyStoreDSN    = "store.dsn"
	CfgKeyStoreSeed   = "store.seed" // universe snapshot loaded into the memory store

	// lock config keys
	CfgKeyLockDriver    = "lock.driver"
	CfgKeyEtcdEndpoints = "lock.etcd.endpoints"
	CfgKeyLockTTL       = "lock.ttl" // seconds

	CfgKeyAPIAddr       = "api.addr"
	CfgKeyAPILogging    = "api.logging"
	CfgKeyNodeAgentPort = "nodeagent.port"

	// CfgKeyInstanceTypesFile points to the instance-type catalogue, empty disables catalogue checks.
	CfgKeyInstanceTypesFile = "instancetypes.file"
)

const (
	StoreDriverMemory = "memory"
	StoreDriverMySQL  = "mysql"

	LockDriverMemory = "memory"
	LockDriverEtcd   = "etcd"
)

const (
	DefaultSubtaskRetries      = 3
	DefaultSubtaskBackoff      = 2 * time.Second
	DefaultSubtaskTimeout      = 30 * time.Minute
	DefaultHealthCheckInterval = 5 * time.Second
	DefaultHealthCheckTimeout  = 10 * time.Minute
	DefaultMaxParallelNodes    = 1
	DefaultLockTTL             = 60
	DefaultAPIAddr             = "0.0.0.0:5001"
	DefaultNodeAgentPort       = 3501
)

// Defaults returns the default value of every config key.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		CfgKeySubtaskRetries:      DefaultSubtaskRetries,
		CfgKeySubtaskBackoff:      DefaultSubtaskBackoff,
		CfgKeySubtaskTimeout:      DefaultSubtaskTimeout,
		CfgKeyHealthCheckInterval: DefaultHealthCheckInterval,
		CfgKeyHealthCheckTimeout:  DefaultHealthCheckTimeout,
		CfgKeyMaxParallelNodes:    DefaultMaxParallelNodes,
		CfgKeyStoreDriver:         StoreDriverMemory,
		CfgKeyLockDriver:          LockDriverMemory,
		CfgKeyEtcdEndpoints:       []string{"127.0.0.1:2379"},
		CfgKeyLockTTL:             DefaultLockTTL,
		CfgKeyAPIAddr:             DefaultAPIAddr,
		CfgKeyAPILogging:          true,
		CfgKeyNodeAgentPort:       DefaultNodeAgentPort,
	}
}
