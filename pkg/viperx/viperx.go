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

package viperx

import (
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// lock guards the global viper instance, viper itself is not safe for
// concurrent writes from the config watcher and the request handlers.
var lock = &sync.RWMutex{}

func Get(key string) interface{} {
	return rCall(key, viper.Get)
}

func GetBool(key string) bool {
	return rCall(key, viper.GetBool)
}

func GetInt(key string) int {
	return rCall(key, viper.GetInt)
}

func GetString(key string) string {
	return rCall(key, viper.GetString)
}

func GetStringSlice(key string) []string {
	return rCall(key, viper.GetStringSlice)
}

func GetDuration(key string) time.Duration {
	return rCall(key, viper.GetDuration)
}

func IsSet(key string) bool {
	return rCall(key, viper.IsSet)
}

func AllSettings() map[string]interface{} {
	lock.RLock()
	defer lock.RUnlock()
	return viper.AllSettings()
}

func rCall[T interface{}](key string, f func(string) T) T {
	lock.RLock()
	defer lock.RUnlock()
	return f(key)
}

func Set(key string, value interface{}) {
	lock.Lock()
	defer lock.Unlock()
	viper.Set(key, value)
}

func SetDefault(key string, value interface{}) {
	lock.Lock()
	defer lock.Unlock()
	viper.SetDefault(key, value)
}

// SetDefaults registers every entry of defaults under a single lock.
func SetDefaults(defaults map[string]interface{}) {
	lock.Lock()
	defer lock.Unlock()
	for k, v := range defaults {
		viper.SetDefault(k, v)
	}
}

// InitEnv binds environment variables: NODEOPS_SUBTASK_RETRIES maps to subtask.retries.
func InitEnv(prefix string) {
	lock.Lock()
	defer lock.Unlock()
	viper.SetEnvPrefix(prefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

func SetConfigFile(in string) {
	lock.Lock()
	defer lock.Unlock()
	viper.SetConfigFile(in)
}

func BindPFlags(flags *pflag.FlagSet) error {
	lock.Lock()
	defer lock.Unlock()
	return viper.BindPFlags(flags)
}

// BindPFlag binds a config key to a flag whose name differs from the key.
func BindPFlag(key string, flag *pflag.Flag) error {
	lock.Lock()
	defer lock.Unlock()
	return viper.BindPFlag(key, flag)
}

func ReadInConfig() error {
	lock.Lock()
	defer lock.Unlock()
	return viper.ReadInConfig()
}

func ConfigFileUsed() string {
	lock.RLock()
	defer lock.RUnlock()
	return viper.ConfigFileUsed()
}

func OnConfigChange(run func(in fsnotify.Event)) {
	viper.OnConfigChange(run)
}

func WatchConfig() {
	viper.WatchConfig()
}

func Reset() {
	lock.Lock()
	defer lock.Unlock()
	viper.Reset()
}
