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

package app

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/apecloud/nodeops/apis/universe/v1alpha1"
	"github.com/apecloud/nodeops/pkg/class"
	"github.com/apecloud/nodeops/pkg/constant"
	"github.com/apecloud/nodeops/pkg/httpserver"
	"github.com/apecloud/nodeops/pkg/lock"
	"github.com/apecloud/nodeops/pkg/metrics"
	"github.com/apecloud/nodeops/pkg/nodeagent"
	"github.com/apecloud/nodeops/pkg/nodeagent/fake"
	"github.com/apecloud/nodeops/pkg/operations"
	"github.com/apecloud/nodeops/pkg/store"
	"github.com/apecloud/nodeops/pkg/task"
	viper "github.com/apecloud/nodeops/pkg/viperx"
)

type serveOptions struct {
	simulate bool
	// shutdownTimeout bounds how long running tasks may take to stop on shutdown
	shutdownTimeout time.Duration
}

// flag name -> config key
var serveFlagKeys = map[string]string{
	"api-addr":           constant.CfgKeyAPIAddr,
	"store-driver":       constant.CfgKeyStoreDriver,
	"store-dsn":          constant.CfgKeyStoreDSN,
	"store-seed":         constant.CfgKeyStoreSeed,
	"lock-driver":        constant.CfgKeyLockDriver,
	"etcd-endpoints":     constant.CfgKeyEtcdEndpoints,
	"max-parallel-nodes": constant.CfgKeyMaxParallelNodes,
	"instance-types":     constant.CfgKeyInstanceTypesFile,
}

func newServeCmd() *cobra.Command {
	o := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API and drive resize tasks.",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			for name, key := range serveFlagKeys {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), o)
		},
	}
	flags := cmd.Flags()
	flags.BoolVar(&o.simulate, "simulate", false, "drive an in-process node simulator seeded from the store seed instead of the node agents")
	flags.DurationVar(&o.shutdownTimeout, "shutdown-timeout", 30*time.Second, "time running tasks get to stop on shutdown")
	flags.String("api-addr", constant.DefaultAPIAddr, "admin API listen address")
	flags.String("store-driver", constant.StoreDriverMemory, "metadata store driver, memory or mysql")
	flags.String("store-dsn", "", "mysql DSN of the metadata store")
	flags.String("store-seed", "", "universe snapshot file loaded into the memory store")
	flags.String("lock-driver", constant.LockDriverMemory, "universe lock driver, memory or etcd")
	flags.StringSlice("etcd-endpoints", nil, "etcd endpoints of the etcd lock driver")
	flags.Int("max-parallel-nodes", constant.DefaultMaxParallelNodes, "upper bound of non-master nodes taken down together")
	flags.String("instance-types", "", "instance type catalogue file, empty accepts any instance type")
	return cmd
}

func runServe(ctx context.Context, o *serveOptions) error {
	logger := ctrl.Log.WithName("serve")
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return errors.Wrap(err, "failed to register metrics")
	}

	st, err := store.New(ctx,
		viper.GetString(constant.CfgKeyStoreDriver),
		viper.GetString(constant.CfgKeyStoreDSN),
		viper.GetString(constant.CfgKeyStoreSeed))
	if err != nil {
		return errors.Wrap(err, "store initialize failed")
	}
	defer st.Close()

	locker, err := lock.New(viper.GetString(constant.CfgKeyLockDriver),
		viper.GetStringSlice(constant.CfgKeyEtcdEndpoints),
		viper.GetInt(constant.CfgKeyLockTTL))
	if err != nil {
		return errors.Wrap(err, "lock initialize failed")
	}
	defer locker.Close()

	nodeManager, err := newNodeManager(o)
	if err != nil {
		return err
	}
	catalogue, err := loadCatalogue()
	if err != nil {
		return err
	}

	executor := task.NewExecutor(ctrl.Log, task.Options{
		Retries: viper.GetInt(constant.CfgKeySubtaskRetries),
		Backoff: viper.GetDuration(constant.CfgKeySubtaskBackoff),
		Timeout: viper.GetDuration(constant.CfgKeySubtaskTimeout),
	})
	opsMgr := operations.NewOpsManager(ctx, st, locker, nodeManager, executor, operations.Options{
		MaxParallelNodes:   viper.GetInt(constant.CfgKeyMaxParallelNodes),
		HealthCheckTimeout: viper.GetDuration(constant.CfgKeyHealthCheckTimeout),
		Catalogue:          catalogue,
	})

	if viper.ConfigFileUsed() != "" {
		viper.OnConfigChange(func(e fsnotify.Event) {
			logger.Info("config file changed", "file", e.Name, "op", e.Op.String())
			c, err := loadCatalogue()
			if err != nil {
				logger.Error(err, "keeping the previous instance type catalogue")
				return
			}
			opsMgr.SetCatalogue(c)
		})
		viper.WatchConfig()
	}

	httpServer := httpserver.NewServer(httpserver.ConfigFromViper(), opsMgr)
	if err = httpServer.StartNonBlocking(); err != nil {
		return errors.Wrap(err, "HTTP server initialize failed")
	}
	defer httpServer.Close()

	<-ctx.Done()
	logger.Info("shutting down, waiting for running tasks")
	waitCtx, cancel := context.WithTimeout(context.Background(), o.shutdownTimeout)
	defer cancel()
	if err = opsMgr.Wait(waitCtx); err != nil {
		logger.Error(err, "tasks still running at shutdown")
	}
	return nil
}

func newNodeManager(o *serveOptions) (nodeagent.NodeManager, error) {
	if !o.simulate {
		return nodeagent.NewHTTPClient(viper.GetInt(constant.CfgKeyNodeAgentPort),
			viper.GetDuration(constant.CfgKeyHealthCheckInterval)), nil
	}
	var nodes []*v1alpha1.NodeDetails
	if seed := viper.GetString(constant.CfgKeyStoreSeed); seed != "" {
		universes, err := store.LoadUniverses(seed)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load the simulated universes")
		}
		for _, u := range universes {
			nodes = append(nodes, u.Nodes...)
		}
	}
	ctrl.Log.WithName("serve").Info("using the node simulator", "nodes", len(nodes))
	return fake.NewNodeAgent(nodes), nil
}

func loadCatalogue() (*class.Catalogue, error) {
	file := viper.GetString(constant.CfgKeyInstanceTypesFile)
	if file == "" {
		return nil, nil
	}
	catalogue, err := class.LoadCatalogue(file)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load instance type catalogue %s", file)
	}
	return catalogue, nil
}
