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
	"flag"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"k8s.io/klog/v2"
	ctrl "sigs.k8s.io/controller-runtime"
	kzap "sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/apecloud/nodeops/pkg/constant"
	viper "github.com/apecloud/nodeops/pkg/viperx"
)

// NewRootCmd returns the nodeops command, ctx is cancelled on shutdown signals.
func NewRootCmd(ctx context.Context) *cobra.Command {
	var (
		cfgFile string
		zapOpts = kzap.Options{Development: true}
	)
	cmd := &cobra.Command{
		Use:           constant.AppName,
		Short:         "Rolling instance type and disk changes for the nodes of a database universe.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(cmd, cfgFile); err != nil {
				return err
			}
			initLogger(&zapOpts)
			return nil
		},
	}
	cmd.SetContext(ctx)

	goFlags := flag.NewFlagSet(constant.AppName, flag.ContinueOnError)
	zapOpts.BindFlags(goFlags)
	klog.InitFlags(goFlags)
	cmd.PersistentFlags().AddGoFlagSet(goFlags)
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file, settings can also be given as NODEOPS_* environment variables")

	cmd.AddCommand(
		newServeCmd(),
		newPlanCmd(),
		newVersionCmd(),
	)
	return cmd
}

func initConfig(cmd *cobra.Command, cfgFile string) error {
	viper.SetDefaults(constant.Defaults())
	viper.InitEnv(constant.EnvPrefix)
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "failed to read config file %s", cfgFile)
		}
	}
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return errors.Wrap(err, "fatal error viper bindPFlags")
	}
	return nil
}

func initLogger(opts *kzap.Options) {
	kopts := []kzap.Opts{kzap.UseFlagOptions(opts)}
	if strings.EqualFold("debug", viper.GetString("zap-log-level")) {
		kopts = append(kopts, kzap.RawZapOpts(zap.AddCaller()))
	}
	ctrl.SetLogger(kzap.New(kopts...))
}
