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
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/apecloud/nodeops/apis/universe/v1alpha1"
	"github.com/apecloud/nodeops/pkg/constant"
	"github.com/apecloud/nodeops/pkg/lock"
	"github.com/apecloud/nodeops/pkg/operations"
	"github.com/apecloud/nodeops/pkg/printer"
	"github.com/apecloud/nodeops/pkg/store"
	"github.com/apecloud/nodeops/pkg/task"
	viper "github.com/apecloud/nodeops/pkg/viperx"
)

type planOptions struct {
	universeFile string
	requestFile  string
	out          io.Writer
}

func newPlanCmd() *cobra.Command {
	o := &planOptions{out: os.Stdout}
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the subtask groups a resize request would run, without running them.",
		Example: `  # preview a resize of the universes described in universe.yaml
  nodeops plan -f universe.yaml -r request.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			o.out = cmd.OutOrStdout()
			return o.run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&o.universeFile, "file", "f", "", "universe snapshot file")
	cmd.Flags().StringVarP(&o.requestFile, "request", "r", "", "resize request file")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("request")
	return cmd
}

func (o *planOptions) run(ctx context.Context) error {
	universes, err := store.LoadUniverses(o.universeFile)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(o.requestFile)
	if err != nil {
		return errors.Wrapf(err, "failed to read request %s", o.requestFile)
	}
	params := &v1alpha1.ResizeNodeParams{}
	if err = yaml.Unmarshal(data, params); err != nil {
		return errors.Wrapf(err, "failed to parse request %s", o.requestFile)
	}
	if params.UniverseUUID == "" && len(universes) == 1 {
		params.UniverseUUID = universes[0].UUID
	}
	catalogue, err := loadCatalogue()
	if err != nil {
		return err
	}

	opsMgr := operations.NewOpsManager(ctx, store.NewMemoryStore(universes...), lock.NewMemoryLocker(), nil, nil,
		operations.Options{
			MaxParallelNodes:   viper.GetInt(constant.CfgKeyMaxParallelNodes),
			HealthCheckTimeout: viper.GetDuration(constant.CfgKeyHealthCheckTimeout),
			Catalogue:          catalogue,
		})
	groups, err := opsMgr.PreviewMutation(ctx, params.UniverseUUID, params)
	if err != nil {
		return err
	}
	printGroups(o.out, groups)
	return nil
}

func printGroups(out io.Writer, groups []*task.SubTaskGroup) {
	tbl := printer.NewTablePrinter(out)
	tbl.SetHeader("#", "GROUP", "TYPE", "NODES")
	for i, g := range groups {
		tbl.AddRow(i+1, g.Name, colorGroupType(g.Type), strings.Join(g.NodeNames(), ","))
	}
	tbl.Print()
	fmt.Fprintf(out, "\n%d groups\n", len(groups))
}

// colorGroupType highlights the groups that change a node's hardware.
func colorGroupType(t v1alpha1.SubTaskGroupType) string {
	switch t {
	case v1alpha1.ChangeInstanceTypeGroupType, v1alpha1.ResizingDiskGroupType, v1alpha1.UpdatingMountedDisksGroupType:
		return printer.Yellow(string(t))
	case v1alpha1.StoppingNodeProcessesGroupType, v1alpha1.ChangeMasterConfigGroupType:
		return printer.Red(string(t))
	default:
		return printer.Green(string(t))
	}
}
