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
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/apecloud/nodeops/pkg/constant"
	"github.com/apecloud/nodeops/pkg/printer"
	"github.com/apecloud/nodeops/version"
)

func newVersionCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version information.",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			if !verbose {
				fmt.Fprintf(out, "%s: %s\n", constant.AppName, version.GetVersion())
				return
			}
			info := version.Info()
			keys := maps.Keys(info)
			slices.Sort(keys)
			tbl := printer.NewTablePrinter(out)
			for _, k := range keys {
				tbl.AddRow(k+":", info[k])
			}
			tbl.Print()
		},
	}
	cmd.Flags().BoolVar(&verbose, "verbose", false, "print build and runtime details")
	return cmd
}
