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

package printer

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

var (
	// StyleKubeCtl renders a Table like kubectl
	StyleKubeCtl = table.Style{
		Name:    "StyleKubeCtl",
		Box:     table.StyleBoxDefault,
		Color:   table.ColorOptionsDefault,
		Format:  table.FormatOptionsDefault,
		HTML:    table.DefaultHTMLOptions,
		Options: table.OptionsNoBordersAndSeparators,
		Title:   table.TitleOptionsDefault,
	}
)

// TablePrinter prints rows of the nodeops CLI output.
type TablePrinter struct {
	tbl table.Writer
}

func NewTablePrinter(out io.Writer) *TablePrinter {
	t := table.NewWriter()
	t.SetStyle(StyleKubeCtl)
	t.SetOutputMirror(out)
	return &TablePrinter{tbl: t}
}

func (t *TablePrinter) SetHeader(header ...interface{}) {
	t.tbl.AppendHeader(header)
}

func (t *TablePrinter) AddRow(row ...interface{}) {
	rowObj := table.Row{}
	for _, col := range row {
		rowObj = append(rowObj, col)
	}
	t.tbl.AppendRow(rowObj)
}

// AddSeparator separates the rows added so far from the next ones.
func (t *TablePrinter) AddSeparator() {
	t.tbl.AppendSeparator()
}

func (t *TablePrinter) Print() {
	t.tbl.Render()
}
