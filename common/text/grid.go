// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package text writes aligned plain-text tables.
package text

import (
	"fmt"
	"io"
	"strings"
)

// GridWriter buffers cells row by row and writes them as right-aligned
// columns. Column widths only ever grow across flushes so that consecutive
// reports line up.
type GridWriter struct {
	ColumnPadding int
	MinWidth      int
	Grid          [][]string
	CurrentRow    int
	colWidths     []int
}

// WriteCell appends a cell to the current row.
func (gw *GridWriter) WriteCell(data string) {
	for len(gw.Grid) <= gw.CurrentRow {
		gw.Grid = append(gw.Grid, []string{})
	}
	gw.Grid[gw.CurrentRow] = append(gw.Grid[gw.CurrentRow], data)
}

// WriteCells appends each value's fmt representation to the current row.
func (gw *GridWriter) WriteCells(data ...interface{}) {
	for _, s := range data {
		gw.WriteCell(fmt.Sprintf("%v", s))
	}
}

// EndRow terminates the current row.
func (gw *GridWriter) EndRow() {
	if len(gw.Grid) <= gw.CurrentRow {
		gw.Grid = append(gw.Grid, []string{})
	}
	gw.CurrentRow++
}

// Reset discards the buffered cells. Column widths are kept.
func (gw *GridWriter) Reset() {
	gw.CurrentRow = 0
	gw.Grid = [][]string{}
}

func (gw *GridWriter) updateWidths(colWidths []int) {
	if gw.colWidths == nil {
		gw.colWidths = make([]int, len(colWidths))
		copy(gw.colWidths, colWidths)
	}
	for i, width := range colWidths {
		if i >= len(gw.colWidths) {
			gw.colWidths = append(gw.colWidths, width)
		} else if width > gw.colWidths[i] {
			gw.colWidths[i] = width
		}
	}
}

// calculateWidths returns the widest cell of each column.
func (gw *GridWriter) calculateWidths() []int {
	var widths []int
	for _, row := range gw.Grid {
		for i, cell := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	return widths
}

// Flush writes the buffered rows to w, one line each, and resets the writer.
func (gw *GridWriter) Flush(w io.Writer) {
	widths := gw.calculateWidths()
	for i := range widths {
		if widths[i] < gw.MinWidth {
			widths[i] = gw.MinWidth
		}
	}
	gw.updateWidths(widths)

	padding := strings.Repeat(" ", gw.ColumnPadding)
	for _, row := range gw.Grid {
		if len(row) == 0 {
			continue
		}
		var line strings.Builder
		for i, cell := range row {
			if i > 0 {
				line.WriteString(padding)
			}
			fmt.Fprintf(&line, "%*s", gw.colWidths[i], cell)
		}
		line.WriteString("\n")
		_, _ = io.WriteString(w, line.String())
	}
	gw.Reset()
}
