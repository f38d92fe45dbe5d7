// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package text

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vulcanjs/mongo-rekey/common/testtype"
)

func TestColumnWidths(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	gw := GridWriter{}
	gw.WriteCells("users", 2)
	gw.EndRow()
	gw.WriteCells("letters", "")
	gw.EndRow()
	assert.Equal(t, []int{7, 1}, gw.calculateWidths())

	gw.WriteCells("a", 1000, "extra")
	gw.EndRow()
	assert.Equal(t, []int{7, 4, 5}, gw.calculateWidths(), "rows may have more cells")

	gw.updateWidths([]int{3, 3})
	assert.Equal(t, []int{3, 3}, gw.colWidths)
	gw.updateWidths([]int{2, 8, 1})
	assert.Equal(t, []int{3, 8, 1}, gw.colWidths, "widths only grow")
}

func TestFlush(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	report := func(gw *GridWriter, rows ...[]interface{}) string {
		for _, row := range rows {
			gw.WriteCells(row...)
			gw.EndRow()
		}
		var buf bytes.Buffer
		gw.Flush(&buf)
		return buf.String()
	}

	t.Run("right-aligned columns", func(t *testing.T) {
		gw := &GridWriter{ColumnPadding: 2}
		out := report(gw,
			[]interface{}{"collection", "documents"},
			[]interface{}{"users", 12},
		)
		assert.Equal(t, "collection  documents\n     users         12\n", out)
		assert.Empty(t, gw.Grid)
	})

	t.Run("minimum width", func(t *testing.T) {
		gw := &GridWriter{MinWidth: 4}
		assert.Equal(t, "   a  bb\n", report(gw, []interface{}{"a", "bb"}))
	})

	t.Run("widths carry over to the next flush", func(t *testing.T) {
		gw := &GridWriter{ColumnPadding: 1}
		assert.Equal(t, "orders 3\n", report(gw, []interface{}{"orders", 3}))
		assert.Equal(t, " plans 1\n", report(gw, []interface{}{"plans", 1}))
	})

	t.Run("empty rows are skipped", func(t *testing.T) {
		gw := &GridWriter{}
		gw.EndRow()
		gw.WriteCell("x")
		gw.EndRow()
		var buf bytes.Buffer
		gw.Flush(&buf)
		assert.Equal(t, "x\n", buf.String())
	})
}
