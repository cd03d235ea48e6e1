// table.go: Plain text tables for diagnostic output
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package snapplugin

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// tableSpacing is the gap after the widest cell of each column.
const tableSpacing = 5

// tabulate renders rows under headers with left-aligned columns. Each
// column is as wide as its widest cell plus spacing. An empty table renders
// as "None\n". Rows shorter than headers are padded with empty cells.
func tabulate(rows [][]any, headers []string, spacing int) string {
	if len(rows) == 0 {
		return "None\n"
	}

	cells := make([][]string, 0, len(rows)+1)
	cells = append(cells, headers)
	for _, row := range rows {
		line := make([]string, len(headers))
		for i := range headers {
			if i < len(row) {
				line[i] = formatCell(row[i])
			}
		}
		cells = append(cells, line)
	}

	widths := make([]int, len(headers))
	for _, line := range cells {
		for i, cell := range line {
			if n := utf8.RuneCountInString(cell); n > widths[i] {
				widths[i] = n
			}
		}
	}

	var b strings.Builder
	for _, line := range cells {
		for i, cell := range line {
			b.WriteString(cell)
			b.WriteString(strings.Repeat(" ", widths[i]-utf8.RuneCountInString(cell)+spacing))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func formatCell(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case fmt.Stringer:
		return c.String()
	case []byte:
		return fmt.Sprintf("%x", c)
	default:
		return fmt.Sprint(c)
	}
}
