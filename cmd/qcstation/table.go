package main

import (
	"fmt"
	"io"

	"qcstation/internal/console"
)

func printTable(out io.Writer, headers []string, rows [][]string, aligns []console.Alignment) {
	if len(rows) == 0 {
		fmt.Fprintln(out, "(none)")
		return
	}
	fmt.Fprintln(out, console.Table(headers, rows, aligns))
}

func formatSeconds(sec float64) string {
	if sec <= 0 {
		return "-"
	}
	total := int(sec + 0.5)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
