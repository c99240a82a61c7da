package main

import (
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

// renderPhones prints a record. Terminals get a table; pipes get one phone
// per line so the output stays script-friendly.
func renderPhones(w io.Writer, name string, phones []string) {
	if len(phones) == 0 {
		fmt.Fprintf(w, "%q has no phones on record\n", name)
		return
	}
	if !isTerminal(w) {
		for _, p := range phones {
			fmt.Fprintln(w, p)
		}
		return
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle(name)
	tw.AppendHeader(table.Row{"#", "Phone"})
	for i, p := range phones {
		tw.AppendRow(table.Row{i + 1, p})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignLeft},
	})
	fmt.Fprintln(w, tw.Render())
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
