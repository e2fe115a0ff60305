package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

const (
	ansiReset  = "\x1b[0m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiRed    = "\x1b[31m"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pipeline health counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.ensureStore()
			if err != nil {
				return err
			}
			defer ctx.close()

			summary, err := store.Health(cmd.Context())
			if err != nil {
				return err
			}

			colorize := shouldColorize(cmd.OutOrStdout())
			rows := [][]string{
				{"total", strconv.Itoa(summary.Total)},
				{"pending", strconv.Itoa(summary.Pending)},
				{"processing", strconv.Itoa(summary.Processing)},
				{colorLabel("ready", ansiGreen, colorize), strconv.Itoa(summary.Ready)},
				{colorLabel("failed", ansiRed, colorize), strconv.Itoa(summary.Failed)},
				{colorLabel("expired", ansiYellow, colorize), strconv.Itoa(summary.Expired)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"State", "Recordings"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		},
	}
}

func colorLabel(label, color string, colorize bool) string {
	if !colorize {
		return label
	}
	return color + label + ansiReset
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
