package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"qcstation/internal/preflight"
)

const (
	ansiReset = "\x1b[0m"
	ansiRed   = "\x1b[31m"
	ansiGreen = "\x1b[32m"
)

const statusLabelWidth = 20

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the sync folder, catalog and local stores",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			if ctx.configExists {
				fmt.Fprintf(out, "Config: %s\n", ctx.configPath)
			} else {
				fmt.Fprintln(out, "Config: defaults")
			}
			results := preflight.RunAll(cfg)
			for _, r := range results {
				fmt.Fprintln(out, renderCheck(r, colorize))
			}
			if preflight.Failed(results) {
				return errors.New("one or more checks failed")
			}
			return nil
		},
	}
}

func renderCheck(r preflight.Result, colorize bool) string {
	status, color := "OK", ansiGreen
	if !r.Passed {
		status, color = "FAIL", ansiRed
	}
	line := fmt.Sprintf("  %-*s [%s] %s", statusLabelWidth, r.Name+":", status, r.Detail)
	if colorize {
		return color + line + ansiReset
	}
	return line
}
