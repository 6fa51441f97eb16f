package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"qcstation/internal/console"
	"qcstation/internal/logging"
	"qcstation/internal/station"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var worker string
	var decisionFlag string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Log in and start inspecting",
		Long: "Log a worker in and read scanner lines from standard input until :quit.\n\n" +
			console.Help,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			decision := station.DecisionNone
			if strings.TrimSpace(decisionFlag) != "" {
				d, ok := station.ParseDecision(decisionFlag)
				if !ok {
					return fmt.Errorf("invalid --decision %q (want resume, discard or abort)", decisionFlag)
				}
				decision = d
			}

			logger, err := ctx.newLogger()
			if err != nil {
				return err
			}
			st, err := station.Open(cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			in := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()
			if strings.TrimSpace(worker) == "" {
				if worker, err = ask(in, out, "worker: "); err != nil {
					return err
				}
			}

			if decision == station.DecisionNone {
				offer, err := st.PendingRestore(worker)
				if err != nil {
					fmt.Fprintf(out, "saved tray is unreadable: %v\n", err)
					offer = &station.RestoreOffer{}
				}
				if offer != nil {
					if decision, err = askDecision(in, out, offer); err != nil {
						return err
					}
				}
			}

			_, res, err := st.Login(worker, decision)
			if errors.Is(err, station.ErrLoginAborted) {
				fmt.Fprintln(out, "login aborted")
				return nil
			}
			if err != nil {
				return err
			}

			con := console.New(out, shouldColorize(out))
			if res.Message != "" {
				con.Result(res)
			}
			con.Status(st.Engine().State())

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			err = st.Run(runCtx, console.Feed(runCtx, in, con))
			if errors.Is(err, context.Canceled) {
				err = nil
			}
			if logoutErr := st.Logout(); logoutErr != nil {
				logger.Warn("logout failed", logging.Error(logoutErr))
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&worker, "worker", "w", "", "Worker name (prompted when omitted)")
	cmd.Flags().StringVar(&decisionFlag, "decision", "", "Answer for a saved tray: resume, discard or abort")
	return cmd
}

func ask(in *bufio.Reader, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	line, err := in.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" && err != nil {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(prompt, ": "), err)
	}
	return line, nil
}

func askDecision(in *bufio.Reader, out io.Writer, offer *station.RestoreOffer) (station.Decision, error) {
	switch {
	case offer.MasterLabelCode == "":
		fmt.Fprintln(out, "discard it to continue")
	case offer.Takeover:
		fmt.Fprintf(out, "%s left tray %s (%s) at %d/%d, saved %s\n",
			offer.PreviousWorker, offer.MasterLabelCode, offer.ItemCode,
			offer.Filled, offer.Quantity, offer.SavedAt.Format(time.DateTime))
	default:
		fmt.Fprintf(out, "unfinished tray %s (%s) at %d/%d, saved %s\n",
			offer.MasterLabelCode, offer.ItemCode, offer.Filled, offer.Quantity,
			offer.SavedAt.Format(time.DateTime))
	}
	choices := "resume/discard"
	if offer.Takeover {
		choices = "takeover/discard/abort"
	}
	for {
		answer, err := ask(in, out, choices+": ")
		if err != nil {
			return station.DecisionNone, err
		}
		d, ok := station.ParseDecision(answer)
		if ok && (d != station.DecisionAbort || offer.Takeover) {
			return d, nil
		}
	}
}
