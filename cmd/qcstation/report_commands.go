package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"qcstation/internal/artifacts"
	"qcstation/internal/console"
	"qcstation/internal/station"
)

func newSummaryCommand(ctx *commandContext) *cobra.Command {
	var worker string
	var date string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show the day's trays per item and the week's tray times",
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDay(date, time.Now())
			if err != nil {
				return err
			}
			return ctx.withStation(func(st *station.Station) error {
				report, err := st.Summary(strings.TrimSpace(worker), day)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				who := report.Worker
				if who == "" {
					who = "all workers"
				}
				fmt.Fprintf(out, "%s, %s\n", report.Day.Format(time.DateOnly), who)

				rows := make([][]string, 0, len(report.Daily.Items))
				for _, item := range report.Daily.Items {
					rows = append(rows, []string{
						item.Code, item.Name, item.Spec,
						strconv.Itoa(item.PalletCount), strconv.Itoa(item.DefectiveEACount),
					})
				}
				printTable(out, []string{"Item", "Name", "Spec", "Trays", "Defective"}, rows,
					[]console.Alignment{console.AlignLeft, console.AlignLeft, console.AlignLeft, console.AlignRight, console.AlignRight})
				fmt.Fprintf(out, "Trays today: %d  P50: %s  P90: %s\n",
					report.Daily.TotalTrays, formatSeconds(report.Daily.P50), formatSeconds(report.Daily.P90))

				week := report.Weekly
				fmt.Fprintf(out, "Week %s to %s: %d clean trays, average %s, best %s",
					week.WeekStart.Format(time.DateOnly), week.WeekEnd.Format(time.DateOnly),
					week.CleanTrays, formatSeconds(week.AverageSec), formatSeconds(week.BestSec))
				if week.Implausible > 0 {
					fmt.Fprintf(out, " (%d under %.0fs/unit ignored)", week.Implausible, week.MinPerUnit)
				}
				fmt.Fprintln(out)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&worker, "worker", "w", "", "Only this worker's trays")
	cmd.Flags().StringVarP(&date, "date", "d", "", "Day to report (YYYY-MM-DD, default today)")
	return cmd
}

func newTraysCommand(ctx *commandContext) *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "trays",
		Short: "List completed trays from the local index",
		RunE: func(cmd *cobra.Command, args []string) error {
			today := time.Now()
			fromDay, err := parseDay(from, today)
			if err != nil {
				return err
			}
			toDay, err := parseDay(to, fromDay)
			if err != nil {
				return err
			}
			return ctx.withStation(func(st *station.Station) error {
				trays, err := st.Trays(cmd.Context(), fromDay, toDay)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(trays))
				for _, t := range trays {
					rows = append(rows, []string{
						t.EndTime, t.Worker, t.ItemCode, t.MasterLabelCode,
						fmt.Sprintf("%d/%d", t.Good+t.Defective, t.Capacity),
						strconv.Itoa(t.Defective), yesNo(t.Partial), yesNo(t.Resumed),
					})
				}
				printTable(cmd.OutOrStdout(),
					[]string{"Completed", "Worker", "Item", "Master label", "Filled", "Defective", "Partial", "Resumed"},
					rows,
					[]console.Alignment{console.AlignLeft, console.AlignLeft, console.AlignLeft, console.AlignLeft, console.AlignRight, console.AlignRight})
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "First day (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&to, "to", "", "Last day (YYYY-MM-DD, default --from)")
	return cmd
}

func newBoxesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:       "boxes [remnant|defect]",
		Aliases:   []string{"artifacts"},
		Short:     "List stored remnant and defect boxes",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"remnant", "defect"},
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := []artifacts.Kind{artifacts.KindRemnant, artifacts.KindDefect}
			if len(args) == 1 {
				switch strings.ToLower(args[0]) {
				case "remnant", "spare":
					kinds = kinds[:1]
				case "defect", "defective":
					kinds = kinds[1:]
				default:
					return fmt.Errorf("unknown box kind %q", args[0])
				}
			}
			return ctx.withStation(func(st *station.Station) error {
				var rows [][]string
				for _, kind := range kinds {
					boxes, err := st.Boxes(kind)
					if err != nil {
						return err
					}
					for _, box := range boxes {
						source := box.SourceID
						if box.Partial {
							source = strings.TrimSpace(source + " partial")
						}
						rows = append(rows, []string{
							box.ID, box.CreationDate.Format(time.DateTime), box.Worker,
							box.ItemCode, strconv.Itoa(box.Quantity), source,
						})
					}
				}
				printTable(cmd.OutOrStdout(),
					[]string{"Box", "Created", "Worker", "Item", "Qty", "Note"},
					rows,
					[]console.Alignment{console.AlignLeft, console.AlignLeft, console.AlignLeft, console.AlignLeft, console.AlignRight})
				return nil
			})
		},
	}
}

func newDefectsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "defects [ITEM]",
		Short: "List defective units not yet packed into a defect box or reworked",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			item := ""
			if len(args) == 1 {
				item = strings.TrimSpace(args[0])
			}
			return ctx.withStation(func(st *station.Station) error {
				defects, err := st.UnprocessedDefects(item)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(defects))
				for _, d := range defects {
					rows = append(rows, []string{
						d.Barcode, d.ItemCode, d.MasterLabelCode, d.Worker, d.At.Format(time.DateTime),
					})
				}
				printTable(cmd.OutOrStdout(), []string{"Barcode", "Item", "Master label", "Worker", "Marked"}, rows, nil)
				return nil
			})
		},
	}
}

func newIndexCommand(ctx *commandContext) *cobra.Command {
	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Completed-tray index maintenance",
	}
	indexCmd.AddCommand(&cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the tray index from the shared inspection logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStation(func(st *station.Station) error {
				rebuildCtx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
				defer cancel()
				n, err := st.RebuildIndex(rebuildCtx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d trays\n", n)
				return nil
			})
		},
	})
	return indexCmd
}
