package console

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"qcstation/internal/engine"
	"qcstation/internal/summary"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

type tone int

const (
	toneInfo tone = iota
	toneOK
	toneWarn
	toneError
)

// Console applies parsed commands to an engine and writes the outcome.
type Console struct {
	out      io.Writer
	colorize bool
}

// New returns a console writing to out. colorize enables ANSI colors.
func New(out io.Writer, colorize bool) *Console {
	return &Console{out: out, colorize: colorize}
}

// Apply runs cmd against eng and reports whether the operator asked to quit.
func (c *Console) Apply(eng *engine.Engine, cmd Command) (quit bool) {
	var (
		res engine.Result
		err error
	)
	switch cmd.Name {
	case NameScan:
		res, err = eng.Scan(cmd.Scan)
	case NameMode:
		if err = eng.SetMode(cmd.Mode); err == nil {
			res = engine.Result{Outcome: engine.OutcomeNotice, Message: "mode " + cmd.Mode.String()}
		}
	case NameUndo:
		res, err = eng.Undo()
	case NameReset:
		res, err = eng.Reset()
	case NameSubmit:
		res, err = eng.SubmitPartial()
	case NameReplace:
		res, err = eng.BeginReplace()
	case NameCancel:
		res, err = eng.Cancel()
	case NameAnswer:
		res, err = eng.Answer(cmd.Choice)
	case NameFinish:
		switch eng.Mode() {
		case engine.ModeRemnant:
			res, err = eng.FinishRemnant()
		case engine.ModeDefective:
			res, err = eng.FinishDefect()
		default:
			res, err = eng.SubmitPartial()
		}
	case NameTarget:
		res, err = eng.SetDefectTarget(cmd.N)
	case NameOverflow:
		if err = eng.SetOverflowItem(cmd.Arg); err == nil {
			res = engine.Result{Outcome: engine.OutcomeNotice, Message: "overflow item " + cmd.Arg}
		}
	case NamePedal:
		eng.PedalActivity()
		return false
	case NameStatus:
		c.Status(eng.State())
		return false
	case NameSummary:
		c.Summary(eng.Summary())
		return false
	case NameDefects:
		defects, derr := eng.Unprocessed(cmd.Arg)
		if derr != nil {
			c.Error(derr)
			return false
		}
		c.Defects(defects)
		return false
	case NameHelp:
		fmt.Fprintln(c.out, Help)
		return false
	case NameQuit:
		return true
	}
	if err != nil {
		c.Error(err)
		return false
	}
	c.Result(res)
	if res.Outcome != engine.OutcomeDebounced {
		c.Status(eng.State())
	}
	return false
}

// Result writes the outcome of one input.
func (c *Console) Result(res engine.Result) {
	switch res.Outcome {
	case engine.OutcomeNone, engine.OutcomeDebounced:
		if res.Message != "" {
			c.line(toneInfo, "", res.Message)
		}
	case engine.OutcomeCompleted:
		for _, tray := range res.Completed {
			label := "TRAY COMPLETE"
			if tray.IsPartialSubmission {
				label = "PARTIAL TRAY"
			}
			c.line(toneOK, label, fmt.Sprintf("%s good %d defective %d %s",
				tray.ItemCode, tray.GoodCount, tray.DefectiveCount, formatSeconds(tray.WorkTimeSec)))
		}
		if len(res.Completed) == 0 && res.Message != "" {
			c.line(toneOK, "DONE", res.Message)
		}
	case engine.OutcomePrompt:
		if res.Message != "" {
			c.line(toneWarn, "", res.Message)
		}
	case engine.OutcomeNotice, engine.OutcomeAwaiting:
		c.line(toneWarn, "", res.Message)
	default:
		c.line(toneOK, "", res.Message)
	}
	for _, box := range res.Artifacts {
		c.line(toneOK, "LABEL", fmt.Sprintf("%s %s x%d", box.ID, box.ItemCode, box.Quantity))
	}
	if res.Prompt != nil {
		c.prompt(res.Prompt)
	}
}

// Error writes a rejection. Scan errors carry their kind so the operator can
// tell a wrong item from a duplicate at a glance.
func (c *Console) Error(err error) {
	if se, ok := engine.AsScanError(err); ok {
		c.line(toneError, strings.ToUpper(se.Kind.String()), se.Error())
		return
	}
	c.line(toneError, "ERROR", err.Error())
}

// Status writes the one-line station status.
func (c *Console) Status(v engine.View) {
	var b strings.Builder
	b.WriteString("[" + v.Mode.String() + "] " + v.Worker)
	switch {
	case v.Session != nil:
		s := v.Session
		fmt.Fprintf(&b, " | %s %s %d/%d (good %d, defective %d)",
			s.ItemCode, s.ItemName, s.Filled(), s.Quantity, len(s.GoodItems), len(s.DefectiveItems))
	case v.Remnant != nil && v.Remnant.Active():
		fmt.Fprintf(&b, " | remnant %s %d", v.Remnant.ItemCode, len(v.Remnant.ScannedBarcodes))
	case v.Merge != nil && v.Merge.Active():
		fmt.Fprintf(&b, " | defect box %s %d/%d", v.Merge.ItemCode, len(v.Merge.ScannedDefects), v.Merge.TargetQuantity)
	}
	if v.Pending != "" {
		b.WriteString(" | " + strings.ReplaceAll(v.Pending, "_", " "))
		if v.Needed > 0 {
			b.WriteString(", " + strconv.Itoa(v.Needed) + " to go")
		}
	}
	if v.Idle {
		b.WriteString(" | idle")
	}
	c.line(toneInfo, "", b.String())
}

// Summary writes the day's per-item table.
func (c *Console) Summary(d summary.Daily) {
	rows := make([][]string, 0, len(d.Items))
	for _, item := range d.Items {
		rows = append(rows, []string{
			item.Code, item.Name, item.Spec,
			strconv.Itoa(item.PalletCount), strconv.Itoa(item.DefectiveEACount),
		})
	}
	fmt.Fprintln(c.out, Table(
		[]string{"Item", "Name", "Spec", "Trays", "Defective"},
		rows,
		[]Alignment{AlignLeft, AlignLeft, AlignLeft, AlignRight, AlignRight},
	))
	fmt.Fprintf(c.out, "trays %d  p50 %s  p90 %s\n", d.TotalTrays, formatSeconds(d.P50), formatSeconds(d.P90))
}

// Defects writes the unprocessed defect list.
func (c *Console) Defects(defects []engine.Defect) {
	if len(defects) == 0 {
		c.line(toneInfo, "", "no unprocessed defects")
		return
	}
	rows := make([][]string, 0, len(defects))
	for _, d := range defects {
		rows = append(rows, []string{d.Barcode, d.ItemCode, d.Worker, d.At.Format("2006-01-02 15:04")})
	}
	fmt.Fprintln(c.out, Table([]string{"Barcode", "Item", "Worker", "Marked"}, rows, nil))
}

func (c *Console) prompt(p *engine.Prompt) {
	opts := make([]string, 0, len(p.Choices))
	for _, choice := range p.Choices {
		opts = append(opts, ":"+string(choice))
	}
	c.line(toneWarn, "?", p.Message+" ["+strings.Join(opts, " ")+"]")
}

func (c *Console) line(t tone, label, message string) {
	text := message
	if label != "" {
		text = label + " " + message
	}
	if c.colorize {
		if color := toneColor(t); color != "" {
			text = color + text + ansiReset
		}
	}
	fmt.Fprintln(c.out, text)
}

func toneColor(t tone) string {
	switch t {
	case toneOK:
		return ansiGreen
	case toneWarn:
		return ansiYellow
	case toneError:
		return ansiRed
	case toneInfo:
		return ansiBlue
	default:
		return ""
	}
}

func formatSeconds(sec float64) string {
	if sec <= 0 {
		return "-"
	}
	total := int(sec + 0.5)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
