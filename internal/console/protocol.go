package console

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"qcstation/internal/engine"
)

// Name identifies a console command.
type Name string

const (
	NameScan     Name = "scan"
	NameMode     Name = "mode"
	NameUndo     Name = "undo"
	NameReset    Name = "reset"
	NameSubmit   Name = "submit"
	NameReplace  Name = "replace"
	NameCancel   Name = "cancel"
	NameAnswer   Name = "answer"
	NameFinish   Name = "finish"
	NameTarget   Name = "target"
	NameOverflow Name = "overflow"
	NamePedal    Name = "pedal"
	NameStatus   Name = "status"
	NameSummary  Name = "summary"
	NameDefects  Name = "defects"
	NameHelp     Name = "help"
	NameQuit     Name = "quit"
)

// Command is one parsed input line.
type Command struct {
	Name Name
	Arg  string
	// Scan is set for NameScan.
	Scan engine.ScanEvent
	// Mode is set for NameMode.
	Mode engine.Mode
	// Choice is set for NameAnswer.
	Choice engine.Choice
	// N is set for NameTarget.
	N int
}

var aliases = map[string]Name{
	"mode":     NameMode,
	"m":        NameMode,
	"undo":     NameUndo,
	"u":        NameUndo,
	"reset":    NameReset,
	"submit":   NameSubmit,
	"partial":  NameSubmit,
	"replace":  NameReplace,
	"cancel":   NameCancel,
	"c":        NameCancel,
	"finish":   NameFinish,
	"done":     NameFinish,
	"target":   NameTarget,
	"overflow": NameOverflow,
	"pedal":    NamePedal,
	"status":   NameStatus,
	"s":        NameStatus,
	"summary":  NameSummary,
	"defects":  NameDefects,
	"help":     NameHelp,
	"?":        NameHelp,
	"quit":     NameQuit,
	"q":        NameQuit,
	"exit":     NameQuit,
}

var choices = map[string]engine.Choice{
	"yes":     engine.ChoiceYes,
	"y":       engine.ChoiceYes,
	"no":      engine.ChoiceNo,
	"n":       engine.ChoiceNo,
	"fill":    engine.ChoiceFill,
	"exclude": engine.ChoiceExclude,
}

// Parse reads one input line. ok is false for blank lines.
func Parse(line string) (cmd Command, ok bool, err error) {
	line = strings.TrimRight(line, "\r\n")
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Command{}, false, nil
	}

	switch trimmed[0] {
	case '!':
		raw := strings.TrimSpace(trimmed[1:])
		if raw == "" {
			return Command{Name: NamePedal}, true, nil
		}
		return Command{Name: NameScan, Scan: engine.ScanEvent{Barcode: raw, Defect: true}}, true, nil
	case ':':
	default:
		return Command{Name: NameScan, Scan: engine.ScanEvent{Barcode: trimmed}}, true, nil
	}

	word, arg, _ := strings.Cut(strings.TrimSpace(trimmed[1:]), " ")
	word = strings.ToLower(word)
	arg = strings.TrimSpace(arg)
	if choice, found := choices[word]; found {
		return Command{Name: NameAnswer, Choice: choice}, true, nil
	}
	name, found := aliases[word]
	if !found {
		return Command{}, true, fmt.Errorf("unknown command %q (try :help)", word)
	}
	cmd = Command{Name: name, Arg: arg}

	switch name {
	case NameMode:
		mode, found := engine.ParseMode(arg)
		if !found {
			return Command{}, true, fmt.Errorf("unknown mode %q", arg)
		}
		cmd.Mode = mode
	case NameTarget:
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			return Command{}, true, fmt.Errorf("target needs a positive number, got %q", arg)
		}
		cmd.N = n
	case NameOverflow:
		if arg == "" {
			return Command{}, true, errors.New("overflow needs an item code")
		}
	}
	return cmd, true, nil
}

// Help lists the commands.
const Help = `scan a barcode, or prefix it with ! while the defect pedal is held
  :mode standard|rework|remnant|defective
  :undo            remove the last unit
  :reset           discard the live tray
  :submit          close the tray as a partial submission
  :replace         replace the master label of a completed tray
  :yes :no :fill :exclude   answer the prompt
  :cancel          abandon the current step
  :finish          write the remnant or defect box
  :target N        defect box size
  :overflow CODE   item code for defect box overflow
  :status :summary :defects [ITEM]
  :quit`
