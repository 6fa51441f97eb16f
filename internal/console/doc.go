// Package console implements the operator line protocol of the workstation.
//
// Every line read from the scanner wedge or keyboard is one input. A plain
// line is a barcode scan; a line starting with "!" is a scan taken while the
// defect pedal is held; a line starting with ":" is a command such as
// ":mode rework", ":undo" or ":yes". Results, prompts and rejections are
// written back as short status lines.
package console
