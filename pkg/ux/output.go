// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux styles the output of the synth CLI.
//
// Terminals get lipgloss styling. Everything else, pipes and files
// included, gets plain text that scripts can parse.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Aleutian palette
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title   lipgloss.Style
	Header  lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Header:  lipgloss.NewStyle().Bold(true).Foreground(ColorTealPrimary),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
}

// Mode selects how a Printer renders.
type Mode string

const (
	// ModeRich renders with colors and aligned columns.
	ModeRich Mode = "rich"

	// ModePlain renders tab-separated columns and key=value pairs.
	ModePlain Mode = "plain"
)

// DetectMode returns ModeRich when w is a terminal and NO_COLOR is unset.
func DetectMode(w io.Writer) Mode {
	if os.Getenv("NO_COLOR") != "" {
		return ModePlain
	}
	f, ok := w.(*os.File)
	if !ok {
		return ModePlain
	}
	if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
		return ModeRich
	}
	return ModePlain
}

// Count is one named number in a Counts line.
type Count struct {
	Name  string
	Value any
}

// Printer writes styled output to one writer.
//
// Thread Safety: Not safe for concurrent use.
type Printer struct {
	w    io.Writer
	mode Mode
}

// NewPrinter returns a printer for w in the mode DetectMode picks.
func NewPrinter(w io.Writer) *Printer {
	return NewPrinterMode(w, DetectMode(w))
}

// NewPrinterMode returns a printer for w in the given mode.
func NewPrinterMode(w io.Writer, mode Mode) *Printer {
	return &Printer{w: w, mode: mode}
}

// Mode returns the render mode.
func (p *Printer) Mode() Mode { return p.mode }

// Title prints a heading. detail follows in parentheses when set.
func (p *Printer) Title(text, detail string) {
	if p.mode == ModePlain {
		if detail != "" {
			fmt.Fprintf(p.w, "%s (%s)\n", text, detail)
			return
		}
		fmt.Fprintln(p.w, text)
		return
	}
	line := Styles.Title.Render(text)
	if detail != "" {
		line += " " + Styles.Muted.Render("("+detail+")")
	}
	fmt.Fprintln(p.w, line)
}

// Counts prints an indented line of counters.
//
// Plain mode writes name=value pairs; rich mode writes the value in bold
// followed by the muted name.
func (p *Printer) Counts(counts ...Count) {
	parts := make([]string, len(counts))
	for i, c := range counts {
		if p.mode == ModePlain {
			parts[i] = fmt.Sprintf("%s=%v", c.Name, c.Value)
			continue
		}
		parts[i] = Styles.Bold.Render(fmt.Sprint(c.Value)) + " " + Styles.Muted.Render(c.Name)
	}
	sep := " "
	if p.mode == ModeRich {
		sep = "  "
	}
	fmt.Fprintln(p.w, "  "+strings.Join(parts, sep))
}

// Warning prints a warning line.
func (p *Printer) Warning(text string) {
	if p.mode == ModePlain {
		fmt.Fprintf(p.w, "WARN: %s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", Styles.Warning.Render("⚠"), Styles.Warning.Render(text))
}

// Status renders a status cell: success style when ok, warning otherwise.
func (p *Printer) Status(ok bool, text string) string {
	if p.mode == ModePlain {
		return text
	}
	if ok {
		return Styles.Success.Render(text)
	}
	return Styles.Warning.Render(text)
}

// Table prints rows under headers.
//
// Plain mode writes one tab-separated line per row. Rich mode pads every
// column to its widest cell, measured without escape sequences, and
// styles the header row.
func (p *Printer) Table(headers []string, rows [][]string) {
	if p.mode == ModePlain {
		fmt.Fprintln(p.w, strings.Join(headers, "\t"))
		for _, r := range rows {
			fmt.Fprintln(p.w, strings.Join(r, "\t"))
		}
		return
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, r := range rows {
		for i, cell := range r {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(cell))
			}
		}
	}

	render := func(cells []string, style lipgloss.Style) string {
		out := make([]string, 0, len(cells))
		for i, cell := range cells {
			if i >= len(widths) {
				break
			}
			if i == len(widths)-1 {
				out = append(out, style.Render(cell))
				continue
			}
			out = append(out, style.Width(widths[i]+2).Render(cell))
		}
		return strings.Join(out, "")
	}
	fmt.Fprintln(p.w, render(headers, Styles.Header))
	for _, r := range rows {
		fmt.Fprintln(p.w, render(r, lipgloss.NewStyle()))
	}
}
