// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the slopscope CLI.
package ux

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Slopscope palette - amber warnings over slate
var (
	ColorAmber  = lipgloss.Color("#F5A623") // brand, highlights
	ColorGood   = lipgloss.Color("#4CAF78") // low scores, success
	ColorBad    = lipgloss.Color("#E05252") // high scores, errors
	ColorMid    = lipgloss.Color("#E0B252") // mid scores, warnings
	ColorSlate  = lipgloss.Color("#5C6B73") // muted text, borders
	ColorBright = lipgloss.Color("#E8E4D8") // primary text
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Good    lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Box     lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorAmber),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Good:    lipgloss.NewStyle().Foreground(ColorGood),
	Warning: lipgloss.NewStyle().Foreground(ColorMid),
	Error:   lipgloss.NewStyle().Foreground(ColorBad),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorSlate).
		Padding(0, 1),
}

// Plain reports whether styling should be suppressed: piped output, dumb
// terminals, or NO_COLOR set.
func Plain() bool {
	if os.Getenv("NO_COLOR") != "" {
		return true
	}
	fd := os.Stdout.Fd()
	return !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd)
}

// ScoreStyle picks a style for a 0-100 slop score: green below 30, amber
// up to 65, red above.
func ScoreStyle(score float64) lipgloss.Style {
	switch {
	case score < 30:
		return Styles.Good
	case score < 65:
		return Styles.Warning
	default:
		return Styles.Error
	}
}

// Render applies style unless Plain() output is in effect.
func Render(style lipgloss.Style, s string) string {
	if Plain() {
		return s
	}
	return style.Render(s)
}

// Printf writes styled formatted output to stdout.
func Printf(style lipgloss.Style, format string, args ...any) {
	fmt.Println(Render(style, fmt.Sprintf(format, args...)))
}
