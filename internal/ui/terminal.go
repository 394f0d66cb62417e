package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// Sprint funcs for one-off colored fragments, shared so commands do not
// rebuild them per call site. They print plain text when color is disabled.
var (
	Green  = color.New(color.FgGreen).SprintFunc()
	Yellow = color.New(color.FgYellow).SprintFunc()
	Red    = color.New(color.FgRed).SprintFunc()
	Cyan   = color.New(color.FgCyan).SprintFunc()
	Dim    = color.New(color.Faint).SprintFunc()
)

// IsTTY reports whether f is an interactive terminal.
func IsTTY(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// DisableColor turns off all color output, for --no-color and machine modes.
func DisableColor() {
	color.NoColor = true
}

// Successf prints a green check line to stdout.
func Successf(format string, args ...any) {
	fmt.Printf("%s %s\n", Green(IconPass), fmt.Sprintf(format, args...))
}

// Warnf prints a yellow warning line to stderr.
func Warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", Yellow(IconWarn), fmt.Sprintf(format, args...))
}

// Failf prints a red failure line to stderr.
func Failf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", Red(IconFail), fmt.Sprintf(format, args...))
}
