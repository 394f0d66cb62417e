// Package ui provides terminal styling for bamsync CLI output: status
// markers, the plan table, and run summaries. Colors degrade to plain text on
// pipes and when --no-color is set.
package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/ipamtools/bamsync/internal/model"
)

// Ayu theme palette, adaptive between light and dark terminals.
var (
	ColorPass = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"}
	ColorWarn = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
	ColorFail = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}

	ColorMuted  = lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"}
	ColorAccent = lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"}
)

var (
	PassStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentStyle = lipgloss.NewStyle().Foreground(ColorAccent)

	HeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
)

// Status icons shared by every command.
const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
	IconSkip = "-"
)

// opStyles maps each operation type to its display style.
var opStyles = map[model.OperationType]lipgloss.Style{
	model.OpCreate: PassStyle,
	model.OpUpdate: WarnStyle,
	model.OpDelete: FailStyle,
	model.OpNoop:   MutedStyle,
	model.OpOrphan: AccentStyle,
}

// RenderOp renders an operation type in its semantic color.
func RenderOp(t model.OperationType) string {
	if style, ok := opStyles[t]; ok {
		return style.Render(string(t))
	}
	return string(t)
}

// RenderPass renders text in the pass (green) style.
func RenderPass(s string) string { return PassStyle.Render(s) }

// RenderWarn renders text in the warning (yellow) style.
func RenderWarn(s string) string { return WarnStyle.Render(s) }

// RenderFail renders text in the fail (red) style.
func RenderFail(s string) string { return FailStyle.Render(s) }

// RenderMuted renders text in the muted (gray) style.
func RenderMuted(s string) string { return MutedStyle.Render(s) }

// RenderHeader renders a section header.
func RenderHeader(s string) string { return HeaderStyle.Render(s) }
