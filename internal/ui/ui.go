// Package ui holds the CLI's terminal styles. Output degrades to plain
// text on dumb terminals, when NO_COLOR is set, or under --no-color.
package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	accent = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	pass   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warn   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	fail   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	muted  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func init() {
	if termenv.EnvNoColor() {
		DisableColor()
	}
}

// DisableColor forces plain output regardless of terminal support.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// RenderAccent styles headers and highlighted glyphs.
func RenderAccent(s string) string { return accent.Render(s) }

// RenderPass styles success markers.
func RenderPass(s string) string { return pass.Render(s) }

// RenderWarn styles warnings.
func RenderWarn(s string) string { return warn.Render(s) }

// RenderFail styles errors and failed counts.
func RenderFail(s string) string { return fail.Render(s) }

// RenderMuted styles secondary detail.
func RenderMuted(s string) string { return muted.Render(s) }
