// Package ui renders sync state for the terminal.
package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/inkwell-app/inkwell/internal/syncengine"
)

var (
	labelStyle = lipgloss.NewStyle().
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("160")).
			Bold(true)
)

// statusColor maps each sync status to a terminal color.
func statusColor(s syncengine.Status) lipgloss.Color {
	switch s {
	case syncengine.StatusSynced:
		return lipgloss.Color("34") // green
	case syncengine.StatusSyncing:
		return lipgloss.Color("33") // blue
	case syncengine.StatusPending:
		return lipgloss.Color("178") // yellow
	case syncengine.StatusFailed:
		return lipgloss.Color("160") // red
	case syncengine.StatusOffline:
		return lipgloss.Color("240") // grey
	default:
		return lipgloss.Color("252")
	}
}

// statusIcon maps each sync status to a badge glyph.
func statusIcon(s syncengine.Status) string {
	switch s {
	case syncengine.StatusSynced:
		return "●"
	case syncengine.StatusSyncing:
		return "◐"
	case syncengine.StatusPending:
		return "○"
	case syncengine.StatusFailed:
		return "✗"
	case syncengine.StatusOffline:
		return "◌"
	default:
		return "?"
	}
}

// RenderStatus returns a colored one-character badge plus the status name.
func RenderStatus(s syncengine.Status) string {
	style := lipgloss.NewStyle().Foreground(statusColor(s))
	return style.Render(statusIcon(s)+" "+string(s))
}

// RenderSnapshot renders a multi-line summary of the sync state.
func RenderSnapshot(snap syncengine.Snapshot) string {
	out := labelStyle.Render("Sync: ") + RenderStatus(snap.Status) + "\n"
	out += labelStyle.Render("Pending: ") + fmt.Sprintf("%d", snap.PendingCount)
	if snap.FailedCount > 0 {
		out += "  " + errStyle.Render(fmt.Sprintf("(%d failed)", snap.FailedCount))
	}
	out += "\n"
	if snap.RemoteProjectID != "" {
		out += labelStyle.Render("Remote: ") + snap.RemoteProjectID + "\n"
	}
	if snap.LastSyncedAt != nil {
		out += labelStyle.Render("Last synced: ") + renderAge(*snap.LastSyncedAt) + "\n"
	} else {
		out += dimStyle.Render("Never synced") + "\n"
	}
	return out
}

// renderAge formats a timestamp as a relative age ("3m ago").
func renderAge(t time.Time) string {
	age := time.Since(t)
	switch {
	case age < time.Minute:
		return "just now"
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	default:
		return t.Format("2006-01-02 15:04")
	}
}
