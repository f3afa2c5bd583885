// ABOUTME: Lipgloss styles for terminal tables: headers, route paths, totals, and run status colors.
// ABOUTME: StyleForStatus maps a recorded run status to its display style.
package export

import "github.com/charmbracelet/lipgloss"

var (
	// Table chrome
	BorderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			Padding(0, 1)
	CellStyle = lipgloss.NewStyle().Padding(0, 1)

	// Route cells
	PathStyle  = CellStyle.Foreground(lipgloss.Color("75"))
	TotalStyle = CellStyle.Bold(true).Foreground(lipgloss.Color("252"))

	// Run status colors
	OKStyle     = CellStyle.Foreground(lipgloss.Color("42"))
	FailedStyle = CellStyle.Foreground(lipgloss.Color("196")).Bold(true)
)

// StyleForStatus returns the cell style for a run status.
func StyleForStatus(status string) lipgloss.Style {
	switch status {
	case "ok":
		return OKStyle
	case "failed":
		return FailedStyle
	default:
		return CellStyle
	}
}
