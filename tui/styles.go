package tui

import "github.com/charmbracelet/lipgloss"

var (
	TitleStyle     = lipgloss.NewStyle().Bold(true).Background(lipgloss.Color("63")).Foreground(lipgloss.Color("255")).Padding(0, 1)
	SegmentStyle   = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true).Padding(0, 1)
	HeaderKeyStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	DimStyle       = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "240", Dark: "244"})

	SelectedRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Bold(true)
	NormalRowStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "0", Dark: "15"})

	ChatUserStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("45")).Bold(true)
	ChatAssistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))

	CountdownStyle = lipgloss.NewStyle().Bold(true).Background(lipgloss.Color("196")).Foreground(lipgloss.Color("255")).Padding(0, 1)

	StatusBarNormalStyle  = lipgloss.NewStyle().Background(lipgloss.Color("235")).Foreground(lipgloss.Color("250")).Padding(0, 1)
	StatusBarErrorStyle   = lipgloss.NewStyle().Background(lipgloss.Color("196")).Foreground(lipgloss.Color("255")).Padding(0, 1)
	StatusBarSuccessStyle = lipgloss.NewStyle().Background(lipgloss.Color("28")).Foreground(lipgloss.Color("255")).Padding(0, 1)
)
