package cli

import "github.com/charmbracelet/lipgloss"

// Theme holds the color scheme for the console.
type Theme struct {
	Status   lipgloss.Color
	Success  lipgloss.Color
	Error    lipgloss.Color
	Hint     lipgloss.Color
	Unread   lipgloss.Color
	Operator lipgloss.Color
	Customer lipgloss.Color
	Border   lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:   lipgloss.Color("#5FAFD7"), // light blue
	Success:  lipgloss.Color("#00D787"), // green
	Error:    lipgloss.Color("#FF005F"), // red
	Hint:     lipgloss.Color("#6C6C6C"), // dim gray
	Unread:   lipgloss.Color("#FFAF00"), // amber
	Operator: lipgloss.Color("#AF87FF"), // violet
	Customer: lipgloss.Color("#5FD7AF"), // teal
	Border:   lipgloss.Color("#3A3A3A"), // dark gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) successStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

func (t Theme) unreadStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Unread).Bold(true)
}

func (t Theme) selectedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Reverse(true)
}

func (t Theme) senderStyle(sender string) lipgloss.Style {
	if sender == "admin" {
		return lipgloss.NewStyle().Foreground(t.Operator).Bold(true)
	}
	return lipgloss.NewStyle().Foreground(t.Customer).Bold(true)
}

func (t Theme) paneStyle(width, height int) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Border).
		Width(width).
		Height(height)
}
