package tui

import "github.com/charmbracelet/lipgloss"

var (
	// Colors - chosen for readability on both black and dark surfaces
	PrimaryColor   = lipgloss.Color("#A78BFA") // Purple
	SecondaryColor = lipgloss.Color("#10B981") // Green
	WarningColor   = lipgloss.Color("#F59E0B") // Amber
	ErrorColor     = lipgloss.Color("#F87171") // Red
	MutedColor     = lipgloss.Color("#9CA3AF") // Gray
	TextColor      = lipgloss.Color("#F9FAFB") // Light text
	BorderColor    = lipgloss.Color("#6B7280") // Gray

	// Convenience styles for colors
	Primary   = lipgloss.NewStyle().Foreground(PrimaryColor)
	Secondary = lipgloss.NewStyle().Foreground(SecondaryColor)
	Warning   = lipgloss.NewStyle().Foreground(WarningColor)
	Error     = lipgloss.NewStyle().Foreground(ErrorColor)
	Muted     = lipgloss.NewStyle().Foreground(MutedColor)
	Text      = lipgloss.NewStyle().Foreground(TextColor)

	// State colors keyed by session state
	StateConnecting   = WarningColor
	StateHandshake    = PrimaryColor
	StateConnected    = SecondaryColor
	StateDisconnected = WarningColor
	StateFailed       = ErrorColor
	StateIdle         = MutedColor

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(PrimaryColor).
		MarginBottom(1)

	// StateBadge renders the session state name
	StateBadge = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	// ArtifactBox frames handshake artifacts (code payload or pairing code)
	ArtifactBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Padding(1, 2)

	// PairingCode renders the short pairing code for phone entry
	PairingCode = lipgloss.NewStyle().
			Bold(true).
			Foreground(SecondaryColor)

	HelpBar = lipgloss.NewStyle().
		Foreground(MutedColor).
		MarginTop(1)
)

// stateColor maps a session state name to its display color.
func stateColor(state string) lipgloss.Color {
	switch state {
	case "connecting":
		return StateConnecting
	case "awaiting_handshake":
		return StateHandshake
	case "connected":
		return StateConnected
	case "disconnected":
		return StateDisconnected
	case "failed":
		return StateFailed
	default:
		return StateIdle
	}
}
