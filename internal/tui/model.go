package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/blacksky-md/bslink/internal/event"
	"github.com/blacksky-md/bslink/internal/util"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Messages

type tickMsg time.Time

// busMsg carries a session event into the Bubbletea update loop.
type busMsg struct {
	event event.Event
}

// logLimit caps the scrollback of the activity log.
const logLimit = 8

// Model is the Bubbletea model for the session status view.
type Model struct {
	sessionID string

	state       event.State
	attempt     int
	fingerprint string
	resumed     bool

	// Retry countdown
	retryAt      time.Time
	retryPending bool

	// Handshake artifacts
	codePayload string
	pairingCode string
	phoneNumber string

	failReason string
	log        []string

	spinner spinner.Model
	width   int
	quit    bool
}

// NewModel creates a model for the given session.
func NewModel(sessionID string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = Primary
	return Model{
		sessionID: sessionID,
		state:     event.StateIdle,
		spinner:   sp,
		width:     80,
	}
}

func tick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(), m.spinner.Tick)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quit = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tickMsg:
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case busMsg:
		m.apply(msg.event)
	}
	return m, nil
}

// apply folds a session event into the view state.
func (m *Model) apply(ev event.Event) {
	switch e := ev.(type) {
	case event.StateChangedEvent:
		m.state = e.CurrentState
		if e.CurrentState == event.StateConnecting {
			// A fresh attempt invalidates any displayed artifact.
			m.codePayload = ""
			m.pairingCode = ""
			m.retryPending = false
		}

	case event.ConnectedEvent:
		m.fingerprint = e.Fingerprint
		m.resumed = e.Resumed
		m.retryPending = false
		if e.Resumed {
			m.logf("connected (session resumed)")
		} else {
			m.logf("connected (new pairing)")
		}

	case event.DisconnectedEvent:
		if e.WillRetry {
			m.logf("disconnected: %s (code %d)", e.Reason, e.StatusCode)
		} else {
			m.logf("disconnected: %s (code %d, not retrying)", e.Reason, e.StatusCode)
		}

	case event.RetryScheduledEvent:
		m.attempt = e.Attempt
		m.fingerprint = e.Fingerprint
		m.retryAt = time.Now().Add(e.Delay)
		m.retryPending = true
		if e.Rotated {
			m.logf("retry #%d in %s as %s", e.Attempt, e.Delay.Round(time.Millisecond), e.Fingerprint)
		} else {
			m.logf("retry #%d in %s", e.Attempt, e.Delay.Round(time.Millisecond))
		}

	case event.FailedEvent:
		m.failReason = e.Reason
		m.retryPending = false
		m.logf("failed: %s", e.Reason)

	case event.CodeReadyEvent:
		m.codePayload = e.Payload
		m.logf("code ready, waiting for scan")

	case event.PairingCodeEvent:
		m.pairingCode = e.Code
		m.phoneNumber = e.PhoneNumber
		m.logf("pairing code issued for %s", e.PhoneNumber)

	case event.HandshakeFailedEvent:
		m.logf("handshake failed: %s", e.Error)

	case event.CredentialsSavedEvent:
		m.logf("credentials saved")

	case event.CredentialsErasedEvent:
		if e.External {
			m.logf("credentials removed outside the process")
		} else {
			m.logf("credentials erased")
		}
	}
}

func (m *Model) logf(format string, args ...any) {
	line := fmt.Sprintf("%s  %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	m.log = append(m.log, line)
	if len(m.log) > logLimit {
		m.log = m.log[len(m.log)-logLimit:]
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quit {
		return ""
	}

	var b strings.Builder
	b.WriteString(Title.Render(fmt.Sprintf("bslink - session %s", m.sessionID)))
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")

	if artifact := m.artifactView(); artifact != "" {
		b.WriteString("\n")
		b.WriteString(artifact)
		b.WriteString("\n")
	}

	if len(m.log) > 0 {
		b.WriteString("\n")
		for _, line := range m.log {
			b.WriteString(Muted.Render(line))
			b.WriteString("\n")
		}
	}

	b.WriteString(HelpBar.Render("q: quit"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) statusLine() string {
	badge := StateBadge.Foreground(stateColor(string(m.state))).Render(strings.ToUpper(string(m.state)))

	var parts []string
	switch m.state {
	case event.StateConnecting, event.StateAwaitingHandshake:
		parts = append(parts, m.spinner.View())
	case event.StateDisconnected:
		if m.retryPending {
			remaining := time.Until(m.retryAt)
			if remaining < 0 {
				remaining = 0
			}
			parts = append(parts, Warning.Render(fmt.Sprintf("retry #%d in %s", m.attempt, remaining.Round(time.Second))))
		}
	case event.StateFailed:
		if m.failReason != "" {
			parts = append(parts, Error.Render(m.failReason))
		}
	}
	if m.fingerprint != "" {
		parts = append(parts, Muted.Render(m.fingerprint))
	}

	line := badge
	if len(parts) > 0 {
		line += "  " + strings.Join(parts, "  ")
	}
	return line
}

// artifactView renders whichever handshake artifact is pending.
func (m Model) artifactView() string {
	switch {
	case m.pairingCode != "":
		code := formatPairingCode(m.pairingCode)
		body := fmt.Sprintf("Enter this code on %s:\n\n%s", m.phoneNumber, PairingCode.Render(code))
		return ArtifactBox.Render(body)
	case m.codePayload != "":
		payload := util.TruncateANSI(Text.Render(m.codePayload), m.width-8)
		body := "Scan from the phone's linked devices screen:\n\n" + payload
		return ArtifactBox.Render(body)
	}
	return ""
}

// formatPairingCode splits a code into groups of four for readability,
// matching how phones display it during entry.
func formatPairingCode(code string) string {
	if len(code) <= 4 {
		return code
	}
	var groups []string
	for i := 0; i < len(code); i += 4 {
		end := i + 4
		if end > len(code) {
			end = len(code)
		}
		groups = append(groups, code[i:end])
	}
	return strings.Join(groups, "-")
}
