// Package tui renders a live session status view. It subscribes to the
// session event bus and bridges events into the Bubbletea update loop.
package tui

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/blacksky-md/bslink/internal/event"
	tea "github.com/charmbracelet/bubbletea"
)

// App wraps the Bubbletea program
type App struct {
	program *tea.Program
	model   Model
	bus     *event.Bus
	events  chan event.Event
	subID   string
}

// New creates a TUI application observing the given bus. The
// subscription starts immediately so events published before Run are
// buffered rather than lost; a session may be started right after New.
func New(sessionID string, bus *event.Bus) *App {
	a := &App{
		model:  NewModel(sessionID),
		bus:    bus,
		events: make(chan event.Event, 256),
	}
	a.subID = bus.SubscribeAll(func(ev event.Event) {
		// The bus delivers synchronously; never block a publisher on
		// the render loop. Dropping under a full buffer is acceptable,
		// the view converges on the next event.
		select {
		case a.events <- ev:
		default:
		}
	})
	return a
}

// Run starts the TUI application and blocks until the user quits or the
// process receives a termination signal.
func (a *App) Run() error {
	defer a.bus.Unsubscribe(a.subID)

	a.program = tea.NewProgram(a.model)

	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case <-done:
				return
			case ev := <-a.events:
				a.program.Send(busMsg{event: ev})
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-done:
		case <-sigChan:
			if a.program != nil {
				a.program.Send(tea.Quit())
			}
		}
	}()

	_, err := a.program.Run()
	return err
}
