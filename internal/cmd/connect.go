package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/blacksky-md/bslink/internal/backoff"
	"github.com/blacksky-md/bslink/internal/config"
	"github.com/blacksky-md/bslink/internal/credstore"
	"github.com/blacksky-md/bslink/internal/event"
	"github.com/blacksky-md/bslink/internal/fingerprint"
	"github.com/blacksky-md/bslink/internal/logging"
	"github.com/blacksky-md/bslink/internal/session"
	"github.com/blacksky-md/bslink/internal/transport"
	"github.com/blacksky-md/bslink/internal/tui"
	"github.com/blacksky-md/bslink/internal/util"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var connectCmd = &cobra.Command{
	Use:   "connect [session-id]",
	Short: "Connect a session and keep it alive",
	Long: `Connect a session to the messaging service and keep it alive.

With stored credentials the session resumes silently. Without them the
handshake runs in the configured auth mode: "code_display" shows a
scannable login code, "pairing_code" requests a short code to enter on
the phone (requires a phone number).

Reconnects are automatic: disconnects are classified and retried with
capped exponential backoff, rotating the client fingerprint when the
disconnect cause suggests the identity was flagged.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConnect,
}

var (
	connectMode   string
	connectPhone  string
	connectNew    bool
	connectPlain  bool
	connectDryRun bool
)

// transportFactory builds the transport used by connect. The real wire
// binding lives outside this module; embedding programs register theirs
// via SetTransportFactory before Execute.
var transportFactory func() (transport.Transport, error)

// SetTransportFactory registers the transport used by the connect
// command. Must be called before Execute.
func SetTransportFactory(f func() (transport.Transport, error)) {
	transportFactory = f
}

func init() {
	rootCmd.AddCommand(connectCmd)

	connectCmd.Flags().StringVar(&connectMode, "mode", "", "auth mode for a fresh session: code_display or pairing_code (default: config)")
	connectCmd.Flags().StringVar(&connectPhone, "phone", "", "phone number for pairing_code mode (default: config)")
	connectCmd.Flags().BoolVar(&connectNew, "new", false, "start a fresh session under a generated ID")
	connectCmd.Flags().BoolVar(&connectPlain, "plain", false, "log events to stdout instead of the interactive view")
	connectCmd.Flags().BoolVar(&connectDryRun, "dry-run", false, "run against an in-process scripted transport (no network, temp credentials)")
}

func runConnect(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	sessionID := cfg.Session.ID
	if len(args) > 0 {
		sessionID = args[0]
	}
	if connectNew {
		sessionID = "s-" + strings.Split(uuid.NewString(), "-")[0]
	}

	mode := cfg.Session.AuthMode
	if connectMode != "" {
		mode = connectMode
	}
	if !config.IsValidAuthMode(mode) {
		return fmt.Errorf("invalid auth mode %q (valid: %s)", mode, strings.Join(config.ValidAuthModes(), ", "))
	}

	phone := cfg.Session.PhoneNumber
	if connectPhone != "" {
		phone = connectPhone
	}

	logger := logging.NopLogger()
	if cfg.Logging.Enabled {
		logDir := filepath.Join(cfg.Paths.ResolveLogDir(), sessionID)
		logger, err = logging.NewLogger(logDir, cfg.Logging.Level, cfg.Logging.RotationConfig())
		if err != nil {
			return fmt.Errorf("failed to open session log: %w", err)
		}
	}
	defer logger.Close()

	bus := event.NewBus()

	credDir := cfg.Paths.ResolveCredentialsDir()
	if connectDryRun {
		// A dry run must never touch real credentials.
		credDir, err = os.MkdirTemp("", "bslink-dryrun-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(credDir)
	}
	store, err := credstore.NewFileStore(credDir, bus)
	if err != nil {
		return err
	}

	rotator, err := fingerprint.NewRotator(cfg.Fingerprints.Descriptors())
	if err != nil {
		return err
	}

	scheduler, err := backoff.NewScheduler(cfg.Reconnect.BackoffConfig())
	if err != nil {
		return err
	}

	tr, err := buildTransport(session.AuthMode(mode))
	if err != nil {
		return err
	}

	mgr, err := session.NewManager(session.Options{
		SessionID: sessionID,
		Store:     store,
		Transport: tr,
		Rotator:   rotator,
		Scheduler: scheduler,
		Bus:       bus,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	if cfg.Session.WatchCredentials && !connectDryRun {
		watcher, err := credstore.NewWatcher(store, bus, logger)
		if err != nil {
			return fmt.Errorf("failed to watch credential directory: %w", err)
		}
		watcher.Start()
		defer watcher.Stop()
	}

	if connectPlain {
		return runPlain(mgr, bus, session.AuthMode(mode), phone)
	}

	app := tui.New(sessionID, bus)
	if err := mgr.Start(session.AuthMode(mode), phone); err != nil {
		return err
	}
	defer func() { _ = mgr.Stop() }()

	if err := app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// runPlain drives the session without the interactive view, printing
// one line per event until the session fails or the process is signaled.
func runPlain(mgr *session.Manager, bus *event.Bus, mode session.AuthMode, phone string) error {
	failed := make(chan struct{})
	subID := bus.SubscribeAll(func(ev event.Event) {
		fmt.Println(formatEvent(ev))
		if _, ok := ev.(event.FailedEvent); ok {
			close(failed)
		}
	})
	defer bus.Unsubscribe(subID)

	if err := mgr.Start(mode, phone); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
		return mgr.Stop()
	case <-failed:
		_ = mgr.Stop()
		return fmt.Errorf("session %s failed", mgr.Snapshot().SessionID)
	}
}

// formatEvent renders a bus event as a single log line.
func formatEvent(ev event.Event) string {
	ts := ev.Timestamp().Format("15:04:05")
	switch e := ev.(type) {
	case event.StateChangedEvent:
		return fmt.Sprintf("%s  state: %s -> %s", ts, e.PreviousState, e.CurrentState)
	case event.ConnectedEvent:
		if e.Resumed {
			return fmt.Sprintf("%s  connected (resumed) as %s", ts, e.Fingerprint)
		}
		return fmt.Sprintf("%s  connected (new pairing) as %s", ts, e.Fingerprint)
	case event.DisconnectedEvent:
		return fmt.Sprintf("%s  disconnected: %s (code %d) retry=%v", ts, e.Reason, e.StatusCode, e.WillRetry)
	case event.RetryScheduledEvent:
		return fmt.Sprintf("%s  retry #%d in %s as %s (rotated=%v)", ts, e.Attempt, e.Delay, e.Fingerprint, e.Rotated)
	case event.FailedEvent:
		return fmt.Sprintf("%s  failed: %s", ts, e.Reason)
	case event.CodeReadyEvent:
		return fmt.Sprintf("%s  login code ready: %s", ts, util.TruncateString(e.Payload, 48))
	case event.PairingCodeEvent:
		return fmt.Sprintf("%s  pairing code for %s: %s", ts, e.PhoneNumber, e.Code)
	case event.HandshakeFailedEvent:
		return fmt.Sprintf("%s  handshake failed: %s", ts, e.Error)
	case event.CredentialsSavedEvent:
		return fmt.Sprintf("%s  credentials saved", ts)
	case event.CredentialsErasedEvent:
		return fmt.Sprintf("%s  credentials erased (external=%v)", ts, e.External)
	default:
		return fmt.Sprintf("%s  %s", ts, ev.EventType())
	}
}

// buildTransport resolves the transport for this invocation: the
// registered factory, or a scripted in-process transport for dry runs.
func buildTransport(mode session.AuthMode) (transport.Transport, error) {
	if connectDryRun {
		return dryRunTransport(mode), nil
	}
	if transportFactory == nil {
		return nil, fmt.Errorf("no transport is wired into this build; use --dry-run to exercise the session flow without one")
	}
	return transportFactory()
}

// dryRunTransport scripts a full happy-path handshake so the session
// flow, credential persistence and presentation can be exercised
// end-to-end without a wire binding.
func dryRunTransport(mode session.AuthMode) transport.Transport {
	creds := []byte("dry-run-credentials-" + uuid.NewString())
	switch mode {
	case session.AuthPairingCode:
		return transport.NewFake(transport.Script{
			Events: []transport.Event{
				transport.PairingReadyEvent{},
				transport.CredentialsUpdateEvent{Credentials: creds},
				transport.OpenedEvent{},
			},
			PairingCode: "BSLK" + strings.ToUpper(strings.Split(uuid.NewString(), "-")[0][:4]),
		})
	default:
		return transport.NewFake(transport.Script{
			Events: []transport.Event{
				transport.CodeReadyEvent{Payload: "2@" + uuid.NewString()},
				transport.CredentialsUpdateEvent{Credentials: creds},
				transport.OpenedEvent{},
			},
		})
	}
}
