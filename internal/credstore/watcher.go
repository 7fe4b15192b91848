package credstore

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/blacksky-md/bslink/internal/event"
	"github.com/blacksky-md/bslink/internal/logging"
)

// selfEraseWindow is how long after a store-initiated Erase the watcher
// still attributes removal events to the store rather than to an
// external actor.
const selfEraseWindow = 2 * time.Second

// Watcher observes the credential directory for external erasure.
// Operators (and the original bot's users) sometimes delete an auth
// folder while the process is running; the watcher turns that into a
// credentials.erased event so the session layer can prompt for
// re-authentication instead of failing on the next reconnect.
type Watcher struct {
	store   *FileStore
	bus     *event.Bus
	logger  *logging.Logger
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	stopCh  chan struct{}
	stopped bool
}

// NewWatcher creates a watcher over the store's base directory.
// The logger may be nil.
func NewWatcher(store *FileStore, bus *event.Bus, logger *logging.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NopLogger()
	}

	w := &Watcher{
		store:   store,
		bus:     bus,
		logger:  logger,
		watcher: fw,
		stopCh:  make(chan struct{}),
	}
	if err := fw.Add(store.BaseDir()); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// Start begins processing filesystem events.
func (w *Watcher) Start() {
	go w.watchLoop()
}

// Stop stops the watcher and releases its resources. Safe to call twice.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	w.stopped = true
	close(w.stopCh)
	_ = w.watcher.Close()
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("credential watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	// Events arrive either for a session directory (rm -rf of the
	// folder) or for the blob file inside it.
	rel, err := filepath.Rel(w.store.BaseDir(), ev.Name)
	if err != nil || rel == "." {
		return
	}

	var sessionID string
	switch dir, base := filepath.Split(filepath.ToSlash(rel)); {
	case dir == "":
		sessionID = base
	case base == CredentialsFileName:
		sessionID = filepath.Base(filepath.Clean(dir))
	default:
		return
	}
	if sessionID == "" || validateSessionID(sessionID) != nil {
		return
	}

	if w.store.wasSelfErased(sessionID, selfEraseWindow) {
		return
	}
	if w.store.Exists(sessionID) {
		// Rename during an atomic rewrite; credentials are still there.
		return
	}

	w.logger.Warn("credentials removed externally", "session_id", sessionID, "path", ev.Name)
	if w.bus != nil {
		w.bus.Publish(event.NewCredentialsErasedEvent(sessionID, true))
	}
}
