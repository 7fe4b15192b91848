package session

import (
	"strings"
	"time"
	"unicode"

	"github.com/blacksky-md/bslink/internal/errors"
)

// AuthMode selects which authentication handshake a session uses when
// no resumable credentials exist.
type AuthMode string

const (
	// AuthCodeDisplay authenticates by showing a scannable login code.
	AuthCodeDisplay AuthMode = "code_display"

	// AuthPairingCode authenticates by requesting a short numeric code
	// the user types on their primary device.
	AuthPairingCode AuthMode = "pairing_code"
)

// ArtifactKind distinguishes the two handshake artifact shapes.
type ArtifactKind string

const (
	ArtifactScannableCode ArtifactKind = "scannable_code"
	ArtifactPairingCode   ArtifactKind = "pairing_code"
)

// Artifact is the ephemeral output of a handshake flow, handed to the
// presentation layer for rendering. It is never persisted; each new
// emission supersedes the previous one, and a live connection clears it.
type Artifact struct {
	Kind        ArtifactKind
	Payload     string
	PhoneNumber string // pairing artifacts only
	IssuedAt    time.Time
}

// handshakeFlow is the per-mode strategy driven by the manager's event
// loop. Flows hold only per-attempt state; the manager serializes all
// calls.
type handshakeFlow interface {
	Mode() AuthMode

	// OnCodeReady turns a raw code payload into an artifact, or returns
	// nil if the flow ignores scannable codes.
	OnCodeReady(payload string) *Artifact

	// NeedsPairingRequest reports whether a pairing code should be
	// requested now, flipping the once-per-attempt guard as it does.
	NeedsPairingRequest() bool

	// PhoneNumber returns the pairing target, empty for code display.
	PhoneNumber() string

	// Reset clears per-attempt state before a new connection attempt.
	Reset()
}

// codeDisplayFlow packages each scannable code payload for rendering.
// The payload is opaque; interpretation belongs to the presentation
// layer.
type codeDisplayFlow struct{}

func (codeDisplayFlow) Mode() AuthMode { return AuthCodeDisplay }

func (codeDisplayFlow) OnCodeReady(payload string) *Artifact {
	return &Artifact{
		Kind:     ArtifactScannableCode,
		Payload:  payload,
		IssuedAt: time.Now(),
	}
}

func (codeDisplayFlow) NeedsPairingRequest() bool { return false }
func (codeDisplayFlow) PhoneNumber() string       { return "" }
func (codeDisplayFlow) Reset()                    {}

// pairingCodeFlow requests a pairing code for one phone number, at most
// once per connection attempt, and only after the transport signals it
// is ready for pairing. The ready signal, not a timer, gates the
// request; the copy-pasted scripts this replaces raced a fixed sleep
// against the transport's internal state.
type pairingCodeFlow struct {
	phoneNumber string
	requested   bool
}

func newPairingCodeFlow(rawPhoneNumber string) (*pairingCodeFlow, error) {
	phone, err := NormalizePhoneNumber(rawPhoneNumber)
	if err != nil {
		return nil, err
	}
	return &pairingCodeFlow{phoneNumber: phone}, nil
}

func (f *pairingCodeFlow) Mode() AuthMode { return AuthPairingCode }

// OnCodeReady ignores scannable codes; pairing sessions never render
// them even when the transport emits both.
func (f *pairingCodeFlow) OnCodeReady(string) *Artifact { return nil }

func (f *pairingCodeFlow) NeedsPairingRequest() bool {
	if f.requested {
		return false
	}
	f.requested = true
	return true
}

func (f *pairingCodeFlow) PhoneNumber() string { return f.phoneNumber }

func (f *pairingCodeFlow) Reset() { f.requested = false }

// NormalizePhoneNumber reduces an E.164-like input to bare digits,
// stripping the leading + and common separators. It rejects anything
// that is not 7 to 15 digits after stripping.
func NormalizePhoneNumber(raw string) (string, error) {
	stripped := strings.Map(func(r rune) rune {
		switch r {
		case '+', ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, raw)

	if stripped == "" {
		return "", errors.NewConfigurationError("phone number is required for pairing mode").
			WithField("phone_number")
	}
	for _, r := range stripped {
		if !unicode.IsDigit(r) {
			return "", errors.NewConfigurationError("phone number must contain only digits").
				WithField("phone_number").WithValue(raw)
		}
	}
	if len(stripped) < 7 || len(stripped) > 15 {
		return "", errors.NewConfigurationError("phone number must be 7 to 15 digits").
			WithField("phone_number").WithValue(raw)
	}
	return stripped, nil
}
