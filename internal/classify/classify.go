// Package classify maps transport disconnect signals to retry decisions.
//
// A disconnect arrives as a status code plus a free-form message. The
// classifier resolves it to a Reason and the policy attached to that
// reason: whether to retry, whether to rotate the client fingerprint
// first, and whether the rate-limited backoff profile applies. Status
// codes are authoritative; message text is only a fallback for
// transports that close without a code.
package classify

import (
	"strings"

	"github.com/blacksky-md/bslink/internal/transport"
)

// Reason is the classified cause of a disconnect.
type Reason string

const (
	// ReasonLoggedOut means the credentials were invalidated upstream.
	// Always terminal: retrying would spin forever against credentials
	// that can never work again.
	ReasonLoggedOut Reason = "logged_out"

	// ReasonRateLimited means the service is throttling this client
	// identity.
	ReasonRateLimited Reason = "rate_limited"

	// ReasonConnectionReplaced means another client took over the
	// session's slot.
	ReasonConnectionReplaced Reason = "connection_replaced"

	// ReasonProtocolMismatch means the service rejected the client
	// version or the session state is unusable as presented.
	ReasonProtocolMismatch Reason = "protocol_mismatch"

	// ReasonNetworkError covers transient transport-level failures.
	ReasonNetworkError Reason = "network_error"

	// ReasonUnknown is anything the classifier cannot place.
	ReasonUnknown Reason = "unknown"

	// ReasonInternalError marks disconnects synthesized from a panic or
	// error inside the session's own event handling, not from the
	// transport.
	ReasonInternalError Reason = "internal_error"
)

// Decision is the retry policy for a classified disconnect.
type Decision struct {
	// Retry is false only for terminal disconnects.
	Retry bool

	// RotateFingerprint requests a different client identity for the
	// next attempt.
	RotateFingerprint bool

	// RateLimited selects the larger backoff profile.
	RateLimited bool
}

// policy is the fixed reason-to-decision table.
var policy = map[Reason]Decision{
	ReasonLoggedOut:          {Retry: false},
	ReasonRateLimited:        {Retry: true, RotateFingerprint: true, RateLimited: true},
	ReasonConnectionReplaced: {Retry: true},
	ReasonProtocolMismatch:   {Retry: true, RotateFingerprint: true},
	ReasonNetworkError:       {Retry: true},
	ReasonUnknown:            {Retry: true},
	ReasonInternalError:      {Retry: true},
}

// Decide returns the policy for a reason. Unlisted reasons retry
// without rotation, same as ReasonUnknown.
func Decide(r Reason) Decision {
	if d, ok := policy[r]; ok {
		return d
	}
	return policy[ReasonUnknown]
}

// Classify resolves a disconnect signal to its reason and decision.
func Classify(statusCode int, message string) (Reason, Decision) {
	r := reasonFor(statusCode, message)
	return r, Decide(r)
}

func reasonFor(statusCode int, message string) Reason {
	switch statusCode {
	case transport.StatusLoggedOut, transport.StatusForbidden:
		return ReasonLoggedOut
	case transport.StatusRateLimited:
		return ReasonRateLimited
	case transport.StatusConnectionReplaced:
		return ReasonConnectionReplaced
	case transport.StatusClientOutdated, transport.StatusBadSession:
		return ReasonProtocolMismatch
	case transport.StatusConnectionLost, transport.StatusServiceUnavailable, transport.StatusRestartRequired:
		return ReasonNetworkError
	}
	return reasonFromMessage(message)
}

// reasonFromMessage is the fallback for transports that close without a
// status code. Matching is substring-based and deliberately loose; the
// original connection scripts disagreed on exact wording.
func reasonFromMessage(message string) Reason {
	m := strings.ToLower(message)
	switch {
	case m == "":
		return ReasonUnknown
	case strings.Contains(m, "internal error"):
		// Synthesized by the session's own panic recovery, never by the
		// transport; matched first so a panic message quoting transport
		// wording cannot masquerade as a transport cause.
		return ReasonInternalError
	case strings.Contains(m, "logged out"), strings.Contains(m, "logout"):
		return ReasonLoggedOut
	case strings.Contains(m, "replaced"), strings.Contains(m, "conflict"):
		return ReasonConnectionReplaced
	case strings.Contains(m, "rate"), strings.Contains(m, "too many"), strings.Contains(m, "throttl"):
		return ReasonRateLimited
	case strings.Contains(m, "outdated"), strings.Contains(m, "version"), strings.Contains(m, "update required"):
		return ReasonProtocolMismatch
	case strings.Contains(m, "timed out"), strings.Contains(m, "timeout"),
		strings.Contains(m, "connection lost"), strings.Contains(m, "network"),
		strings.Contains(m, "unreachable"), strings.Contains(m, "reset"),
		strings.Contains(m, "refused"), strings.Contains(m, "stream errored"):
		return ReasonNetworkError
	}
	return ReasonUnknown
}
