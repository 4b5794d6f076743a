package provider

import "time"

// ConnectionState is the folded connection state the gateway understands,
// independent of the upstream's own vocabulary.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateQR           ConnectionState = "qr"
	StateConnected    ConnectionState = "connected"
)

// foldState maps the upstream's native state strings onto ConnectionState.
// Anything unrecognised folds to disconnected rather than erroring, since a
// stale or unexpected state string is not a reason to fail a status check.
func foldState(native string) ConnectionState {
	switch native {
	case "open":
		return StateConnected
	case "connecting":
		return StateConnecting
	case "close":
		return StateDisconnected
	default:
		return StateDisconnected
	}
}

// QR is the QR-code (or textual pairing code) returned by RequestQR.
type QR struct {
	Payload       string `json:"qr"`
	Kind          string `json:"qr_type"`
	ExpiresInSecs int    `json:"expires_in"`
}

// Status is the folded connection status returned by ConnectionStatus.
type Status struct {
	State ConnectionState
	Phone string
}

// Chat is one entry returned by ListGroups/ListContacts. LastActivityAt is
// nil when the upstream endpoint didn't report one, which the primary and
// fall-back endpoints do inconsistently.
type Chat struct {
	ID             string
	Kind           string // "group" | "direct"
	DisplayName    string
	PhoneNumber    string
	LastActivityAt *time.Time
}
