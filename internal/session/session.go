// Package session defines the messaging-session capability the bot manager
// drives: connect once per tenant, receive raw status callbacks, send text or
// image messages, list destinations, close.
//
// The transport itself (browser gateway, Telegram, ...) is opaque to the
// manager; drivers live in subpackages.
package session

import "context"

// Raw transport status values. These mirror what the gateway emits; drivers
// for other transports map their own vocabulary onto the same strings.
const (
	StatusLoggedIn     = "isLogged"
	StatusInChat       = "inChat"
	StatusChatsLoaded  = "chatsLoaded"
	StatusCodeReady    = "qrcode"
	StatusBrowserClose = "browserClose"
	StatusQRReadError  = "qrReadError"
	StatusServerClose  = "serverClose"
)

// Disposition classifies a raw status for the manager's state machine.
type Disposition int

const (
	// DispositionIgnore: informational, no transition.
	DispositionIgnore Disposition = iota
	// DispositionConnected: the session is usable.
	DispositionConnected
	// DispositionCode: a pairing code/QR payload is ready for the dashboard.
	DispositionCode
	// DispositionTerminal: the session died; the tenant must be stopped.
	DispositionTerminal
)

// Translate maps a raw transport status to its disposition.
func Translate(raw string) Disposition {
	switch raw {
	case StatusLoggedIn, StatusInChat, StatusChatsLoaded:
		return DispositionConnected
	case StatusCodeReady:
		return DispositionCode
	case StatusBrowserClose, StatusQRReadError, StatusServerClose:
		return DispositionTerminal
	default:
		return DispositionIgnore
	}
}

// StatusFunc receives raw status callbacks. payload carries status-specific
// data (e.g. the QR image for StatusCodeReady); it is often empty.
type StatusFunc func(raw string, payload string)

// Destination is one chat the session can post into.
type Destination struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Group bool   `json:"group"`
}

// Session is one tenant's connected transport.
//
// Implementations must tolerate Close being called more than once.
type Session interface {
	SendText(ctx context.Context, destID, text string) error
	SendImage(ctx context.Context, destID, imageURL, caption string) error
	ListDestinations(ctx context.Context) ([]Destination, error)
	// ListDestinationsFallback is the secondary listing used when the
	// primary returns nothing (some gateways only expose groups there).
	ListDestinationsFallback(ctx context.Context) ([]Destination, error)
	Close() error
}

// Transport acquires sessions.
type Transport interface {
	Connect(ctx context.Context, tenantID string, onStatus StatusFunc) (Session, error)
	// DropCredentials discards cached transport tokens for the tenant so the
	// next Connect starts a fresh pairing.
	DropCredentials(tenantID string) error
}
