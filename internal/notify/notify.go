// Package notify publishes tenant-facing status events. The management API
// relays them to the dashboard over SSE; everything else in the process treats
// them as fire-and-forget.
package notify

import (
	"offerbot/internal/eventbus"
	logx "offerbot/pkg/logx"
)

// Event types the dashboard understands.
const (
	TypeInitializing = "initializing"
	TypeCodeReady    = "code"
	TypeConnected    = "connected"
	TypeOnline       = "online"
	TypeDestinations = "destinations"
	TypeOffline      = "offline"
	TypeError        = "error"
	TypeOfferSent    = "offer_sent"
	TypeLog          = "log"
)

// Notifier is a thin typed facade over the event bus.
type Notifier struct {
	bus eventbus.Bus
	log logx.Logger
}

func New(bus eventbus.Bus, log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{bus: bus, log: log}
}

// Publish emits one event scoped to the tenant. payload may be nil.
func (n *Notifier) Publish(tenantID, eventType string, payload any) {
	if n == nil || n.bus == nil {
		return
	}
	n.bus.Publish(eventbus.Event{TenantID: tenantID, Type: eventType, Data: payload})
	n.log.Debug("event published",
		logx.String("tenant", tenantID),
		logx.String("type", eventType))
}

// Subscribe returns the tenant's event feed. The caller must call unsubscribe
// when done; slow consumers drop events rather than blocking publishers.
func (n *Notifier) Subscribe(tenantID string, buffer int) (<-chan eventbus.Event, func()) {
	return n.bus.Subscribe(tenantID, buffer)
}
