// Package notify implements best-effort state-change notification fanout.
//
// Channels are named after stable keys: a user's email for their personal
// channel, a conversation ID for that conversation's channel. Delivery is
// fire-and-forget over an external pub/sub transport; a failed or slow
// publish must never delay or fail the API call that triggered it.
package notify

import "context"

// Event names pushed to clients.
const (
	EventConversationNew    = "conversation:new"
	EventConversationUpdate = "conversation:update"
	EventMessageNew         = "message:new"
	EventMessageUpdate      = "message:update"
)

// Transport is the external pub/sub boundary. Implementations must be safe
// for concurrent use.
type Transport interface {
	// Publish sends one encoded event to a named channel. Best-effort:
	// callers treat errors as diagnostics only.
	Publish(ctx context.Context, channel string, data []byte) error
	Close() error
}

// Envelope is the wire shape of a published notification.
type Envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}
