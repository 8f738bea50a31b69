package models

// Push event kinds.
const (
	PushKindNewBip    = "new-bip"
	PushKindConnected = "connected"
)

// PushEvent is what gets written to subscriber sockets. It never carries bip
// content; receivers re-query.
type PushEvent struct {
	Kind         string `json:"kind"`
	ConnectionID string `json:"connection_id,omitempty"`
}

// NewBipEvent is broadcast after a successful create.
func NewBipEvent() PushEvent {
	return PushEvent{Kind: PushKindNewBip}
}
