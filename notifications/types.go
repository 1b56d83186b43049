// Package notifications carries the status summary published by background
// polling to whatever surface the host offers.
package notifications

// Payload is a user-facing notification.
type Payload struct {
	Title   string
	Content string
}

// Sender shows notifications. Clear withdraws whatever the sender is showing
// and is called when background polling stops.
type Sender interface {
	Send(payload Payload)
	Clear()
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Send(Payload) {}
func (Nop) Clear()       {}
