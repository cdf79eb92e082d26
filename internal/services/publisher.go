package services

// Publisher delivers domain events to connected sessions. Services emit only
// after persistence succeeds so a client never observes an event for a
// mutation that could still fail.
type Publisher interface {
	// Broadcast delivers an event to every connected session.
	Broadcast(event string, payload interface{})

	// NotifyUser delivers an event to one user's sessions only.
	NotifyUser(userID uint64, event string, payload interface{})
}
