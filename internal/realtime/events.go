package realtime

// Event names on the push channel. Task events are broadcast to every
// connected session; notification:new is scoped to the recipient's private
// channel.
const (
	EventTaskCreated     = "task:created"
	EventTaskUpdated     = "task:updated"
	EventTaskDeleted     = "task:deleted"
	EventNotificationNew = "notification:new"
)

// Event is a domain event queued for delivery to a session.
type Event struct {
	Name    string
	Payload interface{}
}

// TaskDeletedPayload is the body of a task:deleted event.
type TaskDeletedPayload struct {
	ID uint64 `json:"id"`
}
