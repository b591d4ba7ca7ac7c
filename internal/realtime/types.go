// Package realtime broadcasts record and column mutations to
// organization-scoped subscribers. Delivery is fire-and-forget: a full buffer
// drops the event rather than blocking the write path.
package realtime

// Event names emitted by the board service and the bulk pipeline.
const (
	EventRecordCreated      = "record.created"
	EventRecordValueUpdated = "record.value_updated"
	EventRecordDeleted      = "record.deleted"
	EventRecordRestored     = "record.restored"
	EventColumnCreated      = "column.created"
	EventJobCompleted       = "job.completed"
)

// Event is a single broadcast addressed to one organization's subscribers.
type Event struct {
	OrganizationID uint
	Name           string
	Payload        map[string]any
}

// Consumer receives events from the bus. Implementations must be safe for
// concurrent calls from multiple dispatch workers.
type Consumer interface {
	Name() string
	ProcessEvent(event Event) error
}

// Notifier is the emit-side interface consumed by the board service and the
// bulk pipeline. No delivery guarantee is required by callers.
type Notifier interface {
	Emit(organizationID uint, eventName string, payload map[string]any)
}

// NoopNotifier discards all events. Useful in tests and CLI tools that do not
// care about broadcasts.
type NoopNotifier struct{}

// Emit implements Notifier.
func (NoopNotifier) Emit(uint, string, map[string]any) {}

// BusStats tracks bus counters
type BusStats struct {
	EventsReceived  uint64
	EventsProcessed uint64
	EventsDropped   uint64
	ConsumerErrors  uint64
}
