package domain

import "time"

// EventType — тип события жизненного цикла; совпадает с routing key в request_topic
type EventType string

const (
	EventCreated   EventType = "request.created"
	EventAccepted  EventType = "request.accepted"
	EventCompleted EventType = "request.completed"
	EventCancelled EventType = "request.cancelled"
	EventRated     EventType = "request.rated"
)

// ChangesAvailableSet reports whether the event adds or removes a pending request.
func (t EventType) ChangesAvailableSet() bool {
	switch t {
	case EventCreated, EventAccepted, EventCancelled:
		return true
	}
	return false
}

// RequestEvent — событие, которое отправляется в RabbitMQ и клиентам WebSocket.
type RequestEvent struct {
	ID             string          `json:"id"`
	Type           EventType       `json:"type"`
	RequestID      string          `json:"request_id"`
	RequesterID    string          `json:"requester_id"`
	WorkerID       *string         `json:"worker_id,omitempty"`
	PreviousWorker *string         `json:"previous_worker_id,omitempty"`
	Status         Status          `json:"status"`
	ActorID        string          `json:"actor_id"`
	OccurredAt     time.Time       `json:"occurred_at"`
	Request        *ServiceRequest `json:"request,omitempty"`
}

// NewRequestEvent builds an event snapshotting r after the transition.
func NewRequestEvent(id string, t EventType, r *ServiceRequest, actorID string, at time.Time) RequestEvent {
	return RequestEvent{
		ID:          id,
		Type:        t,
		RequestID:   r.ID,
		RequesterID: r.RequesterID,
		WorkerID:    cloneString(r.WorkerID),
		Status:      r.Status,
		ActorID:     actorID,
		OccurredAt:  at.UTC(),
		Request:     r.Clone(),
	}
}

// Recipients returns the user ids that must hear about the event directly.
func (e RequestEvent) Recipients() []string {
	out := []string{e.RequesterID}
	for _, w := range []*string{e.WorkerID, e.PreviousWorker} {
		if w != nil && *w != "" && *w != e.RequesterID && !contains(out, *w) {
			out = append(out, *w)
		}
	}
	return out
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

// Cancellation is the result of a successful cancel. PreviousWorkerID carries
// the worker unbound by cancelling an accepted request.
type Cancellation struct {
	Request          *ServiceRequest
	PreviousWorkerID *string
}
