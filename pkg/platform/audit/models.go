package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventCategory classifies events by their primary purpose.
// Categories drive topic routing and retention.
type EventCategory string

const (
	// CategoryCompliance covers records with regulatory significance: patient
	// registration and insurance registry changes.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers routine kiosk activity: orders and payments.
	CategoryOperations EventCategory = "operations"
)

// AggregateType names the entity an event belongs to. Events of one aggregate
// are published with the aggregate id as the message key so consumers see them in order.
type AggregateType string

const (
	AggregateOrder     AggregateType = "order"
	AggregateInsurance AggregateType = "insurance"
	AggregatePatient   AggregateType = "patient"
)

type AuditEvent string

const (
	// Order events
	EventOrderCreated         AuditEvent = "order_created"
	EventOrderStatusChanged   AuditEvent = "order_status_changed"
	EventOrderPaymentRecorded AuditEvent = "order_payment_recorded"

	// Insurance events
	EventInsuranceCreated AuditEvent = "insurance_created"
	EventInsuranceDeleted AuditEvent = "insurance_deleted"

	// Patient events
	EventPatientRegistered      AuditEvent = "patient_registered"
	EventPatientUpdated         AuditEvent = "patient_updated"
	EventPatientInsuranceSynced AuditEvent = "patient_insurance_synced"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventInsuranceCreated:       CategoryCompliance,
	EventInsuranceDeleted:       CategoryCompliance,
	EventPatientRegistered:      CategoryCompliance,
	EventPatientUpdated:         CategoryCompliance,
	EventPatientInsuranceSynced: CategoryCompliance,

	EventOrderCreated:         CategoryOperations,
	EventOrderStatusChanged:   CategoryOperations,
	EventOrderPaymentRecorded: CategoryOperations,
}

// Category returns the EventCategory for this event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Action        AuditEvent
	AggregateType AggregateType
	AggregateID   string
	Timestamp     time.Time
	RequestID     string // Correlation ID from HTTP request context
	ActorID       string // Operator who performed the action, when authenticated
	Device        string // Kiosk terminal or browser label of the caller
	// Data carries the event-specific attributes (order number, queue number,
	// price, new status). It must be JSON-encodable.
	Data map[string]any
}

// OutboxEntry is a persisted event waiting to be relayed to the broker.
type OutboxEntry struct {
	ID            uuid.UUID
	AggregateType AggregateType
	AggregateID   string
	EventType     AuditEvent
	Payload       json.RawMessage
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

// Payload is the JSON document published to the broker.
type Payload struct {
	ID          string         `json:"id"`
	Category    EventCategory  `json:"category"`
	Action      AuditEvent     `json:"action"`
	AggregateID string         `json:"aggregate_id"`
	Timestamp   string         `json:"timestamp"`
	RequestID   string         `json:"request_id,omitempty"`
	ActorID     string         `json:"actor_id,omitempty"`
	Device      string         `json:"device,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// NewEntry builds the outbox row for an event.
func NewEntry(event Event, createdAt time.Time) (OutboxEntry, error) {
	entryID := uuid.New()
	payload := Payload{
		ID:          entryID.String(),
		Category:    event.Action.Category(),
		Action:      event.Action,
		AggregateID: event.AggregateID,
		Timestamp:   event.Timestamp.UTC().Format(time.RFC3339Nano),
		RequestID:   event.RequestID,
		ActorID:     event.ActorID,
		Device:      event.Device,
		Data:        event.Data,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return OutboxEntry{}, err
	}
	return OutboxEntry{
		ID:            entryID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.Action,
		Payload:       raw,
		CreatedAt:     createdAt,
	}, nil
}

// Store persists events. Implementations must join the transaction carried by ctx
// so the event commits or rolls back with the business write.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// OutboxStore is the relay's view of the outbox.
type OutboxStore interface {
	FetchUnpublished(ctx context.Context, limit int) ([]OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}
