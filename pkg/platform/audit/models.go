package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategoryCompliance covers issuance decisions and money movement.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers duplicate-identity attempts and admin overrides.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine lifecycle steps.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	SessionID string        `json:"session_id"`
	// Subject is the pseudonymous user (sigDigest) when known.
	Subject   string `json:"subject,omitempty"`
	Action    string `json:"action"`
	Provider  string `json:"provider,omitempty"`
	Decision  string `json:"decision,omitempty"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	// ActorID is set for admin operations.
	ActorID string `json:"actor_id,omitempty"`
}

type AuditEvent string

const (
	// Session lifecycle
	EventSessionCreated          AuditEvent = "session_created"
	EventSessionPaid             AuditEvent = "session_paid"
	EventProviderSessionAttached AuditEvent = "provider_session_attached"
	EventVerificationFailed      AuditEvent = "verification_failed"

	// Issuance
	EventCredentialsIssued   AuditEvent = "credentials_issued"
	EventCredentialsReplayed AuditEvent = "credentials_replayed"
	EventSybilCollision      AuditEvent = "sybil_collision"

	// Refunds
	EventRefundIssued AuditEvent = "refund_issued"
	EventRefundFailed AuditEvent = "refund_failed"

	// Admin
	EventAdminSessionFailed    AuditEvent = "admin_session_failed"
	EventAdminProviderReassign AuditEvent = "admin_provider_reassigned"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventCredentialsIssued: CategoryCompliance,
	EventRefundIssued:      CategoryCompliance,
	EventRefundFailed:      CategoryCompliance,

	EventSybilCollision:        CategorySecurity,
	EventAdminSessionFailed:    CategorySecurity,
	EventAdminProviderReassign: CategorySecurity,

	EventSessionCreated:          CategoryOperations,
	EventSessionPaid:             CategoryOperations,
	EventProviderSessionAttached: CategoryOperations,
	EventVerificationFailed:      CategoryOperations,
	EventCredentialsReplayed:     CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists events and answers per-session queries.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySession(ctx context.Context, sessionID string) ([]Event, error)
}

// Sink receives a copy of every event, e.g. a message broker.
type Sink interface {
	Append(ctx context.Context, event Event) error
}
