package domain

import (
	"context"
	"time"
)

// AuditEventType defines the type of audit event
type AuditEventType string

const (
	// Code lifecycle events
	CodeRequestedEvent      AuditEventType = "CODE_REQUESTED"
	CodeCooldownEvent       AuditEventType = "CODE_COOLDOWN"
	CodeVerifiedEvent       AuditEventType = "CODE_VERIFIED"
	CodeVerifyFailedEvent   AuditEventType = "CODE_VERIFICATION_FAILED"
	CodeDeliveryFailedEvent AuditEventType = "CODE_DELIVERY_FAILED"
	CodeRateLimitedEvent    AuditEventType = "CODE_RATE_LIMITED"
	PhoneReassignedEvent    AuditEventType = "PHONE_REASSIGNED"

	// Session events
	DriverSignupEvent   AuditEventType = "DRIVER_SIGNUP"
	DriverLogoutEvent   AuditEventType = "DRIVER_LOGOUT"
	SessionIssuedEvent  AuditEventType = "SESSION_ISSUED"
	SessionRevokedEvent AuditEventType = "SESSION_REVOKED"

	// Trial events
	TrialDeniedEvent  AuditEventType = "TRIAL_DENIED"
	TrialCreatedEvent AuditEventType = "TRIAL_CREATED"

	// Operator events
	OperatorTokenIssuedEvent AuditEventType = "OPERATOR_TOKEN_ISSUED"
	OperatorResolvedEvent    AuditEventType = "OPERATOR_RESOLVED"
	OperatorRejectedEvent    AuditEventType = "OPERATOR_REJECTED"
	DriverApprovedEvent      AuditEventType = "DRIVER_APPROVED"
	AccessDeniedEvent        AuditEventType = "ACCESS_DENIED"
)

// AuditEvent represents a business event that occurred in the system
type AuditEvent struct {
	EventType AuditEventType         `json:"event_type"`
	DriverID  uint                   `json:"driver_id,omitempty"`
	Phone     string                 `json:"phone,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	IPAddress string                 `json:"ip_address,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	ErrorMsg  string                 `json:"error_msg,omitempty"`
	Success   bool                   `json:"success"`
}

// AuditLogger records audit events. Failures are reported but never change
// the outcome of the operation being audited.
type AuditLogger interface {
	LogEvent(ctx context.Context, event *AuditEvent) error
}

// NewAuditEvent creates a new audit event with common fields populated
func NewAuditEvent(eventType AuditEventType, driverID uint, at time.Time) *AuditEvent {
	return &AuditEvent{
		EventType: eventType,
		DriverID:  driverID,
		Timestamp: at.UTC(),
		Metadata:  make(map[string]interface{}),
		Success:   true,
	}
}

// WithError sets error information on the audit event
func (e *AuditEvent) WithError(err error) *AuditEvent {
	e.Success = false
	if err != nil {
		e.ErrorMsg = err.Error()
	}
	return e
}

// WithPhone sets the phone field
func (e *AuditEvent) WithPhone(phone string) *AuditEvent {
	e.Phone = phone
	return e
}

// WithIP sets the client address
func (e *AuditEvent) WithIP(ip string) *AuditEvent {
	e.IPAddress = ip
	return e
}

// WithMetadata adds metadata to the event
func (e *AuditEvent) WithMetadata(key string, value interface{}) *AuditEvent {
	e.Metadata[key] = value
	return e
}

type requestIDKey struct{}

// WithRequestID stores the request id on ctx for audit correlation
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request id stored by WithRequestID
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
