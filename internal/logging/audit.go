package logging

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// AuditEventType represents the type of audit event
type AuditEventType string

const (
	// OAuth events
	OAuthStarted   AuditEventType = "OAUTH_STARTED"
	OAuthConnected AuditEventType = "OAUTH_CONNECTED"
	OAuthFailed    AuditEventType = "OAUTH_FAILED"

	// Token exchange performed by the backend endpoint
	TokenExchange AuditEventType = "TOKEN_EXCHANGE"

	// Credentials saved or cleared by an operator
	CredentialsChange AuditEventType = "CREDENTIALS_CHANGE"

	// Config file reloaded
	ConfigChange AuditEventType = "CONFIG_CHANGE"
)

// AuditSeverity represents the severity level of an audit event
type AuditSeverity string

const (
	SeverityInfo     AuditSeverity = "info"
	SeverityWarning  AuditSeverity = "warning"
	SeverityError    AuditSeverity = "error"
	SeverityCritical AuditSeverity = "critical"
)

// AuditStatus represents the status of an audited action
type AuditStatus string

const (
	StatusSuccess AuditStatus = "success"
	StatusFailure AuditStatus = "failure"
)

// AuditEvent represents a security-relevant action
type AuditEvent struct {
	ID           string                 `json:"id"`
	Timestamp    time.Time              `json:"timestamp"`
	EventType    AuditEventType         `json:"event_type"`
	Severity     AuditSeverity          `json:"severity"`
	Platform     string                 `json:"platform,omitempty"`
	IPAddress    string                 `json:"ip_address,omitempty"`
	Action       string                 `json:"action"`
	Status       AuditStatus            `json:"status"`
	Details      map[string]interface{} `json:"details,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
}

// NewAuditEvent creates a new audit event with a generated ID and timestamp
func NewAuditEvent(eventType AuditEventType, action string, status AuditStatus) *AuditEvent {
	return &AuditEvent{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Severity:  SeverityInfo,
		Action:    action,
		Status:    status,
	}
}

// WithPlatform sets the platform the event concerns
func (e *AuditEvent) WithPlatform(platform string) *AuditEvent {
	e.Platform = platform
	return e
}

// WithIPAddress sets the IP address for the audit event
func (e *AuditEvent) WithIPAddress(ipAddress string) *AuditEvent {
	e.IPAddress = ipAddress
	return e
}

// WithSeverity sets the severity for the audit event
func (e *AuditEvent) WithSeverity(severity AuditSeverity) *AuditEvent {
	e.Severity = severity
	return e
}

// WithDetails sets the details map for the audit event
func (e *AuditEvent) WithDetails(details map[string]interface{}) *AuditEvent {
	e.Details = details
	return e
}

// WithError marks the event failed
func (e *AuditEvent) WithError(errorMessage string) *AuditEvent {
	e.ErrorMessage = errorMessage
	e.Status = StatusFailure
	if e.Severity == "" || e.Severity == SeverityInfo {
		e.Severity = SeverityError
	}
	return e
}

// ToJSON converts the audit event to a JSON string
func (e *AuditEvent) ToJSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error": "failed to marshal audit event: %v"}`, err)
	}
	return string(data)
}

// ParseAuditEvent parses a JSON string into an AuditEvent
func ParseAuditEvent(data string) (*AuditEvent, error) {
	var event AuditEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return nil, fmt.Errorf("failed to parse audit event: %w", err)
	}
	return &event, nil
}

// Audit writes the event as a structured log line at a level matching its severity
func (l *Logger) Audit(e *AuditEvent) {
	level := LevelInfo
	switch e.Severity {
	case SeverityWarning:
		level = LevelWarn
	case SeverityError, SeverityCritical:
		level = LevelError
	}

	fields := map[string]interface{}{
		"audit_id":   e.ID,
		"event_type": string(e.EventType),
		"action":     e.Action,
		"status":     string(e.Status),
	}
	if e.Platform != "" {
		fields["platform"] = e.Platform
	}
	if e.IPAddress != "" {
		fields["ip_address"] = e.IPAddress
	}
	if e.ErrorMessage != "" {
		fields["error"] = e.ErrorMessage
	}
	for k, v := range e.Details {
		fields["detail_"+k] = v
	}

	l.log(level, "audit", "", fields)
}
