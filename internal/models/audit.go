package models

import "time"

// AuditAction identifies the kind of mutation recorded in the audit trail.
type AuditAction string

const (
	AuditCreated AuditAction = "created"
	AuditUpdated AuditAction = "updated"
	AuditTested  AuditAction = "tested"
	AuditDeleted AuditAction = "deleted"
)

// AuditEntry records one mutating operation on an integration
// configuration. It carries the names of the fields that changed, never
// their values.
type AuditEntry struct {
	ID          string      `json:"id"`
	CompanyID   string      `json:"company_id"`
	ConfigID    string      `json:"config_id"`
	ServiceSlug string      `json:"service_slug"`
	Action      AuditAction `json:"action"`
	UserID      string      `json:"user_id"`
	// ConfigFields and SecretFields list the submitted field names.
	ConfigFields []string  `json:"config_fields,omitempty"`
	SecretFields []string  `json:"secret_fields,omitempty"`
	IPAddress    string    `json:"ip_address,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
