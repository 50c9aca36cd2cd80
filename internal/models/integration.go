// Package models defines the persistent record types of the integration hub.
package models

import "time"

// ConfigStatus is the lifecycle state of an integration configuration.
// Configurations are soft-deleted: the row stays, the status flips.
type ConfigStatus string

const (
	// StatusActive marks a live configuration.
	StatusActive ConfigStatus = "active"
	// StatusDeleted marks a soft-deleted configuration.
	StatusDeleted ConfigStatus = "deleted"
)

// TestStatus is the outcome of the last connection test.
type TestStatus string

const (
	TestStatusNone    TestStatus = ""
	TestStatusSuccess TestStatus = "success"
	TestStatusFailed  TestStatus = "failed"
)

// IntegrationConfig stores one company's configuration for one external
// service: plaintext config fields plus a map of secret-field names to
// encrypted blobs. The struct never carries plaintext secrets, and the
// encrypted map is excluded from JSON serialization.
type IntegrationConfig struct {
	ID          string            `json:"id"`
	CompanyID   string            `json:"company_id"`
	ServiceSlug string            `json:"service_slug"`
	DisplayName string            `json:"display_name"`
	Config      map[string]string `json:"config"`
	// EncryptedSecrets maps secret field names to vault blobs
	// (base64 strings). At rest every value is a blob, never plaintext.
	EncryptedSecrets map[string]string `json:"-"`
	Status           ConfigStatus      `json:"status"`
	TestStatus       TestStatus        `json:"test_status,omitempty"`
	TestMessage      string            `json:"test_message,omitempty"`
	LastTestedAt     *time.Time        `json:"last_tested_at,omitempty"`
	CreatedBy        string            `json:"created_by,omitempty"`
	UpdatedBy        string            `json:"updated_by,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}
