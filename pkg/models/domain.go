package models

import "time"

// VerificationStatus is the DNS ownership state of a custom domain.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationFailed   VerificationStatus = "failed"
)

// SSLStatus is the certificate state of a custom domain.
type SSLStatus string

const (
	SSLPending SSLStatus = "pending"
	SSLActive  SSLStatus = "active"
	SSLExpired SSLStatus = "expired"
	SSLFailed  SSLStatus = "failed"
)

// CustomDomain is a hostname bound to a white-label tenant.
type CustomDomain struct {
	ID                   string             `json:"id"`
	TenantID             string             `json:"tenant_id"`
	Domain               string             `json:"domain"`
	VerificationStatus   VerificationStatus `json:"verification_status"`
	SSLStatus            SSLStatus          `json:"ssl_status"`
	CNAMETarget          string             `json:"cname_target"`
	VerificationToken    string             `json:"verification_token"`
	VerificationAttempts int                `json:"verification_attempts"`
	LastError            *string            `json:"last_error,omitempty"`
	IsPrimary            bool               `json:"is_primary"`
	IsActive             bool               `json:"is_active"`
	VerifiedAt           *time.Time         `json:"verified_at,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// Live reports whether the domain reached the terminal success state.
func (d *CustomDomain) Live() bool {
	return d.VerificationStatus == VerificationVerified && d.SSLStatus == SSLActive
}
