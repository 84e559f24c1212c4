package domains

import "errors"

var (
	// ErrDuplicateDomain is returned when another tenant (or the same one)
	// already owns the hostname.
	ErrDuplicateDomain = errors.New("domain is already registered")
	// ErrDomainNotFound is returned for unknown domains and for domains owned
	// by a different tenant.
	ErrDomainNotFound = errors.New("domain not found")
	// ErrInvalidDomain is returned for malformed hostnames.
	ErrInvalidDomain = errors.New("invalid domain name")
	// ErrVerificationPending is returned when the DNS records do not match yet
	// but attempts remain.
	ErrVerificationPending = errors.New("dns records do not match yet")
	// ErrVerificationTransient is returned when a provider could not be
	// reached. The domain is left unchanged and the call may be retried.
	ErrVerificationTransient = errors.New("verification temporarily unavailable")
	// ErrVerificationTerminal is returned once a domain's verification or
	// certificate has failed for good. Only remove and re-add recovers.
	ErrVerificationTerminal = errors.New("verification failed permanently")
	// ErrNotVerified is returned when a certificate is requested before DNS
	// ownership is verified.
	ErrNotVerified = errors.New("domain ownership is not verified")
	// ErrTenantInactive is returned when a certificate is requested for a
	// domain of a disabled tenant.
	ErrTenantInactive = errors.New("tenant is disabled")

	// ErrRecordNotFound is returned by a DNSResolver when the name has no
	// record of the requested type.
	ErrRecordNotFound = errors.New("dns record not found")
	// ErrCertificateRejected is returned by a CertificateAuthority that
	// refused to issue for the domain.
	ErrCertificateRejected = errors.New("certificate request rejected")
)
