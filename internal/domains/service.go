package domains

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tenantgate/internal/repository"
	"tenantgate/pkg/models"
)

// Store persists domains and reads the tenants that own them.
type Store interface {
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	CreateDomain(ctx context.Context, d *models.CustomDomain) error
	GetDomain(ctx context.Context, id string) (*models.CustomDomain, error)
	GetDomainByName(ctx context.Context, name string) (*models.CustomDomain, error)
	ListDomains(ctx context.Context, tenantID string) ([]*models.CustomDomain, error)
	UpdateDomain(ctx context.Context, d *models.CustomDomain) error
	SetPrimaryDomain(ctx context.Context, tenantID, domainID string) error
	DeleteDomain(ctx context.Context, id string) error
}

// Logger is the logging surface the service needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Config controls verification.
type Config struct {
	CNAMETarget string
	TokenPrefix string
	// MaxAttempts is the number of mismatching checks after which a domain
	// fails for good. Zero means unlimited.
	MaxAttempts int
}

// Service drives custom domains through verification and certificate
// issuance. Transitions of one domain are serialized.
type Service struct {
	store  Store
	dns    DNSResolver
	ca     CertificateAuthority
	cfg    Config
	logger Logger
	tracer trace.Tracer
	now    func() time.Time

	locks sync.Map
}

// NewService creates a domain service.
func NewService(store Store, dns DNSResolver, ca CertificateAuthority, cfg Config, logger Logger) *Service {
	if cfg.TokenPrefix == "" {
		cfg.TokenPrefix = "tg-verify"
	}
	cfg.CNAMETarget = normalizeTarget(cfg.CNAMETarget)
	return &Service{
		store:  store,
		dns:    dns,
		ca:     ca,
		cfg:    cfg,
		logger: logger,
		tracer: otel.Tracer("tenantgate/domains"),
		now:    time.Now,
	}
}

var label = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// Normalize lower-cases and trims a hostname and checks that it is a valid
// fully qualified name.
func Normalize(raw string) (string, error) {
	host := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(raw)), ".")
	if host == "" || len(host) > 253 {
		return "", ErrInvalidDomain
	}
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return "", ErrInvalidDomain
	}
	for _, l := range labels {
		if !label.MatchString(l) {
			return "", ErrInvalidDomain
		}
	}
	return host, nil
}

func normalizeTarget(s string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), ".")
}

// VerificationRecord is the TXT record name that may carry the token.
func (s *Service) VerificationRecord(domain string) string {
	return "_" + s.cfg.TokenPrefix + "." + domain
}

func (s *Service) lock(id string) func() {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrDomainNotFound
	case errors.Is(err, repository.ErrDuplicate):
		return ErrDuplicateDomain
	}
	return err
}

// AddDomain registers a hostname for a tenant in pending state.
func (s *Service) AddDomain(ctx context.Context, tenantID, raw string) (*models.CustomDomain, error) {
	host, err := Normalize(raw)
	if err != nil {
		return nil, err
	}
	if existing, err := s.store.GetDomainByName(ctx, host); err == nil && existing != nil {
		return nil, ErrDuplicateDomain
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	d := &models.CustomDomain{
		TenantID:           tenantID,
		Domain:             host,
		VerificationStatus: models.VerificationPending,
		SSLStatus:          models.SSLPending,
		CNAMETarget:        s.cfg.CNAMETarget,
		VerificationToken:  s.cfg.TokenPrefix + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
	}
	if err := s.store.CreateDomain(ctx, d); err != nil {
		return nil, mapStoreErr(err)
	}
	s.logger.Info("Custom domain added", "tenant_id", tenantID, "domain", host, "domain_id", d.ID)
	return d, nil
}

// GetDomain returns a domain.
func (s *Service) GetDomain(ctx context.Context, id string) (*models.CustomDomain, error) {
	d, err := s.store.GetDomain(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return d, nil
}

// GetTenantDomain returns a domain only if tenantID owns it.
func (s *Service) GetTenantDomain(ctx context.Context, tenantID, id string) (*models.CustomDomain, error) {
	d, err := s.GetDomain(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.TenantID != tenantID {
		return nil, ErrDomainNotFound
	}
	return d, nil
}

// ListDomains returns the tenant's domains in creation order.
func (s *Service) ListDomains(ctx context.Context, tenantID string) ([]*models.CustomDomain, error) {
	return s.store.ListDomains(ctx, tenantID)
}

// DomainForHost returns the live domain record serving host. A port suffix
// is ignored.
func (s *Service) DomainForHost(ctx context.Context, host string) (*models.CustomDomain, error) {
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	name, err := Normalize(host)
	if err != nil {
		return nil, ErrDomainNotFound
	}
	d, err := s.store.GetDomainByName(ctx, name)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if !d.IsActive {
		return nil, ErrDomainNotFound
	}
	// A disabled tenant's domains never serve, whatever their own flag says.
	active, err := s.tenantActive(ctx, d.TenantID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, ErrDomainNotFound
	}
	return d, nil
}

func (s *Service) tenantActive(ctx context.Context, tenantID string) (bool, error) {
	t, err := s.store.GetTenant(ctx, tenantID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return t.IsActive, nil
}

// CheckVerification looks for the CNAME or TXT record proving ownership.
// Verified domains are returned untouched without a DNS lookup.
func (s *Service) CheckVerification(ctx context.Context, id string) (d *models.CustomDomain, err error) {
	ctx, span := s.tracer.Start(ctx, "domains.CheckVerification", trace.WithAttributes(attribute.String("domain.id", id)))
	defer func() { endSpan(span, err) }()

	unlock := s.lock(id)
	defer unlock()

	d, err = s.GetDomain(ctx, id)
	if err != nil {
		return nil, err
	}
	switch d.VerificationStatus {
	case models.VerificationVerified:
		return d, nil
	case models.VerificationFailed:
		return d, ErrVerificationTerminal
	}

	matched, lookupErr := s.lookup(ctx, d)
	if lookupErr != nil {
		s.logger.Warn("DNS lookup failed", "domain", d.Domain, "error", lookupErr)
		return d, fmt.Errorf("%w: %v", ErrVerificationTransient, lookupErr)
	}

	now := s.now()
	d.UpdatedAt = now
	if matched {
		d.VerificationStatus = models.VerificationVerified
		d.VerifiedAt = &now
		d.LastError = nil
		if err := s.store.UpdateDomain(ctx, d); err != nil {
			return nil, err
		}
		s.logger.Info("Custom domain verified", "domain", d.Domain, "tenant_id", d.TenantID)
		return d, nil
	}

	d.VerificationAttempts++
	msg := fmt.Sprintf("no CNAME to %s or TXT record %s containing the verification token", d.CNAMETarget, s.VerificationRecord(d.Domain))
	d.LastError = &msg
	if s.cfg.MaxAttempts > 0 && d.VerificationAttempts >= s.cfg.MaxAttempts {
		d.VerificationStatus = models.VerificationFailed
		if err := s.store.UpdateDomain(ctx, d); err != nil {
			return nil, err
		}
		s.logger.Warn("Custom domain verification failed", "domain", d.Domain, "attempts", d.VerificationAttempts)
		return d, ErrVerificationTerminal
	}
	if err := s.store.UpdateDomain(ctx, d); err != nil {
		return nil, err
	}
	return d, ErrVerificationPending
}

// lookup reports whether either proof record is present. An error is only
// returned when neither matched and at least one lookup failed transiently.
func (s *Service) lookup(ctx context.Context, d *models.CustomDomain) (bool, error) {
	cname, cnameErr := s.dns.LookupCNAME(ctx, d.Domain)
	if cnameErr == nil && normalizeTarget(cname) == normalizeTarget(d.CNAMETarget) {
		return true, nil
	}
	txts, txtErr := s.dns.LookupTXT(ctx, s.VerificationRecord(d.Domain))
	if txtErr == nil {
		for _, txt := range txts {
			if strings.TrimSpace(txt) == d.VerificationToken {
				return true, nil
			}
		}
	}
	if cnameErr != nil && !errors.Is(cnameErr, ErrRecordNotFound) {
		return false, cnameErr
	}
	if txtErr != nil && !errors.Is(txtErr, ErrRecordNotFound) {
		return false, txtErr
	}
	return false, nil
}

// IssueCertificate requests a certificate for a verified domain. A domain
// whose certificate is already active is returned untouched.
func (s *Service) IssueCertificate(ctx context.Context, id string) (d *models.CustomDomain, err error) {
	ctx, span := s.tracer.Start(ctx, "domains.IssueCertificate", trace.WithAttributes(attribute.String("domain.id", id)))
	defer func() { endSpan(span, err) }()

	unlock := s.lock(id)
	defer unlock()

	d, err = s.GetDomain(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.VerificationStatus != models.VerificationVerified {
		return d, ErrNotVerified
	}
	switch d.SSLStatus {
	case models.SSLActive:
		return d, nil
	case models.SSLFailed:
		return d, ErrVerificationTerminal
	}
	active, err := s.tenantActive(ctx, d.TenantID)
	if err != nil {
		return nil, err
	}
	if !active {
		return d, ErrTenantInactive
	}

	cert, caErr := s.ca.Issue(ctx, d.Domain)
	if caErr != nil {
		if !errors.Is(caErr, ErrCertificateRejected) {
			s.logger.Warn("Certificate authority unavailable", "domain", d.Domain, "error", caErr)
			return d, fmt.Errorf("%w: %v", ErrVerificationTransient, caErr)
		}
		msg := caErr.Error()
		d.SSLStatus = models.SSLFailed
		d.LastError = &msg
		d.UpdatedAt = s.now()
		if err := s.store.UpdateDomain(ctx, d); err != nil {
			return nil, err
		}
		s.logger.Warn("Certificate rejected", "domain", d.Domain, "error", caErr)
		return d, fmt.Errorf("%w: %v", ErrVerificationTerminal, caErr)
	}

	d.SSLStatus = models.SSLActive
	d.IsActive = true
	d.LastError = nil
	d.UpdatedAt = s.now()
	if err := s.store.UpdateDomain(ctx, d); err != nil {
		return nil, err
	}
	if cert != nil {
		s.logger.Info("Certificate issued", "domain", d.Domain, "serial", cert.Serial, "not_after", cert.NotAfter)
	}
	return d, nil
}

// SetPrimary makes the domain the tenant's primary, clearing the previous one.
func (s *Service) SetPrimary(ctx context.Context, tenantID, id string) error {
	if err := s.store.SetPrimaryDomain(ctx, tenantID, id); err != nil {
		return mapStoreErr(err)
	}
	s.logger.Info("Primary domain changed", "tenant_id", tenantID, "domain_id", id)
	return nil
}

// RemoveDomain deletes a domain in any state. A removed primary is not
// replaced.
func (s *Service) RemoveDomain(ctx context.Context, id string) error {
	unlock := s.lock(id)
	defer unlock()
	if err := s.store.DeleteDomain(ctx, id); err != nil {
		return mapStoreErr(err)
	}
	s.logger.Info("Custom domain removed", "domain_id", id)
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, ErrVerificationPending) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
