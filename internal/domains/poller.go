package domains

import (
	"context"
	"errors"
	"sync"
	"time"
)

// PollerConfig bounds background verification.
type PollerConfig struct {
	Interval    time.Duration
	MaxWait     time.Duration
	CertRetries int
}

// Poller verifies domains in the background: it re-checks DNS every
// interval until the domain verifies, fails or MaxWait elapses, then
// requests a certificate with a bounded number of retries. At most one job
// runs per domain.
type Poller struct {
	svc    *Service
	cfg    PollerConfig
	logger Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	jobs map[string]context.CancelFunc
}

// NewPoller creates a poller. Stop must be called to release its jobs.
func NewPoller(svc *Service, cfg PollerConfig, logger Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 48 * time.Hour
	}
	if cfg.CertRetries <= 0 {
		cfg.CertRetries = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		svc:    svc,
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]context.CancelFunc),
	}
}

// Watch starts a job for the domain. It returns false if one is already
// running or the poller is stopped.
func (p *Poller) Watch(domainID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx.Err() != nil {
		return false
	}
	if _, ok := p.jobs[domainID]; ok {
		return false
	}
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.MaxWait)
	p.jobs[domainID] = cancel
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.finish(domainID)
		p.run(ctx, domainID)
	}()
	return true
}

// Cancel stops the job for a domain, if any.
func (p *Poller) Cancel(domainID string) {
	p.mu.Lock()
	cancel, ok := p.jobs[domainID]
	p.mu.Unlock()
	if ok {
		cancel()
	}
}

// CancelTenant stops the jobs of every domain the tenant owns.
func (p *Poller) CancelTenant(ctx context.Context, tenantID string) {
	ds, err := p.svc.ListDomains(ctx, tenantID)
	if err != nil {
		p.logger.Warn("Failed to list domains to cancel", "tenant_id", tenantID, "error", err)
		return
	}
	for _, d := range ds {
		p.Cancel(d.ID)
	}
}

// Watching reports whether a job is running for the domain.
func (p *Poller) Watching(domainID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.jobs[domainID]
	return ok
}

// Stop cancels all jobs and waits for them to exit.
func (p *Poller) Stop() {
	p.cancel()
	p.wg.Wait()
}

func (p *Poller) finish(domainID string) {
	p.mu.Lock()
	cancel := p.jobs[domainID]
	delete(p.jobs, domainID)
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (p *Poller) run(ctx context.Context, domainID string) {
	if !p.waitVerified(ctx, domainID) {
		return
	}
	for attempt := 1; attempt <= p.cfg.CertRetries; attempt++ {
		_, err := p.svc.IssueCertificate(ctx, domainID)
		if err == nil {
			return
		}
		if !errors.Is(err, ErrVerificationTransient) {
			p.logger.Warn("Stopped certificate issuance", "domain_id", domainID, "error", err)
			return
		}
		if attempt == p.cfg.CertRetries || !sleep(ctx, p.cfg.Interval) {
			p.logger.Warn("Gave up on certificate issuance", "domain_id", domainID, "attempts", attempt, "error", err)
			return
		}
	}
}

func (p *Poller) waitVerified(ctx context.Context, domainID string) bool {
	for {
		_, err := p.svc.CheckVerification(ctx, domainID)
		switch {
		case err == nil:
			return true
		case errors.Is(err, ErrVerificationPending), errors.Is(err, ErrVerificationTransient):
		default:
			p.logger.Warn("Stopped domain verification", "domain_id", domainID, "error", err)
			return false
		}
		if !sleep(ctx, p.cfg.Interval) {
			p.logger.Info("Domain verification polling ended", "domain_id", domainID, "reason", ctx.Err())
			return false
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
