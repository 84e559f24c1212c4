package domains

import (
	"context"
	"errors"
	"net"
	"time"
)

// DNSResolver looks up the records used to prove domain ownership.
// Implementations return ErrRecordNotFound when the record does not exist;
// any other error is treated as transient.
type DNSResolver interface {
	LookupCNAME(ctx context.Context, host string) (string, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// Certificate describes an issued certificate.
type Certificate struct {
	Domain    string
	Serial    string
	NotBefore time.Time
	NotAfter  time.Time
}

// CertificateAuthority issues TLS certificates for verified domains.
// Implementations wrap ErrCertificateRejected when the authority refused the
// request; any other error is treated as transient.
type CertificateAuthority interface {
	Issue(ctx context.Context, domain string) (*Certificate, error)
}

// NetResolver is a DNSResolver backed by the Go resolver.
type NetResolver struct {
	r *net.Resolver
}

// NewNetResolver wraps r; nil uses net.DefaultResolver.
func NewNetResolver(r *net.Resolver) *NetResolver {
	if r == nil {
		r = net.DefaultResolver
	}
	return &NetResolver{r: r}
}

func (n *NetResolver) LookupCNAME(ctx context.Context, host string) (string, error) {
	cname, err := n.r.LookupCNAME(ctx, host)
	return cname, classifyDNSError(err)
}

func (n *NetResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	txt, err := n.r.LookupTXT(ctx, name)
	return txt, classifyDNSError(err)
}

func classifyDNSError(err error) error {
	if err == nil {
		return nil
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return ErrRecordNotFound
	}
	return err
}
