package tls

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"tenantgate/internal/domains"
)

const organization = "TenantGate Dev"

type keyPair struct {
	certPEM []byte
	keyPEM  []byte
	cert    *x509.Certificate
}

func generate(hosts []string, validity time.Duration) (*keyPair, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	notBefore := time.Now()
	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return nil, err
	}

	tmpl := x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               pkix.Name{Organization: []string{organization}},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(validity),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	if len(hosts) > 0 {
		tmpl.Subject.CommonName = hosts[0]
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else {
			tmpl.DNSNames = append(tmpl.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	keyDER, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	return &keyPair{
		certPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		keyPEM:  pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}),
		cert:    cert,
	}, nil
}

func (kp *keyPair) write(certPath, keyPath string) error {
	if err := os.WriteFile(certPath, kp.certPEM, 0o644); err != nil {
		return err
	}
	return os.WriteFile(keyPath, kp.keyPEM, 0o600)
}

// GenerateSelfSignedCert writes a one-year ECDSA certificate and key for the
// development HTTPS listener. Existing files are overwritten.
func GenerateSelfSignedCert(certPath, keyPath string, hosts []string) error {
	kp, err := generate(hosts, 365*24*time.Hour)
	if err != nil {
		return err
	}
	return kp.write(certPath, keyPath)
}

// SelfSignedIssuer is a domains.CertificateAuthority that signs custom
// domain certificates locally. It is meant for development and demos.
type SelfSignedIssuer struct {
	dir      string
	validity time.Duration
}

// NewSelfSignedIssuer stores issued certificates under dir as
// <domain>.crt and <domain>.key.
func NewSelfSignedIssuer(dir string, validity time.Duration) *SelfSignedIssuer {
	if validity <= 0 {
		validity = 90 * 24 * time.Hour
	}
	return &SelfSignedIssuer{dir: dir, validity: validity}
}

func (i *SelfSignedIssuer) Issue(ctx context.Context, domain string) (*domains.Certificate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if net.ParseIP(domain) != nil {
		return nil, fmt.Errorf("%w: %s is an IP address", domains.ErrCertificateRejected, domain)
	}
	kp, err := generate([]string{domain}, i.validity)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(i.dir, 0o755); err != nil {
		return nil, err
	}
	if err := kp.write(filepath.Join(i.dir, domain+".crt"), filepath.Join(i.dir, domain+".key")); err != nil {
		return nil, err
	}
	return &domains.Certificate{
		Domain:    domain,
		Serial:    kp.cert.SerialNumber.Text(16),
		NotBefore: kp.cert.NotBefore,
		NotAfter:  kp.cert.NotAfter,
	}, nil
}
