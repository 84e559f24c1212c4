package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"tenantgate/internal/domains"
)

type certificateRequest struct {
	Domain string `json:"domain"`
}

type certificateResponse struct {
	Domain    string    `json:"domain"`
	Serial    string    `json:"serial"`
	NotBefore time.Time `json:"not_before"`
	NotAfter  time.Time `json:"not_after"`
}

type certificateError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HTTPCertificateAuthority is a domains.CertificateAuthority backed by an
// HTTP issuing API.
type HTTPCertificateAuthority struct {
	client *resty.Client
}

// NewHTTPCertificateAuthority creates a client for the API at baseURL. 5xx
// answers and network errors are retried up to retries times.
func NewHTTPCertificateAuthority(baseURL, apiKey string, timeout time.Duration, retries int) *HTTPCertificateAuthority {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &HTTPCertificateAuthority{client: client}
}

// Issue requests a certificate. 4xx answers are rejections; anything else
// that is not a success is transient.
func (c *HTTPCertificateAuthority) Issue(ctx context.Context, domain string) (*domains.Certificate, error) {
	var (
		result  certificateResponse
		failure certificateError
	)
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(certificateRequest{Domain: domain}).
		SetResult(&result).
		SetError(&failure).
		Post("/v1/certificates")
	if err != nil {
		return nil, fmt.Errorf("failed to call certificate authority: %w", err)
	}

	switch {
	case resp.IsSuccess():
		return &domains.Certificate{
			Domain:    domain,
			Serial:    result.Serial,
			NotBefore: result.NotBefore,
			NotAfter:  result.NotAfter,
		}, nil
	case resp.StatusCode() >= 400 && resp.StatusCode() < 500 && resp.StatusCode() != http.StatusTooManyRequests:
		msg := failure.Message
		if msg == "" {
			msg = resp.Status()
		}
		return nil, fmt.Errorf("%w: %s", domains.ErrCertificateRejected, msg)
	default:
		return nil, fmt.Errorf("certificate authority returned status %d", resp.StatusCode())
	}
}
