package httpclient

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors for side-fetch failure modes. Callers check with
// errors.Is and log the category instead of the raw chain.
var (
	// ErrProxyConnect means the configured proxy refused or timed out.
	ErrProxyConnect = errors.New("httpclient: proxy connection failed")

	// ErrDNS means the target host did not resolve.
	ErrDNS = errors.New("httpclient: dns resolution failed")

	// ErrTLS means the TLS handshake or certificate check failed.
	ErrTLS = errors.New("httpclient: tls handshake failed")
)

// classifyErr folds a transport error onto the package sentinels.
// Errors already tagged by a dialer pass through unchanged; the
// url.Error wrapping from http.Client does not hide them from
// errors.Is.
func classifyErr(err error) error {
	if errors.Is(err, ErrDNS) || errors.Is(err, ErrTLS) || errors.Is(err, ErrProxyConnect) {
		return err
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Errorf("%w: %v", ErrDNS, err)
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return fmt.Errorf("%w: %v", ErrTLS, err)
	}
	var recErr tls.RecordHeaderError
	if errors.As(err, &recErr) {
		return fmt.Errorf("%w: %v", ErrTLS, err)
	}

	return err
}
