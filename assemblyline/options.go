package assemblyline

import (
	"maps"
	"net/http"
	"time"
)

// Default session names used by the v4 API
const (
	DefaultSessionCookie = "XSRF-TOKEN"
	DefaultSessionHeader = "X-XSRF-TOKEN"
)

// Option configures a Connection.
type Option func(*clientOptions)

// clientOptions holds configuration options for the Connection.
type clientOptions struct {
	maxRetries    int
	bounded       bool
	timeout       time.Duration
	verifyCert    bool
	certificate   string
	headers       map[string]string
	sessionHeader string
	sessionCookie string
	userAgent     string
	transport     http.RoundTripper
}

func defaultOptions() *clientOptions {
	return &clientOptions{
		verifyCert:    true,
		headers:       make(map[string]string),
		sessionHeader: DefaultSessionHeader,
		sessionCookie: DefaultSessionCookie,
	}
}

// WithMaxRetries caps the number of retries. Without it the client retries
// connection failures and expired sessions indefinitely. A negative value
// is ignored and leaves the client unbounded.
func WithMaxRetries(retries int) Option {
	return func(o *clientOptions) {
		if retries >= 0 {
			o.maxRetries = retries
			o.bounded = true
		}
	}
}

// WithTimeout sets the default per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *clientOptions) {
		o.timeout = timeout
	}
}

// WithInsecureSkipVerify disables certificate verification.
// Use with caution and only for development/testing.
func WithInsecureSkipVerify() Option {
	return func(o *clientOptions) {
		o.verifyCert = false
	}
}

// WithCertificate adds a PEM encoded certificate to the trusted roots.
func WithCertificate(pem string) Option {
	return func(o *clientOptions) {
		o.certificate = pem
	}
}

// WithHeader adds a static header sent with every request.
func WithHeader(name, value string) Option {
	return func(o *clientOptions) {
		o.headers[name] = value
	}
}

// WithHeaders adds several static headers sent with every request.
func WithHeaders(headers map[string]string) Option {
	return func(o *clientOptions) {
		maps.Copy(o.headers, headers)
	}
}

// WithSessionHeader overrides the header used to echo the session token.
func WithSessionHeader(name string) Option {
	return func(o *clientOptions) {
		if name != "" {
			o.sessionHeader = name
		}
	}
}

// WithSessionCookie overrides the cookie the session token is read from.
func WithSessionCookie(name string) Option {
	return func(o *clientOptions) {
		if name != "" {
			o.sessionCookie = name
		}
	}
}

// WithUserAgent sets a custom user agent string.
func WithUserAgent(userAgent string) Option {
	return func(o *clientOptions) {
		o.userAgent = userAgent
	}
}

// WithTransport replaces the underlying round tripper. TLS options are
// ignored when a custom transport is supplied.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *clientOptions) {
		o.transport = rt
	}
}
