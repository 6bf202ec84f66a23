package assemblyline

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/net/http/httpguts"
	"golang.org/x/sync/singleflight"
)

const (
	// requiredAPIVersion must be listed by the server's api/ endpoint
	requiredAPIVersion = "v4"
	apiListPath        = "api/"
	loginPath          = "api/v4/auth/login/"
)

// Connection is an authenticated session against an Assemblyline server.
// It is safe for concurrent use.
type Connection struct {
	baseURL    string
	credential Credential
	httpClient *resty.Client
	opts       *clientOptions
	logger     zerolog.Logger

	session       sessionToken
	logins        singleflight.Group
	serverVersion atomic.Pointer[string]

	// overridable in tests
	backoff func(retries int) time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// Connect creates a Connection, verifies the server speaks the v4 API and
// logs in with cred.
func Connect(ctx context.Context, server string, cred Credential, logger zerolog.Logger, opts ...Option) (*Connection, error) {
	c, err := newConnection(server, cred, logger, opts...)
	if err != nil {
		return nil, err
	}

	if err := c.checkAPIVersion(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to Assemblyline: %w", err)
	}

	details, err := c.Authenticate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate to Assemblyline: %w", err)
	}

	c.logger.Debug().
		Str("auth", cred.Kind()).
		Interface("session", details).
		Msg("Connected to Assemblyline")

	return c, nil
}

// newConnection validates the configuration and builds the HTTP client
// without talking to the server.
func newConnection(server string, cred Credential, logger zerolog.Logger, opts ...Option) (*Connection, error) {
	server = strings.TrimRight(strings.TrimSpace(server), "/")
	if server == "" {
		return nil, fmt.Errorf("%w: server URL is required", ErrInvalidConfiguration)
	}
	if cred == nil {
		return nil, fmt.Errorf("%w: credential is required", ErrInvalidConfiguration)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	httpClient, err := buildHTTPClient(o, logger)
	if err != nil {
		return nil, err
	}

	return &Connection{
		baseURL:    server,
		credential: cred,
		httpClient: httpClient,
		opts:       o,
		logger:     logger,
		backoff:    softBackoff,
		sleep:      sleepContext,
	}, nil
}

// buildHTTPClient creates the resty client: cookie retention, TLS settings
// and the static headers sent with every request.
func buildHTTPClient(o *clientOptions, logger zerolog.Logger) (*resty.Client, error) {
	for name, value := range o.headers {
		if !httpguts.ValidHeaderFieldName(name) {
			return nil, fmt.Errorf("%w: invalid header name %q", ErrInvalidConfiguration, name)
		}
		if !httpguts.ValidHeaderFieldValue(value) {
			return nil, fmt.Errorf("%w: invalid value for header %q", ErrInvalidConfiguration, name)
		}
	}
	if !httpguts.ValidHeaderFieldName(o.sessionHeader) {
		return nil, fmt.Errorf("%w: invalid session header name %q", ErrInvalidConfiguration, o.sessionHeader)
	}

	transport := o.transport
	if transport == nil {
		tlsConfig := &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: !o.verifyCert,
		}
		if o.certificate != "" {
			pool, err := x509.SystemCertPool()
			if err != nil || pool == nil {
				pool = x509.NewCertPool()
			}
			if !pool.AppendCertsFromPEM([]byte(o.certificate)) {
				return nil, fmt.Errorf("%w: certificate is not valid PEM", ErrInvalidConfiguration)
			}
			tlsConfig.RootCAs = pool
		}

		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = tlsConfig
		transport = t
	}

	// resty.New installs a cookie jar, so cookies issued by the server are
	// retained across requests.
	client := resty.New().
		SetTransport(transport).
		SetAllowGetMethodPayload(true).
		SetLogger(&restyLogger{logger: logger}).
		SetHeader("Accept", "application/json").
		SetHeaders(o.headers)
	if o.userAgent != "" {
		client.SetHeader("User-Agent", o.userAgent)
	}

	return client, nil
}

// checkAPIVersion confirms the server lists the API version this client speaks.
func (c *Connection) checkAPIVersion(ctx context.Context) error {
	versions, err := Get(ctx, c, apiListPath, ConvertList)
	if err != nil {
		return err
	}

	for _, v := range versions {
		if s, ok := v.(string); ok && s == requiredAPIVersion {
			return nil
		}
	}

	return newClientError(fmt.Sprintf("Supported APIS (%s) are not available", requiredAPIVersion), http.StatusBadRequest)
}

// BaseURL returns the server URL without a trailing slash
func (c *Connection) BaseURL() string {
	return c.baseURL
}

// HasSession reports whether a session token has been issued.
func (c *Connection) HasSession() bool {
	_, ok := c.session.Read()
	return ok
}

// restyLogger routes resty's internal messages to zerolog
type restyLogger struct {
	logger zerolog.Logger
}

func (l *restyLogger) Errorf(format string, v ...any) {
	l.logger.Error().Str("component", "resty").Msgf(format, v...)
}

func (l *restyLogger) Warnf(format string, v ...any) {
	l.logger.Warn().Str("component", "resty").Msgf(format, v...)
}

func (l *restyLogger) Debugf(format string, v ...any) {
	l.logger.Debug().Str("component", "resty").Msgf(format, v...)
}
