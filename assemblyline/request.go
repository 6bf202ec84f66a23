package assemblyline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/net/http/httpguts"
)

// Request describes one logical API call.
type Request struct {
	// Method defaults to GET.
	Method string
	// Path is relative to the server URL, e.g. "api/v4/user/whoami/".
	Path string
	// Body is serialised as JSON when non-nil.
	Body any
	// Timeout applies to each attempt. Zero uses the connection default.
	Timeout time.Duration
}

// Request performs req, retrying and re-authenticating as needed, and
// returns the response envelope.
func (c *Connection) Request(ctx context.Context, req Request) (Envelope, error) {
	return c.execute(ctx, req, true)
}

// execute runs the retry loop for one logical call. When reauth is false a
// session rejection is terminal; the login request itself runs that way.
func (c *Connection) execute(ctx context.Context, req Request, reauth bool) (Envelope, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	timeout := req.Timeout
	if timeout == 0 {
		timeout = c.opts.timeout
	}
	url := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")

	log := c.logger.With().
		Str("request_id", uuid.NewString()).
		Str("method", method).
		Str("path", req.Path).
		Logger()

	retries := 0
	for !c.opts.bounded || retries <= c.opts.maxRetries {
		if retries > 0 {
			if err := c.sleep(ctx, c.backoff(retries)); err != nil {
				return nil, &TransportError{Err: err}
			}
		}

		resp, err := c.send(ctx, method, url, req.Body, timeout)
		retries++
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, &TransportError{Err: errors.Join(ctxErr, err)}
			}
			if isConnectError(err) {
				log.Warn().Err(err).Int("attempt", retries).Msg("Connection failed, retrying")
				continue
			}
			return nil, &TransportError{Err: err}
		}

		if err := c.captureSession(resp.Cookies()); err != nil {
			return nil, err
		}

		status := resp.StatusCode()
		result := classify(status, resp.Body())
		if result.envelope != nil {
			c.recordServerVersion(result.envelope)
		}

		logAttempt(log, retries, status, resp.Time(), result.outcome)

		switch result.outcome {
		case outcomeSuccess:
			return result.envelope, nil
		case outcomeSessionExpired:
			if !reauth {
				return nil, clientErrorFromEnvelope(result.envelope, status)
			}
			if err := c.reauthenticate(ctx); err != nil {
				return nil, err
			}
		default:
			return nil, result.err
		}
	}

	log.Error().Int("attempts", retries).Msg("Giving up after max retries")
	return nil, maxRetriesError()
}

// send issues a single HTTP attempt carrying the current session token.
func (c *Connection) send(ctx context.Context, method, url string, body any, timeout time.Duration) (*resty.Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	r := c.httpClient.R().SetContext(ctx)
	if body != nil {
		r.SetBody(body)
	}
	if token, ok := c.session.Read(); ok {
		r.SetHeader(c.opts.sessionHeader, token)
	}

	return r.Execute(method, url)
}

// captureSession replaces the session token when the response re-issues the
// session cookie, whatever the status code.
func (c *Connection) captureSession(cookies []*http.Cookie) error {
	for _, cookie := range cookies {
		if cookie.Name != c.opts.sessionCookie {
			continue
		}
		if !httpguts.ValidHeaderFieldValue(cookie.Value) {
			return fmt.Errorf("%w: session cookie is not a valid header value", ErrMalformedResponse)
		}
		c.session.Replace(cookie.Value)
	}
	return nil
}

func logAttempt(log zerolog.Logger, attempt, status int, elapsed time.Duration, o outcome) {
	var ev *zerolog.Event
	switch {
	case o == outcomeSuccess:
		ev = log.Debug()
	case isGatewayStatus(status):
		ev = log.Warn().Bool("gateway", true)
	default:
		ev = log.Info()
	}
	ev.Int("attempt", attempt).
		Int("status", status).
		Dur("elapsed", elapsed).
		Stringer("outcome", o).
		Msg("Assemblyline API response")
}

// isConnectError reports whether err happened while establishing the
// connection. DNS failures are excluded; they will not fix themselves.
func isConnectError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return false
	}

	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// softBackoff waits min(2, 2^(retries-7)) seconds: effectively nothing for
// the first few retries, then doubling up to a two second cap.
func softBackoff(retries int) time.Duration {
	seconds := math.Min(2.0, math.Pow(2.0, float64(retries-7)))
	return time.Duration(seconds * float64(time.Second))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do performs req and converts the envelope with convert.
func Do[T any](ctx context.Context, c *Connection, req Request, convert func(Envelope) (T, error)) (T, error) {
	env, err := c.Request(ctx, req)
	if err != nil {
		var zero T
		return zero, err
	}
	return convert(env)
}

// Get performs a GET request.
func Get[T any](ctx context.Context, c *Connection, path string, convert func(Envelope) (T, error)) (T, error) {
	return Do(ctx, c, Request{Method: http.MethodGet, Path: path}, convert)
}

// GetWith performs a GET request carrying a JSON body.
func GetWith[T any](ctx context.Context, c *Connection, path string, body any, convert func(Envelope) (T, error)) (T, error) {
	return Do(ctx, c, Request{Method: http.MethodGet, Path: path, Body: body}, convert)
}

// Post performs a POST request with a JSON body.
func Post[T any](ctx context.Context, c *Connection, path string, body any, convert func(Envelope) (T, error)) (T, error) {
	return Do(ctx, c, Request{Method: http.MethodPost, Path: path, Body: body}, convert)
}

// Put performs a PUT request with a JSON body.
func Put[T any](ctx context.Context, c *Connection, path string, body any, convert func(Envelope) (T, error)) (T, error) {
	return Do(ctx, c, Request{Method: http.MethodPut, Path: path, Body: body}, convert)
}

// Delete performs a DELETE request.
func Delete[T any](ctx context.Context, c *Connection, path string, convert func(Envelope) (T, error)) (T, error) {
	return Do(ctx, c, Request{Method: http.MethodDelete, Path: path}, convert)
}
