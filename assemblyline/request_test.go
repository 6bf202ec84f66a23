package assemblyline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingTransport fails every round trip with err and counts attempts.
type failingTransport struct {
	err   error
	calls atomic.Int32
}

func (f *failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	f.calls.Add(1)
	return nil, f.err
}

func newOfflineConnection(t *testing.T, rt http.RoundTripper, opts ...Option) *Connection {
	t.Helper()

	opts = append(opts, WithTransport(rt))
	conn, err := newConnection("http://assemblyline.invalid", testCredential(), zerolog.Nop(), opts...)
	require.NoError(t, err)
	conn.backoff = func(int) time.Duration { return 0 }
	return conn
}

func TestRequest_Success(t *testing.T) {
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v4/user/whoami/", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{"api_response": map[string]any{"username": "admin"}})
	})
	conn := connectTest(t, fs)

	whoami, err := Get(context.Background(), conn, "api/v4/user/whoami/", ConvertMap)
	require.NoError(t, err)
	assert.Equal(t, "admin", whoami["username"])
}

func TestRequest_PostBody(t *testing.T) {
	var mu sync.Mutex
	var got map[string]any
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		mu.Lock()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"api_response": map[string]any{"success": true}})
	})
	conn := connectTest(t, fs)

	type result struct {
		Success bool `json:"success"`
	}
	res, err := Post(context.Background(), conn, "api/v4/search/alert/", map[string]any{"query": "*"}, ConvertInto[result]())
	require.NoError(t, err)
	assert.True(t, res.Success)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]any{"query": "*"}, got)
}

func TestRequest_SessionExpiredReauthenticates(t *testing.T) {
	var hits atomic.Int32
	var mu sync.Mutex
	var tokens []string
	var loginsSeen []int32
	var fs *fakeServer
	fs = newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		mu.Lock()
		tokens = append(tokens, r.Header.Get(DefaultSessionHeader))
		loginsSeen = append(loginsSeen, fs.logins.Load())
		mu.Unlock()
		if n == 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"api_error_message": "Session expired"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"api_response": "done"})
	})
	conn := connectTest(t, fs)

	res, err := Get(context.Background(), conn, "api/v4/alert/1/", ConvertString)
	require.NoError(t, err)
	assert.Equal(t, "done", res)

	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int32(2), fs.logins.Load())

	mu.Lock()
	defer mu.Unlock()
	// exactly one login between the rejected attempt and the retry
	assert.Equal(t, []int32{1, 2}, loginsSeen)
	assert.Equal(t, []string{"token-1", "token-2"}, tokens)
}

func TestRequest_SessionErrorMessages(t *testing.T) {
	messages := []string{
		"Session rejected",
		"Session not found",
		"Session expired",
		"Invalid source IP for this session",
		"Invalid user agent for this session",
	}

	for _, msg := range messages {
		t.Run(msg, func(t *testing.T) {
			var hits atomic.Int32
			fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
				if hits.Add(1) == 1 {
					writeJSON(w, http.StatusUnauthorized, map[string]any{"api_error_message": msg})
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"api_response": []any{}})
			})
			conn := connectTest(t, fs)

			_, err := Get(context.Background(), conn, "api/v4/alert/list/", ConvertList)
			require.NoError(t, err)
			assert.Equal(t, int32(2), fs.logins.Load())
		})
	}
}

func TestRequest_UnauthorizedNotSession(t *testing.T) {
	var hits atomic.Int32
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"api_error_message":  "Wrong password",
			"api_server_version": "4.5.1",
			"api_response":       "",
		})
	})
	conn := connectTest(t, fs)

	_, err := Get(context.Background(), conn, "api/v4/alert/1/", ConvertMap)
	require.Error(t, err)

	var apiErr *ClientError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Wrong password", apiErr.Message)
	assert.Equal(t, "4.5.1", apiErr.APIVersion)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, int32(1), fs.logins.Load())
}

func TestRequest_TokenRefreshedOnErrorResponse(t *testing.T) {
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: DefaultSessionCookie, Value: "refreshed", Path: "/"})
		writeJSON(w, http.StatusInternalServerError, map[string]any{"api_error_message": "boom"})
	})
	conn := connectTest(t, fs)

	_, err := Get(context.Background(), conn, "api/v4/alert/1/", ConvertMap)
	require.Error(t, err)

	var apiErr *ClientError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "boom", apiErr.Message)

	token, ok := conn.session.Read()
	require.True(t, ok)
	assert.Equal(t, "refreshed", token)
}

func TestRequest_GatewayErrors(t *testing.T) {
	for _, status := range []int{http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			var hits atomic.Int32
			fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				writeJSON(w, status, map[string]any{
					"api_server_version": "4.5.1",
					"api_response":       map[string]any{"detail": "upstream"},
				})
			})
			conn := connectTest(t, fs, WithMaxRetries(3))

			_, err := Get(context.Background(), conn, "api/v4/alert/1/", ConvertMap)
			var apiErr *ClientError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, status, apiErr.StatusCode)
			assert.Equal(t, "unknown error", apiErr.Message)
			assert.Equal(t, "4.5.1", apiErr.APIVersion)
			assert.JSONEq(t, `{"detail":"upstream"}`, apiErr.APIResponse)
			assert.Equal(t, int32(1), hits.Load())
		})
	}
}

func TestRequest_RawBodyError(t *testing.T) {
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	})
	conn := connectTest(t, fs)

	_, err := Get(context.Background(), conn, "api/v4/alert/1/", ConvertMap)
	var apiErr *ClientError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "<html>maintenance</html>", apiErr.Message)
	assert.Empty(t, apiErr.APIVersion)
}

func TestRequest_MalformedSuccess(t *testing.T) {
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})
	conn := connectTest(t, fs)

	_, err := Get(context.Background(), conn, "api/v4/alert/1/", ConvertMap)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestRequest_MaxRetries(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
	}{
		{name: "no retries", maxRetries: 0},
		{name: "one retry", maxRetries: 1},
		{name: "three retries", maxRetries: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := &failingTransport{err: &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}}
			conn := newOfflineConnection(t, rt, WithMaxRetries(tt.maxRetries))

			_, err := Get(context.Background(), conn, "api/v4/alert/1/", ConvertMap)
			require.Error(t, err)

			var apiErr *ClientError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
			assert.True(t, apiErr.IsRetriesExhausted())
			assert.ErrorIs(t, err, ErrMaxRetries)
			assert.Equal(t, int32(tt.maxRetries+1), rt.calls.Load())
		})
	}
}

func TestRequest_TransportErrorNotRetried(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "dns failure", err: &net.OpError{Op: "dial", Net: "tcp", Err: &net.DNSError{Err: "no such host", Name: "assemblyline.invalid", IsNotFound: true}}},
		{name: "connection reset", err: &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}},
		{name: "other", err: errors.New("tls: handshake failure")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := &failingTransport{err: tt.err}
			conn := newOfflineConnection(t, rt, WithMaxRetries(5))

			_, err := Get(context.Background(), conn, "api/v4/alert/1/", ConvertMap)
			var transportErr *TransportError
			require.ErrorAs(t, err, &transportErr)
			assert.Equal(t, int32(1), rt.calls.Load())
		})
	}
}

func TestRequest_Timeout(t *testing.T) {
	var hits atomic.Int32
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	conn := connectTest(t, fs, WithMaxRetries(3))

	_, err := Do(context.Background(), conn, Request{Path: "api/v4/alert/1/", Timeout: 50 * time.Millisecond}, ConvertMap)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), hits.Load())
}

func TestRequest_ContextCancelledDuringBackoff(t *testing.T) {
	rt := &failingTransport{err: &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}}
	conn := newOfflineConnection(t, rt)
	conn.backoff = softBackoff

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := Get(ctx, conn, "api/v4/alert/1/", ConvertMap)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, rt.calls.Load(), int32(1))
}

func TestRequest_UnboundedRetriesAfterSessionExpiry(t *testing.T) {
	var hits atomic.Int32
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"api_error_message": "Session not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"api_response": map[string]any{"alert_id": "a1"}})
	})
	conn := connectTest(t, fs)
	require.False(t, conn.opts.bounded)

	res, err := Get(context.Background(), conn, "api/v4/alert/a1/", ConvertMap)
	require.NoError(t, err)
	assert.Equal(t, "a1", res["alert_id"])
	assert.Equal(t, int32(2), hits.Load())
}

func TestRequest_ReauthCountsAgainstCeiling(t *testing.T) {
	var hits atomic.Int32
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusUnauthorized, map[string]any{"api_error_message": "Session expired"})
	})
	conn := connectTest(t, fs, WithMaxRetries(2))

	_, err := Get(context.Background(), conn, "api/v4/alert/1/", ConvertMap)
	assert.ErrorIs(t, err, ErrMaxRetries)
	assert.Equal(t, int32(3), hits.Load())
}

func TestRequest_ConcurrentSessionExpiry(t *testing.T) {
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(DefaultSessionHeader) == "token-1" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"api_error_message": "Session expired"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"api_response": "ok"})
	})
	conn := connectTest(t, fs)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Get(context.Background(), conn, "api/v4/alert/1/", ConvertString)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.GreaterOrEqual(t, fs.logins.Load(), int32(2))
	assert.LessOrEqual(t, fs.logins.Load(), int32(workers+1))
}

func TestSoftBackoff(t *testing.T) {
	tests := []struct {
		retries  int
		expected time.Duration
	}{
		{1, 15625 * time.Microsecond},
		{2, 31250 * time.Microsecond},
		{6, 500 * time.Millisecond},
		{7, time.Second},
		{8, 2 * time.Second},
		{20, 2 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, softBackoff(tt.retries), "retries=%d", tt.retries)
	}
}

func TestIsConnectError(t *testing.T) {
	assert.True(t, isConnectError(&net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}))
	assert.False(t, isConnectError(&net.OpError{Op: "dial", Err: &net.DNSError{Err: "no such host"}}))
	assert.False(t, isConnectError(&net.OpError{Op: "read", Err: syscall.ECONNRESET}))
	assert.False(t, isConnectError(context.Canceled))
}

func TestRequest_ReauthIgnoresOtherCallersCancellation(t *testing.T) {
	var expired atomic.Int32
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(DefaultSessionHeader) == "token-1" {
			expired.Add(1)
			writeJSON(w, http.StatusUnauthorized, map[string]any{"api_error_message": "Session expired"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"api_response": "ok"})
	})

	loginStarted := make(chan struct{})
	release := make(chan struct{})
	releaseLogin := sync.OnceFunc(func() { close(release) })
	t.Cleanup(releaseLogin)
	fs.setLogin(func(n int32, w http.ResponseWriter, r *http.Request) {
		if n == 2 {
			close(loginStarted)
			<-release
		}
		http.SetCookie(w, &http.Cookie{Name: DefaultSessionCookie, Value: fmt.Sprintf("token-%d", n), Path: "/"})
		writeJSON(w, http.StatusOK, map[string]any{"api_response": map[string]any{"username": "admin"}})
	})
	conn := connectTest(t, fs)

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	errA := make(chan error, 1)
	errB := make(chan error, 1)
	go func() {
		_, err := Get(ctxA, conn, "api/v4/alert/1/", ConvertString)
		errA <- err
	}()
	go func() {
		_, err := Get(context.Background(), conn, "api/v4/alert/2/", ConvertString)
		errB <- err
	}()

	select {
	case <-loginStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("login was not attempted")
	}
	require.Eventually(t, func() bool { return expired.Load() == 2 }, 5*time.Second, 10*time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		var transportErr *TransportError
		require.ErrorAs(t, err, &transportErr)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled call did not return")
	}

	select {
	case err := <-errB:
		t.Fatalf("uncancelled call returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	releaseLogin()
	select {
	case err := <-errB:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("uncancelled call did not complete")
	}
	assert.Equal(t, int32(2), fs.logins.Load())
}

func TestAuthenticate_SessionExpiredOnLoginIsTerminal(t *testing.T) {
	fs := newFakeServer(t, nil)
	conn := connectTest(t, fs)
	fs.setLogin(func(n int32, w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"api_error_message": "Session expired"})
	})

	_, err := conn.Authenticate(context.Background())
	var apiErr *ClientError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Session expired", apiErr.Message)
	assert.Equal(t, int32(2), fs.logins.Load(), "one login from Connect, one from Authenticate")
}

func TestCaptureSession_InvalidCookie(t *testing.T) {
	conn := newOfflineConnection(t, &failingTransport{err: errors.New("unused")})
	conn.session.Replace("token-1")

	err := conn.captureSession([]*http.Cookie{{Name: DefaultSessionCookie, Value: "bad\x00value"}})
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.NotErrorIs(t, err, ErrInvalidConfiguration)

	token, ok := conn.session.Read()
	require.True(t, ok)
	assert.Equal(t, "token-1", token)
}

func TestWithMaxRetries(t *testing.T) {
	tests := []struct {
		name        string
		retries     int
		wantBounded bool
		wantMax     int
	}{
		{name: "zero means a single attempt", retries: 0, wantBounded: true, wantMax: 0},
		{name: "positive", retries: 3, wantBounded: true, wantMax: 3},
		{name: "negative leaves unbounded", retries: -1, wantBounded: false, wantMax: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := defaultOptions()
			WithMaxRetries(tt.retries)(o)
			assert.Equal(t, tt.wantBounded, o.bounded)
			assert.Equal(t, tt.wantMax, o.maxRetries)
		})
	}
}
