package assemblyline

import (
	"context"
	"net/http"
	"time"
)

// Credential is one of the ways to log in to Assemblyline:
// PasswordCredential, APIKeyCredential or OAuthCredential.
type Credential interface {
	// Kind names the credential type for logs. It never includes secrets.
	Kind() string
	loginBody() map[string]string
}

// PasswordCredential authenticates with a user name and password.
type PasswordCredential struct {
	Username string
	Password string
}

func (PasswordCredential) Kind() string { return "password" }

func (p PasswordCredential) loginBody() map[string]string {
	return map[string]string{
		"user":     p.Username,
		"password": p.Password,
	}
}

// APIKeyCredential authenticates with a user name and API key.
type APIKeyCredential struct {
	Username string
	Key      string
}

func (APIKeyCredential) Kind() string { return "apikey" }

func (a APIKeyCredential) loginBody() map[string]string {
	return map[string]string{
		"user":   a.Username,
		"apikey": a.Key,
	}
}

// OAuthCredential authenticates with a token from an OAuth provider.
type OAuthCredential struct {
	Provider string
	Token    string
}

func (OAuthCredential) Kind() string { return "oauth" }

func (o OAuthCredential) loginBody() map[string]string {
	return map[string]string{
		"oauth_provider": o.Provider,
		"oauth_token":    o.Token,
	}
}

// Authenticate logs in with the connection's credential and returns the
// session details reported by the server. The session cookie issued by the
// login response becomes the connection's session token.
func (c *Connection) Authenticate(ctx context.Context) (map[string]any, error) {
	env, err := c.execute(ctx, Request{
		Method: http.MethodGet,
		Path:   loginPath,
		Body:   c.credential.loginBody(),
	}, false)
	if err != nil {
		return nil, err
	}
	return ConvertMap(env)
}

// reloginTimeout bounds a shared login, which no single caller can cancel.
const reloginTimeout = 2 * time.Minute

// reauthenticate logs in again after the server rejected the session.
// Concurrent callers share a single in-flight login. The login runs detached
// from the caller that started it; each caller stops waiting only when its
// own ctx is done.
func (c *Connection) reauthenticate(ctx context.Context) error {
	ch := c.logins.DoChan("login", func() (any, error) {
		c.logger.Warn().Str("auth", c.credential.Kind()).Msg("Session rejected by server, logging in again")

		loginCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reloginTimeout)
		defer cancel()
		return c.Authenticate(loginCtx)
	})

	select {
	case <-ctx.Done():
		return &TransportError{Err: ctx.Err()}
	case res := <-ch:
		if res.Shared {
			c.logger.Debug().Msg("Joined in-flight login")
		}
		return res.Err
	}
}
