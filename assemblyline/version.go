package assemblyline

import (
	"fmt"
	"strings"

	"github.com/blang/semver"
)

// recordServerVersion remembers the api_server_version of the latest envelope.
func (c *Connection) recordServerVersion(env Envelope) {
	if v, ok := env.ServerVersion(); ok && v != "" {
		c.serverVersion.Store(&v)
	}
}

// ServerVersion returns the last api_server_version reported by the server.
func (c *Connection) ServerVersion() (string, bool) {
	v := c.serverVersion.Load()
	if v == nil {
		return "", false
	}
	return *v, true
}

// SemVer parses the server version. Assemblyline versions carry a build
// suffix ("4.5.1.stable12"); only the leading numeric components are used.
func (c *Connection) SemVer() (semver.Version, error) {
	raw, ok := c.ServerVersion()
	if !ok {
		return semver.Version{}, fmt.Errorf("server version not reported yet")
	}
	return ParseServerVersion(raw)
}

// ParseServerVersion converts an Assemblyline version string to semver.
func ParseServerVersion(raw string) (semver.Version, error) {
	parts := strings.Split(strings.TrimPrefix(strings.TrimSpace(raw), "v"), ".")
	numeric := make([]string, 0, 3)
	for _, p := range parts {
		if p == "" || strings.TrimLeft(p, "0123456789") != "" {
			break
		}
		numeric = append(numeric, p)
		if len(numeric) == 3 {
			break
		}
	}
	if len(numeric) == 0 {
		return semver.Version{}, fmt.Errorf("invalid server version %q", raw)
	}
	return semver.ParseTolerant(strings.Join(numeric, "."))
}

// Close drops the session token and releases idle connections.
func (c *Connection) Close() {
	c.session.Clear()
	c.httpClient.GetClient().CloseIdleConnections()
}
