package assemblyline

import "sync"

// sessionToken holds the anti-forgery token shared by every request on a
// Connection. The lock is only held for the copy in or out.
type sessionToken struct {
	mu    sync.RWMutex
	value string
	set   bool
}

// Read returns the current token, if one has been issued.
func (s *sessionToken) Read() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.value, s.set
}

// Replace installs a new token.
func (s *sessionToken) Replace(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.value = token
	s.set = true
}

// Clear drops the token.
func (s *sessionToken) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.value = ""
	s.set = false
}
