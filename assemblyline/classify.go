package assemblyline

import (
	"net/http"
)

// outcome is what the executor should do with a response.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeSessionExpired
	outcomeTerminal
)

func (o outcome) String() string {
	switch o {
	case outcomeSuccess:
		return "success"
	case outcomeSessionExpired:
		return "session_expired"
	default:
		return "terminal"
	}
}

// sessionErrors are the api_error_message values that mean the session must
// be renewed rather than the request rejected.
var sessionErrors = map[string]struct{}{
	"Session rejected":                    {},
	"Session not found":                   {},
	"Session expired":                     {},
	"Invalid source IP for this session":  {},
	"Invalid user agent for this session": {},
}

// IsSessionError reports whether msg is one of the server's session
// invalidation messages.
func IsSessionError(msg string) bool {
	_, ok := sessionErrors[msg]
	return ok
}

// classification is the result of inspecting one HTTP response.
type classification struct {
	outcome  outcome
	envelope Envelope
	err      error
}

// classify maps a status code and body onto an executor outcome. On success
// the parsed envelope is returned; on a terminal outcome err is set.
func classify(status int, body []byte) classification {
	if status >= 200 && status < 300 {
		env, err := parseEnvelope(body)
		if err != nil {
			return classification{outcome: outcomeTerminal, err: malformed(err)}
		}
		return classification{outcome: outcomeSuccess, envelope: env}
	}

	env, err := parseEnvelope(body)
	if err != nil {
		return classification{outcome: outcomeTerminal, err: newClientError(string(body), status)}
	}

	if status == http.StatusUnauthorized {
		if msg, ok := env.ErrorMessage(); ok && IsSessionError(msg) {
			return classification{outcome: outcomeSessionExpired, envelope: env}
		}
	}

	// 502/503/504 and every other non-success status end the call with
	// whatever the envelope reported.
	return classification{outcome: outcomeTerminal, envelope: env, err: clientErrorFromEnvelope(env, status)}
}

func clientErrorFromEnvelope(env Envelope, status int) *ClientError {
	msg, ok := env.ErrorMessage()
	if !ok {
		msg = unknownErrorMessage
	}
	ce := newClientError(msg, status)
	ce.APIVersion, _ = env.ServerVersion()
	ce.APIResponse, _ = env.text(fieldResponse)
	return ce
}

func isGatewayStatus(status int) bool {
	return status == http.StatusBadGateway ||
		status == http.StatusServiceUnavailable ||
		status == http.StatusGatewayTimeout
}
