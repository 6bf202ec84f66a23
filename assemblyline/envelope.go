package assemblyline

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Envelope field names
const (
	fieldResponse      = "api_response"
	fieldErrorMessage  = "api_error_message"
	fieldServerVersion = "api_server_version"
)

// Envelope is the standard JSON wrapper around every API response.
// Fields are kept raw until a converter picks the shape it expects.
type Envelope map[string]json.RawMessage

// parseEnvelope decodes body as a JSON object. Anything else is an error.
func parseEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	if env == nil {
		return nil, fmt.Errorf("response body is not a JSON object")
	}
	return env, nil
}

// raw returns the named field, treating JSON null as absent.
func (e Envelope) raw(name string) (json.RawMessage, bool) {
	v, ok := e[name]
	if !ok || len(v) == 0 || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return nil, false
	}
	return v, true
}

// text returns the named field as a string. Strings are unquoted, any other
// JSON value is returned as its JSON text.
func (e Envelope) text(name string) (string, bool) {
	v, ok := e.raw(name)
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, true
	}
	return string(v), true
}

// ErrorMessage returns api_error_message, if present
func (e Envelope) ErrorMessage() (string, bool) {
	return e.text(fieldErrorMessage)
}

// ServerVersion returns api_server_version, if present
func (e Envelope) ServerVersion() (string, bool) {
	return e.text(fieldServerVersion)
}

// Response returns the raw api_response payload, if present
func (e Envelope) Response() (json.RawMessage, bool) {
	return e.raw(fieldResponse)
}

// ConvertString extracts api_response as a JSON string.
func ConvertString(env Envelope) (string, error) {
	v, ok := env.Response()
	if !ok {
		return "", fmt.Errorf("%w: api_response is missing", ErrMalformedResponse)
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", fmt.Errorf("%w: api_response is not a string", ErrMalformedResponse)
	}
	return s, nil
}

// ConvertMap extracts api_response as a JSON object.
func ConvertMap(env Envelope) (map[string]any, error) {
	v, ok := env.Response()
	if !ok {
		return nil, fmt.Errorf("%w: api_response is missing", ErrMalformedResponse)
	}
	var m map[string]any
	if err := json.Unmarshal(v, &m); err != nil {
		return nil, fmt.Errorf("%w: api_response is not an object", ErrMalformedResponse)
	}
	return m, nil
}

// ConvertList extracts api_response as a JSON array.
func ConvertList(env Envelope) ([]any, error) {
	v, ok := env.Response()
	if !ok {
		return nil, fmt.Errorf("%w: api_response is missing", ErrMalformedResponse)
	}
	var l []any
	if err := json.Unmarshal(v, &l); err != nil {
		return nil, fmt.Errorf("%w: api_response is not an array", ErrMalformedResponse)
	}
	return l, nil
}

// ConvertInto returns a converter that decodes api_response into T.
func ConvertInto[T any]() func(Envelope) (T, error) {
	return func(env Envelope) (T, error) {
		var out T
		v, ok := env.Response()
		if !ok {
			return out, fmt.Errorf("%w: api_response is missing", ErrMalformedResponse)
		}
		if err := json.Unmarshal(v, &out); err != nil {
			return out, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return out, nil
	}
}
