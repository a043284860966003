package odoo

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Kind is the closed set of failure categories produced at the RPC
// boundary. Downstream code switches on Kind instead of re-deriving the
// classification from message text.
type Kind string

// KindTransport covers network failures, non-2xx statuses and unparsable
// bodies. KindNoSession means an authenticated call was attempted with no
// stored session id; no network call was made. KindDomain is any other
// backend error (validation failures, constraint violations), passed
// through unmodified.
const (
	KindTransport      Kind = "transport"
	KindNoSession      Kind = "no_session"
	KindSessionExpired Kind = "session_expired"
	KindAccessDenied   Kind = "access_denied"
	KindDomain         Kind = "domain"
)

// CodeNoSession mirrors the wire-level code callers may match on.
const CodeNoSession = "NO_SESSION"

const expiredUserMessage = "Tu sesión ha expirado. Por favor, inicia sesión nuevamente."

// Error is the structured error returned by every client operation.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	// Payload is the original backend error, when one exists. Never
	// constructed by domain loaders.
	Payload *ErrorPayload
	// SessionExpired is set when the error forced the session to be
	// cleared (expired or access denied).
	SessionExpired bool
	cause          error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf returns the Kind of err when it is an *Error, or KindTransport
// for anything else that crossed the boundary unexpectedly.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransport
}

// IsSessionExpired reports whether err cleared the stored session.
func IsSessionExpired(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.SessionExpired
}

func transportError(message string, cause error) *Error {
	return &Error{Kind: KindTransport, Message: message, cause: cause}
}

func noSessionError() *Error {
	return &Error{Kind: KindNoSession, Code: CodeNoSession, Message: "No hay sesión activa"}
}

func domainError(payload *ErrorPayload) *Error {
	return &Error{Kind: KindDomain, Message: ExtractMessage(payload), Payload: payload}
}

func expiredError(kind Kind, payload *ErrorPayload) *Error {
	return &Error{
		Kind:           kind,
		Message:        expiredUserMessage,
		Payload:        payload,
		SessionExpired: true,
	}
}

// ErrorData is the nested data object of an Odoo error payload.
type ErrorData struct {
	Name      string `json:"name,omitempty"`
	Message   string `json:"message,omitempty"`
	Arguments []any  `json:"arguments,omitempty"`
	Debug     string `json:"debug,omitempty"`
}

// ErrorPayload is the backend's error object. The backend sometimes
// returns a bare string instead of an object; both shapes decode here.
type ErrorPayload struct {
	Code    int        `json:"code,omitempty"`
	Message string     `json:"message,omitempty"`
	Data    *ErrorData `json:"data,omitempty"`

	raw json.RawMessage
}

func (p *ErrorPayload) UnmarshalJSON(data []byte) error {
	p.raw = append(json.RawMessage(nil), data...)

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		p.Message = s
		return nil
	}

	type alias ErrorPayload
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		// Keep whatever we got; classification falls back to the raw text.
		return nil
	}
	a.raw = p.raw
	*p = ErrorPayload(a)
	return nil
}

// serialized returns the lower-cased wire form of the payload, used for
// the loose substring classification below.
func (p *ErrorPayload) serialized() string {
	if p == nil {
		return ""
	}
	if len(p.raw) > 0 {
		return strings.ToLower(string(p.raw))
	}
	data, err := json.Marshal(p)
	if err != nil {
		return strings.ToLower(p.Message)
	}
	return strings.ToLower(string(data))
}

// Classifier categorizes backend error payloads. The marker lists are
// configuration rather than hardcoded literals: they are an artifact of
// the backend version observed, not a stable protocol.
type Classifier struct {
	ExpiryMarkers       []string
	AccessDeniedMarkers []string
	// ExpectedMarkers flags benign errors (wrong password, stale
	// session) that should not be logged verbosely. Spanish and English
	// because the backend mixes both.
	ExpectedMarkers []string
}

func DefaultClassifier() Classifier {
	return Classifier{
		ExpiryMarkers: []string{
			"session expired",
			"session_expired",
			"sessionexpiredexception",
		},
		AccessDeniedMarkers: []string{
			"access denied",
			"access_denied",
			"accessdenied",
		},
		ExpectedMarkers: []string{
			"sesión", "session",
			"contraseña", "password",
			"usuario", "user",
			"acceso", "access",
			"denied", "denegado",
			"inválido", "invalid",
		},
	}
}

// WithExtraExpiryMarkers returns a copy with additional expiry markers.
func (c Classifier) WithExtraExpiryMarkers(markers ...string) Classifier {
	c.ExpiryMarkers = append(append([]string(nil), c.ExpiryMarkers...), markers...)
	return c
}

// SessionExpired reports whether the payload indicates an invalid or
// expired session. Deliberately loose: any expiry marker anywhere in the
// serialized payload counts, as does the session-expired code 100 and a
// data.name mentioning SessionExpired.
func (c Classifier) SessionExpired(p *ErrorPayload) bool {
	if p == nil {
		return false
	}
	if p.Code == 100 {
		return true
	}
	if p.Data != nil && strings.Contains(p.Data.Name, "SessionExpired") {
		return true
	}

	serialized := p.serialized()
	for _, marker := range c.ExpiryMarkers {
		if strings.Contains(serialized, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

// AccessDenied reports whether the payload is an access-denied rejection.
func (c Classifier) AccessDenied(p *ErrorPayload) bool {
	if p == nil {
		return false
	}
	serialized := p.serialized()
	for _, marker := range c.AccessDeniedMarkers {
		if strings.Contains(serialized, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

// Expected reports whether message matches a known benign error. Used
// only to decide logging verbosity, never control flow.
func (c Classifier) Expected(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range c.ExpectedMarkers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

const unknownErrorMessage = "Error desconocido"

const extractLimit = 200

var (
	userErrorPattern     = regexp.MustCompile(`UserError\(['"](.+?)['"]\)`)
	validationErrPattern = regexp.MustCompile(`ValidationError\(['"](.+?)['"]\)`)
)

// ExtractMessage pulls a human-readable message out of an arbitrary error
// value. It never panics; when nothing usable is found it returns a
// generic unknown-error string.
func ExtractMessage(err any) string {
	switch v := err.(type) {
	case nil:
		return unknownErrorMessage
	case string:
		return v
	case *ErrorPayload:
		return extractFromPayload(v)
	case ErrorPayload:
		return extractFromPayload(&v)
	case error:
		if v == nil {
			return unknownErrorMessage
		}
		return v.Error()
	default:
		return truncatedDump(v)
	}
}

func extractFromPayload(p *ErrorPayload) string {
	if p == nil {
		return unknownErrorMessage
	}

	// Odoo UserError carries the real message in data.arguments[0].
	if p.Data != nil && len(p.Data.Arguments) > 0 {
		if s, ok := p.Data.Arguments[0].(string); ok && s != "" {
			return s
		}
	}

	if p.Data != nil && p.Data.Message != "" && p.Data.Message != p.Message {
		return p.Data.Message
	}

	if p.Data != nil && p.Data.Debug != "" {
		if msg := extractFromDebug(p.Data.Debug); msg != "" {
			return msg
		}
	}

	// "Odoo Server Error" is the generic envelope title, skip it.
	if p.Message != "" && p.Message != "Odoo Server Error" {
		return p.Message
	}

	if len(p.raw) > 0 {
		raw := p.raw
		if len(raw) > extractLimit {
			raw = raw[:extractLimit]
		}
		return string(raw)
	}
	return truncatedDump(p)
}

// extractFromDebug digs the actual exception message out of a server
// traceback.
func extractFromDebug(debug string) string {
	if m := userErrorPattern.FindStringSubmatch(debug); len(m) > 1 {
		return m[1]
	}
	if m := validationErrPattern.FindStringSubmatch(debug); len(m) > 1 {
		return m[1]
	}

	lines := strings.Split(debug, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if idx := strings.Index(line, ":"); idx >= 0 && idx < len(line)-1 {
			return strings.TrimSpace(line[idx+1:])
		}
		break
	}
	return ""
}

func truncatedDump(v any) string {
	data, err := json.Marshal(v)
	if err != nil || len(data) == 0 || string(data) == "null" {
		return unknownErrorMessage
	}
	if len(data) > extractLimit {
		data = data[:extractLimit]
	}
	return string(data)
}
