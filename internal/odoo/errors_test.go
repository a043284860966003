package odoo

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payloadFromJSON(t *testing.T, raw string) *ErrorPayload {
	t.Helper()
	var p ErrorPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	return &p
}

func TestClassifierSessionExpired(t *testing.T) {
	c := DefaultClassifier()

	tests := []struct {
		name     string
		raw      string
		expected bool
	}{
		{"code 100 regardless of message", `{"code":100,"message":"whatever"}`, true},
		{"session expired in message", `{"message":"Odoo Session Expired"}`, true},
		{"session expired lower case", `{"message":"session expired"}`, true},
		{"session_expired snake case", `{"message":"session_expired"}`, true},
		{"exception class name", `{"message":"SessionExpiredException raised"}`, true},
		{"marker nested in data", `{"message":"Odoo Server Error","data":{"message":"Session expired, log in again"}}`, true},
		{"marker in data arguments", `{"message":"err","data":{"arguments":["Session Expired"]}}`, true},
		{"data name mentions SessionExpired", `{"message":"err","data":{"name":"odoo.http.SessionExpiredException"}}`, true},
		{"bare string payload", `"session expired"`, true},
		{"ordinary validation error", `{"code":200,"message":"Validation failed"}`, false},
		{"access denied is not expiry", `{"message":"Access Denied"}`, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, c.SessionExpired(payloadFromJSON(t, tc.raw)))
		})
	}

	t.Run("nil payload", func(t *testing.T) {
		assert.False(t, c.SessionExpired(nil))
	})

	t.Run("extra markers extend the list", func(t *testing.T) {
		extended := c.WithExtraExpiryMarkers("sesion caducada")
		p := payloadFromJSON(t, `{"message":"Sesion Caducada"}`)
		assert.True(t, extended.SessionExpired(p))
		assert.False(t, c.SessionExpired(p))
	})
}

func TestClassifierAccessDenied(t *testing.T) {
	c := DefaultClassifier()

	tests := []struct {
		name     string
		raw      string
		expected bool
	}{
		{"access denied", `{"message":"Access Denied"}`, true},
		{"access_denied", `{"message":"access_denied"}`, true},
		{"AccessDenied exception", `{"data":{"name":"odoo.exceptions.AccessDenied"}}`, true},
		{"unrelated error", `{"message":"record not found"}`, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, c.AccessDenied(payloadFromJSON(t, tc.raw)))
		})
	}

	t.Run("nil payload", func(t *testing.T) {
		assert.False(t, c.AccessDenied(nil))
	})
}

func TestClassifierExpected(t *testing.T) {
	c := DefaultClassifier()

	assert.True(t, c.Expected("Contraseña incorrecta"))
	assert.True(t, c.Expected("Invalid password"))
	assert.True(t, c.Expected("Tu sesión ha expirado"))
	assert.True(t, c.Expected("ACCESS DENIED"))
	assert.False(t, c.Expected("division by zero"))
}

func TestExtractMessage(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{"bare string payload", `"plain error text"`, "plain error text"},
		{
			"arguments take precedence",
			`{"message":"Odoo Server Error","data":{"message":"inner","arguments":["La cédula ya está registrada"]}}`,
			"La cédula ya está registrada",
		},
		{
			"data message when differing",
			`{"message":"outer","data":{"message":"inner detail"}}`,
			"inner detail",
		},
		{
			"data message equal to message is skipped",
			`{"message":"same","data":{"message":"same"}}`,
			"same",
		},
		{
			"user error in debug traceback",
			`{"message":"Odoo Server Error","data":{"debug":"Traceback...\nodoo.exceptions.UserError('El estudiante ya está inscrito')"}}`,
			"El estudiante ya está inscrito",
		},
		{
			"validation error in debug traceback",
			`{"message":"Odoo Server Error","data":{"debug":"Traceback...\nValidationError(\"Fecha inválida\")"}}`,
			"Fecha inválida",
		},
		{
			"last meaningful debug line",
			`{"message":"Odoo Server Error","data":{"debug":"Traceback (most recent call last):\nKeyError: 'year_id'"}}`,
			"'year_id'",
		},
		{"plain message", `{"message":"record not found"}`, "record not found"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ExtractMessage(payloadFromJSON(t, tc.raw)))
		})
	}

	t.Run("never panics and always returns a string", func(t *testing.T) {
		circular := map[string]any{}
		circular["self"] = circular

		inputs := []any{
			nil,
			(*ErrorPayload)(nil),
			(error)(nil),
			"",
			"text",
			42,
			math.Inf(1),
			circular,
			errors.New("wrapped"),
			ErrorPayload{},
			map[string]any{"message": "m"},
		}
		for _, in := range inputs {
			assert.NotPanics(t, func() {
				assert.IsType(t, "", ExtractMessage(in))
			})
		}
	})

	t.Run("unmarshalable input falls back to generic message", func(t *testing.T) {
		circular := map[string]any{}
		circular["self"] = circular
		assert.Equal(t, unknownErrorMessage, ExtractMessage(circular))
	})

	t.Run("long dumps are truncated", func(t *testing.T) {
		big := map[string]any{"k": string(make([]byte, 1000))}
		assert.LessOrEqual(t, len(ExtractMessage(big)), extractLimit)
	})

	t.Run("generic server error title falls back to raw dump", func(t *testing.T) {
		p := payloadFromJSON(t, `{"message":"Odoo Server Error"}`)
		msg := ExtractMessage(p)
		assert.NotEmpty(t, msg)
		assert.NotEqual(t, "Odoo Server Error", msg)
	})
}

func TestErrorType(t *testing.T) {
	t.Run("kind helpers", func(t *testing.T) {
		err := noSessionError()
		assert.Equal(t, KindNoSession, KindOf(err))
		assert.Equal(t, CodeNoSession, err.Code)
		assert.False(t, IsSessionExpired(err))
	})

	t.Run("expired error carries payload and flag", func(t *testing.T) {
		p := &ErrorPayload{Code: 100, Message: "Odoo Session Expired"}
		err := expiredError(KindSessionExpired, p)
		assert.True(t, IsSessionExpired(err))
		assert.Equal(t, KindSessionExpired, KindOf(err))
		assert.Equal(t, p, err.Payload)
		assert.Equal(t, expiredUserMessage, err.Message)
	})

	t.Run("transport error unwraps cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := transportError("request failed", cause)
		assert.Equal(t, cause, errors.Unwrap(err))
		assert.Contains(t, err.Error(), "transport")
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("plain errors classify as transport", func(t *testing.T) {
		assert.Equal(t, KindTransport, KindOf(errors.New("boom")))
	})
}
