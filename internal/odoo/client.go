// Package odoo implements the JSON-RPC client for the school Odoo
// backend: session-aware transport, error classification, CRUD verbs and
// the session lifecycle endpoints.
package odoo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pmaschool/school-admin-go/internal/session"
)

const (
	callKWPath         = "/web/dataset/call_kw"
	authenticatePath   = "/web/session/authenticate"
	sessionInfoPath    = "/web/session/get_session_info"
	sessionDestroyPath = "/web/session/destroy"
	databaseListPath   = "/web/database/list"
)

const sessionHeader = "X-Openerp-Session-Id"

type Client struct {
	host       string
	database   string
	http       *http.Client
	sessions   *session.Manager
	classifier Classifier
	nextID     atomic.Int64
}

type Option func(*Client)

// WithClassifier replaces the default error classifier, letting callers
// extend the expiry/denied marker lists.
func WithClassifier(c Classifier) Option {
	return func(cl *Client) { cl.classifier = c }
}

// WithHTTPClient replaces the underlying HTTP client. Mostly for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(cl *Client) { cl.http = h }
}

// NewClient builds a client against host (scheme included, no trailing
// slash) and database. The session manager is injected so the expiry
// callback wiring stays with the caller.
func NewClient(host, database string, sessions *session.Manager, timeout time.Duration, opts ...Option) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		host:     host,
		database: database,
		http: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
		sessions:   sessions,
		classifier: DefaultClassifier(),
	}
	c.nextID.Store(time.Now().UnixMilli())
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sessions exposes the injected session manager.
func (c *Client) Sessions() *session.Manager {
	return c.sessions
}

type rpcEnvelope struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *ErrorPayload   `json:"error"`
}

// Call issues a JSON-RPC request to path. When requiresAuth is set and no
// session id is stored, it fails locally without touching the network.
// Backend error payloads are classified here, not in post, so the login
// and logout endpoints never trigger expiry handling on a failed request.
// Errors are always *Error; the call never panics and never retries.
func (c *Client) Call(ctx context.Context, path string, params any, requiresAuth bool) (json.RawMessage, error) {
	sid := ""
	if requiresAuth {
		sid = c.sessions.SessionID(ctx)
		if sid == "" {
			return nil, noSessionError()
		}
	}

	result, _, err := c.post(ctx, path, params, sid)
	if err != nil {
		var rpcErr *Error
		if errors.As(err, &rpcErr) && rpcErr.Kind == KindDomain && rpcErr.Payload != nil {
			return nil, c.classifyError(ctx, path, rpcErr.Payload)
		}
		return nil, err
	}
	return result, nil
}

// post sends the envelope and returns the raw result plus the response
// headers (the authenticate flow reads Set-Cookie from them). Backend
// error payloads come back as plain domain errors; the session lifecycle
// endpoints use post directly and must see them unclassified.
func (c *Client) post(ctx context.Context, path string, params any, sid string) (json.RawMessage, http.Header, error) {
	body, err := json.Marshal(rpcEnvelope{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  "call",
		Params:  params,
	})
	if err != nil {
		return nil, nil, transportError("marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(body))
	if err != nil {
		return nil, nil, transportError("create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if sid != "" {
		req.Header.Set(sessionHeader, sid)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		log.Debug().Err(err).Str("path", path).Dur("elapsed", elapsed).Msg("odoo request failed")
		return nil, nil, transportError(fmt.Sprintf("request failed: %v", err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Debug().Str("path", path).Int("status", resp.StatusCode).Dur("elapsed", elapsed).Msg("odoo http error")
		return nil, resp.Header, transportError(fmt.Sprintf("HTTP error: %d %s", resp.StatusCode, resp.Status), nil)
	}

	var parsed rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, resp.Header, transportError("unparsable response body", err)
	}

	if parsed.Error != nil {
		return nil, resp.Header, domainError(parsed.Error)
	}

	log.Debug().Str("path", path).Dur("elapsed", elapsed).Msg("odoo request ok")
	return parsed.Result, resp.Header, nil
}

// classifyError routes a backend error payload through the classifier.
// Expired or denied sessions clear local state and notify the expiry
// callback before the error is returned.
func (c *Client) classifyError(ctx context.Context, path string, payload *ErrorPayload) *Error {
	if c.classifier.SessionExpired(payload) {
		log.Debug().Str("path", path).Msg("session expired reported by backend")
		c.sessions.Expire(ctx)
		return expiredError(KindSessionExpired, payload)
	}
	if c.classifier.AccessDenied(payload) {
		log.Debug().Str("path", path).Msg("access denied reported by backend")
		c.sessions.Expire(ctx)
		return expiredError(KindAccessDenied, payload)
	}

	domainErr := domainError(payload)
	if !c.classifier.Expected(domainErr.Message) {
		log.Debug().Str("path", path).Str("error", domainErr.Message).Msg("odoo error")
	}
	return domainErr
}

// callInto is Call plus decoding of the result into dest.
func (c *Client) callInto(ctx context.Context, path string, params any, requiresAuth bool, dest any) error {
	result, err := c.Call(ctx, path, params, requiresAuth)
	if err != nil {
		return err
	}
	if dest == nil || len(result) == 0 {
		return nil
	}
	if err := json.Unmarshal(result, dest); err != nil {
		return transportError("decode result", err)
	}
	return nil
}
