package odoo

import (
	"context"
	"encoding/json"
	"regexp"

	"github.com/rs/zerolog/log"
)

// SessionInfo is the slice of the backend's session payload the admin
// tooling cares about.
type SessionInfo struct {
	UID       int64  `json:"uid"`
	Name      string `json:"name"`
	Username  string `json:"username"`
	SessionID string `json:"session_id"`
	DB        string `json:"db"`
}

// AuthResult is a successful authentication: the backend's session info
// plus the session id that was persisted.
type AuthResult struct {
	Info      SessionInfo
	SessionID string
}

var sessionCookiePattern = regexp.MustCompile(`session_id=([^;]+)`)

// extractSessionID pulls the session id out of a Set-Cookie header value.
func extractSessionID(setCookie string) string {
	m := sessionCookiePattern.FindStringSubmatch(setCookie)
	if len(m) > 1 {
		return m[1]
	}
	return ""
}

// Authenticate logs in against the configured database and persists the
// resulting session id. The id comes from the Set-Cookie header when
// present, falling back to the session_id field of the result body. A
// failed login is returned as a plain domain error and never touches the
// stored session or the expiry callback.
func (c *Client) Authenticate(ctx context.Context, username, password string) (*AuthResult, error) {
	params := map[string]any{
		"db":       c.database,
		"login":    username,
		"password": password,
	}

	result, headers, err := c.post(ctx, authenticatePath, params, "")
	if err != nil {
		return nil, err
	}

	var info SessionInfo
	if len(result) > 0 {
		if err := json.Unmarshal(result, &info); err != nil {
			return nil, transportError("decode session info", err)
		}
	}

	sid := ""
	if headers != nil {
		sid = extractSessionID(headers.Get("Set-Cookie"))
	}
	if sid == "" {
		sid = info.SessionID
	}

	if sid != "" {
		c.sessions.Save(ctx, sid)
		log.Debug().Str("username", username).Msg("session established")
	}

	return &AuthResult{Info: info, SessionID: sid}, nil
}

// VerifySession asks the backend whether the stored session is still
// valid. An expired session goes through the same expiry handling as any
// other call.
func (c *Client) VerifySession(ctx context.Context) (*SessionInfo, error) {
	var info SessionInfo
	if err := c.callInto(ctx, sessionInfoPath, map[string]any{}, true, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// DestroySession logs out on the backend and clears the local session id
// unconditionally: local state must never retain a session the user
// explicitly ended, even when the destroy request itself fails.
func (c *Client) DestroySession(ctx context.Context) error {
	_, _, err := c.post(ctx, sessionDestroyPath, map[string]any{}, c.sessions.SessionID(ctx))
	c.sessions.Clear(ctx)
	return err
}

// ListDatabases returns the databases the backend exposes.
func (c *Client) ListDatabases(ctx context.Context) ([]string, error) {
	var dbs []string
	if err := c.callInto(ctx, databaseListPath, map[string]any{}, false, &dbs); err != nil {
		return nil, err
	}
	return dbs, nil
}

// CheckConnection is a lightweight reachability check. All errors are
// swallowed into false.
func (c *Client) CheckConnection(ctx context.Context) bool {
	_, err := c.ListDatabases(ctx)
	return err == nil
}
