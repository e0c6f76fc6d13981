package bluebeam

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// ============================================================================
// Session Operations
// ============================================================================

const sessionsPath = APIRoot + "/sessions"

// CreateSession creates a Studio session owned by the token's user.
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, &Error{Kind: KindConfiguration, Message: "session name is required"}
	}

	var session Session
	if err := c.executeJSON(ctx, http.MethodPost, sessionsPath, nil, req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListSessions returns one page of the user's sessions.
func (c *Client) ListSessions(ctx context.Context, opts ListSessionsOptions) (*SessionList, error) {
	page := opts.Page
	if page <= 0 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	params := url.Values{
		"page":     {strconv.Itoa(page)},
		"pageSize": {strconv.Itoa(pageSize)},
	}

	var list SessionList
	if err := c.executeJSON(ctx, http.MethodGet, sessionsPath, params, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetSession fetches a session by ID.
func (c *Client) GetSession(ctx context.Context, id string) (*Session, error) {
	path, err := sessionPath(id)
	if err != nil {
		return nil, err
	}

	var session Session
	if err := c.executeJSON(ctx, http.MethodGet, path, nil, nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// UpdateSession changes a session's settings. The provider answers with no
// body.
func (c *Client) UpdateSession(ctx context.Context, id string, req UpdateSessionRequest) error {
	path, err := sessionPath(id)
	if err != nil {
		return err
	}
	return c.executeJSON(ctx, http.MethodPut, path, nil, req, nil)
}

// DeleteSession removes a session.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	path, err := sessionPath(id)
	if err != nil {
		return err
	}
	return c.executeJSON(ctx, http.MethodDelete, path, nil, nil, nil)
}

func sessionPath(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", &Error{Kind: KindConfiguration, Message: "session ID is required"}
	}
	return sessionsPath + "/" + url.PathEscape(id), nil
}
