package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RemoteChecker asks the ticketing API's GET /v1/session endpoint whether a
// bearer token is still good.
type RemoteChecker struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

// Check implements Checker.  401 and 403 answers are terminal, 429 and 5xx
// answers are transient, transport errors are returned as is.
func (c RemoteChecker) Check(ctx context.Context) (Session, error) {
	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.BaseURL, "/")+"/v1/session", nil)
	if err != nil {
		return Session{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return Session{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Session{}, fmt.Errorf("%w: http %d", ErrTerminalAuth, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Session{}, fmt.Errorf("%w: http %d", ErrTransient, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return Session{}, fmt.Errorf("session check: unexpected http %d", resp.StatusCode)
	}

	var s Session
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&s); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	return s, nil
}
