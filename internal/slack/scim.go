package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/openlms/slackspaces/pkg/common/logger"
)

// User is a Slack identity as reported by the SCIM API.
type User struct {
	ID       string `json:"id"`
	UserName string `json:"userName"`
}

type scimEmail struct {
	Value   string `json:"value"`
	Primary bool   `json:"primary"`
}

// FindUserByEmail retrieves a single user resource by email. Returns nil when
// no identity matches and ErrMultipleMatches when more than one does, which
// should never happen for unique emails.
func (c *Client) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	q := url.Values{}
	q.Set("filter", fmt.Sprintf("email eq %s", email))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.scimBase+"Users?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		logger.Error("scim user lookup email=%s: %v", email, err)
		return nil, nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		logger.Error("scim user lookup email=%s: status %d: %s", email, resp.StatusCode, body)
		return nil, nil
	}

	var res struct {
		TotalResults int    `json:"totalResults"`
		Resources    []User `json:"Resources"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		logger.Error("scim user lookup email=%s: unexpected response: %v", email, err)
		return nil, nil
	}
	switch {
	case res.TotalResults == 1 && len(res.Resources) > 0:
		return &res.Resources[0], nil
	case res.TotalResults == 0:
		logger.Warn("no Slack user found matching %s", email)
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrMultipleMatches, email)
	}
}

// CreateUser provisions a Slack account via SCIM. HTTP 409 conflicts are
// disambiguated by the description in the body into ErrUsernameTaken or
// ErrEmailTaken; anything else non-2xx is an *APIError.
func (c *Client) CreateUser(ctx context.Context, userName, email string) (*User, error) {
	payload := map[string]any{
		"schemas":  []string{"urn:scim:schemas:core:1.0"},
		"userName": userName,
		"emails":   []scimEmail{{Value: email, Primary: true}},
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.scimBase+"Users", bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &APIError{Op: "scim create user", Detail: err.Error()}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	logger.Debug("scim create user username=%s: %s", userName, body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var u User
		if err := json.Unmarshal(body, &u); err != nil {
			return nil, &APIError{Op: "scim create user", StatusCode: resp.StatusCode, Detail: "malformed body: " + err.Error()}
		}
		return &u, nil
	case http.StatusConflict:
		var res struct {
			Errors struct {
				Description string `json:"description"`
			} `json:"Errors"`
		}
		_ = json.Unmarshal(body, &res)
		desc := res.Errors.Description
		switch {
		case strings.Contains(desc, "username_taken"):
			return nil, fmt.Errorf("%w: %s", ErrUsernameTaken, desc)
		case strings.Contains(desc, "email_taken"):
			return nil, fmt.Errorf("%w: %s", ErrEmailTaken, desc)
		}
		return nil, &APIError{Op: "scim create user", StatusCode: resp.StatusCode, Detail: desc}
	default:
		logger.Error("scim create user username=%s: unexpected status %d", userName, resp.StatusCode)
		return nil, &APIError{Op: "scim create user", StatusCode: resp.StatusCode, Detail: string(body)}
	}
}
