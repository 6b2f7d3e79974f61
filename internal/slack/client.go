// Package slack is a typed facade over the Slack Enterprise Grid admin API
// and the SCIM v1 identity API. See https://api.slack.com/methods for the
// endpoint catalogue; rate tiers noted per method are informational only.
package slack

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openlms/slackspaces/pkg/common/logger"
)

const (
	DefaultAPIEndpoint  = "https://slack.com/api/"
	DefaultSCIMEndpoint = "https://api.slack.com/scim/v1/"
)

// Config carries the credentials and endpoints for a Client. Endpoints are
// overridable for tests.
type Config struct {
	Token        string
	APIEndpoint  string
	SCIMEndpoint string
	HTTPClient   *http.Client
}

// Client talks to the Slack admin and SCIM APIs on behalf of the
// provisioning workflows.
type Client struct {
	token    string
	apiBase  string
	scimBase string
	httpc    *http.Client
}

// New builds a Client, filling endpoint and transport defaults.
func New(cfg Config) *Client {
	c := &Client{
		token:    cfg.Token,
		apiBase:  cfg.APIEndpoint,
		scimBase: cfg.SCIMEndpoint,
		httpc:    cfg.HTTPClient,
	}
	if c.apiBase == "" {
		c.apiBase = DefaultAPIEndpoint
	}
	if c.scimBase == "" {
		c.scimBase = DefaultSCIMEndpoint
	}
	if c.httpc == nil {
		c.httpc = &http.Client{Timeout: 30 * time.Second}
	}
	return c
}

// apiResult is the envelope every web API method shares.
type apiResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// postForm sends a form-encoded POST to an admin API method and decodes the
// body into out (which must embed the ok envelope).
func (c *Client) postForm(ctx context.Context, method string, params url.Values, out any) error {
	params.Set("token", c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+method, strings.NewReader(params.Encode()))
	if err != nil {
		return &APIError{Op: method, Detail: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, method, out)
}

// getJSON sends a bearer-authorized GET to an admin API method.
func (c *Client) getJSON(ctx context.Context, method string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+method+"?"+params.Encode(), nil)
	if err != nil {
		return &APIError{Op: method, Detail: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	return c.do(req, method, out)
}

func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return &APIError{Op: op, Detail: err.Error()}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Detail: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Detail: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Detail: "malformed body: " + err.Error()}
	}
	return nil
}

// CreateWorkspace creates a workspace in the enterprise grid and returns the
// new team id. Tier 1 (1+ per minute). Returns ok=false with a logged
// diagnostic on any failure.
func (c *Client) CreateWorkspace(ctx context.Context, teamDomain, teamName, discoverability, description string) (teamID string, ok bool) {
	params := url.Values{}
	params.Set("team_domain", teamDomain)
	params.Set("team_name", teamName)
	params.Set("team_description", description)
	params.Set("team_discoverability", discoverability)

	var res struct {
		apiResult
		Team string `json:"team"`
	}
	if err := c.postForm(ctx, "admin.teams.create", params, &res); err != nil {
		logger.Error("create workspace domain=%s name=%s: %v", teamDomain, teamName, err)
		return "", false
	}
	logger.Info("create workspace domain=%s name=%s ok=%t team=%s error=%q", teamDomain, teamName, res.OK, res.Team, res.Error)
	if !res.OK {
		return "", false
	}
	return res.Team, true
}

// InviteUser invites a user by email to a workspace with access to the given
// channels. Tier 2 (20+ per minute).
func (c *Client) InviteUser(ctx context.Context, channelIDs []string, email, teamID string) bool {
	params := url.Values{}
	params.Set("channel_ids", strings.Join(channelIDs, ","))
	params.Set("email", email)
	params.Set("team_id", teamID)

	var res apiResult
	if err := c.postForm(ctx, "admin.users.invite", params, &res); err != nil {
		logger.Error("invite user team=%s email=%s: %v", teamID, email, err)
		return false
	}
	logger.Info("invite user team=%s email=%s ok=%t error=%q", teamID, email, res.OK, res.Error)
	return res.OK
}

// AssignUser assigns an existing Slack account to the workspace with the
// given channels. Tier 2 (20+ per minute). Unlike most admin calls this one
// returns an error: the workflows must stop when assignment fails.
func (c *Client) AssignUser(ctx context.Context, teamID, userID string, channelIDs []string) error {
	params := url.Values{}
	params.Set("team_id", teamID)
	params.Set("user_id", userID)
	params.Set("channel_ids", strings.Join(channelIDs, ","))

	var res apiResult
	if err := c.getJSON(ctx, "admin.users.assign", params, &res); err != nil {
		logger.Error("assign user team=%s user=%s: %v", teamID, userID, err)
		return err
	}
	if !res.OK {
		err := &APIError{Op: "admin.users.assign", Detail: res.Error}
		logger.Error("assign user team=%s user=%s: %v", teamID, userID, err)
		return err
	}
	return nil
}

// SetAdmin promotes an existing guest, regular user, or owner to admin.
// Tier 2 (20+ per minute).
func (c *Client) SetAdmin(ctx context.Context, teamID, userID string) bool {
	params := url.Values{}
	params.Set("team_id", teamID)
	params.Set("user_id", userID)

	var res apiResult
	if err := c.postForm(ctx, "admin.users.setAdmin", params, &res); err != nil {
		logger.Error("set admin team=%s user=%s: %v", teamID, userID, err)
		return false
	}
	logger.Info("set admin team=%s user=%s ok=%t error=%q", teamID, userID, res.OK, res.Error)
	return res.OK
}

// ListAdmins returns the admin user ids of a workspace. The full API
// paginates; one page of 100 is treated as the whole answer here.
func (c *Client) ListAdmins(ctx context.Context, teamID string) []string {
	params := url.Values{}
	params.Set("team_id", teamID)
	params.Set("limit", "100")

	var res struct {
		apiResult
		AdminIDs []string `json:"admin_ids"`
	}
	if err := c.getJSON(ctx, "admin.teams.admins.list", params, &res); err != nil {
		logger.Error("list admins team=%s: %v", teamID, err)
		return nil
	}
	if !res.OK {
		logger.Error("list admins team=%s: %s", teamID, res.Error)
		return nil
	}
	return res.AdminIDs
}

// IsAdmin reports whether the user holds the admin member type in the team.
func (c *Client) IsAdmin(ctx context.Context, userID, teamID string) bool {
	for _, id := range c.ListAdmins(ctx, teamID) {
		if id == userID {
			return true
		}
	}
	return false
}

// IsMember reports whether the user belongs to the team, derived from the
// teams array on the user's profile.
func (c *Client) IsMember(ctx context.Context, userID, teamID string) bool {
	params := url.Values{}
	params.Set("user", userID)

	var res struct {
		apiResult
		User struct {
			Teams []string `json:"teams"`
		} `json:"user"`
	}
	if err := c.getJSON(ctx, "users.info", params, &res); err != nil {
		logger.Error("users.info user=%s: %v", userID, err)
		return false
	}
	if !res.OK {
		logger.Error("users.info user=%s: %s", userID, res.Error)
		return false
	}
	for _, t := range res.User.Teams {
		if t == teamID {
			return true
		}
	}
	return false
}

// TeamSettings is the subset of admin.teams.settings.info the workflows use.
type TeamSettings struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Domain          string   `json:"domain"`
	DefaultChannels []string `json:"default_channels"`
}

// TeamInfo fetches workspace settings. Tier 3 (50+ per minute). Returns nil
// with a logged diagnostic on failure.
func (c *Client) TeamInfo(ctx context.Context, teamID string) *TeamSettings {
	params := url.Values{}
	params.Set("team_id", teamID)

	var res struct {
		apiResult
		Team *TeamSettings `json:"team"`
	}
	if err := c.getJSON(ctx, "admin.teams.settings.info", params, &res); err != nil {
		logger.Error("team info team=%s: %v", teamID, err)
		return nil
	}
	if !res.OK || res.Team == nil {
		logger.Error("team info team=%s: ok=%t error=%q", teamID, res.OK, res.Error)
		return nil
	}
	return res.Team
}

// DefaultChannels returns the default channel ids of a workspace, or nil if
// settings could not be fetched.
func (c *Client) DefaultChannels(ctx context.Context, teamID string) []string {
	team := c.TeamInfo(ctx, teamID)
	if team == nil {
		return nil
	}
	return team.DefaultChannels
}

// SetIcon sets the workspace icon from an image URL.
func (c *Client) SetIcon(ctx context.Context, teamID, imageURL string) error {
	params := url.Values{}
	params.Set("team_id", teamID)
	params.Set("image_url", imageURL)

	var res apiResult
	if err := c.getJSON(ctx, "admin.teams.settings.setIcon", params, &res); err != nil {
		return err
	}
	if !res.OK {
		return &APIError{Op: "admin.teams.settings.setIcon", Detail: res.Error}
	}
	return nil
}
