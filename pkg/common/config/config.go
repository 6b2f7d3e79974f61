// Package config builds the process-wide configuration once at startup.
// All policy inputs (API credentials, role allow-lists, platform identity)
// live here so that nothing else reads the environment.
package config

import (
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Defaults for the role allow-lists when none are configured. The admin list
// drives provisioning/admin rights, the member list grants join access.
var (
	DefaultStaffRoles = []string{
		"Instructor",
		"TA",
		"Designer",
		"urn:lti:instrole:ims/lis/Administrator",
	}
	DefaultMemberRoles = []string{
		"Learner",
	}
)

// Config carries everything the service needs, read once in main and passed
// down explicitly.
type Config struct {
	Port       string
	LogLevel   string
	SQLitePath string

	// Slack API access
	SlackAPIToken     string
	SlackAPIEndpoint  string
	SlackSCIMEndpoint string

	// Workspace creation policy
	TeamIconURL         string
	TeamDiscoverability string

	// LTI platform identity for verifying inbound launches
	PlatformIssuer  string
	PlatformJWKSURL string
	ClientID        string

	// Launch roles considered course staff vs. plain members
	StaffRoles  []string
	MemberRoles []string
}

// Load reads an optional .env file and then the environment. The Slack API
// token is the only hard requirement.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                envOr("PORT", "8080"),
		LogLevel:            envOr("LOG_LEVEL", "info"),
		SQLitePath:          envOr("SQLITE_PATH", "./slackspaces.db"),
		SlackAPIToken:       os.Getenv("SLACK_API_TOKEN"),
		SlackAPIEndpoint:    envOr("SLACK_API_ENDPOINT", "https://slack.com/api/"),
		SlackSCIMEndpoint:   envOr("SLACK_SCIM_ENDPOINT", "https://api.slack.com/scim/v1/"),
		TeamIconURL:         os.Getenv("TEAM_ICON_URL"),
		TeamDiscoverability: envOr("TEAM_DISCOVERABILITY", "unlisted"),
		PlatformIssuer:      os.Getenv("PLATFORM_ISSUER"),
		PlatformJWKSURL:     os.Getenv("PLATFORM_JWKS_URL"),
		ClientID:            os.Getenv("LTI_CLIENT_ID"),
		StaffRoles:          envList("STAFF_ROLES", DefaultStaffRoles),
		MemberRoles:         envList("MEMBER_ROLES", DefaultMemberRoles),
	}
	if cfg.SlackAPIToken == "" {
		return nil, errors.New("config: SLACK_API_TOKEN is required")
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envList parses a comma-separated env var, falling back to def when unset.
func envList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
