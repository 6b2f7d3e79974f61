package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient wires a Client to a stub Slack serving the given handlers,
// keyed by admin method name or SCIM path.
func newTestClient(t *testing.T, handlers map[string]http.HandlerFunc) *Client {
	t.Helper()
	mux := http.NewServeMux()
	for path, fn := range handlers {
		mux.HandleFunc("/"+path, fn)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(Config{
		Token:        "xoxp-test",
		APIEndpoint:  srv.URL + "/",
		SCIMEndpoint: srv.URL + "/scim/",
	})
}

func respond(v any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
}

func TestCreateWorkspace(t *testing.T) {
	var gotDomain, gotToken string
	c := newTestClient(t, map[string]http.HandlerFunc{
		"admin.teams.create": func(w http.ResponseWriter, r *http.Request) {
			_ = r.ParseForm()
			gotDomain = r.FormValue("team_domain")
			gotToken = r.FormValue("token")
			respond(map[string]any{"ok": true, "team": "T042"})(w, r)
		},
	})
	teamID, ok := c.CreateWorkspace(context.Background(), "cs-101-f19-abc", "CS-101 (Fa19) 1", "unlisted", "desc")
	assert.True(t, ok)
	assert.Equal(t, "T042", teamID)
	assert.Equal(t, "cs-101-f19-abc", gotDomain)
	assert.Equal(t, "xoxp-test", gotToken)
}

func TestCreateWorkspaceNotOK(t *testing.T) {
	c := newTestClient(t, map[string]http.HandlerFunc{
		"admin.teams.create": respond(map[string]any{"ok": false, "error": "domain_taken"}),
	})
	_, ok := c.CreateWorkspace(context.Background(), "d", "n", "unlisted", "")
	assert.False(t, ok)
}

func TestCreateWorkspaceTransportFailure(t *testing.T) {
	c := newTestClient(t, map[string]http.HandlerFunc{
		"admin.teams.create": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
	})
	_, ok := c.CreateWorkspace(context.Background(), "d", "n", "unlisted", "")
	assert.False(t, ok)
}

func TestInviteUser(t *testing.T) {
	c := newTestClient(t, map[string]http.HandlerFunc{
		"admin.users.invite": func(w http.ResponseWriter, r *http.Request) {
			_ = r.ParseForm()
			assert.Equal(t, "ada@example.edu", r.FormValue("email"))
			assert.Equal(t, "C01", r.FormValue("channel_ids"))
			respond(map[string]any{"ok": true})(w, r)
		},
	})
	assert.True(t, c.InviteUser(context.Background(), []string{"C01"}, "ada@example.edu", "T1"))
}

func TestAssignUser(t *testing.T) {
	c := newTestClient(t, map[string]http.HandlerFunc{
		"admin.users.assign": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "C01,C02", r.URL.Query().Get("channel_ids"))
			respond(map[string]any{"ok": true})(w, r)
		},
	})
	err := c.AssignUser(context.Background(), "T1", "U1", []string{"C01", "C02"})
	assert.NoError(t, err)
}

func TestAssignUserFailure(t *testing.T) {
	c := newTestClient(t, map[string]http.HandlerFunc{
		"admin.users.assign": respond(map[string]any{"ok": false, "error": "user_not_found"}),
	})
	err := c.AssignUser(context.Background(), "T1", "U1", nil)
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "user_not_found", apiErr.Detail)
}

func TestListAdminsAndIsAdmin(t *testing.T) {
	c := newTestClient(t, map[string]http.HandlerFunc{
		"admin.teams.admins.list": respond(map[string]any{"ok": true, "admin_ids": []string{"U1", "U2"}}),
	})
	assert.Equal(t, []string{"U1", "U2"}, c.ListAdmins(context.Background(), "T1"))
	assert.True(t, c.IsAdmin(context.Background(), "U2", "T1"))
	assert.False(t, c.IsAdmin(context.Background(), "U9", "T1"))
}

func TestIsMember(t *testing.T) {
	c := newTestClient(t, map[string]http.HandlerFunc{
		"users.info": respond(map[string]any{"ok": true, "user": map[string]any{"teams": []string{"T1", "T2"}}}),
	})
	assert.True(t, c.IsMember(context.Background(), "U1", "T2"))
	assert.False(t, c.IsMember(context.Background(), "U1", "T9"))
}

func TestDefaultChannels(t *testing.T) {
	c := newTestClient(t, map[string]http.HandlerFunc{
		"admin.teams.settings.info": respond(map[string]any{
			"ok":   true,
			"team": map[string]any{"id": "T1", "default_channels": []string{"C01", "C02"}},
		}),
	})
	assert.Equal(t, []string{"C01", "C02"}, c.DefaultChannels(context.Background(), "T1"))
}

func TestDefaultChannelsFailure(t *testing.T) {
	c := newTestClient(t, map[string]http.HandlerFunc{
		"admin.teams.settings.info": respond(map[string]any{"ok": false, "error": "team_not_found"}),
	})
	assert.Nil(t, c.DefaultChannels(context.Background(), "T1"))
}

func TestSetIcon(t *testing.T) {
	c := newTestClient(t, map[string]http.HandlerFunc{
		"admin.teams.settings.setIcon": respond(map[string]any{"ok": true}),
	})
	assert.NoError(t, c.SetIcon(context.Background(), "T1", "https://img.example.edu/x.png"))
}

func TestSetIconFailure(t *testing.T) {
	c := newTestClient(t, map[string]http.HandlerFunc{
		"admin.teams.settings.setIcon": respond(map[string]any{"ok": false, "error": "invalid_image"}),
	})
	assert.Error(t, c.SetIcon(context.Background(), "T1", "https://img.example.edu/x.png"))
}

func TestFindUserByEmail(t *testing.T) {
	c := newTestClient(t, map[string]http.HandlerFunc{
		"scim/Users": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer xoxp-test", r.Header.Get("Authorization"))
			assert.Equal(t, "email eq ada@example.edu", r.URL.Query().Get("filter"))
			respond(map[string]any{
				"totalResults": 1,
				"Resources":    []map[string]any{{"id": "U77", "userName": "ada"}},
			})(w, r)
		},
	})
	u, err := c.FindUserByEmail(context.Background(), "ada@example.edu")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "U77", u.ID)
}

func TestFindUserByEmailNoMatch(t *testing.T) {
	c := newTestClient(t, map[string]http.HandlerFunc{
		"scim/Users": respond(map[string]any{"totalResults": 0, "Resources": []any{}}),
	})
	u, err := c.FindUserByEmail(context.Background(), "nobody@example.edu")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestFindUserByEmailMultipleMatches(t *testing.T) {
	c := newTestClient(t, map[string]http.HandlerFunc{
		"scim/Users": respond(map[string]any{
			"totalResults": 2,
			"Resources":    []map[string]any{{"id": "U1"}, {"id": "U2"}},
		}),
	})
	_, err := c.FindUserByEmail(context.Background(), "dupe@example.edu")
	require.ErrorIs(t, err, ErrMultipleMatches)
}

func TestFindUserByEmailServerErrorDegrades(t *testing.T) {
	c := newTestClient(t, map[string]http.HandlerFunc{
		"scim/Users": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
	})
	u, err := c.FindUserByEmail(context.Background(), "ada@example.edu")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestCreateUser(t *testing.T) {
	c := newTestClient(t, map[string]http.HandlerFunc{
		"scim/Users": func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			var body struct {
				UserName string `json:"userName"`
				Emails   []struct {
					Value   string `json:"value"`
					Primary bool   `json:"primary"`
				} `json:"emails"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "ada", body.UserName)
			require.Len(t, body.Emails, 1)
			assert.True(t, body.Emails[0].Primary)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "U88", "userName": "ada"})
		},
	})
	u, err := c.CreateUser(context.Background(), "ada", "ada@example.edu")
	require.NoError(t, err)
	assert.Equal(t, "U88", u.ID)
}

func conflictHandler(description string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"Errors": map[string]any{"description": description},
		})
	}
}

func TestCreateUserUsernameTaken(t *testing.T) {
	c := newTestClient(t, map[string]http.HandlerFunc{
		"scim/Users": conflictHandler("username_taken: that name is in use"),
	})
	_, err := c.CreateUser(context.Background(), "ada", "ada@example.edu")
	require.ErrorIs(t, err, ErrUsernameTaken)
}

func TestCreateUserEmailTaken(t *testing.T) {
	c := newTestClient(t, map[string]http.HandlerFunc{
		"scim/Users": conflictHandler("email_taken: already registered"),
	})
	_, err := c.CreateUser(context.Background(), "ada", "ada@example.edu")
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestCreateUserGenericFailure(t *testing.T) {
	c := newTestClient(t, map[string]http.HandlerFunc{
		"scim/Users": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
	})
	_, err := c.CreateUser(context.Background(), "ada", "ada@example.edu")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}
