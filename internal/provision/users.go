package provision

import (
	"context"
	"errors"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/openlms/slackspaces/internal/slack"
	"github.com/openlms/slackspaces/pkg/common/logger"
)

// Directory is the identity-provisioning surface of the Slack client that
// user resolution needs.
type Directory interface {
	FindUserByEmail(ctx context.Context, email string) (*slack.User, error)
	CreateUser(ctx context.Context, userName, email string) (*slack.User, error)
}

// ResolveOrCreateUser returns the Slack user id for an email, creating the
// account via SCIM when none exists. The candidate username is the local
// part of the email, lowercased, at most 21 characters. A username collision
// is retried exactly once with an 18-char prefix plus a random 3-digit
// suffix; a second collision propagates.
func ResolveOrCreateUser(ctx context.Context, dir Directory, email string) (string, error) {
	u, err := dir.FindUserByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if u != nil {
		return u.ID, nil
	}

	userName := strings.ToLower(strings.SplitN(email, "@", 2)[0])
	if len(userName) > 21 {
		userName = userName[:21]
	}
	u, err = dir.CreateUser(ctx, userName, email)
	if errors.Is(err, slack.ErrUsernameTaken) {
		logger.Warn("Slack username %s already exists; trying again with a random suffix", userName)
		if len(userName) > 18 {
			userName = userName[:18]
		}
		userName += strconv.Itoa(100 + rand.IntN(900))
		u, err = dir.CreateUser(ctx, userName, email)
	}
	if err != nil {
		return "", err
	}
	return u.ID, nil
}
