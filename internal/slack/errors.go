package slack

import (
	"errors"
	"fmt"
)

// Conflict and integrity errors the workflows branch on. Wrapped with detail
// at the call site; match with errors.Is.
var (
	// ErrUsernameTaken signals a SCIM 409 with a username_taken description.
	// Drives the one-shot retry-with-suffix in user resolution.
	ErrUsernameTaken = errors.New("slack: username taken")
	// ErrEmailTaken signals a SCIM 409 with an email_taken description. Never
	// retried; the email should have matched an existing account.
	ErrEmailTaken = errors.New("slack: email taken")
	// ErrMultipleMatches means more than one Slack identity matched a unique
	// email. Remote data inconsistency; propagates uncaught.
	ErrMultipleMatches = errors.New("slack: multiple users match email")
)

// APIError is a generic failure from the Slack API: a non-2xx status, an
// ok=false payload, or a malformed body.
type APIError struct {
	Op         string
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("slack: %s: status %d: %s", e.Op, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("slack: %s: %s", e.Op, e.Detail)
}
