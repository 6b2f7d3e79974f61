package workspace

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of a workspace record. Transitions only move
// forward: pending -> completed or pending -> failed. Terminal states never
// change again.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ErrInvalidTransition is returned by UpdateStatus for transitions outside
// the allowed table, e.g. completed -> pending.
var ErrInvalidTransition = errors.New("workspace: invalid status transition")

// ErrDuplicateCourse is returned by CreateWorkspace when a record already
// exists for the course instance.
var ErrDuplicateCourse = errors.New("workspace: record already exists for course")

var transitions = map[Status][]Status{
	StatusPending:   {StatusCompleted, StatusFailed},
	StatusCompleted: {},
	StatusFailed:    {},
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether moving from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// MembershipType classifies a locally cached workspace membership.
type MembershipType string

const (
	MemberRegular MembershipType = "regular"
	MemberOwner   MembershipType = "owner"
	MemberAdmin   MembershipType = "admin"
)

// Record is one provisioned (or in-flight) Slack workspace, one per course
// instance.
type Record struct {
	ID                  int64     `json:"id"`
	TeamDomain          string    `json:"team_domain"`
	TeamName            string    `json:"team_name"`
	TeamDescription     string    `json:"team_description,omitempty"`
	TeamDiscoverability string    `json:"team_discoverability,omitempty"`
	TeamID              string    `json:"team_id,omitempty"`
	CourseSISID         string    `json:"course_sis_id"`
	CreatedBy           string    `json:"created_by"`
	Status              Status    `json:"status"`
	CreatedAt           time.Time `json:"created_at"`
	LastModified        time.Time `json:"last_modified"`
}

// Member is a locally cached (workspace, user) membership. Slack remains the
// source of truth for membership and roles; this is display-only state.
type Member struct {
	ID             int64          `json:"id"`
	WorkspaceID    int64          `json:"workspace_id"`
	UnivID         string         `json:"univ_id"`
	SlackUserID    string         `json:"slack_user_id,omitempty"`
	MembershipType MembershipType `json:"membership_type"`
	CreatedAt      time.Time      `json:"created_at"`
	LastModified   time.Time      `json:"last_modified"`
}

// Repository defines storage operations for workspace provisioning state.
type Repository interface {
	// Health is a simple check to verify repository works.
	Health() error
	// Disconnect gracefully closes resources. Should be safe to call on shutdown.
	Disconnect()
	// CreateWorkspace inserts a new record in pending status and returns its ID.
	// Returns ErrDuplicateCourse if the course instance already has a record.
	CreateWorkspace(ctx context.Context, rec *Record) (int64, error)
	// GetWorkspaceByCourse returns the record for a course instance, or nil.
	GetWorkspaceByCourse(ctx context.Context, courseSISID string) (*Record, error)
	// SetTeamID persists the Slack-assigned team id on an existing record.
	SetTeamID(ctx context.Context, id int64, teamID string) error
	// UpdateStatus moves the record to the given status, rejecting transitions
	// not in the allowed table with ErrInvalidTransition.
	UpdateStatus(ctx context.Context, id int64, next Status) error

	// Membership cache
	UpsertMember(ctx context.Context, m *Member) error
	GetMember(ctx context.Context, workspaceID int64, univID string) (*Member, error)

	// TryUseNonce records a launch nonce if unseen and unexpired. Returns true
	// when newly recorded, false on replay.
	TryUseNonce(ctx context.Context, nonce string, exp time.Time) (bool, error)
}
