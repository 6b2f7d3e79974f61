// Package provision holds the workspace provisioning core: name derivation,
// user resolution, role policy, and the provisioning and join workflows
// driving the Slack client and the local record store.
package provision

import (
	"context"
	"errors"

	"github.com/openlms/slackspaces/pkg/common/config"
	"github.com/openlms/slackspaces/pkg/common/logger"
	"github.com/openlms/slackspaces/pkg/repositories/workspace"
)

var (
	// ErrNotPermitted means the launch roles grant no access to the tool.
	ErrNotPermitted = errors.New("provision: no appropriate role for this tool")
	// ErrNotStaff means a non-staff user attempted to provision.
	ErrNotStaff = errors.New("provision: only course staff may provision a workspace")
	// ErrNoWorkspace means no completed workspace exists for the course.
	ErrNoWorkspace = errors.New("provision: no workspace for this course")
	// ErrProvisionFailed means the remote creation or setup failed; the
	// record has been marked failed.
	ErrProvisionFailed = errors.New("provision: workspace creation failed")
)

// Launch is the claim set consumed from a validated LTI launch.
type Launch struct {
	CourseSISID string
	CourseCode  string
	CourseTitle string
	TermName    string
	UnivID      string
	Email       string
	Roles       []string
}

// Workspaces is the Slack surface the workflows call.
type Workspaces interface {
	Directory
	CreateWorkspace(ctx context.Context, teamDomain, teamName, discoverability, description string) (teamID string, ok bool)
	AssignUser(ctx context.Context, teamID, userID string, channelIDs []string) error
	SetAdmin(ctx context.Context, teamID, userID string) bool
	IsAdmin(ctx context.Context, userID, teamID string) bool
	IsMember(ctx context.Context, userID, teamID string) bool
	DefaultChannels(ctx context.Context, teamID string) []string
	SetIcon(ctx context.Context, teamID, imageURL string) error
}

// Service runs the provisioning and join workflows. It is the only writer of
// workspace records.
type Service struct {
	repo            workspace.Repository
	slack           Workspaces
	roles           RolePolicy
	iconURL         string
	discoverability string
}

func NewService(repo workspace.Repository, client Workspaces, cfg *config.Config) *Service {
	return &Service{
		repo:            repo,
		slack:           client,
		roles:           RolePolicy{Staff: cfg.StaffRoles, Members: cfg.MemberRoles},
		iconURL:         cfg.TeamIconURL,
		discoverability: cfg.TeamDiscoverability,
	}
}

// Roles exposes the role policy for callers gating on launch roles.
func (s *Service) Roles() RolePolicy { return s.roles }

// State describes what a launching user should see for their course.
type State struct {
	Workspace         *workspace.Record `json:"workspace,omitempty"`
	UserIsStaff       bool              `json:"user_is_staff"`
	WorkspaceMember   bool              `json:"workspace_member"`
	ExistingSlackUser bool              `json:"existing_slack_user"`
}

// LaunchState resolves the current workspace state for a launch, reconciling
// the admin role for staff who are members but were never promoted (for
// example when invited directly in Slack, bypassing this tool).
func (s *Service) LaunchState(ctx context.Context, launch Launch) (*State, error) {
	if !s.roles.IsInClass(launch.Roles) {
		logger.Warn("tool launched without an appropriate role: %v", launch.Roles)
		return nil, ErrNotPermitted
	}
	st := &State{UserIsStaff: s.roles.IsStaff(launch.Roles)}

	scimUser, err := s.slack.FindUserByEmail(ctx, launch.Email)
	if err != nil {
		return nil, err
	}
	st.ExistingSlackUser = scimUser != nil

	rec, err := s.repo.GetWorkspaceByCourse(ctx, launch.CourseSISID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		logger.Debug("workspace does not currently exist for course instance %s", launch.CourseSISID)
		return st, nil
	}
	st.Workspace = rec

	if rec.Status == workspace.StatusCompleted && scimUser != nil {
		st.WorkspaceMember = s.slack.IsMember(ctx, scimUser.ID, rec.TeamID)
		if st.WorkspaceMember && st.UserIsStaff && !s.slack.IsAdmin(ctx, scimUser.ID, rec.TeamID) {
			logger.Info("user %s is staff but not an admin of %s - setting admin role now", scimUser.ID, rec.TeamID)
			s.slack.SetAdmin(ctx, rec.TeamID, scimUser.ID)
		}
	}
	return st, nil
}

// Provision creates the Slack workspace for a course and sets up the
// requesting staff member as its admin. The record moves pending->completed
// on success and pending->failed when any required step fails; the team id
// is persisted as soon as the remote creation succeeds.
func (s *Service) Provision(ctx context.Context, launch Launch) (*workspace.Record, error) {
	if !s.roles.IsStaff(launch.Roles) {
		return nil, ErrNotStaff
	}

	userID, err := ResolveOrCreateUser(ctx, s.slack, launch.Email)
	if err != nil {
		logger.Error("resolving Slack user for %s (course %s): %v", launch.Email, launch.CourseSISID, err)
		return nil, err
	}

	rec := &workspace.Record{
		TeamDomain:          TeamDomain(launch.CourseCode, launch.TermName),
		TeamName:            TeamName(launch.CourseCode, launch.TermName, launch.CourseSISID),
		TeamDescription:     launch.CourseTitle,
		TeamDiscoverability: s.discoverability,
		CourseSISID:         launch.CourseSISID,
		CreatedBy:           launch.UnivID,
		Status:              workspace.StatusPending,
	}
	if _, err := s.repo.CreateWorkspace(ctx, rec); err != nil {
		return nil, err
	}

	teamID, ok := s.slack.CreateWorkspace(ctx, rec.TeamDomain, rec.TeamName, rec.TeamDiscoverability, rec.TeamDescription)
	if !ok {
		logger.Error("error while trying to create a Slack workspace for course instance %s", launch.CourseSISID)
		return s.fail(ctx, rec)
	}
	logger.Info("successful workspace creation for course %s - new team ID is %s", launch.CourseSISID, teamID)
	if err := s.repo.SetTeamID(ctx, rec.ID, teamID); err != nil {
		logger.Error("persisting team id %s for course %s: %v", teamID, launch.CourseSISID, err)
		return s.fail(ctx, rec)
	}
	rec.TeamID = teamID

	// Cosmetic; a failed icon upload never blocks provisioning.
	if s.iconURL != "" {
		if err := s.slack.SetIcon(ctx, teamID, s.iconURL); err != nil {
			logger.Warn("setting icon for team %s: %v", teamID, err)
		}
	}

	channels := s.slack.DefaultChannels(ctx, teamID)
	if channels == nil {
		logger.Error("fetching default channels for team %s (course %s) failed", teamID, launch.CourseSISID)
		return s.fail(ctx, rec)
	}
	if err := s.slack.AssignUser(ctx, teamID, userID, channels); err != nil {
		logger.Error("assigning user %s to team %s (course %s): %v", userID, teamID, launch.CourseSISID, err)
		return s.fail(ctx, rec)
	}
	if !s.slack.SetAdmin(ctx, teamID, userID) {
		logger.Error("promoting user %s to admin of team %s (course %s) failed", userID, teamID, launch.CourseSISID)
		return s.fail(ctx, rec)
	}

	if err := s.repo.UpdateStatus(ctx, rec.ID, workspace.StatusCompleted); err != nil {
		return nil, err
	}
	rec.Status = workspace.StatusCompleted

	if err := s.repo.UpsertMember(ctx, &workspace.Member{
		WorkspaceID:    rec.ID,
		UnivID:         launch.UnivID,
		SlackUserID:    userID,
		MembershipType: workspace.MemberAdmin,
	}); err != nil {
		logger.Warn("caching membership for %s in workspace %d: %v", launch.UnivID, rec.ID, err)
	}
	return rec, nil
}

func (s *Service) fail(ctx context.Context, rec *workspace.Record) (*workspace.Record, error) {
	if err := s.repo.UpdateStatus(ctx, rec.ID, workspace.StatusFailed); err != nil {
		logger.Error("marking workspace %d failed: %v", rec.ID, err)
	}
	rec.Status = workspace.StatusFailed
	return rec, ErrProvisionFailed
}

// Join adds a launching user to an existing completed workspace, assigning
// membership when missing and escalating staff to admin when Slack does not
// reflect the local role expectation. Nothing is persisted when assignment
// fails.
func (s *Service) Join(ctx context.Context, launch Launch) (*workspace.Record, error) {
	if !s.roles.IsInClass(launch.Roles) {
		logger.Warn("tool launched without an appropriate role: %v", launch.Roles)
		return nil, ErrNotPermitted
	}
	rec, err := s.repo.GetWorkspaceByCourse(ctx, launch.CourseSISID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Status != workspace.StatusCompleted {
		return nil, ErrNoWorkspace
	}

	userID, err := ResolveOrCreateUser(ctx, s.slack, launch.Email)
	if err != nil {
		logger.Error("resolving Slack user for %s (course %s): %v", launch.Email, launch.CourseSISID, err)
		return nil, err
	}
	isStaff := s.roles.IsStaff(launch.Roles)

	if s.slack.IsMember(ctx, userID, rec.TeamID) {
		// Reconcile: staff invited directly in Slack are not yet admins.
		if isStaff && !s.slack.IsAdmin(ctx, userID, rec.TeamID) {
			logger.Info("user %s is staff but not an admin of %s - setting admin role now", userID, rec.TeamID)
			s.slack.SetAdmin(ctx, rec.TeamID, userID)
		}
		return rec, nil
	}

	logger.Info("current user (%s) is not a member of the workspace (%s), assigning user now", launch.UnivID, rec.TeamID)
	channels := s.slack.DefaultChannels(ctx, rec.TeamID)
	if err := s.slack.AssignUser(ctx, rec.TeamID, userID, channels); err != nil {
		return rec, err
	}
	mt := workspace.MemberRegular
	if isStaff {
		logger.Info("user is a staff member for course instance %s, making them an admin for workspace %s now", launch.CourseSISID, rec.TeamID)
		s.slack.SetAdmin(ctx, rec.TeamID, userID)
		mt = workspace.MemberAdmin
	}
	if err := s.repo.UpsertMember(ctx, &workspace.Member{
		WorkspaceID:    rec.ID,
		UnivID:         launch.UnivID,
		SlackUserID:    userID,
		MembershipType: mt,
	}); err != nil {
		logger.Warn("caching membership for %s in workspace %d: %v", launch.UnivID, rec.ID, err)
	}
	return rec, nil
}
