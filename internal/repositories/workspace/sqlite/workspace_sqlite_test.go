package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	repoIface "github.com/openlms/slackspaces/pkg/repositories/workspace"
)

func newTestRepo(t *testing.T) *SQLiteRepo {
	t.Helper()
	repo, err := NewSQLiteRepo(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(repo.Disconnect)
	return repo
}

func sampleRecord() *repoIface.Record {
	return &repoIface.Record{
		TeamDomain:          "cs-101-f19-abc",
		TeamName:            "CS-101 (Fa19) course-1",
		TeamDescription:     "Intro to Computer Science",
		TeamDiscoverability: "unlisted",
		CourseSISID:         "course-1",
		CreatedBy:           "12345678",
	}
}

func TestCreateAndGetWorkspace(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rec := sampleRecord()
	id, err := repo.CreateWorkspace(ctx, rec)
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Equal(t, repoIface.StatusPending, rec.Status)

	got, err := repo.GetWorkspaceByCourse(ctx, "course-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.TeamDomain, got.TeamDomain)
	assert.Equal(t, rec.TeamName, got.TeamName)
	assert.Equal(t, repoIface.StatusPending, got.Status)
	assert.Empty(t, got.TeamID)

	missing, err := repo.GetWorkspaceByCourse(ctx, "course-none")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCreateWorkspaceDuplicateCourse(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.CreateWorkspace(ctx, sampleRecord())
	require.NoError(t, err)
	_, err = repo.CreateWorkspace(ctx, sampleRecord())
	require.ErrorIs(t, err, repoIface.ErrDuplicateCourse)
}

func TestSetTeamID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rec := sampleRecord()
	id, err := repo.CreateWorkspace(ctx, rec)
	require.NoError(t, err)
	require.NoError(t, repo.SetTeamID(ctx, id, "T999"))

	got, err := repo.GetWorkspaceByCourse(ctx, "course-1")
	require.NoError(t, err)
	assert.Equal(t, "T999", got.TeamID)
}

func TestUpdateStatusTransitions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rec := sampleRecord()
	id, err := repo.CreateWorkspace(ctx, rec)
	require.NoError(t, err)

	require.NoError(t, repo.UpdateStatus(ctx, id, repoIface.StatusCompleted))
	got, err := repo.GetWorkspaceByCourse(ctx, "course-1")
	require.NoError(t, err)
	assert.Equal(t, repoIface.StatusCompleted, got.Status)

	// Terminal states never move again
	assert.ErrorIs(t, repo.UpdateStatus(ctx, id, repoIface.StatusPending), repoIface.ErrInvalidTransition)
	assert.ErrorIs(t, repo.UpdateStatus(ctx, id, repoIface.StatusFailed), repoIface.ErrInvalidTransition)

	// Unknown status rejected outright
	assert.ErrorIs(t, repo.UpdateStatus(ctx, id, repoIface.Status("archived")), repoIface.ErrInvalidTransition)
}

func TestUpdateStatusPendingToFailed(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.CreateWorkspace(ctx, sampleRecord())
	require.NoError(t, err)
	require.NoError(t, repo.UpdateStatus(ctx, id, repoIface.StatusFailed))
	assert.ErrorIs(t, repo.UpdateStatus(ctx, id, repoIface.StatusCompleted), repoIface.ErrInvalidTransition)
}

func TestMemberUpsertAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.CreateWorkspace(ctx, sampleRecord())
	require.NoError(t, err)

	m := &repoIface.Member{WorkspaceID: id, UnivID: "111", SlackUserID: "U1"}
	require.NoError(t, repo.UpsertMember(ctx, m))
	assert.Equal(t, repoIface.MemberRegular, m.MembershipType)

	got, err := repo.GetMember(ctx, id, "111")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "U1", got.SlackUserID)
	assert.Equal(t, repoIface.MemberRegular, got.MembershipType)

	// Upsert escalates in place rather than duplicating
	m.MembershipType = repoIface.MemberAdmin
	require.NoError(t, repo.UpsertMember(ctx, m))
	got, err = repo.GetMember(ctx, id, "111")
	require.NoError(t, err)
	assert.Equal(t, repoIface.MemberAdmin, got.MembershipType)

	none, err := repo.GetMember(ctx, id, "222")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestTryUseNonce(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ok, err := repo.TryUseNonce(ctx, "n1", time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	// Replay within the validity window is refused
	ok, err = repo.TryUseNonce(ctx, "n1", time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	// An expired nonce can be reused
	ok, err = repo.TryUseNonce(ctx, "n2", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.TryUseNonce(ctx, "n2", time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTryUseNonceSweepsExpiredRows(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, n := range []string{"old1", "old2", "old3"} {
		ok, err := repo.TryUseNonce(ctx, n, time.Now().Add(-time.Minute))
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := repo.TryUseNonce(ctx, "live", time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	// The expired rows are gone; only the live nonce remains
	var count int
	require.NoError(t, repo.db.QueryRow(`SELECT COUNT(*) FROM launch_nonces`).Scan(&count))
	assert.Equal(t, 1, count)
}
