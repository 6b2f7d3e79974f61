package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	repoIface "github.com/openlms/slackspaces/pkg/repositories/workspace"
)

type SQLiteRepo struct {
	db *sql.DB
}

func NewSQLiteRepo(path string) (*SQLiteRepo, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteRepo{db: db}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS slack_workspace (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            team_domain TEXT NOT NULL,
            team_name TEXT NOT NULL,
            team_description TEXT,
            team_discoverability TEXT,
            team_id TEXT,
            course_sis_id TEXT NOT NULL UNIQUE,
            created_by TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
            last_modified TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
        );
        CREATE TABLE IF NOT EXISTS slack_workspace_member (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            workspace_id INTEGER NOT NULL REFERENCES slack_workspace(id) ON DELETE CASCADE,
            univ_id TEXT NOT NULL,
            slack_user_id TEXT,
            membership_type TEXT NOT NULL DEFAULT 'regular',
            created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
            last_modified TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
            UNIQUE(workspace_id, univ_id)
        );
        CREATE TABLE IF NOT EXISTS launch_nonces (
            nonce TEXT PRIMARY KEY,
            expires_at TIMESTAMP NOT NULL,
            created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
        );
    `)
	return err
}

func (r *SQLiteRepo) Health() error {
	return r.db.Ping()
}

// Disconnect closes the DB.
func (r *SQLiteRepo) Disconnect() {
	_ = r.db.Close()
}

// CreateWorkspace inserts a new record in pending status and returns its ID.
func (r *SQLiteRepo) CreateWorkspace(ctx context.Context, rec *repoIface.Record) (int64, error) {
	now := time.Now().UTC()
	status := rec.Status
	if status == "" {
		status = repoIface.StatusPending
	}
	res, err := r.db.ExecContext(ctx, `
        INSERT INTO slack_workspace (team_domain, team_name, team_description, team_discoverability, team_id, course_sis_id, created_by, status, created_at, last_modified)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, rec.TeamDomain, rec.TeamName, rec.TeamDescription, rec.TeamDiscoverability, rec.TeamID, rec.CourseSISID, rec.CreatedBy, string(status), now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return 0, repoIface.ErrDuplicateCourse
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	rec.ID = id
	rec.Status = status
	rec.CreatedAt = now
	rec.LastModified = now
	return id, nil
}

// GetWorkspaceByCourse returns the record for a course instance, or nil.
func (r *SQLiteRepo) GetWorkspaceByCourse(ctx context.Context, courseSISID string) (*repoIface.Record, error) {
	row := r.db.QueryRowContext(ctx, `
        SELECT id, team_domain, team_name, team_description, team_discoverability, team_id, course_sis_id, created_by, status, created_at, last_modified
        FROM slack_workspace WHERE course_sis_id = ?`, courseSISID)
	var rec repoIface.Record
	var desc, disc, teamID sql.NullString
	var status string
	var created, modified time.Time
	if err := row.Scan(&rec.ID, &rec.TeamDomain, &rec.TeamName, &desc, &disc, &teamID, &rec.CourseSISID, &rec.CreatedBy, &status, &created, &modified); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if desc.Valid {
		rec.TeamDescription = desc.String
	}
	if disc.Valid {
		rec.TeamDiscoverability = disc.String
	}
	if teamID.Valid {
		rec.TeamID = teamID.String
	}
	rec.Status = repoIface.Status(status)
	rec.CreatedAt = created
	rec.LastModified = modified
	return &rec, nil
}

// SetTeamID persists the Slack-assigned team id on an existing record.
func (r *SQLiteRepo) SetTeamID(ctx context.Context, id int64, teamID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE slack_workspace SET team_id = ?, last_modified = ? WHERE id = ?`,
		teamID, time.Now().UTC(), id)
	return err
}

// UpdateStatus moves the record to the given status inside a transaction,
// rejecting transitions not in the allowed table.
func (r *SQLiteRepo) UpdateStatus(ctx context.Context, id int64, next repoIface.Status) error {
	if !next.Valid() {
		return repoIface.ErrInvalidTransition
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM slack_workspace WHERE id = ?`, id).Scan(&current); err != nil {
		return err
	}
	if !repoIface.Status(current).CanTransition(next) {
		return repoIface.ErrInvalidTransition
	}
	if _, err := tx.ExecContext(ctx, `UPDATE slack_workspace SET status = ?, last_modified = ? WHERE id = ?`,
		string(next), time.Now().UTC(), id); err != nil {
		return err
	}
	return tx.Commit()
}

// UpsertMember creates or refreshes the cached membership row.
func (r *SQLiteRepo) UpsertMember(ctx context.Context, m *repoIface.Member) error {
	mt := m.MembershipType
	if mt == "" {
		mt = repoIface.MemberRegular
	}
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO slack_workspace_member (workspace_id, univ_id, slack_user_id, membership_type, created_at, last_modified)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(workspace_id, univ_id)
        DO UPDATE SET slack_user_id = excluded.slack_user_id, membership_type = excluded.membership_type, last_modified = excluded.last_modified
    `, m.WorkspaceID, m.UnivID, m.SlackUserID, string(mt), now, now)
	if err == nil {
		m.MembershipType = mt
		m.LastModified = now
	}
	return err
}

// GetMember returns the cached membership for (workspace, univ_id), or nil.
func (r *SQLiteRepo) GetMember(ctx context.Context, workspaceID int64, univID string) (*repoIface.Member, error) {
	row := r.db.QueryRowContext(ctx, `
        SELECT id, workspace_id, univ_id, slack_user_id, membership_type, created_at, last_modified
        FROM slack_workspace_member WHERE workspace_id = ? AND univ_id = ?`, workspaceID, univID)
	var m repoIface.Member
	var slackID sql.NullString
	var mt string
	var created, modified time.Time
	if err := row.Scan(&m.ID, &m.WorkspaceID, &m.UnivID, &slackID, &mt, &created, &modified); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if slackID.Valid {
		m.SlackUserID = slackID.String
	}
	m.MembershipType = repoIface.MembershipType(mt)
	m.CreatedAt = created
	m.LastModified = modified
	return &m, nil
}

// TryUseNonce records a launch nonce if it does not already exist unexpired.
// Returns true if newly inserted, false if replay. Expired rows are swept on
// every call so the table stays bounded by the nonce TTL.
func (r *SQLiteRepo) TryUseNonce(ctx context.Context, nonce string, exp time.Time) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM launch_nonces WHERE expires_at <= ?`, time.Now().UTC()); err != nil {
		return false, err
	}

	var existingExp time.Time
	err = tx.QueryRowContext(ctx, `SELECT expires_at FROM launch_nonces WHERE nonce = ?`, nonce).Scan(&existingExp)
	if err != nil && err != sql.ErrNoRows {
		return false, err
	}
	if err == nil {
		if time.Now().Before(existingExp) {
			return false, nil
		}
		// Expired but missed by the sweep -> replace
		if _, err := tx.ExecContext(ctx, `DELETE FROM launch_nonces WHERE nonce = ?`, nonce); err != nil {
			return false, err
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO launch_nonces (nonce, expires_at) VALUES (?, ?)`, nonce, exp.UTC()); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}
