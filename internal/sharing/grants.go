package sharing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rameshkrishnan-s/FileHub/internal/database"
	"github.com/rameshkrishnan-s/FileHub/internal/logging"
	"github.com/rameshkrishnan-s/FileHub/internal/metrics"
	"github.com/rameshkrishnan-s/FileHub/internal/pathutil"
)

// Grant gives a user a permission level on a path prefix.
type Grant struct {
	ID        int64     `json:"id"`
	UserID    int       `json:"userId"`
	Path      string    `json:"fileOrFolder"`
	Level     Level     `json:"permission"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// GrantStore manages the user_files table.
type GrantStore struct {
	db  *database.DB
	now func() time.Time
}

// NewGrantStore creates a new grant store.
func NewGrantStore(db *database.DB) *GrantStore {
	return &GrantStore{db: db, now: time.Now}
}

// SetGrant assigns level on path to the user, replacing any existing level.
func (s *GrantStore) SetGrant(ctx context.Context, userID int, path string, level Level) error {
	if level <= LevelNone {
		return fmt.Errorf("set grant: invalid level %d", level)
	}
	start := time.Now()
	defer func() { metrics.RecordDBQuery("set_grant", time.Since(start)) }()

	path = pathutil.Clean(path)
	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO user_files (user_id, file_or_folder, permission, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (user_id, file_or_folder) DO UPDATE SET
			permission = EXCLUDED.permission,
			updated_at = EXCLUDED.updated_at`),
		userID, path, level.String(), now)
	if err != nil {
		return fmt.Errorf("set grant: %w", err)
	}

	logging.Debug("grant set", zap.Int("user_id", userID), zap.String("path", path), zap.Stringer("level", level))
	return nil
}

// Elevate raises the user's level on path to at least level, creating the
// grant if needed. Accepting a task elevates the assignee to write.
func (s *GrantStore) Elevate(ctx context.Context, userID int, path string, level Level) (Level, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("elevate_grant", time.Since(start)) }()

	path = pathutil.Clean(path)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return LevelNone, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, s.db.Rebind(
		`SELECT permission FROM user_files WHERE user_id = $1 AND file_or_folder = $2`),
		userID, path).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return LevelNone, fmt.Errorf("read grant: %w", err)
	}

	target := level
	if current != "" {
		if existing, perr := ParseLevel(current); perr == nil && existing > target {
			target = existing
		}
	}

	now := s.now().UTC()
	_, err = tx.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO user_files (user_id, file_or_folder, permission, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (user_id, file_or_folder) DO UPDATE SET
			permission = EXCLUDED.permission,
			updated_at = EXCLUDED.updated_at`),
		userID, path, target.String(), now)
	if err != nil {
		return LevelNone, fmt.Errorf("elevate grant: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return LevelNone, fmt.Errorf("commit: %w", err)
	}
	return target, nil
}

// RemoveGrant revokes the user's grant on path. It reports whether a grant existed.
func (s *GrantStore) RemoveGrant(ctx context.Context, userID int, path string) (bool, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("remove_grant", time.Since(start)) }()

	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`DELETE FROM user_files WHERE user_id = $1 AND file_or_folder = $2`),
		userID, pathutil.Clean(path))
	if err != nil {
		return false, fmt.Errorf("remove grant: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GrantsForUser returns every grant held by the user.
func (s *GrantStore) GrantsForUser(ctx context.Context, userID int) ([]Grant, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("grants_for_user", time.Since(start)) }()

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(
		`SELECT id, user_id, file_or_folder, permission, created_at, updated_at
		 FROM user_files WHERE user_id = $1
		 ORDER BY file_or_folder`), userID)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	return scanGrants(rows)
}

// GrantsForPath returns every grant on exactly path.
func (s *GrantStore) GrantsForPath(ctx context.Context, path string) ([]Grant, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("grants_for_path", time.Since(start)) }()

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(
		`SELECT id, user_id, file_or_folder, permission, created_at, updated_at
		 FROM user_files WHERE file_or_folder = $1
		 ORDER BY user_id`), pathutil.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	return scanGrants(rows)
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func scanGrants(rows *sql.Rows) ([]Grant, error) {
	defer rows.Close()

	var grants []Grant
	for rows.Next() {
		var g Grant
		var perm string
		if err := rows.Scan(&g.ID, &g.UserID, &g.Path, &perm, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		level, err := ParseLevel(perm)
		if err != nil {
			logging.Warn("skipping grant with unknown level", zap.Int64("id", g.ID), zap.String("permission", perm))
			continue
		}
		g.Level = level
		grants = append(grants, g)
	}
	return grants, rows.Err()
}
