// Package metadata provides the relational index over the storage tree.
//
// The index is derived and best-effort: the filesystem is the source of truth,
// rows may briefly go stale, and orphaned rows are tolerated until reconcile.
package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/rameshkrishnan-s/FileHub/internal/database"
	"github.com/rameshkrishnan-s/FileHub/internal/logging"
	"github.com/rameshkrishnan-s/FileHub/internal/metrics"
	"github.com/rameshkrishnan-s/FileHub/internal/pathutil"
)

// EntryType distinguishes files from folders.
type EntryType string

const (
	TypeFile   EntryType = "file"
	TypeFolder EntryType = "folder"
)

// ErrInvalidType is returned for an unrecognized type filter.
var ErrInvalidType = errors.New("unknown entry type")

// ParseType validates a client-supplied type filter. The empty string means any type.
func ParseType(s string) (EntryType, error) {
	switch EntryType(s) {
	case "", TypeFile, TypeFolder:
		return EntryType(s), nil
	}
	return "", fmt.Errorf("%w %q", ErrInvalidType, s)
}

// Entry is one indexed file or folder.
type Entry struct {
	ID        int64     `json:"id"`
	FileName  string    `json:"fileName"`
	FilePath  string    `json:"filePath"`
	Type      EntryType `json:"type"`
	MimeType  string    `json:"mimeType,omitempty"`
	FileID    *int64    `json:"fileId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Query filters a search. All set conditions must hold.
type Query struct {
	Text   string    // case-insensitive substring of name or path
	Type   EntryType // exact type, "" for any
	Scopes []string  // entry must lie under one of these; empty means the whole tree
	Limit  int
	Offset int
}

// Store is the metadata index.
type Store struct {
	db  *database.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for created_at/updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a metadata store on an open database.
func NewStore(db *database.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const entryColumns = `id, file_name, file_path, type, mime_type, file_id, created_at, updated_at`

// Upsert inserts the entry or refreshes the row at the same path.
// created_at of an existing row is kept.
func (s *Store) Upsert(ctx context.Context, e *Entry) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("upsert_metadata", time.Since(start)) }()

	e.FilePath = pathutil.Clean(e.FilePath)
	if e.FilePath == "" {
		return errors.New("upsert metadata: empty path")
	}
	if e.FileName == "" {
		e.FileName = lastSegment(e.FilePath)
	}
	if e.Type == "" {
		e.Type = TypeFile
	}

	var fileID sql.NullInt64
	if e.FileID != nil {
		fileID = sql.NullInt64{Int64: *e.FileID, Valid: true}
	}

	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO metadata (file_name, file_path, type, mime_type, file_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)
		 ON CONFLICT (file_path) DO UPDATE SET
			file_name = EXCLUDED.file_name,
			type = EXCLUDED.type,
			mime_type = EXCLUDED.mime_type,
			file_id = COALESCE(EXCLUDED.file_id, metadata.file_id),
			updated_at = EXCLUDED.updated_at`),
		e.FileName, e.FilePath, string(e.Type), e.MimeType, fileID, now)
	if err != nil {
		return fmt.Errorf("upsert metadata: %w", err)
	}

	logging.Debug("upserted metadata", zap.String("path", e.FilePath), zap.String("type", string(e.Type)))
	return nil
}

// FindByPath returns the entry at path, or nil if there is none.
func (s *Store) FindByPath(ctx context.Context, path string) (*Entry, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("find_metadata", time.Since(start)) }()

	row := s.db.QueryRowContext(ctx, s.db.Rebind(
		`SELECT `+entryColumns+` FROM metadata WHERE file_path = $1`), pathutil.Clean(path))

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find metadata: %w", err)
	}
	return e, nil
}

// RenamePath moves the entry at oldPath, and every entry beneath it, to
// newPath in one transaction. Stale rows already sitting at newPath are
// dropped first. It reports whether an entry existed at oldPath.
func (s *Store) RenamePath(ctx context.Context, oldPath, newPath string) (bool, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("rename_metadata", time.Since(start)) }()

	oldPath, newPath = pathutil.Clean(oldPath), pathutil.Clean(newPath)
	if oldPath == "" || newPath == "" {
		return false, errors.New("rename metadata: empty path")
	}
	if oldPath == newPath {
		return false, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.db.Rebind(
		`DELETE FROM metadata WHERE file_path = $1 OR file_path LIKE $2 ESCAPE '\'`),
		newPath, database.EscapeLike(newPath)+"/%"); err != nil {
		return false, fmt.Errorf("clear rename target: %w", err)
	}

	now := s.now().UTC()
	res, err := tx.ExecContext(ctx, s.db.Rebind(
		`UPDATE metadata SET file_path = $1, file_name = $2, updated_at = $3 WHERE file_path = $4`),
		newPath, lastSegment(newPath), now, oldPath)
	if err != nil {
		return false, fmt.Errorf("rename metadata: %w", err)
	}
	n, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx, s.db.Rebind(
		`UPDATE metadata SET file_path = CAST($1 AS TEXT) || substr(file_path, $2), updated_at = $3
		 WHERE file_path LIKE $4 ESCAPE '\'`),
		newPath, utf8.RuneCountInString(oldPath)+1, now, database.EscapeLike(oldPath)+"/%"); err != nil {
		return false, fmt.Errorf("rename metadata children: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return n > 0, nil
}

// DeleteByPath removes the entry at path and every entry beneath it.
// Missing rows are not an error.
func (s *Store) DeleteByPath(ctx context.Context, path string) (int64, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("delete_metadata", time.Since(start)) }()

	path = pathutil.Clean(path)
	if path == "" {
		return 0, errors.New("delete metadata: empty path")
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`DELETE FROM metadata WHERE file_path = $1 OR file_path LIKE $2 ESCAPE '\'`),
		path, database.EscapeLike(path)+"/%")
	if err != nil {
		return 0, fmt.Errorf("delete metadata: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Search returns one page of entries matching q, newest first, along with
// the total number of matches.
func (s *Store) Search(ctx context.Context, q Query) ([]Entry, int64, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("search_metadata", time.Since(start)) }()

	where, args := buildFilter(q)

	var total int64
	if err := s.db.QueryRowContext(ctx, s.db.Rebind(
		`SELECT COUNT(*) FROM metadata`+where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count metadata: %w", err)
	}
	if total == 0 {
		return []Entry{}, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := max(q.Offset, 0)

	n := len(args)
	pageQuery := `SELECT ` + entryColumns + ` FROM metadata` + where +
		` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(pageQuery), append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("search metadata: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan metadata: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, total, rows.Err()
}

// Paths returns the type of every indexed path under scope ("" for all).
func (s *Store) Paths(ctx context.Context, scope string) (map[string]EntryType, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("list_metadata_paths", time.Since(start)) }()

	where, args := buildFilter(Query{Scopes: []string{pathutil.Clean(scope)}})
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`SELECT file_path, type FROM metadata`+where), args...)
	if err != nil {
		return nil, fmt.Errorf("list metadata paths: %w", err)
	}
	defer rows.Close()

	paths := make(map[string]EntryType)
	for rows.Next() {
		var p, typ string
		if err := rows.Scan(&p, &typ); err != nil {
			return nil, fmt.Errorf("scan metadata path: %w", err)
		}
		paths[p] = EntryType(typ)
	}
	return paths, rows.Err()
}

// ─── Helpers ────────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var e Entry
	var typ string
	var fileID sql.NullInt64
	if err := row.Scan(&e.ID, &e.FileName, &e.FilePath, &typ, &e.MimeType, &fileID, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Type = EntryType(typ)
	if fileID.Valid {
		id := fileID.Int64
		e.FileID = &id
	}
	return &e, nil
}

// buildFilter renders q's conditions as a WHERE clause with $N placeholders.
func buildFilter(q Query) (string, []any) {
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	scoped := len(q.Scopes) > 0
	for _, sc := range q.Scopes {
		if sc == "" {
			scoped = false
		}
	}
	if scoped {
		var ors []string
		for _, sc := range q.Scopes {
			ors = append(ors, fmt.Sprintf(`(file_path = %s OR file_path LIKE %s ESCAPE '\')`,
				arg(sc), arg(database.EscapeLike(sc)+"/%")))
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}

	if q.Text != "" {
		p := arg("%" + database.EscapeLike(strings.ToLower(q.Text)) + "%")
		conds = append(conds, fmt.Sprintf(`(LOWER(file_name) LIKE %s ESCAPE '\' OR LOWER(file_path) LIKE %s ESCAPE '\')`, p, p))
	}

	if q.Type != "" {
		conds = append(conds, "type = "+arg(string(q.Type)))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func lastSegment(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}
