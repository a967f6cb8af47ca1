package mirror

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps the SQLite connection holding the mirror table.
// The database runs in embedded mode with WAL for concurrent reads.
type Store struct {
	conn *sql.DB
	path string
}

// Open opens the mirror database at path, creating the file and its
// parent directory as needed. WAL journaling keeps reads concurrent
// with the batch writers. Call InitSchema before the first write and
// Close when done.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("mirror directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open mirror database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("mirror database unreachable: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	return &Store{conn: conn, path: path}, nil
}

// Close checkpoints the WAL and releases the connection. Safe to call
// more than once.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "treemirror: wal checkpoint on close: %v\n", err)
	}

	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		return fmt.Errorf("close mirror database: %w", err)
	}
	return nil
}

// InitSchema creates the nodes table and its indexes if they don't exist.
// Idempotent - safe to call multiple times.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		remote_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		modified_time TEXT,
		web_link TEXT,
		thumbnail_link TEXT,
		parent_id TEXT,
		root_id TEXT NOT NULL,
		path TEXT NOT NULL,
		path_segments TEXT NOT NULL,  -- JSON array
		path_depth INTEGER NOT NULL,
		is_root INTEGER NOT NULL DEFAULT 0,
		resolution TEXT NOT NULL DEFAULT 'parent_chain',
		main_reference_id TEXT,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_root ON nodes(root_id);
	CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent_id);
	CREATE INDEX IF NOT EXISTS idx_nodes_path ON nodes(path);
	CREATE INDEX IF NOT EXISTS idx_nodes_name ON nodes(name);
	CREATE INDEX IF NOT EXISTS idx_nodes_mime ON nodes(mime_type);
	CREATE INDEX IF NOT EXISTS idx_nodes_deleted ON nodes(is_deleted);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

const nodeColumns = `id, remote_id, name, mime_type, size, modified_time,
	web_link, thumbnail_link, parent_id, root_id, path, path_segments,
	path_depth, is_root, resolution, main_reference_id, is_deleted, created_at, updated_at`

// UpsertNode inserts or updates a single node keyed by remote_id.
//
// On conflict the mirror-local id is NOT overwritten: dependent tables
// hold foreign keys to it, so the existing row keeps its identity and
// only the descriptive and hierarchy fields are replaced.
func (s *Store) UpsertNode(ctx context.Context, n *Node) error {
	if err := n.Validate(); err != nil {
		return fmt.Errorf("invalid node: %w", err)
	}

	segmentsJSON, err := json.Marshal(n.PathSegments)
	if err != nil {
		return fmt.Errorf("failed to marshal path segments: %w", err)
	}

	query := `
	INSERT INTO nodes (` + nodeColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(remote_id) DO UPDATE SET
		name = excluded.name,
		mime_type = excluded.mime_type,
		size = excluded.size,
		modified_time = excluded.modified_time,
		web_link = excluded.web_link,
		thumbnail_link = excluded.thumbnail_link,
		parent_id = excluded.parent_id,
		root_id = excluded.root_id,
		path = excluded.path,
		path_segments = excluded.path_segments,
		path_depth = excluded.path_depth,
		is_root = excluded.is_root,
		resolution = excluded.resolution,
		is_deleted = excluded.is_deleted,
		updated_at = excluded.updated_at
	`

	_, err = s.conn.ExecContext(ctx, query,
		n.ID,
		n.RemoteID,
		n.Name,
		n.MimeType,
		n.Size,
		timeToNullString(n.ModifiedTime),
		n.WebLink,
		n.ThumbnailLink,
		nullableString(n.ParentID),
		n.RootID,
		n.Path,
		string(segmentsJSON),
		n.PathDepth,
		boolToInt(n.IsRoot),
		resolutionOrDefault(n.Resolution),
		nullableString(n.MainReferenceID),
		boolToInt(n.IsDeleted),
		n.CreatedAt.UTC().Format(time.RFC3339),
		n.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert node %s: %w", n.RemoteID, err)
	}

	return nil
}

// UpsertBatch writes a group of nodes in a single transaction.
// All-or-nothing: if any row fails the transaction is rolled back and
// the caller may fall back to per-node writes to isolate the bad record.
func (s *Store) UpsertBatch(ctx context.Context, nodes []*Node) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, n := range nodes {
		if err := upsertNodeTx(ctx, tx, n); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	return nil
}

func upsertNodeTx(ctx context.Context, tx *sql.Tx, n *Node) error {
	if err := n.Validate(); err != nil {
		return fmt.Errorf("invalid node %s: %w", n.RemoteID, err)
	}

	segmentsJSON, err := json.Marshal(n.PathSegments)
	if err != nil {
		return fmt.Errorf("failed to marshal path segments: %w", err)
	}

	query := `
	INSERT INTO nodes (` + nodeColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(remote_id) DO UPDATE SET
		name = excluded.name,
		mime_type = excluded.mime_type,
		size = excluded.size,
		modified_time = excluded.modified_time,
		web_link = excluded.web_link,
		thumbnail_link = excluded.thumbnail_link,
		parent_id = excluded.parent_id,
		root_id = excluded.root_id,
		path = excluded.path,
		path_segments = excluded.path_segments,
		path_depth = excluded.path_depth,
		is_root = excluded.is_root,
		resolution = excluded.resolution,
		is_deleted = excluded.is_deleted,
		updated_at = excluded.updated_at
	`

	_, err = tx.ExecContext(ctx, query,
		n.ID,
		n.RemoteID,
		n.Name,
		n.MimeType,
		n.Size,
		timeToNullString(n.ModifiedTime),
		n.WebLink,
		n.ThumbnailLink,
		nullableString(n.ParentID),
		n.RootID,
		n.Path,
		string(segmentsJSON),
		n.PathDepth,
		boolToInt(n.IsRoot),
		resolutionOrDefault(n.Resolution),
		nullableString(n.MainReferenceID),
		boolToInt(n.IsDeleted),
		n.CreatedAt.UTC().Format(time.RFC3339),
		n.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert node %s: %w", n.RemoteID, err)
	}

	return nil
}

// GetByRemoteID retrieves a single node by its provider identifier.
// Returns sql.ErrNoRows if the node is not found.
func (s *Store) GetByRemoteID(ctx context.Context, remoteID string) (*Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE remote_id = ?`
	return scanNode(s.conn.QueryRowContext(ctx, query, remoteID))
}

// GetByID retrieves a single node by its mirror-local identifier.
// Returns sql.ErrNoRows if the node is not found.
func (s *Store) GetByID(ctx context.Context, id string) (*Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE id = ?`
	return scanNode(s.conn.QueryRowContext(ctx, query, id))
}

// Snapshot loads the current mirror state for diffing. Soft-deleted
// rows are excluded. If rootID is non-empty the snapshot is scoped to
// that hierarchy.
func (s *Store) Snapshot(ctx context.Context, rootID string) (*Snapshot, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE is_deleted = 0`
	var args []interface{}
	if rootID != "" {
		query += ` AND root_id = ?`
		args = append(args, rootID)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	defer rows.Close()

	nodes, err := scanNodes(rows)
	if err != nil {
		return nil, err
	}

	return NewSnapshot(nodes), nil
}

// DescendantsByPathPrefix returns all live nodes whose path equals the
// prefix or falls under it. Used by main-reference propagation.
func (s *Store) DescendantsByPathPrefix(ctx context.Context, prefix string) ([]*Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes
	WHERE is_deleted = 0 AND (path = ? OR path LIKE ? ESCAPE '\')`

	rows, err := s.conn.QueryContext(ctx, query, prefix, escapeLike(prefix)+"/%")
	if err != nil {
		return nil, fmt.Errorf("failed to query descendants of %s: %w", prefix, err)
	}
	defer rows.Close()

	return scanNodes(rows)
}

// SetMainReference assigns mediaID as the main reference on the given
// mirror-local ids. Returns the number of rows changed.
func (s *Store) SetMainReference(ctx context.Context, ids []string, mediaID string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	query := `UPDATE nodes SET main_reference_id = ?, updated_at = ? WHERE id IN (` + placeholders + `)`

	args := make([]interface{}, 0, len(ids)+2)
	args = append(args, mediaID, time.Now().UTC().Format(time.RFC3339))
	for _, id := range ids {
		args = append(args, id)
	}

	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to set main reference: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return int(affected), nil
}

// FindFolderByName resolves a live folder by exact name. When several
// folders share the name, the shallowest match wins (the original
// mapping scripts prefer top-level folders).
func (s *Store) FindFolderByName(ctx context.Context, name string) (*Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes
	WHERE is_deleted = 0 AND mime_type = ? AND name = ?
	ORDER BY path_depth ASC LIMIT 1`

	return scanNode(s.conn.QueryRowContext(ctx, query, FolderMimeType, name))
}

// FindFileByName resolves a live file by exact name, optionally
// constrained to a mime type (e.g. "video/mp4").
func (s *Store) FindFileByName(ctx context.Context, name, mimeType string) (*Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes
	WHERE is_deleted = 0 AND name = ?`
	args := []interface{}{name}

	if mimeType != "" {
		query += ` AND mime_type = ?`
		args = append(args, mimeType)
	} else {
		query += ` AND mime_type != ?`
		args = append(args, FolderMimeType)
	}

	query += ` ORDER BY path ASC LIMIT 1`

	return scanNode(s.conn.QueryRowContext(ctx, query, args...))
}

// RootStats summarizes one hierarchy for the status report.
type RootStats struct {
	RootID      string
	Nodes       int
	Folders     int
	Files       int
	WithMainRef int
	Fallbacks   int
	SoftDeleted int
}

// StatsByRoot aggregates per-root counts across the whole mirror.
func (s *Store) StatsByRoot(ctx context.Context) ([]RootStats, error) {
	query := `
	SELECT root_id,
	       COUNT(*) FILTER (WHERE is_deleted = 0),
	       COUNT(*) FILTER (WHERE is_deleted = 0 AND mime_type = ?),
	       COUNT(*) FILTER (WHERE is_deleted = 0 AND mime_type != ?),
	       COUNT(*) FILTER (WHERE is_deleted = 0 AND main_reference_id IS NOT NULL),
	       COUNT(*) FILTER (WHERE is_deleted = 0 AND resolution = ?),
	       COUNT(*) FILTER (WHERE is_deleted = 1)
	FROM nodes
	GROUP BY root_id
	ORDER BY root_id
	`

	rows, err := s.conn.QueryContext(ctx, query, FolderMimeType, FolderMimeType, ResolutionNameFallback)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	var stats []RootStats
	for rows.Next() {
		var st RootStats
		if err := rows.Scan(&st.RootID, &st.Nodes, &st.Folders, &st.Files, &st.WithMainRef, &st.Fallbacks, &st.SoftDeleted); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stats: %w", err)
	}

	return stats, nil
}

// NodeCount returns the number of live rows in the mirror.
func (s *Store) NodeCount(ctx context.Context) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM nodes WHERE is_deleted = 0").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count nodes: %w", err)
	}
	return count, nil
}

// scanNode scans a single node from a query row.
func scanNode(row *sql.Row) (*Node, error) {
	var n Node
	var modifiedTime, parentID, mainRef sql.NullString
	var segmentsJSON, createdAt, updatedAt string
	var isRoot, isDeleted int

	err := row.Scan(
		&n.ID,
		&n.RemoteID,
		&n.Name,
		&n.MimeType,
		&n.Size,
		&modifiedTime,
		&n.WebLink,
		&n.ThumbnailLink,
		&parentID,
		&n.RootID,
		&n.Path,
		&segmentsJSON,
		&n.PathDepth,
		&isRoot,
		&n.Resolution,
		&mainRef,
		&isDeleted,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := finishNode(&n, modifiedTime, parentID, mainRef, segmentsJSON, createdAt, updatedAt, isRoot, isDeleted); err != nil {
		return nil, err
	}

	return &n, nil
}

// scanNodes scans multiple nodes from query results.
func scanNodes(rows *sql.Rows) ([]*Node, error) {
	var nodes []*Node

	for rows.Next() {
		var n Node
		var modifiedTime, parentID, mainRef sql.NullString
		var segmentsJSON, createdAt, updatedAt string
		var isRoot, isDeleted int

		err := rows.Scan(
			&n.ID,
			&n.RemoteID,
			&n.Name,
			&n.MimeType,
			&n.Size,
			&modifiedTime,
			&n.WebLink,
			&n.ThumbnailLink,
			&parentID,
			&n.RootID,
			&n.Path,
			&segmentsJSON,
			&n.PathDepth,
			&isRoot,
			&n.Resolution,
			&mainRef,
			&isDeleted,
			&createdAt,
			&updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}

		if err := finishNode(&n, modifiedTime, parentID, mainRef, segmentsJSON, createdAt, updatedAt, isRoot, isDeleted); err != nil {
			return nil, err
		}

		nodes = append(nodes, &n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}

	return nodes, nil
}

func finishNode(n *Node, modifiedTime, parentID, mainRef sql.NullString, segmentsJSON, createdAt, updatedAt string, isRoot, isDeleted int) error {
	n.ModifiedTime = nullStringToTime(modifiedTime)
	n.ParentID = nullStringToPtr(parentID)
	n.MainReferenceID = nullStringToPtr(mainRef)
	n.IsRoot = isRoot != 0
	n.IsDeleted = isDeleted != 0

	if segmentsJSON != "" && segmentsJSON != "null" {
		if err := json.Unmarshal([]byte(segmentsJSON), &n.PathSegments); err != nil {
			return fmt.Errorf("failed to unmarshal path segments for %s: %w", n.RemoteID, err)
		}
	} else {
		n.PathSegments = []string{}
	}

	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		n.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		n.UpdatedAt = t
	}

	return nil
}

// escapeLike escapes the LIKE metacharacters in a path so a prefix
// containing % or _ cannot over-match.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// resolutionOrDefault maps an unset resolution to the primary strategy
// so rows written outside a reconciliation pass stay queryable.
func resolutionOrDefault(r string) string {
	if r == "" {
		return ResolutionParentChain
	}
	return r
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullStringToPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
