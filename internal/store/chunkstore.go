package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/causantic/causantic/internal/causanticerr"
	"github.com/causantic/causantic/internal/model"
)

// ChunkStore is the C2 persistent store of chunks. Upsert on an id that
// already exists overwrites the stored chunk; the store does not reject
// updates to existing chunks.
type ChunkStore interface {
	Get(ctx context.Context, id string) (*model.Chunk, error)
	ListBySession(ctx context.Context, sessionID string) ([]*model.Chunk, error)
	ListByProject(ctx context.Context, slug string, from, to time.Time) ([]*model.Chunk, error)
	DistinctProjects(ctx context.Context) ([]model.ProjectSummary, error)
	SessionSummaries(ctx context.Context, project string, from, to time.Time) ([]model.SessionSummary, error)
	InTimeRange(ctx context.Context, project string, from, to time.Time) ([]*model.Chunk, error)
	All(ctx context.Context, project string) ([]*model.Chunk, error)

	Upsert(ctx context.Context, chunk *model.Chunk) error
	DeleteBySession(ctx context.Context, sessionID string) error
}

// SQLiteChunkStore implements ChunkStore over the shared database.
type SQLiteChunkStore struct {
	db *DB
}

var _ ChunkStore = (*SQLiteChunkStore)(nil)

// NewSQLiteChunkStore wraps an already-open DB as a ChunkStore.
func NewSQLiteChunkStore(db *DB) *SQLiteChunkStore {
	return &SQLiteChunkStore{db: db}
}

func (s *SQLiteChunkStore) Upsert(ctx context.Context, c *model.Chunk) error {
	if err := c.Validate(); err != nil {
		return causanticerr.InvalidInput(err.Error(), err)
	}

	turnIndices, err := json.Marshal(c.TurnIndices)
	if err != nil {
		return causanticerr.InvalidInput("failed to encode turn_indices", err)
	}
	clockJSON, err := marshalClock(c.VectorClock)
	if err != nil {
		return causanticerr.InvalidInput("failed to encode vector_clock", err)
	}

	sessionSlug := Slugify(c.SessionID)
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.Conn().ExecContext(ctx, `
		INSERT INTO chunks(
			id, session_id, session_slug, project_slug, project_path,
			turn_indices, start_time, end_time, content, approx_tokens,
			agent_id, vector_clock, spawn_depth, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			session_id=excluded.session_id,
			session_slug=excluded.session_slug,
			project_slug=excluded.project_slug,
			project_path=excluded.project_path,
			turn_indices=excluded.turn_indices,
			start_time=excluded.start_time,
			end_time=excluded.end_time,
			content=excluded.content,
			approx_tokens=excluded.approx_tokens,
			agent_id=excluded.agent_id,
			vector_clock=excluded.vector_clock,
			spawn_depth=excluded.spawn_depth
	`,
		c.ID, c.SessionID, sessionSlug, c.ProjectSlug, nullableString(c.ProjectPath),
		string(turnIndices), formatTime(c.StartTime), formatTime(c.EndTime), c.Content, c.ApproxTokens,
		nullableString(c.AgentID), clockJSON, c.SpawnDepth, formatTime(createdAt),
	)
	if err != nil {
		return causanticerr.StoreUnavailable("failed to upsert chunk", err)
	}
	return nil
}

func (s *SQLiteChunkStore) Get(ctx context.Context, id string) (*model.Chunk, error) {
	row := s.db.Conn().QueryRowContext(ctx, chunkSelectColumns+` FROM chunks WHERE id = ?`, id)
	c, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, causanticerr.NotFound("chunk "+id+" not found", nil)
	}
	if err != nil {
		return nil, causanticerr.StoreUnavailable("failed to read chunk", err)
	}
	return c, nil
}

func (s *SQLiteChunkStore) ListBySession(ctx context.Context, sessionID string) ([]*model.Chunk, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		chunkSelectColumns+` FROM chunks WHERE session_id = ? ORDER BY start_time`, sessionID)
	if err != nil {
		return nil, causanticerr.StoreUnavailable("failed to list chunks by session", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *SQLiteChunkStore) ListByProject(ctx context.Context, slug string, from, to time.Time) ([]*model.Chunk, error) {
	return s.InTimeRange(ctx, slug, from, to)
}

func (s *SQLiteChunkStore) InTimeRange(ctx context.Context, project string, from, to time.Time) ([]*model.Chunk, error) {
	query := chunkSelectColumns + ` FROM chunks WHERE project_slug = ?`
	args := []any{project}
	if !from.IsZero() {
		query += ` AND end_time >= ?`
		args = append(args, formatTime(from))
	}
	if !to.IsZero() {
		query += ` AND start_time <= ?`
		args = append(args, formatTime(to))
	}
	query += ` ORDER BY start_time`

	rows, err := s.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, causanticerr.StoreUnavailable("failed to query chunks in time range", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// All returns every chunk, optionally restricted to a single project, in
// chronological order. An empty project returns chunks across all
// projects — used by the Archive Codec's unfiltered export path.
func (s *SQLiteChunkStore) All(ctx context.Context, project string) ([]*model.Chunk, error) {
	query := chunkSelectColumns + ` FROM chunks`
	var args []any
	if project != "" {
		query += ` WHERE project_slug = ?`
		args = append(args, project)
	}
	query += ` ORDER BY start_time`

	rows, err := s.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, causanticerr.StoreUnavailable("failed to list all chunks", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *SQLiteChunkStore) DistinctProjects(ctx context.Context) ([]model.ProjectSummary, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT project_slug, COUNT(*), MIN(start_time), MAX(end_time)
		FROM chunks GROUP BY project_slug ORDER BY project_slug
	`)
	if err != nil {
		return nil, causanticerr.StoreUnavailable("failed to list projects", err)
	}
	defer rows.Close()

	var out []model.ProjectSummary
	for rows.Next() {
		var p model.ProjectSummary
		var first, last string
		if err := rows.Scan(&p.Slug, &p.ChunkCount, &first, &last); err != nil {
			return nil, causanticerr.StoreUnavailable("failed to scan project summary", err)
		}
		p.FirstSeen, _ = parseTime(first)
		p.LastSeen, _ = parseTime(last)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteChunkStore) SessionSummaries(ctx context.Context, project string, from, to time.Time) ([]model.SessionSummary, error) {
	query := `
		SELECT session_id, project_slug, COUNT(*), MIN(start_time), MAX(end_time)
		FROM chunks WHERE project_slug = ?`
	args := []any{project}
	if !from.IsZero() {
		query += ` AND end_time >= ?`
		args = append(args, formatTime(from))
	}
	if !to.IsZero() {
		query += ` AND start_time <= ?`
		args = append(args, formatTime(to))
	}
	query += ` GROUP BY session_id ORDER BY MAX(end_time) DESC`

	rows, err := s.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, causanticerr.StoreUnavailable("failed to summarize sessions", err)
	}
	defer rows.Close()

	var out []model.SessionSummary
	for rows.Next() {
		var sm model.SessionSummary
		var first, last string
		if err := rows.Scan(&sm.SessionID, &sm.ProjectSlug, &sm.ChunkCount, &first, &last); err != nil {
			return nil, causanticerr.StoreUnavailable("failed to scan session summary", err)
		}
		sm.FirstSeen, _ = parseTime(first)
		sm.LastSeen, _ = parseTime(last)
		out = append(out, sm)
	}
	return out, rows.Err()
}

func (s *SQLiteChunkStore) DeleteBySession(ctx context.Context, sessionID string) error {
	_, err := s.db.Conn().ExecContext(ctx, `DELETE FROM chunks WHERE session_id = ?`, sessionID)
	if err != nil {
		return causanticerr.StoreUnavailable("failed to delete chunks by session", err)
	}
	return nil
}

const chunkSelectColumns = `
	SELECT id, session_id, project_slug, project_path, turn_indices, start_time, end_time,
	       content, approx_tokens, agent_id, vector_clock, spawn_depth, created_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (*model.Chunk, error) {
	var (
		c                     model.Chunk
		projectPath, agentID  sql.NullString
		turnIndicesJSON       string
		startTime, endTime    string
		createdAt             string
		clockJSON             string
	)

	err := row.Scan(
		&c.ID, &c.SessionID, &c.ProjectSlug, &projectPath, &turnIndicesJSON,
		&startTime, &endTime, &c.Content, &c.ApproxTokens, &agentID,
		&clockJSON, &c.SpawnDepth, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	c.ProjectPath = projectPath.String
	c.AgentID = agentID.String
	c.StartTime, _ = parseTime(startTime)
	c.EndTime, _ = parseTime(endTime)
	c.CreatedAt, _ = parseTime(createdAt)

	if err := json.Unmarshal([]byte(turnIndicesJSON), &c.TurnIndices); err != nil {
		return nil, err
	}
	clock, err := unmarshalClock(clockJSON)
	if err != nil {
		return nil, err
	}
	c.VectorClock = clock

	return &c, nil
}

func scanChunks(rows *sql.Rows) ([]*model.Chunk, error) {
	var out []*model.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, causanticerr.StoreUnavailable("failed to scan chunk row", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func marshalClock(c model.VectorClock) (string, error) {
	// Canonical form: sorted keys, so identical clocks always serialize
	// to identical bytes.
	ordered := make(map[string]int64, len(c))
	for _, k := range c.Keys() {
		ordered[k] = c[k]
	}
	b, err := json.Marshal(ordered)
	return string(b), err
}

func unmarshalClock(s string) (model.VectorClock, error) {
	if s == "" {
		return model.VectorClock{}, nil
	}
	var m map[string]int64
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return model.VectorClock(m), nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// Slugify derives a filesystem/URL-safe session slug from a session id.
func Slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune('-')
		default:
			b.WriteRune('-')
		}
	}
	out := b.String()
	if out == "" {
		out = "session-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return out
}
