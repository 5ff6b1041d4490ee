package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/causantic/causantic/internal/causanticerr"
	"github.com/causantic/causantic/internal/model"
)

// EdgeStore is the C3 persistent store for the causal graph. Edges merge on
// (source, target, reference_type): a repeated observation bumps link_count
// on the existing row rather than inserting a duplicate.
type EdgeStore interface {
	Forward(ctx context.Context, chunkID string) ([]*model.Edge, error)
	Backward(ctx context.Context, chunkID string) ([]*model.Edge, error)
	Count(ctx context.Context) (int, error)
	Upsert(ctx context.Context, edge *model.Edge) error
	All(ctx context.Context) ([]*model.Edge, error)
}

// SQLiteEdgeStore implements EdgeStore over the shared database.
type SQLiteEdgeStore struct {
	db *DB
}

var _ EdgeStore = (*SQLiteEdgeStore)(nil)

// NewSQLiteEdgeStore wraps an already-open DB as an EdgeStore.
func NewSQLiteEdgeStore(db *DB) *SQLiteEdgeStore {
	return &SQLiteEdgeStore{db: db}
}

const edgeSelectColumns = `
	SELECT id, source_chunk_id, target_chunk_id, edge_type, reference_type,
	       initial_weight, created_at, vector_clock, link_count
`

// Upsert merges by (source, target, reference_type): an existing edge has its
// link_count incremented and its vector clock merged forward rather than
// being overwritten, so repeated observations of the same causal link
// reinforce it instead of resetting its history.
func (s *SQLiteEdgeStore) Upsert(ctx context.Context, e *model.Edge) error {
	if err := e.Validate(); err != nil {
		return causanticerr.InvalidInput(err.Error(), err)
	}

	tx, err := s.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return causanticerr.StoreUnavailable("failed to begin edge upsert transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existingClockJSON string
	var existingLinkCount int
	row := tx.QueryRowContext(ctx, `
		SELECT vector_clock, link_count FROM edges
		WHERE source_chunk_id = ? AND target_chunk_id = ? AND reference_type = ?
	`, e.SourceID, e.TargetID, string(e.ReferenceType))

	switch err := row.Scan(&existingClockJSON, &existingLinkCount); err {
	case nil:
		existingClock, uerr := unmarshalClock(existingClockJSON)
		if uerr != nil {
			return causanticerr.StoreUnavailable("failed to decode existing edge clock", uerr)
		}
		mergedClock := existingClock.Merge(e.VectorClock)
		clockJSON, merr := marshalClock(mergedClock)
		if merr != nil {
			return causanticerr.InvalidInput("failed to encode vector_clock", merr)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE edges SET link_count = link_count + 1, vector_clock = ?
			WHERE source_chunk_id = ? AND target_chunk_id = ? AND reference_type = ?
		`, clockJSON, e.SourceID, e.TargetID, string(e.ReferenceType))
		if err != nil {
			return causanticerr.StoreUnavailable("failed to bump edge link_count", err)
		}

	case sql.ErrNoRows:
		clockJSON, merr := marshalClock(e.VectorClock)
		if merr != nil {
			return causanticerr.InvalidInput("failed to encode vector_clock", merr)
		}
		id := e.ID
		if id == "" {
			id = e.SourceID + ":" + e.TargetID + ":" + string(e.ReferenceType)
		}
		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		linkCount := e.LinkCount
		if linkCount < 1 {
			linkCount = 1
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO edges(
				id, source_chunk_id, target_chunk_id, edge_type, reference_type,
				initial_weight, created_at, vector_clock, link_count
			) VALUES (?,?,?,?,?,?,?,?,?)
		`, id, e.SourceID, e.TargetID, string(e.EdgeType), string(e.ReferenceType),
			e.InitialWeight, formatTime(createdAt), clockJSON, linkCount)
		if err != nil {
			return causanticerr.StoreUnavailable("failed to insert edge", err)
		}

	default:
		return causanticerr.StoreUnavailable("failed to look up existing edge", err)
	}

	if err := tx.Commit(); err != nil {
		return causanticerr.StoreUnavailable("failed to commit edge upsert", err)
	}
	return nil
}

func (s *SQLiteEdgeStore) Forward(ctx context.Context, chunkID string) ([]*model.Edge, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		edgeSelectColumns+` FROM edges WHERE source_chunk_id = ? ORDER BY initial_weight DESC`, chunkID)
	if err != nil {
		return nil, causanticerr.StoreUnavailable("failed to query forward edges", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

func (s *SQLiteEdgeStore) Backward(ctx context.Context, chunkID string) ([]*model.Edge, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		edgeSelectColumns+` FROM edges WHERE target_chunk_id = ? ORDER BY initial_weight DESC`, chunkID)
	if err != nil {
		return nil, causanticerr.StoreUnavailable("failed to query backward edges", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

// All returns every edge in the graph, ordered by id, for the Archive
// Codec's export path.
func (s *SQLiteEdgeStore) All(ctx context.Context) ([]*model.Edge, error) {
	rows, err := s.db.Conn().QueryContext(ctx, edgeSelectColumns+` FROM edges ORDER BY id`)
	if err != nil {
		return nil, causanticerr.StoreUnavailable("failed to list edges", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

func (s *SQLiteEdgeStore) Count(ctx context.Context) (int, error) {
	var n int
	row := s.db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM edges`)
	if err := row.Scan(&n); err != nil {
		return 0, causanticerr.StoreUnavailable("failed to count edges", err)
	}
	return n, nil
}

func scanEdges(rows *sql.Rows) ([]*model.Edge, error) {
	var out []*model.Edge
	for rows.Next() {
		var (
			e                      model.Edge
			edgeType, refType      string
			createdAt, clockJSON   string
		)
		if err := rows.Scan(
			&e.ID, &e.SourceID, &e.TargetID, &edgeType, &refType,
			&e.InitialWeight, &createdAt, &clockJSON, &e.LinkCount,
		); err != nil {
			return nil, causanticerr.StoreUnavailable("failed to scan edge row", err)
		}
		e.EdgeType = model.EdgeType(edgeType)
		e.ReferenceType = model.ReferenceType(refType)
		e.CreatedAt, _ = parseTime(createdAt)
		clock, err := unmarshalClock(clockJSON)
		if err != nil {
			return nil, causanticerr.StoreUnavailable("failed to decode edge clock", err)
		}
		e.VectorClock = clock
		out = append(out, &e)
	}
	return out, rows.Err()
}
