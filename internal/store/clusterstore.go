package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"time"

	"github.com/causantic/causantic/internal/causanticerr"
	"github.com/causantic/causantic/internal/model"
)

// ClusterStore is the C6 persistent store for cluster metadata and
// membership. Clusters are computed externally (HDBSCAN over chunk
// embeddings is out of scope here) and published wholesale via ReplaceAll,
// which swaps the entire cluster/membership set atomically.
type ClusterStore interface {
	Get(ctx context.Context, id string) (*model.Cluster, error)
	Members(ctx context.Context, clusterID string) ([]model.ClusterMembership, error)
	ClustersForChunk(ctx context.Context, chunkID string) ([]model.ClusterMembership, error)
	Centroid(ctx context.Context, id string) ([]float32, error)
	All(ctx context.Context) ([]*model.Cluster, []model.ClusterMembership, error)

	ReplaceAll(ctx context.Context, clusters []*model.Cluster, memberships []model.ClusterMembership) error
}

// SQLiteClusterStore implements ClusterStore over the shared database.
type SQLiteClusterStore struct {
	db *DB
}

var _ ClusterStore = (*SQLiteClusterStore)(nil)

// NewSQLiteClusterStore wraps an already-open DB as a ClusterStore.
func NewSQLiteClusterStore(db *DB) *SQLiteClusterStore {
	return &SQLiteClusterStore{db: db}
}

const clusterSelectColumns = `
	SELECT id, name, description, centroid, exemplar_ids, membership_hash, created_at, refreshed_at
`

func (s *SQLiteClusterStore) Get(ctx context.Context, id string) (*model.Cluster, error) {
	row := s.db.Conn().QueryRowContext(ctx, clusterSelectColumns+` FROM clusters WHERE id = ?`, id)
	c, err := scanCluster(row)
	if err == sql.ErrNoRows {
		return nil, causanticerr.NotFound("cluster "+id+" not found", nil)
	}
	if err != nil {
		return nil, causanticerr.StoreUnavailable("failed to read cluster", err)
	}
	return c, nil
}

func (s *SQLiteClusterStore) Members(ctx context.Context, clusterID string) ([]model.ClusterMembership, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT chunk_id, cluster_id, distance FROM chunk_clusters
		WHERE cluster_id = ? ORDER BY distance
	`, clusterID)
	if err != nil {
		return nil, causanticerr.StoreUnavailable("failed to list cluster members", err)
	}
	defer rows.Close()
	return scanMemberships(rows)
}

func (s *SQLiteClusterStore) ClustersForChunk(ctx context.Context, chunkID string) ([]model.ClusterMembership, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT chunk_id, cluster_id, distance FROM chunk_clusters
		WHERE chunk_id = ? ORDER BY distance
	`, chunkID)
	if err != nil {
		return nil, causanticerr.StoreUnavailable("failed to list clusters for chunk", err)
	}
	defer rows.Close()
	return scanMemberships(rows)
}

func (s *SQLiteClusterStore) Centroid(ctx context.Context, id string) ([]float32, error) {
	var blob []byte
	row := s.db.Conn().QueryRowContext(ctx, `SELECT centroid FROM clusters WHERE id = ?`, id)
	if err := row.Scan(&blob); err == sql.ErrNoRows {
		return nil, causanticerr.NotFound("cluster "+id+" not found", nil)
	} else if err != nil {
		return nil, causanticerr.StoreUnavailable("failed to read cluster centroid", err)
	}
	return decodeFloat32Blob(blob), nil
}

// All returns every cluster and every membership row, for the Archive
// Codec's export path — the only caller that needs the full set rather
// than a lookup by id or chunk.
func (s *SQLiteClusterStore) All(ctx context.Context) ([]*model.Cluster, []model.ClusterMembership, error) {
	rows, err := s.db.Conn().QueryContext(ctx, clusterSelectColumns+` FROM clusters ORDER BY id`)
	if err != nil {
		return nil, nil, causanticerr.StoreUnavailable("failed to list clusters", err)
	}
	var clusters []*model.Cluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			rows.Close()
			return nil, nil, causanticerr.StoreUnavailable("failed to scan cluster", err)
		}
		clusters = append(clusters, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, nil, causanticerr.StoreUnavailable("failed to list clusters", err)
	}
	rows.Close()

	memberRows, err := s.db.Conn().QueryContext(ctx, `
		SELECT chunk_id, cluster_id, distance FROM chunk_clusters ORDER BY cluster_id, distance
	`)
	if err != nil {
		return nil, nil, causanticerr.StoreUnavailable("failed to list cluster memberships", err)
	}
	defer memberRows.Close()
	memberships, err := scanMemberships(memberRows)
	if err != nil {
		return nil, nil, err
	}
	return clusters, memberships, nil
}

// ReplaceAll atomically swaps the entire cluster set and membership table.
// Clustering is recomputed as a batch job external to query-time operations,
// so there is no incremental update path; a refresh always replaces
// everything at once.
func (s *SQLiteClusterStore) ReplaceAll(ctx context.Context, clusters []*model.Cluster, memberships []model.ClusterMembership) error {
	tx, err := s.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return causanticerr.StoreUnavailable("failed to begin cluster replace transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_clusters`); err != nil {
		return causanticerr.StoreUnavailable("failed to clear cluster memberships", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM clusters`); err != nil {
		return causanticerr.StoreUnavailable("failed to clear clusters", err)
	}

	for _, c := range clusters {
		exemplarJSON, err := json.Marshal(c.ExemplarIDs)
		if err != nil {
			return causanticerr.InvalidInput("failed to encode exemplar_ids", err)
		}
		refreshedAt := c.RefreshedAt
		if refreshedAt.IsZero() {
			refreshedAt = time.Now().UTC()
		}
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = refreshedAt
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO clusters(id, name, description, centroid, exemplar_ids, membership_hash, created_at, refreshed_at)
			VALUES (?,?,?,?,?,?,?,?)
		`, c.ID, nullableString(c.Name), nullableString(c.Description), encodeFloat32Blob(c.Centroid),
			string(exemplarJSON), nullableString(c.MembershipHash), formatTime(createdAt), formatTime(refreshedAt))
		if err != nil {
			return causanticerr.StoreUnavailable("failed to insert cluster", err)
		}
	}

	for _, m := range memberships {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chunk_clusters(chunk_id, cluster_id, distance) VALUES (?,?,?)
		`, m.ChunkID, m.ClusterID, m.Distance)
		if err != nil {
			return causanticerr.StoreUnavailable("failed to insert cluster membership", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return causanticerr.StoreUnavailable("failed to commit cluster replace", err)
	}
	return nil
}

func scanCluster(row rowScanner) (*model.Cluster, error) {
	var (
		c                             model.Cluster
		name, desc, hash              sql.NullString
		centroidBlob                  []byte
		exemplarJSON                  sql.NullString
		createdAt, refreshedAt        string
	)
	err := row.Scan(&c.ID, &name, &desc, &centroidBlob, &exemplarJSON, &hash, &createdAt, &refreshedAt)
	if err != nil {
		return nil, err
	}
	c.Name = name.String
	c.Description = desc.String
	c.MembershipHash = hash.String
	c.Centroid = decodeFloat32Blob(centroidBlob)
	c.CreatedAt, _ = parseTime(createdAt)
	c.RefreshedAt, _ = parseTime(refreshedAt)
	if exemplarJSON.Valid && exemplarJSON.String != "" {
		if err := json.Unmarshal([]byte(exemplarJSON.String), &c.ExemplarIDs); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

func scanMemberships(rows *sql.Rows) ([]model.ClusterMembership, error) {
	var out []model.ClusterMembership
	for rows.Next() {
		var m model.ClusterMembership
		if err := rows.Scan(&m.ChunkID, &m.ClusterID, &m.Distance); err != nil {
			return nil, causanticerr.StoreUnavailable("failed to scan cluster membership row", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// encodeFloat32Blob/decodeFloat32Blob store a float32 vector as a compact
// fixed-width blob rather than JSON.
func encodeFloat32Blob(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, len(vec)*4)
	for i, f := range vec {
		bits := math.Float32bits(f)
		buf[i*4] = byte(bits)
		buf[i*4+1] = byte(bits >> 8)
		buf[i*4+2] = byte(bits >> 16)
		buf[i*4+3] = byte(bits >> 24)
	}
	return buf
}

func decodeFloat32Blob(buf []byte) []float32 {
	if len(buf) == 0 {
		return nil
	}
	out := make([]float32, len(buf)/4)
	for i := range out {
		bits := uint32(buf[i*4]) | uint32(buf[i*4+1])<<8 | uint32(buf[i*4+2])<<16 | uint32(buf[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}
