package store

// schemaVersion is bumped whenever the DDL below changes shape.
const schemaVersion = 1

// schemaDDL creates every table the engine's stores share in one SQLite
// database file: chunks/edges/clusters own their rows outright,
// chunk_clusters is the many-to-many membership table, and
// ingestion_checkpoints lets an external ingester resume. The vectors and
// vector_clocks tables are created but no store in this package reads or
// writes them: both Vector Store backends keep embeddings in memory and
// persist them to their own files. The Keyword
// Store's SQLite backend (sqlite_bm25.go) keeps its own FTS5 index file
// rather than a table here, so it can be replaced or rebuilt independently
// of chunk metadata.
const schemaDDL = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	session_slug TEXT NOT NULL,
	project_slug TEXT NOT NULL,
	project_path TEXT,
	turn_indices TEXT NOT NULL,
	start_time TEXT NOT NULL,
	end_time TEXT NOT NULL,
	content TEXT NOT NULL,
	approx_tokens INTEGER NOT NULL,
	agent_id TEXT,
	vector_clock TEXT NOT NULL,
	spawn_depth INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_session ON chunks(session_id);
CREATE INDEX IF NOT EXISTS idx_chunks_project_time ON chunks(project_slug, start_time);

CREATE TABLE IF NOT EXISTS edges (
	id TEXT PRIMARY KEY,
	source_chunk_id TEXT NOT NULL REFERENCES chunks(id) ON DELETE CASCADE,
	target_chunk_id TEXT NOT NULL REFERENCES chunks(id) ON DELETE CASCADE,
	edge_type TEXT NOT NULL,
	reference_type TEXT NOT NULL,
	initial_weight REAL NOT NULL,
	created_at TEXT NOT NULL,
	vector_clock TEXT NOT NULL,
	link_count INTEGER NOT NULL DEFAULT 1,
	UNIQUE(source_chunk_id, target_chunk_id, reference_type)
);

CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_chunk_id);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_chunk_id);

CREATE TABLE IF NOT EXISTS clusters (
	id TEXT PRIMARY KEY,
	name TEXT,
	description TEXT,
	centroid BLOB,
	exemplar_ids TEXT,
	membership_hash TEXT,
	created_at TEXT NOT NULL,
	refreshed_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chunk_clusters (
	chunk_id TEXT NOT NULL REFERENCES chunks(id) ON DELETE CASCADE,
	cluster_id TEXT NOT NULL REFERENCES clusters(id) ON DELETE CASCADE,
	distance REAL NOT NULL,
	PRIMARY KEY (chunk_id, cluster_id)
);

CREATE INDEX IF NOT EXISTS idx_chunk_clusters_cluster ON chunk_clusters(cluster_id);

CREATE TABLE IF NOT EXISTS vectors (
	id TEXT PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
	embedding BLOB NOT NULL,
	orphaned_at TEXT,
	last_accessed TEXT
);

CREATE TABLE IF NOT EXISTS vector_clocks (
	id TEXT PRIMARY KEY,
	project_slug TEXT NOT NULL,
	clock_data TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_vector_clocks_project ON vector_clocks(project_slug);

CREATE TABLE IF NOT EXISTS ingestion_checkpoints (
	session_id TEXT PRIMARY KEY,
	project_slug TEXT NOT NULL,
	last_turn_index INTEGER NOT NULL,
	last_chunk_id TEXT,
	vector_clock TEXT NOT NULL,
	file_mtime TEXT,
	updated_at TEXT NOT NULL
);
`
