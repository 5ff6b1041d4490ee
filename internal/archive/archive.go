// Package archive implements the Archive Codec (C13): a self-describing,
// optionally compressed and encrypted bundle of chunks, edges, clusters and
// vectors, used to move a project's memory between machines or to take an
// offline backup.
package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"sort"
	"time"

	"github.com/causantic/causantic/internal/causanticerr"
	"github.com/causantic/causantic/internal/model"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const (
	formatName = "causantic-archive"

	// CurrentVersion is written by Export. Import accepts this and the
	// prior minor version.
	CurrentVersion = "1.1"
)

var supportedVersions = map[string]bool{"1.0": true, "1.1": true}

// magicEncrypted prefixes a password-protected bundle. gzip's own magic
// (0x1f 0x8b) marks a compressed-but-unencrypted bundle; anything else is
// read as plain JSON.
var magicEncrypted = []byte{'C', 'S', 'T', 0}

const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 16
)

// Bundle is the on-disk/on-wire archive format.
type Bundle struct {
	Format      string                    `json:"format"`
	Version     string                    `json:"version"`
	Created     time.Time                 `json:"created"`
	Metadata    Metadata                  `json:"metadata"`
	Chunks      []*model.Chunk            `json:"chunks"`
	Edges       []*model.Edge             `json:"edges"`
	Clusters    []*model.Cluster          `json:"clusters"`
	Memberships []model.ClusterMembership `json:"memberships"`
	Vectors     []Vector                  `json:"vectors"`
}

// Vector is one chunk id's embedding, carried alongside the bundle so a
// restored project doesn't need to re-embed every chunk.
type Vector struct {
	ChunkID   string    `json:"chunk_id"`
	Embedding []float32 `json:"embedding"`
}

// Metadata records counts and the embedding dimension at export time, used
// by Import to sanity-check the bundle before writing anything.
type Metadata struct {
	ChunkCount       int      `json:"chunk_count"`
	EdgeCount        int      `json:"edge_count"`
	ClusterCount     int      `json:"cluster_count"`
	VectorCount      int      `json:"vector_count"`
	EmbeddingDim     int      `json:"embedding_dim"`
	ExportedProjects []string `json:"exported_projects,omitempty"`
}

// ChunkSource reads every chunk a bundle should contain.
type ChunkSource interface {
	All(ctx context.Context, project string) ([]*model.Chunk, error)
}

// EdgeSource reads every edge in the graph.
type EdgeSource interface {
	All(ctx context.Context) ([]*model.Edge, error)
}

// ClusterSource reads every cluster and membership row.
type ClusterSource interface {
	All(ctx context.Context) ([]*model.Cluster, []model.ClusterMembership, error)
}

// VectorSource enumerates stored embeddings by chunk id.
type VectorSource interface {
	AllIDs() []string
	Vector(id string) ([]float32, bool)
}

// Sources bundles the read-side store interfaces Export pulls from. Any of
// them may be nil, in which case that section of the bundle is left empty.
type Sources struct {
	Chunks   ChunkSource
	Edges    EdgeSource
	Clusters ClusterSource
	Vectors  VectorSource
}

var filePathPattern = regexp.MustCompile(`(?:[a-zA-Z]:)?(?:/|\\)[\w./\\-]+`)
var codeBlockPattern = regexp.MustCompile("(?s)```.*?```")

// ExportOptions controls what Export includes and how it's packaged.
type ExportOptions struct {
	// Project restricts the export to one project; empty means every
	// project the source stores know about.
	Project string

	// RedactFilePaths replaces path-shaped substrings in chunk content
	// with "[redacted-path]" before serialization.
	RedactFilePaths bool
	// RedactCodeBlocks replaces fenced code blocks with "[redacted-code]".
	RedactCodeBlocks bool
	// OmitVectors drops the vectors section entirely, useful when the
	// archive is meant for human review rather than restoration.
	OmitVectors bool

	// DisableCompression skips the gzip stage, producing plain JSON. Only
	// meaningful when Password is empty, since encryption always wraps
	// compressed bytes.
	DisableCompression bool

	// Password, if set, encrypts the (possibly compressed) bundle with a
	// scrypt-derived ChaCha20-Poly1305 key.
	Password string
}

// Export serializes the requested sources into a Bundle, then compresses
// and optionally encrypts it per opts.
func Export(ctx context.Context, src Sources, opts ExportOptions) ([]byte, error) {
	bundle := Bundle{
		Format:  formatName,
		Version: CurrentVersion,
		Created: time.Now().UTC(),
	}

	if src.Chunks != nil {
		chunks, err := src.Chunks.All(ctx, opts.Project)
		if err != nil {
			return nil, err
		}
		if opts.RedactFilePaths || opts.RedactCodeBlocks {
			chunks = redactChunks(chunks, opts)
		}
		bundle.Chunks = chunks
	}

	if src.Edges != nil {
		edges, err := src.Edges.All(ctx)
		if err != nil {
			return nil, err
		}
		bundle.Edges = filterEdgesToChunks(edges, bundle.Chunks, opts.Project)
	}

	if src.Clusters != nil {
		clusters, memberships, err := src.Clusters.All(ctx)
		if err != nil {
			return nil, err
		}
		bundle.Clusters = clusters
		bundle.Memberships = memberships
	}

	dim := 0
	if src.Vectors != nil && !opts.OmitVectors {
		ids := relevantIDs(bundle.Chunks, src.Vectors, opts.Project)
		for _, id := range ids {
			vec, ok := src.Vectors.Vector(id)
			if !ok {
				continue
			}
			if dim == 0 {
				dim = len(vec)
			}
			bundle.Vectors = append(bundle.Vectors, Vector{ChunkID: id, Embedding: vec})
		}
	}

	bundle.Metadata = Metadata{
		ChunkCount:   len(bundle.Chunks),
		EdgeCount:    len(bundle.Edges),
		ClusterCount: len(bundle.Clusters),
		VectorCount:  len(bundle.Vectors),
		EmbeddingDim: dim,
	}
	if opts.Project != "" {
		bundle.Metadata.ExportedProjects = []string{opts.Project}
	}

	raw, err := json.Marshal(bundle)
	if err != nil {
		return nil, causanticerr.InvalidInput("failed to encode archive bundle", err)
	}

	payload := raw
	if !opts.DisableCompression || opts.Password != "" {
		payload, err = gzipBytes(raw)
		if err != nil {
			return nil, causanticerr.InvalidInput("failed to compress archive bundle", err)
		}
	}

	if opts.Password == "" {
		return payload, nil
	}
	return encrypt(opts.Password, payload)
}

// redactChunks returns copies of chunks with file-path-shaped and/or
// fenced-code substrings stripped from Content. Originals are untouched.
func redactChunks(chunks []*model.Chunk, opts ExportOptions) []*model.Chunk {
	out := make([]*model.Chunk, len(chunks))
	for i, c := range chunks {
		clone := *c
		content := clone.Content
		if opts.RedactCodeBlocks {
			content = codeBlockPattern.ReplaceAllString(content, "[redacted-code]")
		}
		if opts.RedactFilePaths {
			content = filePathPattern.ReplaceAllString(content, "[redacted-path]")
		}
		clone.Content = content
		out[i] = &clone
	}
	return out
}

// filterEdgesToChunks keeps edges whose endpoints both survive the export
// filter, so a project-scoped export never carries dangling references to
// chunks that were left out.
func filterEdgesToChunks(edges []*model.Edge, chunks []*model.Chunk, project string) []*model.Edge {
	if project == "" {
		return edges
	}
	ids := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		ids[c.ID] = true
	}
	out := edges[:0:0]
	for _, e := range edges {
		if ids[e.SourceID] && ids[e.TargetID] {
			out = append(out, e)
		}
	}
	return out
}

func relevantIDs(chunks []*model.Chunk, vectors VectorSource, project string) []string {
	if project == "" {
		return vectors.AllIDs()
	}
	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		ids = append(ids, c.ID)
	}
	return ids
}

func gzipBytes(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(raw); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encrypt(password string, plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, causanticerr.InvalidInput("failed to generate archive salt", err)
	}
	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, causanticerr.InvalidInput("failed to derive archive key", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, causanticerr.InvalidInput("failed to initialize archive cipher", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, causanticerr.InvalidInput("failed to generate archive nonce", err)
	}

	sealed := aead.Seal(nonce, nonce, plaintext, nil)

	out := make([]byte, 0, len(magicEncrypted)+len(salt)+len(sealed))
	out = append(out, magicEncrypted...)
	out = append(out, salt...)
	out = append(out, sealed...)
	return out, nil
}

// ChunkSink writes a chunk back into the destination store.
type ChunkSink interface {
	Upsert(ctx context.Context, chunk *model.Chunk) error
	DeleteBySession(ctx context.Context, sessionID string) error
}

// EdgeSink writes an edge back into the destination store.
type EdgeSink interface {
	Upsert(ctx context.Context, edge *model.Edge) error
}

// ClusterSink both reads and atomically replaces the destination cluster
// set — merge mode needs the read half to fold the bundle into what's
// already there.
type ClusterSink interface {
	All(ctx context.Context) ([]*model.Cluster, []model.ClusterMembership, error)
	ReplaceAll(ctx context.Context, clusters []*model.Cluster, memberships []model.ClusterMembership) error
}

// VectorSink writes embeddings back into the destination vector store.
type VectorSink interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
}

// Sinks bundles the write-side store interfaces Import targets. Any of
// them may be nil, in which case that section of the bundle is skipped.
type Sinks struct {
	Chunks   ChunkSink
	Edges    EdgeSink
	Clusters ClusterSink
	Vectors  VectorSink
}

// Mode selects how Import reconciles the bundle against what's already in
// the destination stores.
type Mode string

const (
	// ModeMerge upserts bundle rows alongside whatever already exists.
	// The default: safe to run against a non-empty project.
	ModeMerge Mode = "merge"
	// ModeReplace deletes the sessions present in the bundle before
	// upserting chunks/edges, and swaps the cluster set wholesale. There
	// is no destination-side primitive to wipe every vector, so vectors
	// are always merged regardless of Mode.
	ModeReplace Mode = "replace"
)

// ImportOptions controls how Import decodes and applies a bundle.
type ImportOptions struct {
	// Password decrypts an encrypted bundle. Required iff the bundle was
	// produced with ExportOptions.Password set.
	Password string
	Mode     Mode
}

// ImportReport summarizes what Import wrote and any non-fatal problems it
// noticed in the bundle.
type ImportReport struct {
	Version          string
	ChunksImported   int
	EdgesImported    int
	ClustersImported int
	VectorsImported  int
	Warnings         []string
}

// Import decodes data (sniffing encryption/compression from its leading
// bytes), validates the bundle, and applies it to sinks section by section
// (chunks, edges, clusters, vectors). The writes are not wrapped in a
// transaction: an error stops the import and is returned, and whatever was
// already written (including, in ModeReplace, session deletions) stays in
// the store.
func Import(ctx context.Context, sinks Sinks, data []byte, opts ImportOptions) (ImportReport, error) {
	raw, err := decode(data, opts.Password)
	if err != nil {
		return ImportReport{}, err
	}

	var bundle Bundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return ImportReport{}, causanticerr.InvalidInput("archive bundle is not valid JSON", err)
	}
	if bundle.Format != formatName {
		return ImportReport{}, causanticerr.InvalidInput(
			fmt.Sprintf("unrecognized archive format %q", bundle.Format), nil)
	}
	if !supportedVersions[bundle.Version] {
		return ImportReport{}, causanticerr.InvalidInput(
			fmt.Sprintf("unsupported archive version %q", bundle.Version), nil)
	}

	mode := opts.Mode
	if mode == "" {
		mode = ModeMerge
	}

	report := ImportReport{Version: bundle.Version}
	report.Warnings = append(report.Warnings, validateBundle(&bundle)...)

	chunkIDs := make(map[string]bool, len(bundle.Chunks))
	for _, c := range bundle.Chunks {
		chunkIDs[c.ID] = true
	}
	for _, e := range bundle.Edges {
		if !chunkIDs[e.SourceID] || !chunkIDs[e.TargetID] {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("edge %s references a chunk missing from the bundle", e.ID))
		}
	}

	if sinks.Chunks != nil && len(bundle.Chunks) > 0 {
		if mode == ModeReplace {
			for _, sessionID := range distinctSessions(bundle.Chunks) {
				if err := sinks.Chunks.DeleteBySession(ctx, sessionID); err != nil {
					return report, err
				}
			}
		}
		for _, c := range bundle.Chunks {
			if err := sinks.Chunks.Upsert(ctx, c); err != nil {
				return report, err
			}
			report.ChunksImported++
		}
	}

	if sinks.Edges != nil {
		for _, e := range bundle.Edges {
			if err := sinks.Edges.Upsert(ctx, e); err != nil {
				return report, err
			}
			report.EdgesImported++
		}
	}

	if sinks.Clusters != nil && (len(bundle.Clusters) > 0 || len(bundle.Memberships) > 0) {
		clusters, memberships := bundle.Clusters, bundle.Memberships
		if mode == ModeMerge {
			existingClusters, existingMemberships, err := sinks.Clusters.All(ctx)
			if err != nil {
				return report, err
			}
			clusters, memberships = mergeClusters(existingClusters, existingMemberships, bundle.Clusters, bundle.Memberships)
		}
		if err := sinks.Clusters.ReplaceAll(ctx, clusters, memberships); err != nil {
			return report, err
		}
		report.ClustersImported = len(bundle.Clusters)
	}

	if sinks.Vectors != nil && len(bundle.Vectors) > 0 {
		ids := make([]string, len(bundle.Vectors))
		vecs := make([][]float32, len(bundle.Vectors))
		for i, v := range bundle.Vectors {
			ids[i] = v.ChunkID
			vecs[i] = v.Embedding
		}
		if err := sinks.Vectors.Add(ctx, ids, vecs); err != nil {
			return report, err
		}
		report.VectorsImported = len(bundle.Vectors)
	}

	return report, nil
}

// validateBundle compares declared metadata counts against the actual
// section lengths and flags a v1.0 bundle carrying no vectors, both of
// which are warnings rather than import failures.
func validateBundle(bundle *Bundle) []string {
	var warnings []string
	if bundle.Metadata.ChunkCount != len(bundle.Chunks) {
		warnings = append(warnings, fmt.Sprintf(
			"metadata declares %d chunks but bundle contains %d", bundle.Metadata.ChunkCount, len(bundle.Chunks)))
	}
	if bundle.Metadata.EdgeCount != len(bundle.Edges) {
		warnings = append(warnings, fmt.Sprintf(
			"metadata declares %d edges but bundle contains %d", bundle.Metadata.EdgeCount, len(bundle.Edges)))
	}
	if bundle.Metadata.ClusterCount != len(bundle.Clusters) {
		warnings = append(warnings, fmt.Sprintf(
			"metadata declares %d clusters but bundle contains %d", bundle.Metadata.ClusterCount, len(bundle.Clusters)))
	}
	if bundle.Version == "1.0" && len(bundle.Vectors) == 0 && len(bundle.Chunks) > 0 {
		warnings = append(warnings, "bundle omits vectors (v1.0 archives may not carry embeddings)")
	} else if len(bundle.Vectors) < len(bundle.Chunks) {
		warnings = append(warnings, fmt.Sprintf(
			"%d of %d chunks have no vector in the bundle", len(bundle.Chunks)-len(bundle.Vectors), len(bundle.Chunks)))
	}
	return warnings
}

func distinctSessions(chunks []*model.Chunk) []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range chunks {
		if !seen[c.SessionID] {
			seen[c.SessionID] = true
			out = append(out, c.SessionID)
		}
	}
	sort.Strings(out)
	return out
}

// mergeClusters folds incoming clusters/memberships into the existing set:
// an incoming cluster with the same id replaces the existing one, and
// memberships are unioned deduplicating by (chunk_id, cluster_id).
func mergeClusters(existingClusters []*model.Cluster, existingMemberships []model.ClusterMembership,
	incomingClusters []*model.Cluster, incomingMemberships []model.ClusterMembership) ([]*model.Cluster, []model.ClusterMembership) {

	byID := make(map[string]*model.Cluster, len(existingClusters)+len(incomingClusters))
	var order []string
	for _, c := range existingClusters {
		byID[c.ID] = c
		order = append(order, c.ID)
	}
	for _, c := range incomingClusters {
		if _, ok := byID[c.ID]; !ok {
			order = append(order, c.ID)
		}
		byID[c.ID] = c
	}
	clusters := make([]*model.Cluster, len(order))
	for i, id := range order {
		clusters[i] = byID[id]
	}

	seen := make(map[[2]string]bool, len(existingMemberships)+len(incomingMemberships))
	var memberships []model.ClusterMembership
	for _, list := range [][]model.ClusterMembership{existingMemberships, incomingMemberships} {
		for _, m := range list {
			key := [2]string{m.ChunkID, m.ClusterID}
			if seen[key] {
				continue
			}
			seen[key] = true
			memberships = append(memberships, m)
		}
	}
	return clusters, memberships
}

// decode sniffs data's leading bytes to determine whether it's encrypted,
// gzip-compressed, or plain JSON, and returns the plain JSON bytes.
func decode(data []byte, password string) ([]byte, error) {
	if len(data) >= len(magicEncrypted) && bytes.Equal(data[:len(magicEncrypted)], magicEncrypted) {
		if password == "" {
			return nil, causanticerr.InvalidInput("archive is encrypted but no password was given", nil)
		}
		return decrypt(data[len(magicEncrypted):], password)
	}
	if len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b {
		return gunzipBytes(data)
	}
	return data, nil
}

func decrypt(data []byte, password string) ([]byte, error) {
	if len(data) < saltLen {
		return nil, causanticerr.InvalidInput("archive is truncated", nil)
	}
	salt, ciphertext := data[:saltLen], data[saltLen:]

	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, causanticerr.InvalidInput("failed to derive archive key", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, causanticerr.InvalidInput("failed to initialize archive cipher", err)
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, causanticerr.InvalidInput("archive is truncated", nil)
	}
	nonce, msg := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, msg, nil)
	if err != nil {
		return nil, causanticerr.InvalidInput("wrong password or corrupted archive", err)
	}

	if len(plaintext) >= 2 && plaintext[0] == 0x1f && plaintext[1] == 0x8b {
		return gunzipBytes(plaintext)
	}
	return plaintext, nil
}

func gunzipBytes(data []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, causanticerr.InvalidInput("failed to decompress archive", err)
	}
	defer gr.Close()
	out, err := io.ReadAll(gr)
	if err != nil {
		return nil, causanticerr.InvalidInput("failed to decompress archive", err)
	}
	return out, nil
}
