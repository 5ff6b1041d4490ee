package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 0.65, cfg.Search.BM25Weight)
	assert.Equal(t, 0.35, cfg.Search.SemanticWeight)
	assert.Equal(t, 60, cfg.Search.RRFConstant)
	assert.Equal(t, 0.7, cfg.Search.MMRLambda)
	assert.Equal(t, 10, cfg.Search.MMRThreshold)

	assert.Equal(t, "sqlite", cfg.Store.KeywordBackend)
	assert.Equal(t, "matrix", cfg.Store.VectorBackend)

	require.NoError(t, cfg.Validate())
}

func TestLoad_NoProjectConfig_ReturnsDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, NewConfig().Search.RRFConstant, cfg.Search.RRFConstant)
}

func TestLoad_ProjectConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	yamlContent := `
search:
  rrf_constant: 40
  mmr_lambda: 0.5
store:
  keyword_backend: bleve
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".causantic.yaml"), []byte(yamlContent), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Search.RRFConstant)
	assert.Equal(t, 0.5, cfg.Search.MMRLambda)
	assert.Equal(t, "bleve", cfg.Store.KeywordBackend)
	// Unset fields keep defaults.
	assert.Equal(t, 0.65, cfg.Search.BM25Weight)
}

func TestLoad_EnvOverridesProjectConfig(t *testing.T) {
	dir := t.TempDir()
	yamlContent := `
search:
  rrf_constant: 40
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".causantic.yaml"), []byte(yamlContent), 0644))

	t.Setenv("CAUSANTIC_RRF_CONSTANT", "99")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 99, cfg.Search.RRFConstant)
}

func TestLoad_InvalidWeightsRejected(t *testing.T) {
	dir := t.TempDir()
	yamlContent := `
search:
  bm25_weight: 0.9
  semantic_weight: 0.9
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".causantic.yaml"), []byte(yamlContent), 0644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidate_RejectsUnknownBackends(t *testing.T) {
	cfg := NewConfig()
	cfg.Store.KeywordBackend = "elasticsearch"
	assert.Error(t, cfg.Validate())

	cfg = NewConfig()
	cfg.Store.VectorBackend = "faiss"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsBadLogLevel(t *testing.T) {
	cfg := NewConfig()
	cfg.Server.LogLevel = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestWriteYAML_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.yaml")

	cfg := NewConfig()
	cfg.Search.RRFConstant = 77
	require.NoError(t, cfg.WriteYAML(path))

	loaded := NewConfig()
	require.NoError(t, loaded.loadYAML(path))
	assert.Equal(t, 77, loaded.Search.RRFConstant)
}

func TestFindProjectRoot_FindsGitRoot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0755))
	sub := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0755))

	root, err := FindProjectRoot(sub)
	require.NoError(t, err)
	assert.Equal(t, dir, root)
}

func TestFindProjectRoot_FindsCausanticConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".causantic.yaml"), []byte("version: 1\n"), 0644))
	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.MkdirAll(sub, 0755))

	root, err := FindProjectRoot(sub)
	require.NoError(t, err)
	assert.Equal(t, dir, root)
}
