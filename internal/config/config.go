// Package config provides layered YAML + environment configuration for the
// retrieval engine, mirroring the defaults -> user -> project -> env
// precedence the teacher repo uses for its own search tuning knobs.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Graph      GraphConfig      `yaml:"graph" json:"graph"`
	Decay      DecayConfig      `yaml:"decay" json:"decay"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Archive    ArchiveConfig    `yaml:"archive" json:"archive"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// SearchConfig holds RRF fuser, MMR reranker (C7, C10) and Search Assembler
// (C11) settings. causantic.Engine reads MaxTokens, VectorSearchLimit and
// MMRLambda from it; the other fields are loaded and validated only.
type SearchConfig struct {
	// BM25Weight / SemanticWeight must sum to 1. The engine does not read
	// them: recall fuses keyword and vector results at equal weight, and
	// search mode weights keyword 1.5x.
	BM25Weight     float64 `yaml:"bm25_weight" json:"bm25_weight"`
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`

	// RRFConstant is the fusion smoothing parameter k (default 60). The
	// engine fuses with fuse.DefaultK and does not read this field.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// VectorSearchLimit is the default top-k for vector/FTS search.
	VectorSearchLimit int `yaml:"vector_search_limit" json:"vector_search_limit"`

	// MMRLambda is the default relevance/novelty tradeoff for the MMR
	// reranker (default 0.7).
	MMRLambda float64 `yaml:"mmr_lambda" json:"mmr_lambda"`

	// MMRThreshold is the candidate count below which MMR is a no-op
	// (default 10). The engine uses rerank.DefaultThreshold and does not
	// read this field.
	MMRThreshold int `yaml:"mmr_threshold" json:"mmr_threshold"`

	// MaxTokens is the default assembled-context token budget.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`
}

// GraphConfig holds Cluster Expander (C8) and Chain Walker (C9) settings.
// The engine does not read them: cluster expansion uses fixed values
// (5 clusters, 3 siblings, boost 0.8).
type GraphConfig struct {
	ClusterMaxClusters int     `yaml:"cluster_max_clusters" json:"cluster_max_clusters"`
	ClusterMaxSiblings int     `yaml:"cluster_max_siblings" json:"cluster_max_siblings"`
	ClusterBoostFactor float64 `yaml:"cluster_boost_factor" json:"cluster_boost_factor"`

	ChainMaxDepth int `yaml:"chain_max_depth" json:"chain_max_depth"`
}

// DecayConfig configures the default decay curve (C1) used when edges do
// not specify their own.
type DecayConfig struct {
	Curve     string  `yaml:"curve" json:"curve"`
	R         float64 `yaml:"r" json:"r"`
	K         float64 `yaml:"k" json:"k"`
	Alpha     float64 `yaml:"alpha" json:"alpha"`
	MinWeight float64 `yaml:"min_weight" json:"min_weight"`
}

// StoreConfig selects backend implementations for C4/C5.
type StoreConfig struct {
	// DatabasePath is the SQLite database file backing C2/C3/C6 and
	// (when KeywordBackend=="sqlite") C5.
	DatabasePath string `yaml:"database_path" json:"database_path"`

	// KeywordBackend selects the C5 implementation: "sqlite" (FTS5, default)
	// or "bleve".
	KeywordBackend string `yaml:"keyword_backend" json:"keyword_backend"`

	// VectorBackend selects the C4 implementation: "matrix" (brute-force,
	// default) or "hnsw" (ANN).
	VectorBackend string `yaml:"vector_backend" json:"vector_backend"`

	// SQLiteCacheMB is the SQLite page cache size in MB.
	SQLiteCacheMB int `yaml:"sqlite_cache_mb" json:"sqlite_cache_mb"`

	// EmbeddingCacheSize bounds the LRU cache of recent query embeddings.
	EmbeddingCacheSize int `yaml:"embedding_cache_size" json:"embedding_cache_size"`
}

// ArchiveConfig configures the Archive Codec (C13).
type ArchiveConfig struct {
	// ScryptN/R/P are loaded and validated only; the archive codec uses
	// its own fixed scrypt parameters.
	ScryptN int `yaml:"scrypt_n" json:"scrypt_n"`
	ScryptR int `yaml:"scrypt_r" json:"scrypt_r"`
	ScryptP int `yaml:"scrypt_p" json:"scrypt_p"`
}

// ServerConfig holds the log level. It is validated, but the CLI does not
// read it; --debug alone turns on debug-level file logging.
type ServerConfig struct {
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// NewConfig returns sensible defaults, matching spec.md's normative values
// (RRFConstant 60, MMRLambda 0.7, MMRThreshold 10, BM25/Semantic 0.65/0.35).
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Search: SearchConfig{
			BM25Weight:        0.65,
			SemanticWeight:    0.35,
			RRFConstant:       60,
			VectorSearchLimit: 20,
			MMRLambda:         0.7,
			MMRThreshold:      10,
			MaxTokens:         10_000,
		},
		Graph: GraphConfig{
			ClusterMaxClusters: 5,
			ClusterMaxSiblings: 3,
			ClusterBoostFactor: 0.8,
			ChainMaxDepth:      8,
		},
		Decay: DecayConfig{
			Curve:     "exponential",
			R:         0.85,
			K:         0.1,
			Alpha:     1.0,
			MinWeight: 0.01,
		},
		Store: StoreConfig{
			DatabasePath:       defaultDatabasePath(),
			KeywordBackend:     "sqlite",
			VectorBackend:      "matrix",
			SQLiteCacheMB:      64,
			EmbeddingCacheSize: 256,
		},
		Archive: ArchiveConfig{
			ScryptN: 1 << 15,
			ScryptR: 8,
			ScryptP: 1,
		},
		Server: ServerConfig{
			LogLevel: "info",
		},
	}
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".causantic", "causantic.db")
	}
	return filepath.Join(home, ".causantic", "causantic.db")
}

// GetUserConfigPath returns the path to the user/global configuration file,
// honoring XDG_CONFIG_HOME.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "causantic", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "causantic", "config.yaml")
	}
	return filepath.Join(home, ".config", "causantic", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}
	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// Load loads configuration from the specified directory, applying, in order
// of increasing precedence: hardcoded defaults, user config
// (~/.config/causantic/config.yaml), project config (.causantic.yaml), and
// CAUSANTIC_* environment variables.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".causantic.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}
	ymlPath := filepath.Join(dir, ".causantic.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Search.BM25Weight != 0 {
		c.Search.BM25Weight = other.Search.BM25Weight
	}
	if other.Search.SemanticWeight != 0 {
		c.Search.SemanticWeight = other.Search.SemanticWeight
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.VectorSearchLimit != 0 {
		c.Search.VectorSearchLimit = other.Search.VectorSearchLimit
	}
	if other.Search.MMRLambda != 0 {
		c.Search.MMRLambda = other.Search.MMRLambda
	}
	if other.Search.MMRThreshold != 0 {
		c.Search.MMRThreshold = other.Search.MMRThreshold
	}
	if other.Search.MaxTokens != 0 {
		c.Search.MaxTokens = other.Search.MaxTokens
	}

	if other.Graph.ClusterMaxClusters != 0 {
		c.Graph.ClusterMaxClusters = other.Graph.ClusterMaxClusters
	}
	if other.Graph.ClusterMaxSiblings != 0 {
		c.Graph.ClusterMaxSiblings = other.Graph.ClusterMaxSiblings
	}
	if other.Graph.ClusterBoostFactor != 0 {
		c.Graph.ClusterBoostFactor = other.Graph.ClusterBoostFactor
	}
	if other.Graph.ChainMaxDepth != 0 {
		c.Graph.ChainMaxDepth = other.Graph.ChainMaxDepth
	}

	if other.Decay.Curve != "" {
		c.Decay.Curve = other.Decay.Curve
	}
	if other.Decay.R != 0 {
		c.Decay.R = other.Decay.R
	}
	if other.Decay.K != 0 {
		c.Decay.K = other.Decay.K
	}
	if other.Decay.Alpha != 0 {
		c.Decay.Alpha = other.Decay.Alpha
	}
	if other.Decay.MinWeight != 0 {
		c.Decay.MinWeight = other.Decay.MinWeight
	}

	if other.Store.DatabasePath != "" {
		c.Store.DatabasePath = other.Store.DatabasePath
	}
	if other.Store.KeywordBackend != "" {
		c.Store.KeywordBackend = other.Store.KeywordBackend
	}
	if other.Store.VectorBackend != "" {
		c.Store.VectorBackend = other.Store.VectorBackend
	}
	if other.Store.SQLiteCacheMB != 0 {
		c.Store.SQLiteCacheMB = other.Store.SQLiteCacheMB
	}
	if other.Store.EmbeddingCacheSize != 0 {
		c.Store.EmbeddingCacheSize = other.Store.EmbeddingCacheSize
	}

	if other.Archive.ScryptN != 0 {
		c.Archive.ScryptN = other.Archive.ScryptN
	}
	if other.Archive.ScryptR != 0 {
		c.Archive.ScryptR = other.Archive.ScryptR
	}
	if other.Archive.ScryptP != 0 {
		c.Archive.ScryptP = other.Archive.ScryptP
	}

	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies CAUSANTIC_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CAUSANTIC_BM25_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.BM25Weight = w
		}
	}
	if v := os.Getenv("CAUSANTIC_SEMANTIC_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.SemanticWeight = w
		}
	}
	if v := os.Getenv("CAUSANTIC_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("CAUSANTIC_MMR_LAMBDA"); v != "" {
		if l, err := parseFloat64(v); err == nil && l >= 0 && l <= 1 {
			c.Search.MMRLambda = l
		}
	}
	if v := os.Getenv("CAUSANTIC_DATABASE_PATH"); v != "" {
		c.Store.DatabasePath = v
	}
	if v := os.Getenv("CAUSANTIC_KEYWORD_BACKEND"); v != "" {
		c.Store.KeywordBackend = v
	}
	if v := os.Getenv("CAUSANTIC_VECTOR_BACKEND"); v != "" {
		c.Store.VectorBackend = v
	}
	if v := os.Getenv("CAUSANTIC_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// FindProjectRoot finds the project root by walking up looking for .git or
// a .causantic.yaml/.yml file.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}
		if fileExists(filepath.Join(currentDir, ".causantic.yaml")) ||
			fileExists(filepath.Join(currentDir, ".causantic.yml")) {
			return currentDir, nil
		}
		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Search.BM25Weight < 0 || c.Search.BM25Weight > 1 {
		return fmt.Errorf("bm25_weight must be between 0 and 1, got %f", c.Search.BM25Weight)
	}
	if c.Search.SemanticWeight < 0 || c.Search.SemanticWeight > 1 {
		return fmt.Errorf("semantic_weight must be between 0 and 1, got %f", c.Search.SemanticWeight)
	}
	if sum := c.Search.BM25Weight + c.Search.SemanticWeight; math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("bm25_weight + semantic_weight must equal 1.0, got %.2f", sum)
	}
	if c.Search.MMRLambda < 0 || c.Search.MMRLambda > 1 {
		return fmt.Errorf("mmr_lambda must be between 0 and 1, got %f", c.Search.MMRLambda)
	}
	if c.Search.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative, got %d", c.Search.MaxTokens)
	}

	validKeyword := map[string]bool{"sqlite": true, "bleve": true}
	if !validKeyword[strings.ToLower(c.Store.KeywordBackend)] {
		return fmt.Errorf("store.keyword_backend must be 'sqlite' or 'bleve', got %s", c.Store.KeywordBackend)
	}
	validVector := map[string]bool{"matrix": true, "hnsw": true}
	if !validVector[strings.ToLower(c.Store.VectorBackend)] {
		return fmt.Errorf("store.vector_backend must be 'matrix' or 'hnsw', got %s", c.Store.VectorBackend)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadUserConfig loads the user configuration file, if any.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}
