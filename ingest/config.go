// CLAUDE:SUMMARY Service configuration (stores, redaction, chunking, embedder, loaders, HTTP) with YAML loading, defaults and env overrides for secrets.
package ingest

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/flowkeeper/chunk"
	"github.com/hazyhaar/flowkeeper/docpipe"
	"github.com/hazyhaar/flowkeeper/embed"
	"github.com/hazyhaar/flowkeeper/recorder"
	"github.com/hazyhaar/flowkeeper/sanitize"
	"github.com/hazyhaar/flowkeeper/sources"
)

// Config holds all flowkeeper configuration.
type Config struct {
	// DataDir is the base of the relative store paths below. Default: "data".
	DataDir  string `yaml:"data_dir"`
	HashDB   string `yaml:"hash_db"`
	VectorDB string `yaml:"vector_db"`
	FlowsDir string `yaml:"flows_dir"`

	// SensitiveKeywords extend the built-in sensitive keywords.
	SensitiveKeywords []string `yaml:"sensitive_keywords"`
	// RedactionMode is "all" (default) or "sensitive".
	RedactionMode string `yaml:"redaction_mode"`

	Origin   string              `yaml:"origin"`
	User     string              `yaml:"user"`
	Chunk    chunk.Options       `yaml:"chunk"`
	Docs     docpipe.Config      `yaml:"docs"`
	Embed    embed.Config        `yaml:"embed"`
	Index    IndexConfig         `yaml:"index"`
	Jira     sources.JiraConfig  `yaml:"jira"`
	Crawl    sources.CrawlConfig `yaml:"crawl"`
	Recorder recorder.Config     `yaml:"recorder"`
	HTTP     HTTPConfig          `yaml:"http"`

	Clock  func() time.Time `yaml:"-"`
	Logger *slog.Logger     `yaml:"-"`
}

// IndexConfig controls the vector index of the document store.
type IndexConfig struct {
	MinIndexSize int `yaml:"min_index_size"`
	CacheSize    int `yaml:"cache_size"`
}

// HTTPConfig configures `flowkeeper serve`.
type HTTPConfig struct {
	Listen string `yaml:"listen"`
	// Users maps user names to bcrypt password hashes. Empty disables
	// authentication.
	Users map[string]string `yaml:"users"`
	// MCPPath is where the streamable MCP endpoint is mounted. Default: /mcp.
	MCPPath string `yaml:"mcp_path"`
}

func (c *Config) defaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	c.HashDB = underDataDir(c.DataDir, c.HashDB, "hashstore.db")
	c.VectorDB = underDataDir(c.DataDir, c.VectorDB, "vectors.db")
	c.FlowsDir = underDataDir(c.DataDir, c.FlowsDir, "flows")
	if c.Origin == "" {
		c.Origin = "cli_user"
	}
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = ":8090"
	}
	if c.HTTP.MCPPath == "" {
		c.HTTP.MCPPath = "/mcp"
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Docs.Logger == nil {
		c.Docs.Logger = c.Logger
	}
	if c.Embed.Logger == nil {
		c.Embed.Logger = c.Logger
	}
	if c.Jira.Logger == nil {
		c.Jira.Logger = c.Logger
	}
	if c.Crawl.Logger == nil {
		c.Crawl.Logger = c.Logger
	}
	if c.Recorder.Logger == nil {
		c.Recorder.Logger = c.Logger
	}
	c.Crawl.Chunk = c.Chunk
}

// underDataDir resolves path: ":memory:" and absolute paths are kept,
// relative ones are joined to dir, empty ones get name.
func underDataDir(dir, path, name string) string {
	switch {
	case path == ":memory:" || filepath.IsAbs(path):
		return path
	case path == "":
		return filepath.Join(dir, name)
	default:
		return filepath.Join(dir, path)
	}
}

// Mode is the parsed RedactionMode.
func (c *Config) Mode() sanitize.Mode {
	return sanitize.ParseMode(c.RedactionMode)
}

// ApplyEnv overrides secrets from the environment: JIRA_BASE_URL,
// JIRA_EMAIL, JIRA_API_TOKEN (when unset in the file) and EMBED_API_KEY.
func (c *Config) ApplyEnv() {
	c.Jira.FromEnv()
	if v := os.Getenv("EMBED_API_KEY"); v != "" {
		c.Embed.APIKey = v
	}
	if v := os.Getenv("EMBED_ENDPOINT"); v != "" && c.Embed.Endpoint == "" {
		c.Embed.Endpoint = v
	}
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("ingest: config %s: %w", path, err)
	}
	return cfg, nil
}
