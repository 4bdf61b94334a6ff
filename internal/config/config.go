package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/Zuo-Peng/chat-history/internal/model"
)

const (
	DefaultEmbeddingModel = "text-embedding-3-small"
	exportFileName        = "conversations.json"
)

// EnvRelPath is the dotenv file read at startup, relative to the working directory.
var EnvRelPath = filepath.Join("data", ".env")

type Config struct {
	DataDir        string `toml:"data_dir"`
	ChatGPTPath    string `toml:"chatgpt_path"`
	ClaudePath     string `toml:"claude_path"`
	GeminiPath     string `toml:"gemini_path"`
	SettingsDBPath string `toml:"settings_db_path"`
	IndexDBPath    string `toml:"index_db_path"`
	EmbeddingModel string `toml:"embedding_model"`
	OpenAIEnabled  bool   `toml:"openai_enabled"`

	// Secrets come from the environment only.
	OpenAIAPIKey       string `toml:"-"`
	OpenAIOrganization string `toml:"-"`
	OpenAIBaseURL      string `toml:"-"`
}

// Load reads data/.env, the optional TOML file and the environment, in
// increasing order of precedence. Variables already set in the process
// environment win over the dotenv file.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	if err := godotenv.Load(filepath.Join(cwd, EnvRelPath)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", EnvRelPath, err)
	}

	cfg := &Config{
		DataDir:        "data",
		EmbeddingModel: DefaultEmbeddingModel,
	}

	cfgPath := os.Getenv("CHAT_HISTORY_CONFIG")
	if cfgPath == "" {
		cfgPath = filepath.Join(home, ".config", "chat-history", "config.toml")
	}
	cfgPath = expandHome(cfgPath, home)
	if _, err := os.Stat(cfgPath); err == nil {
		if _, err := toml.DecodeFile(cfgPath, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", cfgPath, err)
		}
	}

	overrideString(&cfg.DataDir, "CHAT_HISTORY_DATA_DIR")
	overrideString(&cfg.ChatGPTPath, "CHAT_HISTORY_CHATGPT_PATH")
	overrideString(&cfg.ClaudePath, "CHAT_HISTORY_CLAUDE_PATH")
	overrideString(&cfg.GeminiPath, "CHAT_HISTORY_GEMINI_PATH")
	overrideString(&cfg.SettingsDBPath, "CHAT_HISTORY_SETTINGS_DB_PATH")
	overrideString(&cfg.IndexDBPath, "CHAT_HISTORY_INDEX_DB_PATH")
	overrideString(&cfg.EmbeddingModel, "OPENAI_EMBEDDING_MODEL")
	if v, ok := os.LookupEnv("CHAT_HISTORY_OPENAI_ENABLED"); ok {
		cfg.OpenAIEnabled = asBool(v)
	}
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAIOrganization = os.Getenv("OPENAI_ORGANIZATION")
	cfg.OpenAIBaseURL = os.Getenv("OPENAI_BASE_URL")

	// expand ~ in paths
	cfg.DataDir = expandHome(cfg.DataDir, home)
	cfg.ChatGPTPath = exportPath(expandHome(cfg.ChatGPTPath, home))
	cfg.ClaudePath = exportPath(expandHome(cfg.ClaudePath, home))
	cfg.GeminiPath = exportPath(expandHome(cfg.GeminiPath, home))
	cfg.SettingsDBPath = expandHome(cfg.SettingsDBPath, home)
	cfg.IndexDBPath = expandHome(cfg.IndexDBPath, home)

	if cfg.ChatGPTPath == "" {
		if p := filepath.Join(cfg.DataDir, exportFileName); fileExists(p) {
			cfg.ChatGPTPath = p
		}
	}
	if cfg.SettingsDBPath == "" {
		cfg.SettingsDBPath = filepath.Join(cfg.DataDir, "settings.db")
	}
	if cfg.IndexDBPath == "" {
		cfg.IndexDBPath = filepath.Join(cfg.DataDir, "index.db")
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	// embeddings need a key no matter what the flag says
	cfg.OpenAIEnabled = cfg.OpenAIEnabled && cfg.OpenAIAPIKey != ""

	return cfg, nil
}

// ExportPath returns the configured export file of p, or "".
func (c *Config) ExportPath(p model.Provider) string {
	switch p {
	case model.ChatGPT:
		return c.ChatGPTPath
	case model.Claude:
		return c.ClaudePath
	case model.Gemini:
		return c.GeminiPath
	}
	return ""
}

// ProviderRoot is the directory holding p's export and its media files.
func (c *Config) ProviderRoot(p model.Provider) string {
	if path := c.ExportPath(p); path != "" {
		return filepath.Dir(path)
	}
	return filepath.Join(c.DataDir, string(p))
}

func (c *Config) EmbeddingsDBPath(p model.Provider) string {
	return filepath.Join(c.DataDir, string(p), "embeddings.db")
}

func (c *Config) ExportDir() string {
	return filepath.Join(c.DataDir, "export")
}

// EnvPath is the dotenv file under root that Load reads when started from root.
func EnvPath(root string) string {
	return filepath.Join(root, EnvRelPath)
}

// EnvKey is the environment variable holding p's export path.
func EnvKey(p model.Provider) string {
	return "CHAT_HISTORY_" + strings.ToUpper(string(p)) + "_PATH"
}

// UpdateEnvFile merges values into the dotenv file at path, keeping
// unrelated entries.
func UpdateEnvFile(path string, values map[string]string) error {
	existing, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read %s: %w", path, err)
		}
		existing = make(map[string]string)
	}
	for k, v := range values {
		existing[k] = v
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := godotenv.Write(existing, path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func overrideString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func asBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// exportPath resolves a directory to the conversations.json inside it.
func exportPath(path string) string {
	if path == "" {
		return ""
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return filepath.Join(path, exportFileName)
	}
	return path
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func expandHome(path, home string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		return filepath.Join(home, path[2:])
	}
	return path
}
