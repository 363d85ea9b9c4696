package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap/zapcore"

	fslog "github.com/ebogdum/fsbridge/core/log"
)

// EnvPrefix prefixes every environment variable read by the loader.
// Nested keys are separated by a double underscore, e.g.
// FSBRIDGE_SERVER__LISTEN_ADDR sets server.listen_addr.
const EnvPrefix = "FSBRIDGE_"

// LoadConfig loads configuration from multiple sources with strict priority:
// 1. Environment variables (highest priority)
// 2. Config file (config.yaml, config.yml or config.json)
// 3. Defaults (lowest priority)
func LoadConfig() (AppConfig, error) {
	return LoadConfigFromFile("")
}

// LoadConfigFromFile loads configuration with a specific config file taking
// the place of the default config files.
func LoadConfigFromFile(configFilePath string) (AppConfig, error) {
	k := koanf.New(".")

	// Load default configuration first
	if err := k.Load(structs.Provider(DefaultAppConfig(), "koanf"), nil); err != nil {
		return AppConfig{}, fmt.Errorf("failed to load default config: %w", err)
	}

	if configFilePath != "" {
		if _, err := os.Stat(configFilePath); err != nil {
			return AppConfig{}, fmt.Errorf("specified config file %s not found: %w", configFilePath, err)
		}
		if err := loadFile(k, configFilePath); err != nil {
			return AppConfig{}, err
		}
	} else {
		// Load from default config files if they exist
		for _, configFile := range []string{"config.yaml", "config.yml", "config.json"} {
			if _, err := os.Stat(configFile); err == nil {
				if err := loadFile(k, configFile); err != nil {
					return AppConfig{}, err
				}
				break
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return AppConfig{}, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	var parser koanf.Parser
	switch {
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		parser = yaml.Parser()
	case strings.HasSuffix(path, ".json"):
		parser = json.Parser()
	default:
		return fmt.Errorf("unsupported config file format: %s", path)
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return nil
}

// envKey maps FSBRIDGE_LOG__PATH_REDACTION to log.path_redaction.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// BackendType returns the delegate selected by the backend URI scheme.
func (c BackendConfig) BackendType() string {
	if c.URI == "" {
		return "noop"
	}
	u, err := url.Parse(c.URI)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "file":
		return "localfs"
	case "s3":
		return "s3"
	}
	return ""
}

// validateConfig validates that required configuration fields are set
func validateConfig(cfg *AppConfig) error {
	if cfg.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if (cfg.Server.CertFile == "") != (cfg.Server.KeyFile == "") {
		return fmt.Errorf("server.cert_file and server.key_file must be set together")
	}

	if len(cfg.Auth.APIKeys) == 0 {
		return fmt.Errorf("auth.api_keys must contain at least one key")
	}
	for _, key := range cfg.Auth.APIKeys {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("auth.api_keys must not contain empty keys")
		}
	}

	if _, err := zapcore.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "console" {
		return fmt.Errorf("log.format must be \"json\" or \"console\", got %q", cfg.Log.Format)
	}
	if _, err := fslog.ParseRedactionMode(cfg.Log.PathRedaction); err != nil {
		return fmt.Errorf("log.path_redaction: %w", err)
	}

	remote := cfg.Logging.Remote
	for _, name := range remote.Severities {
		if _, err := fslog.ParseSeverity(name); err != nil {
			return fmt.Errorf("logging.remote.severities: %w", err)
		}
	}
	switch remote.Type {
	case "none", "":
	case "http":
		if remote.Endpoint == "" {
			return fmt.Errorf("logging.remote.endpoint is required for the http sink")
		}
		if _, err := url.ParseRequestURI(remote.Endpoint); err != nil {
			return fmt.Errorf("logging.remote.endpoint: %w", err)
		}
	case "redis":
		if remote.RedisAddr == "" {
			return fmt.Errorf("logging.remote.redis_addr is required for the redis sink")
		}
	default:
		return fmt.Errorf("unknown logging.remote.type %q", remote.Type)
	}

	if cfg.Backend.URI != "" {
		if _, err := url.Parse(cfg.Backend.URI); err != nil {
			return fmt.Errorf("backend.uri: %w", err)
		}
	}
	switch cfg.Backend.BackendType() {
	case "noop", "localfs":
	case "s3":
		if u, _ := url.Parse(cfg.Backend.URI); u.Host == "" {
			return fmt.Errorf("backend.uri must name a bucket, e.g. s3://bucket")
		}
	default:
		return fmt.Errorf("backend.uri %q has an unsupported scheme", cfg.Backend.URI)
	}

	switch cfg.AttributeStore.Type {
	case "memory":
	case "sqlite":
		if cfg.AttributeStore.SQLitePath == "" {
			return fmt.Errorf("attribute_store.sqlite_path is required")
		}
	case "postgres":
		if cfg.AttributeStore.DSN == "" {
			return fmt.Errorf("attribute_store.dsn is required")
		}
	case "redis":
		if cfg.AttributeStore.RedisAddr == "" {
			return fmt.Errorf("attribute_store.redis_addr is required")
		}
	case "raft":
		raft := cfg.AttributeStore.Raft
		if raft.NodeID == "" {
			return fmt.Errorf("attribute_store.raft.node_id is required")
		}
		if raft.BindAddr == "" {
			return fmt.Errorf("attribute_store.raft.bind_addr is required")
		}
		if raft.DataDir == "" {
			return fmt.Errorf("attribute_store.raft.data_dir is required")
		}
	default:
		return fmt.Errorf("unknown attribute_store.type %q", cfg.AttributeStore.Type)
	}

	switch cfg.DLM.Type {
	case "local":
	case "redis":
		if cfg.DLM.RedisAddr == "" {
			return fmt.Errorf("dlm.redis_addr is required")
		}
	default:
		return fmt.Errorf("unknown dlm.type %q", cfg.DLM.Type)
	}

	return nil
}
