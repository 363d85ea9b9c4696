// Package config provides configuration management for fsbridge.
// It handles loading and validating configuration from YAML or JSON files and
// environment variables.
package config

import "time"

// AppConfig represents the complete application configuration
type AppConfig struct {
	Server         ServerConfig         `koanf:"server"`
	Auth           AuthConfig           `koanf:"auth"`
	Log            LogConfig            `koanf:"log"`
	Logging        LoggingConfig        `koanf:"logging"`
	Metrics        MetricsConfig        `koanf:"metrics"`
	Adapter        AdapterConfig        `koanf:"adapter"`
	Backend        BackendConfig        `koanf:"backend"`
	AttributeStore AttributeStoreConfig `koanf:"attribute_store"`
	DLM            DLMConfig            `koanf:"dlm"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	ListenAddr      string        `koanf:"listen_addr"`
	CertFile        string        `koanf:"cert_file"` // TLS is enabled when both files are set
	KeyFile         string        `koanf:"key_file"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RateLimit       float64       `koanf:"rate_limit"` // requests per second per client, 0 disables
	RateBurst       int           `koanf:"rate_burst"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	APIKeys []string `koanf:"api_keys"`
}

// LogConfig holds local logging configuration
type LogConfig struct {
	Level         string `koanf:"level"`
	Format        string `koanf:"format"`         // "json" or "console"
	PathRedaction string `koanf:"path_redaction"` // "hash", "truncate" or "none"
}

// LoggingConfig holds the remote log sink configuration
type LoggingConfig struct {
	Remote RemoteLogConfig `koanf:"remote"`
}

// RemoteLogConfig configures where log entries are shipped. Severities
// selects the shipped entries; FINEST, FINE and CONFIG also carry the
// per-operation adapter records.
type RemoteLogConfig struct {
	Type            string        `koanf:"type"` // "none", "http" or "redis"
	Endpoint        string        `koanf:"endpoint"`
	Token           string        `koanf:"token"`
	RedisAddr       string        `koanf:"redis_addr"`
	RedisPassword   string        `koanf:"redis_password"`
	RedisDB         int           `koanf:"redis_db"`
	Stream          string        `koanf:"stream"`
	StreamMaxLen    int64         `koanf:"stream_max_len"`
	QueueSize       int           `koanf:"queue_size"`
	DeliveryTimeout time.Duration `koanf:"delivery_timeout"`
	MaxAttempts     int           `koanf:"max_attempts"`
	Severities      []string      `koanf:"severities"`
}

// MetricsConfig holds metrics server configuration
type MetricsConfig struct {
	ListenAddr string `koanf:"listen_addr"`
}

// AdapterConfig holds adapter policy configuration
type AdapterConfig struct {
	LenientParentCreation bool `koanf:"lenient_parent_creation"`
}

// BackendConfig holds the delegate file system configuration. The delegate
// is chosen by the scheme of URI; an empty URI disables the backend.
type BackendConfig struct {
	URI     string        `koanf:"uri"`
	LocalFS LocalFSConfig `koanf:"localfs"`
	S3      S3Config      `koanf:"s3"`
}

// LocalFSConfig holds local delegate configuration
type LocalFSConfig struct {
	BlockSize int64 `koanf:"block_size"`
}

// S3Config holds object-store delegate configuration
type S3Config struct {
	Region               string `koanf:"region"`
	Endpoint             string `koanf:"endpoint"` // Custom S3 endpoint (e.g., for MinIO)
	AccessKey            string `koanf:"access_key"`
	SecretKey            string `koanf:"secret_key"`
	DisableSSL           bool   `koanf:"disable_ssl"`
	ServerSideEncryption string `koanf:"server_side_encryption"` // SSE algorithm (AES256, aws:kms)
	ACL                  string `koanf:"acl"`                    // Object ACL (private, public-read, etc.)
	KMSKeyID             string `koanf:"kms_key_id"`             // KMS key ID for SSE-KMS
	BlockSize            int64  `koanf:"block_size"`
	DefaultOwner         string `koanf:"default_owner"`
	DefaultGroup         string `koanf:"default_group"`
}

// AttributeStoreConfig holds the attribute store configuration used by
// object-store delegates
type AttributeStoreConfig struct {
	Type           string     `koanf:"type"` // "memory", "sqlite", "postgres", "redis" or "raft"
	DSN            string     `koanf:"dsn"`
	SQLitePath     string     `koanf:"sqlite_path"`
	RedisAddr      string     `koanf:"redis_addr"`
	RedisPassword  string     `koanf:"redis_password"`
	RedisDB        int        `koanf:"redis_db"`
	RedisKeyPrefix string     `koanf:"redis_key_prefix"`
	Raft           RaftConfig `koanf:"raft"`
}

// RaftConfig holds the settings of a raft replicated attribute store.
// Peers maps the node ids of the other voters to their raft addresses.
type RaftConfig struct {
	NodeID       string            `koanf:"node_id"`
	BindAddr     string            `koanf:"bind_addr"`
	DataDir      string            `koanf:"data_dir"`
	Bootstrap    bool              `koanf:"bootstrap"`
	Peers        map[string]string `koanf:"peers"`
	ApplyTimeout time.Duration     `koanf:"apply_timeout"`
}

// DLMConfig holds distributed lock manager configuration
type DLMConfig struct {
	Type          string        `koanf:"type"` // "local" or "redis"
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db"`
	TTL           time.Duration `koanf:"ttl"`
}
