package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", "log:\n  level: debug\n")

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.True(t, cfg.Adapter.LenientParentCreation)
	assert.Equal(t, "localfs", cfg.Backend.BackendType())
	assert.Equal(t, 30*time.Second, cfg.DLM.TTL)
	assert.Equal(t, "gcs-connector", cfg.Logging.Remote.Stream)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
server:
  listen_addr: ":9443"
adapter:
  lenient_parent_creation: false
backend:
  uri: s3://warehouse
  s3:
    region: eu-west-1
attribute_store:
  type: memory
logging:
  remote:
    type: http
    endpoint: http://collector:8080/v1/logs
`)
	t.Setenv("FSBRIDGE_LOG__PATH_REDACTION", "none")
	t.Setenv("FSBRIDGE_SERVER__LISTEN_ADDR", ":7000")
	t.Setenv("FSBRIDGE_DLM__TTL", "1m")

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.ListenAddr)
	assert.False(t, cfg.Adapter.LenientParentCreation)
	assert.Equal(t, "s3", cfg.Backend.BackendType())
	assert.Equal(t, "eu-west-1", cfg.Backend.S3.Region)
	assert.Equal(t, "AES256", cfg.Backend.S3.ServerSideEncryption)
	assert.Equal(t, "none", cfg.Log.PathRedaction)
	assert.Equal(t, "http", cfg.Logging.Remote.Type)
	assert.Equal(t, time.Minute, cfg.DLM.TTL)
}

func TestLoadConfigJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{"backend": {"uri": ""}, "attribute_store": {"type": "memory"}}`)

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "noop", cfg.Backend.BackendType())
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{"defaults", func(*AppConfig) {}, ""},
		{"no listen addr", func(c *AppConfig) { c.Server.ListenAddr = "" }, "server.listen_addr"},
		{"cert without key", func(c *AppConfig) { c.Server.CertFile = "server.crt" }, "key_file"},
		{"no api keys", func(c *AppConfig) { c.Auth.APIKeys = nil }, "auth.api_keys"},
		{"bad level", func(c *AppConfig) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *AppConfig) { c.Log.Format = "xml" }, "log.format"},
		{"bad redaction", func(c *AppConfig) { c.Log.PathRedaction = "shred" }, "log.path_redaction"},
		{"http sink without endpoint", func(c *AppConfig) { c.Logging.Remote.Type = "http" }, "logging.remote.endpoint"},
		{"bad remote severity", func(c *AppConfig) {
			c.Logging.Remote.Severities = []string{"INFO", "DEBUG"}
		}, "logging.remote.severities"},
		{"unknown sink", func(c *AppConfig) { c.Logging.Remote.Type = "kafka" }, "logging.remote.type"},
		{"bucketless s3", func(c *AppConfig) { c.Backend.URI = "s3:///path" }, "bucket"},
		{"unsupported scheme", func(c *AppConfig) { c.Backend.URI = "hdfs://nn/x" }, "unsupported scheme"},
		{"postgres without dsn", func(c *AppConfig) {
			c.AttributeStore.Type = "postgres"
			c.AttributeStore.DSN = ""
		}, "attribute_store.dsn"},
		{"raft without node id", func(c *AppConfig) {
			c.AttributeStore.Type = "raft"
			c.AttributeStore.Raft.NodeID = ""
		}, "attribute_store.raft.node_id"},
		{"unknown store", func(c *AppConfig) { c.AttributeStore.Type = "etcd" }, "attribute_store.type"},
		{"unknown dlm", func(c *AppConfig) { c.DLM.Type = "zookeeper" }, "dlm.type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultAppConfig()
			tt.mutate(&cfg)
			err := validateConfig(&cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
