package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	var cfg Config
	cfg.Auth.Backend = BackendBlob
	cfg.Auth.CookieSecret = strings.Repeat("s", 32)
	cfg.Auth.SessionTimeout = 30 * time.Minute
	cfg.Auth.RateLimitWindow = 5 * time.Minute
	cfg.Auth.MaxAttempts = 5
	cfg.Questions.Backend = BackendSQLite
	cfg.Storage.Blob = BlobFile
	cfg.Storage.LocalDir = "data/blobs"
	cfg.Storage.JSONPrefix = "json-db/"
	cfg.Storage.DocumentPrefix = "documents/"
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GTB_AUTH_COOKIESECRET", "from-env")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr)
	assert.Equal(t, BackendBlob, cfg.Auth.Backend)
	assert.Equal(t, 30*time.Minute, cfg.Auth.SessionTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Auth.RateLimitWindow)
	assert.Equal(t, 5, cfg.Auth.MaxAttempts)
	assert.Equal(t, "json-db/", cfg.Storage.JSONPrefix)
	assert.Equal(t, "from-env", cfg.Auth.CookieSecret)
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cfg := validConfig()
	cfg.Auth.Backend = "mysql"
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Auth.CookieSecret = "short"
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Storage.Blob = BlobS3
	assert.Error(t, cfg.Validate(), "s3 blob storage without a bucket")

	cfg.Storage.Bucket = "ground-truth"
	assert.NoError(t, cfg.Validate())

	cfg = validConfig()
	cfg.Auth.MaxAttempts = 0
	assert.Error(t, cfg.Validate())
}

func TestValidate_DocumentPrefix(t *testing.T) {
	for _, prefix := range []string{"", "/"} {
		cfg := validConfig()
		cfg.Storage.DocumentPrefix = prefix
		assert.Error(t, cfg.Validate(), "document prefix %q", prefix)
	}

	cfg := validConfig()
	cfg.Storage.JSONPrefix = "documents/json-db/"
	assert.Error(t, cfg.Validate(), "json files inside the document listing")

	cfg = validConfig()
	cfg.Storage.JSONPrefix = ""
	assert.NoError(t, cfg.Validate())

	cfg = validConfig()
	cfg.Storage.JSONPrefix = "documents-json/"
	assert.NoError(t, cfg.Validate())
}

func TestUsesSQLite(t *testing.T) {
	cfg := validConfig()
	assert.True(t, cfg.UsesSQLite())

	cfg.Questions.Backend = BackendBlob
	assert.False(t, cfg.UsesSQLite())
}

func TestParseDotEnvLine(t *testing.T) {
	tests := []struct {
		line  string
		key   string
		value string
		ok    bool
	}{
		{line: "# comment", ok: false},
		{line: "", ok: false},
		{line: "GTB_SERVER_ADDR=127.0.0.1:9090", key: "GTB_SERVER_ADDR", value: "127.0.0.1:9090", ok: true},
		{line: `export GTB_STORAGE_BUCKET="bench"`, key: "GTB_STORAGE_BUCKET", value: "bench", ok: true},
		{line: "GTB_AUTH_COOKIESECRET='secret'", key: "GTB_AUTH_COOKIESECRET", value: "secret", ok: true},
		{line: "INVALID_LINE", ok: false},
		{line: "=value", ok: false},
	}

	for _, tc := range tests {
		key, value, ok := parseDotEnvLine(tc.line)
		assert.Equal(t, tc.ok, ok, tc.line)
		if tc.ok {
			assert.Equal(t, tc.key, key)
			assert.Equal(t, tc.value, value)
		}
	}
}
