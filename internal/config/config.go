package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendSQLite = "sqlite"
	BackendBlob   = "blob"

	BlobS3   = "s3"
	BlobFile = "file"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr string
		// AllowedOrigins may call the API with credentials from a browser.
		AllowedOrigins []string
	}
	Log struct {
		Level string
	}
	Auth struct {
		Backend           string
		CookieSecret      string
		SecureCookie      bool
		SessionTimeout    time.Duration
		RateLimitWindow   time.Duration
		MaxAttempts       int
		LoginRatePerMin   int
		LoginBurst        int
		MinPasswordLength int
	}
	Questions struct {
		Backend string
	}
	Database struct {
		Path string
	}
	Storage struct {
		Blob            string
		LocalDir        string
		Bucket          string
		JSONPrefix      string
		DocumentPrefix  string
		Region          string
		Endpoint        string
		AccessKeyID     string
		SecretAccessKey string
	}
	AWS struct {
		Profile string
	}
	SharePoint struct {
		TenantID     string
		ClientID     string
		ClientSecret string
		SiteHost     string
		SitePath     string
	}
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	loadDotEnv()

	v := viper.New()
	v.SetEnvPrefix("GTB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("server.allowedorigins", []string{})
	v.SetDefault("log.level", "info")

	v.SetDefault("auth.backend", BackendBlob)
	v.SetDefault("auth.cookiesecret", "")
	v.SetDefault("auth.securecookie", false)
	v.SetDefault("auth.sessiontimeout", 30*time.Minute)
	v.SetDefault("auth.ratelimitwindow", 5*time.Minute)
	v.SetDefault("auth.maxattempts", 5)
	v.SetDefault("auth.loginratepermin", 30)
	v.SetDefault("auth.loginburst", 10)
	v.SetDefault("auth.minpasswordlength", 8)

	v.SetDefault("questions.backend", BackendBlob)

	v.SetDefault("database.path", "data/groundtruth.db")

	v.SetDefault("storage.blob", BlobS3)
	v.SetDefault("storage.localdir", "data/blobs")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.jsonprefix", "json-db/")
	v.SetDefault("storage.documentprefix", "documents/")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.accesskeyid", "")
	v.SetDefault("storage.secretaccesskey", "")
	v.SetDefault("aws.profile", "")

	v.SetDefault("sharepoint.tenantid", "")
	v.SetDefault("sharepoint.clientid", "")
	v.SetDefault("sharepoint.clientsecret", "")
	v.SetDefault("sharepoint.sitehost", "")
	v.SetDefault("sharepoint.sitepath", "")
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	switch c.Auth.Backend {
	case BackendSQLite, BackendBlob:
	default:
		return fmt.Errorf("auth backend must be %q or %q, got %q", BackendSQLite, BackendBlob, c.Auth.Backend)
	}
	switch c.Questions.Backend {
	case BackendSQLite, BackendBlob:
	default:
		return fmt.Errorf("questions backend must be %q or %q, got %q", BackendSQLite, BackendBlob, c.Questions.Backend)
	}
	switch c.Storage.Blob {
	case BlobS3:
		if strings.TrimSpace(c.Storage.Bucket) == "" {
			return errors.New("storage bucket is required for s3 blob storage")
		}
	case BlobFile:
		if strings.TrimSpace(c.Storage.LocalDir) == "" {
			return errors.New("storage local dir is required for file blob storage")
		}
	default:
		return fmt.Errorf("storage blob must be %q or %q, got %q", BlobS3, BlobFile, c.Storage.Blob)
	}
	docs := strings.Trim(c.Storage.DocumentPrefix, "/")
	if docs == "" {
		return errors.New("storage document prefix is required")
	}
	if jsonPrefix := strings.Trim(c.Storage.JSONPrefix, "/"); jsonPrefix == docs || strings.HasPrefix(jsonPrefix+"/", docs+"/") {
		return fmt.Errorf("storage json prefix %q must not be inside the document prefix %q", c.Storage.JSONPrefix, c.Storage.DocumentPrefix)
	}
	if len(c.Auth.CookieSecret) < 32 {
		return errors.New("auth cookie secret must be at least 32 bytes")
	}
	if c.Auth.SessionTimeout <= 0 {
		return errors.New("auth session timeout must be > 0")
	}
	if c.Auth.RateLimitWindow <= 0 || c.Auth.MaxAttempts <= 0 {
		return errors.New("auth rate limit window and max attempts must be > 0")
	}
	return nil
}

// UsesSQLite reports whether any store lives in the sqlite database.
func (c Config) UsesSQLite() bool {
	return c.Auth.Backend == BackendSQLite || c.Questions.Backend == BackendSQLite
}

// SharePointEnabled reports whether the Graph client has enough settings to connect.
func (c Config) SharePointEnabled() bool {
	sp := c.SharePoint
	return sp.TenantID != "" && sp.ClientID != "" && sp.ClientSecret != "" && sp.SiteHost != ""
}

func loadDotEnv() {
	file, err := os.Open(".env")
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		key, value, ok := parseDotEnvLine(scanner.Text())
		if !ok {
			continue
		}
		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, value)
		}
	}
}

func parseDotEnvLine(raw string) (string, string, bool) {
	line := strings.TrimSpace(raw)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimPrefix(line, "export ")

	partsIndex := strings.Index(line, "=")
	if partsIndex <= 0 {
		return "", "", false
	}

	key := strings.TrimSpace(line[:partsIndex])
	value := strings.TrimSpace(line[partsIndex+1:])
	value = strings.Trim(value, `"'`)
	if key == "" {
		return "", "", false
	}
	return key, value, true
}
