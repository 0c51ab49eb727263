package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/resumepress/internal/flagx"
	"github.com/dmitrijs2005/resumepress/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "30s" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON configuration
// files. After unmarshalling, its fields are copied into the runtime Config
// struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddr string `json:"endpoint_addr"`
	DatabaseDSN  string `json:"database_dsn"`
	RedisAddr    string `json:"redis_addr"`

	SecretKey     string `json:"secret_key"`
	WebhookSecret string `json:"webhook_secret"`

	ExtractionBaseURL string `json:"extraction_base_url"`
	ExtractionAPIKey  string `json:"extraction_api_key"`
	CallbackBaseURL   string `json:"callback_base_url"`

	CDNPurgeURL string `json:"cdn_purge_url"`
	CDNToken    string `json:"cdn_token"`

	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`

	UploadTokenValidityDuration timex.Duration `json:"upload_token_validity_duration"`
	PresignValidityDuration     timex.Duration `json:"presign_validity_duration"`
	BookmarkValidityDuration    timex.Duration `json:"bookmark_validity_duration"`
	SnapshotCacheTTL            timex.Duration `json:"snapshot_cache_ttl"`
	SweepInterval               timex.Duration `json:"sweep_interval"`

	MaxAttempts       int `json:"max_attempts"`
	MaxTransientPolls int `json:"max_transient_polls"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path is taken from the -c or -config command-line flags; if
// neither is set, no JSON file is loaded. If the file cannot be read or
// contains invalid JSON, the function panics: a broken config file should
// stop the process, not degrade it.
//
// Zero values in the JSON file leave the corresponding defaults untouched,
// so a partial overlay is safe.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	setIfNotEmpty := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}

	setIfNotEmpty(&config.EndpointAddr, c.EndpointAddr)
	setIfNotEmpty(&config.DatabaseDSN, c.DatabaseDSN)
	setIfNotEmpty(&config.RedisAddr, c.RedisAddr)
	setIfNotEmpty(&config.SecretKey, c.SecretKey)
	setIfNotEmpty(&config.WebhookSecret, c.WebhookSecret)
	setIfNotEmpty(&config.ExtractionBaseURL, c.ExtractionBaseURL)
	setIfNotEmpty(&config.ExtractionAPIKey, c.ExtractionAPIKey)
	setIfNotEmpty(&config.CallbackBaseURL, c.CallbackBaseURL)
	setIfNotEmpty(&config.CDNPurgeURL, c.CDNPurgeURL)
	setIfNotEmpty(&config.CDNToken, c.CDNToken)
	setIfNotEmpty(&config.S3RootUser, c.S3RootUser)
	setIfNotEmpty(&config.S3RootPassword, c.S3RootPassword)
	setIfNotEmpty(&config.S3Bucket, c.S3Bucket)
	setIfNotEmpty(&config.S3Region, c.S3Region)
	setIfNotEmpty(&config.S3BaseEndpoint, c.S3BaseEndpoint)

	if c.UploadTokenValidityDuration.Duration != 0 {
		config.UploadTokenValidityDuration = c.UploadTokenValidityDuration.Duration
	}
	if c.PresignValidityDuration.Duration != 0 {
		config.PresignValidityDuration = c.PresignValidityDuration.Duration
	}
	if c.BookmarkValidityDuration.Duration != 0 {
		config.BookmarkValidityDuration = c.BookmarkValidityDuration.Duration
	}
	if c.SnapshotCacheTTL.Duration != 0 {
		config.SnapshotCacheTTL = c.SnapshotCacheTTL.Duration
	}
	if c.SweepInterval.Duration != 0 {
		config.SweepInterval = c.SweepInterval.Duration
	}
	if c.MaxAttempts != 0 {
		config.MaxAttempts = c.MaxAttempts
	}
	if c.MaxTransientPolls != 0 {
		config.MaxTransientPolls = c.MaxTransientPolls
	}
}
