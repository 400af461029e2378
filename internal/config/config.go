// Package config holds runtime settings for the lmsubmit CLI.
package config

import "time"

// Config holds runtime settings.
//
// Fields:
//   - APIEndpoint: base URL of the LMS REST API.
//   - AccessToken: bearer token attached to API calls.
//   - DatabasePath: path to the local submission database.
//   - StagingDir: directory submitted files are copied into before upload.
//   - SessionID / SharedContainerID: identifiers of the background
//     transfer session, shared between the app and extension processes.
//   - PollInterval: how often the CLI re-fetches the store for progress.
//   - TracingEndpoint: OTLP endpoint; empty disables tracing.
type Config struct {
	APIEndpoint       string
	AccessToken       string
	DatabasePath      string
	StagingDir        string
	SessionID         string
	SharedContainerID string
	PollInterval      time.Duration
	TracingEndpoint   string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.APIEndpoint = "http://127.0.0.1:8080/api/v1"
	c.DatabasePath = "submissions.db"
	c.StagingDir = "staging"
	c.SessionID = "com.lmsubmit.file-uploads"
	c.SharedContainerID = "group.lmsubmit"
	c.PollInterval = time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present). Later sources
// take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJSON(cfg)
	parseFlags(cfg)
	return cfg
}
