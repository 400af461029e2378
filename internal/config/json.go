package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/ndrozd/lmsubmit/internal/flagx"
)

// JSONConfig is a DTO used exclusively for JSON unmarshalling. Durations
// are given as strings like "2s".
type JSONConfig struct {
	APIEndpoint       string `json:"api_endpoint"`
	AccessToken       string `json:"access_token"`
	DatabasePath      string `json:"database_path"`
	StagingDir        string `json:"staging_dir"`
	SessionID         string `json:"session_id"`
	SharedContainerID string `json:"shared_container_id"`
	PollInterval      string `json:"poll_interval"`
	TracingEndpoint   string `json:"tracing_endpoint"`
}

// parseJSON overlays Config with values loaded from a JSON file named by
// the -c/-config flags. Missing flag means no JSON is loaded. Read or
// unmarshal errors panic (caller should recover if desired).
func parseJSON(cfg *Config) {
	jsonConfigFile := flagx.JSONConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JSONConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.APIEndpoint != "" {
		cfg.APIEndpoint = jc.APIEndpoint
	}
	if jc.AccessToken != "" {
		cfg.AccessToken = jc.AccessToken
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.StagingDir != "" {
		cfg.StagingDir = jc.StagingDir
	}
	if jc.SessionID != "" {
		cfg.SessionID = jc.SessionID
	}
	if jc.SharedContainerID != "" {
		cfg.SharedContainerID = jc.SharedContainerID
	}
	if jc.PollInterval != "" {
		d, err := time.ParseDuration(jc.PollInterval)
		if err != nil {
			panic(err)
		}
		cfg.PollInterval = d
	}
	if jc.TracingEndpoint != "" {
		cfg.TracingEndpoint = jc.TracingEndpoint
	}
}
