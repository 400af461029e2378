package config

import (
	"flag"
	"os"
	"time"

	"github.com/ndrozd/lmsubmit/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the LMS API (default from Config)
//	-t string   access token
//	-d string   path to the local submission database
//	-s string   staging directory
//	-i int      store poll interval in seconds
//	-o string   OTLP tracing endpoint (empty disables tracing)
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-t", "-d", "-s", "-i", "-o"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.APIEndpoint, "a", cfg.APIEndpoint, "base URL of the LMS API")
	fs.StringVar(&cfg.AccessToken, "t", cfg.AccessToken, "access token for API calls")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "path to the local submission database")
	fs.StringVar(&cfg.StagingDir, "s", cfg.StagingDir, "staging directory for submitted files")
	pollInterval := fs.Int("i", int(cfg.PollInterval.Seconds()), "store poll interval (in seconds)")
	fs.StringVar(&cfg.TracingEndpoint, "o", cfg.TracingEndpoint, "OTLP tracing endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.PollInterval = time.Duration(*pollInterval) * time.Second
}
