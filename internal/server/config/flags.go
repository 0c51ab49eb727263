package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/resumepress/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-r string   Redis address
//	-s string   HMAC secret key
//	-w string   webhook secret
//	-x string   extraction service base URL
//	-k string   extraction service API key
//	-l string   public callback base URL
//	-n string   CDN purge endpoint URL
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components. Durations are
// configured via the JSON overlay only.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-d", "-r", "-s", "-w", "-x", "-k", "-l", "-n", "-u", "-p", "-b", "-g", "-e",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.WebhookSecret, "w", config.WebhookSecret, "webhook secret")
	fs.StringVar(&config.ExtractionBaseURL, "x", config.ExtractionBaseURL, "extraction service base URL")
	fs.StringVar(&config.ExtractionAPIKey, "k", config.ExtractionAPIKey, "extraction service API key")
	fs.StringVar(&config.CallbackBaseURL, "l", config.CallbackBaseURL, "public callback base URL")
	fs.StringVar(&config.CDNPurgeURL, "n", config.CDNPurgeURL, "CDN purge endpoint URL")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
