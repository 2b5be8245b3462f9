package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Database configuration
	DBHost     string `long:"db-host" env:"DB_HOST" default:"localhost" description:"Database host"`
	DBPort     string `long:"db-port" env:"DB_PORT" default:"5432" description:"Database port"`
	DBUser     string `long:"db-user" env:"DB_USER" default:"crossposter" description:"Database user"`
	DBPassword string `long:"db-password" env:"DB_PASSWORD" default:"crossposter" description:"Database password (required)" required:"true"`
	DBName     string `long:"db-name" env:"DB_NAME" default:"crossposter" description:"Database name"`

	// Upstream feed configuration
	FeedAuthURL      string `long:"feed-auth-url" env:"FEED_AUTH_URL" default:"https://www.reddit.com/api/v1/access_token" description:"Upstream feed token endpoint"`
	FeedAPIURL       string `long:"feed-api-url" env:"FEED_API_URL" default:"https://oauth.reddit.com" description:"Upstream feed API base URL"`
	FeedClientID     string `long:"feed-client-id" env:"FEED_CLIENT_ID" description:"Upstream feed OAuth client id (required)" required:"true"`
	FeedClientSecret string `long:"feed-client-secret" env:"FEED_CLIENT_SECRET" description:"Upstream feed OAuth client secret (required)" required:"true"`
	FeedUsername     string `long:"feed-username" env:"FEED_USERNAME" description:"Upstream feed account username (required)" required:"true"`
	FeedPassword     string `long:"feed-password" env:"FEED_PASSWORD" description:"Upstream feed account password (required)" required:"true"`

	// Asset store configuration
	S3Bucket    string `long:"s3-bucket" env:"S3_BUCKET" default:"crossposter-assets" description:"S3 bucket for captured assets"`
	S3Region    string `long:"s3-region" env:"S3_REGION" default:"us-east-1" description:"S3 region"`
	S3Endpoint  string `long:"s3-endpoint" env:"S3_ENDPOINT" description:"Custom S3 endpoint for S3-compatible storage (optional)"`
	S3AccessKey string `long:"s3-access-key" env:"S3_ACCESS_KEY" description:"S3 access key (optional, uses default credential chain if empty)"`
	S3SecretKey string `long:"s3-secret-key" env:"S3_SECRET_KEY" description:"S3 secret key (optional)"`

	// Downstream publisher configuration
	PublisherURL string `long:"publisher-url" env:"PUBLISHER_URL" description:"Downstream publisher API base URL (required)" required:"true"`
	DailyBudget  int    `long:"daily-budget" env:"DAILY_BUDGET" default:"2" description:"Maximum approved publications per account per day"`

	// Application configuration
	APIAccessKey      string `long:"api-access-key" env:"API_ACCESS_KEY" description:"Access key for the management API (disabled when empty)"`
	CommunitiesDir    string `long:"communities-dir" env:"COMMUNITIES_DIR" default:"./communities" description:"Directory containing community configuration files"`
	AssetsDir         string `long:"assets-dir" env:"ASSETS_DIR" default:"./assets" description:"Directory for the local asset cache"`
	SnapshotDir       string `long:"snapshot-dir" env:"SNAPSHOT_DIR" default:"./snapshots" description:"Directory for per-community snapshot files"`
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"3" description:"Number of background workers for community processing"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"30" description:"Scheduler interval in seconds"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Crossposter/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBHost:            raw.DBHost,
		DBPort:            raw.DBPort,
		DBUser:            raw.DBUser,
		DBPassword:        raw.DBPassword,
		DBName:            raw.DBName,
		FeedAuthURL:       raw.FeedAuthURL,
		FeedAPIURL:        raw.FeedAPIURL,
		FeedClientID:      raw.FeedClientID,
		FeedClientSecret:  raw.FeedClientSecret,
		FeedUsername:      raw.FeedUsername,
		FeedPassword:      raw.FeedPassword,
		S3Bucket:          raw.S3Bucket,
		S3Region:          raw.S3Region,
		S3Endpoint:        raw.S3Endpoint,
		S3AccessKey:       raw.S3AccessKey,
		S3SecretKey:       raw.S3SecretKey,
		PublisherURL:      raw.PublisherURL,
		DailyBudget:       raw.DailyBudget,
		APIAccessKey:      raw.APIAccessKey,
		CommunitiesDir:    raw.CommunitiesDir,
		AssetsDir:         raw.AssetsDir,
		SnapshotDir:       raw.SnapshotDir,
		Port:              raw.Port,
		WorkerCount:       raw.WorkerCount,
		SchedulerInterval: raw.SchedulerInterval,
		UserAgent:         raw.UserAgent,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

// SetForTesting replaces the process configuration. Tests only.
func SetForTesting(cfg *Cfg) {
	globalCfg = cfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
