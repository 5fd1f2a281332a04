package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/lightning-etl/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

const (
	aiccMapServer = "https://fire.ak.blm.gov/arcgis/rest/services/AICC_Services/MapServer"

	// queryParams requests every strike with all fields as GeoJSON in one call.
	queryParams = "/query?where=1%3D1&outFields=*&returnGeometry=true&f=geojson"

	DefaultCurrentURL  = aiccMapServer + "/0" + queryParams
	DefaultPreviousURL = aiccMapServer + "/1" + queryParams
)

// Config holds all job settings, populated from environment variables.
type Config struct {
	Current  domain.Feed
	Previous domain.Feed

	PGString     string
	OgrBinary    string
	OgrExtraArgs []string
	FetchTimeout time.Duration
	LoadTimeout  time.Duration
	VerifyLoad   bool

	KafkaBrokers []string
	KafkaTopic   string

	PushgatewayURL string

	RunInterval     time.Duration
	HTTPAddr        string
	ShutdownTimeout time.Duration

	LogLevel  string
	LogFormat string
}

// Feeds returns the configured feeds in run order.
func (c *Config) Feeds() []domain.Feed {
	return []domain.Feed{c.Current, c.Previous}
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	fetchTimeout, err := parseDuration("FETCH_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}
	loadTimeout, err := parseDuration("LOAD_TIMEOUT", "0")
	if err != nil {
		return nil, err
	}
	runInterval, err := parseDuration("RUN_INTERVAL", "0")
	if err != nil {
		return nil, err
	}
	verifyLoad, err := parseBool("VERIFY_LOAD", false)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Current: domain.Feed{
			Name:        domain.FeedCurrent,
			URL:         sharedcfg.EnvOrDefault("LIGHTNING_URL", DefaultCurrentURL),
			StagingPath: sharedcfg.EnvOrDefault("LIGHTNING_TEMPFILE", "/tmp/lightning.geojson"),
			Table:       sharedcfg.EnvOrDefault("LIGHTNING_TABLE", "lightning"),
		},
		Previous: domain.Feed{
			Name:        domain.FeedPrevious,
			URL:         sharedcfg.EnvOrDefault("LIGHTNING_YESTERDAY_URL", DefaultPreviousURL),
			StagingPath: sharedcfg.EnvOrDefault("LIGHTNING_YESTERDAY_TEMPFILE", "/tmp/lightning_yesterday.geojson"),
			Table:       sharedcfg.EnvOrDefault("LIGHTNING_YESTERDAY_TABLE", "lightning_yesterday"),
		},

		PGString:     sharedcfg.EnvOrDefault("LIGHTNING_PG_STRING", "dbname=gisdata host=localhost user=geoserver"),
		OgrBinary:    sharedcfg.EnvOrDefault("OGR2OGR_BIN", "ogr2ogr"),
		OgrExtraArgs: strings.Fields(os.Getenv("OGR2OGR_EXTRA_ARGS")),
		FetchTimeout: fetchTimeout,
		LoadTimeout:  loadTimeout,
		VerifyLoad:   verifyLoad,

		KafkaBrokers: sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "lightning-refreshed"),

		PushgatewayURL: os.Getenv("PUSHGATEWAY_URL"),

		RunInterval:     runInterval,
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		ShutdownTimeout: shutdownTimeout,

		LogLevel:  logLevel(sharedcfg.EnvOrDefault("LOG_LEVEL", sharedcfg.EnvOrDefault("NODE_LOG_LEVEL", "info"))),
		LogFormat: sharedcfg.EnvOrDefault("LOG_FORMAT", "text"),
	}

	for _, f := range cfg.Feeds() {
		if f.URL == "" {
			return nil, fmt.Errorf("%s feed URL is required", f.Name)
		}
		if f.StagingPath == "" {
			return nil, fmt.Errorf("%s feed staging path is required", f.Name)
		}
	}
	if cfg.Current.StagingPath == cfg.Previous.StagingPath {
		return nil, errors.New("LIGHTNING_TEMPFILE and LIGHTNING_YESTERDAY_TEMPFILE must differ")
	}
	if cfg.Current.Table != "" && cfg.Current.Table == cfg.Previous.Table {
		return nil, errors.New("LIGHTNING_TABLE and LIGHTNING_YESTERDAY_TABLE must differ")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// parseDuration reads a non-negative duration. "0" disables the setting.
func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s", key)
	}
	return b, nil
}

// logLevel folds the npm-style names older deployments set in NODE_LOG_LEVEL
// onto the levels the shared logger understands.
func logLevel(s string) string {
	switch l := strings.ToLower(strings.TrimSpace(s)); l {
	case "verbose", "silly", "trace":
		return "debug"
	default:
		return l
	}
}
