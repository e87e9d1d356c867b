// Package config loads the registry's configuration from an optional
// registry.yaml overlay plus the environment, following the teacher's
// internal/app/config.go + envutil pattern: every key is optional,
// malformed values fall back to documented defaults and log a warning
// (never an error). Environment variables always win over the yaml
// overlay, which in turn wins over the hardcoded default.
package config

import (
	"os"
	"time"

	"github.com/opencast/servicereg/internal/pkg/envutil"
	"github.com/opencast/servicereg/internal/pkg/logger"
	"gopkg.in/yaml.v3"
)

const (
	minDispatchInterval = 1000 * time.Millisecond
)

// Config is the full set of spec §6 configuration keys plus the ambient
// keys needed to run cmd/registryd (DB DSN, Redis address, log mode).
type Config struct {
	// dispatchinterval (ms, default 5000, floor 1000, 0 disables)
	DispatchInterval time.Duration
	// heartbeat.interval (s, default 60, 0 disables)
	HeartbeatInterval time.Duration
	// max.attempts (default 1): failures before WARNING -> ERROR
	MaxAttemptsBeforeError int
	// jobstats.collect (default true)
	JobStatsCollect bool
	// org.opencastproject.statistics.services.max_job_age (days, default 14)
	MaxJobAgeDays int
	// org.opencastproject.server.maxload (default = cores, handled per host)
	DefaultMaxLoad float64
	// org.opencastproject.server.url / org.opencastproject.jobs.url
	ServerURL string
	JobsURL   string

	// Ambient, not part of spec §6 but required to run the process.
	LogMode      string
	PostgresDSN  string
	RedisAddr    string
	RedisChannel string
}

// overlay is the shape of the optional registry.yaml file. Every field is a
// pointer so an absent key leaves the hardcoded default untouched rather
// than zeroing it out.
type overlay struct {
	DispatchIntervalMS   *int64   `yaml:"dispatchinterval_ms"`
	HeartbeatIntervalSec *int64   `yaml:"heartbeat_interval_seconds"`
	MaxAttempts          *int     `yaml:"max_attempts"`
	JobStatsCollect      *bool    `yaml:"jobstats_collect"`
	MaxJobAgeDays        *int     `yaml:"max_job_age_days"`
	DefaultMaxLoad       *float64 `yaml:"default_max_load"`
	ServerURL            *string  `yaml:"server_url"`
	JobsURL              *string  `yaml:"jobs_url"`

	LogMode      *string `yaml:"log_mode"`
	PostgresDSN  *string `yaml:"postgres_dsn"`
	RedisAddr    *string `yaml:"redis_addr"`
	RedisChannel *string `yaml:"redis_channel"`
}

// loadOverlay reads the optional yaml config file at path. A missing file is
// not an error: the overlay simply contributes no defaults. A present but
// malformed file logs a warning and is otherwise ignored, matching the
// "never fail the process over a config quirk" posture the teacher's own
// envutil helpers follow.
func loadOverlay(path string, log *logger.Logger) overlay {
	var o overlay
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) && log != nil {
			log.Warn("could not read config overlay file, ignoring", "path", path, "error", err)
		}
		return o
	}
	if err := yaml.Unmarshal(raw, &o); err != nil {
		if log != nil {
			log.Warn("could not parse config overlay file, ignoring", "path", path, "error", err)
		}
		return overlay{}
	}
	return o
}

// Load reads Config from an optional registry.yaml overlay and the
// environment (env wins), logging a warning for every malformed value and
// falling back to its documented default.
func Load(log *logger.Logger) Config {
	path := envutil.String("REGISTRY_CONFIG_FILE", "registry.yaml", log)
	ov := loadOverlay(path, log)

	dispatchDefault := 5000 * time.Millisecond
	if ov.DispatchIntervalMS != nil {
		dispatchDefault = time.Duration(*ov.DispatchIntervalMS) * time.Millisecond
	}
	heartbeatDefault := 60 * time.Second
	if ov.HeartbeatIntervalSec != nil {
		heartbeatDefault = time.Duration(*ov.HeartbeatIntervalSec) * time.Second
	}
	maxAttemptsDefault := 1
	if ov.MaxAttempts != nil {
		maxAttemptsDefault = *ov.MaxAttempts
	}
	jobStatsDefault := true
	if ov.JobStatsCollect != nil {
		jobStatsDefault = *ov.JobStatsCollect
	}
	maxJobAgeDefault := 14
	if ov.MaxJobAgeDays != nil {
		maxJobAgeDefault = *ov.MaxJobAgeDays
	}
	var maxLoadDefault float64
	if ov.DefaultMaxLoad != nil {
		maxLoadDefault = *ov.DefaultMaxLoad
	}
	serverURLDefault := "http://localhost:8080"
	if ov.ServerURL != nil {
		serverURLDefault = *ov.ServerURL
	}
	var jobsURLDefault string
	if ov.JobsURL != nil {
		jobsURLDefault = *ov.JobsURL
	}
	logModeDefault := "development"
	if ov.LogMode != nil {
		logModeDefault = *ov.LogMode
	}
	var postgresDSNDefault string
	if ov.PostgresDSN != nil {
		postgresDSNDefault = *ov.PostgresDSN
	}
	var redisAddrDefault string
	if ov.RedisAddr != nil {
		redisAddrDefault = *ov.RedisAddr
	}
	redisChannelDefault := "registry-events"
	if ov.RedisChannel != nil {
		redisChannelDefault = *ov.RedisChannel
	}

	cfg := Config{
		DispatchInterval:       envutil.DurationMillis("DISPATCHINTERVAL", dispatchDefault, log),
		HeartbeatInterval:      envutil.DurationSeconds("HEARTBEAT_INTERVAL", heartbeatDefault, log),
		MaxAttemptsBeforeError: envutil.Int("MAX_ATTEMPTS", maxAttemptsDefault, log),
		JobStatsCollect:        envutil.Bool("JOBSTATS_COLLECT", jobStatsDefault, log),
		MaxJobAgeDays:          envutil.Int("ORG_OPENCASTPROJECT_STATISTICS_SERVICES_MAX_JOB_AGE", maxJobAgeDefault, log),
		DefaultMaxLoad:         envutil.Float("ORG_OPENCASTPROJECT_SERVER_MAXLOAD", maxLoadDefault, log),
		ServerURL:              envutil.String("ORG_OPENCASTPROJECT_SERVER_URL", serverURLDefault, log),
		JobsURL:                envutil.String("ORG_OPENCASTPROJECT_JOBS_URL", jobsURLDefault, log),

		LogMode:      envutil.String("LOG_MODE", logModeDefault, log),
		PostgresDSN:  envutil.String("POSTGRES_DSN", postgresDSNDefault, log),
		RedisAddr:    envutil.String("REDIS_ADDR", redisAddrDefault, log),
		RedisChannel: envutil.String("REDIS_CHANNEL", redisChannelDefault, log),
	}

	// Boundary behaviours (spec §8): dispatchInterval < 1000ms clamps to
	// 1000ms; == 0 disables the task entirely; heartbeat < 0 clamps to
	// default. Unlike the original, the log message correctly says
	// "milliseconds" (spec §9(a): the "minutes" wording is a known bug in
	// the source, not replicated here).
	if cfg.DispatchInterval != 0 && cfg.DispatchInterval < minDispatchInterval {
		if log != nil {
			log.Warn("dispatchinterval below floor, clamping",
				"configured_ms", cfg.DispatchInterval.Milliseconds(),
				"floor_ms", minDispatchInterval.Milliseconds())
		}
		cfg.DispatchInterval = minDispatchInterval
	}
	if cfg.HeartbeatInterval < 0 {
		cfg.HeartbeatInterval = 60 * time.Second
	}
	if cfg.MaxAttemptsBeforeError <= 0 {
		cfg.MaxAttemptsBeforeError = 1
	}
	return cfg
}

// DispatcherEnabled reports whether the periodic dispatcher task should run.
func (c Config) DispatcherEnabled() bool { return c.DispatchInterval > 0 }

// HeartbeatEnabled reports whether the periodic heartbeat task should run.
func (c Config) HeartbeatEnabled() bool { return c.HeartbeatInterval > 0 }
