// Package envutil reads typed configuration values from the environment,
// falling back to a default (and logging a warning) on anything malformed.
package envutil

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Warner interface {
	Warn(msg string, keysAndValues ...interface{})
}

func String(name, def string, log Warner) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	return v
}

func Int(name string, def int, log Warner) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		if log != nil {
			log.Warn("invalid int env var, using default", "name", name, "value", v, "default", def)
		}
		return def
	}
	return i
}

func Float(name string, def float64, log Warner) float64 {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		if log != nil {
			log.Warn("invalid float env var, using default", "name", name, "value", v, "default", def)
		}
		return def
	}
	return f
}

func Bool(name string, def bool, log Warner) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		if log != nil {
			log.Warn("invalid bool env var, using default", "name", name, "value", v, "default", def)
		}
		return def
	}
	return b
}

// DurationMillis reads a value expressed in milliseconds (matching the spec's
// configuration keys, e.g. dispatchinterval) and returns a time.Duration.
func DurationMillis(name string, def time.Duration, log Warner) time.Duration {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		if log != nil {
			log.Warn("invalid duration(ms) env var, using default", "name", name, "value", v, "default", def)
		}
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

// DurationSeconds reads a value expressed in seconds.
func DurationSeconds(name string, def time.Duration, log Warner) time.Duration {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	s, err := strconv.Atoi(v)
	if err != nil {
		if log != nil {
			log.Warn("invalid duration(s) env var, using default", "name", name, "value", v, "default", def)
		}
		return def
	}
	return time.Duration(s) * time.Second
}
