package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// MemoryLimit caps the engine heap in bytes. Zero leaves the engine
	// default in place.
	MemoryLimit uint32
	// MaxStackSize caps the engine's script stack in bytes.
	MaxStackSize uint32
	// EvalTimeout bounds each script execution.
	EvalTimeout time.Duration
	// ScriptsDir is where external scripts are discovered.
	ScriptsDir string
	// HotReload enables the scripts directory watcher.
	HotReload bool
	// MaxConcurrent caps in-flight script executions. Zero means unlimited.
	MaxConcurrent int
}

// New loads configuration from environment variables, reading a .env file
// first when one exists. Every setting has a working default.
func New() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, relying on environment variables")
	}

	return &Config{
		MemoryLimit:   envUint32("QJS_MEMORY_LIMIT", 32*1024*1024),
		MaxStackSize:  envUint32("QJS_MAX_STACK_SIZE", 1024*1024),
		EvalTimeout:   envDuration("QJS_EVAL_TIMEOUT", 5*time.Second),
		ScriptsDir:    envString("QJS_SCRIPTS_DIR", "scripts"),
		HotReload:     envBool("QJS_HOT_RELOAD", true),
		MaxConcurrent: envInt("QJS_MAX_CONCURRENT", 0),
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envUint32(key string, def uint32) uint32 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		slog.Warn("Invalid numeric value in environment, using default", "key", key, "value", v)
		return def
	}
	return uint32(n)
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Invalid numeric value in environment, using default", "key", key, "value", v)
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("Invalid boolean value in environment, using default", "key", key, "value", v)
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("Invalid duration value in environment, using default", "key", key, "value", v)
		return def
	}
	return d
}
