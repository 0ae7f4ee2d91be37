package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies AMDPACK_[SECTION]_[KEY] environment overrides.
// Values that fail to parse are ignored.
func ApplyEnvOverrides(cfg *Config) {
	setEnvString(&cfg.StoreRoot, "AMDPACK_STORE_ROOT")
	setEnvList(&cfg.Themes, "AMDPACK_THEMES")

	setEnvInt(&cfg.Trace.ReadConcurrency, "AMDPACK_TRACE_READ_CONCURRENCY")

	setEnvBoolPtr(&cfg.Minify.Enabled, "AMDPACK_MINIFY_ENABLED")
	setEnvInt(&cfg.Minify.Workers, "AMDPACK_MINIFY_WORKERS")
	setEnvString(&cfg.Minify.Target, "AMDPACK_MINIFY_TARGET")

	setEnvDuration(&cfg.Interpreter.Timeout, "AMDPACK_INTERPRETER_TIMEOUT")

	setEnvBool(&cfg.History.Enabled, "AMDPACK_HISTORY_ENABLED")
	setEnvString(&cfg.History.Path, "AMDPACK_HISTORY_PATH")

	setEnvString(&cfg.Observability.MetricsAddr, "AMDPACK_OBSERVABILITY_METRICS_ADDR")
	setEnvString(&cfg.Observability.OTLPEndpoint, "AMDPACK_OBSERVABILITY_OTLP_ENDPOINT")

	setEnvDuration(&cfg.Watch.Debounce, "AMDPACK_WATCH_DEBOUNCE")
	setEnvDuration(&cfg.Watch.RebuildInterval, "AMDPACK_WATCH_REBUILD_INTERVAL")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = val
	}
}

func setEnvList(target *[]string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = strings.Split(val, ",")
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.ToLower(val)); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = b
		}
	}
}

func setEnvBoolPtr(target **bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.ToLower(val)); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = &b
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = d
		}
	}
}
