package profiling

import (
	"log/slog"
	"os"
	"strings"

	"departureboard/pkg/otel"

	"github.com/grafana/pyroscope-go"
)

// Config describes a Pyroscope profiler session.
type Config struct {
	Enabled           bool
	ServerAddress     string
	ApplicationName   string
	BasicAuthUser     string
	BasicAuthPassword string
	Tags              map[string]string
}

// ConfigFromEnv reads PYROSCOPE_* variables. Extra tags come from
// PYROSCOPE_TAGS as "key=value,key=value".
func ConfigFromEnv() Config {
	cfg := Config{
		Enabled:           isTrue(os.Getenv("PYROSCOPE_PROFILING_ENABLED")),
		ServerAddress:     getEnv("PYROSCOPE_SERVER_ADDRESS", "http://localhost:4040"),
		ApplicationName:   getEnv("PYROSCOPE_APPLICATION_NAME", otel.ServiceName),
		BasicAuthUser:     os.Getenv("PYROSCOPE_BASIC_AUTH_USER"),
		BasicAuthPassword: os.Getenv("PYROSCOPE_BASIC_AUTH_PASSWORD"),
		Tags: map[string]string{
			"service": otel.ServiceName,
			"version": otel.Version,
		},
	}

	for _, pair := range strings.Split(os.Getenv("PYROSCOPE_TAGS"), ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if ok && k != "" {
			cfg.Tags[k] = v
		}
	}
	return cfg
}

// InitProfiling starts continuous profiling when enabled and returns a stop function.
func InitProfiling() (func(), error) {
	cfg := ConfigFromEnv()
	if !cfg.Enabled {
		slog.Debug("Pyroscope profiling is disabled")
		return func() {}, nil
	}

	pc := pyroscope.Config{
		ApplicationName: cfg.ApplicationName,
		ServerAddress:   cfg.ServerAddress,
		Logger:          pyroscope.StandardLogger,
		Tags:            cfg.Tags,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
	}

	if cfg.BasicAuthUser != "" && cfg.BasicAuthPassword != "" {
		pc.BasicAuthUser = cfg.BasicAuthUser
		pc.BasicAuthPassword = cfg.BasicAuthPassword
	}

	profiler, err := pyroscope.Start(pc)
	if err != nil {
		slog.Warn("Failed to start Pyroscope profiler", "error", err)
		return func() {}, nil
	}

	slog.Debug("Pyroscope profiling started", "server", cfg.ServerAddress, "application", cfg.ApplicationName)

	return func() {
		if err := profiler.Stop(); err != nil {
			slog.Error("Error stopping Pyroscope profiler", "error", err)
		} else {
			slog.Debug("Pyroscope profiler stopped")
		}
	}, nil
}

// getEnv returns the value of an environment variable or a default value if not set
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// isTrue checks if a string represents a true value
func isTrue(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
