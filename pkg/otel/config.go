package otel

import (
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Protocol represents OTLP transport protocol
type Protocol string

const (
	ProtocolGRPC         Protocol = "grpc"
	ProtocolHTTPProtobuf Protocol = "http/protobuf"
	ProtocolHTTPJSON     Protocol = "http/json"
)

// SignalType represents the OTEL signal type
type SignalType string

const (
	SignalTraces  SignalType = "traces"
	SignalMetrics SignalType = "metrics"
)

// ExporterConfig holds parsed OTLP exporter configuration for a signal
type ExporterConfig struct {
	Endpoint    string
	Protocol    Protocol
	Headers     map[string]string
	Timeout     time.Duration
	Insecure    bool
	Compression string
}

// env resolves configuration values. Tests substitute a map lookup for os.Getenv.
type env func(string) string

func (e env) get(key, defaultValue string) string {
	if v := e(key); v != "" {
		return v
	}
	return defaultValue
}

// signal resolves OTEL_EXPORTER_OTLP_<SIGNAL>_<suffix>, then OTEL_EXPORTER_OTLP_<suffix>.
func (e env) signal(signalUpper, suffix, defaultValue string) string {
	if v := e("OTEL_EXPORTER_OTLP_" + signalUpper + "_" + suffix); v != "" {
		return v
	}
	return e.get("OTEL_EXPORTER_OTLP_"+suffix, defaultValue)
}

// IsTracingEnabled returns true if OTEL tracing is enabled
func IsTracingEnabled() bool {
	return isTrue(os.Getenv("OTEL_TRACING_ENABLED"))
}

// IsMetricsEnabled returns true if OTEL metrics is enabled
func IsMetricsEnabled() bool {
	return isTrue(os.Getenv("OTEL_METRICS_ENABLED"))
}

// MetricExportInterval reads OTEL_METRIC_EXPORT_INTERVAL (milliseconds or Go
// duration), defaulting to 60s.
func MetricExportInterval() time.Duration {
	return parseDuration(os.Getenv("OTEL_METRIC_EXPORT_INTERVAL"), 60*time.Second)
}

// GetExporterConfig returns the exporter configuration for a specific signal type.
// Signal-specific environment variables take precedence over the base ones.
func GetExporterConfig(signal SignalType) ExporterConfig {
	return exporterConfig(signal, os.Getenv)
}

func exporterConfig(signal SignalType, e env) ExporterConfig {
	signalUpper := strings.ToUpper(string(signal))

	protocol := parseProtocol(e.signal(signalUpper, "PROTOCOL", string(ProtocolHTTPProtobuf)))

	var endpoint string
	if ep := e("OTEL_EXPORTER_OTLP_" + signalUpper + "_ENDPOINT"); ep != "" {
		// Signal endpoints are used as-is
		endpoint = normalizeEndpoint(ep, protocol)
	} else if ep := e("OTEL_EXPORTER_OTLP_ENDPOINT"); ep != "" {
		endpoint = appendSignalPath(normalizeEndpoint(ep, protocol), signal, protocol)
	} else {
		endpoint = defaultEndpoint(signal, protocol)
	}

	insecure := strings.HasPrefix(endpoint, "http://")
	if v := e.signal(signalUpper, "INSECURE", ""); v != "" {
		insecure = isTrue(v)
	}

	return ExporterConfig{
		Endpoint:    endpoint,
		Protocol:    protocol,
		Headers:     parseHeaders(e.signal(signalUpper, "HEADERS", "")),
		Timeout:     parseDuration(e.signal(signalUpper, "TIMEOUT", ""), 10*time.Second),
		Insecure:    insecure,
		Compression: e.signal(signalUpper, "COMPRESSION", ""),
	}
}

func parseProtocol(s string) Protocol {
	switch strings.ToLower(s) {
	case "grpc":
		return ProtocolGRPC
	case "http/json":
		return ProtocolHTTPJSON
	default:
		return ProtocolHTTPProtobuf
	}
}

// normalizeEndpoint strips gRPC endpoints to host:port and gives HTTP endpoints a scheme
func normalizeEndpoint(endpoint string, protocol Protocol) string {
	if protocol == ProtocolGRPC {
		endpoint = strings.TrimPrefix(endpoint, "http://")
		endpoint = strings.TrimPrefix(endpoint, "https://")
		if idx := strings.Index(endpoint, "/"); idx != -1 {
			endpoint = endpoint[:idx]
		}
		return endpoint
	}

	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	return endpoint
}

// appendSignalPath appends /v1/<signal> to HTTP base endpoints
func appendSignalPath(endpoint string, signal SignalType, protocol Protocol) string {
	if protocol == ProtocolGRPC {
		return endpoint
	}

	signalPath := "/v1/" + string(signal)

	u, err := url.Parse(endpoint)
	if err != nil {
		return strings.TrimSuffix(endpoint, "/") + signalPath
	}
	if strings.HasSuffix(u.Path, signalPath) {
		return endpoint
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + signalPath
	return u.String()
}

func defaultEndpoint(signal SignalType, protocol Protocol) string {
	if protocol == ProtocolGRPC {
		return "localhost:4317"
	}
	return "http://localhost:4318/v1/" + string(signal)
}

// isTrue checks if a string represents a true value
func isTrue(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseHeaders parses header string in format "key1=value1,key2=value2"
func parseHeaders(headerStr string) map[string]string {
	headers := make(map[string]string)
	if headerStr == "" {
		return headers
	}

	for _, pair := range strings.Split(headerStr, ",") {
		pair = strings.TrimSpace(pair)
		// Values may contain '=' (base64 credentials)
		if idx := strings.Index(pair, "="); idx > 0 {
			key := strings.TrimSpace(pair[:idx])
			headers[key] = pair[idx+1:]
			slog.Debug("Parsed OTEL header", "key", key, "value_length", len(pair)-idx-1)
		}
	}

	return headers
}

// parseDuration accepts Go durations ("10s") and plain milliseconds ("10000").
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(s); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultVal
}
