package otel

import (
	"context"
	"os"
	"runtime"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// ServiceName is the name of this service
const ServiceName = "departureboard"

// Version is set at build time via -ldflags
// e.g., go build -ldflags="-X departureboard/pkg/otel.Version=1.2.3"
var Version = "dev"

// instanceID is resolved once so traces and metrics agree.
var instanceID = resolveInstanceID(os.Getenv)

// resolveInstanceID prefers OTEL_SERVICE_INSTANCE_ID, then the hostname, then a random id.
func resolveInstanceID(e env) string {
	if id := e("OTEL_SERVICE_INSTANCE_ID"); id != "" {
		return id
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return ServiceName + "-" + uuid.NewString()
}

// NewResource creates the resource shared by the tracing and metrics providers.
func NewResource() (*resource.Resource, error) {
	e := env(os.Getenv)
	return resource.New(context.Background(),
		// OTEL_SERVICE_NAME and OTEL_RESOURCE_ATTRIBUTES
		resource.WithFromEnv(),
		resource.WithHost(),
		resource.WithProcess(),
		resource.WithAttributes(
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(Version),
			semconv.ServiceNamespace(e.get("OTEL_SERVICE_NAMESPACE", "sl-departures")),
			semconv.ServiceInstanceID(instanceID),
			semconv.DeploymentEnvironment(e.get("OTEL_DEPLOYMENT_ENVIRONMENT", "production")),

			semconv.ProcessRuntimeName("go"),
			semconv.ProcessRuntimeVersion(runtime.Version()),
			semconv.ProcessRuntimeDescription("Go runtime"),

			semconv.TelemetrySDKName("opentelemetry"),
			semconv.TelemetrySDKLanguageGo,
		),
	)
}
