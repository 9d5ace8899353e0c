package telemetry

import (
	"fmt"
	"os"
	"strings"
)

// Config holds OpenTelemetry settings, read from the standard OTEL_*
// environment variables.
type Config struct {
	// Enabled turns tracing on. OTEL_ENABLED.
	Enabled bool

	// ServiceName defaults to "rootscan". OTEL_SERVICE_NAME.
	ServiceName string

	// ServiceVersion defaults to "unknown". OTEL_SERVICE_VERSION.
	ServiceVersion string

	// Endpoint is the OTLP collector, with or without scheme.
	// OTEL_EXPORTER_OTLP_ENDPOINT.
	Endpoint string

	// Protocol is grpc or http/protobuf. OTEL_EXPORTER_OTLP_PROTOCOL.
	Protocol string

	// Headers are sent with every export, "k1=v1,k2=v2".
	// OTEL_EXPORTER_OTLP_HEADERS.
	Headers map[string]string

	// Insecure disables TLS. OTEL_EXPORTER_OTLP_INSECURE.
	Insecure bool

	// Sampler and SamplerArg follow OTEL_TRACES_SAMPLER and
	// OTEL_TRACES_SAMPLER_ARG. Empty means always_on.
	Sampler    string
	SamplerArg string

	// ResourceAttrs are extra resource attributes, "k1=v1,k2=v2".
	// OTEL_RESOURCE_ATTRIBUTES.
	ResourceAttrs map[string]string
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() *Config {
	return &Config{
		Enabled:        envBool("OTEL_ENABLED"),
		ServiceName:    getEnvOrDefault("OTEL_SERVICE_NAME", "rootscan"),
		ServiceVersion: getEnvOrDefault("OTEL_SERVICE_VERSION", "unknown"),
		Endpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Protocol:       getEnvOrDefault("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"),
		Headers:        parseKeyValuePairs(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Insecure:       envBool("OTEL_EXPORTER_OTLP_INSECURE"),
		Sampler:        os.Getenv("OTEL_TRACES_SAMPLER"),
		SamplerArg:     os.Getenv("OTEL_TRACES_SAMPLER_ARG"),
		ResourceAttrs:  parseKeyValuePairs(os.Getenv("OTEL_RESOURCE_ATTRIBUTES")),
	}
}

// Validate rejects protocols and samplers Init cannot build.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Protocol) {
	case "", "grpc", "http", "http/protobuf":
	default:
		return fmt.Errorf("unsupported OTLP protocol: %s", c.Protocol)
	}
	if _, ok := samplers[c.Sampler]; !ok && c.Sampler != "" {
		return fmt.Errorf("unsupported sampler: %s", c.Sampler)
	}
	return nil
}

func envBool(key string) bool {
	return strings.EqualFold(os.Getenv(key), "true")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseKeyValuePairs parses "k1=v1,k2=v2". Values may contain '='.
func parseKeyValuePairs(s string) map[string]string {
	result := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		result[key] = strings.TrimSpace(value)
	}
	return result
}
