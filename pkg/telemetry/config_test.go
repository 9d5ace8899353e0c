package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func clearOtelEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"OTEL_ENABLED", "OTEL_SERVICE_NAME", "OTEL_SERVICE_VERSION",
		"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_PROTOCOL",
		"OTEL_EXPORTER_OTLP_HEADERS", "OTEL_EXPORTER_OTLP_INSECURE",
		"OTEL_TRACES_SAMPLER", "OTEL_TRACES_SAMPLER_ARG", "OTEL_RESOURCE_ATTRIBUTES",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		clearOtelEnv(t)
		cfg := LoadFromEnv()
		assert.False(t, cfg.Enabled)
		assert.Equal(t, "rootscan", cfg.ServiceName)
		assert.Equal(t, "unknown", cfg.ServiceVersion)
		assert.Equal(t, "grpc", cfg.Protocol)
		assert.Empty(t, cfg.Headers)
	})

	t.Run("custom", func(t *testing.T) {
		clearOtelEnv(t)
		t.Setenv("OTEL_ENABLED", "TRUE")
		t.Setenv("OTEL_SERVICE_NAME", "gc-lab")
		t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4318")
		t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "http/protobuf")
		t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "Authorization=Bearer a=b, x-team=gc")
		t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")
		t.Setenv("OTEL_TRACES_SAMPLER", "traceidratio")
		t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")

		cfg := LoadFromEnv()
		assert.True(t, cfg.Enabled)
		assert.Equal(t, "gc-lab", cfg.ServiceName)
		assert.Equal(t, "http://localhost:4318", cfg.Endpoint)
		assert.Equal(t, "http/protobuf", cfg.Protocol)
		assert.Equal(t, map[string]string{"Authorization": "Bearer a=b", "x-team": "gc"}, cfg.Headers)
		assert.True(t, cfg.Insecure)
		assert.Equal(t, "traceidratio", cfg.Sampler)
		assert.Equal(t, "0.25", cfg.SamplerArg)
	})
}

func TestParseKeyValuePairs(t *testing.T) {
	tests := []struct {
		input    string
		expected map[string]string
	}{
		{"", map[string]string{}},
		{"key=value", map[string]string{"key": "value"}},
		{"a=1, b=2", map[string]string{"a": "1", "b": "2"}},
		{"token=abc==", map[string]string{"token": "abc=="}},
		{"noequals,=novalue,k=v", map[string]string{"k": "v"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, parseKeyValuePairs(tt.input), tt.input)
	}
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, (&Config{Protocol: "grpc"}).Validate())
	assert.NoError(t, (&Config{Protocol: "HTTP/protobuf", Sampler: "always_off"}).Validate())
	assert.Error(t, (&Config{Protocol: "udp"}).Validate())
	assert.Error(t, (&Config{Sampler: "sometimes"}).Validate())
}
