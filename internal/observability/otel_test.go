package observability

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func firewatchConfig() Config {
	return Config{ServiceName: "firewatch", ServiceVersion: "0.3.0", Environment: "staging"}
}

func TestNewResource(t *testing.T) {
	res, err := newResource(firewatchConfig())
	require.NoError(t, err)

	attrs := res.Set()
	for key, want := range map[attribute.Key]string{
		"service.name":           "firewatch",
		"service.version":        "0.3.0",
		"deployment.environment": "staging",
	} {
		got, ok := attrs.Value(key)
		require.True(t, ok, key)
		assert.Equal(t, want, got.AsString(), key)
	}
}

func TestInitMeterProvider_BacksDomainMeters(t *testing.T) {
	mp, err := InitMeterProvider(firewatchConfig())
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	defer func() { assert.NoError(t, mp.Shutdown(context.Background(), logger)) }()

	assert.NotNil(t, mp.Exporter())
	assert.Same(t, mp.provider, otel.GetMeterProvider())

	api, err := InitMetrics(logger)
	require.NoError(t, err)
	assert.NotNil(t, api.requestCounter)
	assert.NotNil(t, api.requestDuration)

	scrape, err := InitScrapeMetrics(logger)
	require.NoError(t, err)
	assert.NotNil(t, scrape.runCounter)
	assert.NotNil(t, scrape.insertedCounter)

	ctx := context.Background()
	api.RecordRequest(ctx, "fire", "get", 200, 3*time.Millisecond)
	scrape.RecordRun(ctx, 2*time.Second, 120, 4, nil, "schedule")
}

func TestBuildTLSConfig_CollectorFiles(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "collector-ca.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("firewatch"), 0o600))

	tests := []struct {
		name    string
		cfg     OTLPExporterConfig
		wantErr string
	}{
		{name: "no files", cfg: OTLPExporterConfig{}},
		{name: "missing ca", cfg: OTLPExporterConfig{TLSCertFile: filepath.Join(dir, "absent.pem")}, wantErr: "failed to read OTLP TLS CA file"},
		{name: "ca not pem", cfg: OTLPExporterConfig{TLSCertFile: garbage}, wantErr: "failed to parse OTLP TLS CA file"},
		{name: "client cert without key", cfg: OTLPExporterConfig{TLSClientCertFile: garbage}, wantErr: "OTLP TLS client cert and key must both be set"},
		{name: "client key without cert", cfg: OTLPExporterConfig{TLSClientKeyFile: garbage}, wantErr: "OTLP TLS client cert and key must both be set"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tlsConfig, err := buildTLSConfig(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, tlsConfig)
		})
	}
}

func TestTraceSamplerForRatio(t *testing.T) {
	parent := func(sampled bool) context.Context {
		cfg := trace.SpanContextConfig{TraceID: trace.TraceID{9}, SpanID: trace.SpanID{9}, Remote: true}
		if sampled {
			cfg.TraceFlags = trace.FlagsSampled
		}
		return trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(cfg))
	}

	tests := []struct {
		name  string
		ratio float64
		ctx   context.Context
		want  sdktrace.SamplingDecision
	}{
		{name: "disabled", ratio: 0, ctx: context.Background(), want: sdktrace.Drop},
		{name: "negative", ratio: -1, ctx: parent(true), want: sdktrace.Drop},
		{name: "always", ratio: 1, ctx: context.Background(), want: sdktrace.RecordAndSample},
		{name: "partial follows sampled caller", ratio: 0.25, ctx: parent(true), want: sdktrace.RecordAndSample},
		{name: "partial follows unsampled caller", ratio: 0.25, ctx: parent(false), want: sdktrace.Drop},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := traceSamplerForRatio(tt.ratio).ShouldSample(sdktrace.SamplingParameters{
				ParentContext: tt.ctx,
				TraceID:       trace.TraceID{1},
				Name:          "GET /fires",
			}).Decision
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveTarget(t *testing.T) {
	target, err := resolveTarget(OTLPExporterConfig{
		Endpoint:         "https://collector.example.com:4318",
		Insecure:         true,
		Compression:      "GZIP",
		RetryEnabled:     true,
		RetryMaxAttempts: 0,
	})
	require.NoError(t, err)
	assert.True(t, target.isURL)
	assert.Nil(t, target.tls)
	assert.True(t, target.gzip)
	assert.False(t, target.retry, "retry needs at least one attempt")

	target, err = resolveTarget(OTLPExporterConfig{
		Endpoint:         "collector:4317",
		RetryEnabled:     true,
		RetryMaxAttempts: 3,
	})
	require.NoError(t, err)
	assert.False(t, target.isURL)
	require.NotNil(t, target.tls)
	assert.True(t, target.retry)

	_, err = resolveTarget(OTLPExporterConfig{Endpoint: "collector:4317", TLSClientCertFile: "cert.pem"})
	assert.Error(t, err)
}
