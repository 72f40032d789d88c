package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load([]string{"--target", "http://bidder.example.com/bid", "--rate", "50", "--requests", "100"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.TargetURL != "http://bidder.example.com/bid" {
		t.Errorf("TargetURL = %q", cfg.TargetURL)
	}
	if cfg.Timeout != 2*time.Second {
		t.Errorf("Timeout = %v, want 2s", cfg.Timeout)
	}
	if cfg.MaxInFlight != 512 {
		t.Errorf("MaxInFlight = %d, want 512", cfg.MaxInFlight)
	}
	if cfg.VideoProportion != 0.1 {
		t.Errorf("VideoProportion = %v, want 0.1", cfg.VideoProportion)
	}
	if cfg.MobileProportion != 0.2 {
		t.Errorf("MobileProportion = %v, want 0.2", cfg.MobileProportion)
	}
	if cfg.OutputDir != "bidprobe-out" {
		t.Errorf("OutputDir = %q, want bidprobe-out", cfg.OutputDir)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.Arrival.Model != ArrivalModelUniform {
		t.Errorf("Arrival.Model = %q, want uniform", cfg.Arrival.Model)
	}
	if cfg.Tracing.Protocol != "grpc" {
		t.Errorf("Tracing.Protocol = %q, want grpc", cfg.Tracing.Protocol)
	}
	if cfg.Tracing.SampleRate != 1.0 {
		t.Errorf("Tracing.SampleRate = %v, want 1.0", cfg.Tracing.SampleRate)
	}
}

func TestLoadNoArgsRequestsHelp(t *testing.T) {
	_, err := NewLoader().Load(nil)
	if !errors.Is(err, ErrHelpRequested) {
		t.Fatalf("Load(nil) error = %v, want ErrHelpRequested", err)
	}
}

func TestLoadHelpFlag(t *testing.T) {
	_, err := NewLoader().Load([]string{"--help"})
	if !errors.Is(err, ErrHelpRequested) {
		t.Fatalf("Load(--help) error = %v, want ErrHelpRequested", err)
	}
}

func TestLoadHeaders(t *testing.T) {
	cfg, err := NewLoader().Load([]string{
		"--target", "http://bidder.example.com/bid",
		"--header", "x-publisher=acme",
		"--header", "Authorization=Bearer tok",
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.Headers["X-Publisher"]; got != "acme" {
		t.Errorf("X-Publisher header = %q, want acme", got)
	}
	if got := cfg.Headers["Authorization"]; got != "Bearer tok" {
		t.Errorf("Authorization header = %q", got)
	}
}

func TestLoadMalformedHeader(t *testing.T) {
	_, err := NewLoader().Load([]string{
		"--target", "http://bidder.example.com/bid",
		"--header", "no-separator",
	})
	if err == nil {
		t.Fatal("Load() with malformed header should return error")
	}
}

func TestLoadConfigFileJSON(t *testing.T) {
	path := writeConfigFile(t, "probe.json", `{
		"target": "http://bidder.example.com/bid",
		"rate": 200,
		"duration": "45s",
		"maxInflight": 64,
		"videoProportion": 0.3,
		"userIdsFile": "ids.txt",
		"outputDir": "run-output",
		"headers": {"x-tenant": "demo"},
		"arrival": "poisson",
		"thresholds": ["good:rate >= 0.95"],
		"tracing": {"endpoint": "collector:4317", "sampleRate": 0.5, "propagate": false}
	}`)

	cfg, err := NewLoader().Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.TargetURL != "http://bidder.example.com/bid" {
		t.Errorf("TargetURL = %q", cfg.TargetURL)
	}
	if cfg.Rate != 200 {
		t.Errorf("Rate = %d, want 200", cfg.Rate)
	}
	if cfg.Duration != 45*time.Second {
		t.Errorf("Duration = %v, want 45s", cfg.Duration)
	}
	if cfg.MaxInFlight != 64 {
		t.Errorf("MaxInFlight = %d, want 64", cfg.MaxInFlight)
	}
	if cfg.VideoProportion != 0.3 {
		t.Errorf("VideoProportion = %v, want 0.3", cfg.VideoProportion)
	}
	if cfg.UserIDsFile != "ids.txt" {
		t.Errorf("UserIDsFile = %q", cfg.UserIDsFile)
	}
	if cfg.OutputDir != "run-output" {
		t.Errorf("OutputDir = %q", cfg.OutputDir)
	}
	if got := cfg.Headers["X-Tenant"]; got != "demo" {
		t.Errorf("X-Tenant header = %q, want demo", got)
	}
	if cfg.Arrival.Model != ArrivalModelPoisson {
		t.Errorf("Arrival.Model = %q, want poisson", cfg.Arrival.Model)
	}
	if len(cfg.Thresholds) != 1 || cfg.Thresholds[0] != "good:rate >= 0.95" {
		t.Errorf("Thresholds = %v", cfg.Thresholds)
	}
	if cfg.Tracing.Endpoint != "collector:4317" {
		t.Errorf("Tracing.Endpoint = %q", cfg.Tracing.Endpoint)
	}
	if cfg.Tracing.SampleRate != 0.5 {
		t.Errorf("Tracing.SampleRate = %v, want 0.5", cfg.Tracing.SampleRate)
	}
	if cfg.Tracing.Propagate == nil || *cfg.Tracing.Propagate {
		t.Errorf("Tracing.Propagate = %v, want explicit false", cfg.Tracing.Propagate)
	}
}

func TestLoadConfigFileYAML(t *testing.T) {
	path := writeConfigFile(t, "probe.yaml", `
target: http://bidder.example.com/bid
rate: 80
requests: 500
arrival:
  model: poisson
tracing:
  endpoint: collector:4318
  protocol: http
`)

	cfg, err := NewLoader().Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Rate != 80 {
		t.Errorf("Rate = %d, want 80", cfg.Rate)
	}
	if cfg.Requests != 500 {
		t.Errorf("Requests = %d, want 500", cfg.Requests)
	}
	if cfg.Arrival.Model != ArrivalModelPoisson {
		t.Errorf("Arrival.Model = %q, want poisson", cfg.Arrival.Model)
	}
	if cfg.Tracing.Protocol != "http" {
		t.Errorf("Tracing.Protocol = %q, want http", cfg.Tracing.Protocol)
	}
}

func TestLoadFlagsOverrideConfigFile(t *testing.T) {
	path := writeConfigFile(t, "probe.json", `{
		"target": "http://file.example.com/bid",
		"rate": 10,
		"requests": 100,
		"outputDir": "from-file"
	}`)

	cfg, err := NewLoader().Load([]string{
		"--config", path,
		"--rate", "99",
		"--output-dir", "from-flag",
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.TargetURL != "http://file.example.com/bid" {
		t.Errorf("TargetURL = %q, want file value to survive", cfg.TargetURL)
	}
	if cfg.Rate != 99 {
		t.Errorf("Rate = %d, want flag value 99", cfg.Rate)
	}
	if cfg.OutputDir != "from-flag" {
		t.Errorf("OutputDir = %q, want from-flag", cfg.OutputDir)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := NewLoader().Load([]string{"--config", "/nonexistent/probe.json"})
	if err == nil {
		t.Fatal("Load() with missing config file should return error")
	}
}

func TestLoadTracingFlags(t *testing.T) {
	cfg, err := NewLoader().Load([]string{
		"--target", "http://bidder.example.com/bid",
		"--otlp-endpoint", "collector:4317",
		"--otlp-protocol", "HTTP",
		"--trace-sample-rate", "0.25",
		"--otlp-insecure",
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Tracing.Endpoint != "collector:4317" {
		t.Errorf("Tracing.Endpoint = %q", cfg.Tracing.Endpoint)
	}
	if cfg.Tracing.Protocol != "http" {
		t.Errorf("Tracing.Protocol = %q, want lowercased http", cfg.Tracing.Protocol)
	}
	if cfg.Tracing.SampleRate != 0.25 {
		t.Errorf("Tracing.SampleRate = %v, want 0.25", cfg.Tracing.SampleRate)
	}
	if !cfg.Tracing.Insecure {
		t.Error("Tracing.Insecure = false, want true")
	}
}

func TestLoadDurationNumberInConfig(t *testing.T) {
	path := writeConfigFile(t, "probe.json", `{"target": "http://bidder.example.com/bid", "rate": 5, "duration": 30}`)

	cfg, err := NewLoader().Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Duration != 30*time.Second {
		t.Errorf("Duration = %v, want numeric seconds to parse as 30s", cfg.Duration)
	}
}
