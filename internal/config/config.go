package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

type ArrivalConfig struct {
	Model ArrivalModel `mapstructure:"model"`
}

// Config is the full probe run configuration.
type Config struct {
	TargetURL        string            `mapstructure:"target"`
	Headers          map[string]string `mapstructure:"headers"`
	Rate             int               `mapstructure:"rate"`
	Requests         int               `mapstructure:"requests"`
	Duration         time.Duration     `mapstructure:"duration"`
	Timeout          time.Duration     `mapstructure:"timeout"`
	MaxInFlight      int               `mapstructure:"max_inflight"`
	VideoProportion  float64           `mapstructure:"video_proportion"`
	MobileProportion float64           `mapstructure:"mobile_proportion"`
	UserIDsFile      string            `mapstructure:"user_ids_file"`
	EncryptedPrice   string            `mapstructure:"encrypted_price"`
	OutputDir        string            `mapstructure:"output_dir"`
	Seed             int64             `mapstructure:"seed"`
	JSONOutput       bool              `mapstructure:"json_output"`
	Dashboard        bool              `mapstructure:"dashboard"`
	LogLevel         string            `mapstructure:"log_level"`
	ConfigFile       string            `mapstructure:"-"`
	Arrival          ArrivalConfig     `mapstructure:"arrival"`
	Thresholds       []string          `mapstructure:"thresholds"`
	Tracing          TracingConfig     `mapstructure:"tracing"`
}

// TracingConfig controls the OpenTelemetry exporter.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   *bool   `mapstructure:"propagate"`
}

// Enabled reports whether an exporter endpoint is configured, either
// directly or through the standard OTLP environment variable.
func (t TracingConfig) Enabled() bool {
	if strings.TrimSpace(t.Endpoint) != "" {
		return true
	}
	return os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate reports whether W3C trace headers are injected into
// outgoing requests. Defaults to the enabled state unless overridden.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string
	var warnings []string

	if strings.TrimSpace(c.TargetURL) == "" {
		issues = append(issues, "target is required (use --help for usage information)")
	}
	if c.Rate <= 0 {
		issues = append(issues, "rate must be > 0")
	}
	if c.Requests <= 0 && c.Duration <= 0 {
		issues = append(issues, "a stop condition is required: set requests and/or duration")
	}
	if c.Requests < 0 {
		issues = append(issues, "requests must be >= 0")
	}
	if c.Duration < 0 {
		issues = append(issues, "duration must be >= 0")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.MaxInFlight < 1 {
		issues = append(issues, "max-inflight must be >= 1")
	}
	if c.VideoProportion < 0 || c.VideoProportion > 1 {
		issues = append(issues, "video-proportion must be between 0 and 1")
	}
	if c.MobileProportion < 0 || c.MobileProportion > 1 {
		issues = append(issues, "mobile-proportion must be between 0 and 1")
	}
	if c.VideoProportion+c.MobileProportion > 1 {
		issues = append(issues, "video-proportion and mobile-proportion must not sum above 1")
	}
	if c.Dashboard && c.JSONOutput {
		issues = append(issues, "dashboard and json-output are mutually exclusive")
	}

	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "", "debug", "info", "warn", "error":
	default:
		issues = append(issues, fmt.Sprintf("log-level %q is not supported", c.LogLevel))
	}

	model := c.Arrival.Model
	if model == "" {
		model = ArrivalModelUniform
	}
	switch model {
	case ArrivalModelUniform, ArrivalModelPoisson:
	default:
		issues = append(issues, fmt.Sprintf("arrival model %q is not supported", model))
	}

	// Security warning for high rates against a live exchange.
	if c.Rate > 5000 {
		warnings = append(warnings, fmt.Sprintf("WARNING: High rate configured (%d QPS). Ensure you have authorization to probe the target system.", c.Rate))
	}
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, w)
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}
