package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "bidprobe",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Target and traffic shape
	flags.String("target", "", "Bid endpoint URL to probe")
	flags.IntP("rate", "r", 0, "Target requests per second (required)")
	flags.IntP("requests", "n", 0, "Total number of requests to send (0 means until duration)")
	flags.DurationP("duration", "d", 0, "How long to run the probe (e.g. 30s, 1m)")
	flags.Duration("timeout", 2*time.Second, "Per-request timeout")
	flags.Int("max-inflight", 512, "Upper bound on concurrent in-flight requests")
	flags.String("arrival-model", string(ArrivalModelUniform), "Arrival model to use when pacing requests (uniform or poisson)")
	flags.StringSlice("header", nil, "Additional request header in key=value form")

	// Traffic mix
	flags.Float64("video-proportion", 0.1, "Fraction of requests carrying a video impression")
	flags.Float64("mobile-proportion", 0.2, "Fraction of requests presented as mobile app traffic")
	flags.String("user-ids-file", "", "Newline-delimited pool of user ids to cycle through")
	flags.String("encrypted-price", "", "Fixed token substituted for winning-price macros")
	flags.Int64("seed", 0, "Random seed for reproducible traffic (0 means time-based)")

	// Output flags
	flags.String("output-dir", "bidprobe-out", "Directory for category logs and the snippet preview page")
	flags.Bool("json-output", false, "Emit JSON formatted summary")
	flags.Bool("dashboard", false, "Show live terminal dashboard")
	flags.String("log-level", "info", "Log level: debug, info, warn, or error")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Threshold flags
	flags.StringSlice("threshold", nil, "Outcome thresholds (repeatable, e.g., 'good:rate >= 0.95')")

	// Tracing flags
	flags.String("otlp-endpoint", "", "OTLP exporter endpoint (enables tracing)")
	flags.String("otlp-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.Float64("trace-sample-rate", 1.0, "Trace sampling rate between 0.0 and 1.0")
	flags.Bool("otlp-insecure", false, "Disable TLS for the OTLP exporter")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config,
// overriding values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("target") {
		val, err := fs.GetString("target")
		if err != nil {
			return err
		}
		cfg.TargetURL = strings.TrimSpace(val)
	}
	if fs.Changed("rate") {
		val, err := fs.GetInt("rate")
		if err != nil {
			return err
		}
		cfg.Rate = val
	}
	if fs.Changed("requests") {
		val, err := fs.GetInt("requests")
		if err != nil {
			return err
		}
		cfg.Requests = val
	}
	if fs.Changed("duration") {
		val, err := fs.GetDuration("duration")
		if err != nil {
			return err
		}
		cfg.Duration = val
	}
	if fs.Changed("timeout") {
		val, err := fs.GetDuration("timeout")
		if err != nil {
			return err
		}
		cfg.Timeout = val
	}
	if fs.Changed("max-inflight") {
		val, err := fs.GetInt("max-inflight")
		if err != nil {
			return err
		}
		cfg.MaxInFlight = val
	}
	if fs.Changed("arrival-model") {
		val, err := fs.GetString("arrival-model")
		if err != nil {
			return err
		}
		cfg.Arrival.Model = ArrivalModel(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("video-proportion") {
		val, err := fs.GetFloat64("video-proportion")
		if err != nil {
			return err
		}
		cfg.VideoProportion = val
	}
	if fs.Changed("mobile-proportion") {
		val, err := fs.GetFloat64("mobile-proportion")
		if err != nil {
			return err
		}
		cfg.MobileProportion = val
	}
	if fs.Changed("user-ids-file") {
		val, err := fs.GetString("user-ids-file")
		if err != nil {
			return err
		}
		cfg.UserIDsFile = strings.TrimSpace(val)
	}
	if fs.Changed("encrypted-price") {
		val, err := fs.GetString("encrypted-price")
		if err != nil {
			return err
		}
		cfg.EncryptedPrice = val
	}
	if fs.Changed("seed") {
		val, err := fs.GetInt64("seed")
		if err != nil {
			return err
		}
		cfg.Seed = val
	}
	if fs.Changed("output-dir") {
		val, err := fs.GetString("output-dir")
		if err != nil {
			return err
		}
		cfg.OutputDir = strings.TrimSpace(val)
	}
	if fs.Changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		cfg.JSONOutput = val
	}
	if fs.Changed("dashboard") {
		val, err := fs.GetBool("dashboard")
		if err != nil {
			return err
		}
		cfg.Dashboard = val
	}
	if fs.Changed("log-level") {
		val, err := fs.GetString("log-level")
		if err != nil {
			return err
		}
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}

	vals, err := fs.GetStringSlice("header")
	if err != nil {
		return err
	}
	if len(vals) > 0 {
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for _, entry := range vals {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("header must be in key=value format: %s", entry)
			}
			key := http.CanonicalHeaderKey(strings.TrimSpace(parts[0]))
			if key == "" {
				return fmt.Errorf("header key cannot be empty")
			}
			cfg.Headers[key] = strings.TrimSpace(parts[1])
		}
	}

	if fs.Changed("otlp-endpoint") {
		val, err := fs.GetString("otlp-endpoint")
		if err != nil {
			return err
		}
		cfg.Tracing.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("otlp-protocol") {
		val, err := fs.GetString("otlp-protocol")
		if err != nil {
			return err
		}
		cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("trace-sample-rate") {
		val, err := fs.GetFloat64("trace-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if fs.Changed("otlp-insecure") {
		val, err := fs.GetBool("otlp-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}

	return nil
}
