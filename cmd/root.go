// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cmd is the mount command: it parses flags and an optional config
// file via cobra/viper, builds the caches and FHIR client, discovers the
// server's capability statement, and hands the resulting fuse.Server to
// fuse.Mount (§6 "Mount invocation").
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/HealthSamurai/fhir-fuse/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// config mirrors the flags/config-file surface of §6. Field names match the
// flag names (dashes become nothing) so viper.Unmarshal can bind them
// directly.
type config struct {
	TTLResource   time.Duration `mapstructure:"ttl-resource"`
	TTLHistory    time.Duration `mapstructure:"ttl-history"`
	TTLSearch     time.Duration `mapstructure:"ttl-search"`
	TTLCapability time.Duration `mapstructure:"ttl-capability"`
	HTTPTimeout   time.Duration `mapstructure:"http-timeout"`
	RateLimit     float64       `mapstructure:"rate-limit"`
	MaxListPages  int           `mapstructure:"max-list-pages"`
	LogLevel      string        `mapstructure:"log-level"`
	LogFormat     string        `mapstructure:"log-format"`
	LogFile       string        `mapstructure:"log-file"`
	Foreground    bool          `mapstructure:"foreground"`
	MetricsAddr   string        `mapstructure:"metrics-addr"`
}

var (
	cfgFile   string
	mountCfg  config
	bindErr   error
	configErr error
)

const (
	// offlineBaseURL is the special fhir_base_url that mounts without a
	// server, per §6 "the special string offline runs without a server".
	offlineBaseURL = "offline"
)

var rootCmd = &cobra.Command{
	Use:   "fhir-fuse [flags] <mountpoint> <fhir_base_url>",
	Short: "Project a remote FHIR REST server as a POSIX filesystem",
	Long: `fhir-fuse mounts a FHIR server's resources, history, searches, and
operations as files and directories under mountpoint. Pass the special
base URL "offline" to mount with no live server.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if configErr != nil {
			return configErr
		}
		return runMount(cmd.Context(), args[0], args[1], &mountCfg)
	},
}

// Execute runs the root command, exiting with the codes fixed by §6: 0 on
// clean unmount, 1 on mount failure, 2 when a networked mount's capability
// statement is unreachable.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if ec, ok := err.(exitCoder); ok {
			os.Exit(ec.ExitCode())
		}
		os.Exit(1)
	}
}

// exitCoder lets a mount-time error carry a specific exit code (§6 "Exit
// codes"), distinguishing a capability-statement failure (2) from every
// other mount failure (1).
type exitCoder interface {
	error
	ExitCode() int
}

type capabilityUnreachableError struct{ cause error }

func (e *capabilityUnreachableError) Error() string {
	return fmt.Sprintf("fetching capability statement: %v", e.cause)
}
func (e *capabilityUnreachableError) ExitCode() int { return 2 }

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to a YAML/TOML/JSON config file")
	flags.Duration("ttl-resource", 5*time.Second, "Resource cache TTL")
	flags.Duration("ttl-history", 0, "History cache TTL (accepted for symmetry with §6; history is immutable-once-loaded and does not expire, per the round-trip and history-immutability properties)")
	flags.Duration("ttl-search", 0, "Search cache TTL (accepted for symmetry with §6; a search directory's contents are stable until rmdir, per the search-stability property)")
	flags.Duration("ttl-capability", 0, "Capability statement refresh interval (accepted for symmetry with §6; the catalog is fixed for the mount's lifetime)")
	flags.Duration("http-timeout", 30*time.Second, "Per-request HTTP timeout")
	flags.Float64("rate-limit", 0, "Outbound requests/sec (0 = unlimited)")
	flags.Int("max-list-pages", 0, "Cap on Bundle pages followed per search/history/listing (0 = unbounded)")
	flags.String("log-level", "info", "trace|debug|info|warn|error|off")
	flags.String("log-format", "text", "text|json")
	flags.String("log-file", "", "Rotated log file path (rotated via lumberjack when set)")
	flags.Bool("foreground", true, "Run in the foreground; when false, daemonizes via jacobsa/daemonize")
	flags.String("metrics-addr", "", "If set, serve Prometheus metrics on this address")

	bindErr = viper.BindPFlags(flags)
}

func initConfig() {
	viper.SetEnvPrefix("FHIR_FUSE")
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			configErr = fmt.Errorf("reading config file: %w", err)
			return
		}
	}

	if err := viper.Unmarshal(&mountCfg); err != nil {
		configErr = fmt.Errorf("parsing configuration: %w", err)
	}
}

func initLogger(cfg *config) error {
	format := logger.FormatText
	if cfg.LogFormat == "json" {
		format = logger.FormatJSON
	}

	w, err := logWriter(cfg)
	if err != nil {
		return err
	}
	logger.Init(w, format, cfg.LogLevel)
	return nil
}
