// Package config parses cmd/canforge's flags, applies CANFORGE_*
// environment variable overrides (flag wins over env), and validates the
// result.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the fully resolved runtime configuration for one canforge
// invocation.
type Config struct {
	IRPath         string
	OutDir         string
	Loops          int
	MasterSeed     uint64
	FailPolicy     string
	ToolchainHint  string
	CompileTimeout time.Duration
	MetricsAddr    string
	LogFormat      string
	LogLevel       string
}

// ParseFlags parses os.Args (via the flag package), applies environment
// overrides for any flag left at its default, validates the result, and
// returns it. showVersion is true when --version was passed, in which
// case the caller should print the version and exit before using cfg.
func ParseFlags() (cfg *Config, showVersion bool, err error) {
	c := &Config{}
	irPath := flag.String("ir", "", "Path to the IR YAML document")
	out := flag.String("out", "./canforge-out", "Output root directory")
	loops := flag.Int("loops", 1000, "Number of roundtrip verification loops per campaign")
	seed := flag.Uint64("seed", 1, "Master seed for the roundtrip verifier")
	failPolicy := flag.String("fail-policy", "continue-on-fail", "Roundtrip failure policy: continue-on-fail|stop-on-fail")
	toolchain := flag.String("toolchain", "auto", "C toolchain: auto|gcc|clang|msvc")
	compileTimeout := flag.Duration("compile-timeout", 10*time.Second, "Per-compile-step timeout")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	showVersionFlag := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	c.IRPath = *irPath
	c.OutDir = *out
	c.Loops = *loops
	c.MasterSeed = *seed
	c.FailPolicy = *failPolicy
	c.ToolchainHint = *toolchain
	c.CompileTimeout = *compileTimeout
	c.MetricsAddr = *metricsAddr
	c.LogFormat = *logFormat
	c.LogLevel = *logLevel

	if err := applyEnvOverrides(c, setFlags); err != nil {
		return nil, *showVersionFlag, fmt.Errorf("environment override: %w", err)
	}
	if *showVersionFlag {
		return c, true, nil
	}
	if err := c.validate(); err != nil {
		return nil, false, fmt.Errorf("configuration: %w", err)
	}
	return c, false, nil
}

// validate performs semantic validation of the parsed configuration; it
// never touches the filesystem or network.
func (c *Config) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if c.IRPath == "" {
		return errors.New("--ir is required")
	}
	switch c.FailPolicy {
	case "continue-on-fail", "stop-on-fail":
	default:
		return fmt.Errorf("invalid fail-policy: %s", c.FailPolicy)
	}
	switch c.ToolchainHint {
	case "auto", "gcc", "clang", "msvc":
	default:
		return fmt.Errorf("invalid toolchain: %s", c.ToolchainHint)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.LogFormat)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.LogLevel)
	}
	if c.Loops <= 0 {
		return fmt.Errorf("loops must be > 0 (got %d)", c.Loops)
	}
	if c.CompileTimeout <= 0 {
		return errors.New("compile-timeout must be > 0")
	}
	return nil
}

// applyEnvOverrides maps CANFORGE_* environment variables onto c, unless
// the corresponding flag was explicitly set (flag wins over env).
func applyEnvOverrides(c *Config, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }

	if _, ok := set["ir"]; !ok {
		if v, ok := get("CANFORGE_IR"); ok && v != "" {
			c.IRPath = v
		}
	}
	if _, ok := set["out"]; !ok {
		if v, ok := get("CANFORGE_OUT"); ok && v != "" {
			c.OutDir = v
		}
	}
	if _, ok := set["loops"]; !ok {
		if v, ok := get("CANFORGE_LOOPS"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.Loops = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid CANFORGE_LOOPS: %w", err)
			}
		}
	}
	if _, ok := set["seed"]; !ok {
		if v, ok := get("CANFORGE_SEED"); ok && v != "" {
			if n, err := strconv.ParseUint(v, 10, 64); err == nil {
				c.MasterSeed = n
			} else if firstErr == nil {
				firstErr = fmt.Errorf("invalid CANFORGE_SEED: %w", err)
			}
		}
	}
	if _, ok := set["fail-policy"]; !ok {
		if v, ok := get("CANFORGE_FAIL_POLICY"); ok && v != "" {
			c.FailPolicy = v
		}
	}
	if _, ok := set["toolchain"]; !ok {
		if v, ok := get("CANFORGE_TOOLCHAIN"); ok && v != "" {
			c.ToolchainHint = v
		}
	}
	if _, ok := set["compile-timeout"]; !ok {
		if v, ok := get("CANFORGE_COMPILE_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.CompileTimeout = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid CANFORGE_COMPILE_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("CANFORGE_METRICS_ADDR"); ok {
			c.MetricsAddr = v
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("CANFORGE_LOG_FORMAT"); ok && v != "" {
			c.LogFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("CANFORGE_LOG_LEVEL"); ok && v != "" {
			c.LogLevel = v
		}
	}
	return firstErr
}
