package config

import (
	"testing"
	"time"
)

func baseConfig() *Config {
	return &Config{
		IRPath:         "engine.ir.yaml",
		OutDir:         "./out",
		Loops:          100,
		MasterSeed:     1,
		FailPolicy:     "continue-on-fail",
		ToolchainHint:  "auto",
		CompileTimeout: time.Second,
		LogFormat:      "text",
		LogLevel:       "info",
	}
}

func TestConfigValidateOK(t *testing.T) {
	if err := baseConfig().validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Config)
	}{
		{"missingIR", func(c *Config) { c.IRPath = "" }},
		{"badFailPolicy", func(c *Config) { c.FailPolicy = "x" }},
		{"badToolchain", func(c *Config) { c.ToolchainHint = "x" }},
		{"badLogFormat", func(c *Config) { c.LogFormat = "x" }},
		{"badLogLevel", func(c *Config) { c.LogLevel = "x" }},
		{"badLoops", func(c *Config) { c.Loops = 0 }},
		{"badCompileTimeout", func(c *Config) { c.CompileTimeout = 0 }},
	}
	for _, tc := range tests {
		c := baseConfig()
		tc.mod(c)
		if err := c.validate(); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestApplyEnvOverridesSkipsExplicitFlags(t *testing.T) {
	t.Setenv("CANFORGE_LOOPS", "500")
	t.Setenv("CANFORGE_SEED", "42")

	c := baseConfig()
	c.Loops = 100
	set := map[string]struct{}{"loops": {}}
	if err := applyEnvOverrides(c, set); err != nil {
		t.Fatalf("applyEnvOverrides: %v", err)
	}
	if c.Loops != 100 {
		t.Fatalf("Loops = %d, want 100 (flag should win over env)", c.Loops)
	}
	if c.MasterSeed != 42 {
		t.Fatalf("MasterSeed = %d, want 42 (env should apply when flag unset)", c.MasterSeed)
	}
}

func TestApplyEnvOverridesRejectsBadValue(t *testing.T) {
	t.Setenv("CANFORGE_LOOPS", "not-a-number")
	c := baseConfig()
	if err := applyEnvOverrides(c, map[string]struct{}{}); err == nil {
		t.Fatal("expected an error for a non-numeric CANFORGE_LOOPS")
	}
}
