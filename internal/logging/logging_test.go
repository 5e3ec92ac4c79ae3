package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"bogus": slog.LevelInfo,
		"":      slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestStageTagsRecords(t *testing.T) {
	var buf bytes.Buffer
	prev := L()
	Set(New("text", "info", &buf).With("app", "canforge"))
	defer Set(prev)

	Stage("gate").Info("gate_ok")
	out := buf.String()
	if !strings.Contains(out, "stage=gate") {
		t.Fatalf("record missing stage attribute: %s", out)
	}
	if !strings.Contains(out, "app=canforge") {
		t.Fatalf("record missing app attribute: %s", out)
	}
}

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New("json", "debug", &buf)
	l.Debug("probe")
	out := buf.String()
	if !strings.HasPrefix(out, "{") {
		t.Fatalf("expected JSON output, got: %s", out)
	}
}
