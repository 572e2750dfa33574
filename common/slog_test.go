package common

import (
	"log/slog"
	"testing"
)

func TestParseSlogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"-8":    slog.Level(-8),
	}
	for in, expected := range cases {
		got, err := ParseSlogLevel(in)
		if err != nil {
			t.Fatal(err)
		}
		if got != expected {
			t.Errorf("%s: expected %v, got %v", in, expected, got)
		}
	}
	if _, err := ParseSlogLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}
