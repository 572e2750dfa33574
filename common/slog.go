package common

import (
	"fmt"
	"log/slog"
	"strings"
)

// SlogResetLevel sets the default slog level and returns a function
// restoring the previous one, pairs well with defer.
// Use like:
// func Test123(t *testing.T) {
//     defer common.SlogResetLevel(slog.LevelWarn + 1)()
func SlogResetLevel(level slog.Level) (reset func()) {
	oldLevel := slog.SetLogLoggerLevel(level)
	return func() {
		slog.SetLogLoggerLevel(oldLevel)
	}
}

// ParseSlogLevel accepts debug, info, warn, error, or a number.
func ParseSlogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(s)))); err != nil {
		var n int
		if _, serr := fmt.Sscanf(s, "%d", &n); serr == nil {
			return slog.Level(n), nil
		}
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}
