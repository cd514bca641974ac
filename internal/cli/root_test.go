package cli

import (
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"crawl", "migrate", "status"} {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %s not registered: %v", name, err)
		}
	}

	for _, flag := range []string{"start-block", "max-pages", "no-limit", "offset", "save", "since-latest", "metrics-addr"} {
		if crawlCmd.Flags().Lookup(flag) == nil {
			t.Errorf("crawl flag --%s missing", flag)
		}
	}
}
