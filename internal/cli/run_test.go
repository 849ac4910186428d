package cli

import "testing"

func TestNewLoggerLevels(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "error"} {
		log, err := newLogger(lvl)
		if err != nil {
			t.Fatalf("level %q rejected: %v", lvl, err)
		}
		_ = log.Sync()
	}
	if _, err := newLogger("shouting"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
