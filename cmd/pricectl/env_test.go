package main

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestOpenEnvInstallsGlobalLogger(t *testing.T) {
	for _, key := range []string{
		"DB_DRIVER", "DATABASE_URL", "TRACKER_TIMEZONE", "TRACKER_SCHEDULE",
		"TRACKER_MAX_ATTEMPTS", "TRACKER_RETRY_DELAY", "TRACKER_REQUEST_DELAY",
		"TRACKER_ENABLED", "POKEMON_TCG_RPS",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "pricectl.db"))

	before := zap.L()

	e, err := openEnv()
	if err != nil {
		t.Fatalf("openEnv() error = %v", err)
	}

	if zap.L() != e.log {
		t.Error("zap.L() is not the pricectl logger; migration logs would be dropped")
	}

	e.close()
	if zap.L() != before {
		t.Error("close() did not restore the previous global logger")
	}
}
