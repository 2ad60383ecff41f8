package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
	"github.com/nfrund/parley/internal/config"
	"github.com/nfrund/parley/internal/logging"
)

// ConfigForTests loads the .env.test file from the project root if one
// exists, fills in safe defaults otherwise, and returns a valid config.
// This is the definitive way to get configuration for integration tests.
func ConfigForTests(t *testing.T) *config.Config {
	t.Helper()

	// Find project root by looking for go.mod to reliably locate .env.test
	path, _ := os.Getwd()
	for {
		if _, err := os.Stat(filepath.Join(path, "go.mod")); err == nil {
			break
		}
		if path == filepath.Dir(path) {
			t.Fatalf("could not find project root with go.mod")
		}
		path = filepath.Dir(path)
	}

	if env, err := godotenv.Read(filepath.Join(path, ".env.test")); err == nil {
		// t.Setenv scopes the variables to this test.
		for key, value := range env {
			t.Setenv(key, value)
		}
	}

	defaults := map[string]string{
		"SURREAL_URL":    "ws://localhost:8000/rpc",
		"SURREAL_NS":     "test",
		"SURREAL_DB":     "test",
		"SESSION_SECRET": "test-session-secret",
	}
	for key, value := range defaults {
		if os.Getenv(key) == "" {
			t.Setenv(key, value)
		}
	}

	logging.New()

	return config.New()
}
