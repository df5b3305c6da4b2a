package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "redactor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRunVersion(t *testing.T) {
	assert.NoError(t, run([]string{"-version"}))
}

func TestRunHealthCheck(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
	}))
	defer healthy.Close()
	assert.NoError(t, run([]string{"-health-check", healthy.URL}))

	degraded := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer degraded.Close()
	assert.ErrorContains(t, run([]string{"-health-check", degraded.URL}), "HTTP 503")
}

func TestRunStartupFailuresReturnErrors(t *testing.T) {
	dir := t.TempDir()
	noEnv := filepath.Join(dir, "missing.env")

	t.Run("audit store", func(t *testing.T) {
		cfg := writeConfig(t, t.TempDir(),
			"audit:\n  enabled: true\n  driver: sqlite3\n  database_url: "+filepath.Join(dir, "no", "such", "dir", "audit.db")+"\n")

		err := run([]string{"-env-file", noEnv, "-config", cfg})
		assert.ErrorContains(t, err, "audit store")
	})

	t.Run("retention schedule", func(t *testing.T) {
		cfg := writeConfig(t, t.TempDir(),
			"audit:\n  enabled: true\n  driver: sqlite3\n  database_url: "+filepath.Join(dir, "audit.db")+
				"\n  retention_days: 30\n  retention_schedule: not-a-schedule\n")

		err := run([]string{"-env-file", noEnv, "-config", cfg})
		assert.ErrorContains(t, err, "audit retention")
	})

	t.Run("bad flag", func(t *testing.T) {
		assert.Error(t, run([]string{"-no-such-flag"}))
	})
}
