package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/herrenlos/internal/municipality"
)

const twoMunicipalities = "Gemeinde,xmin,ymin,xmax,ymax,Kontakt\n" +
	"Aarau,2635000,1250000,2637000,1252000,info@aarau.ch\n" +
	"Baden,2664200,1257000,2667200,1260000,info@baden.ch\n"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// setupEnv points the CLI at a fake feature service and a temporary journal.
// Aarau answers with the fixture, Baden with HTTP 503.
func setupEnv(t *testing.T) (dir, csvPath string) {
	t.Helper()
	body, err := os.ReadFile("../../testdata/fixtures/arcgis/aarau.json")
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Query().Get("geometry"), "2664200") {
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	dir = t.TempDir()
	csvPath = filepath.Join(dir, "gemeinden.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(twoMunicipalities), 0o644))

	t.Setenv("HERRENLOS_SERVICE_URL", srv.URL)
	t.Setenv("HERRENLOS_MIN_INTERVAL", "0s")
	t.Setenv("HERRENLOS_JOURNAL_DSN", filepath.Join(dir, "journal.db"))
	t.Setenv("HERRENLOS_CACHE_TTL", "0s")
	return dir, csvPath
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)
}

func TestRunCommand(t *testing.T) {
	dir, csvPath := setupEnv(t)
	outDir := filepath.Join(dir, "out")

	out, err := execute(t, "run", "--config-dir", dir, "--municipalities", csvPath, "--out", outDir)
	require.NoError(t, err, "failed municipalities do not fail the run")

	assert.Contains(t, out, "✓ [1/2] Aarau: 1 candidate(s)")
	assert.Contains(t, out, "✗ [2/2] Baden failed")
	assert.Contains(t, out, "1 candidate(s) in 2 municipalities, 1 failed")
	assert.Contains(t, out, "failed: Baden (NetworkError")
	assert.Contains(t, out, "Reports written to "+outDir)

	csvOut, err := os.ReadFile(filepath.Join(outDir, "candidates.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(csvOut), "1234,Aarau,560")

	out, err = execute(t, "status", "--config-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "2/2 searched")

	out, err = execute(t, "status", "latest", "--config-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "State: done")
	assert.Contains(t, out, "✗ Baden")
}

func TestRunCommand_NoCandidates(t *testing.T) {
	dir, csvPath := setupEnv(t)

	out, err := execute(t, "run", "--config-dir", dir, "--municipalities", csvPath,
		"--out", filepath.Join(dir, "out"), "--min-area", "1000")
	require.NoError(t, err)
	assert.Contains(t, out, "no candidates found")
}

func TestRunCommand_EmptyConfiguration(t *testing.T) {
	dir, _ := setupEnv(t)
	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, []byte("Gemeinde,xmin,ymin,xmax,ymax,Kontakt\n"), 0o644))

	_, err := execute(t, "run", "--config-dir", dir, "--municipalities", empty)
	require.Error(t, err)
	assert.ErrorIs(t, err, municipality.ErrEmpty)
}

func TestRunCommand_InvalidConfiguration(t *testing.T) {
	dir, csvPath := setupEnv(t)

	_, err := execute(t, "run", "--config-dir", dir, "--municipalities", csvPath, "--workers", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workers")
}

func TestMunicipalitiesCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gemeinden.csv")
	require.NoError(t, os.WriteFile(path, []byte(twoMunicipalities+"Kaputt,,1,2,3,x@example.ch\n"), 0o644))

	out, err := execute(t, "municipalities", "--config-dir", dir, "--municipalities", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Aarau")
	assert.Contains(t, out, "2635000,1250000,2637000,1252000")
	assert.Contains(t, out, "skipped row 4: missing value")
	assert.Contains(t, out, "2 municipalities, 1 skipped")
}

func TestStatusCommand_JournalDisabled(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HERRENLOS_JOURNAL_DRIVER", "")

	_, err := execute(t, "status", "--config-dir", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}
