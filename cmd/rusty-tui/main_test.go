package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rusty-ci/rusty-tui/internal/model"
)

const pipelineBody = `{"data":{"pipelines":{"getById":{"id":"p-2","number":2,"status":"Success","branch":"main",
	"registerDate":"2024-05-01T09:00:00Z","startDate":"2024-05-01T09:00:01Z","endDate":"2024-05-01T09:01:01Z","jobId":"j1"}}}}`

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return executeWithInput(t, "", args...)
}

func executeWithInput(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rusty", "config.yaml")

	out, _, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ws-url:")

	_, _, err = execute(t, "config", "init", path)
	assert.Error(t, err, "existing file is kept without --force")
	_, _, err = execute(t, "config", "init", "--force", path)
	assert.NoError(t, err)
}

func logsServer(t *testing.T) *httptest.Server {
	t.Helper()
	lines := []string{
		`{"stage":"rusty-before","line":"checkout"}`,
		`{"stage":"build","line":"compiling"}`,
		`{"stage":"build","line":"boom: linker failed"}`,
	}
	logs, err := json.Marshal(map[string]any{
		"data": map[string]any{"pipelineLogs": map[string]any{"getById": map[string]any{"id": "p-2", "entries": lines}}},
	})
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query string `json:"query"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch {
		case strings.Contains(req.Query, "pipelineLogs"):
			_, _ = w.Write(logs)
		case strings.Contains(req.Query, "\tjobs {"):
			_, _ = w.Write([]byte(`{"data":{"jobs":{"getById":{"id":"j1","name":"release","projectId":"pr1"}}}}`))
		case strings.Contains(req.Query, "\tprojects {"):
			http.Error(w, "boom", http.StatusInternalServerError)
		case strings.Contains(req.Query, "\tpipelines {"):
			_, _ = w.Write([]byte(pipelineBody))
		default:
			http.Error(w, "no route", http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func baseArgs(t *testing.T, srv *httptest.Server, cacheDir string) []string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	_, _, err := execute(t, "config", "init", cfgPath)
	require.NoError(t, err)
	return []string{
		"--config", cfgPath,
		"--endpoint", srv.URL,
		"--cache-dir", cacheDir,
		"--log-file", "",
		"--log-level", "error",
	}
}

func TestLogsGroupsByStage(t *testing.T) {
	srv := logsServer(t)
	cacheDir := t.TempDir()

	out, errOut, err := execute(t, append([]string{"logs", "--pipeline", "p-2"}, baseArgs(t, srv, cacheDir)...)...)
	require.NoError(t, err)
	assert.Contains(t, errOut, "release #2 SUCCESS on main", "failed project lookup keeps the job")
	before := strings.Index(out, "== before (1 line) ==")
	build := strings.Index(out, "== build (2 lines) ==")
	require.NotEqual(t, -1, before, out)
	require.NotEqual(t, -1, build, out)
	assert.Less(t, before, build)
	assert.Contains(t, out, "boom: linker failed")

	out, _, err = execute(t, append([]string{"cache", "list"}, baseArgs(t, srv, cacheDir)...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "p-2", "finished pipeline logs are cached")
	assert.Contains(t, out, string(model.PipelineSuccess))
}

func TestLogsGrep(t *testing.T) {
	srv := logsServer(t)
	args := baseArgs(t, srv, t.TempDir())

	out, _, err := execute(t, append([]string{"logs", "--pipeline", "p-2", "--grep", "LINKER"}, args...)...)
	require.NoError(t, err)
	assert.Equal(t, "build:2:boom: linker failed\n", out)

	_, _, err = execute(t, append([]string{"logs", "--pipeline", "p-2", "--grep", "link(", "--regex"}, args...)...)
	assert.Error(t, err, "invalid regex is rejected")

	_, _, err = execute(t, append([]string{"logs", "--pipeline", "p-2", "--grep", "nothing here"}, args...)...)
	assert.ErrorContains(t, err, "no lines match")
}

func TestWatchRequiresJob(t *testing.T) {
	_, _, err := execute(t, "watch")
	assert.ErrorContains(t, err, "--job is required")
}
