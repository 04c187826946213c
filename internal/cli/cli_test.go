package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"featurekit/internal/api"
	"featurekit/internal/config"
	"featurekit/internal/engine"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const churnCSV = "plan,spend,churned\nA,1.5,1\nA,2.5,1\nB,3,0\nB,4,0\nB,5,1\n"

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	os.Exit(m.Run())
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	cmd := NewRootCommand()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestProfileCommandCSV(t *testing.T) {
	data := writeFile(t, t.TempDir(), "churn.csv", churnCSV)
	out, err := executeCommand(t, "profile", data, "--examples", "1")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "Field,Dtype,Memory_Type,Cardinality"))
	assert.True(t, strings.HasSuffix(lines[0], "Potential_Boolean,Example_1"))
	assert.True(t, strings.HasPrefix(lines[1], "plan,Object,utf8,2,"))
}

func TestProfileCommandJSON(t *testing.T) {
	data := writeFile(t, t.TempDir(), "churn.csv", churnCSV)
	out, err := executeCommand(t, "profile", data, "--json")
	require.NoError(t, err)

	var records []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 3)
	assert.Equal(t, "churned", records[2]["Field"])
	assert.Equal(t, true, records[2]["Potential_Boolean"])
	assert.Contains(t, records[0], "Example_3")
}

func TestMineCommand(t *testing.T) {
	data := writeFile(t, t.TempDir(), "churn.csv", churnCSV)
	out, err := executeCommand(t, "mine", data, "--target", "churned", "--min-mean-target", "0.5")
	require.NoError(t, err)
	assert.Equal(t, "plan: [A]\n", out)

	out, err = executeCommand(t, "mine", data, "--target", "churned", "-o", "json")
	require.NoError(t, err)
	var res struct {
		BaseRate float64 `json:"base_rate"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.InDelta(t, 0.6, res.BaseRate, 1e-9)

	_, err = executeCommand(t, "mine", data)
	assert.Error(t, err, "target is required")
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	data := writeFile(t, dir, "churn.csv", churnCSV)
	doc := writeFile(t, dir, "features.yaml", `
target: churned
steps:
  - type: dummies
    dummies:
      map: {plan: [A, B]}
`)
	outPath := filepath.Join(dir, "out.csv")

	_, err := executeCommand(t, "run", "--pipeline", doc, data, "--out", outPath)
	require.NoError(t, err)
	content, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(content), "spend,churned,plan_A,plan_B\n"))

	arrowPath := filepath.Join(dir, "out.arrow")
	_, err = executeCommand(t, "run", "-p", doc, data, "--out", arrowPath, "--out-format", "arrow")
	require.NoError(t, err)
	tbl, err := engine.LoadIPC(arrowPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"spend", "churned", "plan_A", "plan_B"}, tbl.Names())

	_, err = executeCommand(t, "run", "-p", doc, data, "--out-format", "arrow")
	assert.Error(t, err)
}

func TestConfigFileDrivesFormat(t *testing.T) {
	dir := t.TempDir()
	data := writeFile(t, dir, "churn.tsv", strings.ReplaceAll(churnCSV, ",", ";"))
	cfg := writeFile(t, dir, "featurekit.yaml", "dataset:\n  delimiter: \";\"\nlog:\n  level: disabled\n")

	out, err := executeCommand(t, "--config", cfg, "profile", data, "--json")
	require.NoError(t, err)
	var records []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	assert.Len(t, records, 3)
}

func TestLoadDataset(t *testing.T) {
	data := writeFile(t, t.TempDir(), "churn.csv", churnCSV)
	e := echo.New()
	h := api.NewHandler(3, prometheus.NewRegistry())
	h.RegisterRoutes(e)

	loadDataset(h, config.DatasetConfig{Path: data, Format: "csv"})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/columns", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	h2 := api.NewHandler(3, prometheus.NewRegistry())
	e2 := echo.New()
	h2.RegisterRoutes(e2)
	loadDataset(h2, config.DatasetConfig{})
	rec = httptest.NewRecorder()
	e2.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Contains(t, rec.Body.String(), `"dataset":"failed"`)
}
