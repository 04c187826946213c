package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"featurekit/internal/engine"
	"featurekit/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	os.Exit(m.Run())
}

func newServer(t *testing.T) (*echo.Echo, *Handler) {
	t.Helper()
	e := echo.New()
	h := NewHandler(2, prometheus.NewRegistry())
	h.RegisterRoutes(e)
	return e, h
}

func dataset(t *testing.T) *engine.Table {
	t.Helper()
	tbl, err := engine.NewTable(
		engine.NewStringColumn("plan", []string{"A", "A", "B", "B", "B"}, nil),
		engine.NewFloatColumn("spend", []float64{1, 2, 3, 4, 5}, []bool{true, true, true, true, false}),
		engine.NewIntColumn("churned", []int64{1, 1, 0, 0, 1}, nil),
	)
	require.NoError(t, err)
	return tbl
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestUnavailableUntilLoaded(t *testing.T) {
	e, h := newServer(t)

	rec := do(e, http.MethodGet, "/api/columns", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(e, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var health models.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "loading", health.Dataset)

	h.SetError(errors.New("disk on fire"))
	rec = do(e, http.MethodGet, "/api/profile", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "disk on fire")

	h.SetData(dataset(t), time.Second)
	rec = do(e, http.MethodGet, "/healthz", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, models.Health{Status: "ok", Dataset: "ready", Rows: 5, Columns: 3}, health)
}

func TestSetErrorWithoutCause(t *testing.T) {
	e, h := newServer(t)
	h.SetError(nil)

	rec := do(e, http.MethodGet, "/api/columns", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown load failure")

	rec = do(e, http.MethodGet, "/healthz", "")
	var health models.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "failed", health.Dataset)
}

func TestGetColumns(t *testing.T) {
	e, h := newServer(t)
	h.SetData(dataset(t), time.Millisecond)

	rec := do(e, http.MethodGet, "/api/columns", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page models.Page[models.ColumnInfo]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, models.ColumnInfo{Name: "spend", Kind: "Numeric", Type: "float64", Nulls: 1}, page.Data[1])

	rec = do(e, http.MethodGet, "/api/columns?limit=1&offset=2", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Data, 1)
	assert.Equal(t, "churned", page.Data[0].Name)

	rec = do(e, http.MethodGet, "/api/columns?offset=10", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Empty(t, page.Data)
}

func TestGetProfile(t *testing.T) {
	e, h := newServer(t)
	h.SetData(dataset(t), time.Millisecond)

	rec := do(e, http.MethodGet, "/api/profile", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page models.Page[map[string]any]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Data, 3)
	plan := page.Data[0]
	assert.Equal(t, "plan", plan["Field"])
	assert.Equal(t, "B", plan["Most_Common_Value"])
	assert.Equal(t, "A", plan["Example_2"])
	assert.NotContains(t, plan, "Example_3")

	rec = do(e, http.MethodGet, "/api/profile?examples=3", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Contains(t, page.Data[0], "Example_3")

	rec = do(e, http.MethodGet, "/api/profile?examples=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostAssociations(t *testing.T) {
	e, h := newServer(t)
	h.SetData(dataset(t), time.Millisecond)

	rec := do(e, http.MethodPost, "/api/associations", `{"target":"churned","min_mean_target":0.5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res struct {
		Target   string              `json:"target"`
		BaseRate float64             `json:"base_rate"`
		Mapping  map[string][]string `json:"mapping"`
		Stats    []map[string]any    `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "churned", res.Target)
	assert.InDelta(t, 0.6, res.BaseRate, 1e-9)
	assert.Equal(t, map[string][]string{"plan": {"A"}}, res.Mapping)
	assert.Len(t, res.Stats, 2)

	rec = do(e, http.MethodPost, "/api/associations", `{"target":"nope"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(e, http.MethodPost, "/api/associations", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/api/associations", `{"target":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	e, h := newServer(t)
	do(e, http.MethodGet, "/api/columns", "")
	h.SetData(dataset(t), 1500*time.Millisecond)
	do(e, http.MethodGet, "/api/columns", "")

	rec := do(e, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `featurekit_http_requests_total{method="GET",route="/api/columns",status="503"} 1`)
	assert.Contains(t, body, `featurekit_http_requests_total{method="GET",route="/api/columns",status="200"} 1`)
	assert.Contains(t, body, "featurekit_dataset_load_seconds 1.5")
	assert.Contains(t, body, "featurekit_dataset_rows 5")
}
