package api

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"featurekit/internal/engine"
	"featurekit/internal/models"
	"featurekit/internal/profile"
	"featurekit/internal/transform"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var errUnknownLoadFailure = errors.New("unknown load failure")

type datasetState int

const (
	loading datasetState = iota
	ready
	failed
)

func (s datasetState) String() string {
	switch s {
	case ready:
		return "ready"
	case failed:
		return "failed"
	default:
		return "loading"
	}
}

// Handler serves one dataset. It starts empty and answers 503 on /api until
// SetData or SetError is called.
type Handler struct {
	mu      sync.RWMutex
	data    *engine.Table
	state   datasetState
	loadErr error
	// profiles caches the profile of data by example count.
	profiles map[int][]profile.Record

	examples int
	metrics  *Metrics
	gatherer prometheus.Gatherer
}

// NewHandler registers its metrics on reg and exposes reg on /metrics.
// examples is the default example count of /api/profile.
func NewHandler(examples int, reg *prometheus.Registry) *Handler {
	return &Handler{
		examples: examples,
		metrics:  NewMetrics(reg),
		gatherer: reg,
	}
}

// SetData swaps in a freshly loaded dataset.
func (h *Handler) SetData(t *engine.Table, took time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.data, h.state, h.loadErr = t, ready, nil
	h.profiles = make(map[int][]profile.Record)
	h.metrics.datasetLoaded(t.NumRows(), took)
}

// SetError records that the dataset could not be loaded.
func (h *Handler) SetError(err error) {
	if err == nil {
		err = errUnknownLoadFailure
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state, h.loadErr = failed, err
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.Use(h.metrics.Middleware())
	e.GET("/healthz", h.GetHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))

	api := e.Group("/api", h.requireData)
	api.GET("/columns", h.GetColumns)
	api.GET("/profile", h.GetProfile)
	api.POST("/associations", h.PostAssociations)
}

func (h *Handler) requireData(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		h.mu.RLock()
		state, loadErr := h.state, h.loadErr
		h.mu.RUnlock()
		switch state {
		case loading:
			return c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "dataset is loading"})
		case failed:
			return c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "dataset failed to load: " + loadErr.Error()})
		}
		return next(c)
	}
}

func (h *Handler) table() *engine.Table {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.data
}

// --- HANDLERS ---
func getPaginationParams(c echo.Context, defaultLimit int) (int, int) {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	offset, err := strconv.Atoi(c.QueryParam("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

func paginate[T any](c echo.Context, items []T) models.Page[T] {
	total := len(items)
	limit, offset := getPaginationParams(c, total)
	if offset >= total {
		return models.Page[T]{Data: []T{}, Total: total, Limit: limit, Offset: offset}
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return models.Page[T]{Data: items[offset:end], Total: total, Limit: limit, Offset: offset}
}

func (h *Handler) GetHealth(c echo.Context) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	res := models.Health{Status: "ok", Dataset: h.state.String()}
	if h.data != nil {
		res.Rows, res.Columns = h.data.NumRows(), h.data.NumCols()
	}
	if h.loadErr != nil {
		res.Error = h.loadErr.Error()
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) GetColumns(c echo.Context) error {
	t := h.table()
	cols := make([]models.ColumnInfo, 0, t.NumCols())
	for _, col := range t.Columns() {
		cols = append(cols, models.ColumnInfo{
			Name:  col.Name,
			Kind:  col.Kind.String(),
			Type:  col.Type.String(),
			Nulls: col.NullCount(),
		})
	}
	return c.JSON(http.StatusOK, paginate(c, cols))
}

// GetProfile returns the data dictionary, one record per column.
func (h *Handler) GetProfile(c echo.Context) error {
	examples := h.examples
	if raw := c.QueryParam("examples"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "examples must be a non-negative integer"})
		}
		examples = n
	}

	h.mu.RLock()
	records, cached := h.profiles[examples]
	t := h.data
	h.mu.RUnlock()
	if !cached {
		var err error
		if records, err = profile.Profile(t, examples); err != nil {
			return err
		}
		h.mu.Lock()
		if h.data == t {
			h.profiles[examples] = records
		}
		h.mu.Unlock()
	}
	return c.JSON(http.StatusOK, paginate(c, records))
}

// PostAssociations mines the dataset for values associated with the
// requested target.
func (h *Handler) PostAssociations(c echo.Context) error {
	var req models.AssociationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body"})
	}
	if req.Target == "" {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "target is required"})
	}

	m := transform.NewTargetAssociationMiner(req.Target)
	m.Include, m.Exclude = req.Include, req.Exclude
	if req.Method != "" {
		m.Method = transform.AggregationMethod(req.Method)
	}
	m.MinMeanTarget = req.MinMeanTarget
	m.MinSampleSize = req.MinSampleSize
	m.MinSampleFrequency = req.MinSampleFrequency
	m.MinWeightedTarget = req.MinWeightedTarget
	if req.IgnoreBinary != nil {
		m.IgnoreBinary = *req.IgnoreBinary
	}

	if err := m.Fit(h.table()); err != nil {
		var invalid *transform.ValidationError
		var missing *transform.MissingColumnsError
		if errors.As(err, &invalid) || errors.As(err, &missing) {
			return c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{Error: err.Error()})
		}
		log.Error().Err(err).Str("target", req.Target).Msg("association mining failed")
		return err
	}
	mapping, _ := m.Mapping()
	stats, _ := m.Stats()
	return c.JSON(http.StatusOK, models.AssociationResponse{
		Target:   req.Target,
		BaseRate: m.BaseRate(),
		Mapping:  mapping,
		Stats:    stats,
	})
}
