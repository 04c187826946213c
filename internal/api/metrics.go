package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	requests    *prometheus.CounterVec
	loadSeconds prometheus.Gauge
	rows        prometheus.Gauge
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "featurekit_http_requests_total",
			Help: "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		loadSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "featurekit_dataset_load_seconds",
			Help: "Time taken to load the served dataset",
		}),
		rows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "featurekit_dataset_rows",
			Help: "Rows in the served dataset",
		}),
	}
	registerer.MustRegister(m.requests, m.loadSeconds, m.rows)
	return m
}

func (m *Metrics) datasetLoaded(rows int, took time.Duration) {
	m.loadSeconds.Set(took.Seconds())
	m.rows.Set(float64(rows))
}

// Middleware counts every request once its handler has returned.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.requests.WithLabelValues(route, c.Request().Method, strconv.Itoa(status)).Inc()
			return err
		}
	}
}
