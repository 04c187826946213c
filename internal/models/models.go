package models

import (
	"featurekit/internal/engine"
	"featurekit/internal/transform"
)

// Page wraps one slice of a paginated listing.
type Page[T any] struct {
	Data   []T `json:"data"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type ColumnInfo struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Type  string `json:"type"`
	Nulls int    `json:"nulls"`
}

type Health struct {
	Status  string `json:"status"`
	Dataset string `json:"dataset"`
	Rows    int    `json:"rows"`
	Columns int    `json:"columns"`
	Error   string `json:"error,omitempty"`
}

// AssociationRequest mirrors the miner thresholds. Zero thresholds are
// inactive; IgnoreBinary defaults to true.
type AssociationRequest struct {
	Target             string   `json:"target"`
	Include            []string `json:"include,omitempty"`
	Exclude            []string `json:"exclude,omitempty"`
	Method             string   `json:"method,omitempty"`
	MinMeanTarget      float64  `json:"min_mean_target"`
	MinSampleSize      int      `json:"min_sample_size"`
	MinSampleFrequency float64  `json:"min_sample_frequency"`
	MinWeightedTarget  float64  `json:"min_weighted_target"`
	IgnoreBinary       *bool    `json:"ignore_binary,omitempty"`
}

type AssociationResponse struct {
	Target   string                `json:"target"`
	BaseRate float64               `json:"base_rate"`
	Mapping  *engine.ColumnMap     `json:"mapping"`
	Stats    []transform.ValueStat `json:"stats"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
