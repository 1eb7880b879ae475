package model

import (
	"time"

	"github.com/google/uuid"
)

// Version is one entry of the append-only model history.
type Version struct {
	ID        uuid.UUID          `json:"id"`
	Name      string             `json:"name"`
	CreatedAt time.Time          `json:"createdAt"`
	Metrics   map[string]float64 `json:"metrics"`
}

// Metadata is the persisted model history document.
type Metadata struct {
	Versions       []Version `json:"versions"`
	CurrentVersion string    `json:"currentVersion"`
	CreatedAt      time.Time `json:"createdAt"`
	LastUpdated    time.Time `json:"lastUpdated"`
}

// Trend classifies the recent direction of the model error metrics.
type Trend string

const (
	TrendImproving        Trend = "improving"
	TrendDegrading        Trend = "degrading"
	TrendStable           Trend = "stable"
	TrendInsufficientData Trend = "insufficient_data"
	TrendUnknown          Trend = "unknown"
)

// errorMetricKeys are checked in order; the first one present in the recent
// history decides the trend. Lower is better for all of them.
var errorMetricKeys = []string{"mae", "rmse", "mse"}

const trendBand = 0.05

// ComputeTrend compares the last three versions' metrics with a 5% relative
// band. Fewer than three versions cannot be classified.
func ComputeTrend(history []Version) Trend {
	if len(history) < 3 {
		return TrendInsufficientData
	}

	recent := history[len(history)-3:]

	for _, key := range errorMetricKeys {
		var values []float64
		for _, v := range recent {
			if m, ok := v.Metrics[key]; ok {
				values = append(values, m)
			}
		}
		if len(values) < 2 {
			continue
		}
		first, last := values[0], values[len(values)-1]
		switch {
		case last < first*(1-trendBand):
			return TrendImproving
		case last > first*(1+trendBand):
			return TrendDegrading
		default:
			return TrendStable
		}
	}

	// r2 is higher-is-better, so the direction flips.
	var values []float64
	for _, v := range recent {
		if m, ok := v.Metrics["r2"]; ok {
			values = append(values, m)
		}
	}
	if len(values) >= 2 {
		first, last := values[0], values[len(values)-1]
		switch {
		case last > first*(1+trendBand):
			return TrendImproving
		case last < first*(1-trendBand):
			return TrendDegrading
		default:
			return TrendStable
		}
	}

	return TrendUnknown
}
