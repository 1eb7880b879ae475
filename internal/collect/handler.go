// Package collect exposes the ingest endpoint for activity events and blink
// samples.
package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"vigil/internal/feature"
	"vigil/internal/httputil"
	"vigil/internal/logging"
)

const maxBodyBytes = 64 * 1024 * 1024

// Collector is the ingest half of the session manager.
type Collector interface {
	CollectEvents(ctx context.Context, events []feature.ActivityEvent) error
	CollectBlink(ctx context.Context, at time.Time, rate float64) error
}

type request struct {
	Events []struct {
		Kind      feature.Kind `json:"kind"`
		CreatedAt time.Time    `json:"createdAt"`
	} `json:"events"`
	Blinks []struct {
		Rate      float64   `json:"rate"`
		CreatedAt time.Time `json:"createdAt"`
	} `json:"blinks"`
}

func NewHandler(cfg *Config, collector Collector) (http.Handler, error) {
	if collector == nil {
		return nil, fmt.Errorf("collector instance is not created")
	}
	return &handler{collector: collector, cfg: cfg}, nil
}

type handler struct {
	collector Collector
	cfg       *Config
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req request
	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.RequestTimeout)
	defer cancel()
	logger := logging.FromContext(ctx)

	if r.Method != "POST" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		logger.Debug(fmt.Sprintf(`{"error": "method %v is not allowed"}`, r.Method))
		_, _ = fmt.Fprintf(w, `{"error": "method %v is not allowed"}`, r.Method)
		return
	}

	if t := r.Header.Get("content-type"); len(t) < 16 || t[:16] != "application/json" {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		logger.Debug(fmt.Sprintf(`{"error": "%v"}`, "content-type is not application/json"))
		_, _ = fmt.Fprintf(w, `{"error": "%v"}`, "content-type is not application/json")
		return
	}

	defer r.Body.Close()

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	d := json.NewDecoder(r.Body)
	if err := d.Decode(&req); err != nil {
		httputil.DecodeErr(ctx, w, err)
		return
	}

	events := make([]feature.ActivityEvent, 0, len(req.Events))
	for _, ev := range req.Events {
		events = append(events, feature.ActivityEvent{Kind: ev.Kind, At: ev.CreatedAt})
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].At.Before(events[j].At)
	})
	if err := h.collector.CollectEvents(ctx, events); err != nil {
		httputil.RespInternalError(ctx, w, `{"error": "error sending to collect service: %v"}`, err)
		return
	}

	blinks := req.Blinks
	sort.Slice(blinks, func(i, j int) bool {
		return blinks[i].CreatedAt.Before(blinks[j].CreatedAt)
	})
	for _, b := range blinks {
		if err := h.collector.CollectBlink(ctx, b.CreatedAt, b.Rate); err != nil {
			httputil.RespInternalError(ctx, w, `{"error": "error sending to collect service: %v"}`, err)
			return
		}
	}

	logger.Infof("collected %d events, %d blink samples", len(events), len(blinks))
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, `{"status": "ok"}`)
}
