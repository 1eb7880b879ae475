// Package predict exposes the read and lifecycle endpoints of the scoring
// service: latest score, history, feature importance, diagnostics, session
// and break control.
package predict

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"vigil/internal/ensemble"
	"vigil/internal/httputil"
	"vigil/internal/logging"
	"vigil/internal/personalize"
	"vigil/internal/score/model"
)

const maxBodyBytes = 1 * 1024 * 1024

// Scorer is the read and lifecycle half of the session manager.
type Scorer interface {
	Latest() (model.Score, bool)
	ActiveSession() string
	History(sessionID string) ([]model.Score, error)
	TopFeatures(n int) []ensemble.FeatureRank
	Stats() map[string]interface{}
	StartSession(ctx context.Context, now time.Time) (string, error)
	EndSession(ctx context.Context, now time.Time) error
	StartBreak(now time.Time) error
	EndBreak(ctx context.Context, now time.Time) error
	RecordFeedback(ctx context.Context, fb personalize.Feedback) error
}

func requireGet(ctx context.Context, w http.ResponseWriter, r *http.Request) bool {
	if r.Method != "GET" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		logging.FromContext(ctx).Debug(fmt.Sprintf(`{"error": "method %v is not allowed"}`, r.Method))
		_, _ = fmt.Fprintf(w, `{"error": "method %v is not allowed"}`, r.Method)
		return false
	}
	return true
}

// NewScoreHandler serves the latest score of the active session.
func NewScoreHandler(cfg *Config, scorer Scorer) (http.Handler, error) {
	if scorer == nil {
		return nil, fmt.Errorf("scorer instance is not created")
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), cfg.RequestTimeout)
		defer cancel()

		if !requireGet(ctx, w, r) {
			return
		}
		latest, ok := scorer.Latest()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = fmt.Fprintf(w, `{"error": "no score available"}`)
			return
		}
		httputil.RespJSON(ctx, w, http.StatusOK, latest)
	}), nil
}

// NewHistoryHandler serves stored scores for a session, defaulting to the
// active one.
func NewHistoryHandler(cfg *Config, scorer Scorer) (http.Handler, error) {
	if scorer == nil {
		return nil, fmt.Errorf("scorer instance is not created")
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), cfg.RequestTimeout)
		defer cancel()

		if !requireGet(ctx, w, r) {
			return
		}
		sessionID := r.URL.Query().Get("session")
		if sessionID == "" {
			sessionID = scorer.ActiveSession()
		}
		if sessionID == "" {
			httputil.RespBadRequest(ctx, w, `{"error": "no session specified and none active"}`)
			return
		}

		scores, err := scorer.History(sessionID)
		if err != nil {
			httputil.RespInternalError(ctx, w, `{"error": "history fetch failed: %v"}`, err)
			return
		}
		httputil.RespJSON(ctx, w, http.StatusOK, map[string]interface{}{
			"session": sessionID,
			"scores":  scores,
		})
	}), nil
}

// NewImportanceHandler serves the predictor's top feature weights.
func NewImportanceHandler(cfg *Config, scorer Scorer) (http.Handler, error) {
	if scorer == nil {
		return nil, fmt.Errorf("scorer instance is not created")
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), cfg.RequestTimeout)
		defer cancel()

		if !requireGet(ctx, w, r) {
			return
		}
		n := cfg.MaxTopFeatures
		if raw := r.URL.Query().Get("n"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				httputil.RespBadRequest(ctx, w, `{"error": "invalid n %q"}`, raw)
				return
			}
			if parsed < n {
				n = parsed
			}
		}

		features := scorer.TopFeatures(n)
		httputil.RespJSON(ctx, w, http.StatusOK, map[string]interface{}{
			"features": features,
		})
	}), nil
}

// NewStatsHandler serves aggregated diagnostics.
func NewStatsHandler(cfg *Config, scorer Scorer) (http.Handler, error) {
	if scorer == nil {
		return nil, fmt.Errorf("scorer instance is not created")
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), cfg.RequestTimeout)
		defer cancel()

		if !requireGet(ctx, w, r) {
			return
		}
		httputil.RespJSON(ctx, w, http.StatusOK, scorer.Stats())
	}), nil
}

type lifecycleRequest struct {
	Action string `json:"action"`
}

func decodeLifecycle(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != "POST" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		logging.FromContext(ctx).Debug(fmt.Sprintf(`{"error": "method %v is not allowed"}`, r.Method))
		_, _ = fmt.Fprintf(w, `{"error": "method %v is not allowed"}`, r.Method)
		return "", false
	}

	defer r.Body.Close()

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req lifecycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.DecodeErr(ctx, w, err)
		return "", false
	}
	if req.Action != "start" && req.Action != "stop" {
		httputil.RespBadRequest(ctx, w, `{"error": "action must be start or stop"}`)
		return "", false
	}
	return req.Action, true
}

// NewSessionHandler starts and stops work sessions.
func NewSessionHandler(cfg *Config, scorer Scorer) (http.Handler, error) {
	if scorer == nil {
		return nil, fmt.Errorf("scorer instance is not created")
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), cfg.RequestTimeout)
		defer cancel()

		action, ok := decodeLifecycle(ctx, w, r)
		if !ok {
			return
		}

		if action == "start" {
			id, err := scorer.StartSession(ctx, time.Now())
			if err != nil {
				httputil.RespInternalError(ctx, w, `{"error": "session start failed: %v"}`, err)
				return
			}
			httputil.RespJSON(ctx, w, http.StatusOK, map[string]string{"status": "ok", "session": id})
			return
		}

		if err := scorer.EndSession(ctx, time.Now()); err != nil {
			httputil.RespBadRequest(ctx, w, `{"error": "session stop failed: %v"}`, err)
			return
		}
		httputil.RespJSON(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
	}), nil
}

// NewBreakHandler starts and stops breaks within the active session.
func NewBreakHandler(cfg *Config, scorer Scorer) (http.Handler, error) {
	if scorer == nil {
		return nil, fmt.Errorf("scorer instance is not created")
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), cfg.RequestTimeout)
		defer cancel()

		action, ok := decodeLifecycle(ctx, w, r)
		if !ok {
			return
		}

		var err error
		if action == "start" {
			err = scorer.StartBreak(time.Now())
		} else {
			err = scorer.EndBreak(ctx, time.Now())
		}
		if err != nil {
			httputil.RespBadRequest(ctx, w, `{"error": "break %s failed: %v"}`, action, err)
			return
		}
		httputil.RespJSON(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
	}), nil
}

type feedbackRequest struct {
	Score     float64 `json:"score"`
	Positive  bool    `json:"positive"`
	Dismissed bool    `json:"dismissed"`
}

// NewFeedbackHandler records user reactions into the personalization profile.
func NewFeedbackHandler(cfg *Config, scorer Scorer) (http.Handler, error) {
	if scorer == nil {
		return nil, fmt.Errorf("scorer instance is not created")
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), cfg.RequestTimeout)
		defer cancel()

		if r.Method != "POST" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			_, _ = fmt.Fprintf(w, `{"error": "method %v is not allowed"}`, r.Method)
			return
		}

		defer r.Body.Close()

		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req feedbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.DecodeErr(ctx, w, err)
			return
		}

		fb := personalize.Feedback{
			At:        time.Now(),
			Score:     req.Score,
			Positive:  req.Positive,
			Dismissed: req.Dismissed,
		}
		if err := scorer.RecordFeedback(ctx, fb); err != nil {
			httputil.RespInternalError(ctx, w, `{"error": "feedback record failed: %v"}`, err)
			return
		}
		httputil.RespJSON(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
	}), nil
}
