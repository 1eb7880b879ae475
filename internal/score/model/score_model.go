package model

import (
	"time"

	"github.com/google/uuid"
	"vigil/internal/scoring"
)

// NewScore wraps one scoring result into an immutable persisted record.
func NewScore(sessionID string, res scoring.Result) Score {
	return Score{
		ID:         uuid.New(),
		SessionID:  sessionID,
		Value:      res.Score,
		Level:      res.Level,
		Method:     res.Method,
		Confidence: res.Confidence,
		RuleScore:  res.RuleScore,
		MLScore:    res.MLScore,
		MLWeight:   res.MLWeight,
		Factors:    res.Factors,
		CreatedAt:  res.At,
	}
}

// Score is one persisted fatigue reading.
type Score struct {
	ID         uuid.UUID       `json:"id"`
	SessionID  string          `json:"sessionId"`
	Value      float64         `json:"value"`
	Level      scoring.Level   `json:"level"`
	Method     scoring.Method  `json:"method"`
	Confidence float64         `json:"confidence"`
	RuleScore  float64         `json:"ruleScore"`
	MLScore    float64         `json:"mlScore"`
	MLWeight   float64         `json:"mlWeight"`
	Factors    scoring.Factors `json:"factors"`
	CreatedAt  time.Time       `json:"createdAt"`
}

func (s Score) IsHybrid() bool {
	return s.Method == scoring.MethodHybrid
}

func (s Score) Time() time.Time {
	return s.CreatedAt
}
