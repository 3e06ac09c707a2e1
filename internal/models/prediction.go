package models

import "math"

type PredictionKind int

const (
	PredictionUnavailable PredictionKind = iota
	PredictionAvailable
)

type Direction string

const (
	DirectionUp      Direction = "Up"
	DirectionDown    Direction = "Down"
	DirectionSideway Direction = "Sideway"
)

// Sign: Up=+1, Down=-1, Sideway=0.
func (d Direction) Sign() float64 {
	switch d {
	case DirectionUp:
		return 1
	case DirectionDown:
		return -1
	}
	return 0
}

// Prediction — ответ ML-сервиса или OpenAI. Если сервис не ответил, Kind=Unavailable
// и остальные поля не имеют смысла.
type Prediction struct {
	Kind           PredictionKind `json:"kind"`
	Source         string         `json:"source,omitempty"`
	Direction      Direction      `json:"direction,omitempty"`
	Confidence     float64        `json:"confidence"`
	ExpectedReturn float64        `json:"expected_return"`
	ProbDown       float64        `json:"prob_down"`
	ProbSideway    float64        `json:"prob_sideway"`
	ProbUp         float64        `json:"prob_up"`
	Reason         string         `json:"reason,omitempty"`
}

func Unavailable(source, reason string) Prediction {
	return Prediction{Kind: PredictionUnavailable, Source: source, Reason: reason}
}

// Available нормализует уверенность в [0,1]; NaN превращается в 0.
func Available(source string, dir Direction, confidence float64) Prediction {
	if math.IsNaN(confidence) || confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return Prediction{Kind: PredictionAvailable, Source: source, Direction: dir, Confidence: confidence}
}

func (p Prediction) IsAvailable() bool { return p.Kind == PredictionAvailable }

// IsDown — уверенный прогноз вниз (порог включительно).
func (p Prediction) IsDown(minConfidence float64) bool {
	return p.IsAvailable() && p.Direction == DirectionDown && p.Confidence >= minConfidence
}
