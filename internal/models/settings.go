package models

import (
	"fmt"
	"math"
)

// RuntimeTradingSettings — настройки торговли, которые меняются на лету (hot reload).
// Раннер читает один снапшот на тик, поэтому структура передаётся только по значению.
type RuntimeTradingSettings struct {
	MaxOpenTrades        int     `json:"max_open_trades" mapstructure:"max_open_trades"`
	QuoteOrderQty        float64 `json:"quote_order_qty" mapstructure:"quote_order_qty"`
	QuoteAsset           string  `json:"quote_asset" mapstructure:"quote_asset"`
	StopLossPercentage   float64 `json:"stop_loss_percentage" mapstructure:"stop_loss_percentage"`
	TakeProfitPercentage float64 `json:"take_profit_percentage" mapstructure:"take_profit_percentage"`
	TimeBasedKillMinutes int     `json:"time_based_kill_minutes" mapstructure:"time_based_kill_minutes"`

	// Агрессивная замена слабых позиций
	EnableAggressiveReplacement         bool    `json:"enable_aggressive_replacement" mapstructure:"enable_aggressive_replacement"`
	SurgeScoreThreshold                 float64 `json:"surge_score_threshold" mapstructure:"surge_score_threshold"`
	ReplacementScoreGap                 float64 `json:"replacement_score_gap" mapstructure:"replacement_score_gap"`
	ReplacementCooldownSeconds          int     `json:"replacement_cooldown_seconds" mapstructure:"replacement_cooldown_seconds"`
	MaxReplacementsPerHour              int     `json:"max_replacements_per_hour" mapstructure:"max_replacements_per_hour"`
	MaxCandidateDepth                   int     `json:"max_candidate_depth" mapstructure:"max_candidate_depth"`
	MinPositionAgeForReplacementSeconds int     `json:"min_position_age_for_replacement_seconds" mapstructure:"min_position_age_for_replacement_seconds"`

	// Риск-менеджмент
	WeakTrendStopLossPercentage float64 `json:"weak_trend_stop_loss_percentage" mapstructure:"weak_trend_stop_loss_percentage"`
	WeakTrendScoreThreshold     float64 `json:"weak_trend_score_threshold" mapstructure:"weak_trend_score_threshold"`
	EnableDynamicStopLoss       bool    `json:"enable_dynamic_stop_loss" mapstructure:"enable_dynamic_stop_loss"`
	TrailingStopPercentage      float64 `json:"trailing_stop_percentage" mapstructure:"trailing_stop_percentage"`
	TrailArmBufferPercentage    float64 `json:"trail_arm_buffer_percentage" mapstructure:"trail_arm_buffer_percentage"`

	// Вход в свободный слот (не замена)
	EntryScoreThreshold float64 `json:"entry_score_threshold" mapstructure:"entry_score_threshold"`

	// AI/ML
	EnableMLPredictions bool    `json:"enable_ml_predictions" mapstructure:"enable_ml_predictions"`
	EnableOpenAISignals bool    `json:"enable_openai_signals" mapstructure:"enable_openai_signals"`
	AIVetoConfidence    float64 `json:"ai_veto_confidence" mapstructure:"ai_veto_confidence"`
}

// DefaultRuntimeSettings — дефолты как в боевой конфигурации.
func DefaultRuntimeSettings() RuntimeTradingSettings {
	return RuntimeTradingSettings{
		MaxOpenTrades:        3,
		QuoteOrderQty:        3000,
		QuoteAsset:           "USDC",
		StopLossPercentage:   2,
		TakeProfitPercentage: 1,
		TimeBasedKillMinutes: 30,

		EnableAggressiveReplacement:         true,
		SurgeScoreThreshold:                 1.0,
		ReplacementScoreGap:                 0.25,
		ReplacementCooldownSeconds:          180,
		MaxReplacementsPerHour:              4,
		MaxCandidateDepth:                   30,
		MinPositionAgeForReplacementSeconds: 60,

		WeakTrendStopLossPercentage: 0.5,
		WeakTrendScoreThreshold:     0,
		EnableDynamicStopLoss:       true,
		TrailingStopPercentage:      0.5,
		TrailArmBufferPercentage:    1.0,

		EntryScoreThreshold: 0.5,

		EnableMLPredictions: false,
		EnableOpenAISignals: true,
		AIVetoConfidence:    0.85,
	}
}

// Validate отклоняет противоречивые настройки. Нулевой процент отключает соответствующий триггер.
func (s RuntimeTradingSettings) Validate() error {
	if s.MaxOpenTrades < 0 {
		return fmt.Errorf("%w: max_open_trades=%d", ErrInvalidSettings, s.MaxOpenTrades)
	}
	if !(s.QuoteOrderQty > 0) || math.IsInf(s.QuoteOrderQty, 0) {
		return fmt.Errorf("%w: quote_order_qty must be > 0, got %v", ErrInvalidSettings, s.QuoteOrderQty)
	}
	if s.QuoteAsset == "" {
		return fmt.Errorf("%w: quote_asset is empty", ErrInvalidSettings)
	}

	pcts := map[string]float64{
		"stop_loss_percentage":            s.StopLossPercentage,
		"take_profit_percentage":          s.TakeProfitPercentage,
		"weak_trend_stop_loss_percentage": s.WeakTrendStopLossPercentage,
		"trailing_stop_percentage":        s.TrailingStopPercentage,
		"trail_arm_buffer_percentage":     s.TrailArmBufferPercentage,
		"replacement_score_gap":           s.ReplacementScoreGap,
	}
	for name, v := range pcts {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s=%v", ErrInvalidSettings, name, v)
		}
	}
	if s.StopLossPercentage >= 100 || s.WeakTrendStopLossPercentage >= 100 || s.TrailingStopPercentage >= 100 {
		return fmt.Errorf("%w: stop percentages must be < 100", ErrInvalidSettings)
	}

	ints := map[string]int{
		"time_based_kill_minutes":                  s.TimeBasedKillMinutes,
		"replacement_cooldown_seconds":             s.ReplacementCooldownSeconds,
		"max_replacements_per_hour":                s.MaxReplacementsPerHour,
		"min_position_age_for_replacement_seconds": s.MinPositionAgeForReplacementSeconds,
	}
	for name, v := range ints {
		if v < 0 {
			return fmt.Errorf("%w: %s=%d", ErrInvalidSettings, name, v)
		}
	}
	if s.MaxCandidateDepth < 1 {
		return fmt.Errorf("%w: max_candidate_depth must be >= 1, got %d", ErrInvalidSettings, s.MaxCandidateDepth)
	}
	if s.AIVetoConfidence < 0 || s.AIVetoConfidence > 1 || math.IsNaN(s.AIVetoConfidence) {
		return fmt.Errorf("%w: ai_veto_confidence must be in [0,1], got %v", ErrInvalidSettings, s.AIVetoConfidence)
	}
	if math.IsNaN(s.SurgeScoreThreshold) || math.IsNaN(s.EntryScoreThreshold) || math.IsNaN(s.WeakTrendScoreThreshold) {
		return fmt.Errorf("%w: score thresholds must be numbers", ErrInvalidSettings)
	}
	return nil
}
