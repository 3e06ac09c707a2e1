package models

type Preset struct {
	Name        string
	Description string
	Apply       func(s *RuntimeTradingSettings)
}

// Presets — быстрые профили риска для /preset и POST /api/settings/preset/{name}.
var Presets = map[string]Preset{
	"safe": {
		Name:        "🟢 Консервативный",
		Description: "Узкий стоп, замены редко",
		Apply: func(s *RuntimeTradingSettings) {
			s.StopLossPercentage = 1.2
			s.TakeProfitPercentage = 2.0
			s.TrailingStopPercentage = 0.4
			s.TrailArmBufferPercentage = 0.8
			s.SurgeScoreThreshold = 1.2
			s.ReplacementScoreGap = 0.4
			s.MaxReplacementsPerHour = 2
			s.ReplacementCooldownSeconds = 600
		},
	},
	"mid": {
		Name:        "🟡 Средний",
		Description: "Баланс риска и доходности",
		Apply: func(s *RuntimeTradingSettings) {
			s.StopLossPercentage = 2
			s.TakeProfitPercentage = 3
			s.TrailingStopPercentage = 0.5
			s.TrailArmBufferPercentage = 1.0
			s.SurgeScoreThreshold = 1.0
			s.ReplacementScoreGap = 0.25
			s.MaxReplacementsPerHour = 4
			s.ReplacementCooldownSeconds = 180
		},
	},
	"aggr": {
		Name:        "🔴 Агрессивный",
		Description: "Частые замены, широкий стоп",
		Apply: func(s *RuntimeTradingSettings) {
			s.StopLossPercentage = 3
			s.TakeProfitPercentage = 5
			s.TrailingStopPercentage = 0.8
			s.TrailArmBufferPercentage = 1.5
			s.SurgeScoreThreshold = 0.8
			s.ReplacementScoreGap = 0.15
			s.MaxReplacementsPerHour = 8
			s.ReplacementCooldownSeconds = 60
		},
	},
}
