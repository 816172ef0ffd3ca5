package config

import (
	"github.com/shopspring/decimal"

	"github.com/Estalvo/GeminiV26-sub001/internal/domain/exit"
	"github.com/Estalvo/GeminiV26-sub001/internal/domain/sizing"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// DefaultSpecs returns the built-in instrument set
func DefaultSpecs() []InstrumentSpec {
	return []InstrumentSpec{
		{
			Key:     "EURUSD",
			Aliases: []string{"EURUSDm"},
			Contract: sizing.Instrument{
				TickSize:   d("0.00001"),
				TickValue:  d("0.00001"),
				PipSize:    d("0.0001"),
				VolumeStep: d("1000"),
				MinVolume:  d("1000"),
				MaxVolume:  d("5000000"),
				LotSize:    d("100000"),
			},
			Policy: sizing.Policy{
				ScoreMin:     0,
				ScoreMax:     100,
				NeutralScore: 60,
				RiskPercent:  sizing.Curve{{Score: 0.0, Value: 0}, {Score: 0.45, Value: 0}, {Score: 0.46, Value: 0.25}, {Score: 1.0, Value: 0.75}},
				StopATR:      sizing.Curve{{Score: 0.0, Value: 1.8}, {Score: 1.0, Value: 1.3}},

				EntryTypeStop: map[string]float64{
					"pullback": 0.9,
					"breakout": 1.1,
				},

				TP1R:     0.5,
				TP1Ratio: 0.5,
				TP2R:     1.5,
				TP2Ratio: 0.5,
				LotCaps:  []sizing.LotStep{{MinScore: 0, Lots: 0.5}, {MinScore: 0.7, Lots: 1}, {MinScore: 0.85, Lots: 2}},
			},
			Exit: exit.Profile{
				BreakevenOffsetR:    0.1,
				TrailTight:          1.0,
				TrailNormal:         1.5,
				TrailLoose:          2.2,
				MinImprovementSteps: 20,
			},
		},
		{
			Key:     "XAUUSD",
			Aliases: []string{"GOLD"},
			Contract: sizing.Instrument{
				TickSize:   d("0.01"),
				TickValue:  d("0.01"),
				PipSize:    d("0.1"),
				VolumeStep: d("1"),
				MinVolume:  d("1"),
				MaxVolume:  d("5000"),
				LotSize:    d("100"),
			},
			Policy: sizing.Policy{
				ScoreMin:     0,
				ScoreMax:     100,
				NeutralScore: 60,
				RiskPercent:  sizing.Curve{{Score: 0.0, Value: 0}, {Score: 0.5, Value: 0}, {Score: 0.51, Value: 0.3}, {Score: 1.0, Value: 0.8}},
				StopATR:      sizing.Curve{{Score: 0.0, Value: 2.2}, {Score: 1.0, Value: 1.6}},

				TP1R:     0.4,
				TP1Ratio: 0.4,
				TP2R:     1.8,
				TP2Ratio: 0.6,
				LotCaps:  []sizing.LotStep{{MinScore: 0, Lots: 0.3}, {MinScore: 0.75, Lots: 0.6}, {MinScore: 0.9, Lots: 1}},
			},
			Exit: exit.Profile{
				BreakevenOffsetR:    0.08,
				TrailTight:          1.3,
				TrailNormal:         2.0,
				TrailLoose:          2.8,
				MinImprovementSteps: 50,
				TrailOnBarClose:     true,
			},
		},
		{
			Key:     "BTCUSD",
			Aliases: []string{"XBTUSD", "BTCUSDT"},
			Contract: sizing.Instrument{
				TickSize:   d("0.01"),
				TickValue:  d("0.01"),
				PipSize:    d("1"),
				VolumeStep: d("0.01"),
				MinVolume:  d("0.01"),
				MaxVolume:  d("50"),
				LotSize:    d("1"),
			},
			Policy: sizing.Policy{
				ScoreMin:     0,
				ScoreMax:     100,
				NeutralScore: 60,
				RiskPercent:  sizing.Curve{{Score: 0.0, Value: 0}, {Score: 0.5, Value: 0}, {Score: 0.51, Value: 0.2}, {Score: 1.0, Value: 0.6}},
				StopATR:      sizing.Curve{{Score: 0.0, Value: 2.5}, {Score: 1.0, Value: 1.8}},

				EntryTypeStop: map[string]float64{
					"pullback": 0.85,
				},

				TP1R:     0.3,
				TP1Ratio: 0.5,
				TP2R:     2.0,
				TP2Ratio: 0.5,
				LotCaps:  []sizing.LotStep{{MinScore: 0, Lots: 0.5}, {MinScore: 0.7, Lots: 1}, {MinScore: 0.85, Lots: 2}},
			},
			Exit: exit.Profile{
				BreakevenOffsetR:     0.05,
				TrailTight:           1.2,
				TrailNormal:          1.8,
				TrailLoose:           2.5,
				MinImprovementSteps:  1000,
				FallbackRiskDistance: d("1000"),
			},
		},
		{
			Key:     "NAS100",
			Aliases: []string{"US100", "USTEC"},
			Contract: sizing.Instrument{
				TickSize:   d("0.01"),
				TickValue:  d("0.01"),
				PipSize:    d("1"),
				VolumeStep: d("0.1"),
				MinVolume:  d("0.1"),
				MaxVolume:  d("500"),
				LotSize:    d("1"),
			},
			Policy: sizing.Policy{
				ScoreMin:     0,
				ScoreMax:     100,
				NeutralScore: 60,
				RiskPercent:  sizing.Curve{{Score: 0.0, Value: 0}, {Score: 0.5, Value: 0}, {Score: 0.51, Value: 0.25}, {Score: 1.0, Value: 0.7}},
				StopATR:      sizing.Curve{{Score: 0.0, Value: 2.0}, {Score: 1.0, Value: 1.5}},

				TP1R:     0.4,
				TP1Ratio: 0.5,
				TP2R:     1.6,
				TP2Ratio: 0.5,
				LotCaps:  []sizing.LotStep{{MinScore: 0, Lots: 1}, {MinScore: 0.7, Lots: 2}, {MinScore: 0.85, Lots: 3}},
			},
			Exit: exit.Profile{
				BreakevenOffsetR:    0.05,
				TrailTight:          1.2,
				TrailNormal:         1.7,
				TrailLoose:          2.4,
				MinImprovementSteps: 100,
			},
		},
	}
}

// DefaultCatalog validates and registers the built-in instrument set
func DefaultCatalog() (*Catalog, error) {
	return buildCatalog(DefaultSpecs())
}
