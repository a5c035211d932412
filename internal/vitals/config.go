// Package vitals combines per-source health scores into a single weighted
// Vital Signs score with a letter grade and a month-over-month delta.
package vitals

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/practicepulse/pulse-cli/internal/metric"
)

// Config holds the per-source composite weights, expressed as percentages.
type Config struct {
	GA4Weight     float64 `yaml:"ga4_weight" mapstructure:"ga4_weight"`
	GBPWeight     float64 `yaml:"gbp_weight" mapstructure:"gbp_weight"`
	GSCWeight     float64 `yaml:"gsc_weight" mapstructure:"gsc_weight"`
	ClarityWeight float64 `yaml:"clarity_weight" mapstructure:"clarity_weight"`
	PMSWeight     float64 `yaml:"pms_weight" mapstructure:"pms_weight"`
}

// DefaultConfig returns the standard composite weights. Weights sum to 100.
func DefaultConfig() Config {
	return Config{
		GA4Weight:     25,
		GBPWeight:     25,
		GSCWeight:     20,
		ClarityWeight: 15,
		PMSWeight:     15,
	}
}

// Weights returns the config as a source-keyed map of fractional weights.
func (c Config) Weights() map[string]float64 {
	return map[string]float64{
		metric.SourceGA4:     c.GA4Weight / 100,
		metric.SourceGBP:     c.GBPWeight / 100,
		metric.SourceGSC:     c.GSCWeight / 100,
		metric.SourceClarity: c.ClarityWeight / 100,
		metric.SourcePMS:     c.PMSWeight / 100,
	}
}

// WeightSum returns the sum of all source weights.
func WeightSum(c Config) float64 {
	return c.GA4Weight + c.GBPWeight + c.GSCWeight + c.ClarityWeight + c.PMSWeight
}

// ValidateConfig checks that a Config is internally consistent.
func ValidateConfig(c Config) error {
	var errs []string

	weights := map[string]float64{
		"ga4_weight":     c.GA4Weight,
		"gbp_weight":     c.GBPWeight,
		"gsc_weight":     c.GSCWeight,
		"clarity_weight": c.ClarityWeight,
		"pms_weight":     c.PMSWeight,
	}
	for name, w := range weights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}

	sum := WeightSum(c)
	if sum <= 0 {
		errs = append(errs, "weight sum must be > 0")
	}
	if math.Abs(sum-100) > 1 {
		errs = append(errs, fmt.Sprintf("weights should sum to 100, got %.1f", sum))
	}

	if len(errs) > 0 {
		return eris.Errorf("vitals: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
