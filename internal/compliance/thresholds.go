// Package compliance owns the regulatory thresholds and the classification
// of ledger totals against them. Both the ledger and the classifier read
// thresholds from this one place so they can never disagree.
package compliance

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "9h"
// or "45m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) D() time.Duration {
	return time.Duration(d)
}

// Thresholds is the versioned regulation document. Regulations change by
// jurisdiction and over time, so these are a data change, not a code change.
// Defaults follow EU driving-time rules (Regulation 561/2006 shaped).
type Thresholds struct {
	Version string `yaml:"version"`

	MaxDailyDriving      Duration `yaml:"max_daily_driving"`
	MaxContinuousDriving Duration `yaml:"max_continuous_driving"`
	MinBreak             Duration `yaml:"min_break"`
	MinDailyRest         Duration `yaml:"min_daily_rest"`
	MinWeeklyRest        Duration `yaml:"min_weekly_rest"`
	MaxWeeklyDriving     Duration `yaml:"max_weekly_driving"`
	MaxBiweeklyDriving   Duration `yaml:"max_biweekly_driving"`
	MaxDailyWork         Duration `yaml:"max_daily_work"`
	MaxWeeklyWork        Duration `yaml:"max_weekly_work"`
}

func Default() Thresholds {
	return Thresholds{
		Version:              "eu-561-2006",
		MaxDailyDriving:      Duration(9 * time.Hour),
		MaxContinuousDriving: Duration(4*time.Hour + 30*time.Minute),
		MinBreak:             Duration(45 * time.Minute),
		MinDailyRest:         Duration(11 * time.Hour),
		MinWeeklyRest:        Duration(45 * time.Hour),
		MaxWeeklyDriving:     Duration(56 * time.Hour),
		MaxBiweeklyDriving:   Duration(90 * time.Hour),
		MaxDailyWork:         Duration(13 * time.Hour),
		MaxWeeklyWork:        Duration(60 * time.Hour),
	}
}

// LoadThresholds reads a thresholds document from a YAML file. Missing
// fields keep the default values.
func LoadThresholds(path string) (Thresholds, error) {
	th := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return th, fmt.Errorf("read thresholds file: %w", err)
	}
	if err := yaml.Unmarshal(data, &th); err != nil {
		return th, fmt.Errorf("parse thresholds file: %w", err)
	}
	return th, nil
}
