package dtm

import (
	"fmt"
	"time"
)

// ChargingRule selects how an ISP bills a link.
type ChargingRule string

const (
	// ChargingVolume bills the total volume of the accounting period.
	ChargingVolume ChargingRule = "volume"
	// Charging95thPercentile bills the 95th percentile of the period's samples.
	Charging95thPercentile ChargingRule = "95th-percentile"
)

// ValidChargingRules is the set of recognized charging rules.
var ValidChargingRules = map[ChargingRule]bool{ChargingVolume: true, Charging95thPercentile: true}

// TimeScheduleParameters holds the reporting and accounting cadence.
type TimeScheduleParameters struct {
	AccountingPeriod   time.Duration `yaml:"accounting_period"`   // interval between reference vectors
	ReportPeriodEA     time.Duration `yaml:"report_period_ea"`    // cadence of economic-analyzer reports
	ReportPeriodDTM    time.Duration `yaml:"report_period_dtm"`   // cadence of traffic-manager X reports
	CompensationPeriod time.Duration `yaml:"compensation_period"` // forced compensation dispatch interval
	SamplingPeriod     time.Duration `yaml:"sampling_period"`     // 95th-percentile sample window
	// Tol1 and Tol2 are the shares of tunnel traffic that may move off the
	// first and second link of a pair. Links of a pair are ordered by their
	// "local@isp" string form, not by inventory order.
	Tol1 float64 `yaml:"tol1"`
	Tol2 float64 `yaml:"tol2"`
}

// SystemControlParameters holds the policy switches of the control loop.
type SystemControlParameters struct {
	ChargingRule          ChargingRule `yaml:"charging_rule"`
	CompensationThreshold float64      `yaml:"compensation_threshold"`
	DelayTolerant         bool         `yaml:"delay_tolerant"`
	// SuppressUpdates enables the update controller; when false every
	// compensation vector is sent.
	SuppressUpdates bool `yaml:"suppress_updates"`
	// ResetXBeforeAccumulate zeroes the stored X at the first report of a
	// sampling window instead of after the last one.
	ResetXBeforeAccumulate bool `yaml:"reset_x_before_accumulate"`
}

// Validate checks durations and their ratios.
func (p TimeScheduleParameters) Validate() error {
	if p.AccountingPeriod <= 0 {
		return fmt.Errorf("accounting_period must be positive, got %s", p.AccountingPeriod)
	}
	if p.ReportPeriodEA <= 0 {
		return fmt.Errorf("report_period_ea must be positive, got %s", p.ReportPeriodEA)
	}
	if p.ReportPeriodDTM <= 0 {
		return fmt.Errorf("report_period_dtm must be positive, got %s", p.ReportPeriodDTM)
	}
	if p.AccountingPeriod < p.ReportPeriodEA {
		return fmt.Errorf("accounting_period %s shorter than report_period_ea %s", p.AccountingPeriod, p.ReportPeriodEA)
	}
	if p.CompensationPeriod < 0 || p.SamplingPeriod < 0 {
		return fmt.Errorf("compensation_period and sampling_period must be non-negative")
	}
	if p.Tol1 < 0 || p.Tol2 < 0 {
		return fmt.Errorf("tolerances must be non-negative, got tol1=%f tol2=%f", p.Tol1, p.Tol2)
	}
	return nil
}

// ReportsPerAccountingPeriod is the number of economic-analyzer reports
// after which a reference vector is computed.
func (p TimeScheduleParameters) ReportsPerAccountingPeriod() int {
	if p.ReportPeriodEA <= 0 {
		return 1
	}
	return max(1, int(p.AccountingPeriod/p.ReportPeriodEA))
}

// CompensationEvery is the number of traffic-manager reports between forced
// compensation dispatches.
func (p TimeScheduleParameters) CompensationEvery() int {
	if p.ReportPeriodDTM <= 0 {
		return 1
	}
	return max(1, int(p.CompensationPeriod/p.ReportPeriodDTM))
}

// SamplingWindowReports is the number of traffic-manager reports per
// 95th-percentile sampling window.
func (p TimeScheduleParameters) SamplingWindowReports() int {
	if p.ReportPeriodDTM <= 0 {
		return 1
	}
	return max(1, int(p.SamplingPeriod/p.ReportPeriodDTM))
}

// Validate checks the charging rule and threshold.
func (p SystemControlParameters) Validate() error {
	if !ValidChargingRules[p.ChargingRule] {
		return fmt.Errorf("unknown charging rule %q; valid: volume, 95th-percentile", p.ChargingRule)
	}
	if p.CompensationThreshold < 0 {
		return fmt.Errorf("compensation_threshold must be non-negative, got %f", p.CompensationThreshold)
	}
	return nil
}
