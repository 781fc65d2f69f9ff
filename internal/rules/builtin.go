package rules

import "github.com/openathletics/stridewatch/internal/domain"

// SampleRules returns starter screening rules that operators commonly
// enable. They ship disabled; enable them through the rules API.
func SampleRules() []*domain.ScreeningRule {
	return []*domain.ScreeningRule{
		{
			ID:          "night-burst",
			Name:        "Night activity burst",
			Description: "Large step counts recorded between midnight and 4am",
			Expression:  `steps > 15000.0 && hour >= 0 && hour < 4`,
			Risk:        55,
			Category:    domain.FraudAnomalousPattern,
			Note:        "high step volume recorded overnight",
		},
		{
			ID:          "manual-entry-speed",
			Name:        "Fast manual entry",
			Description: "Manually entered activities at running pace or above",
			Expression:  `source == "manual" && avg_speed > 10.0`,
			Risk:        45,
			Category:    domain.FraudVehicleUse,
			Note:        "manually entered activity at implausible pace",
		},
		{
			ID:          "no-sensor-marathon",
			Name:        "Long distance without heart rate",
			Description: "Marathon-length distance with no heart rate signal",
			Expression:  `distance > 42.0 && !has_heart_rate`,
			Risk:        50,
			Category:    domain.FraudStepMisreporting,
			Note:        "marathon distance reported without heart rate data",
		},
	}
}
