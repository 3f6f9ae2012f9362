package models

import "time"

// InstanceStatDay holds counts for a single day.
type InstanceStatDay struct {
	Day       time.Time `json:"day" db:"day"`
	Succeeded int       `json:"succeeded" db:"succeeded"`
	Failed    int       `json:"failed" db:"failed"`
	Ignored   int       `json:"ignored" db:"ignored"`
	Killed    int       `json:"killed" db:"killed"`
	Running   int       `json:"running" db:"running"`
}

// InstanceStat is the aggregated stats over a period, plus per-day details.
type InstanceStat struct {
	Total          int               `json:"total" db:"total"`
	Succeeded      int               `json:"succeeded" db:"succeeded"`
	Failed         int               `json:"failed" db:"failed"`
	Ignored        int               `json:"ignored" db:"ignored"`
	Killed         int               `json:"killed" db:"killed"`
	Running        int               `json:"running" db:"running"`
	SuccessRate    float64           `json:"successRate" db:"success_rate"` // succeeded/total
	ActivePolicies int               `json:"activePolicies" db:"active_policies"`
	PerDay         []InstanceStatDay `json:"perDay" db:"per_day"`
}
