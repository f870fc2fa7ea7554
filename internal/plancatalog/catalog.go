// Package plancatalog maps plan tiers to limits and overage rates.
// The table is static; self-hosted deployments may override entries via
// plans.yml (see Holder).
package plancatalog

import (
	"strings"

	usagedomain "github.com/craftcv/craftcv/internal/usagecounter/domain"
)

type PlanType string

const (
	PlanFree         PlanType = "free"
	PlanStarter      PlanType = "starter"
	PlanProfessional PlanType = "professional"
	PlanEnterprise   PlanType = "enterprise"
)

// NormalizePlanType maps arbitrary input to a known tier, defaulting to
// free for anything unrecognized.
func NormalizePlanType(raw string) PlanType {
	switch PlanType(strings.ToLower(strings.TrimSpace(raw))) {
	case PlanStarter:
		return PlanStarter
	case PlanProfessional:
		return PlanProfessional
	case PlanEnterprise:
		return PlanEnterprise
	default:
		return PlanFree
	}
}

// PeriodLimits carries one counter's limit per period window.
type PeriodLimits struct {
	Daily   float64 `mapstructure:"daily" json:"daily"`
	Monthly float64 `mapstructure:"monthly" json:"monthly"`
	Yearly  float64 `mapstructure:"yearly" json:"yearly"`
}

// For selects the limit for a period kind.
func (p PeriodLimits) For(period usagedomain.Period) float64 {
	switch period {
	case usagedomain.PeriodDaily:
		return p.Daily
	case usagedomain.PeriodYearly:
		return p.Yearly
	default:
		return p.Monthly
	}
}

// Limits is the full quota surface of a plan tier.
type Limits struct {
	Seats     int                                          `mapstructure:"seats" json:"seats"`
	StorageGB float64                                      `mapstructure:"storage_gb" json:"storage_gb"`
	Counters  map[usagedomain.CounterType]PeriodLimits     `mapstructure:"counters" json:"counters"`
	Features  []string                                     `mapstructure:"features" json:"features"`
}

// CounterLimit resolves the limit for a counter type and period. Seats and
// storage are period-independent.
func (l Limits) CounterLimit(counterType usagedomain.CounterType, period usagedomain.Period) float64 {
	switch counterType {
	case usagedomain.CounterUsers:
		return float64(l.Seats)
	case usagedomain.CounterStorageGB:
		return l.StorageGB
	}
	return l.Counters[counterType].For(period)
}

// HasFeature reports membership in the plan's feature list.
func (l Limits) HasFeature(feature string) bool {
	feature = strings.ToLower(strings.TrimSpace(feature))
	for _, f := range l.Features {
		if strings.EqualFold(f, feature) {
			return true
		}
	}
	return false
}

// OverageRates maps counter types (users covers seats) to the currency
// charged per unit beyond the plan limit.
type OverageRates map[usagedomain.CounterType]float64

var defaultLimits = map[PlanType]Limits{
	PlanFree: {
		Seats:     1,
		StorageGB: 0.5,
		Counters: map[usagedomain.CounterType]PeriodLimits{
			usagedomain.CounterExports:       {Daily: 2, Monthly: 10, Yearly: 100},
			usagedomain.CounterOptimizations: {Daily: 1, Monthly: 5, Yearly: 50},
			usagedomain.CounterCoverLetters:  {Daily: 1, Monthly: 5, Yearly: 50},
			usagedomain.CounterAPICalls:      {Daily: 100, Monthly: 1000, Yearly: 10000},
		},
		Features: []string{"basic_templates"},
	},
	PlanStarter: {
		Seats:     5,
		StorageGB: 5,
		Counters: map[usagedomain.CounterType]PeriodLimits{
			usagedomain.CounterExports:       {Daily: 20, Monthly: 200, Yearly: 2000},
			usagedomain.CounterOptimizations: {Daily: 10, Monthly: 100, Yearly: 1000},
			usagedomain.CounterCoverLetters:  {Daily: 10, Monthly: 100, Yearly: 1000},
			usagedomain.CounterAPICalls:      {Daily: 1000, Monthly: 10000, Yearly: 100000},
		},
		Features: []string{"basic_templates", "premium_templates", "cover_letters"},
	},
	PlanProfessional: {
		Seats:     25,
		StorageGB: 50,
		Counters: map[usagedomain.CounterType]PeriodLimits{
			usagedomain.CounterExports:       {Daily: 100, Monthly: 1000, Yearly: 10000},
			usagedomain.CounterOptimizations: {Daily: 50, Monthly: 500, Yearly: 5000},
			usagedomain.CounterCoverLetters:  {Daily: 50, Monthly: 500, Yearly: 5000},
			usagedomain.CounterAPICalls:      {Daily: 10000, Monthly: 100000, Yearly: 1000000},
		},
		Features: []string{
			"basic_templates", "premium_templates", "cover_letters",
			"semantic_search", "api_access", "priority_support",
		},
	},
	PlanEnterprise: {
		Seats:     500,
		StorageGB: 500,
		Counters: map[usagedomain.CounterType]PeriodLimits{
			usagedomain.CounterExports:       {Daily: 1000, Monthly: 10000, Yearly: 100000},
			usagedomain.CounterOptimizations: {Daily: 500, Monthly: 5000, Yearly: 50000},
			usagedomain.CounterCoverLetters:  {Daily: 500, Monthly: 5000, Yearly: 50000},
			usagedomain.CounterAPICalls:      {Daily: 100000, Monthly: 1000000, Yearly: 10000000},
		},
		Features: []string{
			"basic_templates", "premium_templates", "cover_letters",
			"semantic_search", "api_access", "priority_support",
			"sso", "scim", "audit_logs", "custom_branding",
		},
	},
}

var defaultOverageRates = map[PlanType]OverageRates{
	PlanFree: {},
	PlanStarter: {
		usagedomain.CounterExports:       0.10,
		usagedomain.CounterOptimizations: 0.15,
		usagedomain.CounterCoverLetters:  0.15,
		usagedomain.CounterAPICalls:      0.001,
		usagedomain.CounterStorageGB:     0.50,
		usagedomain.CounterUsers:         5.00,
	},
	PlanProfessional: {
		usagedomain.CounterExports:       0.06,
		usagedomain.CounterOptimizations: 0.10,
		usagedomain.CounterCoverLetters:  0.10,
		usagedomain.CounterAPICalls:      0.0005,
		usagedomain.CounterStorageGB:     0.40,
		usagedomain.CounterUsers:         4.00,
	},
	PlanEnterprise: {
		usagedomain.CounterExports:       0.04,
		usagedomain.CounterOptimizations: 0.08,
		usagedomain.CounterCoverLetters:  0.08,
		usagedomain.CounterAPICalls:      0.0003,
		usagedomain.CounterStorageGB:     0.30,
		usagedomain.CounterUsers:         3.00,
	},
}

func counterTypeFromKey(key string) usagedomain.CounterType {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "seats" {
		return usagedomain.CounterUsers
	}
	return usagedomain.CounterType(key)
}

// LimitsFor returns the compiled-in limits for a tier (free for unknown).
func LimitsFor(plan PlanType) Limits {
	if limits, ok := defaultLimits[plan]; ok {
		return limits
	}
	return defaultLimits[PlanFree]
}

// OverageRatesFor returns the compiled-in per-unit rates (free for unknown).
func OverageRatesFor(plan PlanType) OverageRates {
	if rates, ok := defaultOverageRates[plan]; ok {
		return rates
	}
	return defaultOverageRates[PlanFree]
}
