package plancatalog

import (
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Catalog is the lookup surface consumed by the plan enforcer.
type Catalog interface {
	LimitsFor(plan PlanType) Limits
	OverageRatesFor(plan PlanType) OverageRates
}

type overrides struct {
	Limits map[string]Limits             `mapstructure:"limits"`
	Rates  map[string]map[string]float64 `mapstructure:"overage_rates"`
}

// Holder serves catalog lookups with optional per-tier overrides loaded
// from plans.yml and hot-reloaded on change. Missing file means compiled
// defaults only.
type Holder struct {
	current atomic.Value // holds overrides
}

func NewHolder(log *zap.Logger) (*Holder, error) {
	log = log.Named("plancatalog")
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/craftcv/config")
	v.AddConfigPath("/etc/craftcv")
	v.AddConfigPath(".")

	holder := &Holder{}
	holder.current.Store(overrides{})

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		return holder, nil
	}

	var loaded overrides
	if err := v.UnmarshalKey("plans", &loaded); err != nil {
		return nil, err
	}
	holder.current.Store(loaded)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated overrides
		if err := v.UnmarshalKey("plans", &updated); err != nil {
			log.Warn("catalog reload failed", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("catalog reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *Holder) LimitsFor(plan PlanType) Limits {
	o := h.current.Load().(overrides)
	if limits, ok := o.Limits[string(plan)]; ok {
		return limits
	}
	return LimitsFor(plan)
}

func (h *Holder) OverageRatesFor(plan PlanType) OverageRates {
	o := h.current.Load().(overrides)
	if raw, ok := o.Rates[string(plan)]; ok {
		rates := make(OverageRates, len(raw))
		for key, rate := range raw {
			rates[counterTypeFromKey(key)] = rate
		}
		return rates
	}
	return OverageRatesFor(plan)
}
