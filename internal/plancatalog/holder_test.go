package plancatalog

import (
	"os"
	"testing"

	"go.uber.org/zap"

	usagedomain "github.com/craftcv/craftcv/internal/usagecounter/domain"
)

func TestHolderWithoutConfigFileServesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	holder, err := NewHolder(zap.NewNop())
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	if got := holder.LimitsFor(PlanStarter).Seats; got != 5 {
		t.Fatalf("starter seats = %d, want compiled default 5", got)
	}
}

func TestHolderAppliesOverrides(t *testing.T) {
	t.Chdir(t.TempDir())

	yml := []byte(`plans:
  limits:
    starter:
      seats: 8
      storage_gb: 12
  overage_rates:
    starter:
      exports: 0.09
`)
	if err := os.WriteFile("plans.yml", yml, 0o644); err != nil {
		t.Fatalf("write plans.yml: %v", err)
	}

	holder, err := NewHolder(zap.NewNop())
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}

	if got := holder.LimitsFor(PlanStarter).Seats; got != 8 {
		t.Fatalf("starter seats = %d, want override 8", got)
	}
	if got := holder.OverageRatesFor(PlanStarter)[usagedomain.CounterExports]; got != 0.09 {
		t.Fatalf("starter export rate = %v, want override 0.09", got)
	}

	// Tiers without overrides keep the compiled defaults.
	if got := holder.LimitsFor(PlanFree).Seats; got != 1 {
		t.Fatalf("free seats = %d, want default 1", got)
	}
}
