package basket

import (
	"testing"

	"github.com/shopspring/decimal"
)

func validDefinition() Definition {
	return Definition{
		Code:         "TECH_BASKET",
		Name:         "Tech Basket",
		Type:         TypeEquity,
		BaseCurrency: "USD",
		Constituents: []Constituent{
			{Symbol: "AAPL", Weight: decimal.RequireFromString("60.00")},
			{Symbol: "MSFT", Weight: decimal.RequireFromString("40.00")},
		},
	}
}

func TestDefinitionValidate(t *testing.T) {
	if err := validDefinition().Validate(); err != nil {
		t.Fatalf("valid definition rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Definition)
	}{
		{"lowercase code", func(d *Definition) { d.Code = "tech_basket" }},
		{"short code", func(d *Definition) { d.Code = "AB" }},
		{"missing name", func(d *Definition) { d.Name = "  " }},
		{"unknown type", func(d *Definition) { d.Type = "CRYPTO" }},
		{"bad currency", func(d *Definition) { d.BaseCurrency = "USDT" }},
		{"empty symbol", func(d *Definition) { d.Constituents[0].Symbol = "" }},
		{"duplicate symbol", func(d *Definition) { d.Constituents[1].Symbol = "AAPL" }},
		{"zero weight", func(d *Definition) { d.Constituents[0].Weight = decimal.Zero }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			def := validDefinition()
			tc.mutate(&def)
			if err := def.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestWeightsBalancedTolerance(t *testing.T) {
	cases := []struct {
		name    string
		weights []string
		want    bool
	}{
		{"exact", []string{"60.00", "40.00"}, true},
		{"within tolerance high", []string{"60.00", "40.05"}, true},
		{"within tolerance low", []string{"60.00", "39.95"}, true},
		{"beyond tolerance high", []string{"60.00", "40.06"}, false},
		{"beyond tolerance low", []string{"60.00", "39.94"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			def := Definition{}
			for i, w := range tc.weights {
				def.Constituents = append(def.Constituents, Constituent{
					Symbol: string(rune('A' + i)),
					Weight: decimal.RequireFromString(w),
				})
			}
			if got := def.WeightsBalanced(); got != tc.want {
				t.Fatalf("WeightsBalanced(%v) = %v, want %v", tc.weights, got, tc.want)
			}
		})
	}
}

func TestSnapshotCloneIsDeep(t *testing.T) {
	def := validDefinition()
	snap := &Snapshot{
		ID:         "b-1",
		Definition: def,
		Status:     StatusActive,
		Backtest:   &BacktestReport{CriticalErrors: []string{"gap"}},
	}
	clone := snap.Clone()
	clone.Definition.Constituents[0].Weight = decimal.Zero
	clone.Backtest.CriticalErrors[0] = "changed"

	if snap.Definition.Constituents[0].Weight.IsZero() {
		t.Fatal("clone shares constituent slice with original")
	}
	if snap.Backtest.CriticalErrors[0] != "gap" {
		t.Fatal("clone shares backtest errors with original")
	}
}

func TestIdentityRoles(t *testing.T) {
	id := Identity{ID: "alice", Roles: []Role{RoleApprover}}
	if !id.HasRole(RoleApprover) {
		t.Fatal("expected approver role")
	}
	if id.HasRole(RoleAdmin) {
		t.Fatal("unexpected admin role")
	}
	if !id.Is("alice") || id.Is("bob") {
		t.Fatal("identity comparison broken")
	}

	sys := SystemIdentity()
	if !sys.HasRole(RoleAdmin) || !sys.HasRole(RoleSystem) {
		t.Fatalf("system identity missing roles: %+v", sys)
	}
}

func TestStatusPredicates(t *testing.T) {
	for _, s := range []Status{StatusDeleted, StatusDelisted} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusDraft, StatusActive, StatusSuspended} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
	if !Status("DRAFT").Known() || Status("BOGUS").Known() {
		t.Fatal("Known() misclassifies statuses")
	}
}
