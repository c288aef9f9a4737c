package basket

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/indexbasket/basketcore/errs"
)

// WeightTolerance is the permitted deviation of the constituent weight sum
// from 100.00.
var WeightTolerance = decimal.RequireFromString("0.05")

// TargetWeight is the required constituent weight sum.
var TargetWeight = decimal.RequireFromString("100.00")

// MinConstituents is the smallest basket eligible for backtesting or approval.
const MinConstituents = 2

var codePattern = regexp.MustCompile(`^[A-Z0-9_]{3,50}$`)

// Basket asset classes.
const (
	TypeEquity      = "EQUITY"
	TypeFixedIncome = "FIXED_INCOME"
	TypeCommodity   = "COMMODITY"
	TypeMixed       = "MIXED"
)

// Constituent is one weighted instrument inside a basket.
type Constituent struct {
	Symbol   string          `json:"symbol"`
	Name     string          `json:"name,omitempty"`
	Weight   decimal.Decimal `json:"weight"`
	Sector   string          `json:"sector,omitempty"`
	Country  string          `json:"country,omitempty"`
	Currency string          `json:"currency,omitempty"`
}

// Definition is the user-editable payload of a basket: everything that a
// CREATE_BASKET or MODIFY command may replace.
type Definition struct {
	Code         string        `json:"code"`
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	Type         string        `json:"type"`
	BaseCurrency string        `json:"base_currency"`
	Constituents []Constituent `json:"constituents"`
}

// BacktestReport captures the outcome of the most recent backtest run.
type BacktestReport struct {
	CompletedAt    time.Time `json:"completed_at"`
	AnnualReturn   string    `json:"annual_return,omitempty"`
	CriticalErrors []string  `json:"critical_errors,omitempty"`
}

// Valid reports whether the backtest produced usable results.
func (r *BacktestReport) Valid() bool {
	return r != nil && len(r.CriticalErrors) == 0
}

// Snapshot is the current state of one basket as reconstructed from its
// event log. Mutated exclusively by the coordinator applying committed
// transitions.
type Snapshot struct {
	ID               string          `json:"id"`
	Definition       Definition      `json:"definition"`
	CreatedBy        string          `json:"created_by"`
	Status           Status          `json:"status"`
	PreviousStatus   Status          `json:"previous_status,omitempty"`
	Version          int64           `json:"version"`
	TransitionCount  int64           `json:"transition_count"`
	RetryCount       int             `json:"retry_count"`
	LastTransitionAt time.Time       `json:"last_transition_at"`
	Backtest         *BacktestReport `json:"backtest,omitempty"`
	ApprovedBy       string          `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time      `json:"approved_at,omitempty"`
	ListedAt         *time.Time      `json:"listed_at,omitempty"`
	ActivatedAt      *time.Time      `json:"activated_at,omitempty"`
}

// Clone returns a deep copy safe to hand outside the coordinator.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Definition.Constituents = append([]Constituent(nil), s.Definition.Constituents...)
	if s.Backtest != nil {
		report := *s.Backtest
		report.CriticalErrors = append([]string(nil), s.Backtest.CriticalErrors...)
		out.Backtest = &report
	}
	if s.ApprovedAt != nil {
		t := *s.ApprovedAt
		out.ApprovedAt = &t
	}
	if s.ListedAt != nil {
		t := *s.ListedAt
		out.ListedAt = &t
	}
	if s.ActivatedAt != nil {
		t := *s.ActivatedAt
		out.ActivatedAt = &t
	}
	return &out
}

// WeightSum totals the constituent weights.
func (d Definition) WeightSum() decimal.Decimal {
	sum := decimal.Zero
	for _, c := range d.Constituents {
		sum = sum.Add(c.Weight)
	}
	return sum
}

// WeightsBalanced reports whether the weight sum is 100.00 within tolerance.
func (d Definition) WeightsBalanced() bool {
	return d.WeightSum().Sub(TargetWeight).Abs().LessThanOrEqual(WeightTolerance)
}

// Validate checks the structural invariants of a basket definition.
func (d Definition) Validate() error {
	code := strings.TrimSpace(d.Code)
	if !codePattern.MatchString(code) {
		return errs.New("basket/definition", errs.CodeInvalid,
			errs.WithMessage("basket code must be 3-50 uppercase letters, digits, or underscores"))
	}
	if strings.TrimSpace(d.Name) == "" {
		return errs.New("basket/definition", errs.CodeInvalid, errs.WithMessage("basket name required"))
	}
	switch d.Type {
	case TypeEquity, TypeFixedIncome, TypeCommodity, TypeMixed:
	default:
		return errs.New("basket/definition", errs.CodeInvalid,
			errs.WithMessage("basket type must be EQUITY, FIXED_INCOME, COMMODITY, or MIXED"))
	}
	if len(d.BaseCurrency) != 3 {
		return errs.New("basket/definition", errs.CodeInvalid,
			errs.WithMessage("base currency must be a 3-letter code"))
	}
	seen := make(map[string]struct{}, len(d.Constituents))
	for _, c := range d.Constituents {
		sym := strings.TrimSpace(c.Symbol)
		if sym == "" {
			return errs.New("basket/definition", errs.CodeInvalid, errs.WithMessage("constituent symbol required"))
		}
		if _, dup := seen[sym]; dup {
			return errs.New("basket/definition", errs.CodeInvalid,
				errs.WithMessage("duplicate constituent symbol: "+sym))
		}
		seen[sym] = struct{}{}
		if !c.Weight.IsPositive() {
			return errs.New("basket/definition", errs.CodeInvalid,
				errs.WithMessage("constituent weight must be positive: "+sym))
		}
	}
	return nil
}
