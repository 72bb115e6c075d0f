package commission

import (
	"context"

	"lv-goldex/internal/apperr"
	"lv-goldex/internal/model"
	"lv-goldex/internal/types"

	"github.com/shopspring/decimal"
)

// MaxRate caps any configured rate; rules above it are ignored.
var MaxRate = decimal.RequireFromString("0.10")

type Input struct {
	Product   types.ProductType
	Side      types.OrderSide
	UnitPrice decimal.Decimal
	Quantity  decimal.Decimal
}

type Result struct {
	RuleID   string
	Notional decimal.Decimal
	Rate     decimal.Decimal
	Amount   decimal.Decimal
}

// Calculate picks the active rule whose [min, max] band contains the
// notional and applies the side's rate. When bands overlap the rule with
// the highest minimum wins. The amount is rounded to whole rial.
func Calculate(rules []model.CommissionRule, in Input) (Result, error) {
	notional := in.Quantity.Mul(in.UnitPrice)
	var best *model.CommissionRule
	var bestRate decimal.Decimal
	for i := range rules {
		r := &rules[i]
		if !r.Active || r.Product != in.Product {
			continue
		}
		if notional.LessThan(r.MinAmount) {
			continue
		}
		if r.MaxAmount != nil && notional.GreaterThan(*r.MaxAmount) {
			continue
		}
		rate := r.BuyRate
		if in.Side == types.OrderSideSell {
			rate = r.SellRate
		}
		if rate.IsNegative() || rate.GreaterThan(MaxRate) {
			continue
		}
		if best == nil || r.MinAmount.GreaterThan(best.MinAmount) {
			best = r
			bestRate = rate
		}
	}
	if best == nil {
		return Result{}, apperr.New(apperr.CodeRuleNotFound, "no commission rule for "+string(in.Product)+" at notional "+notional.String())
	}
	return Result{
		RuleID:   best.ID,
		Notional: notional,
		Rate:     bestRate,
		Amount:   notional.Mul(bestRate).Round(0),
	}, nil
}

type RuleSource interface {
	ActiveRules(ctx context.Context, product types.ProductType) ([]model.CommissionRule, error)
}

type Calculator struct {
	rules RuleSource
}

func NewCalculator(rules RuleSource) *Calculator {
	return &Calculator{rules: rules}
}

func (c *Calculator) Quote(ctx context.Context, in Input) (Result, error) {
	rules, err := c.rules.ActiveRules(ctx, in.Product)
	if err != nil {
		return Result{}, err
	}
	return Calculate(rules, in)
}
