package formula

import (
	"fmt"

	"github.com/nanashi07/sminer-sub000/internal/model"
)

// BuildProfit renders the profit expression for a set of open order legs:
// one "(SYMBOL - entry) * volume" product per leg, summed. The expression
// references symbols by identifier so the same text can be logged and then
// evaluated against close prices.
func BuildProfit(orders []*model.Order) string {
	terms := make([]string, 0, len(orders))
	for _, o := range orders {
		terms = append(terms, fmt.Sprintf("(%s - %s) * %d",
			o.Symbol, formatNumber(o.EntryPrice), o.Volume))
	}
	return joinTerms(terms)
}

// Profit builds the aggregate profit expression for the legs and evaluates
// it with the given symbol close prices. A symbol missing from closePrices
// is a hard error for the whole evaluation. The returned string is the
// exact expression that produced the value.
func Profit(orders []*model.Order, closePrices map[string]float64) (float64, string, error) {
	if len(orders) == 0 {
		return 0, "", nil
	}
	expr := BuildProfit(orders)
	value, err := Evaluate(expr, closePrices)
	if err != nil {
		return 0, expr, err
	}
	return value, expr, nil
}
