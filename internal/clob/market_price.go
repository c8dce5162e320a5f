package clob

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

var ErrNoMatch = errors.New("no match")

type bookLevel struct {
	price decimal.Decimal
	size  decimal.Decimal
}

// bestFirst parses levels and orders them from the best price outward. Bad or
// empty levels are dropped.
func bestFirst(raw []BookLevel, descending bool) []bookLevel {
	levels := make([]bookLevel, 0, len(raw))
	for _, l := range raw {
		price, err := decimal.NewFromString(l.Price)
		if err != nil || !price.IsPositive() {
			continue
		}
		size, err := decimal.NewFromString(l.Size)
		if err != nil || !size.IsPositive() {
			continue
		}
		levels = append(levels, bookLevel{price: price, size: size})
	}
	sort.SliceStable(levels, func(i, j int) bool {
		if descending {
			return levels[i].price.GreaterThan(levels[j].price)
		}
		return levels[i].price.LessThan(levels[j].price)
	})
	return levels
}

// MarketPrice is the worst price a market order has to reach to fill in
// full. A BUY amount is collateral matched against the asks, a SELL amount is
// shares matched against the bids. ErrNoMatch means the book is too thin.
func MarketPrice(book *Book, side Side, amount float64) (float64, error) {
	if book == nil {
		return 0, ErrNoMatch
	}
	want := decimal.NewFromFloat(amount)
	levels := bestFirst(book.Bids, true)
	if side == Buy {
		levels = bestFirst(book.Asks, false)
	}

	sum := decimal.Zero
	for _, l := range levels {
		if side == Buy {
			sum = sum.Add(l.size.Mul(l.price))
		} else {
			sum = sum.Add(l.size)
		}
		if sum.GreaterThanOrEqual(want) {
			return l.price.InexactFloat64(), nil
		}
	}
	return 0, ErrNoMatch
}
