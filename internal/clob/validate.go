package clob

import (
	"fmt"
	"math"
)

const tickTolerance = 1e-10

// IsValidTickPrice reports whether price is an integer multiple of tick.
func IsValidTickPrice(price, tick float64) bool {
	if tick <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return false
	}
	nearest := math.Round(price/tick) * tick
	return math.Abs(price-nearest) < tickTolerance
}

// ValidateLimitPrice checks that price lies in [tick, 1-tick] on the tick grid.
func ValidateLimitPrice(price, tick float64) error {
	if tick <= 0 || tick >= 1 {
		return fmt.Errorf("invalid tick size %v", tick)
	}
	if price < tick-tickTolerance || price > 1-tick+tickTolerance {
		return fmt.Errorf("price %v must be between %v and %v", price, tick, 1-tick)
	}
	if !IsValidTickPrice(price, tick) {
		return fmt.Errorf("price %v is not a multiple of tick size %v", price, tick)
	}
	return nil
}

// ValidProbability is the open interval (0,1) every quoted price must sit in.
func ValidProbability(p float64) bool {
	return !math.IsNaN(p) && p > 0 && p < 1
}
