package market

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/GoPolymarket/polysession/internal/clob"
	"github.com/shopspring/decimal"
)

// Level represents a single price level in the orderbook
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Orderbook is the in-memory state of one token's book. It only serves reads
// after a full snapshot has been applied.
type Orderbook struct {
	TokenID     string
	Market      string
	Hash        string
	Bids        []Level // Sorted High to Low
	Asks        []Level // Sorted Low to High
	LastUpdated time.Time
	ready       bool
	mu          sync.RWMutex
}

func NewOrderbook(tokenID string) *Orderbook {
	return &Orderbook{
		TokenID: tokenID,
		Bids:    make([]Level, 0),
		Asks:    make([]Level, 0),
	}
}

// ParseLevels converts wire levels, skipping malformed or empty ones.
func ParseLevels(raw []clob.BookLevel) []Level {
	levels := make([]Level, 0, len(raw))
	for _, l := range raw {
		price, err := decimal.NewFromString(l.Price)
		if err != nil {
			continue
		}
		size, err := decimal.NewFromString(l.Size)
		if err != nil || size.IsZero() {
			continue
		}
		levels = append(levels, Level{Price: price, Size: size})
	}
	return levels
}

// Snapshot replaces the entire book state
func (ob *Orderbook) Snapshot(market, hash string, bids, asks []Level) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	sortLevels(bids, true)
	sortLevels(asks, false)
	ob.Market = market
	ob.Hash = hash
	ob.Bids = bids
	ob.Asks = asks
	ob.LastUpdated = time.Now()
	ob.ready = true
}

// Update processes a price/size update
// size 0 means remove level
func (ob *Orderbook) Update(side clob.Side, priceStr, sizeStr string) error {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return err
	}
	size, err := decimal.NewFromString(sizeStr)
	if err != nil {
		return err
	}

	if side == clob.Buy {
		ob.updateLevel(&ob.Bids, price, size, true)
	} else {
		ob.updateLevel(&ob.Asks, price, size, false)
	}
	ob.LastUpdated = time.Now()
	return nil
}

func (ob *Orderbook) updateLevel(levels *[]Level, price, size decimal.Decimal, descending bool) {
	// Books are sparse, a linear scan is enough.
	idx := -1
	for i, l := range *levels {
		if l.Price.Equal(price) {
			idx = i
			break
		}
	}

	if size.IsZero() {
		if idx != -1 {
			*levels = append((*levels)[:idx], (*levels)[idx+1:]...)
		}
		return
	}

	if idx != -1 {
		(*levels)[idx].Size = size
		return
	}
	*levels = append(*levels, Level{Price: price, Size: size})
	sortLevels(*levels, descending)
}

func sortLevels(levels []Level, descending bool) {
	sort.Slice(levels, func(i, j int) bool {
		if descending {
			return levels[i].Price.GreaterThan(levels[j].Price)
		}
		return levels[i].Price.LessThan(levels[j].Price)
	})
}

// Invalidate drops readiness, e.g. after the stream disconnects.
func (ob *Orderbook) Invalidate() {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.ready = false
}

func (ob *Orderbook) Ready() bool {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.ready
}

func (ob *Orderbook) UpdatedAt() time.Time {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.LastUpdated
}

// GetCopy returns a safe copy of the current state (Thread-safe read)
func (ob *Orderbook) GetCopy() (bids, asks []Level) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	bids = make([]Level, len(ob.Bids))
	copy(bids, ob.Bids)
	asks = make([]Level, len(ob.Asks))
	copy(asks, ob.Asks)
	return
}

// ToBook renders the book in the exchange's REST shape.
func (ob *Orderbook) ToBook() *clob.Book {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	return &clob.Book{
		Market:    ob.Market,
		AssetID:   ob.TokenID,
		Hash:      ob.Hash,
		Timestamp: strconv.FormatInt(ob.LastUpdated.UnixMilli(), 10),
		Bids:      toWire(ob.Bids),
		Asks:      toWire(ob.Asks),
	}
}

func toWire(levels []Level) []clob.BookLevel {
	out := make([]clob.BookLevel, len(levels))
	for i, l := range levels {
		out[i] = clob.BookLevel{Price: l.Price.String(), Size: l.Size.String()}
	}
	return out
}
