package market

import (
	"testing"

	"github.com/GoPolymarket/polysession/internal/clob"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lv(price, size string) Level {
	return Level{Price: decimal.RequireFromString(price), Size: decimal.RequireFromString(size)}
}

func TestOrderbookSnapshotSorts(t *testing.T) {
	ob := NewOrderbook("tok")
	assert.False(t, ob.Ready())

	ob.Snapshot("0xcond", "h1",
		[]Level{lv("0.40", "10"), lv("0.45", "5"), lv("0.30", "1")},
		[]Level{lv("0.60", "3"), lv("0.50", "2")},
	)
	require.True(t, ob.Ready())

	bids, asks := ob.GetCopy()
	require.Len(t, bids, 3)
	assert.Equal(t, "0.45", bids[0].Price.String())
	assert.Equal(t, "0.3", bids[2].Price.String())
	require.Len(t, asks, 2)
	assert.Equal(t, "0.5", asks[0].Price.String())
}

func TestOrderbookUpdate(t *testing.T) {
	ob := NewOrderbook("tok")
	ob.Snapshot("m", "h", []Level{lv("0.40", "10")}, []Level{lv("0.60", "3")})

	require.NoError(t, ob.Update(clob.Buy, "0.42", "7"))
	require.NoError(t, ob.Update(clob.Buy, "0.40", "4"))
	require.NoError(t, ob.Update(clob.Sell, "0.60", "0"))
	require.NoError(t, ob.Update(clob.Sell, "0.55", "1"))

	bids, asks := ob.GetCopy()
	require.Len(t, bids, 2)
	assert.Equal(t, "0.42", bids[0].Price.String())
	assert.Equal(t, "4", bids[1].Size.String())
	require.Len(t, asks, 1)
	assert.Equal(t, "0.55", asks[0].Price.String())

	assert.Error(t, ob.Update(clob.Buy, "abc", "1"))
}

func TestParseLevelsSkipsBadEntries(t *testing.T) {
	levels := ParseLevels([]clob.BookLevel{
		{Price: "0.5", Size: "10"},
		{Price: "x", Size: "10"},
		{Price: "0.4", Size: "0"},
		{Price: "0.3", Size: ""},
	})
	require.Len(t, levels, 1)
	assert.Equal(t, "0.5", levels[0].Price.String())
}

func TestToBookAndInvalidate(t *testing.T) {
	ob := NewOrderbook("tok")
	ob.Snapshot("m", "h", []Level{lv("0.4", "1")}, []Level{lv("0.6", "2")})

	book := ob.ToBook()
	assert.Equal(t, "tok", book.AssetID)
	assert.Equal(t, "m", book.Market)
	assert.Equal(t, []clob.BookLevel{{Price: "0.4", Size: "1"}}, book.Bids)
	assert.Equal(t, []clob.BookLevel{{Price: "0.6", Size: "2"}}, book.Asks)
	assert.NotEmpty(t, book.Timestamp)

	ob.Invalidate()
	assert.False(t, ob.Ready())
}
