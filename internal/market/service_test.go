package market

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GoPolymarket/polysession/internal/clob"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	book  *clob.Book
	err   error
}

func (f *fakeFetcher) GetBook(ctx context.Context, tokenID string) (*clob.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	b := *f.book
	b.AssetID = tokenID
	return &b, nil
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// wsServer answers every subscription with a snapshot followed by a delta.
// Closing kill drops every open connection.
func wsServer(received chan<- map[string]interface{}, kill <-chan struct{}) *httptest.Server {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-kill:
				_ = conn.Close()
			case <-done:
			}
		}()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg map[string]interface{}
			if json.Unmarshal(raw, &msg) != nil {
				continue
			}
			if received != nil {
				received <- msg
			}
			ids, _ := msg["assets_ids"].([]interface{})
			for _, id := range ids {
				snapshot := []map[string]interface{}{{
					"event_type": "book",
					"asset_id":   id,
					"market":     "0xcond",
					"hash":       "h",
					"bids":       []map[string]string{{"price": "0.40", "size": "10"}},
					"asks":       []map[string]string{{"price": "0.60", "size": "5"}},
				}}
				if err := conn.WriteJSON(snapshot); err != nil {
					return
				}
				delta := map[string]interface{}{
					"event_type": "price_change",
					"market":     "0xcond",
					"price_changes": []map[string]interface{}{
						{"asset_id": id, "price": "0.45", "size": "3", "side": "BUY"},
					},
				}
				if err := conn.WriteJSON(delta); err != nil {
					return
				}
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestBookFallsBackToRESTAndNormalizes(t *testing.T) {
	fetcher := &fakeFetcher{book: &clob.Book{
		Market:   "0xcond",
		Bids:     []clob.BookLevel{{Price: "0.30", Size: "1"}, {Price: "0.40", Size: "2"}},
		Asks:     []clob.BookLevel{{Price: "0.70", Size: "1"}, {Price: "0.60", Size: "2"}},
		TickSize: "0.01",
		NegRisk:  true,
	}}
	svc := NewMarketService("ws://127.0.0.1:1", fetcher)

	book, err := svc.Book(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "tok", book.AssetID)
	assert.Equal(t, "0.4", book.Bids[0].Price)
	assert.Equal(t, "0.6", book.Asks[0].Price)
	assert.Equal(t, "0.01", book.TickSize)
	assert.True(t, book.NegRisk)
	assert.Equal(t, 1, fetcher.count())

	require.NotNil(t, svc.GetBook("tok"))
	assert.False(t, svc.GetBook("tok").Ready())
}

func TestBookPropagatesFallbackError(t *testing.T) {
	svc := NewMarketService("", &fakeFetcher{err: errors.New("down")})
	_, err := svc.Book(context.Background(), "tok")
	assert.EqualError(t, err, "down")

	_, err = NewMarketService("", nil).Book(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrNoBookSource)
}

func TestStreamFeedsCache(t *testing.T) {
	received := make(chan map[string]interface{}, 4)
	srv := wsServer(received, nil)
	defer srv.Close()

	fetcher := &fakeFetcher{book: &clob.Book{}}
	svc := NewMarketService(wsURL(srv), fetcher)
	svc.Start()
	defer svc.Stop()

	_, err := svc.Book(context.Background(), "tok-a")
	require.NoError(t, err)

	select {
	case msg := <-received:
		assert.Equal(t, "market", msg["type"])
		assert.Equal(t, []interface{}{"tok-a"}, msg["assets_ids"])
	case <-time.After(2 * time.Second):
		t.Fatal("no subscription received")
	}

	require.Eventually(t, func() bool {
		ob := svc.GetBook("tok-a")
		if ob == nil || !ob.Ready() {
			return false
		}
		bids, _ := ob.GetCopy()
		return len(bids) == 2
	}, 2*time.Second, 10*time.Millisecond)

	book, err := svc.Book(context.Background(), "tok-a")
	require.NoError(t, err)
	assert.Equal(t, "0.45", book.Bids[0].Price)
	assert.Equal(t, "0.6", book.Asks[0].Price)
	assert.Equal(t, 1, fetcher.count())
	assert.True(t, svc.Connected())

	svc.Subscribe([]string{"tok-b"})
	select {
	case msg := <-received:
		assert.Equal(t, "subscribe", msg["operation"])
		assert.Equal(t, []interface{}{"tok-b"}, msg["assets_ids"])
	case <-time.After(2 * time.Second):
		t.Fatal("no incremental subscription received")
	}
}

func TestDisconnectInvalidatesBooks(t *testing.T) {
	kill := make(chan struct{})
	srv := wsServer(nil, kill)
	svc := NewMarketService(wsURL(srv), &fakeFetcher{book: &clob.Book{}})
	svc.Start()
	defer svc.Stop()

	svc.Subscribe([]string{"tok"})
	require.Eventually(t, func() bool { return svc.GetBook("tok").Ready() }, 2*time.Second, 10*time.Millisecond)

	srv.Close()
	close(kill)
	require.Eventually(t, func() bool { return !svc.GetBook("tok").Ready() }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, svc.Connected())
}

func TestDecodeMessages(t *testing.T) {
	assert.Len(t, decodeMessages([]byte(`[{"event_type":"book"},{"event_type":"book"}]`)), 2)
	assert.Len(t, decodeMessages([]byte(`{"event_type":"price_change"}`)), 1)
	assert.Empty(t, decodeMessages([]byte(`PONG`)))
	assert.Empty(t, decodeMessages([]byte(`{}`)))
}

func TestApplyLegacyChangesShape(t *testing.T) {
	svc := NewMarketService("", nil)
	svc.Subscribe([]string{"tok"})
	svc.apply(WSMessage{EventType: "book", AssetID: "tok",
		Bids: []clob.BookLevel{{Price: "0.4", Size: "1"}},
		Asks: []clob.BookLevel{{Price: "0.6", Size: "1"}},
	})
	svc.apply(WSMessage{EventType: "price_change", AssetID: "tok",
		Changes: []PriceChange{{Price: "0.6", Size: "0", Side: clob.Sell}},
	})

	_, asks := svc.GetBook("tok").GetCopy()
	assert.Empty(t, asks)

	// Deltas for unknown tokens are ignored.
	svc.apply(WSMessage{EventType: "price_change", AssetID: "other",
		Changes: []PriceChange{{Price: "0.5", Size: "1", Side: clob.Buy}},
	})
	assert.Nil(t, svc.GetBook("other"))
}
