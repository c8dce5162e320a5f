package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GoPolymarket/polysession/internal/clob"
	"github.com/GoPolymarket/polysession/internal/pkg/logger"
	"github.com/gorilla/websocket"
)

const (
	WSURL           = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	ReconnBaseDelay = 1 * time.Second
	ReconnMaxDelay  = 30 * time.Second
	PingPeriod      = 15 * time.Second // Keep-alive interval
)

var ErrNoBookSource = errors.New("order book unavailable")

// MarketService caches order books fed by the exchange's market websocket.
// Tokens are subscribed on first request; until the stream delivers a
// snapshot, reads go to the REST fallback.
type MarketService struct {
	url      string
	fallback BookFetcher
	dialer   *websocket.Dialer

	mu          sync.RWMutex
	books       map[string]*Orderbook
	subs        []string
	isConnected bool

	// writeMu guards conn and every write on it.
	writeMu sync.Mutex
	conn    *websocket.Conn

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

func NewMarketService(url string, fallback BookFetcher) *MarketService {
	if url == "" {
		url = WSURL
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MarketService{
		url:      url,
		fallback: fallback,
		dialer:   websocket.DefaultDialer,
		books:    make(map[string]*Orderbook),
		subs:     make([]string, 0),
		wake:     make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start launches the connection loop in a background goroutine
func (s *MarketService) Start() {
	s.once.Do(func() {
		go s.runLoop()
	})
}

// Stop closes the service and waits for the loop to exit if it was started.
func (s *MarketService) Stop() {
	s.cancel()
	s.closeConn()
	started := true
	s.once.Do(func() { started = false })
	if started {
		<-s.done
	}
}

// Book returns the cached book when the stream has one, otherwise the REST
// snapshot.
func (s *MarketService) Book(ctx context.Context, tokenID string) (*clob.Book, error) {
	if ob := s.GetBook(tokenID); ob != nil && ob.Ready() {
		return ob.ToBook(), nil
	}
	s.Subscribe([]string{tokenID})

	if s.fallback == nil {
		return nil, ErrNoBookSource
	}
	book, err := s.fallback.GetBook(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	// Normalize ordering so both sources look the same.
	ob := NewOrderbook(tokenID)
	ob.Snapshot(book.Market, book.Hash, ParseLevels(book.Bids), ParseLevels(book.Asks))
	out := ob.ToBook()
	out.Timestamp = book.Timestamp
	out.TickSize = book.TickSize
	out.NegRisk = book.NegRisk
	return out, nil
}

// Subscribe adds tokenIDs to the subscription list and updates the connection if active
func (s *MarketService) Subscribe(tokenIDs []string) {
	s.mu.Lock()
	added := make([]string, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		if id == "" {
			continue
		}
		if _, ok := s.books[id]; ok {
			continue
		}
		s.subs = append(s.subs, id)
		s.books[id] = NewOrderbook(id)
		added = append(added, id)
	}
	connected := s.isConnected
	s.mu.Unlock()

	if len(added) == 0 {
		return
	}
	if connected {
		msg := map[string]interface{}{"assets_ids": added, "operation": "subscribe"}
		if err := s.writeJSON(msg); err != nil {
			logger.Warn("market subscribe failed", "error", err, "tokens", len(added))
		}
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *MarketService) GetBook(tokenID string) *Orderbook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.books[tokenID]
}

func (s *MarketService) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isConnected
}

func (s *MarketService) runLoop() {
	defer close(s.done)
	delay := ReconnBaseDelay

	for {
		// Nothing to stream until the first token is requested.
		for len(s.subscriptions()) == 0 {
			select {
			case <-s.ctx.Done():
				return
			case <-s.wake:
			}
		}

		conn, err := s.connect()
		if err != nil {
			logger.Error("market stream connection failed", "error", err, "retry_in", delay)
			if !s.sleep(delay) {
				return
			}
			delay *= 2
			if delay > ReconnMaxDelay {
				delay = ReconnMaxDelay
			}
			continue
		}
		delay = ReconnBaseDelay

		if err := s.sendInitial(); err != nil {
			logger.Error("market stream subscribe failed", "error", err)
			s.setConnected(false)
			s.closeConn()
			if !s.sleep(delay) {
				return
			}
			continue
		}
		logger.Info("market stream connected", "tokens", len(s.subscriptions()))

		pingDone := make(chan struct{})
		go s.pingLoop(pingDone)
		s.readLoop(conn)
		close(pingDone)

		s.setConnected(false)
		s.closeConn()

		select {
		case <-s.ctx.Done():
			return
		default:
		}
	}
}

// sendInitial holds mu so that Subscribe cannot interleave an incremental
// message ahead of the initial one.
func (s *MarketService) sendInitial() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.subs))
	copy(ids, s.subs)
	if err := s.writeJSON(map[string]interface{}{"assets_ids": ids, "type": "market"}); err != nil {
		return err
	}
	s.isConnected = true
	return nil
}

func (s *MarketService) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (s *MarketService) subscriptions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.subs))
	copy(out, s.subs)
	return out
}

func (s *MarketService) setConnected(v bool) {
	s.mu.Lock()
	s.isConnected = v
	books := make([]*Orderbook, 0, len(s.books))
	for _, ob := range s.books {
		books = append(books, ob)
	}
	s.mu.Unlock()

	// A dropped stream may have missed deltas.
	if !v {
		for _, ob := range books {
			ob.Invalidate()
		}
	}
}

func (s *MarketService) connect() (*websocket.Conn, error) {
	conn, _, err := s.dialer.DialContext(s.ctx, s.url, nil)
	if err != nil {
		return nil, err
	}

	// Zombie Check: If we don't receive ANY data (or Pong) within PingPeriod + Buffer, we assume dead.
	readTimeout := PingPeriod + 10*time.Second
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.ctx.Err(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	s.conn = conn
	return conn, nil
}

func (s *MarketService) pingLoop(done <-chan struct{}) {
	ticker := time.NewTicker(PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			var err error
			if s.conn != nil {
				err = s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *MarketService) writeJSON(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("no connection")
	}
	return s.conn.WriteJSON(v)
}

func (s *MarketService) closeConn() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

type WSMessage struct {
	EventType    string           `json:"event_type"` // "book" or "price_change"
	AssetID      string           `json:"asset_id"`
	Market       string           `json:"market"` // condition id
	Bids         []clob.BookLevel `json:"bids"`
	Asks         []clob.BookLevel `json:"asks"`
	Hash         string           `json:"hash"`
	Changes      []PriceChange    `json:"changes"`
	PriceChanges []PriceChange    `json:"price_changes"`
}

type PriceChange struct {
	AssetID string    `json:"asset_id"`
	Price   string    `json:"price"`
	Size    string    `json:"size"`
	Side    clob.Side `json:"side"`
}

func (s *MarketService) readLoop(conn *websocket.Conn) {
	readTimeout := PingPeriod + 10*time.Second

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil {
				logger.Warn("market stream read failed", "error", err)
			}
			return
		}
		for _, m := range decodeMessages(message) {
			s.apply(m)
		}
	}
}

// decodeMessages accepts an array of events or a single event. Anything else
// (e.g. PONG text frames) yields nothing.
func decodeMessages(raw []byte) []WSMessage {
	var batch []WSMessage
	if err := json.Unmarshal(raw, &batch); err == nil {
		return batch
	}
	var single WSMessage
	if err := json.Unmarshal(raw, &single); err == nil && single.EventType != "" {
		return []WSMessage{single}
	}
	return nil
}

func (s *MarketService) apply(m WSMessage) {
	switch m.EventType {
	case "book":
		if ob := s.GetBook(m.AssetID); ob != nil {
			ob.Snapshot(m.Market, m.Hash, ParseLevels(m.Bids), ParseLevels(m.Asks))
		}
	case "price_change":
		changes := m.PriceChanges
		if len(changes) == 0 {
			changes = m.Changes
		}
		for _, c := range changes {
			assetID := c.AssetID
			if assetID == "" {
				assetID = m.AssetID
			}
			ob := s.GetBook(assetID)
			if ob == nil || !ob.Ready() {
				continue
			}
			if err := ob.Update(c.Side, c.Price, c.Size); err != nil {
				logger.Debug("bad price change", "asset_id", assetID, "error", err)
			}
		}
	}
}
