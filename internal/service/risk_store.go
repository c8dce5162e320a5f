package service

import (
	"context"
	"strings"
	"sync"
	"time"
)

// RiskUsageStore tracks daily order count and volume per address in memory.
type RiskUsageStore struct {
	mu          sync.RWMutex
	dailyVolume map[string]float64 // key: address:YYYY-MM-DD
	dailyOrders map[string]int
	now         func() time.Time
}

func NewRiskUsageStore() *RiskUsageStore {
	return &RiskUsageStore{
		dailyVolume: make(map[string]float64),
		dailyOrders: make(map[string]int),
		now:         time.Now,
	}
}

func (s *RiskUsageStore) GetDailyUsage(_ context.Context, address string) (int, float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := s.makeKey(address)
	return s.dailyOrders[key], s.dailyVolume[key], nil
}

func (s *RiskUsageStore) AddDailyUsage(_ context.Context, address string, orders int, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.makeKey(address)
	s.dailyVolume[key] += amount
	s.dailyOrders[key] += orders
	return nil
}

// Days roll over at UTC midnight.
func (s *RiskUsageStore) makeKey(address string) string {
	return strings.ToLower(address) + ":" + s.now().UTC().Format("2006-01-02")
}
