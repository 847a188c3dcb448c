package state

import (
	"sort"
	"sync"

	"github.com/quantpool/multi-engine-bot/pkg/types"
)

// MemoryStore keeps all state in process memory. Used when no database path
// is configured and as the store for tests.
type MemoryStore struct {
	mu        sync.RWMutex
	orders    map[string]types.Order
	positions map[string]types.Position
	trades    []types.Trade
	engines   map[string]EngineStateRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:    make(map[string]types.Order),
		positions: make(map[string]types.Position),
		engines:   make(map[string]EngineStateRecord),
	}
}

func (s *MemoryStore) SaveOrder(order *types.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = *order
	return nil
}

func (s *MemoryStore) SavePosition(pos *types.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[pos.Key()] = *pos
	return nil
}

func (s *MemoryStore) DeletePosition(engineID, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.positions, types.PositionKey(engineID, symbol))
	return nil
}

func (s *MemoryStore) SaveTrade(trade *types.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, *trade)
	return nil
}

func (s *MemoryStore) SaveEngineState(rec *EngineStateRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engines[rec.EngineID] = *rec
	return nil
}

func (s *MemoryStore) OpenPositions() ([]*types.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	positions := make([]*types.Position, 0, len(s.positions))
	for _, pos := range s.positions {
		copied := pos
		positions = append(positions, &copied)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Key() < positions[j].Key() })
	return positions, nil
}

func (s *MemoryStore) EngineStates() (map[string]*EngineStateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	states := make(map[string]*EngineStateRecord, len(s.engines))
	for id, rec := range s.engines {
		copied := rec
		states[id] = &copied
	}
	return states, nil
}

func (s *MemoryStore) ClosedTrades(limit int) ([]*types.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trades := make([]*types.Trade, 0, len(s.trades))
	for i := range s.trades {
		copied := s.trades[i]
		trades = append(trades, &copied)
	}
	sort.Slice(trades, func(i, j int) bool { return trades[i].ClosedAt.After(trades[j].ClosedAt) })
	if limit > 0 && len(trades) > limit {
		trades = trades[:limit]
	}
	return trades, nil
}

func (s *MemoryStore) Close() error { return nil }

// Orders returns every saved order, for assertions in tests.
func (s *MemoryStore) Orders() []types.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]types.Order, 0, len(s.orders))
	for _, o := range s.orders {
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.Before(orders[j].CreatedAt) })
	return orders
}
