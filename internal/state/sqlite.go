package state

import (
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/quantpool/multi-engine-bot/internal/errors"
	"github.com/quantpool/multi-engine-bot/pkg/types"
)

type orderRecord struct {
	ID           string `gorm:"primaryKey"`
	Symbol       string
	Side         string
	Kind         string
	Amount       float64
	Price        float64
	Status       string `gorm:"index"`
	FilledAmount float64
	AvgFillPrice float64
	StopLoss     float64
	TakeProfit   float64
	ReduceOnly   bool
	EngineID     string `gorm:"index"`
	Strategy     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type positionRecord struct {
	EngineID   string `gorm:"primaryKey"`
	Symbol     string `gorm:"primaryKey"`
	Side       string
	EntryPrice float64
	Amount     float64
	StopLoss   float64
	TakeProfit float64
	OpenedAt   time.Time
	UpdatedAt  time.Time
}

type tradeRecord struct {
	ID         string `gorm:"primaryKey"`
	Symbol     string
	Side       string
	EngineID   string `gorm:"index"`
	Strategy   string
	EntryPrice float64
	ExitPrice  float64
	Amount     float64
	PnL        float64
	ExitReason string
	OpenedAt   time.Time
	ClosedAt   time.Time `gorm:"index"`
}

type engineStateRecord struct {
	EngineID         string `gorm:"primaryKey"`
	Active           bool
	Paused           bool
	PauseReason      string
	BreakerLevel     int
	EmergencyStopped bool
	Trades           int
	Wins             int
	Losses           int
	RealizedPnL      float64
	UpdatedAt        time.Time
}

// SQLiteStore persists bot state in a local SQLite database. One bot instance
// owns one database file.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (or creates) the database at path and migrates the
// schema. Pass ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.NewStateError("open", err)
	}
	if err := db.AutoMigrate(&orderRecord{}, &positionRecord{}, &tradeRecord{}, &engineStateRecord{}); err != nil {
		return nil, errors.NewStateError("migrate", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveOrder(order *types.Order) error {
	rec := orderRecord{
		ID:           order.ID,
		Symbol:       order.Symbol,
		Side:         string(order.Side),
		Kind:         string(order.Kind),
		Amount:       order.Amount,
		Price:        order.Price,
		Status:       string(order.Status),
		FilledAmount: order.FilledAmount,
		AvgFillPrice: order.AvgFillPrice,
		StopLoss:     order.StopLoss,
		TakeProfit:   order.TakeProfit,
		ReduceOnly:   order.ReduceOnly,
		EngineID:     order.EngineID,
		Strategy:     order.Strategy,
		CreatedAt:    order.CreatedAt,
		UpdatedAt:    order.UpdatedAt,
	}
	if err := s.db.Save(&rec).Error; err != nil {
		return errors.NewStateError("save_order", err)
	}
	return nil
}

func (s *SQLiteStore) SavePosition(pos *types.Position) error {
	rec := positionRecord{
		EngineID:   pos.EngineID,
		Symbol:     pos.Symbol,
		Side:       string(pos.Side),
		EntryPrice: pos.EntryPrice,
		Amount:     pos.Amount,
		StopLoss:   pos.StopLoss,
		TakeProfit: pos.TakeProfit,
		OpenedAt:   pos.OpenedAt,
		UpdatedAt:  pos.UpdatedAt,
	}
	if err := s.db.Save(&rec).Error; err != nil {
		return errors.NewStateError("save_position", err)
	}
	return nil
}

func (s *SQLiteStore) DeletePosition(engineID, symbol string) error {
	err := s.db.Delete(&positionRecord{}, "engine_id = ? AND symbol = ?", engineID, symbol).Error
	if err != nil {
		return errors.NewStateError("delete_position", err)
	}
	return nil
}

func (s *SQLiteStore) SaveTrade(trade *types.Trade) error {
	rec := tradeRecord{
		ID:         trade.ID,
		Symbol:     trade.Symbol,
		Side:       string(trade.Side),
		EngineID:   trade.EngineID,
		Strategy:   trade.Strategy,
		EntryPrice: trade.EntryPrice,
		ExitPrice:  trade.ExitPrice,
		Amount:     trade.Amount,
		PnL:        trade.PnL,
		ExitReason: trade.ExitReason,
		OpenedAt:   trade.OpenedAt,
		ClosedAt:   trade.ClosedAt,
	}
	if err := s.db.Save(&rec).Error; err != nil {
		return errors.NewStateError("save_trade", err)
	}
	return nil
}

func (s *SQLiteStore) SaveEngineState(rec *EngineStateRecord) error {
	row := engineStateRecord{
		EngineID:         rec.EngineID,
		Active:           rec.Active,
		Paused:           rec.Paused,
		PauseReason:      rec.PauseReason,
		BreakerLevel:     rec.BreakerLevel,
		EmergencyStopped: rec.EmergencyStopped,
		Trades:           rec.Trades,
		Wins:             rec.Wins,
		Losses:           rec.Losses,
		RealizedPnL:      rec.RealizedPnL,
		UpdatedAt:        time.Now(),
	}
	if err := s.db.Save(&row).Error; err != nil {
		return errors.NewStateError("save_engine_state", err)
	}
	return nil
}

func (s *SQLiteStore) OpenPositions() ([]*types.Position, error) {
	var rows []positionRecord
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, errors.NewStateError("load_positions", err)
	}

	positions := make([]*types.Position, 0, len(rows))
	for _, r := range rows {
		positions = append(positions, &types.Position{
			Symbol:     r.Symbol,
			Side:       types.PositionSide(r.Side),
			EntryPrice: r.EntryPrice,
			Amount:     r.Amount,
			StopLoss:   r.StopLoss,
			TakeProfit: r.TakeProfit,
			EngineID:   r.EngineID,
			OpenedAt:   r.OpenedAt,
			UpdatedAt:  r.UpdatedAt,
		})
	}
	return positions, nil
}

func (s *SQLiteStore) EngineStates() (map[string]*EngineStateRecord, error) {
	var rows []engineStateRecord
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, errors.NewStateError("load_engine_states", err)
	}

	states := make(map[string]*EngineStateRecord, len(rows))
	for _, r := range rows {
		states[r.EngineID] = &EngineStateRecord{
			EngineID:         r.EngineID,
			Active:           r.Active,
			Paused:           r.Paused,
			PauseReason:      r.PauseReason,
			BreakerLevel:     r.BreakerLevel,
			EmergencyStopped: r.EmergencyStopped,
			Trades:           r.Trades,
			Wins:             r.Wins,
			Losses:           r.Losses,
			RealizedPnL:      r.RealizedPnL,
		}
	}
	return states, nil
}

func (s *SQLiteStore) ClosedTrades(limit int) ([]*types.Trade, error) {
	query := s.db.Order("closed_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []tradeRecord
	if err := query.Find(&rows).Error; err != nil {
		return nil, errors.NewStateError("load_trades", err)
	}

	trades := make([]*types.Trade, 0, len(rows))
	for _, r := range rows {
		trades = append(trades, &types.Trade{
			ID:         r.ID,
			Symbol:     r.Symbol,
			Side:       types.PositionSide(r.Side),
			EngineID:   r.EngineID,
			Strategy:   r.Strategy,
			EntryPrice: r.EntryPrice,
			ExitPrice:  r.ExitPrice,
			Amount:     r.Amount,
			PnL:        r.PnL,
			ExitReason: r.ExitReason,
			OpenedAt:   r.OpenedAt,
			ClosedAt:   r.ClosedAt,
		})
	}
	return trades, nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.NewStateError("close", err)
	}
	return sqlDB.Close()
}
