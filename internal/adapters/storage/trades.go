package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// FindRecentTrade devuelve el registro más reciente de la clave con
// timestamp >= since.
func (s *SQLiteStorage) FindRecentTrade(ctx context.Context, key domain.TradeKey, since time.Time) (domain.WalletTrade, bool, error) {
	var t domain.WalletTrade
	var side string
	var ts int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, wallet, condition_id, outcome, side, price, size, ts_ms
		FROM wallet_trades
		WHERE wallet = ? AND condition_id = ? AND side = ? AND outcome = ? AND ts_ms >= ?
		ORDER BY ts_ms DESC, id DESC
		LIMIT 1
	`, key.Wallet, key.ConditionID, string(key.Side), key.Outcome, toMillis(since)).
		Scan(&t.ID, &t.Wallet, &t.ConditionID, &t.Outcome, &side, &t.Price, &t.Size, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WalletTrade{}, false, nil
	}
	if err != nil {
		return domain.WalletTrade{}, false, fmt.Errorf("storage.FindRecentTrade: %w", err)
	}
	t.Side = domain.Side(side)
	t.Timestamp = fromMillis(ts)
	return t, true, nil
}

// SaveTrade inserta el registro si t.ID == 0 (y le asigna el ID) o lo actualiza.
func (s *SQLiteStorage) SaveTrade(ctx context.Context, t *domain.WalletTrade) error {
	if t.ID == 0 {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO wallet_trades (wallet, condition_id, outcome, side, price, size, ts_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, t.Wallet, t.ConditionID, t.Outcome, string(t.Side), t.Price, t.Size, toMillis(t.Timestamp))
		if err != nil {
			return fmt.Errorf("storage.SaveTrade: insert: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("storage.SaveTrade: last insert id: %w", err)
		}
		t.ID = id
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE wallet_trades SET price = ?, size = ?, ts_ms = ? WHERE id = ?
	`, t.Price, t.Size, toMillis(t.Timestamp), t.ID)
	if err != nil {
		return fmt.Errorf("storage.SaveTrade: update %d: %w", t.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage.SaveTrade: trade %d: %w", t.ID, domain.ErrNotFound)
	}
	return nil
}

// SaveBotTrade registra una orden propia.
func (s *SQLiteStorage) SaveBotTrade(ctx context.Context, bt domain.BotTrade) error {
	ts := bt.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bot_trades
			(intent_id, condition_id, outcome, instrument_id, side, entry_price, size_usdc, order_ref, status, ts_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, bt.IntentID, bt.ConditionID, bt.Outcome, bt.InstrumentID, string(bt.Side),
		bt.EntryPrice, bt.SizeUSDC, bt.OrderRef, string(bt.Status), toMillis(ts))
	if err != nil {
		return fmt.Errorf("storage.SaveBotTrade %s: %w", bt.ConditionID, err)
	}
	return nil
}

// RecentBotTrades devuelve las últimas limit órdenes propias, más recientes primero.
func (s *SQLiteStorage) RecentBotTrades(ctx context.Context, limit int) ([]domain.BotTrade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, intent_id, condition_id, outcome, instrument_id, side,
		       entry_price, size_usdc, order_ref, status, ts_ms
		FROM bot_trades
		ORDER BY ts_ms DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentBotTrades: query: %w", err)
	}
	defer rows.Close()

	var out []domain.BotTrade
	for rows.Next() {
		var bt domain.BotTrade
		var side, status string
		var ts int64
		if err := rows.Scan(&bt.ID, &bt.IntentID, &bt.ConditionID, &bt.Outcome, &bt.InstrumentID, &side,
			&bt.EntryPrice, &bt.SizeUSDC, &bt.OrderRef, &status, &ts); err != nil {
			return nil, fmt.Errorf("storage.RecentBotTrades: scan row: %w", err)
		}
		bt.Side = domain.Side(side)
		bt.Status = domain.BotTradeStatus(status)
		bt.Timestamp = fromMillis(ts)
		out = append(out, bt)
	}
	return out, rows.Err()
}
