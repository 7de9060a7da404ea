package storage

// sqlite.go: persistencia del bot de copy-trading.
//
// Tablas:
//   - `wallets`: una fila por wallet vigilada, contadores acumulados.
//   - `markets`: una fila por condition id. Los token ids se rellenan de forma
//     perezosa; un upsert con ids vacíos nunca borra ids conocidos.
//   - `wallet_trades`: registros agregados de las wallets vigiladas. Un registro
//     se actualiza mientras lleguen fills dentro de la ventana de agregación.
//   - `bot_trades`: órdenes propias enviadas al copiar un trade.
//
// Los timestamps se guardan como unix milisegundos (INTEGER) para que las
// comparaciones de ventana sean exactas.
// Prune al arrancar: wallet_trades más antiguos que la retención.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS wallets (
    address      TEXT PRIMARY KEY,
    alias        TEXT    NOT NULL DEFAULT '',
    trade_count  INTEGER NOT NULL DEFAULT 0,
    volume_usdc  REAL    NOT NULL DEFAULT 0,
    last_active  INTEGER NOT NULL DEFAULT 0,
    created_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS markets (
    condition_id TEXT PRIMARY KEY,
    title        TEXT    NOT NULL DEFAULT '',
    last_price   REAL    NOT NULL DEFAULT 0,
    yes_token_id TEXT    NOT NULL DEFAULT '',
    no_token_id  TEXT    NOT NULL DEFAULT '',
    resolved     INTEGER NOT NULL DEFAULT 0,
    updated_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS wallet_trades (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    wallet       TEXT    NOT NULL,
    condition_id TEXT    NOT NULL,
    outcome      TEXT    NOT NULL DEFAULT '',
    side         TEXT    NOT NULL,
    price        REAL    NOT NULL DEFAULT 0,
    size         REAL    NOT NULL DEFAULT 0,
    ts_ms        INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS bot_trades (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    intent_id     TEXT    NOT NULL DEFAULT '',
    condition_id  TEXT    NOT NULL,
    outcome       TEXT    NOT NULL DEFAULT '',
    instrument_id TEXT    NOT NULL DEFAULT '',
    side          TEXT    NOT NULL,
    entry_price   REAL    NOT NULL DEFAULT 0,
    size_usdc     REAL    NOT NULL DEFAULT 0,
    order_ref     TEXT    NOT NULL DEFAULT '',
    status        TEXT    NOT NULL,
    ts_ms         INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_wtrades_key ON wallet_trades(wallet, condition_id, side, outcome, ts_ms DESC);
CREATE INDEX IF NOT EXISTS idx_btrades_ts  ON bot_trades(ts_ms DESC);
`

// DefaultRetention es la retención de wallet_trades si no se configura otra.
const DefaultRetention = 30 * 24 * time.Hour

// SQLiteStorage implementa ports.TradeStore usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada, aplica el
// schema y limpia los trades más antiguos que retention (0 = DefaultRetention).
func NewSQLiteStorage(path string, retention time.Duration) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if !strings.Contains(path, ":memory:") {
		if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
			db.Close()
			return nil, fmt.Errorf("storage.NewSQLiteStorage: enable WAL: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	if retention <= 0 {
		retention = DefaultRetention
	}
	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background(), retention)
	return s, nil
}

// UpsertWallet crea la wallet si no existe y acumula su actividad.
func (s *SQLiteStorage) UpsertWallet(ctx context.Context, address string, trades int, volumeUSDC float64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wallets (address, trade_count, volume_usdc, last_active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			trade_count = trade_count + excluded.trade_count,
			volume_usdc = volume_usdc + excluded.volume_usdc,
			last_active = MAX(last_active, excluded.last_active)
	`, strings.ToLower(address), trades, volumeUSDC, toMillis(at), toMillis(time.Now()))
	if err != nil {
		return fmt.Errorf("storage.UpsertWallet %s: %w", domain.ShortAddr(address), err)
	}
	return nil
}

// GetWallet devuelve domain.ErrNotFound si la wallet no existe.
func (s *SQLiteStorage) GetWallet(ctx context.Context, address string) (domain.Wallet, error) {
	var w domain.Wallet
	var lastActive int64
	err := s.db.QueryRowContext(ctx, `
		SELECT address, alias, trade_count, volume_usdc, last_active
		FROM wallets WHERE address = ?
	`, strings.ToLower(address)).Scan(&w.Address, &w.Alias, &w.TradeCount, &w.VolumeUSDC, &lastActive)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Wallet{}, fmt.Errorf("storage.GetWallet %s: %w", domain.ShortAddr(address), domain.ErrNotFound)
	}
	if err != nil {
		return domain.Wallet{}, fmt.Errorf("storage.GetWallet: %w", err)
	}
	w.LastActive = fromMillis(lastActive)
	return w, nil
}

// UpsertMarket crea o actualiza un mercado. Título vacío, precio 0 o token ids
// vacíos no sobreescriben valores conocidos; resolved nunca vuelve a 0.
func (s *SQLiteStorage) UpsertMarket(ctx context.Context, m domain.Market) error {
	updatedAt := m.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO markets (condition_id, title, last_price, yes_token_id, no_token_id, resolved, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(condition_id) DO UPDATE SET
			title        = CASE WHEN excluded.title != '' THEN excluded.title ELSE title END,
			last_price   = CASE WHEN excluded.last_price > 0 THEN excluded.last_price ELSE last_price END,
			yes_token_id = COALESCE(NULLIF(excluded.yes_token_id, ''), yes_token_id),
			no_token_id  = COALESCE(NULLIF(excluded.no_token_id, ''), no_token_id),
			resolved     = MAX(resolved, excluded.resolved),
			updated_at   = excluded.updated_at
	`, m.ConditionID, m.Title, m.LastPrice, m.Instruments.Yes, m.Instruments.No, boolToInt(m.Resolved), toMillis(updatedAt))
	if err != nil {
		return fmt.Errorf("storage.UpsertMarket %s: %w", m.ConditionID, err)
	}
	return nil
}

// GetMarket devuelve domain.ErrNotFound si el mercado no existe.
func (s *SQLiteStorage) GetMarket(ctx context.Context, conditionID string) (domain.Market, error) {
	var m domain.Market
	var resolved int
	var updatedAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT condition_id, title, last_price, yes_token_id, no_token_id, resolved, updated_at
		FROM markets WHERE condition_id = ?
	`, conditionID).Scan(&m.ConditionID, &m.Title, &m.LastPrice, &m.Instruments.Yes, &m.Instruments.No, &resolved, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Market{}, fmt.Errorf("storage.GetMarket %s: %w", conditionID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Market{}, fmt.Errorf("storage.GetMarket: %w", err)
	}
	m.Resolved = resolved == 1
	m.UpdatedAt = fromMillis(updatedAt)
	return m, nil
}

// MarkMarketResolved marca el mercado como resuelto (lo crea si no existe).
func (s *SQLiteStorage) MarkMarketResolved(ctx context.Context, conditionID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO markets (condition_id, resolved, updated_at) VALUES (?, 1, ?)
		ON CONFLICT(condition_id) DO UPDATE SET resolved = 1, updated_at = excluded.updated_at
	`, conditionID, toMillis(time.Now()))
	if err != nil {
		return fmt.Errorf("storage.MarkMarketResolved %s: %w", conditionID, err)
	}
	return nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

// pruneOld elimina trades agregados antiguos para mantener la DB ligera.
// Las órdenes propias no se borran nunca.
func (s *SQLiteStorage) pruneOld(ctx context.Context, retention time.Duration) {
	cutoff := toMillis(time.Now().Add(-retention))
	s.db.ExecContext(ctx, `DELETE FROM wallet_trades WHERE ts_ms < ?`, cutoff)
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
