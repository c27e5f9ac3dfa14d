package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"trendsignal/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to stored bars and signals.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string, log *slog.Logger) (*Reader, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Info("opened reader", "component", "sqlite", "path", dbPath)
	return &Reader{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (r *Reader) DB() *sql.DB { return r.db }

// ReadBars returns bars for symbol/tf with TS >= from, ascending.
func (r *Reader) ReadBars(ctx context.Context, symbol string, tf model.Timeframe, from time.Time) ([]model.Bar, error) {
	var fromUnix int64
	if !from.IsZero() {
		fromUnix = from.Unix()
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND tf = ? AND ts >= ?
		ORDER BY ts ASC
	`, symbol, string(tf), fromUnix)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		var tsUnix int64
		if err := rows.Scan(&tsUnix, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.TS = time.Unix(tsUnix, 0).UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// ReadSignals returns the most recent limit signals for symbol/tf, oldest first.
func (r *Reader) ReadSignals(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Signal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ts, kind, bias, strength, price, reason FROM (
			SELECT ts, kind, bias, strength, price, reason
			FROM signals
			WHERE symbol = ? AND tf = ?
			ORDER BY ts DESC, kind ASC
			LIMIT ?
		) ORDER BY ts ASC, kind ASC
	`, symbol, string(tf), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query signals: %w", err)
	}
	defer rows.Close()

	var out []model.Signal
	for rows.Next() {
		var s model.Signal
		var tsUnix int64
		var kind, bias string
		if err := rows.Scan(&tsUnix, &kind, &bias, &s.Strength, &s.Price, &s.Reason); err != nil {
			return nil, fmt.Errorf("sqlite scan signals: %w", err)
		}
		s.TS = time.Unix(tsUnix, 0).UTC()
		s.Kind = model.SignalKind(kind)
		s.Bias = model.Bias(bias)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
