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

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/bars.db"

	// OnCommit, when set, receives the latency of each batch commit.
	OnCommit func(time.Duration)
}

// Writer is a single-goroutine SQLite writer with transaction batching.
type Writer struct {
	db       *sql.DB
	log      *slog.Logger
	onCommit func(time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New opens the database in WAL mode and creates the schema.
func New(cfg WriterConfig, log *slog.Logger) (*Writer, error) {
	db, err := open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	// Single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log = log.With("component", "sqlite")
	log.Info("opened database", "path", cfg.DBPath)
	return &Writer{db: db, log: log, onCommit: cfg.OnCommit}, nil
}

func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	return db, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol TEXT    NOT NULL,
			tf     TEXT    NOT NULL,
			ts     INTEGER NOT NULL,
			open   REAL    NOT NULL,
			high   REAL    NOT NULL,
			low    REAL    NOT NULL,
			close  REAL    NOT NULL,
			volume INTEGER NOT NULL,
			PRIMARY KEY (symbol, tf, ts)
		);

		CREATE TABLE IF NOT EXISTS signals (
			symbol   TEXT    NOT NULL,
			tf       TEXT    NOT NULL,
			ts       INTEGER NOT NULL,
			kind     TEXT    NOT NULL,
			bias     TEXT    NOT NULL,
			strength REAL    NOT NULL,
			price    REAL    NOT NULL,
			reason   TEXT    NOT NULL,
			PRIMARY KEY (symbol, tf, ts, kind)
		);
	`)
	return err
}

// WriteBars upserts bars for symbol/tf in one transaction.
func (w *Writer) WriteBars(ctx context.Context, symbol string, tf model.Timeframe, bars []model.Bar) error {
	updates := make([]model.Update, len(bars))
	for i, b := range bars {
		updates[i] = model.Update{Symbol: symbol, Timeframe: tf, Bar: b}
	}
	return w.insertBatch(ctx, updates)
}

// Run reads updates from ch and stores their bar and signals in batched
// transactions. Flushes every batchSize updates OR every flushDelay,
// whichever first. Blocks until ctx is cancelled or ch is closed.
func (w *Writer) Run(ctx context.Context, ch <-chan model.Update) {
	batch := make([]model.Update, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		// Final flush must not be skipped because ctx is already done.
		if err := w.insertBatch(context.WithoutCancel(ctx), batch); err != nil {
			w.log.Error("batch insert failed", "error", err, "size", len(batch))
		} else {
			took := time.Since(start)
			if w.onCommit != nil {
				w.onCommit(took)
			}
			w.log.Debug("committed updates", "size", len(batch), "took", took)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case u, ok := <-ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, u)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// insertBatch upserts the bar and signals of each update in a single transaction.
func (w *Writer) insertBatch(ctx context.Context, updates []model.Update) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	barStmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, tf, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer barStmt.Close()

	sigStmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO signals (symbol, tf, ts, kind, bias, strength, price, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer sigStmt.Close()

	for _, u := range updates {
		b := u.Bar
		if _, err := barStmt.ExecContext(ctx, u.Symbol, string(u.Timeframe), b.TS.Unix(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return fmt.Errorf("insert bar %s: %w", b.TS.Format(time.RFC3339), err)
		}
		for _, s := range u.Signals {
			if _, err := sigStmt.ExecContext(ctx, u.Symbol, string(u.Timeframe), s.TS.Unix(), string(s.Kind), string(s.Bias), s.Strength, s.Price, s.Reason); err != nil {
				return fmt.Errorf("insert signal %s: %w", s.Kind, err)
			}
		}
	}

	return tx.Commit()
}

// LastTimestamp returns the last stored bar time for symbol/tf, or the zero
// time if none exist.
func (w *Writer) LastTimestamp(ctx context.Context, symbol string, tf model.Timeframe) (time.Time, error) {
	var ts sql.NullInt64
	err := w.db.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM bars WHERE symbol = ? AND tf = ?`,
		symbol, string(tf),
	).Scan(&ts)
	if err != nil {
		return time.Time{}, err
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.Unix(ts.Int64, 0).UTC(), nil
}

// Import copies bars for symbol/tf from src that are newer than the last
// stored bar, so repeated imports of the same archive are cheap. Returns the
// number of bars written.
func (w *Writer) Import(ctx context.Context, src model.BarReader, symbol string, tf model.Timeframe) (int, error) {
	last, err := w.LastTimestamp(ctx, symbol, tf)
	if err != nil {
		return 0, fmt.Errorf("last stored bar: %w", err)
	}
	var from time.Time
	if !last.IsZero() {
		from = last.Add(time.Second) // ts is stored in whole seconds
	}
	bars, err := src.ReadBars(ctx, symbol, tf, from)
	if err != nil {
		return 0, fmt.Errorf("read import source: %w", err)
	}
	if len(bars) == 0 {
		return 0, nil
	}
	if err := w.WriteBars(ctx, symbol, tf, bars); err != nil {
		return 0, err
	}
	w.log.Info("imported bars", "symbol", symbol, "tf", string(tf), "count", len(bars), "after", last)
	return len(bars), nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
