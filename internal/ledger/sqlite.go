package ledger

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/nanashi07/sminer-sub000/internal/audit"
	"github.com/nanashi07/sminer-sub000/internal/model"
)

// SQLiteRecorder persists engine history to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so reporting reads don't contend with the recording path.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS candles (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			recorded_at INTEGER NOT NULL,
			symbol      TEXT NOT NULL,
			unit        TEXT NOT NULL,
			unit_time   INTEGER NOT NULL,
			open        REAL,
			close       REAL,
			max         REAL,
			min         REAL,
			volume      INTEGER,
			samples     INTEGER,
			slope       REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_candles_key ON candles(symbol, unit, unit_time)`,

		`CREATE TABLE IF NOT EXISTS verdicts (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			recorded_at INTEGER NOT NULL,
			mode        TEXT NOT NULL,
			rule_index  INTEGER NOT NULL,
			symbol      TEXT NOT NULL,
			evaluation  INTEGER NOT NULL,
			skipped     INTEGER NOT NULL,
			passed      INTEGER NOT NULL,
			matched     INTEGER NOT NULL,
			detail      TEXT,
			error       TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_verdicts_ts ON verdicts(recorded_at)`,

		`CREATE TABLE IF NOT EXISTS orders (
			id            TEXT PRIMARY KEY,
			recorded_at   INTEGER NOT NULL,
			symbol        TEXT NOT NULL,
			entry_price   REAL,
			volume        INTEGER,
			constraint_id TEXT,
			status        INTEGER,
			audit_state   INTEGER,
			created_at    INTEGER
		)`,

		`CREATE TABLE IF NOT EXISTS profit_reports (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			recorded_at INTEGER NOT NULL,
			formula     TEXT NOT NULL,
			value       REAL NOT NULL,
			legs        INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_profit_ts ON profit_reports(recorded_at)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordCandle appends one candle snapshot.
func (r *SQLiteRecorder) RecordCandle(c *model.Candle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var slope any
	if c.HasSlope {
		slope = c.Slope
	}
	_, err := r.db.Exec(`INSERT INTO candles
		(recorded_at, symbol, unit, unit_time, open, close, max, min, volume, samples, slope)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		time.Now().Unix(), c.Symbol, c.Unit.Name, c.UnitTime,
		c.Open, c.Close, c.Max, c.Min, c.Volume, c.SampleSize, slope,
	)
	return err
}

// RecordVerdict appends one rule verdict trace.
func (r *SQLiteRecorder) RecordVerdict(v *audit.Verdict) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errText any
	if v.Err != nil {
		errText = v.Err.Error()
	}
	_, err := r.db.Exec(`INSERT INTO verdicts
		(recorded_at, mode, rule_index, symbol, evaluation, skipped, passed, matched, detail, error)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		time.Now().Unix(), v.Mode, v.RuleIndex, v.Symbol,
		v.Evaluation, v.Skipped, v.Passed, v.Matched, v.Detail, errText,
	)
	return err
}

// RecordOrder upserts an order leg snapshot.
func (r *SQLiteRecorder) RecordOrder(o *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO orders
		(id, recorded_at, symbol, entry_price, volume, constraint_id, status, audit_state, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			recorded_at=excluded.recorded_at,
			status=excluded.status,
			audit_state=excluded.audit_state`,
		o.ID.String(), time.Now().Unix(), o.Symbol, o.EntryPrice, o.Volume,
		o.ConstraintID, int(o.Status), int(o.Audit), o.CreatedAt.Unix(),
	)
	return err
}

// RecordProfit appends one profit report.
func (r *SQLiteRecorder) RecordProfit(p *ProfitReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO profit_reports
		(recorded_at, formula, value, legs) VALUES (?,?,?,?)`,
		time.Now().Unix(), p.Formula, p.Value, p.Legs,
	)
	return err
}

// Close closes the underlying database.
func (r *SQLiteRecorder) Close() error {
	log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}
