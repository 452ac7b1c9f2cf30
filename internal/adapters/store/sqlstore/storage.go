// Package sqlstore implements the durable score store on PostgreSQL or
// MySQL through sqlx.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/okian/scoreboard/internal/domain/ingest"
	"github.com/okian/scoreboard/internal/domain/model"
)

// Driver names a supported SQL dialect.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

// ErrUnsupportedDriver is returned for drivers other than postgres or mysql.
var ErrUnsupportedDriver = errors.New("unsupported sql driver")

const (
	pgUniqueViolation   = "23505"
	mysqlDuplicateEntry = 1062
	defaultMaxOpenConns = 20
	defaultConnMaxIdle  = 5 * time.Minute
)

var schema = map[Driver][]string{
	DriverPostgres: {
		`CREATE TABLE IF NOT EXISTS player_scores (
			player_id    VARCHAR(191) NOT NULL PRIMARY KEY,
			score        BIGINT       NOT NULL,
			display_name VARCHAR(255) NOT NULL DEFAULT '',
			updated_at   TIMESTAMPTZ  NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_player_scores_score ON player_scores (score DESC, player_id)`,
	},
	DriverMySQL: {
		`CREATE TABLE IF NOT EXISTS player_scores (
			player_id    VARCHAR(191) NOT NULL PRIMARY KEY,
			score        BIGINT       NOT NULL,
			display_name VARCHAR(255) NOT NULL DEFAULT '',
			updated_at   DATETIME(6)  NOT NULL,
			INDEX idx_player_scores_score (score, player_id)
		)`,
	},
}

type row struct {
	PlayerID    string    `db:"player_id"`
	Score       int64     `db:"score"`
	DisplayName string    `db:"display_name"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r row) record() model.ScoreRecord {
	return model.ScoreRecord{PlayerID: r.PlayerID, Score: r.Score, DisplayName: r.DisplayName}
}

// Store persists one row per player in player_scores.
type Store struct {
	db     *sqlx.DB
	driver Driver
	now    func() time.Time
}

// New opens and pings a database for driver using dsn.
func New(ctx context.Context, driver Driver, dsn string) (*Store, error) {
	if _, ok := schema[driver]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	db, err := sqlx.ConnectContext(ctx, string(driver), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetConnMaxIdleTime(defaultConnMaxIdle)
	return NewWithDB(db, driver), nil
}

// NewWithDB wraps an existing handle (useful for testing).
func NewWithDB(db *sqlx.DB, driver Driver) *Store {
	return &Store{db: db, driver: driver, now: func() time.Time { return time.Now().UTC() }}
}

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }

// EnsureSchema creates the player_scores table and its ordering index.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts, ok := schema[s.driver]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedDriver, s.driver)
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// FindCurrentScore returns the stored record for playerID.
func (s *Store) FindCurrentScore(ctx context.Context, playerID string) (model.ScoreRecord, bool, error) {
	var r row
	q := s.db.Rebind(`SELECT player_id, score, display_name, updated_at FROM player_scores WHERE player_id = ?`)
	err := s.db.GetContext(ctx, &r, q, playerID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return model.ScoreRecord{}, false, nil
	case err != nil:
		return model.ScoreRecord{}, false, fmt.Errorf("failed to read score: %w", err)
	}
	return r.record(), true, nil
}

// Upsert inserts rec when exists is false and updates the row otherwise.
func (s *Store) Upsert(ctx context.Context, rec model.ScoreRecord, exists bool) error {
	if !exists {
		q := s.db.Rebind(`INSERT INTO player_scores (player_id, score, display_name, updated_at) VALUES (?, ?, ?, ?)`)
		_, err := s.db.ExecContext(ctx, q, rec.PlayerID, rec.Score, rec.DisplayName, s.now())
		if isDuplicate(err) {
			return fmt.Errorf("%w: %s", ingest.ErrRecordExists, rec.PlayerID)
		}
		if err != nil {
			return fmt.Errorf("failed to insert score: %w", err)
		}
		return nil
	}

	q := s.db.Rebind(`UPDATE player_scores SET score = ?, display_name = ?, updated_at = ? WHERE player_id = ?`)
	res, err := s.db.ExecContext(ctx, q, rec.Score, rec.DisplayName, s.now(), rec.PlayerID)
	if err != nil {
		return fmt.Errorf("failed to update score: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update score: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ingest.ErrRecordMissing, rec.PlayerID)
	}
	return nil
}

// TopScores returns up to n records, best first, ties by player id.
func (s *Store) TopScores(ctx context.Context, n int) ([]model.ScoreRecord, error) {
	if n < 1 {
		return nil, errors.New("limit must be positive")
	}
	var rows []row
	q := s.db.Rebind(`SELECT player_id, score, display_name, updated_at FROM player_scores ORDER BY score DESC, player_id ASC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &rows, q, n); err != nil {
		return nil, fmt.Errorf("failed to list scores: %w", err)
	}
	out := make([]model.ScoreRecord, len(rows))
	for i, r := range rows {
		out[i] = r.record()
	}
	return out, nil
}

// Count returns the number of stored players.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM player_scores`); err != nil {
		return 0, fmt.Errorf("failed to count scores: %w", err)
	}
	return n, nil
}

func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	return false
}
