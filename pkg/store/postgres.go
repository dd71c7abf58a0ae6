package store

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"

	_ "github.com/lib/pq"

	"github.com/james-livefront/ai-paywall/pkg/detect"
)

// PGConfig holds Postgres connection settings.
type PGConfig struct {
	DSN   string
	Table string
}

// PGStore persists every detection result in a Postgres table and
// computes stats with SQL aggregates, so multiple processes sharing
// the database see each other's records (read-committed, per the
// underlying store).
type PGStore struct {
	config PGConfig
	db     *sql.DB
}

// NewPGStore uses the default table name "detections".
func NewPGStore(dsn string) *PGStore {
	return &PGStore{config: PGConfig{DSN: dsn, Table: "detections"}}
}

// NewPGStoreFromEnv reads PG_DSN and PG_TABLE.
func NewPGStoreFromEnv() *PGStore {
	table := os.Getenv("PG_TABLE")
	if table == "" {
		table = "detections"
	}
	return &PGStore{config: PGConfig{DSN: os.Getenv("PG_DSN"), Table: table}}
}

var tableNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

// validateTableName guards the identifiers interpolated into DDL;
// everything else goes through placeholders.
func validateTableName(name string) error {
	if !tableNameRe.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}

func (s *PGStore) Start(ctx context.Context) error {
	if err := validateTableName(s.config.Table); err != nil {
		return err
	}

	db, err := sql.Open("postgres", s.config.DSN)
	if err != nil {
		return fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("pinging postgres: %w", err)
	}
	s.db = db

	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		s.db = nil
		return err
	}
	return nil
}

func (s *PGStore) ensureSchema(ctx context.Context) error {
	ddl := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			is_bot BOOLEAN NOT NULL,
			bot_type TEXT NOT NULL DEFAULT '',
			confidence DOUBLE PRECISION NOT NULL,
			detection_method TEXT NOT NULL,
			user_agent TEXT NOT NULL DEFAULT '',
			remote_addr TEXT NOT NULL DEFAULT ''
		)`, s.config.Table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_ts ON %s (ts)`, s.config.Table, s.config.Table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_bot_type ON %s (bot_type)`, s.config.Table, s.config.Table),
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring schema: %w", err)
		}
	}
	return nil
}

func (s *PGStore) Record(ctx context.Context, res detect.Result) error {
	if s.db == nil {
		return fmt.Errorf("postgres store not started")
	}
	// ON CONFLICT keeps re-delivered results idempotent by ID.
	query := fmt.Sprintf(`INSERT INTO %s
		(id, ts, is_bot, bot_type, confidence, detection_method, user_agent, remote_addr)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`, s.config.Table)
	_, err := s.db.ExecContext(ctx, query,
		res.ID, res.Timestamp, res.IsBot, res.BotType,
		res.Confidence, string(res.Method), res.UserAgent, res.RemoteAddr,
	)
	return err
}

func (s *PGStore) Stats(ctx context.Context) (Stats, error) {
	if s.db == nil {
		return Stats{}, fmt.Errorf("postgres store not started")
	}

	var stats Stats
	totals := fmt.Sprintf(
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE is_bot) FROM %s`, s.config.Table)
	if err := s.db.QueryRowContext(ctx, totals).Scan(&stats.TotalRequests, &stats.BotRequests); err != nil {
		return Stats{}, err
	}

	perType := fmt.Sprintf(
		`SELECT bot_type, COUNT(*) FROM %s WHERE is_bot GROUP BY bot_type`, s.config.Table)
	rows, err := s.db.QueryContext(ctx, perType)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var count int64
		if err := rows.Scan(&name, &count); err != nil {
			return Stats{}, err
		}
		if stats.BotTypes == nil {
			stats.BotTypes = make(map[string]int64)
		}
		stats.BotTypes[name] = count
	}
	return stats, rows.Err()
}

func (s *PGStore) Export(ctx context.Context, w io.Writer) error {
	if s.db == nil {
		return &ExportError{Store: s.Name(), Err: fmt.Errorf("postgres store not started")}
	}

	query := fmt.Sprintf(`SELECT id, ts, is_bot, bot_type, confidence,
		detection_method, user_agent, remote_addr FROM %s ORDER BY ts`, s.config.Table)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return &ExportError{Store: s.Name(), Err: err}
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return &ExportError{Store: s.Name(), Err: err}
	}
	for rows.Next() {
		var res detect.Result
		var method string
		if err := rows.Scan(&res.ID, &res.Timestamp, &res.IsBot, &res.BotType,
			&res.Confidence, &method, &res.UserAgent, &res.RemoteAddr); err != nil {
			return &ExportError{Store: s.Name(), Err: err}
		}
		res.Method = detect.Method(method)
		if err := cw.Write(exportRow(res)); err != nil {
			return &ExportError{Store: s.Name(), Err: err}
		}
	}
	if err := rows.Err(); err != nil {
		return &ExportError{Store: s.Name(), Err: err}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return &ExportError{Store: s.Name(), Err: err}
	}
	return nil
}

func (s *PGStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *PGStore) Name() string { return "postgres" }
