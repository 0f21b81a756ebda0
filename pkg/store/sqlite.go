package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/swapi-loader/pkg/people"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var insertRowSQL = `INSERT INTO ` + TableName + ` (` + strings.Join(columns, ", ") + `) VALUES (?` +
	strings.Repeat(", ?", len(columns)-1) + `)`

// SQLite stores rows in a local SQLite database file.
type SQLite struct {
	db     *sql.DB
	logger zerolog.Logger
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: ":memory:" databases are per-connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLite{
		db:     db,
		logger: log.With().Str("component", "store").Str("driver", DriverSQLite).Logger(),
	}, nil
}

// ResetSchema drops and recreates the people table.
func (s *SQLite) ResetSchema(ctx context.Context) error {
	for _, stmt := range []string{dropTableSQL, createTableSQL} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			storeErrorsTotal.WithLabelValues(DriverSQLite, "reset_schema").Inc()
			return fmt.Errorf("reset schema: %w", err)
		}
	}

	s.logger.Info().Str("table", TableName).Msg("Schema reset")
	return nil
}

// AppendBatch inserts rows in a single transaction.
func (s *SQLite) AppendBatch(ctx context.Context, rows []people.Row) (err error) {
	if len(rows) == 0 {
		s.logger.Debug().Msg("Empty batch, nothing to append")
		return nil
	}

	start := time.Now()
	defer func() {
		if err != nil {
			storeErrorsTotal.WithLabelValues(DriverSQLite, "append").Inc()
		}
	}()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertRowSQL)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, rowValues(r)...); err != nil {
			return fmt.Errorf("insert row %d: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true

	storeAppendDuration.WithLabelValues(DriverSQLite).Observe(time.Since(start).Seconds())
	storeRowsWrittenTotal.WithLabelValues(DriverSQLite).Add(float64(len(rows)))
	s.logger.Debug().Int("rows", len(rows)).Dur("duration", time.Since(start)).Msg("Batch appended")
	return nil
}

// Rows returns every stored row ordered by id.
func (s *SQLite) Rows(ctx context.Context) ([]people.Row, error) {
	rows, err := s.db.QueryContext(ctx, selectRowsSQL)
	if err != nil {
		storeErrorsTotal.WithLabelValues(DriverSQLite, "select").Inc()
		return nil, fmt.Errorf("select rows: %w", err)
	}
	defer rows.Close()

	var out []people.Row
	for rows.Next() {
		var r people.Row
		if err := rows.Scan(rowTargets(&r)...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
