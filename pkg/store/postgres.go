package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/swapi-loader/pkg/people"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Postgres stores rows in PostgreSQL using COPY inside a transaction.
type Postgres struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// OpenPostgres connects to dsn and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Postgres{
		pool:   pool,
		logger: log.With().Str("component", "store").Str("driver", DriverPostgres).Logger(),
	}, nil
}

// ResetSchema drops and recreates the people table.
func (s *Postgres) ResetSchema(ctx context.Context) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, dropTableSQL); err != nil {
			return fmt.Errorf("drop table: %w", err)
		}
		if _, err := tx.Exec(ctx, createTableSQL); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
		return nil
	})
	if err != nil {
		storeErrorsTotal.WithLabelValues(DriverPostgres, "reset_schema").Inc()
		return err
	}

	s.logger.Info().Str("table", TableName).Msg("Schema reset")
	return nil
}

// AppendBatch copies rows into the table in a single transaction.
func (s *Postgres) AppendBatch(ctx context.Context, rows []people.Row) error {
	if len(rows) == 0 {
		s.logger.Debug().Msg("Empty batch, nothing to append")
		return nil
	}

	start := time.Now()
	data := make([][]any, len(rows))
	for i, r := range rows {
		data[i] = rowValues(r)
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{TableName}, columns, pgx.CopyFromRows(data))
		if err != nil {
			return fmt.Errorf("copy rows: %w", err)
		}
		if int(n) != len(rows) {
			return fmt.Errorf("copy rows: wrote %d of %d", n, len(rows))
		}
		return nil
	})
	if err != nil {
		storeErrorsTotal.WithLabelValues(DriverPostgres, "append").Inc()
		return fmt.Errorf("append batch: %w", err)
	}

	storeAppendDuration.WithLabelValues(DriverPostgres).Observe(time.Since(start).Seconds())
	storeRowsWrittenTotal.WithLabelValues(DriverPostgres).Add(float64(len(rows)))
	s.logger.Debug().Int("rows", len(rows)).Dur("duration", time.Since(start)).Msg("Batch appended")
	return nil
}

// Rows returns every stored row ordered by id.
func (s *Postgres) Rows(ctx context.Context) ([]people.Row, error) {
	rows, err := s.pool.Query(ctx, selectRowsSQL)
	if err != nil {
		storeErrorsTotal.WithLabelValues(DriverPostgres, "select").Inc()
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

// Close releases the connection pool.
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}
