// Package store persists flattened people rows. Each chunk of the pipeline
// is written with one AppendBatch call, which is atomic: either every row of
// the batch is stored or none is.
package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/Sternrassler/swapi-loader/pkg/people"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for store operations.
var (
	storeRowsWrittenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swapi_store_rows_written_total",
		Help: "Total rows durably appended, by driver",
	}, []string{"driver"})

	storeAppendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "swapi_store_append_duration_seconds",
		Help:    "Duration of one batch append, by driver",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"driver"})

	storeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swapi_store_errors_total",
		Help: "Total store errors by driver and operation",
	}, []string{"driver", "operation"})
)

// ErrUnknownDriver is returned by Open for an unsupported Config.Driver.
var ErrUnknownDriver = errors.New("unknown store driver")

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// TableName is the table every driver writes to.
const TableName = "swapi_people"

// columns in insert/select order.
var columns = []string{
	"id", "name", "birth_year", "eye_color", "gender", "hair_color", "height",
	"mass", "skin_color", "films", "homeworld", "species", "starships", "vehicles",
}

const createTableSQL = `CREATE TABLE ` + TableName + ` (
	id         INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	birth_year TEXT NOT NULL,
	eye_color  TEXT NOT NULL,
	gender     TEXT NOT NULL,
	hair_color TEXT NOT NULL,
	height     TEXT NOT NULL,
	mass       TEXT NOT NULL,
	skin_color TEXT NOT NULL,
	films      TEXT NOT NULL,
	homeworld  TEXT,
	species    TEXT NOT NULL,
	starships  TEXT NOT NULL,
	vehicles   TEXT NOT NULL
)`

const dropTableSQL = `DROP TABLE IF EXISTS ` + TableName

var selectRowsSQL = `SELECT ` + strings.Join(columns, ", ") + ` FROM ` + TableName + ` ORDER BY id`

// Store is the persistence boundary of the pipeline.
type Store interface {
	// ResetSchema drops and recreates the people table.
	ResetSchema(ctx context.Context) error

	// AppendBatch stores all rows in one transaction.
	AppendBatch(ctx context.Context, rows []people.Row) error

	// Rows returns every stored row ordered by id.
	Rows(ctx context.Context) ([]people.Row, error)

	// Close releases connections.
	Close() error
}

// Config holds store connection parameters.
type Config struct {
	Driver string

	// Postgres
	Host     string
	Port     string
	User     string
	Password string
	Database string

	// SQLite
	SQLitePath string
}

// DefaultConfig returns the defaults used when the environment is silent.
func DefaultConfig() Config {
	return Config{
		Driver:     DriverPostgres,
		Host:       "127.0.0.1",
		Port:       "5431",
		SQLitePath: "swapi.db",
	}
}

// DSN builds the Postgres connection URL. User and password are escaped.
func (c Config) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	switch {
	case c.User != "" && c.Password != "":
		u.User = url.UserPassword(c.User, c.Password)
	case c.User != "":
		u.User = url.User(c.User)
	}
	return u.String()
}

// Open connects to the configured backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverPostgres, "pg", "":
		s, err := OpenPostgres(ctx, cfg.DSN())
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverSQLite, "sqlite3":
		s, err := OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// rowValues lays out r in column order.
func rowValues(r people.Row) []any {
	return []any{
		r.ID, r.Name, r.BirthYear, r.EyeColor, r.Gender, r.HairColor, r.Height,
		r.Mass, r.SkinColor, r.Films, r.Homeworld, r.Species, r.Starships, r.Vehicles,
	}
}

// rowTargets returns scan destinations for r in column order.
func rowTargets(r *people.Row) []any {
	return []any{
		&r.ID, &r.Name, &r.BirthYear, &r.EyeColor, &r.Gender, &r.HairColor, &r.Height,
		&r.Mass, &r.SkinColor, &r.Films, &r.Homeworld, &r.Species, &r.Starships, &r.Vehicles,
	}
}
