// Package sqlstore persists fetched weather observations in a relational database.
// SQLite is the default; PostgreSQL is reached through pgx.
package sqlstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"

	"github.com/grafana/nanofetch/log"
)

//go:embed migrations
var migrations embed.FS

// Config selects the database.
type Config struct {
	// Driver is "sqlite3", "postgres" or "pgx". Postgres is served by pgx either way.
	Driver string
	// DSN is the file path for SQLite or the connection URL for PostgreSQL.
	DSN string
}

// City is one row of the City table.
type City struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

// Observation is the weather payload stored for a city.
type Observation struct {
	Weather  string  `db:"weather"`
	Temp     float64 `db:"temp"`
	Pressure float64 `db:"pressure"`
	Humidity float64 `db:"humidity"`
	TempMin  float64 `db:"temp_min"`
	TempMax  float64 `db:"temp_max"`
}

// ObservationRow is a stored observation joined with its city name.
type ObservationRow struct {
	ID       int64     `db:"id"`
	City     string    `db:"city_name"`
	Weather  string    `db:"weather"`
	Temp     float64   `db:"temp"`
	Pressure float64   `db:"pressure"`
	Humidity float64   `db:"humidity"`
	TempMin  float64   `db:"temp_min"`
	TempMax  float64   `db:"temp_max"`
	Date     time.Time `db:"date"`
}

// Store reads and writes cities and observations.
type Store struct {
	db     *sqlx.DB
	logger log.Logger
}

type dialect struct {
	driver string
	goose  database.Dialect
	dir    string
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "", "sqlite3":
		return dialect{driver: "sqlite3", goose: database.DialectSQLite3, dir: "migrations/sqlite3"}, nil
	case "postgres", "pgx":
		return dialect{driver: "pgx", goose: database.DialectPostgres, dir: "migrations/postgres"}, nil
	default:
		return dialect{}, fmt.Errorf("unsupported driver %q", driver)
	}
}

// Open connects to the database and applies pending migrations.
func Open(ctx context.Context, cfg Config, logger log.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("dsn cannot be empty")
	}
	if logger == nil {
		logger = log.Noop()
	}

	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(d.driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if d.driver == "sqlite3" {
		// One connection serialises writers and keeps :memory: databases alive.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrate(ctx, db, d, logger); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, logger: logger}, nil
}

func migrate(ctx context.Context, db *sqlx.DB, d dialect, logger log.Logger) error {
	fsys, err := fs.Sub(migrations, d.dir)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	provider, err := goose.NewProvider(d.goose, db.DB, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to migrate db: %w", err)
	}
	for _, r := range results {
		logger.Debug("Applied migration", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertCity returns the id of the named city, inserting it if needed.
func (s *Store) UpsertCity(ctx context.Context, name string) (int64, error) {
	return s.upsertCity(ctx, s.db, name)
}

func (s *Store) upsertCity(ctx context.Context, q sqlx.ExtContext, name string) (int64, error) {
	if name == "" {
		return 0, errors.New("city name cannot be empty")
	}

	insert := s.db.Rebind(`INSERT INTO City (name) VALUES (?) ON CONFLICT (name) DO NOTHING`)
	if _, err := q.ExecContext(ctx, insert, name); err != nil {
		return 0, fmt.Errorf("failed to insert city: %w", err)
	}

	var id int64
	if err := sqlx.GetContext(ctx, q, &id, s.db.Rebind(`SELECT id FROM City WHERE name = ?`), name); err != nil {
		return 0, fmt.Errorf("failed to get city id: %w", err)
	}
	return id, nil
}

// InsertObservation stores obs for the city with the given id.
func (s *Store) InsertObservation(ctx context.Context, cityID int64, obs Observation) error {
	return s.insertObservation(ctx, s.db, cityID, obs)
}

func (s *Store) insertObservation(ctx context.Context, q sqlx.ExecerContext, cityID int64, obs Observation) error {
	query := s.db.Rebind(`
		INSERT INTO Weather (city_id, weather, temp, pressure, humidity, temp_min, temp_max)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := q.ExecContext(ctx, query,
		cityID,
		obs.Weather,
		obs.Temp,
		obs.Pressure,
		obs.Humidity,
		obs.TempMin,
		obs.TempMax,
	)
	if err != nil {
		return fmt.Errorf("failed to insert weather data: %w", err)
	}
	return nil
}

// Save upserts city and stores obs against it in one transaction.
func (s *Store) Save(ctx context.Context, city string, obs Observation) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	cityID, err := s.upsertCity(ctx, tx, city)
	if err != nil {
		return err
	}
	if err = s.insertObservation(ctx, tx, cityID, obs); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// ListCities returns every city ordered by id.
func (s *Store) ListCities(ctx context.Context) ([]City, error) {
	var cities []City
	if err := s.db.SelectContext(ctx, &cities, `SELECT id, name FROM City ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list cities: %w", err)
	}
	return cities, nil
}

// ListObservations returns every observation with its city name, oldest first.
func (s *Store) ListObservations(ctx context.Context) ([]ObservationRow, error) {
	query := `
		SELECT w.id, c.name AS city_name, w.weather, w.temp, w.pressure, w.humidity,
		       w.temp_min, w.temp_max, w.date
		FROM Weather w
		JOIN City c ON w.city_id = c.id
		ORDER BY w.id
	`
	var rows []ObservationRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list weather data: %w", err)
	}
	return rows, nil
}
