package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"sales-pipeline/internal/logging"
	"sales-pipeline/internal/model"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Store is the embedded SQL view of one pipeline run.
type Store struct {
	db    *sqlx.DB
	path  string
	retry RetryConfig
}

const salesTable = `
CREATE TABLE sales_data (
	ORDERNUMBER       INTEGER NOT NULL,
	QUANTITYORDERED   INTEGER NOT NULL,
	PRICEEACH         REAL    NOT NULL,
	ORDERLINENUMBER   INTEGER NOT NULL,
	SALES             REAL    NOT NULL,
	ORDERDATE         TEXT    NOT NULL,
	STATUS            TEXT    NOT NULL,
	QTR_ID            INTEGER NOT NULL,
	MONTH_ID          INTEGER NOT NULL,
	YEAR_ID           INTEGER NOT NULL,
	PRODUCTLINE       TEXT    NOT NULL,
	MSRP              REAL    NOT NULL,
	PRODUCTCODE       TEXT    NOT NULL,
	CUSTOMERNAME      TEXT    NOT NULL,
	PHONE             TEXT    NOT NULL,
	ADDRESSLINE1      TEXT    NOT NULL,
	ADDRESSLINE2      TEXT    NOT NULL,
	CITY              TEXT    NOT NULL,
	STATE             TEXT    NOT NULL,
	POSTALCODE        TEXT    NOT NULL,
	COUNTRY           TEXT    NOT NULL,
	TERRITORY         TEXT    NOT NULL,
	CONTACTLASTNAME   TEXT    NOT NULL,
	CONTACTFIRSTNAME  TEXT    NOT NULL,
	DEALSIZE          TEXT    NOT NULL,
	YEAR              INTEGER NOT NULL,
	MONTH             INTEGER NOT NULL,
	QUARTER           INTEGER NOT NULL,
	DAY_OF_WEEK       INTEGER NOT NULL,
	DAY_NAME          TEXT    NOT NULL,
	IS_WEEKEND        INTEGER NOT NULL,
	MARGIN            REAL    NOT NULL,
	MARGIN_PERCENTAGE REAL    NOT NULL,
	SALES_CATEGORY    TEXT    NOT NULL
);
`

var indexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_orderdate ON sales_data(ORDERDATE)",
	"CREATE INDEX IF NOT EXISTS idx_productline ON sales_data(PRODUCTLINE)",
	"CREATE INDEX IF NOT EXISTS idx_country ON sales_data(COUNTRY)",
	"CREATE INDEX IF NOT EXISTS idx_status ON sales_data(STATUS)",
	"CREATE INDEX IF NOT EXISTS idx_year_month ON sales_data(YEAR_ID, MONTH_ID)",
	"CREATE INDEX IF NOT EXISTS idx_sales ON sales_data(SALES)",
	"CREATE INDEX IF NOT EXISTS idx_customer ON sales_data(CUSTOMERNAME)",
}

// Open opens the database at path and rebuilds sales_data, so no rows from a
// previous run survive. The run history tables are kept.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = MemoryPath
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	s, err := connect(ctx, path)
	if err != nil {
		return nil, err
	}
	err = withRetry(ctx, s.retry, "create schema", func() error {
		return s.createSchema(ctx)
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	logging.FromContext(ctx).Debug().Str("path", path).Msg("Database opened")
	return s, nil
}

// OpenExisting opens the database a previous run left at path without
// touching its tables. It is used to inspect run history.
func OpenExisting(ctx context.Context, path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("database %s not found: %w", path, err)
	}

	s, err := connect(ctx, path)
	if err != nil {
		return nil, err
	}
	err = withRetry(ctx, s.retry, "create run tables", func() error {
		return s.exec(ctx, runTables)
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func connect(ctx context.Context, path string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	// One connection: an in-memory database exists per connection, and the
	// pipeline never reads and writes concurrently.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database %s: %w", path, err)
	}
	return &Store{db: db, path: path, retry: DefaultRetryConfig}, nil
}

func (s *Store) createSchema(ctx context.Context) error {
	stmts := []string{"DROP TABLE IF EXISTS sales_data", salesTable}
	stmts = append(stmts, indexes...)
	stmts = append(stmts, runTables...)
	return s.exec(ctx, stmts)
}

func (s *Store) exec(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

var insertSales = buildInsert("sales_data", salesColumns())

func salesColumns() []string {
	cols := append([]string(nil), model.RequiredColumns...)
	return append(cols,
		"YEAR", "MONTH", "QUARTER", "DAY_OF_WEEK", "DAY_NAME",
		"IS_WEEKEND", "MARGIN", "MARGIN_PERCENTAGE", "SALES_CATEGORY")
}

func buildInsert(table string, cols []string) string {
	named := make([]string, len(cols))
	for i, c := range cols {
		named[i] = ":" + c
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(named, ", "))
}

// LoadSales inserts the cleaned records in a single transaction and returns
// the number of rows written. A locked database is retried as a whole.
func (s *Store) LoadSales(ctx context.Context, records []model.CleanedSalesRecord) (int, error) {
	err := withRetry(ctx, s.retry, "load sales", func() error {
		return s.insertRecords(ctx, records)
	})
	if err != nil {
		return 0, err
	}

	logging.FromContext(ctx).Info().Int("rows", len(records)).Msg("Loaded sales_data")
	return len(records), nil
}

func (s *Store) insertRecords(ctx context.Context, records []model.CleanedSalesRecord) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.PrepareNamedContext(ctx, insertSales)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range records {
		if _, err := stmt.ExecContext(ctx, &records[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert order %d line %d: %w",
				records[i].OrderNumber, records[i].OrderLineNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sales: %w", err)
	}
	return nil
}

// CountSales returns the number of rows in sales_data.
func (s *Store) CountSales(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM sales_data"); err != nil {
		return 0, fmt.Errorf("failed to count sales: %w", err)
	}
	return n, nil
}
