package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/oidbt/bangumi-ani-getter/pkg/catalog"
	"github.com/oidbt/bangumi-ani-getter/pkg/logging"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	sqldblogger "github.com/simukti/sqldb-logger"
)

const (
	sqliteDialect = "sqlite3"
	recordsTable  = "bangumi_ani_data"

	// DefaultSQLitePath is the database file used when none is configured.
	DefaultSQLitePath = "OIDBT_SQLite.db"
)

//go:embed migrations/*.sql
var migrations embed.FS

var upsertRecordQuery = `
	INSERT INTO ` + recordsTable + ` (id, name, name_cn, name_alias)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
	  name = excluded.name,
	  name_cn = excluded.name_cn,
	  name_alias = excluded.name_alias
`

type (
	// aliasColumn stores an alias list as a JSON array in a TEXT column.
	aliasColumn []string

	recordRow struct {
		ID        int         `db:"id"`
		Name      string      `db:"name"`
		NameCN    string      `db:"name_cn"`
		NameAlias aliasColumn `db:"name_alias"`
	}

	// SQLite is the SQLite-backed store.
	SQLite struct {
		db     *sqlx.DB
		mu     sync.Mutex
		logger zerolog.Logger
	}
)

// OpenSQLite opens (creating if needed) the database file at path and
// applies pending migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	path = normalizeSQLitePath(path)
	logger := logging.NewLogger(logging.ComponentStore).With().Str("backend", BackendSQLite).Logger()

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	rawDB := sqldblogger.OpenDriver(dsn, &sqlite3.SQLiteDriver{}, &sqlLogger{logger}, sqlLoggerOptions...)

	if err := rawDB.PingContext(ctx); err != nil {
		rawDB.Close()
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if err := migrate(rawDB, logger); err != nil {
		rawDB.Close()
		return nil, err
	}

	logger.Info().Str("path", path).Msg("SQLite store ready")
	return &SQLite{
		db:     sqlx.NewDb(rawDB, sqliteDialect),
		logger: logger,
	}, nil
}

// migrate runs the embedded goose migrations against db.
func migrate(db *sql.DB, logger zerolog.Logger) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{logger})
	if err := goose.SetDialect(sqliteDialect); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("migrate sqlite: %w", err)
	}
	return nil
}

// UpsertBatch writes all records in one transaction, replacing any existing
// row with the same id.
func (s *SQLite) UpsertBatch(ctx context.Context, records []catalog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	err := wrapTx(ctx, s.db, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, upsertRecordQuery)
		if err != nil {
			return fmt.Errorf("prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, r := range records {
			aliases, err := aliasColumn(normalizeAliases(r.NameAlias)).Value()
			if err != nil {
				return fmt.Errorf("encode aliases for %d: %w", r.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, r.ID, r.Name, r.NameCN, aliases); err != nil {
				return fmt.Errorf("upsert %d: %w", r.ID, err)
			}
		}
		return nil
	})
	observeBatch(BackendSQLite, len(records), time.Since(start).Seconds(), err)

	if err != nil {
		s.logger.Error().Err(err).Int("records", len(records)).Msg("Batch rolled back")
		return &StorageError{Op: "upsert", Backend: BackendSQLite, Err: err}
	}

	s.logger.Debug().Int("records", len(records)).Dur("duration", time.Since(start)).Msg("Batch committed")
	return nil
}

// Count returns the number of stored records.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	query, args, err := squirrel.Select("COUNT(*)").From(recordsTable).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to construct count query: %w", err)
	}

	var count int
	if err := s.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, &StorageError{Op: "count", Backend: BackendSQLite, Err: err}
	}
	return count, nil
}

// Get returns the record with the given id or ErrNotFound.
func (s *SQLite) Get(ctx context.Context, id int) (*catalog.Record, error) {
	query, args, err := selectRecordBuilder().Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct select record query: %w", err)
	}

	var row recordRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, &StorageError{Op: "get", Backend: BackendSQLite, Err: err}
	}

	record := row.toRecord()
	return &record, nil
}

// List returns every record ordered by id.
func (s *SQLite) List(ctx context.Context) ([]catalog.Record, error) {
	query, args, err := selectRecordBuilder().OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct list records query: %w", err)
	}

	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, &StorageError{Op: "list", Backend: BackendSQLite, Err: err}
	}

	records := make([]catalog.Record, len(rows))
	for i, row := range rows {
		records[i] = row.toRecord()
	}
	return records, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func selectRecordBuilder() squirrel.SelectBuilder {
	return squirrel.
		Select("id", "name", "name_cn", "name_alias").
		From(recordsTable)
}

func (r recordRow) toRecord() catalog.Record {
	return catalog.Record{
		ID:        r.ID,
		Name:      r.Name,
		NameCN:    r.NameCN,
		NameAlias: normalizeAliases(r.NameAlias),
	}
}

// wrapTx starts a transaction and calls f. If f errors the transaction is
// rolled back, otherwise it is committed.
func wrapTx(ctx context.Context, db *sqlx.DB, f func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := f(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func normalizeSQLitePath(path string) string {
	if path == "" {
		return DefaultSQLitePath
	}
	if !strings.HasSuffix(path, ".db") {
		return path + ".db"
	}
	return path
}

// Value implements driver.Valuer.
func (a aliasColumn) Value() (driver.Value, error) {
	data, err := json.Marshal([]string(normalizeAliases(a)))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (a *aliasColumn) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*a = aliasColumn{}
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unsupported name_alias column type %T", src)
	}

	var aliases []string
	if err := json.Unmarshal(data, &aliases); err != nil {
		return fmt.Errorf("decode name_alias: %w", err)
	}
	*a = normalizeAliases(aliases)
	return nil
}
