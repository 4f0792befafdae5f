package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store/sqlstore/migrations"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

func (d Dialect) driverName() string {
	if d == DialectSQLite {
		return "sqlite"
	}
	return "pgx"
}

func ParseDialect(raw string) (Dialect, error) {
	switch raw {
	case "", "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", raw)
	}
}

type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Migrate         bool
}

type Store struct {
	db      *sqlx.DB
	dialect Dialect
}

// Open connects, pings and optionally applies the embedded schema.
func Open(ctx context.Context, dialect Dialect, dsn string, opts Options) (*Store, error) {
	db, err := sqlx.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, err
	}

	switch dialect {
	case DialectSQLite:
		// One connection serialises writers and keeps ":memory:" databases alive.
		db.SetMaxOpenConns(1)
	default:
		if opts.MaxOpenConns > 0 {
			db.SetMaxOpenConns(opts.MaxOpenConns)
		} else {
			db.SetMaxOpenConns(30)
		}
		if opts.MaxIdleConns > 0 {
			db.SetMaxIdleConns(opts.MaxIdleConns)
		} else {
			db.SetMaxIdleConns(8)
		}
		if opts.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(opts.ConnMaxLifetime)
		} else {
			db.SetConnMaxLifetime(30 * time.Minute)
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, dialect: dialect}
	if opts.Migrate {
		if err := s.applyMigrations(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) applyMigrations(ctx context.Context) error {
	return migrations.Apply(ctx, s.db, string(s.dialect))
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

type txKey struct{}

// RunAtomic runs fn inside one database transaction carried by the context.
// Postgres units run at SERIALIZABLE isolation; sqlite units are serialised
// by its single writer.
func (s *Store) RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	var opts *sql.TxOptions
	if s.dialect == DialectPostgres {
		opts = &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	tx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		return s.classify(err, "begin transaction")
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return s.classify(err, "transaction")
	}
	if err := tx.Commit(); err != nil {
		return s.classify(err, "commit transaction")
	}
	return nil
}

func txFromContext(ctx context.Context) *sqlx.Tx {
	tx, _ := ctx.Value(txKey{}).(*sqlx.Tx)
	return tx
}

// q returns the ambient transaction if there is one, otherwise the pool.
func (s *Store) q(ctx context.Context) sqlx.ExtContext {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return s.db
}

func (s *Store) get(ctx context.Context, dest any, query string, args ...any) error {
	q := s.q(ctx)
	return sqlx.GetContext(ctx, q, dest, q.Rebind(query), args...)
}

func (s *Store) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	q := s.q(ctx)
	return sqlx.SelectContext(ctx, q, dest, q.Rebind(query), args...)
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	q := s.q(ctx)
	return q.ExecContext(ctx, q.Rebind(query), args...)
}

// classify maps driver errors onto domain kinds. Errors that already carry
// a kind pass through untouched.
func (s *Store) classify(err error, op string) error {
	if err == nil {
		return nil
	}
	var kinded *domain.Error
	if errors.As(err, &kinded) {
		return err
	}
	switch {
	case isSerializationFailure(err):
		return domain.Wrap(domain.KindStorageConflict, err, op)
	case isUniqueViolation(err):
		return domain.Wrap(domain.KindInvalidInput, err, "duplicate record")
	case isOutOfRange(err):
		return domain.Wrap(domain.KindInvalidInput, err, "value out of range")
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		// SQLITE_BUSY, SQLITE_LOCKED and their extended codes.
		primary := liteErr.Code() & 0xff
		return primary == 5 || primary == 6
	}
	return false
}

// isOutOfRange catches postgres integer overflow on stock columns.
func isOutOfRange(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22003"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		// SQLITE_CONSTRAINT_UNIQUE / SQLITE_CONSTRAINT_PRIMARYKEY, or the bare
		// SQLITE_CONSTRAINT when extended codes are off.
		code := liteErr.Code()
		if code == 2067 || code == 1555 {
			return true
		}
		return code&0xff == 19 && strings.Contains(liteErr.Error(), "UNIQUE")
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return val.UTC()
}
