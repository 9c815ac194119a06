package keysafe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type sqlDialect struct {
	name        string
	schema      string
	upsert      string
	placeholder func(n int) string
	isDuplicate func(err error) bool
}

var sqlDialects = map[string]sqlDialect{
	"sqlite": {
		name: "sqlite",
		schema: `CREATE TABLE IF NOT EXISTS keysafe_entries (
			class      TEXT    NOT NULL,
			account    TEXT    NOT NULL,
			data       BLOB    NOT NULL,
			access     TEXT    NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (class, account)
		)`,
		upsert: `ON CONFLICT (class, account) DO UPDATE SET
			data = excluded.data, access = excluded.access, created_at = excluded.created_at`,
		placeholder: func(int) string { return "?" },
		isDuplicate: func(err error) bool {
			var se *sqlite.Error
			if !errors.As(err, &se) {
				return false
			}
			switch se.Code() {
			case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
				return true
			}
			// extended result codes disabled
			return se.Code() == sqlite3.SQLITE_CONSTRAINT
		},
	},
	"postgres": {
		name: "postgres",
		schema: `CREATE TABLE IF NOT EXISTS keysafe_entries (
			class      TEXT   NOT NULL,
			account    TEXT   NOT NULL,
			data       BYTEA  NOT NULL,
			access     TEXT   NOT NULL,
			created_at BIGINT NOT NULL,
			PRIMARY KEY (class, account)
		)`,
		upsert: `ON CONFLICT (class, account) DO UPDATE SET
			data = EXCLUDED.data, access = EXCLUDED.access, created_at = EXCLUDED.created_at`,
		placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
		isDuplicate: func(err error) bool {
			var pqErr *pq.Error
			return errors.As(err, &pqErr) && pqErr.Code == "23505"
		},
	},
	"mysql": {
		name: "mysql",
		schema: `CREATE TABLE IF NOT EXISTS keysafe_entries (
			class      VARCHAR(191) NOT NULL,
			account    VARCHAR(191) NOT NULL,
			data       LONGBLOB     NOT NULL,
			access     VARCHAR(64)  NOT NULL,
			created_at BIGINT       NOT NULL,
			PRIMARY KEY (class, account)
		)`,
		upsert: `ON DUPLICATE KEY UPDATE
			data = VALUES(data), access = VALUES(access), created_at = VALUES(created_at)`,
		placeholder: func(int) string { return "?" },
		isDuplicate: func(err error) bool {
			var myErr *mysql.MySQLError
			return errors.As(err, &myErr) && myErr.Number == 1062
		},
	},
}

// SQLBackend keeps entries in the keysafe_entries table of a SQLite,
// PostgreSQL or MySQL database.
type SQLBackend struct {
	db      *sql.DB
	dialect sqlDialect
}

// OpenSQL connects with driver ("sqlite", "postgres" or "mysql") and creates
// the table when missing.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLBackend, error) {
	dialect, ok := sqlDialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open %s database: %w", driver, err)
	}
	if driver == "sqlite" {
		// single writer
		db.SetMaxOpenConns(1)
	}

	backend := &SQLBackend{db: db, dialect: dialect}
	if err := backend.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return backend, nil
}

// OpenSQLite opens (or creates) the database file at path.
func OpenSQLite(ctx context.Context, path string) (*SQLBackend, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o700); err != nil {
		return nil, fmt.Errorf("could not create database directory: %w", err)
	}

	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	return OpenSQL(ctx, "sqlite", dsn)
}

func (b *SQLBackend) migrate(ctx context.Context) error {
	if err := b.db.PingContext(ctx); err != nil {
		return fmt.Errorf("could not reach %s database: %w", b.dialect.name, err)
	}
	if _, err := b.db.ExecContext(ctx, b.dialect.schema); err != nil {
		return fmt.Errorf("could not create keysafe_entries table: %w", err)
	}
	return nil
}

// bind rewrites ? placeholders for the dialect.
func (b *SQLBackend) bind(query string) string {
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString(b.dialect.placeholder(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

const sqlInsert = `INSERT INTO keysafe_entries (class, account, data, access, created_at) VALUES (?, ?, ?, ?, ?)`

func (b *SQLBackend) Insert(ctx context.Context, item Item) error {
	_, err := b.db.ExecContext(ctx, b.bind(sqlInsert),
		string(item.Class), item.Account, item.Data, item.Access.String(), time.Now().UnixMilli())
	if err != nil {
		if b.dialect.isDuplicate(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert failed: %w", err)
	}
	return nil
}

func (b *SQLBackend) Upsert(ctx context.Context, item Item) error {
	_, err := b.db.ExecContext(ctx, b.bind(sqlInsert+" "+b.dialect.upsert),
		string(item.Class), item.Account, item.Data, item.Access.String(), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert failed: %w", err)
	}
	return nil
}

func (b *SQLBackend) Query(ctx context.Context, class Class, account string) ([]byte, error) {
	var data []byte
	err := b.db.QueryRowContext(ctx,
		b.bind(`SELECT data FROM keysafe_entries WHERE class = ? AND account = ?`),
		string(class), account,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select failed: %w", err)
	}
	return data, nil
}

func (b *SQLBackend) DeleteByAccount(ctx context.Context, class Class, account string) error {
	res, err := b.db.ExecContext(ctx,
		b.bind(`DELETE FROM keysafe_entries WHERE class = ? AND account = ?`),
		string(class), account)
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (b *SQLBackend) DeleteByClass(ctx context.Context, class Class) error {
	if _, err := b.db.ExecContext(ctx, b.bind(`DELETE FROM keysafe_entries WHERE class = ?`), string(class)); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	return nil
}

// Policy returns the access policy stored with an entry.
func (b *SQLBackend) Policy(ctx context.Context, class Class, account string) (AccessPolicy, error) {
	var tag string
	err := b.db.QueryRowContext(ctx,
		b.bind(`SELECT access FROM keysafe_entries WHERE class = ? AND account = ?`),
		string(class), account,
	).Scan(&tag)
	if errors.Is(err, sql.ErrNoRows) {
		return AccessPolicy{}, ErrNotFound
	}
	if err != nil {
		return AccessPolicy{}, fmt.Errorf("select failed: %w", err)
	}
	return ParseAccessPolicy(tag)
}

func (b *SQLBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
