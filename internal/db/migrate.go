package db

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	migrationAttempts     = 3
	migrationRetryBackoff = 100 * time.Millisecond
	migrationMaxBackoff   = 3 * time.Second
)

// Transient SQLSTATEs worth retrying a migration for.
var retryableCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
}

// Migration is one versioned SQL file. Version is the file name.
type Migration struct {
	Version string
	Path    string
}

// LoadMigrations lists the .sql files directly under dir in lexical order.
func LoadMigrations(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var out []Migration
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		out = append(out, Migration{Version: entry.Name(), Path: filepath.Join(dir, entry.Name())})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// SeedFile maps a seed name such as "dev" to dir/dev_seed.sql. Names ending
// in .sql are used as given. Names may not leave dir.
func SeedFile(dir, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("seed name is required")
	}
	if name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("seed name %q must not contain a path", name)
	}
	if !strings.HasSuffix(name, ".sql") {
		name += "_seed.sql"
	}
	return filepath.Join(dir, name), nil
}

// Conn is the slice of a pgx connection the migrator needs. *pgxpool.Conn
// satisfies it.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// Migrator records applied versions in schema_migrations and applies each
// pending file in its own serializable transaction.
type Migrator struct {
	conn    Conn
	logger  *slog.Logger
	backoff time.Duration
}

// NewMigrator wraps conn.
func NewMigrator(conn Conn, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{conn: conn, logger: logger, backoff: migrationRetryBackoff}
}

// Applied ensures the bookkeeping table exists and returns the versions it
// lists.
func (m *Migrator) Applied(ctx context.Context) (map[string]bool, error) {
	if _, err := m.conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	rows, err := m.conn.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("fetch applied migrations: %w", err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan applied migrations: %w", err)
	}

	applied := make(map[string]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

// Status writes one "[x] name" or "[ ] name" line per migration.
func (m *Migrator) Status(ctx context.Context, w io.Writer, migrations []Migration) error {
	applied, err := m.Applied(ctx)
	if err != nil {
		return err
	}
	for _, mig := range migrations {
		mark := " "
		if applied[mig.Version] {
			mark = "x"
		}
		if _, err := fmt.Fprintf(w, "[%s] %s\n", mark, mig.Version); err != nil {
			return err
		}
	}
	return nil
}

// Up applies every migration not yet recorded and returns the versions it
// applied. It stops at the first failure.
func (m *Migrator) Up(ctx context.Context, migrations []Migration) ([]string, error) {
	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, err
	}

	var done []string
	for _, mig := range migrations {
		if applied[mig.Version] {
			continue
		}
		contents, err := os.ReadFile(mig.Path)
		if err != nil {
			return done, fmt.Errorf("read migration %s: %w", mig.Version, err)
		}
		if err := m.apply(ctx, mig.Version, string(contents)); err != nil {
			return done, err
		}
		m.logger.Info("migration applied", "version", mig.Version)
		done = append(done, mig.Version)
	}
	return done, nil
}

func (m *Migrator) apply(ctx context.Context, version, contents string) error {
	var err error
	for attempt := 1; attempt <= migrationAttempts; attempt++ {
		if attempt > 1 {
			if waitErr := sleepCtx(ctx, m.retryDelay(attempt)); waitErr != nil {
				return waitErr
			}
		}

		err = m.applyOnce(ctx, version, contents)
		if err == nil {
			return nil
		}
		if !RetryableError(err) {
			return err
		}
		m.logger.Warn("transient migration failure", "version", version, "attempt", attempt, "error", err)
	}
	return fmt.Errorf("migration %s failed after %d attempts: %w", version, migrationAttempts, err)
}

func (m *Migrator) applyOnce(ctx context.Context, version, contents string) error {
	tx, err := m.conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", version, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, contents); err != nil {
		return fmt.Errorf("apply migration %s: %w", version, err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
		return fmt.Errorf("record migration %s: %w", version, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration %s: %w", version, err)
	}
	return nil
}

func (m *Migrator) retryDelay(attempt int) time.Duration {
	d := m.backoff << (attempt - 2)
	if d > migrationMaxBackoff {
		return migrationMaxBackoff
	}
	return d
}

// RetryableError reports whether err is a transient database failure.
func RetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, pgx.ErrTxClosed) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		_, ok := retryableCodes[pgErr.Code]
		return ok
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
