package ledger

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"

	"github.com/harunnryd/cipher/pkg/errorsx"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrate applies the embedded migrations for the given dialect.
func Migrate(ctx context.Context, db *sql.DB, dialect goose.Dialect) error {
	dir, err := migrationDir(dialect)
	if err != nil {
		return err
	}
	sub, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return errorsx.Wrap(fmt.Errorf("migrations %s: %w", dir, err), errorsx.ReasonLedgerMigrate)
	}
	provider, err := goose.NewProvider(dialect, db, sub)
	if err != nil {
		return errorsx.Wrap(fmt.Errorf("goose provider: %w", err), errorsx.ReasonLedgerMigrate)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return errorsx.Wrap(fmt.Errorf("migrate up: %w", err), errorsx.ReasonLedgerMigrate)
	}
	for _, r := range results {
		slog.Info("ledger_migration_applied", "component", "ledger", "dialect", string(dialect), "version", r.Source.Version, "duration_ms", r.Duration.Milliseconds())
	}
	return nil
}

func migrationDir(dialect goose.Dialect) (string, error) {
	switch dialect {
	case goose.DialectSQLite3:
		return "migrations/sqlite", nil
	case goose.DialectMySQL:
		return "migrations/mysql", nil
	case goose.DialectPostgres:
		return "migrations/postgres", nil
	default:
		return "", errorsx.New(errorsx.ReasonLedgerMigrate, "unsupported ledger dialect %q", dialect)
	}
}
