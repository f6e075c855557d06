package storage

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// MigrateMySQL applies the embedded MySQL schema to the database behind dsn,
// a go-sql-driver DSN such as "user:pass@tcp(host:3306)/shop?parseTime=true".
func MigrateMySQL(dsn string) error {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return runMigrations("migrations/mysql", "mysql://"+dsn+sep+"multiStatements=true")
}

// MigratePostgres applies the embedded Postgres schema. url is a postgres://
// connection string.
func MigratePostgres(url string) error {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(url, prefix) {
			url = "pgx5://" + strings.TrimPrefix(url, prefix)
			break
		}
	}
	return runMigrations("migrations/postgres", url)
}

func runMigrations(dir, databaseURL string) error {
	source, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("open migrations %s: %w", dir, err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}
