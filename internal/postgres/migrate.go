package postgres

import (
	"embed"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // registers pgx5://
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies all pending up migrations.
func Migrate(databaseURL string, log logrus.FieldLogger) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return errors.Wrap(err, "open embedded migrations")
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(databaseURL))
	if err != nil {
		return errors.Wrap(err, "init migrate")
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "migrate up")
	}
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return errors.Wrap(err, "read schema version")
	}
	log.WithFields(logrus.Fields{"version": version, "dirty": dirty}).Info("schema migrated")
	return nil
}

// migrateURL rewrites a libpq style URL to the scheme the pgx/v5 migrate
// driver registers.
func migrateURL(databaseURL string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(databaseURL, prefix) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, prefix)
		}
	}
	return databaseURL
}
