package db

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/sujalbistaa/drops/internal/models"
)

// Init opens the database named by dbURL, which must start with
// postgres:// or sqlite://.
func Init(dbURL string, log logrus.FieldLogger) (*gorm.DB, error) {
	var (
		dialector gorm.Dialector
		isSQLite  bool
	)

	switch {
	case strings.HasPrefix(dbURL, "postgres://"), strings.HasPrefix(dbURL, "postgresql://"):
		// pgx accepts the URL form as is
		dialector = postgres.Open(dbURL)
		log.Info("connecting to PostgreSQL database")
	case strings.HasPrefix(dbURL, "sqlite://"):
		dsn := strings.TrimPrefix(dbURL, "sqlite://")
		dialector = sqlite.Open(dsn)
		isSQLite = true
		log.WithField("dsn", dsn).Info("connecting to SQLite database")
	default:
		return nil, fmt.Errorf("invalid DATABASE_URL %q: must start with postgres:// or sqlite://", dbURL)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if isSQLite {
		// one writer; transactions queue on the pool instead of failing with SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
	}

	log.Info("database connection established")
	return gdb, nil
}

// Migrate creates the tables and the indexes AutoMigrate does not derive.
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&models.Drop{},
		&models.Vote{},
		&models.PeekRecord{},
		&models.Balance{},
		&models.LedgerEntry{},
		&models.Action{},
	); err != nil {
		return err
	}

	stmts := []string{
		`create index if not exists idx_votes_drop_value on votes(drop_id, value);`,
		`create index if not exists idx_actions_drop_type on actions(drop_id, type, option_index);`,
		`create index if not exists idx_drops_author_created on drops(author_id, created_at);`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}
	return nil
}

// ForUpdate adds a row lock on dialects that support one. SQLite serialises
// writers on its single connection instead.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}
