// Package repository persists groups, rating entries and the comparison
// ledger with gorm on SQLite or MySQL.
package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/duel/internal/domain/rating"
	"github.com/okian/duel/pkg/logger"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	defaultDSN           = "duel.db"
	defaultSlowThreshold = 200 * time.Millisecond
	// chunkSize keeps IN lists below SQLite's bound-parameter limit.
	chunkSize = 500
)

// sqlitePragmas are appended to SQLite DSNs unless already present.
// _txlock=immediate takes the write lock at BEGIN so concurrent recorders
// queue on busy_timeout instead of failing on lock upgrade.
var sqlitePragmas = []string{ //nolint:gochecknoglobals // constant list
	"_journal_mode=WAL",
	"_busy_timeout=5000",
	"_foreign_keys=ON",
	"_txlock=immediate",
}

// Store is the gorm-backed rating store, ledger and group registry.
type Store struct {
	db            *gorm.DB
	driver        string
	dsn           string
	maxOpenConns  int
	rater         rating.Rater
	log           logger.Logger
	slowThreshold time.Duration
}

// Open connects to the configured database and migrates the schema.
func Open(ctx context.Context, opts ...Option) (*Store, error) {
	s := &Store{
		driver:        DriverSQLite,
		dsn:           defaultDSN,
		rater:         rating.NewElo(),
		log:           logger.Discard(),
		slowThreshold: defaultSlowThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}

	var dialector gorm.Dialector
	switch s.driver {
	case DriverSQLite:
		dialector = sqlite.Open(sqliteDSN(s.dsn))
	case DriverMySQL:
		dialector = mysql.Open(s.dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", s.driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         newGormLogger(s.log, s.slowThreshold),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", s.driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying database: %w", err)
	}
	switch {
	case s.driver == DriverSQLite && isMemoryDSN(s.dsn):
		// every connection to :memory: is a separate database
		sqlDB.SetMaxOpenConns(1)
	case s.maxOpenConns > 0:
		sqlDB.SetMaxOpenConns(s.maxOpenConns)
	}
	if s.driver == DriverMySQL {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	s.db = db

	if err := s.migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	s.log.Info(ctx, "store opened", logger.String("driver", s.driver))
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&groupRow{}, &ratingRow{}, &comparisonRow{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return storeErr("ping", err)
	}
	return storeErr("ping", sqlDB.PingContext(ctx))
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Driver returns the configured driver name.
func (s *Store) Driver() string { return s.driver }

func sqliteDSN(dsn string) string {
	var missing []string
	for _, p := range sqlitePragmas {
		key := p[:strings.IndexByte(p, '=')+1]
		if !strings.Contains(dsn, key) {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(missing, "&")
}

func isMemoryDSN(dsn string) bool {
	return strings.HasPrefix(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// chunks splits ids into slices of at most chunkSize.
func chunks(ids []string) [][]string {
	out := make([][]string, 0, (len(ids)+chunkSize-1)/chunkSize)
	for len(ids) > chunkSize {
		out = append(out, ids[:chunkSize])
		ids = ids[chunkSize:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
