package journal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"anchorledger/core/events"
	"anchorledger/observability"
)

const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 1000
)

// Journal is the durable audit trail of emitted anchor events. It implements
// events.Emitter so it can sit next to the live feed.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open connects to the configured backend and migrates the schema.
func Open(driver, dsn string, log *slog.Logger) (*Journal, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("journal: dsn required")
	}
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("journal: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", driver, err)
	}
	return New(db, log)
}

// New wraps an existing connection.
func New(db *gorm.DB, log *slog.Logger) (*Journal, error) {
	if db == nil {
		return nil, fmt.Errorf("journal: database required")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Journal{db: db, logger: log.With(slog.String("component", "journal")), now: time.Now}, nil
}

// Emit implements events.Emitter. Failures are logged and counted; the
// ledger has already committed by the time events are emitted.
func (j *Journal) Emit(evt events.Event) {
	anchored, ok := evt.(events.PortfolioAnchored)
	if !ok {
		return
	}
	err := j.Append(context.Background(), anchored)
	observability.Events().RecordJournal(err)
	if err != nil {
		j.logger.Error("journal append failed",
			slog.String("user", anchored.User.Hex()),
			slog.String("dataHash", anchored.DataHash.Hex()),
			slog.String("error", err.Error()),
		)
	}
}

// Append stores a single event.
func (j *Journal) Append(ctx context.Context, evt events.PortfolioAnchored) error {
	entry := Entry{
		ID:            uuid.New(),
		User:          evt.User.Hex(),
		ActionType:    evt.ActionType,
		Action:        evt.Action,
		DataHash:      evt.DataHash.Hex(),
		AnchoredAt:    evt.Timestamp,
		SchemaVersion: evt.SchemaVersion,
		RecordedAt:    j.now().UTC(),
	}
	if err := j.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("journal: insert: %w", err)
	}
	return nil
}

// Filter narrows a query. A nil User matches every user.
type Filter struct {
	User  *common.Address
	Since uint64
	Limit int
}

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return DefaultQueryLimit
	case f.Limit > MaxQueryLimit:
		return MaxQueryLimit
	default:
		return f.Limit
	}
}

// Query returns the most recent matching entries, newest first.
func (j *Journal) Query(ctx context.Context, filter Filter) ([]Entry, error) {
	q := j.db.WithContext(ctx).Model(&Entry{})
	if filter.User != nil {
		q = q.Where("user_address = ?", filter.User.Hex())
	}
	if filter.Since > 0 {
		q = q.Where("anchored_at >= ?", filter.Since)
	}
	var entries []Entry
	if err := q.Order("anchored_at DESC").Order("recorded_at DESC").Limit(filter.limit()).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	return entries, nil
}

// Event converts a journal entry back to the emitted event shape.
func (e Entry) Event() events.PortfolioAnchored {
	return events.PortfolioAnchored{
		User:          common.HexToAddress(e.User),
		ActionType:    e.ActionType,
		Action:        e.Action,
		DataHash:      common.HexToHash(e.DataHash),
		Timestamp:     e.AnchoredAt,
		SchemaVersion: e.SchemaVersion,
	}
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
