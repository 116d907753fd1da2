package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"yieldfarm/core/events"
)

// ErrUnsupportedDriver is returned by Open for drivers other than sqlite and
// postgres.
var ErrUnsupportedDriver = errors.New("history: unsupported driver")

// DefaultLimit bounds queries that do not specify a limit.
const DefaultLimit = 100

// Record is one persisted event.
type Record struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	EventID    string    `gorm:"size:36;uniqueIndex" json:"id"`
	Type       string    `gorm:"size:64;index" json:"type"`
	PoolID     *uint64   `gorm:"index" json:"pid,omitempty"`
	User       string    `gorm:"column:account;size:128;index" json:"user,omitempty"`
	Attributes string    `gorm:"type:text" json:"-"`
	RecordedAt time.Time `gorm:"index" json:"recordedAt"`
}

// TableName pins the table name.
func (Record) TableName() string { return "farm_events" }

// Attrs decodes the stored attribute map.
func (r Record) Attrs() (map[string]string, error) {
	out := map[string]string{}
	if strings.TrimSpace(r.Attributes) == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(r.Attributes), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Open connects to the history database. driver is "sqlite" or "postgres".
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres", "postgresql":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", driver, err)
	}
	return db, nil
}

// AutoMigrate creates or updates the history schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Record{})
}

// Recorder persists emitted events. It implements events.Emitter; write
// failures are logged and never surface to the emitting engine.
type Recorder struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder migrates the schema and returns a recorder writing to db.
func NewRecorder(db *gorm.DB, logger *slog.Logger) (*Recorder, error) {
	if db == nil {
		return nil, fmt.Errorf("history: database must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	return &Recorder{db: db, logger: logger, now: time.Now}, nil
}

// SetNowFunc overrides the recording clock.
func (r *Recorder) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	r.now = now
}

// Emit implements events.Emitter.
func (r *Recorder) Emit(evt events.Event) {
	if r == nil || evt == nil {
		return
	}
	if err := r.Record(context.Background(), evt); err != nil {
		r.logger.Error("history: record event", "type", evt.EventType(), "error", err)
	}
}

// Record stores evt.
func (r *Recorder) Record(ctx context.Context, evt events.Event) error {
	record := Record{
		EventID:    uuid.NewString(),
		Type:       evt.EventType(),
		RecordedAt: r.now().UTC(),
	}
	if payload, ok := evt.(events.Payload); ok {
		flat := payload.Event()
		encoded, err := json.Marshal(flat.Attributes)
		if err != nil {
			return err
		}
		record.Attributes = string(encoded)
		record.User, _ = flat.Attr("user")
		if raw, ok := flat.Attr("pid"); ok {
			pid, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("history: pid %q: %w", raw, err)
			}
			record.PoolID = &pid
		}
	}
	return r.db.WithContext(ctx).Create(&record).Error
}

// ForUser returns the newest events for user, newest first.
func (r *Recorder) ForUser(ctx context.Context, user string, limit int) ([]Record, error) {
	var out []Record
	err := r.db.WithContext(ctx).
		Where("account = ?", strings.TrimSpace(user)).
		Order("id DESC").
		Limit(normalizeLimit(limit)).
		Find(&out).Error
	return out, err
}

// ForPool returns the newest events for pool pid, newest first.
func (r *Recorder) ForPool(ctx context.Context, pid uint64, limit int) ([]Record, error) {
	var out []Record
	err := r.db.WithContext(ctx).
		Where("pool_id = ?", pid).
		Order("id DESC").
		Limit(normalizeLimit(limit)).
		Find(&out).Error
	return out, err
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 10*DefaultLimit {
		return DefaultLimit
	}
	return limit
}
