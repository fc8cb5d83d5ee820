// Package eventlog archives ledger events in sqlite so analytics and
// notification collaborators can read history without touching ledger state.
package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"agentlend/core/events"
	"agentlend/observability/metrics"
)

// Record is one archived event.
type Record struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	Type       string `gorm:"index"`
	AgentID    uint64 `gorm:"index"`
	LoanID     uint64 `gorm:"index"`
	RequestID  string `gorm:"index"`
	Attributes string
	CreatedAt  time.Time
}

// Attrs decodes the attribute map.
func (r Record) Attrs() (map[string]string, error) {
	out := map[string]string{}
	if r.Attributes == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(r.Attributes), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	Type    string
	AgentID uint64
	LoanID  uint64
	Limit   int
}

// Store is an events.Emitter that persists every event it receives.
type Store struct {
	db      *gorm.DB
	logger  *slog.Logger
	metrics *metrics.LendingMetrics
	now     func() time.Time

	mu        sync.Mutex
	requestID string
	err       error
}

// Open opens (or creates) the sqlite archive at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("eventlog: create %s: %w", dir, err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %s: %w", path, err)
	}
	return New(db)
}

// New wraps an existing gorm handle and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("eventlog: migrate: %w", err)
	}
	return &Store{db: db, logger: slog.Default(), metrics: metrics.Lending(), now: time.Now}, nil
}

func (s *Store) SetLogger(l *slog.Logger) {
	if l != nil {
		s.logger = l
	}
}

// SetRequestID tags subsequently archived events with the invocation id.
func (s *Store) SetRequestID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestID = id
}

// Emit implements events.Emitter. Emitters cannot fail, so the first write
// error is retained and reported by Err.
func (s *Store) Emit(evt events.Event) {
	rendered := events.Render(evt)
	if rendered == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	attrs, err := json.Marshal(rendered.Attributes)
	if err != nil {
		s.fail(err)
		return
	}
	rec := Record{
		Type:       rendered.Type,
		AgentID:    parseID(rendered.Attributes["agentId"]),
		LoanID:     parseID(rendered.Attributes["loanId"]),
		RequestID:  s.requestID,
		Attributes: string(attrs),
		CreatedAt:  s.now().UTC(),
	}
	if err := s.db.Create(&rec).Error; err != nil {
		s.fail(err)
		return
	}
	s.metrics.ObserveEvent(rec.Type)
}

func (s *Store) fail(err error) {
	s.logger.Error("eventlog: archive event", "error", err)
	if s.err == nil {
		s.err = err
	}
}

// Err returns the first archive failure, if any.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// List returns archived events matching filter, oldest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]Record, error) {
	query := s.db.WithContext(ctx).Model(&Record{})
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.AgentID != 0 {
		query = query.Where("agent_id = ?", filter.AgentID)
	}
	if filter.LoanID != 0 {
		query = query.Where("loan_id = ?", filter.LoanID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var out []Record
	if err := query.Order("id asc").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func parseID(raw string) uint64 {
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

var _ events.Emitter = (*Store)(nil)
