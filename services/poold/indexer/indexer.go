package indexer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"lukechampine.com/blake3"

	"coverpool/services/poold"
)

// Event is one committed ledger event.
type Event struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq         uint64    `gorm:"uniqueIndex"`
	Height      uint64    `gorm:"index"`
	Type        string    `gorm:"index;size:64"`
	Asset       string    `gorm:"index;size:32"`
	Account     string    `gorm:"index;size:96"`
	Attributes  string    `gorm:"type:text"`
	Fingerprint string    `gorm:"uniqueIndex;size:64"`
	CreatedAt   time.Time
}

// Filter narrows Query. Zero fields match everything.
type Filter struct {
	Type     string
	Asset    string
	Account  string
	AfterSeq uint64
	Limit    int
}

const (
	defaultLimit = 100
	maxLimit     = 1000
	queueSize    = 1024
)

var ErrQueueFull = errors.New("indexer: queue full")

// Indexer persists the event stream for later querying. Publish enqueues;
// Run drains the queue into the database.
type Indexer struct {
	db      *gorm.DB
	logger  *slog.Logger
	queue   chan poold.Envelope
	dropped uint64
	mu      sync.Mutex
}

// Open connects to the configured database and migrates the schema.
func Open(driver, dsn string, logger *slog.Logger) (*Indexer, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		if strings.TrimSpace(dsn) == "" {
			dsn = "file::memory:?cache=shared"
		}
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("indexer: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("indexer: open: %w", err)
	}
	return New(db, logger)
}

// New wraps an existing gorm handle.
func New(db *gorm.DB, logger *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, errors.New("indexer: database is required")
	}
	if err := db.AutoMigrate(&Event{}); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{db: db, logger: logger.With("component", "indexer"), queue: make(chan poold.Envelope, queueSize)}, nil
}

// Publish implements poold.Sink. It never blocks the ledger; when the queue
// is full the event is dropped and counted.
func (ix *Indexer) Publish(env poold.Envelope) {
	select {
	case ix.queue <- env:
	default:
		ix.mu.Lock()
		ix.dropped++
		ix.mu.Unlock()
		ix.logger.Warn("event dropped", "seq", env.Seq, "type", env.Type, "error", ErrQueueFull)
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (ix *Indexer) Dropped() uint64 {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.dropped
}

// Run stores queued events until ctx is cancelled, then drains what is
// left.
func (ix *Indexer) Run(ctx context.Context) {
	for {
		select {
		case env := <-ix.queue:
			ix.store(ctx, env)
		case <-ctx.Done():
			for {
				select {
				case env := <-ix.queue:
					ix.store(context.Background(), env)
				default:
					return
				}
			}
		}
	}
}

func (ix *Indexer) store(ctx context.Context, env poold.Envelope) {
	if err := ix.Record(ctx, env); err != nil {
		ix.logger.Error("index event", "seq", env.Seq, "type", env.Type, "error", err)
	}
}

// Record writes one envelope synchronously. Replays of an already indexed
// event are ignored.
func (ix *Indexer) Record(ctx context.Context, env poold.Envelope) error {
	attrs, err := json.Marshal(env.Attributes)
	if err != nil {
		return err
	}
	row := Event{
		ID:          uuid.New(),
		Seq:         env.Seq,
		Height:      env.Height,
		Type:        env.Type,
		Asset:       env.Attributes["asset"],
		Account:     primaryAccount(env.Attributes),
		Attributes:  string(attrs),
		Fingerprint: Fingerprint(env),
	}
	return ix.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

var accountKeys = []string{"staker", "holder", "from", "receiver", "payer", "agent"}

func primaryAccount(attrs map[string]string) string {
	for _, key := range accountKeys {
		if v := attrs[key]; v != "" {
			return v
		}
	}
	return ""
}

// Fingerprint hashes an envelope's sequence, type and attributes with
// blake3. Attribute order does not matter.
func Fingerprint(env poold.Envelope) string {
	keys := make([]string, 0, len(env.Attributes))
	for k := range env.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := blake3.New(32, nil)
	fmt.Fprintf(h, "%d|%s", env.Seq, env.Type)
	for _, k := range keys {
		fmt.Fprintf(h, "|%s=%s", k, env.Attributes[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// LastSeq returns the highest indexed sequence number, or zero.
func (ix *Indexer) LastSeq(ctx context.Context) (uint64, error) {
	var last Event
	err := ix.db.WithContext(ctx).Order("seq desc").Limit(1).Find(&last).Error
	if err != nil {
		return 0, err
	}
	return last.Seq, nil
}

// Query returns events in sequence order.
func (ix *Indexer) Query(ctx context.Context, f Filter) ([]poold.Envelope, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	q := ix.db.WithContext(ctx).Model(&Event{}).Where("seq > ?", f.AfterSeq)
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Asset != "" {
		q = q.Where("asset = ?", strings.ToUpper(strings.TrimSpace(f.Asset)))
	}
	if f.Account != "" {
		q = q.Where("account = ?", strings.TrimSpace(f.Account))
	}
	var rows []Event
	if err := q.Order("seq asc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]poold.Envelope, 0, len(rows))
	for _, row := range rows {
		env := poold.Envelope{Seq: row.Seq, Height: row.Height, Type: row.Type, Attributes: map[string]string{}}
		if row.Attributes != "" {
			if err := json.Unmarshal([]byte(row.Attributes), &env.Attributes); err != nil {
				return nil, fmt.Errorf("indexer: decode seq %d: %w", row.Seq, err)
			}
		}
		out = append(out, env)
	}
	return out, nil
}
