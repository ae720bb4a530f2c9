// Package monitor is the polling engine: it owns the task registry, the
// per-task polling schedules, the daily reset and the snapshot writes.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/pricewatch/internal/domain"
	"github.com/MrSnakeDoc/pricewatch/internal/logger"
	"github.com/MrSnakeDoc/pricewatch/internal/lookup"
	"github.com/MrSnakeDoc/pricewatch/internal/metrics"
	"github.com/MrSnakeDoc/pricewatch/internal/schedule"
	"github.com/MrSnakeDoc/pricewatch/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// DefaultProbeInterval is the spacing between two probes of one task.
	DefaultProbeInterval = 10 * time.Second
	// DefaultSearchCount is the result page size asked from upstream.
	DefaultSearchCount = 100

	resetPeriod  = 24 * time.Hour
	saveTimeout  = 10 * time.Second
	probeTimeout = 30 * time.Second
)

// ErrInvalidTask is returned by CreateTask for unusable input.
var ErrInvalidTask = errors.New("invalid task")

// Lookup searches upstream listings by keyword.
type Lookup interface {
	Search(ctx context.Context, keyword string, page, count int) (*lookup.SearchResult, error)
}

// Notifier delivers alerts. Each call is a single delivery attempt.
type Notifier interface {
	SendPrice(ctx context.Context, task *domain.MonitorTask, price decimal.Decimal) error
	SendSoldOut(ctx context.Context, task *domain.MonitorTask, finalPrice decimal.Decimal) error
}

// Options wires a Service. Lookup, Notifier and Logger are required.
type Options struct {
	Gateway  store.Gateway // nil keeps state in memory only
	Lookup   Lookup
	Notifier Notifier
	Metrics  *metrics.Metrics // optional
	Logger   logger.Logger

	ProbeInterval time.Duration
	SearchCount   int
	ResetHour     int
	ResetMinute   int

	// Test hooks.
	Now   func() time.Time
	NewID func() string
}

// Service is the engine. Every method is safe for concurrent use.
type Service struct {
	reg      *registry
	gateway  store.Gateway
	lookup   Lookup
	notifier Notifier
	metrics  *metrics.Metrics
	log      logger.Logger

	interval    time.Duration
	searchCount int
	resetHour   int
	resetMinute int
	now         func() time.Time
	newID       func() string

	// ctx outlives individual schedules and is cancelled on Shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	saveMu      sync.Mutex // single writer for snapshots
	seedMu      sync.Mutex
	resetHandle *schedule.Handle
	started     atomic.Bool
	stopOnce    sync.Once
}

func New(opts Options) *Service {
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = DefaultProbeInterval
	}
	if opts.SearchCount <= 0 {
		opts.SearchCount = DefaultSearchCount
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		reg:         newRegistry(),
		gateway:     opts.Gateway,
		lookup:      opts.Lookup,
		notifier:    opts.Notifier,
		metrics:     opts.Metrics,
		log:         opts.Logger,
		interval:    opts.ProbeInterval,
		searchCount: opts.SearchCount,
		resetHour:   opts.ResetHour,
		resetMinute: opts.ResetMinute,
		now:         opts.Now,
		newID:       opts.NewID,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start restores the snapshot, reactivates tasks that sold out on an
// earlier day, resumes polling of every active task and arms the daily
// reset. A snapshot that cannot be read is logged and the engine starts
// empty.
func (s *Service) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("monitor already started")
	}

	s.restore(ctx)
	s.RunDailyReset()

	for _, e := range s.reg.all() {
		s.startMonitoring(e)
	}

	first := schedule.NextDaily(s.now(), s.resetHour, s.resetMinute)
	s.resetHandle = schedule.AtThenEvery(s.ctx, first, resetPeriod, func() { s.RunDailyReset() })

	s.log.Info("monitor started",
		logger.Int("tasks", s.reg.count()),
		logger.Duration("probe_interval", s.interval),
		logger.Time("next_reset", first))
	return nil
}

func (s *Service) restore(ctx context.Context) {
	if s.gateway == nil {
		return
	}

	tasks, found, err := s.gateway.Load(ctx)
	if err != nil {
		s.log.Error("failed to load snapshot, starting empty", logger.Error(err))
		return
	}
	if !found {
		s.log.Info("no snapshot found, writing an empty one")
		s.persist()
		return
	}

	for _, t := range tasks {
		if _, ok := s.reg.add(t); !ok {
			s.log.Warn("duplicate task id in snapshot, keeping the first", logger.TaskID(t.ID))
		}
	}
	s.log.Info("snapshot loaded", logger.Int("tasks", len(tasks)))
}

// Shutdown cancels every polling schedule and the daily reset. Probes
// already running finish on their own.
func (s *Service) Shutdown() {
	s.stopOnce.Do(func() {
		s.resetHandle.Stop()
		for _, e := range s.reg.all() {
			s.stopMonitoring(e.task.ID)
		}
		s.cancel()
		s.log.Info("monitor stopped")
	})
}

// Ready reports whether Start has run.
func (s *Service) Ready() bool {
	return s.started.Load()
}

// ─────────────────────────────────────────────────────────────────
// Task operations
// ─────────────────────────────────────────────────────────────────

// CreateTask registers an active task and starts polling it.
func (s *Service) CreateTask(shopName string, activityID int64, targetPrice decimal.Decimal) (*domain.MonitorTask, error) {
	shopName = strings.TrimSpace(shopName)
	switch {
	case shopName == "":
		return nil, fmt.Errorf("%w: shop name is required", ErrInvalidTask)
	case activityID <= 0:
		return nil, fmt.Errorf("%w: activity id must be positive", ErrInvalidTask)
	case targetPrice.IsNegative():
		return nil, fmt.Errorf("%w: target price must not be negative", ErrInvalidTask)
	}

	task := domain.NewMonitorTask(s.newID(), shopName, activityID, targetPrice, s.now())
	e, ok := s.reg.add(task)
	if !ok {
		return nil, fmt.Errorf("task id %s already exists", task.ID)
	}

	view := task.Clone()
	s.persist()
	s.startMonitoring(e)

	s.log.Info("task created",
		logger.TaskID(task.ID),
		logger.String("shop", shopName),
		logger.Int64("activity_id", activityID),
		logger.Stringer("target_price", targetPrice))
	return view, nil
}

// EnsureTask creates a task unless one already tracks the same shop and
// activity.
func (s *Service) EnsureTask(shopName string, activityID int64, targetPrice decimal.Decimal) (*domain.MonitorTask, bool, error) {
	s.seedMu.Lock()
	defer s.seedMu.Unlock()

	name := strings.TrimSpace(shopName)
	for _, t := range s.ListTasks() {
		if t.ShopName == name && t.TargetActivityID == activityID {
			return t, false, nil
		}
	}
	t, err := s.CreateTask(name, activityID, targetPrice)
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

// GetTask returns a copy of the task.
func (s *Service) GetTask(id string) (*domain.MonitorTask, bool) {
	e, ok := s.reg.get(id)
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return nil, false
	}
	return e.task.Clone(), true
}

// ListTasks returns a copy of every task, oldest first.
func (s *Service) ListTasks() []*domain.MonitorTask {
	return s.reg.snapshot()
}

// DeleteTask stops polling id and removes it. It reports whether the task
// existed.
func (s *Service) DeleteTask(id string) bool {
	h, ok := s.reg.remove(id)
	if !ok {
		return false
	}
	h.Stop()
	s.persist()

	s.log.Info("task deleted", logger.TaskID(id))
	return true
}

// StopTask moves an active task to stopped. It reports whether the
// transition happened.
func (s *Service) StopTask(id string) bool {
	e, ok := s.reg.get(id)
	if !ok {
		return false
	}

	e.mu.Lock()
	if e.removed || !domain.CanTransition(e.task.Status, domain.StatusStopped) {
		e.mu.Unlock()
		return false
	}
	e.task.Status = domain.StatusStopped
	h := e.detach()
	e.mu.Unlock()

	h.Stop()
	s.persist()

	s.log.Info("task stopped", logger.TaskID(id))
	return true
}

// UpdateTargetPrice changes the alert threshold whatever the task status.
func (s *Service) UpdateTargetPrice(id string, price decimal.Decimal) bool {
	e, ok := s.reg.get(id)
	if !ok {
		return false
	}

	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return false
	}
	e.task.TargetPrice = price
	e.mu.Unlock()

	s.persist()

	s.log.Info("target price updated", logger.TaskID(id), logger.Stringer("target_price", price))
	return true
}

// Cleanup removes every completed or expired task and returns how many
// were removed.
func (s *Service) Cleanup() int {
	var ids []string
	for _, e := range s.reg.all() {
		e.mu.Lock()
		if !e.removed && e.task.Status.Collectable() {
			ids = append(ids, e.task.ID)
		}
		e.mu.Unlock()
	}

	removed := 0
	for _, id := range ids {
		if h, ok := s.reg.remove(id); ok {
			h.Stop()
			removed++
		}
	}

	if removed > 0 {
		s.persist()
		s.log.Info("cleanup completed", logger.Int("removed", removed))
	} else {
		s.log.Debug("no tasks to clean up")
	}
	return removed
}

// HistoricalData returns the sold-out records of every task tracking
// activityID, newest first.
func (s *Service) HistoricalData(activityID int64) []domain.DailyRecord {
	return domain.HistoricalData(s.reg.snapshot(), activityID)
}

// ─────────────────────────────────────────────────────────────────
// Persistence
// ─────────────────────────────────────────────────────────────────

// persist writes the whole registry. Writers queue on saveMu and each one
// snapshots inside the lock, so the last write always reflects the
// latest state. Failures are logged; memory stays authoritative.
func (s *Service) persist() {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	tasks := s.reg.snapshot()
	s.metrics.SetTaskCounts(countByStatus(tasks))

	if s.gateway == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	err := s.gateway.Save(ctx, tasks)
	s.metrics.SnapshotWritten(err)
	if err != nil {
		s.log.Error("failed to save snapshot", logger.Int("tasks", len(tasks)), logger.Error(err))
	}
}

func countByStatus(tasks []*domain.MonitorTask) map[domain.Status]int {
	counts := make(map[domain.Status]int)
	for _, t := range tasks {
		counts[t.Status]++
	}
	return counts
}
