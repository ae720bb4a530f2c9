package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrSnakeDoc/pricewatch/internal/domain"
	"github.com/MrSnakeDoc/pricewatch/internal/logger"
	"github.com/MrSnakeDoc/pricewatch/internal/lookup"
	"github.com/shopspring/decimal"
)

var errLookupDown = errors.New("lookup down")

// fakeLookup serves a configurable search result.
type fakeLookup struct {
	mu    sync.Mutex
	res   *lookup.SearchResult
	err   error
	calls int
	gate  chan struct{} // when set, Search blocks until it is closed
	panic bool
}

func (f *fakeLookup) Search(ctx context.Context, keyword string, page, count int) (*lookup.SearchResult, error) {
	f.mu.Lock()
	f.calls++
	res, err, gate, boom := f.res, f.err, f.gate, f.panic
	f.mu.Unlock()

	if boom {
		panic("lookup exploded")
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (f *fakeLookup) serve(activityID int64, price string, stock int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = nil
	f.res = &lookup.SearchResult{Items: []lookup.Item{
		{ActivityID: activityID + 1000, Price: decimal.NewFromInt(1), Stock: 9},
		{ActivityID: activityID, Price: decimal.RequireFromString(price), Stock: stock},
	}}
}

func (f *fakeLookup) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.res, f.err = nil, err
}

func (f *fakeLookup) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeNotifier records every delivery attempt.
type fakeNotifier struct {
	mu      sync.Mutex
	prices  []decimal.Decimal
	soldOut []decimal.Decimal
	err     error
}

func (f *fakeNotifier) SendPrice(_ context.Context, _ *domain.MonitorTask, price decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices = append(f.prices, price)
	return f.err
}

func (f *fakeNotifier) SendSoldOut(_ context.Context, _ *domain.MonitorTask, price decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.soldOut = append(f.soldOut, price)
	return f.err
}

func (f *fakeNotifier) counts() (price, soldOut int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prices), len(f.soldOut)
}

// memGateway keeps the last saved snapshot in memory.
type memGateway struct {
	mu      sync.Mutex
	tasks   []*domain.MonitorTask
	found   bool
	loadErr error
	saveErr error
	saves   int
}

func (g *memGateway) Load(context.Context) ([]*domain.MonitorTask, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.loadErr != nil {
		return nil, false, g.loadErr
	}
	return g.tasks, g.found, nil
}

func (g *memGateway) Save(_ context.Context, tasks []*domain.MonitorTask) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.saves++
	if g.saveErr != nil {
		return g.saveErr
	}
	g.tasks, g.found = tasks, true
	return nil
}

func (g *memGateway) saved() ([]*domain.MonitorTask, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tasks, g.saves
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type harness struct {
	svc      *Service
	lookup   *fakeLookup
	notifier *fakeNotifier
	gateway  *memGateway
	clock    *clock
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		lookup:   &fakeLookup{err: errLookupDown},
		notifier: &fakeNotifier{},
		gateway:  &memGateway{},
		clock:    &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)},
	}
	h.svc = New(Options{
		Gateway:       h.gateway,
		Lookup:        h.lookup,
		Notifier:      h.notifier,
		Logger:        logger.New("error", false),
		ProbeInterval: time.Hour,
		ResetMinute:   30,
		Now:           h.clock.Now,
	})
	t.Cleanup(h.svc.Shutdown)
	return h
}

// create adds a task and waits for the probe fired at creation, which
// fails against the default lookup and leaves the task untouched.
func (h *harness) create(t *testing.T, shop string, activityID int64, target string) *domain.MonitorTask {
	t.Helper()
	before := h.lookup.callCount()
	task, err := h.svc.CreateTask(shop, activityID, decimal.RequireFromString(target))
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	waitFor(t, func() bool { return h.lookup.callCount() > before })
	return task
}

func (h *harness) task(t *testing.T, id string) *domain.MonitorTask {
	t.Helper()
	task, ok := h.svc.GetTask(id)
	if !ok {
		t.Fatalf("task %s not found", id)
	}
	return task
}

func (h *harness) monitored(id string) bool {
	e, ok := h.svc.reg.get(id)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handle != nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func equalDec(p *decimal.Decimal, s string) bool {
	return p != nil && p.Equal(dec(s))
}
