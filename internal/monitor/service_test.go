package monitor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrSnakeDoc/pricewatch/internal/domain"
	"github.com/MrSnakeDoc/pricewatch/internal/logger"
	"github.com/MrSnakeDoc/pricewatch/internal/lookup"
	"github.com/MrSnakeDoc/pricewatch/internal/metrics"
)

func TestCreateTask(t *testing.T) {
	h := newHarness(t)

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		task := h.create(t, "X", 42, "10.00")
		if seen[task.ID] {
			t.Fatalf("duplicate id %s", task.ID)
		}
		seen[task.ID] = true

		if task.Status != domain.StatusActive {
			t.Errorf("Status = %q, want active", task.Status)
		}
		if task.DailyRecords == nil || len(task.DailyRecords) != 0 {
			t.Errorf("DailyRecords = %v, want empty", task.DailyRecords)
		}
		if !h.monitored(task.ID) {
			t.Errorf("task %s should be polled", task.ID)
		}
	}

	if got := len(h.svc.ListTasks()); got != 5 {
		t.Errorf("ListTasks() = %d tasks, want 5", got)
	}
	saved, _ := h.gateway.saved()
	if len(saved) != 5 {
		t.Errorf("snapshot holds %d tasks, want 5", len(saved))
	}
}

func TestCreateTaskRejectsInvalidInput(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name  string
		shop  string
		id    int64
		price string
	}{
		{"blank shop", "  ", 42, "10"},
		{"zero activity", "X", 0, "10"},
		{"negative price", "X", 42, "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.CreateTask(tt.shop, tt.id, dec(tt.price))
			if !errors.Is(err, ErrInvalidTask) {
				t.Errorf("CreateTask() error = %v, want ErrInvalidTask", err)
			}
		})
	}
	if n := len(h.svc.ListTasks()); n != 0 {
		t.Errorf("registry holds %d tasks, want 0", n)
	}
}

// Scenarios A through E: one task followed across two days.
func TestProbeLifecycle(t *testing.T) {
	h := newHarness(t)
	task := h.create(t, "X", 42, "10.00")
	id := task.ID

	// A: above target.
	h.lookup.serve(42, "12", 5)
	h.svc.probe(id)

	got := h.task(t, id)
	if got.Status != domain.StatusActive || !equalDec(got.CurrentPrice, "12") || *got.CurrentStock != 5 {
		t.Fatalf("after A: %+v", got)
	}
	if got.LastCheckedAt == nil || !got.LastCheckedAt.Equal(h.clock.Now()) {
		t.Errorf("after A: LastCheckedAt = %v", got.LastCheckedAt)
	}
	if p, s := h.notifier.counts(); p != 0 || s != 0 {
		t.Fatalf("after A: notifications = %d/%d, want none", p, s)
	}

	// B: below target, first alert.
	h.lookup.serve(42, "9.5", 3)
	h.svc.probe(id)

	got = h.task(t, id)
	if p, _ := h.notifier.counts(); p != 1 {
		t.Fatalf("after B: price notifications = %d, want 1", p)
	}
	if !equalDec(got.LastNotifiedPrice, "9.5") {
		t.Errorf("after B: LastNotifiedPrice = %v, want 9.5", got.LastNotifiedPrice)
	}

	// C: same price, no repeat.
	h.svc.probe(id)
	if p, _ := h.notifier.counts(); p != 1 {
		t.Fatalf("after C: price notifications = %d, want 1", p)
	}

	// D: sold out on 2024-05-01.
	h.lookup.serve(42, "9.5", 0)
	h.svc.probe(id)
	h.svc.probe(id) // a late tick must not add anything

	got = h.task(t, id)
	if got.Status != domain.StatusSoldOutToday {
		t.Fatalf("after D: Status = %q", got.Status)
	}
	if len(got.DailyRecords) != 1 || got.DailyRecords[0].Date != "2024-05-01" || !got.DailyRecords[0].FinalPrice.Equal(dec("9.5")) {
		t.Errorf("after D: DailyRecords = %+v", got.DailyRecords)
	}
	if h.monitored(id) {
		t.Error("after D: polling should be stopped")
	}
	if _, s := h.notifier.counts(); s != 1 {
		t.Errorf("after D: sold-out notifications = %d, want 1", s)
	}
	saved, _ := h.gateway.saved()
	if len(saved) != 1 || saved[0].Status != domain.StatusSoldOutToday {
		t.Errorf("after D: snapshot = %+v", saved)
	}

	// E: next day reset.
	h.lookup.fail(errLookupDown)
	calls := h.lookup.callCount()
	h.clock.set(time.Date(2024, 5, 2, 0, 30, 0, 0, time.Local))

	if n := h.svc.RunDailyReset(); n != 1 {
		t.Fatalf("RunDailyReset() = %d, want 1", n)
	}
	got = h.task(t, id)
	if got.Status != domain.StatusActive || got.CurrentPrice != nil || got.CurrentStock != nil || got.LastNotifiedPrice != nil {
		t.Errorf("after E: %+v", got)
	}
	if len(got.DailyRecords) != 1 {
		t.Errorf("after E: history should be kept, got %+v", got.DailyRecords)
	}
	if !h.monitored(id) {
		t.Error("after E: polling should resume")
	}
	waitFor(t, func() bool { return h.lookup.callCount() > calls })

	// A second sweep the same day is a no-op.
	if n := h.svc.RunDailyReset(); n != 0 {
		t.Errorf("second RunDailyReset() = %d, want 0", n)
	}
}

func TestMonotonicNotification(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, "X", 42, "10").ID

	steps := []struct {
		price string
		want  int
	}{
		{"10.00", 1},
		{"10", 1},
		{"9.80", 2},
		{"9.90", 2},
		{"9.80", 2},
		{"9.79", 3},
		{"11", 3},
		{"9.79", 3},
	}
	for i, st := range steps {
		h.lookup.serve(42, st.price, 4)
		h.svc.probe(id)
		if p, _ := h.notifier.counts(); p != st.want {
			t.Fatalf("step %d (price %s): notifications = %d, want %d", i, st.price, p, st.want)
		}
	}
}

func TestNotificationFailureKeepsState(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("push down")
	id := h.create(t, "X", 42, "10").ID

	h.lookup.serve(42, "9", 2)
	h.svc.probe(id)
	h.svc.probe(id)

	got := h.task(t, id)
	if got.Status != domain.StatusActive || !equalDec(got.LastNotifiedPrice, "9") {
		t.Errorf("task = %+v", got)
	}
	if p, _ := h.notifier.counts(); p != 1 {
		t.Errorf("delivery attempts = %d, want 1 (never retried)", p)
	}
}

func TestProbeLeavesTaskOnMiss(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, "X", 42, "10").ID

	h.lookup.serve(7, "1", 1) // other listings only
	h.svc.probe(id)

	h.lookup.fail(errLookupDown)
	h.svc.probe(id)

	got := h.task(t, id)
	if got.LastCheckedAt != nil || got.CurrentPrice != nil || got.Status != domain.StatusActive {
		t.Errorf("task should be untouched, got %+v", got)
	}
	if !h.monitored(id) {
		t.Error("task should still be polled")
	}
}

func TestUnpricedTargetCountedSeparately(t *testing.T) {
	h := newHarness(t)
	m := metrics.New()
	h.svc.metrics = m
	id := h.create(t, "X", 42, "10").ID

	h.lookup.mu.Lock()
	h.lookup.err = nil
	h.lookup.res = &lookup.SearchResult{Items: []lookup.Item{}, Unpriced: []int64{42}}
	h.lookup.mu.Unlock()
	h.svc.probe(id)

	if got := h.task(t, id); got.LastCheckedAt != nil || got.Status != domain.StatusActive {
		t.Errorf("task should be untouched, got %+v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `pricewatch_probes_total{outcome="bad_price"} 1`) {
		t.Errorf("bad_price outcome not counted:\n%s", body)
	}
	if strings.Contains(body, `outcome="not_found"`) {
		t.Error("an unpriced target must not count as not_found")
	}
}

func TestProbeRecoversFromPanic(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, "X", 42, "10").ID

	h.lookup.mu.Lock()
	h.lookup.panic = true
	h.lookup.mu.Unlock()

	h.svc.probe(id)

	if got := h.task(t, id); got.Status != domain.StatusActive || got.CurrentPrice != nil {
		t.Errorf("task = %+v", got)
	}
}

func TestOverlappingProbesAlertOnce(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, "X", 42, "10").ID

	h.lookup.serve(42, "9.5", 3)
	runConcurrently(20, func() { h.svc.probe(id) })
	if p, _ := h.notifier.counts(); p != 1 {
		t.Errorf("price notifications = %d, want 1", p)
	}

	h.lookup.serve(42, "9.5", 0)
	runConcurrently(20, func() { h.svc.probe(id) })

	got := h.task(t, id)
	if _, s := h.notifier.counts(); s != 1 {
		t.Errorf("sold-out notifications = %d, want 1", s)
	}
	if len(got.DailyRecords) != 1 {
		t.Errorf("DailyRecords = %d, want 1", len(got.DailyRecords))
	}
}

func TestInFlightProbeDiscardedAfterDelete(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, "X", 42, "10").ID

	gate := make(chan struct{})
	h.lookup.serve(42, "1", 0)
	h.lookup.mu.Lock()
	h.lookup.gate = gate
	h.lookup.mu.Unlock()

	done := make(chan struct{})
	calls := h.lookup.callCount()
	go func() {
		defer close(done)
		h.svc.probe(id)
	}()
	waitFor(t, func() bool { return h.lookup.callCount() > calls })

	if !h.svc.DeleteTask(id) {
		t.Fatal("DeleteTask() = false")
	}
	close(gate)
	<-done

	if p, s := h.notifier.counts(); p != 0 || s != 0 {
		t.Errorf("notifications = %d/%d, want none", p, s)
	}
	if saved, _ := h.gateway.saved(); len(saved) != 0 {
		t.Errorf("snapshot = %+v, want empty", saved)
	}
}

func TestStopTask(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, "X", 42, "10").ID

	if !h.svc.StopTask(id) {
		t.Fatal("first StopTask() = false, want true")
	}
	if h.svc.StopTask(id) {
		t.Error("second StopTask() = true, want false")
	}
	if h.svc.StopTask("missing") {
		t.Error("StopTask(missing) = true")
	}

	if got := h.task(t, id); got.Status != domain.StatusStopped {
		t.Errorf("Status = %q, want stopped", got.Status)
	}
	if h.monitored(id) {
		t.Error("stopped task should not be polled")
	}

	// A stopped task is never reactivated by the daily reset.
	h.clock.set(h.clock.Now().Add(48 * time.Hour))
	if n := h.svc.RunDailyReset(); n != 0 {
		t.Errorf("RunDailyReset() = %d, want 0", n)
	}
}

func TestStopTaskRejectsSoldOut(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, "X", 42, "10").ID

	h.lookup.serve(42, "9", 0)
	h.svc.probe(id)

	if h.svc.StopTask(id) {
		t.Error("StopTask() on a sold-out task should return false")
	}
}

func TestDeleteTask(t *testing.T) {
	h := newHarness(t)
	keep := h.create(t, "X", 1, "10").ID
	id := h.create(t, "Y", 2, "10").ID

	// F: unknown id.
	_, savesBefore := h.gateway.saved()
	if h.svc.DeleteTask("unknown") {
		t.Error("DeleteTask(unknown) = true")
	}
	if _, saves := h.gateway.saved(); saves != savesBefore {
		t.Error("DeleteTask(unknown) should not write a snapshot")
	}
	if n := len(h.svc.ListTasks()); n != 2 {
		t.Fatalf("registry holds %d tasks, want 2", n)
	}

	if !h.svc.DeleteTask(id) {
		t.Fatal("DeleteTask() = false, want true")
	}
	if h.svc.DeleteTask(id) {
		t.Error("second DeleteTask() = true, want false")
	}
	if _, ok := h.svc.GetTask(id); ok {
		t.Error("deleted task still readable")
	}
	if h.monitored(id) {
		t.Error("deleted task still polled")
	}

	saved, _ := h.gateway.saved()
	if len(saved) != 1 || saved[0].ID != keep {
		t.Errorf("snapshot = %+v, want only %s", saved, keep)
	}
}

func TestUpdateTargetPrice(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, "X", 42, "10").ID
	h.svc.StopTask(id)

	if !h.svc.UpdateTargetPrice(id, dec("8.8")) {
		t.Fatal("UpdateTargetPrice() = false on a stopped task")
	}
	if got := h.task(t, id); !got.TargetPrice.Equal(dec("8.8")) {
		t.Errorf("TargetPrice = %s, want 8.8", got.TargetPrice)
	}
	if saved, _ := h.gateway.saved(); !saved[0].TargetPrice.Equal(dec("8.8")) {
		t.Error("snapshot not updated")
	}
	if h.svc.UpdateTargetPrice("missing", dec("1")) {
		t.Error("UpdateTargetPrice(missing) = true")
	}
}

func TestCleanup(t *testing.T) {
	h := newHarness(t)
	active := h.create(t, "X", 1, "10").ID

	for _, st := range []domain.Status{domain.StatusCompleted, domain.StatusExpired, domain.StatusStopped} {
		task := domain.NewMonitorTask("t-"+string(st), "Y", 2, dec("1"), h.clock.Now())
		task.Status = st
		h.svc.reg.add(task)
	}

	if n := h.svc.Cleanup(); n != 2 {
		t.Fatalf("Cleanup() = %d, want 2", n)
	}
	if n := h.svc.Cleanup(); n != 0 {
		t.Errorf("second Cleanup() = %d, want 0", n)
	}

	ids := map[string]bool{}
	for _, task := range h.svc.ListTasks() {
		ids[task.ID] = true
	}
	if len(ids) != 2 || !ids[active] || !ids["t-stopped"] {
		t.Errorf("remaining tasks = %v", ids)
	}
	if saved, _ := h.gateway.saved(); len(saved) != 2 {
		t.Errorf("snapshot holds %d tasks, want 2", len(saved))
	}
}

func TestHistoricalData(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, "X", 42, "10").ID
	b := h.create(t, "Y", 42, "10").ID
	other := h.create(t, "Z", 7, "10").ID

	h.lookup.serve(42, "9", 0)
	h.svc.probe(a)

	h.clock.set(time.Date(2024, 5, 3, 9, 0, 0, 0, time.Local))
	h.lookup.serve(42, "8", 0)
	h.svc.probe(b)

	h.lookup.serve(7, "1", 0)
	h.svc.probe(other)

	records := h.svc.HistoricalData(42)
	if len(records) != 2 || records[0].Date != "2024-05-03" || records[1].Date != "2024-05-01" {
		t.Errorf("HistoricalData(42) = %+v", records)
	}
	if got := h.svc.HistoricalData(99); got == nil || len(got) != 0 {
		t.Errorf("HistoricalData(99) = %v, want empty", got)
	}
}

func TestPersistenceFailureKeepsMemory(t *testing.T) {
	h := newHarness(t)
	h.gateway.saveErr = errors.New("disk full")

	task, err := h.svc.CreateTask("X", 42, dec("10"))
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if !h.svc.StopTask(task.ID) {
		t.Error("StopTask() should succeed while the store is failing")
	}
	if got := h.task(t, task.ID); got.Status != domain.StatusStopped {
		t.Errorf("Status = %q", got.Status)
	}
}

func TestStartRestoresSnapshot(t *testing.T) {
	h := newHarness(t)
	yesterday := time.Date(2024, 4, 30, 22, 0, 0, 0, time.Local)
	today := h.clock.Now()

	soldYesterday := domain.NewMonitorTask("sold-yesterday", "A", 1, dec("10"), yesterday)
	soldYesterday.Observe(dec("9"), 0, yesterday)
	soldYesterday.MarkNotified(dec("9"))
	soldYesterday.Status = domain.StatusSoldOutToday

	soldToday := domain.NewMonitorTask("sold-today", "B", 2, dec("10"), yesterday)
	soldToday.Observe(dec("9"), 0, today.Add(-time.Hour))
	soldToday.Status = domain.StatusSoldOutToday

	stopped := domain.NewMonitorTask("stopped", "C", 3, dec("10"), yesterday)
	stopped.Status = domain.StatusStopped

	active := domain.NewMonitorTask("active", "D", 4, dec("10"), yesterday)

	h.gateway.tasks = []*domain.MonitorTask{soldYesterday, soldToday, stopped, active}
	h.gateway.found = true

	if err := h.svc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !h.svc.Ready() {
		t.Error("Ready() = false after Start")
	}

	got := h.task(t, "sold-yesterday")
	if got.Status != domain.StatusActive || got.CurrentPrice != nil || got.LastNotifiedPrice != nil {
		t.Errorf("sold-yesterday = %+v, want reactivated", got)
	}
	if h.task(t, "sold-today").Status != domain.StatusSoldOutToday {
		t.Error("sold-today should stay sold out")
	}

	wantPolled := map[string]bool{"sold-yesterday": true, "sold-today": false, "stopped": false, "active": true}
	for id, want := range wantPolled {
		if got := h.monitored(id); got != want {
			t.Errorf("monitored(%s) = %v, want %v", id, got, want)
		}
	}

	if err := h.svc.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}
}

func TestStartWritesEmptySnapshot(t *testing.T) {
	h := newHarness(t)

	if err := h.svc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	tasks, saves := h.gateway.saved()
	if saves < 1 || tasks == nil || len(tasks) != 0 {
		t.Errorf("snapshot = %v after %d saves, want an empty one", tasks, saves)
	}
}

func TestStartSurvivesLoadError(t *testing.T) {
	h := newHarness(t)
	h.gateway.loadErr = errors.New("corrupt")

	if err := h.svc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if n := len(h.svc.ListTasks()); n != 0 {
		t.Errorf("registry holds %d tasks, want 0", n)
	}
}

func TestEnsureTask(t *testing.T) {
	h := newHarness(t)

	first, created, err := h.svc.EnsureTask("X", 42, dec("10"))
	if err != nil || !created {
		t.Fatalf("EnsureTask() = %v, %v", created, err)
	}
	again, created, err := h.svc.EnsureTask(" X ", 42, dec("5"))
	if err != nil || created || again.ID != first.ID {
		t.Errorf("second EnsureTask() = %v, %v, %v", again, created, err)
	}
	if _, created, _ := h.svc.EnsureTask("X", 43, dec("10")); !created {
		t.Error("different activity should create a task")
	}
}

func TestShutdownStopsPolling(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, "X", 42, "10").ID

	h.svc.Shutdown()
	h.svc.Shutdown()

	if h.monitored(id) {
		t.Error("task still polled after Shutdown")
	}
	// No new schedules once shut down.
	task, err := h.svc.CreateTask("Y", 1, dec("1"))
	if err != nil {
		t.Fatal(err)
	}
	if h.monitored(task.ID) {
		t.Error("task created after Shutdown should not be polled")
	}
}

func TestServiceWithoutGateway(t *testing.T) {
	svc := New(Options{
		Lookup:        &fakeLookup{err: errLookupDown},
		Notifier:      &fakeNotifier{},
		Logger:        logger.New("error", false),
		ProbeInterval: time.Hour,
	})
	t.Cleanup(svc.Shutdown)

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	task, err := svc.CreateTask("X", 1, dec("1"))
	if err != nil {
		t.Fatal(err)
	}
	if !svc.DeleteTask(task.ID) {
		t.Error("DeleteTask() = false")
	}
}

func runConcurrently(n int, fn func()) {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}
	wg.Wait()
}
