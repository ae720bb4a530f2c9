package monitor

import (
	"github.com/MrSnakeDoc/pricewatch/internal/domain"
	"github.com/MrSnakeDoc/pricewatch/internal/logger"
	"github.com/MrSnakeDoc/pricewatch/internal/schedule"
)

// startMonitoring begins polling an active task: one probe now, then one
// per interval. It does nothing if the task is already polled, is not
// active or is shutting down.
func (s *Service) startMonitoring(e *entry) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed || e.handle != nil || e.task.Status != domain.StatusActive || s.ctx.Err() != nil {
		return
	}

	id := e.task.ID
	e.handle = schedule.Every(s.ctx, s.interval, func() { s.probe(id) })

	s.log.Debug("monitoring started", logger.TaskID(id), logger.Duration("interval", s.interval))
}

// stopMonitoring cancels future probes of id. Safe on unknown or idle ids.
func (s *Service) stopMonitoring(id string) {
	e, ok := s.reg.get(id)
	if !ok {
		return
	}
	e.mu.Lock()
	h := e.detach()
	e.mu.Unlock()

	if h != nil {
		h.Stop()
		s.log.Debug("monitoring stopped", logger.TaskID(id))
	}
}

// RunDailyReset puts every task that sold out on an earlier day back into
// active polling and returns how many were reactivated. The scheduler
// calls it once a day; Start calls it to cover restarts across midnight.
func (s *Service) RunDailyReset() int {
	today := domain.DayKey(s.now())

	var reactivated []*entry
	for _, e := range s.reg.all() {
		e.mu.Lock()
		if !e.removed && e.task.NeedsDailyReset(today) {
			e.task.ResetForNewDay()
			reactivated = append(reactivated, e)
		}
		e.mu.Unlock()
	}

	if len(reactivated) == 0 {
		s.log.Debug("daily reset: nothing to reactivate", logger.String("day", today))
		return 0
	}

	s.persist()
	for _, e := range reactivated {
		s.startMonitoring(e)
		s.log.Info("task reactivated for a new day", logger.TaskID(e.task.ID), logger.String("day", today))
	}

	s.log.Info("daily reset completed", logger.String("day", today), logger.Int("reactivated", len(reactivated)))
	return len(reactivated)
}
