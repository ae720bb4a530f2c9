package monitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrSnakeDoc/pricewatch/internal/domain"
	"github.com/MrSnakeDoc/pricewatch/internal/logger"
	"github.com/MrSnakeDoc/pricewatch/internal/lookup"
	"github.com/MrSnakeDoc/pricewatch/internal/metrics"
	"github.com/MrSnakeDoc/pricewatch/internal/notify"
)

// alert is what a probe decided to send once the task lock is released.
type alert int

const (
	alertNone alert = iota
	alertPrice
	alertSoldOut
)

// probe runs one polling cycle for id. It never panics and never returns
// an error: every failure is logged and the next tick retries.
func (s *Service) probe(id string) {
	log := s.log.With(logger.TaskID(id))

	defer func() {
		if r := recover(); r != nil {
			s.metrics.ProbeFinished(metrics.ProbePanic)
			log.Error("probe panicked", logger.String("panic", fmt.Sprint(r)))
		}
	}()

	e, ok := s.reg.get(id)
	if !ok {
		s.metrics.ProbeFinished(metrics.ProbeSkipped)
		return
	}

	e.mu.Lock()
	shop, activityID := e.task.ShopName, e.task.TargetActivityID
	if e.removed || e.task.Status != domain.StatusActive {
		// A task that is no longer active must not stay scheduled.
		e.detach().Stop()
		e.mu.Unlock()
		s.metrics.ProbeFinished(metrics.ProbeSkipped)
		return
	}
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, probeTimeout)
	defer cancel()

	res, err := s.lookup.Search(ctx, shop, 1, s.searchCount)
	if err != nil {
		s.metrics.ProbeFinished(metrics.ProbeUpstreamError)
		if errors.Is(err, lookup.ErrUpstream) {
			log.Warn("upstream lookup failed", logger.String("shop", shop), logger.Error(err))
		} else {
			log.Error("lookup failed", logger.String("shop", shop), logger.Error(err))
		}
		return
	}

	item, ok := res.Find(activityID)
	if !ok && res.IsUnpriced(activityID) {
		s.metrics.ProbeFinished(metrics.ProbeBadPrice)
		log.Warn("target activity returned without a readable price",
			logger.String("shop", shop),
			logger.Int64("activity_id", activityID))
		return
	}
	if !ok {
		s.metrics.ProbeFinished(metrics.ProbeNotFound)
		log.Info("target activity not in search results",
			logger.String("shop", shop),
			logger.Int64("activity_id", activityID),
			logger.Int("results", len(res.Items)))
		return
	}

	view, next, applied := s.apply(e, item)
	if !applied {
		// Stopped, deleted or reset while the lookup was in flight.
		s.metrics.ProbeFinished(metrics.ProbeSkipped)
		log.Debug("task changed during probe, observation discarded")
		return
	}

	s.persist()

	switch next {
	case alertSoldOut:
		s.metrics.ProbeFinished(metrics.ProbeSoldOut)
		log.Info("sold out for today",
			logger.Stringer("final_price", item.Price),
			logger.String("day", domain.DayKey(*view.LastCheckedAt)))
		s.send(ctx, notify.KindSoldOut, func(ctx context.Context) error {
			return s.notifier.SendSoldOut(ctx, view, item.Price)
		})
	case alertPrice:
		s.metrics.ProbeFinished(metrics.ProbeOK)
		log.Info("price reached target",
			logger.Stringer("price", item.Price),
			logger.Stringer("target_price", view.TargetPrice))
		s.send(ctx, notify.KindPrice, func(ctx context.Context) error {
			return s.notifier.SendPrice(ctx, view, item.Price)
		})
	default:
		s.metrics.ProbeFinished(metrics.ProbeOK)
		log.Debug("probe completed",
			logger.Stringer("price", item.Price),
			logger.Int("stock", item.Stock))
	}
}

// apply records an observation under the task lock and decides which
// alert, if any, it triggers. The decision and its bookkeeping happen in
// the same critical section, so overlapping probes cannot both alert.
func (s *Service) apply(e *entry, item lookup.Item) (*domain.MonitorTask, alert, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed || e.task.Status != domain.StatusActive {
		return nil, alertNone, false
	}

	now := s.now()
	t := e.task
	t.Observe(item.Price, item.Stock, now)

	next := alertNone
	switch {
	case item.Stock <= 0:
		t.RecordDailyData(item.Price, now)
		t.Status = domain.StatusSoldOutToday
		e.detach().Stop()
		next = alertSoldOut
	case t.ShouldNotify(item.Price):
		t.MarkNotified(item.Price)
		next = alertPrice
	}

	return t.Clone(), next, true
}

// send makes one delivery attempt. The notifier logs its own outcome.
func (s *Service) send(ctx context.Context, kind string, deliver func(context.Context) error) {
	err := deliver(ctx)
	s.metrics.NotificationSent(kind, err)
}
