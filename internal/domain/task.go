package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MonitorTask is one subscription watching one listing of one shop.
//
// The task registry is the only owner of live instances. Everything
// handed out of the registry is a Clone.
type MonitorTask struct {
	// ─────────────────────────────
	// Identity (immutable)
	// ─────────────────────────────

	// ID is an opaque unique token assigned at creation.
	ID string `json:"id"`

	// CreatedAt is set once when the task is created.
	CreatedAt time.Time `json:"createdAt"`

	// ─────────────────────────────
	// What to watch
	// ─────────────────────────────

	// ShopName is the keyword sent to the upstream search.
	ShopName string `json:"shopName"`

	// TargetActivityID identifies the listing inside the search results.
	TargetActivityID int64 `json:"targetActivityId"`

	// TargetPrice is the alert threshold. It may change after creation.
	TargetPrice decimal.Decimal `json:"targetPrice"`

	// ─────────────────────────────
	// Lifecycle
	// ─────────────────────────────

	Status Status `json:"status"`

	// ─────────────────────────────
	// Observation (cleared on daily reset)
	// ─────────────────────────────

	// LastCheckedAt is the time of the most recent successful probe update.
	LastCheckedAt *time.Time `json:"lastCheckedAt,omitempty"`

	CurrentPrice *decimal.Decimal `json:"currentPrice,omitempty"`
	CurrentStock *int             `json:"currentStock,omitempty"`

	// LastNotifiedPrice is the price of the last threshold alert.
	// A new alert needs a strictly lower price.
	LastNotifiedPrice *decimal.Decimal `json:"lastNotifiedPrice,omitempty"`

	// ─────────────────────────────
	// History
	// ─────────────────────────────

	// DailyRecords holds at most one record per date, in discovery order.
	DailyRecords []DailyRecord `json:"dailyRecords"`
}

// NewMonitorTask returns an active task with no observations yet.
func NewMonitorTask(id, shopName string, activityID int64, targetPrice decimal.Decimal, now time.Time) *MonitorTask {
	return &MonitorTask{
		ID:               id,
		CreatedAt:        now,
		ShopName:         shopName,
		TargetActivityID: activityID,
		TargetPrice:      targetPrice,
		Status:           StatusActive,
		DailyRecords:     []DailyRecord{},
	}
}

// Observe stores the latest price and stock seen upstream.
func (t *MonitorTask) Observe(price decimal.Decimal, stock int, at time.Time) {
	t.CurrentPrice = &price
	t.CurrentStock = &stock
	t.LastCheckedAt = &at
}

// ShouldNotify reports whether price deserves a threshold alert: it must be
// at or below the target and strictly below the last alerted price.
func (t *MonitorTask) ShouldNotify(price decimal.Decimal) bool {
	if price.GreaterThan(t.TargetPrice) {
		return false
	}
	return t.LastNotifiedPrice == nil || price.LessThan(*t.LastNotifiedPrice)
}

// MarkNotified records price as the last alerted price. Equal or higher
// prices are ignored so the value only ever moves down.
func (t *MonitorTask) MarkNotified(price decimal.Decimal) {
	if t.LastNotifiedPrice != nil && !price.LessThan(*t.LastNotifiedPrice) {
		return
	}
	t.LastNotifiedPrice = &price
}

// NeedsDailyReset reports whether a sold-out task was last checked on a
// day other than today.
func (t *MonitorTask) NeedsDailyReset(today string) bool {
	if t.Status != StatusSoldOutToday {
		return false
	}
	if t.LastCheckedAt == nil {
		return true
	}
	return DayKey(*t.LastCheckedAt) != today
}

// ResetForNewDay puts a sold-out task back into active polling and forgets
// the previous day's observation.
func (t *MonitorTask) ResetForNewDay() {
	t.Status = StatusActive
	t.CurrentPrice = nil
	t.CurrentStock = nil
	t.LastNotifiedPrice = nil
}

// Clone returns a deep copy.
func (t *MonitorTask) Clone() *MonitorTask {
	if t == nil {
		return nil
	}
	c := *t
	if t.LastCheckedAt != nil {
		v := *t.LastCheckedAt
		c.LastCheckedAt = &v
	}
	if t.CurrentPrice != nil {
		v := *t.CurrentPrice
		c.CurrentPrice = &v
	}
	if t.CurrentStock != nil {
		v := *t.CurrentStock
		c.CurrentStock = &v
	}
	if t.LastNotifiedPrice != nil {
		v := *t.LastNotifiedPrice
		c.LastNotifiedPrice = &v
	}
	c.DailyRecords = make([]DailyRecord, len(t.DailyRecords))
	for i, r := range t.DailyRecords {
		c.DailyRecords[i] = r.clone()
	}
	return &c
}

// DayKey returns the local calendar day of t as YYYY-MM-DD.
func DayKey(t time.Time) string {
	return t.Local().Format("2006-01-02")
}
