package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DailyRecord is the sold-out outcome of one task on one calendar day.
type DailyRecord struct {
	Date       string          `json:"date"` // YYYY-MM-DD
	FinalPrice decimal.Decimal `json:"finalPrice"`

	// SoldOutTime is nil only for legacy placeholder records.
	SoldOutTime *time.Time `json:"soldOutTime,omitempty"`
}

func (r DailyRecord) clone() DailyRecord {
	if r.SoldOutTime != nil {
		v := *r.SoldOutTime
		r.SoldOutTime = &v
	}
	return r
}

// RecordFor returns the record stored for date, if any.
func (t *MonitorTask) RecordFor(date string) (DailyRecord, bool) {
	for _, r := range t.DailyRecords {
		if r.Date == date {
			return r, true
		}
	}
	return DailyRecord{}, false
}

// RecordDailyData appends the sold-out record for the day of at.
// The first record of a day wins; later calls for the same day return false.
func (t *MonitorTask) RecordDailyData(price decimal.Decimal, at time.Time) bool {
	date := DayKey(at)
	if _, ok := t.RecordFor(date); ok {
		return false
	}
	t.DailyRecords = append(t.DailyRecords, DailyRecord{
		Date:        date,
		FinalPrice:  price,
		SoldOutTime: &at,
	})
	return true
}

// HistoricalData merges the daily records of every task tracking
// activityID, newest date first.
func HistoricalData(tasks []*MonitorTask, activityID int64) []DailyRecord {
	records := []DailyRecord{}
	for _, t := range tasks {
		if t.TargetActivityID != activityID {
			continue
		}
		for _, r := range t.DailyRecords {
			records = append(records, r.clone())
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date > records[j].Date
	})
	return records
}
