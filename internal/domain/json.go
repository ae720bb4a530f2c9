package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Prices are written as plain JSON numbers, the form legacy snapshot
// files use. Decoding goes through decimal.Decimal, which accepts both
// numbers and strings.

func (t MonitorTask) MarshalJSON() ([]byte, error) {
	type plain MonitorTask
	return json.Marshal(struct {
		plain
		TargetPrice       json.Number  `json:"targetPrice"`
		CurrentPrice      *json.Number `json:"currentPrice,omitempty"`
		LastNotifiedPrice *json.Number `json:"lastNotifiedPrice,omitempty"`
	}{
		plain:             plain(t),
		TargetPrice:       number(t.TargetPrice),
		CurrentPrice:      numberPtr(t.CurrentPrice),
		LastNotifiedPrice: numberPtr(t.LastNotifiedPrice),
	})
}

func (r DailyRecord) MarshalJSON() ([]byte, error) {
	type plain DailyRecord
	return json.Marshal(struct {
		plain
		FinalPrice json.Number `json:"finalPrice"`
	}{plain(r), number(r.FinalPrice)})
}

func number(d decimal.Decimal) json.Number { return json.Number(d.String()) }

func numberPtr(d *decimal.Decimal) *json.Number {
	if d == nil {
		return nil
	}
	n := number(*d)
	return &n
}
