package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrSnakeDoc/pricewatch/internal/domain"
	"github.com/MrSnakeDoc/pricewatch/internal/logger"
	"github.com/shopspring/decimal"
)

// Kinds of alert, used in logs and metrics.
const (
	KindPrice   = "price"
	KindSoldOut = "sold_out"
)

// Dispatcher turns task events into messages and makes exactly one
// delivery attempt per event. Failures are logged and returned, never
// retried.
type Dispatcher struct {
	channel Channel
	log     logger.Logger
}

func NewDispatcher(channel Channel, log logger.Logger) *Dispatcher {
	return &Dispatcher{channel: channel, log: log}
}

// SendPrice alerts that task's listing reached price.
func (d *Dispatcher) SendPrice(ctx context.Context, task *domain.MonitorTask, price decimal.Decimal) error {
	return d.deliver(ctx, task, KindPrice, PriceMessage(task, price))
}

// SendSoldOut alerts that task's listing sold out at finalPrice.
func (d *Dispatcher) SendSoldOut(ctx context.Context, task *domain.MonitorTask, finalPrice decimal.Decimal) error {
	return d.deliver(ctx, task, KindSoldOut, SoldOutMessage(task, finalPrice))
}

func (d *Dispatcher) deliver(ctx context.Context, task *domain.MonitorTask, kind, message string) error {
	log := d.log.With(
		logger.TaskID(task.ID),
		logger.String("kind", kind),
		logger.String("channel", d.channel.Name()),
	)
	log.Info("sending notification", logger.String("message", oneLine(message)))

	if err := d.channel.Send(ctx, message); err != nil {
		log.Warn("notification failed", logger.Error(err))
		return err
	}

	log.Info("notification sent")
	return nil
}

// PriceMessage is the threshold alert text. The stock line is left out
// until stock has been observed.
func PriceMessage(task *domain.MonitorTask, price decimal.Decimal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[Price alert] %s\n", task.ShopName)
	fmt.Fprintf(&b, "Current price: ¥%s\n", price.StringFixed(2))
	fmt.Fprintf(&b, "Target price: ¥%s", task.TargetPrice.StringFixed(2))
	if task.CurrentStock != nil {
		fmt.Fprintf(&b, "\nStock: %d", *task.CurrentStock)
	}
	return b.String()
}

// SoldOutMessage is the sold-out alert text.
func SoldOutMessage(task *domain.MonitorTask, finalPrice decimal.Decimal) string {
	return fmt.Sprintf("[Sold out] %s\nSold out for today\nFinal price: ¥%s\nTarget price: ¥%s",
		task.ShopName, finalPrice.StringFixed(2), task.TargetPrice.StringFixed(2))
}
