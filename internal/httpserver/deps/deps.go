package deps

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/pricewatch/internal/domain"
	"github.com/MrSnakeDoc/pricewatch/internal/logger"
	"github.com/MrSnakeDoc/pricewatch/internal/lookup"
	"github.com/MrSnakeDoc/pricewatch/internal/metrics"
	"github.com/MrSnakeDoc/pricewatch/internal/store"
	"github.com/shopspring/decimal"
)

// Monitor is the task engine as seen by the API.
type Monitor interface {
	CreateTask(shopName string, activityID int64, targetPrice decimal.Decimal) (*domain.MonitorTask, error)
	ListTasks() []*domain.MonitorTask
	GetTask(id string) (*domain.MonitorTask, bool)
	DeleteTask(id string) bool
	StopTask(id string) bool
	UpdateTargetPrice(id string, price decimal.Decimal) bool
	Cleanup() int
	HistoricalData(activityID int64) []domain.DailyRecord
	Ready() bool
}

// Activities reads the upstream activity listings.
type Activities interface {
	SearchAt(ctx context.Context, keyword string, page, count int, loc lookup.Location) (*lookup.SearchResult, error)
	List(ctx context.Context, q lookup.ListQuery) (*lookup.SearchResult, error)
	Detail(ctx context.Context, activityID int64, loc lookup.Location) (*lookup.Detail, error)
}

type Deps struct {
	Logger          logger.Logger
	StartTime       time.Time
	Version         string
	Commit          string
	BuildDate       string
	GoVersion       string
	AllowedCIDRS    []string         // IPs allowed to reach the API, empty = everyone
	TrustProxy      bool             // true if running behind a trusted reverse proxy (e.g., cloudflared)
	RateLimitBurst  int              // per-IP burst on costly routes, 0 = unlimited
	RateLimitPerMin int              // per-IP refill rate
	Monitor         Monitor          // task engine
	Activities      Activities       // upstream listing, search and detail
	SearchCount     int              // default page size for activity search
	Metrics         *metrics.Metrics // nil disables /metrics
	Snapshot        store.Freshness  // optional, reported by /readyz
}
