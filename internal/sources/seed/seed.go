// Package seed loads a YAML list of tasks to ensure at startup.
//
//	# seed.yaml
//	- shop: Cafe A
//	  activity_id: 42
//	  target_price: 9.90
//
// Only the ${NAME} form is expanded, and only for variables that are set.
// Anything else, a bare $ included, is kept as written.
package seed

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/MrSnakeDoc/pricewatch/internal/domain"
	"github.com/MrSnakeDoc/pricewatch/internal/logger"
)

// Entry is one task declared in the seed file.
type Entry struct {
	Shop        string `yaml:"shop"`
	ActivityID  int64  `yaml:"activity_id"`
	TargetPrice Price  `yaml:"target_price"`
}

// Price decodes a YAML scalar without going through float64.
type Price struct {
	decimal.Decimal
}

func (p *Price) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: target_price must be a number", n.Line)
	}
	d, err := decimal.NewFromString(strings.TrimSpace(n.Value))
	if err != nil {
		return fmt.Errorf("line %d: invalid target_price %q", n.Line, n.Value)
	}
	p.Decimal = d
	return nil
}

// Ensurer creates a task unless one already watches the same listing.
type Ensurer interface {
	EnsureTask(shopName string, activityID int64, targetPrice decimal.Decimal) (*domain.MonitorTask, bool, error)
}

// Loader reads a seed file. Environment references like ${SHOP} are
// expanded before parsing.
type Loader struct {
	filePath string
}

func NewLoader(filePath string) *Loader {
	return &Loader{filePath: filePath}
}

func (l *Loader) Load() ([]Entry, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var entries []Entry
	if err := yaml.Unmarshal(expandEnv(data), &entries); err != nil {
		return nil, fmt.Errorf("failed to parse seed yaml: %w", err)
	}
	return entries, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		if v, ok := os.LookupEnv(string(ref[2 : len(ref)-1])); ok {
			return []byte(v)
		}
		return ref
	})
}

// Apply ensures every entry and returns how many tasks were created.
// Invalid entries are logged and skipped; their errors are joined.
func Apply(entries []Entry, m Ensurer, log logger.Logger) (int, error) {
	var (
		created int
		errs    []error
	)
	for i, e := range entries {
		task, isNew, err := m.EnsureTask(e.Shop, e.ActivityID, e.TargetPrice.Decimal)
		if err != nil {
			log.Warn("seed entry skipped",
				logger.Int("index", i),
				logger.String("shop", e.Shop),
				logger.Int64("activity_id", e.ActivityID),
				logger.Error(err))
			errs = append(errs, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		if isNew {
			created++
			log.Info("seed task created",
				logger.TaskID(task.ID),
				logger.String("shop", task.ShopName),
				logger.Int64("activity_id", task.TargetActivityID))
		}
	}
	return created, errors.Join(errs...)
}
