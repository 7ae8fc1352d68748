// Package report serves read-only rollups over stored scores. Absent scores
// are excluded from means; only the term report zero-fills missing quarters.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-outcomes/internal/cache"
	"github.com/mind-engage/mindengage-outcomes/internal/db"
	"github.com/mind-engage/mindengage-outcomes/internal/logger"
	"github.com/mind-engage/mindengage-outcomes/internal/outcome"
)

type Service struct {
	st    outcome.Store
	cache cache.Cache
	ttl   time.Duration
	log   *logger.Logger
}

func NewService(q db.DBTX, c cache.Cache, ttl time.Duration, log *logger.Logger) *Service {
	if c == nil {
		c = cache.Nop{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{st: outcome.NewSQLStore(q), cache: c, ttl: ttl, log: log}
}

// Band buckets a score for class overviews.
type Band string

const (
	BandBelow  Band = "below_0_35"
	BandMiddle Band = "between_0_35_0_67"
	BandAbove  Band = "above_0_67"
)

const (
	lowerBound = 0.35
	upperBound = 0.67
)

// BandOf: below < 0.35 <= middle <= 0.67 < above.
func BandOf(v float64) Band {
	switch {
	case v > upperBound:
		return BandAbove
	case v >= lowerBound:
		return BandMiddle
	default:
		return BandBelow
	}
}

type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v float64) { m.sum += v; m.n++ }

// value is nil when nothing was added.
func (m mean) value() *float64 {
	if m.n == 0 {
		return nil
	}
	v := m.sum / float64(m.n)
	return &v
}

// cached serves build() through the report cache. Keys embed the current
// generation of each partition, so a bumped partition never hits again.
// Cache failures degrade to a direct build.
func cached[T any](ctx context.Context, s *Service, parts []string, key string, build func() (T, error)) (T, error) {
	gens := make([]string, 0, len(parts))
	for _, p := range parts {
		g, err := s.cache.Generation(ctx, p)
		if err != nil {
			s.log.Warn("report cache unavailable", "error", err)
			return build()
		}
		gens = append(gens, fmt.Sprintf("%s@%d", p, g))
	}
	full := key + "#" + strings.Join(gens, ",")

	if b, ok, err := s.cache.Get(ctx, full); err == nil && ok {
		var out T
		if err := json.Unmarshal(b, &out); err == nil {
			return out, nil
		}
	} else if err != nil {
		s.log.Warn("report cache get failed", "key", full, "error", err)
	}

	out, err := build()
	if err != nil {
		return out, err
	}
	if b, err := json.Marshal(out); err == nil {
		if err := s.cache.Set(ctx, full, b, s.ttl); err != nil {
			s.log.Warn("report cache set failed", "key", full, "error", err)
		}
	}
	return out, nil
}

func partitionsFor(subject, year string) []string {
	return []string{cache.Partition(subject, year), cache.EnrollmentPartition(year)}
}

func studentIDs(students []outcome.Student) []int64 {
	ids := make([]int64, 0, len(students))
	for _, st := range students {
		ids = append(ids, st.ID)
	}
	return ids
}

func nodeIDs(nodes []outcome.Node) []int64 {
	ids := make([]int64, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	return ids
}
