// Package gradebook holds the write use cases: outcome CRUD, mapping edits
// and score entry. Every write runs in one transaction together with the
// propagation it triggers and its audit record.
package gradebook

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-outcomes/internal/apperr"
	"github.com/mind-engage/mindengage-outcomes/internal/audit"
	"github.com/mind-engage/mindengage-outcomes/internal/cache"
	"github.com/mind-engage/mindengage-outcomes/internal/db"
	"github.com/mind-engage/mindengage-outcomes/internal/logger"
	"github.com/mind-engage/mindengage-outcomes/internal/outcome"
	"github.com/mind-engage/mindengage-outcomes/internal/propagation"
)

type Service struct {
	db    *sql.DB
	reads *outcome.SQLStore
	cache cache.Cache
	log   *logger.Logger
}

func NewService(conn *sql.DB, c cache.Cache, log *logger.Logger) *Service {
	if c == nil {
		c = cache.Nop{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{db: conn, reads: outcome.NewSQLStore(conn), cache: c, log: log}
}

// unit is the state of one write request.
type unit struct {
	store      outcome.Store
	eng        *propagation.Engine
	sum        *propagation.Summary
	partitions map[string]struct{}
}

func (u *unit) touch(s outcome.Scope) {
	u.partitions[cache.Partition(s.Subject, s.Year)] = struct{}{}
}

// write runs fn in a transaction, appends the audit event, commits, and
// then invalidates cached reports of every scope fn touched.
func (s *Service) write(ctx context.Context, kind, ref string, fn func(u *unit) error) (*propagation.Summary, error) {
	sum := propagation.NewSummary()
	sum.RunID = uuid.NewString()
	log := s.log.With("run_id", sum.RunID, "op", kind, "ref", ref)

	u := &unit{sum: sum, partitions: map[string]struct{}{}}
	err := db.WithTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		u.store = outcome.NewSQLStore(tx)
		u.eng = propagation.New(u.store)
		if err := fn(u); err != nil {
			return err
		}
		return audit.NewEventRepo(tx).Append(ctx, kind, ref, sum)
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindStorage {
			log.Error("write rolled back", "error", err)
		} else {
			log.Info("write rejected", "error", err)
		}
		return nil, err
	}

	for _, w := range sum.Warnings {
		log.Warn("recalculation skipped", "detail", w)
	}
	log.Info("write committed",
		"recomputed_lo", sum.RecomputedLOs,
		"recomputed_ro", sum.RecomputedROs,
		"scores_written", sum.ScoresWritten,
		"scores_cleared", sum.ScoresCleared)

	if len(u.partitions) > 0 {
		parts := make([]string, 0, len(u.partitions))
		for p := range u.partitions {
			parts = append(parts, p)
		}
		if err := s.cache.Bump(ctx, parts...); err != nil {
			log.Warn("report cache invalidation failed", "error", err)
		}
	}
	return sum, nil
}

func ref(t outcome.Tier, id int64) string { return fmt.Sprintf("%s:%d", t, id) }
