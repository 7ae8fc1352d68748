// Package cache stores rendered report payloads. Entries are keyed under a
// per-partition generation counter; bumping the generation orphans every
// entry of that partition, and TTL reclaims them.
package cache

import (
	"context"
	"time"
)

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	// Generation returns the current counter of a partition (0 if never bumped).
	Generation(ctx context.Context, partition string) (int64, error)
	Bump(ctx context.Context, partitions ...string) error
	Close() error
}

// Nop never hits.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Nop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Nop) Generation(context.Context, string) (int64, error) { return 0, nil }
func (Nop) Bump(context.Context, ...string) error { return nil }
func (Nop) Close() error { return nil }

// Partition is the invalidation unit for reports: one subject in one year.
func Partition(subject, year string) string { return subject + "|" + year }

// EnrollmentPartition covers rosters of every class in a year.
func EnrollmentPartition(year string) string { return "enrollment|" + year }
