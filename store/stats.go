package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/caio/go-tdigest/v4"
)

// opLatency tracks call count and latency quantiles for one operation.
type opLatency struct {
	count uint64
	td    *tdigest.TDigest
}

func newOpLatency() (*opLatency, error) {
	td, err := tdigest.New()
	if err != nil {
		return nil, fmt.Errorf("tdigest.New failed: %w", err)
	}
	return &opLatency{td: td}, nil
}

func (o *opLatency) observe(d time.Duration) error {
	o.count++
	if err := o.td.AddWeighted(float64(d.Microseconds()), 1); err != nil {
		return fmt.Errorf("tdigest AddWeighted failed: %w", err)
	}
	return nil
}

// LatencySnapshot reports one operation's call count and latency quantiles
// in microseconds.
type LatencySnapshot struct {
	Count uint64
	P50   float64
	P95   float64
	P99   float64
}

// StatsSnapshot is a point-in-time copy of the store's operation statistics.
type StatsSnapshot struct {
	Puts    LatencySnapshot
	Gets    LatencySnapshot
	Deletes LatencySnapshot
	Queries LatencySnapshot

	GetHits        uint64
	GetMisses      uint64
	RecordsExpired uint64
}

// storeStats accumulates per-operation counters and latency digests.
type storeStats struct {
	mu      sync.Mutex
	puts    *opLatency
	gets    *opLatency
	deletes *opLatency
	queries *opLatency

	getHits        uint64
	getMisses      uint64
	recordsExpired uint64
}

func newStoreStats() (*storeStats, error) {
	s := &storeStats{}
	var err error
	if s.puts, err = newOpLatency(); err != nil {
		return nil, err
	}
	if s.gets, err = newOpLatency(); err != nil {
		return nil, err
	}
	if s.deletes, err = newOpLatency(); err != nil {
		return nil, err
	}
	if s.queries, err = newOpLatency(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *storeStats) observePut(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.puts.observe(d)
}

func (s *storeStats) observeGet(d time.Duration, hit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.gets.observe(d)
	if hit {
		s.getHits++
	} else {
		s.getMisses++
	}
}

func (s *storeStats) observeDelete(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.deletes.observe(d)
}

func (s *storeStats) observeQuery(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.queries.observe(d)
}

func (s *storeStats) addExpired(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordsExpired += n
}

func (s *storeStats) snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		Puts:           s.puts.snapshotLocked(),
		Gets:           s.gets.snapshotLocked(),
		Deletes:        s.deletes.snapshotLocked(),
		Queries:        s.queries.snapshotLocked(),
		GetHits:        s.getHits,
		GetMisses:      s.getMisses,
		RecordsExpired: s.recordsExpired,
	}
}

func (o *opLatency) snapshotLocked() LatencySnapshot {
	snap := LatencySnapshot{Count: o.count}
	if o.td.Count() > 0 {
		snap.P50 = o.td.Quantile(0.50)
		snap.P95 = o.td.Quantile(0.95)
		snap.P99 = o.td.Quantile(0.99)
	}
	return snap
}
