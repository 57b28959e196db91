// Package store is an embedded, in-memory reference implementation of the
// NexusKV record store: namespaced records with per-write TTLs, declared
// secondary indexes, and filter queries that cross the same wire encoding a
// remote client would send.
package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/roaring64"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/INLOpen/nexuskv/core"
	"github.com/INLOpen/nexuskv/hooks"
	"github.com/INLOpen/nexuskv/query"
)

// NamespaceOptions declares one namespace and the TTL applied to writes that
// use core.TTLNamespaceDefault. A zero DefaultTTL means such writes never
// expire.
type NamespaceOptions struct {
	Name       string
	DefaultTTL time.Duration
}

// Options configures a Store.
type Options struct {
	Namespaces []NamespaceOptions
	// Logger defaults to a discard logger.
	Logger *slog.Logger
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
	// Clock defaults to the system clock.
	Clock core.Clock
	// HookManager defaults to a manager with no listeners.
	HookManager hooks.HookManager
	// SweepInterval is how often the background sweeper reaps expired
	// records. Zero disables the sweeper.
	SweepInterval time.Duration
	// StatsInterval is how often operation statistics are logged.
	// Zero disables the stats logger.
	StatsInterval time.Duration
}

// record is the store's internal mutable state for one key.
type record struct {
	id         uint64
	key        core.Key
	bins       core.BinMap
	generation uint32
	expiresAt  time.Time // zero means never
}

func (r *record) expired(now time.Time) bool {
	return !r.expiresAt.IsZero() && !now.Before(r.expiresAt)
}

type namespace struct {
	name       string
	defaultTTL time.Duration

	mu      sync.RWMutex
	records map[string]*record // canonical key digest -> record
	byID    map[uint64]*record
	indexes map[indexKey]*secondaryIndex
}

// Store is the embedded record store. All exported methods are safe for
// concurrent use.
type Store struct {
	logger *slog.Logger
	tracer trace.Tracer
	clock  core.Clock
	hooks  hooks.HookManager
	stats  *storeStats

	namespaces map[string]*namespace
	nextID     atomic.Uint64

	sweepInterval time.Duration
	statsInterval time.Duration

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	group     *errgroup.Group
}

// NewStore creates a Store with the given namespaces. It does not start the
// background loops; call Start for those.
func NewStore(opts Options) (*Store, error) {
	if len(opts.Namespaces) == 0 {
		return nil, fmt.Errorf("at least one namespace is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}
	if opts.Clock == nil {
		opts.Clock = core.SystemClock{}
	}
	if opts.HookManager == nil {
		opts.HookManager = hooks.NewHookManager(opts.Logger)
	}

	stats, err := newStoreStats()
	if err != nil {
		return nil, err
	}

	s := &Store{
		logger:        opts.Logger.With("component", "store"),
		tracer:        opts.TracerProvider.Tracer("github.com/INLOpen/nexuskv/store"),
		clock:         opts.Clock,
		hooks:         opts.HookManager,
		stats:         stats,
		namespaces:    make(map[string]*namespace, len(opts.Namespaces)),
		sweepInterval: opts.SweepInterval,
		statsInterval: opts.StatsInterval,
	}

	for _, nsOpt := range opts.Namespaces {
		if nsOpt.Name == "" {
			return nil, &core.ValidationError{Message: "cannot be empty", Field: "namespace", Value: nsOpt.Name}
		}
		if _, dup := s.namespaces[nsOpt.Name]; dup {
			return nil, fmt.Errorf("duplicate namespace '%s'", nsOpt.Name)
		}
		s.namespaces[nsOpt.Name] = &namespace{
			name:       nsOpt.Name,
			defaultTTL: nsOpt.DefaultTTL,
			records:    make(map[string]*record),
			byID:       make(map[uint64]*record),
			indexes:    make(map[indexKey]*secondaryIndex),
		}
	}

	return s, nil
}

// Start launches the expiry sweeper and the stats logger. It returns
// immediately; the loops run until Close.
func (s *Store) Start() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.cancel != nil {
		return // already started
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	g, ctx := errgroup.WithContext(ctx)
	s.group = g

	if s.sweepInterval > 0 {
		g.Go(func() error { return s.sweepLoop(ctx) })
	}
	if s.statsInterval > 0 {
		g.Go(func() error { return s.statsLoop(ctx) })
	}
}

// Close stops the background loops and waits for asynchronous hook listeners
// to drain.
func (s *Store) Close() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.cancel != nil {
		s.cancel()
		if err := s.group.Wait(); err != nil && err != context.Canceled {
			s.logger.Error("Background loop exited with error", "error", err)
		}
		s.cancel = nil
		s.group = nil
	}
	s.hooks.Stop()
	return nil
}

func (s *Store) sweepLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if reaped := s.SweepExpired(); reaped > 0 {
				s.logger.Debug("Expiry sweep finished", "reaped", reaped)
			}
		}
	}
}

func (s *Store) statsLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			snap := s.Stats()
			s.logger.Info("Store statistics",
				"puts", snap.Puts.Count,
				"gets", snap.Gets.Count,
				"deletes", snap.Deletes.Count,
				"queries", snap.Queries.Count,
				"get_hits", snap.GetHits,
				"get_misses", snap.GetMisses,
				"records_expired", snap.RecordsExpired,
				"put_p99_us", snap.Puts.P99,
				"get_p99_us", snap.Gets.P99,
				"query_p99_us", snap.Queries.P99,
			)
		}
	}
}

// Stats returns a point-in-time copy of the store's operation statistics.
func (s *Store) Stats() StatsSnapshot {
	return s.stats.snapshot()
}

func (s *Store) namespaceOf(key core.Key) (*namespace, error) {
	ns, ok := s.namespaces[key.Namespace]
	if !ok {
		return nil, fmt.Errorf("unknown namespace '%s'", key.Namespace)
	}
	return ns, nil
}

// resolveDeadline turns a write policy's TTL into an absolute deadline.
// A zero time means the record never expires.
func (s *Store) resolveDeadline(ns *namespace, policy *core.WritePolicy) (time.Time, error) {
	expiration := core.TTLNamespaceDefault
	if policy != nil {
		expiration = policy.Expiration
	}
	switch {
	case expiration == core.TTLNeverExpire:
		return time.Time{}, nil
	case expiration == core.TTLNamespaceDefault:
		if ns.defaultTTL == 0 {
			return time.Time{}, nil
		}
		return s.clock.Now().Add(ns.defaultTTL), nil
	case expiration > 0:
		return s.clock.Now().Add(time.Duration(expiration) * time.Second), nil
	default:
		return time.Time{}, &core.ValidationError{
			Message: "expiration must be -1, 0, or a positive TTL in seconds",
			Field:   "expiration",
			Value:   fmt.Sprintf("%d", expiration),
		}
	}
}

// Put writes the given bins to the record at key, creating the record if it
// does not exist and bumping its generation if it does. The write policy's
// TTL resets the record's lifetime on every put.
func (s *Store) Put(ctx context.Context, policy *core.WritePolicy, key core.Key, bins ...core.Bin) error {
	_, span := s.tracer.Start(ctx, "Store.Put", trace.WithAttributes(
		attribute.String("db.namespace", key.Namespace),
		attribute.String("db.set", key.Set),
	))
	defer span.End()
	start := s.clock.Now()
	defer func() { s.stats.observePut(s.clock.Now().Sub(start)) }()

	if len(bins) == 0 {
		return &core.ValidationError{Message: "at least one bin is required", Field: "bins", Value: key.String()}
	}
	for _, bin := range bins {
		if err := core.ValidateBinName(bin.Name); err != nil {
			return err
		}
	}

	if err := s.hooks.Trigger(ctx, hooks.NewPrePutRecordEvent(hooks.PrePutRecordPayload{
		Key: &key, Policy: policy, Bins: &bins,
	})); err != nil {
		return err
	}

	ns, err := s.namespaceOf(key)
	if err != nil {
		return err
	}
	deadline, err := s.resolveDeadline(ns, policy)
	if err != nil {
		return err
	}

	var expireEvents []hooks.RecordExpirePayload
	digest := string(key.Digest())
	now := s.clock.Now()

	ns.mu.Lock()
	rec := ns.records[digest]
	if rec != nil && rec.expired(now) {
		expireEvents = append(expireEvents, hooks.RecordExpirePayload{Key: rec.key, Generation: rec.generation})
		ns.removeLocked(rec)
		rec = nil
	}
	if rec == nil {
		rec = &record{
			id:   s.nextID.Add(1),
			key:  key,
			bins: make(core.BinMap, len(bins)),
		}
		ns.records[digest] = rec
		ns.byID[rec.id] = rec
	} else {
		// Re-index only the bins this put overwrites.
		for _, bin := range bins {
			if old, present := rec.bins[bin.Name]; present {
				ns.removeFromIndexesLocked(rec.id, bin.Name, old)
			}
		}
	}
	for _, bin := range bins {
		rec.bins[bin.Name] = bin.Value
		ns.insertIntoIndexesLocked(rec.id, bin.Name, bin.Value)
	}
	rec.generation++
	rec.expiresAt = deadline
	generation := rec.generation
	ns.mu.Unlock()

	s.fireExpireEvents(ctx, expireEvents)
	s.hooks.Trigger(ctx, hooks.NewPostPutRecordEvent(hooks.PostPutRecordPayload{
		Key: key, Generation: generation,
	}))
	return nil
}

// Get reads the record at key. Expired records are treated as missing and
// reaped in place. With no bin names every bin is returned; otherwise only
// the named bins. The returned record's Expiration is the TTL seconds
// remaining at read time, or core.TTLNeverExpire.
func (s *Store) Get(ctx context.Context, key core.Key, binNames ...string) (*core.Record, error) {
	_, span := s.tracer.Start(ctx, "Store.Get", trace.WithAttributes(
		attribute.String("db.namespace", key.Namespace),
		attribute.String("db.set", key.Set),
	))
	defer span.End()
	start := s.clock.Now()
	hit := false
	defer func() { s.stats.observeGet(s.clock.Now().Sub(start), hit) }()

	if err := s.hooks.Trigger(ctx, hooks.NewPreGetRecordEvent(hooks.PreGetRecordPayload{
		Key: &key, BinNames: &binNames,
	})); err != nil {
		return nil, err
	}

	ns, err := s.namespaceOf(key)
	if err != nil {
		return nil, err
	}

	digest := string(key.Digest())
	now := s.clock.Now()

	ns.mu.RLock()
	rec := ns.records[digest]
	if rec == nil {
		ns.mu.RUnlock()
		s.hooks.Trigger(ctx, hooks.NewPostGetRecordEvent(hooks.PostGetRecordPayload{Key: key, Error: core.ErrNotFound}))
		return nil, core.ErrNotFound
	}
	if rec.expired(now) {
		ns.mu.RUnlock()
		s.reapIfExpired(ctx, ns, digest)
		s.hooks.Trigger(ctx, hooks.NewPostGetRecordEvent(hooks.PostGetRecordPayload{Key: key, Error: core.ErrNotFound}))
		return nil, core.ErrNotFound
	}
	result := rec.materialize(now, binNames)
	ns.mu.RUnlock()

	hit = true
	s.hooks.Trigger(ctx, hooks.NewPostGetRecordEvent(hooks.PostGetRecordPayload{Key: key, Record: result}))
	return result, nil
}

// Delete removes the record at key, reporting whether a live record existed.
func (s *Store) Delete(ctx context.Context, key core.Key) (bool, error) {
	_, span := s.tracer.Start(ctx, "Store.Delete", trace.WithAttributes(
		attribute.String("db.namespace", key.Namespace),
		attribute.String("db.set", key.Set),
	))
	defer span.End()
	start := s.clock.Now()
	defer func() { s.stats.observeDelete(s.clock.Now().Sub(start)) }()

	if err := s.hooks.Trigger(ctx, hooks.NewPreDeleteRecordEvent(hooks.PreDeleteRecordPayload{Key: &key})); err != nil {
		return false, err
	}

	ns, err := s.namespaceOf(key)
	if err != nil {
		return false, err
	}

	digest := string(key.Digest())
	now := s.clock.Now()
	var expireEvents []hooks.RecordExpirePayload

	ns.mu.Lock()
	rec := ns.records[digest]
	existed := rec != nil
	if rec != nil {
		if rec.expired(now) {
			existed = false
			expireEvents = append(expireEvents, hooks.RecordExpirePayload{Key: rec.key, Generation: rec.generation})
		}
		ns.removeLocked(rec)
	}
	ns.mu.Unlock()

	s.fireExpireEvents(ctx, expireEvents)
	s.hooks.Trigger(ctx, hooks.NewPostDeleteRecordEvent(hooks.PostDeleteRecordPayload{Key: key, Existed: existed}))
	return existed, nil
}

// CreateIndex declares a secondary index over one bin of a namespace, scoped
// to the given collection type, and backfills it from the namespace's live
// records.
func (s *Store) CreateIndex(ctx context.Context, nsName, bin string, ict query.IndexCollectionType, dt IndexDataType) error {
	_, span := s.tracer.Start(ctx, "Store.CreateIndex", trace.WithAttributes(
		attribute.String("db.namespace", nsName),
		attribute.String("db.bin", bin),
	))
	defer span.End()

	if err := core.ValidateBinName(bin); err != nil {
		return err
	}
	ns, ok := s.namespaces[nsName]
	if !ok {
		return fmt.Errorf("unknown namespace '%s'", nsName)
	}

	ik := indexKey{bin: bin, collectionType: ict}
	now := s.clock.Now()

	ns.mu.Lock()
	defer ns.mu.Unlock()
	if _, dup := ns.indexes[ik]; dup {
		return fmt.Errorf("index on bin '%s' (%s) already exists in namespace '%s'", bin, ict, nsName)
	}
	idx := newSecondaryIndex(bin, ict, dt)
	for _, rec := range ns.records {
		if rec.expired(now) {
			continue
		}
		if v, present := rec.bins[bin]; present {
			idx.insert(rec.id, v)
		}
	}
	ns.indexes[ik] = idx

	s.logger.Info("Secondary index created", "namespace", nsName, "bin", bin, "collection_type", ict.String(), "data_type", dt.String())
	return nil
}

// DropIndex removes a previously declared secondary index.
func (s *Store) DropIndex(ctx context.Context, nsName, bin string, ict query.IndexCollectionType) error {
	ns, ok := s.namespaces[nsName]
	if !ok {
		return fmt.Errorf("unknown namespace '%s'", nsName)
	}
	ik := indexKey{bin: bin, collectionType: ict}

	ns.mu.Lock()
	defer ns.mu.Unlock()
	if _, exists := ns.indexes[ik]; !exists {
		return fmt.Errorf("no index on bin '%s' (%s) in namespace '%s'", bin, ict, nsName)
	}
	delete(ns.indexes, ik)
	s.logger.Info("Secondary index dropped", "namespace", nsName, "bin", bin, "collection_type", ict.String())
	return nil
}

// Query executes a filter against the matching secondary index of a
// namespace and set. The filter crosses the wire boundary in-process: it is
// encoded into an exactly-sized command buffer and decoded back before
// execution, so any disagreement between EstimateSize and Write surfaces
// here as an internal defect instead of a corrupted request on a live
// connection.
func (s *Store) Query(ctx context.Context, nsName, set string, f query.Filter) ([]*core.Record, error) {
	_, span := s.tracer.Start(ctx, "Store.Query", trace.WithAttributes(
		attribute.String("db.namespace", nsName),
		attribute.String("db.set", set),
		attribute.String("db.filter.bin", f.Name()),
	))
	defer span.End()
	start := s.clock.Now()
	defer func() { s.stats.observeQuery(s.clock.Now().Sub(start)) }()

	nsCopy, setCopy, binCopy := nsName, set, f.Name()
	if err := s.hooks.Trigger(ctx, hooks.NewPreQueryEvent(hooks.PreQueryPayload{
		Namespace: &nsCopy, Set: &setCopy, BinName: &binCopy,
	})); err != nil {
		return nil, err
	}
	nsName, set = nsCopy, setCopy

	matches, err := s.runQuery(nsName, set, f)

	s.hooks.Trigger(ctx, hooks.NewPostQueryEvent(hooks.PostQueryPayload{
		Namespace: nsName, Set: set, BinName: f.Name(),
		Matches: len(matches), Duration: s.clock.Now().Sub(start), Error: err,
	}))
	return matches, err
}

func (s *Store) runQuery(nsName, set string, f query.Filter) ([]*core.Record, error) {
	ns, ok := s.namespaces[nsName]
	if !ok {
		return nil, fmt.Errorf("unknown namespace '%s'", nsName)
	}

	decoded, err := roundTripFilter(f)
	if err != nil {
		return nil, err
	}

	ns.mu.RLock()
	defer ns.mu.RUnlock()

	ik := indexKey{bin: decoded.Name(), collectionType: f.CollectionType()}
	idx, ok := ns.indexes[ik]
	if !ok {
		return nil, fmt.Errorf("no index on bin '%s' (%s) in namespace '%s'", decoded.Name(), f.CollectionType(), nsName)
	}

	postings, err := matchPostings(idx, decoded)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var matches []*core.Record
	it := postings.Iterator()
	for it.HasNext() {
		rec := ns.byID[it.Next()]
		if rec == nil || rec.expired(now) || rec.key.Set != set {
			continue
		}
		matches = append(matches, rec.materialize(now, nil))
	}
	return matches, nil
}

// roundTripFilter pushes the filter through its own wire encoding, enforcing
// the size/write agreement contract on every query.
func roundTripFilter(f query.Filter) (query.Filter, error) {
	size := f.EstimateSize()
	buf := make([]byte, size)
	wrote, err := f.Write(buf, 0)
	if err != nil {
		return query.Filter{}, fmt.Errorf("encode filter: %w", err)
	}
	if wrote != size {
		return query.Filter{}, fmt.Errorf("internal defect: filter estimated %d bytes but wrote %d", size, wrote)
	}
	decoded, read, err := query.ReadFilter(buf, 0)
	if err != nil {
		return query.Filter{}, fmt.Errorf("decode filter: %w", err)
	}
	if read != size {
		return query.Filter{}, fmt.Errorf("internal defect: filter wrote %d bytes but decoded %d", size, read)
	}
	return decoded, nil
}

func matchPostings(idx *secondaryIndex, f query.Filter) (*roaring64.Bitmap, error) {
	switch begin := f.Begin().(type) {
	case core.IntegerValue:
		// The wire types the end endpoint from begin's particle, so the
		// assertion cannot fail on a decoded filter.
		end := f.End().(core.IntegerValue)
		if begin.Int64() == end.Int64() {
			return idx.matchEqual(begin)
		}
		return idx.matchRange(begin.Int64(), end.Int64())
	case core.StringValue:
		return idx.matchEqual(begin)
	default:
		return nil, fmt.Errorf("unsupported filter endpoint type %T", f.Begin())
	}
}

// SweepExpired reaps every expired record across all namespaces and returns
// the number removed. The background sweeper calls this periodically; tests
// call it directly for determinism.
func (s *Store) SweepExpired() int {
	now := s.clock.Now()
	total := 0
	for _, ns := range s.namespaces {
		var expireEvents []hooks.RecordExpirePayload

		ns.mu.Lock()
		for digest, rec := range ns.records {
			if rec.expired(now) {
				expireEvents = append(expireEvents, hooks.RecordExpirePayload{Key: rec.key, Generation: rec.generation})
				delete(ns.records, digest)
				delete(ns.byID, rec.id)
				ns.removeAllIndexTermsLocked(rec)
			}
		}
		ns.mu.Unlock()

		s.fireExpireEvents(context.Background(), expireEvents)
		total += len(expireEvents)
	}
	if total > 0 {
		s.stats.addExpired(uint64(total))
	}
	return total
}

// reapIfExpired upgrades to a write lock and removes the record if it is
// still present and expired, firing the expire event.
func (s *Store) reapIfExpired(ctx context.Context, ns *namespace, digest string) {
	now := s.clock.Now()
	var expireEvents []hooks.RecordExpirePayload

	ns.mu.Lock()
	if rec := ns.records[digest]; rec != nil && rec.expired(now) {
		expireEvents = append(expireEvents, hooks.RecordExpirePayload{Key: rec.key, Generation: rec.generation})
		ns.removeLocked(rec)
	}
	ns.mu.Unlock()

	s.fireExpireEvents(ctx, expireEvents)
	if n := len(expireEvents); n > 0 {
		s.stats.addExpired(uint64(n))
	}
}

func (s *Store) fireExpireEvents(ctx context.Context, events []hooks.RecordExpirePayload) {
	for _, ev := range events {
		s.hooks.Trigger(ctx, hooks.NewRecordExpireEvent(ev))
	}
}

// materialize copies a live record into the read result shape. binNames nil
// or empty selects every bin.
func (r *record) materialize(now time.Time, binNames []string) *core.Record {
	out := &core.Record{
		Generation: r.generation,
		Expiration: core.TTLNeverExpire,
	}
	if !r.expiresAt.IsZero() {
		remaining := r.expiresAt.Sub(now).Seconds()
		out.Expiration = int32(math.Ceil(remaining))
	}

	if len(binNames) == 0 {
		out.Bins = make(core.BinMap, len(r.bins))
		for name, v := range r.bins {
			out.Bins[name] = v
		}
		return out
	}
	out.Bins = make(core.BinMap, len(binNames))
	for _, name := range binNames {
		if v, present := r.bins[name]; present {
			out.Bins[name] = v
		}
	}
	return out
}

func (ns *namespace) insertIntoIndexesLocked(recordID uint64, bin string, value any) {
	for ik, idx := range ns.indexes {
		if ik.bin == bin {
			idx.insert(recordID, value)
		}
	}
}

func (ns *namespace) removeFromIndexesLocked(recordID uint64, bin string, value any) {
	for ik, idx := range ns.indexes {
		if ik.bin == bin {
			idx.remove(recordID, value)
		}
	}
}

func (ns *namespace) removeAllIndexTermsLocked(rec *record) {
	for name, v := range rec.bins {
		ns.removeFromIndexesLocked(rec.id, name, v)
	}
}

func (ns *namespace) removeLocked(rec *record) {
	delete(ns.records, string(rec.key.Digest()))
	delete(ns.byID, rec.id)
	ns.removeAllIndexTermsLocked(rec)
}
