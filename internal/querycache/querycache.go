package querycache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"bidstack/internal/pricebins"
	"bidstack/internal/query"
)

// generationKey holds a counter bumped after every ingest. It is part of every
// result key, so rows cached before an ingest are never served after it.
const generationKey = "generation"

// Store is the byte cache behind a Backend. A miss returns ok=false and no error.
// An absent generation counter reads as zero.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Generation(ctx context.Context, key string) (int64, error)
	Bump(ctx context.Context, key string) error
}

// RedisStore keeps cached results in Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return data, true, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Generation implements Store.
func (s *RedisStore) Generation(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get generation: %w", err)
	}
	return n, nil
}

// Bump implements Store.
func (s *RedisStore) Bump(ctx context.Context, key string) error {
	if err := s.client.Incr(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis incr generation: %w", err)
	}
	return nil
}

// Invalidator retires every result cached under prefix.
type Invalidator struct {
	store  Store
	prefix string
}

// NewInvalidator pairs a store with the key prefix used by Wrap.
func NewInvalidator(store Store, prefix string) *Invalidator {
	return &Invalidator{store: store, prefix: prefix}
}

// Invalidate bumps the generation; older entries expire by TTL.
func (i *Invalidator) Invalidate(ctx context.Context) error {
	return i.store.Bump(ctx, i.prefix+generationKey)
}

// Close releases the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Backend serves repeated queries from a Store and delegates misses to the wrapped
// backend. Cache failures fall through to the backend; errors are never cached.
type Backend struct {
	next   query.Backend
	store  Store
	ttl    time.Duration
	prefix string
	binKey string
	logger zerolog.Logger
}

var _ query.Backend = (*Backend)(nil)

// Wrap puts a cache in front of next.
func Wrap(next query.Backend, store Store, ttl time.Duration, prefix string, logger zerolog.Logger) *Backend {
	return &Backend{
		next:   next,
		store:  store,
		ttl:    ttl,
		prefix: prefix,
		binKey: strings.Join(next.Bins().Names(), "|"),
		logger: logger.With().Str("component", "querycache").Str("backend", next.Name()).Logger(),
	}
}

func (b *Backend) key(ctx context.Context, op string, params any) (string, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	gen, err := b.store.Generation(ctx, b.prefix+generationKey)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(append(append(raw, '#'), b.binKey...))
	return fmt.Sprintf("%s%s:%s:g%d:%s", b.prefix, b.next.Name(), op, gen, hex.EncodeToString(sum[:])), nil
}

func cached[T any](ctx context.Context, b *Backend, op string, params any, load func() ([]T, error)) ([]T, error) {
	key, err := b.key(ctx, op, params)
	if err != nil {
		b.logger.Warn().Err(err).Str("op", op).Msg("cache key unavailable")
		return load()
	}
	if data, ok, err := b.store.Get(ctx, key); err != nil {
		b.logger.Warn().Err(err).Str("op", op).Msg("cache read failed")
	} else if ok {
		var rows []T
		if err := json.Unmarshal(data, &rows); err == nil {
			b.logger.Debug().Str("op", op).Msg("cache hit")
			return rows, nil
		}
	}

	rows, err := load()
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(rows); err == nil {
		if err := b.store.Set(ctx, key, data, b.ttl); err != nil {
			b.logger.Warn().Err(err).Str("op", op).Msg("cache write failed")
		}
	}
	return rows, nil
}

// Name implements query.Backend.
func (b *Backend) Name() string { return b.next.Name() }

// Bins implements query.Backend.
func (b *Backend) Bins() *pricebins.Table { return b.next.Bins() }

// AggregateBids implements query.Backend.
func (b *Backend) AggregateBids(ctx context.Context, q query.BidQuery) ([]query.BinVolume, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return cached(ctx, b, "aggregate_bids", q, func() ([]query.BinVolume, error) { return b.next.AggregateBids(ctx, q) })
}

// AggregateDispatch implements query.Backend.
func (b *Backend) AggregateDispatch(ctx context.Context, f query.Filter) ([]query.DispatchTotals, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return cached(ctx, b, "aggregate_dispatch", f, func() ([]query.DispatchTotals, error) { return b.next.AggregateDispatch(ctx, f) })
}

// AggregateDispatchByUnits implements query.Backend.
func (b *Backend) AggregateDispatchByUnits(ctx context.Context, q query.UnitQuery) ([]query.DispatchTotals, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return cached(ctx, b, "aggregate_dispatch_by_units", q, func() ([]query.DispatchTotals, error) {
		return b.next.AggregateDispatchByUnits(ctx, q)
	})
}

// BidsByUnit implements query.Backend.
func (b *Backend) BidsByUnit(ctx context.Context, q query.UnitQuery) ([]query.UnitBid, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return cached(ctx, b, "bids_by_unit", q, func() ([]query.UnitBid, error) { return b.next.BidsByUnit(ctx, q) })
}

// DUIDsForStations implements query.Backend.
func (b *Backend) DUIDsForStations(ctx context.Context, stations []string) ([]string, error) {
	return cached(ctx, b, "duids_for_stations", stations, func() ([]string, error) { return b.next.DUIDsForStations(ctx, stations) })
}

// DUIDsAndStations implements query.Backend.
func (b *Backend) DUIDsAndStations(ctx context.Context, f query.Filter) ([]query.StationUnit, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return cached(ctx, b, "duids_and_stations", f, func() ([]query.StationUnit, error) { return b.next.DUIDsAndStations(ctx, f) })
}

// AggregatePrices implements query.Backend.
func (b *Backend) AggregatePrices(ctx context.Context, q query.PriceQuery) ([]query.WeightedPrice, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return cached(ctx, b, "aggregate_prices", q, func() ([]query.WeightedPrice, error) { return b.next.AggregatePrices(ctx, q) })
}

// RegionDemand implements query.Backend.
func (b *Backend) RegionDemand(ctx context.Context, q query.PriceQuery) ([]query.Demand, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return cached(ctx, b, "region_demand", q, func() ([]query.Demand, error) { return b.next.RegionDemand(ctx, q) })
}

// DistinctTechTypes implements query.Backend.
func (b *Backend) DistinctTechTypes(ctx context.Context) ([]string, error) {
	return cached(ctx, b, "distinct_tech_types", struct{}{}, func() ([]string, error) { return b.next.DistinctTechTypes(ctx) })
}
