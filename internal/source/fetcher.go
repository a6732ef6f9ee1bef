// Package source loads the visit and registration collections through the
// snapshot cache and validates them into model values.
package source

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/flw-audit/internal/cache"
	"github.com/sells-group/flw-audit/internal/resilience"
	"github.com/sells-group/flw-audit/pkg/recordapi"
)

// Collection kinds, used as cache key suffixes.
const (
	KindVisits        = "visits"
	KindRegistrations = "registrations"
)

// Origin says where a collection's rows came from.
type Origin string

const (
	OriginRemote Origin = "remote"
	OriginCache  Origin = "cache"
	// OriginStale marks a snapshot reused because the count request failed.
	OriginStale Origin = "stale_cache"
)

// Authenticator renews record API credentials after an authorization expiry.
type Authenticator interface {
	Refresh(ctx context.Context) error
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context) error

// Refresh calls f.
func (f AuthenticatorFunc) Refresh(ctx context.Context) error { return f(ctx) }

// CollectionInfo describes how one collection was obtained.
type CollectionInfo struct {
	Kind      string    `json:"kind"`
	Origin    Origin    `json:"origin"`
	Requested int       `json:"requested"`
	Rows      int       `json:"rows"`
	Rejected  int       `json:"rejected"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Fetcher reads collections from the record API through a snapshot cache.
// It holds no per-request state; concurrent loads share only published
// snapshots.
type Fetcher struct {
	client recordapi.Client
	store  cache.Store
	policy cache.Policy
	auth   Authenticator
	group  singleflight.Group

	// fetchTimeout bounds a shared list fetch, which outlives any single
	// caller's context.
	fetchTimeout time.Duration
}

// DefaultFetchTimeout bounds a shared full-collection fetch.
const DefaultFetchTimeout = 10 * time.Minute

// NewFetcher creates a Fetcher. auth may be nil, in which case authorization
// expiry is fatal on the first occurrence.
func NewFetcher(client recordapi.Client, store cache.Store, policy cache.Policy, auth Authenticator) *Fetcher {
	return &Fetcher{client: client, store: store, policy: policy, auth: auth, fetchTimeout: DefaultFetchTimeout}
}

func (f *Fetcher) now() time.Time {
	if f.policy.Now != nil {
		return f.policy.Now()
	}
	return time.Now()
}

func (f *Fetcher) refresh() resilience.RefreshFunc {
	if f.auth == nil {
		return nil
	}
	return f.auth.Refresh
}

// LoadVisits returns the validated visit submissions for domain.
func (f *Fetcher) LoadVisits(ctx context.Context, domain string) (*VisitSet, error) {
	rows, info, err := loadRows(ctx, f, domain, KindVisits, f.client.CountVisits, f.client.ListVisits)
	if err != nil {
		return nil, eris.Wrap(err, "source: load visits")
	}
	set := ValidateVisits(rows)
	info.Rejected = set.Rejected
	set.Info = info
	return set, nil
}

// LoadRegistrations returns the validated registration records for domain.
func (f *Fetcher) LoadRegistrations(ctx context.Context, domain string) (*RegistrationSet, error) {
	rows, info, err := loadRows(ctx, f, domain, KindRegistrations, f.client.CountRegistrations, f.client.ListRegistrations)
	if err != nil {
		return nil, eris.Wrap(err, "source: load registrations")
	}
	set := ValidateRegistrations(rows)
	info.Rejected = set.Rejected
	set.Info = info
	return set, nil
}

// loadRows asks the source for a count, reuses the cached snapshot when the
// policy accepts it, and otherwise fetches every row and publishes a new
// snapshot. A snapshot is only published after the full fetch succeeds.
//
// Concurrent callers share one list fetch. The fetch runs detached from any
// caller's cancellation, bounded by fetchTimeout; a caller whose context ends
// returns early while the others keep waiting for the shared result.
func loadRows[T any](
	ctx context.Context,
	f *Fetcher,
	domain, kind string,
	count func(context.Context, string) (int, error),
	list func(context.Context, string) ([]T, error),
) ([]T, CollectionInfo, error) {
	key := cache.Key(domain, kind)
	info := CollectionInfo{Kind: kind}
	log := zap.L().With(zap.String("domain", domain), zap.String("kind", kind))

	snap, err := f.store.Get(ctx, key)
	if err != nil {
		return nil, info, eris.Wrapf(err, "source: read snapshot %s", key)
	}

	requested, err := resilience.WithAuthRefresh(ctx, f.refresh(), func(ctx context.Context) (int, error) {
		return count(ctx, domain)
	})
	if err != nil {
		if resilience.IsTransient(err) && f.policy.IsFresh(snap) {
			log.Warn("source: count failed, using fresh snapshot",
				zap.Time("fetched_at", snap.FetchedAt),
				zap.Error(err),
			)
			rows, derr := cache.Decode[T](snap)
			if derr != nil {
				return nil, info, derr
			}
			info.Origin = OriginStale
			info.Requested = snap.ItemCount
			info.Rows = len(rows)
			info.FetchedAt = snap.FetchedAt
			return rows, info, nil
		}
		return nil, info, eris.Wrapf(err, "source: count %s", kind)
	}
	info.Requested = requested

	if f.policy.IsValid(snap, requested) {
		rows, err := cache.Decode[T](snap)
		if err == nil {
			log.Debug("source: snapshot accepted",
				zap.Int("snapshot_count", snap.ItemCount),
				zap.Int("requested", requested),
			)
			info.Origin = OriginCache
			info.Rows = len(rows)
			info.FetchedAt = snap.FetchedAt
			return rows, info, nil
		}
		log.Warn("source: undecodable snapshot, refetching", zap.Error(err))
	}

	ch := f.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.fetchTimeout)
		defer cancel()

		start := time.Now()
		rows, err := resilience.WithAuthRefresh(fetchCtx, f.refresh(), func(ctx context.Context) ([]T, error) {
			return list(ctx, domain)
		})
		if err != nil {
			return nil, eris.Wrapf(err, "source: list %s", kind)
		}
		fresh, err := cache.NewSnapshot(key, rows, f.now())
		if err != nil {
			return nil, err
		}
		if err := f.store.Put(fetchCtx, fresh); err != nil {
			return nil, eris.Wrapf(err, "source: publish snapshot %s", key)
		}
		log.Info("source: snapshot published",
			zap.Int("rows", len(rows)),
			zap.Duration("elapsed", time.Since(start)),
		)
		return fresh, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, info, eris.Wrapf(ctx.Err(), "source: list %s", kind)
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, info, res.Err
	}
	published := res.Val.(*cache.Snapshot)
	if res.Shared {
		log.Debug("source: joined in-flight fetch")
	}

	rows, err := cache.Decode[T](published)
	if err != nil {
		return nil, info, err
	}
	info.Origin = OriginRemote
	info.Rows = len(rows)
	info.FetchedAt = published.FetchedAt
	return rows, info, nil
}
