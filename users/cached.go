package users

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// CachedStore layers a read-through, write-through in-memory cache over
// another Store. The cache maps user IDs to value snapshots; entries have no
// TTL and are only replaced or removed by the write path, RefreshEntry, or
// InvalidateCache.
//
// The store stays the source of truth: every mutation goes to the wrapped
// Store first and the cache is only touched after it succeeds. The cache lock
// is never held across a call into the wrapped Store.
type CachedStore struct {
	inner Store

	mu    sync.RWMutex
	cache map[uuid.UUID]User
}

var _ Store = (*CachedStore)(nil)

func NewCachedStore(inner Store) *CachedStore {
	return &CachedStore{
		inner: inner,
		cache: make(map[uuid.UUID]User),
	}
}

func (cs *CachedStore) tryCache(id uuid.UUID) (*User, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	u, ok := cs.cache[id]
	if !ok {
		return nil, false
	}
	out := u.clone()
	return &out, true
}

func (cs *CachedStore) putCache(u User) {
	cs.mu.Lock()
	cs.cache[u.ID] = u.clone()
	userCacheEntries.Set(float64(len(cs.cache)))
	cs.mu.Unlock()
}

func (cs *CachedStore) dropCache(id uuid.UUID) {
	cs.mu.Lock()
	delete(cs.cache, id)
	userCacheEntries.Set(float64(len(cs.cache)))
	cs.mu.Unlock()
}

func (cs *CachedStore) InitSchema(ctx context.Context) error {
	return cs.inner.InitSchema(ctx)
}

// ListAll always reads through to the store, then repairs the cache with
// every row returned. IDs cached earlier but missing from the fresh listing
// are left in place; InvalidateCache exists for clearing out that kind of
// drift.
func (cs *CachedStore) ListAll(ctx context.Context) ([]User, error) {
	all, err := cs.inner.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	cs.mu.Lock()
	for _, u := range all {
		cs.cache[u.ID] = u.clone()
	}
	userCacheEntries.Set(float64(len(cs.cache)))
	cs.mu.Unlock()

	return all, nil
}

// GetByID serves hits straight from the cache. On a miss the store is
// consulted, and a present row is cached on the way out; absent rows are
// never cached, so repeated lookups of an unknown id hit the store every
// time.
//
// A concurrent Delete can land between the store read and the cache insert,
// briefly re-caching a row that no longer exists. The store remains
// authoritative; the stale entry lasts until the next write for that id or an
// explicit refresh. Closing the window would require holding the cache lock
// across a store call, which this type never does.
func (cs *CachedStore) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	if u, ok := cs.tryCache(id); ok {
		userCacheHitsTotal.Inc()
		return u, nil
	}
	userCacheMissesTotal.Inc()

	u, err := cs.inner.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, nil
	}
	cs.putCache(*u)
	return u, nil
}

func (cs *CachedStore) Create(ctx context.Context, params CreateUserParams) (*User, error) {
	u, err := cs.inner.Create(ctx, params)
	if err != nil {
		return nil, err
	}
	cs.putCache(*u)
	return u, nil
}

func (cs *CachedStore) Update(ctx context.Context, id uuid.UUID, params UpdateUserParams) (*User, error) {
	u, err := cs.inner.Update(ctx, id, params)
	if err != nil {
		return nil, err
	}
	if u == nil {
		// the row is gone; make sure we are not serving a leftover entry
		cs.dropCache(id)
		return nil, nil
	}
	cs.putCache(*u)
	return u, nil
}

func (cs *CachedStore) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	found, err := cs.inner.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if found {
		cs.dropCache(id)
	}
	return found, nil
}

// RefreshEntry reconciles the cache entry for a single id against the store:
// the entry is overwritten when the row exists and removed when it does not.
// Returns the store's view of the user.
func (cs *CachedStore) RefreshEntry(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := cs.inner.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		cs.dropCache(id)
		return nil, nil
	}
	cs.putCache(*u)
	return u, nil
}

// InvalidateCache drops every cached entry. It never touches the store;
// subsequent reads repopulate on demand.
func (cs *CachedStore) InvalidateCache() {
	cs.mu.Lock()
	cs.cache = make(map[uuid.UUID]User)
	userCacheEntries.Set(0)
	cs.mu.Unlock()
}

// CacheSize returns the number of currently cached entries.
func (cs *CachedStore) CacheSize() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.cache)
}
