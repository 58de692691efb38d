package outbox

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twmb/murmur3"
)

const typeStoreTimeout = 10 * time.Second

// TypeCode hashes a fully-qualified type name into its compact persisted
// code using MurmurHash3.
func TypeCode(typeName string) int64 {
	return int64(murmur3.Sum64([]byte(typeName)))
}

// TypeResolver maps logical type names to compact numeric codes and back,
// persisting unknown types on first sight and caching the table in memory.
//
// GetCode never blocks on a cache miss: the code is the Murmur3 hash of the
// name, computed locally, while persistence happens asynchronously under a
// single-flight guard. Insert races are first-writer-wins.
type TypeResolver struct {
	store  TypeStore
	logger Logger

	mu     sync.RWMutex
	byCode map[int64]string
	byName map[string]int64

	writing atomic.Bool
}

// NewTypeResolver creates a resolver backed by the given store.
func NewTypeResolver(store TypeStore, logger Logger) *TypeResolver {
	if logger == nil {
		logger = NopLogger{}
	}

	return &TypeResolver{
		store:  store,
		logger: logger,
		byCode: make(map[int64]string),
		byName: make(map[string]int64),
	}
}

// GetCode returns the numeric code for a type name. On a cache miss the
// hash is computed locally and the (code, name) pair is persisted in the
// background; the caller never waits for the store.
func (r *TypeResolver) GetCode(ctx context.Context, typeName string) (int64, error) {
	if typeName == "" {
		return 0, ErrTypeNameRequired
	}

	r.mu.RLock()
	code, ok := r.byName[typeName]
	r.mu.RUnlock()
	if ok {
		return code, nil
	}

	code = TypeCode(typeName)
	r.persistAsync(ctx, code, typeName)

	return code, nil
}

// GetTypeName returns the type name for a code. On a cache miss it forces
// one cache reload before falling back to the code rendered as a string.
func (r *TypeResolver) GetTypeName(ctx context.Context, code int64) (string, error) {
	r.mu.RLock()
	name, ok := r.byCode[code]
	r.mu.RUnlock()
	if ok {
		return name, nil
	}

	if err := r.Reload(ctx); err != nil {
		return "", err
	}

	r.mu.RLock()
	name, ok = r.byCode[code]
	r.mu.RUnlock()
	if ok {
		return name, nil
	}

	return strconv.FormatInt(code, 10), nil
}

// Reload replaces the in-memory cache with the persisted type table.
func (r *TypeResolver) Reload(ctx context.Context) error {
	types, err := r.store.LoadTypes(ctx)
	if err != nil {
		return err
	}

	byCode := make(map[int64]string, len(types))
	byName := make(map[string]int64, len(types))
	for code, name := range types {
		byCode[code] = name
		byName[name] = code
	}

	r.mu.Lock()
	r.byCode = byCode
	r.byName = byName
	r.mu.Unlock()

	return nil
}

// persistAsync writes the pair and invalidates the cache in the background.
// The compare-and-swap flag serializes concurrent first-write races without
// blocking readers; losers simply reuse the locally computed hash.
func (r *TypeResolver) persistAsync(ctx context.Context, code int64, typeName string) {
	if !r.writing.CompareAndSwap(false, true) {
		return
	}

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), typeStoreTimeout)
	go func() {
		defer cancel()
		defer r.writing.Store(false)

		if err := r.store.InsertType(persistCtx, code, typeName); err != nil {
			r.logger.Warn("outbox type insert failed", "type", typeName, "err", err)

			return
		}
		if err := r.Reload(persistCtx); err != nil {
			r.logger.Warn("outbox type cache reload failed", "err", err)
		}
	}()
}
