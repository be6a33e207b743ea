// Package inventory implements the deduction engine: compare-and-swap stock
// updates with bounded exponential-backoff retry, the append-only audit
// trail, and the advisory stock-cache refresh.
package inventory

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"math/rand"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/canteenhq/canteen"
	"github.com/canteenhq/canteen/cassandra"
	"github.com/canteenhq/canteen/metrics"
)

// Store is the inventory system of record consumed by the engine. The
// cassandra package provides the production implementation.
type Store interface {
	Get(ctx context.Context, menuItemID string) (bool, cassandra.InventoryRow, error)
	DeductCAS(ctx context.Context, menuItemID string, newStock int, expectedVer int) (bool, error)
	AppendAudit(ctx context.Context, entry cassandra.AuditEntry) error
}

// StaleVersionError signals that the conditional update affected zero rows
// because another writer incremented the version first. It is the only
// condition the engine retries; keeping it a dedicated type prevents the
// retry loop from swallowing unrelated failures.
type StaleVersionError struct {
	MenuItemID  string
	ExpectedVer int
}

func (e StaleVersionError) Error() string {
	return fmt.Sprintf("optimistic lock conflict: inventory version for '%s' moved past %d concurrently", e.MenuItemID, e.ExpectedVer)
}

// StockCacheKey is the advisory cache key for a menu item's stock estimate.
func StockCacheKey(menuItemID string) string {
	return "stock:" + menuItemID
}

// Config carries the retry policy and cache TTL.
type Config struct {
	// MaxAttempts bounds CAS attempts, first try included.
	MaxAttempts int
	// BaseDelay, MaxDelay, Jitter shape the backoff before each retry:
	// min(BaseDelay * 2^attempt, MaxDelay) + U(0, Jitter).
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Jitter    time.Duration
	// StockCacheTTL is the advisory cache entry lifetime.
	StockCacheTTL time.Duration
}

// DefaultConfig returns the policy from the env, with the platform defaults
// (5 attempts, 50ms base, 1s cap, 50ms jitter, 10s cache TTL).
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   canteen.EnvInt("CANTEEN_OPT_LOCK_MAX_RETRIES", 5),
		BaseDelay:     time.Duration(canteen.EnvInt("CANTEEN_OPT_LOCK_BASE_DELAY_MS", 50)) * time.Millisecond,
		MaxDelay:      time.Duration(canteen.EnvInt("CANTEEN_OPT_LOCK_MAX_DELAY_MS", 1000)) * time.Millisecond,
		Jitter:        time.Duration(canteen.EnvInt("CANTEEN_OPT_LOCK_JITTER_MS", 50)) * time.Millisecond,
		StockCacheTTL: canteen.EnvSeconds("CANTEEN_STOCK_CACHE_TTL_SECONDS", 10*time.Second),
	}
}

// Engine performs deductions against the store and keeps the stock cache
// fresh after each success.
type Engine struct {
	store  Store
	cache  canteen.Cache
	config Config
}

// NewEngine wires the engine. cache may be nil in contexts with no advisory
// cache (the refresh is skipped).
func NewEngine(store Store, cache canteen.Cache, config Config) *Engine {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &Engine{store: store, cache: cache, config: config}
}

// Deduct atomically removes quantity from a menu item's stock.
//
// Read the row, reject unknown items and insufficient stock (neither is
// retried), then conditionally update predicated on the snapshot version.
// A lost race raises the stale-version signal and the attempt is retried
// with capped exponential backoff plus jitter; exhaustion surfaces Conflict.
// On success the audit entry is appended and the new stock returned.
func (e *Engine) Deduct(ctx context.Context, orderID, studentID, menuItemID string, quantity int) (int, error) {
	if quantity < 1 {
		return 0, canteen.NewError(canteen.Validation, "quantity must be at least 1")
	}

	var newStock int
	attempt := 0
	b := retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		delay := e.config.BaseDelay * (1 << attempt)
		if delay > e.config.MaxDelay {
			delay = e.config.MaxDelay
		}
		if e.config.Jitter > 0 {
			delay += time.Duration(rand.Int63n(int64(e.config.Jitter)))
		}
		return delay, false
	})

	err := retry.Do(ctx, retry.WithMaxRetries(uint64(e.config.MaxAttempts-1), b), func(ctx context.Context) error {
		n, err := e.deductOnce(ctx, orderID, studentID, menuItemID, quantity)
		if err != nil {
			var stale StaleVersionError
			if asStale(err, &stale) {
				metrics.StaleVersionRetries.Inc()
				log.Warn(fmt.Sprintf("stale version on attempt %d for %s, retrying", attempt+1, menuItemID))
				return retry.RetryableError(err)
			}
			return err
		}
		newStock = n
		return nil
	})
	if err != nil {
		var stale StaleVersionError
		if asStale(err, &stale) {
			metrics.Deductions.WithLabelValues("conflict").Inc()
			return 0, canteen.NewError(canteen.Conflict,
				"stock deduction for '%s' failed after %d attempts: version conflicts persisted", menuItemID, e.config.MaxAttempts)
		}
		return 0, err
	}

	metrics.Deductions.WithLabelValues("ok").Inc()
	e.RefreshCache(ctx, menuItemID, newStock)
	return newStock, nil
}

// deductOnce runs one snapshot/CAS/audit round.
func (e *Engine) deductOnce(ctx context.Context, orderID, studentID, menuItemID string, quantity int) (int, error) {
	found, row, err := e.store.Get(ctx, menuItemID)
	if err != nil {
		return 0, err
	}
	if !found {
		metrics.Deductions.WithLabelValues("not_found").Inc()
		return 0, canteen.NewError(canteen.NotFound, "Menu item '%s' not found in inventory.", menuItemID)
	}
	if row.CurrentStock < quantity {
		metrics.Deductions.WithLabelValues("insufficient").Inc()
		return 0, canteen.NewError(canteen.Conflict,
			"Insufficient stock for '%s': requested=%d, available=%d", menuItemID, quantity, row.CurrentStock)
	}

	newStock := row.CurrentStock - quantity
	applied, err := e.store.DeductCAS(ctx, menuItemID, newStock, row.Ver)
	if err != nil {
		return 0, err
	}
	if !applied {
		// Another transaction won the race; nothing to roll back, the
		// conditional update left the row untouched.
		return 0, StaleVersionError{MenuItemID: menuItemID, ExpectedVer: row.Ver}
	}

	if err := e.store.AppendAudit(ctx, cassandra.AuditEntry{
		ID:         canteen.NewUUID(),
		OrderID:    orderID,
		MenuItemID: menuItemID,
		Quantity:   quantity,
		StudentID:  studentID,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		// The deduction stands; surface the gap rather than hide it.
		return 0, fmt.Errorf("stock deducted but audit append failed for order %s: %w", orderID, err)
	}
	return newStock, nil
}

// RefreshCache writes the authoritative stock into the advisory cache with a
// fresh TTL. Cache failures are tolerated and logged.
func (e *Engine) RefreshCache(ctx context.Context, menuItemID string, stock int) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Set(ctx, StockCacheKey(menuItemID), fmt.Sprintf("%d", stock), e.config.StockCacheTTL); err != nil {
		log.Error(fmt.Sprintf("stock cache refresh failed for %s, details: %v", menuItemID, err))
	}
}

func asStale(err error, target *StaleVersionError) bool {
	return errors.As(err, target)
}
