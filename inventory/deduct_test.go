package inventory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/canteenhq/canteen"
	"github.com/canteenhq/canteen/cassandra"
	"github.com/canteenhq/canteen/redis"
)

// memStore is an in-memory inventory with the same conditional-update
// semantics as the Cassandra store.
type memStore struct {
	mu    sync.Mutex
	rows  map[string]cassandra.InventoryRow
	audit []cassandra.AuditEntry

	// failCAS forces every conditional update to report not-applied.
	failCAS bool
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]cassandra.InventoryRow)}
}

func (s *memStore) seed(id string, stock int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[id] = cassandra.InventoryRow{MenuItemID: id, CurrentStock: stock, InitialStock: stock, Ver: 1}
}

func (s *memStore) Get(ctx context.Context, menuItemID string) (bool, cassandra.InventoryRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[menuItemID]
	return ok, row, nil
}

func (s *memStore) DeductCAS(ctx context.Context, menuItemID string, newStock int, expectedVer int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCAS {
		return false, nil
	}
	row, ok := s.rows[menuItemID]
	if !ok || row.Ver != expectedVer {
		return false, nil
	}
	row.CurrentStock = newStock
	row.Ver++
	row.UpdatedAt = time.Now().UTC()
	s.rows[menuItemID] = row
	return true, nil
}

func (s *memStore) AppendAudit(ctx context.Context, entry cassandra.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, entry)
	return nil
}

func fastConfig() Config {
	return Config{
		MaxAttempts:   5,
		BaseDelay:     time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		Jitter:        time.Millisecond,
		StockCacheTTL: 10 * time.Second,
	}
}

func TestDeductHappyPath(t *testing.T) {
	store := newMemStore()
	store.seed("latte", 10)
	engine := NewEngine(store, nil, fastConfig())

	remaining, err := engine.Deduct(context.Background(), "o1", "s1", "latte", 3)
	if err != nil {
		t.Fatal(err)
	}
	if remaining != 7 {
		t.Errorf("remaining = %d, want 7", remaining)
	}
	if len(store.audit) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(store.audit))
	}
	if store.audit[0].OrderID != "o1" || store.audit[0].Quantity != 3 {
		t.Errorf("audit entry mismatch: %+v", store.audit[0])
	}
}

func TestDeductUnknownItem(t *testing.T) {
	engine := NewEngine(newMemStore(), nil, fastConfig())
	_, err := engine.Deduct(context.Background(), "o1", "s1", "ghost", 1)
	ce := canteen.AsError(err)
	if ce.Code != canteen.NotFound {
		t.Errorf("code = %v, want NotFound (err: %v)", ce.Code, err)
	}
}

func TestDeductInsufficientStockNotRetried(t *testing.T) {
	store := newMemStore()
	store.seed("latte", 2)
	engine := NewEngine(store, nil, fastConfig())

	_, err := engine.Deduct(context.Background(), "o1", "s1", "latte", 5)
	ce := canteen.AsError(err)
	if ce.Code != canteen.Conflict {
		t.Fatalf("code = %v, want Conflict (err: %v)", ce.Code, err)
	}
	// The row is untouched and no audit was written.
	_, row, _ := store.Get(context.Background(), "latte")
	if row.CurrentStock != 2 || row.Ver != 1 {
		t.Errorf("row mutated: %+v", row)
	}
	if len(store.audit) != 0 {
		t.Errorf("audit entries = %d, want 0", len(store.audit))
	}
}

func TestDeductRetriesExhaustOnPersistentConflict(t *testing.T) {
	store := newMemStore()
	store.seed("latte", 10)
	store.failCAS = true
	engine := NewEngine(store, nil, fastConfig())

	_, err := engine.Deduct(context.Background(), "o1", "s1", "latte", 1)
	ce := canteen.AsError(err)
	if ce.Code != canteen.Conflict {
		t.Fatalf("code = %v, want Conflict (err: %v)", ce.Code, err)
	}
}

// Forty concurrent single-unit orders against five units of stock: exactly
// five succeed, the rest fail, and the audit trail matches the winners.
func TestDeductConcurrentOversell(t *testing.T) {
	store := newMemStore()
	store.seed("latte", 5)
	engine := NewEngine(store, nil, fastConfig())

	const buyers = 40
	var wg sync.WaitGroup
	results := make(chan error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := engine.Deduct(context.Background(), fmt.Sprintf("o%d", n), "s1", "latte", 1)
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	succeeded, failed := 0, 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			failed++
		}
	}
	if succeeded != 5 {
		t.Errorf("succeeded = %d, want 5", succeeded)
	}
	if failed != buyers-5 {
		t.Errorf("failed = %d, want %d", failed, buyers-5)
	}
	_, row, _ := store.Get(context.Background(), "latte")
	if row.CurrentStock != 0 {
		t.Errorf("final stock = %d, want 0", row.CurrentStock)
	}
	if len(store.audit) != 5 {
		t.Errorf("audit entries = %d, want 5", len(store.audit))
	}
}

func TestRefreshCacheWritesEstimate(t *testing.T) {
	store := newMemStore()
	store.seed("latte", 10)
	cache := redis.NewMockClient()
	engine := NewEngine(store, cache, fastConfig())

	if _, err := engine.Deduct(context.Background(), "o1", "s1", "latte", 4); err != nil {
		t.Fatal(err)
	}
	found, value, err := cache.Get(context.Background(), StockCacheKey("latte"))
	if err != nil || !found {
		t.Fatalf("cache miss after deduction (found=%v err=%v)", found, err)
	}
	if value != "6" {
		t.Errorf("cached stock = %q, want 6", value)
	}
}
