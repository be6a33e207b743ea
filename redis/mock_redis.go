package redis

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/canteenhq/canteen"
)

// MockClient is an in-memory stand-in for the shared Redis used by package
// tests. It honors expirations lazily on read and implements the same
// contracts as Client: canteen.Cache, canteen.Limiter and canteen.PubSub.
type MockClient struct {
	mu      sync.Mutex
	lookup  map[string]mockEntry
	windows map[string][]float64
	subs    map[string][]*mockSubscription
}

type mockEntry struct {
	value     string
	expiresAt time.Time
}

// NewMockClient returns a new in-memory mock client.
func NewMockClient() *MockClient {
	return &MockClient{
		lookup:  make(map[string]mockEntry),
		windows: make(map[string][]float64),
		subs:    make(map[string][]*mockSubscription),
	}
}

func (m *MockClient) Ping(ctx context.Context) error { return nil }

func (m *MockClient) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	if expiration < 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e := mockEntry{value: value}
	if expiration > 0 {
		e.expiresAt = time.Now().Add(expiration)
	}
	m.lookup[key] = e
	return nil
}

func (m *MockClient) Get(ctx context.Context, key string) (bool, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup[key]
	if !ok {
		return false, "", nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(m.lookup, key)
		return false, "", nil
	}
	return true, e.value, nil
}

func (m *MockClient) SetStruct(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	ba, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return m.Set(ctx, key, string(ba), expiration)
}

func (m *MockClient) GetStruct(ctx context.Context, key string, target interface{}) (bool, error) {
	found, s, err := m.Get(ctx, key)
	if !found || err != nil {
		return false, err
	}
	return true, json.Unmarshal([]byte(s), target)
}

func (m *MockClient) Delete(ctx context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.lookup, k)
	}
	return nil
}

// Observe mirrors the pipelined prune/count/add/expire batch.
func (m *MockClient) Observe(ctx context.Context, key string, now float64, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	windowStart := now - window.Seconds()
	kept := m.windows[key][:0]
	for _, ts := range m.windows[key] {
		if ts >= windowStart {
			kept = append(kept, ts)
		}
	}
	count := int64(len(kept))
	m.windows[key] = append(kept, now)
	return count, nil
}

func (m *MockClient) Publish(ctx context.Context, channel string, payload string) error {
	m.mu.Lock()
	subs := append([]*mockSubscription(nil), m.subs[channel]...)
	m.mu.Unlock()
	for _, s := range subs {
		select {
		case s.msgs <- payload:
		default:
			// Subscriber not draining; ephemeral delivery drops it.
		}
	}
	return nil
}

func (m *MockClient) Subscribe(ctx context.Context, channel string) (canteen.Subscription, error) {
	s := &mockSubscription{
		owner:   m,
		channel: channel,
		msgs:    make(chan string, 16),
	}
	m.mu.Lock()
	m.subs[channel] = append(m.subs[channel], s)
	m.mu.Unlock()
	return s, nil
}

// SubscriberCount reports live subscriptions for channel; used by tests to
// assert release on disconnect.
func (m *MockClient) SubscriberCount(channel string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[channel])
}

type mockSubscription struct {
	owner   *MockClient
	channel string
	msgs    chan string
}

func (s *mockSubscription) Poll(ctx context.Context, timeout time.Duration) (string, bool, error) {
	select {
	case msg := <-s.msgs:
		return msg, true, nil
	case <-time.After(timeout):
		return "", false, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

func (s *mockSubscription) Close() error {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	subs := s.owner.subs[s.channel]
	for i, other := range subs {
		if other == s {
			s.owner.subs[s.channel] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	return nil
}
