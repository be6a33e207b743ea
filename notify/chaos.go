// Package notify is the notification hub: order status updates flow in via
// the publish endpoint, fan out over pub/sub channels and reach clients as
// server-sent event streams. A cache-backed chaos switch can take the hub
// down on purpose for resilience drills.
package notify

import (
	"context"
	"strings"

	"github.com/canteenhq/canteen"
)

// Chaos reads and writes the hub's failure-injection flag. The flag lives in
// the shared cache so every hub replica honors it at once.
type Chaos struct {
	cache canteen.Cache
	key   string
}

// ChaosFlagKey reads CANTEEN_CHAOS_FLAG_KEY.
func ChaosFlagKey() string {
	return canteen.EnvString("CANTEEN_CHAOS_FLAG_KEY", "chaos:notification-hub")
}

func NewChaos(cache canteen.Cache, key string) *Chaos {
	return &Chaos{cache: cache, key: key}
}

// Enabled reports whether chaos mode is on. Cache errors read as off: a
// flaky cache must not take the hub down by accident.
func (ch *Chaos) Enabled(ctx context.Context) bool {
	found, value, err := ch.cache.Get(ctx, ch.key)
	if err != nil || !found {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "enabled":
		return true
	}
	return false
}

// Enable turns chaos mode on. The flag has no TTL; it stays until disabled.
func (ch *Chaos) Enable(ctx context.Context) error {
	return ch.cache.Set(ctx, ch.key, "1", 0)
}

// Disable turns chaos mode off.
func (ch *Chaos) Disable(ctx context.Context) error {
	return ch.cache.Delete(ctx, []string{ch.key})
}
