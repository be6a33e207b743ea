package kitchen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/canteenhq/canteen"
)

// hubNotifier posts state changes to the notification hub's publish
// endpoint. Callers treat failures as non-fatal.
type hubNotifier struct {
	baseURL string
	http    *http.Client
}

// NewHubNotifier wires the notifier against the hub URL from
// CANTEEN_NOTIFICATION_HUB_URL.
func NewHubNotifier() *hubNotifier {
	return &hubNotifier{
		baseURL: canteen.EnvString("CANTEEN_NOTIFICATION_HUB_URL", "http://localhost:8005"),
		http:    &http.Client{Timeout: 3 * time.Second},
	}
}

func (n *hubNotifier) Publish(ctx context.Context, orderID string, status canteen.OrderStatus, studentID string) error {
	payload, err := json.Marshal(map[string]string{
		"order_id":   orderID,
		"status":     string(status),
		"student_id": studentID,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/notifications/publish", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notification hub returned %d", resp.StatusCode)
	}
	return nil
}
