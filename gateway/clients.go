package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/canteenhq/canteen"
)

// Config carries the gateway's upstream and cache settings.
type Config struct {
	StockServiceURL   string
	KitchenServiceURL string
	HTTPTimeout       time.Duration
	StockCacheTTL     time.Duration
	IdempotencyTTL    time.Duration
	EstimatedWaitSecs int
}

// ConfigFromEnv reads the gateway settings.
func ConfigFromEnv() Config {
	return Config{
		StockServiceURL:   canteen.EnvString("CANTEEN_STOCK_SERVICE_URL", "http://localhost:8002"),
		KitchenServiceURL: canteen.EnvString("CANTEEN_KITCHEN_SERVICE_URL", "http://localhost:8003"),
		HTTPTimeout:       canteen.EnvSeconds("CANTEEN_HTTP_TIMEOUT_SECONDS", 5*time.Second),
		StockCacheTTL:     canteen.EnvSeconds("CANTEEN_STOCK_CACHE_TTL_SECONDS", 10*time.Second),
		IdempotencyTTL:    canteen.EnvSeconds("CANTEEN_IDEMPOTENCY_TTL_SECONDS", 24*time.Hour),
		EstimatedWaitSecs: canteen.EnvInt("CANTEEN_ESTIMATED_WAIT_SECONDS", 7),
	}
}

// upstreamReply is a downstream service's response, body fully read.
type upstreamReply struct {
	Status int
	Body   []byte
}

// detail extracts the JSON detail field, falling back to a default.
func (r upstreamReply) detail(fallback string) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(r.Body, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	return fallback
}

// upstreamClient wraps HTTP calls to a sibling service, classifying
// transport failures into the 503/504 taxonomy.
type upstreamClient struct {
	name    string
	baseURL string
	http    *http.Client
}

func newUpstreamClient(name, baseURL string, timeout time.Duration) *upstreamClient {
	return &upstreamClient{
		name:    name,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (u *upstreamClient) do(ctx context.Context, method, path string, body interface{}, headers map[string]string) (upstreamReply, error) {
	var reader io.Reader
	if body != nil {
		ba, err := json.Marshal(body)
		if err != nil {
			return upstreamReply{}, err
		}
		reader = bytes.NewReader(ba)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.baseURL+path, reader)
	if err != nil {
		return upstreamReply{}, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := u.http.Do(req)
	if err != nil {
		return upstreamReply{}, u.classify(err)
	}
	defer resp.Body.Close()
	ba, err := io.ReadAll(resp.Body)
	if err != nil {
		return upstreamReply{}, u.classify(err)
	}
	return upstreamReply{Status: resp.StatusCode, Body: ba}, nil
}

// classify maps transport errors: timeouts become 504, everything else 503.
func (u *upstreamClient) classify(err error) error {
	if ue, ok := err.(*url.Error); ok {
		if ue.Timeout() {
			return canteen.NewError(canteen.UpstreamTimeout, "%s did not respond in time. Please retry.", u.name)
		}
		err = ue.Err
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return canteen.NewError(canteen.UpstreamTimeout, "%s did not respond in time. Please retry.", u.name)
	}
	return canteen.NewError(canteen.UpstreamUnavailable, "%s unreachable: %v", u.name, err)
}

// StockClient calls the stock service.
type StockClient struct {
	*upstreamClient
}

func NewStockClient(baseURL string, timeout time.Duration) *StockClient {
	return &StockClient{newUpstreamClient("Stock Service", baseURL, timeout)}
}

type stockDeductItem struct {
	MenuItemID string `json:"menu_item_id"`
	Quantity   int    `json:"quantity"`
}

type stockDeductRequest struct {
	OrderID   string            `json:"order_id"`
	StudentID string            `json:"student_id"`
	Items     []stockDeductItem `json:"items"`
}

// Deduct forwards the deduction with the idempotency fingerprint attached.
func (s *StockClient) Deduct(ctx context.Context, req stockDeductRequest, fingerprint string) (upstreamReply, error) {
	return s.do(ctx, http.MethodPost, "/stock/deduct", req, map[string]string{
		"Idempotency-Key": fingerprint,
	})
}

// KitchenClient calls the kitchen queue service.
type KitchenClient struct {
	*upstreamClient
}

func NewKitchenClient(baseURL string, timeout time.Duration) *KitchenClient {
	return &KitchenClient{newUpstreamClient("Kitchen Queue", baseURL, timeout)}
}

type kitchenQueueRequest struct {
	OrderID      string            `json:"order_id"`
	StudentID    string            `json:"student_id"`
	Items        []stockDeductItem `json:"items"`
	SpecialNotes string            `json:"special_notes,omitempty"`
}

// Queue dispatches an accepted order to the kitchen.
func (k *KitchenClient) Queue(ctx context.Context, req kitchenQueueRequest) (upstreamReply, error) {
	return k.do(ctx, http.MethodPost, "/kitchen/queue", req, nil)
}

// GetOrder fetches an order's status for the passthrough endpoint.
func (k *KitchenClient) GetOrder(ctx context.Context, orderID string) (upstreamReply, error) {
	return k.do(ctx, http.MethodGet, "/kitchen/orders/"+orderID, nil, nil)
}
