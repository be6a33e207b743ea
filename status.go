package canteen

// OrderStatus is the kitchen pipeline state of an order. Values are the wire
// form used in API payloads and pub/sub messages.
type OrderStatus string

const (
	StatusPending       OrderStatus = "PENDING"
	StatusStockVerified OrderStatus = "STOCK_VERIFIED"
	StatusInKitchen     OrderStatus = "IN_KITCHEN"
	StatusReady         OrderStatus = "READY"
	StatusFailed        OrderStatus = "FAILED"
)

// forwardChain is the linear happy path. FAILED sits outside the chain and
// is only reachable through the automated pipeline's failure handling.
var forwardChain = []OrderStatus{StatusPending, StatusStockVerified, StatusInKitchen, StatusReady}

// IsValid reports whether s is one of the five known statuses.
func (s OrderStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusStockVerified, StatusInKitchen, StatusReady, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further automatic transition occurs from s.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusReady || s == StatusFailed
}

func (s OrderStatus) chainIndex() int {
	for i, c := range forwardChain {
		if c == s {
			return i
		}
	}
	return -1
}

// Next returns the status one step forward along the linear chain.
// ok is false when s is FAILED or already at the end of the chain.
func (s OrderStatus) Next() (OrderStatus, bool) {
	i := s.chainIndex()
	if i < 0 || i+1 >= len(forwardChain) {
		return s, false
	}
	return forwardChain[i+1], true
}

// Prev returns the status one step backward along the linear chain.
// ok is false when s is FAILED or already at the start of the chain.
func (s OrderStatus) Prev() (OrderStatus, bool) {
	i := s.chainIndex()
	if i <= 0 {
		return s, false
	}
	return forwardChain[i-1], true
}
