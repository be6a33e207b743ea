package cassandra

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/canteenhq/canteen"
)

// Order tracks one order through the kitchen pipeline. Status mutations
// after creation belong exclusively to the kitchen state machine.
type Order struct {
	ID           string              `json:"order_id"`
	StudentID    string              `json:"student_id"`
	Status       canteen.OrderStatus `json:"status"`
	SpecialNotes string              `json:"special_notes,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// OrderItem is one line of an order.
type OrderItem struct {
	OrderID    string `json:"order_id"`
	MenuItemID string `json:"menu_item_id"`
	Quantity   int    `json:"quantity"`
}

type orderRepository struct{}

// NewOrderRepository manages the orders and order_items tables.
func NewOrderRepository() *orderRepository {
	return &orderRepository{}
}

// Add persists a new order and its items in PENDING.
func (r *orderRepository) Add(ctx context.Context, order Order, items []OrderItem) error {
	if connection == nil {
		return fmt.Errorf("Cassandra connection is closed, 'call OpenConnection(config) to open it")
	}
	now := time.Now().UTC()
	insertStatement := fmt.Sprintf("INSERT INTO %s.orders (id, student_id, status, special_notes, created_at, updated_at) VALUES(?,?,?,?,?,?);", connection.Config.Keyspace)
	if err := connection.Session.Query(insertStatement,
		order.ID, order.StudentID, string(canteen.StatusPending), order.SpecialNotes, now, now).WithContext(ctx).
		Exec(); err != nil {
		return err
	}
	itemStatement := fmt.Sprintf("INSERT INTO %s.order_items (order_id, id, menu_item_id, quantity) VALUES(?,?,?,?);", connection.Config.Keyspace)
	for _, it := range items {
		if err := connection.Session.Query(itemStatement,
			order.ID, gocql.UUID(canteen.NewUUID()), it.MenuItemID, it.Quantity).WithContext(ctx).
			Exec(); err != nil {
			return err
		}
	}
	return nil
}

// Get reads one order. found=false when the id is unknown.
func (r *orderRepository) Get(ctx context.Context, orderID string) (bool, Order, error) {
	if connection == nil {
		return false, Order{}, fmt.Errorf("Cassandra connection is closed, 'call OpenConnection(config) to open it")
	}
	selectStatement := fmt.Sprintf("SELECT student_id, status, special_notes, created_at, updated_at FROM %s.orders WHERE id = ?;", connection.Config.Keyspace)
	o := Order{ID: orderID}
	var status string
	err := connection.Session.Query(selectStatement, orderID).WithContext(ctx).
		Scan(&o.StudentID, &status, &o.SpecialNotes, &o.CreatedAt, &o.UpdatedAt)
	if err == gocql.ErrNotFound {
		return false, Order{}, nil
	}
	if err != nil {
		return false, Order{}, err
	}
	o.Status = canteen.OrderStatus(status)
	return true, o, nil
}

// UpdateStatus persists a status transition with a fresh updated_at.
func (r *orderRepository) UpdateStatus(ctx context.Context, orderID string, status canteen.OrderStatus) error {
	if connection == nil {
		return fmt.Errorf("Cassandra connection is closed, 'call OpenConnection(config) to open it")
	}
	updateStatement := fmt.Sprintf("UPDATE %s.orders SET status = ?, updated_at = ? WHERE id = ?;", connection.Config.Keyspace)
	return connection.Session.Query(updateStatement,
		string(status), time.Now().UTC(), orderID).WithContext(ctx).
		Exec()
}
