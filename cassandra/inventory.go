package cassandra

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/canteenhq/canteen"
)

// InventoryRow is one menu item's stock record. Ver is the optimistic-lock
// predicate: every committed mutation increments it by exactly one.
type InventoryRow struct {
	MenuItemID   string    `json:"menu_item_id"`
	CurrentStock int       `json:"current_stock"`
	InitialStock int       `json:"initial_stock"`
	Ver          int       `json:"version_id"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AuditEntry is one row of the append-only deduction log.
type AuditEntry struct {
	ID         canteen.UUID
	OrderID    string
	MenuItemID string
	Quantity   int
	StudentID  string
	CreatedAt  time.Time
}

type inventoryStore struct{}

// NewInventoryStore manages the inventory and stock_deduction_log tables.
// This store is the only code permitted to change Ver.
func NewInventoryStore() *inventoryStore {
	return &inventoryStore{}
}

// Get reads one inventory row. found=false when the menu item is unknown.
func (s *inventoryStore) Get(ctx context.Context, menuItemID string) (bool, InventoryRow, error) {
	if connection == nil {
		return false, InventoryRow{}, fmt.Errorf("Cassandra connection is closed, 'call OpenConnection(config) to open it")
	}
	selectStatement := fmt.Sprintf("SELECT current_stock, initial_stock, ver, updated_at FROM %s.inventory WHERE menu_item_id = ?;", connection.Config.Keyspace)
	row := InventoryRow{MenuItemID: menuItemID}
	err := connection.Session.Query(selectStatement, menuItemID).WithContext(ctx).
		Scan(&row.CurrentStock, &row.InitialStock, &row.Ver, &row.UpdatedAt)
	if err == gocql.ErrNotFound {
		return false, InventoryRow{}, nil
	}
	if err != nil {
		return false, InventoryRow{}, err
	}
	return true, row, nil
}

// List reads all inventory rows.
func (s *inventoryStore) List(ctx context.Context) ([]InventoryRow, error) {
	if connection == nil {
		return nil, fmt.Errorf("Cassandra connection is closed, 'call OpenConnection(config) to open it")
	}
	selectStatement := fmt.Sprintf("SELECT menu_item_id, current_stock, initial_stock, ver, updated_at FROM %s.inventory;", connection.Config.Keyspace)
	iter := connection.Session.Query(selectStatement).WithContext(ctx).Iter()
	var rows []InventoryRow
	var row InventoryRow
	for iter.Scan(&row.MenuItemID, &row.CurrentStock, &row.InitialStock, &row.Ver, &row.UpdatedAt) {
		rows = append(rows, row)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return rows, nil
}

// DeductCAS is the single-statement conditional update: it sets the new
// stock and bumps Ver only when the row's Ver still equals expectedVer.
// applied=false means another writer won the race.
func (s *inventoryStore) DeductCAS(ctx context.Context, menuItemID string, newStock int, expectedVer int) (bool, error) {
	if connection == nil {
		return false, fmt.Errorf("Cassandra connection is closed, 'call OpenConnection(config) to open it")
	}
	updateStatement := fmt.Sprintf("UPDATE %s.inventory SET current_stock = ?, ver = ?, updated_at = ? WHERE menu_item_id = ? IF ver = ?;", connection.Config.Keyspace)
	applied, err := connection.Session.Query(updateStatement,
		newStock, expectedVer+1, time.Now().UTC(), menuItemID, expectedVer).WithContext(ctx).
		ScanCAS()
	if err != nil {
		return false, err
	}
	return applied, nil
}

// AppendAudit appends one deduction to the audit log.
func (s *inventoryStore) AppendAudit(ctx context.Context, entry AuditEntry) error {
	if connection == nil {
		return fmt.Errorf("Cassandra connection is closed, 'call OpenConnection(config) to open it")
	}
	insertStatement := fmt.Sprintf("INSERT INTO %s.stock_deduction_log (id, order_id, menu_item_id, quantity, student_id, created_at) VALUES(?,?,?,?,?,?);", connection.Config.Keyspace)
	return connection.Session.Query(insertStatement,
		gocql.UUID(entry.ID), entry.OrderID, entry.MenuItemID, entry.Quantity, entry.StudentID, entry.CreatedAt.UTC()).WithContext(ctx).
		Exec()
}

// Seed upserts a row at its initial stock with Ver reset to 1. Operator and
// test tooling only.
func (s *inventoryStore) Seed(ctx context.Context, menuItemID string, initialStock int) error {
	if connection == nil {
		return fmt.Errorf("Cassandra connection is closed, 'call OpenConnection(config) to open it")
	}
	insertStatement := fmt.Sprintf("INSERT INTO %s.inventory (menu_item_id, current_stock, initial_stock, ver, updated_at) VALUES(?,?,?,?,?);", connection.Config.Keyspace)
	return connection.Session.Query(insertStatement,
		menuItemID, initialStock, initialStock, 1, time.Now().UTC()).WithContext(ctx).
		Exec()
}
