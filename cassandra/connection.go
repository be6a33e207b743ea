// Package cassandra contains the system-of-record stores: the inventory
// rows with their deduction audit log, the kitchen's orders, and the
// identity provider's users. Each service opens its own keyspace; schema is
// bootstrapped on open.
package cassandra

import (
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"

	"github.com/canteenhq/canteen"
)

// Config contains configuration for connecting to a Cassandra cluster and a
// service keyspace.
type Config struct {
	// ClusterHosts lists contact points for the Cassandra cluster.
	ClusterHosts []string
	// Keyspace is the keyspace used for this service's tables.
	Keyspace string
	// Consistency is the default consistency level for queries.
	Consistency gocql.Consistency
	// ConnectionTimeout is the session connection timeout.
	ConnectionTimeout time.Duration
	// Authenticator is used when the cluster requires authentication.
	Authenticator gocql.Authenticator
	// ReplicationClause defines the keyspace replication (e.g., SimpleStrategy).
	ReplicationClause string
	// Schema lists CREATE TABLE statements executed on open. Use the
	// per-store schema vars (InventorySchema, OrdersSchema, UsersSchema).
	// Statements may reference the keyspace as %s.
	Schema []string
}

// ConfigFromEnv reads the cluster settings every service recognizes; the
// caller supplies its keyspace default and schema.
func ConfigFromEnv(keyspaceDefault string, schema []string) Config {
	return Config{
		ClusterHosts:      []string{canteen.EnvString("CANTEEN_CASSANDRA_HOST", "localhost")},
		Keyspace:          canteen.EnvString("CANTEEN_CASSANDRA_KEYSPACE", keyspaceDefault),
		ConnectionTimeout: canteen.EnvSeconds("CANTEEN_CASSANDRA_CONNECT_TIMEOUT_SECONDS", 10*time.Second),
		Schema:            schema,
	}
}

// InventorySchema bootstraps the stock service keyspace.
var InventorySchema = []string{
	"CREATE TABLE IF NOT EXISTS %s.inventory (menu_item_id text PRIMARY KEY, current_stock int, initial_stock int, ver int, updated_at timestamp);",
	"CREATE TABLE IF NOT EXISTS %s.stock_deduction_log (id UUID, order_id text, menu_item_id text, quantity int, student_id text, created_at timestamp, PRIMARY KEY(menu_item_id, id));",
}

// OrdersSchema bootstraps the kitchen keyspace.
var OrdersSchema = []string{
	"CREATE TABLE IF NOT EXISTS %s.orders (id text PRIMARY KEY, student_id text, status text, special_notes text, created_at timestamp, updated_at timestamp);",
	"CREATE TABLE IF NOT EXISTS %s.order_items (order_id text, id UUID, menu_item_id text, quantity int, PRIMARY KEY(order_id, id));",
}

// UsersSchema bootstraps the identity keyspace.
var UsersSchema = []string{
	"CREATE TABLE IF NOT EXISTS %s.users (student_id text PRIMARY KEY, id UUID, email text, hashed_password text, full_name text, is_admin boolean, is_active boolean, created_at timestamp);",
	"CREATE TABLE IF NOT EXISTS %s.users_by_email (email text PRIMARY KEY, student_id text);",
}

// Connection wraps a Cassandra session and its configuration.
type Connection struct {
	Session *gocql.Session
	Config
}

var connection *Connection
var mux sync.Mutex

// IsConnectionInstantiated reports whether a global Connection has been created.
func IsConnectionInstantiated() bool {
	return connection != nil
}

// OpenConnection returns the existing global Connection or opens a new one
// using the provided config, creating the keyspace and schema if needed.
func OpenConnection(config Config) (*Connection, error) {
	if connection != nil {
		return connection, nil
	}
	mux.Lock()
	defer mux.Unlock()

	if connection != nil {
		return connection, nil
	}
	if config.Keyspace == "" {
		// default keyspace
		config.Keyspace = "canteen"
	}
	if config.Consistency == gocql.Any {
		// Defaults to LocalQuorum consistency. You should set it to an appropriate level.
		config.Consistency = gocql.LocalQuorum
	}
	cluster := gocql.NewCluster(config.ClusterHosts...)
	cluster.Consistency = config.Consistency
	if config.ReplicationClause == "" {
		// Specify an appropriate replication feature.
		config.ReplicationClause = "{'class':'SimpleStrategy', 'replication_factor':1}"
	}
	if config.ConnectionTimeout > 0 {
		cluster.ConnectTimeout = config.ConnectionTimeout
	}
	if config.Authenticator != nil {
		cluster.Authenticator = config.Authenticator
		// Clear the authenticator just to be safer, we don't need to keep it hanging around.
		config.Authenticator = nil
	}
	var c = Connection{
		Config: config,
	}
	s, err := cluster.CreateSession()
	if err != nil {
		return nil, err
	}

	if err := s.Query(fmt.Sprintf("CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = %s;", config.Keyspace, config.ReplicationClause)).Exec(); err != nil {
		return nil, err
	}
	for _, ddl := range config.Schema {
		if err := s.Query(fmt.Sprintf(ddl, config.Keyspace)).Exec(); err != nil {
			return nil, err
		}
	}

	c.Session = s
	connection = &c
	return connection, nil
}

// CloseConnection closes and clears the global connection, if it exists.
func CloseConnection() {
	if connection == nil {
		return
	}
	mux.Lock()
	defer mux.Unlock()
	if connection == nil {
		return
	}
	if connection.Session != nil {
		connection.Session.Close()
	}
	connection = nil
}
