// stockd is the stock service: the inventory system of record with
// optimistic-lock deductions and the advisory stock cache.
package main

import (
	"fmt"
	log "log/slog"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/canteenhq/canteen"
	"github.com/canteenhq/canteen/cassandra"
	"github.com/canteenhq/canteen/inventory"
	"github.com/canteenhq/canteen/redis"
	"github.com/canteenhq/canteen/stock"
)

func main() {
	canteen.ConfigureLogging()

	if _, err := redis.OpenConnection(redis.OptionsFromEnv()); err != nil {
		log.Error(fmt.Sprintf("redis connection failed: %v", err))
		os.Exit(1)
	}
	defer redis.CloseConnection()

	if _, err := cassandra.OpenConnection(cassandra.ConfigFromEnv("canteen_stock", cassandra.InventorySchema)); err != nil {
		log.Error(fmt.Sprintf("cassandra connection failed: %v", err))
		os.Exit(1)
	}
	defer cassandra.CloseConnection()

	store := cassandra.NewInventoryStore()
	engine := inventory.NewEngine(store, redis.NewClient(), inventory.DefaultConfig())
	handlers := stock.NewHandlers(engine, store)

	router := gin.Default()
	handlers.Register(router)

	addr := ":" + canteen.EnvString("CANTEEN_STOCK_PORT", "8002")
	log.Info("stock service listening on " + addr)
	if err := router.Run(addr); err != nil {
		log.Error(fmt.Sprintf("stock service stopped: %v", err))
		os.Exit(1)
	}
}
