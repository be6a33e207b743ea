// gatewayd is the order gateway: the authenticated front door that admits
// orders via the stock cache, forwards deductions, and dispatches accepted
// orders to the kitchen.
package main

import (
	"fmt"
	log "log/slog"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/canteenhq/canteen"
	"github.com/canteenhq/canteen/auth"
	"github.com/canteenhq/canteen/gateway"
	"github.com/canteenhq/canteen/redis"
)

func main() {
	canteen.ConfigureLogging()

	if _, err := redis.OpenConnection(redis.OptionsFromEnv()); err != nil {
		log.Error(fmt.Sprintf("redis connection failed: %v", err))
		os.Exit(1)
	}
	defer redis.CloseConnection()

	config := gateway.ConfigFromEnv()
	handlers := gateway.NewHandlers(
		redis.NewClient(),
		gateway.NewStockClient(config.StockServiceURL, config.HTTPTimeout),
		gateway.NewKitchenClient(config.KitchenServiceURL, config.HTTPTimeout),
		config,
	)

	authority := auth.NewTokenAuthority(auth.TokenConfigFromEnv())

	router := gin.Default()
	handlers.Register(router, gateway.Authenticate(authority))

	addr := ":" + canteen.EnvString("CANTEEN_GATEWAY_PORT", "8000")
	log.Info("order gateway listening on " + addr)
	if err := router.Run(addr); err != nil {
		log.Error(fmt.Sprintf("order gateway stopped: %v", err))
		os.Exit(1)
	}
}
