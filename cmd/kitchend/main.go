// kitchend is the kitchen queue service: it persists incoming orders,
// enqueues their tasks on the durable broker, and serves status lookups and
// operator overrides. Task processing runs in kitchenworkerd.
package main

import (
	"context"
	"fmt"
	log "log/slog"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/canteenhq/canteen"
	"github.com/canteenhq/canteen/cassandra"
	"github.com/canteenhq/canteen/kitchen"
)

func main() {
	canteen.ConfigureLogging()
	ctx := context.Background()

	if _, err := cassandra.OpenConnection(cassandra.ConfigFromEnv("canteen_kitchen", cassandra.OrdersSchema)); err != nil {
		log.Error(fmt.Sprintf("cassandra connection failed: %v", err))
		os.Exit(1)
	}
	defer cassandra.CloseConnection()

	broker, err := kitchen.OpenBroker(ctx, kitchen.BrokerConfigFromEnv())
	if err != nil {
		log.Error(fmt.Sprintf("broker connection failed: %v", err))
		os.Exit(1)
	}
	defer broker.Close()

	repo := cassandra.NewOrderRepository()
	processor := kitchen.NewProcessor(repo, kitchen.NewHubNotifier(), kitchen.ProcessorConfigFromEnv())
	handlers := kitchen.NewHandlers(repo, broker, processor)

	router := gin.Default()
	handlers.Register(router)

	addr := ":" + canteen.EnvString("CANTEEN_KITCHEN_PORT", "8003")
	log.Info("kitchen queue listening on " + addr)
	if err := router.Run(addr); err != nil {
		log.Error(fmt.Sprintf("kitchen queue stopped: %v", err))
		os.Exit(1)
	}
}
