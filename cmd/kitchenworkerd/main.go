// kitchenworkerd consumes the kitchen task queue and runs the order pipeline
// for each task. Scale out by running more instances or raising
// CANTEEN_KITCHEN_WORKERS.
package main

import (
	"context"
	"fmt"
	log "log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/canteenhq/canteen"
	"github.com/canteenhq/canteen/cassandra"
	"github.com/canteenhq/canteen/kitchen"
)

func main() {
	canteen.ConfigureLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	processor := kitchen.NewProcessor(
		cassandra.NewOrderRepository(),
		kitchen.NewHubNotifier(),
		kitchen.ProcessorConfigFromEnv(),
	)
	pool := kitchen.NewWorkerPool(broker, processor, kitchen.WorkerPoolSize())

	if err := pool.Run(ctx); err != nil && err != context.Canceled {
		log.Error(fmt.Sprintf("kitchen worker stopped: %v", err))
		os.Exit(1)
	}
	log.Info("kitchen worker shut down")
}
