// notifyd is the notification hub: status updates arrive on the publish
// endpoint and fan out to SSE streams, with a chaos switch for resilience
// drills.
package main

import (
	"fmt"
	log "log/slog"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/canteenhq/canteen"
	"github.com/canteenhq/canteen/notify"
	"github.com/canteenhq/canteen/redis"
)

func main() {
	canteen.ConfigureLogging()

	if _, err := redis.OpenConnection(redis.OptionsFromEnv()); err != nil {
		log.Error(fmt.Sprintf("redis connection failed: %v", err))
		os.Exit(1)
	}
	defer redis.CloseConnection()

	client := redis.NewClient()
	handlers := notify.NewHandlers(
		client,
		notify.NewChaos(client, notify.ChaosFlagKey()),
		notify.StreamConfigFromEnv(),
	)

	router := gin.Default()
	handlers.Register(router)

	addr := ":" + canteen.EnvString("CANTEEN_NOTIFY_PORT", "8005")
	log.Info("notification hub listening on " + addr)
	if err := router.Run(addr); err != nil {
		log.Error(fmt.Sprintf("notification hub stopped: %v", err))
		os.Exit(1)
	}
}
