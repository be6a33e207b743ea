// identityd is the identity service: login, token refresh, registration and
// password changes, with a Redis-backed login rate limiter.
package main

import (
	"fmt"
	log "log/slog"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/canteenhq/canteen"
	"github.com/canteenhq/canteen/auth"
	"github.com/canteenhq/canteen/cassandra"
	"github.com/canteenhq/canteen/redis"
)

func main() {
	canteen.ConfigureLogging()

	if _, err := redis.OpenConnection(redis.OptionsFromEnv()); err != nil {
		log.Error(fmt.Sprintf("redis connection failed: %v", err))
		os.Exit(1)
	}
	defer redis.CloseConnection()

	if _, err := cassandra.OpenConnection(cassandra.ConfigFromEnv("canteen_identity", cassandra.UsersSchema)); err != nil {
		log.Error(fmt.Sprintf("cassandra connection failed: %v", err))
		os.Exit(1)
	}
	defer cassandra.CloseConnection()

	handlers := auth.NewHandlers(
		cassandra.NewUserRepository(),
		auth.NewTokenAuthority(auth.TokenConfigFromEnv()),
		redis.NewClient(),
		auth.RateLimitConfigFromEnv(),
	)

	router := gin.Default()
	handlers.Register(router)

	addr := ":" + canteen.EnvString("CANTEEN_IDENTITY_PORT", "8001")
	log.Info("identity service listening on " + addr)
	if err := router.Run(addr); err != nil {
		log.Error(fmt.Sprintf("identity service stopped: %v", err))
		os.Exit(1)
	}
}
