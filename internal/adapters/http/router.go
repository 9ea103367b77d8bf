package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/dkeye/Board/internal/adapters/signal"
	"github.com/dkeye/Board/internal/app"
	"github.com/dkeye/Board/internal/config"
	"github.com/dkeye/Board/internal/core"
	"github.com/dkeye/Board/internal/domain"
	"github.com/dkeye/Board/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type Deps struct {
	Broker *app.Broker
	Auth   core.Authenticator
	Log    core.DurableLog
}

// RequireToken rejects REST callers whose token does not verify.
func RequireToken(auth core.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := signal.Authenticate(c.Request.Context(), auth, signal.TokenFrom(c.Request))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set("user", user)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	ctrl := signal.NewSignalWSController(deps.Broker, deps.Auth, signal.Options{
		ReadLimit:        cfg.ReadLimit,
		PingPeriod:       cfg.PingPeriod,
		SendBuffer:       cfg.SendBuffer,
		RevalidatePeriod: cfg.Auth.RevalidatePeriod,
		RateLimit:        cfg.Broker.RateLimit,
		RateInterval:     cfg.Broker.RateInterval,
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": deps.Broker.Registry.Count()})
	})

	api := r.Group("/api")

	api.GET("/ws", func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c)
	})

	api.GET("/rooms", RequireToken(deps.Auth), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": deps.Broker.Registry.Rooms()})
	})

	api.GET("/rooms/:roomId/records", RequireToken(deps.Auth), func(c *gin.Context) {
		room := domain.RoomID(c.Param("roomId"))
		if !room.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
			return
		}
		after := int64(0)
		if s := c.Query("after"); s != "" {
			v, err := strconv.ParseInt(s, 10, 64)
			if err != nil || v < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid after"})
				return
			}
			after = v
		}

		recs, err := deps.Log.ListSince(c.Request.Context(), room, after)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, context.Canceled) {
				status = http.StatusServiceUnavailable
			}
			log.Error().Err(err).Str("module", "adapters.http").Str("room", string(room)).Msg("list records")
			c.JSON(status, gin.H{"error": "could not load records"})
			return
		}
		cursor := after
		if n := len(recs); n > 0 {
			cursor = recs[n-1].Seq
		}
		c.JSON(http.StatusOK, protocol.Snapshot{RoomID: room, Records: recs, Cursor: cursor})
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
