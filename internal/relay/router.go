package relay

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/voicemesh/voicemesh/internal/config"
)

func SetupRouter(ctx context.Context, cfg *config.Config) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	ctl := NewController(cfg.ReadLimit, 2*cfg.PingPeriod)

	r.GET("/ws", func(c *gin.Context) {
		ctl.HandleSignal(ctx, c)
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"participants": ctl.Room().Count()})
	})

	log.Info().Str("module", "relay").Msg("router setup")
	return r
}
