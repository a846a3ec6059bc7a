package endpoint

import (
	"fmt"
	"net/http"

	"github.com/ariebrainware/ltt-bedboard/board"
	"github.com/ariebrainware/ltt-bedboard/middleware"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the board API on r.
func RegisterRoutes(r *gin.Engine, b *board.Board, appName string, limit middleware.RateLimitConfig) {
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.EndpointCallLogger())
	r.Use(middleware.DatabaseMiddleware(b.DB))
	r.Use(middleware.BoardMiddleware(b))

	r.GET("/", func(c *gin.Context) {
		status := "ok"
		if db := middleware.GetDB(c); db == nil {
			status = "unavailable"
		} else if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status = "unreachable"
		}
		c.JSON(http.StatusOK, gin.H{
			"message":  fmt.Sprintf("Welcome to %s!", appName),
			"database": status,
		})
	})
	r.POST("/device/token", middleware.RequireAPIToken(), IssueDeviceToken)

	api := r.Group("/", middleware.DeviceAuth())
	api.GET("/metrics", gin.WrapH(b.Metrics.Handler()))
	api.GET("/beds", ListBeds)
	api.GET("/beds/:id", GetBed)
	api.GET("/visits", ListVisits)
	api.GET("/catalog/presets", ListPresets)
	api.GET("/catalog/quick", ListQuickTreatments)

	mut := api.Group("/", middleware.RateLimiter(limit))
	mut.POST("/beds/:id/start", StartBed)
	mut.POST("/beds/:id/next", NextStep)
	mut.POST("/beds/:id/prev", PrevStep)
	mut.POST("/beds/:id/pause", TogglePause)
	mut.POST("/beds/:id/clear", ClearBed)
	mut.POST("/beds/:id/reorder", ReorderSteps)
	mut.PUT("/beds/:id/memo", SetMemo)
	mut.PUT("/beds/:id/duration", SetDuration)
	mut.POST("/beds/:id/flags/:flag", ToggleFlag)
	mut.POST("/beds/:id/move/:to", MoveBed)
	mut.POST("/visits", CreateVisit)
	mut.PATCH("/visits/:id", UpdateVisit)
	mut.DELETE("/visits/:id", DeleteVisit)
	mut.POST("/catalog/presets", SavePreset)
	mut.DELETE("/catalog/presets/:id", DeletePreset)
}
