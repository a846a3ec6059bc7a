package middleware

import (
	"fmt"
	"time"

	"github.com/ariebrainware/ltt-bedboard/util"
	"github.com/gin-gonic/gin"
)

// EndpointCallLogger logs each HTTP request as a board event. Events are
// persisted when util.SetBoardLoggerDB was called during startup.
func EndpointCallLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		status := c.Writer.Status()

		deviceID, _ := GetDeviceID(c)
		details := map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"raw_path":    c.Request.URL.Path,
			"status":      status,
			"duration_ms": duration.Milliseconds(),
			"query":       c.Request.URL.RawQuery,
			"user_agent":  c.Request.UserAgent(),
		}

		util.LogBoardEvent(util.BoardEvent{
			EventType: util.EventEndpointCall,
			DeviceID:  deviceID,
			IP:        c.ClientIP(),
			Message:   fmt.Sprintf("%s %s -> %d", c.Request.Method, c.Request.URL.Path, status),
			Details:   details,
		})
	}
}
