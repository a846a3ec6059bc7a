package middleware

import (
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/ariebrainware/ltt-bedboard/board"
	"github.com/ariebrainware/ltt-bedboard/util"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type contextID struct {
	key   string
	label string
}

var (
	dbContext       = contextID{key: "db", label: "database"}
	boardContext    = contextID{key: "board", label: "board"}
	deviceIDContext = contextID{key: "device_id", label: "device id"}
)

func setCorsHeaders(c *gin.Context) {
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
	c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
	c.Writer.Header().Set("Access-Control-Allow-Headers", "X-Requested-With, Content-Type, Authorization")
	c.Writer.Header().Set("Access-Control-Max-Age", "86400")
	c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
}

// CORSMiddleware configures CORS headers for incoming requests.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		setCorsHeaders(c)

		// For preflight requests, respond with 204 and abort further processing.
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// tokenValidator checks the Authorization header against expected. OPTIONS
// requests always pass.
func tokenValidator(c *gin.Context, expected string) bool {
	if c.Request.Method == http.MethodOptions {
		return true
	}
	if expected == "" || c.GetHeader("Authorization") != expected {
		util.CallUserNotAuthorized(c, util.APIErrorParams{
			Msg: "Invalid API token",
			Err: errors.New("api token mismatch"),
		})
		c.Abort()
		return false
	}
	return true
}

// RequireAPIToken guards routes that hand out device tokens.
func RequireAPIToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !tokenValidator(c, "Bearer "+os.Getenv("APITOKEN")) {
			return
		}
		c.Next()
	}
}

// DatabaseMiddleware stores db in the request context.
func DatabaseMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(dbContext.key, db)
		c.Next()
	}
}

// GetDB returns the DB set by DatabaseMiddleware, or nil.
func GetDB(c *gin.Context) *gorm.DB {
	v, ok := c.Get(dbContext.key)
	if !ok {
		return nil
	}
	db, _ := v.(*gorm.DB)
	return db
}

// BoardMiddleware stores b in the request context.
func BoardMiddleware(b *board.Board) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(boardContext.key, b)
		c.Next()
	}
}

// GetBoard returns the Board set by BoardMiddleware, or nil.
func GetBoard(c *gin.Context) *board.Board {
	v, ok := c.Get(boardContext.key)
	if !ok {
		return nil
	}
	b, _ := v.(*board.Board)
	return b
}

// DeviceAuth requires a device token and stores its device id.
func DeviceAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		raw := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		deviceID, err := util.ParseDeviceToken(raw)
		if err != nil {
			util.LogBoardEvent(util.BoardEvent{
				EventType: util.EventUnauthorized,
				IP:        c.ClientIP(),
				Message:   c.Request.Method + " " + c.Request.URL.Path,
			})
			util.CallUserNotAuthorized(c, util.APIErrorParams{
				Msg: "Invalid device token",
				Err: err,
			})
			c.Abort()
			return
		}
		c.Set(deviceIDContext.key, deviceID)
		c.Next()
	}
}

// GetDeviceID returns the authenticated device id.
func GetDeviceID(c *gin.Context) (string, bool) {
	v, ok := c.Get(deviceIDContext.key)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
