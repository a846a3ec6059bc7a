package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ariebrainware/ltt-bedboard/board"
	"github.com/ariebrainware/ltt-bedboard/config"
	"github.com/ariebrainware/ltt-bedboard/util"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setGinTestMode() {
	gin.SetMode(gin.TestMode)
}

func setupRedisMock(t *testing.T) redismock.ClientMock {
	rdb, mock := redismock.NewClientMock()
	config.SetRedisClientForTest(rdb)
	t.Cleanup(func() {
		config.ResetRedisClientForTest()
	})
	return mock
}

func withJWTSecret(t *testing.T) {
	t.Helper()
	prev := string(util.GetJWTSecretByte())
	util.SetJWTSecret("middleware-secret")
	t.Cleanup(func() { util.SetJWTSecret(prev) })
}

func deviceToken(t *testing.T, deviceID string) string {
	t.Helper()
	token, err := util.IssueDeviceToken(deviceID, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestSetCorsHeadersDefaults(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/", nil)

	setCorsHeaders(c)

	assert.Equal(t, "*", c.Writer.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, c.Writer.Header().Get("Access-Control-Allow-Methods"), "PUT")
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	setGinTestMode()
	r := gin.New()
	r.Use(CORSMiddleware())
	r.POST("/beds/1/start", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/beds/1/start", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestTokenValidator(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("OPTIONS", "/", nil)
	assert.True(t, tokenValidator(c, "anything"))

	expected := "Bearer secret-token"
	c.Request = httptest.NewRequest("GET", "/", nil)
	c.Request.Header.Set("Authorization", expected)
	assert.True(t, tokenValidator(c, expected))

	c2w := httptest.NewRecorder()
	c2, _ := gin.CreateTestContext(c2w)
	c2.Request = httptest.NewRequest("GET", "/", nil)
	c2.Request.Header.Set("Authorization", "Bearer bad")
	assert.False(t, tokenValidator(c2, expected))
	assert.Equal(t, http.StatusUnauthorized, c2w.Code)
	assert.True(t, c2.IsAborted())
}

func TestRequireAPIToken_EmptyTokenRejected(t *testing.T) {
	setGinTestMode()
	t.Setenv("APITOKEN", "")
	r := gin.New()
	r.POST("/device/token", RequireAPIToken(), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/device/token", nil)
	req.Header.Set("Authorization", "Bearer ")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDatabaseMiddlewareAndGetDB(t *testing.T) {
	setGinTestMode()
	r := gin.New()
	db := &gorm.DB{}
	r.Use(DatabaseMiddleware(db))
	r.GET("/testdb", func(c *gin.Context) {
		if GetDB(c) != db {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/testdb", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBoardMiddlewareAndGetBoard(t *testing.T) {
	setGinTestMode()
	dsn := fmt.Sprintf("file:testdb_middleware_board_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, board.Migrate(db))
	b, err := board.New(board.Options{DB: db, DeviceID: "desk", BedCount: 2})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	assert.Nil(t, GetBoard(c))
	BoardMiddleware(b)(c)
	assert.Same(t, b, GetBoard(c))
}

func TestDeviceAuth(t *testing.T) {
	setGinTestMode()
	withJWTSecret(t)
	r := gin.New()
	r.GET("/beds", DeviceAuth(), func(c *gin.Context) {
		id, ok := GetDeviceID(c)
		require.True(t, ok)
		c.String(http.StatusOK, id)
	})

	cases := []struct {
		name   string
		header string
		status int
	}{
		{name: "valid", header: deviceToken(t, "front-desk"), status: http.StatusOK},
		{name: "missing", header: "", status: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer nope", status: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest("GET", "/beds", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, "front-desk", w.Body.String())
			}
		})
	}
}

func TestGetDeviceID_Missing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, ok := GetDeviceID(c)
	assert.False(t, ok)
}
