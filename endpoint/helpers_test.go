package endpoint

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ariebrainware/ltt-bedboard/bedstore"
	"github.com/ariebrainware/ltt-bedboard/board"
	"github.com/ariebrainware/ltt-bedboard/config"
	"github.com/ariebrainware/ltt-bedboard/middleware"
	"github.com/ariebrainware/ltt-bedboard/util"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBedCount = 4

type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

type testAPI struct {
	t      *testing.T
	router *gin.Engine
	board  *board.Board
	token  string
}

// setupEndpointTest returns a router with every route mounted on a fresh board
// backed by an in-memory database, and a valid device token.
func setupEndpointTest(t *testing.T) *testAPI {
	t.Helper()
	db, err := config.ConnectMySQL()
	require.NoError(t, err)
	require.NoError(t, board.Migrate(db))

	b, err := board.New(board.Options{DB: db, DeviceID: "desk", BedCount: testBedCount})
	require.NoError(t, err)

	r := gin.New()
	RegisterRoutes(r, b, "LTT Bed Board", middleware.RateLimitConfig{})

	token, err := util.IssueDeviceToken("desk", time.Hour)
	require.NoError(t, err)
	return &testAPI{t: t, router: r, board: b, token: token}
}

// call performs an authenticated request and decodes the envelope.
func (a *testAPI) call(method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	a.t.Helper()
	w, _, err := performRequest(a.router, requestSpec{
		method:      method,
		requestPath: path,
		body:        body,
		headers:     map[string]string{"Authorization": "Bearer " + a.token},
	})
	require.NoError(a.t, err)
	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func decodeData(t *testing.T, env envelope, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func (a *testAPI) view(id int) bedstore.View {
	v, ok := a.board.Store.View(id)
	require.True(a.t, ok)
	return v
}

// assertStatus asserts that the response HTTP status code matches the expected value
func assertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	assert.Equal(t, expected, w.Code, w.Body.String())
}
