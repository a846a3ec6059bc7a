package endpoint

import (
	"time"

	"github.com/ariebrainware/ltt-bedboard/util"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DeviceTokenTTL is the lifetime of an issued device token.
const DeviceTokenTTL = 30 * 24 * time.Hour

type deviceTokenRequest struct {
	DeviceID string `json:"device_id"`
}

// IssueDeviceToken godoc
// @Summary      Issue a device token
// @Description  Signs a token for a board device. An empty device_id gets a new random id.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Success      201 {object} util.APIResponse
// @Failure      401 {object} util.APIResponse
// @Router       /device/token [post]
func IssueDeviceToken(c *gin.Context) {
	var req deviceTokenRequest
	if c.Request.ContentLength > 0 && !bindJSONOrRespond(c, &req) {
		return
	}
	if req.DeviceID == "" {
		req.DeviceID = uuid.NewString()
	}
	token, err := util.IssueDeviceToken(req.DeviceID, DeviceTokenTTL)
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to issue token", Err: err})
		return
	}
	util.CallSuccessCreated(c, util.APISuccessParams{
		Msg: "Device token issued",
		Data: gin.H{
			"device_id":  req.DeviceID,
			"token":      token,
			"expires_in": int(DeviceTokenTTL.Seconds()),
		},
	})
}
