package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"civicsync/moderation"
)

// ModerationController exposes the image moderation gate.
type ModerationController struct {
	gate *moderation.Gate
}

func NewModerationController(gate *moderation.Gate) *ModerationController {
	return &ModerationController{gate: gate}
}

// ValidateImage answers 200 with a verdict for every well formed request,
// including when the model could not be reached. Besides a missing image or
// a body that is not JSON, a payload that is not decodable base64 also gets
// 400 and never reaches the model, where a fallback verdict would have let
// it through.
func (mc *ModerationController) ValidateImage(c *gin.Context) {
	var req moderation.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	verdict, err := mc.gate.Validate(c.Request.Context(), req)
	if err != nil {
		respondImageError(c, err)
		return
	}

	c.JSON(http.StatusOK, verdict)
}
