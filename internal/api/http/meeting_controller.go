package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/immxrtalbeast/meshtalk/internal/service"
)

type MeetingController struct {
	meetings service.MeetingInteractor
}

func NewMeetingController(meetings service.MeetingInteractor) *MeetingController {
	return &MeetingController{meetings: meetings}
}

func (c *MeetingController) AddToHistory(ctx *gin.Context) {
	type request struct {
		MeetingCode string `json:"meeting_code" binding:"required"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	username := ctx.GetString(ContextUsername)
	meeting, created, err := c.meetings.AddToHistory(ctx.Request.Context(), username, req.MeetingCode)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if !created {
		ctx.JSON(http.StatusOK, gin.H{"success": true, "message": "meeting already recorded"})
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"success": true, "meeting": meeting})
}

func (c *MeetingController) GetHistory(ctx *gin.Context) {
	username := ctx.GetString(ContextUsername)

	meetings, err := c.meetings.History(ctx.Request.Context(), username)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"success": true, "meetings": meetings})
}
