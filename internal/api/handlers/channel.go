package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"channel-chat/internal/directory"
	"channel-chat/internal/models"
)

type ChannelHandler struct {
	directory *directory.Service
}

func NewChannelHandler(dir *directory.Service) *ChannelHandler {
	return &ChannelHandler{directory: dir}
}

// RegisterRoutes maps HTTP methods to handler functions
func (h *ChannelHandler) RegisterRoutes(r *gin.RouterGroup) {
	channels := r.Group("/channels")
	{
		channels.GET("", h.ListChannels)
		channels.POST("/create", h.CreateChannel)
		channels.POST("/join", h.JoinChannel)
	}
}

// CreateChannel godoc
// @Summary Create a channel
// @Description Create a new channel; the creator becomes its first participant
// @Tags channels
// @Accept json
// @Produce json
// @Param request body models.CreateChannelRequest true "Channel name and creator"
// @Success 200 {object} models.ChannelResponse "Created channel"
// @Failure 400 {object} models.ErrorResponse "Missing name or creator"
// @Failure 500 {object} models.ErrorResponse "Store write failure"
// @Router /api/channels/create [post]
func (h *ChannelHandler) CreateChannel(c *gin.Context) {
	var req models.CreateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "invalid request body"})
		return
	}

	channel, err := h.directory.Create(req.Name, req.Creator)
	if err != nil {
		if errors.Is(err, directory.ErrInvalidArgument) {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "channel name and creator are required"})
			return
		}
		slog.Error("channel creation failed", "name", req.Name, "error", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "failed to create channel", Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, models.ChannelResponse{Success: true, Channel: channel})
}

// JoinChannel godoc
// @Summary Join a channel by code
// @Description Add the user to the channel's participants; idempotent per user id
// @Tags channels
// @Accept json
// @Produce json
// @Param request body models.JoinChannelRequest true "Channel code and user"
// @Success 200 {object} models.ChannelResponse "Joined channel"
// @Failure 404 {object} models.ErrorResponse "Unknown channel code"
// @Failure 500 {object} models.ErrorResponse "Store write failure"
// @Router /api/channels/join [post]
func (h *ChannelHandler) JoinChannel(c *gin.Context) {
	var req models.JoinChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "invalid request body"})
		return
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	channel, err := h.directory.Join(code, req.User)
	if err != nil {
		switch {
		case errors.Is(err, directory.ErrChannelNotFound):
			c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "channel not found, check the code and try again"})
		case errors.Is(err, directory.ErrInvalidArgument):
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "a user is required to join a channel"})
		default:
			slog.Error("channel join failed", "code", code, "error", err)
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "failed to join channel", Error: err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, models.ChannelResponse{Success: true, Channel: channel})
}

// ListChannels godoc
// @Summary List all channels
// @Description Return the full channel mapping, read fresh from the store
// @Tags channels
// @Produce json
// @Success 200 {object} models.ChannelListResponse "All channels keyed by code"
// @Router /api/channels [get]
func (h *ChannelHandler) ListChannels(c *gin.Context) {
	channels := h.directory.List()
	c.JSON(http.StatusOK, models.ChannelListResponse{Success: true, Channels: channels})
}
