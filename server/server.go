// Package server exposes the research pipeline over HTTP: a chat endpoint
// that runs one full turn and a history endpoint for past session events.
package server

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/citysense-ai/citysense/core"
	"github.com/citysense-ai/citysense/logging"
	"github.com/citysense-ai/citysense/pipeline"
)

// Options configures the HTTP surface.
type Options struct {
	// AllowOrigins lists CORS origins; defaults to all.
	AllowOrigins []string
	Logger       logging.Logger
}

// New builds the gin engine with all routes attached.
func New(coord *pipeline.Coordinator, optFns ...func(o *Options)) *gin.Engine {
	opts := Options{
		AllowOrigins: []string{"*"},
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	g := gin.New()
	g.Use(gin.Recovery())
	g.Use(cors.New(cors.Config{
		AllowOrigins: opts.AllowOrigins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
	}))

	attachRoutes(g, coord, opts.Logger)

	return g
}

func attachRoutes(g *gin.Engine, coord *pipeline.Coordinator, logger logging.Logger) {
	h := handler{coord: coord, logger: logger}

	g.GET("/", h.Root)

	api := g.Group("/api")
	{
		api.POST("/chat", h.Chat)
		api.GET("/history/:session_id", h.History)
	}
}

type handler struct {
	coord  *pipeline.Coordinator
	logger logging.Logger
}

type chatRequest struct {
	Message   string   `json:"message" binding:"required"`
	SessionID string   `json:"session_id"`
	UserID    string   `json:"user_id"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type chatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

// GET /
func (h handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Welcome to the CitySense API"})
}

// POST /api/chat
func (h handler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "bad payload"})
		return
	}
	if req.SessionID == "" {
		req.SessionID = "default_session"
	}
	if req.UserID == "" {
		req.UserID = "user"
	}

	// Both coordinates or neither; a lone value is ignored.
	var coords *pipeline.Coordinates
	if req.Latitude != nil && req.Longitude != nil {
		coords = &pipeline.Coordinates{Lat: *req.Latitude, Lng: *req.Longitude}
	}

	answer, err := h.coord.RunTurn(c.Request.Context(), req.UserID, req.SessionID, req.Message, coords)
	if err != nil {
		h.logger.Error("chat.failed", "session_id", req.SessionID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"err": "agent execution failed"})
		return
	}

	c.JSON(http.StatusOK, chatResponse{Response: answer, SessionID: req.SessionID})
}

// GET /api/history/:session_id
func (h handler) History(c *gin.Context) {
	sessionID := c.Param("session_id")
	userID := c.DefaultQuery("user_id", "user")

	events, err := h.coord.History(userID, sessionID)
	if err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"err": "session not found"})
			return
		}
		h.logger.Error("history.failed", "session_id", sessionID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"err": "failed to load history"})
		return
	}

	messages := make([]gin.H, 0, len(events))
	for _, ev := range events {
		if ev.Content == nil {
			continue
		}
		text := ev.Content.Text()
		if text == "" {
			continue
		}
		messages = append(messages, gin.H{
			"author":    ev.Author,
			"role":      ev.Content.Role,
			"text":      text,
			"timestamp": ev.Timestamp,
		})
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}
