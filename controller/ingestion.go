package controller

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"trendgallery/analytics"
	"trendgallery/ingest"
	"trendgallery/store"
	"trendgallery/sweeper"
	"trendgallery/tagging"
	"trendgallery/ws"
)

// Handler carries every dependency the HTTP surface needs. Nothing is
// reached through package globals.
type Handler struct {
	Store     *store.ImageStore
	Files     store.FileStore
	Analytics *analytics.Service
	Pipeline  *ingest.Pipeline
	Sessions  *ingest.SessionManager
	Hub       *ws.Hub
	Tagger    *tagging.Runner
	Sweeper   *sweeper.Sweeper
}

type parseRequest struct {
	Accounts []string `json:"accounts" binding:"required,min=1"`
	DateFrom string   `json:"date_from"`
}

// StartParse kicks off a background ingestion session over the requested
// accounts and returns its id immediately. Progress goes out through the
// websocket hub and the session endpoint.
func (h *Handler) StartParse(c *gin.Context) {
	var req parseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "accounts list is required"})
		return
	}

	var since time.Time
	if req.DateFrom != "" {
		parsed, err := time.Parse("2006-01-02", req.DateFrom)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date_from must be YYYY-MM-DD"})
			return
		}
		since = parsed
	}

	session := h.Sessions.Create(req.Accounts, req.DateFrom)
	log.Printf("parse session %s started for %d accounts", session.ID, len(req.Accounts))

	go func() {
		h.Pipeline.RunSession(context.Background(), h.Sessions, h.Hub, session.ID, since)
		h.Analytics.Invalidate()
	}()

	c.JSON(http.StatusOK, gin.H{
		"session_id": session.ID,
		"status":     session.Status,
		"accounts":   session.Accounts,
	})
}

// GetSession reports one session's progress.
func (h *Handler) GetSession(c *gin.Context) {
	session, ok := h.Sessions.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, session)
}

// ListSessions lists the ids of sessions still in the registry.
func (h *Handler) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.Sessions.IDs()})
}

// GetAccounts returns per-account ingestion statistics.
func (h *Handler) GetAccounts(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	stats, err := h.Store.AccountStatsAll(ctx)
	if err != nil {
		log.Println("account stats:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": stats, "total": len(stats)})
}

// HandleWebSocket attaches the client to the progress hub.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	ws.HandleWebSocket(h.Hub, c.Writer, c.Request)
}
