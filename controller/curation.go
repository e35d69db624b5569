package controller

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type idsRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

func parseIDs(hexes []string) ([]bson.ObjectID, error) {
	ids := make([]bson.ObjectID, 0, len(hexes))
	for _, h := range hexes {
		id, err := bson.ObjectIDFromHex(h)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (h *Handler) setHidden(c *gin.Context, hidden bool) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids list is required"})
		return
	}
	ids, err := parseIDs(req.IDs)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image id"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	n, err := h.Store.SetHidden(ctx, ids, hidden)
	if err != nil {
		log.Println("set hidden:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	h.Analytics.Invalidate()

	c.JSON(http.StatusOK, gin.H{"updated": n, "hidden": hidden})
}

// HideImages tombstones records; they disappear from every gallery and
// from the filter tree once the cache turns over.
func (h *Handler) HideImages(c *gin.Context) { h.setHidden(c, true) }

// UnhideImages reverses HideImages.
func (h *Handler) UnhideImages(c *gin.Context) { h.setHidden(c, false) }

func (h *Handler) setSelected(c *gin.Context, selected bool) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids list is required"})
		return
	}
	ids, err := parseIDs(req.IDs)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image id"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	n, err := h.Store.SetSelectedForTagging(ctx, ids, selected)
	if err != nil {
		log.Println("select for tagging:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n, "selected": selected})
}

// MarkForTagging queues records for the tagging run.
func (h *Handler) MarkForTagging(c *gin.Context) { h.setSelected(c, true) }

// UnmarkForTagging removes records from the tagging queue.
func (h *Handler) UnmarkForTagging(c *gin.Context) { h.setSelected(c, false) }

type tagRequest struct {
	Limit int64 `json:"limit"`
}

// TagImages runs the tagging adapter over the queued records. The call is
// synchronous: batches are small and paced, and the summary is the
// response.
func (h *Handler) TagImages(c *gin.Context) {
	var req tagRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	sum, err := h.Tagger.TagSelected(c.Request.Context(), req.Limit)
	if err != nil {
		log.Println("tag images:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error tagging images"})
		return
	}
	h.Analytics.Invalidate()

	c.JSON(http.StatusOK, gin.H{"tagged": sum.Tagged, "failed": sum.Failed})
}

type sweepRequest struct {
	DryRun    bool `json:"dry_run"`
	Threshold int  `json:"threshold"`
}

// SweepDuplicates runs the offline near-duplicate pass.
func (h *Handler) SweepDuplicates(c *gin.Context) {
	var req sweepRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if req.Threshold > 0 {
		h.Sweeper.SetThreshold(req.Threshold)
	}

	sum, err := h.Sweeper.Sweep(c.Request.Context(), req.DryRun)
	if err != nil {
		log.Println("sweep duplicates:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error sweeping duplicates"})
		return
	}
	if !req.DryRun {
		h.Analytics.Invalidate()
	}

	c.JSON(http.StatusOK, gin.H{
		"scanned": sum.Scanned,
		"marked":  sum.Marked,
		"groups":  sum.Groups,
		"dry_run": req.DryRun,
	})
}

// UnmarkDuplicates clears every duplicate flag, usually before a re-sweep
// with a different threshold.
func (h *Handler) UnmarkDuplicates(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	n, err := h.Sweeper.Unmark(ctx)
	if err != nil {
		log.Println("unmark duplicates:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	h.Analytics.Invalidate()

	c.JSON(http.StatusOK, gin.H{"unmarked": n})
}
