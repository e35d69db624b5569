package controller

import (
	"context"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/v2/bson"

	"trendgallery/analytics"
	"trendgallery/store"
)

func pagination(c *gin.Context) (page, limit, skip int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}
	skip = (page - 1) * limit
	return page, limit, skip
}

// GetGallery lists visible untagged images, newest post first.
func (h *Handler) GetGallery(c *gin.Context) {
	filter := store.VisibleFilter()
	filter["objects"] = bson.M{"$exists": false}
	h.gallery(c, filter)
}

// GetGalleryTagged lists visible images carrying an attribute payload.
func (h *Handler) GetGalleryTagged(c *gin.Context) {
	h.gallery(c, store.TaggedFilter())
}

// GetGalleryHidden lists tombstoned images, for review and unhiding.
func (h *Handler) GetGalleryHidden(c *gin.Context) {
	h.gallery(c, bson.M{"hidden": true})
}

func (h *Handler) gallery(c *gin.Context, filter bson.M) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	page, limit, skip := pagination(c)

	if account := c.Query("account"); account != "" {
		filter["source_account"] = account
	}

	total, err := h.Store.Count(ctx, filter)
	if err != nil {
		log.Println("gallery count:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	sort := bson.D{{Key: "post_timestamp", Value: -1}, {Key: "_id", Value: 1}}
	images, err := h.Store.Find(ctx, filter, nil, sort, int64(skip), int64(limit))
	if err != nil {
		log.Println("gallery find:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error getting images"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"images":     images,
		"total":      total,
		"page":       page,
		"limit":      limit,
		"totalPages": int(math.Ceil(float64(total) / float64(limit))),
	})
}

// GetImage returns one record by id.
func (h *Handler) GetImage(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	id, err := bson.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image id"})
		return
	}

	rec, err := h.Store.Get(ctx, id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GetFilterOptions serves the hierarchical filter tree with distinct-image
// counts.
func (h *Handler) GetFilterOptions(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	tree, err := h.Analytics.FilterTree(ctx)
	if err != nil {
		log.Println("filter tree:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	categories := make([]gin.H, 0, len(tree))
	for name, node := range tree {
		categories = append(categories, gin.H{
			"name":        name,
			"image_count": node.Meta.ImageCount,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"filters":    tree,
		"categories": categories,
	})
}

// GetFilteredImages returns one page of the records behind a filter-tree
// leaf. Counts here and in the tree come from the same predicate.
func (h *Handler) GetFilteredImages(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	var sel analytics.Selection
	if err := c.ShouldBindQuery(&sel); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "category and subcategory are required"})
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))
	if page < 0 {
		page = 0
	}

	result, err := h.Analytics.FilteredImages(ctx, sel, page)
	if err != nil {
		log.Println("filtered images:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error getting images"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"images":      result.Images,
		"offset":      result.Offset,
		"limit":       result.Limit,
		"total_count": result.TotalCount,
		"has_more":    result.HasMore,
	})
}
