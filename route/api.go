package route

import (
	"trendgallery/controller"

	"github.com/gin-gonic/gin"
)

// API wires every gallery endpoint onto the router.
func API(router *gin.Engine, h *controller.Handler) {

	api := router.Group("/api")

	api.POST("/parse", h.StartParse)
	api.GET("/session/:id", h.GetSession)
	api.GET("/sessions", h.ListSessions)
	api.GET("/accounts", h.GetAccounts)

	api.GET("/gallery", h.GetGallery)
	api.GET("/gallery/tagged", h.GetGalleryTagged)
	api.GET("/gallery/hidden", h.GetGalleryHidden)
	api.GET("/image/:id", h.GetImage)
	api.GET("/filter-options", h.GetFilterOptions)
	api.GET("/filtered-images", h.GetFilteredImages)

	api.POST("/images/hide", h.HideImages)
	api.POST("/images/unhide", h.UnhideImages)
	api.POST("/images/mark-for-tagging", h.MarkForTagging)
	api.POST("/images/unmark-for-tagging", h.UnmarkForTagging)
	api.POST("/tag-images", h.TagImages)
	api.POST("/sweep-duplicates", h.SweepDuplicates)
	api.POST("/unmark-duplicates", h.UnmarkDuplicates)

	router.GET("/ws", h.HandleWebSocket)
	router.GET("/ws/session/:id", h.HandleWebSocket)
}
