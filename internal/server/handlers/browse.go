package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperr "github.com/cinedex/cinedex/internal/errors"
)

// Browse lists either the configured library roots (no root param) or the
// contents of one directory below a root. refresh=true bypasses the
// aggregation cache.
func (h *Handlers) Browse(c *gin.Context) {
	root := c.Query("root")
	rel := c.Query("path")
	refresh := c.Query("refresh") == "true"

	if root == "" {
		nodes, err := h.browser.ListRoots(refresh)
		if err != nil {
			apperr.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": nodes, "count": len(nodes)})
		return
	}

	nodes, err := h.browser.ListDirectory(root, rel, refresh)
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": nodes, "count": len(nodes)})
}
