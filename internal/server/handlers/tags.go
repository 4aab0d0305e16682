package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cinedex/cinedex/internal/catalog"
	apperr "github.com/cinedex/cinedex/internal/errors"
)

// TopTags returns the most used tags by count.
func (h *Handlers) TopTags(c *gin.Context) {
	limit := h.cfg.Pagination.HomeTags
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			apperr.HandleError(c, apperr.NewInputValidation("limit", "must be an integer between 1 and 100"))
			return
		}
		limit = n
	}

	tags, err := h.catalog.TopTags(limit)
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": tags, "count": len(tags)})
}

// Suggestions returns type-ahead completions for one of the searchable
// fields: title, author or tag.
func (h *Handlers) Suggestions(c *gin.Context) {
	kind, ok := catalog.ParseSuggestionKind(c.Query("kind"))
	if !ok {
		apperr.HandleError(c, apperr.NewInputValidation("kind", "must be one of title, author, tag"))
		return
	}
	keyword := c.Query("q")
	if keyword == "" {
		c.JSON(http.StatusOK, gin.H{"items": []string{}})
		return
	}

	limit := h.suggestionLimit(kind)
	items, err := h.catalog.Suggest(kind, keyword, limit)
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handlers) suggestionLimit(kind catalog.SuggestionKind) int {
	switch kind {
	case catalog.SuggestAuthor:
		return h.cfg.Suggestions.Author
	case catalog.SuggestTag:
		return h.cfg.Suggestions.Tag
	default:
		return h.cfg.Suggestions.Name
	}
}
