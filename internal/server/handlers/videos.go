package handlers

import (
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cinedex/cinedex/internal/catalog"
	apperr "github.com/cinedex/cinedex/internal/errors"
)

// SearchVideos queries the catalog with optional name/author keywords, tag
// filters and one of the supported sort orders.
func (h *Handlers) SearchVideos(c *gin.Context) {
	params := catalog.SearchParams{
		NameKeyword:   c.Query("q"),
		AuthorKeyword: c.Query("author"),
		Tags:          c.QueryArray("tag"),
		Sort:          catalog.SortBy(c.DefaultQuery("sort", string(catalog.SortByRecency))),
		Page:          1,
		PageSize:      h.cfg.Pagination.SearchPage,
	}

	if raw := c.Query("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			apperr.HandleError(c, apperr.NewInputValidation("page", "must be an integer"))
			return
		}
		params.Page = page
	}
	if raw := c.Query("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 || size > 100 {
			apperr.HandleError(c, apperr.NewInputValidation("page_size", "must be an integer between 1 and 100"))
			return
		}
		params.PageSize = size
	}
	if err := h.validatePage(params.Page); err != nil {
		apperr.HandleError(c, err)
		return
	}
	if err := h.validateTags(params.Tags); err != nil {
		apperr.HandleError(c, err)
		return
	}

	videos, total, err := h.catalog.Search(params)
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items":    videos,
		"total":    total,
		"page":     params.Page,
		"pageSize": params.PageSize,
	})
}

// GetVideo returns a single catalog record by ID.
func (h *Handlers) GetVideo(c *gin.Context) {
	video, err := h.catalog.GetByID(c.Param("id"))
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, video)
}

type updateVideoRequest struct {
	Name         *string   `json:"name"`
	Introduction *string   `json:"introduction"`
	Author       *string   `json:"author"`
	Loved        *bool     `json:"loved"`
	Tags         *[]string `json:"tags"`
}

// UpdateVideo applies a metadata mutation to one video. The whole payload
// is validated before anything is written.
func (h *Handlers) UpdateVideo(c *gin.Context) {
	var req updateVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.HandleError(c, apperr.NewInputValidation("body", err.Error()))
		return
	}

	v := h.cfg.Validation
	if req.Name != nil {
		if err := h.validateText("name", *req.Name, v.MaxNameLength); err != nil {
			apperr.HandleError(c, err)
			return
		}
	}
	if req.Introduction != nil {
		if err := h.validateText("introduction", *req.Introduction, v.MaxIntroductionLength); err != nil {
			apperr.HandleError(c, err)
			return
		}
	}
	if req.Author != nil {
		if err := h.validateText("author", *req.Author, v.MaxNameLength); err != nil {
			apperr.HandleError(c, err)
			return
		}
	}
	if req.Tags != nil {
		if err := h.validateTags(*req.Tags); err != nil {
			apperr.HandleError(c, err)
			return
		}
	}

	video, err := h.catalog.UpdateMetadata(c.Param("id"), catalog.MetadataUpdate{
		Name:         req.Name,
		Introduction: req.Introduction,
		Author:       req.Author,
		Loved:        req.Loved,
		Tags:         req.Tags,
	})
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, video)
}

// RecordView bumps a video's view counter and view recency.
func (h *Handlers) RecordView(c *gin.Context) {
	video, err := h.catalog.RecordView(c.Param("id"))
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, video)
}

// DeleteVideo removes the catalog record, adjusts tag counts and deletes
// the backing file from disk.
func (h *Handlers) DeleteVideo(c *gin.Context) {
	video, err := h.catalog.Delete(c.Param("id"))
	if err != nil {
		apperr.HandleError(c, err)
		return
	}

	execPath := h.translator.ToExecutionPath(video.Path)
	if err := os.Remove(execPath); err != nil {
		h.log.Warn("failed to remove backing file", "path", execPath, "error", err)
	} else {
		h.log.Info("deleted video file", "path", video.Path)
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
