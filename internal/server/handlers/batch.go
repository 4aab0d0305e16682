package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cinedex/cinedex/internal/browse"
	apperr "github.com/cinedex/cinedex/internal/errors"
	"github.com/cinedex/cinedex/internal/reconcile"
)

type batchUpdateRequest struct {
	VideoIDs      []string                 `json:"videoIds" binding:"required,min=1"`
	Author        *string                  `json:"author"`
	TagsOperation *reconcile.TagsOperation `json:"tagsOperation"`
}

type batchDeleteRequest struct {
	VideoIDs []string `json:"videoIds" binding:"required,min=1"`
}

type directoryBatchRequest struct {
	Root          string                   `json:"root" binding:"required"`
	Path          string                   `json:"path"`
	Author        *string                  `json:"author"`
	TagsOperation *reconcile.TagsOperation `json:"tagsOperation"`
}

func (h *Handlers) validateBatchMetadata(author *string, tagsOp *reconcile.TagsOperation) error {
	if author != nil {
		if err := h.validateText("author", *author, h.cfg.Validation.MaxNameLength); err != nil {
			return err
		}
	}
	if tagsOp != nil {
		if err := h.validateTags(tagsOp.Tags); err != nil {
			return err
		}
	}
	return nil
}

// BatchUpdate applies a metadata update across a set of videos by ID and
// responds with the terminal result once the whole batch has been written.
func (h *Handlers) BatchUpdate(c *gin.Context) {
	var req batchUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.HandleError(c, apperr.NewInputValidation("body", err.Error()))
		return
	}
	if err := h.validateBatchMetadata(req.Author, req.TagsOperation); err != nil {
		apperr.HandleError(c, err)
		return
	}

	events := h.reconciler.BatchUpdate(c.Request.Context(), reconcile.UpdateRequest{
		VideoIDs: req.VideoIDs,
		Author:   req.Author,
		Tags:     req.TagsOperation,
	})
	h.respondBatchResult(c, events)
}

// BatchDelete deletes a set of videos by ID, their tags counts and backing
// files included.
func (h *Handlers) BatchDelete(c *gin.Context) {
	var req batchDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.HandleError(c, apperr.NewInputValidation("body", err.Error()))
		return
	}

	events := h.reconciler.BatchDelete(c.Request.Context(), reconcile.DeleteRequest{
		VideoIDs: req.VideoIDs,
	})
	h.respondBatchResult(c, events)
}

// respondBatchResult drains a progress stream and returns the terminal
// event plus the collected status lines as one JSON response.
func (h *Handlers) respondBatchResult(c *gin.Context, events <-chan reconcile.Event) {
	var statuses []string
	for ev := range events {
		switch {
		case ev.Err != nil:
			apperr.HandleError(c, ev.Err)
			return
		case ev.Result != nil:
			c.JSON(http.StatusOK, gin.H{"result": ev.Result, "statuses": statuses})
			return
		default:
			statuses = append(statuses, ev.Status)
		}
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "batch stream ended without a result"})
}

// BatchUpdateDirectory applies a metadata update to every video found under
// a directory, streaming progress as server-sent events.
func (h *Handlers) BatchUpdateDirectory(c *gin.Context) {
	var req directoryBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.HandleError(c, apperr.NewInputValidation("body", err.Error()))
		return
	}
	if err := h.validateBatchMetadata(req.Author, req.TagsOperation); err != nil {
		apperr.HandleError(c, err)
		return
	}

	entries, ok := h.collectDirectoryEntries(c, req.Root, req.Path)
	if !ok {
		return
	}

	events := h.reconciler.BatchUpdate(c.Request.Context(), reconcile.UpdateRequest{
		Entries: entries,
		Author:  req.Author,
		Tags:    req.TagsOperation,
	})
	h.streamBatchEvents(c, fmt.Sprintf("Found %d video entries in directory '%s' for batch update", len(entries), req.Path), events)
}

// BatchDeleteDirectory deletes every video found under a directory,
// streaming progress as server-sent events.
func (h *Handlers) BatchDeleteDirectory(c *gin.Context) {
	var req directoryBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.HandleError(c, apperr.NewInputValidation("body", err.Error()))
		return
	}

	entries, ok := h.collectDirectoryEntries(c, req.Root, req.Path)
	if !ok {
		return
	}

	events := h.reconciler.BatchDelete(c.Request.Context(), reconcile.DeleteRequest{Entries: entries})
	h.streamBatchEvents(c, fmt.Sprintf("Found %d video entries in directory '%s' for batch delete", len(entries), req.Path), events)
}

func (h *Handlers) collectDirectoryEntries(c *gin.Context, root, rel string) ([]browse.FileEntry, bool) {
	dir, err := h.translator.ResolveRelative(root, rel)
	if err != nil {
		apperr.HandleError(c, err)
		return nil, false
	}
	return h.aggregator.CollectVideoEntries(dir), true
}

// streamBatchEvents relays a progress stream to the client as SSE. The
// request context cancels the producer when the client goes away.
func (h *Handlers) streamBatchEvents(c *gin.Context, opening string, events <-chan reconcile.Event) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.SSEvent("", gin.H{"status": opening})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		ev, ok := <-events
		if !ok {
			return false
		}
		switch {
		case ev.Err != nil:
			var payload gin.H
			if appErr, isApp := ev.Err.(*apperr.AppError); isApp {
				payload = gin.H{"error": appErr.Message, "code": appErr.Code}
			} else {
				payload = gin.H{"error": ev.Err.Error()}
			}
			c.SSEvent("", payload)
			return false
		case ev.Result != nil:
			c.SSEvent("", gin.H{"result": ev.Result})
			return true
		default:
			c.SSEvent("", gin.H{"status": ev.Status})
			return true
		}
	})
}
