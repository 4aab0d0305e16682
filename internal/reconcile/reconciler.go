package reconcile

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cinedex/cinedex/internal/browse"
	"github.com/cinedex/cinedex/internal/catalog"
	"github.com/cinedex/cinedex/internal/database"
	apperr "github.com/cinedex/cinedex/internal/errors"
	"github.com/cinedex/cinedex/internal/paths"
)

// DurationProber reports a media file's duration in seconds. Probe failures
// are soft: callers treat them as duration 0.
type DurationProber interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

// TagsOperation appends or removes a set of tags across a batch.
type TagsOperation struct {
	Tags   []string `json:"tags" binding:"required"`
	Append bool     `json:"append"`
}

// UpdateRequest targets videos either by catalog IDs or by discovered file
// entries, never both. Path-targeted requests insert records for paths the
// catalog has not seen yet.
type UpdateRequest struct {
	VideoIDs []string
	Entries  []browse.FileEntry
	Author   *string
	Tags     *TagsOperation
}

// DeleteRequest targets videos either by catalog IDs or by discovered file
// entries.
type DeleteRequest struct {
	VideoIDs []string
	Entries  []browse.FileEntry
}

// Reconciler applies batch metadata updates and deletions as single bulk
// writes, streaming progress to the caller.
type Reconciler struct {
	db         *gorm.DB
	catalog    *catalog.Catalog
	translator *paths.Translator
	prober     DurationProber
	probeLimit int
	log        hclog.Logger
}

func New(db *gorm.DB, cat *catalog.Catalog, translator *paths.Translator, prober DurationProber, probeLimit int, log hclog.Logger) *Reconciler {
	if probeLimit < 1 {
		probeLimit = 1
	}
	return &Reconciler{
		db:         db,
		catalog:    cat,
		translator: translator,
		prober:     prober,
		probeLimit: probeLimit,
		log:        log.Named("reconcile"),
	}
}

// BatchUpdate starts a batch metadata update and returns its event stream.
// The stream closes after the terminal event, or silently when ctx is
// cancelled. Work already written is not rolled back on abandonment.
func (r *Reconciler) BatchUpdate(ctx context.Context, req UpdateRequest) <-chan Event {
	ch := make(chan Event, 8)
	go func() {
		defer close(ch)
		r.runUpdate(ctx, req, ch)
	}()
	return ch
}

// BatchDelete starts a batch deletion and returns its event stream.
func (r *Reconciler) BatchDelete(ctx context.Context, req DeleteRequest) <-chan Event {
	ch := make(chan Event, 8)
	go func() {
		defer close(ch)
		r.runDelete(ctx, req, ch)
	}()
	return ch
}

// updateOp is one pending row update keyed by id or by path.
type updateOp struct {
	byID   bool
	key    string
	fields map[string]interface{}
}

func (r *Reconciler) runUpdate(ctx context.Context, req UpdateRequest, ch chan<- Event) {
	if len(req.VideoIDs) == 0 && len(req.Entries) == 0 {
		emit(ctx, ch, terminal(ResultFailure, "No video IDs or file entries provided for batch update"))
		return
	}

	deltas := catalog.TagDeltas{}
	var ops []updateOp
	var inserts []database.Video
	var allCurrent bool

	if len(req.VideoIDs) > 0 {
		videos, err := r.catalog.FindByIDs(req.VideoIDs)
		if err != nil {
			emit(ctx, ch, Event{Err: err})
			return
		}
		ops, allCurrent = r.buildExistingOps(ctx, videos, req, true, deltas)
		if !emit(ctx, ch, Event{Status: fmt.Sprintf("Prepared update operations for %d existing videos", len(videos))}) {
			return
		}
	} else {
		hostPaths := make([]string, len(req.Entries))
		for i, entry := range req.Entries {
			hostPaths[i] = r.translator.ToHostPath(entry.Path)
		}
		videos, err := r.catalog.FindByPaths(hostPaths)
		if err != nil {
			emit(ctx, ch, Event{Err: err})
			return
		}
		ops, allCurrent = r.buildExistingOps(ctx, videos, req, false, deltas)

		known := make(map[string]struct{}, len(videos))
		for _, v := range videos {
			known[v.Path] = struct{}{}
		}
		var fresh []browse.FileEntry
		for i, entry := range req.Entries {
			if _, ok := known[hostPaths[i]]; !ok {
				fresh = append(fresh, entry)
			}
		}
		inserts = r.buildInserts(ctx, fresh, req, deltas)
		if !emit(ctx, ch, Event{Status: fmt.Sprintf("Prepared update operations for %d existing videos and %d new videos", len(videos), len(fresh))}) {
			return
		}
	}

	total := int64(len(ops) + len(inserts))
	if total == 0 {
		if allCurrent {
			emit(ctx, ch, terminal(ResultAlreadyUpToDate, "All videos are already up to date, no updates needed"))
		} else {
			emit(ctx, ch, terminal(ResultFailure, ""))
		}
		return
	}

	var modified, inserted int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		for _, op := range ops {
			q := tx.Model(&database.Video{})
			if op.byID {
				q = q.Where("id = ?", op.key)
			} else {
				q = q.Where("path = ?", op.key)
			}
			res := q.Updates(op.fields)
			if res.Error != nil {
				return res.Error
			}
			modified += res.RowsAffected
		}
		if len(inserts) > 0 {
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "path"}},
				DoNothing: true,
			}).Create(&inserts)
			if res.Error != nil {
				return res.Error
			}
			inserted = res.RowsAffected
		}
		return nil
	})
	if err != nil {
		r.log.Error("batch update bulk write failed", "operations", total, "error", err)
		emit(ctx, ch, Event{Err: apperr.NewDatabaseOperation("batch_update", "bulk_write_failure", err)})
		return
	}

	if !emit(ctx, ch, Event{Status: fmt.Sprintf("Executed batch update operations: %d modified, %d inserted", modified, inserted)}) {
		return
	}

	if err := r.catalog.AdjustTagCounts(deltas); err != nil {
		emit(ctx, ch, Event{Err: err})
		return
	}

	succeeded := modified + inserted
	message := ""
	if succeeded > 0 {
		message = fmt.Sprintf("%d out of %d updates succeeded", succeeded, total)
	}
	emit(ctx, ch, classify(succeeded, total, message))
}

// buildExistingOps computes the minimal field set per video. Videos needing
// nothing produce no op; the second return reports that every matched video
// was already current.
func (r *Reconciler) buildExistingOps(ctx context.Context, videos []database.Video, req UpdateRequest, byID bool, deltas catalog.TagDeltas) ([]updateOp, bool) {
	var ops []updateOp
	for i := range videos {
		v := &videos[i]
		fields := map[string]interface{}{}

		if req.Author != nil && v.Author != *req.Author {
			fields["author"] = *req.Author
		}

		if req.Tags != nil {
			oldTags := make(map[string]struct{}, len(v.Tags))
			for _, tag := range v.Tags {
				oldTags[tag] = struct{}{}
			}
			var changed []string
			for _, tag := range uniqueSorted(req.Tags.Tags) {
				_, present := oldTags[tag]
				if req.Tags.Append && !present {
					oldTags[tag] = struct{}{}
					changed = append(changed, tag)
				} else if !req.Tags.Append && present {
					delete(oldTags, tag)
					changed = append(changed, tag)
				}
			}
			if len(changed) > 0 {
				deltas.Track(changed, req.Tags.Append)
				merged := make([]string, 0, len(oldTags))
				for tag := range oldTags {
					merged = append(merged, tag)
				}
				sort.Strings(merged)
				fields["tags"] = database.StringList(merged)
			}
		}

		if v.Duration == 0 {
			if d := r.probeDuration(ctx, r.translator.ToExecutionPath(v.Path)); d > 0 {
				fields["duration"] = d
			}
		}

		if len(fields) > 0 {
			op := updateOp{byID: byID, key: v.Path, fields: fields}
			if byID {
				op.key = v.ID
			}
			ops = append(ops, op)
		}
	}
	return ops, len(ops) == 0 && len(videos) > 0
}

// buildInserts seeds catalog records for paths the catalog has not seen.
// Durations are probed with bounded concurrency; a failed probe leaves 0.
func (r *Reconciler) buildInserts(ctx context.Context, entries []browse.FileEntry, req UpdateRequest, deltas catalog.TagDeltas) []database.Video {
	if len(entries) == 0 {
		return nil
	}

	durations := make([]float64, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.probeLimit)
	for i, entry := range entries {
		i, entry := i, entry
		g.Go(func() error {
			durations[i] = r.probeDuration(gctx, entry.Path)
			return nil
		})
	}
	// probe failures already degraded to zero inside the workers
	_ = g.Wait()

	var newTags []string
	if req.Tags != nil && req.Tags.Append {
		newTags = uniqueSorted(req.Tags.Tags)
	}

	videos := make([]database.Video, len(entries))
	for i, entry := range entries {
		v := database.Video{
			Path:           r.translator.ToHostPath(entry.Path),
			Name:           entry.Name,
			LastModifyTime: entry.MTime,
			Size:           entry.Size,
			Duration:       durations[i],
			Tags:           database.StringList{},
			Author:         "Unknown",
		}
		if req.Author != nil {
			v.Author = *req.Author
		}
		if len(newTags) > 0 {
			v.Tags = database.StringList(newTags)
			deltas.Track(newTags, true)
		}
		videos[i] = v
	}
	return videos
}

func (r *Reconciler) runDelete(ctx context.Context, req DeleteRequest, ch chan<- Event) {
	if len(req.VideoIDs) == 0 && len(req.Entries) == 0 {
		emit(ctx, ch, terminal(ResultFailure, "No video IDs or file entries provided for batch delete"))
		return
	}

	byID := len(req.VideoIDs) > 0
	var hostPaths []string
	if !byID {
		hostPaths = make([]string, len(req.Entries))
		for i, entry := range req.Entries {
			hostPaths[i] = r.translator.ToHostPath(entry.Path)
		}
	}

	targeted, err := r.findTargets(byID, req.VideoIDs, hostPaths)
	if err != nil {
		emit(ctx, ch, Event{Err: err})
		return
	}

	var res *gorm.DB
	if byID {
		res = r.db.Where("id IN ?", req.VideoIDs).Delete(&database.Video{})
	} else {
		res = r.db.Where("path IN ?", hostPaths).Delete(&database.Video{})
	}
	if res.Error != nil {
		r.log.Error("batch delete failed", "error", res.Error)
		emit(ctx, ch, Event{Err: apperr.NewDatabaseOperation("batch_delete", "bulk_delete_failure", res.Error)})
		return
	}
	deleted := res.RowsAffected

	if !emit(ctx, ch, Event{Status: fmt.Sprintf("Deleted %d videos", deleted)}) {
		return
	}

	// Re-query the same targets: rows still present were deleted by nobody,
	// and only the rows that actually vanished get their tags decremented
	// and their backing files removed.
	survivors, err := r.findTargets(byID, req.VideoIDs, hostPaths)
	if err != nil {
		emit(ctx, ch, Event{Err: err})
		return
	}
	surviving := make(map[string]struct{}, len(survivors))
	for _, v := range survivors {
		surviving[v.ID] = struct{}{}
	}

	deltas := catalog.TagDeltas{}
	for _, v := range targeted {
		if _, ok := surviving[v.ID]; ok {
			continue
		}
		deltas.Track(v.Tags, false)
		execPath := r.translator.ToExecutionPath(v.Path)
		if err := os.Remove(execPath); err != nil {
			r.log.Warn("failed to remove backing file", "path", execPath, "error", err)
		} else {
			r.log.Info("deleted video file", "path", v.Path)
		}
	}
	if err := r.catalog.AdjustTagCounts(deltas); err != nil {
		emit(ctx, ch, Event{Err: err})
		return
	}

	total := int64(len(req.VideoIDs))
	if !byID {
		total = int64(len(req.Entries))
	}
	message := ""
	if deleted > 0 {
		message = fmt.Sprintf("Deleted %d out of %d videos", deleted, total)
	}
	emit(ctx, ch, classify(deleted, total, message))
}

func (r *Reconciler) findTargets(byID bool, ids, hostPaths []string) ([]database.Video, error) {
	if byID {
		return r.catalog.FindByIDs(ids)
	}
	return r.catalog.FindByPaths(hostPaths)
}

func (r *Reconciler) probeDuration(ctx context.Context, execPath string) float64 {
	d, err := r.prober.ProbeDuration(ctx, execPath)
	if err != nil {
		r.log.Warn("duration probe failed", "path", execPath, "error", err)
		return 0
	}
	return d
}

func uniqueSorted(tags []string) []string {
	set := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		set[tag] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for tag := range set {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
