// Package catalog owns the persistent video and tag records.
package catalog

import (
	"errors"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cinedex/cinedex/internal/database"
	apperr "github.com/cinedex/cinedex/internal/errors"
)

// Catalog provides indexed access to video and tag documents
type Catalog struct {
	db  *gorm.DB
	log hclog.Logger

	now func() time.Time
}

// New creates a catalog on top of an opened database
func New(db *gorm.DB, log hclog.Logger) *Catalog {
	return &Catalog{
		db:  db,
		log: log.Named("catalog"),
		now: time.Now,
	}
}

// UpsertOnScan inserts a video record for a freshly observed file path. If a
// record already exists it is returned unchanged: a scan never overwrites
// user edits. The insert is a single conditional statement, safe under
// concurrent scans of the same directory.
func (c *Catalog) UpsertOnScan(path, name string, mtime float64, size float64) (*database.Video, error) {
	candidate := &database.Video{
		Path:           path,
		Name:           name,
		LastModifyTime: mtime,
		Size:           size,
		Tags:           database.StringList{},
		Author:         "Unknown",
	}

	err := c.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoNothing: true,
	}).Create(candidate).Error
	if err != nil {
		c.log.Error("scan upsert failed", "path", path, "error", err)
		return nil, apperr.NewDatabaseOperation("upsert_on_scan", "path="+path, err)
	}

	var video database.Video
	if err := c.db.Where("path = ?", path).First(&video).Error; err != nil {
		c.log.Error("scan upsert readback failed", "path", path, "error", err)
		return nil, apperr.NewDatabaseOperation("upsert_on_scan", "path="+path, err)
	}
	return &video, nil
}

// GetByID fetches a single video record
func (c *Catalog) GetByID(id string) (*database.Video, error) {
	var video database.Video
	err := c.db.Where("id = ?", id).First(&video).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NewVideoNotFound(id)
	}
	if err != nil {
		c.log.Error("get video failed", "id", id, "error", err)
		return nil, apperr.NewDatabaseOperation("get_by_id", "id="+id, err)
	}
	return &video, nil
}

// FindByIDs fetches every existing record among ids; missing ids are simply
// absent from the result.
func (c *Catalog) FindByIDs(ids []string) ([]database.Video, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var videos []database.Video
	if err := c.db.Where("id IN ?", ids).Find(&videos).Error; err != nil {
		c.log.Error("find videos by ids failed", "count", len(ids), "error", err)
		return nil, apperr.NewDatabaseOperation("find_by_ids", "ids", err)
	}
	return videos, nil
}

// FindByPaths fetches every existing record among normalized paths
func (c *Catalog) FindByPaths(paths []string) ([]database.Video, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	var videos []database.Video
	if err := c.db.Where("path IN ?", paths).Find(&videos).Error; err != nil {
		c.log.Error("find videos by paths failed", "count", len(paths), "error", err)
		return nil, apperr.NewDatabaseOperation("find_by_paths", "paths", err)
	}
	return videos, nil
}

// RecordView increments the view counter and stamps the view time. The
// increment is applied server-side so concurrent views never lose counts.
func (c *Catalog) RecordView(id string) (*database.Video, error) {
	res := c.db.Model(&database.Video{}).Where("id = ?", id).Updates(map[string]interface{}{
		"view_count":     gorm.Expr("view_count + 1"),
		"last_view_time": float64(c.now().UnixNano()) / float64(time.Second),
	})
	if res.Error != nil {
		c.log.Error("record view failed", "id", id, "error", res.Error)
		return nil, apperr.NewDatabaseOperation("record_view", "id="+id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.NewVideoNotFound(id)
	}
	return c.GetByID(id)
}

// MetadataUpdate carries the optional fields of a metadata mutation. Nil
// fields are left untouched.
type MetadataUpdate struct {
	Name         *string
	Introduction *string
	Author       *string
	Loved        *bool
	Tags         *[]string
}

// UpdateMetadata applies the provided fields to a video. Replacing the tag
// set adjusts tag counts by the symmetric difference between the old and new
// sets within the same transaction.
func (c *Catalog) UpdateMetadata(id string, update MetadataUpdate) (*database.Video, error) {
	video, err := c.GetByID(id)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if update.Name != nil {
		fields["name"] = *update.Name
	}
	if update.Introduction != nil {
		fields["introduction"] = *update.Introduction
	}
	if update.Author != nil {
		fields["author"] = *update.Author
	}
	if update.Loved != nil {
		fields["loved"] = *update.Loved
	}

	deltas := TagDeltas{}
	if update.Tags != nil {
		oldTags := toSet(video.Tags)
		newTags := toSet(*update.Tags)
		for tag := range newTags {
			if _, ok := oldTags[tag]; !ok {
				deltas.Track([]string{tag}, true)
			}
		}
		for tag := range oldTags {
			if _, ok := newTags[tag]; !ok {
				deltas.Track([]string{tag}, false)
			}
		}
		fields["tags"] = database.StringList(setToSorted(newTags))
	}

	if len(fields) > 0 {
		err = c.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&database.Video{}).Where("id = ?", id).Updates(fields).Error; err != nil {
				return err
			}
			return adjustTagCounts(tx, deltas)
		})
		if err != nil {
			c.log.Error("update metadata failed", "id", id, "error", err)
			return nil, apperr.NewDatabaseOperation("update_metadata", "id="+id, err)
		}
	}

	return c.GetByID(id)
}

// SetDuration backfills a probed duration onto a video record
func (c *Catalog) SetDuration(id string, duration float64) error {
	err := c.db.Model(&database.Video{}).Where("id = ?", id).
		Update("duration", duration).Error
	if err != nil {
		c.log.Error("set duration failed", "id", id, "error", err)
		return apperr.NewDatabaseOperation("set_duration", "id="+id, err)
	}
	return nil
}

// Delete removes a video record and decrements its tag counts. Removing the
// backing file is the caller's responsibility.
func (c *Catalog) Delete(id string) (*database.Video, error) {
	video, err := c.GetByID(id)
	if err != nil {
		return nil, err
	}

	deltas := TagDeltas{}
	deltas.Track(video.Tags, false)

	err = c.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&database.Video{}, "id = ?", id).Error; err != nil {
			return err
		}
		return adjustTagCounts(tx, deltas)
	})
	if err != nil {
		c.log.Error("delete video failed", "id", id, "error", err)
		return nil, apperr.NewDatabaseOperation("delete_video", "id="+id, err)
	}
	return video, nil
}

// DB exposes the underlying handle for components that batch their own
// writes in catalog transactions.
func (c *Catalog) DB() *gorm.DB {
	return c.db
}

func toSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		set[tag] = struct{}{}
	}
	return set
}
