package catalog

import (
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cinedex/cinedex/internal/database"
	apperr "github.com/cinedex/cinedex/internal/errors"
)

// TagDelta is a pending adjustment for one tag name
type TagDelta struct {
	Magnitude int64
	Increment bool
}

// TagDeltas accumulates per-tag count adjustments across a logical
// operation, counted once per affected entity.
type TagDeltas map[string]TagDelta

// Track records tags as added (increment) or removed (decrement) for one
// entity.
func (d TagDeltas) Track(tags []string, increment bool) {
	for _, tag := range tags {
		delta := d[tag]
		delta.Magnitude++
		delta.Increment = increment
		d[tag] = delta
	}
}

// TopTags returns the most used tags ordered by count descending
func (c *Catalog) TopTags(limit int) ([]database.Tag, error) {
	var tags []database.Tag
	err := c.db.Order("count DESC").Limit(limit).Find(&tags).Error
	if err != nil {
		c.log.Error("top tags query failed", "error", err)
		return nil, apperr.NewDatabaseOperation("top_tags", "limit", err)
	}
	return tags, nil
}

// AdjustTagCounts bulk-applies the deltas: increments upsert the tag row and
// add the magnitude server-side, decrements subtract it, and every tag left
// with a non-positive count is deleted. The whole adjustment runs in one
// transaction.
func (c *Catalog) AdjustTagCounts(deltas TagDeltas) error {
	err := c.db.Transaction(func(tx *gorm.DB) error {
		return adjustTagCounts(tx, deltas)
	})
	if err != nil {
		c.log.Error("tag count adjustment failed", "tags", len(deltas), "error", err)
		return apperr.NewDatabaseOperation("adjust_tag_counts", "bulk", err)
	}
	return nil
}

func adjustTagCounts(tx *gorm.DB, deltas TagDeltas) error {
	if len(deltas) == 0 {
		return nil
	}

	var increments []database.Tag
	var decremented []string
	for name, delta := range deltas {
		if delta.Increment {
			increments = append(increments, database.Tag{Name: name, Count: delta.Magnitude})
		} else {
			decremented = append(decremented, name)
		}
	}
	sort.Slice(increments, func(i, j int) bool { return increments[i].Name < increments[j].Name })
	sort.Strings(decremented)

	if len(increments) > 0 {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("tags.count + excluded.count")}),
		}).Create(&increments).Error
		if err != nil {
			return err
		}
	}

	for _, name := range decremented {
		err := tx.Model(&database.Tag{}).Where("name = ?", name).
			Update("count", gorm.Expr("count - ?", deltas[name].Magnitude)).Error
		if err != nil {
			return err
		}
	}

	if len(decremented) > 0 {
		if err := tx.Where("count <= 0").Delete(&database.Tag{}).Error; err != nil {
			return err
		}
	}
	return nil
}

func setToSorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for tag := range set {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
