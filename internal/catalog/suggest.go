package catalog

import (
	"strings"

	"github.com/cinedex/cinedex/internal/database"
	apperr "github.com/cinedex/cinedex/internal/errors"
)

// SuggestionKind selects the field a suggestion query completes
type SuggestionKind string

const (
	// SuggestTitle completes video names
	SuggestTitle SuggestionKind = "title"
	// SuggestAuthor completes author names
	SuggestAuthor SuggestionKind = "author"
	// SuggestTag completes tag names
	SuggestTag SuggestionKind = "tag"
)

// ParseSuggestionKind validates a raw kind string
func ParseSuggestionKind(raw string) (SuggestionKind, bool) {
	switch SuggestionKind(raw) {
	case SuggestTitle, SuggestAuthor, SuggestTag:
		return SuggestionKind(raw), true
	}
	return "", false
}

// Suggest returns up to limit completions for keyword, dispatching on the
// suggestion kind.
func (c *Catalog) Suggest(kind SuggestionKind, keyword string, limit int) ([]string, error) {
	switch kind {
	case SuggestTitle:
		return c.suggestColumn("name", keyword, limit)
	case SuggestAuthor:
		return c.suggestColumn("author", keyword, limit)
	case SuggestTag:
		return c.suggestTags(keyword, limit)
	default:
		return nil, apperr.NewInputValidation("type", "unknown suggestion type "+string(kind))
	}
}

// suggestColumn runs a distinct case-insensitive substring projection over a
// video column.
func (c *Catalog) suggestColumn(column string, keyword string, limit int) ([]string, error) {
	var values []string
	err := c.db.Model(&database.Video{}).
		Distinct(column).
		Where("LOWER("+column+") LIKE ?", "%"+strings.ToLower(keyword)+"%").
		Limit(limit).
		Pluck(column, &values).Error
	if err != nil {
		c.log.Error("suggestion query failed", "column", column, "error", err)
		return nil, apperr.NewDatabaseOperation("suggest", "column="+column, err)
	}
	return values, nil
}

// suggestTags matches in two phases: tags starting with the keyword come
// first (count descending), then substring-contains matches backfill up to
// the limit, excluding names already returned.
func (c *Catalog) suggestTags(keyword string, limit int) ([]string, error) {
	kw := strings.ToLower(keyword)

	var prefix []string
	err := c.db.Model(&database.Tag{}).
		Where("LOWER(name) LIKE ?", kw+"%").
		Order("count DESC").
		Limit(limit).
		Pluck("name", &prefix).Error
	if err != nil {
		c.log.Error("tag prefix suggestion failed", "error", err)
		return nil, apperr.NewDatabaseOperation("suggest", "tag_prefix", err)
	}
	if len(prefix) >= limit {
		return prefix, nil
	}

	query := c.db.Model(&database.Tag{}).
		Where("LOWER(name) LIKE ?", "%"+kw+"%").
		Order("count DESC").
		Limit(limit - len(prefix))
	if len(prefix) > 0 {
		query = query.Where("name NOT IN ?", prefix)
	}

	var contains []string
	if err := query.Pluck("name", &contains).Error; err != nil {
		c.log.Error("tag contains suggestion failed", "error", err)
		return nil, apperr.NewDatabaseOperation("suggest", "tag_contains", err)
	}
	return append(prefix, contains...), nil
}
