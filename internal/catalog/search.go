package catalog

import (
	"strings"

	"gorm.io/gorm"

	"github.com/cinedex/cinedex/internal/database"
	apperr "github.com/cinedex/cinedex/internal/errors"
)

// SortBy selects the search result ordering
type SortBy string

const (
	// SortByRecency orders by file modification time, newest first
	SortByRecency SortBy = "recency"
	// SortByViews orders by view count, view recency breaking ties
	SortByViews SortBy = "views"
	// SortByLoved orders loved videos first, view recency breaking ties
	SortByLoved SortBy = "loved"
)

// SearchParams filters and pages a video search. Page numbers are 1-based.
type SearchParams struct {
	NameKeyword   string
	AuthorKeyword string
	Tags          []string
	Sort          SortBy
	Page          int
	PageSize      int
}

// Search queries videos with substring name/author matching (case
// insensitive) and all-of tag matching. An out-of-range page yields an empty
// item list with the correct total count.
func (c *Catalog) Search(params SearchParams) ([]database.Video, int64, error) {
	query := c.db.Model(&database.Video{})
	query = applyFilters(query, params)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.log.Error("search count failed", "error", err)
		return nil, 0, apperr.NewDatabaseOperation("search", "count", err)
	}

	page := params.Page
	if page < 1 {
		page = 1
	}
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 15
	}

	var videos []database.Video
	err := query.Order(orderClause(params.Sort)).
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&videos).Error
	if err != nil {
		c.log.Error("search query failed", "error", err)
		return nil, 0, apperr.NewDatabaseOperation("search", "find", err)
	}
	return videos, total, nil
}

func applyFilters(query *gorm.DB, params SearchParams) *gorm.DB {
	if kw := strings.TrimSpace(params.NameKeyword); kw != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(kw)+"%")
	}
	if kw := strings.TrimSpace(params.AuthorKeyword); kw != "" {
		query = query.Where("LOWER(author) LIKE ?", "%"+strings.ToLower(kw)+"%")
	}
	// Tags are stored as a JSON array of quoted strings, so matching the
	// tag's own JSON encoding (quotes included) is an exact element match.
	// LIKE metacharacters inside the tag must not act as wildcards.
	for _, tag := range params.Tags {
		query = query.Where(`tags LIKE ? ESCAPE '\'`, "%"+likeEscape(jsonElement(tag))+"%")
	}
	return query
}

// jsonElement returns the text a tag occupies inside the stored JSON array.
func jsonElement(tag string) string {
	encoded, err := database.EncodeJSONString(tag)
	if err != nil {
		// strings always encode; keep the quoted form as a fallback
		return `"` + tag + `"`
	}
	return encoded
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likeEscape(s string) string {
	return likeEscaper.Replace(s)
}

func orderClause(sort SortBy) string {
	switch sort {
	case SortByViews:
		return "view_count DESC, last_view_time DESC"
	case SortByLoved:
		return "loved DESC, last_view_time DESC"
	default:
		return "last_modify_time DESC"
	}
}
