package database

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StringList stores a set of strings as a JSON-encoded text column so the
// schema stays identical across sqlite and postgres.
type StringList []string

// Value implements driver.Valuer. HTML escaping is off so the stored text
// contains each element verbatim; element matching in queries relies on
// that.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	return EncodeJSONString([]string(l))
}

// EncodeJSONString encodes v as compact JSON without HTML escaping.
func EncodeJSONString(v interface{}) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// Scan implements sql.Scanner
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = StringList{}
		return nil
	}
	switch v := value.(type) {
	case string:
		return json.Unmarshal([]byte(v), l)
	case []byte:
		return json.Unmarshal(v, l)
	default:
		return fmt.Errorf("cannot scan %T into StringList", value)
	}
}

// Contains reports whether name is in the list
func (l StringList) Contains(name string) bool {
	for _, s := range l {
		if s == name {
			return true
		}
	}
	return false
}

// Video represents an indexed video file. Directory summary nodes are never
// persisted; they are computed per request with a transient identity.
type Video struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	Path           string     `gorm:"uniqueIndex;not null" json:"path"`
	Name           string     `gorm:"not null" json:"name"`
	LastModifyTime float64    `gorm:"index:idx_videos_mtime,sort:desc" json:"lastModifyTime"`
	Size           float64    `json:"size"`
	Tags           StringList `gorm:"type:text" json:"tags"`
	Author         string     `gorm:"index;default:Unknown" json:"author"`
	Introduction   string     `json:"introduction"`
	Loved          bool       `gorm:"index:idx_videos_loved_view,priority:1,sort:desc" json:"loved"`
	ViewCount      int64      `gorm:"index:idx_videos_views,priority:1,sort:desc" json:"viewCount"`
	LastViewTime   float64    `gorm:"index:idx_videos_loved_view,priority:2,sort:desc;index:idx_videos_views,priority:2,sort:desc" json:"lastViewTime"`
	Duration       float64    `json:"duration"`
	Thumbnail      *string    `json:"thumbnail,omitempty"`
}

// BeforeCreate assigns a UUID primary key when none is set
func (v *Video) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	return nil
}

// Tag tracks how many videos currently reference a tag name. Rows with a
// non-positive count are deleted, never persisted.
type Tag struct {
	Name  string `gorm:"primaryKey" json:"name"`
	Count int64  `gorm:"index:idx_tags_count,sort:desc" json:"count"`
}
