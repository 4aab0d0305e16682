package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cinedex/cinedex/internal/browse"
	"github.com/cinedex/cinedex/internal/catalog"
	"github.com/cinedex/cinedex/internal/config"
	"github.com/cinedex/cinedex/internal/database"
	"github.com/cinedex/cinedex/internal/dircache"
	"github.com/cinedex/cinedex/internal/logger"
	"github.com/cinedex/cinedex/internal/media"
	"github.com/cinedex/cinedex/internal/paths"
	"github.com/cinedex/cinedex/internal/reconcile"
	"github.com/cinedex/cinedex/internal/server"
	"github.com/cinedex/cinedex/internal/server/handlers"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubTools struct {
	frame    []byte
	frameErr error
	duration float64
}

func (s *stubTools) Thumbnail(context.Context, string) ([]byte, error) {
	return s.frame, s.frameErr
}

func (s *stubTools) ProbeDuration(context.Context, string) (float64, error) {
	return s.duration, nil
}

func (s *stubTools) EnsureDuration(_ context.Context, store media.DurationStore, video *database.Video, _ string) float64 {
	if video.Duration > 0 {
		return video.Duration
	}
	if s.duration > 0 {
		_ = store.SetDuration(video.ID, s.duration)
		video.Duration = s.duration
	}
	return s.duration
}

type env struct {
	router  *gin.Engine
	catalog *catalog.Catalog
	db      *gorm.DB
	root    string
	tools   *stubTools
}

func newEnv(t *testing.T) *env {
	dbName := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", t.Name())
	db, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&database.Video{}, &database.Tag{}))

	root := t.TempDir()
	cfg := config.Default()
	cfg.Library.Roots = map[string]string{"movies": root}
	cfg.Server.EnableCORS = false

	translator := paths.New(cfg.Library)
	cache := dircache.New(cfg.DirCache.MaxEntries, cfg.DirCache.TTL)
	log := logger.NewNop()
	aggregator := browse.NewAggregator(translator, cache, log)
	cat := catalog.New(db, log)
	browser := browse.NewBrowser(translator, aggregator, cat, log)
	tools := &stubTools{frame: []byte{0xff, 0xd8, 0xff}, duration: 0}
	reconciler := reconcile.New(db, cat, translator, tools, 2, log)

	h := handlers.New(cfg, cat, browser, aggregator, translator, tools, reconciler, log)
	return &env{
		router:  server.SetupRouter(cfg, h),
		catalog: cat,
		db:      db,
		root:    root,
		tools:   tools,
	}
}

// closeNotifyRecorder adds the http.CloseNotifier method gin's c.Stream
// requires, which httptest.ResponseRecorder does not implement.
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *closeNotifyRecorder) CloseNotify() <-chan bool {
	return r.closed
}

func (e *env) request(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(&closeNotifyRecorder{ResponseRecorder: w, closed: make(chan bool)}, req)
	return w
}

func (e *env) createVideo(t *testing.T, name string, content []byte) *database.Video {
	t.Helper()
	path := filepath.Join(e.root, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	video := &database.Video{
		Path:           paths.Normalize(path),
		Name:           name,
		Size:           float64(len(content)),
		LastModifyTime: float64(time.Now().Unix()),
	}
	require.NoError(t, e.db.Create(video).Error)
	return video
}

// -- streaming --------------------------------------------------------------

func TestStreamVideoFull(t *testing.T) {
	e := newEnv(t)
	content := []byte("0123456789abcdef")
	v := e.createVideo(t, "clip.mp4", content)

	w := e.request(t, http.MethodGet, "/video/stream/"+v.ID, nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
	assert.Equal(t, "video/mp4", w.Header().Get("Content-Type"))
	assert.Equal(t, "16", w.Header().Get("Content-Length"))
	assert.Equal(t, content, w.Body.Bytes())
}

func TestStreamVideoRangeForms(t *testing.T) {
	e := newEnv(t)
	content := []byte("0123456789abcdef")
	v := e.createVideo(t, "clip.mkv", content)

	cases := []struct {
		header string
		body   string
		cRange string
	}{
		{"bytes=0-3", "0123", "bytes 0-3/16"},
		{"bytes=10-", "abcdef", "bytes 10-15/16"},
		{"bytes=-4", "cdef", "bytes 12-15/16"},
		{"bytes=4-4", "4", "bytes 4-4/16"},
	}
	for _, tc := range cases {
		w := e.request(t, http.MethodGet, "/video/stream/"+v.ID, nil, map[string]string{"Range": tc.header})
		assert.Equal(t, http.StatusPartialContent, w.Code, tc.header)
		assert.Equal(t, tc.cRange, w.Header().Get("Content-Range"), tc.header)
		assert.Equal(t, fmt.Sprint(len(tc.body)), w.Header().Get("Content-Length"), tc.header)
		assert.Equal(t, tc.body, w.Body.String(), tc.header)
	}

	assert.Equal(t, "video/x-matroska", e.request(t, http.MethodGet, "/video/stream/"+v.ID, nil, nil).Header().Get("Content-Type"))
}

func TestStreamVideoInvalidRange(t *testing.T) {
	e := newEnv(t)
	v := e.createVideo(t, "clip.mp4", []byte("0123456789"))

	for _, header := range []string{"bytes=10-", "bytes=5-20", "bytes=7-3", "bytes=abc-"} {
		w := e.request(t, http.MethodGet, "/video/stream/"+v.ID, nil, map[string]string{"Range": header})
		assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, w.Code, header)
		assert.Equal(t, "bytes */10", w.Header().Get("Content-Range"), header)
	}
}

func TestStreamVideoNotFound(t *testing.T) {
	e := newEnv(t)

	w := e.request(t, http.MethodGet, "/video/stream/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "VIDEO_NOT_FOUND")
}

func TestStreamVideoFileMissing(t *testing.T) {
	e := newEnv(t)
	v := e.createVideo(t, "gone.mp4", []byte("data"))
	require.NoError(t, os.Remove(filepath.Join(e.root, "gone.mp4")))

	w := e.request(t, http.MethodGet, "/video/stream/"+v.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "FILE_MISSING")
}

func TestGetThumbnail(t *testing.T) {
	e := newEnv(t)
	e.tools.duration = 88.5
	v := e.createVideo(t, "clip.mp4", []byte("data"))

	w := e.request(t, http.MethodGet, "/video/thumbnail?video_id="+v.ID, nil, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, "88.5", w.Header().Get("X-Video-Duration"))
	assert.Equal(t, "public, max-age=3600", w.Header().Get("Cache-Control"))
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, w.Body.Bytes())

	// lazy duration backfill persisted
	stored, err := e.catalog.GetByID(v.ID)
	require.NoError(t, err)
	assert.Equal(t, 88.5, stored.Duration)
}

func TestGetThumbnailMissingParam(t *testing.T) {
	e := newEnv(t)

	w := e.request(t, http.MethodGet, "/video/thumbnail", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// -- browse -----------------------------------------------------------------

func TestBrowseRootsAndDirectory(t *testing.T) {
	e := newEnv(t)
	e.createVideo(t, "clip.mp4", []byte("0123456789"))

	w := e.request(t, http.MethodGet, "/api/browse", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var roots struct {
		Items []struct {
			Name  string `json:"name"`
			IsDir bool   `json:"isDir"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &roots))
	require.Len(t, roots.Items, 1)
	assert.Equal(t, "movies", roots.Items[0].Name)
	assert.True(t, roots.Items[0].IsDir)

	w = e.request(t, http.MethodGet, "/api/browse?root=movies", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "clip.mp4")
}

func TestBrowseUnknownRoot(t *testing.T) {
	e := newEnv(t)

	w := e.request(t, http.MethodGet, "/api/browse?root=shows", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_PATH")
}

// -- videos -----------------------------------------------------------------

func TestSearchVideos(t *testing.T) {
	e := newEnv(t)
	e.createVideo(t, "matrix.mp4", []byte("a"))
	e.createVideo(t, "memento.mp4", []byte("b"))

	w := e.request(t, http.MethodGet, "/api/videos?q=matrix", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Items []database.Video `json:"items"`
		Total int64            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Total)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "matrix.mp4", resp.Items[0].Name)
}

func TestSearchVideosPageOutOfRange(t *testing.T) {
	e := newEnv(t)

	w := e.request(t, http.MethodGet, "/api/videos?page=0", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.request(t, http.MethodGet, "/api/videos?page=999999", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateVideoMetadata(t *testing.T) {
	e := newEnv(t)
	v := e.createVideo(t, "clip.mp4", []byte("a"))

	body := map[string]interface{}{
		"name":  "renamed",
		"loved": true,
		"tags":  []string{"scifi"},
	}
	w := e.request(t, http.MethodPut, "/api/videos/"+v.ID, body, nil)
	require.Equal(t, http.StatusOK, w.Code)

	stored, err := e.catalog.GetByID(v.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", stored.Name)
	assert.True(t, stored.Loved)
	assert.Equal(t, []string{"scifi"}, []string(stored.Tags))
}

func TestUpdateVideoRejectedBeforeWrite(t *testing.T) {
	e := newEnv(t)
	v := e.createVideo(t, "clip.mp4", []byte("a"))

	body := map[string]interface{}{
		"name": "renamed",
		"tags": []string{strings.Repeat("x", 100)},
	}
	w := e.request(t, http.MethodPut, "/api/videos/"+v.ID, body, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// the valid name change must not have been applied
	stored, err := e.catalog.GetByID(v.ID)
	require.NoError(t, err)
	assert.Equal(t, "clip.mp4", stored.Name)
}

func TestUpdateVideoTagLengthCountsRunes(t *testing.T) {
	e := newEnv(t)
	v := e.createVideo(t, "clip.mp4", []byte("a"))

	// 40 runes is within the limit even though it is 120 bytes
	wide := strings.Repeat("界", 40)
	body := map[string]interface{}{"tags": []string{wide}}
	w := e.request(t, http.MethodPut, "/api/videos/"+v.ID, body, nil)
	require.Equal(t, http.StatusOK, w.Code)

	stored, err := e.catalog.GetByID(v.ID)
	require.NoError(t, err)
	assert.Equal(t, database.StringList{wide}, stored.Tags)

	body = map[string]interface{}{"tags": []string{strings.Repeat("界", 51)}}
	w = e.request(t, http.MethodPut, "/api/videos/"+v.ID, body, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecordView(t *testing.T) {
	e := newEnv(t)
	v := e.createVideo(t, "clip.mp4", []byte("a"))

	w := e.request(t, http.MethodPost, "/api/videos/"+v.ID+"/view", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	stored, err := e.catalog.GetByID(v.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.ViewCount)
	assert.Greater(t, stored.LastViewTime, 0.0)
}

func TestDeleteVideoRemovesFile(t *testing.T) {
	e := newEnv(t)
	v := e.createVideo(t, "clip.mp4", []byte("a"))

	w := e.request(t, http.MethodDelete, "/api/videos/"+v.ID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	_, err := e.catalog.GetByID(v.ID)
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(e.root, "clip.mp4"))
}

// -- tags & suggestions -----------------------------------------------------

func TestTopTagsAndSuggestions(t *testing.T) {
	e := newEnv(t)
	v := e.createVideo(t, "clip.mp4", []byte("a"))

	body := map[string]interface{}{"tags": []string{"action", "arthouse"}}
	require.Equal(t, http.StatusOK, e.request(t, http.MethodPut, "/api/videos/"+v.ID, body, nil).Code)

	w := e.request(t, http.MethodGet, "/api/tags/top", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "action")

	w = e.request(t, http.MethodGet, "/api/suggestions?kind=tag&q=ac", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "action")

	w = e.request(t, http.MethodGet, "/api/suggestions?kind=bogus&q=x", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// -- batch ------------------------------------------------------------------

func TestBatchUpdateByIDs(t *testing.T) {
	e := newEnv(t)
	v1 := e.createVideo(t, "a.mp4", []byte("a"))
	v2 := e.createVideo(t, "b.mp4", []byte("b"))

	body := map[string]interface{}{
		"videoIds":      []string{v1.ID, v2.ID},
		"tagsOperation": map[string]interface{}{"tags": []string{"bulk"}, "append": true},
	}
	w := e.request(t, http.MethodPost, "/api/batch/update", body, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Result struct {
			ResultType string `json:"resultType"`
			Message    string `json:"message"`
		} `json:"result"`
		Statuses []string `json:"statuses"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Success", resp.Result.ResultType)
	assert.Equal(t, "2 out of 2 updates succeeded", resp.Result.Message)
	assert.NotEmpty(t, resp.Statuses)

	stored, err := e.catalog.GetByID(v1.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"bulk"}, []string(stored.Tags))
}

func TestBatchUpdateRequiresIDs(t *testing.T) {
	e := newEnv(t)

	w := e.request(t, http.MethodPost, "/api/batch/update", map[string]interface{}{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBatchDirectoryUpdateStreamsSSE(t *testing.T) {
	e := newEnv(t)
	e.tools.duration = 30
	sub := filepath.Join(e.root, "series")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "e1.mp4"), []byte("aa"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "e2.mp4"), []byte("bb"), 0o644))

	body := map[string]interface{}{
		"root":          "movies",
		"path":          "series",
		"tagsOperation": map[string]interface{}{"tags": []string{"tv"}, "append": true},
	}
	w := e.request(t, http.MethodPost, "/api/batch/directory/update", body, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")
	assert.Contains(t, w.Body.String(), "Found 2 video entries")
	assert.Contains(t, w.Body.String(), "Success")

	// both new paths were inserted with the probed duration and tag
	videos, total, err := e.catalog.Search(catalog.SearchParams{Tags: []string{"tv"}, Sort: catalog.SortByRecency, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	for _, v := range videos {
		assert.Equal(t, 30.0, v.Duration)
	}
}

func TestBatchDirectoryDeleteStreamsSSE(t *testing.T) {
	e := newEnv(t)
	v := e.createVideo(t, "doomed.mp4", []byte("aa"))

	body := map[string]interface{}{"root": "movies", "path": ""}
	w := e.request(t, http.MethodPost, "/api/batch/directory/delete", body, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Deleted 1 out of 1 videos")

	_, err := e.catalog.GetByID(v.ID)
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(e.root, "doomed.mp4"))
}

// -- health -----------------------------------------------------------------

func TestHealth(t *testing.T) {
	e := newEnv(t)

	w := e.request(t, http.MethodGet, "/api/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.Contains(t, w.Body.String(), `"database":"connected"`)
}
