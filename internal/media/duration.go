package media

import (
	"context"

	"github.com/cinedex/cinedex/internal/database"
)

// DurationStore persists a probed duration for a catalog record.
type DurationStore interface {
	SetDuration(id string, duration float64) error
}

// EnsureDuration lazily backfills a record's duration: when the stored value
// is zero it probes the file and persists the result. Probe failures degrade
// to zero without erroring so read paths keep serving.
func (t *Tools) EnsureDuration(ctx context.Context, store DurationStore, video *database.Video, execPath string) float64 {
	if video.Duration > 0 {
		return video.Duration
	}

	duration, err := t.ProbeDuration(ctx, execPath)
	if err != nil || duration <= 0 {
		t.log.Warn("could not determine video duration", "path", execPath, "error", err)
		return 0
	}
	if err := store.SetDuration(video.ID, duration); err != nil {
		t.log.Error("failed to persist probed duration", "id", video.ID, "error", err)
	}
	video.Duration = duration
	return duration
}
