package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/hashicorp/go-hclog"
	"github.com/shirou/gopsutil/v4/cpu"
	"golang.org/x/sync/semaphore"

	"github.com/cinedex/cinedex/internal/config"
	apperr "github.com/cinedex/cinedex/internal/errors"
)

// commandRunner executes an external tool and returns its stdout. Swappable
// in tests.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Tools wraps the ffmpeg/ffprobe binaries. All invocations share one
// weighted semaphore so a burst of thumbnail requests cannot fork-bomb the
// host.
type Tools struct {
	cfg config.FFmpegConfig
	sem *semaphore.Weighted
	run commandRunner
	log hclog.Logger
}

func NewTools(cfg config.FFmpegConfig, log hclog.Logger) *Tools {
	return &Tools{
		cfg: cfg,
		sem: semaphore.NewWeighted(int64(processLimit(cfg.MaxProcs))),
		run: runCommand,
		log: log.Named("media"),
	}
}

// processLimit sizes the subprocess semaphore: the configured cap, but never
// below half the machine's logical CPUs.
func processLimit(configured int) int {
	limit := configured
	if counts, err := cpu.Counts(true); err == nil && counts/2 > limit {
		limit = counts / 2
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

// ExtractFrame grabs one frame at seek seconds as a scaled JPEG. When the
// seek point lies past the end of a short clip, ffmpeg produces no output;
// the caller is expected to retry at 0.
func (t *Tools) ExtractFrame(ctx context.Context, path string, seek float64) ([]byte, error) {
	if err := t.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer t.sem.Release(1)

	args := []string{
		"-ss", strconv.FormatFloat(seek, 'f', -1, 64),
		"-i", path,
		"-frames:v", "1",
		"-f", "image2",
		"-vcodec", "mjpeg",
		"-vf", fmt.Sprintf("scale=%d:-1", t.cfg.ThumbnailWidth),
		"pipe:1",
	}
	out, err := t.run(ctx, "ffmpeg", args...)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg frame extraction failed: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("ffmpeg produced no frame at %.1fs", seek)
	}
	return out, nil
}

// Thumbnail extracts a representative frame, preferring the configured seek
// offset and falling back to the first frame for clips shorter than it.
func (t *Tools) Thumbnail(ctx context.Context, path string) ([]byte, error) {
	frame, err := t.ExtractFrame(ctx, path, t.cfg.ThumbnailSeek)
	if err == nil {
		return frame, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	t.log.Debug("retrying thumbnail at start of file", "path", path, "error", err)

	frame, err = t.ExtractFrame(ctx, path, 0)
	if err != nil {
		t.log.Error("thumbnail generation failed", "path", path, "error", err)
		return nil, apperr.NewThumbnail(path, err)
	}
	return frame, nil
}

// ProbeDuration reads the container duration via ffprobe.
func (t *Tools) ProbeDuration(ctx context.Context, path string) (float64, error) {
	if err := t.sem.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	defer t.sem.Release(1)

	out, err := t.run(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_entries", "format=duration",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out, &probe); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if probe.Format.Duration == "" {
		return 0, fmt.Errorf("ffprobe reported no duration for %s", path)
	}
	duration, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe duration %q: %w", probe.Format.Duration, err)
	}
	return duration, nil
}
