package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/danhigham/tgupload/internal/domain"
)

// Prober extracts duration and dimensions of a media file.
type Prober interface {
	Probe(ctx context.Context, path string) (domain.Metadata, error)
}

// FFProbe runs the ffprobe binary and falls back to a size-based duration
// estimate when ffprobe is missing or fails.
type FFProbe struct {
	Binary string
	Logger *zap.Logger
}

// NewFFProbe returns a prober using binary (defaults to "ffprobe").
func NewFFProbe(binary string, logger *zap.Logger) *FFProbe {
	if binary == "" {
		binary = "ffprobe"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FFProbe{Binary: binary, Logger: logger}
}

func (p *FFProbe) Probe(ctx context.Context, path string) (domain.Metadata, error) {
	out, err := exec.CommandContext(ctx, p.Binary,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	).Output()
	if err == nil {
		meta, perr := parseFFProbe(out)
		if perr == nil {
			p.Logger.Debug("probed",
				zap.String("file", filepath.Base(path)),
				zap.Duration("duration", meta.Duration),
				zap.Int("width", meta.Width),
				zap.Int("height", meta.Height),
			)
			return meta, nil
		}
		err = perr
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.Metadata{}, ctxErr
	}

	p.Logger.Info("ffprobe unavailable, estimating from size",
		zap.String("file", filepath.Base(path)), zap.Error(err))
	return Estimate(path)
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func parseFFProbe(raw []byte) (domain.Metadata, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.Metadata{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	var meta domain.Metadata
	durationText := out.Format.Duration
	for _, s := range out.Streams {
		if s.CodecType != "video" {
			continue
		}
		meta.Width = s.Width
		meta.Height = s.Height
		if durationText == "" {
			durationText = s.Duration
		}
		break
	}
	if durationText != "" {
		secs, err := strconv.ParseFloat(durationText, 64)
		if err == nil && secs > 0 {
			meta.Duration = time.Duration(secs) * time.Second
		}
	}
	if meta.Duration == 0 && !meta.HasResolution() {
		return domain.Metadata{}, fmt.Errorf("no video stream")
	}
	return meta, nil
}

// Typical bitrates used when only the file size is known.
var estimatedBitrates = map[string]int64{
	".mp4":  3_000_000,
	".mkv":  3_000_000,
	".mov":  3_000_000,
	".avi":  2_000_000,
	".wmv":  2_000_000,
	".webm": 1_500_000,
}

const (
	defaultBitrate     = 2_500_000
	minEstimatedLength = 10 * time.Second
)

// Estimate guesses the duration of path from its size and container, never
// less than ten seconds. Dimensions stay unknown.
func Estimate(path string) (domain.Metadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.Metadata{}, fmt.Errorf("stat %s: %w", filepath.Base(path), err)
	}

	bitrate, ok := estimatedBitrates[strings.ToLower(filepath.Ext(path))]
	if !ok {
		bitrate = defaultBitrate
	}
	secs := info.Size() * 8 / bitrate
	d := time.Duration(secs) * time.Second
	if d < minEstimatedLength {
		d = minEstimatedLength
	}
	return domain.Metadata{Duration: d}, nil
}
