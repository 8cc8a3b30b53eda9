package upload

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/danhigham/tgupload/internal/domain"
	"github.com/danhigham/tgupload/internal/media"
)

// FormatSpeed renders a transfer rate in B/s, KB/s or MB/s.
func FormatSpeed(bytesPerSecond float64) string {
	switch {
	case bytesPerSecond >= 1<<20:
		return fmt.Sprintf("%.1f MB/s", bytesPerSecond/(1<<20))
	case bytesPerSecond >= 1<<10:
		return fmt.Sprintf("%.1f KB/s", bytesPerSecond/(1<<10))
	default:
		return fmt.Sprintf("%.0f B/s", bytesPerSecond)
	}
}

// FormatETA renders the remaining time as M:SS, or Ns under a minute.
func FormatETA(remaining time.Duration) string {
	secs := int(math.Round(remaining.Seconds()))
	if secs < 0 {
		secs = 0
	}
	if m := secs / 60; m > 0 {
		return fmt.Sprintf("%d:%02d", m, secs%60)
	}
	return fmt.Sprintf("%ds", secs)
}

// rate returns speed and ETA labels for sent of total bytes after elapsed.
func rate(sent, total int64, elapsed time.Duration) (speed, eta string) {
	if elapsed <= 0 || sent <= 0 {
		return FormatSpeed(0), ""
	}
	bps := float64(sent) / elapsed.Seconds()
	speed = FormatSpeed(bps)
	if remaining := total - sent; remaining > 0 {
		eta = FormatETA(time.Duration(float64(remaining) / bps * float64(time.Second)))
	} else {
		eta = FormatETA(0)
	}
	return speed, eta
}

// summary describes a sent file: size, duration and resolution when known.
func summary(size int64, meta domain.Metadata) string {
	parts := []string{media.FormatSize(size)}
	if meta.Duration > 0 {
		parts = append(parts, media.FormatDuration(meta.Duration))
	}
	if meta.HasResolution() {
		parts = append(parts, fmt.Sprintf("%dx%d", meta.Width, meta.Height))
	}
	return strings.Join(parts, ", ")
}
