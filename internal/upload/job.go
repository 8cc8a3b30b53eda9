package upload

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/danhigham/tgupload/internal/domain"
	"github.com/danhigham/tgupload/internal/media"
	"github.com/danhigham/tgupload/internal/telegram"
)

// ErrNoFilesFound means the job paths contain no recognized media files.
var ErrNoFilesFound = errors.New("no media files found")

// Concurrency levels the transport accepts.
var allowedConcurrency = []int{1, 4, 8}

// Job is one batch: the files, the target and the pacing.
type Job struct {
	Credentials    domain.Credentials
	ConversationID int64
	// Paths are files or directories; directories are scanned one level deep.
	Paths       []string
	Delay       time.Duration
	Concurrency int
	Prefix      string
}

// Validate rejects a job before anything is started.
func (j Job) Validate() error {
	if err := j.Credentials.Validate(); err != nil {
		return err
	}
	if j.ConversationID == 0 {
		return &domain.ValidationError{Field: "conversation", Message: "no conversation selected"}
	}
	if len(j.Paths) == 0 {
		return &domain.ValidationError{Field: "paths", Message: "no files or folder given"}
	}
	if j.Delay < 0 {
		return &domain.ValidationError{Field: "delay", Message: "must not be negative"}
	}
	if !slices.Contains(allowedConcurrency, j.Concurrency) {
		return &domain.ValidationError{
			Field:   "concurrency",
			Message: fmt.Sprintf("must be one of 1, 4 or 8, got %d", j.Concurrency),
		}
	}
	return nil
}

// Expand resolves paths into the media files to send, in send order: by
// base name, then by full path. Unreadable paths are skipped and reported
// in the returned error alongside whatever was found.
func Expand(paths []string) ([]string, error) {
	var (
		files []string
		errs  []error
		seen  = make(map[string]bool)
	)
	add := func(p string) {
		p = filepath.Clean(p)
		if seen[p] || !media.IsSupported(p) {
			return
		}
		seen[p] = true
		files = append(files, p)
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !info.IsDir() {
			add(p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, e := range entries {
			if e.Type().IsRegular() {
				add(filepath.Join(p, e.Name()))
			}
		}
	}

	slices.SortFunc(files, func(a, b string) int {
		if c := strings.Compare(filepath.Base(a), filepath.Base(b)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return files, errors.Join(errs...)
}

// Caption builds the outbound text for a file: the prefix, a space and the
// file name, cut to limit UTF-16 code units.
func Caption(prefix, path string, limit int) string {
	text := filepath.Base(path)
	if prefix = strings.TrimSpace(prefix); prefix != "" {
		text = prefix + " " + text
	}
	return telegram.TruncateCaption(text, limit)
}
