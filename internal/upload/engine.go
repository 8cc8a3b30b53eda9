// Package upload sends a batch of local media files to one conversation,
// one file at a time, reporting progress as it goes.
package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/danhigham/tgupload/internal/domain"
	"github.com/danhigham/tgupload/internal/media"
	"github.com/danhigham/tgupload/internal/task"
	"github.com/danhigham/tgupload/internal/telegram"
)

const (
	DefaultWarmDialogs = 100

	maxFileSize        int64 = 2000 << 20
	maxFileSizePremium int64 = 4000 << 20
)

var errCancelled = errors.New("upload cancelled")

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now for speed and ETA.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithAfter replaces time.After for the pause between items.
func WithAfter(after func(time.Duration) <-chan time.Time) Option {
	return func(e *Engine) { e.after = after }
}

func WithCaptionLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.captionLimit = n
		}
	}
}

// WithWarmDialogs sets how many recent dialogs are listed before sending.
func WithWarmDialogs(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.warmDialogs = n
		}
	}
}

// Engine runs at most one batch at a time.
type Engine struct {
	dialer       telegram.Dialer
	prober       media.Prober
	logger       *zap.Logger
	now          func() time.Time
	after        func(time.Duration) <-chan time.Time
	captionLimit int
	warmDialogs  int

	slot task.Slot

	mu  sync.Mutex
	cur *run
}

type run struct {
	job Job
	out chan Event

	// mu orders cancellation against progress sends.
	mu              sync.Mutex
	cancelRequested atomic.Bool
}

func New(dialer telegram.Dialer, prober media.Prober, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		dialer:       dialer,
		prober:       prober,
		logger:       logger.Named("upload"),
		now:          time.Now,
		after:        time.After,
		captionLimit: telegram.DefaultCaptionLimit,
		warmDialogs:  DefaultWarmDialogs,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Start validates job and runs it in the background, replacing a batch
// still running. The channel is closed after Finished and must be drained.
func (e *Engine) Start(ctx context.Context, job Job) (<-chan Event, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	r := &run{job: job, out: make(chan Event, 64)}
	e.mu.Lock()
	e.cur = r
	e.mu.Unlock()

	e.slot.Start(ctx, func(ctx context.Context) {
		defer close(r.out)
		r.out <- e.run(ctx, r)
	})
	return r.out, nil
}

// RequestCancel stops the running batch. The file in flight is aborted and
// no further file is started.
func (e *Engine) RequestCancel() {
	e.mu.Lock()
	r := e.cur
	e.mu.Unlock()
	if r != nil {
		r.requestCancel()
	}
	e.slot.Cancel()
}

// Wait blocks until the running batch has finished.
func (e *Engine) Wait() {
	e.slot.Wait()
}

func (r *run) emit(ev Event) {
	r.out <- ev
}

// requestCancel marks the run cancelled. Once it returns no further
// ItemProgress is emitted.
func (r *run) requestCancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelRequested.Store(true)
}

func (r *run) cancelled(ctx context.Context) bool {
	return r.cancelRequested.Load() || ctx.Err() != nil
}

func (e *Engine) run(ctx context.Context, r *run) Finished {
	job := r.job
	log := e.logger.With(zap.Int64("conversation", job.ConversationID))

	r.emit(Status{Text: "Connecting..."})
	conn, err := e.dialer.Dial(ctx, job.Credentials)
	if err != nil {
		if r.cancelled(ctx) {
			return Finished{Cancelled: true}
		}
		log.Error("connect failed", zap.Error(err))
		return Finished{Err: fmt.Errorf("connect: %w", err)}
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Warn("close connection", zap.Error(err))
		}
	}()

	self, err := conn.Self(ctx)
	if err != nil {
		if r.cancelled(ctx) {
			return Finished{Cancelled: true}
		}
		log.Error("session check failed", zap.Error(err))
		return Finished{Err: err}
	}
	limit := maxFileSize
	tier := "standard"
	if self.Premium {
		limit = maxFileSizePremium
		tier = "premium"
	}
	r.emit(Status{Text: fmt.Sprintf("Logged in as %s (%s account, files up to %s)",
		self.DisplayName(), tier, media.FormatSize(limit))})

	conn.SetTransportConcurrency(job.Concurrency)
	e.warm(ctx, r, conn, log)

	paths, err := Expand(job.Paths)
	if err != nil {
		log.Warn("some paths could not be read", zap.Error(err))
	}
	if len(paths) == 0 {
		return Finished{Err: ErrNoFilesFound}
	}
	r.emit(Status{Text: fmt.Sprintf("Found %d files", len(paths))})
	log.Info("batch started", zap.Int("files", len(paths)), zap.Int("concurrency", job.Concurrency))

	var fin Finished
	for i, path := range paths {
		if r.cancelled(ctx) {
			break
		}
		r.emit(Status{Text: fmt.Sprintf("Uploading %d/%d: %s", i+1, len(paths), filepath.Base(path))})

		item := e.prepare(ctx, r, path, log)
		if r.cancelled(ctx) {
			break
		}
		sendErr := e.send(ctx, r, conn, i, item, limit)
		switch {
		case sendErr == nil:
			fin.Succeeded++
		case r.cancelled(ctx):
			fin.CancelledItems++
		default:
			fin.Failed++
		}
		r.emit(OverallProgress{Percent: (i + 1) * 100 / len(paths)})

		if i < len(paths)-1 && job.Delay > 0 && !r.cancelled(ctx) {
			r.emit(Status{Text: fmt.Sprintf("Waiting %s before the next file", job.Delay)})
			select {
			case <-e.after(job.Delay):
			case <-ctx.Done():
			}
		}
	}

	fin.Cancelled = r.cancelled(ctx)
	log.Info("batch finished",
		zap.Int("succeeded", fin.Succeeded),
		zap.Int("failed", fin.Failed),
		zap.Int("cancelled_items", fin.CancelledItems),
		zap.Bool("cancelled", fin.Cancelled),
	)
	return fin
}

// warm lists dialogs until the target turns up so its peer is cached
// before the first send. The recent ones are checked first, then the rest.
// Failure is reported but never fatal.
func (e *Engine) warm(ctx context.Context, r *run, conn telegram.Conn, log *zap.Logger) {
	found, err := findDialog(ctx, conn, r.job.ConversationID, e.warmDialogs)
	if err == nil && !found {
		log.Info("target not among recent conversations", zap.Int("checked", e.warmDialogs))
		r.emit(Status{Text: fmt.Sprintf("Target is not among the %d most recent conversations, searching all", e.warmDialogs)})
		found, err = findDialog(ctx, conn, r.job.ConversationID, 0)
	}
	switch {
	case err != nil:
		log.Warn("warming conversation cache failed", zap.Error(err))
		r.emit(Status{Text: fmt.Sprintf("Could not refresh conversations: %v", err)})
	case !found:
		log.Warn("target not found in dialog list")
		r.emit(Status{Text: "Target conversation not found in your chats, sends will likely fail"})
	default:
		r.emit(Status{Text: "Target conversation resolved"})
	}
}

// findDialog reports whether id is among the first limit dialogs (0 means
// all), stopping as soon as it is seen.
func findDialog(ctx context.Context, conn telegram.Conn, id int64, limit int) (bool, error) {
	found := false
	err := conn.Dialogs(ctx, limit, func(d domain.RawDialog) error {
		if d.ID == id {
			found = true
			return telegram.ErrStopDialogs
		}
		return nil
	})
	return found, err
}

// prepare builds the item for path. Probing is best effort: on failure the
// metadata stays empty.
func (e *Engine) prepare(ctx context.Context, r *run, path string, log *zap.Logger) domain.UploadItem {
	item := domain.UploadItem{
		SourcePath:  path,
		FileName:    filepath.Base(path),
		DisplayName: Caption(r.job.Prefix, path, e.captionLimit),
	}
	if info, err := os.Stat(path); err == nil {
		item.Size = info.Size()
	}
	if e.prober == nil {
		return item
	}
	meta, err := e.prober.Probe(ctx, path)
	if err != nil {
		log.Warn("probe failed", zap.String("file", item.FileName), zap.Error(err))
		return item
	}
	item.Metadata = meta
	return item
}

func (e *Engine) send(ctx context.Context, r *run, conn telegram.Conn, index int, item domain.UploadItem, limit int64) error {
	log := e.logger.With(zap.String("file", item.FileName))
	if item.Size > limit {
		err := &SendError{File: item.FileName, Err: fmt.Errorf("%s exceeds the %s limit",
			media.FormatSize(item.Size), media.FormatSize(limit))}
		e.complete(r, index, item, 0, err, false)
		return err
	}

	p := &itemProgress{
		run:     r,
		ctx:     ctx,
		now:     e.now,
		started: e.now(),
		index:   index,
		name:    item.DisplayName,
	}
	msgID, err := conn.SendMedia(ctx, telegram.SendRequest{
		ConversationID: r.job.ConversationID,
		Path:           item.SourcePath,
		FileName:       item.FileName,
		Caption:        item.DisplayName,
		Metadata:       item.Metadata,
		OnProgress:     p.report,
	})
	p.close()

	if err != nil {
		cancelled := r.cancelled(ctx)
		if cancelled {
			log.Info("send cancelled")
		} else {
			log.Warn("send failed", zap.Error(err))
		}
		e.complete(r, index, item, 0, &SendError{File: item.FileName, Err: err}, cancelled)
		return err
	}
	log.Info("sent", zap.Int("message_id", msgID), zap.Duration("took", e.now().Sub(p.started)))
	e.complete(r, index, item, msgID, nil, false)
	return nil
}

func (e *Engine) complete(r *run, index int, item domain.UploadItem, msgID int, err error, cancelled bool) {
	ev := ItemCompleted{
		Index:       index,
		DisplayName: item.DisplayName,
		OK:          err == nil,
		Cancelled:   cancelled,
		MessageID:   msgID,
	}
	switch {
	case cancelled:
		ev.Note = "cancelled"
	case err != nil:
		ev.Note = err.Error()
	default:
		ev.Note = summary(item.Size, item.Metadata)
	}
	r.emit(ev)
}

// itemProgress turns transport callbacks into ItemProgress events. Once
// closed it emits nothing, so no progress follows ItemCompleted.
type itemProgress struct {
	run     *run
	ctx     context.Context
	now     func() time.Time
	started time.Time
	index   int
	name    string

	mu     sync.Mutex
	closed bool
}

func (p *itemProgress) report(sent, total int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	// requestCancel takes run.mu, so nothing is queued once it returns.
	p.run.mu.Lock()
	defer p.run.mu.Unlock()
	if p.run.cancelled(p.ctx) {
		return errCancelled
	}
	if p.closed {
		return nil
	}

	var pct float64
	if total > 0 {
		pct = float64(sent) / float64(total) * 100
	}
	speed, eta := rate(sent, total, p.now().Sub(p.started))
	select {
	case p.run.out <- ItemProgress{
		Index:       p.index,
		DisplayName: p.name,
		Sent:        sent,
		Total:       total,
		Percent:     pct,
		Speed:       speed,
		ETA:         eta,
	}:
	default:
	}
	return nil
}

func (p *itemProgress) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}
