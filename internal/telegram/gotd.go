package telegram

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/message/styling"
	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"

	"github.com/danhigham/tgupload/internal/domain"
	"github.com/danhigham/tgupload/internal/media"
)

// GotdDialer implements Dialer using gotd/td. Only one connection is open at
// a time: the session file belongs to whichever task holds it.
type GotdDialer struct {
	sessionPath string
	logger      *zap.Logger
	gate        *semaphore.Weighted
}

// NewGotdDialer creates a dialer persisting its session at sessionPath.
func NewGotdDialer(sessionPath string, logger *zap.Logger) *GotdDialer {
	return &GotdDialer{
		sessionPath: sessionPath,
		logger:      logger,
		gate:        semaphore.NewWeighted(1),
	}
}

// Dial waits for any previous connection to be closed, then connects.
func (d *GotdDialer) Dial(ctx context.Context, creds domain.Credentials) (Conn, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if err := d.gate.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	client := telegram.NewClient(creds.AppID, creds.AppSecret, telegram.Options{
		Logger:         d.logger.Named("gotd"),
		SessionStorage: &session.FileStorage{Path: d.sessionPath},
	})

	runCtx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- client.Run(runCtx, func(ctx context.Context) error {
			close(ready)
			<-ctx.Done()
			return ctx.Err()
		})
	}()

	select {
	case <-ready:
	case err := <-done:
		cancel()
		d.gate.Release(1)
		if err == nil {
			err = errors.New("client stopped before connecting")
		}
		return nil, &ConnectionError{Err: err}
	case <-ctx.Done():
		cancel()
		<-done
		d.gate.Release(1)
		return nil, ctx.Err()
	}

	d.logger.Debug("connected", zap.String("session", d.sessionPath))
	api := client.API()
	return &gotdConn{
		client:      client,
		api:         api,
		sender:      message.NewSender(api),
		logger:      d.logger,
		cancel:      cancel,
		done:        done,
		release:     func() { d.gate.Release(1) },
		concurrency: 1,
		peerCache:   make(map[int64]tg.InputPeerClass),
	}, nil
}

type gotdConn struct {
	client *telegram.Client
	api    *tg.Client
	sender *message.Sender
	logger *zap.Logger

	cancel  context.CancelFunc
	done    chan error
	release func()

	closeOnce sync.Once
	closeErr  error

	// listDialogs walks the dialog list for peer lookups. Nil means Dialogs.
	listDialogs func(ctx context.Context, limit int, fn func(domain.RawDialog) error) error

	mu          sync.Mutex
	concurrency int
	peerCache   map[int64]tg.InputPeerClass
	// listed is set once a full walk of the dialog list has been cached.
	listed bool
}

// Close disconnects and releases the session. Safe to call more than once.
func (c *gotdConn) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		err := <-c.done
		c.release()
		if err != nil && !errors.Is(err, context.Canceled) {
			c.closeErr = fmt.Errorf("disconnect: %w", err)
		}
		c.logger.Debug("disconnected")
	})
	return c.closeErr
}

func (c *gotdConn) SetTransportConcurrency(n int) {
	if n < 1 {
		n = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.concurrency = n
}

// SendMedia uploads the file and posts it as a streamable video.
func (c *gotdConn) SendMedia(ctx context.Context, req SendRequest) (int, error) {
	peer, err := c.resolvePeer(ctx, req.ConversationID)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	threads := c.concurrency
	c.mu.Unlock()

	up := uploader.NewUploader(c.api).WithThreads(threads)
	if req.OnProgress != nil {
		up = up.WithProgress(progressFunc(func(_ context.Context, s uploader.ProgressState) error {
			return req.OnProgress(s.Uploaded, s.Total)
		}))
	}

	file, err := up.FromPath(ctx, req.Path)
	if err != nil {
		return 0, fmt.Errorf("upload %s: %w", filepath.Base(req.Path), classifyError(err))
	}

	name := req.FileName
	if name == "" {
		name = filepath.Base(req.Path)
	}
	doc := message.UploadedDocument(file, styling.Plain(req.Caption)).
		Filename(name).
		MIME(media.MIMEType(req.Path))
	video := doc.Video().SupportsStreaming()
	if req.Metadata.Duration > 0 {
		video = video.Duration(req.Metadata.Duration)
	}
	if req.Metadata.HasResolution() {
		video = video.Resolution(req.Metadata.Width, req.Metadata.Height)
	}

	updates, err := c.sender.To(peer).Media(ctx, video)
	if err != nil {
		return 0, fmt.Errorf("send %s: %w", name, classifyError(err))
	}
	return sentMessageID(updates), nil
}

// progressFunc adapts a function to uploader.Progress.
type progressFunc func(ctx context.Context, state uploader.ProgressState) error

func (f progressFunc) Chunk(ctx context.Context, state uploader.ProgressState) error {
	return f(ctx, state)
}

// sentMessageID digs the new message id out of the send response.
func sentMessageID(u tg.UpdatesClass) int {
	switch v := u.(type) {
	case *tg.UpdateShortSentMessage:
		return v.ID
	case *tg.Updates:
		for _, upd := range v.Updates {
			switch m := upd.(type) {
			case *tg.UpdateMessageID:
				return m.ID
			case *tg.UpdateNewMessage:
				return m.Message.GetID()
			case *tg.UpdateNewChannelMessage:
				return m.Message.GetID()
			}
		}
	}
	return 0
}

// resolvePeer returns the input peer for id. On a cache miss it walks the
// dialog list until id turns up. A conversation absent from a complete walk
// is unknown, and later misses do not walk again.
func (c *gotdConn) resolvePeer(ctx context.Context, id int64) (tg.InputPeerClass, error) {
	if peer := c.findPeer(id); peer != nil {
		return peer, nil
	}
	c.mu.Lock()
	listed := c.listed
	c.mu.Unlock()
	if listed {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPeer, id)
	}

	list := c.listDialogs
	if list == nil {
		list = c.Dialogs
	}
	c.logger.Debug("recipient not cached, listing dialogs", zap.Int64("id", id))
	found := false
	err := list(ctx, 0, func(d domain.RawDialog) error {
		if d.ID == id {
			found = true
			return ErrStopDialogs
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("look up recipient %d: %w", id, err)
	}
	if !found {
		c.mu.Lock()
		c.listed = true
		c.mu.Unlock()
	}
	if peer := c.findPeer(id); peer != nil {
		return peer, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownPeer, id)
}

// findPeer looks up a cached peer by conversation id.
func (c *gotdConn) findPeer(id int64) tg.InputPeerClass {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerCache[id]
}

// cachePeer stores a peer in the cache.
func (c *gotdConn) cachePeer(id int64, peer tg.InputPeerClass) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peerCache[id] = peer
}
