package cli

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/danhigham/tgupload/internal/upload"
)

// batchBars renders an upload run as two mpb bars: the batch and the file
// currently being sent. Without a terminal it prints one line per event
// that matters.
type batchBars struct {
	out        io.Writer
	progress   *mpb.Progress
	isTerminal bool

	overall *mpb.Bar
	item    *mpb.Bar

	mu      sync.Mutex
	status  string
	current upload.ItemProgress
}

func newBatchBars(out io.Writer) *batchBars {
	b := &batchBars{out: out}
	if f, ok := out.(*os.File); ok {
		b.isTerminal = term.IsTerminal(int(f.Fd()))
	}
	if !b.isTerminal {
		return b
	}

	b.progress = mpb.New(
		mpb.WithOutput(out),
		mpb.WithRefreshRate(200*time.Millisecond),
		mpb.WithWidth(60),
	)
	b.overall = b.progress.New(100,
		mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
		mpb.PrependDecorators(
			decor.Name("Batch  ", decor.WCSyncSpaceR),
			decor.Any(func(decor.Statistics) string { return b.statusText() }, decor.WCSyncSpaceR),
		),
		mpb.AppendDecorators(decor.Percentage(decor.WCSyncSpace)),
	)
	return b
}

func (b *batchBars) statusText() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *batchBars) itemText() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fmt.Sprintf("%s  ETA %s", b.current.Speed, b.current.ETA)
}

func (b *batchBars) newItemBar(ev upload.ItemProgress) *mpb.Bar {
	name := ev.DisplayName
	return b.progress.New(ev.Total,
		mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
		mpb.PrependDecorators(
			decor.Name(fmt.Sprintf("%d. %s", ev.Index+1, truncate(name, 40)), decor.WCSyncSpaceR),
		),
		mpb.AppendDecorators(
			decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
			decor.Name("  "),
			decor.Any(func(decor.Statistics) string { return b.itemText() }),
		),
		mpb.BarRemoveOnComplete(),
	)
}

// Consume reads events until the run finishes and returns the final tally
// with every completed item.
func (b *batchBars) Consume(events <-chan upload.Event) (upload.Finished, []upload.ItemCompleted) {
	var (
		fin     upload.Finished
		results []upload.ItemCompleted
	)
	for ev := range events {
		switch ev := ev.(type) {
		case upload.Status:
			b.mu.Lock()
			b.status = ev.Text
			b.mu.Unlock()
			if !b.isTerminal {
				fmt.Fprintln(b.out, ev.Text)
			}
		case upload.OverallProgress:
			if b.overall != nil {
				b.overall.SetCurrent(int64(ev.Percent))
			}
		case upload.ItemProgress:
			b.mu.Lock()
			b.current = ev
			b.mu.Unlock()
			if !b.isTerminal {
				continue
			}
			if b.item == nil {
				b.item = b.newItemBar(ev)
			}
			b.item.SetCurrent(ev.Sent)
		case upload.ItemCompleted:
			results = append(results, ev)
			b.finishItem(ev)
		case upload.Finished:
			fin = ev
		}
	}

	if b.progress != nil {
		if fin.Err != nil || fin.Cancelled {
			b.overall.Abort(false)
		} else {
			b.overall.SetCurrent(100)
		}
		b.progress.Wait()
	}
	return fin, results
}

func (b *batchBars) finishItem(ev upload.ItemCompleted) {
	mark := "✓"
	if !ev.OK {
		mark = "✗"
	}
	line := fmt.Sprintf("%s %s: %s\n", mark, ev.DisplayName, ev.Note)

	if b.item != nil {
		if ev.OK {
			b.item.SetTotal(-1, true)
		} else {
			b.item.Abort(true)
		}
		b.item = nil
	}
	if b.progress != nil {
		_, _ = b.progress.Write([]byte(line))
		return
	}
	fmt.Fprint(b.out, line)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
