package catalog_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/danhigham/tgupload/internal/catalog"
	"github.com/danhigham/tgupload/internal/domain"
	"github.com/danhigham/tgupload/internal/telegram/telegramtest"
)

var creds = domain.Credentials{AppID: 1, AppSecret: "hash", Phone: "+15550100"}

func authorized() func(context.Context) (domain.Identity, error) {
	return func(context.Context) (domain.Identity, error) {
		return domain.Identity{ID: 1}, nil
	}
}

func syntheticDialogs() []domain.RawDialog {
	return []domain.RawDialog{
		{ID: 1, Kind: domain.PeerUser, FirstName: "Me", Self: true, CanSend: true},
		{ID: 2, Kind: domain.PeerBot, FirstName: "Helper", Username: "helperbot", CanSend: true},
		{ID: -1000000000003, Kind: domain.PeerBroadcast, Title: "News", CanSend: true},
		{ID: -4, Kind: domain.PeerChat, Title: "Locked", Restricted: true, CanSend: true},
		{ID: 5, Kind: domain.PeerUser, FirstName: "zoe", LastName: "Park", CanSend: true},
		{ID: -6, Kind: domain.PeerChat, Title: "Alpha Team", CanSend: true},
	}
}

func collect(t *testing.T, events <-chan catalog.Event) []catalog.Event {
	t.Helper()
	var out []catalog.Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out waiting for catalog events")
		}
	}
}

func TestLoader_FiltersAndSorts(t *testing.T) {
	conn := &telegramtest.Conn{SelfFunc: authorized(), DialogList: syntheticDialogs()}
	l := catalog.New(telegramtest.NewDialer(conn), zaptest.NewLogger(t))

	events, err := l.Start(context.Background(), creds)
	if err != nil {
		t.Fatal(err)
	}
	got := collect(t, events)
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	loaded, ok := got[0].(catalog.Loaded)
	if !ok {
		t.Fatalf("event = %T, want Loaded", got[0])
	}

	want := []string{"Alpha Team", "zoe Park"}
	if len(loaded.Conversations) != len(want) {
		t.Fatalf("got %d conversations, want %d: %+v", len(loaded.Conversations), len(want), loaded.Conversations)
	}
	for i, name := range want {
		if loaded.Conversations[i].DisplayName != name {
			t.Errorf("conversation[%d] = %q, want %q", i, loaded.Conversations[i].DisplayName, name)
		}
	}
	if loaded.Conversations[0].Kind != domain.KindGroup || loaded.Conversations[1].Kind != domain.KindDirect {
		t.Errorf("kinds = %v, %v", loaded.Conversations[0].Kind, loaded.Conversations[1].Kind)
	}
	if conn.Closed() != 1 {
		t.Errorf("Closed = %d, want 1", conn.Closed())
	}
}

func TestLoader_ProgressNotes(t *testing.T) {
	var dialogs []domain.RawDialog
	for i := 0; i < 120; i++ {
		dialogs = append(dialogs, domain.RawDialog{
			ID: int64(i + 10), Kind: domain.PeerUser, FirstName: fmt.Sprintf("U%03d", i), CanSend: true,
		})
	}
	conn := &telegramtest.Conn{SelfFunc: authorized(), DialogList: dialogs}
	l := catalog.New(telegramtest.NewDialer(conn), zaptest.NewLogger(t))

	events, _ := l.Start(context.Background(), creds)
	got := collect(t, events)

	var notes []int
	for _, ev := range got {
		if p, ok := ev.(catalog.Progress); ok {
			notes = append(notes, p.Scanned)
		}
	}
	if len(notes) != 2 || notes[0] != 50 || notes[1] != 100 {
		t.Errorf("progress notes = %v, want [50 100]", notes)
	}
	if loaded, ok := got[len(got)-1].(catalog.Loaded); !ok || len(loaded.Conversations) != 120 {
		t.Errorf("last event = %#v, want Loaded with 120 conversations", got[len(got)-1])
	}
}

func TestLoader_NotAuthenticated(t *testing.T) {
	conn := &telegramtest.Conn{DialogList: syntheticDialogs()}
	l := catalog.New(telegramtest.NewDialer(conn), zaptest.NewLogger(t))

	_, err := l.Load(context.Background(), creds, nil)
	if !errors.Is(err, catalog.ErrNotAuthenticated) {
		t.Errorf("Load() error = %v, want ErrNotAuthenticated", err)
	}
	if len(conn.DialogCalls()) != 0 {
		t.Error("dialogs enumerated without a session")
	}
	if conn.Closed() != 1 {
		t.Errorf("Closed = %d, want 1", conn.Closed())
	}
}

func TestLoader_ErrorDiscardsPartialResults(t *testing.T) {
	conn := &telegramtest.Conn{
		SelfFunc:        authorized(),
		DialogList:      syntheticDialogs(),
		DialogsErr:      errors.New("connection reset"),
		DialogsErrAfter: 5,
	}
	l := catalog.New(telegramtest.NewDialer(conn), zaptest.NewLogger(t))

	events, _ := l.Start(context.Background(), creds)
	got := collect(t, events)
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	failed, ok := got[0].(catalog.LoadFailed)
	if !ok {
		t.Fatalf("event = %T, want LoadFailed", got[0])
	}
	var le *catalog.LoadError
	if !errors.As(failed.Err, &le) {
		t.Errorf("Err = %v, want LoadError", failed.Err)
	}
	if conn.Closed() != 1 {
		t.Errorf("Closed = %d, want 1", conn.Closed())
	}
}

func TestLoader_RejectsInvalidCredentials(t *testing.T) {
	d := telegramtest.NewDialer(&telegramtest.Conn{})
	l := catalog.New(d, zaptest.NewLogger(t))

	if _, err := l.Start(context.Background(), domain.Credentials{AppID: 1}); err == nil {
		t.Error("Start() accepted empty credentials")
	}
	if d.Dials() != 0 {
		t.Errorf("Dials = %d, want 0", d.Dials())
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name string
		d    domain.RawDialog
		want string
	}{
		{"first name and username", domain.RawDialog{ID: 1, Kind: domain.PeerUser, FirstName: "Ann", Username: "ann99"}, "Ann (@ann99)"},
		{"full name", domain.RawDialog{ID: 1, Kind: domain.PeerUser, FirstName: "Ann", LastName: "Lee"}, "Ann Lee"},
		{"no name", domain.RawDialog{ID: 77, Kind: domain.PeerUser}, "User 77"},
		{"group title", domain.RawDialog{ID: -5, Kind: domain.PeerChat, Title: "Friends"}, "Friends"},
		{"group without title", domain.RawDialog{ID: 42, Kind: domain.PeerChat}, "Group 42"},
		{"supergroup without title", domain.RawDialog{ID: 43, Kind: domain.PeerMegagroup}, "Supergroup 43"},
		{"public supergroup", domain.RawDialog{ID: 44, Kind: domain.PeerMegagroup, Title: "Devs", Username: "devs"}, "Devs (@devs)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := catalog.DisplayName(tt.d); got != tt.want {
				t.Errorf("DisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInclude(t *testing.T) {
	base := domain.RawDialog{ID: 9, Kind: domain.PeerUser, FirstName: "Bo", CanSend: true}
	if !catalog.Include(base) {
		t.Fatal("plain direct chat excluded")
	}

	excluded := map[string]func(*domain.RawDialog){
		"self":       func(d *domain.RawDialog) { d.Self = true },
		"support":    func(d *domain.RawDialog) { d.Support = true },
		"verified":   func(d *domain.RawDialog) { d.Verified = true },
		"deleted":    func(d *domain.RawDialog) { d.Deleted = true },
		"restricted": func(d *domain.RawDialog) { d.Restricted = true },
		"read only":  func(d *domain.RawDialog) { d.CanSend = false },
		"bot":        func(d *domain.RawDialog) { d.Kind = domain.PeerBot },
		"broadcast":  func(d *domain.RawDialog) { d.Kind = domain.PeerBroadcast },
	}
	for name, mutate := range excluded {
		d := base
		mutate(&d)
		if catalog.Include(d) {
			t.Errorf("%s dialog included", name)
		}
	}
}

func TestSort_CaseInsensitive(t *testing.T) {
	convs := []domain.Conversation{
		{ID: 1, DisplayName: "bravo"},
		{ID: 2, DisplayName: "Alpha"},
		{ID: 3, DisplayName: "charlie"},
		{ID: 4, DisplayName: "alpha"},
	}
	catalog.Sort(convs)

	wantIDs := []int64{2, 4, 1, 3}
	for i, id := range wantIDs {
		if convs[i].ID != id {
			t.Errorf("convs[%d].ID = %d, want %d", i, convs[i].ID, id)
		}
	}
}

func TestFilter(t *testing.T) {
	convs := []domain.Conversation{
		{ID: 1, DisplayName: "Ann (@ann99)"},
		{ID: 2, DisplayName: "Family"},
		{ID: 3, DisplayName: "Annual Report"},
	}
	got := catalog.Filter(convs, "ANN")
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 3 {
		t.Errorf("Filter(ANN) = %+v", got)
	}
	if got := catalog.Filter(convs, "  "); len(got) != 3 {
		t.Errorf("Filter(blank) returned %d, want all 3", len(got))
	}
}
