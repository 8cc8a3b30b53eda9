package state_test

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/danhigham/tgupload/internal/state"
)

func TestStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s := state.New(path, zaptest.NewLogger(t))

	if err := s.Set(state.KeyFolder, "/videos"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := s.Set(state.KeySelectedChatID, int64(-1001234567890)); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	fresh := state.New(path, zaptest.NewLogger(t))
	if got := fresh.Get(state.KeyFolder, "none"); got != "/videos" {
		t.Errorf("Get(folder) = %v, want /videos", got)
	}
	if got := fresh.Int64(state.KeySelectedChatID, 0); got != -1001234567890 {
		t.Errorf("Int64(selected_chat_id) = %d, want -1001234567890", got)
	}
}

func TestStore_GetDefault(t *testing.T) {
	s := state.New(filepath.Join(t.TempDir(), "settings.json"), nil)

	if got := s.Get("missing", 42); got != 42 {
		t.Errorf("Get(missing) = %v, want 42", got)
	}
	if got := s.String("missing", "x"); got != "x" {
		t.Errorf("String(missing) = %q, want x", got)
	}
	if got := s.Int(state.KeyDelaySeconds, 2); got != 2 {
		t.Errorf("Int(delay) = %d, want 2", got)
	}
}

func TestStore_CorruptFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	s := state.New(path, zaptest.NewLogger(t))
	if got := s.Get(state.KeyPhone, nil); got != nil {
		t.Errorf("Get(phone) = %v, want nil", got)
	}
	if err := s.Set(state.KeyPhone, "+15550100"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if got := state.New(path, nil).String(state.KeyPhone, ""); got != "+15550100" {
		t.Errorf("String(phone) = %q, want +15550100", got)
	}
}

func TestStore_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	s := state.New(filepath.Join(dir, "settings.json"), nil)
	for i := 0; i < 3; i++ {
		if err := s.Set(state.KeyPrefixText, "p"); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want only settings.json", len(entries))
	}
}

func TestStore_Credentials(t *testing.T) {
	s := state.New(filepath.Join(t.TempDir(), "settings.json"), nil)
	if _, err := s.Credentials(); err == nil {
		t.Error("expected validation error for empty settings")
	}

	err := s.SetMany(map[string]any{
		state.KeyAPIID:   "12345",
		state.KeyAPIHash: "abcdef",
		state.KeyPhone:   "+15550100",
	})
	if err != nil {
		t.Fatal(err)
	}
	c, err := s.Credentials()
	if err != nil {
		t.Fatalf("Credentials() error: %v", err)
	}
	if c.AppID != 12345 || c.AppSecret != "abcdef" || c.Phone != "+15550100" {
		t.Errorf("Credentials() = %+v", c)
	}
}
