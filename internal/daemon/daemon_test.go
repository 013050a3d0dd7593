package daemon

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sancheet230/get-chat/internal/api"
	"github.com/sancheet230/get-chat/internal/bus"
	"github.com/sancheet230/get-chat/internal/index"
	"github.com/sancheet230/get-chat/internal/lock"
	"github.com/sancheet230/get-chat/internal/outbox"
	"github.com/sancheet230/get-chat/internal/rest"
	"github.com/sancheet230/get-chat/internal/status"
	"github.com/sancheet230/get-chat/internal/store"
	intsync "github.com/sancheet230/get-chat/internal/sync"
	"github.com/sancheet230/get-chat/internal/unread"
)

// TestDaemonLifecycle assembles the daemon's components by hand the way the
// fx module does and walks them through start, a status request, and stop.
func TestDaemonLifecycle(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	profileDir := t.TempDir()

	lk, err := lock.Acquire(profileDir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	db, err := store.Open(filepath.Join(profileDir, "getchat.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	logger := zap.NewNop()
	b := bus.New()
	machine := status.NewMachine(b)

	engine := intsync.New(
		intsync.Options{Profile: "test", PushURL: "ws://127.0.0.1:0", PollInterval: time.Hour},
		db,
		rest.NewClient("http://127.0.0.1:0", nil),
		unread.NewTracker(),
		index.New(),
		outbox.NewRegistry(db, logger),
		machine,
		b,
		logger,
	)
	// No credential stored, so startup parks in AuthRequired.
	if err := engine.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer engine.Stop()

	if got := machine.Current(); got != status.AuthRequired {
		t.Fatalf("state after start = %s, want %s", got, status.AuthRequired)
	}

	srv := api.NewServer("127.0.0.1:0", api.New(engine, db, logger), logger)
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = srv.Shutdown(context.Background()) }()

	resp, err := http.Get("http://" + srv.Addr() + "/v1/status")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status endpoint returned %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), string(status.AuthRequired)) {
		t.Errorf("status body missing state: %s", body)
	}
}

func TestSecondLockAcquireFails(t *testing.T) {
	dir := t.TempDir()
	lk, err := lock.Acquire(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	if _, err := lock.Acquire(dir); err == nil {
		t.Fatal("expected second acquire on the same profile to fail")
	}
}
