package sync_test

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nhle/workera/internal/model"
	"github.com/nhle/workera/internal/remote"
	wsync "github.com/nhle/workera/internal/sync"
	"github.com/nhle/workera/tests/testutil"
)

type boardGate struct {
	read    chan struct{}
	release chan struct{}
}

// staleBoards reads the board, then holds the result on an armed gate, so
// local writes can land between the server read and the local replace.
type staleBoards struct {
	remote.Remote
	gate atomic.Pointer[boardGate]
}

func (s *staleBoards) GetBoard(ctx context.Context, id string) (*model.Board, error) {
	b, err := s.Remote.GetBoard(ctx, id)
	g := s.gate.Swap(nil)
	if g == nil {
		return b, err
	}
	close(g.read)
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b, err
}

// reloadRacing runs ReloadBoard and calls during once the server board has
// been read but not yet applied.
func reloadRacing(t *testing.T, e *wsync.Engine, r *staleBoards, during func()) {
	t.Helper()
	g := &boardGate{read: make(chan struct{}), release: make(chan struct{})}
	r.gate.Store(g)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	errs := make(chan error, 1)
	go func() { errs <- e.ReloadBoard(ctx, testutil.BoardID) }()

	select {
	case <-g.read:
	case <-ctx.Done():
		t.Fatal("reload never read the board")
	}
	during()
	close(g.release)
	if err := <-errs; err != nil {
		t.Fatalf("ReloadBoard: %v", err)
	}
}

func TestReloadKeepsPendingCellValue(t *testing.T) {
	s := seededStore(t)
	r := &staleBoards{Remote: s}
	e, _ := startEngine(t, r, wsync.Config{})

	reloadRacing(t, e, r, func() {
		if err := e.SetItemValue(testutil.Item2, testutil.ColText, json.RawMessage(`"local edit"`)); err != nil {
			t.Fatalf("SetItemValue: %v", err)
		}
	})

	if got := string(localItem(t, e, testutil.Item2).Values[testutil.ColText]); got != `"local edit"` {
		t.Errorf("value after reload = %s, want the local edit", got)
	}
	if got := localItem(t, e, testutil.Item1).Values[testutil.ColStatus]; string(got) != `"`+testutil.OptWorking+`"` {
		t.Errorf("untouched cell = %s", got)
	}
}

func TestReloadKeepsPendingTitles(t *testing.T) {
	s := seededStore(t)
	r := &staleBoards{Remote: s}
	e, _ := startEngine(t, r, wsync.Config{})

	reloadRacing(t, e, r, func() {
		if err := e.RenameBoard(testutil.BoardID, "Renamed"); err != nil {
			t.Fatalf("RenameBoard: %v", err)
		}
		if err := e.RenameGroup(testutil.GroupDone, "Shipped"); err != nil {
			t.Fatalf("RenameGroup: %v", err)
		}
	})

	b := localBoard(t, e)
	if b.Title != "Renamed" {
		t.Errorf("board title = %q", b.Title)
	}
	if !b.Loaded {
		t.Error("board not loaded after reload")
	}
	if len(b.Items) != 3 {
		t.Errorf("board holds %d items, want 3", len(b.Items))
	}
	g, ok := e.Store().Group(testutil.GroupDone)
	if !ok || g.Title != "Shipped" {
		t.Errorf("group = %+v, %v", g, ok)
	}
	checkGroupViews(t, b)
}

func TestReloadKeepsPendingCreateAndDelete(t *testing.T) {
	s := seededStore(t)
	r := &staleBoards{Remote: s}
	e, _ := startEngine(t, r, wsync.Config{})

	var created model.Item
	reloadRacing(t, e, r, func() {
		var err error
		if created, err = e.CreateItem(testutil.BoardID, testutil.GroupDone, "Fresh"); err != nil {
			t.Fatalf("CreateItem: %v", err)
		}
		if err := e.DeleteItem(testutil.Item1); err != nil {
			t.Fatalf("DeleteItem: %v", err)
		}
	})

	if _, ok := e.Store().Item(testutil.Item1); ok {
		t.Error("reload brought back a locally deleted item")
	}
	if _, ok := e.Store().Item(created.ID); !ok {
		t.Error("reload dropped a locally created item")
	}
	checkGroupViews(t, localBoard(t, e))

	flush(t, e)
	if got := len(remoteBoard(t, s).Items); got != 3 {
		t.Errorf("remote board holds %d items, want 3", got)
	}
}

func TestReloadAppliesCommittedWrites(t *testing.T) {
	s := seededStore(t)
	// Local writes happen before every server commit.
	at := time.Now().Add(-time.Minute)
	e, _ := startEngine(t, s, wsync.Config{Now: func() time.Time { return at }})

	if err := e.RenameItem(testutil.Item1, "Local"); err != nil {
		t.Fatalf("RenameItem: %v", err)
	}
	flush(t, e)
	if err := s.UpdateItem(context.Background(), testutil.Item1, remote.Patch{model.FieldTitle: "Remote"}); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := e.ReloadBoard(ctx, testutil.BoardID); err != nil {
		t.Fatalf("ReloadBoard: %v", err)
	}
	if got := localItem(t, e, testutil.Item1).Title; got != "Remote" {
		t.Errorf("title = %q, want the later remote write", got)
	}
}
