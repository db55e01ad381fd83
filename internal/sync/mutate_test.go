package sync_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/nhle/workera/internal/model"
	"github.com/nhle/workera/internal/remote"
	wsync "github.com/nhle/workera/internal/sync"
	"github.com/nhle/workera/tests/testutil"
)

func TestActivateWorkspaceLoadsBoard(t *testing.T) {
	s := seededStore(t)
	e, _ := startEngine(t, s, wsync.Config{})

	if got := e.ActiveWorkspace(); got != testutil.WorkspaceID {
		t.Errorf("ActiveWorkspace = %q", got)
	}
	if got := e.ActiveBoard(); got != testutil.BoardID {
		t.Errorf("ActiveBoard = %q, want the first board", got)
	}
	b := localBoard(t, e)
	if !b.Loaded {
		t.Error("board not loaded")
	}
	if got := itemIDs(b.Items); !equalIDs(got, []string{testutil.Item1, testutil.Item2, testutil.Item3}) {
		t.Errorf("items = %v", got)
	}
	checkGroupViews(t, b)
}

func TestCreateItemPersists(t *testing.T) {
	s := seededStore(t)
	e, _ := startEngine(t, s, wsync.Config{})

	it, err := e.CreateItem(testutil.BoardID, testutil.GroupDone, "  Ship  ")
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if it.Title != "Ship" || it.Position != 3 {
		t.Errorf("created = %+v, want trimmed title at position 3", it)
	}
	b := localBoard(t, e)
	checkGroupViews(t, b)
	done, _ := b.Group(testutil.GroupDone)
	if got := itemIDs(done.Items); !equalIDs(got, []string{testutil.Item3, it.ID}) {
		t.Errorf("done group = %v", got)
	}

	flush(t, e)
	rb := remoteBoard(t, s)
	if got := itemIDs(rb.Items); !equalIDs(got, []string{testutil.Item1, testutil.Item2, testutil.Item3, it.ID}) {
		t.Errorf("remote items = %v", got)
	}
}

func TestMutationValidation(t *testing.T) {
	s := seededStore(t)
	e, _ := startEngine(t, s, wsync.Config{})

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"empty title", func() error { return e.RenameItem(testutil.Item1, "   ") }, wsync.ErrInvalidInput},
		{"malformed id", func() error { return e.RenameItem("item-1", "x") }, model.ErrInvalidID},
		{"unknown item", func() error { return e.RenameItem(model.NewID(), "x") }, wsync.ErrNotFound},
		{"unknown group", func() error {
			_, err := e.CreateItem(testutil.BoardID, model.NewID(), "x")
			return err
		}, wsync.ErrNotFound},
		{"width below minimum", func() error { return e.ResizeColumn(testutil.ColText, 10) }, wsync.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSetItemValueResolvesLabels(t *testing.T) {
	s := seededStore(t)
	e, _ := startEngine(t, s, wsync.Config{})

	if err := e.SetItemValue(testutil.Item2, testutil.ColStatus, json.RawMessage(`{"kind":"label","value":"Done"}`)); err != nil {
		t.Fatalf("SetItemValue: %v", err)
	}
	want := `"` + testutil.OptDone + `"`
	if got := string(localItem(t, e, testutil.Item2).Values[testutil.ColStatus]); got != want {
		t.Errorf("local value = %s, want %s", got, want)
	}
	if err := e.SetItemValue(testutil.Item2, testutil.ColStatus, json.RawMessage(`"nope"`)); err == nil {
		t.Error("unknown option accepted")
	}

	flush(t, e)
	rb := remoteBoard(t, s)
	it, _ := rb.Item(testutil.Item2)
	if got := string(it.Values[testutil.ColStatus]); got != want {
		t.Errorf("remote value = %s, want %s", got, want)
	}

	activity, err := s.ListActivity(context.Background(), testutil.BoardID, 10)
	if err != nil {
		t.Fatalf("ListActivity: %v", err)
	}
	found := false
	for _, a := range activity {
		if a.Action == model.ActivityValueChange && a.ItemID == testutil.Item2 {
			found = true
		}
	}
	if !found {
		t.Errorf("no value_change activity in %+v", activity)
	}
}

func TestDeleteBoardRecordsActivity(t *testing.T) {
	s := seededStore(t)
	e, _ := startEngine(t, s, wsync.Config{})

	if err := e.DeleteBoard(testutil.BoardID); err != nil {
		t.Fatalf("DeleteBoard: %v", err)
	}
	if e.Store().HasBoard(testutil.BoardID) {
		t.Error("board still held locally")
	}
	if e.ActiveBoard() != "" {
		t.Errorf("ActiveBoard = %q after delete", e.ActiveBoard())
	}
	flush(t, e)

	if _, err := s.GetBoard(context.Background(), testutil.BoardID); !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("remote GetBoard err = %v, want ErrNotFound", err)
	}
	activity, err := s.ListActivity(context.Background(), testutil.BoardID, 10)
	if err != nil {
		t.Fatalf("ListActivity: %v", err)
	}
	if len(activity) != 1 || activity[0].Action != model.ActivityDelete || string(activity[0].Before) != `"Roadmap"` {
		t.Errorf("activity = %+v, want one board delete", activity)
	}
}

type gatedBoards struct {
	remote.Remote
	release chan struct{}
}

func (g *gatedBoards) CreateBoard(ctx context.Context, b model.Board) error {
	select {
	case <-g.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return g.Remote.CreateBoard(ctx, b)
}

func TestCreateBoardLoadedOnlyAfterPersist(t *testing.T) {
	s := seededStore(t)
	gate := &gatedBoards{Remote: s, release: make(chan struct{})}
	e, _ := startEngine(t, gate, wsync.Config{})

	b, err := e.CreateBoard(testutil.WorkspaceID, "Sprint")
	if err != nil {
		t.Fatalf("CreateBoard: %v", err)
	}
	if b.Loaded {
		t.Error("board loaded before its inserts persisted")
	}
	if len(b.Groups) != 1 || len(b.Columns) != 3 {
		t.Fatalf("seeded %d groups and %d columns, want 1 and 3", len(b.Groups), len(b.Columns))
	}
	if b.Columns[0].Type != model.ColumnStatus || len(b.Columns[0].Options) != 4 {
		t.Errorf("first column = %+v, want status with 4 options", b.Columns[0])
	}

	close(gate.release)
	flush(t, e)
	got, ok := e.Store().Board(b.ID)
	if !ok || !got.Loaded {
		t.Fatalf("board after persist = %+v, %v", got, ok)
	}
	rb, err := s.GetBoard(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("GetBoard: %v", err)
	}
	if len(rb.Groups) != 1 || len(rb.Columns) != 3 {
		t.Errorf("remote board has %d groups and %d columns", len(rb.Groups), len(rb.Columns))
	}
}

func TestDeleteGroupCascades(t *testing.T) {
	s := seededStore(t)
	e, _ := startEngine(t, s, wsync.Config{})

	if err := e.DeleteGroup(testutil.GroupTodo); err != nil {
		t.Fatalf("DeleteGroup: %v", err)
	}
	b := localBoard(t, e)
	if got := itemIDs(b.Items); !equalIDs(got, []string{testutil.Item3}) {
		t.Errorf("local items = %v", got)
	}
	checkGroupViews(t, b)
	if _, ok := e.Store().Item(testutil.Item1); ok {
		t.Error("item of deleted group still addressable")
	}

	flush(t, e)
	if got := itemIDs(remoteBoard(t, s).Items); !equalIDs(got, []string{testutil.Item3}) {
		t.Errorf("remote items = %v", got)
	}
}

func TestDeleteColumnDropsValues(t *testing.T) {
	s := seededStore(t)
	e, _ := startEngine(t, s, wsync.Config{})

	if err := e.DeleteColumn(testutil.ColStatus); err != nil {
		t.Fatalf("DeleteColumn: %v", err)
	}
	if _, ok := localItem(t, e, testutil.Item1).Values[testutil.ColStatus]; ok {
		t.Error("value of deleted column still present")
	}
	flush(t, e)
	if len(remoteBoard(t, s).Columns) != 2 {
		t.Error("remote column not deleted")
	}
}

type failingItems struct {
	remote.Remote
	fail  atomic.Bool
	calls atomic.Int32
}

func (f *failingItems) UpdateItem(ctx context.Context, id string, patch remote.Patch) error {
	f.calls.Add(1)
	if f.fail.Load() {
		return errors.New("update rejected")
	}
	return f.Remote.UpdateItem(ctx, id, patch)
}

func TestFailedWriteSchedulesReload(t *testing.T) {
	s := seededStore(t)
	faulty := &failingItems{Remote: s}
	e, hook := startEngine(t, faulty, wsync.Config{})

	faulty.fail.Store(true)
	if err := e.RenameItem(testutil.Item1, "Local"); err != nil {
		t.Fatalf("RenameItem returned the remote failure: %v", err)
	}
	if got := localItem(t, e, testutil.Item1).Title; got != "Local" {
		t.Fatalf("optimistic title = %q", got)
	}

	waitFor(t, "reload to restore the remote title", func() bool {
		it, ok := e.Store().Item(testutil.Item1)
		return ok && it.Title == "Design"
	})

	logged := false
	for _, entry := range hook.AllEntries() {
		if entry.Message == "remote write failed, scheduling reload" && entry.Data["op"] == "rename_item" {
			logged = true
		}
	}
	if !logged {
		t.Error("write failure not logged")
	}
}

func TestWritesRunInCallOrder(t *testing.T) {
	s := seededStore(t)
	e, _ := startEngine(t, s, wsync.Config{})

	for _, title := range []string{"one", "two", "three"} {
		if err := e.RenameItem(testutil.Item1, title); err != nil {
			t.Fatalf("RenameItem: %v", err)
		}
	}
	flush(t, e)
	it, _ := remoteBoard(t, s).Item(testutil.Item1)
	if it.Title != "three" {
		t.Errorf("remote title = %q, want the last write", it.Title)
	}
}
