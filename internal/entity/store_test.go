package entity

import (
	"encoding/json"
	"errors"
	"sort"
	"testing"

	"github.com/nhle/workera/internal/model"
)

func seedBoard(t *testing.T, s *Store) {
	t.Helper()
	s.UpsertWorkspace(model.Workspace{ID: "ws1", Title: "Main"})
	s.ReplaceBoard(model.Board{
		ID:          "b1",
		WorkspaceID: "ws1",
		Title:       "Roadmap",
		Columns: []model.Column{
			{ID: "c-status", Type: model.ColumnStatus, Position: 0},
			{ID: "c-date", Type: model.ColumnDate, Position: 1},
		},
		Groups: []model.Group{
			{ID: "g1", Title: "Now", Position: 0},
			{ID: "g2", Title: "Later", Position: 1},
		},
		Items: []model.Item{
			{ID: "i1", GroupID: "g1", Position: 0, Values: map[string]json.RawMessage{"c-date": json.RawMessage(`"2024-01-02"`)}},
			{ID: "i2", GroupID: "g2", Position: 1},
			{ID: "i3", GroupID: "g1", Position: 2},
			{ID: "orphan", GroupID: "missing", Position: 3},
		},
		Loaded: true,
	})
}

// assertGroupUnion checks that group views partition the flat item list.
func assertGroupUnion(t *testing.T, b model.Board) {
	t.Helper()
	var flat, grouped []string
	for _, it := range b.Items {
		flat = append(flat, it.ID)
	}
	seen := make(map[string]bool)
	for _, g := range b.Groups {
		for _, it := range g.Items {
			if seen[it.ID] {
				t.Fatalf("item %s appears in more than one group view", it.ID)
			}
			if it.GroupID != g.ID {
				t.Fatalf("item %s listed under group %s but belongs to %s", it.ID, g.ID, it.GroupID)
			}
			seen[it.ID] = true
			grouped = append(grouped, it.ID)
		}
	}
	sort.Strings(flat)
	sort.Strings(grouped)
	if len(flat) != len(grouped) {
		t.Fatalf("flat items %v do not match group views %v", flat, grouped)
	}
	for i := range flat {
		if flat[i] != grouped[i] {
			t.Fatalf("flat items %v do not match group views %v", flat, grouped)
		}
	}
}

func itemIDs(b model.Board) []string {
	ids := make([]string, len(b.Items))
	for i, it := range b.Items {
		ids[i] = it.ID
	}
	return ids
}

func TestReplaceBoardDerivesGroupViews(t *testing.T) {
	s := New()
	seedBoard(t, s)

	b, ok := s.Board("b1")
	if !ok {
		t.Fatal("expected board b1")
	}
	assertGroupUnion(t, b)
	if len(b.Items) != 3 {
		t.Fatalf("expected orphan item to be hidden, got %v", itemIDs(b))
	}
	g1, _ := b.Group("g1")
	if ids := g1.ItemIDs(); len(ids) != 2 || ids[0] != "i1" || ids[1] != "i3" {
		t.Fatalf("unexpected g1 view %v", ids)
	}
}

func TestGroupUnionHoldsAcrossMutations(t *testing.T) {
	s := New()
	seedBoard(t, s)

	steps := []func() error{
		func() error { return s.InsertItem(model.Item{ID: "i4", BoardID: "b1", GroupID: "g2", Position: 3}) },
		func() error { return s.PatchItem("i1", func(it *model.Item) { it.GroupID = "g2" }) },
		func() error { return s.MoveItemToGroup("i2", "g1", 0) },
		func() error { return s.RemoveItem("i3") },
		func() error { return s.UpsertGroup(model.Group{ID: "g3", BoardID: "b1", Position: 2}) },
		func() error { return s.MoveItemToGroup("i4", "g3", 1) },
		func() error { return s.RemoveGroup("g2") },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		b, _ := s.Board("b1")
		assertGroupUnion(t, b)
	}
}

func TestRemoveGroupCascadesItems(t *testing.T) {
	s := New()
	seedBoard(t, s)

	if err := s.RemoveGroup("g1"); err != nil {
		t.Fatalf("remove group: %v", err)
	}
	b, _ := s.Board("b1")
	if _, ok := b.Group("g1"); ok {
		t.Fatal("expected group g1 to be removed")
	}
	if ids := itemIDs(b); len(ids) != 1 || ids[0] != "i2" {
		t.Fatalf("expected only i2 to remain, got %v", ids)
	}
	if _, ok := s.Item("i1"); ok {
		t.Fatal("expected i1 to be removed with its group")
	}
	if _, ok := s.BoardOf("i3"); ok {
		t.Fatal("expected owner index entry of i3 to be dropped")
	}
}

func TestRemoveColumnDropsItemValues(t *testing.T) {
	s := New()
	seedBoard(t, s)

	if err := s.RemoveColumn("c-date"); err != nil {
		t.Fatalf("remove column: %v", err)
	}
	it, _ := s.Item("i1")
	if _, ok := it.Values["c-date"]; ok {
		t.Fatal("expected value of removed column to be dropped")
	}
}

func TestInsertItemRejectsDuplicatesAndUnknownGroups(t *testing.T) {
	s := New()
	seedBoard(t, s)

	err := s.InsertItem(model.Item{ID: "i1", BoardID: "b1", GroupID: "g1"})
	if !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	err = s.InsertItem(model.Item{ID: "new", BoardID: "b1", GroupID: "nope"})
	if !errors.Is(err, ErrUnknownGroup) {
		t.Fatalf("expected ErrUnknownGroup, got %v", err)
	}
	err = s.InsertItem(model.Item{ID: "new", BoardID: "nope", GroupID: "g1"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetItemOrderRestampsPositions(t *testing.T) {
	s := New()
	seedBoard(t, s)

	if err := s.SetItemOrder("b1", []string{"i3", "i1"}); !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("expected ErrInvalidOrder for partial sequence, got %v", err)
	}
	if err := s.SetItemOrder("b1", []string{"i3", "i1", "i2"}); err != nil {
		t.Fatalf("set item order: %v", err)
	}
	b, _ := s.Board("b1")
	for i, it := range b.Items {
		if it.Position != i {
			t.Fatalf("expected dense positions, got %d at %d", it.Position, i)
		}
	}
	if ids := itemIDs(b); ids[0] != "i3" || ids[1] != "i1" || ids[2] != "i2" {
		t.Fatalf("unexpected order %v", ids)
	}
}

func TestBoardSnapshotIsDeepCopy(t *testing.T) {
	s := New()
	seedBoard(t, s)

	b, _ := s.Board("b1")
	b.Items[0].Title = "mutated"
	b.Items[0].Values["c-date"] = json.RawMessage(`"1999-01-01"`)
	b.Columns[0].Title = "mutated"

	it, _ := s.Item("i1")
	if it.Title == "mutated" || string(it.Values["c-date"]) != `"2024-01-02"` {
		t.Fatalf("store item changed through a snapshot: %+v", it)
	}
	col, _ := s.Column("c-status")
	if col.Title == "mutated" {
		t.Fatal("store column changed through a snapshot")
	}
}

func TestVersionsAreMonotonicAndPublished(t *testing.T) {
	s := New()
	changes, cancel := s.Subscribe(16)
	defer cancel()

	s.UpsertWorkspace(model.Workspace{ID: "ws1"})
	v1 := s.Version("ws1")
	_ = s.PatchWorkspace("ws1", func(ws *model.Workspace) { ws.Title = "Renamed" })
	v2 := s.Version("ws1")
	if v1 == 0 || v2 <= v1 {
		t.Fatalf("expected increasing versions, got %d then %d", v1, v2)
	}

	first := <-changes
	second := <-changes
	if first.Kind != KindWorkspace || first.EntityID != "ws1" || first.Version != v1 {
		t.Fatalf("unexpected first change %+v", first)
	}
	if second.Version != v2 {
		t.Fatalf("unexpected second change %+v", second)
	}
}

func TestResetPublishesEveryRemoval(t *testing.T) {
	s := New()
	seedBoard(t, s)
	s.UpsertNotification(model.Notification{ID: "n1", UserID: "u1"})
	changes, cancel := s.Subscribe(64)
	defer cancel()

	s.Reset()

	removed := make(map[string]Kind)
	for len(changes) > 0 {
		c := <-changes
		if !c.Removed {
			t.Fatalf("reset published a non-removal %+v", c)
		}
		removed[c.EntityID] = c.Kind
	}
	want := map[string]Kind{
		"ws1": KindWorkspace, "b1": KindBoard, "g1": KindGroup, "g2": KindGroup,
		"c-status": KindColumn, "c-date": KindColumn, "i1": KindItem, "i2": KindItem, "i3": KindItem,
		"n1": KindNotification,
	}
	for id, kind := range want {
		if removed[id] != kind {
			t.Errorf("removal of %s = %q, want %q", id, removed[id], kind)
		}
	}
	if len(removed) != len(want) {
		t.Errorf("removed %v, want %d entities", removed, len(want))
	}
	if s.Version("i1") != 0 || len(s.Workspaces()) != 0 || len(s.Notifications()) != 0 {
		t.Error("reset kept state")
	}
}

func TestRemoveWorkspaceCascadesBoards(t *testing.T) {
	s := New()
	seedBoard(t, s)

	if err := s.RemoveWorkspace("ws1"); err != nil {
		t.Fatalf("remove workspace: %v", err)
	}
	if s.HasBoard("b1") {
		t.Fatal("expected board to be removed with its workspace")
	}
	if _, ok := s.Item("i1"); ok {
		t.Fatal("expected items to be removed with their board")
	}
	if len(s.Workspaces()) != 0 {
		t.Fatal("expected no workspaces")
	}
}

func TestPatchBoardMovesBetweenWorkspaces(t *testing.T) {
	s := New()
	seedBoard(t, s)
	s.UpsertWorkspace(model.Workspace{ID: "ws2", Position: 1})
	s.UpsertBoard(model.Board{ID: "b2", WorkspaceID: "ws2", Position: 0})

	if err := s.PatchBoard("b1", func(b *model.Board) { b.WorkspaceID = "ws2" }); err != nil {
		t.Fatalf("patch board: %v", err)
	}
	if len(s.Boards("ws1")) != 0 {
		t.Fatal("expected ws1 to have no boards")
	}
	boards := s.Boards("ws2")
	if len(boards) != 2 || boards[1].ID != "b1" || boards[1].Position != 1 {
		t.Fatalf("expected b1 appended to ws2, got %+v", boards)
	}
	if len(boards[1].Items) != 3 {
		t.Fatal("expected board content to move with the board")
	}
}

func TestNotificationsNewestFirst(t *testing.T) {
	s := New()
	s.ReplaceNotifications([]model.Notification{
		{ID: "n1", CreatedAt: 10},
		{ID: "n2", CreatedAt: 30},
		{ID: "n3", CreatedAt: 20},
	})
	list := s.Notifications()
	if list[0].ID != "n2" || list[1].ID != "n3" || list[2].ID != "n1" {
		t.Fatalf("unexpected order %+v", list)
	}
	if err := s.RemoveNotification("n2"); err != nil {
		t.Fatalf("remove notification: %v", err)
	}
	if _, ok := s.Notification("n2"); ok {
		t.Fatal("expected n2 to be removed")
	}
}
