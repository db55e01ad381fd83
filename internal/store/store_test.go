package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nhle/workera/internal/feed"
	"github.com/nhle/workera/internal/model"
	"github.com/nhle/workera/internal/remote"
	"github.com/nhle/workera/internal/store"
	"github.com/nhle/workera/tests/testutil"
)

func itemIDs(b *model.Board) []string {
	ids := make([]string, 0, len(b.Items))
	for _, it := range b.Items {
		ids = append(ids, it.ID)
	}
	return ids
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestGetBoardLoadsContentInOrder(t *testing.T) {
	s := testutil.NewTestStore(t)
	testutil.SeedBoard(t, s)

	b, err := s.GetBoard(context.Background(), testutil.BoardID)
	if err != nil {
		t.Fatalf("GetBoard: %v", err)
	}
	if !b.Loaded {
		t.Error("board not marked loaded")
	}
	if len(b.Columns) != 3 || b.Columns[0].ID != testutil.ColStatus {
		t.Fatalf("columns = %+v", b.Columns)
	}
	if len(b.Columns[0].Options) != 2 {
		t.Errorf("status options = %+v, want 2", b.Columns[0].Options)
	}
	if len(b.Groups) != 2 || b.Groups[0].ID != testutil.GroupTodo {
		t.Fatalf("groups = %+v", b.Groups)
	}
	if got := itemIDs(b); !equalIDs(got, []string{testutil.Item1, testutil.Item2, testutil.Item3}) {
		t.Errorf("items = %v", got)
	}
	if got := string(b.Items[0].Values[testutil.ColStatus]); got != `"`+testutil.OptWorking+`"` {
		t.Errorf("status value = %s", got)
	}
}

func TestGetBoardMissing(t *testing.T) {
	s := testutil.NewTestStore(t)
	_, err := s.GetBoard(context.Background(), "nope")
	if !errors.Is(err, remote.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateDuplicateIsConflict(t *testing.T) {
	s := testutil.NewTestStore(t)
	testutil.SeedBoard(t, s)
	err := s.CreateItem(context.Background(), model.Item{ID: testutil.Item1, BoardID: testutil.BoardID, GroupID: testutil.GroupTodo})
	if !errors.Is(err, remote.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestUpdateItemPatch(t *testing.T) {
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)
	s := testutil.NewTestStore(t, store.WithClock(func() time.Time { return now }))
	testutil.SeedBoard(t, s)

	err := s.UpdateItem(ctx, testutil.Item2, remote.Patch{
		"title":     "Build it",
		"group_id":  testutil.GroupDone,
		"is_hidden": true,
	})
	if err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
	b, _ := s.GetBoard(ctx, testutil.BoardID)
	it := b.Items[1]
	if it.Title != "Build it" || it.GroupID != testutil.GroupDone || !it.IsHidden {
		t.Errorf("item = %+v", it)
	}
	if it.UpdatedAt != now.UnixMilli() {
		t.Errorf("updated_at = %d, want %d", it.UpdatedAt, now.UnixMilli())
	}

	if err := s.UpdateItem(ctx, testutil.Item2, remote.Patch{"owner": "x"}); err == nil {
		t.Error("expected error for unknown field")
	}
	if err := s.UpdateItem(ctx, "missing", remote.Patch{"title": "x"}); !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSetItemValue(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	testutil.SeedBoard(t, s)

	if err := s.SetItemValue(ctx, testutil.Item2, testutil.ColText, json.RawMessage(`"hello"`)); err != nil {
		t.Fatalf("SetItemValue: %v", err)
	}
	if err := s.SetItemValue(ctx, testutil.Item1, testutil.ColStatus, json.RawMessage(`null`)); err != nil {
		t.Fatalf("SetItemValue null: %v", err)
	}
	b, _ := s.GetBoard(ctx, testutil.BoardID)
	if got := string(b.Items[1].Values[testutil.ColText]); got != `"hello"` {
		t.Errorf("text value = %s", got)
	}
	if _, ok := b.Items[0].Values[testutil.ColStatus]; ok {
		t.Error("null value should remove the entry")
	}
}

func TestDeleteGroupCascadesItems(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	testutil.SeedBoard(t, s)

	if err := s.DeleteGroup(ctx, testutil.GroupTodo); err != nil {
		t.Fatalf("DeleteGroup: %v", err)
	}
	b, _ := s.GetBoard(ctx, testutil.BoardID)
	if len(b.Groups) != 1 {
		t.Errorf("groups = %d, want 1", len(b.Groups))
	}
	if got := itemIDs(b); !equalIDs(got, []string{testutil.Item3}) {
		t.Errorf("items = %v, want [Item3]", got)
	}
}

func TestDeleteColumnDropsValues(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	testutil.SeedBoard(t, s)

	if err := s.DeleteColumn(ctx, testutil.ColStatus); err != nil {
		t.Fatalf("DeleteColumn: %v", err)
	}
	b, _ := s.GetBoard(ctx, testutil.BoardID)
	if len(b.Columns) != 2 {
		t.Errorf("columns = %d, want 2", len(b.Columns))
	}
	if _, ok := b.Items[0].Values[testutil.ColStatus]; ok {
		t.Error("deleted column value still present")
	}
}

func TestDeleteWorkspaceCascades(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	testutil.SeedBoard(t, s)

	if err := s.DeleteWorkspace(ctx, testutil.WorkspaceID); err != nil {
		t.Fatalf("DeleteWorkspace: %v", err)
	}
	if _, err := s.GetBoard(ctx, testutil.BoardID); !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("board still present: %v", err)
	}
	list, err := s.ListWorkspaces(ctx, testutil.UserID)
	if err != nil {
		t.Fatalf("ListWorkspaces: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("workspaces = %+v, want none", list)
	}
}

func TestReorderRewritesPositions(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	testutil.SeedBoard(t, s)

	order := []string{testutil.Item3, testutil.Item1, testutil.Item2}
	if err := s.Reorder(ctx, remote.CollectionItems, testutil.BoardID, order); err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	b, _ := s.GetBoard(ctx, testutil.BoardID)
	if got := itemIDs(b); !equalIDs(got, order) {
		t.Errorf("items = %v, want %v", got, order)
	}
	for i, it := range b.Items {
		if it.Position != i {
			t.Errorf("item %s position = %d, want %d", it.ID, it.Position, i)
		}
	}
}

func TestReorderRejectsPartialSet(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	testutil.SeedBoard(t, s)

	err := s.Reorder(ctx, remote.CollectionItems, testutil.BoardID, []string{testutil.Item2, testutil.Item1})
	if !errors.Is(err, remote.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	b, _ := s.GetBoard(ctx, testutil.BoardID)
	if got := itemIDs(b); !equalIDs(got, []string{testutil.Item1, testutil.Item2, testutil.Item3}) {
		t.Errorf("order changed to %v", got)
	}
}

func TestReorderWorkspacesByOwner(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	testutil.SeedBoard(t, s)
	if err := s.CreateWorkspace(ctx, model.Workspace{ID: "ws-2", Title: "Side", Position: 1, OwnerID: testutil.UserID}); err != nil {
		t.Fatal(err)
	}

	if err := s.Reorder(ctx, remote.CollectionWorkspaces, testutil.UserID, []string{"ws-2", testutil.WorkspaceID}); err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	list, _ := s.ListWorkspaces(ctx, testutil.UserID)
	if len(list) != 2 || list[0].ID != "ws-2" {
		t.Errorf("workspaces = %+v", list)
	}
}

func TestMembershipsAndSharedWorkspaces(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	testutil.SeedBoard(t, s)

	if _, err := s.FindMembership(ctx, model.MembershipBoard, testutil.BoardID, "guest"); !errors.Is(err, remote.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	m := model.Membership{ID: "m-1", Kind: model.MembershipBoard, EntityID: testutil.BoardID, UserID: "guest"}
	if err := s.CreateMembership(ctx, m); err != nil {
		t.Fatalf("CreateMembership: %v", err)
	}
	got, err := s.FindMembership(ctx, model.MembershipBoard, testutil.BoardID, "guest")
	if err != nil {
		t.Fatalf("FindMembership: %v", err)
	}
	if got.Role != model.RoleEditor {
		t.Errorf("role = %q, want default editor", got.Role)
	}

	m.ID = "m-2"
	if err := s.CreateMembership(ctx, m); !errors.Is(err, remote.ErrConflict) {
		t.Errorf("duplicate membership err = %v, want ErrConflict", err)
	}

	list, err := s.ListWorkspaces(ctx, "guest")
	if err != nil {
		t.Fatalf("ListWorkspaces: %v", err)
	}
	if len(list) != 1 || list[0].ID != testutil.WorkspaceID {
		t.Errorf("guest workspaces = %+v", list)
	}
}

func TestNotificationsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	for i, id := range []string{"n-old", "n-new"} {
		err := s.CreateNotification(ctx, model.Notification{
			ID: id, Type: model.NotificationWorkspaceInvite, UserID: "u",
			Data:      model.NotificationData{Status: model.InviteStatusPending},
			CreatedAt: int64(1000 + i),
		})
		if err != nil {
			t.Fatalf("CreateNotification: %v", err)
		}
	}
	if err := s.UpdateNotification(ctx, "n-old", remote.Patch{
		"is_read": true,
		"data":    model.NotificationData{Status: model.InviteStatusDeclined},
	}); err != nil {
		t.Fatalf("UpdateNotification: %v", err)
	}

	list, err := s.ListNotifications(ctx, "u")
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(list) != 2 || list[0].ID != "n-new" {
		t.Fatalf("notifications = %+v", list)
	}
	if !list[1].IsRead || list[1].Data.Status != model.InviteStatusDeclined {
		t.Errorf("patched notification = %+v", list[1])
	}

	if err := s.DeleteNotification(ctx, "n-new"); err != nil {
		t.Fatalf("DeleteNotification: %v", err)
	}
	list, _ = s.ListNotifications(ctx, "u")
	if len(list) != 1 {
		t.Errorf("notifications after delete = %d, want 1", len(list))
	}
}

func TestActivityLog(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	testutil.SeedBoard(t, s)

	err := s.AppendActivity(ctx, model.Activity{
		ID: "a-1", BoardID: testutil.BoardID, ItemID: testutil.Item1, UserID: testutil.UserID,
		EntityType: "item", Action: model.ActivityRename, Field: model.FieldTitle,
		Before: json.RawMessage(`"Design"`), After: json.RawMessage(`"Design v2"`),
	})
	if err != nil {
		t.Fatalf("AppendActivity: %v", err)
	}
	list, err := s.ListActivity(ctx, testutil.BoardID, 10)
	if err != nil {
		t.Fatalf("ListActivity: %v", err)
	}
	if len(list) != 1 || string(list[0].After) != `"Design v2"` {
		t.Errorf("activity = %+v", list)
	}
}

func TestCommittedChangesArePublished(t *testing.T) {
	ctx := context.Background()
	s, hub := testutil.NewTestStoreWithHub(t)
	testutil.SeedBoard(t, s)

	sub, err := hub.Subscribe(ctx, feed.Scope{WorkspaceID: testutil.WorkspaceID, UserID: testutil.UserID})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	if err := s.UpdateItem(ctx, testutil.Item1, remote.Patch{"title": "Renamed"}); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
	select {
	case e := <-sub.Events():
		if e.Table != model.TableItems || e.Type != feed.EventUpdate || e.RowID() != testutil.Item1 {
			t.Errorf("event = %+v", e)
		}
		var it model.Item
		if err := json.Unmarshal(e.New, &it); err != nil {
			t.Fatalf("decoding row: %v", err)
		}
		if it.Title != "Renamed" {
			t.Errorf("row title = %q", it.Title)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

func TestFailedWriteIsNotPublished(t *testing.T) {
	ctx := context.Background()
	s, hub := testutil.NewTestStoreWithHub(t)
	testutil.SeedBoard(t, s)

	sub, err := hub.Subscribe(ctx, feed.Scope{WorkspaceID: testutil.WorkspaceID})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	if err := s.Reorder(ctx, remote.CollectionItems, testutil.BoardID, []string{testutil.Item1}); err == nil {
		t.Fatal("expected conflict")
	}
	select {
	case e := <-sub.Events():
		t.Errorf("unexpected event %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}
