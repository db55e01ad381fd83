package sync_test

import (
	"context"
	"testing"

	"github.com/nhle/workera/internal/model"
	wsync "github.com/nhle/workera/internal/sync"
	"github.com/nhle/workera/tests/testutil"
)

func groupPositions(groups []model.Group) []int {
	out := make([]int, len(groups))
	for i, g := range groups {
		out[i] = g.Position
	}
	return out
}

func TestMoveGroupTwoToZero(t *testing.T) {
	s := seededStore(t)
	e, _ := startEngine(t, s, wsync.Config{})
	for _, title := range []string{"Three", "Four", "Five"} {
		if _, err := e.CreateGroup(testutil.BoardID, title); err != nil {
			t.Fatalf("CreateGroup: %v", err)
		}
	}
	before := groupIDs(localBoard(t, e).Groups)
	if len(before) != 5 {
		t.Fatalf("groups = %v", before)
	}

	if err := e.MoveGroup(before[2], before[0]); err != nil {
		t.Fatalf("MoveGroup: %v", err)
	}
	want := []string{before[2], before[0], before[1], before[3], before[4]}
	b := localBoard(t, e)
	if got := groupIDs(b.Groups); !equalIDs(got, want) {
		t.Errorf("local groups = %v, want %v", got, want)
	}
	checkDense(t, "local group", groupPositions(b.Groups))

	flush(t, e)
	rb := remoteBoard(t, s)
	if got := groupIDs(rb.Groups); !equalIDs(got, want) {
		t.Errorf("remote groups = %v, want %v", got, want)
	}
	checkDense(t, "remote group", groupPositions(rb.Groups))
}

func TestMoveSameIDIsNoop(t *testing.T) {
	s := seededStore(t)
	e, _ := startEngine(t, s, wsync.Config{})
	before := localBoard(t, e)
	if err := e.MoveItem(testutil.BoardID, testutil.Item1, testutil.Item1, ""); err != nil {
		t.Fatalf("MoveItem: %v", err)
	}
	if err := e.MoveGroup(testutil.GroupTodo, testutil.GroupTodo); err != nil {
		t.Fatalf("MoveGroup: %v", err)
	}
	after := localBoard(t, e)
	if !equalIDs(itemIDs(after.Items), itemIDs(before.Items)) || !equalIDs(groupIDs(after.Groups), groupIDs(before.Groups)) {
		t.Error("same-id move changed the board")
	}
	if _, ok := e.LastOptimisticUpdate(testutil.Item1); ok {
		t.Error("same-id move recorded an optimistic write")
	}
}

func TestMoveItemWithinGroup(t *testing.T) {
	s := seededStore(t)
	e, _ := startEngine(t, s, wsync.Config{})

	if err := e.MoveItem(testutil.BoardID, testutil.Item2, testutil.Item1, ""); err != nil {
		t.Fatalf("MoveItem: %v", err)
	}
	want := []string{testutil.Item2, testutil.Item1, testutil.Item3}
	b := localBoard(t, e)
	if got := itemIDs(b.Items); !equalIDs(got, want) {
		t.Errorf("local items = %v, want %v", got, want)
	}
	checkDense(t, "local item", itemPositions(b.Items))
	checkGroupViews(t, b)

	flush(t, e)
	rb := remoteBoard(t, s)
	if got := itemIDs(rb.Items); !equalIDs(got, want) {
		t.Errorf("remote items = %v, want %v", got, want)
	}
	checkDense(t, "remote item", itemPositions(rb.Items))
}

func TestMoveItemAcrossGroups(t *testing.T) {
	s := seededStore(t)
	e, _ := startEngine(t, s, wsync.Config{})

	if err := e.MoveItem(testutil.BoardID, testutil.Item1, testutil.Item3, ""); err != nil {
		t.Fatalf("MoveItem: %v", err)
	}
	want := []string{testutil.Item2, testutil.Item3, testutil.Item1}
	b := localBoard(t, e)
	if got := itemIDs(b.Items); !equalIDs(got, want) {
		t.Errorf("local items = %v, want %v", got, want)
	}
	checkGroupViews(t, b)
	checkDense(t, "local item", itemPositions(b.Items))
	done, _ := b.Group(testutil.GroupDone)
	if got := itemIDs(done.Items); !equalIDs(got, []string{testutil.Item3, testutil.Item1}) {
		t.Errorf("done view = %v", got)
	}

	flush(t, e)
	rb := remoteBoard(t, s)
	if got := itemIDs(rb.Items); !equalIDs(got, want) {
		t.Errorf("remote items = %v, want %v", got, want)
	}
	moved, _ := rb.Item(testutil.Item1)
	if moved.GroupID != testutil.GroupDone {
		t.Errorf("remote group = %s, want %s", moved.GroupID, testutil.GroupDone)
	}
}

func TestMoveItemOntoEmptyGroup(t *testing.T) {
	s := seededStore(t)
	e, _ := startEngine(t, s, wsync.Config{})
	empty, err := e.CreateGroup(testutil.BoardID, "Later")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	if err := e.MoveItem(testutil.BoardID, testutil.Item3, "", empty.ID); err != nil {
		t.Fatalf("MoveItem: %v", err)
	}
	b := localBoard(t, e)
	if got := itemIDs(b.Items); !equalIDs(got, []string{testutil.Item3, testutil.Item1, testutil.Item2}) {
		t.Errorf("local items = %v", got)
	}
	g, _ := b.Group(empty.ID)
	if got := itemIDs(g.Items); !equalIDs(got, []string{testutil.Item3}) {
		t.Errorf("new group view = %v", got)
	}
	checkGroupViews(t, b)

	flush(t, e)
	moved, _ := remoteBoard(t, s).Item(testutil.Item3)
	if moved.GroupID != empty.ID || moved.Position != 0 {
		t.Errorf("remote item = group %s position %d", moved.GroupID, moved.Position)
	}
}

func TestMoveBoardAndWorkspace(t *testing.T) {
	s := seededStore(t)
	e, _ := startEngine(t, s, wsync.Config{})

	second, err := e.CreateBoard(testutil.WorkspaceID, "Second")
	if err != nil {
		t.Fatalf("CreateBoard: %v", err)
	}
	if err := e.MoveBoard(second.ID, testutil.BoardID); err != nil {
		t.Fatalf("MoveBoard: %v", err)
	}
	boards := e.Store().Boards(testutil.WorkspaceID)
	if len(boards) != 2 || boards[0].ID != second.ID || boards[0].Position != 0 || boards[1].Position != 1 {
		t.Errorf("boards = %+v", boards)
	}

	ws, err := e.CreateWorkspace("Side")
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	if err := e.MoveWorkspace(ws.ID, testutil.WorkspaceID); err != nil {
		t.Fatalf("MoveWorkspace: %v", err)
	}

	flush(t, e)
	list, err := s.ListBoards(context.Background(), testutil.WorkspaceID)
	if err != nil {
		t.Fatalf("ListBoards: %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID {
		t.Errorf("remote boards = %+v", list)
	}
	workspaces, err := s.ListWorkspaces(context.Background(), testutil.UserID)
	if err != nil {
		t.Fatalf("ListWorkspaces: %v", err)
	}
	if len(workspaces) != 2 || workspaces[0].ID != ws.ID {
		t.Errorf("remote workspaces = %+v", workspaces)
	}
}

func TestMoveColumn(t *testing.T) {
	s := seededStore(t)
	e, _ := startEngine(t, s, wsync.Config{})

	if err := e.MoveColumn(testutil.ColTags, testutil.ColStatus); err != nil {
		t.Fatalf("MoveColumn: %v", err)
	}
	flush(t, e)
	want := []string{testutil.ColTags, testutil.ColStatus, testutil.ColText}
	for _, b := range []model.Board{localBoard(t, e), *remoteBoard(t, s)} {
		var got []string
		for _, c := range b.Columns {
			got = append(got, c.ID)
		}
		if !equalIDs(got, want) {
			t.Errorf("columns = %v, want %v", got, want)
		}
	}
}

func TestMoveWorkspaceAmongSharedWorkspaces(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()
	shared := model.Workspace{ID: model.NewID(), Title: "Partner", OwnerID: model.NewID()}
	if err := s.CreateWorkspace(ctx, shared); err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	err := s.CreateMembership(ctx, model.Membership{
		ID: model.NewID(), Kind: model.MembershipWorkspace, EntityID: shared.ID, UserID: testutil.UserID, Role: model.RoleEditor,
	})
	if err != nil {
		t.Fatalf("CreateMembership: %v", err)
	}
	e, hook := startEngine(t, s, wsync.Config{})
	if _, ok := e.Store().Workspace(shared.ID); !ok {
		t.Fatal("shared workspace not loaded")
	}

	side, err := e.CreateWorkspace("Side")
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	if err := e.MoveWorkspace(side.ID, testutil.WorkspaceID); err != nil {
		t.Fatalf("MoveWorkspace: %v", err)
	}
	if err := e.MoveWorkspace(side.ID, shared.ID); err == nil {
		t.Error("moving onto a shared workspace succeeded")
	}
	flush(t, e)

	for _, entry := range hook.AllEntries() {
		if entry.Message == "remote write failed, scheduling reload" {
			t.Fatalf("reorder rejected remotely: %v", entry.Data)
		}
	}
	list, err := s.ListWorkspaces(ctx, testutil.UserID)
	if err != nil {
		t.Fatalf("ListWorkspaces: %v", err)
	}
	var owned []string
	for _, ws := range list {
		if ws.OwnerID == testutil.UserID {
			owned = append(owned, ws.ID)
		}
	}
	if !equalIDs(owned, []string{side.ID, testutil.WorkspaceID}) {
		t.Errorf("remote owned order = %v", owned)
	}
	local, _ := e.Store().Workspace(side.ID)
	if local.Position != 0 {
		t.Errorf("local position of moved workspace = %d, want 0", local.Position)
	}
	if got, _ := e.Store().Workspace(shared.ID); got.Position != shared.Position {
		t.Errorf("shared workspace restamped to %d", got.Position)
	}
}
