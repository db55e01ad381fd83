package testutil

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nhle/workera/internal/feed"
	"github.com/nhle/workera/internal/model"
	"github.com/nhle/workera/internal/store"
)

// NewTestStore creates an in-memory SQLStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T, opts ...store.Option) *store.SQLStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:", opts...)
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// NewTestStoreWithHub creates a test store publishing to a fresh hub.
func NewTestStoreWithHub(t *testing.T) (*store.SQLStore, *feed.Hub) {
	t.Helper()
	hub := feed.NewHub(nil)
	return NewTestStore(t, store.WithPublisher(hub)), hub
}

// Fixture ids created by SeedBoard.
const (
	UserID      = "00000000-0000-4000-8000-000000000001"
	WorkspaceID = "00000000-0000-4000-8000-000000000010"
	BoardID     = "00000000-0000-4000-8000-000000000100"
	GroupTodo   = "00000000-0000-4000-8000-000000000201"
	GroupDone   = "00000000-0000-4000-8000-000000000202"
	ColStatus   = "00000000-0000-4000-8000-000000000301"
	ColText     = "00000000-0000-4000-8000-000000000302"
	ColTags     = "00000000-0000-4000-8000-000000000303"
	Item1       = "00000000-0000-4000-8000-000000000501"
	Item2       = "00000000-0000-4000-8000-000000000502"
	Item3       = "00000000-0000-4000-8000-000000000503"
)

// Option ids of the ColStatus and ColTags columns.
const (
	OptWorking = "00000000-0000-4000-8000-000000000401"
	OptDone    = "00000000-0000-4000-8000-000000000402"
	OptA       = "00000000-0000-4000-8000-000000000403"
	OptB       = "00000000-0000-4000-8000-000000000404"
)

// SeedBoard creates a workspace owned by UserID with one board carrying two
// groups, three columns and three items (Item1 and Item2 in GroupTodo,
// Item3 in GroupDone).
func SeedBoard(t *testing.T, s *store.SQLStore) {
	t.Helper()
	ctx := context.Background()

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seeding board: %v", err)
		}
	}
	must(s.CreateWorkspace(ctx, model.Workspace{ID: WorkspaceID, Title: "Main", OwnerID: UserID}))
	must(s.CreateBoard(ctx, model.Board{ID: BoardID, WorkspaceID: WorkspaceID, Title: "Roadmap", ItemColumnTitle: "Item", ItemColumnWidth: 320}))
	must(s.CreateGroup(ctx, model.Group{ID: GroupTodo, BoardID: BoardID, Title: "To do", Position: 0}))
	must(s.CreateGroup(ctx, model.Group{ID: GroupDone, BoardID: BoardID, Title: "Done", Position: 1}))
	must(s.CreateColumn(ctx, model.Column{
		ID: ColStatus, BoardID: BoardID, Title: "Status", Type: model.ColumnStatus, Position: 0,
		Options: []model.Option{
			{ID: OptWorking, Label: "Working on it", Color: "#fdab3d"},
			{ID: OptDone, Label: "Done", Color: "#00c875"},
		},
	}))
	must(s.CreateColumn(ctx, model.Column{ID: ColText, BoardID: BoardID, Title: "Notes", Type: model.ColumnText, Position: 1}))
	must(s.CreateColumn(ctx, model.Column{
		ID: ColTags, BoardID: BoardID, Title: "Tags", Type: model.ColumnDropdown, Position: 2,
		Options: []model.Option{{ID: OptA, Label: "A"}, {ID: OptB, Label: "B"}},
	}))
	must(s.CreateItem(ctx, model.Item{
		ID: Item1, BoardID: BoardID, GroupID: GroupTodo, Title: "Design", Position: 0,
		Values: map[string]json.RawMessage{ColStatus: json.RawMessage(`"` + OptWorking + `"`)},
	}))
	must(s.CreateItem(ctx, model.Item{ID: Item2, BoardID: BoardID, GroupID: GroupTodo, Title: "Build", Position: 1}))
	must(s.CreateItem(ctx, model.Item{ID: Item3, BoardID: BoardID, GroupID: GroupDone, Title: "Plan", Position: 2}))
}
