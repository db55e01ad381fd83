package sync_test

import (
	"context"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/nhle/workera/internal/feed"
	"github.com/nhle/workera/internal/model"
	"github.com/nhle/workera/internal/remote"
	"github.com/nhle/workera/internal/store"
	wsync "github.com/nhle/workera/internal/sync"
	"github.com/nhle/workera/tests/testutil"
)

const testTimeout = 5 * time.Second

// seededStore returns an in-memory remote holding the testutil board.
func seededStore(t *testing.T) *store.SQLStore {
	t.Helper()
	s := testutil.NewTestStore(t)
	testutil.SeedBoard(t, s)
	return s
}

// startEngine creates an engine on r, activates the seeded workspace and
// closes the engine when the test ends. Logs go to the returned hook.
func startEngine(t *testing.T, r remote.Remote, cfg wsync.Config) (*wsync.Engine, *logtest.Hook) {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	if cfg.UserID == "" {
		cfg.UserID = testutil.UserID
	}
	if cfg.Logger == nil {
		cfg.Logger = logger
	}
	e := wsync.New(r, cfg)
	t.Cleanup(func() {
		if err := e.Close(); err != nil {
			t.Errorf("closing engine: %v", err)
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := e.ActivateWorkspace(ctx, testutil.WorkspaceID); err != nil {
		t.Fatalf("ActivateWorkspace: %v", err)
	}
	return e, hook
}

func flush(t *testing.T, e *wsync.Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := e.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func localBoard(t *testing.T, e *wsync.Engine) model.Board {
	t.Helper()
	b, ok := e.Store().Board(testutil.BoardID)
	if !ok {
		t.Fatalf("board %s not loaded", testutil.BoardID)
	}
	return b
}

func remoteBoard(t *testing.T, s *store.SQLStore) *model.Board {
	t.Helper()
	b, err := s.GetBoard(context.Background(), testutil.BoardID)
	if err != nil {
		t.Fatalf("GetBoard: %v", err)
	}
	return b
}

func localItem(t *testing.T, e *wsync.Engine, id string) model.Item {
	t.Helper()
	it, ok := e.Store().Item(id)
	if !ok {
		t.Fatalf("item %s not loaded", id)
	}
	return it
}

func itemIDs(items []model.Item) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

func groupIDs(groups []model.Group) []string {
	ids := make([]string, len(groups))
	for i, g := range groups {
		ids[i] = g.ID
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

// checkGroupViews asserts that the group views partition the flat item
// list in flat order.
func checkGroupViews(t *testing.T, b model.Board) {
	t.Helper()
	byGroup := make(map[string][]string)
	for _, it := range b.Items {
		byGroup[it.GroupID] = append(byGroup[it.GroupID], it.ID)
	}
	total := 0
	for _, g := range b.Groups {
		got := itemIDs(g.Items)
		if !equalIDs(got, byGroup[g.ID]) && !(len(got) == 0 && len(byGroup[g.ID]) == 0) {
			t.Errorf("group %s view = %v, want %v", g.ID, got, byGroup[g.ID])
		}
		total += len(got)
	}
	if total != len(b.Items) {
		t.Errorf("group views hold %d items, flat list holds %d", total, len(b.Items))
	}
}

// checkDense asserts positions 0..n-1 in list order.
func checkDense(t *testing.T, what string, positions []int) {
	t.Helper()
	for i, p := range positions {
		if p != i {
			t.Errorf("%s positions = %v, want dense 0..%d", what, positions, len(positions)-1)
			return
		}
	}
}

func itemPositions(items []model.Item) []int {
	out := make([]int, len(items))
	for i, it := range items {
		out[i] = it.Position
	}
	return out
}

func rowEvent(t *testing.T, table string, typ feed.EventType, row any) feed.Event {
	t.Helper()
	ev, err := feed.NewRowEvent(table, typ, row, testutil.WorkspaceID, testutil.UserID)
	if err != nil {
		t.Fatalf("NewRowEvent: %v", err)
	}
	return ev
}
