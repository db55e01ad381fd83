package sync_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/nhle/workera/internal/localstate"
	"github.com/nhle/workera/internal/model"
	"github.com/nhle/workera/internal/remote"
	wsync "github.com/nhle/workera/internal/sync"
	"github.com/nhle/workera/tests/testutil"
)

// newEngine creates an engine without activating a workspace.
func newEngine(t *testing.T, r remote.Remote, cfg wsync.Config) *wsync.Engine {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
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
	return e
}

func TestStartBootstrapsFirstLogin(t *testing.T) {
	s := testutil.NewTestStore(t)
	state := localstate.Open(filepath.Join(t.TempDir(), "state.yaml"))
	e := newEngine(t, s, wsync.Config{State: state})
	ctx := context.Background()

	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	workspaces := e.Store().Workspaces()
	if len(workspaces) != 1 || workspaces[0].Title != wsync.DefaultWorkspaceTitle {
		t.Fatalf("workspaces = %+v", workspaces)
	}
	ws := workspaces[0]
	if ws.OwnerID != testutil.UserID || e.ActiveWorkspace() != ws.ID {
		t.Errorf("workspace %+v, active %q", ws, e.ActiveWorkspace())
	}
	b, ok := e.Store().Board(e.ActiveBoard())
	if !ok || b.Title != wsync.TemplateBoardTitle || !b.Loaded {
		t.Fatalf("active board = %+v, %v", b, ok)
	}
	if len(b.Items) != 3 {
		t.Errorf("template items = %v", itemIDs(b.Items))
	}
	checkGroupViews(t, b)

	remoteList, err := s.ListWorkspaces(ctx, testutil.UserID)
	if err != nil {
		t.Fatalf("ListWorkspaces: %v", err)
	}
	if len(remoteList) != 1 || remoteList[0].ID != ws.ID {
		t.Errorf("remote workspaces = %+v", remoteList)
	}
	rb, err := s.GetBoard(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBoard: %v", err)
	}
	if len(rb.Items) != 3 {
		t.Errorf("remote template items = %d", len(rb.Items))
	}

	saved, err := state.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if saved.WorkspaceID != ws.ID || saved.BoardID != b.ID {
		t.Errorf("saved state = %+v", saved)
	}
}

type failingWorkspaces struct {
	remote.Remote
}

func (failingWorkspaces) CreateWorkspace(context.Context, model.Workspace) error {
	return errors.New("insert rejected")
}

func TestBootstrapFailureIsReported(t *testing.T) {
	s := testutil.NewTestStore(t)
	e := newEngine(t, failingWorkspaces{Remote: s}, wsync.Config{})

	err := e.Start(context.Background())
	if !errors.Is(err, wsync.ErrBootstrap) {
		t.Fatalf("Start: err = %v, want ErrBootstrap", err)
	}
	if len(e.Store().Workspaces()) != 0 {
		t.Error("failed bootstrap left workspaces in the store")
	}
}

func TestStartRestoresSavedSelection(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()
	const (
		sideSpace = "00000000-0000-4000-8000-000000000011"
		sideBoard = "00000000-0000-4000-8000-000000000101"
		lateBoard = "00000000-0000-4000-8000-000000000102"
	)
	if err := s.CreateWorkspace(ctx, model.Workspace{ID: sideSpace, Title: "Side", OwnerID: testutil.UserID, Position: 1}); err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	for i, id := range []string{sideBoard, lateBoard} {
		if err := s.CreateBoard(ctx, model.Board{ID: id, WorkspaceID: sideSpace, Title: "Side board", Position: i}); err != nil {
			t.Fatalf("CreateBoard: %v", err)
		}
	}
	state := localstate.Open(filepath.Join(t.TempDir(), "state.yaml"))
	if err := state.Save(localstate.State{WorkspaceID: sideSpace, BoardID: lateBoard}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	e := newEngine(t, s, wsync.Config{State: state})
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if e.ActiveWorkspace() != sideSpace || e.ActiveBoard() != lateBoard {
		t.Errorf("active = %s / %s, want the saved selection", e.ActiveWorkspace(), e.ActiveBoard())
	}
	list, err := s.ListWorkspaces(ctx, testutil.UserID)
	if err != nil {
		t.Fatalf("ListWorkspaces: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("start of an existing account created workspaces: %+v", list)
	}

	if err := e.SelectBoard(testutil.BoardID); !errors.Is(err, wsync.ErrInvalidInput) {
		t.Errorf("selecting a board of another workspace: err = %v", err)
	}
	if err := e.SelectBoard(sideBoard); err != nil {
		t.Fatalf("SelectBoard: %v", err)
	}
	if saved, _ := state.Load(); saved.BoardID != sideBoard {
		t.Errorf("saved board = %q", saved.BoardID)
	}

	if err := e.ActivateWorkspace(ctx, testutil.WorkspaceID); err != nil {
		t.Fatalf("ActivateWorkspace: %v", err)
	}
	if e.ActiveBoard() != testutil.BoardID {
		t.Errorf("active board after switch = %q", e.ActiveBoard())
	}
	if _, ok := e.Store().Board(testutil.BoardID); !ok {
		t.Error("boards of the new workspace not loaded")
	}
}

func TestLogoutClearsSession(t *testing.T) {
	s := seededStore(t)
	e, _ := startEngine(t, s, wsync.Config{})

	e.Logout()
	if e.ActiveWorkspace() != "" || e.ActiveBoard() != "" {
		t.Errorf("active = %q / %q after logout", e.ActiveWorkspace(), e.ActiveBoard())
	}
	if len(e.Store().Workspaces()) != 0 || e.Store().HasBoard(testutil.BoardID) {
		t.Error("store not cleared on logout")
	}
}

func TestLoadHealsBrokenBoard(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()
	const phase = "00000000-0000-4000-8000-000000000304"
	if err := s.CreateColumn(ctx, model.Column{ID: phase, BoardID: testutil.BoardID, Title: "Phase", Type: model.ColumnStatus, Position: 3}); err != nil {
		t.Fatalf("CreateColumn: %v", err)
	}
	if err := s.SetItemValue(ctx, testutil.Item2, phase, json.RawMessage(`"Done"`)); err != nil {
		t.Fatalf("SetItemValue: %v", err)
	}
	if err := s.SetItemValue(ctx, testutil.Item3, testutil.ColStatus, json.RawMessage(`"Working on it"`)); err != nil {
		t.Fatalf("SetItemValue: %v", err)
	}

	e, _ := startEngine(t, s, wsync.Config{})
	col, ok := e.Store().Column(phase)
	if !ok || len(col.Options) == 0 {
		t.Fatalf("column not healed: %+v", col)
	}
	done, ok := col.OptionByLabel("Done")
	if !ok {
		t.Fatalf("healed options = %+v", col.Options)
	}
	item2 := localItem(t, e, testutil.Item2)
	if got, want := string(item2.Values[phase]), `"`+done.ID+`"`; got != want {
		t.Errorf("healed value = %s, want %s", got, want)
	}
	if got, want := string(localItem(t, e, testutil.Item3).Values[testutil.ColStatus]), `"`+testutil.OptWorking+`"`; got != want {
		t.Errorf("legacy label = %s, want %s", got, want)
	}

	flush(t, e)
	rb := remoteBoard(t, s)
	rc, ok := rb.Column(phase)
	if !ok || len(rc.Options) != len(col.Options) {
		t.Errorf("remote column = %+v", rc)
	}
	ri, _ := rb.Item(testutil.Item2)
	if string(ri.Values[phase]) != string(item2.Values[phase]) {
		t.Errorf("remote value = %s", ri.Values[phase])
	}
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func endedSpan(t *testing.T, rec *tracetest.SpanRecorder, name string) sdktrace.ReadOnlySpan {
	t.Helper()
	for _, span := range rec.Ended() {
		if span.Name() == name {
			return span
		}
	}
	t.Fatalf("no %s span recorded", name)
	return nil
}

func TestRemoteWritesAreTraced(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	s := seededStore(t)
	faulty := &failingItems{Remote: s}
	e, _ := startEngine(t, faulty, wsync.Config{Tracer: tp.Tracer("test")})

	if err := e.RenameItem(testutil.Item1, "Traced"); err != nil {
		t.Fatalf("RenameItem: %v", err)
	}
	flush(t, e)
	span := endedSpan(t, rec, "remote.rename_item")
	if v, ok := spanAttr(span, "workera.board_id"); !ok || v.AsString() != testutil.BoardID {
		t.Errorf("board attribute = %v, %v", v.AsString(), ok)
	}
	if span.Status().Code == codes.Error {
		t.Error("successful write marked as error")
	}

	faulty.fail.Store(true)
	if err := e.SetItemHidden(testutil.Item1, true); err != nil {
		t.Fatalf("SetItemHidden: %v", err)
	}
	flush(t, e)
	var failed sdktrace.ReadOnlySpan
	for _, sp := range rec.Ended() {
		if sp.Status().Code == codes.Error {
			failed = sp
		}
	}
	if failed == nil {
		t.Fatal("failed write not marked as error")
	}
	if len(failed.Events()) == 0 {
		t.Error("failed write span carries no error event")
	}
}
