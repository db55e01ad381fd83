package localstate

import (
	"path/filepath"
	"testing"
)

func TestLoadMissingFile(t *testing.T) {
	f := Open(filepath.Join(t.TempDir(), "state.yaml"))
	s, err := f.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s != (State{}) {
		t.Errorf("Load = %+v, want zero state", s)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.yaml")
	f := Open(path)
	want := State{WorkspaceID: "ws-1", BoardID: "board-7"}
	if err := f.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Open(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != want {
		t.Errorf("Load = %+v, want %+v", got, want)
	}
}

func TestSaveOverwrites(t *testing.T) {
	f := Open(filepath.Join(t.TempDir(), "state.yaml"))
	if err := f.Save(State{WorkspaceID: "a", BoardID: "b"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := f.Save(State{WorkspaceID: "c"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := f.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.WorkspaceID != "c" || got.BoardID != "" {
		t.Errorf("Load = %+v, want workspace c and no board", got)
	}
}
