// Package localstate persists client-local selection state between runs.
//
// The state only seeds the initial selection of a session; it is never
// treated as authoritative.
package localstate

import (
	"fmt"
	"os"
	"path/filepath"
	gosync "sync"

	"github.com/spf13/viper"
)

// State is the last active selection.
type State struct {
	WorkspaceID string `mapstructure:"workspace_id"`
	BoardID     string `mapstructure:"board_id"`
}

// File stores a State as YAML at a fixed path.
type File struct {
	mu   gosync.Mutex
	path string
}

// Open returns the state file at path. The file is created on first Save.
func Open(path string) *File {
	return &File{path: path}
}

// Path returns the location of the state file.
func (f *File) Path() string {
	return f.path
}

// Load reads the stored state. A missing file yields the zero State.
func (f *File) Load() (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	v := viper.New()
	v.SetConfigFile(f.path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		_, missingFile := err.(*os.PathError)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if missingFile || notFound {
			return State{}, nil
		}
		return State{}, fmt.Errorf("reading state %s: %w", f.path, err)
	}

	var s State
	if err := v.Unmarshal(&s); err != nil {
		return State{}, fmt.Errorf("parsing state %s: %w", f.path, err)
	}
	return s, nil
}

// Save writes s, creating parent directories if needed.
func (f *File) Save(s State) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(f.path)
	v.SetConfigType("yaml")
	v.Set("workspace_id", s.WorkspaceID)
	v.Set("board_id", s.BoardID)
	if err := v.WriteConfigAs(f.path); err != nil {
		return fmt.Errorf("writing state to %s: %w", f.path, err)
	}
	return nil
}
