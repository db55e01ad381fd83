// Package entity holds the normalized in-memory tree of workspaces, boards,
// groups, columns, items and notifications.
//
// Items are stored once per board keyed by id together with the board's
// flat item order. A group's items are never stored; they are derived from
// the flat order by group id whenever a board is read, so the group views
// and the flat list cannot diverge.
//
// Every successful mutation stamps a monotonic version on each touched id
// and publishes one Change per touched entity to subscribers.
package entity

import (
	"errors"
	"sort"
	gosync "sync"

	"github.com/nhle/workera/internal/model"
)

var (
	// ErrNotFound is returned when a mutation targets an entity that is not
	// in the store.
	ErrNotFound = errors.New("entity not found")

	// ErrExists is returned when inserting an id that is already present.
	ErrExists = errors.New("entity already exists")

	// ErrUnknownGroup is returned when an item would reference a group that
	// does not exist on its board.
	ErrUnknownGroup = errors.New("unknown group")

	// ErrInvalidOrder is returned when a new sequence is not a permutation
	// of the current one.
	ErrInvalidOrder = errors.New("ordering is not a permutation of the collection")
)

// Kind names the entity type of a Change.
type Kind string

const (
	KindWorkspace    Kind = "workspace"
	KindBoard        Kind = "board"
	KindGroup        Kind = "group"
	KindColumn       Kind = "column"
	KindItem         Kind = "item"
	KindNotification Kind = "notification"
)

// Change describes one entity touched by a mutation.
type Change struct {
	Kind     Kind
	EntityID string
	BoardID  string
	Removed  bool
	Version  uint64
}

// boardState is the normalized content of one board. board carries only the
// board's own fields; Columns, Groups and Items are nil.
type boardState struct {
	board       model.Board
	columns     map[string]*model.Column
	columnOrder []string
	groups      map[string]*model.Group
	groupOrder  []string
	items       map[string]*model.Item
	itemOrder   []string
}

func newBoardState(b model.Board) *boardState {
	b.Columns, b.Groups, b.Items = nil, nil, nil
	return &boardState{
		board:   b,
		columns: make(map[string]*model.Column),
		groups:  make(map[string]*model.Group),
		items:   make(map[string]*model.Item),
	}
}

// Store is the single source of truth for the client view model. It is safe
// for concurrent use; mutations are serialized and readers never observe a
// partially applied mutation.
type Store struct {
	mu gosync.RWMutex

	clock    uint64
	versions map[string]uint64

	workspaces     map[string]*model.Workspace
	workspaceOrder []string

	boards     map[string]*boardState
	boardOrder map[string][]string // workspace id -> board ids

	// owner maps group, column and item ids to their board id.
	owner map[string]string

	notifications map[string]*model.Notification

	subMu  gosync.Mutex
	subs   map[int]chan Change
	nextID int

	// pending collects the changes of the mutation in progress.
	pending []Change
}

// New returns an empty store.
func New() *Store {
	return &Store{
		versions:      make(map[string]uint64),
		workspaces:    make(map[string]*model.Workspace),
		boards:        make(map[string]*boardState),
		boardOrder:    make(map[string][]string),
		owner:         make(map[string]string),
		notifications: make(map[string]*model.Notification),
		subs:          make(map[int]chan Change),
	}
}

// Subscribe returns a channel receiving every Change and a function that
// cancels the subscription. Changes are dropped for a subscriber whose
// buffer is full.
func (s *Store) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Change, buffer)

	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once gosync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

// Version returns the logical version last stamped on id, or zero.
func (s *Store) Version(id string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versions[id]
}

// touch stamps a new version for id and records the change. Callers hold mu.
func (s *Store) touch(kind Kind, id, boardID string, removed bool) {
	s.clock++
	if removed {
		delete(s.versions, id)
	} else {
		s.versions[id] = s.clock
	}
	s.pending = append(s.pending, Change{
		Kind:     kind,
		EntityID: id,
		BoardID:  boardID,
		Removed:  removed,
		Version:  s.clock,
	})
}

// unlock publishes the pending changes and releases the write lock.
func (s *Store) unlock() {
	changes := s.pending
	s.pending = nil

	s.subMu.Lock()
	for _, c := range changes {
		for _, ch := range s.subs {
			select {
			case ch <- c:
			default:
			}
		}
	}
	s.subMu.Unlock()
	s.mu.Unlock()
}

// Reset drops every entity, used on logout. A removal is published for
// each dropped entity.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.unlock()
	for id := range s.boards {
		s.removeBoardLocked(id)
	}
	for id := range s.notifications {
		s.touch(KindNotification, id, "", true)
	}
	for id := range s.workspaces {
		s.touch(KindWorkspace, id, "", true)
	}
	s.workspaces = make(map[string]*model.Workspace)
	s.workspaceOrder = nil
	s.boards = make(map[string]*boardState)
	s.boardOrder = make(map[string][]string)
	s.owner = make(map[string]string)
	s.notifications = make(map[string]*model.Notification)
	s.versions = make(map[string]uint64)
}

// --- workspaces ---

// Workspaces returns the workspaces in display order.
func (s *Store) Workspaces() []model.Workspace {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Workspace, 0, len(s.workspaceOrder))
	for _, id := range s.workspaceOrder {
		out = append(out, *s.workspaces[id])
	}
	return out
}

// Workspace returns the workspace with the given id.
func (s *Store) Workspace(id string) (model.Workspace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ws, ok := s.workspaces[id]
	if !ok {
		return model.Workspace{}, false
	}
	return *ws, true
}

// ReplaceWorkspaces replaces the workspace list. Boards of workspaces that
// are no longer listed are dropped.
func (s *Store) ReplaceWorkspaces(list []model.Workspace) {
	s.mu.Lock()
	defer s.unlock()

	keep := make(map[string]bool, len(list))
	for _, ws := range list {
		keep[ws.ID] = true
	}
	for _, id := range s.workspaceOrder {
		if !keep[id] {
			s.removeWorkspaceLocked(id)
		}
	}

	s.workspaceOrder = s.workspaceOrder[:0]
	for i := range list {
		ws := list[i]
		s.workspaces[ws.ID] = &ws
		s.workspaceOrder = append(s.workspaceOrder, ws.ID)
		s.touch(KindWorkspace, ws.ID, "", false)
	}
	s.sortWorkspacesLocked()
}

// UpsertWorkspace inserts or replaces one workspace.
func (s *Store) UpsertWorkspace(ws model.Workspace) {
	s.mu.Lock()
	defer s.unlock()

	if _, ok := s.workspaces[ws.ID]; !ok {
		s.workspaceOrder = append(s.workspaceOrder, ws.ID)
	}
	s.workspaces[ws.ID] = &ws
	s.sortWorkspacesLocked()
	s.touch(KindWorkspace, ws.ID, "", false)
}

// PatchWorkspace applies fn to the stored workspace.
func (s *Store) PatchWorkspace(id string, fn func(*model.Workspace)) error {
	s.mu.Lock()
	defer s.unlock()

	ws, ok := s.workspaces[id]
	if !ok {
		return ErrNotFound
	}
	next := *ws
	fn(&next)
	next.ID = id
	*ws = next
	s.sortWorkspacesLocked()
	s.touch(KindWorkspace, id, "", false)
	return nil
}

// RemoveWorkspace deletes a workspace and all of its boards.
func (s *Store) RemoveWorkspace(id string) error {
	s.mu.Lock()
	defer s.unlock()

	if _, ok := s.workspaces[id]; !ok {
		return ErrNotFound
	}
	s.removeWorkspaceLocked(id)
	s.workspaceOrder = removeID(s.workspaceOrder, id)
	return nil
}

func (s *Store) removeWorkspaceLocked(id string) {
	for _, boardID := range s.boardOrder[id] {
		s.removeBoardLocked(boardID)
	}
	delete(s.boardOrder, id)
	delete(s.workspaces, id)
	s.touch(KindWorkspace, id, "", true)
}

// SetWorkspaceOrder re-stamps the positions of the listed workspaces to
// follow ids. Workspaces not listed keep their positions, so the owned
// workspaces of a user can be ordered among shared ones.
func (s *Store) SetWorkspaceOrder(ids []string) error {
	s.mu.Lock()
	defer s.unlock()

	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := s.workspaces[id]; !ok || seen[id] {
			return ErrInvalidOrder
		}
		seen[id] = true
	}
	for i, id := range ids {
		s.workspaces[id].Position = i
		s.touch(KindWorkspace, id, "", false)
	}
	s.sortWorkspacesLocked()
	return nil
}

func (s *Store) sortWorkspacesLocked() {
	sort.SliceStable(s.workspaceOrder, func(i, j int) bool {
		return s.workspaces[s.workspaceOrder[i]].Position < s.workspaces[s.workspaceOrder[j]].Position
	})
}

// --- notifications ---

// Notifications returns every notification, newest first.
func (s *Store) Notifications() []model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Notification returns the notification with the given id.
func (s *Store) Notification(id string) (model.Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notifications[id]
	if !ok {
		return model.Notification{}, false
	}
	return *n, true
}

// ReplaceNotifications replaces the notification list.
func (s *Store) ReplaceNotifications(list []model.Notification) {
	s.mu.Lock()
	defer s.unlock()

	for id := range s.notifications {
		s.touch(KindNotification, id, "", true)
	}
	s.notifications = make(map[string]*model.Notification, len(list))
	for i := range list {
		n := list[i]
		s.notifications[n.ID] = &n
		s.touch(KindNotification, n.ID, "", false)
	}
}

// UpsertNotification inserts or replaces one notification.
func (s *Store) UpsertNotification(n model.Notification) {
	s.mu.Lock()
	defer s.unlock()
	s.notifications[n.ID] = &n
	s.touch(KindNotification, n.ID, "", false)
}

// PatchNotification applies fn to the stored notification.
func (s *Store) PatchNotification(id string, fn func(*model.Notification)) error {
	s.mu.Lock()
	defer s.unlock()

	n, ok := s.notifications[id]
	if !ok {
		return ErrNotFound
	}
	next := *n
	fn(&next)
	next.ID = id
	*n = next
	s.touch(KindNotification, id, "", false)
	return nil
}

// RemoveNotification deletes one notification.
func (s *Store) RemoveNotification(id string) error {
	s.mu.Lock()
	defer s.unlock()

	if _, ok := s.notifications[id]; !ok {
		return ErrNotFound
	}
	delete(s.notifications, id)
	s.touch(KindNotification, id, "", true)
	return nil
}

// isPermutation reports whether next holds exactly the ids of cur.
func isPermutation(cur, next []string) bool {
	if len(cur) != len(next) {
		return false
	}
	seen := make(map[string]int, len(cur))
	for _, id := range cur {
		seen[id]++
	}
	for _, id := range next {
		if seen[id] == 0 {
			return false
		}
		seen[id]--
	}
	return true
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}
