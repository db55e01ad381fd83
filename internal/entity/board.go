package entity

import (
	"encoding/json"
	"sort"

	"github.com/nhle/workera/internal/model"
)

// snapshot returns a deep copy of the board with its columns, groups, flat
// items and derived group views populated.
func (st *boardState) snapshot() model.Board {
	b := st.board
	if b.Sort != nil {
		sortCopy := *b.Sort
		b.Sort = &sortCopy
	}
	if b.Filters != nil {
		b.Filters = append([]model.BoardFilter(nil), b.Filters...)
	}

	b.Columns = make([]model.Column, 0, len(st.columnOrder))
	for _, id := range st.columnOrder {
		b.Columns = append(b.Columns, st.columns[id].Clone())
	}

	b.Items = make([]model.Item, 0, len(st.itemOrder))
	byGroup := make(map[string][]model.Item, len(st.groupOrder))
	for _, id := range st.itemOrder {
		it := st.items[id].Clone()
		b.Items = append(b.Items, it)
		byGroup[it.GroupID] = append(byGroup[it.GroupID], it.Clone())
	}

	b.Groups = make([]model.Group, 0, len(st.groupOrder))
	for _, id := range st.groupOrder {
		g := *st.groups[id]
		g.Items = byGroup[id]
		if g.Items == nil {
			g.Items = []model.Item{}
		}
		b.Groups = append(b.Groups, g)
	}
	return b
}

// --- boards ---

// Board returns a deep copy of the board with derived group views.
func (s *Store) Board(id string) (model.Board, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.boards[id]
	if !ok {
		return model.Board{}, false
	}
	return st.snapshot(), true
}

// HasBoard reports whether the board is present.
func (s *Store) HasBoard(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.boards[id]
	return ok
}

// Boards returns the boards of a workspace in display order.
func (s *Store) Boards(workspaceID string) []model.Board {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.boardOrder[workspaceID]
	out := make([]model.Board, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.boards[id].snapshot())
	}
	return out
}

// BoardOf returns the board owning a group, column or item id.
func (s *Store) BoardOf(entityID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.owner[entityID]
	return id, ok
}

// ReplaceBoard replaces a board and all of its content. Items whose group is
// not part of the board are not exposed.
func (s *Store) ReplaceBoard(b model.Board) {
	s.mu.Lock()
	defer s.unlock()

	if old, ok := s.boards[b.ID]; ok {
		s.dropContentLocked(old)
	}
	st := s.placeBoardLocked(b)

	for i := range b.Columns {
		col := b.Columns[i].Clone()
		col.BoardID = b.ID
		st.columns[col.ID] = &col
		st.columnOrder = append(st.columnOrder, col.ID)
		s.owner[col.ID] = b.ID
		s.touch(KindColumn, col.ID, b.ID, false)
	}
	for i := range b.Groups {
		g := b.Groups[i]
		g.BoardID = b.ID
		g.Items = nil
		st.groups[g.ID] = &g
		st.groupOrder = append(st.groupOrder, g.ID)
		s.owner[g.ID] = b.ID
		s.touch(KindGroup, g.ID, b.ID, false)
	}
	for i := range b.Items {
		it := b.Items[i].Clone()
		if _, ok := st.groups[it.GroupID]; !ok {
			continue
		}
		it.BoardID = b.ID
		st.items[it.ID] = &it
		st.itemOrder = append(st.itemOrder, it.ID)
		s.owner[it.ID] = b.ID
		s.touch(KindItem, it.ID, b.ID, false)
	}
	st.sortLocked()
}

// ReplaceBoards replaces the board list of a workspace. Boards already held
// keep their content; boards no longer listed are dropped.
func (s *Store) ReplaceBoards(workspaceID string, list []model.Board) {
	s.mu.Lock()
	defer s.unlock()

	keep := make(map[string]bool, len(list))
	for _, b := range list {
		keep[b.ID] = true
	}
	for _, id := range append([]string(nil), s.boardOrder[workspaceID]...) {
		if !keep[id] {
			s.removeBoardLocked(id)
		}
	}
	for _, b := range list {
		b.WorkspaceID = workspaceID
		if old, ok := s.boards[b.ID]; ok {
			b.Loaded = old.board.Loaded
		}
		s.placeBoardLocked(b)
	}
}

// UpsertBoard inserts or replaces the board's own fields, keeping content.
func (s *Store) UpsertBoard(b model.Board) {
	s.mu.Lock()
	defer s.unlock()
	if old, ok := s.boards[b.ID]; ok {
		b.Loaded = old.board.Loaded
	}
	s.placeBoardLocked(b)
}

// PatchBoard applies fn to the board's own fields. A workspace change moves
// the board to the end of the destination workspace.
func (s *Store) PatchBoard(id string, fn func(*model.Board)) error {
	s.mu.Lock()
	defer s.unlock()

	st, ok := s.boards[id]
	if !ok {
		return ErrNotFound
	}
	next := st.board
	fn(&next)
	next.ID = id
	if next.WorkspaceID != st.board.WorkspaceID {
		next.Position = len(s.boardOrder[next.WorkspaceID])
	}
	s.placeBoardLocked(next)
	return nil
}

// MarkBoardLoaded flags the board's initial content as persisted.
func (s *Store) MarkBoardLoaded(id string) error {
	return s.PatchBoard(id, func(b *model.Board) { b.Loaded = true })
}

// RemoveBoard deletes a board and all of its content.
func (s *Store) RemoveBoard(id string) error {
	s.mu.Lock()
	defer s.unlock()
	if _, ok := s.boards[id]; !ok {
		return ErrNotFound
	}
	s.removeBoardLocked(id)
	return nil
}

// SetBoardOrder rewrites the board order of a workspace.
func (s *Store) SetBoardOrder(workspaceID string, ids []string) error {
	s.mu.Lock()
	defer s.unlock()

	if !isPermutation(s.boardOrder[workspaceID], ids) {
		return ErrInvalidOrder
	}
	s.boardOrder[workspaceID] = append([]string(nil), ids...)
	for i, id := range ids {
		s.boards[id].board.Position = i
		s.touch(KindBoard, id, id, false)
	}
	return nil
}

// placeBoardLocked stores the board's own fields, creating its state when
// needed and keeping the per-workspace order sorted by position.
func (s *Store) placeBoardLocked(b model.Board) *boardState {
	st, ok := s.boards[b.ID]
	if !ok {
		st = newBoardState(b)
		s.boards[b.ID] = st
	} else {
		prev := st.board.WorkspaceID
		if prev != b.WorkspaceID {
			s.boardOrder[prev] = removeID(s.boardOrder[prev], b.ID)
		}
		b.Columns, b.Groups, b.Items = nil, nil, nil
		st.board = b
	}
	if indexOf(s.boardOrder[b.WorkspaceID], b.ID) < 0 {
		s.boardOrder[b.WorkspaceID] = append(s.boardOrder[b.WorkspaceID], b.ID)
	}
	order := s.boardOrder[b.WorkspaceID]
	sort.SliceStable(order, func(i, j int) bool {
		return s.boards[order[i]].board.Position < s.boards[order[j]].board.Position
	})
	s.touch(KindBoard, b.ID, b.ID, false)
	return st
}

func (s *Store) removeBoardLocked(id string) {
	st, ok := s.boards[id]
	if !ok {
		return
	}
	s.dropContentLocked(st)
	ws := st.board.WorkspaceID
	s.boardOrder[ws] = removeID(s.boardOrder[ws], id)
	delete(s.boards, id)
	s.touch(KindBoard, id, id, true)
}

// dropContentLocked clears a board's columns, groups and items.
func (s *Store) dropContentLocked(st *boardState) {
	boardID := st.board.ID
	for _, id := range st.itemOrder {
		delete(s.owner, id)
		s.touch(KindItem, id, boardID, true)
	}
	for _, id := range st.groupOrder {
		delete(s.owner, id)
		s.touch(KindGroup, id, boardID, true)
	}
	for _, id := range st.columnOrder {
		delete(s.owner, id)
		s.touch(KindColumn, id, boardID, true)
	}
	st.columns = make(map[string]*model.Column)
	st.groups = make(map[string]*model.Group)
	st.items = make(map[string]*model.Item)
	st.columnOrder, st.groupOrder, st.itemOrder = nil, nil, nil
}

// sortLocked orders each collection by position, keeping ties stable.
func (st *boardState) sortLocked() {
	sort.SliceStable(st.columnOrder, func(i, j int) bool {
		return st.columns[st.columnOrder[i]].Position < st.columns[st.columnOrder[j]].Position
	})
	sort.SliceStable(st.groupOrder, func(i, j int) bool {
		return st.groups[st.groupOrder[i]].Position < st.groups[st.groupOrder[j]].Position
	})
	sort.SliceStable(st.itemOrder, func(i, j int) bool {
		return st.items[st.itemOrder[i]].Position < st.items[st.itemOrder[j]].Position
	})
}

// --- groups ---

// Group returns the group with the given id, without its item view.
func (s *Store) Group(id string) (model.Group, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.boards[s.owner[id]]
	if !ok {
		return model.Group{}, false
	}
	g, ok := st.groups[id]
	if !ok {
		return model.Group{}, false
	}
	return *g, true
}

// UpsertGroup inserts or replaces a group on its board.
func (s *Store) UpsertGroup(g model.Group) error {
	s.mu.Lock()
	defer s.unlock()

	st, ok := s.boards[g.BoardID]
	if !ok {
		return ErrNotFound
	}
	g.Items = nil
	if _, exists := st.groups[g.ID]; !exists {
		st.groupOrder = append(st.groupOrder, g.ID)
	}
	st.groups[g.ID] = &g
	s.owner[g.ID] = g.BoardID
	st.sortLocked()
	s.touch(KindGroup, g.ID, g.BoardID, false)
	return nil
}

// PatchGroup applies fn to a stored group.
func (s *Store) PatchGroup(id string, fn func(*model.Group)) error {
	s.mu.Lock()
	defer s.unlock()

	st, ok := s.boards[s.owner[id]]
	if !ok {
		return ErrNotFound
	}
	g, ok := st.groups[id]
	if !ok {
		return ErrNotFound
	}
	next := *g
	fn(&next)
	next.ID, next.BoardID, next.Items = id, g.BoardID, nil
	*g = next
	st.sortLocked()
	s.touch(KindGroup, id, g.BoardID, false)
	return nil
}

// RemoveGroup deletes a group and every item in it.
func (s *Store) RemoveGroup(id string) error {
	s.mu.Lock()
	defer s.unlock()

	boardID := s.owner[id]
	st, ok := s.boards[boardID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := st.groups[id]; !ok {
		return ErrNotFound
	}

	kept := st.itemOrder[:0:0]
	for _, itemID := range st.itemOrder {
		if st.items[itemID].GroupID == id {
			delete(st.items, itemID)
			delete(s.owner, itemID)
			s.touch(KindItem, itemID, boardID, true)
			continue
		}
		kept = append(kept, itemID)
	}
	st.itemOrder = kept
	delete(st.groups, id)
	delete(s.owner, id)
	st.groupOrder = removeID(st.groupOrder, id)
	s.touch(KindGroup, id, boardID, true)
	return nil
}

// SetGroupOrder rewrites the group order of a board.
func (s *Store) SetGroupOrder(boardID string, ids []string) error {
	s.mu.Lock()
	defer s.unlock()

	st, ok := s.boards[boardID]
	if !ok {
		return ErrNotFound
	}
	if !isPermutation(st.groupOrder, ids) {
		return ErrInvalidOrder
	}
	st.groupOrder = append([]string(nil), ids...)
	for i, id := range ids {
		st.groups[id].Position = i
		s.touch(KindGroup, id, boardID, false)
	}
	return nil
}

// --- columns ---

// Column returns the column with the given id.
func (s *Store) Column(id string) (model.Column, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.boards[s.owner[id]]
	if !ok {
		return model.Column{}, false
	}
	col, ok := st.columns[id]
	if !ok {
		return model.Column{}, false
	}
	return col.Clone(), true
}

// UpsertColumn inserts or replaces a column on its board.
func (s *Store) UpsertColumn(col model.Column) error {
	s.mu.Lock()
	defer s.unlock()

	st, ok := s.boards[col.BoardID]
	if !ok {
		return ErrNotFound
	}
	col = col.Clone()
	if _, exists := st.columns[col.ID]; !exists {
		st.columnOrder = append(st.columnOrder, col.ID)
	}
	st.columns[col.ID] = &col
	s.owner[col.ID] = col.BoardID
	st.sortLocked()
	s.touch(KindColumn, col.ID, col.BoardID, false)
	return nil
}

// PatchColumn applies fn to a stored column.
func (s *Store) PatchColumn(id string, fn func(*model.Column)) error {
	s.mu.Lock()
	defer s.unlock()

	st, ok := s.boards[s.owner[id]]
	if !ok {
		return ErrNotFound
	}
	col, ok := st.columns[id]
	if !ok {
		return ErrNotFound
	}
	next := col.Clone()
	fn(&next)
	next.ID, next.BoardID = id, col.BoardID
	*col = next
	st.sortLocked()
	s.touch(KindColumn, id, col.BoardID, false)
	return nil
}

// RemoveColumn deletes a column and drops its value from every item.
func (s *Store) RemoveColumn(id string) error {
	s.mu.Lock()
	defer s.unlock()

	boardID := s.owner[id]
	st, ok := s.boards[boardID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := st.columns[id]; !ok {
		return ErrNotFound
	}
	for _, itemID := range st.itemOrder {
		it := st.items[itemID]
		if _, has := it.Values[id]; has {
			delete(it.Values, id)
			s.touch(KindItem, itemID, boardID, false)
		}
	}
	delete(st.columns, id)
	delete(s.owner, id)
	st.columnOrder = removeID(st.columnOrder, id)
	s.touch(KindColumn, id, boardID, true)
	return nil
}

// SetColumnOrder rewrites the column order of a board.
func (s *Store) SetColumnOrder(boardID string, ids []string) error {
	s.mu.Lock()
	defer s.unlock()

	st, ok := s.boards[boardID]
	if !ok {
		return ErrNotFound
	}
	if !isPermutation(st.columnOrder, ids) {
		return ErrInvalidOrder
	}
	st.columnOrder = append([]string(nil), ids...)
	for i, id := range ids {
		st.columns[id].Position = i
		s.touch(KindColumn, id, boardID, false)
	}
	return nil
}

// --- items ---

// Item returns a copy of the item with the given id.
func (s *Store) Item(id string) (model.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.boards[s.owner[id]]
	if !ok {
		return model.Item{}, false
	}
	it, ok := st.items[id]
	if !ok {
		return model.Item{}, false
	}
	return it.Clone(), true
}

// InsertItem adds a new item to its board, placed by position.
func (s *Store) InsertItem(it model.Item) error {
	s.mu.Lock()
	defer s.unlock()

	st, ok := s.boards[it.BoardID]
	if !ok {
		return ErrNotFound
	}
	if _, exists := st.items[it.ID]; exists {
		return ErrExists
	}
	if _, ok := st.groups[it.GroupID]; !ok {
		return ErrUnknownGroup
	}
	it = it.Clone()
	if it.Values == nil {
		it.Values = make(map[string]json.RawMessage)
	}
	st.items[it.ID] = &it
	st.itemOrder = append(st.itemOrder, it.ID)
	s.owner[it.ID] = it.BoardID
	st.sortLocked()
	s.touch(KindItem, it.ID, it.BoardID, false)
	return nil
}

// PatchItem applies fn to a stored item. A group change moves the item
// between group views; the new group must exist on the board.
func (s *Store) PatchItem(id string, fn func(*model.Item)) error {
	s.mu.Lock()
	defer s.unlock()

	boardID := s.owner[id]
	st, ok := s.boards[boardID]
	if !ok {
		return ErrNotFound
	}
	it, ok := st.items[id]
	if !ok {
		return ErrNotFound
	}
	next := it.Clone()
	fn(&next)
	next.ID, next.BoardID = id, boardID
	if _, ok := st.groups[next.GroupID]; !ok {
		return ErrUnknownGroup
	}
	if next.Values == nil {
		next.Values = make(map[string]json.RawMessage)
	}
	repositioned := next.Position != it.Position
	*it = next
	if repositioned {
		st.sortLocked()
	}
	s.touch(KindItem, id, boardID, false)
	return nil
}

// MoveItemToGroup reassigns an item to a group and places it at index of the
// flat item list, re-stamping positions.
func (s *Store) MoveItemToGroup(id, groupID string, index int) error {
	s.mu.Lock()
	defer s.unlock()

	boardID := s.owner[id]
	st, ok := s.boards[boardID]
	if !ok {
		return ErrNotFound
	}
	it, ok := st.items[id]
	if !ok {
		return ErrNotFound
	}
	if _, ok := st.groups[groupID]; !ok {
		return ErrUnknownGroup
	}
	it.GroupID = groupID

	order := removeID(append([]string(nil), st.itemOrder...), id)
	if index < 0 || index > len(order) {
		index = len(order)
	}
	order = append(order[:index], append([]string{id}, order[index:]...)...)
	st.itemOrder = order
	for i, itemID := range order {
		st.items[itemID].Position = i
		s.touch(KindItem, itemID, boardID, false)
	}
	return nil
}

// RemoveItem deletes an item from its board.
func (s *Store) RemoveItem(id string) error {
	s.mu.Lock()
	defer s.unlock()

	boardID := s.owner[id]
	st, ok := s.boards[boardID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := st.items[id]; !ok {
		return ErrNotFound
	}
	delete(st.items, id)
	delete(s.owner, id)
	st.itemOrder = removeID(st.itemOrder, id)
	s.touch(KindItem, id, boardID, true)
	return nil
}

// SetItemOrder rewrites the flat item order of a board.
func (s *Store) SetItemOrder(boardID string, ids []string) error {
	s.mu.Lock()
	defer s.unlock()

	st, ok := s.boards[boardID]
	if !ok {
		return ErrNotFound
	}
	if !isPermutation(st.itemOrder, ids) {
		return ErrInvalidOrder
	}
	st.itemOrder = append([]string(nil), ids...)
	for i, id := range ids {
		st.items[id].Position = i
		s.touch(KindItem, id, boardID, false)
	}
	return nil
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
