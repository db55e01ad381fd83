package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nhle/workera/internal/model"
	"github.com/nhle/workera/internal/remote"
)

var errBadRequest = errors.New("bad request")

// maxBody bounds a request body.
const maxBody = 4 << 20

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decoding body: %w", errBadRequest, err)
	}
	return nil
}

// eqFilter returns the value of a PostgREST eq. filter parameter.
func eqFilter(r *http.Request, key string) string {
	return strings.TrimPrefix(r.URL.Query().Get(key), "eq.")
}

func requireFilter(r *http.Request, key string) (string, error) {
	v := eqFilter(r, key)
	if v == "" {
		return "", fmt.Errorf("%w: missing %s filter", errBadRequest, key)
	}
	return v, nil
}

// ownUser rejects reads of another user's rows.
func ownUser(r *http.Request, userID string) error {
	if userID != userFrom(r.Context()) {
		return fmt.Errorf("%w: user %s may not read rows of %s", errForbidden, userFrom(r.Context()), userID)
	}
	return nil
}

var errForbidden = errors.New("forbidden")

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errForbidden) {
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
		return
	}
	s.writeStoreError(w, r, err)
}

func (s *Server) rpc(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fn := chi.URLParam(r, "fn")

	if coll, ok := strings.CutPrefix(fn, "reorder_"); ok {
		var body struct {
			ParentID   string   `json:"parent_id"`
			OrderedIDs []string `json:"ordered_ids"`
		}
		if err := decodeBody(r, &body); err != nil {
			s.fail(w, r, err)
			return
		}
		if err := s.store.Reorder(ctx, remote.Collection(coll), body.ParentID, body.OrderedIDs); err != nil {
			s.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	switch fn {
	case "list_workspaces":
		var body struct {
			UserID string `json:"user_id"`
		}
		if err := decodeBody(r, &body); err != nil {
			s.fail(w, r, err)
			return
		}
		if err := ownUser(r, body.UserID); err != nil {
			s.fail(w, r, err)
			return
		}
		list, err := s.store.ListWorkspaces(ctx, body.UserID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(list))

	case "get_board":
		var body struct {
			BoardID string `json:"board_id"`
		}
		if err := decodeBody(r, &body); err != nil {
			s.fail(w, r, err)
			return
		}
		b, err := s.store.GetBoard(ctx, body.BoardID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, b)

	case "set_item_value":
		var body struct {
			ItemID   string          `json:"item_id"`
			ColumnID string          `json:"column_id"`
			Value    json.RawMessage `json:"value"`
		}
		if err := decodeBody(r, &body); err != nil {
			s.fail(w, r, err)
			return
		}
		if err := s.store.SetItemValue(ctx, body.ItemID, body.ColumnID, body.Value); err != nil {
			s.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown function "+fn)
	}
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch table := chi.URLParam(r, "table"); table {
	case model.TableBoards:
		wsID, err := requireFilter(r, "workspace_id")
		if err != nil {
			s.fail(w, r, err)
			return
		}
		list, err := s.store.ListBoards(ctx, wsID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(list))

	case model.TableNotifications:
		userID, err := requireFilter(r, "user_id")
		if err == nil {
			err = ownUser(r, userID)
		}
		if err != nil {
			s.fail(w, r, err)
			return
		}
		list, err := s.store.ListNotifications(ctx, userID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(list))

	case model.TableMemberships:
		m, err := s.store.FindMembership(ctx, eqFilter(r, "kind"), eqFilter(r, "entity_id"), eqFilter(r, "user_id"))
		if errors.Is(err, remote.ErrNotFound) {
			writeJSON(w, http.StatusOK, []model.Membership{})
			return
		}
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, []model.Membership{*m})

	default:
		writeError(w, http.StatusNotFound, "not_found", "table "+table+" is not listable")
	}
}

// creators decode one row and insert it.
var creators = map[string]func(s *Server, r *http.Request) error{
	model.TableWorkspaces: func(s *Server, r *http.Request) error {
		var row model.Workspace
		return decodeThen(r, &row, func() error { return s.store.CreateWorkspace(r.Context(), row) })
	},
	model.TableBoards: func(s *Server, r *http.Request) error {
		var row model.Board
		return decodeThen(r, &row, func() error { return s.store.CreateBoard(r.Context(), row) })
	},
	model.TableGroups: func(s *Server, r *http.Request) error {
		var row model.Group
		return decodeThen(r, &row, func() error { return s.store.CreateGroup(r.Context(), row) })
	},
	model.TableColumns: func(s *Server, r *http.Request) error {
		var row model.Column
		return decodeThen(r, &row, func() error { return s.store.CreateColumn(r.Context(), row) })
	},
	model.TableItems: func(s *Server, r *http.Request) error {
		var row model.Item
		return decodeThen(r, &row, func() error { return s.store.CreateItem(r.Context(), row) })
	},
	model.TableNotifications: func(s *Server, r *http.Request) error {
		var row model.Notification
		return decodeThen(r, &row, func() error { return s.store.CreateNotification(r.Context(), row) })
	},
	model.TableMemberships: func(s *Server, r *http.Request) error {
		var row model.Membership
		return decodeThen(r, &row, func() error { return s.store.CreateMembership(r.Context(), row) })
	},
	model.TableActivity: func(s *Server, r *http.Request) error {
		var row model.Activity
		return decodeThen(r, &row, func() error { return s.store.AppendActivity(r.Context(), row) })
	},
}

func decodeThen(r *http.Request, row any, create func() error) error {
	if err := decodeBody(r, row); err != nil {
		return err
	}
	return create()
}

func (s *Server) insert(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	create, ok := creators[table]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "unknown table "+table)
		return
	}
	if err := create(s, r); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := requireFilter(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var patch remote.Patch
	if err := decodeBody(r, &patch); err != nil {
		s.fail(w, r, err)
		return
	}

	switch table := chi.URLParam(r, "table"); table {
	case model.TableWorkspaces:
		err = s.store.UpdateWorkspace(ctx, id, patch)
	case model.TableBoards:
		err = s.store.UpdateBoard(ctx, id, patch)
	case model.TableGroups:
		err = s.store.UpdateGroup(ctx, id, patch)
	case model.TableColumns:
		err = s.store.UpdateColumn(ctx, id, patch)
	case model.TableItems:
		err = s.store.UpdateItem(ctx, id, patch)
	case model.TableNotifications:
		err = s.store.UpdateNotification(ctx, id, patch)
	default:
		writeError(w, http.StatusNotFound, "not_found", "table "+table+" is not patchable")
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := requireFilter(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	switch table := chi.URLParam(r, "table"); table {
	case model.TableWorkspaces:
		err = s.store.DeleteWorkspace(ctx, id)
	case model.TableBoards:
		err = s.store.DeleteBoard(ctx, id)
	case model.TableGroups:
		err = s.store.DeleteGroup(ctx, id)
	case model.TableColumns:
		err = s.store.DeleteColumn(ctx, id)
	case model.TableItems:
		err = s.store.DeleteItem(ctx, id)
	case model.TableNotifications:
		err = s.store.DeleteNotification(ctx, id)
	default:
		writeError(w, http.StatusNotFound, "not_found", "table "+table+" is not deletable")
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// nonNil encodes empty lists as [] rather than null.
func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
