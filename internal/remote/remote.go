// Package remote defines the persistence port of the sync engine and a REST
// client implementing it.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nhle/workera/internal/model"
)

var (
	// ErrNotFound is returned when the target row does not exist.
	ErrNotFound = errors.New("remote: not found")

	// ErrConflict is returned when a create collides with an existing row.
	ErrConflict = errors.New("remote: conflict")
)

// HTTPError is a non-success response from the REST API.
type HTTPError struct {
	StatusCode int
	Method     string
	Path       string
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s %s: http %d %s: %s", e.Method, e.Path, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s: http %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Is maps 404 and 409 responses onto ErrNotFound and ErrConflict.
func (e *HTTPError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == 404
	case ErrConflict:
		return e.StatusCode == 409
	}
	return false
}

// Patch is a partial row update keyed by column name. JSON-valued columns
// (values, options, updates, files, sort, filters, data) take their decoded
// Go value or a json.RawMessage.
type Patch map[string]any

// Collection names a reorderable sibling collection.
type Collection string

const (
	CollectionWorkspaces Collection = model.TableWorkspaces
	CollectionBoards     Collection = model.TableBoards
	CollectionGroups     Collection = model.TableGroups
	CollectionColumns    Collection = model.TableColumns
	CollectionItems      Collection = model.TableItems
)

// Remote is the persistence collaborator. Every write is keyed by a
// client-generated id. Reorder rewrites the full sequence of a collection
// under one parent atomically: the owner id for workspaces, the workspace id
// for boards and the board id for groups, columns and items.
type Remote interface {
	ListWorkspaces(ctx context.Context, userID string) ([]model.Workspace, error)
	CreateWorkspace(ctx context.Context, ws model.Workspace) error
	UpdateWorkspace(ctx context.Context, id string, patch Patch) error
	DeleteWorkspace(ctx context.Context, id string) error

	ListBoards(ctx context.Context, workspaceID string) ([]model.Board, error)
	GetBoard(ctx context.Context, id string) (*model.Board, error)
	CreateBoard(ctx context.Context, b model.Board) error
	UpdateBoard(ctx context.Context, id string, patch Patch) error
	DeleteBoard(ctx context.Context, id string) error

	CreateGroup(ctx context.Context, g model.Group) error
	UpdateGroup(ctx context.Context, id string, patch Patch) error
	DeleteGroup(ctx context.Context, id string) error

	CreateColumn(ctx context.Context, col model.Column) error
	UpdateColumn(ctx context.Context, id string, patch Patch) error
	DeleteColumn(ctx context.Context, id string) error

	CreateItem(ctx context.Context, it model.Item) error
	UpdateItem(ctx context.Context, id string, patch Patch) error
	SetItemValue(ctx context.Context, itemID, columnID string, value json.RawMessage) error
	DeleteItem(ctx context.Context, id string) error

	Reorder(ctx context.Context, coll Collection, parentID string, orderedIDs []string) error

	ListNotifications(ctx context.Context, userID string) ([]model.Notification, error)
	CreateNotification(ctx context.Context, n model.Notification) error
	UpdateNotification(ctx context.Context, id string, patch Patch) error
	DeleteNotification(ctx context.Context, id string) error

	// FindMembership returns ErrNotFound when no membership matches.
	FindMembership(ctx context.Context, kind, entityID, userID string) (*model.Membership, error)
	CreateMembership(ctx context.Context, m model.Membership) error

	AppendActivity(ctx context.Context, a model.Activity) error
}
