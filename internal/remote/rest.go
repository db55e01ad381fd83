package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/workera/internal/model"
)

// RESTPrefix is the path prefix of the table and rpc endpoints.
const RESTPrefix = "/rest/v1"

// HTTPClient implements Remote over a PostgREST-style JSON API: tables at
// /rest/v1/<table> with eq. filters, functions at /rest/v1/rpc/<name>.
// Requests failing with 429 or 5xx are retried with exponential backoff.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

var _ Remote = (*HTTPClient)(nil)

// NewHTTPClient returns a client for the API at baseURL authenticating with
// a bearer token. A nil httpClient gets a 15 second timeout.
func NewHTTPClient(baseURL, token string, httpClient *http.Client) *HTTPClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8080"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPClient{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
		maxRetries: 3,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   2 * time.Second,
	}
}

// SetRetryPolicy overrides the retry count and backoff bounds.
func (c *HTTPClient) SetRetryPolicy(maxRetries int, baseDelay, maxDelay time.Duration) {
	c.maxRetries = maxRetries
	c.baseDelay = baseDelay
	c.maxDelay = maxDelay
}

func tablePath(table string, filters ...string) string {
	p := RESTPrefix + "/" + table
	if len(filters) == 0 {
		return p
	}
	q := url.Values{}
	for i := 0; i+1 < len(filters); i += 2 {
		q.Set(filters[i], filters[i+1])
	}
	return p + "?" + q.Encode()
}

func eq(v string) string { return "eq." + v }

func rpcPath(name string) string {
	return RESTPrefix + "/rpc/" + name
}

// --- workspaces ---

func (c *HTTPClient) ListWorkspaces(ctx context.Context, userID string) ([]model.Workspace, error) {
	var out []model.Workspace
	err := c.doJSON(ctx, http.MethodPost, rpcPath("list_workspaces"), map[string]string{"user_id": userID}, &out)
	if err != nil {
		return nil, fmt.Errorf("listing workspaces: %w", err)
	}
	return out, nil
}

func (c *HTTPClient) CreateWorkspace(ctx context.Context, ws model.Workspace) error {
	return c.insert(ctx, model.TableWorkspaces, ws)
}

func (c *HTTPClient) UpdateWorkspace(ctx context.Context, id string, patch Patch) error {
	return c.update(ctx, model.TableWorkspaces, id, patch)
}

func (c *HTTPClient) DeleteWorkspace(ctx context.Context, id string) error {
	return c.delete(ctx, model.TableWorkspaces, id)
}

// --- boards ---

func (c *HTTPClient) ListBoards(ctx context.Context, workspaceID string) ([]model.Board, error) {
	var out []model.Board
	path := tablePath(model.TableBoards, "workspace_id", eq(workspaceID), "order", "position.asc")
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("listing boards of workspace %s: %w", workspaceID, err)
	}
	return out, nil
}

// GetBoard returns the board with its columns, groups and items.
func (c *HTTPClient) GetBoard(ctx context.Context, id string) (*model.Board, error) {
	var out model.Board
	if err := c.doJSON(ctx, http.MethodPost, rpcPath("get_board"), map[string]string{"board_id": id}, &out); err != nil {
		return nil, fmt.Errorf("getting board %s: %w", id, err)
	}
	return &out, nil
}

func (c *HTTPClient) CreateBoard(ctx context.Context, b model.Board) error {
	b.Columns, b.Groups, b.Items = nil, nil, nil
	return c.insert(ctx, model.TableBoards, b)
}

func (c *HTTPClient) UpdateBoard(ctx context.Context, id string, patch Patch) error {
	return c.update(ctx, model.TableBoards, id, patch)
}

func (c *HTTPClient) DeleteBoard(ctx context.Context, id string) error {
	return c.delete(ctx, model.TableBoards, id)
}

// --- groups, columns, items ---

func (c *HTTPClient) CreateGroup(ctx context.Context, g model.Group) error {
	g.Items = nil
	return c.insert(ctx, model.TableGroups, g)
}

func (c *HTTPClient) UpdateGroup(ctx context.Context, id string, patch Patch) error {
	return c.update(ctx, model.TableGroups, id, patch)
}

func (c *HTTPClient) DeleteGroup(ctx context.Context, id string) error {
	return c.delete(ctx, model.TableGroups, id)
}

func (c *HTTPClient) CreateColumn(ctx context.Context, col model.Column) error {
	return c.insert(ctx, model.TableColumns, col)
}

func (c *HTTPClient) UpdateColumn(ctx context.Context, id string, patch Patch) error {
	return c.update(ctx, model.TableColumns, id, patch)
}

func (c *HTTPClient) DeleteColumn(ctx context.Context, id string) error {
	return c.delete(ctx, model.TableColumns, id)
}

func (c *HTTPClient) CreateItem(ctx context.Context, it model.Item) error {
	return c.insert(ctx, model.TableItems, it)
}

func (c *HTTPClient) UpdateItem(ctx context.Context, id string, patch Patch) error {
	return c.update(ctx, model.TableItems, id, patch)
}

// SetItemValue replaces one column value of an item without rewriting the
// other values.
func (c *HTTPClient) SetItemValue(ctx context.Context, itemID, columnID string, value json.RawMessage) error {
	body := map[string]any{"item_id": itemID, "column_id": columnID, "value": value}
	if err := c.doJSON(ctx, http.MethodPost, rpcPath("set_item_value"), body, nil); err != nil {
		return fmt.Errorf("setting value of item %s column %s: %w", itemID, columnID, err)
	}
	return nil
}

func (c *HTTPClient) DeleteItem(ctx context.Context, id string) error {
	return c.delete(ctx, model.TableItems, id)
}

// Reorder calls rpc/reorder_<collection> with the full new sequence.
func (c *HTTPClient) Reorder(ctx context.Context, coll Collection, parentID string, orderedIDs []string) error {
	body := map[string]any{"parent_id": parentID, "ordered_ids": orderedIDs}
	if err := c.doJSON(ctx, http.MethodPost, rpcPath("reorder_"+string(coll)), body, nil); err != nil {
		return fmt.Errorf("reordering %s of %s: %w", coll, parentID, err)
	}
	return nil
}

// --- notifications, memberships, activity ---

func (c *HTTPClient) ListNotifications(ctx context.Context, userID string) ([]model.Notification, error) {
	var out []model.Notification
	path := tablePath(model.TableNotifications, "user_id", eq(userID), "order", "created_at.desc")
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	return out, nil
}

func (c *HTTPClient) CreateNotification(ctx context.Context, n model.Notification) error {
	return c.insert(ctx, model.TableNotifications, n)
}

func (c *HTTPClient) UpdateNotification(ctx context.Context, id string, patch Patch) error {
	return c.update(ctx, model.TableNotifications, id, patch)
}

func (c *HTTPClient) DeleteNotification(ctx context.Context, id string) error {
	return c.delete(ctx, model.TableNotifications, id)
}

func (c *HTTPClient) FindMembership(ctx context.Context, kind, entityID, userID string) (*model.Membership, error) {
	var out []model.Membership
	path := tablePath(model.TableMemberships,
		"kind", eq(kind), "entity_id", eq(entityID), "user_id", eq(userID), "limit", "1")
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("finding membership: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return &out[0], nil
}

func (c *HTTPClient) CreateMembership(ctx context.Context, m model.Membership) error {
	return c.insert(ctx, model.TableMemberships, m)
}

func (c *HTTPClient) AppendActivity(ctx context.Context, a model.Activity) error {
	return c.insert(ctx, model.TableActivity, a)
}

// --- transport ---

func (c *HTTPClient) insert(ctx context.Context, table string, row any) error {
	if err := c.doJSON(ctx, http.MethodPost, tablePath(table), row, nil); err != nil {
		return fmt.Errorf("inserting into %s: %w", table, err)
	}
	return nil
}

func (c *HTTPClient) update(ctx context.Context, table, id string, patch Patch) error {
	if len(patch) == 0 {
		return nil
	}
	if err := c.doJSON(ctx, http.MethodPatch, tablePath(table, "id", eq(id)), patch, nil); err != nil {
		return fmt.Errorf("updating %s %s: %w", table, id, err)
	}
	return nil
}

func (c *HTTPClient) delete(ctx context.Context, table, id string) error {
	if err := c.doJSON(ctx, http.MethodDelete, tablePath(table, "id", eq(id)), nil, nil); err != nil {
		return fmt.Errorf("deleting %s %s: %w", table, id, err)
	}
	return nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, requestPath string, body, out any) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}
	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
		if err != nil {
			return err
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		req.Header.Set("X-Request-Id", uuid.NewString())
		req.Header.Set("Prefer", "return=minimal")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries && ctx.Err() == nil {
				if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(payload) == 0 {
				return nil
			}
			return json.Unmarshal(payload, out)
		}

		if (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500) && attempt < c.maxRetries {
			if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}

		var errPayload struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(payload, &errPayload)
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       requestPath,
			Code:       errPayload.Code,
			Message:    errPayload.Message,
		}
	}
}

func (c *HTTPClient) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	maxDelay := c.maxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	if retryAfter := parseRetryAfter(retryAfterHeader); retryAfter > 0 {
		if retryAfter > maxDelay {
			return maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	return delay
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := http.ParseTime(header); err == nil {
		if delta := time.Until(ts); delta > 0 {
			return delta
		}
	}
	return 0
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
