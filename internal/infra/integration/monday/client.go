package monday

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.monday.com/v2"
	pageLimit      = 100
	maxPages       = 50
)

var ErrItemNotFound = errors.New("monday: item not found")

// APIError is returned for transport-level rejections and GraphQL error payloads.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("monday api error: %d - %s", e.StatusCode, e.Message)
	}
	return "monday api error: " + e.Message
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *zap.Logger
}

func NewClient(cfg Config, timeout time.Duration, log *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PhoneColumnID == "" {
		cfg.PhoneColumnID = "phone"
	}
	if cfg.StatusColumnID == "" {
		cfg.StatusColumnID = "status"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

const getItemQuery = `query GetItem($itemId: [ID!]) {
  items(ids: $itemId) {
    id
    name
    column_values {
      id
      text
      value
    }
  }
}`

// FetchItem reads the item name, phone and status columns.
func (c *Client) FetchItem(ctx context.Context, itemID string) (*Item, error) {
	var resp itemResponse
	if err := c.execute(ctx, getItemQuery, map[string]any{"itemId": []string{itemID}}, &resp, &resp.Errors); err != nil {
		return nil, eris.Wrapf(err, "monday: fetch item %s", itemID)
	}
	if len(resp.Data.Items) == 0 {
		return nil, eris.Wrapf(ErrItemNotFound, "monday: fetch item %s", itemID)
	}

	raw := resp.Data.Items[0]
	item := &Item{ID: raw.ID, Name: raw.Name}
	for _, col := range raw.ColumnValues {
		switch col.ID {
		case c.cfg.PhoneColumnID:
			item.Phone = parsePhoneColumn(col)
		case c.cfg.StatusColumnID:
			if col.Text != nil {
				item.Status = *col.Text
			}
		}
	}
	return item, nil
}

const updateStatusMutation = `mutation UpdateItemStatus($boardId: ID!, $itemId: ID!, $columnId: String!, $value: JSON!) {
  change_column_value(board_id: $boardId, item_id: $itemId, column_id: $columnId, value: $value) {
    id
  }
}`

// UpdateStatus sets the status column label of an item.
func (c *Client) UpdateStatus(ctx context.Context, itemID, status string) error {
	value, err := json.Marshal(map[string]string{"label": status})
	if err != nil {
		return eris.Wrap(err, "monday: encode status")
	}

	vars := map[string]any{
		"boardId":  c.cfg.BoardID,
		"itemId":   itemID,
		"columnId": c.cfg.StatusColumnID,
		"value":    string(value),
	}

	c.log.Info("updating_monday_status", zap.String("item_id", itemID), zap.String("new_status", status))

	var resp mutationResponse
	if err := c.execute(ctx, updateStatusMutation, vars, &resp, &resp.Errors); err != nil {
		return eris.Wrapf(err, "monday: update status of item %s", itemID)
	}
	return nil
}

const itemsByStatusQuery = `query ItemsByStatus($boardId: ID!, $columnId: String!, $status: String!, $limit: Int!) {
  items_page_by_column_values(limit: $limit, board_id: $boardId, columns: [{column_id: $columnId, column_values: [$status]}]) {
    cursor
    items { id }
  }
}`

const nextItemsQuery = `query NextItems($cursor: String!, $limit: Int!) {
  next_items_page(limit: $limit, cursor: $cursor) {
    cursor
    items { id }
  }
}`

// ListItemIDsByStatus pages through the board collecting ids of items whose status column equals status.
func (c *Client) ListItemIDsByStatus(ctx context.Context, status string) ([]string, error) {
	var ids []string

	vars := map[string]any{
		"boardId":  c.cfg.BoardID,
		"columnId": c.cfg.StatusColumnID,
		"status":   status,
		"limit":    pageLimit,
	}
	var first itemsPageResponse
	if err := c.execute(ctx, itemsByStatusQuery, vars, &first, &first.Errors); err != nil {
		return nil, eris.Wrap(err, "monday: list items by status")
	}

	page := first.Data.ItemsPageByColumnValues
	for i := 0; page != nil && i < maxPages; i++ {
		for _, it := range page.Items {
			ids = append(ids, it.ID)
		}
		if page.Cursor == nil || *page.Cursor == "" {
			break
		}

		var next itemsPageResponse
		nextVars := map[string]any{"cursor": *page.Cursor, "limit": pageLimit}
		if err := c.execute(ctx, nextItemsQuery, nextVars, &next, &next.Errors); err != nil {
			return nil, eris.Wrap(err, "monday: list next items page")
		}
		page = next.Data.NextItemsPage
	}

	return ids, nil
}

func (c *Client) execute(ctx context.Context, query string, vars map[string]any, out any, gqlErrs *[]graphQLError) error {
	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return eris.Wrap(err, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "build request")
	}
	c.addAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("monday_http_error", zap.Error(err))
		return eris.Wrap(err, "send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Error("monday_api_error", zap.Int("status_code", resp.StatusCode), zap.ByteString("body", body))
		return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "decode response")
	}

	if len(*gqlErrs) > 0 {
		msgs := make([]string, 0, len(*gqlErrs))
		for _, e := range *gqlErrs {
			msgs = append(msgs, e.Message)
		}
		c.log.Error("monday_api_error", zap.Strings("errors", msgs))
		return &APIError{Message: strings.Join(msgs, "; ")}
	}

	return nil
}

func (c *Client) addAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", c.cfg.APIToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

// Phone columns store {"phone": "...", "countryShortName": "IL"}; fall back to the display text.
func parsePhoneColumn(col columnValue) string {
	if col.Value != nil && *col.Value != "" {
		var v phoneColumnValue
		if err := json.Unmarshal([]byte(*col.Value), &v); err == nil && v.Phone != "" {
			return v.Phone
		}
	}
	if col.Text != nil {
		return strings.TrimSpace(*col.Text)
	}
	return ""
}
